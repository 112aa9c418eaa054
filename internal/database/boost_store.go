package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/whisperhq/whisper/backend/internal/ledger"
	"github.com/whisperhq/whisper/backend/internal/models"
)

// BoostStore persists ledger votes in the boosts table.
type BoostStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

var (
	_ ledger.Store        = (*BoostStore)(nil)
	_ ledger.BatchCounter = (*BoostStore)(nil)
)

func NewBoostStore(db *gorm.DB, logger *zap.Logger) *BoostStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoostStore{db: db, logger: logger}
}

func (s *BoostStore) FindVote(ctx context.Context, subjectID, voterID string) (ledger.Vote, bool, error) {
	var row models.Boost
	err := s.db.WithContext(ctx).
		Where("subject_id = ? AND voter_id = ?", subjectID, voterID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Vote{}, false, nil
		}
		return ledger.Vote{}, false, s.logError("find boost", err, zap.String("subject_id", subjectID), zap.String("voter_id", voterID))
	}
	return toVote(row), true, nil
}

func (s *BoostStore) CountByDirection(ctx context.Context, subjectID string, direction ledger.Direction) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Boost{}).
		Where("subject_id = ? AND direction = ?", subjectID, string(direction)).
		Count(&count).Error
	if err != nil {
		return 0, s.logError("count boosts", err, zap.String("subject_id", subjectID))
	}
	return int(count), nil
}

// CountBySubjects tallies a page of subjects with a single grouped query.
func (s *BoostStore) CountBySubjects(ctx context.Context, subjectIDs []string) (map[string]ledger.Tally, error) {
	var rows []struct {
		SubjectID string
		Direction string
		Count     int
	}
	err := s.db.WithContext(ctx).
		Model(&models.Boost{}).
		Select("subject_id, direction, COUNT(*) AS count").
		Where("subject_id IN ?", subjectIDs).
		Group("subject_id, direction").
		Scan(&rows).Error
	if err != nil {
		return nil, s.logError("count boosts", err, zap.Int("subjects", len(subjectIDs)))
	}

	out := make(map[string]ledger.Tally, len(subjectIDs))
	for _, row := range rows {
		t := out[row.SubjectID]
		switch ledger.Direction(row.Direction) {
		case ledger.Up:
			t.Up = row.Count
		case ledger.Down:
			t.Down = row.Count
		}
		out[row.SubjectID] = t
	}
	return out, nil
}

func (s *BoostStore) CreateVote(ctx context.Context, subjectID, voterID string, direction ledger.Direction) error {
	row := models.Boost{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		VoterID:   voterID,
		Direction: string(direction),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: subject %s voter %s", ledger.ErrDuplicateVote, subjectID, voterID)
		}
		return s.logError("create boost", err, zap.String("subject_id", subjectID), zap.String("voter_id", voterID))
	}
	return nil
}

func (s *BoostStore) UpdateVoteDirection(ctx context.Context, voteID string, direction ledger.Direction) error {
	result := s.db.WithContext(ctx).
		Model(&models.Boost{}).
		Where("id = ?", voteID).
		Update("direction", string(direction))
	if result.Error != nil {
		return s.logError("update boost", result.Error, zap.String("boost_id", voteID))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("boost %s: %w", voteID, gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *BoostStore) DeleteVote(ctx context.Context, voteID string) error {
	result := s.db.WithContext(ctx).
		Where("id = ?", voteID).
		Delete(&models.Boost{})
	if result.Error != nil {
		return s.logError("delete boost", result.Error, zap.String("boost_id", voteID))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("boost %s: %w", voteID, gorm.ErrRecordNotFound)
	}
	return nil
}

// DeleteSubjects removes every boost recorded against the given subjects. It
// runs on tx so callers can bundle it with the subject's own deletion.
func DeleteSubjects(tx *gorm.DB, subjectIDs ...string) error {
	if len(subjectIDs) == 0 {
		return nil
	}
	return tx.Where("subject_id IN ?", subjectIDs).Delete(&models.Boost{}).Error
}

func (s *BoostStore) logError(op string, err error, fields ...zap.Field) error {
	s.logger.Error("boost store operation failed", append(fields, zap.String("op", op), zap.Error(err))...)
	return err
}

func toVote(row models.Boost) ledger.Vote {
	return ledger.Vote{
		ID:        row.ID,
		SubjectID: row.SubjectID,
		VoterID:   row.VoterID,
		Direction: ledger.Direction(row.Direction),
	}
}

// IsUniqueViolation reports whether err came from a unique index rejecting
// an insert.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
