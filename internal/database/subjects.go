package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/whisperhq/whisper/backend/internal/ledger"
	"github.com/whisperhq/whisper/backend/internal/models"
)

// Subject kinds that can be boosted.
const (
	SubjectPoint   = "point"
	SubjectComment = "comment"
)

// Subjects resolves namespaced subject ids against the points and comments tables.
type Subjects struct {
	db *gorm.DB
}

func NewSubjects(db *gorm.DB) *Subjects {
	return &Subjects{db: db}
}

// SubjectExists reports whether the point or comment behind subjectID exists.
// Malformed ids are an invalid argument, not a missing subject.
func (s *Subjects) SubjectExists(ctx context.Context, subjectID string) (bool, error) {
	kind, id, err := ParseSubject(subjectID)
	if err != nil {
		return false, err
	}

	var model any
	switch kind {
	case SubjectPoint:
		model = &models.Point{}
	case SubjectComment:
		model = &models.Comment{}
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("%w: lookup %s: %w", ledger.ErrStorageFailure, subjectID, err)
	}
	return count > 0, nil
}

// ParseSubject splits "point:12" into its kind and numeric id.
func ParseSubject(subjectID string) (string, int, error) {
	kind, rawID, ok := strings.Cut(strings.TrimSpace(subjectID), ":")
	if !ok || (kind != SubjectPoint && kind != SubjectComment) {
		return "", 0, fmt.Errorf("%w: unknown subject %q", ledger.ErrInvalidArgument, subjectID)
	}
	id, err := strconv.Atoi(rawID)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("%w: bad subject id %q", ledger.ErrInvalidArgument, subjectID)
	}
	return kind, id, nil
}
