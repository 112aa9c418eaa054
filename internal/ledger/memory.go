package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It enforces the one-vote-per-pair rule
// itself, the way a unique index would.
type MemoryStore struct {
	mu     sync.RWMutex
	votes  map[string]Vote
	byPair map[string]string
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ BatchCounter = (*MemoryStore)(nil)
)

func NewMemoryStore(seed ...Vote) *MemoryStore {
	s := &MemoryStore{
		votes:  make(map[string]Vote, len(seed)),
		byPair: make(map[string]string, len(seed)),
	}
	for _, vote := range seed {
		if vote.ID == "" {
			vote.ID = uuid.NewString()
		}
		s.votes[vote.ID] = vote
		s.byPair[pairKey(vote.SubjectID, vote.VoterID)] = vote.ID
	}
	return s
}

func (s *MemoryStore) FindVote(_ context.Context, subjectID, voterID string) (Vote, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pairKey(subjectID, voterID)]
	if !ok {
		return Vote{}, false, nil
	}
	return s.votes[id], true, nil
}

func (s *MemoryStore) CountByDirection(_ context.Context, subjectID string, direction Direction) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, vote := range s.votes {
		if vote.SubjectID == subjectID && vote.Direction == direction {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CountBySubjects(_ context.Context, subjectIDs []string) (map[string]Tally, error) {
	wanted := make(map[string]bool, len(subjectIDs))
	for _, id := range subjectIDs {
		wanted[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Tally, len(subjectIDs))
	for _, vote := range s.votes {
		if !wanted[vote.SubjectID] {
			continue
		}
		t := out[vote.SubjectID]
		if vote.Direction == Up {
			t.Up++
		} else {
			t.Down++
		}
		out[vote.SubjectID] = t
	}
	return out, nil
}

func (s *MemoryStore) CreateVote(_ context.Context, subjectID, voterID string, direction Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(subjectID, voterID)
	if _, exists := s.byPair[key]; exists {
		return fmt.Errorf("%w: subject %s voter %s", ErrDuplicateVote, subjectID, voterID)
	}
	vote := Vote{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		VoterID:   voterID,
		Direction: direction,
	}
	s.votes[vote.ID] = vote
	s.byPair[key] = vote.ID
	return nil
}

func (s *MemoryStore) UpdateVoteDirection(_ context.Context, voteID string, direction Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vote, ok := s.votes[voteID]
	if !ok {
		return fmt.Errorf("vote %s not found", voteID)
	}
	vote.Direction = direction
	s.votes[voteID] = vote
	return nil
}

func (s *MemoryStore) DeleteVote(_ context.Context, voteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vote, ok := s.votes[voteID]
	if !ok {
		return fmt.Errorf("vote %s not found", voteID)
	}
	delete(s.votes, voteID)
	delete(s.byPair, pairKey(vote.SubjectID, vote.VoterID))
	return nil
}

// Votes returns every vote held for subjectID.
func (s *MemoryStore) Votes(subjectID string) []Vote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Vote
	for _, vote := range s.votes {
		if vote.SubjectID == subjectID {
			out = append(out, vote)
		}
	}
	return out
}

func pairKey(subjectID, voterID string) string {
	return strings.TrimSpace(subjectID) + "\x00" + strings.TrimSpace(voterID)
}
