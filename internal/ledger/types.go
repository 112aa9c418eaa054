package ledger

import (
	"context"
	"fmt"
)

// Direction is the side a voter takes on a subject.
type Direction string

const (
	Up   Direction = "Up"
	Down Direction = "Down"
)

// ParseDirection accepts exactly "Up" or "Down".
func ParseDirection(raw string) (Direction, error) {
	if d := Direction(raw); d.Valid() {
		return d, nil
	}
	return "", fmt.Errorf("%w: direction must be Up or Down, got %q", ErrInvalidArgument, raw)
}

func (d Direction) Valid() bool {
	return d == Up || d == Down
}

// Outcome reports which mutation Apply performed.
type Outcome string

const (
	Created Outcome = "Created"
	Updated Outcome = "Updated"
	Deleted Outcome = "Deleted"
	NoOp    Outcome = "NoOp"
)

// Vote is a single voter's directional vote on a subject.
type Vote struct {
	ID        string
	SubjectID string
	VoterID   string
	Direction Direction
}

// Result is what Apply hands back to the caller.
type Result struct {
	Outcome   Outcome
	NetBefore int
	NetAfter  int
	// Standing is the voter's direction after the call, empty when they hold no vote.
	Standing Direction
}

// Tally is the derived vote count for a subject.
type Tally struct {
	Up   int `json:"up"`
	Down int `json:"down"`
	Net  int `json:"net"`
}

// Store is the persistence collaborator. Each mutating call must be atomic at
// the record level; nothing more is assumed.
type Store interface {
	FindVote(ctx context.Context, subjectID, voterID string) (Vote, bool, error)
	CountByDirection(ctx context.Context, subjectID string, direction Direction) (int, error)
	CreateVote(ctx context.Context, subjectID, voterID string, direction Direction) error
	UpdateVoteDirection(ctx context.Context, voteID string, direction Direction) error
	DeleteVote(ctx context.Context, voteID string) error
}

// BatchCounter is an optional Store extension that counts many subjects in
// one round trip. Subjects with no votes may be absent from the result.
type BatchCounter interface {
	CountBySubjects(ctx context.Context, subjectIDs []string) (map[string]Tally, error)
}

// SubjectKey builds the namespaced subject id used for boosts, e.g. "point:12".
func SubjectKey(kind string, id int) string {
	return fmt.Sprintf("%s:%d", kind, id)
}
