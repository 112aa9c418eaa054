// Package ledger reconciles boost (Up) and reduce (Down) actions into a single
// vote record per voter and subject, keeping the subject's net tally off the
// zero floor.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Ledger applies votes against a Store. It keeps no state between calls other
// than lock entries for calls in flight, so any number of Ledgers may share
// one Store.
type Ledger struct {
	store  Store
	logger *zap.Logger
	strict bool
	locks  *keyedMutex
}

type Option func(*Ledger)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithStrictFloor serializes every vote on a subject instead of only the
// votes of one voter, so concurrent voters cannot jointly push the tally
// below zero.
func WithStrictFloor(strict bool) Option {
	return func(l *Ledger) {
		l.strict = strict
	}
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: zap.NewNop(),
		locks:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Apply records voterID's requested direction on subjectID. It performs at
// most one store mutation and re-reads all state on every call, so a failed
// call can be retried as is.
func (l *Ledger) Apply(ctx context.Context, subjectID, voterID string, requested Direction) (Result, error) {
	subjectID = strings.TrimSpace(subjectID)
	voterID = strings.TrimSpace(voterID)
	if subjectID == "" || voterID == "" {
		return Result{}, fmt.Errorf("%w: subject and voter ids are required", ErrInvalidArgument)
	}
	if !requested.Valid() {
		return Result{}, fmt.Errorf("%w: direction must be Up or Down, got %q", ErrInvalidArgument, string(requested))
	}

	unlock := l.lock(subjectID, voterID)
	defer unlock()

	existing, found, err := l.store.FindVote(ctx, subjectID, voterID)
	if err != nil {
		return Result{}, l.storageError("find vote", err, subjectID, voterID)
	}
	before, err := l.tally(ctx, subjectID)
	if err != nil {
		return Result{}, l.storageError("count votes", err, subjectID, voterID)
	}

	var prior *Vote
	if found {
		prior = &existing
	}
	step := reconcile(prior, requested, before.Net)

	if step.outcome == NoOp {
		l.logger.Debug("boost rejected at floor",
			zap.String("subject_id", subjectID),
			zap.String("voter_id", voterID),
			zap.String("direction", string(requested)),
			zap.Int("net", before.Net),
		)
		return Result{Outcome: NoOp, NetBefore: before.Net, NetAfter: before.Net}, nil
	}

	// Nothing has been written yet; a cancelled caller gets no mutation.
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: boost not applied: %w", ErrStorageFailure, err)
	}

	switch step.outcome {
	case Created:
		err = l.store.CreateVote(ctx, subjectID, voterID, requested)
	case Updated:
		err = l.store.UpdateVoteDirection(ctx, existing.ID, requested)
	case Deleted:
		err = l.store.DeleteVote(ctx, existing.ID)
	}
	if err != nil {
		return Result{}, l.storageError(strings.ToLower(string(step.outcome))+" vote", err, subjectID, voterID)
	}

	netAfter := before.Net + step.delta
	if after, err := l.tally(ctx, subjectID); err != nil {
		// The write went through; report the expected tally rather than an
		// error that would invite a retry.
		l.logger.Warn("recount after boost failed",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
	} else {
		netAfter = after.Net
	}

	l.logger.Debug("boost applied",
		zap.String("subject_id", subjectID),
		zap.String("voter_id", voterID),
		zap.String("direction", string(requested)),
		zap.String("outcome", string(step.outcome)),
		zap.Int("net_before", before.Net),
		zap.Int("net_after", netAfter),
	)

	return Result{
		Outcome:   step.outcome,
		NetBefore: before.Net,
		NetAfter:  netAfter,
		Standing:  step.standing,
	}, nil
}

// Tally returns the current counts for subjectID.
func (l *Ledger) Tally(ctx context.Context, subjectID string) (Tally, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return Tally{}, fmt.Errorf("%w: subject id is required", ErrInvalidArgument)
	}
	t, err := l.tally(ctx, subjectID)
	if err != nil {
		return Tally{}, l.storageError("count votes", err, subjectID, "")
	}
	return t, nil
}

// Tallies returns the counts for each of subjectIDs, keyed by subject. Every
// requested subject is present; unvoted ones have a zero Tally.
func (l *Ledger) Tallies(ctx context.Context, subjectIDs []string) (map[string]Tally, error) {
	ids := make([]string, 0, len(subjectIDs))
	for _, id := range subjectIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("%w: subject id is required", ErrInvalidArgument)
		}
		ids = append(ids, id)
	}
	out := make(map[string]Tally, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	if counter, ok := l.store.(BatchCounter); ok {
		counts, err := counter.CountBySubjects(ctx, ids)
		if err != nil {
			return nil, l.storageError("count votes", err, strings.Join(ids, ","), "")
		}
		for _, id := range ids {
			t := counts[id]
			t.Net = t.Up - t.Down
			out[id] = t
		}
		return out, nil
	}

	for _, id := range ids {
		if _, seen := out[id]; seen {
			continue
		}
		t, err := l.tally(ctx, id)
		if err != nil {
			return nil, l.storageError("count votes", err, id, "")
		}
		out[id] = t
	}
	return out, nil
}

// Standing returns the direction voterID currently holds on subjectID, or ""
// when they hold no vote.
func (l *Ledger) Standing(ctx context.Context, subjectID, voterID string) (Direction, error) {
	subjectID = strings.TrimSpace(subjectID)
	voterID = strings.TrimSpace(voterID)
	if subjectID == "" || voterID == "" {
		return "", fmt.Errorf("%w: subject and voter ids are required", ErrInvalidArgument)
	}
	vote, found, err := l.store.FindVote(ctx, subjectID, voterID)
	if err != nil {
		return "", l.storageError("find vote", err, subjectID, voterID)
	}
	if !found {
		return "", nil
	}
	return vote.Direction, nil
}

func (l *Ledger) tally(ctx context.Context, subjectID string) (Tally, error) {
	up, err := l.store.CountByDirection(ctx, subjectID, Up)
	if err != nil {
		return Tally{}, err
	}
	down, err := l.store.CountByDirection(ctx, subjectID, Down)
	if err != nil {
		return Tally{}, err
	}
	return Tally{Up: up, Down: down, Net: up - down}, nil
}

func (l *Ledger) lock(subjectID, voterID string) func() {
	if l.strict {
		return l.locks.Lock(subjectID)
	}
	return l.locks.Lock(subjectID + "\x00" + voterID)
}

func (l *Ledger) storageError(op string, err error, subjectID, voterID string) error {
	l.logger.Warn("boost ledger storage call failed",
		zap.String("op", op),
		zap.String("subject_id", subjectID),
		zap.String("voter_id", voterID),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}

type step struct {
	outcome  Outcome
	standing Direction
	// delta is the expected change to the net tally.
	delta int
}

// reconcile decides what a requested direction does to the voter's existing
// vote given the subject's net tally before the action.
func reconcile(existing *Vote, requested Direction, netBefore int) step {
	if existing == nil {
		if requested == Up {
			return step{outcome: Created, standing: Up, delta: 1}
		}
		if netBefore <= 0 {
			return step{outcome: NoOp}
		}
		return step{outcome: Created, standing: Down, delta: -1}
	}

	if existing.Direction == requested {
		delta := -1
		if requested == Down {
			delta = 1
		}
		return step{outcome: Deleted, delta: delta}
	}

	if requested == Down {
		// Withdrawing their Up is always allowed; turning it into a Down is
		// not when that leaves the subject at or below zero.
		if netBefore-1 <= 0 {
			return step{outcome: Deleted, delta: -1}
		}
		return step{outcome: Updated, standing: Down, delta: -2}
	}
	return step{outcome: Updated, standing: Up, delta: 2}
}
