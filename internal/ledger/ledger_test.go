package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const subject = "point:1"

// seeded builds a store where `ups` and `downs` other voters already voted on
// subject, plus any extra votes.
func seeded(ups, downs int, extra ...Vote) *MemoryStore {
	var votes []Vote
	for i := 0; i < ups; i++ {
		votes = append(votes, Vote{SubjectID: subject, VoterID: fmt.Sprintf("up-%d", i), Direction: Up})
	}
	for i := 0; i < downs; i++ {
		votes = append(votes, Vote{SubjectID: subject, VoterID: fmt.Sprintf("down-%d", i), Direction: Down})
	}
	return NewMemoryStore(append(votes, extra...)...)
}

func voterVote(d Direction) Vote {
	return Vote{SubjectID: subject, VoterID: "voter", Direction: d}
}

func standingOf(t *testing.T, store *MemoryStore) (Direction, bool) {
	t.Helper()
	vote, found, err := store.FindVote(context.Background(), subject, "voter")
	require.NoError(t, err)
	return vote.Direction, found
}

func TestApplyScenarios(t *testing.T) {
	cases := []struct {
		name      string
		store     *MemoryStore
		requested Direction
		outcome   Outcome
		netBefore int
		netAfter  int
		standing  Direction
	}{
		{
			name:      "fresh reduce at zero is ignored",
			store:     seeded(0, 0),
			requested: Down,
			outcome:   NoOp,
			netBefore: 0,
			netAfter:  0,
		},
		{
			name:      "switching down at one withdraws the boost",
			store:     seeded(0, 0, voterVote(Up)),
			requested: Down,
			outcome:   Deleted,
			netBefore: 1,
			netAfter:  0,
		},
		{
			name:      "switching down at two flips the vote",
			store:     seeded(1, 0, voterVote(Up)),
			requested: Down,
			outcome:   Updated,
			netBefore: 2,
			netAfter:  0,
			standing:  Down,
		},
		{
			name:      "switching up always flips the vote",
			store:     seeded(2, 0, voterVote(Down)),
			requested: Up,
			outcome:   Updated,
			netBefore: 1,
			netAfter:  3,
			standing:  Up,
		},
		{
			name:      "repeating a boost toggles it off",
			store:     seeded(0, 0, voterVote(Up)),
			requested: Up,
			outcome:   Deleted,
			netBefore: 1,
			netAfter:  0,
		},
		{
			name:      "fresh boost is created",
			store:     seeded(0, 2),
			requested: Up,
			outcome:   Created,
			netBefore: -2,
			netAfter:  -1,
			standing:  Up,
		},
		{
			name:      "fresh reduce above zero is created",
			store:     seeded(3, 1),
			requested: Down,
			outcome:   Created,
			netBefore: 2,
			netAfter:  1,
			standing:  Down,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := New(tc.store)
			res, err := l.Apply(context.Background(), subject, "voter", tc.requested)
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, res.Outcome)
			assert.Equal(t, tc.netBefore, res.NetBefore)
			assert.Equal(t, tc.netAfter, res.NetAfter)
			assert.Equal(t, tc.standing, res.Standing)

			got, found := standingOf(t, tc.store)
			assert.Equal(t, tc.standing != "", found)
			assert.Equal(t, tc.standing, got)
		})
	}
}

func TestApplyRepeatAlwaysDeletes(t *testing.T) {
	for _, d := range []Direction{Up, Down} {
		for _, others := range [][2]int{{0, 0}, {4, 0}, {0, 4}, {2, 5}} {
			t.Run(fmt.Sprintf("%s/%d-%d", d, others[0], others[1]), func(t *testing.T) {
				store := seeded(others[0], others[1], voterVote(d))
				ctx := context.Background()
				before, err := store.CountByDirection(ctx, subject, d)
				require.NoError(t, err)

				res, err := New(store).Apply(ctx, subject, "voter", d)
				require.NoError(t, err)
				assert.Equal(t, Deleted, res.Outcome)

				after, err := store.CountByDirection(ctx, subject, d)
				require.NoError(t, err)
				assert.Equal(t, before-1, after)
			})
		}
	}
}

func TestApplyLoneVoterSwitchingDownStaysOffFloor(t *testing.T) {
	for others := 0; others <= 5; others++ {
		store := seeded(others, 0, voterVote(Up))
		res, err := New(store).Apply(context.Background(), subject, "voter", Down)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.NetAfter, 0, "others=%d", others)
	}
}

func TestApplyFreshReduceRejectedAtOrBelowFloor(t *testing.T) {
	for _, counts := range [][2]int{{0, 0}, {1, 1}, {1, 3}, {0, 2}} {
		store := seeded(counts[0], counts[1])
		res, err := New(store).Apply(context.Background(), subject, "voter", Down)
		require.NoError(t, err)
		assert.Equal(t, NoOp, res.Outcome)
		assert.Equal(t, res.NetBefore, res.NetAfter)
		assert.Equal(t, counts[0]-counts[1], res.NetAfter)

		_, found := standingOf(t, store)
		assert.False(t, found)
	}
}

func TestApplyBoostAlwaysAccepted(t *testing.T) {
	for _, counts := range [][2]int{{0, 0}, {3, 0}, {0, 3}, {2, 6}} {
		t.Run(fmt.Sprintf("fresh/%d-%d", counts[0], counts[1]), func(t *testing.T) {
			res, err := New(seeded(counts[0], counts[1])).Apply(context.Background(), subject, "voter", Up)
			require.NoError(t, err)
			assert.Equal(t, Created, res.Outcome)
			assert.Equal(t, res.NetBefore+1, res.NetAfter)
		})
		t.Run(fmt.Sprintf("from-down/%d-%d", counts[0], counts[1]), func(t *testing.T) {
			res, err := New(seeded(counts[0], counts[1], voterVote(Down))).Apply(context.Background(), subject, "voter", Up)
			require.NoError(t, err)
			assert.Equal(t, Updated, res.Outcome)
			assert.Equal(t, res.NetBefore+2, res.NetAfter)
		})
	}
}

func TestApplyKeepsOneVotePerVoter(t *testing.T) {
	store := seeded(2, 1)
	l := New(store)
	sequence := []Direction{Up, Down, Down, Up, Up, Down, Up, Down, Down, Down, Up}
	for i, d := range sequence {
		_, err := l.Apply(context.Background(), subject, "voter", d)
		require.NoError(t, err, "step %d", i)

		mine := 0
		for _, vote := range store.Votes(subject) {
			if vote.VoterID == "voter" {
				mine++
			}
		}
		assert.LessOrEqual(t, mine, 1, "step %d", i)
	}
}

func TestApplyRejectsBadInputWithoutTouchingStore(t *testing.T) {
	cases := []struct {
		name      string
		subjectID string
		voterID   string
		direction Direction
	}{
		{"empty subject", "", "voter", Up},
		{"blank voter", subject, "   ", Up},
		{"unknown direction", subject, "voter", Direction("Sideways")},
		{"empty direction", subject, "voter", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &faultyStore{MemoryStore: NewMemoryStore()}
			_, err := New(store).Apply(context.Background(), tc.subjectID, tc.voterID, tc.direction)
			require.ErrorIs(t, err, ErrInvalidArgument)
			assert.Equal(t, KindInvalidArgument, KindOf(err))
			assert.Zero(t, store.calls)
		})
	}
}

func TestApplyStorageFailures(t *testing.T) {
	boom := errors.New("connection reset")

	t.Run("read failure leaves no mutation", func(t *testing.T) {
		store := &faultyStore{MemoryStore: seeded(1, 0), findErr: boom}
		_, err := New(store).Apply(context.Background(), subject, "voter", Up)
		require.ErrorIs(t, err, ErrStorageFailure)
		require.ErrorIs(t, err, boom)
		assert.Equal(t, KindStorageFailure, KindOf(err))
		assert.Len(t, store.Votes(subject), 1)
	})

	t.Run("count failure leaves no mutation", func(t *testing.T) {
		store := &faultyStore{MemoryStore: seeded(1, 0), failCountFrom: 1}
		_, err := New(store).Apply(context.Background(), subject, "voter", Up)
		require.ErrorIs(t, err, ErrStorageFailure)
		assert.Len(t, store.Votes(subject), 1)
	})

	t.Run("write failure is propagated", func(t *testing.T) {
		store := &faultyStore{MemoryStore: seeded(0, 0), writeErr: boom}
		_, err := New(store).Apply(context.Background(), subject, "voter", Up)
		require.ErrorIs(t, err, ErrStorageFailure)
		require.ErrorIs(t, err, boom)
		assert.Empty(t, store.Votes(subject))
	})

	t.Run("recount failure reports the expected tally", func(t *testing.T) {
		store := &faultyStore{MemoryStore: seeded(2, 0, voterVote(Down)), failCountFrom: 3}
		res, err := New(store).Apply(context.Background(), subject, "voter", Up)
		require.NoError(t, err)
		assert.Equal(t, Updated, res.Outcome)
		assert.Equal(t, 3, res.NetAfter)
	})
}

func TestApplyCancelledBeforeWrite(t *testing.T) {
	store := seeded(1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(store).Apply(ctx, subject, "voter", Up)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, store.Votes(subject), 1)

	// A retry with a live context starts from scratch.
	res, err := New(store).Apply(context.Background(), subject, "voter", Up)
	require.NoError(t, err)
	assert.Equal(t, Created, res.Outcome)
	assert.Equal(t, 2, res.NetAfter)
}

func TestApplySerializesSameVoter(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := seeded(0, 0)
	l := New(store)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Apply(context.Background(), subject, "voter", Up); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	// Forty toggles end where they started.
	assert.Empty(t, store.Votes(subject))
	assert.Zero(t, l.locks.size())
}

func TestApplyStrictFloorUnderConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := seeded(1, 0)
	l := New(store, WithStrictFloor(true))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Apply(context.Background(), subject, fmt.Sprintf("reducer-%d", i), Down)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	tally, err := l.Tally(context.Background(), subject)
	require.NoError(t, err)
	assert.Equal(t, Tally{Up: 1, Down: 1, Net: 0}, tally)
}

func TestTallyAndStanding(t *testing.T) {
	store := seeded(3, 1, voterVote(Down))
	l := New(store)
	ctx := context.Background()

	tally, err := l.Tally(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, Tally{Up: 3, Down: 2, Net: 1}, tally)

	d, err := l.Standing(ctx, subject, "voter")
	require.NoError(t, err)
	assert.Equal(t, Down, d)

	d, err = l.Standing(ctx, subject, "stranger")
	require.NoError(t, err)
	assert.Empty(t, d)

	_, err = l.Tally(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTallies(t *testing.T) {
	ctx := context.Background()
	newStore := func() *MemoryStore {
		return seeded(3, 1, Vote{SubjectID: "comment:2", VoterID: "a", Direction: Down})
	}
	want := map[string]Tally{
		subject:     {Up: 3, Down: 1, Net: 2},
		"comment:2": {Down: 1, Net: -1},
		"point:9":   {},
	}
	ids := []string{subject, "comment:2", "point:9"}

	t.Run("one batch count for the whole page", func(t *testing.T) {
		store := &faultyStore{MemoryStore: newStore()}
		got, err := New(store).Tallies(ctx, ids)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Zero(t, store.countCalls)
	})

	t.Run("per subject counts without batch support", func(t *testing.T) {
		plain := struct{ Store }{newStore()}
		got, err := New(plain).Tallies(ctx, ids)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("empty page", func(t *testing.T) {
		got, err := New(newStore()).Tallies(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("blank id", func(t *testing.T) {
		_, err := New(newStore()).Tallies(ctx, []string{subject, " "})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("count failure", func(t *testing.T) {
		store := &faultyStore{MemoryStore: newStore(), failCountFrom: 1}
		_, err := New(struct{ Store }{store}).Tallies(ctx, ids)
		assert.ErrorIs(t, err, ErrStorageFailure)
	})
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("Up")
	require.NoError(t, err)
	assert.Equal(t, Up, d)

	d, err = ParseDirection("Down")
	require.NoError(t, err)
	assert.Equal(t, Down, d)

	for _, raw := range []string{"up", "UP", "down", " Down ", "dOwN", "boost", ""} {
		_, err = ParseDirection(raw)
		assert.ErrorIs(t, err, ErrInvalidArgument, "%q", raw)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindSubjectNotFound, KindOf(fmt.Errorf("point 4: %w", ErrSubjectNotFound)))
	assert.Equal(t, KindStorageFailure, KindOf(fmt.Errorf("%w: x", ErrStorageFailure)))
	assert.Equal(t, KindStorageFailure, KindOf(errors.New("anything")))
}

// faultyStore wraps a MemoryStore with injectable failures and a call counter.
type faultyStore struct {
	*MemoryStore

	mu            sync.Mutex
	calls         int
	countCalls    int
	failCountFrom int
	findErr       error
	writeErr      error
}

func (s *faultyStore) hit() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *faultyStore) FindVote(ctx context.Context, subjectID, voterID string) (Vote, bool, error) {
	s.hit()
	if s.findErr != nil {
		return Vote{}, false, s.findErr
	}
	return s.MemoryStore.FindVote(ctx, subjectID, voterID)
}

func (s *faultyStore) CountByDirection(ctx context.Context, subjectID string, d Direction) (int, error) {
	s.hit()
	s.mu.Lock()
	s.countCalls++
	n := s.countCalls
	s.mu.Unlock()
	if s.failCountFrom > 0 && n >= s.failCountFrom {
		return 0, errors.New("count timed out")
	}
	return s.MemoryStore.CountByDirection(ctx, subjectID, d)
}

func (s *faultyStore) CreateVote(ctx context.Context, subjectID, voterID string, d Direction) error {
	s.hit()
	if s.writeErr != nil {
		return s.writeErr
	}
	return s.MemoryStore.CreateVote(ctx, subjectID, voterID, d)
}

func (s *faultyStore) UpdateVoteDirection(ctx context.Context, voteID string, d Direction) error {
	s.hit()
	if s.writeErr != nil {
		return s.writeErr
	}
	return s.MemoryStore.UpdateVoteDirection(ctx, voteID, d)
}

func (s *faultyStore) DeleteVote(ctx context.Context, voteID string) error {
	s.hit()
	if s.writeErr != nil {
		return s.writeErr
	}
	return s.MemoryStore.DeleteVote(ctx, voteID)
}
