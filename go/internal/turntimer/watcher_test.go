package turntimer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

type fakeForfeiter struct {
	calls chan models.TurnKey
}

func newFakeForfeiter() *fakeForfeiter {
	return &fakeForfeiter{calls: make(chan models.TurnKey, 16)}
}

func (f *fakeForfeiter) Forfeit(_ context.Context, _ string, turn models.TurnKey) (models.RoomState, error) {
	f.calls <- turn
	return models.RoomState{}, nil
}

func (f *fakeForfeiter) expectCall(t *testing.T) models.TurnKey {
	t.Helper()
	select {
	case turn := <-f.calls:
		return turn
	case <-time.After(2 * time.Second):
		t.Fatal("expected a forfeit")
		return models.TurnKey{}
	}
}

func (f *fakeForfeiter) expectNone(t *testing.T) {
	t.Helper()
	select {
	case turn := <-f.calls:
		t.Fatalf("unexpected forfeit for %+v", turn)
	case <-time.After(100 * time.Millisecond):
	}
}

func turnState(holder string, round int, at time.Time, players ...string) models.RoomState {
	s := models.RoomState{
		SessionStarted:      true,
		CurrentTurnPlayerID: holder,
		RoundsPlayed:        round,
		TurnStartedAt:       at.UnixMilli(),
		TurnDurationMs:      20_000,
	}
	for _, id := range players {
		s.Profiles = append(s.Profiles, models.Profile{ID: id, Name: id})
	}
	return s
}

func newWatcher(t *testing.T, player string, opts ...Option) (*Watcher, *clockwork.FakeClock, *fakeForfeiter) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(start)
	f := newFakeForfeiter()
	w := New(context.Background(), "ABC123", player, f, append([]Option{WithClock(clock)}, opts...)...)
	t.Cleanup(w.Stop)
	return w, clock, f
}

func waitTicker(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
}

func TestRemaining(t *testing.T) {
	s := turnState("p1", 0, start, "p1", "p2")

	assert.Equal(t, 20*time.Second, Remaining(s, 0, start))
	assert.Equal(t, 5*time.Second, Remaining(s, 0, start.Add(15*time.Second)))
	assert.Equal(t, time.Duration(0), Remaining(s, 0, start.Add(time.Minute)))

	// A local clock running 3s ahead of the writer still sees the full turn.
	assert.Equal(t, 20*time.Second, Remaining(s, 3*time.Second, start.Add(3*time.Second)))
}

func TestShouldForfeit(t *testing.T) {
	tests := []struct {
		name     string
		state    models.RoomState
		observer string
		want     bool
	}{
		{"holder", turnState("p1", 0, start, "p1", "p2"), "p1", true},
		{"other player", turnState("p1", 0, start, "p1", "p2"), "p2", false},
		{"last player standing", turnState("p1", 0, start, "p2"), "p2", true},
		{"holder left", turnState("p1", 0, start, "p2", "p3"), "p2", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldForfeit(tt.state, tt.observer))
		})
	}
}

func TestHolderForfeitsOnExpiry(t *testing.T) {
	w, clock, f := newWatcher(t, "p1")
	s := turnState("p1", 2, start, "p1", "p2")

	w.Observe(s)
	waitTicker(t, clock)

	clock.Advance(19 * time.Second)
	f.expectNone(t)

	clock.Advance(time.Second)
	assert.Equal(t, s.Turn(), f.expectCall(t))

	clock.Advance(time.Minute)
	f.expectNone(t)
}

func TestOtherPlayerDoesNotForfeit(t *testing.T) {
	w, clock, f := newWatcher(t, "p2")

	w.Observe(turnState("p1", 0, start, "p1", "p2"))
	waitTicker(t, clock)

	clock.Advance(30 * time.Second)
	f.expectNone(t)
}

func TestAbsentHolderIsForfeitedByObserver(t *testing.T) {
	w, clock, f := newWatcher(t, "p2")
	s := turnState("p1", 1, start, "p2", "p3")

	w.Observe(s)
	waitTicker(t, clock)

	clock.Advance(20 * time.Second)
	assert.Equal(t, s.Turn(), f.expectCall(t))
}

func TestRestartsOnNewTurn(t *testing.T) {
	w, clock, f := newWatcher(t, "p1")

	w.Observe(turnState("p1", 0, start, "p1", "p2"))
	waitTicker(t, clock)
	clock.Advance(10 * time.Second)

	next := turnState("p1", 1, clock.Now(), "p1", "p2")
	w.Observe(next)
	waitTicker(t, clock)

	clock.Advance(10 * time.Second)
	f.expectNone(t)

	clock.Advance(10 * time.Second)
	assert.Equal(t, next.Turn(), f.expectCall(t))
	f.expectNone(t)
}

func TestUnchangedSnapshotKeepsCountdown(t *testing.T) {
	w, clock, f := newWatcher(t, "p1")
	s := turnState("p1", 0, start, "p1", "p2")

	w.Observe(s)
	waitTicker(t, clock)
	clock.Advance(15 * time.Second)

	// Phase one of an answer only touches the selected option.
	answered := s.Clone()
	answered.SelectedOption = "x"
	answered.Answered = true
	w.Observe(answered)

	clock.Advance(5 * time.Second)
	assert.Equal(t, s.Turn(), f.expectCall(t))
}

func TestFiresOncePerTurn(t *testing.T) {
	w, clock, f := newWatcher(t, "p1")
	s := turnState("p1", 0, start, "p1", "p2", "p3")

	w.Observe(s)
	waitTicker(t, clock)
	clock.Advance(20 * time.Second)
	f.expectCall(t)

	// A profile change restarts the countdown for the same turn.
	left := turnState("p1", 0, start, "p1", "p2")
	w.Observe(left)
	waitTicker(t, clock)
	clock.Advance(20 * time.Second)
	f.expectNone(t)
}

func TestInactiveStatesDoNotCount(t *testing.T) {
	w, clock, f := newWatcher(t, "p1")

	over := turnState("p1", 4, start, "p1", "p2")
	over.GameOver = true
	w.Observe(over)

	lobby := turnState("", 0, start, "p1")
	lobby.SessionStarted = false
	w.Observe(lobby)

	clock.Advance(time.Minute)
	f.expectNone(t)
}

func TestStopPreventsForfeit(t *testing.T) {
	w, clock, f := newWatcher(t, "p1")

	w.Observe(turnState("p1", 0, start, "p1", "p2"))
	waitTicker(t, clock)
	w.Stop()

	clock.Advance(time.Minute)
	f.expectNone(t)

	w.Observe(turnState("p1", 1, clock.Now(), "p1", "p2"))
	clock.Advance(time.Minute)
	f.expectNone(t)
}

func TestTickReportsRemaining(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []time.Duration
	)
	w, clock, f := newWatcher(t, "p1", WithTick(func(_ models.TurnKey, left time.Duration) {
		mu.Lock()
		seen = append(seen, left)
		mu.Unlock()
	}))

	w.Observe(turnState("p1", 0, start, "p1", "p2"))
	waitTicker(t, clock)
	clock.Advance(20 * time.Second)
	f.expectCall(t)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, 20*time.Second, seen[0])
	assert.Equal(t, time.Duration(0), seen[len(seen)-1])
}
