// Package turntimer runs the client-side turn deadline for one room observer.
//
// Every observer derives the same deadline from turn_started_at and
// turn_duration_ms. The offset between the local clock and turn_started_at is
// fixed when a turn is first observed, so observers whose clocks disagree with
// the writer still count down the full turn.
package turntimer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/mcdev12/trivia/go/internal/room"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is how often the remaining time is recomputed.
const DefaultInterval = time.Second

// Forfeiter submits an empty answer for an expired turn.
type Forfeiter interface {
	Forfeit(ctx context.Context, roomID string, turn models.TurnKey) (models.RoomState, error)
}

// Remaining returns the time left in the turn of s as seen at now, given the
// clock offset captured when the turn was first observed.
func Remaining(s models.RoomState, offset time.Duration, now time.Time) time.Duration {
	deadline := s.TurnStart().Add(s.TurnDuration())
	left := deadline.Sub(now.Add(-offset))
	if left < 0 {
		return 0
	}
	return left
}

// ShouldForfeit reports whether observer must force the expired turn of s.
// The holder forfeits its own turn. Anyone forfeits when fewer than two
// profiles remain or the holder has left the room.
func ShouldForfeit(s models.RoomState, observer string) bool {
	holder := s.CurrentTurnPlayerID
	return holder == observer || len(s.Profiles) < 2 || !s.HasProfile(holder)
}

type watchKey struct {
	turn     models.TurnKey
	profiles string
	active   bool
}

func keyOf(s models.RoomState) watchKey {
	ids := make([]string, 0, len(s.Profiles))
	for _, p := range s.Profiles {
		ids = append(ids, p.ID)
	}
	return watchKey{turn: s.Turn(), profiles: strings.Join(ids, ","), active: s.InProgress()}
}

type Option func(*Watcher)

func WithClock(c clockwork.Clock) Option { return func(w *Watcher) { w.clock = c } }

func WithInterval(d time.Duration) Option { return func(w *Watcher) { w.interval = d } }

// WithTick registers fn to receive the remaining time on every recomputation.
func WithTick(fn func(turn models.TurnKey, remaining time.Duration)) Option {
	return func(w *Watcher) { w.onTick = fn }
}

// Watcher keeps at most one countdown running for the latest observed turn.
type Watcher struct {
	roomID    string
	playerID  string
	forfeiter Forfeiter
	clock     clockwork.Clock
	interval  time.Duration
	onTick    func(models.TurnKey, time.Duration)

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	key        watchKey
	observed   bool
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	forfeits   sync.WaitGroup

	firedMu  sync.Mutex
	fired    models.TurnKey
	hasFired bool
}

// New creates a watcher for playerID in roomID. Cancelling ctx or calling Stop
// ends every countdown and prevents further forfeits.
func New(ctx context.Context, roomID, playerID string, f Forfeiter, opts ...Option) *Watcher {
	w := &Watcher{
		roomID:    roomID,
		playerID:  playerID,
		forfeiter: f,
		clock:     clockwork.NewRealClock(),
		interval:  DefaultInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	return w
}

// Observe feeds the latest room snapshot. The countdown restarts only when the
// turn holder, turn start or profiles changed.
func (w *Watcher) Observe(s models.RoomState) {
	key := keyOf(s)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx.Err() != nil || (w.observed && key == w.key) {
		return
	}
	w.key, w.observed = key, true

	w.stopLoopLocked()
	if !key.active || s.TurnDurationMs <= 0 {
		return
	}

	loopCtx, cancel := context.WithCancel(w.ctx)
	done := make(chan struct{})
	w.loopCancel, w.loopDone = cancel, done
	go w.run(loopCtx, s.Clone(), done)
}

func (w *Watcher) stopLoopLocked() {
	if w.loopCancel == nil {
		return
	}
	w.loopCancel()
	<-w.loopDone
	w.loopCancel, w.loopDone = nil, nil
}

// Stop cancels the countdown and waits for in-flight forfeits to return.
func (w *Watcher) Stop() {
	w.cancel()
	w.mu.Lock()
	w.stopLoopLocked()
	w.mu.Unlock()
	w.forfeits.Wait()
}

func (w *Watcher) run(ctx context.Context, s models.RoomState, done chan struct{}) {
	defer close(done)

	offset := w.clock.Now().Sub(s.TurnStart())
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	turn := s.Turn()
	for {
		left := Remaining(s, offset, w.clock.Now())
		if w.onTick != nil {
			w.onTick(turn, left)
		}
		if left == 0 {
			w.expire(s)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

func (w *Watcher) expire(s models.RoomState) {
	if !ShouldForfeit(s, w.playerID) {
		return
	}
	turn := s.Turn()

	if !w.markFired(turn) || w.ctx.Err() != nil {
		return
	}

	log.Info().
		Str("room_id", w.roomID).
		Str("player_id", w.playerID).
		Str("turn_holder", turn.PlayerID).
		Int("round", turn.Round).
		Msg("turn expired, forfeiting")

	w.forfeits.Add(1)
	go func() {
		defer w.forfeits.Done()
		_, err := w.forfeiter.Forfeit(w.ctx, w.roomID, turn)
		if err != nil && !errors.Is(err, room.ErrGameOver) && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("room_id", w.roomID).Msg("failed to forfeit expired turn")
		}
	}()
}

// markFired records turn as forfeited. It uses its own lock because Observe
// holds mu while waiting for the countdown goroutine to exit.
func (w *Watcher) markFired(turn models.TurnKey) bool {
	w.firedMu.Lock()
	defer w.firedMu.Unlock()
	if w.hasFired && w.fired == turn {
		return false
	}
	w.fired, w.hasFired = turn, true
	return true
}
