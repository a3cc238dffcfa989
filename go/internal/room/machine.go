// Package room implements the trivia room state machine on top of a document store.
//
// Every mutation is a read-modify-write transaction against the room document.
// Callers observe results through store subscriptions, not through shared memory.
package room

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/trivia/go/internal/catalog"
	"github.com/mcdev12/trivia/go/internal/docstore"
	"github.com/mcdev12/trivia/go/internal/events"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Settings are the match constants every room is created with.
type Settings struct {
	MaxRounds    int
	TurnDuration time.Duration
	UXDelay      time.Duration // pause between recording an answer and advancing the turn
}

func DefaultSettings() Settings {
	return Settings{
		MaxRounds:    4,
		TurnDuration: 20 * time.Second,
		UXDelay:      2 * time.Second,
	}
}

// Machine runs room operations. It holds no room state of its own.
type Machine struct {
	store     docstore.Store
	catalog   catalog.Catalog
	allocator *Allocator
	publisher events.Publisher
	clock     clockwork.Clock
	settings  Settings
	shuffle   func([]string)
}

type Option func(*Machine)

func WithPublisher(p events.Publisher) Option { return func(m *Machine) { m.publisher = p } }

func WithClock(c clockwork.Clock) Option { return func(m *Machine) { m.clock = c } }

func WithSettings(s Settings) Option { return func(m *Machine) { m.settings = s } }

// WithShuffler replaces the random in-place shuffle used for pool allocation.
func WithShuffler(f func([]string)) Option { return func(m *Machine) { m.shuffle = f } }

func NewMachine(store docstore.Store, cat catalog.Catalog, opts ...Option) *Machine {
	m := &Machine{
		store:     store,
		catalog:   cat,
		allocator: NewAllocator(store, cat),
		publisher: events.NoOpPublisher{},
		clock:     clockwork.NewRealClock(),
		settings:  DefaultSettings(),
		shuffle:   shuffleIDs,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func shuffleIDs(ids []string) {
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

// Allocator returns the question allocator bound to the machine's store.
func (m *Machine) Allocator() *Allocator { return m.allocator }

// Settings returns the match constants.
func (m *Machine) Settings() Settings { return m.settings }

func (m *Machine) now() int64 { return m.clock.Now().UnixMilli() }

// Get reads the room.
func (m *Machine) Get(ctx context.Context, roomID string) (models.RoomState, error) {
	return loadState(ctx, m.store, roomID)
}

// CreateRoom writes a fresh pending room holding only creator.
func (m *Machine) CreateRoom(ctx context.Context, roomID string, creator models.Profile) (models.RoomState, error) {
	if roomID == "" {
		return models.RoomState{}, ErrInvalidRoomID
	}
	if creator.ID == "" {
		return models.RoomState{}, ErrInvalidProfile
	}

	s := models.NewRoomState(creator)
	s.MaxRounds = m.settings.MaxRounds
	s.TurnDurationMs = m.settings.TurnDuration.Milliseconds()

	doc, err := encodeState(s)
	if err != nil {
		return models.RoomState{}, err
	}
	if err := m.store.Set(ctx, roomID, doc); err != nil {
		return models.RoomState{}, fmt.Errorf("create room %s: %w", roomID, err)
	}

	log.Info().Str("room_id", roomID).Str("player_id", creator.ID).Msg("room created")
	m.emit(ctx, roomID, events.EventTypeRoomCreated, events.RoomCreatedPayload{CreatorID: creator.ID})
	return s, nil
}

// JoinOrUpdate adds p to the room unless it is already there. Re-joining is a no-op.
func (m *Machine) JoinOrUpdate(ctx context.Context, roomID string, p models.Profile) (models.RoomState, error) {
	if p.ID == "" {
		return models.RoomState{}, ErrInvalidProfile
	}

	joined := false
	s, wrote, err := updateState(ctx, m.store, roomID, func(cur models.RoomState) (models.RoomState, error) {
		next := cur.WithProfile(p)
		joined = !cur.HasProfile(p.ID)
		if !joined && next.SessionStarted == cur.SessionStarted {
			return cur, docstore.ErrAbort
		}
		return next, nil
	})
	if err != nil {
		return models.RoomState{}, err
	}

	if wrote && joined {
		log.Info().Str("room_id", roomID).Str("player_id", p.ID).Int("players", len(s.Profiles)).Msg("player joined")
		m.emit(ctx, roomID, events.EventTypePlayerJoined, events.PlayerJoinedPayload{
			PlayerID:       p.ID,
			PlayerName:     p.Name,
			PlayerCount:    len(s.Profiles),
			SessionStarted: s.SessionStarted,
		})
	}
	return s, nil
}

// ValidateForJoin checks whether a room can be joined. It does not reserve anything.
func (m *Machine) ValidateForJoin(ctx context.Context, roomID string) ValidationResult {
	return validate(ctx, m.store, roomID)
}

// LeaveRoom removes p from the room. Turn state is left for the next answer to reconcile.
func (m *Machine) LeaveRoom(ctx context.Context, roomID string, p models.Profile) (models.RoomState, error) {
	if p.ID == "" {
		return models.RoomState{}, ErrInvalidProfile
	}

	s, wrote, err := updateState(ctx, m.store, roomID, func(cur models.RoomState) (models.RoomState, error) {
		if !cur.HasProfile(p.ID) {
			return cur, docstore.ErrAbort
		}
		return cur.WithoutProfile(p.ID), nil
	})
	if err != nil {
		return models.RoomState{}, err
	}

	if wrote {
		log.Info().Str("room_id", roomID).Str("player_id", p.ID).Int("players", len(s.Profiles)).Msg("player left")
		m.emit(ctx, roomID, events.EventTypePlayerLeft, events.PlayerLeftPayload{PlayerID: p.ID, PlayerCount: len(s.Profiles)})
	}
	return s, nil
}

// StartGame allocates a question pool, draws the first question and hands the
// turn to the first profile. A finished match may be restarted.
func (m *Machine) StartGame(ctx context.Context, roomID string) (models.RoomState, error) {
	cur, err := loadState(ctx, m.store, roomID)
	if err != nil {
		return models.RoomState{}, err
	}
	if cur.InProgress() {
		return cur, ErrGameInProgress
	}

	pool := m.allocatePool(ctx)
	if len(pool) == 0 {
		return cur, ErrEmptyCatalog
	}
	maxRounds := len(pool)

	_, _, err = updateState(ctx, m.store, roomID, func(s models.RoomState) (models.RoomState, error) {
		if s.InProgress() {
			return s, ErrGameInProgress
		}
		s.QuestionPool = slices.Clone(pool)
		s.UsedQuestions = []string{}
		return s, nil
	})
	if err != nil {
		return models.RoomState{}, err
	}

	first, err := m.allocator.DrawNext(ctx, roomID, pool)
	if err != nil {
		return models.RoomState{}, err
	}

	s, wrote, err := updateState(ctx, m.store, roomID, func(s models.RoomState) (models.RoomState, error) {
		if len(s.Profiles) == 0 {
			return s, docstore.ErrAbort
		}
		if s.InProgress() {
			return s, ErrGameInProgress
		}
		s.CurrentTurnPlayerID = s.Profiles[0].ID
		s.TurnStartedAt = m.now()
		s.TurnDurationMs = m.settings.TurnDuration.Milliseconds()
		s.SessionStarted = true
		s.GameOver = first.Exhausted
		s.Scores = map[string]int{}
		s.RoundsPlayed = 0
		s.MaxRounds = maxRounds
		s.SelectedOption = ""
		s.Answered = false
		first.Apply(&s)
		return s, nil
	})
	if err != nil {
		return models.RoomState{}, err
	}

	if wrote {
		log.Info().
			Str("room_id", roomID).
			Str("player_id", s.CurrentTurnPlayerID).
			Int("max_rounds", s.MaxRounds).
			Msg("game started")
		m.emit(ctx, roomID, events.EventTypeGameStarted, events.GameStartedPayload{
			FirstPlayerID:  s.CurrentTurnPlayerID,
			MaxRounds:      s.MaxRounds,
			TurnDurationMs: s.TurnDurationMs,
			PlayerCount:    len(s.Profiles),
		})
	}
	return s, nil
}

// allocatePool shuffles the catalog, keeps at most MaxRounds ids and shuffles
// again. A failing catalog yields an empty pool.
func (m *Machine) allocatePool(ctx context.Context) []string {
	ids, err := m.catalog.ListIDs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list question ids")
		return nil
	}
	ids = slices.Compact(sortedCopy(ids))
	m.shuffle(ids)
	if len(ids) > m.settings.MaxRounds {
		ids = ids[:m.settings.MaxRounds]
	}
	m.shuffle(ids)
	return ids
}

// sortedCopy gives the shuffle a deterministic starting order and lets Compact drop duplicates.
func sortedCopy(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}

// SubmitAnswer records option for the turn holder and, after the pacing
// delay, advances the turn. An empty option forfeits.
func (m *Machine) SubmitAnswer(ctx context.Context, roomID, playerID, option string) (models.RoomState, error) {
	return m.submit(ctx, roomID, playerID, option, nil)
}

// Forfeit submits an empty answer for the turn identified by turn. It is a
// no-op once that turn has been advanced, so any number of observers may
// call it for the same expired turn.
func (m *Machine) Forfeit(ctx context.Context, roomID string, turn models.TurnKey) (models.RoomState, error) {
	return m.submit(ctx, roomID, turn.PlayerID, "", &turn)
}

func (m *Machine) submit(ctx context.Context, roomID, playerID, option string, expect *models.TurnKey) (models.RoomState, error) {
	var (
		token    models.TurnKey
		stale    bool
		recorded bool
		correct  bool
	)
	s, _, err := updateState(ctx, m.store, roomID, func(cur models.RoomState) (models.RoomState, error) {
		stale, recorded, correct = false, false, false
		switch {
		case cur.GameOver:
			return cur, ErrGameOver
		case !cur.SessionStarted || cur.CurrentTurnPlayerID == "":
			return cur, ErrNotStarted
		case expect != nil && cur.Turn() != *expect:
			stale = true
			return cur, docstore.ErrAbort
		case expect == nil && cur.CurrentTurnPlayerID != playerID:
			return cur, ErrNotYourTurn
		}
		token = cur.Turn()

		if cur.Answered {
			// The turn already has an answer or a forfeit. Only the advance is retried.
			return cur, docstore.ErrAbort
		}
		correct = option != "" && option == cur.CorrectOption
		if correct {
			cur.Scores[playerID]++
		} else if _, ok := cur.Scores[playerID]; !ok {
			cur.Scores[playerID] = 0
		}
		cur.SelectedOption = option
		cur.Answered = true
		recorded = true
		return cur, nil
	})
	if err != nil {
		return s, err
	}
	if stale {
		return s, nil
	}

	if recorded {
		log.Debug().
			Str("room_id", roomID).
			Str("player_id", playerID).
			Bool("correct", correct).
			Bool("forfeit", option == "").
			Msg("answer recorded")
		m.emit(ctx, roomID, events.EventTypeAnswerSubmitted, events.AnswerSubmittedPayload{
			PlayerID:  playerID,
			Round:     token.Round,
			Correct:   correct,
			Forfeited: option == "",
			Score:     s.Scores[playerID],
		})
	}

	if m.settings.UXDelay > 0 {
		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-m.clock.After(m.settings.UXDelay):
		}
	}

	return m.advance(ctx, roomID, token)
}

// advance moves the turn identified by token to the next profile and draws
// the next question. It does nothing when the turn was already advanced.
func (m *Machine) advance(ctx context.Context, roomID string, token models.TurnKey) (models.RoomState, error) {
	for attempt := 1; attempt <= maxDrawAttempts; attempt++ {
		cur, err := loadState(ctx, m.store, roomID)
		if err != nil {
			return models.RoomState{}, err
		}
		if cur.Turn() != token {
			return cur, nil
		}

		var (
			draw     Draw
			prepared bool
			basePool = cur.QuestionPool
		)
		if !cur.IsGameOver() {
			draw, err = m.allocator.Prepare(ctx, basePool, cur.UsedQuestions)
			if err != nil {
				return models.RoomState{}, err
			}
			prepared = true
		}

		retry, done := false, false
		s, wrote, err := updateState(ctx, m.store, roomID, func(s models.RoomState) (models.RoomState, error) {
			retry, done = false, false
			if s.Turn() != token {
				done = true
				return s, docstore.ErrAbort
			}
			over := s.IsGameOver()
			if !over && (!prepared || !slices.Equal(s.QuestionPool, basePool)) {
				retry = true
				return s, docstore.ErrAbort
			}

			previous := s.CurrentTurnPlayerID
			s.CurrentTurnPlayerID = s.NextPlayerID()
			if s.CurrentTurnPlayerID == "" {
				s.CurrentTurnPlayerID = previous
			}
			s.TurnStartedAt = m.now()
			s.SelectedOption = ""
			s.Answered = false
			s.RoundsPlayed++
			if over {
				s.GameOver = true
				return s, nil
			}
			draw.Apply(&s)
			s.GameOver = draw.Exhausted
			return s, nil
		})
		if err != nil {
			return models.RoomState{}, err
		}
		if retry {
			log.Debug().Str("room_id", roomID).Int("attempt", attempt).Msg("room changed before advance, retrying")
			continue
		}
		if done || !wrote {
			return s, nil
		}

		m.emitAdvance(ctx, roomID, token, s)
		return s, nil
	}
	return models.RoomState{}, fmt.Errorf("advance turn in %s: %w", roomID, docstore.ErrConflict)
}

func (m *Machine) emitAdvance(ctx context.Context, roomID string, token models.TurnKey, s models.RoomState) {
	if s.GameOver {
		log.Info().
			Str("room_id", roomID).
			Int("rounds_played", s.RoundsPlayed).
			Strs("winners", s.Leaders()).
			Msg("game over")
		m.emit(ctx, roomID, events.EventTypeGameOver, events.GameOverPayload{
			RoundsPlayed: s.RoundsPlayed,
			Scores:       s.Scores,
			Winners:      s.Leaders(),
		})
		return
	}

	log.Debug().
		Str("room_id", roomID).
		Str("player_id", s.CurrentTurnPlayerID).
		Int("rounds_played", s.RoundsPlayed).
		Msg("turn advanced")
	m.emit(ctx, roomID, events.EventTypeTurnAdvanced, events.TurnAdvancedPayload{
		PreviousPlayerID: token.PlayerID,
		NextPlayerID:     s.CurrentTurnPlayerID,
		RoundsPlayed:     s.RoundsPlayed,
		TurnStartedAt:    s.TurnStartedAt,
	})
}

// emit publishes best-effort. The room change is already committed.
func (m *Machine) emit(ctx context.Context, roomID string, t events.EventType, payload any) {
	ev, err := events.New(roomID, t, m.clock.Now(), payload)
	if err == nil {
		err = m.publisher.Publish(context.WithoutCancel(ctx), ev)
	}
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("event_type", string(t)).Msg("failed to publish room event")
	}
}
