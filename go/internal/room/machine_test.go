package room

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/trivia/go/internal/catalog"
	"github.com/mcdev12/trivia/go/internal/docstore"
	"github.com/mcdev12/trivia/go/internal/docstore/memstore"
	"github.com/mcdev12/trivia/go/internal/events"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateAndJoin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog.NewStatic(testQuestions(10)), instantSettings(4))

	s, err := f.machine.CreateRoom(ctx, "ABC123", p1)
	require.NoError(t, err)
	assert.Equal(t, []models.Profile{p1}, s.Profiles)
	assert.False(t, s.SessionStarted)
	assert.Empty(t, s.CurrentTurnPlayerID)
	assert.Equal(t, int64(20000), s.TurnDurationMs)

	s, err = f.machine.JoinOrUpdate(ctx, "ABC123", p2)
	require.NoError(t, err)
	assert.Equal(t, []models.Profile{p1, p2}, s.Profiles)
	assert.True(t, s.SessionStarted)

	stored := f.state(t, "ABC123")
	assert.Equal(t, s.Profiles, stored.Profiles)
	assert.True(t, stored.SessionStarted)

	assert.Equal(t, []events.EventType{events.EventTypeRoomCreated, events.EventTypePlayerJoined}, f.events.types())
}

func TestJoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f, roomID := newLobby(t)
	before := f.state(t, roomID)

	s, err := f.machine.JoinOrUpdate(ctx, roomID, p2)
	require.NoError(t, err)
	assert.Equal(t, before.Profiles, s.Profiles)
	assert.Equal(t, before.SessionStarted, s.SessionStarted)
	assert.Equal(t, before, f.state(t, roomID))
	assert.Len(t, f.events.types(), 2)
}

func TestMutationsOnMissingRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog.NewStatic(testQuestions(10)), instantSettings(4))

	_, err := f.machine.JoinOrUpdate(ctx, "nope", p1)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = f.machine.LeaveRoom(ctx, "nope", p1)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = f.machine.StartGame(ctx, "nope")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = f.machine.SubmitAnswer(ctx, "nope", "p1", "x")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestInvalidInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog.NewStatic(testQuestions(10)), instantSettings(4))

	_, err := f.machine.CreateRoom(ctx, "ABC123", models.Profile{Name: "no id"})
	assert.ErrorIs(t, err, ErrInvalidProfile)
	_, err = f.machine.CreateRoom(ctx, "", p1)
	assert.ErrorIs(t, err, ErrInvalidRoomID)
	_, err = f.machine.JoinOrUpdate(ctx, "ABC123", models.Profile{})
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestValidateForJoin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog.NewStatic(testQuestions(10)), instantSettings(4))

	assert.Equal(t, NotFound{}, f.machine.ValidateForJoin(ctx, "ABC123"))

	_, err := f.machine.CreateRoom(ctx, "ABC123", p1)
	require.NoError(t, err)
	assert.Equal(t, Valid{}, f.machine.ValidateForJoin(ctx, "ABC123"))

	_, err = f.machine.JoinOrUpdate(ctx, "ABC123", p2)
	require.NoError(t, err)
	assert.Equal(t, AlreadyStarted{}, f.machine.ValidateForJoin(ctx, "ABC123"))

	broken := NewMachine(unavailableStore{f.store}, f.catalog)
	result := broken.ValidateForJoin(ctx, "ABC123")
	require.IsType(t, ValidationError{}, result)
	assert.Contains(t, result.(ValidationError).Reason, "store unavailable")

	require.NoError(t, f.store.Set(ctx, "garbled", []byte("not json")))
	assert.IsType(t, ValidationError{}, f.machine.ValidateForJoin(ctx, "garbled"))
}

func TestResultName(t *testing.T) {
	assert.Equal(t, "valid", ResultName(Valid{}))
	assert.Equal(t, "already_started", ResultName(AlreadyStarted{}))
	assert.Equal(t, "not_found", ResultName(NotFound{}))
	assert.Equal(t, "error", ResultName(ValidationError{Reason: "x"}))
	assert.Equal(t, "unknown", ResultName(nil))
}

func TestStartGame(t *testing.T) {
	f, roomID := newLobby(t)

	s, err := f.machine.StartGame(context.Background(), roomID)
	require.NoError(t, err)

	assert.Equal(t, "p1", s.CurrentTurnPlayerID)
	assert.Equal(t, 0, s.RoundsPlayed)
	assert.Equal(t, 4, s.MaxRounds)
	assert.True(t, s.SessionStarted)
	assert.False(t, s.GameOver)
	assert.Equal(t, "Question 0?", s.CurrentQuestion)
	assert.Equal(t, "right-0", s.CorrectOption)
	assert.Equal(t, []string{"wrong", "right-0"}, s.CurrentOptions)
	assert.Equal(t, []string{"q01", "q02", "q03"}, s.QuestionPool)
	assert.Equal(t, []string{"q00"}, s.UsedQuestions)
	assert.Empty(t, s.Scores)
	assert.Equal(t, f.clock.Now().UnixMilli(), s.TurnStartedAt)
	assert.Equal(t, s, f.state(t, roomID))
	assert.Contains(t, f.events.types(), events.EventTypeGameStarted)
}

func TestStartGameRejectsMatchInProgress(t *testing.T) {
	ctx := context.Background()
	f, roomID := newLobby(t)
	_, err := f.machine.StartGame(ctx, roomID)
	require.NoError(t, err)
	before := f.state(t, roomID)

	_, err = f.machine.StartGame(ctx, roomID)
	assert.ErrorIs(t, err, ErrGameInProgress)
	assert.Equal(t, before, f.state(t, roomID))
}

func TestStartGameAfterGameOverRestarts(t *testing.T) {
	ctx := context.Background()
	f, roomID := newLobby(t)
	_, err := f.machine.StartGame(ctx, roomID)
	require.NoError(t, err)
	for !f.state(t, roomID).GameOver {
		f.answer(t, roomID, true)
	}

	s, err := f.machine.StartGame(ctx, roomID)
	require.NoError(t, err)
	assert.False(t, s.GameOver)
	assert.Equal(t, 0, s.RoundsPlayed)
	assert.Empty(t, s.Scores)
	assert.Equal(t, "p1", s.CurrentTurnPlayerID)
}

func TestStartGameClampsRoundsToCatalog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog.NewStatic(testQuestions(2)), instantSettings(4))
	_, err := f.machine.CreateRoom(ctx, "r", p1)
	require.NoError(t, err)
	_, err = f.machine.JoinOrUpdate(ctx, "r", p2)
	require.NoError(t, err)

	s, err := f.machine.StartGame(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 2, s.MaxRounds)
	assert.Len(t, s.QuestionPool, 1)

	s = f.answer(t, "r", true)
	assert.False(t, s.GameOver)
	s = f.answer(t, "r", true)
	assert.True(t, s.GameOver)
	assert.Equal(t, []string{"q00", "q01"}, s.UsedQuestions)
}

func TestStartGameWithEmptyCatalog(t *testing.T) {
	ctx := context.Background()
	for name, cat := range map[string]catalog.Catalog{
		"empty":   catalog.NewStatic(nil),
		"failing": failingCatalog{},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, cat, instantSettings(4))
			_, err := f.machine.CreateRoom(ctx, "r", p1)
			require.NoError(t, err)

			_, err = f.machine.StartGame(ctx, "r")
			assert.ErrorIs(t, err, ErrEmptyCatalog)
			assert.Empty(t, f.state(t, "r").CurrentTurnPlayerID)
		})
	}
}

func TestStartGameWithoutProfilesIsNoop(t *testing.T) {
	ctx := context.Background()
	f, roomID := newLobby(t, p1)
	_, err := f.machine.LeaveRoom(ctx, roomID, p1)
	require.NoError(t, err)

	s, err := f.machine.StartGame(ctx, roomID)
	require.NoError(t, err)
	assert.Empty(t, s.CurrentTurnPlayerID)
	assert.False(t, s.GameOver)
	assert.NotContains(t, f.events.types(), events.EventTypeGameStarted)
}

func TestCorrectAnswerScoresAndAdvances(t *testing.T) {
	ctx := context.Background()
	f, roomID := newLobby(t)
	start, err := f.machine.StartGame(ctx, roomID)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Second)

	s, err := f.machine.SubmitAnswer(ctx, roomID, "p1", start.CorrectOption)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Scores["p1"])
	assert.Equal(t, "p2", s.CurrentTurnPlayerID)
	assert.Equal(t, 1, s.RoundsPlayed)
	assert.Empty(t, s.SelectedOption)
	assert.Equal(t, "Question 1?", s.CurrentQuestion)
	assert.Equal(t, []string{"q00", "q01"}, s.UsedQuestions)
	assert.Equal(t, []string{"q02", "q03"}, s.QuestionPool)
	assert.Equal(t, start.TurnStartedAt+5000, s.TurnStartedAt)
	assert.False(t, s.GameOver)
}

func TestWrongAnswerAndForfeitScoreZero(t *testing.T) {
	ctx := context.Background()
	f, roomID := newLobby(t)
	_, err := f.machine.StartGame(ctx, roomID)
	require.NoError(t, err)

	s, err := f.machine.SubmitAnswer(ctx, roomID, "p1", "wrong")
	require.NoError(t, err)
	score, ok := s.Scores["p1"]
	assert.True(t, ok)
	assert.Equal(t, 0, score)

	s, err = f.machine.Forfeit(ctx, roomID, s.Turn())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Scores["p2"])
	assert.Equal(t, "p1", s.CurrentTurnPlayerID)
	assert.Equal(t, 2, s.RoundsPlayed)
}

func TestGameEndsAfterMaxRounds(t *testing.T) {
	ctx := context.Background()
	f, roomID := newLobby(t)
	_, err := f.machine.StartGame(ctx, roomID)
	require.NoError(t, err)

	for round := 0; round < 3; round++ {
		s := f.answer(t, roomID, true)
		require.False(t, s.GameOver, "round %d", round)
		require.Equal(t, round+1, s.RoundsPlayed)
	}
	s := f.state(t, roomID)
	require.Equal(t, s.MaxRounds, s.RoundsPlayed+1)

	s = f.answer(t, roomID, true)
	assert.True(t, s.GameOver)
	assert.True(t, s.SessionStarted)
	assert.Equal(t, map[string]int{"p1": 2, "p2": 2}, s.Scores)
	assert.Contains(t, f.events.types(), events.EventTypeGameOver)
}

func TestNoAnswersAfterGameOver(t *testing.T) {
	ctx := context.Background()
	f, roomID := newLobby(t)
	_, err := f.machine.StartGame(ctx, roomID)
	require.NoError(t, err)
	for !f.state(t, roomID).GameOver {
		f.answer(t, roomID, false)
	}
	final := f.state(t, roomID)

	for _, player := range []string{"p1", "p2"} {
		_, err := f.machine.SubmitAnswer(ctx, roomID, player, final.CorrectOption)
		assert.ErrorIs(t, err, ErrGameOver)
	}
	_, err = f.machine.Forfeit(ctx, roomID, final.Turn())
	assert.ErrorIs(t, err, ErrGameOver)

	after := f.state(t, roomID)
	assert.True(t, after.GameOver)
	assert.Equal(t, final, after)
}

func TestLeaveEndsGameOnNextAnswer(t *testing.T) {
	ctx := context.Background()
	f, roomID := newLobby(t)
	_, err := f.machine.StartGame(ctx, roomID)
	require.NoError(t, err)

	s, err := f.machine.LeaveRoom(ctx, roomID, p2)
	require.NoError(t, err)
	assert.Equal(t, []models.Profile{p1}, s.Profiles)
	assert.Equal(t, "p1", s.CurrentTurnPlayerID)
	assert.False(t, s.GameOver)

	s = f.answer(t, roomID, true)
	assert.True(t, s.GameOver)
	assert.Equal(t, 1, s.RoundsPlayed)
	assert.Equal(t, "p1", s.CurrentTurnPlayerID)
}

func TestLeaveUnknownProfileIsNoop(t *testing.T) {
	ctx := context.Background()
	f, roomID := newLobby(t)
	before := f.state(t, roomID)

	s, err := f.machine.LeaveRoom(ctx, roomID, p3)
	require.NoError(t, err)
	assert.Equal(t, before, s)
	assert.NotContains(t, f.events.types(), events.EventTypePlayerLeft)
}

func TestAnswerGuards(t *testing.T) {
	ctx := context.Background()
	f, roomID := newLobby(t)

	_, err := f.machine.SubmitAnswer(ctx, roomID, "p1", "x")
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = f.machine.StartGame(ctx, roomID)
	require.NoError(t, err)

	_, err = f.machine.SubmitAnswer(ctx, roomID, "p2", "x")
	assert.ErrorIs(t, err, ErrNotYourTurn)
	assert.Equal(t, 0, f.state(t, roomID).RoundsPlayed)
}

func TestNoDuplicateQuestions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog.NewStatic(testQuestions(12)), instantSettings(8))
	f.machine.shuffle = shuffleIDs
	_, err := f.machine.CreateRoom(ctx, "r", p1)
	require.NoError(t, err)
	_, err = f.machine.JoinOrUpdate(ctx, "r", p2)
	require.NoError(t, err)

	s, err := f.machine.StartGame(ctx, "r")
	require.NoError(t, err)

	asked := []string{s.CurrentQuestion}
	for !s.GameOver {
		for _, id := range s.QuestionPool {
			require.NotContains(t, s.UsedQuestions, id)
		}
		s = f.answer(t, "r", false)
		if !s.GameOver {
			asked = append(asked, s.CurrentQuestion)
		}
	}

	assert.Len(t, asked, 8)
	assert.Len(t, s.UsedQuestions, 8)
	compacted := slices.Compact(slices.Sorted(slices.Values(asked)))
	assert.Len(t, compacted, len(asked))
}

func TestTurnOrderCycles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog.NewStatic(testQuestions(20)), instantSettings(10))
	_, err := f.machine.CreateRoom(ctx, "r", p1)
	require.NoError(t, err)
	for _, p := range []models.Profile{p2, p3} {
		_, err = f.machine.JoinOrUpdate(ctx, "r", p)
		require.NoError(t, err)
	}
	s, err := f.machine.StartGame(ctx, "r")
	require.NoError(t, err)

	var order []string
	for !s.GameOver {
		order = append(order, s.CurrentTurnPlayerID)
		s = f.answer(t, "r", len(order)%2 == 0)
	}
	assert.Equal(t, []string{"p1", "p2", "p3", "p1", "p2", "p3", "p1", "p2", "p3", "p1"}, order)
}

func TestScoresCountCorrectAnswers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog.NewStatic(testQuestions(20)), instantSettings(10))
	_, err := f.machine.CreateRoom(ctx, "r", p1)
	require.NoError(t, err)
	_, err = f.machine.JoinOrUpdate(ctx, "r", p2)
	require.NoError(t, err)
	_, err = f.machine.StartGame(ctx, "r")
	require.NoError(t, err)

	pattern := []bool{true, false, true, true, false, false, true, true, false, true}
	want := map[string]int{"p1": 0, "p2": 0}
	for _, correct := range pattern {
		holder := f.state(t, "r").CurrentTurnPlayerID
		if correct {
			want[holder]++
		}
		f.answer(t, "r", correct)
	}

	s := f.state(t, "r")
	assert.True(t, s.GameOver)
	assert.Equal(t, want, s.Scores)
}

func TestRepeatedSubmissionScoresOnce(t *testing.T) {
	ctx := context.Background()
	f, roomID := newLobby(t)
	start, err := f.machine.StartGame(ctx, roomID)
	require.NoError(t, err)

	// Record an answer without advancing, as if the first caller stalled in the delay.
	_, _, err = updateState(ctx, f.store, roomID, func(s models.RoomState) (models.RoomState, error) {
		s.SelectedOption = start.CorrectOption
		s.Answered = true
		s.Scores["p1"] = 1
		return s, nil
	})
	require.NoError(t, err)

	s, err := f.machine.SubmitAnswer(ctx, roomID, "p1", start.CorrectOption)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Scores["p1"])
	assert.Equal(t, 1, s.RoundsPlayed)
	assert.Equal(t, "p2", s.CurrentTurnPlayerID)
}

func TestStaleForfeitIsNoop(t *testing.T) {
	ctx := context.Background()
	f, roomID := newLobby(t)
	start, err := f.machine.StartGame(ctx, roomID)
	require.NoError(t, err)
	expired := start.Turn()

	first, err := f.machine.Forfeit(ctx, roomID, expired)
	require.NoError(t, err)
	assert.Equal(t, 1, first.RoundsPlayed)

	second, err := f.machine.Forfeit(ctx, roomID, expired)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, first, f.state(t, roomID))
}

func TestConcurrentAnswerAndForfeitAdvanceOnce(t *testing.T) {
	ctx := context.Background()
	for range 20 {
		f, roomID := newLobby(t)
		start, err := f.machine.StartGame(ctx, roomID)
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			answerErr error
		)
		forfeitErrs := make(chan error, 2)
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, answerErr = f.machine.SubmitAnswer(ctx, roomID, "p1", start.CorrectOption)
		}()
		for range 2 {
			go func() {
				defer wg.Done()
				_, err := f.machine.Forfeit(ctx, roomID, start.Turn())
				forfeitErrs <- err
			}()
		}
		wg.Wait()
		close(forfeitErrs)
		for err := range forfeitErrs {
			require.NoError(t, err)
		}
		// A forfeit that advanced first hands the turn to p2.
		if answerErr != nil {
			require.ErrorIs(t, answerErr, ErrNotYourTurn)
		}

		s := f.state(t, roomID)
		assert.Equal(t, 1, s.RoundsPlayed)
		assert.Equal(t, "p2", s.CurrentTurnPlayerID)
		assert.Equal(t, []string{"q00", "q01"}, s.UsedQuestions)
		assert.LessOrEqual(t, s.Scores["p1"], 1)
	}
}

func TestPacingDelayUsesClock(t *testing.T) {
	ctx := context.Background()
	settings := instantSettings(4)
	settings.UXDelay = 2 * time.Second
	f := newFixture(t, catalog.NewStatic(testQuestions(10)), settings)
	_, err := f.machine.CreateRoom(ctx, "r", p1)
	require.NoError(t, err)
	_, err = f.machine.JoinOrUpdate(ctx, "r", p2)
	require.NoError(t, err)
	start, err := f.machine.StartGame(ctx, "r")
	require.NoError(t, err)

	done := make(chan models.RoomState, 1)
	go func() {
		s, err := f.machine.SubmitAnswer(ctx, "r", "p1", start.CorrectOption)
		assert.NoError(t, err)
		done <- s
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(waitCtx, 1))

	mid := f.state(t, "r")
	assert.Equal(t, start.CorrectOption, mid.SelectedOption)
	assert.Equal(t, 1, mid.Scores["p1"])
	assert.Equal(t, "p1", mid.CurrentTurnPlayerID)

	f.clock.Advance(2 * time.Second)
	select {
	case s := <-done:
		assert.Equal(t, "p2", s.CurrentTurnPlayerID)
		assert.Equal(t, start.TurnStartedAt+2000, s.TurnStartedAt)
	case <-time.After(5 * time.Second):
		t.Fatal("answer did not complete")
	}
}

func TestAnswerAfterForfeitDoesNotScore(t *testing.T) {
	ctx := context.Background()
	settings := instantSettings(4)
	settings.UXDelay = 2 * time.Second
	f := newFixture(t, catalog.NewStatic(testQuestions(10)), settings)
	_, err := f.machine.CreateRoom(ctx, "r", p1)
	require.NoError(t, err)
	_, err = f.machine.JoinOrUpdate(ctx, "r", p2)
	require.NoError(t, err)
	start, err := f.machine.StartGame(ctx, "r")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	results := make(chan error, 2)
	go func() {
		_, err := f.machine.Forfeit(ctx, "r", start.Turn())
		results <- err
	}()
	require.NoError(t, f.clock.BlockUntilContext(waitCtx, 1))

	mid := f.state(t, "r")
	assert.True(t, mid.Answered)
	assert.Empty(t, mid.SelectedOption)

	// The holder answers correctly while the forfeit is still pacing.
	go func() {
		_, err := f.machine.SubmitAnswer(ctx, "r", "p1", start.CorrectOption)
		results <- err
	}()
	require.NoError(t, f.clock.BlockUntilContext(waitCtx, 2))

	f.clock.Advance(3 * time.Second)
	for range 2 {
		select {
		case err := <-results:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("submission did not complete")
		}
	}

	s := f.state(t, "r")
	assert.Equal(t, 0, s.Scores["p1"])
	assert.Equal(t, 1, s.RoundsPlayed)
	assert.Equal(t, "p2", s.CurrentTurnPlayerID)
	assert.False(t, s.Answered)

	answers := 0
	for _, typ := range f.events.types() {
		if typ == events.EventTypeAnswerSubmitted {
			answers++
		}
	}
	assert.Equal(t, 1, answers)
}

func TestCancelDuringDelaySkipsAdvance(t *testing.T) {
	settings := instantSettings(4)
	settings.UXDelay = 2 * time.Second
	f := newFixture(t, catalog.NewStatic(testQuestions(10)), settings)
	bg := context.Background()
	_, err := f.machine.CreateRoom(bg, "r", p1)
	require.NoError(t, err)
	_, err = f.machine.JoinOrUpdate(bg, "r", p2)
	require.NoError(t, err)
	start, err := f.machine.StartGame(bg, "r")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(bg)
	errCh := make(chan error, 1)
	go func() {
		_, err := f.machine.SubmitAnswer(ctx, "r", "p1", start.CorrectOption)
		errCh <- err
	}()

	waitCtx, stop := context.WithTimeout(bg, 5*time.Second)
	defer stop()
	require.NoError(t, f.clock.BlockUntilContext(waitCtx, 1))
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)
	s := f.state(t, "r")
	assert.Equal(t, "p1", s.CurrentTurnPlayerID)
	assert.Equal(t, 0, s.RoundsPlayed)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("nats down"))

	m := NewMachine(memstore.New(), catalog.NewStatic(testQuestions(4)),
		WithPublisher(pub),
		WithSettings(instantSettings(4)),
	)
	_, err := m.CreateRoom(ctx, "r", p1)
	require.NoError(t, err)
	_, err = m.JoinOrUpdate(ctx, "r", p2)
	require.NoError(t, err)

	pub.AssertNumberOfCalls(t, "Publish", 2)
	pub.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(ev events.Event) bool {
		return ev.Type == events.EventTypePlayerJoined && ev.RoomID == "r"
	}))
}

func TestExhaustedPoolEndsGame(t *testing.T) {
	ctx := context.Background()
	cat := sparseCatalog{Static: catalog.NewStatic(testQuestions(1)), ghosts: []string{"zz1", "zz2", "zz3"}}
	f := newFixture(t, cat, instantSettings(4))
	_, err := f.machine.CreateRoom(ctx, "r", p1)
	require.NoError(t, err)
	_, err = f.machine.JoinOrUpdate(ctx, "r", p2)
	require.NoError(t, err)

	s, err := f.machine.StartGame(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "Question 0?", s.CurrentQuestion)
	assert.Equal(t, 4, s.MaxRounds)

	s = f.answer(t, "r", true)
	assert.True(t, s.GameOver)
	assert.Equal(t, NoQuestionText, s.CurrentQuestion)
	assert.Empty(t, s.QuestionPool)
	assert.ElementsMatch(t, []string{"q00", "zz1", "zz2", "zz3"}, s.UsedQuestions)

	_, err = f.machine.SubmitAnswer(ctx, "r", s.CurrentTurnPlayerID, "")
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestStoreErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	f, roomID := newLobby(t)
	broken := NewMachine(unavailableStore{f.store}, f.catalog, WithSettings(instantSettings(4)))

	_, err := broken.StartGame(ctx, roomID)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRoomNotFound))
	assert.False(t, errors.Is(err, docstore.ErrNotFound))
}
