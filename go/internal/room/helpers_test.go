package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/trivia/go/internal/catalog"
	"github.com/mcdev12/trivia/go/internal/docstore/memstore"
	"github.com/mcdev12/trivia/go/internal/events"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	p1 = models.Profile{ID: "p1", Name: "Ada"}
	p2 = models.Profile{ID: "p2", Name: "Bob"}
	p3 = models.Profile{ID: "p3", Name: "Cy"}
)

func testQuestions(n int) []models.Question {
	qs := make([]models.Question, 0, n)
	for i := range n {
		qs = append(qs, models.Question{
			ID:            fmt.Sprintf("q%02d", i),
			Text:          fmt.Sprintf("Question %d?", i),
			CorrectOption: fmt.Sprintf("right-%d", i),
			Options:       []string{"wrong", fmt.Sprintf("right-%d", i)},
		})
	}
	return qs
}

type fixture struct {
	store   *memstore.Store
	catalog catalog.Catalog
	clock   *clockwork.FakeClock
	events  *recordingPublisher
	machine *Machine
}

func keepOrder([]string) {}

func newFixture(t *testing.T, cat catalog.Catalog, settings Settings) *fixture {
	t.Helper()
	f := &fixture{
		store:   memstore.New(),
		catalog: cat,
		clock:   clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)),
		events:  &recordingPublisher{},
	}
	f.machine = NewMachine(f.store, cat,
		WithClock(f.clock),
		WithSettings(settings),
		WithPublisher(f.events),
		WithShuffler(keepOrder),
	)
	return f
}

// instantSettings skips the pacing delay.
func instantSettings(maxRounds int) Settings {
	s := DefaultSettings()
	s.MaxRounds = maxRounds
	s.UXDelay = 0
	return s
}

// newLobby creates a room with two players and a ten question catalog.
func newLobby(t *testing.T, profiles ...models.Profile) (*fixture, string) {
	t.Helper()
	f := newFixture(t, catalog.NewStatic(testQuestions(10)), instantSettings(4))
	ctx := context.Background()
	const roomID = "ABC123"

	if len(profiles) == 0 {
		profiles = []models.Profile{p1, p2}
	}
	_, err := f.machine.CreateRoom(ctx, roomID, profiles[0])
	require.NoError(t, err)
	for _, p := range profiles[1:] {
		_, err := f.machine.JoinOrUpdate(ctx, roomID, p)
		require.NoError(t, err)
	}
	return f, roomID
}

func (f *fixture) state(t *testing.T, roomID string) models.RoomState {
	t.Helper()
	s, err := f.machine.Get(context.Background(), roomID)
	require.NoError(t, err)
	return s
}

// answer submits on behalf of the turn holder, correctly or not.
func (f *fixture) answer(t *testing.T, roomID string, correct bool) models.RoomState {
	t.Helper()
	cur := f.state(t, roomID)
	option := "wrong"
	if correct {
		option = cur.CorrectOption
	}
	s, err := f.machine.SubmitAnswer(context.Background(), roomID, cur.CurrentTurnPlayerID, option)
	require.NoError(t, err)
	return s
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, ev events.Event) error {
	return m.Called(ctx, ev).Error(0)
}

// unavailableStore fails every read.
type unavailableStore struct {
	*memstore.Store
}

func (unavailableStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("store unavailable")
}

// sparseCatalog lists ids it cannot resolve.
type sparseCatalog struct {
	*catalog.Static
	ghosts []string
}

func (c sparseCatalog) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := c.Static.ListIDs(ctx)
	return append(ids, c.ghosts...), err
}

type failingCatalog struct{}

func (failingCatalog) ListIDs(context.Context) ([]string, error) {
	return nil, errors.New("catalog offline")
}

func (failingCatalog) GetByID(context.Context, string) (models.Question, error) {
	return models.Question{}, errors.New("catalog offline")
}
