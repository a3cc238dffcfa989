package room

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mcdev12/trivia/go/internal/catalog"
	"github.com/mcdev12/trivia/go/internal/docstore"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/rs/zerolog/log"
)

// NoQuestionText is shown when a room's pool ran dry.
const NoQuestionText = "No question available"

const maxDrawAttempts = 5

// Draw is the outcome of issuing one question from a room's pool.
type Draw struct {
	QuestionID    string
	Text          string
	Options       []string
	CorrectOption string
	Pool          []string // pool after the draw
	Used          []string // used questions after the draw
	Exhausted     bool
}

// Apply copies the question and the updated lists into s.
func (d Draw) Apply(s *models.RoomState) {
	s.CurrentQuestion = d.Text
	s.CurrentOptions = slices.Clone(d.Options)
	s.CorrectOption = d.CorrectOption
	s.QuestionPool = slices.Clone(d.Pool)
	s.UsedQuestions = slices.Clone(d.Used)
}

// Allocator issues questions from a room's pool in FIFO order, never twice.
type Allocator struct {
	store   docstore.Store
	catalog catalog.Catalog
}

func NewAllocator(store docstore.Store, cat catalog.Catalog) *Allocator {
	return &Allocator{store: store, catalog: cat}
}

// Prepare resolves the head of pool against the catalog without touching the
// store. Ids the catalog no longer knows are moved to used and skipped.
func (a *Allocator) Prepare(ctx context.Context, pool, used []string) (Draw, error) {
	pool = slices.Clone(pool)
	used = slices.Clone(used)
	if used == nil {
		used = []string{}
	}

	for len(pool) > 0 {
		id := pool[0]
		pool = pool[1:]

		q, err := a.catalog.GetByID(ctx, id)
		if errors.Is(err, catalog.ErrQuestionNotFound) {
			log.Warn().Str("question_id", id).Msg("question missing from catalog, skipping")
			if !slices.Contains(used, id) {
				used = append(used, id)
			}
			continue
		}
		if err != nil {
			return Draw{}, fmt.Errorf("fetch question %s: %w", id, err)
		}

		if !slices.Contains(used, id) {
			used = append(used, id)
		}
		return Draw{
			QuestionID:    q.ID,
			Text:          q.Text,
			Options:       slices.Clone(q.Options),
			CorrectOption: q.CorrectOption,
			Pool:          pool,
			Used:          used,
		}, nil
	}

	return Draw{
		Text:      NoQuestionText,
		Options:   []string{},
		Pool:      []string{},
		Used:      used,
		Exhausted: true,
	}, nil
}

// DrawNext issues the next question of a room and persists the updated pool
// and used lists. poolOverride replaces the stored lists for the first draw of
// a match, when the caller holds the freshly allocated pool; that draw fails
// with ErrGameInProgress if the stored pool no longer matches it.
func (a *Allocator) DrawNext(ctx context.Context, roomID string, poolOverride []string) (Draw, error) {
	for attempt := 1; attempt <= maxDrawAttempts; attempt++ {
		pool, used := poolOverride, []string{}
		if poolOverride == nil {
			s, err := loadState(ctx, a.store, roomID)
			if err != nil {
				return Draw{}, err
			}
			pool, used = s.QuestionPool, s.UsedQuestions
		}

		d, err := a.Prepare(ctx, pool, used)
		if err != nil {
			return Draw{}, err
		}

		moved := false
		_, _, err = updateState(ctx, a.store, roomID, func(s models.RoomState) (models.RoomState, error) {
			moved = !slices.Equal(s.QuestionPool, pool)
			if moved {
				return s, docstore.ErrAbort
			}
			s.QuestionPool, s.UsedQuestions = d.Pool, d.Used
			return s, nil
		})
		if err != nil {
			return Draw{}, err
		}
		if !moved {
			return d, nil
		}

		if poolOverride != nil {
			// Another start replaced the freshly allocated pool.
			return Draw{}, fmt.Errorf("draw first question for %s: %w", roomID, ErrGameInProgress)
		}
		log.Debug().Str("room_id", roomID).Int("attempt", attempt).Msg("question pool changed during draw, retrying")
	}
	return Draw{}, fmt.Errorf("draw question for %s: %w", roomID, docstore.ErrConflict)
}
