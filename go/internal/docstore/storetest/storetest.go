// Package storetest holds the behaviour every docstore.Store backend must share.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/trivia/go/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	N int `json:"n"`
}

func encode(t *testing.T, n int) []byte {
	t.Helper()
	b, err := json.Marshal(counter{N: n})
	require.NoError(t, err)
	return b
}

func decode(t *testing.T, b []byte) int {
	t.Helper()
	var c counter
	require.NoError(t, json.Unmarshal(b, &c))
	return c.N
}

func increment(cur []byte) ([]byte, error) {
	var c counter
	if err := json.Unmarshal(cur, &c); err != nil {
		return nil, err
	}
	c.N++
	return json.Marshal(c)
}

// Run exercises a store produced by newStore. Each subtest gets its own document id.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	ctx := context.Background()
	newID := func() string {
		return fmt.Sprintf("doc-%d", time.Now().UnixNano())
	}

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, newID())
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		s := newStore(t)
		doc := newID()
		require.NoError(t, s.Set(ctx, doc, encode(t, 3)))
		got, err := s.Get(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, 3, decode(t, got))
	})

	t.Run("transaction on missing document", func(t *testing.T) {
		s := newStore(t)
		called := false
		err := s.RunTransaction(ctx, newID(), func(cur []byte) ([]byte, error) {
			called = true
			return cur, nil
		})
		assert.ErrorIs(t, err, docstore.ErrNotFound)
		assert.False(t, called)
	})

	t.Run("abort leaves document untouched", func(t *testing.T) {
		s := newStore(t)
		doc := newID()
		require.NoError(t, s.Set(ctx, doc, encode(t, 1)))
		err := s.RunTransaction(ctx, doc, func([]byte) ([]byte, error) {
			return nil, docstore.ErrAbort
		})
		require.NoError(t, err)
		got, err := s.Get(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, 1, decode(t, got))
	})

	t.Run("body error is returned without writing", func(t *testing.T) {
		s := newStore(t)
		doc := newID()
		boom := errors.New("boom")
		require.NoError(t, s.Set(ctx, doc, encode(t, 1)))
		err := s.RunTransaction(ctx, doc, func([]byte) ([]byte, error) {
			return encode(t, 99), boom
		})
		assert.ErrorIs(t, err, boom)
		got, err := s.Get(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, 1, decode(t, got))
	})

	t.Run("concurrent transactions serialize", func(t *testing.T) {
		s := newStore(t)
		doc := newID()
		require.NoError(t, s.Set(ctx, doc, encode(t, 0)))

		const writers = 12
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.RunTransaction(ctx, doc, increment)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := s.Get(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, writers, decode(t, got))
	})

	t.Run("subscribe delivers current and subsequent snapshots", func(t *testing.T) {
		s := newStore(t)
		doc := newID()
		require.NoError(t, s.Set(ctx, doc, encode(t, 0)))

		subCtx, cancel := context.WithCancel(ctx)
		changes, err := s.Subscribe(subCtx, doc)
		require.NoError(t, err)

		first := next(t, changes)
		require.True(t, first.Exists)
		assert.Equal(t, 0, decode(t, first.Doc))

		require.NoError(t, s.RunTransaction(ctx, doc, increment))
		waitFor(t, changes, 1)

		cancel()
		assertClosed(t, changes)
	})

	t.Run("subscribe to absent document", func(t *testing.T) {
		s := newStore(t)
		doc := newID()

		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		changes, err := s.Subscribe(subCtx, doc)
		require.NoError(t, err)

		assert.False(t, next(t, changes).Exists)

		require.NoError(t, s.Set(ctx, doc, encode(t, 7)))
		waitFor(t, changes, 7)
	})
}

func next(t *testing.T, ch <-chan docstore.Change) docstore.Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "subscription closed")
		require.NoError(t, c.Err)
		return c
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no change delivered")
		return docstore.Change{}
	}
}

// waitFor reads changes until the document holds n. Notifications are
// at-least-once so earlier snapshots may repeat.
func waitFor(t *testing.T, ch <-chan docstore.Change, n int) {
	t.Helper()
	for {
		c := next(t, ch)
		if c.Exists && decode(t, c.Doc) == n {
			return
		}
	}
}

func assertClosed(t *testing.T, ch <-chan docstore.Change) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			require.FailNow(t, "subscription not closed after cancel")
		}
	}
}
