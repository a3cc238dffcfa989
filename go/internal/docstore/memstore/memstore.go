// Package memstore is an in-process docstore.Store used by tests and single-node deployments.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/mcdev12/trivia/go/internal/docstore"
	"github.com/rs/zerolog/log"
)

type entry struct {
	doc     []byte
	version uint64
}

// Store keeps documents in a map guarded by a mutex. Transactions read a
// versioned snapshot, run the body unlocked and commit only if the version is
// unchanged.
type Store struct {
	mu          sync.Mutex
	docs        map[string]entry
	subscribers map[string]map[chan docstore.Change]struct{}
	maxAttempts int

	// beforeCommit runs between the body and the commit check. Tests use it
	// to inject concurrent writers.
	beforeCommit func(id string, attempt int)
}

// New creates an empty store.
func New() *Store {
	return &Store{
		docs:        make(map[string]entry),
		subscribers: make(map[string]map[chan docstore.Change]struct{}),
		maxAttempts: docstore.DefaultMaxAttempts,
	}
}

func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return slices.Clone(e.doc), nil
}

func (s *Store) Set(ctx context.Context, id string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitLocked(id, doc)
	return nil
}

func (s *Store) RunTransaction(ctx context.Context, id string, fn docstore.TxFunc) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		e, ok := s.docs[id]
		s.mu.Unlock()
		if !ok {
			return docstore.ErrNotFound
		}

		next, write, err := docstore.Apply(fn, slices.Clone(e.doc))
		if err != nil || !write {
			return err
		}

		if s.beforeCommit != nil {
			s.beforeCommit(id, attempt)
		}

		s.mu.Lock()
		cur, ok := s.docs[id]
		if !ok {
			s.mu.Unlock()
			return docstore.ErrNotFound
		}
		if cur.version == e.version {
			s.commitLocked(id, next)
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		log.Debug().Str("doc_id", id).Int("attempt", attempt).Msg("transaction conflict, retrying")
	}
	return fmt.Errorf("%s after %d attempts: %w", id, s.maxAttempts, docstore.ErrConflict)
}

func (s *Store) commitLocked(id string, doc []byte) {
	e := s.docs[id]
	e.doc = slices.Clone(doc)
	e.version++
	s.docs[id] = e

	for ch := range s.subscribers[id] {
		docstore.Offer(ch, docstore.Change{Doc: slices.Clone(doc), Exists: true})
	}
}

func (s *Store) Subscribe(ctx context.Context, id string) (<-chan docstore.Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan docstore.Change, 16)

	s.mu.Lock()
	if s.subscribers[id] == nil {
		s.subscribers[id] = make(map[chan docstore.Change]struct{})
	}
	s.subscribers[id][ch] = struct{}{}
	if e, ok := s.docs[id]; ok {
		ch <- docstore.Change{Doc: slices.Clone(e.doc), Exists: true}
	} else {
		ch <- docstore.Change{}
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers[id], ch)
		if len(s.subscribers[id]) == 0 {
			delete(s.subscribers, id)
		}
		close(ch)
	}()

	return ch, nil
}

// Delete removes a document. Subscribers see an absent snapshot.
func (s *Store) Delete(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	for ch := range s.subscribers[id] {
		docstore.Offer(ch, docstore.Change{})
	}
}

var _ docstore.Store = (*Store)(nil)
