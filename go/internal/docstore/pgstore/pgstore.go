// Package pgstore keeps room documents in a Postgres jsonb table.
//
// Transactions lock the row with SELECT ... FOR UPDATE. Every write sends
// pg_notify with the document id and a shared pq.Listener fans the change
// out to subscribers, which re-read the row.
package pgstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/mcdev12/trivia/go/internal/docstore"
	"github.com/mcdev12/trivia/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

//go:embed schema.sql
var schema string

type Config struct {
	DSN                  string // used by the LISTEN connection
	NotifyChannel        string
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
	MaxAttempts          int
}

func DefaultConfig() Config {
	return Config{
		NotifyChannel:        "room_documents",
		MinReconnectInterval: 10 * time.Second,
		MaxReconnectInterval: time.Minute,
		PingInterval:         90 * time.Second,
		MaxAttempts:          docstore.DefaultMaxAttempts,
	}
}

type Store struct {
	db  *sql.DB
	cfg Config

	mu          sync.Mutex
	listener    *pq.Listener
	stop        chan struct{}
	subscribers map[string]map[chan docstore.Change]int64 // last version delivered per channel
}

func New(db *sql.DB, cfg Config) *Store {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = docstore.DefaultMaxAttempts
	}
	return &Store{
		db:          db,
		cfg:         cfg,
		subscribers: make(map[string]map[chan docstore.Change]int64),
	}
}

// EnsureSchema creates the documents table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func newQueries(tx *sql.Tx) *Queries { return NewQueries(tx) }

func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	doc, err := NewQueries(s.db).GetDocument(ctx, id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !doc.Valid) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return doc.RawMessage, nil
}

func (s *Store) Set(ctx context.Context, id string, doc []byte) error {
	err := sqlutil.Run(ctx, s.db, newQueries, func(q *Queries) error {
		if err := q.UpsertDocument(ctx, id, pqtype.NullRawMessage{RawMessage: doc, Valid: true}); err != nil {
			return err
		}
		return q.NotifyChange(ctx, s.cfg.NotifyChannel, id)
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", id, err)
	}
	return nil
}

func (s *Store) RunTransaction(ctx context.Context, id string, fn docstore.TxFunc) error {
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		err := sqlutil.Run(ctx, s.db, newQueries, func(q *Queries) error {
			cur, err := q.LockDocument(ctx, id)
			if errors.Is(err, sql.ErrNoRows) || (err == nil && !cur.Valid) {
				return docstore.ErrNotFound
			}
			if err != nil {
				return err
			}

			next, write, err := docstore.Apply(fn, cur.RawMessage)
			if err != nil || !write {
				return err
			}

			if err := q.UpdateDocument(ctx, id, pqtype.NullRawMessage{RawMessage: next, Valid: true}); err != nil {
				return err
			}
			return q.NotifyChange(ctx, s.cfg.NotifyChannel, id)
		})
		if retryable(err) {
			log.Debug().Err(err).Str("doc_id", id).Int("attempt", attempt).Msg("transaction conflict, retrying")
			continue
		}
		return err
	}
	return fmt.Errorf("%s after %d attempts: %w", id, s.cfg.MaxAttempts, docstore.ErrConflict)
}

// retryable reports serialization failures and deadlocks.
func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

func (s *Store) Subscribe(ctx context.Context, id string) (<-chan docstore.Change, error) {
	if err := s.ensureListener(); err != nil {
		return nil, err
	}

	ch := make(chan docstore.Change, 16)
	s.mu.Lock()
	if s.subscribers[id] == nil {
		s.subscribers[id] = make(map[chan docstore.Change]int64)
	}
	s.subscribers[id][ch] = noVersion
	s.mu.Unlock()

	c, version := s.read(ctx, id)
	s.offer(id, c, version, ch)

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

func (s *Store) ensureListener() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	l := pq.NewListener(
		s.cfg.DSN,
		s.cfg.MinReconnectInterval,
		s.cfg.MaxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(s.cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().Str("channel", s.cfg.NotifyChannel).Msg("listening for document changes")

	s.listener = l
	s.stop = make(chan struct{})
	go s.dispatch(l, s.stop)
	return nil
}

func (s *Store) dispatch(l *pq.Listener, stop <-chan struct{}) {
	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-stop:
			return
		case note, ok := <-l.Notify:
			if !ok {
				return
			}
			if note == nil {
				// Connection was re-established; notifications may have been missed.
				for _, id := range s.subscribedIDs() {
					s.refresh(id)
				}
				continue
			}
			s.refresh(note.Extra)
		case <-ping.C:
			if err := l.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (s *Store) subscribedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) refresh(id string) {
	s.mu.Lock()
	_, watched := s.subscribers[id]
	s.mu.Unlock()
	if !watched {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, version := s.read(ctx, id)
	s.offer(id, c, version, nil)
}

// noVersion marks a subscriber that has not been sent a snapshot yet. A
// missing row reads as version 0 and the first write stores version 1.
const noVersion int64 = -1

// read returns the current snapshot of id and its row version.
func (s *Store) read(ctx context.Context, id string) (docstore.Change, int64) {
	doc, version, err := NewQueries(s.db).ReadDocument(ctx, id)
	switch {
	case errors.Is(err, sql.ErrNoRows) || (err == nil && !doc.Valid):
		return docstore.Change{}, 0
	case err != nil:
		return docstore.Change{Err: fmt.Errorf("read %s: %w", id, err)}, noVersion
	default:
		return docstore.Change{Doc: doc.RawMessage, Exists: true}, version
	}
}

// offer delivers c to one subscriber, or to every subscriber of id when only
// is nil. Snapshots no newer than what a channel already received are dropped,
// so a slow initial read cannot overwrite a fresher notification. Errors carry
// no version and are always delivered.
func (s *Store) offer(id string, c docstore.Change, version int64, only chan docstore.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch, last := range s.subscribers[id] {
		if only != nil && ch != only {
			continue
		}
		if c.Err == nil {
			if version <= last {
				continue
			}
			s.subscribers[id][ch] = version
		}
		docstore.Offer(ch, c)
	}
}

// Close stops change dispatch. The *sql.DB stays owned by the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	close(s.stop)
	err := s.listener.Close()
	s.listener = nil
	return err
}

var _ docstore.Store = (*Store)(nil)
