// Package redisstore keeps room documents in Redis. Transactions use
// WATCH/MULTI and every write is published on a per-document channel.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/trivia/go/internal/docstore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	TTL         time.Duration // 0 keeps documents forever
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		Addr:        "localhost:6379",
		KeyPrefix:   "trivia:room",
		TTL:         24 * time.Hour, // rooms expire after a day
		MaxAttempts: docstore.DefaultMaxAttempts,
	}
}

type Store struct {
	client *redis.Client
	cfg    Config

	beforeCommit func(id string, attempt int)
}

// New wraps an existing client.
func New(client *redis.Client, cfg Config) *Store {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = docstore.DefaultMaxAttempts
	}
	return &Store{client: client, cfg: cfg}
}

// Dial connects to cfg.Addr and verifies the connection.
func Dial(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Info().Str("addr", cfg.Addr).Msg("connected to redis")
	return New(client, cfg), nil
}

func (s *Store) key(id string) string {
	return fmt.Sprintf("%s:%s", s.cfg.KeyPrefix, id)
}

func (s *Store) channel(id string) string {
	return fmt.Sprintf("%s:changes:%s", s.cfg.KeyPrefix, id)
}

func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	doc, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return doc, nil
}

func (s *Store) Set(ctx context.Context, id string, doc []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(id), doc, s.cfg.TTL)
		pipe.Publish(ctx, s.channel(id), doc)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", id, err)
	}
	return nil
}

func (s *Store) RunTransaction(ctx context.Context, id string, fn docstore.TxFunc) error {
	key := s.key(id)

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return docstore.ErrNotFound
			}
			if err != nil {
				return err
			}

			next, write, err := docstore.Apply(fn, cur)
			if err != nil || !write {
				return err
			}

			if s.beforeCommit != nil {
				s.beforeCommit(id, attempt)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, s.cfg.TTL)
				pipe.Publish(ctx, s.channel(id), next)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			log.Debug().Str("doc_id", id).Int("attempt", attempt).Msg("watched key changed, retrying")
			continue
		}
		return err
	}
	return fmt.Errorf("%s after %d attempts: %w", id, s.cfg.MaxAttempts, docstore.ErrConflict)
}

func (s *Store) Subscribe(ctx context.Context, id string) (<-chan docstore.Change, error) {
	pubsub := s.client.Subscribe(ctx, s.channel(id))
	// Wait for the subscription to be confirmed so no write after the
	// initial read is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", id, err)
	}

	out := make(chan docstore.Change, 16)

	doc, err := s.Get(ctx, id)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		out <- docstore.Change{}
	case err != nil:
		out <- docstore.Change{Err: err}
	default:
		out <- docstore.Change{Doc: doc, Exists: true}
	}

	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				docstore.Offer(out, docstore.Change{Doc: []byte(msg.Payload), Exists: true})
			}
		}
	}()

	return out, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ docstore.Store = (*Store)(nil)
