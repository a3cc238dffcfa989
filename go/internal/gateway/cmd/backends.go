package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/trivia/go/internal/catalog"
	"github.com/mcdev12/trivia/go/internal/config"
	"github.com/mcdev12/trivia/go/internal/docstore"
	"github.com/mcdev12/trivia/go/internal/docstore/memstore"
	"github.com/mcdev12/trivia/go/internal/docstore/pgstore"
	"github.com/mcdev12/trivia/go/internal/docstore/redisstore"
	"github.com/mcdev12/trivia/go/internal/events"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func noop() error { return nil }

func openStore(ctx context.Context, cfg config.Config) (docstore.Store, func() error, error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		rc := redisstore.DefaultConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.TTL = cfg.RoomTTL
		store, err := redisstore.Dial(ctx, rc)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.StorePostgres:
		db, err := cfg.DB.Open(ctx)
		if err != nil {
			return nil, nil, err
		}
		pc := pgstore.DefaultConfig()
		pc.DSN = cfg.DB.DSN()
		store := pgstore.New(db, pc)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() error {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("failed to stop room listener")
			}
			return db.Close()
		}, nil

	default:
		log.Warn().Msg("using in-memory room store; rooms are lost on restart")
		return memstore.New(), noop, nil
	}
}

func openCatalog(ctx context.Context, cfg config.Config) (catalog.Catalog, func() error, error) {
	switch cfg.CatalogBackend {
	case config.CatalogPostgres:
		pool, err := pgxpool.New(ctx, cfg.DB.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("connect question database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping question database: %w", err)
		}
		return catalog.NewPostgres(pool), func() error { pool.Close(); return nil }, nil

	case config.CatalogMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("ping mongo: %w", err)
		}
		return catalog.NewMongo(client, cfg.MongoDB), func() error {
			return client.Disconnect(context.Background())
		}, nil

	default:
		static, err := catalog.LoadFile(cfg.QuestionsPath)
		if err != nil {
			return nil, nil, err
		}
		return static, noop, nil
	}
}

func openPublisher(ctx context.Context, cfg config.Config) (events.Publisher, func() error, error) {
	if cfg.NatsURL == "" {
		return events.LogPublisher{}, noop, nil
	}
	jc := events.DefaultJetStreamConfig()
	jc.URL = cfg.NatsURL
	p, err := events.NewJetStreamPublisher(ctx, jc)
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}
