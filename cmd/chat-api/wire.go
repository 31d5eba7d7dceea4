package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/PabloGalante/gemini-chat/internal/adapters/llm"
	"github.com/PabloGalante/gemini-chat/internal/adapters/lock"
	boltstore "github.com/PabloGalante/gemini-chat/internal/adapters/storage/bolt"
	dynamostore "github.com/PabloGalante/gemini-chat/internal/adapters/storage/dynamodb"
	firestorestore "github.com/PabloGalante/gemini-chat/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/gemini-chat/internal/adapters/storage/memory"
	redisstore "github.com/PabloGalante/gemini-chat/internal/adapters/storage/redis"
	sqlitestore "github.com/PabloGalante/gemini-chat/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/gemini-chat/internal/config"
	"github.com/PabloGalante/gemini-chat/internal/domain"
	"github.com/PabloGalante/gemini-chat/internal/observability"
)

// deps holds everything built from the config. close releases them.
type deps struct {
	store  domain.HistoryStore
	chats  domain.ChatSessionFactory
	gen    domain.Generator
	locker domain.SessionLocker

	redis *redis.Client
}

func (d *deps) close() {
	log := observability.Logger()
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			log.Warn("closing store", "error", err)
		}
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			log.Warn("closing redis client", "error", err)
		}
	}
}

// redisClient is shared by the redis store and the redis session lock.
func (d *deps) redisClient(cfg *config.Config) *redis.Client {
	if d.redis == nil {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
	}
	return d.redis
}

func buildStore(ctx context.Context, cfg *config.Config, d *deps) (domain.HistoryStore, error) {
	sc := cfg.Store
	log := observability.WithFields("backend", string(sc.Backend), "table", sc.Table)

	switch sc.Backend {
	case config.StoreDynamoDB:
		log.Info("using dynamodb history store", "endpoint", sc.Endpoint, "region", sc.Region)
		return dynamostore.NewStore(ctx, dynamostore.Options{
			Table:           sc.Table,
			Region:          sc.Region,
			Endpoint:        sc.Endpoint,
			AccessKeyID:     sc.AccessKeyID,
			SecretAccessKey: sc.SecretAccessKey,
		})

	case config.StoreFirestore:
		log.Info("using firestore history store", "project", sc.FirestoreProject)
		return firestorestore.NewStore(ctx, sc.FirestoreProject, sc.Table)

	case config.StoreRedis:
		log.Info("using redis history store", "addr", sc.RedisAddr)
		return redisstore.NewStore(ctx, d.redisClient(cfg), sc.Table)

	case config.StoreSQLite:
		log.Info("using sqlite history store", "path", sc.SQLitePath)
		return sqlitestore.NewStore(sqlitestore.DSNForFile(sc.SQLitePath), sc.Table)

	case config.StoreBolt:
		log.Info("using bolt history store", "path", sc.BoltPath)
		return boltstore.NewStore(sc.BoltPath, sc.Table)

	case config.StoreMemory:
		log.Info("using in-memory history store")
		return memstore.NewHistoryStore(sc.Table), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
}

// buildLLM returns the chat factory and the stateless generator, which are
// the same value for every backend.
func buildLLM(ctx context.Context, cfg *config.Config) (domain.ChatSessionFactory, domain.Generator, error) {
	lc := cfg.LLM
	log := observability.WithFields("backend", string(lc.Backend), "model", lc.Model)

	if lc.Backend == config.LLMMock {
		log.Info("using mock llm")
		m := llm.NewMockLLM()
		return m, m, nil
	}

	if lc.Backend == config.LLMGemini && lc.APIKey == "" {
		log.Warn("GEMINI_API_KEY is not set, chat requests will fail")
		f, err := llm.NewGeminiFactory(nil, lc.Model, lc.Generation)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	}

	client, err := llm.NewGenaiClient(ctx, llm.ClientOptions{
		Vertex:   lc.Backend == config.LLMVertex,
		APIKey:   lc.APIKey,
		Project:  lc.Project,
		Location: lc.Location,
		BaseURL:  lc.BaseURL,
	})
	if err != nil {
		return nil, nil, err
	}

	f, err := llm.NewGeminiFactory(client, lc.Model, lc.Generation)
	if err != nil {
		return nil, nil, err
	}
	log.Info("using gemini llm")
	return f, f, nil
}

func buildLocker(cfg *config.Config, d *deps) domain.SessionLocker {
	switch cfg.Lock.Mode {
	case config.LockLocal:
		observability.Logger().Info("session lock: local")
		return lock.NewLocalLocker()
	case config.LockRedis:
		observability.Logger().Info("session lock: redis", "ttl", cfg.Lock.TTL.String())
		return lock.NewRedisLocker(d.redisClient(cfg), cfg.Store.Table, cfg.Lock.TTL)
	default:
		return lock.Noop{}
	}
}

// buildDeps wires the store and, when withLLM is set, the model and the session lock.
func buildDeps(ctx context.Context, cfg *config.Config, withLLM bool) (*deps, error) {
	d := &deps{}

	store, err := buildStore(ctx, cfg, d)
	if err != nil {
		d.close()
		return nil, fmt.Errorf("history store: %w", err)
	}
	d.store = store

	if !withLLM {
		return d, nil
	}

	d.chats, d.gen, err = buildLLM(ctx, cfg)
	if err != nil {
		d.close()
		return nil, fmt.Errorf("llm: %w", err)
	}
	d.locker = buildLocker(cfg, d)
	return d, nil
}
