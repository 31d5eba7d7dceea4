package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/PabloGalante/gemini-chat/internal/domain"
)

const backend = "redis"

// Store keeps each session history as one string key, <table>:session:<id>.
// A table counts as provisioned when its <table>:meta hash exists.
type Store struct {
	client *redis.Client
	table  string
}

var _ domain.HistoryStore = (*Store)(nil)

// NewStore provisions table on client. The caller owns client; Close leaves it open.
func NewStore(ctx context.Context, client *redis.Client, table string) (*Store, error) {
	if table == "" {
		return nil, errors.New("redis history store: empty table")
	}
	s := &Store{client: client, table: table}
	if err := s.EnsureTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureTable creates the table marker if missing.
func (s *Store) EnsureTable(ctx context.Context) error {
	err := s.client.HSetNX(ctx, metaKey(s.table), "created_at", time.Now().UTC().Format(time.RFC3339)).Err()
	if err != nil {
		return errors.Wrapf(err, "redis history store: ensure table %s", s.table)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) GetHistory(ctx context.Context, id domain.SessionID) (string, bool, error) {
	blob, err := s.client.Get(ctx, s.sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.NewStoreError(backend, "get", errors.Wrapf(err, "session %s", id))
	}
	return blob, true, nil
}

func (s *Store) PutHistory(ctx context.Context, id domain.SessionID, blob string) (string, error) {
	if err := s.client.Set(ctx, s.sessionKey(id), blob, 0).Err(); err != nil {
		return "", domain.NewStoreError(backend, "put", errors.Wrapf(err, "session %s", id))
	}
	return blob, nil
}

func (s *Store) DescribeTable(ctx context.Context, table string) (domain.TableStatus, error) {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return domain.TableStatus{}, domain.NewStoreError(backend, "describe", err)
	}
	n, err := s.client.Exists(ctx, metaKey(table)).Result()
	if err != nil {
		return domain.TableStatus{}, domain.NewStoreError(backend, "describe", err)
	}
	if n == 0 {
		return domain.TableStatus{Table: table}, nil
	}
	return domain.TableStatus{Table: table, Status: "ACTIVE", Found: true}, nil
}

func (s *Store) sessionKey(id domain.SessionID) string {
	return s.table + ":session:" + string(id)
}

func metaKey(table string) string {
	return table + ":meta"
}
