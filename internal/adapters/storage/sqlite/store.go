package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/PabloGalante/gemini-chat/internal/domain"
)

const backend = "sqlite"

type Store struct {
	db    *sql.DB
	table string
}

var _ domain.HistoryStore = &Store{}

// NewStore opens dsn and creates table if it does not exist yet.
func NewStore(dsn, table string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite history store: empty dsn")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("sqlite history store: empty table")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite history store: open")
	}
	s := &Store{db: db, table: table}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DSNForFile returns a DSN with the pragmas the store expects.
func DSNForFile(path string) string {
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmt := `CREATE TABLE IF NOT EXISTS ` + quoteIdent(s.table) + ` (
		session_id TEXT NOT NULL PRIMARY KEY,
		history TEXT NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(stmt); err != nil {
		return errors.Wrap(err, "sqlite history store: migrate")
	}
	return nil
}

func (s *Store) GetHistory(ctx context.Context, id domain.SessionID) (string, bool, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT history FROM `+quoteIdent(s.table)+` WHERE session_id = ?`, string(id),
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.NewStoreError(backend, "get", errors.Wrapf(err, "session %s", id))
	}
	return blob, true, nil
}

func (s *Store) PutHistory(ctx context.Context, id domain.SessionID, blob string) (string, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+quoteIdent(s.table)+` (session_id, history, updated_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET history = excluded.history, updated_at_ms = excluded.updated_at_ms`,
		string(id), blob, time.Now().UnixMilli(),
	)
	if err != nil {
		return "", domain.NewStoreError(backend, "put", errors.Wrapf(err, "session %s", id))
	}
	return blob, nil
}

func (s *Store) DescribeTable(ctx context.Context, table string) (domain.TableStatus, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TableStatus{Table: table}, nil
	}
	if err != nil {
		return domain.TableStatus{}, domain.NewStoreError(backend, "describe", err)
	}
	return domain.TableStatus{Table: table, Status: "ACTIVE", Found: true}, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
