package bolt

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/PabloGalante/gemini-chat/internal/domain"
)

const backend = "bolt"

// Store keeps one bucket per table and one key per session.
type Store struct {
	db    *bolt.DB
	table []byte
}

var _ domain.HistoryStore = (*Store)(nil)

// NewStore opens (or creates) the bolt file at path and makes sure the table bucket exists.
func NewStore(path, table string) (*Store, error) {
	if table == "" {
		return nil, errors.New("bolt history store: empty table")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "bolt history store: mkdir")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "bolt history store: open")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(table))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "bolt history store: create bucket")
	}
	return &Store{db: db, table: []byte(table)}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetHistory(_ context.Context, id domain.SessionID) (string, bool, error) {
	var (
		blob  string
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.table)
		if b == nil {
			return errors.Errorf("bucket %q missing", s.table)
		}
		// bolt values are only valid inside the transaction
		if v := b.Get([]byte(id)); v != nil {
			blob = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, domain.NewStoreError(backend, "get", err)
	}
	return blob, found, nil
}

func (s *Store) PutHistory(_ context.Context, id domain.SessionID, blob string) (string, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.table)
		if b == nil {
			return errors.Errorf("bucket %q missing", s.table)
		}
		return b.Put([]byte(id), []byte(blob))
	})
	if err != nil {
		return "", domain.NewStoreError(backend, "put", err)
	}
	return blob, nil
}

func (s *Store) DescribeTable(_ context.Context, table string) (domain.TableStatus, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket([]byte(table)) != nil
		return nil
	})
	if err != nil {
		return domain.TableStatus{}, domain.NewStoreError(backend, "describe", err)
	}
	if !found {
		return domain.TableStatus{Table: table}, nil
	}
	return domain.TableStatus{Table: table, Status: "ACTIVE", Found: true}, nil
}
