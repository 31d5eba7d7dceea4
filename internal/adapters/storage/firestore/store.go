package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/gemini-chat/internal/domain"
)

const backend = "firestore"

// Store keeps one document per session in the collection named by table.
type Store struct {
	client *firestore.Client
	table  string
}

var _ domain.HistoryStore = (*Store)(nil)

// NewStore creates a Firestore store.
func NewStore(ctx context.Context, projectID, table string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client, table: table}, nil
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) historyCol() *firestore.CollectionRef {
	return s.client.Collection(s.table)
}

func (s *Store) historyDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.historyCol().Doc(string(id))
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type historyDoc struct {
	History   string    `firestore:"history"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// ─────────────────────────────────────────
// HistoryStore implementation
// ─────────────────────────────────────────

func (s *Store) GetHistory(ctx context.Context, id domain.SessionID) (string, bool, error) {
	snap, err := s.historyDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", false, nil
		}
		return "", false, domain.NewStoreError(backend, "get", errors.Wrapf(err, "session %s", id))
	}

	var doc historyDoc
	if err := snap.DataTo(&doc); err != nil {
		return "", false, domain.NewStoreError(backend, "get", errors.Wrap(err, "decode historyDoc"))
	}
	return doc.History, true, nil
}

func (s *Store) PutHistory(ctx context.Context, id domain.SessionID, blob string) (string, error) {
	doc := historyDoc{
		History:   blob,
		UpdatedAt: time.Now().UTC(),
	}

	// Set without merge options overwrites the whole document.
	if _, err := s.historyDoc(id).Set(ctx, doc); err != nil {
		return "", domain.NewStoreError(backend, "put", errors.Wrapf(err, "session %s", id))
	}
	return blob, nil
}

// DescribeTable reads one document of the collection. Firestore collections exist implicitly,
// so any successful read means the table is usable.
func (s *Store) DescribeTable(ctx context.Context, table string) (domain.TableStatus, error) {
	iter := s.client.Collection(table).Limit(1).Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	if err != nil && err != iterator.Done {
		if status.Code(err) == codes.NotFound {
			return domain.TableStatus{Table: table}, nil
		}
		return domain.TableStatus{}, domain.NewStoreError(backend, "describe", err)
	}
	return domain.TableStatus{Table: table, Status: "ACTIVE", Found: true}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
