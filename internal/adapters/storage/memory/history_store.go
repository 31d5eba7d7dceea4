package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/gemini-chat/internal/domain"
)

// HistoryStore is an in-memory domain.HistoryStore.
// It is NOT persistent and is only suitable for development / local mode.
type HistoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[domain.SessionID]string
	table  string
}

var _ domain.HistoryStore = (*HistoryStore)(nil)

// NewHistoryStore creates a store whose only provisioned table is table.
func NewHistoryStore(table string) *HistoryStore {
	return &HistoryStore{
		tables: map[string]map[domain.SessionID]string{
			table: make(map[domain.SessionID]string),
		},
		table: table,
	}
}

func (s *HistoryStore) GetHistory(_ context.Context, id domain.SessionID) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.tables[s.table][id]
	return blob, ok, nil
}

func (s *HistoryStore) PutHistory(_ context.Context, id domain.SessionID, blob string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables[s.table][id] = blob
	return blob, nil
}

func (s *HistoryStore) DescribeTable(_ context.Context, table string) (domain.TableStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.tables[table]; !ok {
		return domain.TableStatus{Table: table}, nil
	}
	return domain.TableStatus{Table: table, Status: "ACTIVE", Found: true}, nil
}

func (s *HistoryStore) Close() error { return nil }
