package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/PabloGalante/gemini-chat/internal/domain"
)

// ErrNotFound means the session has no stored history.
var ErrNotFound = errors.New("history not found")

// Service holds the read side of stored histories
type Service struct {
	store domain.HistoryStore
	table string
}

// NewService creates a history service over the table the store writes to
func NewService(store domain.HistoryStore, table string) *Service {
	return &Service{
		store: store,
		table: table,
	}
}

func (s *Service) Table() string {
	return s.table
}

// GetSessionHistory returns the stored records of a session, oldest first.
func (s *Service) GetSessionHistory(ctx context.Context, id domain.SessionID) ([]domain.HistoryRecord, error) {
	blob, found, err := s.store.GetHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get history %s: %w", id, err)
	}
	if !found {
		return nil, ErrNotFound
	}

	records, err := domain.DecodeHistory(blob)
	if err != nil {
		return nil, fmt.Errorf("get history %s: %w", id, err)
	}
	return records, nil
}

// DescribeTable reports the status of the configured table.
func (s *Service) DescribeTable(ctx context.Context) (domain.TableStatus, error) {
	return s.store.DescribeTable(ctx, s.table)
}
