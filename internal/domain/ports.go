package domain

import (
	"context"
	"iter"
)

// HistoryStore persists the serialized history of each session.
// Backend failures are always returned as *StoreError.
type HistoryStore interface {
	// GetHistory returns the stored blob. found is false, with a nil error,
	// when the session has no record.
	GetHistory(ctx context.Context, id SessionID) (blob string, found bool, err error)

	// PutHistory replaces the whole stored value and returns what is now stored.
	PutHistory(ctx context.Context, id SessionID, blob string) (string, error)

	// DescribeTable reports whether the backing resource exists.
	// A missing resource is TableStatus{Found: false} and a nil error.
	DescribeTable(ctx context.Context, table string) (TableStatus, error)

	Close() error
}

// ChatSession is a session-scoped chat context built on a stateless LLM.
// Failures are logged and reported as false or an empty sequence; Err tells
// a failed send apart from an empty reply.
type ChatSession interface {
	// InitChat discards any previous context and seeds a new one with prior.
	InitChat(ctx context.Context, prior []HistoryRecord) bool

	// SendTurn sends one user turn. The returned sequence yields the reply
	// fragments in order and can be consumed once.
	SendTurn(ctx context.Context, prompt string) iter.Seq[string]

	// Err reports why the last SendTurn produced no reply. It is nil after a
	// successful send, even one with an empty reply.
	Err() error

	// ChatHistory returns the context's turns, or false if there is no context.
	ChatHistory() ([]Turn, bool)
}

// ChatSessionFactory hands out a fresh ChatSession per request.
type ChatSessionFactory interface {
	NewChatSession() ChatSession
}

// Generator produces a single completion with no conversation state.
type Generator interface {
	Generate(ctx context.Context, prompt, systemInstruction string) (string, error)
}

// SessionLocker serializes work on a single session.
// The returned unlock func must be called exactly once.
type SessionLocker interface {
	Lock(ctx context.Context, id SessionID) (unlock func(), err error)
}
