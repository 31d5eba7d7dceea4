package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PabloGalante/gemini-chat/internal/domain"
	"github.com/PabloGalante/gemini-chat/internal/observability"
)

var (
	// ErrInvalidInput is returned before any work when the prompt or session id is empty.
	ErrInvalidInput = errors.New("prompt and session_id are required")
	// ErrChatInit means no chat context could be created; nothing was persisted.
	ErrChatInit = errors.New("failed to initialize chat")
	// ErrNoReply means the model call failed, e.g. on bad credentials; nothing was persisted.
	ErrNoReply = errors.New("model did not reply")
)

// Service runs one chat request at a time per call. It keeps no session
// state between calls: every Chat reloads history from the store.
type Service struct {
	store  domain.HistoryStore
	chats  domain.ChatSessionFactory
	locker domain.SessionLocker
	now    func() time.Time
}

// NewService builds the orchestrator. locker serializes requests that share a
// session id; with a lock that never blocks, concurrent requests for one
// session race and the last write wins.
func NewService(store domain.HistoryStore, chats domain.ChatSessionFactory, locker domain.SessionLocker) *Service {
	return &Service{
		store:  store,
		chats:  chats,
		locker: locker,
		now:    time.Now,
	}
}

type ChatInput struct {
	SessionID domain.SessionID
	Prompt    string
}

type ChatOutput struct {
	SessionID domain.SessionID
	Role      domain.Role
	Response  string
	// Persisted is false when the new history could not be written.
	Persisted bool
}

// Chat loads the session history, sends one turn and writes the whole updated
// history back. Read and write failures of the store degrade the request
// instead of failing it; validation, chat initialization and a failed model
// call are fatal and leave the store untouched.
func (s *Service) Chat(ctx context.Context, in ChatInput) (*ChatOutput, error) {
	if strings.TrimSpace(string(in.SessionID)) == "" || strings.TrimSpace(in.Prompt) == "" {
		return nil, ErrInvalidInput
	}

	log := observability.LoggerFromContext(ctx).With("session_id", in.SessionID)

	unlock, err := s.locker.Lock(ctx, in.SessionID)
	if err != nil {
		log.Error("failed to lock session", "error", err)
		return nil, err
	}
	defer unlock()

	r := &run{log: log, now: s.now, state: StateLoadingHistory, start: s.now()}

	prior := s.loadHistory(ctx, r, in.SessionID)

	r.enter(StateInitializingChat)
	chat := s.chats.NewChatSession()
	if !chat.InitChat(ctx, prior) {
		r.fail("chat initialization failed")
		return nil, ErrChatInit
	}

	r.enter(StateAwaitingReply)
	var reply strings.Builder
	for frag := range chat.SendTurn(ctx, in.Prompt) {
		reply.WriteString(frag)
	}
	if err := chat.Err(); err != nil {
		r.fail("model call failed")
		return nil, fmt.Errorf("%w: %w", ErrNoReply, err)
	}
	if reply.Len() == 0 {
		log.Warn("model reply is empty")
	}

	r.enter(StatePersistingHistory)
	persisted := s.persistHistory(ctx, r, in.SessionID, chat)

	r.enter(StateDone)
	return &ChatOutput{
		SessionID: in.SessionID,
		Role:      domain.RoleModel,
		Response:  stripBackslashes(reply.String()),
		Persisted: persisted,
	}, nil
}

// loadHistory never fails: an absent, unreadable or undecodable history is
// treated as a new conversation.
func (s *Service) loadHistory(ctx context.Context, r *run, id domain.SessionID) []domain.HistoryRecord {
	blob, found, err := s.store.GetHistory(ctx, id)
	if err != nil {
		r.log.Warn("history read failed, continuing without history", "error", err)
		return nil
	}
	if !found {
		r.log.Info("no history for session")
		return nil
	}

	prior, err := domain.DecodeHistory(blob)
	if err != nil {
		r.log.Warn("stored history is malformed, continuing without history", "error", err)
		return nil
	}
	r.log.Debug("history loaded", "records", len(prior))
	return prior
}

func (s *Service) persistHistory(ctx context.Context, r *run, id domain.SessionID, chat domain.ChatSession) bool {
	turns, ok := chat.ChatHistory()
	if !ok {
		r.log.Warn("no chat history to persist")
		return false
	}

	records, dropped := NormalizeTurns(turns)
	if dropped > 0 {
		r.log.Debug("multi-part turns truncated to their first part", "dropped_parts", dropped)
	}

	blob, err := domain.EncodeHistory(records)
	if err != nil {
		r.log.Error("failed to encode history", "error", err)
		return false
	}

	if _, err := s.store.PutHistory(ctx, id, blob); err != nil {
		r.log.Error("failed to persist history", "error", err)
		return false
	}
	r.log.Debug("history persisted", "records", len(records))
	return true
}

// run tracks the state of one Chat call and logs each transition with the
// time spent in the previous state.
type run struct {
	log   *slog.Logger
	now   func() time.Time
	state State
	start time.Time
}

func (r *run) enter(next State) {
	t := r.now()
	r.log.Info("chat state",
		"from", r.state.String(),
		"to", next.String(),
		"elapsed_ms", t.Sub(r.start).Milliseconds(),
	)
	r.state = next
	r.start = t
}

func (r *run) fail(reason string) {
	from := r.state
	r.enter(StateFailed)
	r.log.Error("chat failed", "state", from.String(), "reason", reason)
}
