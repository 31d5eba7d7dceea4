package conversation_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/gemini-chat/internal/adapters/llm"
	"github.com/PabloGalante/gemini-chat/internal/adapters/llm/llmtest"
	"github.com/PabloGalante/gemini-chat/internal/adapters/lock"
	"github.com/PabloGalante/gemini-chat/internal/adapters/storage/memory"
	"github.com/PabloGalante/gemini-chat/internal/app/conversation"
	"github.com/PabloGalante/gemini-chat/internal/domain"
)

const table = "ChatHistory"

// flakyStore wraps a memory store and fails reads or writes on demand.
type flakyStore struct {
	*memory.HistoryStore
	getErr error
	putErr error
	puts   int
}

func (s *flakyStore) GetHistory(ctx context.Context, id domain.SessionID) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	return s.HistoryStore.GetHistory(ctx, id)
}

func (s *flakyStore) PutHistory(ctx context.Context, id domain.SessionID, blob string) (string, error) {
	s.puts++
	if s.putErr != nil {
		return "", s.putErr
	}
	return s.HistoryStore.PutHistory(ctx, id, blob)
}

func newStore() *flakyStore {
	return &flakyStore{HistoryStore: memory.NewHistoryStore(table)}
}

func TestChatNewSessionPersistsBothTurns(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	svc := conversation.NewService(store, llm.NewScriptedLLM("Hi", " there"), lock.Noop{})

	out, err := svc.Chat(ctx, conversation.ChatInput{SessionID: "s1", Prompt: "hello"})
	require.NoError(t, err)
	require.Equal(t, domain.RoleModel, out.Role)
	require.Equal(t, "Hi there", out.Response)
	require.True(t, out.Persisted)

	blob, found, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `[{"role":"user","parts":"hello"},{"role":"model","parts":"Hi there"}]`, blob)
}

func TestChatContinuesStoredHistory(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	_, err := store.PutHistory(ctx, "s1",
		`[{"role":"user","parts":"hello"},{"role":"model","parts":"Hi there"}]`)
	require.NoError(t, err)

	svc := conversation.NewService(store, llm.NewScriptedLLM("Fine"), lock.Noop{})
	out, err := svc.Chat(ctx, conversation.ChatInput{SessionID: "s1", Prompt: "how are you"})
	require.NoError(t, err)
	require.Equal(t, "Fine", out.Response)

	blob, _, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	records, err := domain.DecodeHistory(blob)
	require.NoError(t, err)
	require.Len(t, records, 4)
	require.Equal(t, "hello", records[0].Text())
	require.Equal(t, "how are you", records[2].Text())
	require.Equal(t, domain.RoleModel, records[3].Role())
	require.Equal(t, "Fine", records[3].Text())
}

func TestChatInitFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	model := llm.NewScriptedLLM("never")
	model.FailInit = true

	svc := conversation.NewService(store, model, lock.Noop{})
	_, err := svc.Chat(ctx, conversation.ChatInput{SessionID: "s1", Prompt: "hello"})
	require.ErrorIs(t, err, conversation.ErrChatInit)
	require.Zero(t, store.puts)

	_, found, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestChatFailedSendWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	_, err := store.PutHistory(ctx, "s1", `[{"role":"user","parts":"a"},{"role":"model","parts":"b"}]`)
	require.NoError(t, err)
	store.puts = 0

	model := llm.NewScriptedLLM("never")
	model.FailSend = true

	svc := conversation.NewService(store, model, lock.Noop{})
	_, err = svc.Chat(ctx, conversation.ChatInput{SessionID: "s1", Prompt: "hello"})
	require.ErrorIs(t, err, conversation.ErrNoReply)
	require.Zero(t, store.puts)

	blob, _, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	require.JSONEq(t, `[{"role":"user","parts":"a"},{"role":"model","parts":"b"}]`, blob)
}

func newGemini(t *testing.T, fake *llmtest.FakeGemini) *llm.GeminiFactory {
	t.Helper()

	client, err := llm.NewGenaiClient(context.Background(), llm.ClientOptions{APIKey: "test-key", BaseURL: fake.Start(t)})
	require.NoError(t, err)
	f, err := llm.NewGeminiFactory(client, "", llm.GenerationConfig{})
	require.NoError(t, err)
	return f
}

func TestChatWithGeminiRejectedKeyWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	fake := llmtest.NewFakeGemini("unused")
	fake.SetStatus(http.StatusUnauthorized)

	svc := conversation.NewService(store, newGemini(t, fake), lock.Noop{})
	_, err := svc.Chat(ctx, conversation.ChatInput{SessionID: "s1", Prompt: "hello"})
	require.ErrorIs(t, err, conversation.ErrNoReply)
	require.NotZero(t, fake.Calls())
	require.Zero(t, store.puts)

	_, found, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestChatWithGeminiDropsUnsupportedRoles(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	_, err := store.PutHistory(ctx, "s2", `[{"role":"user","parts":"a"},{"role":"function","parts":"b"}]`)
	require.NoError(t, err)

	svc := conversation.NewService(store, newGemini(t, llmtest.NewFakeGemini("fine")), lock.Noop{})
	for range 2 {
		out, err := svc.Chat(ctx, conversation.ChatInput{SessionID: "s2", Prompt: "hello"})
		require.NoError(t, err)
		require.Equal(t, "fine", out.Response)
		require.True(t, out.Persisted)
	}

	blob, _, err := store.GetHistory(ctx, "s2")
	require.NoError(t, err)
	require.JSONEq(t, `[
		{"role":"user","parts":"a"},
		{"role":"user","parts":"hello"},
		{"role":"model","parts":"fine"},
		{"role":"user","parts":"hello"},
		{"role":"model","parts":"fine"}
	]`, blob)
}

func TestChatStripsBackslashesFromReplyOnly(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	svc := conversation.NewService(store, llm.NewScriptedLLM(`a\b`, `\n`), lock.Noop{})

	out, err := svc.Chat(ctx, conversation.ChatInput{SessionID: "s1", Prompt: "x"})
	require.NoError(t, err)
	require.Equal(t, "abn", out.Response)

	blob, _, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	records, err := domain.DecodeHistory(blob)
	require.NoError(t, err)
	require.Equal(t, `a\b\n`, records[1].Text())
}

func TestChatReadFailureStartsFresh(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	store.getErr = errors.New("timeout")

	svc := conversation.NewService(store, llm.NewScriptedLLM("ok"), lock.Noop{})
	out, err := svc.Chat(ctx, conversation.ChatInput{SessionID: "s1", Prompt: "hello"})
	require.NoError(t, err)
	require.Equal(t, "ok", out.Response)
	require.True(t, out.Persisted)

	store.getErr = nil
	blob, _, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	records, err := domain.DecodeHistory(blob)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestChatMalformedHistoryStartsFresh(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	_, err := store.PutHistory(ctx, "s1", "not json")
	require.NoError(t, err)

	svc := conversation.NewService(store, llm.NewScriptedLLM("ok"), lock.Noop{})
	out, err := svc.Chat(ctx, conversation.ChatInput{SessionID: "s1", Prompt: "hello"})
	require.NoError(t, err)
	require.Equal(t, "ok", out.Response)

	blob, _, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	records, err := domain.DecodeHistory(blob)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestChatWriteFailureStillReturnsReply(t *testing.T) {
	store := newStore()
	store.putErr = errors.New("throttled")

	svc := conversation.NewService(store, llm.NewScriptedLLM("ok"), lock.Noop{})
	out, err := svc.Chat(context.Background(), conversation.ChatInput{SessionID: "s1", Prompt: "hello"})
	require.NoError(t, err)
	require.Equal(t, "ok", out.Response)
	require.False(t, out.Persisted)
	require.Equal(t, 1, store.puts)
}

func TestChatSkipsWriteWithoutChatContext(t *testing.T) {
	store := newStore()
	model := llm.NewScriptedLLM("ok")
	model.DropHistory = true

	svc := conversation.NewService(store, model, lock.Noop{})
	out, err := svc.Chat(context.Background(), conversation.ChatInput{SessionID: "s1", Prompt: "hello"})
	require.NoError(t, err)
	require.Equal(t, "ok", out.Response)
	require.False(t, out.Persisted)
	require.Zero(t, store.puts)
}

func TestChatEmptyReplyIsNotAnError(t *testing.T) {
	store := newStore()
	svc := conversation.NewService(store, llm.NewScriptedLLM(), lock.Noop{})

	out, err := svc.Chat(context.Background(), conversation.ChatInput{SessionID: "s1", Prompt: "hello"})
	require.NoError(t, err)
	require.Empty(t, out.Response)
	require.True(t, out.Persisted)
}

func TestChatRejectsEmptyInput(t *testing.T) {
	store := newStore()
	model := llm.NewScriptedLLM("ok")
	svc := conversation.NewService(store, model, lock.Noop{})

	for _, in := range []conversation.ChatInput{
		{SessionID: "", Prompt: "hello"},
		{SessionID: "s1", Prompt: "   "},
	} {
		_, err := svc.Chat(context.Background(), in)
		require.ErrorIs(t, err, conversation.ErrInvalidInput)
	}
	require.Zero(t, model.Sessions())
	require.Zero(t, store.puts)
}

func TestChatWithLockerKeepsEveryTurn(t *testing.T) {
	ctx := context.Background()
	store := memory.NewHistoryStore(table)
	svc := conversation.NewService(store, llm.NewScriptedLLM("ok"), lock.NewLocalLocker())

	const n = 8
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Chat(ctx, conversation.ChatInput{SessionID: "s1", Prompt: "hello"}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	blob, _, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	records, err := domain.DecodeHistory(blob)
	require.NoError(t, err)
	require.Len(t, records, 2*n)
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, domain.SessionID) (func(), error) {
	return nil, errors.New("lock busy")
}

func TestChatLockFailureAborts(t *testing.T) {
	store := newStore()
	model := llm.NewScriptedLLM("ok")
	svc := conversation.NewService(store, model, failingLocker{})

	_, err := svc.Chat(context.Background(), conversation.ChatInput{SessionID: "s1", Prompt: "hello"})
	require.Error(t, err)
	require.Zero(t, model.Sessions())
}

func TestNormalizeTurnsKeepsFirstPart(t *testing.T) {
	records, dropped := conversation.NormalizeTurns([]domain.Turn{
		{Role: "user", Parts: []string{"a", "b", "c"}},
		{Role: "model"},
	})
	require.Equal(t, 2, dropped)
	require.Len(t, records, 2)
	require.Equal(t, "a", records[0].Text())
	require.Equal(t, domain.RoleModel, records[1].Role())
	require.Empty(t, records[1].Text())
}

func TestStateNames(t *testing.T) {
	require.Equal(t, "loading_history", conversation.StateLoadingHistory.String())
	require.Equal(t, "failed", conversation.StateFailed.String())
}
