package llm

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/PabloGalante/gemini-chat/internal/adapters/llm/llmtest"
	"github.com/PabloGalante/gemini-chat/internal/domain"
)

func newTestFactory(t *testing.T, fake *llmtest.FakeGemini) *GeminiFactory {
	t.Helper()

	client, err := NewGenaiClient(context.Background(), ClientOptions{APIKey: "test-key", BaseURL: fake.Start(t)})
	require.NoError(t, err)

	f, err := NewGeminiFactory(client, "", GenerationConfig{})
	require.NoError(t, err)
	return f
}

func TestGeminiChatSeedsHistoryAndRecordsTurn(t *testing.T) {
	fake := llmtest.NewFakeGemini("Hi", " there")
	f := newTestFactory(t, fake)
	ctx := context.Background()

	chat := f.NewChatSession()
	require.True(t, chat.InitChat(ctx, []domain.HistoryRecord{
		domain.NewHistoryRecord(domain.RoleUser, "earlier"),
		domain.NewHistoryRecord(domain.RoleModel, "answer"),
	}))

	var frags []string
	for frag := range chat.SendTurn(ctx, "hello") {
		frags = append(frags, frag)
	}
	require.Equal(t, []string{"Hi", " there"}, frags)
	require.Equal(t, []int{3}, fake.RequestSizes())

	turns, ok := chat.ChatHistory()
	require.True(t, ok)
	require.Len(t, turns, 4)
	require.Equal(t, "user", turns[2].Role)
	require.Equal(t, []string{"hello"}, turns[2].Parts)
	require.Equal(t, "model", turns[3].Role)
	require.Equal(t, []string{"Hi", " there"}, turns[3].Parts)
}

func TestGeminiChatVendorErrorYieldsNothing(t *testing.T) {
	fake := llmtest.NewFakeGemini("unused")
	fake.SetStatus(http.StatusUnauthorized)
	f := newTestFactory(t, fake)
	ctx := context.Background()

	chat := f.NewChatSession()
	require.True(t, chat.InitChat(ctx, nil))

	n := 0
	for range chat.SendTurn(ctx, "hello") {
		n++
	}
	require.Zero(t, n)
	require.Error(t, chat.Err())

	fake.SetStatus(0)
	for range chat.SendTurn(ctx, "again") {
		n++
	}
	require.Equal(t, 1, n)
	require.NoError(t, chat.Err())
}

func TestGeminiChatSkipsUnsupportedRoles(t *testing.T) {
	fake := llmtest.NewFakeGemini("ok")
	f := newTestFactory(t, fake)
	ctx := context.Background()

	chat := f.NewChatSession()
	require.True(t, chat.InitChat(ctx, []domain.HistoryRecord{
		domain.NewHistoryRecord(domain.RoleUser, "a"),
		domain.NewHistoryRecord(domain.Role("function"), "b"),
		domain.NewHistoryRecord(domain.RoleModel, "c"),
	}))

	require.Equal(t, "ok", drain(chat.SendTurn(ctx, "hello")))
	require.NoError(t, chat.Err())
	require.Equal(t, []int{3}, fake.RequestSizes())

	turns, ok := chat.ChatHistory()
	require.True(t, ok)
	require.Len(t, turns, 4)
	require.Equal(t, "model", turns[1].Role)
	require.Equal(t, []string{"c"}, turns[1].Parts)
}

func TestGeminiFactoryWithoutClient(t *testing.T) {
	f, err := NewGeminiFactory(nil, "", GenerationConfig{})
	require.NoError(t, err)

	chat := f.NewChatSession()
	require.False(t, chat.InitChat(context.Background(), nil))
	_, ok := chat.ChatHistory()
	require.False(t, ok)

	_, err = f.Generate(context.Background(), "hello", "")
	require.Error(t, err)
}

func TestGeminiChatWithoutInit(t *testing.T) {
	f := newTestFactory(t, llmtest.NewFakeGemini())
	chat := f.NewChatSession()

	_, ok := chat.ChatHistory()
	require.False(t, ok)
	for range chat.SendTurn(context.Background(), "hello") {
		t.Fatal("unexpected fragment")
	}
	require.Error(t, chat.Err())
}

func TestGeminiGenerate(t *testing.T) {
	f := newTestFactory(t, llmtest.NewFakeGemini("one-shot"))

	out, err := f.Generate(context.Background(), "hello", "be brief")
	require.NoError(t, err)
	require.Equal(t, "one-shot", out)
}

func TestNewGenaiClientRequiresCredentials(t *testing.T) {
	_, err := NewGenaiClient(context.Background(), ClientOptions{})
	require.Error(t, err)

	_, err = NewGenaiClient(context.Background(), ClientOptions{Vertex: true, Project: "p"})
	require.Error(t, err)
}

func TestTurnsFromContentsKeepsPartPositions(t *testing.T) {
	turns := turnsFromContents([]*genai.Content{
		{Role: "model", Parts: []*genai.Part{
			{Text: "a"},
			nil,
			{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte{1}}},
		}},
		nil,
		{Role: "user"},
	})
	require.Equal(t, []domain.Turn{
		{Role: "model", Parts: []string{"a", "", ""}},
		{Role: "user", Parts: []string{}},
	}, turns)
}
