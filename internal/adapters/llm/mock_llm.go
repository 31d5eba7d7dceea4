package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/PabloGalante/gemini-chat/internal/domain"
)

// MockLLM is a deterministic stand-in for Gemini, used in local mode and tests.
type MockLLM struct {
	// Fragments returns the reply fragments for a prompt. Defaults to an echo.
	Fragments func(prompt string) []string
	// FailInit makes InitChat report failure.
	FailInit bool
	// FailSend makes every SendTurn yield nothing and set Err.
	FailSend bool
	// DropHistory makes ChatHistory report no context.
	DropHistory bool

	mu       sync.Mutex
	sessions int
}

var (
	_ domain.ChatSessionFactory = (*MockLLM)(nil)
	_ domain.Generator          = (*MockLLM)(nil)
)

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

// NewScriptedLLM always replies with fragments.
func NewScriptedLLM(fragments ...string) *MockLLM {
	return &MockLLM{Fragments: func(string) []string { return fragments }}
}

func (m *MockLLM) NewChatSession() domain.ChatSession {
	m.mu.Lock()
	m.sessions++
	m.mu.Unlock()
	return &mockChat{llm: m}
}

// Sessions reports how many chat sessions were handed out.
func (m *MockLLM) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions
}

func (m *MockLLM) Generate(_ context.Context, prompt, systemInstruction string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("empty prompt")
	}
	return strings.Join(m.fragments(prompt), ""), nil
}

func (m *MockLLM) fragments(prompt string) []string {
	if m.Fragments != nil {
		return m.Fragments(prompt)
	}
	return []string{"I hear you. ", fmt.Sprintf("You said %q.", prompt)}
}

type mockChat struct {
	llm     *MockLLM
	history []domain.Turn
	active  bool
	err     error
}

var errMockSend = errors.New("mock llm: send failed")

func (c *mockChat) InitChat(_ context.Context, prior []domain.HistoryRecord) bool {
	c.history = nil
	c.active = false
	c.err = nil
	if c.llm.FailInit {
		return false
	}
	for _, r := range prior {
		c.history = append(c.history, domain.Turn{Role: string(r.Role()), Parts: []string{r.Text()}})
	}
	c.active = true
	return true
}

func (c *mockChat) SendTurn(_ context.Context, prompt string) iter.Seq[string] {
	return func(yield func(string) bool) {
		c.err = nil
		if !c.active {
			c.err = errors.New("mock llm: chat is not initialized")
			return
		}
		if c.llm.FailSend {
			c.err = errMockSend
			return
		}
		frags := c.llm.fragments(prompt)

		// like the real chat, the turn is recorded only once the reply is fully read
		var reply strings.Builder
		for _, f := range frags {
			if !yield(f) {
				return
			}
			reply.WriteString(f)
		}
		c.history = append(c.history,
			domain.Turn{Role: string(domain.RoleUser), Parts: []string{prompt}},
			domain.Turn{Role: string(domain.RoleModel), Parts: []string{reply.String()}},
		)
	}
}

func (c *mockChat) Err() error {
	return c.err
}

func (c *mockChat) ChatHistory() ([]domain.Turn, bool) {
	if !c.active || c.llm.DropHistory {
		return nil, false
	}
	out := make([]domain.Turn, len(c.history))
	copy(out, c.history)
	return out, true
}
