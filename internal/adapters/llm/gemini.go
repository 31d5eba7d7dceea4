package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/PabloGalante/gemini-chat/internal/domain"
	"github.com/PabloGalante/gemini-chat/internal/observability"
)

const DefaultModel = "gemini-2.0-flash"

// ClientOptions selects the Gemini backend. APIKey is used with the Gemini API;
// Project and Location with Vertex AI.
type ClientOptions struct {
	Vertex   bool
	APIKey   string
	Project  string
	Location string
	BaseURL  string
}

// NewGenaiClient creates the shared client. It is safe for concurrent use.
func NewGenaiClient(ctx context.Context, opts ClientOptions) (*genai.Client, error) {
	cc := &genai.ClientConfig{}
	if opts.Vertex {
		if opts.Project == "" || opts.Location == "" {
			return nil, fmt.Errorf("project and location must be set for the vertex backend")
		}
		cc.Backend = genai.BackendVertexAI
		cc.Project = opts.Project
		cc.Location = opts.Location
	} else {
		if opts.APIKey == "" {
			return nil, fmt.Errorf("an API key must be set for the gemini backend")
		}
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = opts.APIKey
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return client, nil
}

// GeminiFactory hands out one GeminiChat per request over a shared client.
type GeminiFactory struct {
	client    *genai.Client
	modelName string
	gen       GenerationConfig
}

var (
	_ domain.ChatSessionFactory = (*GeminiFactory)(nil)
	_ domain.Generator          = (*GeminiFactory)(nil)
)

// NewGeminiFactory accepts a nil client. Every chat then fails to initialize,
// which lets the process start without credentials and fail per request.
func NewGeminiFactory(client *genai.Client, modelName string, gen GenerationConfig) (*GeminiFactory, error) {
	if modelName == "" {
		modelName = DefaultModel
	}
	if err := gen.Validate(); err != nil {
		return nil, fmt.Errorf("generation config: %w", err)
	}
	return &GeminiFactory{client: client, modelName: modelName, gen: gen}, nil
}

func (f *GeminiFactory) NewChatSession() domain.ChatSession {
	return &GeminiChat{factory: f}
}

// Generate implements domain.Generator using a one-shot GenerateContent call.
func (f *GeminiFactory) Generate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("empty prompt")
	}
	if f.client == nil {
		return "", errors.New("gemini client is not configured")
	}

	cfg, err := f.gen.toGenai(systemInstruction)
	if err != nil {
		return "", err
	}

	res, err := f.client.Models.GenerateContent(ctx, f.modelName, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text")
	}
	return text, nil
}

// GeminiChat is a domain.ChatSession backed by a genai.Chat.
// It belongs to a single request and is not safe for concurrent use.
type GeminiChat struct {
	factory *GeminiFactory
	chat    *genai.Chat
	err     error
}

var _ domain.ChatSession = (*GeminiChat)(nil)

func (c *GeminiChat) InitChat(ctx context.Context, prior []domain.HistoryRecord) bool {
	log := observability.LoggerFromContext(ctx).With("model", c.factory.modelName)

	// a failed init must not leave the previous context usable
	c.chat = nil
	c.err = nil

	if c.factory.client == nil {
		log.Error("gemini client is not configured")
		return false
	}

	cfg, err := c.factory.gen.toGenai("")
	if err != nil {
		log.Error("invalid generation config", "error", err)
		return false
	}

	history := make([]*genai.Content, 0, len(prior))
	skipped := 0
	for _, r := range prior {
		// the chat API only accepts user and model turns
		if r.Role() != domain.RoleUser && r.Role() != domain.RoleModel {
			skipped++
			continue
		}
		history = append(history, genai.NewContentFromText(r.Text(), genai.Role(r.Role())))
	}
	if skipped > 0 {
		log.Warn("skipped history records with unsupported roles", "skipped", skipped)
	}

	chat, err := c.factory.client.Chats.Create(ctx, c.factory.modelName, cfg, history)
	if err != nil {
		log.Error("failed to create chat", "error", err, "history_len", len(history))
		return false
	}

	if len(history) > 0 {
		log.Debug("init chat with history", "history_len", len(history))
	} else {
		log.Debug("init chat without history")
	}

	c.chat = chat
	return true
}

// SendTurn sends prompt when the sequence is first ranged over and yields the
// text of each part of the first candidate. The chat records the turn as one
// user content and one model content, which keeps ChatHistory one entry per turn.
func (c *GeminiChat) SendTurn(ctx context.Context, prompt string) iter.Seq[string] {
	return func(yield func(string) bool) {
		log := observability.LoggerFromContext(ctx)
		c.err = nil
		if c.chat == nil {
			c.err = errors.New("chat is not initialized")
			log.Error("send turn without an initialized chat")
			return
		}

		res, err := c.chat.SendMessage(ctx, genai.Part{Text: prompt})
		if err != nil {
			c.err = fmt.Errorf("gemini send message: %w", err)
			log.Error("gemini send message failed", "error", err)
			return
		}
		if len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
			c.err = errors.New("gemini returned no candidates")
			log.Warn("gemini returned no candidates")
			return
		}

		for _, p := range res.Candidates[0].Content.Parts {
			if p == nil || p.Text == "" || p.Thought {
				continue
			}
			if !yield(p.Text) {
				return
			}
		}
	}
}

func (c *GeminiChat) Err() error {
	return c.err
}

func (c *GeminiChat) ChatHistory() ([]domain.Turn, bool) {
	if c.chat == nil {
		return nil, false
	}
	return turnsFromContents(c.chat.History(false)), true
}

func turnsFromContents(contents []*genai.Content) []domain.Turn {
	turns := make([]domain.Turn, 0, len(contents))
	for _, content := range contents {
		if content == nil {
			continue
		}
		t := domain.Turn{Role: content.Role, Parts: make([]string, 0, len(content.Parts))}
		for _, p := range content.Parts {
			if p == nil {
				t.Parts = append(t.Parts, "")
				continue
			}
			t.Parts = append(t.Parts, p.Text)
		}
		turns = append(turns, t)
	}
	return turns
}
