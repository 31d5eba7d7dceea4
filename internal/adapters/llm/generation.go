package llm

import (
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// GenerationConfig lists the generation options forwarded to the model.
// Every field is optional; nil or empty means the model default.
type GenerationConfig struct {
	CandidateCount   *int32   `mapstructure:"candidate_count"`
	StopSequences    []string `mapstructure:"stop_sequences"`
	MaxOutputTokens  *int32   `mapstructure:"max_output_tokens"`
	Temperature      *float32 `mapstructure:"temperature"`
	TopP             *float32 `mapstructure:"top_p"`
	TopK             *float32 `mapstructure:"top_k"`
	ResponseMIMEType string   `mapstructure:"response_mime_type"`
	// ResponseSchema is an OpenAPI schema object as JSON. Requires an
	// application/json ResponseMIMEType.
	ResponseSchema   string   `mapstructure:"response_schema"`
	PresencePenalty  *float32 `mapstructure:"presence_penalty"`
	FrequencyPenalty *float32 `mapstructure:"frequency_penalty"`
}

var supportedMIMETypes = map[string]bool{
	"text/plain":       true,
	"application/json": true,
	"text/x.enum":      true,
}

// Validate reports the first option outside the range the API accepts.
func (c GenerationConfig) Validate() error {
	if c.CandidateCount != nil && *c.CandidateCount < 1 {
		return fmt.Errorf("candidate_count must be >= 1, got %d", *c.CandidateCount)
	}
	if c.MaxOutputTokens != nil && *c.MaxOutputTokens < 1 {
		return fmt.Errorf("max_output_tokens must be >= 1, got %d", *c.MaxOutputTokens)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be in [0, 2], got %g", *c.Temperature)
	}
	if c.TopP != nil && (*c.TopP < 0 || *c.TopP > 1) {
		return fmt.Errorf("top_p must be in [0, 1], got %g", *c.TopP)
	}
	if c.TopK != nil && *c.TopK < 1 {
		return fmt.Errorf("top_k must be >= 1, got %g", *c.TopK)
	}
	if c.PresencePenalty != nil && (*c.PresencePenalty < -2 || *c.PresencePenalty >= 2) {
		return fmt.Errorf("presence_penalty must be in [-2, 2), got %g", *c.PresencePenalty)
	}
	if c.FrequencyPenalty != nil && (*c.FrequencyPenalty < -2 || *c.FrequencyPenalty >= 2) {
		return fmt.Errorf("frequency_penalty must be in [-2, 2), got %g", *c.FrequencyPenalty)
	}
	for i, s := range c.StopSequences {
		if s == "" {
			return fmt.Errorf("stop_sequences[%d] is empty", i)
		}
	}
	if c.ResponseMIMEType != "" && !supportedMIMETypes[c.ResponseMIMEType] {
		return fmt.Errorf("unsupported response_mime_type %q", c.ResponseMIMEType)
	}
	if c.ResponseSchema != "" {
		if c.ResponseMIMEType != "application/json" && c.ResponseMIMEType != "text/x.enum" {
			return fmt.Errorf("response_schema requires response_mime_type application/json or text/x.enum")
		}
		if _, err := c.schema(); err != nil {
			return err
		}
	}
	return nil
}

func (c GenerationConfig) schema() (*genai.Schema, error) {
	if c.ResponseSchema == "" {
		return nil, nil
	}
	var s genai.Schema
	if err := json.Unmarshal([]byte(c.ResponseSchema), &s); err != nil {
		return nil, fmt.Errorf("response_schema is not a valid schema: %w", err)
	}
	return &s, nil
}

// toGenai builds the request config. Callers validate first.
func (c GenerationConfig) toGenai(systemInstruction string) (*genai.GenerateContentConfig, error) {
	schema, err := c.schema()
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{
		StopSequences:    c.StopSequences,
		Temperature:      c.Temperature,
		TopP:             c.TopP,
		TopK:             c.TopK,
		ResponseMIMEType: c.ResponseMIMEType,
		ResponseSchema:   schema,
		PresencePenalty:  c.PresencePenalty,
		FrequencyPenalty: c.FrequencyPenalty,
	}
	if c.CandidateCount != nil {
		cfg.CandidateCount = *c.CandidateCount
	}
	if c.MaxOutputTokens != nil {
		cfg.MaxOutputTokens = *c.MaxOutputTokens
	}
	if systemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}
	return cfg, nil
}
