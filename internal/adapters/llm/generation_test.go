package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestGenerationConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     GenerationConfig
		wantErr bool
	}{
		{name: "empty", cfg: GenerationConfig{}},
		{name: "typical", cfg: GenerationConfig{Temperature: ptr(float32(0.7)), TopP: ptr(float32(0.9)), MaxOutputTokens: ptr(int32(8192))}},
		{name: "temperature too high", cfg: GenerationConfig{Temperature: ptr(float32(2.5))}, wantErr: true},
		{name: "top_p above one", cfg: GenerationConfig{TopP: ptr(float32(1.1))}, wantErr: true},
		{name: "zero candidates", cfg: GenerationConfig{CandidateCount: ptr(int32(0))}, wantErr: true},
		{name: "empty stop sequence", cfg: GenerationConfig{StopSequences: []string{"END", ""}}, wantErr: true},
		{name: "unknown mime type", cfg: GenerationConfig{ResponseMIMEType: "text/html"}, wantErr: true},
		{name: "schema without json mime", cfg: GenerationConfig{ResponseSchema: `{"type":"STRING"}`}, wantErr: true},
		{name: "schema not json", cfg: GenerationConfig{ResponseMIMEType: "application/json", ResponseSchema: `{`}, wantErr: true},
		{name: "schema", cfg: GenerationConfig{ResponseMIMEType: "application/json", ResponseSchema: `{"type":"OBJECT","properties":{"answer":{"type":"STRING"}}}`}},
		{name: "penalty out of range", cfg: GenerationConfig{PresencePenalty: ptr(float32(2))}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGenerationConfigToGenai(t *testing.T) {
	cfg := GenerationConfig{
		CandidateCount:   ptr(int32(1)),
		MaxOutputTokens:  ptr(int32(256)),
		Temperature:      ptr(float32(0.2)),
		StopSequences:    []string{"END"},
		ResponseMIMEType: "application/json",
		ResponseSchema:   `{"type":"OBJECT","properties":{"answer":{"type":"STRING"}}}`,
	}

	out, err := cfg.toGenai("be brief")
	require.NoError(t, err)
	require.Equal(t, int32(1), out.CandidateCount)
	require.Equal(t, int32(256), out.MaxOutputTokens)
	require.Equal(t, float32(0.2), *out.Temperature)
	require.Nil(t, out.TopP)
	require.Equal(t, []string{"END"}, out.StopSequences)
	require.NotNil(t, out.ResponseSchema)
	require.Contains(t, out.ResponseSchema.Properties, "answer")
	require.NotNil(t, out.SystemInstruction)
	require.Equal(t, "be brief", out.SystemInstruction.Parts[0].Text)

	out, err = GenerationConfig{}.toGenai("")
	require.NoError(t, err)
	require.Nil(t, out.SystemInstruction)
	require.Nil(t, out.ResponseSchema)
}
