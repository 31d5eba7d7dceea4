// Package llmtest serves a fake Gemini generateContent endpoint for tests.
package llmtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// FakeGemini answers generateContent calls with fixed model parts and
// remembers how many contents each request carried.
type FakeGemini struct {
	mu       sync.Mutex
	parts    []string
	status   int
	contents []int
}

// NewFakeGemini replies with parts until SetStatus is called.
func NewFakeGemini(parts ...string) *FakeGemini {
	return &FakeGemini{parts: parts}
}

// SetStatus makes every later call fail with status, as an invalid API key does.
// Zero restores normal replies.
func (f *FakeGemini) SetStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// Calls reports how many generateContent calls were made.
func (f *FakeGemini) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.contents)
}

// RequestSizes returns the number of contents sent in each call.
func (f *FakeGemini) RequestSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.contents...)
}

// Start serves f until the test ends and returns the base URL for the client.
func (f *FakeGemini) Start(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv.URL + "/"
}

func (f *FakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, ":generateContent") {
		http.NotFound(w, r)
		return
	}

	var req struct {
		Contents []json.RawMessage `json:"contents"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.contents = append(f.contents, len(req.Contents))
	status, parts := f.status, f.parts
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"API key not valid","status":"UNAUTHENTICATED"}}`))
		return
	}

	type part struct {
		Text string `json:"text"`
	}
	out := make([]part, 0, len(parts))
	for _, p := range parts {
		out = append(out, part{Text: p})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": []any{map[string]any{
			"content":      map[string]any{"role": "model", "parts": out},
			"finishReason": "STOP",
		}},
	})
}
