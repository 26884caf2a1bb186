package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func geminiReply(t *testing.T, text string) string {
	t.Helper()
	payload := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{"parts": []any{map[string]any{"text": text}}},
			},
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode reply: %v", err)
	}
	return string(encoded)
}

func TestChatOneShotPersistsTranscript(t *testing.T) {
	var contentCounts []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Contents []json.RawMessage `json:"contents"`
		}
		_ = json.Unmarshal(body, &req)
		contentCounts = append(contentCounts, len(req.Contents))
		io.WriteString(w, geminiReply(t, "Rest and drink fluids."))
	}))
	defer server.Close()

	env := setupCLITestEnv(t, server.URL)

	out, _, err := runCLI(t, []string{"chat", "I have a headache"}, env.configPath)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	requireContains(t, out, "Rest and drink fluids.")

	// Second invocation sees the persisted exchange as context.
	if _, _, err := runCLI(t, []string{"chat", "Still hurting"}, env.configPath); err != nil {
		t.Fatalf("second chat: %v", err)
	}
	if len(contentCounts) != 2 || contentCounts[0] != 1 || contentCounts[1] != 3 {
		t.Fatalf("expected content counts [1 3], got %v", contentCounts)
	}
}

func TestChatFallbackWhenUnreachable(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	env := setupCLITestEnv(t, server.URL)

	out, _, err := runCLI(t, []string{"chat", "hello"}, env.configPath)
	if err != nil {
		t.Fatalf("chat should degrade to fallback, got error: %v", err)
	}
	requireContains(t, out, "try again in a moment")
	if calls != 1 {
		t.Fatalf("4xx is terminal, expected 1 call, got %d", calls)
	}
}
