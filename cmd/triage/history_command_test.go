package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func geminiPrediction(t *testing.T) string {
	t.Helper()
	result := `{"conditions":[{"name":"Influenza","likelihood":"high"}],"advice":"Rest."}`
	payload := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{"parts": []any{map[string]any{"text": result}}},
			},
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return string(encoded)
}

func TestHistoryListsAndClearsPredictions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, geminiPrediction(t))
	}))
	defer server.Close()

	env := setupCLITestEnv(t, server.URL)

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("empty history: %v", err)
	}
	requireContains(t, out, "No stored predictions")

	if _, _, err := runCLI(t, []string{"predict", "--symptom", "fever", "--symptom", "cough", "--age", "30"}, env.configPath); err != nil {
		t.Fatalf("predict: %v", err)
	}

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "fever, cough")
	requireContains(t, out, "Influenza")

	out, _, err = runCLI(t, []string{"history", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("history clear: %v", err)
	}
	requireContains(t, out, "Removed 1 record(s)")
}

func TestHistoryShowPrintsFullPrediction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, geminiPrediction(t))
	}))
	defer server.Close()

	env := setupCLITestEnv(t, server.URL)

	if _, _, err := runCLI(t, []string{"predict", "--symptom", "fever", "--age", "41"}, env.configPath); err != nil {
		t.Fatalf("predict: %v", err)
	}

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		t.Fatalf("empty history output: %q", out)
	}
	prefix := fields[0]

	out, _, err = runCLI(t, []string{"history", "show", prefix}, env.configPath)
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	requireContains(t, out, "Influenza")
	requireContains(t, out, "Rest.")
	requireContains(t, out, "fever")

	if _, _, err := runCLI(t, []string{"history", "show", "zzzz"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestPredictRejectsUnknownSymptom(t *testing.T) {
	env := setupCLITestEnv(t, "")

	_, _, err := runCLI(t, []string{"predict", "--symptom", "glowing", "--age", "30"}, env.configPath)
	if err == nil {
		t.Fatal("expected unknown symptom error")
	}
	requireContains(t, err.Error(), "glowing")
}
