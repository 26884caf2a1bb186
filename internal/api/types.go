package api

import "time"

// PredictRequest is the body of POST /api/v1/predict.
type PredictRequest struct {
	Symptoms []string `json:"symptoms"`
	Age      int      `json:"age"`
	Gender   string   `json:"gender,omitempty"`
}

// ConditionView is one candidate condition in a prediction response.
type ConditionView struct {
	Name        string `json:"name"`
	Likelihood  string `json:"likelihood"`
	Description string `json:"description,omitempty"`
}

// PredictResponse is the body returned by POST /api/v1/predict.
type PredictResponse struct {
	ID         string          `json:"id"`
	Symptoms   []string        `json:"symptoms"`
	Conditions []ConditionView `json:"conditions"`
	Advice     string          `json:"advice"`
	Disclaimer string          `json:"disclaimer"`
	Model      string          `json:"model,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the body returned by POST /api/v1/chat. Fallback is set
// when the assistant was unreachable and Reply carries the canned message.
type ChatResponse struct {
	Reply    string `json:"reply"`
	Fallback bool   `json:"fallback,omitempty"`
}

// PredictionView is one stored prediction in GET /api/v1/history.
type PredictionView struct {
	ID        string    `json:"id"`
	Symptoms  []string  `json:"symptoms"`
	Age       int       `json:"age"`
	Gender    string    `json:"gender,omitempty"`
	Result    string    `json:"result"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse is the body returned by GET /api/v1/history.
type HistoryResponse struct {
	Predictions []PredictionView `json:"predictions"`
}

// MessageView is one transcript entry in GET /api/v1/transcript.
type MessageView struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptResponse is the body returned by GET /api/v1/transcript.
type TranscriptResponse struct {
	Messages []MessageView `json:"messages"`
}

// ClearedResponse reports how many records a DELETE removed.
type ClearedResponse struct {
	Cleared int64 `json:"cleared"`
}

// HealthResponse is the body returned by GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	LLM    string `json:"llm,omitempty"`
}
