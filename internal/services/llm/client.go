package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"triage/internal/logging"
	"triage/internal/request"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Config captures the runtime settings required to talk to the model API.
type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	PredictModel   string
	TimeoutSeconds int
}

// Client issues generateContent calls against the configured models.
type Client struct {
	cfg    Config
	exec   *request.Executor
	policy request.Policy
	logger *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithExecutor overrides the request executor (useful for tests).
func WithExecutor(exec *request.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithPolicy overrides the retry policy applied to every call.
func WithPolicy(policy request.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := 60 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			ChatModel:      strings.TrimSpace(cfg.ChatModel),
			PredictModel:   strings.TrimSpace(cfg.PredictModel),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		policy: request.DefaultPolicy(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.exec == nil {
		client.exec = request.NewExecutor(
			request.WithHTTPClient(&http.Client{Timeout: timeout}),
			request.WithLogger(client.logger),
		)
	}
	return client
}

type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64        `json:"temperature"`
	ResponseMIMEType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

func systemInstruction(text string) *content {
	return &content{Parts: []part{{Text: text}}}
}

type emptyContentError struct {
	Op           string
	FinishReason string
	BlockReason  string
	Snippet      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf(
		"%s: empty content (finish_reason=%q, block_reason=%q, response_snippet=%s)",
		e.Op,
		e.FinishReason,
		e.BlockReason,
		e.Snippet,
	)
}

// generate sends one generateContent request and returns the text of the
// first candidate. Retries happen inside the executor; anything surfacing
// here is terminal.
func (c *Client) generate(ctx context.Context, model string, payload generateRequest, op string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("%s: api key required", op)
	}
	if model == "" {
		return "", fmt.Errorf("%s: model required", op)
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: encode body: %w", op, err)
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("X-Goog-Api-Key", c.cfg.APIKey)

	resp, err := c.exec.Execute(ctx, request.Spec{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, model),
		Header: header,
		Body:   encoded,
	}, c.policy)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	body := resp.Body
	if apiErr := gjson.GetBytes(body, "error.message"); apiErr.Exists() {
		return "", fmt.Errorf("%s: api error: %s", op, strings.TrimSpace(apiErr.String()))
	}

	text := strings.TrimSpace(gjson.GetBytes(body, "candidates.0.content.parts.0.text").String())
	if text == "" {
		return "", &emptyContentError{
			Op:           op,
			FinishReason: gjson.GetBytes(body, "candidates.0.finishReason").String(),
			BlockReason:  gjson.GetBytes(body, "promptFeedback.blockReason").String(),
			Snippet:      summarizePayloadSnippet(string(body)),
		}
	}
	return text, nil
}

// HealthCheck issues a fast ping to verify the API key and chat model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	payload := generateRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: `Respond with {"ok":true}`}}},
		},
		SystemInstruction: systemInstruction("You must respond with JSON only."),
		GenerationConfig: generationConfig{
			Temperature:      0,
			ResponseMIMEType: "application/json",
		},
	}
	raw, err := c.generate(ctx, c.cfg.ChatModel, payload, "llm health")
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeModelJSON(raw, &parsed); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}
