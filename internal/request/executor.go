package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"triage/internal/logging"
)

const (
	defaultMaxAttempts       = 3
	defaultInitialDelay      = 1 * time.Second
	defaultBackoffMultiplier = 2.0
	defaultMaxDelay          = 10 * time.Second
	defaultHTTPTimeout       = 30 * time.Second

	// Error bodies are truncated before they end up in reasons and logs.
	maxReasonBytes = 4096
)

// Spec describes one outbound request. It is immutable for the lifetime of a
// single Execute call; the body is a byte slice so every attempt can replay it.
type Spec struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Policy controls how many attempts are made and how long the executor waits
// between them. The zero value is replaced by DefaultPolicy.
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64

	// MaxDelay caps each computed wait, including Retry-After overrides.
	// Zero leaves the multiplicative growth uncapped.
	MaxDelay time.Duration
}

// DefaultPolicy returns the retry settings used when a caller passes a zero
// Policy: 3 attempts, 1s initial delay, doubling, capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       defaultMaxAttempts,
		InitialDelay:      defaultInitialDelay,
		BackoffMultiplier: defaultBackoffMultiplier,
		MaxDelay:          defaultMaxDelay,
	}
}

func (p Policy) normalize() Policy {
	if p == (Policy{}) {
		return DefaultPolicy()
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = 1
	}
	if p.MaxDelay < 0 {
		p.MaxDelay = 0
	}
	return p
}

// Response carries the raw result of a successful request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Error is the single terminal failure surfaced by Execute, raised after
// retries are exhausted or on the first fatal status.
type Error struct {
	// Attempts is the number of attempts actually made.
	Attempts int
	// Status is the HTTP status of the last attempt, or 0 for transport failures.
	Status int
	// LastReason describes the last underlying failure for diagnostics.
	LastReason string
	// Err is the last transport error, when one occurred.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("request failed after %d attempt(s): %s", e.Attempts, e.LastReason)
}

func (e *Error) Unwrap() error { return e.Err }

// AttemptInfo reports one attempt to an Observer.
type AttemptInfo struct {
	Attempt   int
	Status    int
	Retryable bool
	Err       error
	Elapsed   time.Duration
}

// Observer receives a callback per attempt. Implementations must be safe for
// concurrent use.
type Observer interface {
	OnAttempt(info AttemptInfo)
}

// Executor performs requests with retry and backoff. It holds no per-call
// state and is safe for concurrent use.
type Executor struct {
	client   *http.Client
	logger   *slog.Logger
	observer Observer
	sleep    func(context.Context, time.Duration) error
	clock    func() time.Time
}

// Option customizes an Executor.
type Option func(*Executor)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithLogger attaches a logger for per-attempt debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver registers an attempt observer (e.g. metrics).
func WithObserver(observer Observer) Option {
	return func(e *Executor) {
		e.observer = observer
	}
}

// WithSleep overrides how backoff waits are performed (useful for tests).
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithClock overrides the clock used for attempt timing (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Executor) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// NewExecutor constructs an Executor with default transport and options.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		client: &http.Client{Timeout: defaultHTTPTimeout},
		logger: logging.NewNop(),
		sleep:  sleepWithContext,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetryable
	outcomeFatal
)

type attemptOutcome struct {
	kind outcomeKind
	// resp is set only on success.
	resp *Response
	// status is the HTTP status when a response was received, 0 otherwise.
	status int
	reason string
	err    error
	// retryAfter overrides the computed backoff when > 0.
	retryAfter time.Duration
}

// Execute issues the request described by spec, retrying per policy, and
// returns either the successful response or a *Error.
func (e *Executor) Execute(ctx context.Context, spec Spec, policy Policy) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(spec.URL) == "" {
		return nil, errors.New("request: url required")
	}
	policy = policy.normalize()

	delay := policy.InitialDelay
	var last attemptOutcome

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := e.clock()
		out := e.attempt(ctx, spec)
		elapsed := e.clock().Sub(start)
		last = out

		if e.observer != nil {
			e.observer.OnAttempt(AttemptInfo{
				Attempt:   attempt,
				Status:    out.status,
				Retryable: out.kind == outcomeRetryable,
				Err:       out.err,
				Elapsed:   elapsed,
			})
		}

		switch out.kind {
		case outcomeSuccess:
			return out.resp, nil
		case outcomeFatal:
			return nil, &Error{Attempts: attempt, Status: out.status, LastReason: out.reason, Err: out.err}
		}

		// Context errors surface as-is rather than being absorbed as transport
		// failures; retrying a canceled call is never useful.
		if out.err != nil && (errors.Is(out.err, context.Canceled) || errors.Is(out.err, context.DeadlineExceeded)) {
			return nil, out.err
		}

		if attempt == policy.MaxAttempts {
			break
		}

		wait := delay
		if out.retryAfter > 0 {
			wait = out.retryAfter
		}
		wait = capDelay(wait, policy.MaxDelay)

		e.logger.Debug("retrying request",
			logging.String("url", spec.URL),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Int("status", out.status),
			logging.Duration("wait", wait),
			logging.String("reason", out.reason))

		if err := e.sleep(ctx, wait); err != nil {
			return nil, err
		}
		delay = capDelay(time.Duration(float64(delay)*policy.BackoffMultiplier), policy.MaxDelay)
	}

	return nil, &Error{
		Attempts:   policy.MaxAttempts,
		Status:     last.status,
		LastReason: last.reason,
		Err:        last.err,
	}
}

func (e *Executor) attempt(ctx context.Context, spec Spec) attemptOutcome {
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, spec.URL, body)
	if err != nil {
		return attemptOutcome{kind: outcomeFatal, reason: "build request: " + err.Error(), err: err}
	}
	for key, values := range spec.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return attemptOutcome{
			kind:   outcomeRetryable,
			reason: "transport: " + err.Error(),
			err:    err,
		}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return attemptOutcome{
			kind:   outcomeRetryable,
			status: resp.StatusCode,
			reason: "read body: " + err.Error(),
			err:    err,
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return attemptOutcome{
			kind: outcomeSuccess,
			resp: &Response{
				StatusCode: resp.StatusCode,
				Header:     resp.Header,
				Body:       payload,
			},
			status: resp.StatusCode,
		}
	}

	reason := "http " + strconv.Itoa(resp.StatusCode)
	if snippet := truncateReason(payload); snippet != "" {
		reason += ": " + snippet
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return attemptOutcome{
			kind:       outcomeRetryable,
			status:     resp.StatusCode,
			reason:     reason,
			retryAfter: retryAfter,
		}
	}

	return attemptOutcome{kind: outcomeFatal, status: resp.StatusCode, reason: reason}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func capDelay(d, max time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func truncateReason(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	replacer := strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")
	clean := strings.Join(strings.Fields(replacer.Replace(trimmed)), " ")
	if len(clean) > maxReasonBytes {
		clean = clean[:maxReasonBytes] + "..."
	}
	return clean
}
