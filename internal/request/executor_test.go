package request

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type scriptedStep struct {
	status int
	body   string
	header http.Header
	err    error
}

// scriptedTransport replays a fixed sequence of outcomes and records how many
// attempts were made.
type scriptedTransport struct {
	mu    sync.Mutex
	steps []scriptedStep
	calls int
}

func (t *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.calls >= len(t.steps) {
		return nil, errors.New("scripted transport exhausted")
	}
	step := t.steps[t.calls]
	t.calls++
	if step.err != nil {
		return nil, step.err
	}
	header := step.header
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode: step.status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(step.body)),
		Request:    req,
	}, nil
}

func (t *scriptedTransport) attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

type recordedSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordedSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordedSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.waits))
	copy(out, s.waits)
	return out
}

func newTestExecutor(transport http.RoundTripper, sleeper *recordedSleeper) *Executor {
	opts := []Option{WithHTTPClient(&http.Client{Transport: transport})}
	if sleeper != nil {
		opts = append(opts, WithSleep(sleeper.sleep))
	}
	return NewExecutor(opts...)
}

func testSpec() Spec {
	return Spec{
		Method: http.MethodPost,
		URL:    "http://llm.invalid/v1/generate",
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte(`{"prompt":"hello"}`),
	}
}

func TestExecuteTransientFailuresExhaustAttempts(t *testing.T) {
	transport := &scriptedTransport{steps: []scriptedStep{
		{err: errors.New("connection refused")},
		{err: errors.New("connection refused")},
		{err: errors.New("connection refused")},
	}}
	sleeper := &recordedSleeper{}
	exec := newTestExecutor(transport, sleeper)

	_, err := exec.Execute(context.Background(), testSpec(), Policy{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2,
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	var reqErr *Error
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *request.Error, got %T: %v", err, err)
	}
	if reqErr.Attempts != 3 {
		t.Fatalf("expected 3 attempts recorded, got %d", reqErr.Attempts)
	}
	if transport.attempts() != 3 {
		t.Fatalf("expected 3 transport calls, got %d", transport.attempts())
	}
	if reqErr.Status != 0 {
		t.Fatalf("expected status 0 for transport failure, got %d", reqErr.Status)
	}
	if !strings.Contains(reqErr.LastReason, "connection refused") {
		t.Fatalf("expected last reason to carry transport error, got %q", reqErr.LastReason)
	}
}

func TestExecuteSuccessStopsFurtherAttempts(t *testing.T) {
	transport := &scriptedTransport{steps: []scriptedStep{
		{err: errors.New("dial timeout")},
		{status: http.StatusOK, body: `{"ok":true}`},
		{status: http.StatusOK, body: `never reached`},
	}}
	sleeper := &recordedSleeper{}
	exec := newTestExecutor(transport, sleeper)

	resp, err := exec.Execute(context.Background(), testSpec(), Policy{
		MaxAttempts:       3,
		InitialDelay:      10 * time.Millisecond,
		BackoffMultiplier: 2,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !bytes.Contains(resp.Body, []byte(`"ok":true`)) {
		t.Fatalf("unexpected body %q", resp.Body)
	}
	if transport.attempts() != 2 {
		t.Fatalf("expected 2 transport calls, got %d", transport.attempts())
	}
}

func TestExecuteFatalStatusFailsImmediately(t *testing.T) {
	transport := &scriptedTransport{steps: []scriptedStep{
		{status: http.StatusBadRequest, body: `{"error":"malformed"}`},
		{status: http.StatusOK, body: `never reached`},
	}}
	sleeper := &recordedSleeper{}
	exec := newTestExecutor(transport, sleeper)

	_, err := exec.Execute(context.Background(), testSpec(), Policy{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2,
	})
	var reqErr *Error
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *request.Error, got %T: %v", err, err)
	}
	if reqErr.Attempts != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", reqErr.Attempts)
	}
	if reqErr.Status != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", reqErr.Status)
	}
	if transport.attempts() != 1 {
		t.Fatalf("expected no retry after fatal status, got %d calls", transport.attempts())
	}
	if waits := sleeper.recorded(); len(waits) != 0 {
		t.Fatalf("expected no backoff waits, got %v", waits)
	}
}

func TestExecuteRateLimitBackoffSequence(t *testing.T) {
	transport := &scriptedTransport{steps: []scriptedStep{
		{status: http.StatusTooManyRequests, body: `slow down`},
		{status: http.StatusTooManyRequests, body: `slow down`},
		{status: http.StatusOK, body: `{"done":true}`},
	}}
	sleeper := &recordedSleeper{}
	exec := newTestExecutor(transport, sleeper)

	resp, err := exec.Execute(context.Background(), testSpec(), Policy{
		MaxAttempts:       3,
		InitialDelay:      1000 * time.Millisecond,
		BackoffMultiplier: 2,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected success, got %d", resp.StatusCode)
	}
	if transport.attempts() != 3 {
		t.Fatalf("expected 3 attempts, got %d", transport.attempts())
	}
	waits := sleeper.recorded()
	if len(waits) != 2 {
		t.Fatalf("expected 2 waits, got %v", waits)
	}
	if waits[0] != 1000*time.Millisecond || waits[1] != 2000*time.Millisecond {
		t.Fatalf("expected 1s then 2s backoff, got %v", waits)
	}
}

func TestExecuteRetryAfterOverridesBackoff(t *testing.T) {
	header := make(http.Header)
	header.Set("Retry-After", "3")
	transport := &scriptedTransport{steps: []scriptedStep{
		{status: http.StatusTooManyRequests, header: header},
		{status: http.StatusOK, body: `ok`},
	}}
	sleeper := &recordedSleeper{}
	exec := newTestExecutor(transport, sleeper)

	_, err := exec.Execute(context.Background(), testSpec(), Policy{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	waits := sleeper.recorded()
	if len(waits) != 1 || waits[0] != 3*time.Second {
		t.Fatalf("expected single 3s wait from Retry-After, got %v", waits)
	}
}

func TestExecuteSingleAttemptNeverRetries(t *testing.T) {
	for name, step := range map[string]scriptedStep{
		"transport": {err: errors.New("unreachable")},
		"rate":      {status: http.StatusTooManyRequests, body: `busy`},
	} {
		t.Run(name, func(t *testing.T) {
			transport := &scriptedTransport{steps: []scriptedStep{step, {status: http.StatusOK}}}
			sleeper := &recordedSleeper{}
			exec := newTestExecutor(transport, sleeper)

			_, err := exec.Execute(context.Background(), testSpec(), Policy{
				MaxAttempts:       1,
				InitialDelay:      time.Second,
				BackoffMultiplier: 2,
			})
			var reqErr *Error
			if !errors.As(err, &reqErr) {
				t.Fatalf("expected *request.Error, got %T: %v", err, err)
			}
			if reqErr.Attempts != 1 {
				t.Fatalf("expected 1 attempt, got %d", reqErr.Attempts)
			}
			if transport.attempts() != 1 {
				t.Fatalf("expected 1 transport call, got %d", transport.attempts())
			}
			if waits := sleeper.recorded(); len(waits) != 0 {
				t.Fatalf("expected no waits, got %v", waits)
			}
		})
	}
}

func TestExecuteMaxDelayCapsBackoff(t *testing.T) {
	transport := &scriptedTransport{steps: []scriptedStep{
		{status: http.StatusTooManyRequests},
		{status: http.StatusTooManyRequests},
		{status: http.StatusTooManyRequests},
		{status: http.StatusOK, body: `ok`},
	}}
	sleeper := &recordedSleeper{}
	exec := newTestExecutor(transport, sleeper)

	_, err := exec.Execute(context.Background(), testSpec(), Policy{
		MaxAttempts:       4,
		InitialDelay:      2 * time.Second,
		BackoffMultiplier: 3,
		MaxDelay:          5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	waits := sleeper.recorded()
	want := []time.Duration{2 * time.Second, 5 * time.Second, 5 * time.Second}
	if len(waits) != len(want) {
		t.Fatalf("expected %d waits, got %v", len(want), waits)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Fatalf("wait %d: expected %v, got %v (all: %v)", i, want[i], waits[i], waits)
		}
	}
}

func TestExecuteZeroPolicyUsesDefaults(t *testing.T) {
	transport := &scriptedTransport{steps: []scriptedStep{
		{err: errors.New("reset by peer")},
		{err: errors.New("reset by peer")},
		{err: errors.New("reset by peer")},
	}}
	sleeper := &recordedSleeper{}
	exec := newTestExecutor(transport, sleeper)

	_, err := exec.Execute(context.Background(), testSpec(), Policy{})
	var reqErr *Error
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *request.Error, got %T: %v", err, err)
	}
	if reqErr.Attempts != defaultMaxAttempts {
		t.Fatalf("expected default %d attempts, got %d", defaultMaxAttempts, reqErr.Attempts)
	}
	waits := sleeper.recorded()
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 2*time.Second {
		t.Fatalf("expected default 1s/2s waits, got %v", waits)
	}
}

func TestExecuteContextCancellationAbortsWait(t *testing.T) {
	transport := &scriptedTransport{steps: []scriptedStep{
		{status: http.StatusTooManyRequests},
		{status: http.StatusOK},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	exec := NewExecutor(
		WithHTTPClient(&http.Client{Transport: transport}),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)

	_, err := exec.Execute(ctx, testSpec(), Policy{
		MaxAttempts:       3,
		InitialDelay:      time.Minute,
		BackoffMultiplier: 2,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if transport.attempts() != 1 {
		t.Fatalf("expected no attempt after cancellation, got %d", transport.attempts())
	}
}

// routingTransport dispatches each request to a per-URL scripted transport so
// concurrent calls through one shared executor stay observable in isolation.
type routingTransport struct {
	mu     sync.Mutex
	routes map[string]*scriptedTransport
}

func (t *routingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	route := t.routes[req.URL.Path]
	t.mu.Unlock()
	if route == nil {
		return nil, errors.New("no route for " + req.URL.Path)
	}
	return route.RoundTrip(req)
}

func TestExecuteConcurrentCallsAreIndependent(t *testing.T) {
	const callers = 10

	router := &routingTransport{routes: make(map[string]*scriptedTransport)}
	transports := make([]*scriptedTransport, callers)
	for i := 0; i < callers; i++ {
		if i%2 == 0 {
			transports[i] = &scriptedTransport{steps: []scriptedStep{
				{err: errors.New("flaky")},
				{status: http.StatusOK, body: `ok`},
			}}
		} else {
			transports[i] = &scriptedTransport{steps: []scriptedStep{
				{err: errors.New("down")},
				{err: errors.New("down")},
				{err: errors.New("down")},
			}}
		}
		router.routes["/caller/"+strconv.Itoa(i)] = transports[i]
	}

	sleeper := &recordedSleeper{}
	exec := newTestExecutor(router, sleeper)

	var wg sync.WaitGroup
	results := make([]error, callers)
	attempts := make([]int, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			spec := testSpec()
			spec.URL = "http://llm.invalid/caller/" + strconv.Itoa(i)
			_, err := exec.Execute(context.Background(), spec, Policy{
				MaxAttempts:       3,
				InitialDelay:      time.Millisecond,
				BackoffMultiplier: 2,
			})
			results[i] = err
			attempts[i] = transports[i].attempts()
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if i%2 == 0 {
			if results[i] != nil {
				t.Fatalf("caller %d: expected success, got %v", i, results[i])
			}
			if attempts[i] != 2 {
				t.Fatalf("caller %d: expected 2 attempts, got %d", i, attempts[i])
			}
		} else {
			var reqErr *Error
			if !errors.As(results[i], &reqErr) || reqErr.Attempts != 3 {
				t.Fatalf("caller %d: expected exhaustion after 3 attempts, got %v", i, results[i])
			}
			if attempts[i] != 3 {
				t.Fatalf("caller %d: expected 3 attempts, got %d", i, attempts[i])
			}
		}
	}
}

type countingObserver struct {
	mu    sync.Mutex
	infos []AttemptInfo
}

func (o *countingObserver) OnAttempt(info AttemptInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.infos = append(o.infos, info)
}

func TestExecuteObserverSeesEveryAttempt(t *testing.T) {
	transport := &scriptedTransport{steps: []scriptedStep{
		{status: http.StatusTooManyRequests},
		{status: http.StatusInternalServerError, body: `boom`},
	}}
	observer := &countingObserver{}
	sleeper := &recordedSleeper{}
	exec := NewExecutor(
		WithHTTPClient(&http.Client{Transport: transport}),
		WithSleep(sleeper.sleep),
		WithObserver(observer),
	)

	_, err := exec.Execute(context.Background(), testSpec(), Policy{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2,
	})
	var reqErr *Error
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *request.Error, got %v", err)
	}
	if reqErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected terminal 500, got %d", reqErr.Status)
	}

	observer.mu.Lock()
	defer observer.mu.Unlock()
	if len(observer.infos) != 2 {
		t.Fatalf("expected 2 observed attempts, got %d", len(observer.infos))
	}
	if !observer.infos[0].Retryable || observer.infos[0].Status != http.StatusTooManyRequests {
		t.Fatalf("unexpected first attempt info: %+v", observer.infos[0])
	}
	if observer.infos[1].Retryable {
		t.Fatalf("500 must not be classified retryable: %+v", observer.infos[1])
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := parseRetryAfter("7"); !ok || d != 7*time.Second {
		t.Fatalf("expected 7s, got %v %v", d, ok)
	}
	if _, ok := parseRetryAfter(""); ok {
		t.Fatal("expected empty header to be ignored")
	}
	if _, ok := parseRetryAfter("-2"); ok {
		t.Fatal("expected negative seconds to be ignored")
	}
	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	if d, ok := parseRetryAfter(future); !ok || d <= 0 || d > 91*time.Second {
		t.Fatalf("expected ~90s from HTTP date, got %v %v", d, ok)
	}
}
