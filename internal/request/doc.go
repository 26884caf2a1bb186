// Package request executes outbound HTTP requests with transparent retries
// and exponential backoff.
//
// The Executor is the single retry component shared by every remote call the
// application makes. Each Execute call owns its own attempt and delay state,
// so one Executor can serve any number of concurrent callers without locking.
//
// # Classification
//
// Every attempt is classified into exactly one of three outcomes:
//   - transport failures (connection refused, timeouts) are retryable
//   - HTTP 429 is retryable; a Retry-After header, when present, overrides
//     the computed backoff for that wait
//   - any other non-2xx status is fatal and fails the call immediately
//
// Rate limiting is an explicit backpressure signal worth absorbing; other
// error statuses (bad request, auth failure, server bugs) are assumed
// non-transient and retrying them only wastes quota.
//
// # Failure surface
//
// Exhausted retries and fatal statuses both surface as a single *Error
// carrying the attempt count and the last underlying reason. The Executor
// never retries indefinitely and never swallows a terminal error.
//
// Callers needing an overall deadline wrap the context; an expired context
// aborts an in-progress backoff wait immediately.
package request
