// Package api serves the HTTP surface: prediction and chat flows, history
// access, health, and metrics.
//
// The server is a thin caller into the same services the CLI uses. Requests
// and responses are JSON; failures are reported as {"error": "..."} with an
// appropriate status code. An optional bearer token guards the /api/v1
// routes; health and metrics stay open for probes and scrapers.
package api
