// Package logging constructs slog loggers for the CLI and the HTTP server.
//
// It supports console and JSON formats, optional log-file output alongside
// stdout, and standardized attribute helpers so components log the same
// field names everywhere.
package logging
