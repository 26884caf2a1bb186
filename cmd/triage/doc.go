// Command triage is the symptom-checker CLI. It talks to a
// generative-language API for predictions and chat, persists history in a
// local SQLite database, and can serve the same flows over HTTP.
package main
