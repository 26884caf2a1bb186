// Package history persists prediction results and chat transcripts in SQLite.
//
// The Store manages the database connection, schema migrations, and queries
// keyed by the opaque user identifier. It also exposes an in-process
// subscription hub so chat surfaces can observe messages as they are
// appended, replacing the remote document store's subscribe-for-changes
// capability from the original product.
//
// Schema changes add a migration file under migrations/; files apply in
// lexical order and are recorded in schema_migrations.
package history
