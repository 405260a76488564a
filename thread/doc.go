// Package thread houses implementations of core.ThreadStore: an in-memory
// store and a database/sql store for SQLite (modernc.org/sqlite) and Postgres
// (pgx). Only the wiring layer decides which one to instantiate.
package thread
