// Package store provides persistent storage for teller using SQLite.
//
// # Architecture
//
// The store package splits persistence by consumer:
//
//   - AccountStore: ledger accounts (create, atomic multi-account balance update, load)
//   - DocumentStore: retrieval corpus (append, load in insertion order)
//
// Store combines both with Ping and Close. SQLiteStore and MockStore
// implement all of it.
//
// # Data Models
//
//   - Account: name and IBAN are each unique; balance is CHECKed >= 0
//   - Document: opaque content plus an optional JSON-encoded embedding
//
// The store holds no locks of its own beyond the database. Callers (the
// ledger) serialize mutations; UpdateBalances guarantees that a multi-account
// write is all-or-nothing.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// The pool is capped at one connection, which serializes writers and keeps
// ":memory:" databases coherent.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicate: unique name, IBAN, or document ID already taken
//
// # Testing
//
// Use NewMockStore() for unit tests. SetUpdateErr injects write failures.
// Use NewSQLiteStore(":memory:") or a t.TempDir() path for SQLite tests.
package store
