// Package server wires the teller components into one HTTP process.
//
// # Components
//
// New opens the SQLite store and builds, in order:
//
//   - ledger: accounts restored from the store
//   - embedder and retriever: the corpus reloaded and re-indexed
//   - classifier: Anthropic unless WithClassifier overrides it
//   - router: one per process, shared by every chat session
//   - chat hub: room fan-out for websocket clients
//
// # HTTP Surface
//
//   - GET /ws/chat/{room} - websocket chat (see package chat)
//   - POST /api/documents - add one document to the retrieval corpus
//   - GET /health - liveness check
//   - GET /health/ready - readiness check, pings the database
//
// # Shutdown
//
// Shutdown closes the hub first so websocket clients are released, then
// stops the HTTP server and closes the store. Run calls it with a fresh
// timeout context once its own context ends.
package server
