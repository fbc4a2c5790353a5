// Package retriever selects supporting documents for a user message.
//
// Documents are embedded once at ingestion, persisted through a
// store.DocumentStore, and added to an Index. Retrieval embeds the query
// and ranks documents by cosine similarity, breaking ties by insertion
// order so repeated queries over an unchanged corpus return the same list.
//
// Two indexes are available:
//
//   - MemoryIndex: full scan, exact, no dependencies
//   - ChromemIndex: chromem-go collection, same ranking contract
//
// Context degrades to the empty string on any failure; the caller carries
// on without grounding rather than failing the message.
package retriever
