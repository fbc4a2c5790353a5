// ABOUTME: HTTP API handlers for corpus management
// ABOUTME: POST /api/documents embeds and stores a document for retrieval

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/2389/teller/internal/retriever"
)

// maxDocumentBytes caps the request body for document ingestion.
const maxDocumentBytes = 1 << 20

// CreateDocumentRequest is the body of POST /api/documents.
type CreateDocumentRequest struct {
	Content string `json:"content"`
}

// DocumentResponse describes a stored document.
type DocumentResponse struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)

	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	doc, err := s.retriever.Ingest(r.Context(), req.Content)
	status := http.StatusCreated
	switch {
	case errors.Is(err, retriever.ErrNotIndexed):
		// Stored; searchable after the next restart.
		status = http.StatusAccepted
	case errors.Is(err, retriever.ErrEmptyContent):
		s.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	case errors.Is(err, retriever.ErrUnavailable):
		s.logger.Warn("document ingestion unavailable", "error", err)
		s.sendJSONError(w, http.StatusServiceUnavailable, "embedding service unavailable")
		return
	case err != nil:
		s.logger.Error("failed to ingest document", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(DocumentResponse{
		ID:        doc.ID,
		Content:   doc.Content,
		CreatedAt: doc.CreatedAt,
	})
}

// sendJSONError writes {"error": message} with the given status.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
