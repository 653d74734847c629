package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/csab/internal/embedding"
	"github.com/hyperengineering/csab/internal/ingest"
	"github.com/hyperengineering/csab/internal/validation"
)

// Error body messages.
const (
	MsgAuthenticationFailed = "AUTHENTICATION_FAILED"
	MsgNoCompanyData        = "Company data does not exist"
	MsgWriteFailed          = "DATA_WRITE_FAILED"
	MsgInternalError        = "INTERNAL_SERVER_ERROR"
	MsgEmbeddingUnavailable = "EMBEDDING_UNAVAILABLE"
	MsgValidationFailed     = "VALIDATION_FAILED"
	MsgEmptyContent         = "EMPTY_CONTENT"
	MsgPayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	MsgTooManyRequests      = "TOO_MANY_REQUESTS"
)

// Problem is the JSON error body. Errors is set only for validation failures.
type Problem struct {
	Message string                       `json:"Message"`
	Errors  []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblem writes an error body with the given status.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeProblem(w, r, status, Problem{Message: message})
}

// WriteProblemWithErrors writes a 422 response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, errs []validation.ValidationError) {
	writeProblem(w, r, http.StatusUnprocessableEntity, Problem{
		Message: MsgValidationFailed,
		Errors:  errs,
	})
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, p Problem) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err, "path", r.URL.Path)
	}
}

// MapIngestError converts ingestion errors to error responses. Details of
// unclassified errors are logged and never returned to the client.
func MapIngestError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validation.Errors
	var tooLarge *http.MaxBytesError

	switch {
	case errors.Is(err, ingest.ErrAuthenticationMissing),
		errors.Is(err, ingest.ErrAuthenticationFailed):
		WriteProblem(w, r, http.StatusForbidden, MsgAuthenticationFailed)
	case errors.As(err, &verrs):
		WriteProblemWithErrors(w, r, verrs)
	case errors.Is(err, ingest.ErrNoExistingData):
		WriteProblem(w, r, http.StatusNotFound, MsgNoCompanyData)
	case errors.Is(err, ingest.ErrEmptyContent):
		WriteProblem(w, r, http.StatusBadRequest, MsgEmptyContent)
	case errors.As(err, &tooLarge):
		WriteProblem(w, r, http.StatusRequestEntityTooLarge, MsgPayloadTooLarge)
	case errors.Is(err, ingest.ErrWriteFailed):
		slog.Error("chunk replacement not applied", "path", r.URL.Path, "request_id", GetRequestID(r.Context()))
		WriteProblem(w, r, http.StatusInternalServerError, MsgWriteFailed)
	case errors.Is(err, embedding.ErrUnavailable):
		slog.Error("embedding service unavailable", "error", err, "path", r.URL.Path, "request_id", GetRequestID(r.Context()))
		WriteProblem(w, r, http.StatusServiceUnavailable, MsgEmbeddingUnavailable)
	default:
		slog.Error("request failed", "error", err, "path", r.URL.Path, "request_id", GetRequestID(r.Context()))
		WriteProblem(w, r, http.StatusInternalServerError, MsgInternalError)
	}
}
