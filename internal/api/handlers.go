package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hyperengineering/csab/internal/ingest"
	"github.com/hyperengineering/csab/internal/types"
)

// Response messages.
const (
	MsgWelcome  = "Welcome To CSAB APP"
	MsgIngested = "ADDED_TO_DATA_BASE"
	MsgUploaded = "DATA_UPLOADED"
)

// DefaultMaxUploadBytes caps upload bodies when no limit is configured.
const DefaultMaxUploadBytes = 10 << 20

// Ingestor runs the admin-gated ingestion flows.
type Ingestor interface {
	Start(ctx context.Context, creds ingest.Credentials, companyName string) (*ingest.Result, error)
	Upload(ctx context.Context, creds ingest.Credentials, companyName string, body io.Reader) (*ingest.Result, error)
}

// StatsReader reports aggregate store counts.
type StatsReader interface {
	GetStats(ctx context.Context) (*types.StoreStats, error)
}

// Handler implements the API handlers
type Handler struct {
	service        Ingestor
	stats          StatsReader
	embeddingModel string
	version        string
	maxUploadBytes int64
}

// NewHandler creates a new Handler. A non-positive maxUploadBytes selects
// DefaultMaxUploadBytes.
func NewHandler(service Ingestor, stats StatsReader, embeddingModel, version string, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{
		service:        service,
		stats:          stats,
		embeddingModel: embeddingModel,
		version:        version,
		maxUploadBytes: maxUploadBytes,
	}
}

// Root handles GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.RootResponse{Message: MsgWelcome})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetStats(r.Context())
	if err != nil {
		slog.Error("health stats failed", "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, MsgInternalError)
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:             "healthy",
		Version:            h.version,
		EmbeddingModel:     h.embeddingModel,
		CompanyCount:       stats.CompanyCount,
		ChunkCount:         stats.ChunkCount,
		EmbeddedChunkCount: stats.EmbeddedChunkCount,
	})
}

// StartIngestion handles GET /data/start/{companyName}
func (h *Handler) StartIngestion(w http.ResponseWriter, r *http.Request) {
	companyName := chi.URLParam(r, "companyName")

	result, err := h.service.Start(r.Context(), CredentialsFromContext(r.Context()), companyName)
	if err != nil {
		MapIngestError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, types.IngestResponse{
		Message: MsgIngested,
		Company: result.Company.Name,
		Chunks:  result.Chunks,
	})
}

// UploadData handles POST /data/upload/{companyName}
func (h *Handler) UploadData(w http.ResponseWriter, r *http.Request) {
	companyName := chi.URLParam(r, "companyName")
	body := http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	result, err := h.service.Upload(r.Context(), CredentialsFromContext(r.Context()), companyName, body)
	if err != nil {
		MapIngestError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, types.IngestResponse{
		Message: MsgUploaded,
		Company: result.Company.Name,
		Chunks:  result.Chunks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
