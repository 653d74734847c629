package types

import "time"

// Admin is a credentialed principal allowed to load and ingest company data.
type Admin struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Company is the tenant that owns a set of chunks. Name is unique.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is a unit of company content plus its embedding vector.
// Embedding is nil until the chunk has been through ingestion.
type Chunk struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Position  int       `json:"position"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Embedded reports whether the chunk carries an embedding vector.
func (c Chunk) Embedded() bool {
	return len(c.Embedding) > 0
}

// StoreStats holds aggregate counts reported by the health endpoint.
type StoreStats struct {
	CompanyCount       int64 `json:"company_count"`
	ChunkCount         int64 `json:"chunk_count"`
	EmbeddedChunkCount int64 `json:"embedded_chunk_count"`
}

// RootResponse is the body of GET /.
type RootResponse struct {
	Message string `json:"message"`
}

// IngestResponse is the body returned after a company's chunks are embedded
// or after content is uploaded.
type IngestResponse struct {
	Message string `json:"message"`
	Company string `json:"company"`
	Chunks  int    `json:"chunks"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status             string `json:"status"`
	Version            string `json:"version"`
	EmbeddingModel     string `json:"embedding_model"`
	CompanyCount       int64  `json:"company_count"`
	ChunkCount         int64  `json:"chunk_count"`
	EmbeddedChunkCount int64  `json:"embedded_chunk_count"`
}
