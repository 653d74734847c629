package store

import (
	"context"
	"time"

	"github.com/hyperengineering/csab/internal/types"
	"github.com/oklog/ulid/v2"
)

// AdminStore holds admin credentials.
type AdminStore interface {
	CreateAdmin(ctx context.Context, name, password string) (*types.Admin, error)
	AdminExists(ctx context.Context, name, password string) (bool, error)
}

// CompanyStore resolves companies by their unique name.
type CompanyStore interface {
	GetOrCreateCompany(ctx context.Context, name string) (*types.Company, error)
}

// ChunkStore reads and writes a company's chunk set.
type ChunkStore interface {
	ListChunks(ctx context.Context, companyID string) ([]types.Chunk, error)
	// AppendChunks stores contents as raw chunks at consecutive positions after
	// the company's last chunk. The position is read in the write transaction.
	AppendChunks(ctx context.Context, companyID string, contents []string) ([]types.Chunk, error)
	// ReplaceChunks inserts newChunks and deletes oldChunks in one transaction.
	// It returns false, and writes nothing, if any old chunk no longer exists.
	ReplaceChunks(ctx context.Context, newChunks, oldChunks []types.Chunk) (bool, error)
}

// Store defines the interface contract for all storage backends.
type Store interface {
	AdminStore
	CompanyStore
	ChunkStore
	GetStats(ctx context.Context) (*types.StoreStats, error)
	Close() error
}

// prepareChunks stamps IDs and creation times on chunks that lack them.
func prepareChunks(chunks []types.Chunk) []types.Chunk {
	now := time.Now().UTC()
	out := make([]types.Chunk, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			c.ID = ulid.Make().String()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		out[i] = c
	}
	return out
}

// rawChunks builds unembedded chunks for contents starting at position first.
func rawChunks(companyID string, first int, contents []string) []types.Chunk {
	chunks := make([]types.Chunk, len(contents))
	for i, content := range contents {
		chunks[i] = types.Chunk{
			CompanyID: companyID,
			Position:  first + i,
			Content:   content,
		}
	}
	return prepareChunks(chunks)
}
