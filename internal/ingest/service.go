// Package ingest authenticates admins and moves company content through
// loading and embedding.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hyperengineering/csab/internal/embedding"
	"github.com/hyperengineering/csab/internal/types"
	"github.com/hyperengineering/csab/internal/validation"
)

// AdminStore checks admin credentials.
type AdminStore interface {
	AdminExists(ctx context.Context, name, password string) (bool, error)
}

// CompanyStore resolves companies by name.
type CompanyStore interface {
	GetOrCreateCompany(ctx context.Context, name string) (*types.Company, error)
}

// ChunkReader lists a company's chunks in position order.
type ChunkReader interface {
	ListChunks(ctx context.Context, companyID string) ([]types.Chunk, error)
}

// ChunkWriter persists chunks. AppendChunks picks positions after the
// company's last chunk inside its own write.
type ChunkWriter interface {
	AppendChunks(ctx context.Context, companyID string, contents []string) ([]types.Chunk, error)
	ReplaceChunks(ctx context.Context, newChunks, oldChunks []types.Chunk) (bool, error)
}

// Splitter cuts uploaded text into chunk contents.
type Splitter interface {
	Split(text string) []string
}

// Deps holds the collaborators of a Service.
type Deps struct {
	Admins    AdminStore
	Companies CompanyStore
	Chunks    ChunkReader
	Writer    ChunkWriter
	Embedder  embedding.Embedder
	Splitter  Splitter
}

// Credentials are the admin name and password supplied with a request.
type Credentials struct {
	Name     string
	Password string
}

// Result describes the chunks written for a company.
type Result struct {
	Company *types.Company
	Chunks  int
}

// Service runs the admin-gated ingestion and upload flows.
type Service struct {
	deps Deps
}

// NewService creates a Service from its collaborators.
func NewService(deps Deps) *Service {
	return &Service{deps: deps}
}

// Authenticate checks that creds are present and match a stored admin.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) error {
	if creds.Name == "" || creds.Password == "" {
		return ErrAuthenticationMissing
	}
	ok, err := s.deps.Admins.AdminExists(ctx, creds.Name, creds.Password)
	if err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if !ok {
		slog.Warn("admin authentication failed",
			"component", "ingest",
			"action", "authenticate",
			"admin", creds.Name,
		)
		return ErrAuthenticationFailed
	}
	return nil
}

// Start authenticates creds and then embeds the company's existing chunks.
func (s *Service) Start(ctx context.Context, creds Credentials, companyName string) (*Result, error) {
	if err := s.Authenticate(ctx, creds); err != nil {
		return nil, err
	}
	if err := validation.ValidateCompanyName(companyName); err != nil {
		return nil, err
	}
	return s.Populate(ctx, companyName)
}

// Populate resolves the company, embeds every existing chunk in position
// order, and swaps the embedded set in for the listed one. Nothing is
// written unless every chunk embeds.
func (s *Service) Populate(ctx context.Context, companyName string) (*Result, error) {
	company, err := s.deps.Companies.GetOrCreateCompany(ctx, companyName)
	if err != nil {
		return nil, fmt.Errorf("resolve company: %w", err)
	}

	existing, err := s.deps.Chunks.ListChunks(ctx, company.ID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	if len(existing) == 0 {
		return nil, ErrNoExistingData
	}

	embedded := make([]types.Chunk, 0, len(existing))
	for _, chunk := range existing {
		vector, err := s.deps.Embedder.Embed(ctx, chunk.Content)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d: %w", chunk.Position, err)
		}
		embedded = append(embedded, types.Chunk{
			CompanyID: company.ID,
			Position:  chunk.Position,
			Content:   chunk.Content,
			Embedding: vector,
		})
	}

	ok, err := s.deps.Writer.ReplaceChunks(ctx, embedded, existing)
	if err != nil {
		return nil, fmt.Errorf("replace chunks: %w", err)
	}
	if !ok {
		return nil, ErrWriteFailed
	}

	slog.Info("company data embedded",
		"component", "ingest",
		"action", "populate",
		"company", company.Name,
		"chunks", len(embedded),
		"model", s.deps.Embedder.ModelName(),
	)

	return &Result{Company: company, Chunks: len(embedded)}, nil
}

// Upload authenticates creds, then reads body and loads it for the company.
// The body is not read when authentication or validation fails.
func (s *Service) Upload(ctx context.Context, creds Credentials, companyName string, body io.Reader) (*Result, error) {
	if err := s.Authenticate(ctx, creds); err != nil {
		return nil, err
	}
	if err := validation.ValidateCompanyName(companyName); err != nil {
		return nil, err
	}
	content, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return s.Load(ctx, companyName, string(content))
}

// Load splits content and appends the pieces as raw chunks after the
// company's last existing position. Concurrent loads for one company get
// distinct positions.
func (s *Service) Load(ctx context.Context, companyName, content string) (*Result, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	pieces := s.deps.Splitter.Split(content)
	if len(pieces) == 0 {
		return nil, ErrEmptyContent
	}

	company, err := s.deps.Companies.GetOrCreateCompany(ctx, companyName)
	if err != nil {
		return nil, fmt.Errorf("resolve company: %w", err)
	}

	added, err := s.deps.Writer.AppendChunks(ctx, company.ID, pieces)
	if err != nil {
		return nil, fmt.Errorf("add chunks: %w", err)
	}

	slog.Info("company data loaded",
		"component", "ingest",
		"action", "load",
		"company", company.Name,
		"chunks", len(added),
	)

	return &Result{Company: company, Chunks: len(added)}, nil
}
