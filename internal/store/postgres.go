package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/csab/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/oklog/ulid/v2"
	pgvector "github.com/pgvector/pgvector-go"
)

// Compile-time interface check
var _ Store = (*PostgresStore)(nil)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore is the PostgreSQL store. Embeddings live in a pgvector column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore runs migrations against dsn and opens a connection pool.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	// goose works on database/sql, so migrations use a short-lived handle.
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := RunMigrations(db, DialectPostgres); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("close migration handle: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateAdmin stores a new admin with a bcrypt hash of password.
func (s *PostgresStore) CreateAdmin(ctx context.Context, name, password string) (*types.Admin, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	admin := &types.Admin{
		ID:           ulid.Make().String(),
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO admins (id, name, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, admin.ID, admin.Name, admin.PasswordHash, admin.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateAdmin
		}
		return nil, fmt.Errorf("insert admin: %w", err)
	}

	return admin, nil
}

// AdminExists reports whether an admin with this name and password exists.
func (s *PostgresStore) AdminExists(ctx context.Context, name, password string) (bool, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `SELECT password_hash FROM admins WHERE name = $1`, name).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query admin: %w", err)
	}
	return passwordMatches(hash, password)
}

// GetOrCreateCompany returns the company with this name, creating it first
// if it does not exist.
func (s *PostgresStore) GetOrCreateCompany(ctx context.Context, name string) (*types.Company, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO companies (id, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING
	`, ulid.Make().String(), name, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert company: %w", err)
	}

	var company types.Company
	err = s.pool.QueryRow(ctx, `
		SELECT id, name, created_at FROM companies WHERE name = $1
	`, name).Scan(&company.ID, &company.Name, &company.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("query company: %w", err)
	}
	company.CreatedAt = company.CreatedAt.UTC()

	return &company, nil
}

// ListChunks returns the company's chunks ordered by position.
func (s *PostgresStore) ListChunks(ctx context.Context, companyID string) ([]types.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, position, content, embedding::text, created_at
		FROM chunks
		WHERE company_id = $1
		ORDER BY position, id
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var c types.Chunk
		var embedding pgtype.Text
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Position, &c.Content, &embedding, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if embedding.Valid {
			var vec pgvector.Vector
			if err := vec.Scan(embedding.String); err != nil {
				return nil, fmt.Errorf("parse embedding: %w", err)
			}
			c.Embedding = vec.Slice()
		}
		c.CreatedAt = c.CreatedAt.UTC()
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	return chunks, nil
}

// AppendChunks stores contents after the company's last chunk. The company
// row is locked first so concurrent appends read distinct positions.
func (s *PostgresStore) AppendChunks(ctx context.Context, companyID string, contents []string) ([]types.Chunk, error) {
	return transact(ctx, s.pool, func(tx pgx.Tx) ([]types.Chunk, error) {
		var id string
		err := tx.QueryRow(ctx, `SELECT id FROM companies WHERE id = $1 FOR UPDATE`, companyID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidChunk
		}
		if err != nil {
			return nil, fmt.Errorf("lock company: %w", err)
		}

		var next int
		err = tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(position), -1) + 1 FROM chunks WHERE company_id = $1
		`, companyID).Scan(&next)
		if err != nil {
			return nil, fmt.Errorf("query next position: %w", err)
		}

		chunks := rawChunks(companyID, next, contents)
		if err := insertPostgresChunks(ctx, tx, chunks); err != nil {
			return nil, err
		}
		return chunks, nil
	})
}

// ReplaceChunks deletes oldChunks and inserts newChunks atomically.
func (s *PostgresStore) ReplaceChunks(ctx context.Context, newChunks, oldChunks []types.Chunk) (bool, error) {
	prepared := prepareChunks(newChunks)
	_, err := transact(ctx, s.pool, func(tx pgx.Tx) (struct{}, error) {
		for _, old := range oldChunks {
			tag, err := tx.Exec(ctx, `DELETE FROM chunks WHERE id = $1`, old.ID)
			if err != nil {
				return struct{}{}, fmt.Errorf("delete chunk %s: %w", old.ID, err)
			}
			if tag.RowsAffected() == 0 {
				return struct{}{}, errSuperseded
			}
		}
		return struct{}{}, insertPostgresChunks(ctx, tx, prepared)
	})
	if errors.Is(err, errSuperseded) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func insertPostgresChunks(ctx context.Context, tx pgx.Tx, chunks []types.Chunk) error {
	for _, c := range chunks {
		if c.CompanyID == "" || c.Content == "" {
			return ErrInvalidChunk
		}
		// Vectors travel in text form so the pool needs no registered vector type.
		var embedding *string
		if len(c.Embedding) > 0 {
			text := pgvector.NewVector(c.Embedding).String()
			embedding = &text
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, company_id, position, content, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5::text::vector, $6)
		`, c.ID, c.CompanyID, c.Position, c.Content, embedding, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return nil
}

// GetStats returns aggregate store statistics
func (s *PostgresStore) GetStats(ctx context.Context) (*types.StoreStats, error) {
	var stats types.StoreStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM companies),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL)
	`).Scan(&stats.CompanyCount, &stats.ChunkCount, &stats.EmbeddedChunkCount)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return &stats, nil
}

// transact opens a transaction, runs fn, and commits. Any error from fn rolls
// the transaction back and is returned unchanged.
func transact[T any](ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) (T, error)) (T, error) {
	var zero T
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return zero, fmt.Errorf("begin transaction: %w", err)
	}

	result, err := fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return zero, fmt.Errorf("tx rollback failed: %v (original err: %w)", rbErr, err)
		}
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("commit transaction: %w", err)
	}
	return result, nil
}
