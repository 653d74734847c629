package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperengineering/csab/internal/types"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the SQLite-backed store for admins, companies and chunks.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection serializes writers and keeps :memory: databases
	// visible to every query.
	db.SetMaxOpenConns(1)

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db, DialectSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateAdmin stores a new admin with a bcrypt hash of password.
func (s *SQLiteStore) CreateAdmin(ctx context.Context, name, password string) (*types.Admin, error) {
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO admins (id, name, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, admin.ID, admin.Name, admin.PasswordHash, admin.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, ErrDuplicateAdmin
		}
		return nil, fmt.Errorf("insert admin: %w", err)
	}

	return admin, nil
}

// AdminExists reports whether an admin with this name and password exists.
func (s *SQLiteStore) AdminExists(ctx context.Context, name, password string) (bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM admins WHERE name = ?`, name).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query admin: %w", err)
	}
	return passwordMatches(hash, password)
}

// GetOrCreateCompany returns the company with this name, creating it first
// if it does not exist.
func (s *SQLiteStore) GetOrCreateCompany(ctx context.Context, name string) (*types.Company, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, ulid.Make().String(), name, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert company: %w", err)
	}

	var company types.Company
	var createdAt string
	err = s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM companies WHERE name = ?
	`, name).Scan(&company.ID, &company.Name, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("query company: %w", err)
	}
	company.CreatedAt = parseTime(createdAt)

	return &company, nil
}

// ListChunks returns the company's chunks ordered by position.
func (s *SQLiteStore) ListChunks(ctx context.Context, companyID string) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, position, content, embedding, created_at
		FROM chunks
		WHERE company_id = ?
		ORDER BY position, id
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var c types.Chunk
		var embeddingBlob []byte
		var createdAt string
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Position, &c.Content, &embeddingBlob, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if len(embeddingBlob) > 0 {
			c.Embedding = unpackEmbedding(embeddingBlob)
		}
		c.CreatedAt = parseTime(createdAt)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	return chunks, nil
}

// AppendChunks stores contents after the company's last chunk. The single
// connection serializes the position read with the insert.
func (s *SQLiteStore) AppendChunks(ctx context.Context, companyID string, contents []string) ([]types.Chunk, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), -1) + 1 FROM chunks WHERE company_id = ?
	`, companyID).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("query next position: %w", err)
	}

	chunks := rawChunks(companyID, next, contents)
	if err := insertSQLiteChunks(ctx, tx, chunks); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return chunks, nil
}

// ReplaceChunks deletes oldChunks and inserts newChunks atomically.
func (s *SQLiteStore) ReplaceChunks(ctx context.Context, newChunks, oldChunks []types.Chunk) (bool, error) {
	prepared := prepareChunks(newChunks)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, old := range oldChunks {
		res, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, old.ID)
		if err != nil {
			return false, fmt.Errorf("delete chunk %s: %w", old.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("delete chunk %s: %w", old.ID, err)
		}
		if n == 0 {
			return false, nil
		}
	}

	if err := insertSQLiteChunks(ctx, tx, prepared); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}

func insertSQLiteChunks(ctx context.Context, tx *sql.Tx, chunks []types.Chunk) error {
	for _, c := range chunks {
		if c.CompanyID == "" || c.Content == "" {
			return ErrInvalidChunk
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, company_id, position, content, embedding, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, c.ID, c.CompanyID, c.Position, c.Content, embeddingValue(c.Embedding), c.CreatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return nil
}

// GetStats returns aggregate store statistics
func (s *SQLiteStore) GetStats(ctx context.Context) (*types.StoreStats, error) {
	var stats types.StoreStats
	err := s.db.QueryRowContext(ctx, `
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

func isSQLiteUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// embeddingValue maps an empty vector to SQL NULL.
func embeddingValue(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return packEmbedding(v)
}

func packEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func unpackEmbedding(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
