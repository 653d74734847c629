package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hyperengineering/csab/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises behavior every Store backend must share.
// newStore must return an empty, migrated store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("AdminExists", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		admin, err := s.CreateAdmin(ctx, "admin", "1234")
		require.NoError(t, err)
		assert.NotEmpty(t, admin.ID)
		assert.NotEqual(t, "1234", admin.PasswordHash)

		ok, err := s.AdminExists(ctx, "admin", "1234")
		require.NoError(t, err)
		assert.True(t, ok, "valid credentials")

		ok, err = s.AdminExists(ctx, "admin", "wrong")
		require.NoError(t, err)
		assert.False(t, ok, "wrong password")

		ok, err = s.AdminExists(ctx, "nobody", "1234")
		require.NoError(t, err)
		assert.False(t, ok, "unknown admin")
	})

	t.Run("CreateAdmin_Duplicate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.CreateAdmin(ctx, "admin", "1234")
		require.NoError(t, err)

		_, err = s.CreateAdmin(ctx, "admin", "other")
		assert.ErrorIs(t, err, ErrDuplicateAdmin)
	})

	t.Run("GetOrCreateCompany_Idempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.GetOrCreateCompany(ctx, "MyCompany")
		require.NoError(t, err)
		assert.NotEmpty(t, first.ID)
		assert.Equal(t, "MyCompany", first.Name)
		assert.False(t, first.CreatedAt.IsZero())

		second, err := s.GetOrCreateCompany(ctx, "MyCompany")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		other, err := s.GetOrCreateCompany(ctx, "OtherCompany")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, other.ID)
	})

	t.Run("ListChunks_EmptyCompany", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		company, err := s.GetOrCreateCompany(ctx, "Empty")
		require.NoError(t, err)

		chunks, err := s.ListChunks(ctx, company.ID)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("AppendChunks_AssignsConsecutivePositions", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		company, err := s.GetOrCreateCompany(ctx, "MyCompany")
		require.NoError(t, err)

		added, err := s.AppendChunks(ctx, company.ID, []string{"first", "second"})
		require.NoError(t, err)
		require.Len(t, added, 2)
		assert.NotEmpty(t, added[0].ID)
		assert.Equal(t, 0, added[0].Position)
		assert.Equal(t, 1, added[1].Position)

		more, err := s.AppendChunks(ctx, company.ID, []string{"third"})
		require.NoError(t, err)
		require.Len(t, more, 1)
		assert.Equal(t, 2, more[0].Position)

		chunks, err := s.ListChunks(ctx, company.ID)
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		for i, want := range []string{"first", "second", "third"} {
			assert.Equal(t, want, chunks[i].Content)
			assert.Equal(t, i, chunks[i].Position)
		}
		assert.False(t, chunks[0].Embedded())
		assert.Equal(t, company.ID, chunks[0].CompanyID)
	})

	t.Run("AppendChunks_InvalidChunkWritesNothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		company, err := s.GetOrCreateCompany(ctx, "MyCompany")
		require.NoError(t, err)

		_, err = s.AppendChunks(ctx, company.ID, []string{"ok", ""})
		assert.ErrorIs(t, err, ErrInvalidChunk)

		chunks, err := s.ListChunks(ctx, company.ID)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("AppendChunks_UnknownCompany", func(t *testing.T) {
		s := newStore(t)

		_, err := s.AppendChunks(context.Background(), "missing", []string{"orphan"})
		assert.Error(t, err)
	})

	t.Run("AppendChunks_ConcurrentPositionsUnique", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		company, err := s.GetOrCreateCompany(ctx, "MyCompany")
		require.NoError(t, err)

		const writers, perWriter = 8, 3
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				contents := make([]string, perWriter)
				for i := range contents {
					contents[i] = fmt.Sprintf("writer-%d-part-%d", w, i)
				}
				_, err := s.AppendChunks(ctx, company.ID, contents)
				errs <- err
			}(w)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		chunks, err := s.ListChunks(ctx, company.ID)
		require.NoError(t, err)
		require.Len(t, chunks, writers*perWriter)
		for i, c := range chunks {
			assert.Equal(t, i, c.Position, "positions must be distinct and gap-free")
		}
		// Each append lands as one contiguous run.
		for i := 0; i < len(chunks); i += perWriter {
			prefix := chunks[i].Content[:strings.LastIndex(chunks[i].Content, "-part-")]
			for j := 1; j < perWriter; j++ {
				assert.Equal(t, fmt.Sprintf("%s-part-%d", prefix, j), chunks[i+j].Content)
			}
		}
	})

	t.Run("ListChunks_IsolatedPerCompany", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.GetOrCreateCompany(ctx, "A")
		require.NoError(t, err)
		b, err := s.GetOrCreateCompany(ctx, "B")
		require.NoError(t, err)

		_, err = s.AppendChunks(ctx, a.ID, []string{"a-only"})
		require.NoError(t, err)

		chunks, err := s.ListChunks(ctx, b.ID)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("ReplaceChunks_SwapsChunkSet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		company, err := s.GetOrCreateCompany(ctx, "MyCompany")
		require.NoError(t, err)
		old, err := s.AppendChunks(ctx, company.ID, []string{"alpha", "beta"})
		require.NoError(t, err)

		replacement := []types.Chunk{
			{CompanyID: company.ID, Position: 0, Content: "alpha", Embedding: []float32{1, 2, 3}},
			{CompanyID: company.ID, Position: 1, Content: "beta", Embedding: []float32{4, 5, 6}},
		}
		ok, err := s.ReplaceChunks(ctx, replacement, old)
		require.NoError(t, err)
		assert.True(t, ok)

		chunks, err := s.ListChunks(ctx, company.ID)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, []float32{1, 2, 3}, chunks[0].Embedding)
		assert.Equal(t, []float32{4, 5, 6}, chunks[1].Embedding)
		for _, c := range chunks {
			assert.NotEqual(t, old[0].ID, c.ID)
			assert.NotEqual(t, old[1].ID, c.ID)
		}
	})

	t.Run("ReplaceChunks_StaleOldSetReturnsFalse", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		company, err := s.GetOrCreateCompany(ctx, "MyCompany")
		require.NoError(t, err)
		old, err := s.AppendChunks(ctx, company.ID, []string{"alpha"})
		require.NoError(t, err)

		first := []types.Chunk{{CompanyID: company.ID, Content: "alpha", Embedding: []float32{1}}}
		ok, err := s.ReplaceChunks(ctx, first, old)
		require.NoError(t, err)
		require.True(t, ok)

		// The same old set is gone now; a second replace must not write.
		second := []types.Chunk{{CompanyID: company.ID, Content: "alpha", Embedding: []float32{2}}}
		ok, err = s.ReplaceChunks(ctx, second, old)
		require.NoError(t, err)
		assert.False(t, ok)

		chunks, err := s.ListChunks(ctx, company.ID)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, []float32{1}, chunks[0].Embedding)
	})

	t.Run("ReplaceChunks_DuplicatePositionRollsBack", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		company, err := s.GetOrCreateCompany(ctx, "MyCompany")
		require.NoError(t, err)
		old, err := s.AppendChunks(ctx, company.ID, []string{"alpha", "beta"})
		require.NoError(t, err)

		// Position 1 still belongs to "beta", which is not being replaced.
		clash := []types.Chunk{{CompanyID: company.ID, Position: 1, Content: "alpha", Embedding: []float32{1}}}
		_, err = s.ReplaceChunks(ctx, clash, old[:1])
		assert.Error(t, err)

		chunks, err := s.ListChunks(ctx, company.ID)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, old[0].ID, chunks[0].ID)
		assert.False(t, chunks[0].Embedded())
	})

	t.Run("GetStats", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		company, err := s.GetOrCreateCompany(ctx, "MyCompany")
		require.NoError(t, err)
		old, err := s.AppendChunks(ctx, company.ID, []string{"alpha", "beta"})
		require.NoError(t, err)
		_, err = s.ReplaceChunks(ctx,
			[]types.Chunk{{CompanyID: company.ID, Position: 0, Content: "alpha", Embedding: []float32{1}}},
			old[:1])
		require.NoError(t, err)

		stats, err := s.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.CompanyCount)
		assert.Equal(t, int64(2), stats.ChunkCount)
		assert.Equal(t, int64(1), stats.EmbeddedChunkCount)
	})
}
