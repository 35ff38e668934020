package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"plate-ingest/internal/domain/entity"
)

// setupGormTestRepo создаёт файловую SQLite-базу во временном каталоге,
// чтобы все соединения видели одни и те же данные.
func setupGormTestRepo(t *testing.T) *GormPlateRepository {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "plates.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	repo, err := OpenGormPlateRepository("sqlite", dsn)
	require.NoError(t, err, "Failed to open test database")
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestGormPlateRepository_InsertAndFind(t *testing.T) {
	repo := setupGormTestRepo(t)
	ctx := context.Background()

	draft := entity.PlateRecord{
		CanonicalText: "ABC1234",
		RawText:       "abc 1234",
		OCRConfidence: 0.92,
		X2:            40,
		Y2:            12,
		BlobRef:       "plates/ABC1234/r-0.jpg",
		RequestID:     "r",
	}
	rec, created, err := repo.InsertIfAbsent(ctx, draft)
	require.NoError(t, err)
	require.True(t, created)
	require.NotZero(t, rec.ID)

	found, err := repo.FindByText(ctx, "ABC1234")
	require.NoError(t, err)
	require.Equal(t, rec.ID, found.ID)
	require.Equal(t, "abc 1234", found.RawText)
	require.Equal(t, entity.DefaultSource, found.Source)
	require.Equal(t, "plates/ABC1234/r-0.jpg", found.BlobRef)
	require.False(t, found.BlobMissing)
	require.False(t, found.CreatedAt.IsZero())
}

func TestGormPlateRepository_ConflictReturnsExisting(t *testing.T) {
	repo := setupGormTestRepo(t)
	ctx := context.Background()

	first, created, err := repo.InsertIfAbsent(ctx, entity.PlateRecord{CanonicalText: "XYZ9999", Source: "gate-1"})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := repo.InsertIfAbsent(ctx, entity.PlateRecord{CanonicalText: "XYZ9999", Source: "gate-2", BlobMissing: true})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "gate-1", second.Source)

	var count int64
	require.NoError(t, repo.db.Model(&entity.PlateRecord{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestGormPlateRepository_ConcurrentInserts(t *testing.T) {
	repo := setupGormTestRepo(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make([]bool, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i], errs[i] = repo.InsertIfAbsent(ctx, entity.PlateRecord{CanonicalText: "RACE1"})
		}(i)
	}
	wg.Wait()

	created := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i] {
			created++
		}
	}
	require.Equal(t, 1, created)
}

func TestGormPlateRepository_NotFound(t *testing.T) {
	repo := setupGormTestRepo(t)
	_, err := repo.FindByText(context.Background(), "MISSING")
	require.ErrorIs(t, err, entity.ErrNotFound)
}

func TestOpenGormPlateRepository_UnknownDriver(t *testing.T) {
	_, err := OpenGormPlateRepository("oracle", "")
	require.Error(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	require.False(t, IsUniqueViolation(nil))
	require.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	require.True(t, IsUniqueViolation(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: plate_records.canonical_text")))
	require.False(t, IsUniqueViolation(errors.New("database is locked")))
}
