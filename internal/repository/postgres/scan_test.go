package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvtailor/cvtailor/internal/domain"
)

func TestScanRepository(t *testing.T) {
	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	db := sqlx.NewDb(testDB.DB, "postgres")
	repo := NewRepositories(db).Scans
	ctx := context.Background()

	newRecord := func(rawURL, outcome string, at time.Time) *domain.ScanRecord {
		result := &domain.ScanResult{
			ScanID:    uuid.New(),
			URL:       rawURL,
			ScannedAt: at,
			Duration:  250 * time.Millisecond,
		}
		if outcome == domain.OutcomeForms {
			result.Forms = []domain.ShadowFormResult{
				{FormID: "apply", FieldCount: 6},
				{FormID: "eeo", FieldCount: 4},
			}
			result.Adapter = "workable"
		}
		return domain.NewScanRecord(result)
	}

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("Save_and_GetByID", func(t *testing.T) {
		testDB.TruncateTables(t)
		record := newRecord("https://apply.workable.com/acme/j/1", domain.OutcomeForms, base)

		require.NoError(t, repo.Save(ctx, record))

		fetched, err := repo.GetByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, "apply.workable.com", fetched.Host)
		assert.Equal(t, "workable", fetched.Adapter)
		assert.Equal(t, domain.OutcomeForms, fetched.Outcome)
		assert.Equal(t, 10, fetched.FieldCount)
		assert.Equal(t, int64(250), fetched.DurationMs)
		require.Len(t, fetched.Forms, 2)
		assert.Equal(t, "apply", fetched.Forms[0].FormID)
		assert.Equal(t, 4, fetched.Forms[1].FieldCount)
	})

	t.Run("Save_Duplicate", func(t *testing.T) {
		testDB.TruncateTables(t)
		record := newRecord("https://jobs.example.com/1", domain.OutcomeEmpty, base)

		require.NoError(t, repo.Save(ctx, record))
		err := repo.Save(ctx, record)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidInputVal)
	})

	t.Run("GetByID_NotFound", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFoundVal)
	})

	t.Run("List", func(t *testing.T) {
		testDB.TruncateTables(t)
		require.NoError(t, repo.Save(ctx, newRecord("https://a.example.com/1", domain.OutcomeForms, base)))
		require.NoError(t, repo.Save(ctx, newRecord("https://a.example.com/2", domain.OutcomeEmpty, base.Add(time.Minute))))
		require.NoError(t, repo.Save(ctx, newRecord("https://b.example.com/1", domain.OutcomeForms, base.Add(2*time.Minute))))

		all, err := repo.List(ctx, domain.ScanFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "b.example.com", all[0].Host, "newest first")

		byHost, err := repo.List(ctx, domain.ScanFilter{Host: "a.example.com"})
		require.NoError(t, err)
		assert.Len(t, byHost, 2)

		byOutcome, err := repo.List(ctx, domain.ScanFilter{Outcome: domain.OutcomeForms, Limit: 1})
		require.NoError(t, err)
		require.Len(t, byOutcome, 1)
		assert.Equal(t, "https://b.example.com/1", byOutcome[0].URL)
	})

	t.Run("CountByOutcome", func(t *testing.T) {
		testDB.TruncateTables(t)
		require.NoError(t, repo.Save(ctx, newRecord("https://a.example.com/1", domain.OutcomeForms, base)))
		require.NoError(t, repo.Save(ctx, newRecord("https://a.example.com/2", domain.OutcomeForms, base.Add(time.Hour))))
		require.NoError(t, repo.Save(ctx, newRecord("https://a.example.com/3", domain.OutcomeEmpty, base.Add(time.Hour))))

		counts, err := repo.CountByOutcome(ctx, base.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{domain.OutcomeForms: 1, domain.OutcomeEmpty: 1}, counts)
	})
}
