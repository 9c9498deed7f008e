package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/messagestack/apiserver/internal/store"
	"github.com/messagestack/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestUserRepositoryEmailUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	_, err := repo.Create(ctx, types.User{ID: "u1", Email: "Jane@Example.com"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, types.User{ID: "u2", Email: " jane@example.COM "})
	assert.ErrorIs(t, err, store.ErrConflict)

	found, err := repo.GetByEmail(ctx, "JANE@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", found.ID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConsentRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewConsentRepository()

	_, err := repo.Replace(ctx, types.ConsentRecord{
		UserID:   "u1",
		Granted:  true,
		Purposes: []types.Purpose{types.PurposeTrendAnalysis},
	})
	require.NoError(t, err)

	got, err := repo.GetByUser(ctx, "u1")
	require.NoError(t, err)
	got.Purposes[0] = types.PurposePersonalization

	again, err := repo.GetByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, types.PurposeTrendAnalysis, again.Purposes[0])

	assert.ErrorIs(t, repo.SetGranted(ctx, "nobody", false, time.Now()), store.ErrNotFound)
}

func TestResponseRepositoryConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	repo := NewResponseRepository()
	now := time.Now()

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(ctx, types.SurveyResponse{
				ID:          fmt.Sprintf("r%02d", i),
				SurveyID:    "s1",
				SubmittedAt: now.Add(time.Duration(i) * time.Second),
			})
			assert.NoError(t, err)
			_, err = repo.ListBySurvey(ctx, "s1")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := repo.ListBySurvey(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, all, writers)
}

func TestResponseRepositoryDeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewResponseRepository()
	now := time.Now()
	daysAgo := func(n int) time.Time { return now.AddDate(0, 0, -n) }

	_, _ = repo.Create(ctx, types.SurveyResponse{ID: "old", SurveyID: "s", SubmittedAt: daysAgo(2)})
	_, _ = repo.Create(ctx, types.SurveyResponse{ID: "new", SurveyID: "s", SubmittedAt: now})
	_, _ = repo.Create(ctx, types.SurveyResponse{ID: "short", SurveyID: "s", SubmittedAt: daysAgo(31), RetentionDays: 30})
	_, _ = repo.Create(ctx, types.SurveyResponse{ID: "capped", SurveyID: "s", SubmittedAt: daysAgo(40), RetentionDays: 400})
	_, _ = repo.Create(ctx, types.SurveyResponse{ID: "kept", SurveyID: "s", SubmittedAt: daysAgo(40), RetentionDays: 400, DataRetentionConsent: true})

	deleted, err := repo.DeleteExpired(ctx, now, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	deleted, err = repo.DeleteExpired(ctx, now, 1)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	remaining, err := repo.ListBySurvey(ctx, "s")
	require.NoError(t, err)
	ids := make([]string, 0, len(remaining))
	for _, response := range remaining {
		ids = append(ids, response.ID)
	}
	assert.ElementsMatch(t, []string{"new", "kept"}, ids)
}

func TestAuditRepositoryListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, user := range []string{"u1", "u2", "u1", "u1"} {
		require.NoError(t, repo.Append(ctx, types.AuditEntry{
			ID:        fmt.Sprintf("a%d", i),
			UserID:    user,
			Action:    "test",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	entries, err := repo.List(ctx, types.AuditFilter{UserID: "u1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a3", entries[0].ID)
	assert.Equal(t, "a2", entries[1].ID)

	entries, err = repo.List(ctx, types.AuditFilter{Since: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	deleted, err := repo.DeleteBefore(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
}
