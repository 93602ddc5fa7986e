//go:build integration

package repositories

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/pagebuilder-identity/internal/models"
	"github.com/BradenHooton/pagebuilder-identity/internal/testutil"
)

var testDB *testutil.TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = testutil.SetupTestDatabase(ctx)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	_ = testDB.Teardown(ctx)
	os.Exit(code)
}

func resetTables(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.CleanupTables(context.Background()))
}

func strPtr(s string) *string { return &s }

func TestIdentityRepository_CreateAndLookup(t *testing.T) {
	resetTables(t)
	repo := NewIdentityRepository(testDB.DB)
	ctx := context.Background()

	created, err := repo.Create(ctx, &models.Identity{
		Subdomain:    "acme",
		Email:        strPtr("owner@acme.io"),
		Mobile:       strPtr("+919876543210"),
		Name:         "Owner",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, []string{models.RoleUser}, created.Roles)
	assert.NotNil(t, created.PasswordChangedAt)

	byEmail, err := repo.GetByEmail(ctx, "owner@acme.io")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byMobile, err := repo.GetByMobile(ctx, "+919876543210")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byMobile.ID)

	bySubdomain, err := repo.GetBySubdomain(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, created.ID, bySubdomain.ID)

	_, err = repo.GetByEmail(ctx, "nobody@acme.io")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestIdentityRepository_UniqueConflicts(t *testing.T) {
	resetTables(t)
	repo := NewIdentityRepository(testDB.DB)
	ctx := context.Background()

	_, err := repo.Create(ctx, &models.Identity{Subdomain: "acme", Email: strPtr("a@acme.io")})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &models.Identity{Subdomain: "acme", Email: strPtr("b@acme.io")})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = repo.Create(ctx, &models.Identity{Subdomain: "other", Email: strPtr("a@acme.io")})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestIdentityRepository_UpdatePassword(t *testing.T) {
	resetTables(t)
	repo := NewIdentityRepository(testDB.DB)
	ctx := context.Background()

	created, err := repo.Create(ctx, &models.Identity{Subdomain: "acme", Email: strPtr("a@acme.io")})
	require.NoError(t, err)
	assert.Nil(t, created.PasswordChangedAt)

	require.NoError(t, repo.UpdatePassword(ctx, created.ID, "new-hash"))

	updated, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", updated.PasswordHash)
	assert.NotNil(t, updated.PasswordChangedAt)

	err = repo.UpdatePassword(ctx, "00000000-0000-0000-0000-000000000000", "x")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func newRecord(identifier string, channel models.Channel, createdAt time.Time) *models.OTPRecord {
	return &models.OTPRecord{
		Identifier: identifier,
		Channel:    channel,
		CodeHash:   "hash",
		CreatedAt:  createdAt,
		ExpiresAt:  createdAt.Add(10 * time.Minute),
	}
}

func TestOTPRepository_GetLatestReturnsNewest(t *testing.T) {
	resetTables(t)
	repo := NewOTPRepository(testDB.DB)
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Microsecond)

	older := newRecord("a@acme.io", models.ChannelEmail, t0)
	require.NoError(t, repo.Create(ctx, older))
	newer := newRecord("a@acme.io", models.ChannelEmail, t0.Add(time.Second))
	require.NoError(t, repo.Create(ctx, newer))
	// Same timestamp falls back to insertion order
	tied := newRecord("a@acme.io", models.ChannelEmail, t0.Add(time.Second))
	require.NoError(t, repo.Create(ctx, tied))

	latest, err := repo.GetLatest(ctx, "a@acme.io", models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, tied.ID, latest.ID)

	_, err = repo.GetLatest(ctx, "a@acme.io", models.ChannelReset)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOTPRepository_IncrementAttemptsStopsAtMax(t *testing.T) {
	resetTables(t)
	repo := NewOTPRepository(testDB.DB)
	ctx := context.Background()

	record := newRecord("a@acme.io", models.ChannelEmail, time.Now())
	require.NoError(t, repo.Create(ctx, record))

	for want := 1; want <= 3; want++ {
		got, err := repo.IncrementAttempts(ctx, record.ID, 3)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := repo.IncrementAttempts(ctx, record.ID, 3)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOTPRepository_ConcurrentIncrementsNeverExceedMax(t *testing.T) {
	resetTables(t)
	repo := NewOTPRepository(testDB.DB)
	ctx := context.Background()

	record := newRecord("race@acme.io", models.ChannelEmail, time.Now())
	require.NoError(t, repo.Create(ctx, record))

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.IncrementAttempts(ctx, record.ID, 5)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, models.ErrNotFound) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	latest, err := repo.GetLatest(ctx, "race@acme.io", models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, 5, latest.Attempts)
}

func TestOTPRepository_DeleteIsClaimedOnce(t *testing.T) {
	resetTables(t)
	repo := NewOTPRepository(testDB.DB)
	ctx := context.Background()

	record := newRecord("a@acme.io", models.ChannelEmail, time.Now())
	require.NoError(t, repo.Create(ctx, record))

	deleted, err := repo.Delete(ctx, record)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, record)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestOTPRepository_DeleteRemovesOlderRecords(t *testing.T) {
	resetTables(t)
	repo := NewOTPRepository(testDB.DB)
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Microsecond)

	oldest := newRecord("a@acme.io", models.ChannelEmail, t0)
	require.NoError(t, repo.Create(ctx, oldest))
	older := newRecord("a@acme.io", models.ChannelEmail, t0.Add(time.Second))
	require.NoError(t, repo.Create(ctx, older))
	claimed := newRecord("a@acme.io", models.ChannelEmail, t0.Add(time.Second))
	require.NoError(t, repo.Create(ctx, claimed))
	newer := newRecord("a@acme.io", models.ChannelEmail, t0.Add(2*time.Second))
	require.NoError(t, repo.Create(ctx, newer))
	otherChannel := newRecord("a@acme.io", models.ChannelReset, t0)
	require.NoError(t, repo.Create(ctx, otherChannel))

	deleted, err := repo.Delete(ctx, claimed)
	require.NoError(t, err)
	require.True(t, deleted)

	latest, err := repo.GetLatest(ctx, "a@acme.io", models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	// Claiming the newest leaves nothing behind for the pair
	deleted, err = repo.Delete(ctx, newer)
	require.NoError(t, err)
	require.True(t, deleted)

	_, err = repo.GetLatest(ctx, "a@acme.io", models.ChannelEmail)
	assert.ErrorIs(t, err, models.ErrNotFound)

	reset, err := repo.GetLatest(ctx, "a@acme.io", models.ChannelReset)
	require.NoError(t, err)
	assert.Equal(t, otherChannel.ID, reset.ID)
}

func TestOTPRepository_DeleteExpired(t *testing.T) {
	resetTables(t)
	repo := NewOTPRepository(testDB.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, newRecord("old@acme.io", models.ChannelEmail, now.Add(-time.Hour))))
	require.NoError(t, repo.Create(ctx, newRecord("new@acme.io", models.ChannelEmail, now)))

	removed, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = repo.GetLatest(ctx, "new@acme.io", models.ChannelEmail)
	assert.NoError(t, err)
}

func TestRateLimitRepository_FixedWindow(t *testing.T) {
	resetTables(t)
	repo := NewRateLimitRepository(testDB.DB)
	ctx := context.Background()

	now := time.Now().UTC()
	repo.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		allowed, err := repo.CompareAndIncrement(ctx, "a@acme.io", 3, 10*time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := repo.CompareAndIncrement(ctx, "a@acme.io", 3, 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	var count int
	require.NoError(t, testDB.Pool.QueryRow(ctx, `SELECT count FROM otp_rate_limits WHERE key = $1`, "a@acme.io").Scan(&count))
	assert.Equal(t, 3, count)

	repo.now = func() time.Time { return now.Add(10 * time.Minute) }
	allowed, err = repo.CompareAndIncrement(ctx, "a@acme.io", 3, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, testDB.Pool.QueryRow(ctx, `SELECT count FROM otp_rate_limits WHERE key = $1`, "a@acme.io").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRateLimitRepository_ConcurrentCallsNeverExceedCeiling(t *testing.T) {
	resetTables(t)
	repo := NewRateLimitRepository(testDB.DB)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, err := repo.CompareAndIncrement(ctx, "race@acme.io", 3, time.Minute)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, allowedCount)
}

func TestRateLimitRepository_DeleteStale(t *testing.T) {
	resetTables(t)
	repo := NewRateLimitRepository(testDB.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	repo.now = func() time.Time { return now.Add(-time.Hour) }
	_, err := repo.CompareAndIncrement(ctx, "old@acme.io", 3, time.Minute)
	require.NoError(t, err)

	repo.now = func() time.Time { return now }
	_, err = repo.CompareAndIncrement(ctx, "new@acme.io", 3, time.Minute)
	require.NoError(t, err)

	removed, err := repo.DeleteStale(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
