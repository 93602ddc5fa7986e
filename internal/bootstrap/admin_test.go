package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/BradenHooton/pagebuilder-identity/internal/config"
	"github.com/BradenHooton/pagebuilder-identity/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	existing  *models.Identity
	lookupErr error
	created   []*models.Identity
}

func (f *fakeStore) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.existing != nil && f.existing.Email != nil && *f.existing.Email == email {
		return f.existing, nil
	}
	return nil, models.ErrNotFound
}

func (f *fakeStore) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	identity.ID = "admin-id"
	f.created = append(f.created, identity)
	return identity, nil
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnsureAdmin_Disabled(t *testing.T) {
	store := &fakeStore{}
	err := EnsureAdmin(context.Background(), config.AdminConfig{}, store, plainHasher{}, discardLogger())
	require.NoError(t, err)
	assert.Empty(t, store.created)
}

func TestEnsureAdmin_Creates(t *testing.T) {
	store := &fakeStore{}
	cfg := config.AdminConfig{Email: " Root@Example.com ", Password: "Sup3r-Secret!", Subdomain: "Admin"}

	require.NoError(t, EnsureAdmin(context.Background(), cfg, store, plainHasher{}, discardLogger()))

	require.Len(t, store.created, 1)
	admin := store.created[0]
	assert.Equal(t, "root@example.com", *admin.Email)
	assert.Equal(t, "admin", admin.Subdomain)
	assert.Equal(t, "hashed:Sup3r-Secret!", admin.PasswordHash)
	assert.True(t, admin.HasRole(models.RoleSuperadmin))
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	email := "root@example.com"
	store := &fakeStore{existing: &models.Identity{ID: "x", Email: &email}}
	cfg := config.AdminConfig{Email: email, Password: "Sup3r-Secret!", Subdomain: "admin"}

	require.NoError(t, EnsureAdmin(context.Background(), cfg, store, plainHasher{}, discardLogger()))
	assert.Empty(t, store.created)
}

func TestEnsureAdmin_Errors(t *testing.T) {
	cfg := config.AdminConfig{Email: "root@example.com", Password: "Sup3r-Secret!", Subdomain: "admin"}

	err := EnsureAdmin(context.Background(), cfg, &fakeStore{lookupErr: errors.New("db down")}, plainHasher{}, discardLogger())
	assert.ErrorContains(t, err, "db down")

	weak := cfg
	weak.Password = "weak"
	store := &fakeStore{}
	err = EnsureAdmin(context.Background(), weak, store, plainHasher{}, discardLogger())
	assert.Error(t, err)
	assert.Empty(t, store.created)
}
