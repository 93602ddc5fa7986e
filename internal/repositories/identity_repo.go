package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/pagebuilder-identity/internal/database"
	"github.com/BradenHooton/pagebuilder-identity/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type IdentityRepository struct {
	pool *pgxpool.Pool
}

func NewIdentityRepository(db *database.DB) *IdentityRepository {
	return &IdentityRepository{pool: db.Pool}
}

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const identityColumns = `id, subdomain, email, mobile, name, password_hash, roles, password_changed_at, created_at, updated_at`

func scanIdentityRow(scanner rowScanner) (*models.Identity, error) {
	var identity models.Identity
	var passwordHash *string

	err := scanner.Scan(
		&identity.ID, &identity.Subdomain, &identity.Email, &identity.Mobile,
		&identity.Name, &passwordHash, &identity.Roles, &identity.PasswordChangedAt,
		&identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		identity.PasswordHash = *passwordHash
	}

	return &identity, nil
}

func (r *IdentityRepository) getBy(ctx context.Context, column string, value string) (*models.Identity, error) {
	query := fmt.Sprintf(`SELECT %s FROM identities WHERE %s = $1`, identityColumns, column)
	return scanIdentityRow(r.pool.QueryRow(ctx, query, value))
}

func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	return r.getBy(ctx, "id", id)
}

func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	return r.getBy(ctx, "email", email)
}

func (r *IdentityRepository) GetByMobile(ctx context.Context, mobile string) (*models.Identity, error) {
	return r.getBy(ctx, "mobile", mobile)
}

func (r *IdentityRepository) GetBySubdomain(ctx context.Context, subdomain string) (*models.Identity, error) {
	return r.getBy(ctx, "subdomain", subdomain)
}

// Create inserts a new identity. Any unique collision maps to models.ErrConflict.
func (r *IdentityRepository) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	identity.ID = uuid.New().String()

	now := time.Now()
	identity.CreatedAt = now
	identity.UpdatedAt = now

	if len(identity.Roles) == 0 {
		identity.Roles = []string{models.RoleUser}
	}

	var passwordHash *string
	if identity.PasswordHash != "" {
		passwordHash = &identity.PasswordHash
		identity.PasswordChangedAt = &now
	}

	query := fmt.Sprintf(`
		INSERT INTO identities (id, subdomain, email, mobile, name, password_hash, roles, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING %s
	`, identityColumns)

	return scanIdentityRow(r.pool.QueryRow(ctx, query,
		identity.ID, identity.Subdomain, identity.Email, identity.Mobile,
		identity.Name, passwordHash, identity.Roles, identity.PasswordChangedAt,
		identity.CreatedAt, identity.UpdatedAt,
	))
}

// UpdatePassword replaces the stored hash and stamps password_changed_at
func (r *IdentityRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE identities
		SET password_hash = $2, password_changed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", database.MapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
