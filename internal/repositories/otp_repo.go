package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/pagebuilder-identity/internal/database"
	"github.com/BradenHooton/pagebuilder-identity/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OTPRepository persists hashed one-time codes. Every state transition is a
// single conditional statement so concurrent verifiers cannot double-count.
type OTPRepository struct {
	db *database.DB
}

func NewOTPRepository(db *database.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

func scanOTPRow(scanner rowScanner) (*models.OTPRecord, error) {
	var record models.OTPRecord
	var channel string

	err := scanner.Scan(
		&record.ID, &record.Identifier, &channel, &record.CodeHash,
		&record.Attempts, &record.CreatedAt, &record.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	record.Channel, err = models.ParseChannel(channel)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// Create stores a new record. Older records for the same identifier and
// channel are left in place; they simply stop being the newest.
func (r *OTPRepository) Create(ctx context.Context, record *models.OTPRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	query := `
		INSERT INTO otp_codes (id, identifier, channel, code_hash, attempts, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		record.ID, record.Identifier, record.Channel.String(), record.CodeHash,
		record.Attempts, record.CreatedAt, record.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create otp: %w", database.MapPostgresError(err))
	}

	return nil
}

// GetLatest returns the newest record for identifier on channel
func (r *OTPRepository) GetLatest(ctx context.Context, identifier string, channel models.Channel) (*models.OTPRecord, error) {
	query := `
		SELECT id, identifier, channel, code_hash, attempts, created_at, expires_at
		FROM otp_codes
		WHERE identifier = $1 AND channel = $2
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`

	return scanOTPRow(r.db.Pool.QueryRow(ctx, query, identifier, channel.String()))
}

// IncrementAttempts bumps the counter only while it is below max and returns
// the new value. models.ErrNotFound means the record is gone or already at max.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, id string, max int) (int, error) {
	query := `
		UPDATE otp_codes SET attempts = attempts + 1
		WHERE id = $1 AND attempts < $2
		RETURNING attempts
	`

	var attempts int
	if err := r.db.Pool.QueryRow(ctx, query, id, max).Scan(&attempts); err != nil {
		return 0, database.MapPostgresError(err)
	}

	return attempts, nil
}

// Delete claims record by removing it, together with every older record for
// the same identifier and channel. It reports whether this call removed the
// record; a caller that lost the race gets false and nothing is touched.
func (r *OTPRepository) Delete(ctx context.Context, record *models.OTPRecord) (bool, error) {
	claimed := false

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var createdAt time.Time
		var seq int64

		err := tx.QueryRow(ctx,
			`DELETE FROM otp_codes WHERE id = $1 RETURNING created_at, seq`,
			record.ID,
		).Scan(&createdAt, &seq)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		claimed = true

		// Older codes must not become the newest once this one is gone
		_, err = tx.Exec(ctx, `
			DELETE FROM otp_codes
			WHERE identifier = $1 AND channel = $2 AND (created_at, seq) < ($3::timestamptz, $4::bigint)
		`, record.Identifier, record.Channel.String(), createdAt, seq)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete otp: %w", err)
	}

	return claimed, nil
}

// DeleteExpired removes records expired at before and returns the count
func (r *OTPRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM otp_codes WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired otps: %w", err)
	}

	return result.RowsAffected(), nil
}
