package postgres

import (
	"context"
	"fmt"

	"denaro/internal/domain/banking"
)

// DeviceRepository stores FCM device tokens per user.
type DeviceRepository struct {
	db *DB
}

var _ banking.DeviceRepository = (*DeviceRepository)(nil)

func NewDeviceRepository(db *DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Register upserts a device token for a user. Re-registering the same
// token just bumps updated_at.
func (r *DeviceRepository) Register(ctx context.Context, userID, token string) error {
	query := `
		INSERT INTO device_tokens (user_id, token, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (token) DO UPDATE SET user_id = $1, updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, userID, token); err != nil {
		return fmt.Errorf("%w: failed to register device token: %v", banking.ErrPersistence, err)
	}
	return nil
}

// ListTokens returns all device tokens registered for a user.
func (r *DeviceRepository) ListTokens(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT token FROM device_tokens WHERE user_id = $1`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list device tokens: %v", banking.ErrPersistence, err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("%w: failed to scan device token: %v", banking.ErrPersistence, err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate device tokens: %v", banking.ErrPersistence, err)
	}

	return tokens, nil
}
