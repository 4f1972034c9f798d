package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"denaro/internal/domain/banking"
)

// SessionRepository stores one aggregator session per user.
type SessionRepository struct {
	db *DB
}

var _ banking.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Load fetches the user's session. Returns (nil, nil) when the user has
// never created one; absence is not an error.
func (r *SessionRepository) Load(ctx context.Context, userID string) (*banking.Session, error) {
	query := `
		SELECT user_id, access_token, refresh_token, access_expires_at, refresh_expires_at, created_at, updated_at
		FROM sessions
		WHERE user_id = $1
	`

	var session banking.Session
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&session.UserID, &session.AccessToken, &session.RefreshToken,
		&session.AccessExpiresAt, &session.RefreshExpiresAt,
		&session.CreatedAt, &session.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load session: %v", banking.ErrPersistence, err)
	}

	return &session, nil
}

// Save inserts a new session row.
func (r *SessionRepository) Save(ctx context.Context, session *banking.Session) error {
	query := `
		INSERT INTO sessions (user_id, access_token, refresh_token, access_expires_at, refresh_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`

	_, err := r.db.ExecContext(ctx, query,
		session.UserID, session.AccessToken, session.RefreshToken,
		session.AccessExpiresAt, session.RefreshExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to save session: %v", banking.ErrPersistence, err)
	}

	return nil
}

// Update overwrites the token and expiry fields of an existing row.
// Callers Load before they Update, so a missing row is a fault.
func (r *SessionRepository) Update(ctx context.Context, session *banking.Session) error {
	query := `
		UPDATE sessions
		SET access_token = $2, refresh_token = $3, access_expires_at = $4, refresh_expires_at = $5, updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		session.UserID, session.AccessToken, session.RefreshToken,
		session.AccessExpiresAt, session.RefreshExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to update session: %v", banking.ErrPersistence, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to check session update: %v", banking.ErrPersistence, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: no session to update for user %s", banking.ErrPersistence, session.UserID)
	}

	return nil
}

// Delete removes the user's session, forcing a full re-exchange on the
// next resolve. Deleting a missing row is a no-op.
func (r *SessionRepository) Delete(ctx context.Context, userID string) error {
	query := `DELETE FROM sessions WHERE user_id = $1`

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("%w: failed to delete session: %v", banking.ErrPersistence, err)
	}
	return nil
}
