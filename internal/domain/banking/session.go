package banking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// SessionService decides, per request, whether a user's cached aggregator
// session is still valid, needs refreshing, or must be recreated. All
// state lives in the repository; nothing is cached across requests.
//
// Two requests for the same user may race through the state machine and
// both refresh or exchange. Last write to the store wins, which is fine:
// bearer tokens are interchangeable, and the occasional redundant
// exchange is cheaper than serializing on a single-row lock.
type SessionService struct {
	sessions SessionRepository
	tokens   TokenClient
	now      func() time.Time
}

// NewSessionService creates a session resolver. now may be nil, in which
// case time.Now is used.
func NewSessionService(sessions SessionRepository, tokens TokenClient, now func() time.Time) *SessionService {
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		sessions: sessions,
		tokens:   tokens,
		now:      now,
	}
}

// Resolve returns a usable access token for the user, evaluated in this
// strict order:
//
//  1. no stored session: full exchange, save, return
//  2. access token still valid: return it, no network call
//  3. access expired, refresh still valid: refresh, update access
//     fields only, return; a rejected refresh falls back to a full
//     exchange exactly once
//  4. both expired: full exchange, update, return
//
// A credential rejection that survives the fallback surfaces as
// ErrSessionUnavailable. Persistence failures propagate unchanged.
func (s *SessionService) Resolve(ctx context.Context, userID string) (string, error) {
	session, err := s.sessions.Load(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load session for user %s: %w", userID, err)
	}

	now := s.now()

	// State 1: user has never linked, create a session from scratch.
	if session == nil {
		tokens, err := s.tokens.NewToken(ctx)
		if err != nil {
			return "", sessionUnavailable(err)
		}
		session = &Session{
			UserID:           userID,
			AccessToken:      tokens.AccessToken,
			RefreshToken:     tokens.RefreshToken,
			AccessExpiresAt:  tokens.AccessExpiresAt,
			RefreshExpiresAt: tokens.RefreshExpiresAt,
		}
		if err := s.sessions.Save(ctx, session); err != nil {
			return "", fmt.Errorf("failed to save new session for user %s: %w", userID, err)
		}
		return session.AccessToken, nil
	}

	// State 2: the common path, no network call at all.
	if session.AccessValid(now) {
		return session.AccessToken, nil
	}

	// State 3: refresh the access token; the stored refresh token and
	// its expiry stay untouched.
	if session.RefreshValid(now) {
		grant, err := s.tokens.RefreshToken(ctx, session.RefreshToken)
		if err == nil {
			session.AccessToken = grant.AccessToken
			session.AccessExpiresAt = grant.AccessExpiresAt
			if err := s.sessions.Update(ctx, session); err != nil {
				return "", fmt.Errorf("failed to update session for user %s: %w", userID, err)
			}
			return session.AccessToken, nil
		}
		if !errors.Is(err, ErrUpstreamAuth) {
			return "", sessionUnavailable(err)
		}
		// The refresh token was revoked or expired upstream even though
		// its stored expiry says otherwise. Fall through to a full
		// exchange; retrying the refresh offers no new information.
		log.Printf("Refresh rejected for user %s, falling back to full exchange", userID)
	}

	// State 4: both tokens are unusable, recreate the full token set.
	tokens, err := s.tokens.NewToken(ctx)
	if err != nil {
		return "", sessionUnavailable(err)
	}
	session.AccessToken = tokens.AccessToken
	session.RefreshToken = tokens.RefreshToken
	session.AccessExpiresAt = tokens.AccessExpiresAt
	session.RefreshExpiresAt = tokens.RefreshExpiresAt
	if err := s.sessions.Update(ctx, session); err != nil {
		return "", fmt.Errorf("failed to update session for user %s: %w", userID, err)
	}
	return session.AccessToken, nil
}

// sessionUnavailable tags credential-exchange failures so the HTTP layer
// can distinguish them from infrastructure faults. Persistence errors
// pass through unchanged.
func sessionUnavailable(err error) error {
	if errors.Is(err, ErrUpstreamAuth) {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	return err
}
