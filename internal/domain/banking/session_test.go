package banking

import (
	"context"
	"errors"
	"testing"
	"time"
)

// MockSessionRepo is a mock implementation of SessionRepository
type MockSessionRepo struct {
	LoadFunc   func(ctx context.Context, userID string) (*Session, error)
	SaveFunc   func(ctx context.Context, session *Session) error
	UpdateFunc func(ctx context.Context, session *Session) error
	DeleteFunc func(ctx context.Context, userID string) error

	SaveCalls   int
	UpdateCalls int
	LastSaved   *Session
	LastUpdated *Session
}

func (m *MockSessionRepo) Load(ctx context.Context, userID string) (*Session, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockSessionRepo) Save(ctx context.Context, session *Session) error {
	m.SaveCalls++
	saved := *session
	m.LastSaved = &saved
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, session)
	}
	return nil
}

func (m *MockSessionRepo) Update(ctx context.Context, session *Session) error {
	m.UpdateCalls++
	updated := *session
	m.LastUpdated = &updated
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, session)
	}
	return nil
}

func (m *MockSessionRepo) Delete(ctx context.Context, userID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID)
	}
	return nil
}

// MockTokenClient is a mock implementation of TokenClient
type MockTokenClient struct {
	NewTokenFunc     func(ctx context.Context) (*TokenSet, error)
	RefreshTokenFunc func(ctx context.Context, refreshToken string) (*AccessGrant, error)

	NewTokenCalls int
	RefreshCalls  int
}

func (m *MockTokenClient) NewToken(ctx context.Context) (*TokenSet, error) {
	m.NewTokenCalls++
	if m.NewTokenFunc != nil {
		return m.NewTokenFunc(ctx)
	}
	return nil, nil
}

func (m *MockTokenClient) RefreshToken(ctx context.Context, refreshToken string) (*AccessGrant, error) {
	m.RefreshCalls++
	if m.RefreshTokenFunc != nil {
		return m.RefreshTokenFunc(ctx, refreshToken)
	}
	return nil, nil
}

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func storedSession(accessOffset, refreshOffset time.Duration) *Session {
	return &Session{
		UserID:           "u1",
		AccessToken:      "stored-access",
		RefreshToken:     "stored-refresh",
		AccessExpiresAt:  testNow.Add(accessOffset),
		RefreshExpiresAt: testNow.Add(refreshOffset),
	}
}

func TestResolve_NoSession(t *testing.T) {
	ctx := context.Background()

	repo := &MockSessionRepo{}
	tokens := &MockTokenClient{
		NewTokenFunc: func(ctx context.Context) (*TokenSet, error) {
			return &TokenSet{
				AccessToken:      "new-access",
				RefreshToken:     "new-refresh",
				AccessExpiresAt:  testNow.Add(24 * time.Hour),
				RefreshExpiresAt: testNow.Add(30 * 24 * time.Hour),
			}, nil
		},
	}

	svc := NewSessionService(repo, tokens, fixedNow)

	token, err := svc.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if token != "new-access" {
		t.Errorf("Resolve() = %q, want %q", token, "new-access")
	}
	if tokens.NewTokenCalls != 1 {
		t.Errorf("NewToken called %d times, want 1", tokens.NewTokenCalls)
	}
	if tokens.RefreshCalls != 0 {
		t.Errorf("RefreshToken called %d times, want 0", tokens.RefreshCalls)
	}
	if repo.SaveCalls != 1 {
		t.Errorf("Save called %d times, want 1", repo.SaveCalls)
	}
	if repo.LastSaved == nil || repo.LastSaved.RefreshToken != "new-refresh" {
		t.Errorf("saved session = %+v, want full new token set", repo.LastSaved)
	}
}

func TestResolve_AccessStillValid(t *testing.T) {
	ctx := context.Background()

	repo := &MockSessionRepo{
		LoadFunc: func(ctx context.Context, userID string) (*Session, error) {
			return storedSession(time.Hour, 24*time.Hour), nil
		},
	}
	tokens := &MockTokenClient{}

	svc := NewSessionService(repo, tokens, fixedNow)

	token, err := svc.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if token != "stored-access" {
		t.Errorf("Resolve() = %q, want cached token", token)
	}
	if tokens.NewTokenCalls != 0 || tokens.RefreshCalls != 0 {
		t.Errorf("network calls made (new=%d refresh=%d), want none", tokens.NewTokenCalls, tokens.RefreshCalls)
	}
	if repo.SaveCalls != 0 || repo.UpdateCalls != 0 {
		t.Errorf("store writes made (save=%d update=%d), want none", repo.SaveCalls, repo.UpdateCalls)
	}
}

func TestResolve_AccessExpiredRefreshValid(t *testing.T) {
	ctx := context.Background()

	// Access expired 1 hour ago, refresh valid for another hour.
	repo := &MockSessionRepo{
		LoadFunc: func(ctx context.Context, userID string) (*Session, error) {
			return storedSession(-time.Hour, time.Hour), nil
		},
	}
	tokens := &MockTokenClient{
		RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*AccessGrant, error) {
			if refreshToken != "stored-refresh" {
				t.Errorf("RefreshToken called with %q, want stored refresh token", refreshToken)
			}
			return &AccessGrant{
				AccessToken:     "refreshed-access",
				AccessExpiresAt: testNow.Add(24 * time.Hour),
			}, nil
		},
	}

	svc := NewSessionService(repo, tokens, fixedNow)

	token, err := svc.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if token != "refreshed-access" {
		t.Errorf("Resolve() = %q, want refreshed token", token)
	}
	if tokens.RefreshCalls != 1 {
		t.Errorf("RefreshToken called %d times, want 1", tokens.RefreshCalls)
	}
	if tokens.NewTokenCalls != 0 {
		t.Errorf("NewToken called %d times, want 0", tokens.NewTokenCalls)
	}
	if repo.UpdateCalls != 1 {
		t.Fatalf("Update called %d times, want 1", repo.UpdateCalls)
	}
	// Refresh token and its expiry must be left untouched.
	if repo.LastUpdated.RefreshToken != "stored-refresh" {
		t.Errorf("refresh token changed to %q, want unchanged", repo.LastUpdated.RefreshToken)
	}
	if !repo.LastUpdated.RefreshExpiresAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("refresh expiry changed to %v, want unchanged", repo.LastUpdated.RefreshExpiresAt)
	}
}

func TestResolve_BothExpired(t *testing.T) {
	ctx := context.Background()

	repo := &MockSessionRepo{
		LoadFunc: func(ctx context.Context, userID string) (*Session, error) {
			return storedSession(-2*time.Hour, -time.Hour), nil
		},
	}
	tokens := &MockTokenClient{
		NewTokenFunc: func(ctx context.Context) (*TokenSet, error) {
			return &TokenSet{
				AccessToken:      "new-access",
				RefreshToken:     "new-refresh",
				AccessExpiresAt:  testNow.Add(24 * time.Hour),
				RefreshExpiresAt: testNow.Add(30 * 24 * time.Hour),
			}, nil
		},
	}

	svc := NewSessionService(repo, tokens, fixedNow)

	token, err := svc.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if token != "new-access" {
		t.Errorf("Resolve() = %q, want new token", token)
	}
	if tokens.RefreshCalls != 0 {
		t.Errorf("RefreshToken called %d times, want 0 (refresh already expired)", tokens.RefreshCalls)
	}
	if tokens.NewTokenCalls != 1 {
		t.Errorf("NewToken called %d times, want 1", tokens.NewTokenCalls)
	}
	if repo.UpdateCalls != 1 {
		t.Fatalf("Update called %d times, want 1", repo.UpdateCalls)
	}
	if repo.LastUpdated.RefreshToken != "new-refresh" {
		t.Errorf("updated refresh token = %q, want full new token set", repo.LastUpdated.RefreshToken)
	}
}

func TestResolve_RefreshRejectedFallsBackToExchange(t *testing.T) {
	ctx := context.Background()

	repo := &MockSessionRepo{
		LoadFunc: func(ctx context.Context, userID string) (*Session, error) {
			return storedSession(-time.Hour, time.Hour), nil
		},
	}
	tokens := &MockTokenClient{
		RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*AccessGrant, error) {
			return nil, ErrUpstreamAuth
		},
		NewTokenFunc: func(ctx context.Context) (*TokenSet, error) {
			return &TokenSet{
				AccessToken:      "fallback-access",
				RefreshToken:     "fallback-refresh",
				AccessExpiresAt:  testNow.Add(24 * time.Hour),
				RefreshExpiresAt: testNow.Add(30 * 24 * time.Hour),
			}, nil
		},
	}

	svc := NewSessionService(repo, tokens, fixedNow)

	token, err := svc.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if token != "fallback-access" {
		t.Errorf("Resolve() = %q, want fallback token", token)
	}
	// Exactly two upstream calls for the single resolve.
	if tokens.RefreshCalls != 1 || tokens.NewTokenCalls != 1 {
		t.Errorf("upstream calls (refresh=%d new=%d), want exactly one of each", tokens.RefreshCalls, tokens.NewTokenCalls)
	}
	if repo.UpdateCalls != 1 {
		t.Fatalf("Update called %d times, want 1", repo.UpdateCalls)
	}
	if repo.LastUpdated.RefreshToken != "fallback-refresh" {
		t.Errorf("updated refresh token = %q, want full new token set after fallback", repo.LastUpdated.RefreshToken)
	}
}

func TestResolve_FallbackAlsoFails(t *testing.T) {
	ctx := context.Background()

	repo := &MockSessionRepo{
		LoadFunc: func(ctx context.Context, userID string) (*Session, error) {
			return storedSession(-time.Hour, time.Hour), nil
		},
	}
	tokens := &MockTokenClient{
		RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*AccessGrant, error) {
			return nil, ErrUpstreamAuth
		},
		NewTokenFunc: func(ctx context.Context) (*TokenSet, error) {
			return nil, ErrUpstreamAuth
		},
	}

	svc := NewSessionService(repo, tokens, fixedNow)

	_, err := svc.Resolve(ctx, "u1")
	if !errors.Is(err, ErrSessionUnavailable) {
		t.Errorf("Resolve() error = %v, want ErrSessionUnavailable", err)
	}
	if tokens.RefreshCalls != 1 || tokens.NewTokenCalls != 1 {
		t.Errorf("upstream calls (refresh=%d new=%d), want exactly one of each", tokens.RefreshCalls, tokens.NewTokenCalls)
	}
}

func TestResolve_ExchangeRejectedForNewUser(t *testing.T) {
	ctx := context.Background()

	repo := &MockSessionRepo{}
	tokens := &MockTokenClient{
		NewTokenFunc: func(ctx context.Context) (*TokenSet, error) {
			return nil, ErrUpstreamAuth
		},
	}

	svc := NewSessionService(repo, tokens, fixedNow)

	_, err := svc.Resolve(ctx, "u1")
	if !errors.Is(err, ErrSessionUnavailable) {
		t.Errorf("Resolve() error = %v, want ErrSessionUnavailable", err)
	}
	if repo.SaveCalls != 0 {
		t.Errorf("Save called %d times after failed exchange, want 0", repo.SaveCalls)
	}
}

func TestResolve_PersistenceErrorPropagates(t *testing.T) {
	ctx := context.Background()

	repo := &MockSessionRepo{
		LoadFunc: func(ctx context.Context, userID string) (*Session, error) {
			return nil, ErrPersistence
		},
	}
	tokens := &MockTokenClient{}

	svc := NewSessionService(repo, tokens, fixedNow)

	_, err := svc.Resolve(ctx, "u1")
	if !errors.Is(err, ErrPersistence) {
		t.Errorf("Resolve() error = %v, want ErrPersistence", err)
	}
	if errors.Is(err, ErrSessionUnavailable) {
		t.Errorf("persistence failure must not be reported as session unavailability")
	}
	if tokens.NewTokenCalls != 0 || tokens.RefreshCalls != 0 {
		t.Errorf("network calls made after load failure, want none")
	}
}

func TestResolve_ExpiriesCheckedIndependently(t *testing.T) {
	ctx := context.Background()

	// The aggregator does not guarantee access expiry <= refresh expiry;
	// an access token valid beyond the refresh expiry is still usable.
	repo := &MockSessionRepo{
		LoadFunc: func(ctx context.Context, userID string) (*Session, error) {
			return storedSession(2*time.Hour, time.Hour), nil
		},
	}
	tokens := &MockTokenClient{}

	svc := NewSessionService(repo, tokens, fixedNow)

	token, err := svc.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if token != "stored-access" {
		t.Errorf("Resolve() = %q, want cached token", token)
	}
	if tokens.NewTokenCalls != 0 || tokens.RefreshCalls != 0 {
		t.Errorf("network calls made, want none")
	}
}
