// Package identity verifies caller bearer tokens against the external
// identity provider. This service never authenticates end users itself.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"denaro/internal/domain/banking"
)

const (
	defaultTimeout = 10 * time.Second
	userPath       = "/auth/v1/user"
)

// Verifier resolves a bearer token to an application user id.
type Verifier interface {
	Verify(ctx context.Context, bearerToken string) (userID string, err error)
}

// Client calls the identity provider's user endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

var _ Verifier = (*Client)(nil)

func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
	}
}

type userResponse struct {
	ID string `json:"id"`
}

// Verify checks the token against the identity provider and returns the
// verified user id. Any rejection maps to banking.ErrUnauthorized.
func (c *Client) Verify(ctx context.Context, bearerToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+userPath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to verify token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
			log.Printf("Identity provider returned status %d", resp.StatusCode)
		}
		return "", banking.ErrUnauthorized
	}

	var user userResponse
	if err := json.Unmarshal(body, &user); err != nil {
		return "", fmt.Errorf("failed to unmarshal user response: %w", err)
	}
	if user.ID == "" {
		return "", banking.ErrUnauthorized
	}

	return user.ID, nil
}
