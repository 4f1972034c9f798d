// Package gocardless implements the open-banking aggregator client.
// Responses are mapped into domain values at this boundary; raw upstream
// error bodies are logged, never returned to callers.
package gocardless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"denaro/internal/domain/banking"
)

const (
	defaultBaseURL = "https://bankaccountdata.gocardless.com/api/v2"
	defaultTimeout = 60 * time.Second

	tokenNewPath     = "/token/new/"
	tokenRefreshPath = "/token/refresh/"
	institutionsPath = "/institutions/"
	agreementsPath   = "/agreements/enduser/"
	requisitionsPath = "/requisitions/"
	accountsPath     = "/accounts/"

	// Consent window requested for every end-user agreement.
	maxHistoricalDays  = 180
	accessValidForDays = 90
)

var agreementScopes = []string{"balances", "details", "transactions"}

// Client handles communication with the aggregator API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretID   string
	secretKey  string
}

// Ensure Client implements the domain client interface
var _ banking.AggregatorClient = (*Client)(nil)

// NewClient creates an aggregator API client. The secret id/key pair is
// the process-wide client credential used for token exchange.
func NewClient(baseURL, secretID, secretKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		secretID:   secretID,
		secretKey:  secretKey,
	}
}

type tokenNewRequest struct {
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
}

type tokenNewResponse struct {
	Access         string `json:"access"`
	AccessExpires  int64  `json:"access_expires"`
	Refresh        string `json:"refresh"`
	RefreshExpires int64  `json:"refresh_expires"`
}

type tokenRefreshRequest struct {
	Refresh string `json:"refresh"`
}

type tokenRefreshResponse struct {
	Access        string `json:"access"`
	AccessExpires int64  `json:"access_expires"`
}

type institutionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	BIC  string `json:"bic"`
	Logo string `json:"logo"`
}

type agreementRequest struct {
	InstitutionID      string   `json:"institution_id"`
	MaxHistoricalDays  int      `json:"max_historical_days"`
	AccessValidForDays int      `json:"access_valid_for_days"`
	AccessScope        []string `json:"access_scope"`
}

type agreementResponse struct {
	ID string `json:"id"`
}

type requisitionRequest struct {
	Redirect      string `json:"redirect"`
	InstitutionID string `json:"institution_id"`
	Agreement     string `json:"agreement"`
	Reference     string `json:"reference"`
}

type requisitionResponse struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Link     string   `json:"link"`
	Accounts []string `json:"accounts"`
}

type transactionEntry struct {
	TransactionID string `json:"transactionId"`
	Amount        struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	} `json:"transactionAmount"`
	BookingDate    string `json:"bookingDate"`
	Information    string `json:"remittanceInformationUnstructured"`
	CreditorName   string `json:"creditorName"`
	DebtorName     string `json:"debtorName"`
}

type transactionsResponse struct {
	Transactions struct {
		Booked  []transactionEntry `json:"booked"`
		Pending []transactionEntry `json:"pending"`
	} `json:"transactions"`
}

// NewToken performs the client-credential exchange. A rejection or a
// failed network call is fatal for the current request: the credentials
// themselves are wrong or the service is down, so there is no retry.
func (c *Client) NewToken(ctx context.Context) (*banking.TokenSet, error) {
	now := time.Now()

	var resp tokenNewResponse
	reqBody := tokenNewRequest{SecretID: c.secretID, SecretKey: c.secretKey}
	if err := c.doJSON(ctx, http.MethodPost, tokenNewPath, "", reqBody, &resp, banking.ErrUpstreamAuth); err != nil {
		return nil, err
	}

	if resp.Access == "" || resp.Refresh == "" {
		return nil, fmt.Errorf("%w: token exchange returned empty credentials", banking.ErrUpstreamAuth)
	}

	return &banking.TokenSet{
		AccessToken:      resp.Access,
		RefreshToken:     resp.Refresh,
		AccessExpiresAt:  now.Add(time.Duration(resp.AccessExpires) * time.Second),
		RefreshExpiresAt: now.Add(time.Duration(resp.RefreshExpires) * time.Second),
	}, nil
}

// RefreshToken exchanges a refresh token for a new access token. A
// rejection means the refresh token itself is expired or revoked;
// callers fall back to NewToken instead of retrying.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*banking.AccessGrant, error) {
	now := time.Now()

	var resp tokenRefreshResponse
	if err := c.doJSON(ctx, http.MethodPost, tokenRefreshPath, "", tokenRefreshRequest{Refresh: refreshToken}, &resp, banking.ErrUpstreamAuth); err != nil {
		return nil, err
	}

	if resp.Access == "" {
		return nil, fmt.Errorf("%w: token refresh returned empty credentials", banking.ErrUpstreamAuth)
	}

	return &banking.AccessGrant{
		AccessToken:     resp.Access,
		AccessExpiresAt: now.Add(time.Duration(resp.AccessExpires) * time.Second),
	}, nil
}

// Institutions fetches the bank catalog for a country code.
func (c *Client) Institutions(ctx context.Context, accessToken, country string) ([]banking.Institution, error) {
	path := institutionsPath + "?country=" + url.QueryEscape(country)

	var resp []institutionResponse
	if err := c.doJSON(ctx, http.MethodGet, path, accessToken, nil, &resp, banking.ErrUpstream); err != nil {
		return nil, err
	}

	institutions := make([]banking.Institution, 0, len(resp))
	for _, inst := range resp {
		institutions = append(institutions, banking.Institution{
			ID:   inst.ID,
			Name: inst.Name,
			BIC:  inst.BIC,
			Logo: inst.Logo,
		})
	}
	return institutions, nil
}

// CreateEndUserAgreement creates an agreement scoped to balances,
// details and transactions with the fixed historical/validity windows.
func (c *Client) CreateEndUserAgreement(ctx context.Context, accessToken, institutionID string) (string, error) {
	reqBody := agreementRequest{
		InstitutionID:      institutionID,
		MaxHistoricalDays:  maxHistoricalDays,
		AccessValidForDays: accessValidForDays,
		AccessScope:        agreementScopes,
	}

	var resp agreementResponse
	if err := c.doJSON(ctx, http.MethodPost, agreementsPath, accessToken, reqBody, &resp, banking.ErrUpstream); err != nil {
		return "", err
	}

	if resp.ID == "" {
		return "", fmt.Errorf("%w: agreement response missing id", banking.ErrUpstream)
	}
	return resp.ID, nil
}

// CreateRequisition creates the hosted consent flow for an institution
// and returns the aggregator-issued requisition id and consent link.
func (c *Client) CreateRequisition(ctx context.Context, accessToken, institutionID, redirectURL, agreementID, reference string) (id, link string, err error) {
	reqBody := requisitionRequest{
		Redirect:      redirectURL,
		InstitutionID: institutionID,
		Agreement:     agreementID,
		Reference:     reference,
	}

	var resp requisitionResponse
	if err := c.doJSON(ctx, http.MethodPost, requisitionsPath, accessToken, reqBody, &resp, banking.ErrUpstream); err != nil {
		return "", "", err
	}

	if resp.ID == "" || resp.Link == "" {
		return "", "", fmt.Errorf("%w: requisition response missing id or link", banking.ErrUpstream)
	}
	return resp.ID, resp.Link, nil
}

// Requisition fetches the current state of a requisition, including the
// account ids the consent granted access to.
func (c *Client) Requisition(ctx context.Context, accessToken, requisitionID string) ([]string, error) {
	path := requisitionsPath + url.PathEscape(requisitionID) + "/"

	var resp requisitionResponse
	if err := c.doJSON(ctx, http.MethodGet, path, accessToken, nil, &resp, banking.ErrUpstream); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// AccountTransactions fetches an account's booked and pending transactions.
func (c *Client) AccountTransactions(ctx context.Context, accessToken, accountID string) (*banking.TransactionPage, error) {
	path := accountsPath + url.PathEscape(accountID) + "/transactions/"

	var resp transactionsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, accessToken, nil, &resp, banking.ErrUpstream); err != nil {
		return nil, err
	}

	page := &banking.TransactionPage{
		Booked:  mapTransactions(resp.Transactions.Booked),
		Pending: mapTransactions(resp.Transactions.Pending),
	}
	return page, nil
}

func mapTransactions(entries []transactionEntry) []banking.Transaction {
	out := make([]banking.Transaction, 0, len(entries))
	for _, e := range entries {
		counterparty := e.CreditorName
		if counterparty == "" {
			counterparty = e.DebtorName
		}
		out = append(out, banking.Transaction{
			ID:           e.TransactionID,
			Amount:       e.Amount.Amount,
			Currency:     e.Amount.Currency,
			BookingDate:  e.BookingDate,
			Description:  e.Information,
			Counterparty: counterparty,
		})
	}
	return out
}

// doJSON executes one aggregator call: marshals the request body if any,
// sets Bearer auth when a token is given, and unmarshals a 2xx response
// into out. Any failure is wrapped in kind so callers can errors.Is it.
func (c *Client) doJSON(ctx context.Context, method, path, accessToken string, body, out any, kind error) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: failed to marshal request: %v", kind, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", kind, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to execute request: %v", kind, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %v", kind, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The raw body may carry upstream detail; log it, never echo it.
		log.Printf("Aggregator %s %s returned status %d: %s", method, path, resp.StatusCode, truncate(respBody, 512))
		return fmt.Errorf("%w: %s %s returned status %d", kind, method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: failed to unmarshal response: %v", kind, err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
