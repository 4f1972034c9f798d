// Package banking contains the bank-integration domain: the aggregator
// session lifecycle and the requisition (bank-linking consent) flow.
package banking

import (
	"errors"
	"time"
)

// Domain errors. The HTTP layer is the only place these are mapped to
// status codes; everything below returns them wrapped with %w.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUpstreamAuth        = errors.New("aggregator rejected credentials")
	ErrUpstream            = errors.New("aggregator request failed")
	ErrSessionUnavailable  = errors.New("aggregator session unavailable")
	ErrPersistence         = errors.New("persistence failure")
	ErrRequisitionNotFound = errors.New("requisition not found")
	ErrInvalidInput        = errors.New("invalid input")
)

// Session holds the aggregator credentials for one application user.
// There is at most one row per user; it is replaced in place on refresh
// or re-exchange and only deleted to force re-authentication.
type Session struct {
	UserID           string    `json:"userId"`
	AccessToken      string    `json:"-"`
	RefreshToken     string    `json:"-"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// AccessValid reports whether the access token is still usable at now.
func (s *Session) AccessValid(now time.Time) bool {
	return now.Before(s.AccessExpiresAt)
}

// RefreshValid reports whether the refresh token is still usable at now.
// The aggregator does not guarantee accessExpiresAt <= refreshExpiresAt,
// so the two expiries are always checked independently.
func (s *Session) RefreshValid(now time.Time) bool {
	return now.Before(s.RefreshExpiresAt)
}

// RequisitionStatus is the lifecycle state of a bank-linking attempt.
type RequisitionStatus string

const (
	StatusPending RequisitionStatus = "pending"
	StatusLinked  RequisitionStatus = "linked"
	StatusError   RequisitionStatus = "error"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s RequisitionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusLinked, StatusError:
		return true
	}
	return false
}

// Requisition tracks one bank-linking attempt. The ID is issued by the
// aggregator and is the key the client uses to report the consent outcome.
type Requisition struct {
	ID            string            `json:"requisitionId"`
	UserID        string            `json:"userId"`
	InstitutionID string            `json:"institutionId"`
	Reference     string            `json:"reference"`
	Link          string            `json:"link"`
	Status        RequisitionStatus `json:"status"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Institution is an entry from the aggregator's bank catalog. It is
// fetched live per country code and never persisted.
type Institution struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	BIC  string `json:"bic"`
	Logo string `json:"logo"`
}

// TokenSet is the full credential set returned by a client-credential
// exchange. Expiries are absolute instants, already converted from the
// aggregator's relative seconds at the client boundary.
type TokenSet struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AccessGrant is the result of refreshing an existing session: a new
// access token only, the refresh token stays as it was.
type AccessGrant struct {
	AccessToken     string
	AccessExpiresAt time.Time
}

// LinkStart is returned to the client when a linking flow is created.
type LinkStart struct {
	Link          string `json:"link"`
	RequisitionID string `json:"requisitionId"`
}

// LinkedAccounts pairs a finished requisition with the aggregator
// account ids it granted access to.
type LinkedAccounts struct {
	RequisitionID string            `json:"requisitionId"`
	InstitutionID string            `json:"institutionId"`
	Status        RequisitionStatus `json:"status"`
	Accounts      []string          `json:"accounts"`
}

// Transaction is a single booked or pending transaction mapped from the
// aggregator's response.
type Transaction struct {
	ID           string `json:"id"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	BookingDate  string `json:"bookingDate"`
	Description  string `json:"description"`
	Counterparty string `json:"counterparty,omitempty"`
}

// TransactionPage groups an account's transactions the way the
// aggregator reports them.
type TransactionPage struct {
	Booked  []Transaction `json:"booked"`
	Pending []Transaction `json:"pending"`
}
