package banking

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
)

// Messenger sends a push notification to a single device token.
// Implemented by the firebase infrastructure client.
type Messenger interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// DeviceRepository stores push notification device tokens per user.
type DeviceRepository interface {
	Register(ctx context.Context, userID, token string) error
	ListTokens(ctx context.Context, userID string) ([]string, error)
}

// LinkingService creates bank-linking consent flows and finalizes them
// when the user returns from the hosted consent page.
type LinkingService struct {
	sessions     *SessionService
	client       AggregatorClient
	requisitions RequisitionRepository
	devices      DeviceRepository
	messenger    Messenger
}

// NewLinkingService creates a linking service. devices and messenger are
// optional; when either is nil no push notification is sent.
func NewLinkingService(sessions *SessionService, client AggregatorClient, requisitions RequisitionRepository, devices DeviceRepository, messenger Messenger) *LinkingService {
	return &LinkingService{
		sessions:     sessions,
		client:       client,
		requisitions: requisitions,
		devices:      devices,
		messenger:    messenger,
	}
}

// StartLinking creates an end-user agreement and a requisition for the
// institution and persists the attempt as pending. Nothing is persisted
// when the agreement call fails, so there are no orphaned rows.
func (s *LinkingService) StartLinking(ctx context.Context, userID, institutionID, redirectURL string) (*LinkStart, error) {
	if institutionID == "" || redirectURL == "" {
		return nil, fmt.Errorf("%w: institutionId and redirectUrl are required", ErrInvalidInput)
	}

	accessToken, err := s.sessions.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	agreementID, err := s.client.CreateEndUserAgreement(ctx, accessToken, institutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create end-user agreement: %w", err)
	}

	reference := uuid.NewString()
	requisitionID, link, err := s.client.CreateRequisition(ctx, accessToken, institutionID, redirectURL, agreementID, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to create requisition: %w", err)
	}

	requisition := &Requisition{
		ID:            requisitionID,
		UserID:        userID,
		InstitutionID: institutionID,
		Reference:     reference,
		Link:          link,
		Status:        StatusPending,
	}
	if err := s.requisitions.Save(ctx, requisition); err != nil {
		return nil, fmt.Errorf("failed to persist requisition %s: %w", requisitionID, err)
	}

	return &LinkStart{Link: link, RequisitionID: requisitionID}, nil
}

// Finalize records the outcome of a consent flow. It is idempotent and
// enforces no transition guard: finalizing twice simply overwrites the
// status, last call wins.
func (s *LinkingService) Finalize(ctx context.Context, requisitionID string, outcome RequisitionStatus) error {
	if !outcome.Valid() {
		return fmt.Errorf("%w: unknown requisition status %q", ErrInvalidInput, outcome)
	}

	requisition, err := s.requisitions.GetByID(ctx, requisitionID)
	if err != nil {
		return err
	}

	if err := s.requisitions.UpdateStatus(ctx, requisitionID, outcome); err != nil {
		return err
	}

	if outcome == StatusLinked {
		s.notifyLinked(ctx, requisition.UserID)
	}
	return nil
}

// OutcomeFromRedirect maps the query parameters of a consent-flow
// redirect to a final status. Any error parameter, or a missing
// reference, is an error outcome; it is never retried.
func OutcomeFromRedirect(ref, errParam string) RequisitionStatus {
	if errParam != "" || strings.TrimSpace(ref) == "" {
		return StatusError
	}
	return StatusLinked
}

// Institutions lists the aggregator's bank catalog for a country code.
func (s *LinkingService) Institutions(ctx context.Context, userID, country string) ([]Institution, error) {
	if country == "" {
		return nil, fmt.Errorf("%w: country is required", ErrInvalidInput)
	}

	accessToken, err := s.sessions.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.client.Institutions(ctx, accessToken, country)
}

// Accounts returns, per linked requisition, the aggregator account ids
// the consent granted access to.
func (s *LinkingService) Accounts(ctx context.Context, userID string) ([]LinkedAccounts, error) {
	accessToken, err := s.sessions.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	requisitions, err := s.requisitions.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make([]LinkedAccounts, 0, len(requisitions))
	for _, req := range requisitions {
		entry := LinkedAccounts{
			RequisitionID: req.ID,
			InstitutionID: req.InstitutionID,
			Status:        req.Status,
		}
		if req.Status == StatusLinked {
			accounts, err := s.client.Requisition(ctx, accessToken, req.ID)
			if err != nil {
				return nil, err
			}
			entry.Accounts = accounts
		}
		result = append(result, entry)
	}
	return result, nil
}

// Transactions proxies an account's transactions from the aggregator.
func (s *LinkingService) Transactions(ctx context.Context, userID, accountID string) (*TransactionPage, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}

	accessToken, err := s.sessions.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.client.AccountTransactions(ctx, accessToken, accountID)
}

// notifyLinked sends a best-effort push to the user's devices. Failures
// are logged and never fail the request.
func (s *LinkingService) notifyLinked(ctx context.Context, userID string) {
	if s.devices == nil || s.messenger == nil {
		return
	}

	tokens, err := s.devices.ListTokens(ctx, userID)
	if err != nil {
		log.Printf("Failed to list device tokens for user %s: %v", userID, err)
		return
	}

	for _, token := range tokens {
		if err := s.messenger.Send(ctx, token, "Bank account linked", "Your bank account is connected and syncing.", nil); err != nil {
			log.Printf("Failed to send link notification to user %s: %v", userID, err)
		}
	}
}
