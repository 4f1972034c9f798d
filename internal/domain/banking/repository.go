package banking

import "context"

// SessionRepository persists one aggregator session per user.
// Defined in the domain layer, implemented in the infrastructure layer.
type SessionRepository interface {
	// Load returns the user's session, or (nil, nil) when none has ever
	// been created. The absence of a session is not an error.
	Load(ctx context.Context, userID string) (*Session, error)

	// Save inserts a new session row for a user that has none.
	Save(ctx context.Context, session *Session) error

	// Update overwrites the token and expiry fields of an existing row.
	// Fails when no row exists; callers Load before they Update.
	Update(ctx context.Context, session *Session) error

	// Delete removes the session, forcing a full re-exchange next time.
	Delete(ctx context.Context, userID string) error
}

// RequisitionRepository persists bank-linking attempts.
type RequisitionRepository interface {
	// Save inserts a new requisition row.
	Save(ctx context.Context, requisition *Requisition) error

	// GetByID returns a requisition, or ErrRequisitionNotFound.
	GetByID(ctx context.Context, id string) (*Requisition, error)

	// UpdateStatus overwrites the status of an existing requisition.
	// Returns ErrRequisitionNotFound when the id is unknown.
	UpdateStatus(ctx context.Context, id string, status RequisitionStatus) error

	// ListByUserID returns all linking attempts for a user, newest first.
	ListByUserID(ctx context.Context, userID string) ([]*Requisition, error)
}
