package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"denaro/internal/domain/banking"
)

// RequisitionRepository stores bank-linking attempts.
type RequisitionRepository struct {
	db *DB
}

var _ banking.RequisitionRepository = (*RequisitionRepository)(nil)

func NewRequisitionRepository(db *DB) *RequisitionRepository {
	return &RequisitionRepository{db: db}
}

// Save inserts a new requisition row.
func (r *RequisitionRepository) Save(ctx context.Context, requisition *banking.Requisition) error {
	query := `
		INSERT INTO requisitions (id, user_id, institution_id, reference, link, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`

	_, err := r.db.ExecContext(ctx, query,
		requisition.ID, requisition.UserID, requisition.InstitutionID,
		requisition.Reference, requisition.Link, string(requisition.Status),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to save requisition: %v", banking.ErrPersistence, err)
	}

	return nil
}

// GetByID retrieves a requisition by its aggregator-issued id.
func (r *RequisitionRepository) GetByID(ctx context.Context, id string) (*banking.Requisition, error) {
	query := `
		SELECT id, user_id, institution_id, reference, link, status, created_at, updated_at
		FROM requisitions
		WHERE id = $1
	`

	var requisition banking.Requisition
	var status string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&requisition.ID, &requisition.UserID, &requisition.InstitutionID,
		&requisition.Reference, &requisition.Link, &status,
		&requisition.CreatedAt, &requisition.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", banking.ErrRequisitionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get requisition: %v", banking.ErrPersistence, err)
	}

	requisition.Status = banking.RequisitionStatus(status)
	return &requisition, nil
}

// UpdateStatus overwrites the status of an existing requisition.
func (r *RequisitionRepository) UpdateStatus(ctx context.Context, id string, status banking.RequisitionStatus) error {
	query := `
		UPDATE requisitions
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("%w: failed to update requisition status: %v", banking.ErrPersistence, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to check requisition update: %v", banking.ErrPersistence, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", banking.ErrRequisitionNotFound, id)
	}

	return nil
}

// ListByUserID returns all linking attempts for a user, newest first.
func (r *RequisitionRepository) ListByUserID(ctx context.Context, userID string) ([]*banking.Requisition, error) {
	query := `
		SELECT id, user_id, institution_id, reference, link, status, created_at, updated_at
		FROM requisitions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list requisitions: %v", banking.ErrPersistence, err)
	}
	defer rows.Close()

	var requisitions []*banking.Requisition
	for rows.Next() {
		var requisition banking.Requisition
		var status string
		if err := rows.Scan(
			&requisition.ID, &requisition.UserID, &requisition.InstitutionID,
			&requisition.Reference, &requisition.Link, &status,
			&requisition.CreatedAt, &requisition.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: failed to scan requisition: %v", banking.ErrPersistence, err)
		}
		requisition.Status = banking.RequisitionStatus(status)
		requisitions = append(requisitions, &requisition)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate requisitions: %v", banking.ErrPersistence, err)
	}

	return requisitions, nil
}
