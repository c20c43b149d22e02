package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"paygate/internal/domain"
	"paygate/internal/repository"
)

// PaymentRepository is a PostgreSQL implementation of repository.PaymentRepository.
type PaymentRepository struct {
	db *sql.DB
	q  Querier
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db, q: db}
}

// NewPaymentRepositoryWithTx creates a payment repository using a transaction.
// The caller owns atomicity.
func NewPaymentRepositoryWithTx(tx *sql.Tx) *PaymentRepository {
	return &PaymentRepository{q: tx}
}

const paymentColumns = `
	id, student_id, period_id, intent_id, customer_id, amount, currency,
	status, payment_method, metadata, created_at, updated_at, succeeded_at,
	error_message, processed
`

// Create persists a new payment together with its line items in one
// transaction. When the repository is transaction-scoped the surrounding
// transaction is used instead.
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) (err error) {
	q := r.q
	if r.db != nil {
		var tx *sql.Tx
		tx, err = r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() {
			if err != nil {
				_ = tx.Rollback()
			}
		}()
		q = tx
		defer func() {
			if err == nil {
				err = tx.Commit()
			}
		}()
	}

	if err = insertPayment(ctx, q, payment); err != nil {
		return err
	}
	if err = insertItems(ctx, q, payment.Items); err != nil {
		return err
	}
	return nil
}

func insertPayment(ctx context.Context, q Querier, payment *domain.Payment) error {
	metadata, err := json.Marshal(payment.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payments (
			id, student_id, period_id, intent_id, customer_id, amount,
			currency, status, payment_method, metadata, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, NULLIF($9, ''), $10, $11, $12)
	`

	_, err = q.ExecContext(ctx, query,
		payment.ID,
		payment.StudentID,
		payment.PeriodID,
		payment.IntentID,
		payment.CustomerID,
		payment.Amount,
		payment.Currency,
		payment.Status,
		payment.PaymentMethod,
		metadata,
		payment.CreatedAt,
		payment.UpdatedAt,
	)

	return err
}

func insertItems(ctx context.Context, q Querier, items []domain.PaymentItem) error {
	query := `
		INSERT INTO payment_items (id, payment_id, course_id, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, item := range items {
		if _, err := q.ExecContext(ctx, query,
			item.ID,
			item.PaymentID,
			item.CourseID,
			item.Quantity,
			item.UnitPrice,
			item.Subtotal,
		); err != nil {
			return err
		}
	}

	return nil
}

// GetByID retrieves a payment and its items by surrogate id.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIntentID retrieves a payment and its items by the processor's intent id.
func (r *PaymentRepository) GetByIntentID(ctx context.Context, intentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE intent_id = $1`
	return r.getOne(ctx, query, intentID)
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, arg any) (*domain.Payment, error) {
	payment, err := scanPayment(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	items, err := r.loadItems(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	payment.Items = items

	return payment, nil
}

// ListByStudentID retrieves all payments of a student, most recent first.
func (r *PaymentRepository) ListByStudentID(ctx context.Context, studentID int64) ([]*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE student_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.q.QueryContext(ctx, query, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, payment := range payments {
		items, err := r.loadItems(ctx, payment.ID)
		if err != nil {
			return nil, err
		}
		payment.Items = items
	}

	return payments, nil
}

// MarkProcessed atomically flips the processed latch and records the terminal
// succeeded state. The WHERE clause on the latch makes concurrent callers
// converge: exactly one observes true.
func (r *PaymentRepository) MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET processed = TRUE,
		    status = $2,
		    succeeded_at = $3,
		    error_message = NULL,
		    updated_at = $3
		WHERE id = $1 AND processed = FALSE
	`

	result, err := r.q.ExecContext(ctx, query, id, domain.PaymentStatusSucceeded, at)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// RecordError stores an error message on an unprocessed payment.
func (r *PaymentRepository) RecordError(ctx context.Context, id string, message string, at time.Time) error {
	query := `
		UPDATE payments
		SET error_message = $2, updated_at = $3
		WHERE id = $1 AND processed = FALSE
	`

	_, err := r.q.ExecContext(ctx, query, id, message, at)
	return err
}

// UpdateStatusIfUnprocessed sets a terminal failed/canceled status by intent
// id while the processed latch is still false.
func (r *PaymentRepository) UpdateStatusIfUnprocessed(ctx context.Context, intentID string, status domain.PaymentStatus, message string, at time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET status = $2, error_message = NULLIF($3, ''), updated_at = $4
		WHERE intent_id = $1 AND processed = FALSE
	`

	result, err := r.q.ExecContext(ctx, query, intentID, status, message, at)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// HasSucceededFee reports whether a succeeded fee payment exists for the
// student and period. The processed latch is deliberately not required here:
// eligibility reads tolerate reconciliation still being in flight.
func (r *PaymentRepository) HasSucceededFee(ctx context.Context, studentID, periodID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM payments
			WHERE student_id = $1
			  AND period_id = $2
			  AND status = $3
			  AND metadata->>'type' = $4
		)
	`

	var exists bool
	err := r.q.QueryRowContext(ctx, query, studentID, periodID, domain.PaymentStatusSucceeded, domain.PaymentTypeFee).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

func (r *PaymentRepository) loadItems(ctx context.Context, paymentID string) ([]domain.PaymentItem, error) {
	query := `
		SELECT id, payment_id, course_id, quantity, unit_price, subtotal
		FROM payment_items
		WHERE payment_id = $1
		ORDER BY id
	`

	rows, err := r.q.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.PaymentItem
	for rows.Next() {
		var item domain.PaymentItem
		if err := rows.Scan(
			&item.ID,
			&item.PaymentID,
			&item.CourseID,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var (
		payment       domain.Payment
		customerID    sql.NullString
		paymentMethod sql.NullString
		metadata      []byte
		succeededAt   sql.NullTime
		errorMessage  sql.NullString
	)

	err := s.Scan(
		&payment.ID,
		&payment.StudentID,
		&payment.PeriodID,
		&payment.IntentID,
		&customerID,
		&payment.Amount,
		&payment.Currency,
		&payment.Status,
		&paymentMethod,
		&metadata,
		&payment.CreatedAt,
		&payment.UpdatedAt,
		&succeededAt,
		&errorMessage,
		&payment.Processed,
	)
	if err != nil {
		return nil, err
	}

	payment.CustomerID = customerID.String
	payment.PaymentMethod = paymentMethod.String
	payment.ErrorMessage = errorMessage.String
	if succeededAt.Valid {
		t := succeededAt.Time
		payment.SucceededAt = &t
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &payment.Metadata); err != nil {
			return nil, err
		}
	}

	return &payment, nil
}
