package repository

import (
	"context"
	"time"

	"paygate/internal/domain"
)

// PaymentRepository defines the persistence operations for payments.
type PaymentRepository interface {
	// Create persists a new payment together with its line items in one
	// transaction.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves a payment and its items by surrogate id.
	GetByID(ctx context.Context, id string) (*domain.Payment, error)

	// GetByIntentID retrieves a payment and its items by the processor's
	// intent id.
	GetByIntentID(ctx context.Context, intentID string) (*domain.Payment, error)

	// ListByStudentID retrieves all payments of a student, most recent
	// first, including items.
	ListByStudentID(ctx context.Context, studentID int64) ([]*domain.Payment, error)

	// MarkProcessed atomically flips the processed latch and records the
	// terminal succeeded state. It reports whether this call won the
	// latch; false means the payment was already processed.
	MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error)

	// RecordError stores an error message on an unprocessed payment
	// without touching the processed latch.
	RecordError(ctx context.Context, id string, message string, at time.Time) error

	// UpdateStatusIfUnprocessed sets a terminal failed/canceled status by
	// intent id, but only while the processed latch is still false. It
	// reports whether a row was updated.
	UpdateStatusIfUnprocessed(ctx context.Context, intentID string, status domain.PaymentStatus, message string, at time.Time) (bool, error)

	// HasSucceededFee reports whether a succeeded fee payment exists for
	// the student and period.
	HasSucceededFee(ctx context.Context, studentID, periodID int64) (bool, error)
}
