package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the current status of a payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCanceled  PaymentStatus = "canceled"
)

// Reserved metadata keys set by the service when creating an intent.
const (
	MetadataKeyStudentID = "studentId"
	MetadataKeyPeriodID  = "periodId"
	MetadataKeyCourses   = "courses"
	MetadataKeyType      = "type"
)

// PaymentTypeFee marks a fixed-amount enrollment fee payment in metadata.
const PaymentTypeFee = "fee"

// FeeCourseID is the sentinel course id used for non-course line items.
const FeeCourseID int64 = 0

// Payment represents a payment mediated between a student, the payment
// processor, and the enrollment backend. The record is the local source of
// truth for the remote payment intent identified by IntentID.
type Payment struct {
	ID            string
	StudentID     int64
	PeriodID      int64
	IntentID      string
	CustomerID    string
	Amount        decimal.Decimal
	Currency      string
	Status        PaymentStatus
	PaymentMethod string
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	SucceededAt   *time.Time
	ErrorMessage  string

	// Processed is the one-way latch marking that the enrollment side
	// effect has run. It transitions false->true at most once and never
	// reverts.
	Processed bool

	Items []PaymentItem
}

// PaymentItem is a line item of a payment. Items are immutable once created
// and are deleted only with their parent payment.
type PaymentItem struct {
	ID        string
	PaymentID string
	CourseID  int64
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// IsFeeOnly reports whether the payment is a fixed-fee payment that unlocks
// enrollment eligibility rather than a purchase of specific courses. A fee
// payment carries the fee marker in metadata and either no line items or
// only sentinel items.
func (p *Payment) IsFeeOnly() bool {
	if p.Metadata[MetadataKeyType] != PaymentTypeFee {
		return false
	}
	for _, item := range p.Items {
		if item.CourseID != FeeCourseID {
			return false
		}
	}
	return true
}

// CourseIDs returns the course ids of the payment's non-sentinel line items.
func (p *Payment) CourseIDs() []int64 {
	ids := make([]int64, 0, len(p.Items))
	for _, item := range p.Items {
		if item.CourseID > FeeCourseID {
			ids = append(ids, item.CourseID)
		}
	}
	return ids
}
