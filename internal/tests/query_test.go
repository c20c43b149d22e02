package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"paygate/internal/domain"
	"paygate/internal/repository"
	"paygate/internal/service"
)

// ──────────────────────────────────────────────
// STATUS, HISTORY AND FEE QUERIES
// ──────────────────────────────────────────────

func TestGetStatus_OwnerSeesProjection(t *testing.T) {
	t.Parallel()

	paymentRepo := NewMockPaymentRepository()
	payment := newCoursePayment("pi_status", 42, 3, 10)
	payment.ErrorMessage = "enrollment backend rejected commit"
	paymentRepo.AddPayment(payment)

	svc := newPaymentService(paymentRepo, NewMockProcessorClient())

	proj, err := svc.GetStatus(context.Background(), "pi_status", 42)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if proj.Status != domain.PaymentStatusPending {
		t.Errorf("expected pending, got %s", proj.Status)
	}
	if proj.Processed {
		t.Error("expected processed false")
	}
	if proj.ErrorMessage != "enrollment backend rejected commit" {
		t.Errorf("expected error message surfaced, got %q", proj.ErrorMessage)
	}
	if len(proj.Items) != 1 || proj.Items[0].CourseID != 10 {
		t.Errorf("unexpected items %+v", proj.Items)
	}
}

func TestGetStatus_NonOwnerForbidden(t *testing.T) {
	t.Parallel()

	paymentRepo := NewMockPaymentRepository()
	paymentRepo.AddPayment(newCoursePayment("pi_status2", 42, 3, 10))

	svc := newPaymentService(paymentRepo, NewMockProcessorClient())

	_, err := svc.GetStatus(context.Background(), "pi_status2", 7)
	if !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestGetStatus_UnknownIntent(t *testing.T) {
	t.Parallel()

	svc := newPaymentService(NewMockPaymentRepository(), NewMockProcessorClient())

	_, err := svc.GetStatus(context.Background(), "pi_nope", 42)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetHistory_MostRecentFirstAndScoped(t *testing.T) {
	t.Parallel()

	paymentRepo := NewMockPaymentRepository()

	old := newCoursePayment("pi_old", 42, 3, 10)
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	recent := newCoursePayment("pi_recent", 42, 3, 11)
	recent.CreatedAt = time.Now().Add(-1 * time.Hour)
	other := newCoursePayment("pi_other", 7, 3, 12)

	paymentRepo.AddPayment(old)
	paymentRepo.AddPayment(recent)
	paymentRepo.AddPayment(other)

	svc := newPaymentService(paymentRepo, NewMockProcessorClient())

	history, err := svc.GetHistory(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(history))
	}
	if history[0].ID != recent.ID {
		t.Errorf("expected most recent payment first, got %s", history[0].ID)
	}
	if history[1].ID != old.ID {
		t.Errorf("expected older payment second, got %s", history[1].ID)
	}
}

func TestGetHistory_EmptyForUnknownStudent(t *testing.T) {
	t.Parallel()

	svc := newPaymentService(NewMockPaymentRepository(), NewMockProcessorClient())

	history, err := svc.GetHistory(context.Background(), 999)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d", len(history))
	}
}

// A succeeded fee answers true even before reconciliation flips the
// processed latch.
func TestHasPaidFee_SucceededUnprocessedCounts(t *testing.T) {
	t.Parallel()

	paymentRepo := NewMockPaymentRepository()
	fee := newFeePayment("pi_fee_limbo", 42, 3)
	fee.Status = domain.PaymentStatusSucceeded
	paymentRepo.AddPayment(fee)

	svc := newPaymentService(paymentRepo, NewMockProcessorClient())

	paid, err := svc.HasPaidFee(context.Background(), 42, 3)
	if err != nil {
		t.Fatalf("HasPaidFee: %v", err)
	}
	if !paid {
		t.Error("expected fee to count while unprocessed")
	}
}

func TestHasPaidFee_NegativeCases(t *testing.T) {
	t.Parallel()

	paymentRepo := NewMockPaymentRepository()

	// Pending fee for the right student and period.
	paymentRepo.AddPayment(newFeePayment("pi_fee_pending", 42, 3))

	// Succeeded course purchase for the same student and period.
	course := newCoursePayment("pi_course_done", 42, 3, 10)
	course.Status = domain.PaymentStatusSucceeded
	course.Processed = true
	paymentRepo.AddPayment(course)

	// Succeeded fee for a different period.
	otherPeriod := newFeePayment("pi_fee_other", 42, 4)
	otherPeriod.Status = domain.PaymentStatusSucceeded
	paymentRepo.AddPayment(otherPeriod)

	svc := newPaymentService(paymentRepo, NewMockProcessorClient())

	paid, err := svc.HasPaidFee(context.Background(), 42, 3)
	if err != nil {
		t.Fatalf("HasPaidFee: %v", err)
	}
	if paid {
		t.Error("expected no qualifying fee payment")
	}
}
