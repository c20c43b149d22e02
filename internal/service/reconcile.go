package service

import (
	"context"
	"log"
	"time"

	"paygate/internal/domain"
	"paygate/internal/enrollment"
	"paygate/internal/redis"
	"paygate/internal/repository"
)

// reconcileLockTTL bounds how long a crashed caller can hold an intent lock.
// Well above the enrollment client timeout so the lock never expires under a
// live call.
const reconcileLockTTL = 30 * time.Second

// ReconcileService is the state machine converging local payment state with
// externally reported outcomes. All processed/status mutations route through
// here, except the ingestor's direct failed/canceled writes.
type ReconcileService struct {
	paymentRepo repository.PaymentRepository
	enrollment  enrollment.Client
	locks       redis.LockStoreInterface
}

// NewReconcileService creates a new ReconcileService.
func NewReconcileService(paymentRepo repository.PaymentRepository, enrollment enrollment.Client, locks redis.LockStoreInterface) *ReconcileService {
	return &ReconcileService{
		paymentRepo: paymentRepo,
		enrollment:  enrollment,
		locks:       locks,
	}
}

// ProcessSuccess runs the success path for an intent: classify the payment,
// trigger the one-time enrollment side effect for course purchases, and flip
// the processed latch. Safe under duplicate triggers; a redelivered webhook
// racing a direct confirm converges on a single enrollment call.
func (s *ReconcileService) ProcessSuccess(ctx context.Context, intentID string) error {
	payment, err := s.paymentRepo.GetByIntentID(ctx, intentID)
	if err != nil {
		return err
	}

	// Fast path: the side effect already ran. Duplicate triggers are
	// expected and succeed without touching anything.
	if payment.Processed {
		log.Printf("reconcile: intent %s already processed", intentID)
		return nil
	}

	// Serialize the read-decide-write sequence per intent so concurrent
	// callers cannot both reach the enrollment backend.
	acquired, err := s.locks.AcquireIntentLock(ctx, intentID, reconcileLockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrReconcileInFlight
	}
	defer func() {
		if err := s.locks.ReleaseIntentLock(context.WithoutCancel(ctx), intentID); err != nil {
			log.Printf("reconcile: releasing lock for intent %s: %v", intentID, err)
		}
	}()

	// Re-read under the lock; a racing caller may have finished while we
	// were acquiring it.
	payment, err = s.paymentRepo.GetByIntentID(ctx, intentID)
	if err != nil {
		return err
	}
	if payment.Processed {
		log.Printf("reconcile: intent %s processed while waiting for lock", intentID)
		return nil
	}

	if payment.IsFeeOnly() {
		return s.finalize(ctx, payment, "fee")
	}

	courseIDs := payment.CourseIDs()
	if len(courseIDs) == 0 {
		// Stuck on purpose: there is nothing to enroll and no retry
		// path here. Manual intervention resolves these.
		now := time.Now().UTC()
		if err := s.paymentRepo.RecordError(ctx, payment.ID, ErrNoCoursesToEnroll.Error(), now); err != nil {
			return err
		}
		log.Printf("reconcile: intent %s has no courses to enroll", intentID)
		return ErrNoCoursesToEnroll
	}

	if !s.enrollment.Commit(ctx, payment.StudentID, payment.PeriodID, courseIDs, intentID) {
		// Leave the latch down and the status succeeded: the payment
		// sits in limbo until the sender redelivers the success event
		// or the client confirms again. Redelivery is the retry
		// mechanism; nothing is scheduled internally.
		now := time.Now().UTC()
		if err := s.paymentRepo.RecordError(ctx, payment.ID, ErrEnrollmentFailed.Error(), now); err != nil {
			return err
		}
		log.Printf("reconcile: enrollment commit failed for intent %s, awaiting redelivery", intentID)
		return ErrEnrollmentFailed
	}

	return s.finalize(ctx, payment, "course purchase")
}

// finalize flips the processed latch via the conditional store update. Zero
// rows affected means another caller already won; that is a success.
func (s *ReconcileService) finalize(ctx context.Context, payment *domain.Payment, kind string) error {
	claimed, err := s.paymentRepo.MarkProcessed(ctx, payment.ID, time.Now().UTC())
	if err != nil {
		return err
	}
	if claimed {
		log.Printf("reconcile: %s intent %s processed", kind, payment.IntentID)
	} else {
		log.Printf("reconcile: %s intent %s was already processed", kind, payment.IntentID)
	}
	return nil
}

// Confirm runs the success path on behalf of an authenticated caller,
// enforcing that the payment belongs to them.
func (s *ReconcileService) Confirm(ctx context.Context, intentID string, callerID int64) error {
	payment, err := s.paymentRepo.GetByIntentID(ctx, intentID)
	if err != nil {
		return err
	}

	if payment.StudentID != callerID {
		return ErrForbidden
	}

	return s.ProcessSuccess(ctx, intentID)
}

// MarkSucceeded records the processor-reported succeeded status without
// running the side effect. The ingestor calls this before ProcessSuccess so
// the reported outcome is durable even when the enrollment commit later
// fails; eligibility reads key off this status, not the latch.
func (s *ReconcileService) MarkSucceeded(ctx context.Context, intentID string) error {
	_, err := s.paymentRepo.UpdateStatusIfUnprocessed(ctx, intentID, domain.PaymentStatusSucceeded, "", time.Now().UTC())
	return err
}

// MarkFailed records a terminal failed status reported by the processor. It
// is a no-op once the payment is processed: a failure event arriving after
// the side effect ran is discarded.
func (s *ReconcileService) MarkFailed(ctx context.Context, intentID, message string) error {
	if message == "" {
		message = "payment failed"
	}
	updated, err := s.paymentRepo.UpdateStatusIfUnprocessed(ctx, intentID, domain.PaymentStatusFailed, message, time.Now().UTC())
	if err != nil {
		return err
	}
	if !updated {
		log.Printf("reconcile: failed event for intent %s discarded", intentID)
	}
	return nil
}

// MarkCanceled records a terminal canceled status reported by the processor,
// with the same processed guard as MarkFailed.
func (s *ReconcileService) MarkCanceled(ctx context.Context, intentID string) error {
	updated, err := s.paymentRepo.UpdateStatusIfUnprocessed(ctx, intentID, domain.PaymentStatusCanceled, "", time.Now().UTC())
	if err != nil {
		return err
	}
	if !updated {
		log.Printf("reconcile: canceled event for intent %s discarded", intentID)
	}
	return nil
}
