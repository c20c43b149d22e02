package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"paygate/internal/domain"
	"paygate/internal/handler"
	"paygate/internal/processor"
	"paygate/internal/service"
)

const testWebhookSecret = "whsec_test_secret"

// ──────────────────────────────────────────────
// WEBHOOK INGESTION
// ──────────────────────────────────────────────

type webhookFixture struct {
	router      *gin.Engine
	paymentRepo *MockPaymentRepository
	enrollment  *MockEnrollmentClient
}

func newWebhookFixture() *webhookFixture {
	gin.SetMode(gin.TestMode)

	paymentRepo := NewMockPaymentRepository()
	enrollmentClient := NewMockEnrollmentClient()
	engine := service.NewReconcileService(paymentRepo, enrollmentClient, NewMockLockStore())
	webhookHandler := handler.NewWebhookHandler(engine, testWebhookSecret)

	router := gin.New()
	router.POST("/v1/webhooks/processor", webhookHandler.HandleProcessorEvent)

	return &webhookFixture{
		router:      router,
		paymentRepo: paymentRepo,
		enrollment:  enrollmentClient,
	}
}

func eventPayload(t *testing.T, eventType, intentID string, errMessage string) []byte {
	t.Helper()

	obj := map[string]any{"id": intentID, "status": "succeeded"}
	if errMessage != "" {
		obj["last_payment_error"] = map[string]string{"message": errMessage}
	}
	payload, err := json.Marshal(map[string]any{
		"id":   fmt.Sprintf("evt_%s", intentID),
		"type": eventType,
		"data": map[string]any{"object": obj},
	})
	if err != nil {
		t.Fatalf("marshaling event: %v", err)
	}
	return payload
}

func (f *webhookFixture) deliver(t *testing.T, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/processor", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(handler.SignatureHeader, signature)
	}

	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	return recorder
}

func TestWebhook_SucceededEventProcessesPayment(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture()
	f.paymentRepo.AddPayment(newCoursePayment("pi_hook", 42, 3, 10, 11))

	payload := eventPayload(t, processor.EventIntentSucceeded, "pi_hook", "")
	recorder := f.deliver(t, payload, processor.SignPayload(payload, testWebhookSecret, time.Now()))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	stored := f.paymentRepo.GetPaymentByIntent("pi_hook")
	if !stored.Processed || stored.Status != domain.PaymentStatusSucceeded {
		t.Errorf("expected processed succeeded payment, got processed=%v status=%s", stored.Processed, stored.Status)
	}
	if got := atomic.LoadInt32(&f.enrollment.CommitCallCount); got != 1 {
		t.Errorf("expected 1 enrollment commit, got %d", got)
	}
	if f.enrollment.LastIntentID != "pi_hook" {
		t.Errorf("expected intent id forwarded, got %q", f.enrollment.LastIntentID)
	}
}

func TestWebhook_DuplicateDeliveryIsAcknowledged(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture()
	f.paymentRepo.AddPayment(newCoursePayment("pi_dup", 42, 3, 10))

	payload := eventPayload(t, processor.EventIntentSucceeded, "pi_dup", "")

	for i := 0; i < 3; i++ {
		recorder := f.deliver(t, payload, processor.SignPayload(payload, testWebhookSecret, time.Now()))
		if recorder.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i, recorder.Code)
		}
	}

	if got := atomic.LoadInt32(&f.enrollment.CommitCallCount); got != 1 {
		t.Errorf("expected exactly 1 enrollment commit, got %d", got)
	}
}

func TestWebhook_BadSignatureRejected(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture()
	f.paymentRepo.AddPayment(newCoursePayment("pi_sig", 42, 3, 10))

	payload := eventPayload(t, processor.EventIntentSucceeded, "pi_sig", "")

	testCases := []struct {
		name      string
		signature string
	}{
		{"missing header", ""},
		{"wrong secret", processor.SignPayload(payload, "whsec_wrong", time.Now())},
		{"expired timestamp", processor.SignPayload(payload, testWebhookSecret, time.Now().Add(-10*time.Minute))},
		{"garbage header", "t=abc,v1=zzz"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := f.deliver(t, payload, tc.signature)
			if recorder.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", recorder.Code)
			}
		})
	}

	if got := atomic.LoadInt32(&f.enrollment.CommitCallCount); got != 0 {
		t.Errorf("expected no enrollment commits, got %d", got)
	}
	if f.paymentRepo.GetPaymentByIntent("pi_sig").Processed {
		t.Error("payment must not be processed")
	}
}

func TestWebhook_UnknownIntentAcknowledged(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture()

	payload := eventPayload(t, processor.EventIntentSucceeded, "pi_stranger", "")
	recorder := f.deliver(t, payload, processor.SignPayload(payload, testWebhookSecret, time.Now()))

	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200 for unknown intent, got %d", recorder.Code)
	}
}

func TestWebhook_UnknownEventTypeAcknowledged(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture()

	payload := eventPayload(t, "charge.refunded", "pi_whatever", "")
	recorder := f.deliver(t, payload, processor.SignPayload(payload, testWebhookSecret, time.Now()))

	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200 for unknown event type, got %d", recorder.Code)
	}
}

func TestWebhook_EnrollmentFailureAsksForRedelivery(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture()
	f.enrollment.QueueResults(false, true)
	f.paymentRepo.AddPayment(newCoursePayment("pi_redeliver", 42, 3, 10))

	payload := eventPayload(t, processor.EventIntentSucceeded, "pi_redeliver", "")

	recorder := f.deliver(t, payload, processor.SignPayload(payload, testWebhookSecret, time.Now()))
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on failed commit, got %d", recorder.Code)
	}

	// Limbo: succeeded but unprocessed, visible to eligibility reads.
	stored := f.paymentRepo.GetPaymentByIntent("pi_redeliver")
	if stored.Status != domain.PaymentStatusSucceeded {
		t.Errorf("expected succeeded status in limbo, got %s", stored.Status)
	}
	if stored.Processed {
		t.Error("payment must not be processed after failed commit")
	}

	// The sender redelivers and the commit now lands.
	recorder = f.deliver(t, payload, processor.SignPayload(payload, testWebhookSecret, time.Now()))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 on redelivery, got %d", recorder.Code)
	}
	if !f.paymentRepo.GetPaymentByIntent("pi_redeliver").Processed {
		t.Error("expected payment processed after redelivery")
	}
}

func TestWebhook_FailedEventRecordsMessage(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture()
	f.paymentRepo.AddPayment(newCoursePayment("pi_declined", 42, 3, 10))

	payload := eventPayload(t, processor.EventIntentFailed, "pi_declined", "Your card was declined.")
	recorder := f.deliver(t, payload, processor.SignPayload(payload, testWebhookSecret, time.Now()))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	stored := f.paymentRepo.GetPaymentByIntent("pi_declined")
	if stored.Status != domain.PaymentStatusFailed {
		t.Errorf("expected failed status, got %s", stored.Status)
	}
	if stored.ErrorMessage != "Your card was declined." {
		t.Errorf("expected processor message recorded, got %q", stored.ErrorMessage)
	}
}

func TestWebhook_CanceledAfterProcessedIsDiscarded(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture()
	fee := newFeePayment("pi_late_cancel", 7, 3)
	fee.Status = domain.PaymentStatusSucceeded
	fee.Processed = true
	f.paymentRepo.AddPayment(fee)

	payload := eventPayload(t, processor.EventIntentCanceled, "pi_late_cancel", "")
	recorder := f.deliver(t, payload, processor.SignPayload(payload, testWebhookSecret, time.Now()))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	stored := f.paymentRepo.GetPaymentByIntent("pi_late_cancel")
	if stored.Status != domain.PaymentStatusSucceeded || !stored.Processed {
		t.Errorf("late cancel must not revert state, got status=%s processed=%v", stored.Status, stored.Processed)
	}
}
