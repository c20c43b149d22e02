package handler

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"paygate/internal/processor"
	"paygate/internal/repository"
	"paygate/internal/service"
)

// maxWebhookBody bounds the webhook payload size.
const maxWebhookBody = int64(65536)

// SignatureHeader carries the processor's payload signature.
const SignatureHeader = "Processor-Signature"

// WebhookHandler ingests asynchronous processor notifications.
type WebhookHandler struct {
	reconcileService *service.ReconcileService
	webhookSecret    string
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(reconcileService *service.ReconcileService, webhookSecret string) *WebhookHandler {
	return &WebhookHandler{
		reconcileService: reconcileService,
		webhookSecret:    webhookSecret,
	}
}

// HandleProcessorEvent handles POST /v1/webhooks/processor
//
// The sender delivers at least once; the response acknowledges only after the
// local decision is durable. A 5xx makes the sender redeliver, which is the
// only retry mechanism for failed enrollment commits.
func (h *WebhookHandler) HandleProcessorEvent(c *gin.Context) {
	if h.webhookSecret == "" {
		log.Printf("webhook: secret not configured, rejecting event")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: processor.ErrSecretMissing.Error()})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unable to read request body"})
		return
	}

	event, err := processor.ConstructEvent(payload, c.GetHeader(SignatureHeader), h.webhookSecret)
	if err != nil {
		log.Printf("webhook: signature verification failed: %v", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	log.Printf("webhook: received event %s (%s)", event.ID, event.Type)

	switch event.Type {
	case processor.EventIntentSucceeded:
		h.handleSucceeded(c, event)
	case processor.EventIntentFailed:
		h.handleFailed(c, event)
	case processor.EventIntentCanceled:
		h.handleCanceled(c, event)
	default:
		// Unrecognized types are acknowledged so the sender stops
		// redelivering them.
		log.Printf("webhook: ignoring event type %s", event.Type)
		respondJSON(c, http.StatusOK, gin.H{"received": true})
	}
}

func (h *WebhookHandler) handleSucceeded(c *gin.Context, event *processor.Event) {
	intentID := event.Data.Object.ID

	// Record the reported outcome first; the status transition must be
	// durable even if the enrollment side effect below fails.
	if err := h.reconcileService.MarkSucceeded(c.Request.Context(), intentID); err != nil {
		log.Printf("webhook: recording success status for intent %s: %v", intentID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "event processing failed"})
		return
	}

	err := h.reconcileService.ProcessSuccess(c.Request.Context(), intentID)
	switch {
	case err == nil:
		respondJSON(c, http.StatusOK, gin.H{"received": true})

	case errors.Is(err, repository.ErrNotFound):
		// The record may legitimately be unknown (purged, or created
		// elsewhere). Acknowledge; redelivering cannot help.
		log.Printf("webhook: no payment for intent %s, ignoring", intentID)
		respondJSON(c, http.StatusOK, gin.H{"received": true})

	case errors.Is(err, service.ErrNoCoursesToEnroll):
		// Durable dead end, acknowledged. A redelivered event would hit
		// the same empty course list.
		respondJSON(c, http.StatusOK, gin.H{"received": true})

	default:
		// Enrollment failure, lock contention, or storage trouble: ask
		// for redelivery.
		log.Printf("webhook: processing intent %s failed: %v", intentID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "event processing failed"})
	}
}

func (h *WebhookHandler) handleFailed(c *gin.Context, event *processor.Event) {
	message := ""
	if event.Data.Object.LastPaymentError != nil {
		message = event.Data.Object.LastPaymentError.Message
	}

	if err := h.reconcileService.MarkFailed(c.Request.Context(), event.Data.Object.ID, message); err != nil {
		log.Printf("webhook: recording failure for intent %s: %v", event.Data.Object.ID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "event processing failed"})
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"received": true})
}

func (h *WebhookHandler) handleCanceled(c *gin.Context, event *processor.Event) {
	if err := h.reconcileService.MarkCanceled(c.Request.Context(), event.Data.Object.ID); err != nil {
		log.Printf("webhook: recording cancellation for intent %s: %v", event.Data.Object.ID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "event processing failed"})
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"received": true})
}
