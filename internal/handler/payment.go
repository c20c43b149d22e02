package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"paygate/internal/middleware"
	"paygate/internal/service"
)

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	paymentService   *service.PaymentService
	reconcileService *service.ReconcileService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService, reconcileService *service.ReconcileService) *PaymentHandler {
	return &PaymentHandler{
		paymentService:   paymentService,
		reconcileService: reconcileService,
	}
}

// CourseRequest is one course line in a create-intent request.
type CourseRequest struct {
	CourseID int64           `json:"courseId"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// CreateIntentRequest is the HTTP request body for creating a payment intent.
type CreateIntentRequest struct {
	PeriodID int64             `json:"periodId"`
	Courses  []CourseRequest   `json:"courses"`
	Metadata map[string]string `json:"metadata"`
}

// CreateFeeIntentRequest is the HTTP request body for creating a fee intent.
type CreateFeeIntentRequest struct {
	PeriodID int64 `json:"periodId"`
}

// ItemResponse is a payment line item in HTTP responses.
type ItemResponse struct {
	CourseID  int64           `json:"courseId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// IntentResponse is the HTTP response for intent creation.
type IntentResponse struct {
	ID           string          `json:"id"`
	ClientSecret string          `json:"clientSecret"`
	IntentID     string          `json:"intentId"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	Items        []ItemResponse  `json:"items"`
}

// StatusResponse is the HTTP response for payment status queries.
type StatusResponse struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	SucceededAt  *time.Time      `json:"succeededAt"`
	Processed    bool            `json:"processed"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	Items        []ItemResponse  `json:"items"`
}

// CreateIntent handles POST /v1/payments/create-intent
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	studentID, ok := middleware.StudentIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "caller identity not resolved"})
		return
	}

	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	courses := make([]service.CourseSelection, 0, len(req.Courses))
	for _, course := range req.Courses {
		courses = append(courses, service.CourseSelection{
			CourseID: course.CourseID,
			Price:    course.Price,
			Quantity: course.Quantity,
		})
	}

	result, err := h.paymentService.CreateIntent(c.Request.Context(), studentID, service.CreateIntentRequest{
		PeriodID: req.PeriodID,
		Courses:  courses,
		Metadata: req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, intentResponse(result))
}

// CreateFeeIntent handles POST /v1/payments/fee
func (h *PaymentHandler) CreateFeeIntent(c *gin.Context) {
	studentID, ok := middleware.StudentIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "caller identity not resolved"})
		return
	}

	var req CreateFeeIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.paymentService.CreateFeeIntent(c.Request.Context(), studentID, req.PeriodID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, intentResponse(result))
}

// Confirm handles POST /v1/payments/confirm/:intentId
//
// The direct confirm path runs the same guarded reconciliation as the
// webhook; a payment confirmed both ways still enrolls exactly once.
func (h *PaymentHandler) Confirm(c *gin.Context) {
	studentID, ok := middleware.StudentIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "caller identity not resolved"})
		return
	}

	intentID := c.Param("intentId")

	if err := h.reconcileService.Confirm(c.Request.Context(), intentID, studentID); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"processed": true})
}

// GetStatus handles GET /v1/payments/status/:intentId
func (h *PaymentHandler) GetStatus(c *gin.Context) {
	studentID, ok := middleware.StudentIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "caller identity not resolved"})
		return
	}

	intentID := c.Param("intentId")

	projection, err := h.paymentService.GetStatus(c.Request.Context(), intentID, studentID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, statusResponse(projection))
}

// GetHistory handles GET /v1/payments/history
func (h *PaymentHandler) GetHistory(c *gin.Context) {
	studentID, ok := middleware.StudentIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "caller identity not resolved"})
		return
	}

	projections, err := h.paymentService.GetHistory(c.Request.Context(), studentID)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]StatusResponse, 0, len(projections))
	for _, projection := range projections {
		responses = append(responses, statusResponse(projection))
	}

	respondJSON(c, http.StatusOK, responses)
}

// HasPaidFee handles GET /v1/payments/fee-paid/:periodId for the
// authenticated caller.
func (h *PaymentHandler) HasPaidFee(c *gin.Context) {
	studentID, ok := middleware.StudentIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "caller identity not resolved"})
		return
	}

	periodID, err := strconv.ParseInt(c.Param("periodId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid period id"})
		return
	}

	paid, err := h.paymentService.HasPaidFee(c.Request.Context(), studentID, periodID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"paid": paid})
}

// HasPaidFeeDirect handles GET /v1/internal/fee-paid/:studentId/:periodId,
// called backend-to-backend without a bearer token.
func (h *PaymentHandler) HasPaidFeeDirect(c *gin.Context) {
	studentID, err := strconv.ParseInt(c.Param("studentId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid student id"})
		return
	}

	periodID, err := strconv.ParseInt(c.Param("periodId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid period id"})
		return
	}

	paid, err := h.paymentService.HasPaidFee(c.Request.Context(), studentID, periodID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"paid": paid})
}

func intentResponse(result *service.IntentResponse) IntentResponse {
	return IntentResponse{
		ID:           result.ID,
		ClientSecret: result.ClientSecret,
		IntentID:     result.IntentID,
		Amount:       result.Amount,
		Currency:     result.Currency,
		Status:       string(result.Status),
		CreatedAt:    result.CreatedAt,
		Items:        itemResponses(result.Items),
	}
}

func statusResponse(projection *service.StatusProjection) StatusResponse {
	return StatusResponse{
		ID:           projection.ID,
		Status:       string(projection.Status),
		Amount:       projection.Amount,
		Currency:     projection.Currency,
		SucceededAt:  projection.SucceededAt,
		Processed:    projection.Processed,
		ErrorMessage: projection.ErrorMessage,
		CreatedAt:    projection.CreatedAt,
		Items:        itemResponses(projection.Items),
	}
}

func itemResponses(items []service.ItemProjection) []ItemResponse {
	responses := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, ItemResponse{
			CourseID:  item.CourseID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		})
	}
	return responses
}
