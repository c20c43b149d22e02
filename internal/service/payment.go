package service

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paygate/internal/domain"
	"paygate/internal/processor"
	"paygate/internal/repository"
)

// courseCurrency is the settlement currency for course purchases.
const courseCurrency = "USD"

// PaymentService creates payment intents and serves read-only projections.
type PaymentService struct {
	paymentRepo repository.PaymentRepository
	processor   processor.Client
	feeAmount   decimal.Decimal
	feeCurrency string
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(paymentRepo repository.PaymentRepository, proc processor.Client, feeAmount decimal.Decimal, feeCurrency string) *PaymentService {
	return &PaymentService{
		paymentRepo: paymentRepo,
		processor:   proc,
		feeAmount:   feeAmount,
		feeCurrency: strings.ToUpper(feeCurrency),
	}
}

// CourseSelection is one course in a create-intent request.
type CourseSelection struct {
	CourseID int64
	Price    decimal.Decimal
	Quantity int
}

// CreateIntentRequest contains the parameters for creating a payment intent.
type CreateIntentRequest struct {
	PeriodID int64
	Courses  []CourseSelection
	Metadata map[string]string
}

// ItemProjection is a read-only view of a payment line item.
type ItemProjection struct {
	CourseID  int64
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// IntentResponse is returned after creating a payment intent.
type IntentResponse struct {
	ID           string
	ClientSecret string
	IntentID     string
	Amount       decimal.Decimal
	Currency     string
	Status       domain.PaymentStatus
	CreatedAt    time.Time
	Items        []ItemProjection
}

// StatusProjection is a read-only view of a payment for clients.
type StatusProjection struct {
	ID           string
	Status       domain.PaymentStatus
	Amount       decimal.Decimal
	Currency     string
	SucceededAt  *time.Time
	Processed    bool
	ErrorMessage string
	CreatedAt    time.Time
	Items        []ItemProjection
}

var reservedMetadataKeys = map[string]bool{
	domain.MetadataKeyStudentID: true,
	domain.MetadataKeyPeriodID:  true,
	domain.MetadataKeyCourses:   true,
	domain.MetadataKeyType:      true,
}

// CreateIntent creates a remote payment intent for a course purchase and the
// local pending record in one transaction. Two calls create two independent
// intents; retry safety is the caller's concern.
func (s *PaymentService) CreateIntent(ctx context.Context, studentID int64, req CreateIntentRequest) (*IntentResponse, error) {
	if req.PeriodID <= 0 {
		return nil, ErrInvalidPeriodID
	}

	total := decimal.Zero
	for _, course := range req.Courses {
		if course.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		total = total.Add(course.Price.Mul(decimal.NewFromInt(int64(course.Quantity))))
	}
	if !total.IsPositive() {
		return nil, ErrInvalidAmount
	}

	courseIDs := make([]int64, 0, len(req.Courses))
	for _, course := range req.Courses {
		courseIDs = append(courseIDs, course.CourseID)
	}
	courseList, err := json.Marshal(courseIDs)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		domain.MetadataKeyStudentID: strconv.FormatInt(studentID, 10),
		domain.MetadataKeyPeriodID:  strconv.FormatInt(req.PeriodID, 10),
		domain.MetadataKeyCourses:   string(courseList),
	}
	for key, value := range req.Metadata {
		if reservedMetadataKeys[key] {
			return nil, ErrReservedMetadataKey
		}
		metadata[key] = value
	}

	intent, err := s.processor.CreateIntent(ctx, minorUnits(total), courseCurrency, metadata, "")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	payment := &domain.Payment{
		ID:            uuid.New().String(),
		StudentID:     studentID,
		PeriodID:      req.PeriodID,
		IntentID:      intent.ID,
		CustomerID:    intent.CustomerID,
		Amount:        total,
		Currency:      courseCurrency,
		Status:        domain.PaymentStatusPending,
		PaymentMethod: firstOf(intent.PaymentMethodTypes),
		Metadata:      metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, course := range req.Courses {
		payment.Items = append(payment.Items, domain.PaymentItem{
			ID:        uuid.New().String(),
			PaymentID: payment.ID,
			CourseID:  course.CourseID,
			Quantity:  course.Quantity,
			UnitPrice: course.Price,
			Subtotal:  course.Price.Mul(decimal.NewFromInt(int64(course.Quantity))),
		})
	}

	// Known gap: the remote intent already exists at this point. A failed
	// insert leaves remote state ahead of local with no sweep to reconcile.
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		log.Printf("payment: persisting payment for intent %s failed, remote and local state diverge: %v", intent.ID, err)
		return nil, err
	}

	log.Printf("payment: intent %s created for student %d, amount %s %s", intent.ID, studentID, total, courseCurrency)

	return intentResponse(payment, intent.ClientSecret), nil
}

// CreateFeeIntent creates a fixed-amount enrollment fee intent for the
// period. Fee payments carry no course line items.
func (s *PaymentService) CreateFeeIntent(ctx context.Context, studentID, periodID int64) (*IntentResponse, error) {
	if periodID <= 0 {
		return nil, ErrInvalidPeriodID
	}

	metadata := map[string]string{
		domain.MetadataKeyStudentID: strconv.FormatInt(studentID, 10),
		domain.MetadataKeyPeriodID:  strconv.FormatInt(periodID, 10),
		domain.MetadataKeyType:      domain.PaymentTypeFee,
	}

	intent, err := s.processor.CreateIntent(ctx, minorUnits(s.feeAmount), s.feeCurrency, metadata, "")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	payment := &domain.Payment{
		ID:            uuid.New().String(),
		StudentID:     studentID,
		PeriodID:      periodID,
		IntentID:      intent.ID,
		CustomerID:    intent.CustomerID,
		Amount:        s.feeAmount,
		Currency:      s.feeCurrency,
		Status:        domain.PaymentStatusPending,
		PaymentMethod: firstOf(intent.PaymentMethodTypes),
		Metadata:      metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		log.Printf("payment: persisting fee payment for intent %s failed, remote and local state diverge: %v", intent.ID, err)
		return nil, err
	}

	log.Printf("payment: fee intent %s created for student %d, period %d", intent.ID, studentID, periodID)

	resp := intentResponse(payment, intent.ClientSecret)
	resp.Items = []ItemProjection{{
		CourseID:  domain.FeeCourseID,
		Quantity:  1,
		UnitPrice: s.feeAmount,
		Subtotal:  s.feeAmount,
	}}
	return resp, nil
}

// GetStatus returns the projection for an intent owned by the caller.
func (s *PaymentService) GetStatus(ctx context.Context, intentID string, callerID int64) (*StatusProjection, error) {
	payment, err := s.paymentRepo.GetByIntentID(ctx, intentID)
	if err != nil {
		return nil, err
	}

	if payment.StudentID != callerID {
		return nil, ErrForbidden
	}

	return statusProjection(payment), nil
}

// GetHistory returns the caller's payments, most recent first.
func (s *PaymentService) GetHistory(ctx context.Context, studentID int64) ([]*StatusProjection, error) {
	payments, err := s.paymentRepo.ListByStudentID(ctx, studentID)
	if err != nil {
		return nil, err
	}

	projections := make([]*StatusProjection, 0, len(payments))
	for _, payment := range payments {
		projections = append(projections, statusProjection(payment))
	}
	return projections, nil
}

// HasPaidFee reports whether a succeeded fee payment exists for the student
// and period. Processed is deliberately not required: the answer tolerates a
// bounded staleness window while reconciliation is in flight.
func (s *PaymentService) HasPaidFee(ctx context.Context, studentID, periodID int64) (bool, error) {
	return s.paymentRepo.HasSucceededFee(ctx, studentID, periodID)
}

// minorUnits converts a decimal amount to integer minor units for the
// processor.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func firstOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func intentResponse(payment *domain.Payment, clientSecret string) *IntentResponse {
	return &IntentResponse{
		ID:           payment.ID,
		ClientSecret: clientSecret,
		IntentID:     payment.IntentID,
		Amount:       payment.Amount,
		Currency:     payment.Currency,
		Status:       payment.Status,
		CreatedAt:    payment.CreatedAt,
		Items:        itemProjections(payment.Items),
	}
}

func statusProjection(payment *domain.Payment) *StatusProjection {
	return &StatusProjection{
		ID:           payment.ID,
		Status:       payment.Status,
		Amount:       payment.Amount,
		Currency:     payment.Currency,
		SucceededAt:  payment.SucceededAt,
		Processed:    payment.Processed,
		ErrorMessage: payment.ErrorMessage,
		CreatedAt:    payment.CreatedAt,
		Items:        itemProjections(payment.Items),
	}
}

func itemProjections(items []domain.PaymentItem) []ItemProjection {
	projections := make([]ItemProjection, 0, len(items))
	for _, item := range items {
		projections = append(projections, ItemProjection{
			CourseID:  item.CourseID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		})
	}
	return projections
}
