package tests

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"paygate/internal/domain"
	"paygate/internal/processor"
	"paygate/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK PAYMENT REPOSITORY
// ──────────────────────────────────────────────

// MockPaymentRepository is a mock implementation of PaymentRepository.
type MockPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment

	// Counters for verification
	CreateCallCount        int32
	MarkProcessedCallCount int32

	// Error injection
	CreateError        error
	GetError           error
	MarkProcessedError error
}

// NewMockPaymentRepository creates a new mock payment repository.
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[string]*domain.Payment),
	}
}

// AddPayment adds a payment to the mock repository.
func (m *MockPaymentRepository) AddPayment(payment *domain.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[payment.ID] = payment
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := clonePayment(payment)
	m.payments[payment.ID] = copy
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	payment, ok := m.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clonePayment(payment), nil
}

func (m *MockPaymentRepository) GetByIntentID(ctx context.Context, intentID string) (*domain.Payment, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.IntentID == intentID {
			return clonePayment(p), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockPaymentRepository) ListByStudentID(ctx context.Context, studentID int64) ([]*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Payment
	for _, p := range m.payments {
		if p.StudentID == studentID {
			result = append(result, clonePayment(p))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// MarkProcessed mirrors the conditional store update: the latch flips only
// when it is still down, and the caller learns whether it won.
func (m *MockPaymentRepository) MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error) {
	atomic.AddInt32(&m.MarkProcessedCallCount, 1)
	if m.MarkProcessedError != nil {
		return false, m.MarkProcessedError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.payments[id]
	if !ok || payment.Processed {
		return false, nil
	}
	payment.Processed = true
	payment.Status = domain.PaymentStatusSucceeded
	succeededAt := at
	payment.SucceededAt = &succeededAt
	payment.ErrorMessage = ""
	payment.UpdatedAt = at
	return true, nil
}

func (m *MockPaymentRepository) RecordError(ctx context.Context, id string, message string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.payments[id]
	if !ok || payment.Processed {
		return nil
	}
	payment.ErrorMessage = message
	payment.UpdatedAt = at
	return nil
}

func (m *MockPaymentRepository) UpdateStatusIfUnprocessed(ctx context.Context, intentID string, status domain.PaymentStatus, message string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.IntentID == intentID && !p.Processed {
			p.Status = status
			p.ErrorMessage = message
			p.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (m *MockPaymentRepository) HasSucceededFee(ctx context.Context, studentID, periodID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.StudentID == studentID &&
			p.PeriodID == periodID &&
			p.Status == domain.PaymentStatusSucceeded &&
			p.Metadata[domain.MetadataKeyType] == domain.PaymentTypeFee {
			return true, nil
		}
	}
	return false, nil
}

// GetPayment returns the stored payment for test assertions.
func (m *MockPaymentRepository) GetPayment(id string) *domain.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.payments[id]
}

// GetPaymentByIntent returns the stored payment by intent id for assertions.
func (m *MockPaymentRepository) GetPaymentByIntent(intentID string) *domain.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.IntentID == intentID {
			return p
		}
	}
	return nil
}

// CountPayments returns the number of payments.
func (m *MockPaymentRepository) CountPayments() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.payments)
}

func clonePayment(p *domain.Payment) *domain.Payment {
	copy := *p
	copy.Items = append([]domain.PaymentItem(nil), p.Items...)
	if p.Metadata != nil {
		copy.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			copy.Metadata[k] = v
		}
	}
	if p.SucceededAt != nil {
		t := *p.SucceededAt
		copy.SucceededAt = &t
	}
	return &copy
}

// ──────────────────────────────────────────────
// MOCK ENROLLMENT CLIENT
// ──────────────────────────────────────────────

// MockEnrollmentClient is a mock implementation of enrollment.Client.
type MockEnrollmentClient struct {
	mu      sync.Mutex
	results []bool

	// Result is returned once the queued results run out.
	Result bool

	// Delay simulates a slow backend call.
	Delay time.Duration

	// Counters and captured arguments for verification
	CommitCallCount int32
	LastStudentID   int64
	LastPeriodID    int64
	LastCourseIDs   []int64
	LastIntentID    string
}

// NewMockEnrollmentClient creates a mock enrollment client that succeeds.
func NewMockEnrollmentClient() *MockEnrollmentClient {
	return &MockEnrollmentClient{Result: true}
}

// QueueResults sets the results returned by successive Commit calls.
func (m *MockEnrollmentClient) QueueResults(results ...bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, results...)
}

func (m *MockEnrollmentClient) Commit(ctx context.Context, studentID, periodID int64, courseIDs []int64, intentID string) bool {
	atomic.AddInt32(&m.CommitCallCount, 1)
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastStudentID = studentID
	m.LastPeriodID = periodID
	m.LastCourseIDs = append([]int64(nil), courseIDs...)
	m.LastIntentID = intentID
	if len(m.results) > 0 {
		result := m.results[0]
		m.results = m.results[1:]
		return result
	}
	return m.Result
}

// ──────────────────────────────────────────────
// MOCK PROCESSOR CLIENT
// ──────────────────────────────────────────────

// MockProcessorClient is a mock implementation of processor.Client.
type MockProcessorClient struct {
	mu      sync.Mutex
	counter int

	// Error injection
	CreateIntentError error

	// Counters and captured arguments for verification
	CreateIntentCallCount int32
	LastAmountMinor       int64
	LastCurrency          string
	LastMetadata          map[string]string
}

// NewMockProcessorClient creates a new mock processor client.
func NewMockProcessorClient() *MockProcessorClient {
	return &MockProcessorClient{}
}

func (m *MockProcessorClient) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string, customerID string) (*processor.Intent, error) {
	atomic.AddInt32(&m.CreateIntentCallCount, 1)
	if m.CreateIntentError != nil {
		return nil, m.CreateIntentError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	m.LastAmountMinor = amountMinor
	m.LastCurrency = currency
	m.LastMetadata = metadata
	id := fmt.Sprintf("pi_mock_%d", m.counter)
	return &processor.Intent{
		ID:                 id,
		ClientSecret:       id + "_secret",
		Status:             "requires_payment_method",
		PaymentMethodTypes: []string{"card"},
		CustomerID:         customerID,
	}, nil
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is an in-memory implementation of the intent lock store.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]bool

	// Error injection
	AcquireError error
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]bool)}
}

func (m *MockLockStore) AcquireIntentLock(ctx context.Context, intentID string, ttl time.Duration) (bool, error) {
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[intentID] {
		return false, nil
	}
	m.locks[intentID] = true
	return true, nil
}

func (m *MockLockStore) ReleaseIntentLock(ctx context.Context, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, intentID)
	return nil
}

// ──────────────────────────────────────────────
// MOCK IDENTITY RESOLVER
// ──────────────────────────────────────────────

// MockResolver resolves bearer tokens from a fixed table.
type MockResolver struct {
	mu     sync.RWMutex
	tokens map[string]int64
}

// NewMockResolver creates a new mock resolver.
func NewMockResolver() *MockResolver {
	return &MockResolver{tokens: make(map[string]int64)}
}

// AddToken maps a token to a student id.
func (m *MockResolver) AddToken(token string, studentID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = studentID
}

func (m *MockResolver) ResolveStudentID(ctx context.Context, token string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.tokens[token]
	if !ok {
		return 0, fmt.Errorf("unknown token %q", token)
	}
	return id, nil
}
