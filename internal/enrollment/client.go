package enrollment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Client commits enrollment for a paid student.
type Client interface {
	// Commit enrolls the student in the given courses for the period. Any
	// non-success outcome (error status, timeout, transport failure)
	// yields false; Commit never returns an error and never retries.
	Commit(ctx context.Context, studentID, periodID int64, courseIDs []int64, intentID string) bool
}

// commitRequest is the enrollment backend's wire format.
type commitRequest struct {
	StudentID int64   `json:"studentId"`
	PeriodID  int64   `json:"periodId"`
	CourseIDs []int64 `json:"courseIds"`
	IntentID  string  `json:"intentId"`
}

// HTTPClient calls the enrollment backend over HTTP.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a new enrollment backend client with a bounded
// per-call timeout.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Commit enrolls the student in the given courses for the period.
func (c *HTTPClient) Commit(ctx context.Context, studentID, periodID int64, courseIDs []int64, intentID string) bool {
	body, err := json.Marshal(commitRequest{
		StudentID: studentID,
		PeriodID:  periodID,
		CourseIDs: courseIDs,
		IntentID:  intentID,
	})
	if err != nil {
		log.Printf("enrollment: encoding commit request for intent %s: %v", intentID, err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/students/enroll-paid", bytes.NewReader(body))
	if err != nil {
		log.Printf("enrollment: building commit request for intent %s: %v", intentID, err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("enrollment: commit call for intent %s failed: %v", intentID, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("enrollment: commit for student %d rejected: %d %s", studentID, resp.StatusCode, detail)
		return false
	}

	return true
}
