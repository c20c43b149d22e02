package service

import "errors"

var (
	// ErrInvalidAmount is returned when the computed total is not positive.
	ErrInvalidAmount = errors.New("total amount must be greater than 0")

	// ErrInvalidPeriodID is returned when the period id is missing.
	ErrInvalidPeriodID = errors.New("invalid period id")

	// ErrInvalidQuantity is returned when an item quantity is not positive.
	ErrInvalidQuantity = errors.New("item quantity must be greater than 0")

	// ErrReservedMetadataKey is returned when caller metadata would
	// overwrite a reserved key.
	ErrReservedMetadataKey = errors.New("metadata key is reserved")

	// ErrForbidden is returned when a payment does not belong to the caller.
	ErrForbidden = errors.New("payment does not belong to caller")

	// ErrNoCoursesToEnroll is returned when a course purchase resolves to
	// an empty course list.
	ErrNoCoursesToEnroll = errors.New("no courses to enroll")

	// ErrEnrollmentFailed is returned when the enrollment backend rejects
	// or fails the commit call. The payment stays unprocessed and waits
	// for the next redelivered success event.
	ErrEnrollmentFailed = errors.New("enrollment commit failed")

	// ErrReconcileInFlight is returned when another caller holds the
	// reconciliation lock for the same intent.
	ErrReconcileInFlight = errors.New("reconciliation already in flight for intent")
)
