package workflows

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/fyrsmithlabs/forge/internal/coordinator"
	"github.com/fyrsmithlabs/forge/internal/delivery"
	"github.com/fyrsmithlabs/forge/internal/services"
)

// Application error types reported by the activities. None of them is
// retried: regeneration already happens inside the coordinator.
const (
	ErrTypeInvalidInput = "InvalidInput"
	ErrTypeExhausted    = "ExhaustedRetries"
	ErrTypeFault        = "CollaboratorFault"
	ErrTypeTimeout      = "CollaboratorTimeout"
	ErrTypeCancelled    = "Cancelled"
	ErrTypeDelivery     = "DeliveryFailed"
	ErrTypeInternal     = "Internal"
)

// ErrorType classifies a pipeline error.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, coordinator.ErrInvalidInput):
		return ErrTypeInvalidInput
	case coordinator.IsExhausted(err):
		return ErrTypeExhausted
	case coordinator.IsTimeout(err):
		return ErrTypeTimeout
	case coordinator.IsCollaboratorFault(err):
		return ErrTypeFault
	case coordinator.IsCancelled(err), errors.Is(err, context.Canceled):
		return ErrTypeCancelled
	case errors.Is(err, services.ErrDelivery):
		return ErrTypeDelivery
	default:
		return ErrTypeInternal
	}
}

// activityError converts err to a non-retryable application error. The
// report, when present, travels as the error's details.
func activityError(err error, report *delivery.Report) error {
	if report != nil {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrorType(err), err, *report)
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), ErrorType(err), err)
}

// ReportFromError extracts the run report attached to a failed workflow or
// activity.
func ReportFromError(err error) (*delivery.Report, bool) {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) || !appErr.HasDetails() {
		return nil, false
	}
	var report delivery.Report
	if derr := appErr.Details(&report); derr != nil {
		return nil, false
	}
	return &report, true
}

// ErrorTypeOf returns the application error type carried by err, or "".
func ErrorTypeOf(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type()
	}
	return ""
}
