package errors

import (
	"context"
	"errors"
	"log/slog"
)

// ErrorClass separates the three failure families of the audit core:
// caller mistakes, integrity findings surfaced as errors, and
// infrastructure faults that must abort the operation loudly.
type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassInput
	ClassIntegrity
	ClassInfrastructure
)

// ClassifiedError pairs an internal error with the class and the
// message safe to hand back to a caller.
type ClassifiedError struct {
	Class         ErrorClass
	InternalError error
	ClientMessage string
	OperationName string
	TenantID      string
}

func (ce *ClassifiedError) Error() string {
	return ce.InternalError.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.InternalError
}

// ErrorClassifier maps errors onto classes and logs the internal
// detail once, at classification time.
type ErrorClassifier struct {
	logger *slog.Logger
}

func NewErrorClassifier(logger *slog.Logger) *ErrorClassifier {
	return &ErrorClassifier{logger: logger}
}

// Classify wraps err with its class for the given operation and tenant.
func (ec *ErrorClassifier) Classify(ctx context.Context, err error, operation, tenantID string) *ClassifiedError {
	classified := &ClassifiedError{
		InternalError: err,
		OperationName: operation,
		TenantID:      tenantID,
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrDepthExceeded):
		classified.Class = ClassInput
		classified.ClientMessage = "The event payload is invalid and was not recorded."
	case errors.Is(err, ErrChainForked):
		classified.Class = ClassIntegrity
		classified.ClientMessage = "The audit chain moved during the append; retry the operation."
	case errors.Is(err, ErrStoreUnavailable):
		classified.Class = ClassInfrastructure
		classified.ClientMessage = "The audit store is unavailable; the event was not recorded."
	default:
		classified.Class = ClassInternal
		classified.ClientMessage = "An internal error occurred."
	}

	ec.logger.ErrorContext(ctx, "operation failed",
		slog.String("operation", operation),
		slog.String("tenant_id", tenantID),
		slog.Int("class", int(classified.Class)),
		slog.String("error", err.Error()))

	return classified
}
