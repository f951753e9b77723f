// Package gateway defines the payment gateway contract consumed by the
// capture flow and its Stripe implementation. The core only ever drives
// capture through the idempotent status-then-capture sequence.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// Intent statuses. The subset the capture flow branches on; other gateway
// statuses are reported verbatim in failure messages.
const (
	StatusRequiresCapture       = "requires_capture"
	StatusSucceeded             = "succeeded"
	StatusRequiresPaymentMethod = "requires_payment_method"
	StatusCanceled              = "canceled"
)

// AuthorizeResult is returned by Authorize; funds are reserved, not moved.
type AuthorizeResult struct {
	IntentID     string
	ClientSecret string
}

// IntentStatus is the current state of a payment intent.
type IntentStatus struct {
	Status         string
	Amount         decimal.Decimal
	AmountReceived decimal.Decimal
}

// CaptureResult is the outcome of a capture attempt. Success=false with a
// nil error is a gateway rejection (business-retryable); transport failures
// surface as errors instead.
type CaptureResult struct {
	Success         bool
	AlreadyCaptured bool
	CapturedAmount  decimal.Decimal
	TransactionID   string
	FailureCode     string
	FailureMessage  string
}

// RefundResult is the outcome of a refund.
type RefundResult struct {
	RefundID string
	Amount   decimal.Decimal
}

// Client is the narrow contract against the payment processor.
type Client interface {
	// Authorize reserves funds in manual-capture mode.
	Authorize(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*AuthorizeResult, error)

	// RetrieveStatus reports the current intent state.
	RetrieveStatus(ctx context.Context, intentID string) (*IntentStatus, error)

	// Capture checks the current status first: an already-succeeded intent
	// returns success with the gateway-reported amount, a non-capturable
	// status returns a rejection naming it, otherwise the capture runs.
	Capture(ctx context.Context, intentID string) (*CaptureResult, error)

	// Cancel cancels a requires_capture intent; an already-succeeded intent
	// is fully refunded instead. The two branches are mutually exclusive.
	Cancel(ctx context.Context, intentID string) error

	// Refund refunds the intent; a nil amount performs a full refund.
	Refund(ctx context.Context, intentID string, amount *decimal.Decimal) (*RefundResult, error)
}
