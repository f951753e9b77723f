package gateway

import (
	"context"
	"fmt"

	"capture-service/internal/money"
	"capture-service/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"go.uber.org/zap"
)

// StripeClient implements Client on top of Stripe payment intents.
// The API handle is constructed and injected explicitly so tests and
// concurrent instances stay deterministic.
type StripeClient struct {
	api      *client.API
	currency string
	logger   *zap.Logger
}

// NewStripeClient creates a Stripe-backed gateway client
func NewStripeClient(secretKey, currency string) *StripeClient {
	api := &client.API{}
	api.Init(secretKey, nil)

	return &StripeClient{
		api:      api,
		currency: currency,
		logger:   util.GetLogger(),
	}
}

// Authorize creates a manual-capture payment intent
func (sc *StripeClient) Authorize(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*AuthorizeResult, error) {
	if currency == "" {
		currency = sc.currency
	}

	params := &stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(money.ToMinorUnits(amount)),
		Currency:      stripe.String(currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := sc.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &AuthorizeResult{
		IntentID:     pi.ID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

// RetrieveStatus retrieves the current intent state
func (sc *StripeClient) RetrieveStatus(ctx context.Context, intentID string) (*IntentStatus, error) {
	pi, err := sc.api.PaymentIntents.Get(intentID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent %s: %w", intentID, err)
	}

	return &IntentStatus{
		Status:         string(pi.Status),
		Amount:         money.FromMinorUnits(pi.Amount),
		AmountReceived: money.FromMinorUnits(pi.AmountReceived),
	}, nil
}

// Capture drives the idempotent status-then-capture sequence
func (sc *StripeClient) Capture(ctx context.Context, intentID string) (*CaptureResult, error) {
	pi, err := sc.api.PaymentIntents.Get(intentID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent %s: %w", intentID, err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		// A concurrent holder already captured this intent. Report success
		// with the amount the gateway actually received.
		sc.logger.Info("Payment intent already captured",
			zap.String("intent_id", intentID),
			zap.Int64("amount_received", pi.AmountReceived))
		return &CaptureResult{
			Success:         true,
			AlreadyCaptured: true,
			CapturedAmount:  money.FromMinorUnits(pi.AmountReceived),
			TransactionID:   transactionID(pi),
		}, nil

	case stripe.PaymentIntentStatusRequiresCapture:
		// Capturable. Fall through to the capture call below.

	default:
		return &CaptureResult{
			Success:        false,
			FailureCode:    string(pi.Status),
			FailureMessage: fmt.Sprintf("intent %s is not capturable: status=%s", intentID, pi.Status),
		}, nil
	}

	captured, err := sc.api.PaymentIntents.Capture(intentID, &stripe.PaymentIntentCaptureParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		if stripeErr, ok := err.(*stripe.Error); ok {
			// Gateway rejection, e.g. the card was declined at capture time.
			return &CaptureResult{
				Success:        false,
				FailureCode:    string(stripeErr.Code),
				FailureMessage: stripeErr.Msg,
			}, nil
		}
		return nil, fmt.Errorf("failed to capture payment intent %s: %w", intentID, err)
	}

	return &CaptureResult{
		Success:        true,
		CapturedAmount: money.FromMinorUnits(captured.AmountReceived),
		TransactionID:  transactionID(captured),
	}, nil
}

// Cancel cancels or refunds depending on the current intent status
func (sc *StripeClient) Cancel(ctx context.Context, intentID string) error {
	pi, err := sc.api.PaymentIntents.Get(intentID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return fmt.Errorf("failed to retrieve payment intent %s: %w", intentID, err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusRequiresCapture:
		_, err = sc.api.PaymentIntents.Cancel(intentID, &stripe.PaymentIntentCancelParams{
			Params: stripe.Params{Context: ctx},
		})
		if err != nil {
			return fmt.Errorf("failed to cancel payment intent %s: %w", intentID, err)
		}
		return nil

	case stripe.PaymentIntentStatusSucceeded:
		// Funds already moved; a full refund is the only way back.
		_, err = sc.Refund(ctx, intentID, nil)
		return err

	case stripe.PaymentIntentStatusCanceled:
		return nil

	default:
		return fmt.Errorf("intent %s cannot be canceled: status=%s", intentID, pi.Status)
	}
}

// Refund refunds the intent; nil amount means full refund
func (sc *StripeClient) Refund(ctx context.Context, intentID string, amount *decimal.Decimal) (*RefundResult, error) {
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(intentID),
	}
	if amount != nil {
		params.Amount = stripe.Int64(money.ToMinorUnits(*amount))
	}

	ref, err := sc.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to refund payment intent %s: %w", intentID, err)
	}

	return &RefundResult{
		RefundID: ref.ID,
		Amount:   money.FromMinorUnits(ref.Amount),
	}, nil
}

func transactionID(pi *stripe.PaymentIntent) string {
	if pi.LatestCharge != nil {
		return pi.LatestCharge.ID
	}
	return pi.ID
}
