package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses. Upstream statuses (CREATED etc.) exist in the same column
// but are never touched by the capture flow.
const (
	OrderStatusCreated       = "CREATED"
	OrderStatusAuthorized    = "AUTHORIZED"
	OrderStatusCronCapturing = "CRON_CAPTURING"
	OrderStatusCaptured      = "CAPTURED"
	OrderStatusDisputed      = "DISPUTED"
)

// Payment ledger row types and statuses
const (
	PaymentTypeCapture = "CAPTURE"
)

// Escrow statuses
const (
	EscrowStatusHolding = "HOLDING"
)

// Order is the unit of work for deferred capture. An order becomes eligible
// once it is AUTHORIZED, its scheduled capture time has passed, it carries a
// gateway intent id and its attempt counter is below the retry ceiling.
type Order struct {
	ID                 int64           `db:"id" json:"id"`
	OrderNumber        string          `db:"order_number" json:"order_number"`
	Status             string          `db:"status" json:"status"`
	DepositAmount      decimal.Decimal `db:"deposit_amount" json:"deposit_amount"`
	GatewayIntentID    sql.NullString  `db:"gateway_intent_id" json:"gateway_intent_id,omitempty"`
	ScheduledCaptureAt time.Time       `db:"scheduled_capture_at" json:"scheduled_capture_at"`
	ActualCapturedAt   sql.NullTime    `db:"actual_captured_at" json:"actual_captured_at,omitempty"`
	CaptureAttempts    int             `db:"capture_attempts" json:"capture_attempts"`
	PolicyID           int64           `db:"policy_id" json:"policy_id"`
	AutoCaptureEnabled bool            `db:"auto_capture_enabled" json:"auto_capture_enabled"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentPolicy controls whether the scheduler may capture at all
type PaymentPolicy struct {
	ID                 int64     `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	AutoCaptureEnabled bool      `db:"auto_capture_enabled" json:"auto_capture_enabled"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// Payment is an append-only ledger row, one per capture attempt.
// Rows are never mutated after creation.
type Payment struct {
	ID           int64           `db:"id" json:"id"`
	OrderID      int64           `db:"order_id" json:"order_id"`
	Type         string          `db:"type" json:"type"`
	Success      bool            `db:"success" json:"success"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	GatewayTxID  string          `db:"gateway_tx_id" json:"gateway_tx_id,omitempty"`
	ErrorCode    string          `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage string          `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Escrow holds captured funds pending release to the provider.
// One row per order, created or updated only on a successful capture.
type Escrow struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Status    string          `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// ProcessedEvent for consumer-side idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// Eligible reports whether the order passes the capture eligibility guard.
// The auto-capture policy is checked separately: a disabled policy is a
// deliberate no-op, not an eligibility failure.
func (o *Order) Eligible(now time.Time, maxAttempts int) bool {
	return o.Status == OrderStatusAuthorized &&
		o.GatewayIntentID.Valid &&
		o.GatewayIntentID.String != "" &&
		!o.ScheduledCaptureAt.After(now) &&
		o.CaptureAttempts < maxAttempts
}
