package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"capture-service/internal/models"

	"github.com/shopspring/decimal"
)

const dueOrderColumns = `
	o.id, o.order_number, o.status, o.deposit_amount, o.gateway_intent_id,
	o.scheduled_capture_at, o.actual_captured_at, o.capture_attempts,
	o.policy_id, p.auto_capture_enabled, o.created_at, o.updated_at`

// GetDueOrders returns orders eligible for capture this pass, earliest-due
// first, capped at limit. Orders stuck in CRON_CAPTURING are deliberately
// excluded; the sweep reclaims those.
func (s *Store) GetDueOrders(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.Order, error) {
	query := `
		SELECT ` + dueOrderColumns + `
		FROM orders o
		JOIN payment_policies p ON p.id = o.policy_id
		WHERE o.status = $1
		  AND o.scheduled_capture_at <= $2
		  AND o.gateway_intent_id IS NOT NULL
		  AND o.capture_attempts < $3
		ORDER BY o.scheduled_capture_at ASC
		LIMIT $4`

	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, query,
		models.OrderStatusAuthorized, now, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due orders: %w", err)
	}
	return orders, nil
}

// GetOrderByID retrieves an order with its policy flag
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	query := `
		SELECT ` + dueOrderColumns + `
		FROM orders o
		JOIN payment_policies p ON p.id = o.policy_id
		WHERE o.id = $1`

	var order models.Order
	err := s.db.GetContext(ctx, &order, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// BeginCapture performs the optimistic AUTHORIZED -> CRON_CAPTURING transition
// and increments the attempt counter in the same statement. The row qualifies
// only while it is still below the retry ceiling, so concurrent passes working
// from stale snapshots cannot push the counter past it. Returns the
// authoritative post-increment attempt count, or false when no row qualified,
// meaning another process advanced this order first.
func (s *Store) BeginCapture(ctx context.Context, orderID int64, maxAttempts int) (int, bool, error) {
	var attempts int
	err := s.db.GetContext(ctx, &attempts, `
		UPDATE orders
		SET status = $1, capture_attempts = capture_attempts + 1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND capture_attempts < $4
		RETURNING capture_attempts`,
		models.OrderStatusCronCapturing, orderID, models.OrderStatusAuthorized, maxAttempts)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin capture for order %d: %w", orderID, err)
	}
	return attempts, true, nil
}

// RollbackCapture conditionally returns an order from CRON_CAPTURING to
// AUTHORIZED after a gateway exception. The attempt counter stays incremented.
func (s *Store) RollbackCapture(ctx context.Context, orderID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		models.OrderStatusAuthorized, orderID, models.OrderStatusCronCapturing)
	if err != nil {
		return false, fmt.Errorf("failed to rollback capture for order %d: %w", orderID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// CaptureSuccess describes a successful gateway capture to be committed.
type CaptureSuccess struct {
	CapturedAmount decimal.Decimal
	GatewayTxID    string
	RetryCount     int
	CapturedAt     time.Time
}

// CommitCaptureSuccess applies the success commit as one transaction:
// order to CAPTURED, append a successful CAPTURE ledger row, upsert the
// escrow hold. The escrow upsert is idempotent on order_id.
func (s *Store) CommitCaptureSuccess(ctx context.Context, orderID int64, res *CaptureSuccess) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, actual_captured_at = $2, updated_at = NOW()
		WHERE id = $3`,
		models.OrderStatusCaptured, res.CapturedAt, orderID)
	if err != nil {
		return fmt.Errorf("failed to mark order %d captured: %w", orderID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (order_id, type, success, amount, gateway_tx_id, retry_count)
		VALUES ($1, $2, TRUE, $3, $4, $5)`,
		orderID, models.PaymentTypeCapture, res.CapturedAmount, res.GatewayTxID, res.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to append capture ledger row for order %d: %w", orderID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO escrows (order_id, amount, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id) DO UPDATE
		SET amount = EXCLUDED.amount, status = EXCLUDED.status, updated_at = NOW()`,
		orderID, res.CapturedAmount, models.EscrowStatusHolding)
	if err != nil {
		return fmt.Errorf("failed to upsert escrow for order %d: %w", orderID, err)
	}

	return tx.Commit()
}

// CaptureFailure describes a rejected gateway capture to be committed.
type CaptureFailure struct {
	Amount       decimal.Decimal
	ErrorCode    string
	ErrorMessage string
	RetryCount   int
	Disputed     bool
}

// CommitCaptureFailure applies the failure commit as one transaction: order
// back to AUTHORIZED (retryable) or to DISPUTED (retries exhausted), plus a
// failed CAPTURE ledger row either way.
func (s *Store) CommitCaptureFailure(ctx context.Context, orderID int64, res *CaptureFailure) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	nextStatus := models.OrderStatusAuthorized
	if res.Disputed {
		nextStatus = models.OrderStatusDisputed
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		nextStatus, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order %d after capture failure: %w", orderID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (order_id, type, success, amount, error_code, error_message, retry_count)
		VALUES ($1, $2, FALSE, $3, $4, $5, $6)`,
		orderID, models.PaymentTypeCapture, res.Amount, res.ErrorCode, res.ErrorMessage, res.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to append failure ledger row for order %d: %w", orderID, err)
	}

	return tx.Commit()
}

// ReclaimStuckOrders sweeps orders stranded in CRON_CAPTURING past the
// staleness threshold back to AUTHORIZED, making them eligible again.
// Covers the case where both the gateway call and the rollback write failed.
func (s *Store) ReclaimStuckOrders(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND updated_at < $3`,
		models.OrderStatusAuthorized, models.OrderStatusCronCapturing,
		time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stuck orders: %w", err)
	}
	return res.RowsAffected()
}

// GetPaymentsByOrderID retrieves the ledger rows for an order, newest first
func (s *Store) GetPaymentsByOrderID(ctx context.Context, orderID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC", orderID)
	return payments, err
}

// GetEscrowByOrderID retrieves the escrow hold for an order
func (s *Store) GetEscrowByOrderID(ctx context.Context, orderID int64) (*models.Escrow, error) {
	var escrow models.Escrow
	err := s.db.GetContext(ctx, &escrow,
		"SELECT * FROM escrows WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("escrow not found for order: %d", orderID)
	}
	if err != nil {
		return nil, err
	}
	return &escrow, nil
}
