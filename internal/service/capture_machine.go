package service

import (
	"context"
	"time"

	"capture-service/internal/gateway"
	"capture-service/internal/models"
	"capture-service/internal/store"
	"capture-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the persistence contract the capture flow depends on.
// Implemented by *store.Store.
type OrderStore interface {
	GetDueOrders(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.Order, error)
	BeginCapture(ctx context.Context, orderID int64, maxAttempts int) (int, bool, error)
	RollbackCapture(ctx context.Context, orderID int64) (bool, error)
	CommitCaptureSuccess(ctx context.Context, orderID int64, res *store.CaptureSuccess) error
	CommitCaptureFailure(ctx context.Context, orderID int64, res *store.CaptureFailure) error
	ReclaimStuckOrders(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Notifier enqueues customer and admin notifications.
// Implemented by *broker.EventPublisher.
type Notifier interface {
	PublishCaptureSucceeded(ctx context.Context, event *models.CaptureSucceededEvent) error
	PublishCaptureDisputed(ctx context.Context, event *models.CaptureDisputedEvent) error
}

// Outcome classifies the result of a single state machine run
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeCaptured
	OutcomeFailed
	OutcomeDisputed
)

// Result is the structured outcome of processing one order. Err is set only
// for infrastructure failures; business rejections carry a Reason instead.
type Result struct {
	Outcome Outcome
	Reason  string
	Err     error
}

// CaptureStateMachine drives a single order through the capture transition.
// Callers must hold the order's idempotency lock; the conditional store
// transition stays the final authority either way.
type CaptureStateMachine struct {
	store      OrderStore
	gateway    gateway.Client
	notifier   Notifier
	logger     *zap.Logger
	maxRetries int
	now        func() time.Time
}

// NewCaptureStateMachine creates a new capture state machine
func NewCaptureStateMachine(orderStore OrderStore, gw gateway.Client, notifier Notifier, maxRetries int) *CaptureStateMachine {
	return &CaptureStateMachine{
		store:      orderStore,
		gateway:    gw,
		notifier:   notifier,
		logger:     util.GetLogger(),
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// ProcessOrder runs the full transition contract for one locked order
func (m *CaptureStateMachine) ProcessOrder(ctx context.Context, order *models.Order) Result {
	ctx, span := util.StartSpan(ctx, "CaptureStateMachine.ProcessOrder")
	defer span.End()

	// Policy guard: a disabled auto-capture policy is a deliberate no-op.
	// No transition, no attempt increment.
	if !order.AutoCaptureEnabled {
		util.OrdersSkippedTotal.WithLabelValues("auto_capture_disabled").Inc()
		return Result{Outcome: OutcomeSkipped, Reason: "auto_capture_disabled"}
	}

	// Eligibility guard. The due-order query already filters on these, but
	// the row may have changed between query and lock acquisition.
	if !order.Eligible(m.now(), m.maxRetries) {
		util.OrdersSkippedTotal.WithLabelValues("ineligible").Inc()
		return Result{Outcome: OutcomeSkipped, Reason: "ineligible"}
	}

	// Optimistic AUTHORIZED -> CRON_CAPTURING. No qualifying row means a
	// concurrent holder advanced this order first, or spent its remaining
	// attempts since our snapshot: back off without side effects. The
	// returned count is the authoritative post-increment value; the snapshot
	// counter can be stale by the time the lock is acquired.
	attempt, ok, err := m.store.BeginCapture(ctx, order.ID, m.maxRetries)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Reason: "transition_failed", Err: err}
	}
	if !ok {
		m.logger.Info("Capture race lost, skipping order",
			zap.String("order_number", order.OrderNumber))
		util.OrdersSkippedTotal.WithLabelValues("race_lost").Inc()
		return Result{Outcome: OutcomeSkipped, Reason: "race_lost"}
	}

	util.CaptureAttemptsTotal.Inc()
	start := time.Now()
	capture, err := m.gateway.Capture(ctx, order.GatewayIntentID.String)
	util.GatewayCaptureLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		// Gateway exception: best-effort rollback so the order is not
		// stranded in the transient state. The attempt counter stays
		// incremented and counts toward the retry budget.
		m.logger.Error("Gateway capture call failed",
			zap.String("order_number", order.OrderNumber),
			zap.Int("attempt", attempt),
			zap.Error(err))

		rolledBack, rbErr := m.store.RollbackCapture(ctx, order.ID)
		if rbErr != nil || !rolledBack {
			// Recovery now rests on the stuck-order sweep.
			m.logger.Error("Rollback after gateway exception failed",
				zap.String("order_number", order.OrderNumber),
				zap.Bool("rolled_back", rolledBack),
				zap.Error(rbErr))
		}

		util.CapturesFailedTotal.WithLabelValues("gateway_exception").Inc()
		return Result{Outcome: OutcomeFailed, Reason: "gateway_exception", Err: err}
	}

	if capture.Success {
		return m.commitSuccess(ctx, order, capture, attempt)
	}
	return m.commitFailure(ctx, order, capture, attempt)
}

func (m *CaptureStateMachine) commitSuccess(ctx context.Context, order *models.Order, capture *gateway.CaptureResult, attempt int) Result {
	err := m.store.CommitCaptureSuccess(ctx, order.ID, &store.CaptureSuccess{
		CapturedAmount: capture.CapturedAmount,
		GatewayTxID:    capture.TransactionID,
		RetryCount:     attempt,
		CapturedAt:     m.now(),
	})
	if err != nil {
		// Funds moved but the commit did not land. The order stays in
		// CRON_CAPTURING until the sweep re-queues it; the gateway's
		// status-then-capture sequence makes the retry harmless.
		m.logger.Error("Success commit failed",
			zap.String("order_number", order.OrderNumber),
			zap.Error(err))
		util.CapturesFailedTotal.WithLabelValues("commit_failed").Inc()
		return Result{Outcome: OutcomeFailed, Reason: "commit_failed", Err: err}
	}

	m.logger.Info("Capture succeeded",
		zap.String("order_number", order.OrderNumber),
		zap.String("amount", capture.CapturedAmount.StringFixed(2)),
		zap.String("gateway_tx_id", capture.TransactionID),
		zap.Bool("already_captured", capture.AlreadyCaptured))
	util.CapturesSucceededTotal.Inc()

	event := &models.CaptureSucceededEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCaptureSucceeded,
			Timestamp: m.now(),
		},
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		CapturedAmount: capture.CapturedAmount.StringFixed(2),
		GatewayTxID:    capture.TransactionID,
	}
	if err := m.notifier.PublishCaptureSucceeded(ctx, event); err != nil {
		m.logger.Error("Failed to publish CaptureSucceeded event",
			zap.String("order_number", order.OrderNumber),
			zap.Error(err))
	}

	return Result{Outcome: OutcomeCaptured}
}

func (m *CaptureStateMachine) commitFailure(ctx context.Context, order *models.Order, capture *gateway.CaptureResult, attempt int) Result {
	disputed := attempt >= m.maxRetries

	err := m.store.CommitCaptureFailure(ctx, order.ID, &store.CaptureFailure{
		Amount:       order.DepositAmount,
		ErrorCode:    capture.FailureCode,
		ErrorMessage: capture.FailureMessage,
		RetryCount:   attempt,
		Disputed:     disputed,
	})
	if err != nil {
		m.logger.Error("Failure commit failed",
			zap.String("order_number", order.OrderNumber),
			zap.Error(err))
		util.CapturesFailedTotal.WithLabelValues("commit_failed").Inc()
		return Result{Outcome: OutcomeFailed, Reason: "commit_failed", Err: err}
	}

	if disputed {
		m.logger.Warn("Capture retries exhausted, order disputed",
			zap.String("order_number", order.OrderNumber),
			zap.Int("attempts", attempt),
			zap.String("error_code", capture.FailureCode))
		util.OrdersDisputedTotal.Inc()
		util.CapturesFailedTotal.WithLabelValues("retries_exhausted").Inc()

		event := &models.CaptureDisputedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeCaptureDisputed,
				Timestamp: m.now(),
			},
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Attempts:    attempt,
			Reason:      capture.FailureMessage,
		}
		if err := m.notifier.PublishCaptureDisputed(ctx, event); err != nil {
			m.logger.Error("Failed to publish CaptureDisputed event",
				zap.String("order_number", order.OrderNumber),
				zap.Error(err))
		}

		return Result{Outcome: OutcomeDisputed, Reason: capture.FailureCode}
	}

	m.logger.Warn("Capture rejected, order returned to AUTHORIZED",
		zap.String("order_number", order.OrderNumber),
		zap.Int("attempt", attempt),
		zap.String("error_code", capture.FailureCode))
	util.CapturesFailedTotal.WithLabelValues("gateway_rejection").Inc()

	return Result{Outcome: OutcomeFailed, Reason: capture.FailureCode}
}
