package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"capture-service/internal/models"
	"capture-service/internal/redisclient"
	"capture-service/internal/util"

	"go.uber.org/zap"
)

// maxSummaryErrors bounds the error list so a mass failure cannot balloon the
// pass summary.
const maxSummaryErrors = 10

// Locker is the distributed idempotency lock contract.
// Implemented by *redisclient.Client.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// PassSummary aggregates the outcome of one scheduler pass
type PassSummary struct {
	Processed int      `json:"processed"`
	Captured  int      `json:"captured"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

// BatchOrchestrator runs capture passes over due orders with bounded
// per-pass concurrency. Multiple orchestrator instances may run overlapping
// passes; the lock plus the conditional store transition keep each order's
// processing exclusive.
type BatchOrchestrator struct {
	store        OrderStore
	locker       Locker
	machine      *CaptureStateMachine
	logger       *zap.Logger
	batchSize    int
	maxRetries   int
	concurrency  int
	lockTTL      time.Duration
	orderTimeout time.Duration
	now          func() time.Time
}

// NewBatchOrchestrator creates a new batch orchestrator
func NewBatchOrchestrator(
	orderStore OrderStore,
	locker Locker,
	machine *CaptureStateMachine,
	batchSize, maxRetries, concurrency int,
	lockTTL, orderTimeout time.Duration,
) *BatchOrchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchOrchestrator{
		store:        orderStore,
		locker:       locker,
		machine:      machine,
		logger:       util.GetLogger(),
		batchSize:    batchSize,
		maxRetries:   maxRetries,
		concurrency:  concurrency,
		lockTTL:      lockTTL,
		orderTimeout: orderTimeout,
		now:          time.Now,
	}
}

// RunPass executes one scheduler pass. Per-order failures are converted into
// counters and never abort the batch; only a failed candidate query is
// returned as an error.
func (o *BatchOrchestrator) RunPass(ctx context.Context) (*PassSummary, error) {
	ctx, span := util.StartSpan(ctx, "BatchOrchestrator.RunPass")
	defer span.End()

	util.CapturePassesTotal.Inc()
	start := time.Now()
	defer func() {
		util.CapturePassDuration.Observe(time.Since(start).Seconds())
	}()

	orders, err := o.store.GetDueOrders(ctx, o.now(), o.maxRetries, o.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query due orders: %w", err)
	}

	o.logger.Info("Capture pass started", zap.Int("candidates", len(orders)))

	summary := &PassSummary{Errors: []string{}}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.concurrency)

	for i := range orders {
		order := orders[i]

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			result := o.processWithLock(ctx, &order)

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			switch result.Outcome {
			case OutcomeCaptured:
				summary.Captured++
			case OutcomeSkipped:
				summary.Skipped++
			default:
				summary.Failed++
				if len(summary.Errors) < maxSummaryErrors {
					msg := fmt.Sprintf("order %s: %s", order.OrderNumber, result.Reason)
					if result.Err != nil {
						msg = fmt.Sprintf("%s: %v", msg, result.Err)
					}
					summary.Errors = append(summary.Errors, msg)
				}
			}
		}()
	}

	wg.Wait()

	o.logger.Info("Capture pass completed",
		zap.Int("processed", summary.Processed),
		zap.Int("captured", summary.Captured),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))

	return summary, nil
}

// processWithLock wraps the state machine run in lock acquisition and
// guaranteed release.
func (o *BatchOrchestrator) processWithLock(ctx context.Context, order *models.Order) Result {
	key := redisclient.OrderLockKey(order.ID)

	// Lock-service unavailability is treated as "lock not acquired": skip
	// this pass rather than risk a double capture.
	token, acquired, err := o.locker.AcquireLock(ctx, key, o.lockTTL)
	if err != nil {
		o.logger.Warn("Lock acquisition error, skipping order",
			zap.String("order_number", order.OrderNumber),
			zap.Error(err))
		util.LockAcquireFailedTotal.Inc()
		return Result{Outcome: OutcomeSkipped, Reason: "lock_unavailable"}
	}
	if !acquired {
		util.OrdersSkippedTotal.WithLabelValues("lock_held").Inc()
		return Result{Outcome: OutcomeSkipped, Reason: "lock_held"}
	}

	defer func() {
		// Release on a fresh context so cleanup survives an order timeout.
		// If the delete itself fails, the TTL is the safety net.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.locker.ReleaseLock(releaseCtx, key, token); err != nil {
			o.logger.Warn("Lock release failed, relying on TTL",
				zap.String("order_number", order.OrderNumber),
				zap.Error(err))
		}
	}()

	orderCtx, cancel := context.WithTimeout(ctx, o.orderTimeout)
	defer cancel()

	return o.machine.ProcessOrder(orderCtx, order)
}

// SweepStuckOrders reclaims orders stranded in CRON_CAPTURING for longer than
// twice the lock TTL back to AUTHORIZED.
func (o *BatchOrchestrator) SweepStuckOrders(ctx context.Context) (int64, error) {
	reclaimed, err := o.store.ReclaimStuckOrders(ctx, 2*o.lockTTL)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		o.logger.Warn("Reclaimed stuck orders", zap.Int64("count", reclaimed))
		util.StuckOrdersReclaimedTotal.Add(float64(reclaimed))
	}
	return reclaimed, nil
}
