package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"capture-service/internal/gateway"
	"capture-service/internal/models"
	"capture-service/internal/store"

	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory OrderStore mirroring the conditional-update
// semantics of the SQL implementation.
type fakeStore struct {
	mu sync.Mutex

	orders  map[int64]*models.Order
	ledger  []recordedPayment
	escrows map[int64]store.CaptureSuccess

	dueErr    error
	beginErr  error
	commitErr error
}

type recordedPayment struct {
	orderID    int64
	success    bool
	errorCode  string
	retryCount int
	amount     decimal.Decimal
}

func newFakeStore(orders ...*models.Order) *fakeStore {
	fs := &fakeStore{
		orders:  make(map[int64]*models.Order),
		escrows: make(map[int64]store.CaptureSuccess),
	}
	for _, o := range orders {
		fs.orders[o.ID] = o
	}
	return fs
}

func (fs *fakeStore) GetDueOrders(_ context.Context, now time.Time, maxAttempts, limit int) ([]models.Order, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.dueErr != nil {
		return nil, fs.dueErr
	}

	var due []models.Order
	for _, o := range fs.orders {
		if o.Eligible(now, maxAttempts) && len(due) < limit {
			due = append(due, *o)
		}
	}
	return due, nil
}

func (fs *fakeStore) BeginCapture(_ context.Context, orderID int64, maxAttempts int) (int, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.beginErr != nil {
		return 0, false, fs.beginErr
	}

	o, ok := fs.orders[orderID]
	if !ok || o.Status != models.OrderStatusAuthorized || o.CaptureAttempts >= maxAttempts {
		return 0, false, nil
	}
	o.Status = models.OrderStatusCronCapturing
	o.CaptureAttempts++
	return o.CaptureAttempts, true, nil
}

func (fs *fakeStore) RollbackCapture(_ context.Context, orderID int64) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, ok := fs.orders[orderID]
	if !ok || o.Status != models.OrderStatusCronCapturing {
		return false, nil
	}
	o.Status = models.OrderStatusAuthorized
	return true, nil
}

func (fs *fakeStore) CommitCaptureSuccess(_ context.Context, orderID int64, res *store.CaptureSuccess) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.commitErr != nil {
		return fs.commitErr
	}

	o := fs.orders[orderID]
	o.Status = models.OrderStatusCaptured
	o.ActualCapturedAt = sql.NullTime{Time: res.CapturedAt, Valid: true}

	fs.ledger = append(fs.ledger, recordedPayment{
		orderID:    orderID,
		success:    true,
		retryCount: res.RetryCount,
		amount:     res.CapturedAmount,
	})
	fs.escrows[orderID] = *res
	return nil
}

func (fs *fakeStore) CommitCaptureFailure(_ context.Context, orderID int64, res *store.CaptureFailure) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.commitErr != nil {
		return fs.commitErr
	}

	o := fs.orders[orderID]
	if res.Disputed {
		o.Status = models.OrderStatusDisputed
	} else {
		o.Status = models.OrderStatusAuthorized
	}

	fs.ledger = append(fs.ledger, recordedPayment{
		orderID:    orderID,
		success:    false,
		errorCode:  res.ErrorCode,
		retryCount: res.RetryCount,
		amount:     res.Amount,
	})
	return nil
}

func (fs *fakeStore) ReclaimStuckOrders(_ context.Context, _ time.Duration) (int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var n int64
	for _, o := range fs.orders {
		if o.Status == models.OrderStatusCronCapturing {
			o.Status = models.OrderStatusAuthorized
			n++
		}
	}
	return n, nil
}

func (fs *fakeStore) order(id int64) models.Order {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return *fs.orders[id]
}

func (fs *fakeStore) payments(id int64) []recordedPayment {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var out []recordedPayment
	for _, p := range fs.ledger {
		if p.orderID == id {
			out = append(out, p)
		}
	}
	return out
}

// fakeGateway returns canned results per intent id.
type fakeGateway struct {
	mu sync.Mutex

	results map[string]*gateway.CaptureResult
	err     error
	calls   int
}

func (fg *fakeGateway) Authorize(context.Context, decimal.Decimal, string, map[string]string) (*gateway.AuthorizeResult, error) {
	return nil, errors.New("not implemented")
}

func (fg *fakeGateway) RetrieveStatus(context.Context, string) (*gateway.IntentStatus, error) {
	return nil, errors.New("not implemented")
}

func (fg *fakeGateway) Capture(_ context.Context, intentID string) (*gateway.CaptureResult, error) {
	fg.mu.Lock()
	defer fg.mu.Unlock()

	fg.calls++
	if fg.err != nil {
		return nil, fg.err
	}
	if res, ok := fg.results[intentID]; ok {
		return res, nil
	}
	return &gateway.CaptureResult{
		Success:        false,
		FailureCode:    gateway.StatusCanceled,
		FailureMessage: "unknown intent",
	}, nil
}

func (fg *fakeGateway) Cancel(context.Context, string) error {
	return errors.New("not implemented")
}

func (fg *fakeGateway) Refund(context.Context, string, *decimal.Decimal) (*gateway.RefundResult, error) {
	return nil, errors.New("not implemented")
}

func (fg *fakeGateway) captureCalls() int {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	return fg.calls
}

// fakeNotifier records published events.
type fakeNotifier struct {
	mu        sync.Mutex
	succeeded []*models.CaptureSucceededEvent
	disputed  []*models.CaptureDisputedEvent
}

func (fn *fakeNotifier) PublishCaptureSucceeded(_ context.Context, event *models.CaptureSucceededEvent) error {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	fn.succeeded = append(fn.succeeded, event)
	return nil
}

func (fn *fakeNotifier) PublishCaptureDisputed(_ context.Context, event *models.CaptureDisputedEvent) error {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	fn.disputed = append(fn.disputed, event)
	return nil
}

// fakeLocker mirrors the set-if-absent-with-expiry contract in memory.
type fakeLocker struct {
	mu sync.Mutex

	held       map[string]string
	acquireErr error
	acquires   int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]string)}
}

func (fl *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	fl.acquires++
	if fl.acquireErr != nil {
		return "", false, fl.acquireErr
	}
	if _, exists := fl.held[key]; exists {
		return "", false, nil
	}
	token := "token-" + key
	fl.held[key] = token
	return token, true, nil
}

func (fl *fakeLocker) ReleaseLock(_ context.Context, key, token string) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.held[key] == token {
		delete(fl.held, key)
	}
	return nil
}

func (fl *fakeLocker) heldCount() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return len(fl.held)
}

func authorizedOrder(id int64, attempts int) *models.Order {
	return &models.Order{
		ID:                 id,
		OrderNumber:        fmt.Sprintf("ORD-%s-%03d", time.Now().Format("20060102"), id),
		Status:             models.OrderStatusAuthorized,
		DepositAmount:      decimal.New(30000, -2),
		GatewayIntentID:    sql.NullString{String: fmt.Sprintf("pi_%d", id), Valid: true},
		ScheduledCaptureAt: time.Now().Add(-time.Hour),
		CaptureAttempts:    attempts,
		PolicyID:           1,
		AutoCaptureEnabled: true,
	}
}
