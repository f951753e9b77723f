package models

import "time"

// Event types
const (
	EventTypeCaptureSucceeded = "CAPTURE_SUCCEEDED"
	EventTypeCaptureDisputed  = "CAPTURE_DISPUTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CaptureSucceededEvent published after a successful capture commit;
// drives the customer-facing notification.
type CaptureSucceededEvent struct {
	BaseEvent
	OrderID        int64  `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	CapturedAmount string `json:"captured_amount"`
	GatewayTxID    string `json:"gateway_tx_id"`
}

// CaptureDisputedEvent published when an order exhausts its retry budget;
// drives the admin-facing notification.
type CaptureDisputedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Attempts    int    `json:"attempts"`
	Reason      string `json:"reason"`
}
