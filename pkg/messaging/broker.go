package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Channels used by the dispatch pipeline.
const (
	ChannelDispatchDelivery = "dispatch.delivery"
	ChannelDispatchHandoff  = "dispatch.handoff"
)

// DeliveryEvent is published on every dispatch status change.
type DeliveryEvent struct {
	DispatchID string `json:"dispatch_id"`
	ReportID   string `json:"report_id"`
	Method     string `json:"method"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// HandoffMessage carries an sms/whatsapp dispatch to the external gateway.
type HandoffMessage struct {
	DispatchID string `json:"dispatch_id"`
	Method     string `json:"method"`
	Recipient  string `json:"recipient"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}
