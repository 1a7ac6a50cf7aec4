package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

// MessageSender is satisfied by *aws.Publisher.
type MessageSender interface {
	SendOrderMessage(ctx context.Context, messageBody string, attributes map[string]string) error
}

// OrderEventMessage is the body sent to the inventory collaborator queue.
type OrderEventMessage struct {
	EventType  string `json:"event_type"`
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	VendorID   string `json:"vendor_id,omitempty"`
	From       Status `json:"from,omitempty"`
	Status     Status `json:"status"`
	// Final is set when no further transition can follow.
	Final      bool       `json:"final"`
	Items      []LineItem `json:"items"`
	Total      int64      `json:"total"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// QueueNotifier forwards status changes to SQS so the inventory collaborator
// can commit or restore durable stock.
type QueueNotifier struct {
	sender MessageSender
}

func NewQueueNotifier(sender MessageSender) *QueueNotifier {
	return &QueueNotifier{sender: sender}
}

func (n *QueueNotifier) OnStatusChanged(ctx context.Context, evt StatusChanged) error {
	msg := OrderEventMessage{
		EventType:  "order." + string(evt.To),
		OrderID:    evt.Order.OrderID,
		CustomerID: evt.Order.CustomerID,
		VendorID:   evt.Order.VendorID,
		From:       evt.From,
		Status:     evt.To,
		Final:      evt.To.Terminal(),
		Items:      evt.Order.Items,
		Total:      evt.Order.Total,
		OccurredAt: evt.At,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return errs.Wrap(err, "marshal order event")
	}
	return n.sender.SendOrderMessage(ctx, string(body), map[string]string{
		"event_type": msg.EventType,
		"order_id":   msg.OrderID,
		"vendor_id":  msg.VendorID,
	})
}
