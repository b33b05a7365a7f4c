package payqueue

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// OrderEventType represents the type of order lifecycle event.
type OrderEventType string

const (
	// OrderEventAdded indicates a client registered a new pending order.
	OrderEventAdded OrderEventType = "order_added"

	// OrderEventQueued indicates the processor accepted an order into a queue.
	OrderEventQueued OrderEventType = "order_queued"

	// OrderEventCompleted indicates tokens were released to the recipient.
	OrderEventCompleted OrderEventType = "order_completed"

	// OrderEventCancelled indicates an order was cancelled, by an operator or
	// by a failed delivery.
	OrderEventCancelled OrderEventType = "order_cancelled"

	// OrderEventUnclaimableAdded indicates undeliverable funds were parked in
	// the unclaimable ledger.
	OrderEventUnclaimableAdded OrderEventType = "unclaimable_added"

	// OrderEventClaimed indicates previously unclaimable funds were delivered.
	OrderEventClaimed OrderEventType = "unclaimable_claimed"

	// OrderEventQueueExecuted summarizes a queue drain.
	OrderEventQueueExecuted OrderEventType = "queue_executed"
)

// OrderEvent represents an order lifecycle event.
// Events are the engine's only observability surface; hosts route them to
// their own logging or monitoring.
type OrderEvent struct {
	// ID uniquely identifies the event.
	ID string

	// Type is the event type.
	Type OrderEventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Client is the spending module the event concerns.
	Client common.Address

	// OrderID is the queue ID of the order, if the event concerns one.
	OrderID uint64

	// Recipient is the payment recipient, if the event concerns a payment.
	Recipient common.Address

	// Token is the payment token, if the event concerns a payment.
	Token common.Address

	// Amount is the payment amount in atomic units, if applicable.
	Amount *big.Int

	// Processed is the number of orders advanced, for queue_executed events.
	Processed int

	// Error contains failure details, for cancellation events caused by a
	// failed delivery.
	Error error
}

// EventCallback is a function that handles order events.
// Callbacks are invoked synchronously during settlement, so they should be
// fast to avoid blocking the queue drain. For longer operations, consider
// using goroutines within the callback.
type EventCallback func(OrderEvent)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// newEvent stamps a fresh event with an ID and timestamp.
func newEvent(typ OrderEventType, client common.Address, now time.Time) OrderEvent {
	return OrderEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: now,
		Client:    client,
	}
}
