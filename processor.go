package payqueue

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ProcessorConfig configures a queue payment processor.
type ProcessorConfig struct {
	// Address is the processor's own account; clients approve it as the
	// spender of their obligations.
	Address common.Address

	// Orchestrator is the orchestrator's account, a forbidden recipient.
	Orchestrator common.Address

	// Chain is the chain the processor settles on. Orders must name its
	// ChainID as both origin and target; its Collateral address is a
	// forbidden recipient.
	Chain ChainConfig

	// Registry gates ProcessPayments to registered modules.
	Registry ModuleRegistry

	// Roles gates manual execution and cancellation to queue operators.
	Roles RoleAuthorizer

	// Backend observes and moves tokens.
	Backend TokenBackend

	// Store persists queues, orders, counters, and the unclaimable ledger.
	Store ProcessorStore

	// Callback receives order lifecycle events. Optional.
	Callback EventCallback

	// Now supplies timestamps; defaults to wall clock UTC.
	Now func() time.Time
}

// Validate ensures the configuration is usable.
func (cfg ProcessorConfig) Validate() error {
	if cfg.Address == (common.Address{}) {
		return fmt.Errorf("%w: processor address is zero", ErrInvalidConfig)
	}
	if cfg.Chain.ChainID == nil || cfg.Chain.ChainID.Sign() <= 0 {
		return fmt.Errorf("%w: missing chain id", ErrInvalidConfig)
	}
	if cfg.Registry == nil {
		return fmt.Errorf("%w: nil module registry", ErrInvalidConfig)
	}
	if cfg.Roles == nil {
		return fmt.Errorf("%w: nil role authorizer", ErrInvalidConfig)
	}
	if cfg.Backend == nil {
		return fmt.Errorf("%w: nil token backend", ErrInvalidConfig)
	}
	if cfg.Store == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	return nil
}

// QueueProcessor is the settlement engine. It accepts collected orders from
// clients, queues them per client in FIFO order, executes transfers, and
// records unclaimable amounts when deliveries fail instead of aborting the
// batch.
//
// Settlement steps are serialized by an internal lock, matching the
// sequential-transaction model the protocol assumes: no two queue mutations
// interleave.
type QueueProcessor struct {
	mu  sync.Mutex
	cfg ProcessorConfig

	// autoExecute drains the queue inside ProcessPayments. The manual variant
	// clears it and exposes ExecutePaymentQueue instead.
	autoExecute bool
}

// NewQueueProcessor creates an auto-executing queue processor: every
// ProcessPayments drains the client's queue immediately after enqueueing.
func NewQueueProcessor(cfg ProcessorConfig) (*QueueProcessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = nowUTC
	}
	return &QueueProcessor{cfg: cfg, autoExecute: true}, nil
}

// Address returns the processor's account address.
func (p *QueueProcessor) Address() common.Address {
	return p.cfg.Address
}

// QueueOperatorRole returns the role identifier gating manual execution and
// cancellation.
func (p *QueueProcessor) QueueOperatorRole() common.Hash {
	return QueueOperatorRole
}

// ProcessPayments pulls all pending orders from client, enqueues them into
// the client's FIFO queue, and, for the auto-executing processor, immediately
// drains the queue. The client must be a module registered with the
// orchestrator.
//
// An order failing enqueue re-validation aborts the call; orders enqueued
// before it stay queued and settle on the next drain.
func (p *QueueProcessor) ProcessPayments(ctx context.Context, client Client) error {
	if !p.cfg.Registry.IsModule(client.Address()) {
		return ErrNotModule
	}

	orders, _, err := client.CollectPaymentOrders(ctx, p.cfg.Address)
	if err != nil {
		return fmt.Errorf("collecting orders: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, order := range orders {
		if _, err := p.addPaymentOrderToQueue(ctx, order, client.Address()); err != nil {
			return fmt.Errorf("enqueueing order %d: %w", i, err)
		}
	}

	if !p.autoExecute {
		return nil
	}
	// A call that found nothing to collect and nothing queued is a no-op,
	// not an error.
	if err := p.executePaymentQueue(ctx, client); err != nil && !errors.Is(err, ErrQueueEmpty) {
		return err
	}
	return nil
}

// ExecutePaymentQueue drains client's queue head-first. Only holders of the
// queue operator role may call it. Draining an empty queue fails with
// ErrQueueEmpty so callers know nothing happened.
func (p *QueueProcessor) ExecutePaymentQueue(ctx context.Context, caller common.Address, client Client) error {
	if !p.cfg.Roles.HasRole(QueueOperatorRole, caller) {
		return ErrNotQueueOperator
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.executePaymentQueue(ctx, client)
}

// CancelPaymentOrderThroughQueueID cancels a queued order that is still
// PROCESSING. The full amount moves to the unclaimable ledger so the intended
// recipient can recover it later; the order leaves the queue but its record
// persists. Only queue operators may cancel.
func (p *QueueProcessor) CancelPaymentOrderThroughQueueID(caller common.Address, client common.Address, orderID uint64) error {
	if !p.cfg.Roles.HasRole(QueueOperatorRole, caller) {
		return ErrNotQueueOperator
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok, err := p.cfg.Store.GetOrder(client, orderID)
	if err != nil {
		return p.storeErr(err)
	}
	if orderID == 0 || !ok {
		return fmt.Errorf("%w: id %d", ErrOrderNotFound, orderID)
	}
	if order.State != StateProcessing {
		return fmt.Errorf("%w: order %d is %s", ErrInvalidStateTransition, orderID, order.State)
	}

	if err := p.cancelOrder(order, nil); err != nil {
		return err
	}
	return nil
}

// ClaimPreviouslyUnclaimable delivers funds whose original transfer failed.
// Anyone may trigger the claim once a nonzero balance exists for the triple.
// Unlike the queue path this transfer is checked: a failure aborts the claim,
// the ledger stays untouched, and the client is not notified.
func (p *QueueProcessor) ClaimPreviouslyUnclaimable(ctx context.Context, client Client, token, receiver common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clientAddr := client.Address()
	amount, err := p.cfg.Store.Unclaimable(clientAddr, token, receiver)
	if err != nil {
		return p.storeErr(err)
	}
	if amount.Sign() == 0 {
		return ErrNothingToClaim
	}

	if err := p.cfg.Backend.TryTransferFrom(ctx, token, clientAddr, receiver, amount); err != nil {
		return fmt.Errorf("claim transfer: %w", err)
	}

	if err := p.cfg.Store.ZeroUnclaimable(clientAddr, token, receiver); err != nil {
		return p.storeErr(err)
	}
	if err := client.AmountPaid(p.cfg.Address, token, amount); err != nil {
		return err
	}

	ev := p.event(OrderEventClaimed, clientAddr)
	ev.Token = token
	ev.Recipient = receiver
	ev.Amount = amount
	p.emit(ev)
	return nil
}

// ValidPaymentOrder checks order against the processor's acceptance policy on
// behalf of client: a nonzero amount, a non-degenerate recipient, a live
// token, same-chain identifiers, well-formed flags and data, and a plausible
// embedded queue ID. It implements OrderValidator.
func (p *QueueProcessor) ValidPaymentOrder(ctx context.Context, client common.Address, order PaymentOrder) error {
	if order.Amount == nil || order.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := p.validRecipient(order.Recipient, client); err != nil {
		return err
	}
	if err := p.validChainIDs(order); err != nil {
		return err
	}
	if err := ValidateFlagsAndData(order.Flags, order.Data); err != nil {
		return err
	}
	if order.PaymentToken == (common.Address{}) {
		return ErrInvalidToken
	}
	// Liveness probe substitutes for interface validation: a token that
	// cannot answer a balance query is rejected up front.
	if _, err := p.cfg.Backend.BalanceOf(ctx, order.PaymentToken, client); err != nil {
		return fmt.Errorf("%w: balance probe: %v", ErrInvalidToken, err)
	}
	return nil
}

// Order returns the record for orderID under client. Records persist after
// completion and cancellation; ID 0 is reserved and never found.
func (p *QueueProcessor) Order(client common.Address, orderID uint64) (QueuedOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok, err := p.cfg.Store.GetOrder(client, orderID)
	if err != nil {
		return QueuedOrder{}, p.storeErr(err)
	}
	if orderID == 0 || !ok {
		return QueuedOrder{}, fmt.Errorf("%w: id %d", ErrOrderNotFound, orderID)
	}
	return order, nil
}

// QueueIDs returns client's queued order IDs in FIFO order.
func (p *QueueProcessor) QueueIDs(client common.Address) ([]uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids, err := p.cfg.Store.QueueIDs(client)
	if err != nil {
		return nil, p.storeErr(err)
	}
	return ids, nil
}

// QueueHead returns the next order ID to be executed for client.
func (p *QueueProcessor) QueueHead(client common.Address) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	head, ok, err := p.cfg.Store.QueueHead(client)
	if err != nil {
		return 0, p.storeErr(err)
	}
	if !ok {
		return 0, ErrQueueEmpty
	}
	return head, nil
}

// QueueTail returns the most recently enqueued order ID for client.
func (p *QueueProcessor) QueueTail(client common.Address) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tail, ok, err := p.cfg.Store.QueueTail(client)
	if err != nil {
		return 0, p.storeErr(err)
	}
	if !ok {
		return 0, ErrQueueEmpty
	}
	return tail, nil
}

// QueueSize returns the number of orders awaiting execution for client.
func (p *QueueProcessor) QueueSize(client common.Address) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := p.cfg.Store.QueueLen(client)
	if err != nil {
		return 0, p.storeErr(err)
	}
	return n, nil
}

// UnclaimableAmount returns the recoverable balance for the triple.
func (p *QueueProcessor) UnclaimableAmount(client, token, receiver common.Address) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	amt, err := p.cfg.Store.Unclaimable(client, token, receiver)
	if err != nil {
		return nil, p.storeErr(err)
	}
	return amt, nil
}

// addPaymentOrderToQueue re-validates order, assigns its queue ID, and
// appends it to client's FIFO in state PROCESSING. Callers hold the lock.
//
// The re-validation of balance and allowance is deliberate even though the
// client vouched for collectability during collection.
func (p *QueueProcessor) addPaymentOrderToQueue(ctx context.Context, order PaymentOrder, client common.Address) (uint64, error) {
	if err := p.ValidPaymentOrder(ctx, client, order); err != nil {
		return 0, err
	}
	if err := p.checkFunding(ctx, order, client); err != nil {
		return 0, err
	}

	id, err := p.cfg.Store.AssignOrderID(client, order.ExternalOrderID())
	if err != nil {
		return 0, err
	}

	queued := QueuedOrder{
		Order:     order,
		State:     StateProcessing,
		OrderID:   id,
		Timestamp: p.cfg.Now(),
		Client:    client,
	}
	if err := p.cfg.Store.PutOrder(client, queued); err != nil {
		return 0, p.storeErr(err)
	}
	if err := p.cfg.Store.QueueAppend(client, id); err != nil {
		return 0, p.storeErr(err)
	}

	ev := p.event(OrderEventQueued, client)
	ev.OrderID = id
	ev.Recipient = order.Recipient
	ev.Token = order.PaymentToken
	ev.Amount = new(big.Int).Set(order.Amount)
	p.emit(ev)
	return id, nil
}

// executePaymentQueue drains client's queue head-first until it is empty.
// Heads that are no longer PROCESSING are swept without counting as progress;
// a transfer failure still consumes its order. The summary event reports the
// number of orders a transfer was attempted for. Callers hold the lock.
func (p *QueueProcessor) executePaymentQueue(ctx context.Context, client Client) error {
	n, err := p.cfg.Store.QueueLen(client.Address())
	if err != nil {
		return p.storeErr(err)
	}
	if n == 0 {
		return ErrQueueEmpty
	}

	processed := 0
	for {
		_, ok, err := p.cfg.Store.QueueHead(client.Address())
		if err != nil {
			return p.storeErr(err)
		}
		if !ok {
			break
		}
		advanced, err := p.processNextOrder(ctx, client)
		if err != nil {
			return err
		}
		if advanced {
			processed++
		}
	}

	ev := p.event(OrderEventQueueExecuted, client.Address())
	ev.Processed = processed
	p.emit(ev)
	return nil
}

// processNextOrder inspects the queue head and advances it. A head that left
// PROCESSING out-of-band is removed and reports no progress. A head whose
// client can no longer cover it is cancelled with its amount preserved in the
// unclaimable ledger and reports no progress; no transfer is attempted.
// Otherwise the transfer is attempted. Callers hold the lock.
func (p *QueueProcessor) processNextOrder(ctx context.Context, client Client) (bool, error) {
	clientAddr := client.Address()
	head, ok, err := p.cfg.Store.QueueHead(clientAddr)
	if err != nil {
		return false, p.storeErr(err)
	}
	if !ok {
		return false, nil
	}

	order, ok, err := p.cfg.Store.GetOrder(clientAddr, head)
	if err != nil {
		return false, p.storeErr(err)
	}
	if !ok || order.State != StateProcessing {
		// Stale head, e.g. cancelled out-of-band. Sweep and report no
		// progress so the drain retries with the next head.
		if err := p.cfg.Store.QueueRemove(clientAddr, head); err != nil {
			return false, p.storeErr(err)
		}
		return false, nil
	}

	if err := p.checkFunding(ctx, order.Order, clientAddr); err != nil {
		// The client spent its funds between enqueue and execution. Cancel
		// and preserve the amount: the recipient's claim survives a
		// temporarily underfunded client.
		if err := p.cancelOrder(order, err); err != nil {
			return false, err
		}
		return false, nil
	}

	return p.executePaymentTransfer(ctx, client, order)
}

// executePaymentTransfer attempts the token transfer for order. Success marks
// the order COMPLETED and reconciles the client; any failure parks the amount
// in the unclaimable ledger and marks the order CANCELLED. Either way the
// order leaves the queue and a transfer was attempted, so both outcomes
// report progress. Callers hold the lock.
func (p *QueueProcessor) executePaymentTransfer(ctx context.Context, client Client, order QueuedOrder) (bool, error) {
	clientAddr := client.Address()
	transferErr := p.cfg.Backend.TryTransferFrom(ctx,
		order.Order.PaymentToken, clientAddr, order.Order.Recipient, order.Order.Amount)

	if transferErr != nil {
		if err := p.cancelOrder(order, transferErr); err != nil {
			return false, err
		}
		return true, nil
	}

	order.State = StateCompleted
	if err := p.cfg.Store.PutOrder(clientAddr, order); err != nil {
		return false, p.storeErr(err)
	}
	if err := p.cfg.Store.QueueRemove(clientAddr, order.OrderID); err != nil {
		return false, p.storeErr(err)
	}
	if err := client.AmountPaid(p.cfg.Address, order.Order.PaymentToken, order.Order.Amount); err != nil {
		return false, err
	}

	ev := p.event(OrderEventCompleted, clientAddr)
	ev.OrderID = order.OrderID
	ev.Recipient = order.Order.Recipient
	ev.Token = order.Order.PaymentToken
	ev.Amount = new(big.Int).Set(order.Order.Amount)
	p.emit(ev)
	return true, nil
}

// cancelOrder transitions order to CANCELLED, credits its full amount to the
// unclaimable ledger, and removes it from the queue. cause carries the
// delivery failure, if any. Callers hold the lock and have verified the order
// is PROCESSING.
func (p *QueueProcessor) cancelOrder(order QueuedOrder, cause error) error {
	client := order.Client
	amount := new(big.Int).Set(order.Order.Amount)

	if err := p.cfg.Store.AddUnclaimable(client, order.Order.PaymentToken, order.Order.Recipient, amount); err != nil {
		return p.storeErr(err)
	}
	unclaimable := p.event(OrderEventUnclaimableAdded, client)
	unclaimable.OrderID = order.OrderID
	unclaimable.Recipient = order.Order.Recipient
	unclaimable.Token = order.Order.PaymentToken
	unclaimable.Amount = amount
	unclaimable.Error = cause
	p.emit(unclaimable)

	order.State = StateCancelled
	if err := p.cfg.Store.PutOrder(client, order); err != nil {
		return p.storeErr(err)
	}
	if err := p.cfg.Store.QueueRemove(client, order.OrderID); err != nil {
		return p.storeErr(err)
	}

	cancelled := p.event(OrderEventCancelled, client)
	cancelled.OrderID = order.OrderID
	cancelled.Recipient = order.Order.Recipient
	cancelled.Token = order.Order.PaymentToken
	cancelled.Amount = new(big.Int).Set(amount)
	cancelled.Error = cause
	p.emit(cancelled)
	return nil
}

// checkFunding verifies the client's live balance and the processor's
// allowance cover the order.
func (p *QueueProcessor) checkFunding(ctx context.Context, order PaymentOrder, client common.Address) error {
	balance, err := p.cfg.Backend.BalanceOf(ctx, order.PaymentToken, client)
	if err != nil {
		return fmt.Errorf("%w: balance query: %v", ErrInsufficientFunding, err)
	}
	if balance.Cmp(order.Amount) < 0 {
		return fmt.Errorf("%w: balance %s < amount %s", ErrInsufficientFunding, balance, order.Amount)
	}
	allowance, err := p.cfg.Backend.Allowance(ctx, order.PaymentToken, client, p.cfg.Address)
	if err != nil {
		return fmt.Errorf("%w: allowance query: %v", ErrInsufficientFunding, err)
	}
	if allowance.Cmp(order.Amount) < 0 {
		return fmt.Errorf("%w: allowance %s < amount %s", ErrInsufficientFunding, allowance, order.Amount)
	}
	return nil
}

func (p *QueueProcessor) validRecipient(recipient, client common.Address) error {
	switch recipient {
	case common.Address{}:
		return fmt.Errorf("%w: zero address", ErrInvalidRecipient)
	case client:
		return fmt.Errorf("%w: recipient is the client", ErrInvalidRecipient)
	case p.cfg.Address:
		return fmt.Errorf("%w: recipient is the processor", ErrInvalidRecipient)
	case p.cfg.Orchestrator:
		return fmt.Errorf("%w: recipient is the orchestrator", ErrInvalidRecipient)
	case p.cfg.Chain.Collateral:
		return fmt.Errorf("%w: recipient is the collateral token", ErrInvalidRecipient)
	}
	return nil
}

func (p *QueueProcessor) validChainIDs(order PaymentOrder) error {
	if order.OriginChainID == nil || order.OriginChainID.Cmp(p.cfg.Chain.ChainID) != 0 {
		return fmt.Errorf("%w: origin", ErrInvalidChainID)
	}
	if order.TargetChainID == nil || order.TargetChainID.Cmp(p.cfg.Chain.ChainID) != 0 {
		return fmt.Errorf("%w: target", ErrInvalidChainID)
	}
	return nil
}

func (p *QueueProcessor) event(typ OrderEventType, client common.Address) OrderEvent {
	return newEvent(typ, client, p.cfg.Now())
}

func (p *QueueProcessor) emit(ev OrderEvent) {
	if p.cfg.Callback != nil {
		p.cfg.Callback(ev)
	}
}

func (p *QueueProcessor) storeErr(err error) error {
	return NewProcessorError(ErrCodeStorage, "store operation failed", err)
}
