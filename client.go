package payqueue

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// OrderValidator is the acceptance policy of a payment processor. Clients
// delegate order validation here instead of hardcoding rules, since different
// processors impose different ones. Implemented by *QueueProcessor.
type OrderValidator interface {
	// ValidPaymentOrder checks order against the processor's acceptance
	// policy, on behalf of the given client.
	ValidPaymentOrder(ctx context.Context, client common.Address, order PaymentOrder) error
}

// FundingSource supplies tokens to a client ahead of collection. Funding
// sources vary per module (funding manager draw-down, minting, pre-funded
// balances), so the client delegates through this hook. A nil hook means the
// client is assumed to already hold and approve its obligations.
type FundingSource interface {
	// EnsureFunding makes the client hold at least amount of token and have
	// approved spender to pull it.
	EnsureFunding(ctx context.Context, token common.Address, amount *big.Int, spender common.Address) error
}

// Client is the surface a payment processor consumes on any spending module.
// *PaymentClient is the canonical implementation.
type Client interface {
	// Address returns the module's account address.
	Address() common.Address

	// CollectPaymentOrders hands all pending orders to the processor.
	CollectPaymentOrders(ctx context.Context, caller common.Address) ([]PaymentOrder, []TokenAmount, error)

	// AmountPaid reconciles the outstanding ledger after delivered funds.
	AmountPaid(caller common.Address, token common.Address, amount *big.Int) error
}

// ClientConfig configures a PaymentClient.
type ClientConfig struct {
	// Address is the module's own account address.
	Address common.Address

	// Processor is the orchestrator-registered payment processor; the only
	// caller allowed to collect orders and report payments.
	Processor common.Address

	// Validator is the processor's acceptance policy.
	Validator OrderValidator

	// Funding is the optional funding hook invoked during collection.
	Funding FundingSource

	// Flags is the client's statically declared metadata flag set. Every
	// order the client adds must carry the same number of fields.
	Flags OrderFlags

	// Callback receives order-added events. Optional.
	Callback EventCallback
}

// Validate ensures the configuration is usable.
func (cfg ClientConfig) Validate() error {
	if cfg.Address == (common.Address{}) {
		return fmt.Errorf("%w: client address is zero", ErrInvalidConfig)
	}
	if cfg.Processor == (common.Address{}) {
		return fmt.Errorf("%w: processor address is zero", ErrInvalidConfig)
	}
	if cfg.Validator == nil {
		return fmt.Errorf("%w: nil order validator", ErrInvalidConfig)
	}
	return nil
}

// PaymentClient is the capability mixed into any module that pays out tokens.
// It accumulates pending orders, tracks the total owed per token, and
// reconciles when the processor reports funds delivered. It owns the pending
// list and the outstanding ledger exclusively; the processor interacts only
// through CollectPaymentOrders and AmountPaid.
type PaymentClient struct {
	mu          sync.Mutex
	cfg         ClientConfig
	pending     []PaymentOrder
	outstanding map[common.Address]*big.Int
}

// NewPaymentClient creates a PaymentClient from cfg.
func NewPaymentClient(cfg ClientConfig) (*PaymentClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PaymentClient{
		cfg:         cfg,
		outstanding: make(map[common.Address]*big.Int),
	}, nil
}

// Address returns the client's account address.
func (c *PaymentClient) Address() common.Address {
	return c.cfg.Address
}

// Flags returns the client's declared metadata flag set.
func (c *PaymentClient) Flags() OrderFlags {
	return c.cfg.Flags
}

// FlagCount returns the number of declared flags.
func (c *PaymentClient) FlagCount() int {
	return c.cfg.Flags.Count()
}

// AddPaymentOrder validates order against the configured processor's policy
// and registers it as pending. On success the outstanding ledger for the
// order's token grows by its amount. A rejected order leaves no state change.
func (c *PaymentClient) AddPaymentOrder(ctx context.Context, order PaymentOrder) error {
	if err := c.validateOrder(ctx, order); err != nil {
		return err
	}

	c.mu.Lock()
	c.commitOrder(order)
	c.mu.Unlock()

	c.emitAdded(order)
	return nil
}

// AddPaymentOrders is the batch form of AddPaymentOrder. The batch is
// all-or-nothing: one invalid element aborts the whole call with no partial
// commit.
func (c *PaymentClient) AddPaymentOrders(ctx context.Context, orders []PaymentOrder) error {
	for i, order := range orders {
		if err := c.validateOrder(ctx, order); err != nil {
			return fmt.Errorf("order %d: %w", i, err)
		}
	}

	c.mu.Lock()
	for _, order := range orders {
		c.commitOrder(order)
	}
	c.mu.Unlock()

	for _, order := range orders {
		c.emitAdded(order)
	}
	return nil
}

// CollectPaymentOrders returns all pending orders plus the aggregate amount
// per distinct token, clears the pending list, and ensures the processor can
// pull the aggregates through the funding hook. Only the configured processor
// may call it. The outstanding ledger is untouched; it shrinks only through
// AmountPaid.
func (c *PaymentClient) CollectPaymentOrders(ctx context.Context, caller common.Address) ([]PaymentOrder, []TokenAmount, error) {
	if caller != c.cfg.Processor {
		return nil, nil, ErrOnlyProcessor
	}

	c.mu.Lock()
	orders := c.pending
	c.pending = nil
	c.mu.Unlock()

	totals := aggregateByToken(orders)
	if c.cfg.Funding != nil {
		for _, ta := range totals {
			if err := c.cfg.Funding.EnsureFunding(ctx, ta.Token, ta.Amount, caller); err != nil {
				// Funding failed: the orders remain owed, put them back.
				c.mu.Lock()
				c.pending = append(orders, c.pending...)
				c.mu.Unlock()
				return nil, nil, fmt.Errorf("ensuring funding for %s: %w", ta.Token, err)
			}
		}
	}
	return orders, totals, nil
}

// AmountPaid reduces the outstanding ledger for token by amount. Only the
// configured processor may call it. Reporting more than outstanding is an
// invariant violation and fails with ErrOutstandingUnderflow, mutating
// nothing.
func (c *PaymentClient) AmountPaid(caller common.Address, token common.Address, amount *big.Int) error {
	if caller != c.cfg.Processor {
		return ErrOnlyProcessor
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.outstanding[token]
	if !ok || cur.Cmp(amount) < 0 {
		return fmt.Errorf("%w: token %s", ErrOutstandingUnderflow, token)
	}
	cur.Sub(cur, amount)
	return nil
}

// OutstandingTokenAmount returns the total amount owed for token across all
// registered, not-yet-reconciled orders.
func (c *PaymentClient) OutstandingTokenAmount(token common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.outstanding[token]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(cur)
}

// PendingOrders returns a copy of the not-yet-collected orders.
func (c *PaymentClient) PendingOrders() []PaymentOrder {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PaymentOrder, len(c.pending))
	copy(out, c.pending)
	return out
}

func (c *PaymentClient) validateOrder(ctx context.Context, order PaymentOrder) error {
	if order.Flags.Count() != c.cfg.Flags.Count() {
		return fmt.Errorf("%w: order has %d flags, client declares %d",
			ErrInvalidFlags, order.Flags.Count(), c.cfg.Flags.Count())
	}
	if err := ValidateFlagsAndData(order.Flags, order.Data); err != nil {
		return err
	}
	return c.cfg.Validator.ValidPaymentOrder(ctx, c.cfg.Address, order)
}

// commitOrder mutates pending and outstanding; callers hold the lock.
func (c *PaymentClient) commitOrder(order PaymentOrder) {
	cur, ok := c.outstanding[order.PaymentToken]
	if !ok {
		cur = new(big.Int)
		c.outstanding[order.PaymentToken] = cur
	}
	cur.Add(cur, order.Amount)
	c.pending = append(c.pending, order)
}

func (c *PaymentClient) emitAdded(order PaymentOrder) {
	if c.cfg.Callback == nil {
		return
	}
	ev := newEvent(OrderEventAdded, c.cfg.Address, nowUTC())
	ev.Recipient = order.Recipient
	ev.Token = order.PaymentToken
	ev.Amount = new(big.Int).Set(order.Amount)
	c.cfg.Callback(ev)
}

// aggregateByToken sums order amounts per distinct token, preserving
// first-seen token order.
func aggregateByToken(orders []PaymentOrder) []TokenAmount {
	index := make(map[common.Address]int)
	var totals []TokenAmount
	for _, order := range orders {
		i, ok := index[order.PaymentToken]
		if !ok {
			index[order.PaymentToken] = len(totals)
			totals = append(totals, TokenAmount{
				Token:  order.PaymentToken,
				Amount: new(big.Int).Set(order.Amount),
			})
			continue
		}
		totals[i].Amount.Add(totals[i].Amount, order.Amount)
	}
	return totals
}
