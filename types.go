// Package payqueue implements the payment-order queueing and settlement engine
// of a modular funding platform.
//
// Spending modules (clients) accumulate PaymentOrders and hand them to a queue
// payment processor, which settles them per client in FIFO order:
//   - orders are enqueued into a per-client linked-list queue and tracked as
//     QueuedOrders with an explicit state machine,
//   - token transfers are attempted head-first, with non-conforming token
//     behavior (false returns, reverts, codeless addresses) converted into
//     unclaimable-ledger entries instead of aborting the batch,
//   - failed deliveries and cancellations stay recoverable through an explicit
//     claim path.
//
// The processor auto-executes its queue on ProcessPayments; the
// ManualQueueProcessor variant decouples enqueueing from an operator-gated
// drain.
package payqueue

import (
	"math/big"
	"math/bits"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Master flag list positions for optional payment metadata.
// Data words are positional by set bit in ascending order, not by position.
const (
	// FlagOrderID carries a client-assigned queue ID for the order.
	FlagOrderID uint = 0

	// FlagStart carries the vesting start timestamp.
	FlagStart uint = 1

	// FlagCliff carries the vesting cliff duration.
	FlagCliff uint = 2

	// FlagEnd carries the vesting end timestamp.
	FlagEnd uint = 3
)

// MaxFlagCount is the width of the flag bitset. Declaring a flag at or beyond
// this position is a configuration error.
const MaxFlagCount = 64

// OrderFlags is a bitset indicating which optional metadata fields accompany a
// payment order.
type OrderFlags uint64

// Has reports whether the flag at the given master-list position is set.
func (f OrderFlags) Has(position uint) bool {
	if position >= MaxFlagCount {
		return false
	}
	return f&(1<<position) != 0
}

// Count returns the number of set flags.
func (f OrderFlags) Count() int {
	return bits.OnesCount64(uint64(f))
}

// PaymentOrder is a single payment request produced by a client and consumed
// by a payment processor.
type PaymentOrder struct {
	// Recipient is the account receiving the payment. Never the zero address,
	// the client, the processor, the orchestrator, or the collateral token.
	Recipient common.Address

	// PaymentToken is the ERC-20 token contract the payment is denominated in.
	PaymentToken common.Address

	// Amount is the payment amount in atomic token units. Must be nonzero.
	Amount *big.Int

	// OriginChainID is the chain the order originates on.
	OriginChainID *big.Int

	// TargetChainID is the chain the payment settles on. For same-chain
	// settlement both chain IDs equal the processor's chain.
	TargetChainID *big.Int

	// Flags indicates which optional metadata fields are present in Data.
	Flags OrderFlags

	// Data holds one opaque 32-byte word per set flag, ordered by ascending
	// flag position.
	Data []common.Hash
}

// OrderState is the lifecycle state of a queued order.
type OrderState uint8

const (
	// StateProcessing is the initial state of an enqueued order.
	StateProcessing OrderState = iota

	// StateCompleted is the terminal state of a successfully settled order.
	StateCompleted

	// StateCancelled is the terminal state of a cancelled or failed order.
	StateCancelled
)

// String returns the state name.
func (s OrderState) String() string {
	switch s {
	case StateProcessing:
		return "PROCESSING"
	case StateCompleted:
		return "COMPLETED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no transition may leave the state.
func (s OrderState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// QueuedOrder wraps a PaymentOrder accepted into a processor's queue.
// Records persist for lookup after leaving the active queue; only the State
// field marks an order as no longer live.
type QueuedOrder struct {
	// Order is the underlying payment order, unchanged from collection.
	Order PaymentOrder

	// State is the current lifecycle state.
	State OrderState

	// OrderID is the processor-assigned queue ID, unique and monotonic per
	// client. ID 0 is reserved and never assigned.
	OrderID uint64

	// Timestamp is when the order was enqueued.
	Timestamp time.Time

	// Client is the spending module the order was collected from.
	Client common.Address
}

// TokenAmount pairs a token with an aggregate amount, as reported by
// CollectPaymentOrders.
type TokenAmount struct {
	// Token is the payment token contract address.
	Token common.Address

	// Amount is the aggregate amount owed in the token's atomic units.
	Amount *big.Int
}
