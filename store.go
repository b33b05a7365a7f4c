package payqueue

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/quorumlabs/payqueue-go/idlist"
)

// ProcessorStore is the repository a queue processor persists its state in.
// All state is partitioned by client address: the FIFO queue, the order
// records, the order-ID counter, and the unclaimable ledger. The processor is
// the exclusive mutator; implementations do not need their own locking beyond
// internal consistency.
type ProcessorStore interface {
	// AssignOrderID reserves a queue ID for a new order. If requested is zero
	// the next counter value is assigned; a nonzero requested ID is honored if
	// unused (ErrOrderExists otherwise) and the counter advances past it.
	// Assigned IDs are 1-based; 0 is never returned.
	AssignOrderID(client common.Address, requested uint64) (uint64, error)

	// PutOrder creates or replaces the record for order.OrderID under client.
	PutOrder(client common.Address, order QueuedOrder) error

	// GetOrder returns the record for id under client, and whether it exists.
	GetOrder(client common.Address, id uint64) (QueuedOrder, bool, error)

	// QueueAppend appends id at the tail of client's FIFO queue.
	QueueAppend(client common.Address, id uint64) error

	// QueueRemove removes id from client's queue, wherever it sits.
	QueueRemove(client common.Address, id uint64) error

	// QueueHead returns the head of client's queue, and whether one exists.
	QueueHead(client common.Address) (uint64, bool, error)

	// QueueTail returns the tail of client's queue, and whether one exists.
	QueueTail(client common.Address) (uint64, bool, error)

	// QueueIDs returns client's queued order IDs in FIFO order.
	QueueIDs(client common.Address) ([]uint64, error)

	// QueueLen returns the number of orders in client's queue.
	QueueLen(client common.Address) (int, error)

	// Unclaimable returns the unclaimable balance for the triple.
	Unclaimable(client, token, recipient common.Address) (*big.Int, error)

	// AddUnclaimable credits amount to the triple's unclaimable balance.
	AddUnclaimable(client, token, recipient common.Address, amount *big.Int) error

	// ZeroUnclaimable clears the triple's unclaimable balance.
	ZeroUnclaimable(client, token, recipient common.Address) error
}

// unclaimableKey partitions the unclaimable ledger.
type unclaimableKey struct {
	client    common.Address
	token     common.Address
	recipient common.Address
}

// MemoryStore is an in-memory ProcessorStore. Per-client queues are
// idlist.List instances created lazily on first use.
type MemoryStore struct {
	queues      map[common.Address]*idlist.List
	orders      map[common.Address]map[uint64]QueuedOrder
	counters    map[common.Address]uint64
	unclaimable map[unclaimableKey]*big.Int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queues:      make(map[common.Address]*idlist.List),
		orders:      make(map[common.Address]map[uint64]QueuedOrder),
		counters:    make(map[common.Address]uint64),
		unclaimable: make(map[unclaimableKey]*big.Int),
	}
}

// AssignOrderID implements ProcessorStore.
func (s *MemoryStore) AssignOrderID(client common.Address, requested uint64) (uint64, error) {
	if requested == 0 {
		s.counters[client]++
		return s.counters[client], nil
	}
	if _, ok := s.orders[client][requested]; ok {
		return 0, fmt.Errorf("%w: id %d", ErrOrderExists, requested)
	}
	if requested > s.counters[client] {
		s.counters[client] = requested
	}
	return requested, nil
}

// PutOrder implements ProcessorStore.
func (s *MemoryStore) PutOrder(client common.Address, order QueuedOrder) error {
	m, ok := s.orders[client]
	if !ok {
		m = make(map[uint64]QueuedOrder)
		s.orders[client] = m
	}
	m[order.OrderID] = order
	return nil
}

// GetOrder implements ProcessorStore.
func (s *MemoryStore) GetOrder(client common.Address, id uint64) (QueuedOrder, bool, error) {
	order, ok := s.orders[client][id]
	return order, ok, nil
}

// QueueAppend implements ProcessorStore.
func (s *MemoryStore) QueueAppend(client common.Address, id uint64) error {
	return s.queue(client).AddID(id)
}

// QueueRemove implements ProcessorStore.
func (s *MemoryStore) QueueRemove(client common.Address, id uint64) error {
	q := s.queue(client)
	prev, err := q.PreviousID(id)
	if err != nil {
		return fmt.Errorf("%w: order %d not queued", ErrOrderNotFound, id)
	}
	return q.RemoveID(prev, id)
}

// QueueHead implements ProcessorStore.
func (s *MemoryStore) QueueHead(client common.Address) (uint64, bool, error) {
	head, err := s.queue(client).NextID(idlist.Sentinel)
	if err != nil {
		return 0, false, err
	}
	if head == idlist.Sentinel {
		return 0, false, nil
	}
	return head, true, nil
}

// QueueTail implements ProcessorStore.
func (s *MemoryStore) QueueTail(client common.Address) (uint64, bool, error) {
	tail := s.queue(client).LastID()
	if tail == idlist.Sentinel {
		return 0, false, nil
	}
	return tail, true, nil
}

// QueueIDs implements ProcessorStore.
func (s *MemoryStore) QueueIDs(client common.Address) ([]uint64, error) {
	return s.queue(client).IDs(), nil
}

// QueueLen implements ProcessorStore.
func (s *MemoryStore) QueueLen(client common.Address) (int, error) {
	return int(s.queue(client).Len()), nil
}

// Unclaimable implements ProcessorStore.
func (s *MemoryStore) Unclaimable(client, token, recipient common.Address) (*big.Int, error) {
	amt, ok := s.unclaimable[unclaimableKey{client, token, recipient}]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(amt), nil
}

// AddUnclaimable implements ProcessorStore.
func (s *MemoryStore) AddUnclaimable(client, token, recipient common.Address, amount *big.Int) error {
	key := unclaimableKey{client, token, recipient}
	cur, ok := s.unclaimable[key]
	if !ok {
		cur = new(big.Int)
		s.unclaimable[key] = cur
	}
	cur.Add(cur, amount)
	return nil
}

// ZeroUnclaimable implements ProcessorStore.
func (s *MemoryStore) ZeroUnclaimable(client, token, recipient common.Address) error {
	delete(s.unclaimable, unclaimableKey{client, token, recipient})
	return nil
}

func (s *MemoryStore) queue(client common.Address) *idlist.List {
	q, ok := s.queues[client]
	if !ok {
		q = idlist.New()
		s.queues[client] = q
	}
	return q
}
