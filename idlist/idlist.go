// Package idlist implements an intrusive doubly linked list over unsigned
// integer IDs, anchored by a reserved sentinel value.
//
// The sentinel acts as both the before-head and after-tail marker: an empty
// list is the sentinel looping to itself. All operations are O(1), including
// removal, which requires the caller to know the ID's immediate predecessor.
// The list is the foundation for per-client FIFO payment queues, where entries
// are removed in an order unrelated to insertion order.
package idlist

import "errors"

// Sentinel is the reserved ID anchoring the list. It is always present and is
// never a valid member ID.
const Sentinel = ^uint64(0)

// Errors returned by list operations.
var (
	// ErrInvalidID indicates an ID equal to the sentinel or not present in the list.
	ErrInvalidID = errors.New("idlist: invalid id")

	// ErrIDAlreadyExists indicates an attempt to add an ID that is already a member.
	ErrIDAlreadyExists = errors.New("idlist: id already exists")

	// ErrWrongPredecessor indicates the supplied predecessor is not immediately
	// before the ID being removed.
	ErrWrongPredecessor = errors.New("idlist: wrong predecessor")
)

// List is a sentinel-anchored doubly linked list of uint64 IDs.
// The zero value is not usable; construct with New.
type List struct {
	size uint64
	next map[uint64]uint64
	prev map[uint64]uint64
}

// New creates an empty list with the sentinel self-loop established.
func New() *List {
	return &List{
		next: map[uint64]uint64{Sentinel: Sentinel},
		prev: map[uint64]uint64{Sentinel: Sentinel},
	}
}

// AddID appends id at the tail, immediately before the sentinel.
// Adding the sentinel itself or an existing member fails.
func (l *List) AddID(id uint64) error {
	if id == Sentinel {
		return ErrInvalidID
	}
	if _, ok := l.next[id]; ok {
		return ErrIDAlreadyExists
	}
	tail := l.prev[Sentinel]
	l.next[tail] = id
	l.prev[id] = tail
	l.next[id] = Sentinel
	l.prev[Sentinel] = id
	l.size++
	return nil
}

// RemoveID removes id given its immediate predecessor prevID. The list does
// not search for the predecessor; supplying the wrong one fails without
// mutation. prevID may be the sentinel when id is the head.
func (l *List) RemoveID(prevID, id uint64) error {
	if id == Sentinel {
		return ErrInvalidID
	}
	if _, ok := l.next[id]; !ok {
		return ErrInvalidID
	}
	if l.next[prevID] != id {
		return ErrWrongPredecessor
	}
	succ := l.next[id]
	l.next[prevID] = succ
	l.prev[succ] = prevID
	delete(l.next, id)
	delete(l.prev, id)
	l.size--
	return nil
}

// NextID returns the successor of id. Passing the sentinel yields the head;
// for an empty list the head is the sentinel itself.
func (l *List) NextID(id uint64) (uint64, error) {
	n, ok := l.next[id]
	if !ok {
		return 0, ErrInvalidID
	}
	return n, nil
}

// PreviousID returns the predecessor of id. Passing the sentinel yields the
// tail.
func (l *List) PreviousID(id uint64) (uint64, error) {
	p, ok := l.prev[id]
	if !ok {
		return 0, ErrInvalidID
	}
	return p, nil
}

// LastID returns the current tail, or the sentinel if the list is empty.
func (l *List) LastID() uint64 {
	return l.prev[Sentinel]
}

// Len returns the number of live entries, excluding the sentinel.
func (l *List) Len() uint64 {
	return l.size
}

// Contains reports whether id is a member of the list. The sentinel is not a
// member.
func (l *List) Contains(id uint64) bool {
	if id == Sentinel {
		return false
	}
	_, ok := l.next[id]
	return ok
}

// IDs returns the member IDs in list order, head first.
func (l *List) IDs() []uint64 {
	ids := make([]uint64, 0, l.size)
	for id := l.next[Sentinel]; id != Sentinel; id = l.next[id] {
		ids = append(ids, id)
	}
	return ids
}
