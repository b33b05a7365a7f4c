package sqlite

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	payqueue "github.com/quorumlabs/payqueue-go"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "payqueue.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addr(n int64) common.Address {
	return common.BigToAddress(big.NewInt(n))
}

func sampleOrder(client common.Address, id uint64) payqueue.QueuedOrder {
	return payqueue.QueuedOrder{
		Order: payqueue.PaymentOrder{
			Recipient:     addr(0x30),
			PaymentToken:  addr(0x40),
			Amount:        big.NewInt(100),
			OriginChainID: big.NewInt(1337),
			TargetChainID: big.NewInt(1337),
			Flags:         1 << payqueue.FlagOrderID,
			Data:          []common.Hash{common.BigToHash(big.NewInt(int64(id)))},
		},
		State:     payqueue.StateProcessing,
		OrderID:   id,
		Timestamp: time.Unix(0, 1700000000000000000).UTC(),
		Client:    client,
	}
}

func TestAssignOrderID(t *testing.T) {
	s := newTestStore(t)
	client := addr(1)

	for want := uint64(1); want <= 3; want++ {
		id, err := s.AssignOrderID(client, 0)
		if err != nil {
			t.Fatalf("AssignOrderID(0) error = %v", err)
		}
		if id != want {
			t.Fatalf("AssignOrderID(0) = %d, want %d", id, want)
		}
		if err := s.PutOrder(client, sampleOrder(client, id)); err != nil {
			t.Fatal(err)
		}
	}

	// Honor a requested ID, advance the counter past it.
	id, err := s.AssignOrderID(client, 10)
	if err != nil || id != 10 {
		t.Fatalf("AssignOrderID(10) = %d, %v, want 10", id, err)
	}
	if err := s.PutOrder(client, sampleOrder(client, 10)); err != nil {
		t.Fatal(err)
	}
	id, err = s.AssignOrderID(client, 0)
	if err != nil || id != 11 {
		t.Fatalf("AssignOrderID(0) after jump = %d, %v, want 11", id, err)
	}

	if _, err := s.AssignOrderID(client, 10); !errors.Is(err, payqueue.ErrOrderExists) {
		t.Errorf("AssignOrderID(10) again error = %v, want ErrOrderExists", err)
	}

	// Counters are partitioned per client.
	if id, err := s.AssignOrderID(addr(2), 0); err != nil || id != 1 {
		t.Errorf("AssignOrderID for other client = %d, %v, want 1", id, err)
	}
}

func TestOrderRoundTrip(t *testing.T) {
	s := newTestStore(t)
	client := addr(1)

	if _, ok, err := s.GetOrder(client, 1); err != nil || ok {
		t.Fatalf("GetOrder() on empty = ok %v, err %v", ok, err)
	}

	want := sampleOrder(client, 1)
	if err := s.PutOrder(client, want); err != nil {
		t.Fatalf("PutOrder() error = %v", err)
	}

	got, ok, err := s.GetOrder(client, 1)
	if err != nil || !ok {
		t.Fatalf("GetOrder() = ok %v, err %v", ok, err)
	}
	if got.Order.Recipient != want.Order.Recipient ||
		got.Order.PaymentToken != want.Order.PaymentToken {
		t.Errorf("addresses = %+v, want %+v", got.Order, want.Order)
	}
	if got.Order.Amount.Cmp(want.Order.Amount) != 0 {
		t.Errorf("amount = %s, want %s", got.Order.Amount, want.Order.Amount)
	}
	if got.Order.OriginChainID.Cmp(want.Order.OriginChainID) != 0 ||
		got.Order.TargetChainID.Cmp(want.Order.TargetChainID) != 0 {
		t.Errorf("chains = %s/%s, want 1337/1337", got.Order.OriginChainID, got.Order.TargetChainID)
	}
	if got.Order.Flags != want.Order.Flags {
		t.Errorf("flags = %b, want %b", got.Order.Flags, want.Order.Flags)
	}
	if len(got.Order.Data) != 1 || got.Order.Data[0] != want.Order.Data[0] {
		t.Errorf("data = %v, want %v", got.Order.Data, want.Order.Data)
	}
	if got.State != payqueue.StateProcessing || got.OrderID != 1 || got.Client != client {
		t.Errorf("record = %+v", got)
	}
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("timestamp = %s, want %s", got.Timestamp, want.Timestamp)
	}

	// PutOrder replaces the record in place.
	want.State = payqueue.StateCancelled
	if err := s.PutOrder(client, want); err != nil {
		t.Fatal(err)
	}
	got, _, _ = s.GetOrder(client, 1)
	if got.State != payqueue.StateCancelled {
		t.Errorf("state after replace = %s, want CANCELLED", got.State)
	}
}

func TestQueueFIFO(t *testing.T) {
	s := newTestStore(t)
	client := addr(1)

	if _, ok, err := s.QueueHead(client); err != nil || ok {
		t.Fatalf("QueueHead() on empty = ok %v, err %v", ok, err)
	}
	if n, err := s.QueueLen(client); err != nil || n != 0 {
		t.Fatalf("QueueLen() = %d, %v, want 0", n, err)
	}

	for _, id := range []uint64{5, 3, 9} {
		if err := s.QueueAppend(client, id); err != nil {
			t.Fatalf("QueueAppend(%d) error = %v", id, err)
		}
	}

	head, ok, err := s.QueueHead(client)
	if err != nil || !ok || head != 5 {
		t.Errorf("head = %d, want 5", head)
	}
	tail, ok, err := s.QueueTail(client)
	if err != nil || !ok || tail != 9 {
		t.Errorf("tail = %d, want 9", tail)
	}
	ids, err := s.QueueIDs(client)
	if err != nil || len(ids) != 3 {
		t.Fatalf("QueueIDs() = %v, %v", ids, err)
	}
	for i, want := range []uint64{5, 3, 9} {
		if ids[i] != want {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want)
		}
	}

	if err := s.QueueRemove(client, 3); err != nil {
		t.Fatalf("QueueRemove(3) error = %v", err)
	}
	ids, _ = s.QueueIDs(client)
	if len(ids) != 2 || ids[0] != 5 || ids[1] != 9 {
		t.Errorf("ids after remove = %v, want [5 9]", ids)
	}

	if err := s.QueueRemove(client, 3); !errors.Is(err, payqueue.ErrOrderNotFound) {
		t.Errorf("QueueRemove(3) again error = %v, want ErrOrderNotFound", err)
	}

	// Per-client partitioning.
	if n, _ := s.QueueLen(addr(2)); n != 0 {
		t.Errorf("other client QueueLen() = %d, want 0", n)
	}
}

func TestUnclaimableLedger(t *testing.T) {
	s := newTestStore(t)
	client, token, recipient := addr(1), addr(2), addr(3)

	amt, err := s.Unclaimable(client, token, recipient)
	if err != nil || amt.Sign() != 0 {
		t.Fatalf("Unclaimable() on empty = %s, %v, want 0", amt, err)
	}

	if err := s.AddUnclaimable(client, token, recipient, big.NewInt(100)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddUnclaimable(client, token, recipient, big.NewInt(50)); err != nil {
		t.Fatal(err)
	}
	amt, err = s.Unclaimable(client, token, recipient)
	if err != nil || amt.Cmp(big.NewInt(150)) != 0 {
		t.Errorf("Unclaimable() = %s, %v, want 150", amt, err)
	}

	if amt, _ := s.Unclaimable(client, token, addr(4)); amt.Sign() != 0 {
		t.Errorf("other recipient = %s, want 0", amt)
	}

	if err := s.ZeroUnclaimable(client, token, recipient); err != nil {
		t.Fatal(err)
	}
	if amt, _ := s.Unclaimable(client, token, recipient); amt.Sign() != 0 {
		t.Errorf("after zero = %s, want 0", amt)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payqueue.db")
	client := addr(1)

	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PutOrder(client, sampleOrder(client, 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.QueueAppend(client, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.AddUnclaimable(client, addr(2), addr(3), big.NewInt(42)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, ok, err := s.GetOrder(client, 1); err != nil || !ok {
		t.Errorf("order lost across reopen: ok %v, err %v", ok, err)
	}
	if head, ok, _ := s.QueueHead(client); !ok || head != 1 {
		t.Errorf("queue lost across reopen: head %d, ok %v", head, ok)
	}
	if amt, _ := s.Unclaimable(client, addr(2), addr(3)); amt.Cmp(big.NewInt(42)) != 0 {
		t.Errorf("ledger lost across reopen: %s", amt)
	}
}
