// Package sqlite provides a SQLite-backed ProcessorStore, for deployments
// that need queue and ledger state to survive restarts. State layout mirrors
// the in-memory store: everything is partitioned by client address.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"

	payqueue "github.com/quorumlabs/payqueue-go"
)

// Store is a SQLite-backed payqueue.ProcessorStore.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the store at dbPath.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the necessary tables.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS orders (
			client TEXT NOT NULL,
			id INTEGER NOT NULL,
			recipient TEXT NOT NULL,
			token TEXT NOT NULL,
			amount TEXT NOT NULL,
			origin_chain TEXT NOT NULL,
			target_chain TEXT NOT NULL,
			flags INTEGER NOT NULL,
			data TEXT NOT NULL,
			state INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (client, id)
		);

		CREATE TABLE IF NOT EXISTS counters (
			client TEXT PRIMARY KEY,
			last_id INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS queue (
			pos INTEGER PRIMARY KEY AUTOINCREMENT,
			client TEXT NOT NULL,
			id INTEGER NOT NULL,
			UNIQUE (client, id)
		);

		CREATE TABLE IF NOT EXISTS unclaimable (
			client TEXT NOT NULL,
			token TEXT NOT NULL,
			recipient TEXT NOT NULL,
			amount TEXT NOT NULL,
			PRIMARY KEY (client, token, recipient)
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AssignOrderID implements payqueue.ProcessorStore.
func (s *Store) AssignOrderID(client common.Address, requested uint64) (uint64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var last int64
	err = tx.QueryRow(`SELECT last_id FROM counters WHERE client = ?`, client.Hex()).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}

	var assigned uint64
	if requested == 0 {
		assigned = uint64(last) + 1
	} else {
		var n int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM orders WHERE client = ? AND id = ?`,
			client.Hex(), int64(requested)).Scan(&n); err != nil {
			return 0, err
		}
		if n > 0 {
			return 0, fmt.Errorf("%w: id %d", payqueue.ErrOrderExists, requested)
		}
		assigned = requested
	}
	next := last
	if int64(assigned) > next {
		next = int64(assigned)
	}

	if _, err := tx.Exec(`
		INSERT INTO counters (client, last_id) VALUES (?, ?)
		ON CONFLICT(client) DO UPDATE SET last_id = excluded.last_id`,
		client.Hex(), next); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return assigned, nil
}

// PutOrder implements payqueue.ProcessorStore.
func (s *Store) PutOrder(client common.Address, order payqueue.QueuedOrder) error {
	data, err := json.Marshal(order.Order.Data)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO orders (client, id, recipient, token, amount, origin_chain, target_chain, flags, data, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client, id) DO UPDATE SET
			recipient = excluded.recipient,
			token = excluded.token,
			amount = excluded.amount,
			origin_chain = excluded.origin_chain,
			target_chain = excluded.target_chain,
			flags = excluded.flags,
			data = excluded.data,
			state = excluded.state,
			created_at = excluded.created_at`,
		client.Hex(), int64(order.OrderID),
		order.Order.Recipient.Hex(), order.Order.PaymentToken.Hex(),
		order.Order.Amount.String(),
		order.Order.OriginChainID.String(), order.Order.TargetChainID.String(),
		int64(order.Order.Flags), string(data),
		int(order.State), order.Timestamp.UnixNano())
	return err
}

// GetOrder implements payqueue.ProcessorStore.
func (s *Store) GetOrder(client common.Address, id uint64) (payqueue.QueuedOrder, bool, error) {
	var (
		recipient, token, amount string
		origin, target, data     string
		flags, createdAt         int64
		state                    int
	)
	err := s.db.QueryRow(`
		SELECT recipient, token, amount, origin_chain, target_chain, flags, data, state, created_at
		FROM orders WHERE client = ? AND id = ?`,
		client.Hex(), int64(id)).
		Scan(&recipient, &token, &amount, &origin, &target, &flags, &data, &state, &createdAt)
	if err == sql.ErrNoRows {
		return payqueue.QueuedOrder{}, false, nil
	}
	if err != nil {
		return payqueue.QueuedOrder{}, false, err
	}

	var words []common.Hash
	if err := json.Unmarshal([]byte(data), &words); err != nil {
		return payqueue.QueuedOrder{}, false, err
	}
	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return payqueue.QueuedOrder{}, false, fmt.Errorf("sqlite: corrupt amount %q", amount)
	}
	originID, ok := new(big.Int).SetString(origin, 10)
	if !ok {
		return payqueue.QueuedOrder{}, false, fmt.Errorf("sqlite: corrupt origin chain %q", origin)
	}
	targetID, ok := new(big.Int).SetString(target, 10)
	if !ok {
		return payqueue.QueuedOrder{}, false, fmt.Errorf("sqlite: corrupt target chain %q", target)
	}

	return payqueue.QueuedOrder{
		Order: payqueue.PaymentOrder{
			Recipient:     common.HexToAddress(recipient),
			PaymentToken:  common.HexToAddress(token),
			Amount:        amt,
			OriginChainID: originID,
			TargetChainID: targetID,
			Flags:         payqueue.OrderFlags(flags),
			Data:          words,
		},
		State:     payqueue.OrderState(state),
		OrderID:   id,
		Timestamp: time.Unix(0, createdAt).UTC(),
		Client:    client,
	}, true, nil
}

// QueueAppend implements payqueue.ProcessorStore. FIFO order is the insertion
// order of the autoincrement position column.
func (s *Store) QueueAppend(client common.Address, id uint64) error {
	_, err := s.db.Exec(`INSERT INTO queue (client, id) VALUES (?, ?)`, client.Hex(), int64(id))
	return err
}

// QueueRemove implements payqueue.ProcessorStore.
func (s *Store) QueueRemove(client common.Address, id uint64) error {
	res, err := s.db.Exec(`DELETE FROM queue WHERE client = ? AND id = ?`, client.Hex(), int64(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: order %d not queued", payqueue.ErrOrderNotFound, id)
	}
	return nil
}

// QueueHead implements payqueue.ProcessorStore.
func (s *Store) QueueHead(client common.Address) (uint64, bool, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM queue WHERE client = ? ORDER BY pos ASC LIMIT 1`,
		client.Hex()).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint64(id), true, nil
}

// QueueTail implements payqueue.ProcessorStore.
func (s *Store) QueueTail(client common.Address) (uint64, bool, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM queue WHERE client = ? ORDER BY pos DESC LIMIT 1`,
		client.Hex()).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint64(id), true, nil
}

// QueueIDs implements payqueue.ProcessorStore.
func (s *Store) QueueIDs(client common.Address) ([]uint64, error) {
	rows, err := s.db.Query(`SELECT id FROM queue WHERE client = ? ORDER BY pos ASC`, client.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, uint64(id))
	}
	return ids, rows.Err()
}

// QueueLen implements payqueue.ProcessorStore.
func (s *Store) QueueLen(client common.Address) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM queue WHERE client = ?`, client.Hex()).Scan(&n)
	return n, err
}

// Unclaimable implements payqueue.ProcessorStore.
func (s *Store) Unclaimable(client, token, recipient common.Address) (*big.Int, error) {
	var amount string
	err := s.db.QueryRow(`
		SELECT amount FROM unclaimable WHERE client = ? AND token = ? AND recipient = ?`,
		client.Hex(), token.Hex(), recipient.Hex()).Scan(&amount)
	if err == sql.ErrNoRows {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("sqlite: corrupt unclaimable amount %q", amount)
	}
	return amt, nil
}

// AddUnclaimable implements payqueue.ProcessorStore.
func (s *Store) AddUnclaimable(client, token, recipient common.Address, amount *big.Int) error {
	cur, err := s.Unclaimable(client, token, recipient)
	if err != nil {
		return err
	}
	cur.Add(cur, amount)
	_, err = s.db.Exec(`
		INSERT INTO unclaimable (client, token, recipient, amount) VALUES (?, ?, ?, ?)
		ON CONFLICT(client, token, recipient) DO UPDATE SET amount = excluded.amount`,
		client.Hex(), token.Hex(), recipient.Hex(), cur.String())
	return err
}

// ZeroUnclaimable implements payqueue.ProcessorStore.
func (s *Store) ZeroUnclaimable(client, token, recipient common.Address) error {
	_, err := s.db.Exec(`DELETE FROM unclaimable WHERE client = ? AND token = ? AND recipient = ?`,
		client.Hex(), token.Hex(), recipient.Hex())
	return err
}
