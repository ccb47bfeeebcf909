// Package journal keeps an append-only local record of order actions and chain
// transactions submitted through the driver.
package journal

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderEvent is one order action and its outcome
type OrderEvent struct {
	ID         string              `json:"id"`
	Venue      string              `json:"venue"`
	Action     string              `json:"action"` // place, cancel, amend, cancel_all
	OrderID    string              `json:"orderId,omitempty"`
	ClientID   uint32              `json:"clientId,omitempty"`
	Symbol     string              `json:"symbol"`
	Side       string              `json:"side,omitempty"`
	Type       string              `json:"type,omitempty"`
	Price      decimal.NullDecimal `json:"price"`
	Quantity   decimal.Decimal     `json:"quantity"`
	ReduceOnly bool                `json:"reduceOnly,omitempty"`
	DryRun     bool                `json:"dryRun,omitempty"`
	Error      string              `json:"error,omitempty"`
	At         time.Time           `json:"at"`
}

// TxEvent is a broadcast transaction; Status is updated once it settles
type TxEvent struct {
	Hash   string    `json:"hash"`
	Venue  string    `json:"venue"`
	Label  string    `json:"label"`
	Symbol string    `json:"symbol,omitempty"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// Journal is the sink the driver facade writes to
type Journal interface {
	RecordOrder(e OrderEvent) error
	RecordTx(e TxEvent) error
	Orders(venue string, limit int) ([]OrderEvent, error)
	Tx(hash string) (TxEvent, bool, error)
	Txs() ([]TxEvent, error)
	Close() error
}

func prepareOrder(e *OrderEvent) error {
	if e.Venue == "" || e.Action == "" {
		return errors.New("journal: order event needs venue and action")
	}
	if strings.Contains(e.Venue, ":") {
		return fmt.Errorf("journal: venue %q must not contain ':'", e.Venue)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return nil
}

func prepareTx(e *TxEvent) error {
	if e.Hash == "" {
		return errors.New("journal: tx event needs a hash")
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return nil
}

// PebbleJournal persists events to a pebble database
type PebbleJournal struct {
	db *pebble.DB
}

func Open(path string) (*PebbleJournal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &PebbleJournal{db: db}, nil
}

func (j *PebbleJournal) Close() error { return j.db.Close() }

func (j *PebbleJournal) RecordOrder(e OrderEvent) error {
	if err := prepareOrder(&e); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}
	if err := j.db.Set(orderKey(e.Venue, e.At.UnixMilli(), e.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save order event: %w", err)
	}
	return nil
}

// RecordTx inserts or overwrites the event for e.Hash, keeping the first timestamp
func (j *PebbleJournal) RecordTx(e TxEvent) error {
	if err := prepareTx(&e); err != nil {
		return err
	}
	if prev, ok, err := j.Tx(e.Hash); err != nil {
		return err
	} else if ok {
		e = mergeTx(prev, e)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal tx event: %w", err)
	}
	if err := j.db.Set(txKey(e.Hash), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save tx event: %w", err)
	}
	return nil
}

// Orders returns up to limit of the most recent order events, newest first.
// An empty venue scans all venues; limit <= 0 returns everything.
func (j *PebbleJournal) Orders(venue string, limit int) ([]OrderEvent, error) {
	prefix := orderPrefix(venue)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan orders: %w", err)
	}
	defer iter.Close()

	// keys group by venue first, so a cross-venue scan is sorted before the limit applies
	bounded := venue != "" && limit > 0
	var out []OrderEvent
	for iter.Last(); iter.Valid() && (!bounded || len(out) < limit); iter.Prev() {
		var e OrderEvent
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	if venue == "" {
		sortNewestFirst(out)
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
	}
	return out, nil
}

func (j *PebbleJournal) Tx(hash string) (TxEvent, bool, error) {
	data, closer, err := j.db.Get(txKey(hash))
	if errors.Is(err, pebble.ErrNotFound) {
		return TxEvent{}, false, nil
	}
	if err != nil {
		return TxEvent{}, false, fmt.Errorf("failed to get tx event: %w", err)
	}
	defer closer.Close()
	var e TxEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return TxEvent{}, false, fmt.Errorf("failed to unmarshal tx event: %w", err)
	}
	return e, true, nil
}

// Txs returns every recorded transaction, oldest first
func (j *PebbleJournal) Txs() ([]TxEvent, error) {
	prefix := []byte(prefixTx)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan txs: %w", err)
	}
	defer iter.Close()

	var out []TxEvent
	for iter.First(); iter.Valid(); iter.Next() {
		var e TxEvent
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].At.Before(out[b].At) })
	return out, nil
}

// MemoryJournal keeps events in process memory
type MemoryJournal struct {
	mu     sync.Mutex
	orders []OrderEvent
	txs    map[string]TxEvent
}

func NewMemory() *MemoryJournal {
	return &MemoryJournal{txs: make(map[string]TxEvent)}
}

func (m *MemoryJournal) Close() error { return nil }

func (m *MemoryJournal) RecordOrder(e OrderEvent) error {
	if err := prepareOrder(&e); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, e)
	return nil
}

func (m *MemoryJournal) RecordTx(e TxEvent) error {
	if err := prepareTx(&e); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.txs[e.Hash]; ok {
		e = mergeTx(prev, e)
	}
	m.txs[e.Hash] = e
	return nil
}

func (m *MemoryJournal) Orders(venue string, limit int) ([]OrderEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OrderEvent
	for i := len(m.orders) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if venue == "" || m.orders[i].Venue == venue {
			out = append(out, m.orders[i])
		}
	}
	return out, nil
}

func (m *MemoryJournal) Tx(hash string) (TxEvent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.txs[hash]
	return e, ok, nil
}

func (m *MemoryJournal) Txs() ([]TxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TxEvent, 0, len(m.txs))
	for _, e := range m.txs {
		out = append(out, e)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].At.Before(out[b].At) })
	return out, nil
}

// mergeTx applies a status update over an earlier record of the same hash
func mergeTx(prev, next TxEvent) TxEvent {
	next.At = prev.At
	if next.Label == "" {
		next.Label = prev.Label
	}
	if next.Symbol == "" {
		next.Symbol = prev.Symbol
	}
	if next.Venue == "" {
		next.Venue = prev.Venue
	}
	return next
}

func sortNewestFirst(events []OrderEvent) {
	sort.SliceStable(events, func(a, b int) bool { return events[a].At.After(events[b].At) })
}

var (
	_ Journal = (*PebbleJournal)(nil)
	_ Journal = (*MemoryJournal)(nil)
)
