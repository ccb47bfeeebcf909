// Package amend emulates order amendment as fetch, cancel, then replace for venues
// without a native amend.
//
// The three steps are not atomic. Between the fetch and the cancel the original order
// can fill, and between the cancel and the replace the market can move. Callers accept
// that window; WithRecheck narrows it by re-reading the order immediately before the
// cancel, at the cost of one extra request.
package amend

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/uhyunpark/tradedriver/pkg/core"
	"github.com/uhyunpark/tradedriver/pkg/util"
)

// State is a step of the amend state machine
type State uint8

const (
	StateOpen State = iota
	StateFetching
	StateFound
	StateNotFound
	StateCancelling
	StateCancelled
	StateCancelFailed
	StateReplacing
	StateReplaced
	StateReplaceFailed
)

func (s State) String() string {
	return [...]string{
		"Open", "Fetching", "Found", "NotFound", "Cancelling",
		"Cancelled", "CancelFailed", "Replacing", "Replaced", "ReplaceFailed",
	}[s]
}

// Terminal reports whether no further transition follows s
func (s State) Terminal() bool {
	switch s {
	case StateNotFound, StateCancelFailed, StateReplaced, StateReplaceFailed:
		return true
	}
	return false
}

// Venue is the subset of a gateway the coordinator drives
type Venue interface {
	OpenOrder(ctx context.Context, ref core.OrderRef) (core.Order, error)
	Cancel(ctx context.Context, ref core.OrderRef) (string, error)
	Place(ctx context.Context, o core.Order) (string, error)
}

// Result describes how far an amend got
type Result struct {
	State       State
	Trace       []State
	Original    core.Order
	Replacement core.Order
	NewOrderID  string
}

type Coordinator struct {
	venue   Venue
	recheck bool
	log     *zap.SugaredLogger
}

type Option func(*Coordinator)

// WithRecheck re-reads the order right before cancelling and aborts if it closed or
// its filled quantity moved since the first fetch
func WithRecheck() Option { return func(c *Coordinator) { c.recheck = true } }

func WithLogger(l *zap.SugaredLogger) Option { return func(c *Coordinator) { c.log = l } }

func New(v Venue, opts ...Option) *Coordinator {
	c := &Coordinator{venue: v}
	for _, o := range opts {
		o(c)
	}
	c.log = util.OrNop(c.log)
	return c
}

type run struct {
	c   *Coordinator
	res Result
}

func (r *run) to(s State) {
	r.res.State = s
	r.res.Trace = append(r.res.Trace, s)
	r.c.log.Debugw("amend_transition", "state", s.String())
}

// Amend replaces the order identified by req.Ref with a copy carrying the new price
// and/or quantity. The copy inherits side, type, time-in-force, reduce-only and client
// id. A failure after the cancel step is reported as an amend conflict: the original
// order is gone and nothing replaced it.
func (c *Coordinator) Amend(ctx context.Context, req core.AmendRequest) (Result, error) {
	const op = "amend order"
	r := &run{c: c}
	r.to(StateOpen)
	if err := req.Validate(); err != nil {
		return r.res, err
	}

	r.to(StateFetching)
	orig, err := c.venue.OpenOrder(ctx, req.Ref)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			r.to(StateNotFound)
			c.log.Infow("amend_target_missing", "ref", req.Ref.String())
			return r.res, core.NotFoundf(op, "amend target %s missing or already completed", req.Ref)
		}
		return r.res, err
	}
	r.res.Original = orig
	r.to(StateFound)

	if c.recheck {
		again, err := c.venue.OpenOrder(ctx, req.Ref)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return r.res, err
		}
		if err != nil || !again.Filled.Equal(orig.Filled) {
			r.to(StateNotFound)
			return r.res, core.NotFoundf(op, "amend target %s changed before cancel", req.Ref)
		}
	}

	repl := replacement(orig, req)
	r.res.Replacement = repl

	r.to(StateCancelling)
	cancelRef := core.OrderRef{Symbol: orig.Symbol, OrderID: orig.ID}
	if cancelRef.OrderID == "" {
		cancelRef = req.Ref
	}
	if _, err := c.venue.Cancel(ctx, cancelRef); err != nil {
		r.to(StateCancelFailed)
		c.log.Warnw("amend_cancel_failed", "id", orig.ID, "err", err)
		return r.res, err
	}
	r.to(StateCancelled)

	r.to(StateReplacing)
	id, err := c.venue.Place(ctx, repl)
	if err != nil {
		r.to(StateReplaceFailed)
		c.log.Errorw("amend_replace_failed", "cancelled_id", orig.ID, "err", err)
		return r.res, core.AmendConflict(op, err)
	}
	r.res.NewOrderID = id
	r.res.Replacement.ID = id
	r.to(StateReplaced)
	c.log.Infow("order_amended", "old_id", orig.ID, "new_id", id, "price", repl.Price.Decimal, "quantity", repl.Quantity)
	return r.res, nil
}

// replacement copies the order's terms except its client id
func replacement(orig core.Order, req core.AmendRequest) core.Order {
	repl := core.Order{
		Symbol:      orig.Symbol,
		Side:        orig.Side,
		Type:        orig.Type,
		TimeInForce: orig.TimeInForce,
		Price:       orig.Price,
		Quantity:    orig.Quantity,
		ReduceOnly:  orig.ReduceOnly,
	}
	if repl.Symbol == "" {
		repl.Symbol = req.Ref.Symbol
	}
	if req.Price.Valid {
		repl.Price = req.Price
	}
	if req.Quantity.Valid {
		repl.Quantity = req.Quantity.Decimal
	}
	return repl
}
