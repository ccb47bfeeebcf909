// Package paper is an in-memory venue that fills orders against a settable last price.
// It supports native amend and backs both the facade's paper mode and the sandbox REST venue.
package paper

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradedriver/pkg/core"
	"github.com/uhyunpark/tradedriver/pkg/util"
)

type position struct {
	size  decimal.Decimal
	entry decimal.Decimal
}

// Venue keeps orders, balances and perp positions for a single account.
// Symbols use BASE_QUOTE, with a _PERP suffix for perpetuals.
type Venue struct {
	mu       sync.Mutex
	clock    util.Clock
	log      *zap.SugaredLogger
	newID    func() string
	prices   map[string]decimal.Decimal
	orders   map[string]*core.Order
	sequence []string // order ids in placement order
	balances map[string]core.Balance
	perps    map[string]*position
}

type Option func(*Venue)

func WithClock(c util.Clock) Option { return func(v *Venue) { v.clock = c } }

func WithLogger(l *zap.SugaredLogger) Option { return func(v *Venue) { v.log = l } }

// WithIDs replaces the uuid generator, mainly for deterministic tests
func WithIDs(next func() string) Option { return func(v *Venue) { v.newID = next } }

func New(opts ...Option) *Venue {
	v := &Venue{
		clock:    util.RealClock{},
		newID:    func() string { return uuid.New().String() },
		prices:   make(map[string]decimal.Decimal),
		orders:   make(map[string]*core.Order),
		balances: make(map[string]core.Balance),
		perps:    make(map[string]*position),
	}
	for _, o := range opts {
		o(v)
	}
	v.log = util.OrNop(v.log)
	return v
}

// SetPrice records a last trade price and fills resting orders that now cross
func (v *Venue) SetPrice(symbol string, px decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	v.prices[symbol] = px
	for _, id := range v.sequence {
		o := v.orders[id]
		if o.Symbol != symbol || !o.Status.Open() {
			continue
		}
		if crosses(o, px) {
			v.fillResting(o)
		}
	}
}

// Deposit credits available balance
func (v *Venue) Deposit(asset string, amount decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	asset = strings.ToUpper(asset)
	b := v.balances[asset]
	b.Available = b.Available.Add(amount)
	v.balances[asset] = b
}

func (v *Venue) PriceNow(_ context.Context, symbol string) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	px, ok := v.prices[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, core.NotFoundf("price", "no market %s", symbol)
	}
	return px, nil
}

// Markets lists symbols that have a price, sorted
func (v *Venue) Markets(_ context.Context) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.prices))
	for s := range v.prices {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (v *Venue) Place(_ context.Context, o core.Order) (string, error) {
	const op = "place order"
	if err := o.Validate(); err != nil {
		return "", err
	}
	if o.DryRun {
		return core.DrySentinel, nil
	}
	o.Symbol = strings.ToUpper(o.Symbol)
	base, quote, perp, err := splitSymbol(o.Symbol)
	if err != nil {
		return "", err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	last, ok := v.prices[o.Symbol]
	if !ok {
		return "", core.NotFoundf(op, "no market %s", o.Symbol)
	}
	if o.ClientID != 0 {
		if prev, err := v.findLocked(core.OrderRef{ClientID: o.ClientID}); err == nil && prev.Status.Open() {
			return "", core.Validationf(op, "client id %d already in use", o.ClientID)
		}
	}
	if o.ReduceOnly {
		if !perp {
			return "", core.Validationf(op, "reduce-only requires a perpetual market")
		}
		if !v.reducesLocked(o) {
			return "", core.Validationf(op, "reduce-only order would increase position")
		}
	}

	o.ID = v.newID()
	o.Status = core.StatusNew
	o.Filled = decimal.Zero
	o.CreatedAt = v.clock.Now()

	marketable := o.Type == core.Market || crosses(&o, last)
	switch {
	case marketable && o.TimeInForce == core.PostOnly:
		return "", core.Validationf(op, "post-only order would take liquidity at %s", last)
	case marketable:
		if !perp {
			if err := v.checkSpotFunds(base, quote, o.Side, o.Quantity, last); err != nil {
				return "", err
			}
		}
		v.applyFill(&o, base, quote, perp, o.Quantity, last, false)
	case o.TimeInForce == core.IOC || o.TimeInForce == core.FOK:
		o.Status = core.StatusExpired
	default:
		if !perp {
			if err := v.lockSpot(base, quote, o.Side, o.Quantity, o.Price.Decimal); err != nil {
				return "", err
			}
		}
	}

	v.orders[o.ID] = &o
	v.sequence = append(v.sequence, o.ID)
	v.log.Debugw("paper_order_placed", "id", o.ID, "symbol", o.Symbol, "side", o.Side, "status", o.Status)
	return o.ID, nil
}

func (v *Venue) Cancel(_ context.Context, ref core.OrderRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	o, err := v.openLocked(ref, "cancel order")
	if err != nil {
		return "", err
	}
	v.cancelLocked(o)
	return o.ID, nil
}

// CancelAll cancels every open order on symbol (all symbols when empty)
func (v *Venue) CancelAll(_ context.Context, symbol string) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	var ids []string
	for _, id := range v.sequence {
		o := v.orders[id]
		if o.Status.Open() && (symbol == "" || o.Symbol == symbol) {
			v.cancelLocked(o)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (v *Venue) OpenOrder(_ context.Context, ref core.OrderRef) (core.Order, error) {
	if err := ref.Validate(); err != nil {
		return core.Order{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	o, err := v.openLocked(ref, "open order")
	if err != nil {
		return core.Order{}, err
	}
	return *o, nil
}

// Order returns an order in any state
func (v *Venue) Order(_ context.Context, ref core.OrderRef) (core.Order, error) {
	if err := ref.Validate(); err != nil {
		return core.Order{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	o, err := v.findLocked(ref)
	if err != nil {
		return core.Order{}, err
	}
	return *o, nil
}

func (v *Venue) OpenOrders(ctx context.Context, symbol string) ([]string, error) {
	orders, err := v.OpenOrderList(ctx, symbol)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids, nil
}

// History returns orders on symbol in any state, newest first. A non-positive limit
// returns all of them.
func (v *Venue) History(_ context.Context, symbol string, limit int) []core.Order {
	v.mu.Lock()
	defer v.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	out := []core.Order{}
	for i := len(v.sequence) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		o := v.orders[v.sequence[i]]
		if symbol == "" || o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	return out
}

// OpenOrderList returns full open orders on symbol (all symbols when empty)
func (v *Venue) OpenOrderList(_ context.Context, symbol string) ([]core.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	out := []core.Order{}
	for _, id := range v.sequence {
		o := v.orders[id]
		if o.Status.Open() && (symbol == "" || o.Symbol == symbol) {
			out = append(out, *o)
		}
	}
	return out, nil
}

// Amend modifies an open limit order in place, keeping its id
func (v *Venue) Amend(_ context.Context, req core.AmendRequest) (string, error) {
	const op = "amend order"
	if err := req.Validate(); err != nil {
		return "", err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	o, err := v.openLocked(req.Ref, op)
	if err != nil {
		return "", err
	}
	if o.Type != core.Limit {
		return "", core.Validationf(op, "only resting limit orders can be amended")
	}
	newQty, newPx := o.Quantity, o.Price.Decimal
	if req.Quantity.Valid {
		newQty = req.Quantity.Decimal
	}
	if req.Price.Valid {
		newPx = req.Price.Decimal
	}
	if newQty.LessThanOrEqual(o.Filled) {
		return "", core.Validationf(op, "quantity %s not above filled %s", newQty, o.Filled)
	}

	base, quote, perp, _ := splitSymbol(o.Symbol)
	if !perp {
		v.unlockSpot(base, quote, o.Side, o.Remaining(), o.Price.Decimal)
		if err := v.lockSpot(base, quote, o.Side, newQty.Sub(o.Filled), newPx); err != nil {
			// restore the original lock
			_ = v.lockSpot(base, quote, o.Side, o.Remaining(), o.Price.Decimal)
			return "", err
		}
	}
	o.Quantity = newQty
	o.Price = decimal.NewNullDecimal(newPx)

	if last, ok := v.prices[o.Symbol]; ok && crosses(o, last) {
		v.fillResting(o)
	}
	v.log.Debugw("paper_order_amended", "id", o.ID, "price", newPx, "quantity", newQty)
	return o.ID, nil
}

func (v *Venue) Positions(_ context.Context) ([]core.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	syms := make([]string, 0, len(v.perps))
	for s := range v.perps {
		syms = append(syms, s)
	}
	sort.Strings(syms)

	out := make([]core.Position, 0, len(syms))
	for _, s := range syms {
		p := v.perps[s]
		mark := v.prices[s]
		out = append(out, core.Position{
			Symbol:        s,
			Size:          p.size,
			EntryPrice:    p.entry,
			MarkPrice:     mark,
			UnrealizedPnL: mark.Sub(p.entry).Mul(p.size),
		})
	}
	return out, nil
}

func (v *Venue) Balances(_ context.Context) (core.Balances, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(core.Balances, len(v.balances))
	for k, b := range v.balances {
		out[k] = b
	}
	return out, nil
}

func (v *Venue) findLocked(ref core.OrderRef) (*core.Order, error) {
	if ref.OrderID != "" {
		if o, ok := v.orders[ref.OrderID]; ok {
			return o, nil
		}
	} else {
		for i := len(v.sequence) - 1; i >= 0; i-- {
			o := v.orders[v.sequence[i]]
			if o.ClientID == ref.ClientID {
				return o, nil
			}
		}
	}
	return nil, core.NotFoundf("lookup order", "order %s not found", ref)
}

func (v *Venue) openLocked(ref core.OrderRef, op string) (*core.Order, error) {
	o, err := v.findLocked(ref)
	if err != nil || !o.Status.Open() {
		return nil, core.NotFoundf(op, "order %s not found", ref)
	}
	if ref.Symbol != "" && !strings.EqualFold(ref.Symbol, o.Symbol) {
		return nil, core.NotFoundf(op, "order %s not found on %s", ref, ref.Symbol)
	}
	return o, nil
}

func (v *Venue) cancelLocked(o *core.Order) {
	base, quote, perp, _ := splitSymbol(o.Symbol)
	if !perp && o.Type == core.Limit {
		v.unlockSpot(base, quote, o.Side, o.Remaining(), o.Price.Decimal)
	}
	o.Status = core.StatusCancelled
}

func (v *Venue) fillResting(o *core.Order) {
	base, quote, perp, _ := splitSymbol(o.Symbol)
	v.applyFill(o, base, quote, perp, o.Remaining(), o.Price.Decimal, true)
}

// applyFill executes qty at px. fromLock spends funds reserved by lockSpot.
func (v *Venue) applyFill(o *core.Order, base, quote string, perp bool, qty, px decimal.Decimal, fromLock bool) {
	o.Filled = o.Filled.Add(qty)
	if o.Filled.GreaterThanOrEqual(o.Quantity) {
		o.Status = core.StatusFilled
	} else {
		o.Status = core.StatusPartiallyFilled
	}

	if perp {
		signed := qty
		if o.Side == core.Sell {
			signed = qty.Neg()
		}
		v.applyPerp(o.Symbol, signed, px)
		return
	}

	notional := qty.Mul(px)
	if o.Side == core.Buy {
		v.debit(quote, notional, fromLock)
		v.credit(base, qty)
	} else {
		v.debit(base, qty, fromLock)
		v.credit(quote, notional)
	}
}

func (v *Venue) applyPerp(symbol string, signed, px decimal.Decimal) {
	p, ok := v.perps[symbol]
	if !ok {
		p = &position{}
		v.perps[symbol] = p
	}
	next := p.size.Add(signed)
	switch {
	case p.size.IsZero() || p.size.Sign() == signed.Sign():
		// opening or adding: volume-weighted entry
		p.entry = p.entry.Mul(p.size.Abs()).Add(px.Mul(signed.Abs())).Div(next.Abs())
	case next.Sign() != 0 && next.Sign() != p.size.Sign():
		// flipped through zero
		p.entry = px
	}
	p.size = next
	if p.size.IsZero() {
		delete(v.perps, symbol)
	}
}

func (v *Venue) reducesLocked(o core.Order) bool {
	p, ok := v.perps[o.Symbol]
	if !ok {
		return false
	}
	if o.Side == core.Buy {
		return p.size.IsNegative() && o.Quantity.LessThanOrEqual(p.size.Abs())
	}
	return p.size.IsPositive() && o.Quantity.LessThanOrEqual(p.size)
}

func (v *Venue) checkSpotFunds(base, quote string, side core.Side, qty, px decimal.Decimal) error {
	asset, need := quote, qty.Mul(px)
	if side == core.Sell {
		asset, need = base, qty
	}
	have := v.balances[asset].Available
	if have.LessThan(need) {
		return core.InsufficientBalancef("place order", "%s available %s, need %s", asset, have, need)
	}
	return nil
}

func (v *Venue) lockSpot(base, quote string, side core.Side, qty, px decimal.Decimal) error {
	if err := v.checkSpotFunds(base, quote, side, qty, px); err != nil {
		return err
	}
	asset, amt := quote, qty.Mul(px)
	if side == core.Sell {
		asset, amt = base, qty
	}
	b := v.balances[asset]
	b.Available = b.Available.Sub(amt)
	b.Locked = b.Locked.Add(amt)
	v.balances[asset] = b
	return nil
}

func (v *Venue) unlockSpot(base, quote string, side core.Side, qty, px decimal.Decimal) {
	asset, amt := quote, qty.Mul(px)
	if side == core.Sell {
		asset, amt = base, qty
	}
	b := v.balances[asset]
	b.Locked = b.Locked.Sub(amt)
	b.Available = b.Available.Add(amt)
	v.balances[asset] = b
}

func (v *Venue) debit(asset string, amt decimal.Decimal, fromLock bool) {
	b := v.balances[asset]
	if fromLock {
		b.Locked = b.Locked.Sub(amt)
	} else {
		b.Available = b.Available.Sub(amt)
	}
	v.balances[asset] = b
}

func (v *Venue) credit(asset string, amt decimal.Decimal) {
	b := v.balances[asset]
	b.Available = b.Available.Add(amt)
	v.balances[asset] = b
}

func crosses(o *core.Order, last decimal.Decimal) bool {
	if o.Type == core.Market {
		return true
	}
	if o.Side == core.Buy {
		return o.Price.Decimal.GreaterThanOrEqual(last)
	}
	return o.Price.Decimal.LessThanOrEqual(last)
}

func splitSymbol(symbol string) (base, quote string, perp bool, err error) {
	parts := strings.Split(strings.ToUpper(symbol), "_")
	if len(parts) == 3 && parts[2] == "PERP" {
		return parts[0], parts[1], true, nil
	}
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return parts[0], parts[1], false, nil
	}
	return "", "", false, core.UnsupportedSymbolf("paper", "symbol %q is not BASE_QUOTE[_PERP]", symbol)
}
