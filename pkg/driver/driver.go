// Package driver is the uniform trading contract over every supported venue.
// Callers buy, sell, amend, revoke and read state without knowing whether a REST
// order book or an on-chain AMM sits underneath.
package driver

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradedriver/pkg/amend"
	"github.com/uhyunpark/tradedriver/pkg/core"
	"github.com/uhyunpark/tradedriver/pkg/journal"
	"github.com/uhyunpark/tradedriver/pkg/orderparam"
	"github.com/uhyunpark/tradedriver/pkg/symbol"
	"github.com/uhyunpark/tradedriver/pkg/util"
)

// Driver dispatches each operation to whichever capability the venue implements.
// Missing capabilities fail with a validation error wrapping core.ErrUnsupported.
type Driver struct {
	venue         string
	symbols       *symbol.Normalizer
	defaultSymbol string

	quoter    Quotable
	placer    OrderPlacer
	mutable   OrderMutable
	status    OrderStatusReader
	amender   NativeAmender
	bulk      BulkCanceller
	positions PositionReadable
	balances  BalanceReadable
	confirmer TxConfirmer

	coordinator  *amend.Coordinator
	amendRecheck bool
	journal      journal.Journal
	closers      []func() error
	log          *zap.SugaredLogger
}

type Option func(*Driver)

// WithJournal records every order action and transaction to j
func WithJournal(j journal.Journal) Option { return func(d *Driver) { d.journal = j } }

func WithLogger(l *zap.SugaredLogger) Option { return func(d *Driver) { d.log = l } }

// WithDefaultSymbol is used when an operation is given an empty symbol
func WithDefaultSymbol(s string) Option { return func(d *Driver) { d.defaultSymbol = s } }

// WithAmendRecheck re-reads the order right before the cancel of an emulated amend
func WithAmendRecheck() Option { return func(d *Driver) { d.amendRecheck = true } }

// WithCloser registers a release hook run by Close
func WithCloser(fn func() error) Option { return func(d *Driver) { d.closers = append(d.closers, fn) } }

// New discovers the capabilities of venue and wraps it. name labels logs and journal entries.
func New(name string, venue any, symbols *symbol.Normalizer, opts ...Option) *Driver {
	d := &Driver{venue: name, symbols: symbols}
	for _, o := range opts {
		o(d)
	}
	d.log = util.OrNop(d.log).With("venue", name)

	d.quoter, _ = venue.(Quotable)
	d.placer, _ = venue.(OrderPlacer)
	d.mutable, _ = venue.(OrderMutable)
	d.status, _ = venue.(OrderStatusReader)
	d.amender, _ = venue.(NativeAmender)
	d.bulk, _ = venue.(BulkCanceller)
	d.positions, _ = venue.(PositionReadable)
	d.balances, _ = venue.(BalanceReadable)
	d.confirmer, _ = venue.(TxConfirmer)

	if d.mutable != nil && d.amender == nil {
		copts := []amend.Option{amend.WithLogger(d.log)}
		if d.amendRecheck {
			copts = append(copts, amend.WithRecheck())
		}
		d.coordinator = amend.New(d.mutable, copts...)
	}
	d.log.Infow("driver_ready", "capabilities", d.Capabilities())
	return d
}

func (d *Driver) Venue() string { return d.venue }

// Capabilities lists the capability names the venue implements, sorted
func (d *Driver) Capabilities() []string {
	var caps []string
	add := func(ok bool, name string) {
		if ok {
			caps = append(caps, name)
		}
	}
	add(d.quoter != nil, "quote")
	add(d.placer != nil, "place")
	add(d.mutable != nil, "cancel")
	add(d.amender != nil || d.coordinator != nil, "amend")
	add(d.bulk != nil, "cancel_all")
	add(d.status != nil, "order_status")
	add(d.positions != nil, "positions")
	add(d.balances != nil, "balances")
	add(d.confirmer != nil, "confirm")
	sort.Strings(caps)
	return caps
}

// Buy places a buy of size on symbol. Orders are limit orders unless Type says otherwise,
// so a buy with neither a price nor Type("market") fails validation.
func (d *Driver) Buy(ctx context.Context, sym string, size decimal.Decimal, opts ...OrderOption) (string, error) {
	return d.place(ctx, core.Buy, sym, size, opts)
}

// Sell is Buy's mirror
func (d *Driver) Sell(ctx context.Context, sym string, size decimal.Decimal, opts ...OrderOption) (string, error) {
	return d.place(ctx, core.Sell, sym, size, opts)
}

func (d *Driver) place(ctx context.Context, side core.Side, sym string, size decimal.Decimal, opts []OrderOption) (string, error) {
	const op = "place order"
	if d.placer == nil {
		return "", core.Unsupported(op)
	}
	args := orderArgs{}
	for _, o := range opts {
		o(&args)
	}
	canonical, err := d.symbol(sym)
	if err != nil {
		return "", err
	}

	order := core.Order{
		ClientID:    args.clientID,
		Symbol:      canonical,
		Side:        side,
		Type:        orderparam.OrderType(args.orderType),
		TimeInForce: orderparam.TimeInForce(args.tif),
		Price:       args.price,
		Quantity:    size,
		ReduceOnly:  args.reduceOnly,
		DryRun:      args.dryRun,
	}
	if order.Type == core.Market {
		order.Price = decimal.NullDecimal{}
	}

	id, err := d.placer.Place(ctx, order)
	d.recordOrder("place", order, id, err)
	if err != nil {
		d.log.Warnw("order_failed", "side", side.String(), "symbol", canonical, "err", err)
		return "", err
	}
	if d.confirmer != nil && id != core.DrySentinel {
		d.recordTx(id, "swap", canonical, core.TxPending)
	}
	d.log.Infow("order_placed", "id", id, "side", side.String(), "symbol", canonical,
		"type", order.Type.String(), "tif", order.TimeInForce.String(), "size", size, "price", order.Price.Decimal, "dry", order.DryRun)
	return id, nil
}

// AmendOrder changes the price and/or quantity of an open order. Venues with a native
// amend keep the order id; others are driven through fetch, cancel and replace, and the
// returned id is the replacement's.
func (d *Driver) AmendOrder(ctx context.Context, ref core.OrderRef, price, quantity decimal.NullDecimal) (string, error) {
	const op = "amend order"
	req := core.AmendRequest{Ref: ref, Price: price, Quantity: quantity}
	if ref.Symbol != "" {
		s, err := d.symbol(ref.Symbol)
		if err != nil {
			return "", err
		}
		req.Ref.Symbol = s
	}

	var (
		id  string
		err error
	)
	switch {
	case d.amender != nil:
		id, err = d.amender.Amend(ctx, req)
	case d.coordinator != nil:
		var res amend.Result
		res, err = d.coordinator.Amend(ctx, req)
		id = res.NewOrderID
		if err != nil {
			d.log.Warnw("amend_failed", "ref", ref.String(), "state", res.State.String(), "err", err)
		}
	default:
		return "", core.Unsupported(op)
	}

	d.recordOrder("amend", core.Order{Symbol: req.Ref.Symbol, ClientID: ref.ClientID, Price: price, Quantity: quantity.Decimal}, id, err)
	if err != nil {
		return "", err
	}
	return id, nil
}

// RevokeOrder cancels one order by venue id or client id
func (d *Driver) RevokeOrder(ctx context.Context, ref core.OrderRef) (string, error) {
	const op = "cancel order"
	if d.mutable == nil {
		return "", core.Unsupported(op)
	}
	if ref.Symbol != "" {
		s, err := d.symbol(ref.Symbol)
		if err != nil {
			return "", err
		}
		ref.Symbol = s
	}
	id, err := d.mutable.Cancel(ctx, ref)
	d.recordOrder("cancel", core.Order{Symbol: ref.Symbol, ClientID: ref.ClientID}, firstNonEmpty(id, ref.OrderID), err)
	if err != nil {
		return "", err
	}
	d.log.Infow("order_cancelled", "id", id)
	return id, nil
}

// CancelAll cancels every open order, optionally limited to one symbol
func (d *Driver) CancelAll(ctx context.Context, sym string) ([]string, error) {
	const op = "cancel all"
	if d.bulk == nil {
		return nil, core.Unsupported(op)
	}
	canonical := ""
	if sym != "" {
		s, err := d.symbol(sym)
		if err != nil {
			return nil, err
		}
		canonical = s
	}
	ids, err := d.bulk.CancelAll(ctx, canonical)
	d.recordOrder("cancel_all", core.Order{Symbol: canonical}, "", err)
	if err != nil {
		return nil, err
	}
	d.log.Infow("orders_cancelled", "symbol", canonical, "count", len(ids))
	return ids, nil
}

// GetPriceNow returns the venue's current price for symbol, or for the default symbol
func (d *Driver) GetPriceNow(ctx context.Context, sym string) (decimal.Decimal, error) {
	if d.quoter == nil {
		return decimal.Zero, core.Unsupported("get price")
	}
	canonical, err := d.symbol(sym)
	if err != nil {
		return decimal.Zero, err
	}
	return d.quoter.PriceNow(ctx, canonical)
}

// GetOpenOrders lists open order ids; an empty symbol lists all
func (d *Driver) GetOpenOrders(ctx context.Context, sym string) ([]string, error) {
	if d.mutable == nil {
		return nil, core.Unsupported("get open orders")
	}
	canonical := ""
	if sym != "" {
		s, err := d.symbol(sym)
		if err != nil {
			return nil, err
		}
		canonical = s
	}
	return d.mutable.OpenOrders(ctx, canonical)
}

// GetOrderStatus reads one order in any state, including filled and cancelled ones
func (d *Driver) GetOrderStatus(ctx context.Context, ref core.OrderRef) (core.Order, error) {
	const op = "get order status"
	if d.status == nil {
		return core.Order{}, core.Unsupported(op)
	}
	if err := ref.Validate(); err != nil {
		return core.Order{}, err
	}
	if ref.Symbol != "" {
		s, err := d.symbol(ref.Symbol)
		if err != nil {
			return core.Order{}, err
		}
		ref.Symbol = s
	}
	return d.status.Order(ctx, ref)
}

// CloseAllPositions flattens open positions with reduce-only orders on the opposite
// side, sized by each position. An empty symbol closes every market. It returns the
// ids of the closing orders; a failure stops the sweep and returns the ids placed so far.
func (d *Driver) CloseAllPositions(ctx context.Context, sym string, opts ...CloseOption) ([]string, error) {
	const op = "close all positions"
	if d.positions == nil || d.mutable == nil {
		return nil, core.Unsupported(op)
	}
	args := closeArgs{}
	for _, o := range opts {
		o(&args)
	}
	if args.offset.IsNegative() || args.offset.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, core.Validationf(op, "price offset must be in [0, 1), got %s", args.offset)
	}
	canonical := ""
	if sym != "" {
		s, err := d.symbol(sym)
		if err != nil {
			return nil, err
		}
		canonical = s
	}

	positions, err := d.positions.Positions(ctx)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for _, p := range positions {
		if p.Size.IsZero() || (canonical != "" && p.Symbol != canonical) || !args.matches(p) {
			continue
		}
		side := core.Sell
		if p.Size.IsNegative() {
			side = core.Buy
		}
		oo := []OrderOption{ReduceOnly(), Type(core.Market)}
		if args.limit {
			px, err := d.closePrice(ctx, p, side, args.offset)
			if err != nil {
				return ids, err
			}
			oo = []OrderOption{ReduceOnly(), Type(core.Limit), Price(px)}
		}
		id, err := d.place(ctx, side, p.Symbol, p.Size.Abs(), oo)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	d.log.Infow("positions_closed", "symbol", canonical, "count", len(ids), "limit", args.limit)
	return ids, nil
}

// closePrice prices a limit close off the mark, or the venue quote when no mark is known
func (d *Driver) closePrice(ctx context.Context, p core.Position, side core.Side, offset decimal.Decimal) (decimal.Decimal, error) {
	mark := p.MarkPrice
	if !mark.IsPositive() {
		if d.quoter == nil {
			return decimal.Zero, core.Validationf("close all positions", "%s has no mark price", p.Symbol)
		}
		px, err := d.quoter.PriceNow(ctx, p.Symbol)
		if err != nil {
			return decimal.Zero, err
		}
		mark = px
	}
	one := decimal.NewFromInt(1)
	if side == core.Sell {
		return mark.Mul(one.Sub(offset)), nil
	}
	return mark.Mul(one.Add(offset)), nil
}

// FetchPosition returns open directional positions (CEX) or tracked liquidity positions (chain)
func (d *Driver) FetchPosition(ctx context.Context) ([]core.Position, error) {
	if d.positions == nil {
		return nil, core.Unsupported("fetch position")
	}
	return d.positions.Positions(ctx)
}

// GetPosition is an alias of FetchPosition
func (d *Driver) GetPosition(ctx context.Context) ([]core.Position, error) {
	return d.FetchPosition(ctx)
}

func (d *Driver) FetchBalance(ctx context.Context) (core.Balances, error) {
	if d.balances == nil {
		return nil, core.Unsupported("fetch balance")
	}
	return d.balances.Balances(ctx)
}

// WaitForConfirmation blocks until an on-chain order settles or timeout elapses
func (d *Driver) WaitForConfirmation(ctx context.Context, hash string, timeout time.Duration) (core.Receipt, error) {
	if d.confirmer == nil {
		return core.Receipt{}, core.Unsupported("wait for confirmation")
	}
	rcpt, err := d.confirmer.WaitForConfirmation(ctx, hash, timeout)
	if rcpt.TxHash != "" {
		d.recordTx(hash, "", "", rcpt.Status)
	}
	return rcpt, err
}

// Journal returns the attached journal, or nil
func (d *Driver) Journal() journal.Journal { return d.journal }

// Close releases the venue connection and the journal. Later calls are no-ops.
func (d *Driver) Close() error {
	var errs []error
	for _, fn := range d.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func (d *Driver) symbol(raw string) (string, error) {
	if raw == "" {
		raw = d.defaultSymbol
	}
	if d.symbols == nil {
		if raw == "" {
			return "", core.UnsupportedSymbolf("normalize symbol", "empty symbol")
		}
		return raw, nil
	}
	return d.symbols.NormalizeString(raw)
}

func (d *Driver) recordOrder(action string, o core.Order, id string, err error) {
	if d.journal == nil {
		return
	}
	e := journal.OrderEvent{
		Venue:      d.venue,
		Action:     action,
		OrderID:    id,
		ClientID:   o.ClientID,
		Symbol:     o.Symbol,
		Price:      o.Price,
		Quantity:   o.Quantity,
		ReduceOnly: o.ReduceOnly,
		DryRun:     o.DryRun,
	}
	if action == "place" {
		e.Side = o.Side.String()
		e.Type = o.Type.String()
	}
	if err != nil {
		e.Error = err.Error()
	}
	if jerr := d.journal.RecordOrder(e); jerr != nil {
		d.log.Warnw("journal_write_failed", "action", action, "err", jerr)
	}
}

func (d *Driver) recordTx(hash, label, sym string, status core.TxStatus) {
	if d.journal == nil {
		return
	}
	e := journal.TxEvent{Hash: hash, Venue: d.venue, Label: label, Symbol: sym, Status: status.String()}
	if err := d.journal.RecordTx(e); err != nil {
		d.log.Warnw("journal_write_failed", "hash", hash, "err", err)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
