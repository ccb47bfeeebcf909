// Package backpack drives a Backpack-style REST venue: ED25519-signed instructions,
// Bid/Ask sides and BASE_QUOTE[_PERP] symbols.
package backpack

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradedriver/params"
	"github.com/uhyunpark/tradedriver/pkg/core"
	"github.com/uhyunpark/tradedriver/pkg/crypto"
	"github.com/uhyunpark/tradedriver/pkg/util"
)

// historyLimit bounds the order history scanned for a client id lookup
const historyLimit = 100

// Gateway implements order placement, cancellation and account reads.
// Symbols must already be in venue form; an empty symbol means the configured default.
type Gateway struct {
	client        *Client
	defaultSymbol string
	log           *zap.SugaredLogger
}

// NewGateway builds a gateway with credentials from cfg
func NewGateway(cfg params.Backpack, log *zap.SugaredLogger, opts ...ClientOption) (*Gateway, error) {
	var signer *crypto.InstructionSigner
	if cfg.SecretKey != "" {
		s, err := crypto.NewInstructionSigner(cfg.PublicKey, cfg.SecretKey)
		if err != nil {
			return nil, err
		}
		signer = s
	}
	log = util.OrNop(log)
	client, err := NewClient(cfg, signer, append([]ClientOption{WithLogger(log)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Gateway{client: client, defaultSymbol: strings.ToUpper(cfg.Symbol), log: log}, nil
}

func (g *Gateway) symbol(s string) string {
	if s == "" {
		return g.defaultSymbol
	}
	return strings.ToUpper(s)
}

// PriceNow returns the last traded price from the public ticker
func (g *Gateway) PriceNow(ctx context.Context, symbol string) (decimal.Decimal, error) {
	const op = "price now"
	symbol = g.symbol(symbol)
	var t Ticker
	if err := g.client.Public(ctx, op, PathTicker, map[string]string{"symbol": symbol}, &t); err != nil {
		return decimal.Zero, err
	}
	px, ok := t.Best()
	if !ok {
		return decimal.Zero, core.Networkf(op, "ticker for %s has no price", symbol)
	}
	return px, nil
}

// Place submits an order. DryRun returns core.DrySentinel without any request.
func (g *Gateway) Place(ctx context.Context, o core.Order) (string, error) {
	const op = "place order"
	if err := o.Validate(); err != nil {
		return "", err
	}
	o.Symbol = g.symbol(o.Symbol)
	if o.DryRun {
		g.log.Infow("order_dry_run", "symbol", o.Symbol, "side", o.Side, "type", o.Type, "quantity", o.Quantity)
		return core.DrySentinel, nil
	}

	req := map[string]any{
		"symbol":    o.Symbol,
		"side":      SideString(o.Side),
		"orderType": o.Type.String(),
		"quantity":  o.Quantity.String(),
	}
	if o.Type == core.Limit {
		req["price"] = o.Price.Decimal.String()
		req["timeInForce"] = o.TimeInForce.String()
		if o.TimeInForce == core.PostOnly {
			req["timeInForce"] = core.GTC.String()
			req["postOnly"] = true
		}
	}
	if o.ReduceOnly {
		req["reduceOnly"] = true
	}
	if o.ClientID != 0 {
		req["clientId"] = o.ClientID
	}

	var resp Order
	if err := g.client.Private(ctx, op, http.MethodPost, PathOrder, InstructionOrderExecute, req, &resp); err != nil {
		return "", err
	}
	id := resp.Identifier()
	if id == "" {
		return "", core.Networkf(op, "venue acknowledged order without id")
	}
	g.log.Infow("order_placed", "id", id, "symbol", o.Symbol, "side", o.Side, "type", o.Type, "price", o.Price.Decimal, "quantity", o.Quantity)
	return id, nil
}

// Cancel cancels by order id or client id; exactly one must be set
func (g *Gateway) Cancel(ctx context.Context, ref core.OrderRef) (string, error) {
	const op = "cancel order"
	if err := ref.Validate(); err != nil {
		return "", err
	}
	var resp Order
	if err := g.client.Private(ctx, op, http.MethodDelete, PathOrder, InstructionOrderCancel, g.refParams(ref), &resp); err != nil {
		return "", err
	}
	id := resp.Identifier()
	if id == "" {
		id = ref.OrderID
	}
	g.log.Infow("order_cancelled", "id", id, "symbol", g.symbol(ref.Symbol))
	return id, nil
}

// OpenOrder fetches an order that is still working. Missing, empty and closed
// orders are all reported as not found.
func (g *Gateway) OpenOrder(ctx context.Context, ref core.OrderRef) (core.Order, error) {
	const op = "open order"
	o, err := g.queryOrder(ctx, op, ref)
	if err != nil {
		return core.Order{}, err
	}
	if !o.Status.Open() {
		return core.Order{}, core.NotFoundf(op, "order %s not open (status %s)", ref, o.Status)
	}
	return o, nil
}

// Order reads an order in any state. Orders that have left the book are looked up in
// the order history.
func (g *Gateway) Order(ctx context.Context, ref core.OrderRef) (core.Order, error) {
	const op = "order status"
	o, err := g.queryOrder(ctx, op, ref)
	if err == nil || !errors.Is(err, core.ErrNotFound) {
		return o, err
	}

	params := map[string]any{"symbol": g.symbol(ref.Symbol), "limit": historyLimit}
	if ref.OrderID != "" {
		params["orderId"] = ref.OrderID
	}
	var history []Order
	err = g.client.Private(ctx, op, http.MethodGet, PathHistory, InstructionOrderHistory, params, &history)
	if err != nil && !errors.Is(err, errEmptyBody) {
		return core.Order{}, err
	}
	for _, h := range history {
		o := h.Core()
		if (ref.OrderID != "" && o.ID == ref.OrderID) || (ref.OrderID == "" && o.ClientID == ref.ClientID) {
			if o.Symbol == "" {
				o.Symbol = g.symbol(ref.Symbol)
			}
			return o, nil
		}
	}
	return core.Order{}, core.NotFoundf(op, "order %s not found", ref)
}

func (g *Gateway) queryOrder(ctx context.Context, op string, ref core.OrderRef) (core.Order, error) {
	if err := ref.Validate(); err != nil {
		return core.Order{}, err
	}
	var resp Order
	err := g.client.Private(ctx, op, http.MethodGet, PathOrder, InstructionOrderQuery, g.refParams(ref), &resp)
	if errors.Is(err, errEmptyBody) {
		return core.Order{}, core.NotFoundf(op, "order %s not found", ref)
	}
	if err != nil {
		return core.Order{}, err
	}
	o := resp.Core()
	if o.ID == "" {
		return core.Order{}, core.NotFoundf(op, "order %s not found", ref)
	}
	if o.Symbol == "" {
		o.Symbol = g.symbol(ref.Symbol)
	}
	return o, nil
}

// OpenOrders returns ids of working orders on symbol
func (g *Gateway) OpenOrders(ctx context.Context, symbol string) ([]string, error) {
	orders, err := g.OpenOrderList(ctx, symbol)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		if o.ID != "" {
			ids = append(ids, o.ID)
		}
	}
	return ids, nil
}

// OpenOrderList returns working orders on symbol with full detail
func (g *Gateway) OpenOrderList(ctx context.Context, symbol string) ([]core.Order, error) {
	const op = "open orders"
	var resp []Order
	req := map[string]any{"symbol": g.symbol(symbol)}
	if err := g.client.Private(ctx, op, http.MethodGet, PathOrders, InstructionOrderQueryAll, req, &resp); err != nil {
		if errors.Is(err, errEmptyBody) {
			return []core.Order{}, nil
		}
		return nil, err
	}
	out := make([]core.Order, 0, len(resp))
	for _, o := range resp {
		out = append(out, o.Core())
	}
	return out, nil
}

// CancelAll cancels every working order on symbol and returns their ids
func (g *Gateway) CancelAll(ctx context.Context, symbol string) ([]string, error) {
	const op = "cancel all"
	var resp []Order
	req := map[string]any{"symbol": g.symbol(symbol)}
	if err := g.client.Private(ctx, op, http.MethodDelete, PathOrders, InstructionOrderCancelAll, req, &resp); err != nil {
		if errors.Is(err, errEmptyBody) {
			return []string{}, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(resp))
	for _, o := range resp {
		ids = append(ids, o.Identifier())
	}
	g.log.Infow("orders_cancelled", "symbol", g.symbol(symbol), "count", len(ids))
	return ids, nil
}

// Positions lists open perpetual positions; spot-only accounts get an empty list
func (g *Gateway) Positions(ctx context.Context) ([]core.Position, error) {
	const op = "positions"
	var resp []Position
	if err := g.client.Private(ctx, op, http.MethodGet, PathPosition, InstructionPositionQuery, nil, &resp); err != nil {
		if errors.Is(err, errEmptyBody) || errors.Is(err, core.ErrNotFound) {
			return []core.Position{}, nil
		}
		return nil, err
	}
	out := make([]core.Position, 0, len(resp))
	for _, p := range resp {
		if !p.NetQuantity.IsZero() {
			out = append(out, p.Core())
		}
	}
	return out, nil
}

// Balances reads the capital endpoint
func (g *Gateway) Balances(ctx context.Context) (core.Balances, error) {
	const op = "balances"
	var resp map[string]Capital
	if err := g.client.Private(ctx, op, http.MethodGet, PathCapital, InstructionBalanceQuery, nil, &resp); err != nil {
		return nil, err
	}
	out := make(core.Balances, len(resp))
	for asset, c := range resp {
		out[strings.ToUpper(asset)] = core.Balance{Available: c.Available, Locked: c.Locked}
	}
	return out, nil
}

// Markets lists tradable symbols, sorted
func (g *Gateway) Markets(ctx context.Context) ([]string, error) {
	var resp []Market
	if err := g.client.Public(ctx, "markets", PathMarkets, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp))
	for _, m := range resp {
		out = append(out, m.Symbol)
	}
	sort.Strings(out)
	return out, nil
}

func (g *Gateway) refParams(ref core.OrderRef) map[string]any {
	p := map[string]any{"symbol": g.symbol(ref.Symbol)}
	if ref.OrderID != "" {
		p["orderId"] = ref.OrderID
	} else {
		p["clientId"] = ref.ClientID
	}
	return p
}
