package driver

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/tradedriver/pkg/core"
)

type orderArgs struct {
	price      decimal.NullDecimal
	orderType  any
	tif        any
	clientID   uint32
	reduceOnly bool
	dryRun     bool
}

// OrderOption tunes a Buy or Sell
type OrderOption func(*orderArgs)

// Price sets the limit price
func Price(p decimal.Decimal) OrderOption {
	return func(s *orderArgs) { s.price = decimal.NewNullDecimal(p) }
}

// Type accepts anything orderparam.OrderType understands: "limit", "MARKET", core.Limit...
func Type(v any) OrderOption { return func(s *orderArgs) { s.orderType = v } }

// TIF accepts anything orderparam.TimeInForce understands: "gtc", "post-only", core.IOC...
func TIF(v any) OrderOption { return func(s *orderArgs) { s.tif = v } }

func ClientID(id uint32) OrderOption { return func(s *orderArgs) { s.clientID = id } }

func ReduceOnly() OrderOption { return func(s *orderArgs) { s.reduceOnly = true } }

// Soft validates and builds the order without sending it; the venue returns core.DrySentinel
func Soft() OrderOption { return func(s *orderArgs) { s.dryRun = true } }

// DefaultCloseOffset is the limit-close distance from the mark, as a fraction
var DefaultCloseOffset = decimal.RequireFromString("0.0005")

type closeArgs struct {
	limit  bool
	offset decimal.Decimal
	side   core.Side
	pnl    int
}

func (a closeArgs) matches(p core.Position) bool {
	switch {
	case a.side == core.Buy && !p.Size.IsPositive():
		return false
	case a.side == core.Sell && !p.Size.IsNegative():
		return false
	case a.pnl > 0 && !p.UnrealizedPnL.IsPositive():
		return false
	case a.pnl < 0 && !p.UnrealizedPnL.IsNegative():
		return false
	}
	return true
}

// CloseOption tunes CloseAllPositions
type CloseOption func(*closeArgs)

// CloseAtLimit closes with limit orders offset from the mark: below it for sells and
// above it for buys. A zero offset uses DefaultCloseOffset.
func CloseAtLimit(offset decimal.Decimal) CloseOption {
	return func(a *closeArgs) {
		a.limit = true
		a.offset = offset
		if offset.IsZero() {
			a.offset = DefaultCloseOffset
		}
	}
}

// OnlyLongs restricts the sweep to long positions
func OnlyLongs() CloseOption { return func(a *closeArgs) { a.side = core.Buy } }

// OnlyShorts restricts the sweep to short positions
func OnlyShorts() CloseOption { return func(a *closeArgs) { a.side = core.Sell } }

// OnlyWinners keeps positions with positive unrealized pnl when true, negative when false
func OnlyWinners(good bool) CloseOption {
	return func(a *closeArgs) {
		a.pnl = -1
		if good {
			a.pnl = 1
		}
	}
}
