package driver

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/tradedriver/pkg/cex/backpack"
	"github.com/uhyunpark/tradedriver/pkg/chain"
	"github.com/uhyunpark/tradedriver/pkg/core"
	"github.com/uhyunpark/tradedriver/pkg/paper"
)

// Quotable venues report a last or quoted price
type Quotable interface {
	PriceNow(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// OrderPlacer venues accept new orders
type OrderPlacer interface {
	Place(ctx context.Context, o core.Order) (string, error)
}

// OrderMutable venues keep resting orders that can be read and cancelled
type OrderMutable interface {
	OrderPlacer
	Cancel(ctx context.Context, ref core.OrderRef) (string, error)
	OpenOrder(ctx context.Context, ref core.OrderRef) (core.Order, error)
	OpenOrders(ctx context.Context, symbol string) ([]string, error)
}

// OrderStatusReader venues look up orders after they leave the book
type OrderStatusReader interface {
	Order(ctx context.Context, ref core.OrderRef) (core.Order, error)
}

// NativeAmender venues change an order in place
type NativeAmender interface {
	Amend(ctx context.Context, req core.AmendRequest) (string, error)
}

type BulkCanceller interface {
	CancelAll(ctx context.Context, symbol string) ([]string, error)
}

type PositionReadable interface {
	Positions(ctx context.Context) ([]core.Position, error)
}

type BalanceReadable interface {
	Balances(ctx context.Context) (core.Balances, error)
}

// TxConfirmer venues settle asynchronously and expose receipt waiting
type TxConfirmer interface {
	WaitForConfirmation(ctx context.Context, hash string, timeout time.Duration) (core.Receipt, error)
}

var (
	_ OrderMutable      = (*backpack.Gateway)(nil)
	_ OrderStatusReader = (*backpack.Gateway)(nil)
	_ BulkCanceller     = (*backpack.Gateway)(nil)
	_ PositionReadable  = (*backpack.Gateway)(nil)
	_ BalanceReadable   = (*backpack.Gateway)(nil)
	_ Quotable          = (*backpack.Gateway)(nil)

	_ OrderMutable      = (*paper.Venue)(nil)
	_ OrderStatusReader = (*paper.Venue)(nil)
	_ NativeAmender     = (*paper.Venue)(nil)
	_ BulkCanceller     = (*paper.Venue)(nil)

	_ OrderPlacer      = (*chain.Gateway)(nil)
	_ Quotable         = (*chain.Gateway)(nil)
	_ PositionReadable = (*chain.Gateway)(nil)
	_ BalanceReadable  = (*chain.Gateway)(nil)
	_ TxConfirmer      = (*chain.Gateway)(nil)
)
