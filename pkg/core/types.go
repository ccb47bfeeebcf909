package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DrySentinel is returned instead of an order id when an order was built but not sent
const DrySentinel = "soft-simulated"

// Side is the direction of an order
type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide accepts buy/bid/long and sell/ask/short in any case
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "bid", "long", "b":
		return Buy, nil
	case "sell", "ask", "short", "s":
		return Sell, nil
	}
	return 0, Validationf("parse side", "unknown side %q", raw)
}

// OrderType is the closed set of order types understood by every venue
type OrderType uint8

const (
	Limit OrderType = iota
	Market
)

func (t OrderType) String() string {
	if t == Market {
		return "Market"
	}
	return "Limit"
}

// TimeInForce is the closed set of time-in-force policies
type TimeInForce uint8

const (
	GTC TimeInForce = iota
	IOC
	FOK
	PostOnly
)

func (t TimeInForce) String() string {
	switch t {
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	case PostOnly:
		return "PostOnly"
	default:
		return "GTC"
	}
}

type OrderStatus uint8

const (
	StatusNew OrderStatus = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
	StatusExpired
)

func (s OrderStatus) String() string {
	switch s {
	case StatusPartiallyFilled:
		return "PartiallyFilled"
	case StatusFilled:
		return "Filled"
	case StatusCancelled:
		return "Cancelled"
	case StatusRejected:
		return "Rejected"
	case StatusExpired:
		return "Expired"
	default:
		return "New"
	}
}

// Open reports whether the order can still trade
func (s OrderStatus) Open() bool {
	return s == StatusNew || s == StatusPartiallyFilled
}

// ParseOrderStatus maps venue status strings onto OrderStatus. Unknown values read as New.
func ParseOrderStatus(raw string) OrderStatus {
	switch strings.ToLower(strings.ReplaceAll(raw, "_", "")) {
	case "partiallyfilled":
		return StatusPartiallyFilled
	case "filled":
		return StatusFilled
	case "cancelled", "canceled":
		return StatusCancelled
	case "rejected":
		return StatusRejected
	case "expired":
		return StatusExpired
	default:
		return StatusNew
	}
}

// Order is an order as submitted to, or reported by, a venue
type Order struct {
	ID          string
	ClientID    uint32 // 0 = none
	Symbol      string
	Side        Side
	Type        OrderType
	TimeInForce TimeInForce
	Price       decimal.NullDecimal
	Quantity    decimal.Decimal
	Filled      decimal.Decimal
	ReduceOnly  bool
	Status      OrderStatus
	CreatedAt   time.Time
	// DryRun builds and validates the order without sending it
	DryRun bool
}

// Validate checks the invariants every venue relies on
func (o Order) Validate() error {
	if o.Side != Buy && o.Side != Sell {
		return Validationf("validate order", "side is required")
	}
	if !o.Quantity.IsPositive() {
		return Validationf("validate order", "quantity must be positive, got %s", o.Quantity)
	}
	if o.Type == Limit {
		if !o.Price.Valid {
			return Validationf("validate order", "limit order requires a price")
		}
		if !o.Price.Decimal.IsPositive() {
			return Validationf("validate order", "price must be positive, got %s", o.Price.Decimal)
		}
	}
	return nil
}

// Remaining is the unfilled quantity
func (o Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.Filled)
}

func (o Order) String() string {
	px := "MKT"
	if o.Price.Valid {
		px = o.Price.Decimal.String()
	}
	return fmt.Sprintf("%s %s %s %s@%s %s", o.ID, o.Symbol, o.Side, o.Quantity, px, o.Status)
}

// OrderRef identifies an existing order by exactly one of OrderID or ClientID
type OrderRef struct {
	Symbol   string
	OrderID  string
	ClientID uint32
}

func (r OrderRef) Validate() error {
	hasID := r.OrderID != ""
	hasClient := r.ClientID != 0
	switch {
	case !hasID && !hasClient:
		return Validationf("order ref", "order id or client id is required")
	case hasID && hasClient:
		return Validationf("order ref", "order id and client id are mutually exclusive")
	}
	return nil
}

func (r OrderRef) String() string {
	if r.OrderID != "" {
		return r.OrderID
	}
	return fmt.Sprintf("client:%d", r.ClientID)
}

// AmendRequest changes price and/or quantity of an open order
type AmendRequest struct {
	Ref      OrderRef
	Price    decimal.NullDecimal
	Quantity decimal.NullDecimal
}

func (a AmendRequest) Validate() error {
	if err := a.Ref.Validate(); err != nil {
		return err
	}
	if !a.Price.Valid && !a.Quantity.Valid {
		return Validationf("amend", "nothing to amend: price and quantity are both unset")
	}
	if a.Price.Valid && !a.Price.Decimal.IsPositive() {
		return Validationf("amend", "price must be positive, got %s", a.Price.Decimal)
	}
	if a.Quantity.Valid && !a.Quantity.Decimal.IsPositive() {
		return Validationf("amend", "quantity must be positive, got %s", a.Quantity.Decimal)
	}
	return nil
}

// Position is either a directional position (CEX) or a concentrated-liquidity position (chain)
type Position struct {
	Symbol        string
	Size          decimal.Decimal // signed, negative = short
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	UnrealizedPnL decimal.Decimal

	PositionID string
	Token0     string
	Token1     string
	FeeTier    uint32
	TickLower  int32
	TickUpper  int32
	Liquidity  decimal.Decimal
	FeesOwed0  decimal.Decimal
	FeesOwed1  decimal.Decimal
}

type Balance struct {
	Available decimal.Decimal
	Locked    decimal.Decimal
}

func (b Balance) Total() decimal.Decimal { return b.Available.Add(b.Locked) }

// Balances maps asset symbol to balance. Always a fresh snapshot.
type Balances map[string]Balance

type TxStatus uint8

const (
	TxPending TxStatus = iota
	TxSuccess
	TxReverted
)

func (s TxStatus) String() string {
	switch s {
	case TxSuccess:
		return "success"
	case TxReverted:
		return "reverted"
	default:
		return "pending"
	}
}

// Receipt is the observed outcome of a broadcast transaction
type Receipt struct {
	TxHash      string
	Status      TxStatus
	GasUsed     uint64
	BlockNumber uint64
}
