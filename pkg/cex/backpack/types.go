package backpack

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/tradedriver/pkg/core"
)

// Signed instruction names
const (
	InstructionOrderExecute   = "orderExecute"
	InstructionOrderCancel    = "orderCancel"
	InstructionOrderHistory   = "orderHistoryQueryAll"
	InstructionOrderQuery     = "orderQuery"
	InstructionOrderQueryAll  = "orderQueryAll"
	InstructionOrderCancelAll = "orderCancelAll"
	InstructionPositionQuery  = "positionQuery"
	InstructionBalanceQuery   = "balanceQuery"
)

// REST paths
const (
	PathOrder    = "/api/v1/order"
	PathOrders   = "/api/v1/orders"
	PathHistory  = "/wapi/v1/history/orders"
	PathPosition = "/api/v1/position"
	PathCapital  = "/api/v1/capital"
	PathTicker   = "/api/v1/ticker"
	PathMarkets  = "/api/v1/markets"
)

// Request headers
const (
	HeaderAPIKey    = "X-API-Key"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderWindow    = "X-Window"
)

// Order is the venue's order representation
type Order struct {
	ID               string              `json:"id,omitempty"`
	OrderID          string              `json:"orderId,omitempty"`
	ClientID         *uint32             `json:"clientId,omitempty"`
	Symbol           string              `json:"symbol"`
	Side             string              `json:"side"`
	OrderType        string              `json:"orderType"`
	TimeInForce      string              `json:"timeInForce,omitempty"`
	Price            decimal.NullDecimal `json:"price"`
	Quantity         decimal.Decimal     `json:"quantity"`
	ExecutedQuantity decimal.NullDecimal `json:"executedQuantity"`
	Status           string              `json:"status"`
	ReduceOnly       bool                `json:"reduceOnly,omitempty"`
	PostOnly         bool                `json:"postOnly,omitempty"`
	CreatedAt        int64               `json:"createdAt,omitempty"`
}

// Identifier returns id, falling back to orderId
func (o Order) Identifier() string {
	if o.ID != "" {
		return o.ID
	}
	return o.OrderID
}

// Core converts the wire order into the driver model
func (o Order) Core() core.Order {
	out := core.Order{
		ID:         o.Identifier(),
		Symbol:     o.Symbol,
		Side:       ParseSide(o.Side),
		Type:       core.Limit,
		Price:      o.Price,
		Quantity:   o.Quantity,
		Filled:     o.ExecutedQuantity.Decimal,
		ReduceOnly: o.ReduceOnly,
		Status:     core.ParseOrderStatus(o.Status),
	}
	if o.ClientID != nil {
		out.ClientID = *o.ClientID
	}
	if strings.EqualFold(o.OrderType, "Market") {
		out.Type = core.Market
	}
	switch strings.ToUpper(o.TimeInForce) {
	case "IOC":
		out.TimeInForce = core.IOC
	case "FOK":
		out.TimeInForce = core.FOK
	}
	if o.PostOnly {
		out.TimeInForce = core.PostOnly
	}
	if o.CreatedAt > 0 {
		out.CreatedAt = time.UnixMilli(o.CreatedAt)
	}
	return out
}

// EncodeOrder renders a driver order in the venue's wire format
func EncodeOrder(o core.Order) Order {
	out := Order{
		ID:               o.ID,
		Symbol:           o.Symbol,
		Side:             SideString(o.Side),
		OrderType:        o.Type.String(),
		Quantity:         o.Quantity,
		ExecutedQuantity: decimal.NewNullDecimal(o.Filled),
		Status:           o.Status.String(),
		ReduceOnly:       o.ReduceOnly,
	}
	if o.Type == core.Limit {
		out.Price = o.Price
		out.TimeInForce = o.TimeInForce.String()
		if o.TimeInForce == core.PostOnly {
			out.TimeInForce = core.GTC.String()
			out.PostOnly = true
		}
	}
	if o.ClientID != 0 {
		id := o.ClientID
		out.ClientID = &id
	}
	if !o.CreatedAt.IsZero() {
		out.CreatedAt = o.CreatedAt.UnixMilli()
	}
	return out
}

// SideString maps buy/sell to Bid/Ask
func SideString(s core.Side) string {
	if s == core.Sell {
		return "Ask"
	}
	return "Bid"
}

// ParseSide maps Bid/Ask onto core sides
func ParseSide(s string) core.Side {
	if strings.EqualFold(s, "Ask") {
		return core.Sell
	}
	return core.Buy
}

type Position struct {
	Symbol        string          `json:"symbol"`
	NetQuantity   decimal.Decimal `json:"netQuantity"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	MarkPrice     decimal.Decimal `json:"markPrice"`
	PnlUnrealized decimal.Decimal `json:"pnlUnrealized"`
}

func (p Position) Core() core.Position {
	return core.Position{
		Symbol:        p.Symbol,
		Size:          p.NetQuantity,
		EntryPrice:    p.EntryPrice,
		MarkPrice:     p.MarkPrice,
		UnrealizedPnL: p.PnlUnrealized,
	}
}

// Capital is one asset entry of the capital endpoint
type Capital struct {
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
	Staked    decimal.Decimal `json:"staked"`
}

type Ticker struct {
	Symbol    string              `json:"symbol"`
	LastPrice decimal.NullDecimal `json:"lastPrice"`
	Last      decimal.NullDecimal `json:"last"`
	Price     decimal.NullDecimal `json:"price"`
}

// Best returns the first populated price field
func (t Ticker) Best() (decimal.Decimal, bool) {
	for _, p := range []decimal.NullDecimal{t.LastPrice, t.Last, t.Price} {
		if p.Valid {
			return p.Decimal, true
		}
	}
	return decimal.Zero, false
}

type Market struct {
	Symbol      string `json:"symbol"`
	BaseSymbol  string `json:"baseSymbol"`
	QuoteSymbol string `json:"quoteSymbol"`
	MarketType  string `json:"marketType"`
}

// APIError is the venue's error body
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

// NotFound reports whether the venue says the resource does not exist
func (e *APIError) NotFound() bool {
	return e.Status == 404 || e.Code == "RESOURCE_NOT_FOUND" || strings.Contains(strings.ToLower(e.Message), "not found")
}

// SigningParams renders request parameters the way they are signed: booleans as
// true/false, numbers in plain decimal, strings as is.
func SigningParams(params map[string]any) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		switch x := v.(type) {
		case string:
			out[k] = x
		case bool:
			out[k] = strconv.FormatBool(x)
		case uint32:
			out[k] = strconv.FormatUint(uint64(x), 10)
		case int:
			out[k] = strconv.Itoa(x)
		case int64:
			out[k] = strconv.FormatInt(x, 10)
		case json.Number:
			out[k] = x.String()
		case decimal.Decimal:
			out[k] = x.String()
		case fmt.Stringer:
			out[k] = x.String()
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out
}

// sortedKeys is used to keep query strings deterministic
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
