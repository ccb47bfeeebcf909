package driver_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/tradedriver/params"
	"github.com/uhyunpark/tradedriver/pkg/cex/backpack"
	"github.com/uhyunpark/tradedriver/pkg/chain"
	"github.com/uhyunpark/tradedriver/pkg/chain/chaintest"
	"github.com/uhyunpark/tradedriver/pkg/core"
	"github.com/uhyunpark/tradedriver/pkg/crypto"
	"github.com/uhyunpark/tradedriver/pkg/driver"
	"github.com/uhyunpark/tradedriver/pkg/journal"
	"github.com/uhyunpark/tradedriver/pkg/paper"
	"github.com/uhyunpark/tradedriver/pkg/sandbox"
	"github.com/uhyunpark/tradedriver/pkg/symbol"
	"github.com/uhyunpark/tradedriver/pkg/util"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nd(s string) decimal.NullDecimal { return decimal.NewNullDecimal(d(s)) }

func cexSymbols(t *testing.T) *symbol.Normalizer {
	t.Helper()
	n, err := symbol.NewNormalizer(symbol.Options{Style: symbol.StyleBackpack, DefaultQuote: "USDC", DefaultBase: "ETH"})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

type backpackHarness struct {
	drv   *driver.Driver
	srv   *sandbox.Server
	venue *paper.Venue
	log   *journal.MemoryJournal
}

// newBackpack wires a driver to a Backpack gateway talking to a sandbox over HTTP
func newBackpack(t *testing.T) *backpackHarness {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	venue := paper.New()
	venue.SetPrice("ETH_USDC", d("123.45"))
	venue.Deposit("USDC", d("10000"))

	srv := sandbox.NewServer(venue, sandbox.WithAPIKey(pub))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := params.Default().Backpack
	cfg.BaseURL = ts.URL
	cfg.PublicKey = base64.StdEncoding.EncodeToString(pub)
	cfg.SecretKey = base64.StdEncoding.EncodeToString(priv.Seed())
	cfg.RateLimit = 0
	gw, err := backpack.NewGateway(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	j := journal.NewMemory()
	drv := driver.New("backpack", gw, cexSymbols(t), driver.WithJournal(j), driver.WithDefaultSymbol("ETH_USDC"))
	return &backpackHarness{drv: drv, srv: srv, venue: venue, log: j}
}

var (
	weth = common.HexToAddress("0x4200000000000000000000000000000000000006")
	usdc = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	npm  = common.HexToAddress("0x03a520b32C04BF3bEEf7BEb72E919cf822Ed34f1")
	e12  = big.NewInt(1_000_000_000_000)
)

func quoteAt2000(in, _ common.Address, amount *big.Int) *big.Int {
	out := new(big.Int)
	if in == weth {
		out.Mul(amount, big.NewInt(2000))
		return out.Div(out, e12)
	}
	out.Mul(amount, e12)
	return out.Div(out, big.NewInt(2000))
}

type chainHarness struct {
	drv    *driver.Driver
	be     *chaintest.Backend
	wallet common.Address
	log    *journal.MemoryJournal
}

func newChain(t *testing.T) *chainHarness {
	t.Helper()
	cfg := params.Default().Chain
	cfg.ConfirmTimeout = 2 * time.Second
	w, err := crypto.GenerateWallet()
	if err != nil {
		t.Fatal(err)
	}
	be := chaintest.New(cfg.ChainID, npm, weth, quoteAt2000)
	syms := params.Default().Symbols
	gw, err := chain.NewGateway(context.Background(), be, cfg, syms,
		chain.WithWallet(w),
		chain.WithClock(util.FixedClock{T: time.Unix(1_700_000_000, 0)}),
		chain.WithTxOptions(chain.WithPollInterval(time.Millisecond, 5*time.Millisecond)),
	)
	if err != nil {
		t.Fatal(err)
	}
	norm, err := symbol.NewNormalizer(symbol.Options{
		Style: symbol.StyleChain, DefaultQuote: syms.DefaultQuote, DefaultBase: syms.DefaultBase, Registry: gw.Registry(),
	})
	if err != nil {
		t.Fatal(err)
	}
	j := journal.NewMemory()
	drv := driver.New("base", gw, norm, driver.WithJournal(j), driver.WithDefaultSymbol("ETH-USDC"))
	return &chainHarness{drv: drv, be: be, wallet: w.Address(), log: j}
}

func TestPlaceLimitReturnsVenueID(t *testing.T) {
	h := newBackpack(t)
	id, err := h.drv.Buy(context.Background(), "eth/usdc", d("1"),
		driver.Price(d("100")), driver.Type("limit"), driver.TIF("gtc"))
	if err != nil {
		t.Fatalf("Buy() error = %v", err)
	}
	if id == "" {
		t.Fatal("Buy() returned empty id")
	}
	o, err := h.venue.OpenOrder(context.Background(), core.OrderRef{OrderID: id})
	if err != nil {
		t.Fatalf("order %s not resting: %v", id, err)
	}
	if o.Symbol != "ETH_USDC" || o.Type != core.Limit || o.TimeInForce != core.GTC || !o.Price.Decimal.Equal(d("100")) {
		t.Errorf("resting order = %+v", o)
	}
}

func TestAmendMissingOrderIsNotFound(t *testing.T) {
	h := newBackpack(t)
	id, err := h.drv.AmendOrder(context.Background(), core.OrderRef{OrderID: "does-not-exist"}, nd("101"), decimal.NullDecimal{})
	if id != "" || !errors.Is(err, core.ErrNotFound) {
		t.Errorf("AmendOrder() = %q, %v, want not found", id, err)
	}
}

func TestGetPriceNowDefaultSymbol(t *testing.T) {
	h := newBackpack(t)
	px, err := h.drv.GetPriceNow(context.Background(), "")
	if err != nil {
		t.Fatalf("GetPriceNow() error = %v", err)
	}
	if !px.Equal(d("123.45")) {
		t.Errorf("GetPriceNow() = %s, want 123.45", px)
	}
}

func TestChainSwapWithoutFundsSendsNothing(t *testing.T) {
	h := newChain(t)
	hash, err := h.drv.Buy(context.Background(), "eth-usdc", d("100"), driver.Type("market"))
	if hash != "" || !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("Buy() = %q, %v, want insufficient balance", hash, err)
	}
	if sent := h.be.Sent(); len(sent) != 0 {
		t.Errorf("sent %d transactions, want none", len(sent))
	}
	if txs, _ := h.log.Txs(); len(txs) != 0 {
		t.Errorf("journaled txs = %+v", txs)
	}
}

func TestChainSwapConfirms(t *testing.T) {
	ctx := context.Background()
	h := newChain(t)
	h.be.SetNative(h.wallet, new(big.Int).Mul(big.NewInt(1), big.NewInt(1e18)))
	h.be.SetTokenBalance(usdc, h.wallet, big.NewInt(5_000_000_000))

	hash, err := h.drv.Buy(ctx, "eth", d("1000"), driver.Type("market"))
	if err != nil {
		t.Fatalf("Buy() error = %v", err)
	}
	if tx, ok, _ := h.log.Tx(hash); !ok || tx.Status != core.TxPending.String() || tx.Symbol != "WETH-USDC" {
		t.Errorf("journaled tx = %+v, %v", tx, ok)
	}

	rcpt, err := h.drv.WaitForConfirmation(ctx, hash, 0)
	if err != nil || rcpt.Status != core.TxSuccess {
		t.Fatalf("WaitForConfirmation() = %+v, %v", rcpt, err)
	}
	if tx, _, _ := h.log.Tx(hash); tx.Status != core.TxSuccess.String() || tx.Label != "swap" {
		t.Errorf("journaled tx after confirm = %+v", tx)
	}
}

func TestAmendEmulatedReplacesOrder(t *testing.T) {
	ctx := context.Background()
	h := newBackpack(t)
	id, err := h.drv.Buy(ctx, "ETH_USDC", d("2"), driver.Price(d("100")))
	if err != nil {
		t.Fatal(err)
	}

	newID, err := h.drv.AmendOrder(ctx, core.OrderRef{OrderID: id, Symbol: "eth-usdc"}, nd("105"), decimal.NullDecimal{})
	if err != nil {
		t.Fatalf("AmendOrder() error = %v", err)
	}
	if newID == "" || newID == id {
		t.Fatalf("AmendOrder() = %q, want a replacement id", newID)
	}
	if _, err := h.venue.OpenOrder(ctx, core.OrderRef{OrderID: id}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("original still open: %v", err)
	}
	o, err := h.venue.OpenOrder(ctx, core.OrderRef{OrderID: newID})
	if err != nil {
		t.Fatalf("replacement not open: %v", err)
	}
	if !o.Price.Decimal.Equal(d("105")) || !o.Quantity.Equal(d("2")) || o.Side != core.Buy {
		t.Errorf("replacement = %+v", o)
	}
}

func TestAmendNativeKeepsID(t *testing.T) {
	ctx := context.Background()
	venue := paper.New()
	venue.SetPrice("ETH_USDC", d("123.45"))
	venue.Deposit("USDC", d("10000"))
	drv := driver.New("paper", venue, cexSymbols(t))

	id, err := drv.Buy(ctx, "ETH_USDC", d("1"), driver.Price(d("100")))
	if err != nil {
		t.Fatal(err)
	}
	got, err := drv.AmendOrder(ctx, core.OrderRef{OrderID: id}, decimal.NullDecimal{}, nd("3"))
	if err != nil || got != id {
		t.Fatalf("AmendOrder() = %q, %v, want %q", got, err, id)
	}
	o, _ := venue.OpenOrder(ctx, core.OrderRef{OrderID: id})
	if !o.Quantity.Equal(d("3")) {
		t.Errorf("quantity = %s, want 3", o.Quantity)
	}
}

func TestSoftOrderNeverReachesVenue(t *testing.T) {
	h := newBackpack(t)
	before := h.srv.Requests()
	id, err := h.drv.Sell(context.Background(), "ETH_USDC", d("1"), driver.Price(d("200")), driver.Soft())
	if err != nil || id != core.DrySentinel {
		t.Fatalf("Sell(soft) = %q, %v", id, err)
	}
	if got := h.srv.Requests(); got != before {
		t.Errorf("sandbox saw %d requests, want none", got-before)
	}
	events, _ := h.log.Orders("backpack", 0)
	if len(events) != 1 || !events[0].DryRun || events[0].OrderID != core.DrySentinel {
		t.Errorf("journal = %+v", events)
	}
}

func TestOrderValidation(t *testing.T) {
	ctx := context.Background()
	h := newBackpack(t)
	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"zero size", func() error {
			_, err := h.drv.Buy(ctx, "ETH_USDC", decimal.Zero, driver.Type("market"))
			return err
		}, core.ErrValidation},
		{"no price and no type", func() error { _, err := h.drv.Buy(ctx, "ETH_USDC", d("1")); return err }, core.ErrValidation},
		{"status without ids", func() error { _, err := h.drv.GetOrderStatus(ctx, core.OrderRef{}); return err }, core.ErrValidation},
		{"close offset out of range", func() error {
			_, err := h.drv.CloseAllPositions(ctx, "", driver.CloseAtLimit(d("1.5")))
			return err
		}, core.ErrValidation},
		{"bad symbol", func() error { _, err := h.drv.Buy(ctx, "ETH/USDC/X/Y", d("1")); return err }, core.ErrUnsupportedSymbol},
		{"revoke without ids", func() error { _, err := h.drv.RevokeOrder(ctx, core.OrderRef{}); return err }, core.ErrValidation},
		{"amend nothing", func() error {
			_, err := h.drv.AmendOrder(ctx, core.OrderRef{OrderID: "1"}, decimal.NullDecimal{}, decimal.NullDecimal{})
			return err
		}, core.ErrValidation},
	}
	before := h.srv.Requests()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
	if got := h.srv.Requests(); got != before {
		t.Errorf("invalid calls sent %d requests", got-before)
	}
}

func TestRevokeAndCancelAll(t *testing.T) {
	ctx := context.Background()
	h := newBackpack(t)
	first, _ := h.drv.Buy(ctx, "", d("1"), driver.Price(d("100")), driver.ClientID(7))
	second, _ := h.drv.Buy(ctx, "", d("1"), driver.Price(d("99")))

	if id, err := h.drv.RevokeOrder(ctx, core.OrderRef{ClientID: 7, Symbol: "ETH_USDC"}); err != nil || id != first {
		t.Fatalf("RevokeOrder(client 7) = %q, %v, want %q", id, err, first)
	}
	open, err := h.drv.GetOpenOrders(ctx, "eth_usdc")
	if err != nil || !reflect.DeepEqual(open, []string{second}) {
		t.Fatalf("GetOpenOrders() = %v, %v", open, err)
	}
	ids, err := h.drv.CancelAll(ctx, "ETH_USDC")
	if err != nil || !reflect.DeepEqual(ids, []string{second}) {
		t.Errorf("CancelAll() = %v, %v", ids, err)
	}
}

func TestCapabilities(t *testing.T) {
	bp := newBackpack(t)
	ch := newChain(t)
	pp := driver.New("paper", paper.New(), cexSymbols(t))

	tests := []struct {
		drv  *driver.Driver
		want []string
	}{
		{bp.drv, []string{"amend", "balances", "cancel", "cancel_all", "order_status", "place", "positions", "quote"}},
		{ch.drv, []string{"balances", "confirm", "place", "positions", "quote"}},
		{pp, []string{"amend", "balances", "cancel", "cancel_all", "order_status", "place", "positions", "quote"}},
	}
	for _, tt := range tests {
		if got := tt.drv.Capabilities(); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s Capabilities() = %v, want %v", tt.drv.Venue(), got, tt.want)
		}
	}
}

func TestChainUnsupportedOperations(t *testing.T) {
	ctx := context.Background()
	h := newChain(t)
	calls := map[string]func() error{
		"amend": func() error {
			_, err := h.drv.AmendOrder(ctx, core.OrderRef{OrderID: "0x01"}, nd("1"), decimal.NullDecimal{})
			return err
		},
		"revoke":      func() error { _, err := h.drv.RevokeOrder(ctx, core.OrderRef{OrderID: "0x01"}); return err },
		"cancel all":  func() error { _, err := h.drv.CancelAll(ctx, ""); return err },
		"open orders": func() error { _, err := h.drv.GetOpenOrders(ctx, ""); return err },
		"reduce only": func() error {
			_, err := h.drv.Sell(ctx, "", d("1"), driver.Type("market"), driver.ReduceOnly())
			return err
		},
		"order status": func() error { _, err := h.drv.GetOrderStatus(ctx, core.OrderRef{OrderID: "0x01"}); return err },
		"close all":    func() error { _, err := h.drv.CloseAllPositions(ctx, ""); return err },
	}
	for name, call := range calls {
		err := call()
		if !errors.Is(err, core.ErrUnsupported) || !errors.Is(err, core.ErrValidation) {
			t.Errorf("%s error = %v, want unsupported", name, err)
		}
	}
	if len(h.be.Sent()) != 0 {
		t.Error("unsupported calls sent transactions")
	}
}

func TestWaitForConfirmationUnsupportedOnCex(t *testing.T) {
	h := newBackpack(t)
	if _, err := h.drv.WaitForConfirmation(context.Background(), "0xabc", time.Second); !errors.Is(err, core.ErrUnsupported) {
		t.Errorf("WaitForConfirmation() error = %v", err)
	}
}

func TestBalancesAndPositions(t *testing.T) {
	ctx := context.Background()
	h := newBackpack(t)
	bal, err := h.drv.FetchBalance(ctx)
	if err != nil {
		t.Fatalf("FetchBalance() error = %v", err)
	}
	if !bal["USDC"].Available.Equal(d("10000")) {
		t.Errorf("USDC = %+v", bal["USDC"])
	}
	pos, err := h.drv.GetPosition(ctx)
	if err != nil || len(pos) != 0 {
		t.Errorf("GetPosition() = %+v, %v", pos, err)
	}
}

func TestJournalRecordsFailures(t *testing.T) {
	h := newBackpack(t)
	if _, err := h.drv.Buy(context.Background(), "SOL_USDC", d("1"), driver.Price(d("10"))); err == nil {
		t.Fatal("Buy() on unknown market succeeded")
	}
	events, _ := h.log.Orders("backpack", 0)
	if len(events) != 1 || events[0].Error == "" || events[0].Side != "buy" || events[0].Type != "Limit" {
		t.Errorf("journal = %+v", events)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	cfg := params.Default()

	if _, err := driver.Open(ctx, cfg, "kraken", nil); !errors.Is(err, core.ErrValidation) {
		t.Errorf("Open(kraken) error = %v", err)
	}
	if _, err := driver.Open(ctx, cfg, "backpack", nil); !errors.Is(err, core.ErrValidation) {
		t.Errorf("Open(backpack) without keys error = %v", err)
	}
	if _, err := driver.Open(ctx, cfg, "base", nil); !errors.Is(err, core.ErrValidation) {
		t.Errorf("Open(base) without key error = %v", err)
	}

	cfg.JournalPath = filepath.Join(t.TempDir(), "journal")
	drv, err := driver.Open(ctx, cfg, " Paper ", nil)
	if err != nil {
		t.Fatalf("Open(paper) error = %v", err)
	}
	if drv.Venue() != "paper" {
		t.Errorf("Venue() = %q", drv.Venue())
	}
	if _, err := drv.GetPriceNow(ctx, ""); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetPriceNow() on empty paper venue error = %v", err)
	}
	if err := drv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func perpVenue(t *testing.T) *paper.Venue {
	t.Helper()
	ctx := context.Background()
	v := paper.New()
	v.SetPrice("ETH_USDC_PERP", d("3000"))
	v.SetPrice("SOL_USDC_PERP", d("100"))
	for _, o := range []core.Order{
		{Symbol: "ETH_USDC_PERP", Side: core.Buy, Type: core.Market, Quantity: d("2")},
		{Symbol: "SOL_USDC_PERP", Side: core.Sell, Type: core.Market, Quantity: d("5")},
	} {
		if _, err := v.Place(ctx, o); err != nil {
			t.Fatal(err)
		}
	}
	v.SetPrice("ETH_USDC_PERP", d("3100"))
	v.SetPrice("SOL_USDC_PERP", d("110"))
	return v
}

func TestCloseAllPositionsPaper(t *testing.T) {
	ctx := context.Background()

	t.Run("filters", func(t *testing.T) {
		v := perpVenue(t)
		drv := driver.New("paper", v, cexSymbols(t))
		tests := []struct {
			name string
			sym  string
			opts []driver.CloseOption
			want int
		}{
			{"other symbol", "BTC_USDC_PERP", nil, 0},
			{"winning shorts", "", []driver.CloseOption{driver.OnlyShorts(), driver.OnlyWinners(true)}, 0},
			{"losing", "", []driver.CloseOption{driver.OnlyWinners(false)}, 1},
		}
		for _, tt := range tests {
			ids, err := drv.CloseAllPositions(ctx, tt.sym, tt.opts...)
			if err != nil || len(ids) != tt.want {
				t.Errorf("%s: CloseAllPositions() = %v, %v, want %d orders", tt.name, ids, err, tt.want)
			}
		}
		pos, _ := drv.GetPosition(ctx)
		if len(pos) != 1 || pos[0].Symbol != "ETH_USDC_PERP" {
			t.Errorf("positions after closing losers = %+v", pos)
		}
	})

	t.Run("market", func(t *testing.T) {
		v := perpVenue(t)
		drv := driver.New("paper", v, cexSymbols(t))
		ids, err := drv.CloseAllPositions(ctx, "")
		if err != nil || len(ids) != 2 {
			t.Fatalf("CloseAllPositions() = %v, %v", ids, err)
		}
		if pos, _ := drv.GetPosition(ctx); len(pos) != 0 {
			t.Errorf("positions after close = %+v", pos)
		}
		wantSide := map[string]core.Side{"ETH_USDC_PERP": core.Sell, "SOL_USDC_PERP": core.Buy}
		wantQty := map[string]string{"ETH_USDC_PERP": "2", "SOL_USDC_PERP": "5"}
		for _, id := range ids {
			o, err := drv.GetOrderStatus(ctx, core.OrderRef{OrderID: id})
			if err != nil {
				t.Fatalf("GetOrderStatus(%s) error = %v", id, err)
			}
			if o.Status != core.StatusFilled || !o.ReduceOnly || o.Type != core.Market ||
				o.Side != wantSide[o.Symbol] || !o.Quantity.Equal(d(wantQty[o.Symbol])) {
				t.Errorf("closing order = %+v", o)
			}
		}
		if ids, err := drv.CloseAllPositions(ctx, ""); err != nil || len(ids) != 0 {
			t.Errorf("second sweep = %v, %v, want nothing to close", ids, err)
		}
	})
}

func TestCloseAllPositionsAtLimitOverSandbox(t *testing.T) {
	ctx := context.Background()
	h := newBackpack(t)
	h.venue.SetPrice("ETH_USDC_PERP", d("3000"))
	if _, err := h.venue.Place(ctx, core.Order{Symbol: "ETH_USDC_PERP", Side: core.Buy, Type: core.Market, Quantity: d("2")}); err != nil {
		t.Fatal(err)
	}

	ids, err := h.drv.CloseAllPositions(ctx, "eth-usdc-perp", driver.CloseAtLimit(decimal.Zero), driver.OnlyLongs())
	if err != nil || len(ids) != 1 {
		t.Fatalf("CloseAllPositions() = %v, %v", ids, err)
	}
	o, err := h.drv.GetOrderStatus(ctx, core.OrderRef{OrderID: ids[0], Symbol: "ETH_USDC_PERP"})
	if err != nil {
		t.Fatalf("GetOrderStatus() error = %v", err)
	}
	if o.Side != core.Sell || o.Type != core.Limit || !o.ReduceOnly || !o.Price.Decimal.Equal(d("2998.5")) || o.Status != core.StatusFilled {
		t.Errorf("closing order = %+v, want filled reduce-only sell limit at 2998.5", o)
	}
	if pos, _ := h.drv.GetPosition(ctx); len(pos) != 0 {
		t.Errorf("positions after close = %+v", pos)
	}
	events, _ := h.log.Orders("backpack", 0)
	if len(events) != 1 || !events[0].ReduceOnly || events[0].Side != "sell" {
		t.Errorf("journal = %+v", events)
	}
}

func TestGetOrderStatusAfterCancel(t *testing.T) {
	ctx := context.Background()
	h := newBackpack(t)
	id, err := h.drv.Buy(ctx, "", d("1"), driver.Price(d("100")), driver.ClientID(11))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.drv.RevokeOrder(ctx, core.OrderRef{OrderID: id}); err != nil {
		t.Fatal(err)
	}
	o, err := h.drv.GetOrderStatus(ctx, core.OrderRef{ClientID: 11, Symbol: "eth/usdc"})
	if err != nil {
		t.Fatalf("GetOrderStatus() error = %v", err)
	}
	if o.ID != id || o.Status != core.StatusCancelled {
		t.Errorf("GetOrderStatus() = %+v, want cancelled %s", o, id)
	}
	if _, err := h.drv.GetOrderStatus(ctx, core.OrderRef{OrderID: "nope"}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetOrderStatus(nope) error = %v", err)
	}
}

func TestOpenReleasesOnJournalFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := params.Default()
	cfg.JournalPath = path
	if drv, err := driver.Open(context.Background(), cfg, "paper", nil); !errors.Is(err, core.ErrValidation) {
		t.Errorf("Open() = %v, %v, want validation error", drv, err)
	}
}
