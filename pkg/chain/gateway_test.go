package chain_test

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/tradedriver/params"
	"github.com/uhyunpark/tradedriver/pkg/chain"
	"github.com/uhyunpark/tradedriver/pkg/chain/chaintest"
	"github.com/uhyunpark/tradedriver/pkg/chain/contracts"
	"github.com/uhyunpark/tradedriver/pkg/core"
	"github.com/uhyunpark/tradedriver/pkg/crypto"
	"github.com/uhyunpark/tradedriver/pkg/util"
)

var (
	usdc   = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	weth   = common.HexToAddress("0x4200000000000000000000000000000000000006")
	router = common.HexToAddress("0x2626664c2603336E57B271c5C0b26F421741e481")
	npm    = common.HexToAddress("0x03a520b32C04BF3bEEf7BEb72E919cf822Ed34f1")

	now = time.Unix(1_700_000_000, 0)
	e12 = big.NewInt(1_000_000_000_000)
)

// quoteAt2000 prices WETH at 2000 USDC in both directions
func quoteAt2000(in, _ common.Address, amount *big.Int) *big.Int {
	out := new(big.Int)
	if in == weth {
		out.Mul(amount, big.NewInt(2000))
		return out.Div(out, e12)
	}
	out.Mul(amount, e12)
	return out.Div(out, big.NewInt(2000))
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func units(s string, decimals int32) *big.Int { return d(s).Shift(decimals).BigInt() }

type harness struct {
	gw     *chain.Gateway
	be     *chaintest.Backend
	wallet common.Address
}

func newHarness(t *testing.T, mutate func(*params.Chain)) *harness {
	t.Helper()
	cfg := params.Default().Chain
	cfg.ConfirmTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	w, err := crypto.GenerateWallet()
	if err != nil {
		t.Fatal(err)
	}
	be := chaintest.New(cfg.ChainID, npm, weth, quoteAt2000)
	gw, err := chain.NewGateway(context.Background(), be, cfg, params.Default().Symbols,
		chain.WithWallet(w),
		chain.WithClock(util.FixedClock{T: now}),
		chain.WithTxOptions(chain.WithPollInterval(time.Millisecond, 5*time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	return &harness{gw: gw, be: be, wallet: w.Address()}
}

// swapParams decodes the exactInputSingle struct out of a router02 multicall
func swapParams(t *testing.T, tx chaintest.SentTx) (contracts.ExactInputSingleParams02, *big.Int) {
	t.Helper()
	if tx.Method != "multicall" {
		t.Fatalf("method = %s, want multicall", tx.Method)
	}
	deadline := tx.Args[0].(*big.Int)
	inner := tx.Args[1].([][]byte)
	if len(inner) != 1 {
		t.Fatalf("multicall carries %d calls, want 1", len(inner))
	}
	m, args, err := contracts.MethodByData(inner[0])
	if err != nil || m.Name != "exactInputSingle" {
		t.Fatalf("inner call = %v, %v", m, err)
	}
	p := abi.ConvertType(args[0], new(contracts.ExactInputSingleParams02)).(*contracts.ExactInputSingleParams02)
	return *p, deadline
}

func TestPriceNow(t *testing.T) {
	h := newHarness(t, nil)
	for _, pair := range []string{"ETH-USDC", "weth/usdc", "eth"} {
		px, err := h.gw.PriceNow(context.Background(), pair)
		if err != nil {
			t.Fatalf("PriceNow(%q) error = %v", pair, err)
		}
		if !px.Equal(d("2000")) {
			t.Errorf("PriceNow(%q) = %s, want 2000", pair, px)
		}
	}
	if len(h.be.Sent()) != 0 {
		t.Error("quotes must not broadcast")
	}
}

func TestSwapBuyApprovesThenSwaps(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.be.SetTokenBalance(usdc, h.wallet, units("5000", 6))

	hash, err := h.gw.Swap(ctx, chain.SwapRequest{Pair: "ETH-USDC", Side: core.Buy, Size: d("1000")})
	if err != nil {
		t.Fatalf("Swap() error = %v", err)
	}
	if !reflect.DeepEqual(h.be.Methods(), []string{"approve", "multicall"}) {
		t.Fatalf("methods = %v", h.be.Methods())
	}

	sent := h.be.Sent()
	approve := sent[0]
	if approve.To != usdc || approve.Args[0].(common.Address) != router || approve.Args[1].(*big.Int).Cmp(units("1000", 6)) != 0 {
		t.Errorf("approve = %+v, want router for exactly 1000 USDC", approve)
	}
	if sent[0].Nonce != 0 || sent[1].Nonce != 1 {
		t.Errorf("nonces = %d, %d, want 0, 1", sent[0].Nonce, sent[1].Nonce)
	}
	if want := big.NewInt(1_200_000_000); sent[1].GasPrice.Cmp(want) != 0 {
		t.Errorf("gas price = %s, want %s", sent[1].GasPrice, want)
	}
	if sent[1].Hash.Hex() != hash {
		t.Errorf("Swap() hash = %s, want %s", hash, sent[1].Hash.Hex())
	}

	p, deadline := swapParams(t, sent[1])
	if p.TokenIn != usdc || p.TokenOut != weth || p.Recipient != h.wallet || p.Fee.Int64() != 500 {
		t.Errorf("swap params = %+v", p)
	}
	if deadline.Int64() != now.Unix()+600 {
		t.Errorf("deadline = %s, want now+600", deadline)
	}
	// 50 bps below the 0.5 WETH quote
	if want := units("0.4975", 18); p.AmountOutMinimum.Cmp(want) != 0 {
		t.Errorf("min out = %s, want %s", p.AmountOutMinimum, want)
	}

	if _, err := h.gw.WaitForConfirmation(ctx, hash, 0); err != nil {
		t.Fatalf("WaitForConfirmation() error = %v", err)
	}
	if got := h.be.TokenBalance(weth, h.wallet); got.Cmp(units("0.5", 18)) != 0 {
		t.Errorf("WETH balance = %s, want 0.5e18", got)
	}
	if got := h.be.TokenBalance(usdc, h.wallet); got.Cmp(units("4000", 6)) != 0 {
		t.Errorf("USDC balance = %s, want 4000e6", got)
	}
}

func TestSwapSkipsApprovalWhenAllowed(t *testing.T) {
	h := newHarness(t, nil)
	h.be.SetTokenBalance(weth, h.wallet, units("2", 18))
	h.be.SetAllowance(weth, h.wallet, router, units("10", 18))

	if _, err := h.gw.Swap(context.Background(), chain.SwapRequest{Pair: "ETH-USDC", Side: core.Sell, Size: d("1")}); err != nil {
		t.Fatalf("Swap() error = %v", err)
	}
	if !reflect.DeepEqual(h.be.Methods(), []string{"multicall"}) {
		t.Errorf("methods = %v, want multicall only", h.be.Methods())
	}
}

func TestSwapInsufficientBalanceSendsNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.be.SetTokenBalance(usdc, h.wallet, units("10", 6))

	_, err := h.gw.Swap(context.Background(), chain.SwapRequest{Pair: "ETH-USDC", Side: core.Buy, Size: d("1000")})
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("Swap() error = %v, want insufficient balance", err)
	}
	if !core.NothingHappened(err) {
		t.Error("insufficient balance must report nothing happened")
	}
	if n := len(h.be.Sent()); n != 0 {
		t.Errorf("%d transactions broadcast, want 0", n)
	}
}

func TestSwapApprovalRevertStopsSwap(t *testing.T) {
	h := newHarness(t, nil)
	h.be.SetTokenBalance(usdc, h.wallet, units("5000", 6))
	h.be.Failing["approve"] = true

	_, err := h.gw.Swap(context.Background(), chain.SwapRequest{Pair: "ETH-USDC", Side: core.Buy, Size: d("100")})
	if !errors.Is(err, core.ErrChain) {
		t.Fatalf("Swap() error = %v, want chain error", err)
	}
	if !reflect.DeepEqual(h.be.Methods(), []string{"approve"}) {
		t.Errorf("methods = %v, want approve only", h.be.Methods())
	}
}

func TestSwapMinimumOutput(t *testing.T) {
	tests := []struct {
		name     string
		slippage int64
		req      chain.SwapRequest
		want     *big.Int
	}{
		{
			name:     "slippage disabled",
			slippage: 0,
			req:      chain.SwapRequest{Side: core.Sell, Size: d("1")},
			want:     new(big.Int),
		},
		{
			name:     "100 bps sell",
			slippage: 100,
			req:      chain.SwapRequest{Side: core.Sell, Size: d("1")},
			want:     units("1980", 6),
		},
		{
			name:     "limit sell",
			slippage: 50,
			req:      chain.SwapRequest{Side: core.Sell, Size: d("1"), LimitPrice: decimal.NewNullDecimal(d("1990"))},
			want:     units("1990", 6),
		},
		{
			name:     "limit buy",
			slippage: 50,
			req:      chain.SwapRequest{Side: core.Buy, Size: d("1000"), LimitPrice: decimal.NewNullDecimal(d("2500"))},
			want:     units("0.4", 18),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(c *params.Chain) { c.SlippageBps = tt.slippage })
			h.be.SetTokenBalance(weth, h.wallet, units("5", 18))
			h.be.SetTokenBalance(usdc, h.wallet, units("5000", 6))
			tt.req.Pair = "ETH-USDC"
			if _, err := h.gw.Swap(context.Background(), tt.req); err != nil {
				t.Fatalf("Swap() error = %v", err)
			}
			sent := h.be.Sent()
			p, _ := swapParams(t, sent[len(sent)-1])
			if p.AmountOutMinimum.Cmp(tt.want) != 0 {
				t.Errorf("min out = %s, want %s", p.AmountOutMinimum, tt.want)
			}
		})
	}
}

func TestSwapLimitNotMetReverts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.be.SetTokenBalance(weth, h.wallet, units("1", 18))

	hash, err := h.gw.Swap(ctx, chain.SwapRequest{
		Pair: "ETH-USDC", Side: core.Sell, Size: d("1"), LimitPrice: decimal.NewNullDecimal(d("2100")),
	})
	if err != nil {
		t.Fatalf("Swap() error = %v", err)
	}
	rcpt, err := h.gw.WaitForConfirmation(ctx, hash, 0)
	if !errors.Is(err, core.ErrChain) || rcpt.Status != core.TxReverted {
		t.Errorf("WaitForConfirmation() = %v, %v, want reverted chain error", rcpt.Status, err)
	}
	if got := h.be.TokenBalance(weth, h.wallet); got.Cmp(units("1", 18)) != 0 {
		t.Errorf("WETH balance = %s, want untouched 1e18", got)
	}
}

func TestLegacyRouterCarriesDeadlineInParams(t *testing.T) {
	h := newHarness(t, func(c *params.Chain) { c.RouterVersion = "swaprouter" })
	h.be.SetTokenBalance(usdc, h.wallet, units("100", 6))

	if _, err := h.gw.Swap(context.Background(), chain.SwapRequest{Pair: "ETH-USDC", Side: core.Buy, Size: d("100")}); err != nil {
		t.Fatalf("Swap() error = %v", err)
	}
	sent := h.be.Sent()
	if !reflect.DeepEqual(h.be.Methods(), []string{"approve", "exactInputSingle"}) {
		t.Fatalf("methods = %v", h.be.Methods())
	}
	p := abi.ConvertType(sent[1].Args[0], new(contracts.ExactInputSingleParams)).(*contracts.ExactInputSingleParams)
	if p.Deadline.Int64() != now.Unix()+600 {
		t.Errorf("deadline = %s, want now+600", p.Deadline)
	}
}

func TestWaitForConfirmation(t *testing.T) {
	ctx := context.Background()

	t.Run("pending then mined", func(t *testing.T) {
		h := newHarness(t, nil)
		h.be.SetNative(h.wallet, units("1", 18))
		h.be.PendingPolls = 3
		hash, err := h.gw.Wrap(ctx, d("0.5"))
		if err != nil {
			t.Fatalf("Wrap() error = %v", err)
		}
		rcpt, err := h.gw.WaitForConfirmation(ctx, hash, time.Second)
		if err != nil || rcpt.Status != core.TxSuccess || rcpt.BlockNumber == 0 {
			t.Errorf("WaitForConfirmation() = %+v, %v", rcpt, err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		h := newHarness(t, nil)
		h.be.SetNative(h.wallet, units("1", 18))
		h.be.NeverMine = true
		hash, err := h.gw.Wrap(ctx, d("0.5"))
		if err != nil {
			t.Fatalf("Wrap() error = %v", err)
		}
		rcpt, err := h.gw.WaitForConfirmation(ctx, hash, 30*time.Millisecond)
		if !errors.Is(err, core.ErrChain) || rcpt.Status != core.TxPending {
			t.Errorf("WaitForConfirmation() = %v, %v, want pending chain error", rcpt.Status, err)
		}
		if h.gw.Confirmed(ctx, hash, 10*time.Millisecond) {
			t.Error("Confirmed() = true for an unmined tx")
		}
	})

	t.Run("bad hash", func(t *testing.T) {
		h := newHarness(t, nil)
		if _, err := h.gw.WaitForConfirmation(ctx, "0x1234", time.Second); !errors.Is(err, core.ErrValidation) {
			t.Errorf("WaitForConfirmation() error = %v, want validation", err)
		}
	})
}

func TestAddLiquidityAndTrackMint(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.be.SetTokenBalance(weth, h.wallet, units("1", 18))
	h.be.SetTokenBalance(usdc, h.wallet, units("2000", 6))

	hash, err := h.gw.AddLiquidity(ctx, chain.LiquidityRequest{Pair: "ETH-USDC", BaseAmount: d("1"), QuoteAmount: d("2000")})
	if err != nil {
		t.Fatalf("AddLiquidity() error = %v", err)
	}
	if !reflect.DeepEqual(h.be.Methods(), []string{"approve", "approve", "mint"}) {
		t.Fatalf("methods = %v", h.be.Methods())
	}
	sent := h.be.Sent()
	mint := abi.ConvertType(sent[2].Args[0], new(contracts.MintParams)).(*contracts.MintParams)
	// WETH sorts below USDC by address
	if mint.Token0 != weth || mint.Token1 != usdc {
		t.Errorf("token order = %s, %s", mint.Token0.Hex(), mint.Token1.Hex())
	}
	if mint.Amount0Desired.Cmp(units("1", 18)) != 0 || mint.Amount1Desired.Cmp(units("2000", 6)) != 0 {
		t.Errorf("amounts = %s, %s", mint.Amount0Desired, mint.Amount1Desired)
	}
	if mint.TickLower.Int64() != contracts.MinTick || mint.TickUpper.Int64() != contracts.MaxTick {
		t.Errorf("ticks = [%s, %s], want full range", mint.TickLower, mint.TickUpper)
	}

	id, err := h.gw.TrackMint(ctx, hash)
	if err != nil {
		t.Fatalf("TrackMint() error = %v", err)
	}
	if id.Int64() != 1 {
		t.Errorf("TrackMint() = %s, want 1", id)
	}

	positions, err := h.gw.Positions(ctx)
	if err != nil || len(positions) != 1 {
		t.Fatalf("Positions() = %v, %v", positions, err)
	}
	p := positions[0]
	if p.PositionID != "1" || p.Token0 != "WETH" || p.Token1 != "USDC" || p.FeeTier != 500 || p.TickLower != contracts.MinTick {
		t.Errorf("position = %+v", p)
	}
	if !p.Liquidity.IsPositive() {
		t.Errorf("liquidity = %s, want positive", p.Liquidity)
	}
}

func TestAddLiquidityRejects(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.be.SetTokenBalance(weth, h.wallet, units("1", 18))

	_, err := h.gw.AddLiquidity(ctx, chain.LiquidityRequest{Pair: "ETH-USDC", BaseAmount: d("1"), QuoteAmount: d("2000")})
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Errorf("AddLiquidity(short usdc) error = %v, want insufficient balance", err)
	}
	_, err = h.gw.AddLiquidity(ctx, chain.LiquidityRequest{Pair: "ETH-USDC", BaseAmount: d("1"), TickLower: 100, TickUpper: -100})
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("AddLiquidity(inverted ticks) error = %v, want validation", err)
	}
	if n := len(h.be.Sent()); n != 0 {
		t.Errorf("%d transactions broadcast, want 0", n)
	}
}

func TestPositionNotFound(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.gw.Position(context.Background(), big.NewInt(99)); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Position(99) error = %v, want not found", err)
	}
	h.gw.Track(big.NewInt(99))
	if ps, err := h.gw.Positions(context.Background()); err != nil || len(ps) != 0 {
		t.Errorf("Positions() = %v, %v, want burned position skipped", ps, err)
	}
}

func TestWrapUnwrapAndBalances(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.be.SetNative(h.wallet, units("2", 18))
	h.be.SetTokenBalance(usdc, h.wallet, units("12.5", 6))

	if _, err := h.gw.Wrap(ctx, d("1")); err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	if _, err := h.gw.Unwrap(ctx, d("0.4")); err != nil {
		t.Fatalf("Unwrap() error = %v", err)
	}
	if _, err := h.gw.Wrap(ctx, d("5")); !errors.Is(err, core.ErrInsufficientBalance) {
		t.Errorf("Wrap(5) error = %v, want insufficient balance", err)
	}
	if _, err := h.gw.Unwrap(ctx, d("3")); !errors.Is(err, core.ErrInsufficientBalance) {
		t.Errorf("Unwrap(3) error = %v, want insufficient balance", err)
	}
	if !reflect.DeepEqual(h.be.Methods(), []string{"deposit", "withdraw"}) {
		t.Errorf("methods = %v", h.be.Methods())
	}

	bal, err := h.gw.Balances(ctx)
	if err != nil {
		t.Fatalf("Balances() error = %v", err)
	}
	want := map[string]string{"WETH": "0.6", "USDC": "12.5", chain.NativeAsset: "1.4"}
	for asset, amt := range want {
		if !bal[asset].Available.Equal(d(amt)) {
			t.Errorf("balance[%s] = %s, want %s", asset, bal[asset].Available, amt)
		}
	}
}

func TestPlaceMapsOrders(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	dry := core.Order{Symbol: "ETH-USDC", Side: core.Buy, Type: core.Market, Quantity: d("1"), DryRun: true}
	if id, err := h.gw.Place(ctx, dry); err != nil || id != core.DrySentinel {
		t.Errorf("Place(dry) = %q, %v", id, err)
	}

	ro := core.Order{Symbol: "ETH-USDC", Side: core.Sell, Type: core.Market, Quantity: d("1"), ReduceOnly: true}
	if _, err := h.gw.Place(ctx, ro); !errors.Is(err, core.ErrUnsupported) {
		t.Errorf("Place(reduce-only) error = %v, want unsupported", err)
	}

	perp := core.Order{Symbol: "ETH-USDC-PERP", Side: core.Sell, Type: core.Market, Quantity: d("1")}
	if _, err := h.gw.Place(ctx, perp); !errors.Is(err, core.ErrUnsupportedSymbol) {
		t.Errorf("Place(perp) error = %v, want unsupported symbol", err)
	}
	if n := len(h.be.Sent()); n != 0 {
		t.Errorf("%d transactions broadcast, want 0", n)
	}
}

func TestUnits(t *testing.T) {
	if got := chain.ToBaseUnits(d("1.2345678"), 6); got.Int64() != 1_234_567 {
		t.Errorf("ToBaseUnits() = %s, want truncated 1234567", got)
	}
	if got := chain.FromBaseUnits(big.NewInt(1_500_000), 6); !got.Equal(d("1.5")) {
		t.Errorf("FromBaseUnits() = %s, want 1.5", got)
	}
	if got := chain.FromBaseUnits(nil, 18); !got.IsZero() {
		t.Errorf("FromBaseUnits(nil) = %s", got)
	}
}
