package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradedriver/params"
	"github.com/uhyunpark/tradedriver/pkg/chain/contracts"
	"github.com/uhyunpark/tradedriver/pkg/core"
	"github.com/uhyunpark/tradedriver/pkg/crypto"
	"github.com/uhyunpark/tradedriver/pkg/symbol"
	"github.com/uhyunpark/tradedriver/pkg/util"
)

const bpsDenominator = 10_000

// NativeAsset is the balance key of the chain's gas token
const NativeAsset = "ETH"

// SwapRequest spends Size of the input token: quote for a buy, base for a sell.
// LimitPrice, in quote per base, turns into the minimum accepted output.
type SwapRequest struct {
	Pair       string
	Side       core.Side
	Size       decimal.Decimal
	LimitPrice decimal.NullDecimal
}

// LiquidityRequest mints a concentrated-liquidity position.
// Zero ticks select the full range.
type LiquidityRequest struct {
	Pair        string
	BaseAmount  decimal.Decimal
	QuoteAmount decimal.Decimal
	TickLower   int32
	TickUpper   int32
}

type Gateway struct {
	backend Backend
	tx      *TxManager
	wallet  *crypto.Wallet
	tokens  *symbol.Registry
	symbols *symbol.Normalizer

	router          common.Address
	router02        bool
	quoter          common.Address
	positionManager common.Address
	weth            symbol.Token

	fee            uint32
	slippageBps    int64
	grace          time.Duration
	confirmTimeout time.Duration
	approveGas     uint64
	swapGas        uint64
	mintGas        uint64
	wrapGas        uint64

	clock util.Clock
	log   *zap.SugaredLogger

	mu      sync.Mutex
	tracked []*big.Int // minted position ids
}

type Option func(*gatewayOptions)

type gatewayOptions struct {
	wallet   *crypto.Wallet
	registry *symbol.Registry
	clock    util.Clock
	log      *zap.SugaredLogger
	txOpts   []TxOption
}

// WithWallet overrides the key loaded from the private-key setting
func WithWallet(w *crypto.Wallet) Option { return func(o *gatewayOptions) { o.wallet = w } }

func WithRegistry(r *symbol.Registry) Option { return func(o *gatewayOptions) { o.registry = r } }

func WithClock(c util.Clock) Option { return func(o *gatewayOptions) { o.clock = c } }

func WithLogger(l *zap.SugaredLogger) Option { return func(o *gatewayOptions) { o.log = l } }

func WithTxOptions(opts ...TxOption) Option {
	return func(o *gatewayOptions) { o.txOpts = append(o.txOpts, opts...) }
}

// NewGateway wires a gateway to backend. A zero ChainID in cfg is read from the node.
func NewGateway(ctx context.Context, backend Backend, cfg params.Chain, syms params.Symbols, opts ...Option) (*Gateway, error) {
	const op = "new chain gateway"
	o := gatewayOptions{clock: util.RealClock{}}
	for _, fn := range opts {
		fn(&o)
	}
	log := util.OrNop(o.log)

	wallet := o.wallet
	if wallet == nil {
		w, err := crypto.WalletFromHex(cfg.PrivateKey)
		if err != nil {
			return nil, core.Validationf(op, "private key: %v", err)
		}
		wallet = w
	}

	addrs := make(map[string]common.Address, 4)
	for name, raw := range map[string]string{
		"router":           cfg.Router,
		"quoter":           cfg.Quoter,
		"position manager": cfg.PositionManager,
		"wrapped native":   cfg.WrappedNative,
	} {
		a, err := symbol.ParseAddress(raw)
		if err != nil {
			return nil, core.Validationf(op, "%s address: %v", name, err)
		}
		addrs[name] = a
	}

	registry := o.registry
	if registry == nil {
		registry = symbol.DefaultBaseTokens(addrs["wrapped native"].Hex())
	}
	weth, ok := registry.ByAddress(addrs["wrapped native"])
	if !ok {
		weth = symbol.Token{Symbol: "WETH", Address: addrs["wrapped native"], Decimals: 18}
	}

	norm, err := symbol.NewNormalizer(symbol.Options{
		Style:        symbol.StyleChain,
		DefaultQuote: syms.DefaultQuote,
		DefaultBase:  syms.DefaultBase,
		Market:       symbol.ParseMarketKind(syms.Market),
		Registry:     registry,
	})
	if err != nil {
		return nil, core.Validationf(op, "symbols: %v", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		if chainID, err = backend.ChainID(ctx); err != nil {
			return nil, core.Chain(op, err)
		}
	}

	g := &Gateway{
		backend:         backend,
		tx:              NewTxManager(backend, wallet, chainID, cfg.GasMultiplierPct, append([]TxOption{WithTxLogger(log)}, o.txOpts...)...),
		wallet:          wallet,
		tokens:          registry,
		symbols:         norm,
		router:          addrs["router"],
		router02:        cfg.RouterVersion != "swaprouter",
		quoter:          addrs["quoter"],
		positionManager: addrs["position manager"],
		weth:            weth,
		fee:             cfg.FeeTier,
		slippageBps:     cfg.SlippageBps,
		grace:           cfg.DeadlineGrace,
		confirmTimeout:  cfg.ConfirmTimeout,
		approveGas:      cfg.ApproveGas,
		swapGas:         cfg.SwapGas,
		mintGas:         cfg.MintGas,
		wrapGas:         cfg.WrapGas,
		clock:           o.clock,
		log:             log,
	}
	log.Infow("chain_gateway_ready", "wallet", wallet.Address().Hex(), "chain_id", chainID, "router", g.router.Hex(), "router02", g.router02)
	return g, nil
}

func (g *Gateway) Address() common.Address { return g.wallet.Address() }

func (g *Gateway) Registry() *symbol.Registry { return g.tokens }

// Pair normalizes raw into a resolved token pair
func (g *Gateway) Pair(raw string) (symbol.Symbol, error) { return g.symbols.Normalize(raw) }

// Quote prices amountIn of the pair's base in quote units via QuoterV2
func (g *Gateway) Quote(ctx context.Context, pair string, amountIn decimal.Decimal) (decimal.Decimal, error) {
	const op = "quote"
	sym, err := g.Pair(pair)
	if err != nil {
		return decimal.Zero, err
	}
	if !amountIn.IsPositive() {
		return decimal.Zero, core.Validationf(op, "amount must be positive, got %s", amountIn)
	}
	raw := ToBaseUnits(amountIn, sym.BaseToken.Decimals)
	if raw.Sign() == 0 {
		return decimal.Zero, core.Validationf(op, "amount %s below %s precision", amountIn, sym.Base)
	}
	out, err := g.quoteOut(ctx, sym.BaseToken, sym.QuoteToken, raw)
	if err != nil {
		return decimal.Zero, err
	}
	in := FromBaseUnits(raw, sym.BaseToken.Decimals)
	return FromBaseUnits(out, sym.QuoteToken.Decimals).Div(in), nil
}

// PriceNow is the quoted price of one unit of base
func (g *Gateway) PriceNow(ctx context.Context, pair string) (decimal.Decimal, error) {
	return g.Quote(ctx, pair, decimal.NewFromInt(1))
}

func (g *Gateway) quoteOut(ctx context.Context, in, out symbol.Token, amountIn *big.Int) (*big.Int, error) {
	path := contracts.EncodePath(in.Address, g.fee, out.Address)
	vals, err := g.call(ctx, "quote", g.quoter, contracts.QuoterV2, "quoteExactInput", path, amountIn)
	if err != nil {
		return nil, err
	}
	return vals[0].(*big.Int), nil
}

// Place maps an order onto a swap. Limit orders bound the output by their price,
// market orders by the configured slippage.
func (g *Gateway) Place(ctx context.Context, o core.Order) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	if o.ReduceOnly {
		return "", core.Unsupported("reduce-only swap")
	}
	if o.DryRun {
		g.log.Infow("order_dry_run", "order", o.String())
		return core.DrySentinel, nil
	}
	req := SwapRequest{Pair: o.Symbol, Side: o.Side, Size: o.Quantity}
	if o.Type == core.Limit {
		req.LimitPrice = o.Price
	}
	return g.Swap(ctx, req)
}

// Swap runs preflight balance, allowance and approval, then the router call.
// Returns the swap transaction hash without waiting for it.
func (g *Gateway) Swap(ctx context.Context, req SwapRequest) (string, error) {
	const op = "swap"
	sym, err := g.Pair(req.Pair)
	if err != nil {
		return "", err
	}
	if !req.Size.IsPositive() {
		return "", core.Validationf(op, "size must be positive, got %s", req.Size)
	}
	if req.LimitPrice.Valid && !req.LimitPrice.Decimal.IsPositive() {
		return "", core.Validationf(op, "limit price must be positive, got %s", req.LimitPrice.Decimal)
	}

	in, out := sym.QuoteToken, sym.BaseToken
	if req.Side == core.Sell {
		in, out = sym.BaseToken, sym.QuoteToken
	}
	amountIn := ToBaseUnits(req.Size, in.Decimals)
	if amountIn.Sign() == 0 {
		return "", core.Validationf(op, "size %s below %s precision", req.Size, in.Symbol)
	}

	if err := g.preflight(ctx, op, in, amountIn); err != nil {
		return "", err
	}
	minOut, err := g.minimumOut(ctx, req, in, out, amountIn)
	if err != nil {
		return "", err
	}
	if err := g.ensureAllowance(ctx, in, g.router, amountIn); err != nil {
		return "", err
	}

	data, err := g.swapCalldata(in, out, amountIn, minOut)
	if err != nil {
		return "", core.Chain(op, err)
	}
	hash, err := g.tx.Send(ctx, TxRequest{Label: "swap", To: g.router, Data: data, GasLimit: g.swapGas})
	if err != nil {
		return "", err
	}
	g.log.Infow("swap_submitted", "pair", sym.String(), "side", req.Side.String(), "amount_in", req.Size,
		"token_in", in.Symbol, "min_out", FromBaseUnits(minOut, out.Decimals), "hash", hash.Hex())
	return hash.Hex(), nil
}

func (g *Gateway) minimumOut(ctx context.Context, req SwapRequest, in, out symbol.Token, amountIn *big.Int) (*big.Int, error) {
	if req.LimitPrice.Valid {
		size := FromBaseUnits(amountIn, in.Decimals)
		want := size.Mul(req.LimitPrice.Decimal)
		if req.Side == core.Buy {
			want = size.Div(req.LimitPrice.Decimal)
		}
		return ToBaseUnits(want, out.Decimals), nil
	}
	if g.slippageBps <= 0 {
		return new(big.Int), nil
	}
	quoted, err := g.quoteOut(ctx, in, out, amountIn)
	if err != nil {
		return nil, err
	}
	floor := new(big.Int).Mul(quoted, big.NewInt(bpsDenominator-g.slippageBps))
	return floor.Div(floor, big.NewInt(bpsDenominator)), nil
}

func (g *Gateway) swapCalldata(in, out symbol.Token, amountIn, minOut *big.Int) ([]byte, error) {
	deadline := g.deadline()
	fee := big.NewInt(int64(g.fee))
	if !g.router02 {
		return contracts.SwapRouter.Pack("exactInputSingle", contracts.ExactInputSingleParams{
			TokenIn:           in.Address,
			TokenOut:          out.Address,
			Fee:               fee,
			Recipient:         g.wallet.Address(),
			Deadline:          deadline,
			AmountIn:          amountIn,
			AmountOutMinimum:  minOut,
			SqrtPriceLimitX96: new(big.Int),
		})
	}
	inner, err := contracts.SwapRouter02.Pack("exactInputSingle", contracts.ExactInputSingleParams02{
		TokenIn:           in.Address,
		TokenOut:          out.Address,
		Fee:               fee,
		Recipient:         g.wallet.Address(),
		AmountIn:          amountIn,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return nil, err
	}
	return contracts.SwapRouter02.Pack("multicall", deadline, [][]byte{inner})
}

// AddLiquidity mints a position on the configured fee tier and returns the mint tx hash.
// Use TrackMint to learn the position id once it confirms.
func (g *Gateway) AddLiquidity(ctx context.Context, req LiquidityRequest) (string, error) {
	const op = "add liquidity"
	sym, err := g.Pair(req.Pair)
	if err != nil {
		return "", err
	}
	if req.BaseAmount.IsNegative() || req.QuoteAmount.IsNegative() || (req.BaseAmount.IsZero() && req.QuoteAmount.IsZero()) {
		return "", core.Validationf(op, "amounts must be non-negative and not both zero")
	}
	lower, upper := req.TickLower, req.TickUpper
	if lower == 0 && upper == 0 {
		lower, upper = contracts.MinTick, contracts.MaxTick
	}
	if lower >= upper {
		return "", core.Validationf(op, "tick range [%d, %d] is empty", lower, upper)
	}

	legs := []struct {
		tok    symbol.Token
		amount *big.Int
	}{
		{sym.BaseToken, ToBaseUnits(req.BaseAmount, sym.BaseToken.Decimals)},
		{sym.QuoteToken, ToBaseUnits(req.QuoteAmount, sym.QuoteToken.Decimals)},
	}
	for _, leg := range legs {
		if leg.amount.Sign() == 0 {
			continue
		}
		if err := g.preflight(ctx, op, leg.tok, leg.amount); err != nil {
			return "", err
		}
	}
	for _, leg := range legs {
		if leg.amount.Sign() == 0 {
			continue
		}
		if err := g.ensureAllowance(ctx, leg.tok, g.positionManager, leg.amount); err != nil {
			return "", err
		}
	}

	sort.Slice(legs, func(i, j int) bool {
		return bytes.Compare(legs[i].tok.Address.Bytes(), legs[j].tok.Address.Bytes()) < 0
	})
	zero := new(big.Int)
	data, err := contracts.PositionManager.Pack("mint", contracts.MintParams{
		Token0:         legs[0].tok.Address,
		Token1:         legs[1].tok.Address,
		Fee:            big.NewInt(int64(g.fee)),
		TickLower:      big.NewInt(int64(lower)),
		TickUpper:      big.NewInt(int64(upper)),
		Amount0Desired: legs[0].amount,
		Amount1Desired: legs[1].amount,
		Amount0Min:     zero,
		Amount1Min:     zero,
		Recipient:      g.wallet.Address(),
		Deadline:       g.deadline(),
	})
	if err != nil {
		return "", core.Chain(op, err)
	}
	hash, err := g.tx.Send(ctx, TxRequest{Label: "mint", To: g.positionManager, Data: data, GasLimit: g.mintGas})
	if err != nil {
		return "", err
	}
	g.log.Infow("mint_submitted", "pair", sym.String(), "base", req.BaseAmount, "quote", req.QuoteAmount,
		"tick_lower", lower, "tick_upper", upper, "hash", hash.Hex())
	return hash.Hex(), nil
}

// Wrap deposits native currency into the wrapped token
func (g *Gateway) Wrap(ctx context.Context, amount decimal.Decimal) (string, error) {
	const op = "wrap"
	raw, err := g.positiveUnits(op, amount, 18)
	if err != nil {
		return "", err
	}
	bal, err := g.backend.BalanceAt(ctx, g.wallet.Address(), nil)
	if err != nil {
		return "", core.Chain(op, err)
	}
	if bal.Cmp(raw) < 0 {
		return "", core.InsufficientBalancef(op, "%s balance %s < %s", NativeAsset, FromBaseUnits(bal, 18), amount)
	}
	data, err := contracts.WETH.Pack("deposit")
	if err != nil {
		return "", core.Chain(op, err)
	}
	hash, err := g.tx.Send(ctx, TxRequest{Label: "wrap", To: g.weth.Address, Value: raw, Data: data, GasLimit: g.wrapGas})
	if err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

// Unwrap withdraws wrapped tokens back to native currency
func (g *Gateway) Unwrap(ctx context.Context, amount decimal.Decimal) (string, error) {
	const op = "unwrap"
	raw, err := g.positiveUnits(op, amount, g.weth.Decimals)
	if err != nil {
		return "", err
	}
	if err := g.preflight(ctx, op, g.weth, raw); err != nil {
		return "", err
	}
	data, err := contracts.WETH.Pack("withdraw", raw)
	if err != nil {
		return "", core.Chain(op, err)
	}
	hash, err := g.tx.Send(ctx, TxRequest{Label: "unwrap", To: g.weth.Address, Data: data, GasLimit: g.wrapGas})
	if err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

// WaitForConfirmation waits up to timeout (the configured default when zero)
func (g *Gateway) WaitForConfirmation(ctx context.Context, hash string, timeout time.Duration) (core.Receipt, error) {
	h, err := parseHash(hash)
	if err != nil {
		return core.Receipt{}, err
	}
	if timeout <= 0 {
		timeout = g.confirmTimeout
	}
	return g.tx.WaitForConfirmation(ctx, h, timeout)
}

func (g *Gateway) Confirmed(ctx context.Context, hash string, timeout time.Duration) bool {
	_, err := g.WaitForConfirmation(ctx, hash, timeout)
	return err == nil
}

// TrackMint waits for a mint to confirm, extracts the minted position id from the
// ERC-721 Transfer log and adds it to the tracked set read by Positions.
func (g *Gateway) TrackMint(ctx context.Context, hash string) (*big.Int, error) {
	const op = "track mint"
	if _, err := g.WaitForConfirmation(ctx, hash, 0); err != nil {
		return nil, err
	}
	h, _ := parseHash(hash)
	rcpt, err := g.backend.TransactionReceipt(ctx, h)
	if err != nil {
		return nil, core.Chain(op, err)
	}
	for _, l := range rcpt.Logs {
		if l.Address != g.positionManager || len(l.Topics) != 4 || l.Topics[0] != contracts.TransferTopic {
			continue
		}
		if l.Topics[1] != (common.Hash{}) {
			continue
		}
		id := new(big.Int).SetBytes(l.Topics[3].Bytes())
		g.Track(id)
		g.log.Infow("position_tracked", "id", id, "hash", hash)
		return id, nil
	}
	return nil, core.NotFoundf(op, "no mint transfer in tx %s", hash)
}

// Track adds a position id minted elsewhere
func (g *Gateway) Track(id *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range g.tracked {
		if t.Cmp(id) == 0 {
			return
		}
	}
	g.tracked = append(g.tracked, new(big.Int).Set(id))
}

// Position reads one liquidity position from the position manager
func (g *Gateway) Position(ctx context.Context, id *big.Int) (core.Position, error) {
	const op = "fetch position"
	data, err := contracts.PositionManager.Pack("positions", id)
	if err != nil {
		return core.Position{}, core.Chain(op, err)
	}
	out, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &g.positionManager, Data: data}, nil)
	if err != nil {
		if strings.Contains(err.Error(), "execution reverted") {
			return core.Position{}, core.NotFoundf(op, "position %s: %v", id, err)
		}
		return core.Position{}, core.Chain(op, err)
	}
	info, err := contracts.UnpackPosition(out)
	if err != nil {
		return core.Position{}, core.Chain(op, err)
	}

	t0 := g.tokenAt(info.Token0)
	t1 := g.tokenAt(info.Token1)
	return core.Position{
		Symbol:     t0.Symbol + "-" + t1.Symbol,
		PositionID: id.String(),
		Token0:     t0.Symbol,
		Token1:     t1.Symbol,
		FeeTier:    info.Fee,
		TickLower:  info.TickLower,
		TickUpper:  info.TickUpper,
		Liquidity:  decimal.NewFromBigInt(info.Liquidity, 0),
		FeesOwed0:  FromBaseUnits(info.TokensOwed0, t0.Decimals),
		FeesOwed1:  FromBaseUnits(info.TokensOwed1, t1.Decimals),
	}, nil
}

// Positions reads every tracked position; burned ones are skipped
func (g *Gateway) Positions(ctx context.Context) ([]core.Position, error) {
	g.mu.Lock()
	ids := make([]*big.Int, len(g.tracked))
	copy(ids, g.tracked)
	g.mu.Unlock()

	out := make([]core.Position, 0, len(ids))
	for _, id := range ids {
		p, err := g.Position(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Balances reads every registry token plus the native balance
func (g *Gateway) Balances(ctx context.Context) (core.Balances, error) {
	const op = "fetch balance"
	out := make(core.Balances)
	for _, tok := range g.tokens.Tokens() {
		raw, err := g.tokenBalance(ctx, tok)
		if err != nil {
			return nil, err
		}
		out[tok.Symbol] = core.Balance{Available: FromBaseUnits(raw, tok.Decimals)}
	}
	native, err := g.backend.BalanceAt(ctx, g.wallet.Address(), nil)
	if err != nil {
		return nil, core.Chain(op, err)
	}
	out[NativeAsset] = core.Balance{Available: FromBaseUnits(native, 18)}
	return out, nil
}

func (g *Gateway) preflight(ctx context.Context, op string, tok symbol.Token, amount *big.Int) error {
	bal, err := g.tokenBalance(ctx, tok)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		g.log.Warnw("insufficient_balance", "token", tok.Symbol, "have", FromBaseUnits(bal, tok.Decimals), "need", FromBaseUnits(amount, tok.Decimals))
		return core.InsufficientBalancef(op, "%s balance %s < %s", tok.Symbol,
			FromBaseUnits(bal, tok.Decimals), FromBaseUnits(amount, tok.Decimals))
	}
	return nil
}

// ensureAllowance approves spender for exactly amount when the current allowance is
// short, and blocks until the approval confirms
func (g *Gateway) ensureAllowance(ctx context.Context, tok symbol.Token, spender common.Address, amount *big.Int) error {
	const op = "approve"
	vals, err := g.call(ctx, op, tok.Address, contracts.ERC20, "allowance", g.wallet.Address(), spender)
	if err != nil {
		return err
	}
	if vals[0].(*big.Int).Cmp(amount) >= 0 {
		return nil
	}
	data, err := contracts.ERC20.Pack("approve", spender, amount)
	if err != nil {
		return core.Chain(op, err)
	}
	hash, err := g.tx.Send(ctx, TxRequest{Label: "approve", To: tok.Address, Data: data, GasLimit: g.approveGas})
	if err != nil {
		return err
	}
	if _, err := g.tx.WaitForConfirmation(ctx, hash, g.confirmTimeout); err != nil {
		g.log.Errorw("approval_failed", "token", tok.Symbol, "spender", spender.Hex(), "hash", hash.Hex(), "err", err)
		return err
	}
	g.log.Infow("approval_confirmed", "token", tok.Symbol, "spender", spender.Hex(), "amount", FromBaseUnits(amount, tok.Decimals))
	return nil
}

func (g *Gateway) tokenBalance(ctx context.Context, tok symbol.Token) (*big.Int, error) {
	vals, err := g.call(ctx, "balance of "+tok.Symbol, tok.Address, contracts.ERC20, "balanceOf", g.wallet.Address())
	if err != nil {
		return nil, err
	}
	return vals[0].(*big.Int), nil
}

func (g *Gateway) call(ctx context.Context, op string, to common.Address, a abi.ABI, method string, args ...any) ([]any, error) {
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, core.Chain(op, err)
	}
	out, err := g.backend.CallContract(ctx, ethereum.CallMsg{From: g.wallet.Address(), To: &to, Data: data}, nil)
	if err != nil {
		return nil, core.Chain(op, err)
	}
	vals, err := a.Unpack(method, out)
	if err != nil {
		return nil, core.Chain(op, err)
	}
	if len(vals) == 0 {
		return nil, core.Chainf(op, "%s returned no values", method)
	}
	return vals, nil
}

func (g *Gateway) tokenAt(addr common.Address) symbol.Token {
	if t, ok := g.tokens.ByAddress(addr); ok {
		return t
	}
	return symbol.Token{Symbol: addr.Hex(), Address: addr}
}

func (g *Gateway) deadline() *big.Int {
	return big.NewInt(g.clock.Now().Add(g.grace).Unix())
}

func (g *Gateway) positiveUnits(op string, amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	if !amount.IsPositive() {
		return nil, core.Validationf(op, "amount must be positive, got %s", amount)
	}
	raw := ToBaseUnits(amount, decimals)
	if raw.Sign() == 0 {
		return nil, core.Validationf(op, "amount %s below token precision", amount)
	}
	return raw, nil
}

func parseHash(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	b := common.FromHex(s)
	if len(b) != common.HashLength {
		return common.Hash{}, core.Validationf("parse tx hash", "%q is not a 32-byte hex hash", s)
	}
	return common.BytesToHash(b), nil
}
