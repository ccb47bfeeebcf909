// Package chaintest provides an in-memory EVM backend that understands the ERC20,
// WETH, QuoterV2, SwapRouter and position-manager calls the chain gateway makes.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/uhyunpark/tradedriver/pkg/chain/contracts"
)

// SentTx records a broadcast transaction and its decoded call
type SentTx struct {
	Hash     common.Hash
	From     common.Address
	To       common.Address
	Method   string
	Args     []any
	Value    *big.Int
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
}

// QuoteFunc prices amountIn of tokenIn in tokenOut base units
type QuoteFunc func(tokenIn, tokenOut common.Address, amountIn *big.Int) *big.Int

type Backend struct {
	mu sync.Mutex

	chainID         *big.Int
	signer          types.Signer
	positionManager common.Address
	weth            common.Address

	gasPrice *big.Int
	quote    QuoteFunc

	// Failing method names revert when mined
	Failing map[string]bool
	// PendingPolls withholds each receipt for this many polls
	PendingPolls int
	// NeverMine withholds every receipt
	NeverMine bool
	// CallErr, when set, fails every eth_call
	CallErr error

	nonces     map[common.Address]uint64
	native     map[common.Address]*big.Int
	balances   map[common.Address]map[common.Address]*big.Int                    // token -> owner
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int // token -> owner -> spender
	positions  map[string]contracts.PositionInfo
	nextID     int64
	receipts   map[common.Hash]*types.Receipt
	polls      map[common.Hash]int
	sent       []SentTx
	block      uint64
}

func New(chainID int64, positionManager, weth common.Address, quote QuoteFunc) *Backend {
	id := big.NewInt(chainID)
	return &Backend{
		chainID:         id,
		signer:          types.LatestSignerForChainID(id),
		positionManager: positionManager,
		weth:            weth,
		gasPrice:        big.NewInt(1_000_000_000),
		quote:           quote,
		Failing:         make(map[string]bool),
		nonces:          make(map[common.Address]uint64),
		native:          make(map[common.Address]*big.Int),
		balances:        make(map[common.Address]map[common.Address]*big.Int),
		allowances:      make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
		positions:       make(map[string]contracts.PositionInfo),
		nextID:          1,
		receipts:        make(map[common.Hash]*types.Receipt),
		polls:           make(map[common.Hash]int),
		block:           100,
	}
}

func (b *Backend) SetGasPrice(p *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gasPrice = new(big.Int).Set(p)
}

func (b *Backend) SetNative(owner common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.native[owner] = new(big.Int).Set(amount)
}

func (b *Backend) SetTokenBalance(token, owner common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setBalance(token, owner, new(big.Int).Set(amount))
}

func (b *Backend) TokenBalance(token, owner common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balance(token, owner))
}

func (b *Backend) NativeBalance(owner common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.nativeOf(owner))
}

func (b *Backend) SetAllowance(token, owner, spender common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setAllowance(token, owner, spender, new(big.Int).Set(amount))
}

func (b *Backend) Allowance(token, owner, spender common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.allowance(token, owner, spender))
}

// SetPosition installs a liquidity position readable through positions(id)
func (b *Backend) SetPosition(id int64, info contracts.PositionInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[big.NewInt(id).String()] = info
}

// Sent returns every broadcast transaction in order
func (b *Backend) Sent() []SentTx {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]SentTx(nil), b.sent...)
}

// Methods returns the method name of every broadcast transaction in order
func (b *Backend) Methods() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.sent))
	for i, s := range b.sent {
		out[i] = s.Method
	}
	return out
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.gasPrice), nil
}

func (b *Backend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.nativeOf(account)), nil
}

func (b *Backend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[hash]
	if !ok || b.NeverMine {
		return nil, ethereum.NotFound
	}
	b.polls[hash]++
	if b.polls[hash] <= b.PendingPolls {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// SendTransaction executes tx immediately; the receipt becomes visible after PendingPolls
func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	from, err := types.Sender(b.signer, tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.Nonce() != b.nonces[from] {
		return fmt.Errorf("nonce mismatch: have %d, want %d", tx.Nonce(), b.nonces[from])
	}
	if tx.To() == nil {
		return errors.New("contract creation not supported")
	}
	m, args, err := contracts.MethodByData(tx.Data())
	if err != nil {
		return err
	}
	b.nonces[from]++
	b.block++

	rec := SentTx{
		Hash: tx.Hash(), From: from, To: *tx.To(), Method: m.Name, Args: args,
		Value: tx.Value(), Nonce: tx.Nonce(), GasPrice: tx.GasPrice(), Gas: tx.Gas(),
	}
	b.sent = append(b.sent, rec)

	rcpt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		GasUsed:     tx.Gas() / 2,
		BlockNumber: new(big.Int).SetUint64(b.block),
	}
	if b.Failing[m.Name] {
		rcpt.Status = types.ReceiptStatusFailed
	} else if logs, err := b.execute(rec, m, args); err != nil {
		rcpt.Status = types.ReceiptStatusFailed
	} else {
		rcpt.Logs = logs
	}
	b.receipts[tx.Hash()] = rcpt
	return nil
}

func (b *Backend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.CallErr != nil {
		return nil, b.CallErr
	}
	if call.To == nil {
		return nil, errors.New("call without target")
	}
	m, args, err := contracts.MethodByData(call.Data)
	if err != nil {
		return nil, err
	}
	to := *call.To
	switch m.Name {
	case "balanceOf":
		return m.Outputs.Pack(b.balance(to, args[0].(common.Address)))
	case "allowance":
		return m.Outputs.Pack(b.allowance(to, args[0].(common.Address), args[1].(common.Address)))
	case "quoteExactInput":
		in, _, out, err := contracts.DecodePath(args[0].([]byte))
		if err != nil {
			return nil, err
		}
		amountOut := b.quote(in, out, args[1].(*big.Int))
		return m.Outputs.Pack(amountOut, []*big.Int{}, []uint32{}, big.NewInt(0))
	case "positions":
		info, ok := b.positions[args[0].(*big.Int).String()]
		if !ok {
			return nil, errors.New("execution reverted: Invalid token ID")
		}
		return contracts.PackPosition(info)
	}
	return nil, fmt.Errorf("eth_call %s not supported", m.Name)
}

func (b *Backend) execute(tx SentTx, m *abi.Method, args []any) ([]*types.Log, error) {
	switch m.Name {
	case "approve":
		b.setAllowance(tx.To, tx.From, args[0].(common.Address), new(big.Int).Set(args[1].(*big.Int)))
		return nil, nil
	case "deposit":
		if tx.To != b.weth {
			return nil, errors.New("deposit on non-weth")
		}
		if err := b.moveNative(tx.From, new(big.Int).Neg(tx.Value)); err != nil {
			return nil, err
		}
		b.setBalance(b.weth, tx.From, new(big.Int).Add(b.balance(b.weth, tx.From), tx.Value))
		return nil, nil
	case "withdraw":
		wad := args[0].(*big.Int)
		if err := b.debit(b.weth, tx.From, wad); err != nil {
			return nil, err
		}
		return nil, b.moveNative(tx.From, wad)
	case "multicall":
		for _, inner := range args[1].([][]byte) {
			im, iargs, err := contracts.MethodByData(inner)
			if err != nil {
				return nil, err
			}
			if _, err := b.execute(tx, im, iargs); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case "exactInputSingle":
		var in, out, recipient common.Address
		var amountIn, minOut *big.Int
		if len(m.Inputs[0].Type.TupleElems) == 8 {
			p := abi.ConvertType(args[0], new(contracts.ExactInputSingleParams)).(*contracts.ExactInputSingleParams)
			in, out, recipient, amountIn, minOut = p.TokenIn, p.TokenOut, p.Recipient, p.AmountIn, p.AmountOutMinimum
		} else {
			p := abi.ConvertType(args[0], new(contracts.ExactInputSingleParams02)).(*contracts.ExactInputSingleParams02)
			in, out, recipient, amountIn, minOut = p.TokenIn, p.TokenOut, p.Recipient, p.AmountIn, p.AmountOutMinimum
		}
		if b.allowance(in, tx.From, tx.To).Cmp(amountIn) < 0 {
			return nil, errors.New("STF: allowance")
		}
		amountOut := b.quote(in, out, amountIn)
		if amountOut.Cmp(minOut) < 0 {
			return nil, errors.New("Too little received")
		}
		if err := b.debit(in, tx.From, amountIn); err != nil {
			return nil, err
		}
		b.setAllowance(in, tx.From, tx.To, new(big.Int).Sub(b.allowance(in, tx.From, tx.To), amountIn))
		b.setBalance(out, recipient, new(big.Int).Add(b.balance(out, recipient), amountOut))
		return nil, nil
	case "mint":
		p := abi.ConvertType(args[0], new(contracts.MintParams)).(*contracts.MintParams)
		for _, leg := range []struct {
			token  common.Address
			amount *big.Int
		}{{p.Token0, p.Amount0Desired}, {p.Token1, p.Amount1Desired}} {
			if b.allowance(leg.token, tx.From, tx.To).Cmp(leg.amount) < 0 {
				return nil, errors.New("STF: allowance")
			}
			if b.balance(leg.token, tx.From).Cmp(leg.amount) < 0 {
				return nil, errors.New("STF: balance")
			}
		}
		b.debit(p.Token0, tx.From, p.Amount0Desired)
		b.debit(p.Token1, tx.From, p.Amount1Desired)
		b.setAllowance(p.Token0, tx.From, tx.To, new(big.Int).Sub(b.allowance(p.Token0, tx.From, tx.To), p.Amount0Desired))
		b.setAllowance(p.Token1, tx.From, tx.To, new(big.Int).Sub(b.allowance(p.Token1, tx.From, tx.To), p.Amount1Desired))

		id := big.NewInt(b.nextID)
		b.nextID++
		b.positions[id.String()] = contracts.PositionInfo{
			Token0:      p.Token0,
			Token1:      p.Token1,
			Fee:         uint32(p.Fee.Uint64()),
			TickLower:   int32(p.TickLower.Int64()),
			TickUpper:   int32(p.TickUpper.Int64()),
			Liquidity:   new(big.Int).Add(p.Amount0Desired, p.Amount1Desired),
			TokensOwed0: new(big.Int),
			TokensOwed1: new(big.Int),
		}
		return []*types.Log{{
			Address: b.positionManager,
			Topics: []common.Hash{
				contracts.TransferTopic,
				{},
				common.BytesToHash(p.Recipient.Bytes()),
				common.BigToHash(id),
			},
		}}, nil
	}
	return nil, fmt.Errorf("transaction %s not supported", m.Name)
}

func (b *Backend) nativeOf(owner common.Address) *big.Int {
	if v, ok := b.native[owner]; ok {
		return v
	}
	return new(big.Int)
}

func (b *Backend) moveNative(owner common.Address, delta *big.Int) error {
	next := new(big.Int).Add(b.nativeOf(owner), delta)
	if next.Sign() < 0 {
		return errors.New("insufficient native balance")
	}
	b.native[owner] = next
	return nil
}

func (b *Backend) balance(token, owner common.Address) *big.Int {
	if v, ok := b.balances[token][owner]; ok {
		return v
	}
	return new(big.Int)
}

func (b *Backend) setBalance(token, owner common.Address, v *big.Int) {
	if b.balances[token] == nil {
		b.balances[token] = make(map[common.Address]*big.Int)
	}
	b.balances[token][owner] = v
}

func (b *Backend) debit(token, owner common.Address, amount *big.Int) error {
	bal := b.balance(token, owner)
	if bal.Cmp(amount) < 0 {
		return errors.New("STF: balance")
	}
	b.setBalance(token, owner, new(big.Int).Sub(bal, amount))
	return nil
}

func (b *Backend) allowance(token, owner, spender common.Address) *big.Int {
	if v, ok := b.allowances[token][owner][spender]; ok {
		return v
	}
	return new(big.Int)
}

func (b *Backend) setAllowance(token, owner, spender common.Address, v *big.Int) {
	if b.allowances[token] == nil {
		b.allowances[token] = make(map[common.Address]map[common.Address]*big.Int)
	}
	if b.allowances[token][owner] == nil {
		b.allowances[token][owner] = make(map[common.Address]*big.Int)
	}
	b.allowances[token][owner][spender] = v
}
