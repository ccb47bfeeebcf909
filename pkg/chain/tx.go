package chain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradedriver/pkg/core"
	"github.com/uhyunpark/tradedriver/pkg/crypto"
	"github.com/uhyunpark/tradedriver/pkg/util"
)

var errPending = errors.New("receipt not yet available")

// TxRequest is an unsigned contract call
type TxRequest struct {
	Label    string // for logs: "approve", "swap", ...
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
}

// TxManager signs, broadcasts and confirms transactions for one wallet.
// Nonce and gas price are read fresh for every transaction.
type TxManager struct {
	backend     Backend
	wallet      *crypto.Wallet
	chainID     *big.Int
	gasPct      int64
	pollInitial time.Duration
	pollMax     time.Duration
	log         *zap.SugaredLogger
}

type TxOption func(*TxManager)

// WithPollInterval sets the initial and maximum receipt polling interval
func WithPollInterval(initial, max time.Duration) TxOption {
	return func(m *TxManager) { m.pollInitial, m.pollMax = initial, max }
}

func WithTxLogger(l *zap.SugaredLogger) TxOption { return func(m *TxManager) { m.log = l } }

func NewTxManager(backend Backend, wallet *crypto.Wallet, chainID *big.Int, gasMultiplierPct int64, opts ...TxOption) *TxManager {
	if gasMultiplierPct < 100 {
		gasMultiplierPct = 100
	}
	m := &TxManager{
		backend:     backend,
		wallet:      wallet,
		chainID:     new(big.Int).Set(chainID),
		gasPct:      gasMultiplierPct,
		pollInitial: 500 * time.Millisecond,
		pollMax:     4 * time.Second,
	}
	for _, o := range opts {
		o(m)
	}
	m.log = util.OrNop(m.log)
	return m
}

func (m *TxManager) From() common.Address { return m.wallet.Address() }

// Send signs and broadcasts req as a legacy transaction
func (m *TxManager) Send(ctx context.Context, req TxRequest) (common.Hash, error) {
	op := "send " + req.Label
	from := m.wallet.Address()

	nonce, err := m.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, core.Chain(op, err)
	}
	gasPrice, err := m.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, core.Chain(op, err)
	}
	gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, big.NewInt(m.gasPct)), big.NewInt(100))

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      req.GasLimit,
		To:       &to,
		Value:    value,
		Data:     req.Data,
	})
	signed, err := m.wallet.SignTx(tx, m.chainID)
	if err != nil {
		return common.Hash{}, core.Chain(op, err)
	}
	if err := m.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, core.Chain(op, err)
	}
	m.log.Infow("tx_sent", "label", req.Label, "hash", signed.Hash().Hex(), "nonce", nonce, "gas_price", gasPrice)
	return signed.Hash(), nil
}

// WaitForConfirmation polls for the receipt of hash with exponential backoff until it
// lands or timeout elapses. A reverted transaction and a timeout are both chain errors;
// the returned receipt says which.
func (m *TxManager) WaitForConfirmation(ctx context.Context, hash common.Hash, timeout time.Duration) (core.Receipt, error) {
	const op = "wait for confirmation"
	pending := core.Receipt{TxHash: hash.Hex(), Status: core.TxPending}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.pollInitial
	b.MaxInterval = m.pollMax

	rcpt, err := backoff.Retry(ctx, func() (*types.Receipt, error) {
		r, err := m.backend.TransactionReceipt(ctx, hash)
		switch {
		case errors.Is(err, ethereum.NotFound):
			return nil, errPending
		case err != nil:
			m.log.Debugw("receipt_poll_failed", "hash", hash.Hex(), "err", err)
			return nil, err
		case r == nil:
			return nil, errPending
		}
		return r, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(timeout))
	if err != nil {
		m.log.Warnw("tx_unconfirmed", "hash", hash.Hex(), "timeout", timeout, "err", err)
		return pending, core.Chainf(op, "tx %s not confirmed within %s", hash.Hex(), timeout)
	}

	out := core.Receipt{
		TxHash:  hash.Hex(),
		Status:  core.TxSuccess,
		GasUsed: rcpt.GasUsed,
	}
	if rcpt.BlockNumber != nil {
		out.BlockNumber = rcpt.BlockNumber.Uint64()
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		out.Status = core.TxReverted
		m.log.Warnw("tx_reverted", "hash", hash.Hex(), "block", out.BlockNumber)
		return out, core.Chainf(op, "tx %s reverted", hash.Hex())
	}
	m.log.Infow("tx_confirmed", "hash", hash.Hex(), "block", out.BlockNumber, "gas_used", out.GasUsed)
	return out, nil
}

// Confirmed reports whether hash was mined successfully within timeout
func (m *TxManager) Confirmed(ctx context.Context, hash common.Hash, timeout time.Duration) bool {
	_, err := m.WaitForConfirmation(ctx, hash, timeout)
	return err == nil
}
