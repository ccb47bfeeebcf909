package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet holds the secp256k1 key that signs on-chain transactions
type Wallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// GenerateWallet creates a random key pair (tests and local devnets)
func GenerateWallet() (*Wallet, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newWallet(privateKey), nil
}

// WalletFromHex parses a hex private key, with or without 0x prefix
func WalletFromHex(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return newWallet(privateKey), nil
}

func newWallet(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{privateKey: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Address returns the Ethereum address derived from the public key
func (w *Wallet) Address() common.Address {
	return w.address
}

// SignTx signs tx for chainID with the latest signer rules for that chain
func (w *Wallet) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign tx: %w", err)
	}
	return signed, nil
}
