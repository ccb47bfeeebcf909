package symbol

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/tradedriver/pkg/crypto"
)

// Token is an ERC20 contract the chain venue can trade
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
}

// Registry resolves token symbols (and aliases such as ETH -> WETH) to contracts.
// Safe for concurrent use; normally filled once at startup.
type Registry struct {
	mu      sync.RWMutex
	tokens  map[string]Token  // symbol -> token
	aliases map[string]string // alias -> symbol
}

func NewRegistry() *Registry {
	return &Registry{
		tokens:  make(map[string]Token),
		aliases: make(map[string]string),
	}
}

// DefaultBaseTokens returns a registry with the Base mainnet tokens the driver trades
func DefaultBaseTokens(wrappedNative string) *Registry {
	r := NewRegistry()
	if wrappedNative == "" {
		wrappedNative = "0x4200000000000000000000000000000000000006"
	}
	must(r.RegisterHex("USDC", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", 6))
	must(r.RegisterHex("WETH", wrappedNative, 18))
	must(r.Alias("ETH", "WETH"))
	return r
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Register adds a token. Returns error if the symbol is already taken.
func (r *Registry) Register(t Token) error {
	sym := strings.ToUpper(strings.TrimSpace(t.Symbol))
	if sym == "" {
		return fmt.Errorf("token symbol is empty")
	}
	if t.Address == (common.Address{}) {
		return fmt.Errorf("token %s has zero address", sym)
	}
	t.Symbol = sym

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tokens[sym]; exists {
		return fmt.Errorf("token %s already registered", sym)
	}
	if _, exists := r.aliases[sym]; exists {
		return fmt.Errorf("token %s collides with an alias", sym)
	}
	r.tokens[sym] = t
	return nil
}

// RegisterHex parses a hex address and registers it. Mixed-case addresses must carry
// a valid EIP-55 checksum; all-lower and all-upper addresses are accepted as is.
func (r *Registry) RegisterHex(sym, addr string, decimals uint8) error {
	a, err := ParseAddress(addr)
	if err != nil {
		return fmt.Errorf("token %s: %w", sym, err)
	}
	return r.Register(Token{Symbol: sym, Address: a, Decimals: decimals})
}

// Alias makes alias resolve to an already registered symbol
func (r *Registry) Alias(alias, sym string) error {
	alias = strings.ToUpper(alias)
	sym = strings.ToUpper(sym)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[sym]; !ok {
		return fmt.Errorf("alias target %s not registered", sym)
	}
	if _, ok := r.tokens[alias]; ok {
		return fmt.Errorf("alias %s shadows a token", alias)
	}
	r.aliases[alias] = sym
	return nil
}

// Lookup resolves a symbol or alias, case-insensitively
func (r *Registry) Lookup(sym string) (Token, bool) {
	sym = strings.ToUpper(strings.TrimSpace(sym))

	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[sym]; ok {
		sym = target
	}
	t, ok := r.tokens[sym]
	return t, ok
}

// ByAddress finds a registered token by contract address
func (r *Registry) ByAddress(addr common.Address) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tokens {
		if t.Address == addr {
			return t, true
		}
	}
	return Token{}, false
}

// Tokens lists registered tokens sorted by symbol
func (r *Registry) Tokens() []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ParseAddress decodes a 0x-prefixed 20-byte address, enforcing EIP-55 on mixed case
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(body) != 40 {
		return common.Address{}, fmt.Errorf("invalid address %q: want 40 hex chars", s)
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	mixed := strings.ToLower(body) != body && strings.ToUpper(body) != body
	if mixed && crypto.EIP55(raw) != "0x"+body {
		return common.Address{}, fmt.Errorf("address %q fails EIP-55 checksum", s)
	}
	return common.BytesToAddress(raw), nil
}
