// Package symbol maps human-entered trading symbols onto each venue's canonical form.
package symbol

import (
	"fmt"
	"strings"

	"github.com/uhyunpark/tradedriver/pkg/core"
)

// Style selects the canonical string format of a venue
type Style uint8

const (
	// StyleBackpack renders BASE_QUOTE and BASE_QUOTE_PERP
	StyleBackpack Style = iota
	// StyleOKX renders BASE-QUOTE and BASE-QUOTE-SWAP
	StyleOKX
	// StyleChain renders BASE-QUOTE with both tokens resolved through a Registry
	StyleChain
)

func (s Style) sep() string {
	if s == StyleBackpack {
		return "_"
	}
	return "-"
}

func (s Style) perpSuffix() string {
	switch s {
	case StyleBackpack:
		return "PERP"
	case StyleOKX:
		return "SWAP"
	}
	return ""
}

// MarketKind forces or preserves the perpetual flag
type MarketKind uint8

const (
	MarketAuto MarketKind = iota
	MarketSpot
	MarketPerp
)

// ParseMarketKind reads "auto", "spot" or "perp"; anything else is auto
func ParseMarketKind(s string) MarketKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spot":
		return MarketSpot
	case "perp", "swap", "perpetual", "futures":
		return MarketPerp
	}
	return MarketAuto
}

var perpSuffixes = map[string]bool{"SWAP": true, "PERP": true, "PERPETUAL": true}

// Symbol is a normalized trading pair
type Symbol struct {
	Base  string
	Quote string
	Perp  bool
	Style Style
	// Resolved contracts, set for StyleChain only
	BaseToken  Token
	QuoteToken Token
}

// String renders the venue's canonical symbol
func (s Symbol) String() string {
	sep := s.Style.sep()
	out := s.Base + sep + s.Quote
	if s.Perp {
		out += sep + s.Style.perpSuffix()
	}
	return out
}

// Options is static normalizer configuration
type Options struct {
	Style        Style
	DefaultQuote string
	DefaultBase  string
	Market       MarketKind
	// KnownAssets, when non-empty, restricts the assets accepted by CEX styles
	KnownAssets []string
	// Registry resolves tokens for StyleChain; required for that style
	Registry *Registry
}

// Normalizer is a pure function of its input and Options; it never touches the network
type Normalizer struct {
	opts  Options
	known map[string]bool
}

func NewNormalizer(opts Options) (*Normalizer, error) {
	opts.DefaultQuote = strings.ToUpper(strings.TrimSpace(opts.DefaultQuote))
	opts.DefaultBase = strings.ToUpper(strings.TrimSpace(opts.DefaultBase))
	if opts.DefaultQuote == "" || opts.DefaultBase == "" {
		return nil, fmt.Errorf("default base and quote are required")
	}
	if opts.DefaultQuote == opts.DefaultBase {
		return nil, fmt.Errorf("default base and quote must differ, both %s", opts.DefaultBase)
	}
	if opts.Style == StyleChain && opts.Registry == nil {
		return nil, fmt.Errorf("chain style requires a token registry")
	}
	n := &Normalizer{opts: opts}
	if len(opts.KnownAssets) > 0 {
		n.known = make(map[string]bool, len(opts.KnownAssets))
		for _, a := range opts.KnownAssets {
			n.known[strings.ToUpper(a)] = true
		}
	}
	return n, nil
}

// Normalize parses raw into the venue's canonical pair
func (n *Normalizer) Normalize(raw string) (Symbol, error) {
	const op = "normalize symbol"

	tokens, perp, err := tokenize(raw)
	if err != nil {
		return Symbol{}, err
	}

	var base, quote string
	switch len(tokens) {
	case 1:
		if tokens[0] == n.opts.DefaultQuote {
			base, quote = n.opts.DefaultBase, n.opts.DefaultQuote
		} else {
			base, quote = tokens[0], n.opts.DefaultQuote
		}
	case 2:
		base, quote = tokens[0], tokens[1]
	default:
		return Symbol{}, core.UnsupportedSymbolf(op, "%q has %d assets, want 1 or 2", raw, len(tokens))
	}
	if base == quote {
		return Symbol{}, core.UnsupportedSymbolf(op, "%q pairs %s with itself", raw, base)
	}

	switch n.opts.Market {
	case MarketSpot:
		perp = false
	case MarketPerp:
		perp = true
	}

	sym := Symbol{Base: base, Quote: quote, Perp: perp, Style: n.opts.Style}
	if n.opts.Style == StyleChain {
		return n.resolveChain(raw, sym)
	}
	for _, a := range []string{base, quote} {
		if n.known != nil && !n.known[a] {
			return Symbol{}, core.UnsupportedSymbolf(op, "unknown asset %s in %q", a, raw)
		}
	}
	return sym, nil
}

// NormalizeString is Normalize rendered to the canonical string
func (n *Normalizer) NormalizeString(raw string) (string, error) {
	s, err := n.Normalize(raw)
	if err != nil {
		return "", err
	}
	return s.String(), nil
}

func (n *Normalizer) resolveChain(raw string, sym Symbol) (Symbol, error) {
	const op = "normalize symbol"
	if sym.Perp {
		return Symbol{}, core.UnsupportedSymbolf(op, "%q: perpetuals are not tradable on chain", raw)
	}
	bt, ok := n.opts.Registry.Lookup(sym.Base)
	if !ok {
		return Symbol{}, core.UnsupportedSymbolf(op, "no token contract for %s", sym.Base)
	}
	qt, ok := n.opts.Registry.Lookup(sym.Quote)
	if !ok {
		return Symbol{}, core.UnsupportedSymbolf(op, "no token contract for %s", sym.Quote)
	}
	if bt.Address == qt.Address {
		return Symbol{}, core.UnsupportedSymbolf(op, "%q resolves to a single token %s", raw, bt.Symbol)
	}
	sym.Base, sym.Quote = bt.Symbol, qt.Symbol
	sym.BaseToken, sym.QuoteToken = bt, qt
	return sym, nil
}

// tokenize uppercases raw, splits on / - _ and whitespace and strips a trailing perp suffix
func tokenize(raw string) ([]string, bool, error) {
	const op = "normalize symbol"
	up := strings.ToUpper(strings.TrimSpace(raw))
	if up == "" {
		return nil, false, core.UnsupportedSymbolf(op, "empty symbol")
	}
	fields := strings.FieldsFunc(up, func(r rune) bool {
		return r == '/' || r == '-' || r == '_' || r == ' ' || r == '\t'
	})
	for _, f := range fields {
		for _, r := range f {
			if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
				return nil, false, core.UnsupportedSymbolf(op, "invalid character %q in %q", r, raw)
			}
		}
	}
	perp := false
	if len(fields) > 1 && perpSuffixes[fields[len(fields)-1]] {
		perp = true
		fields = fields[:len(fields)-1]
	}
	if len(fields) == 0 {
		return nil, false, core.UnsupportedSymbolf(op, "no assets in %q", raw)
	}
	return fields, perp, nil
}
