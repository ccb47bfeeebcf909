package driver

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/uhyunpark/tradedriver/params"
	"github.com/uhyunpark/tradedriver/pkg/cex/backpack"
	"github.com/uhyunpark/tradedriver/pkg/chain"
	"github.com/uhyunpark/tradedriver/pkg/core"
	"github.com/uhyunpark/tradedriver/pkg/journal"
	"github.com/uhyunpark/tradedriver/pkg/paper"
	"github.com/uhyunpark/tradedriver/pkg/symbol"
	"github.com/uhyunpark/tradedriver/pkg/util"
)

// Venue names accepted by Open
const (
	VenueBackpack = "backpack"
	VenueBase     = "base"
	VenuePaper    = "paper"
)

// Open builds a driver for the named venue from cfg. The caller owns the result and
// must Close it.
func Open(ctx context.Context, cfg params.Config, venue string, log *zap.SugaredLogger) (*Driver, error) {
	const op = "open driver"
	log = util.OrNop(log)
	venue = strings.ToLower(strings.TrimSpace(venue))

	var (
		backend any
		norm    *symbol.Normalizer
		opts    = []Option{WithLogger(log)}
		closers []func() error
		err     error
	)
	switch venue {
	case VenueBackpack:
		if err := cfg.ValidateBackpack(); err != nil {
			return nil, core.Validationf(op, "%v", err)
		}
		gw, err := backpack.NewGateway(cfg.Backpack, log.Named(venue))
		if err != nil {
			return nil, err
		}
		backend = gw
		if norm, err = cexNormalizer(cfg.Symbols, symbol.StyleBackpack); err != nil {
			return nil, err
		}
		opts = append(opts, WithDefaultSymbol(cfg.Backpack.Symbol))

	case VenueBase:
		if err := cfg.ValidateChain(); err != nil {
			return nil, core.Validationf(op, "%v", err)
		}
		client, err := chain.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return nil, err
		}
		gw, err := chain.NewGateway(ctx, client, cfg.Chain, cfg.Symbols, chain.WithLogger(log.Named(venue)))
		if err != nil {
			client.Close()
			return nil, err
		}
		backend = gw
		norm, err = symbol.NewNormalizer(symbol.Options{
			Style:        symbol.StyleChain,
			DefaultQuote: cfg.Symbols.DefaultQuote,
			DefaultBase:  cfg.Symbols.DefaultBase,
			Market:       symbol.ParseMarketKind(cfg.Symbols.Market),
			Registry:     gw.Registry(),
		})
		if err != nil {
			client.Close()
			return nil, core.Validationf(op, "symbols: %v", err)
		}
		opts = append(opts, WithDefaultSymbol(cfg.Symbols.DefaultBase+"-"+cfg.Symbols.DefaultQuote))
		closers = append(closers, func() error { client.Close(); return nil })

	case VenuePaper:
		backend = paper.New(paper.WithLogger(log.Named(venue)))
		if norm, err = cexNormalizer(cfg.Symbols, symbol.StyleBackpack); err != nil {
			return nil, err
		}
		opts = append(opts, WithDefaultSymbol(cfg.Backpack.Symbol))

	default:
		return nil, core.Validationf(op, "unknown venue %q, want %s, %s or %s", venue, VenueBackpack, VenueBase, VenuePaper)
	}

	if cfg.JournalPath != "" {
		j, err := openJournal(cfg.JournalPath, closers)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithJournal(j))
		closers = append(closers, j.Close)
	}
	for _, fn := range closers {
		opts = append(opts, WithCloser(fn))
	}
	return New(venue, backend, norm, opts...), nil
}

// openJournal runs release when the journal cannot be opened, since no Driver will own it
func openJournal(path string, release []func() error) (journal.Journal, error) {
	j, err := journal.Open(path)
	if err != nil {
		for _, fn := range release {
			_ = fn()
		}
		return nil, core.Validationf("open driver", "journal: %v", err)
	}
	return j, nil
}

func cexNormalizer(s params.Symbols, style symbol.Style) (*symbol.Normalizer, error) {
	norm, err := symbol.NewNormalizer(symbol.Options{
		Style:        style,
		DefaultQuote: s.DefaultQuote,
		DefaultBase:  s.DefaultBase,
		Market:       symbol.ParseMarketKind(s.Market),
	})
	if err != nil {
		return nil, core.Validationf("open driver", "symbols: %v", err)
	}
	return norm, nil
}
