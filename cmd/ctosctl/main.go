// ctosctl drives one venue from the shell:
//
//	ctosctl -venue backpack price ETH_USDC
//	ctosctl -venue backpack buy -price 100 -tif post-only ETH_USDC 0.5
//	ctosctl -venue base sell -wait WETH-USDC 0.01
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradedriver/params"
	"github.com/uhyunpark/tradedriver/pkg/core"
	"github.com/uhyunpark/tradedriver/pkg/driver"
	"github.com/uhyunpark/tradedriver/pkg/util"
)

const usage = `usage: ctosctl [-venue backpack|base|paper] [-env file] [-v] <command> [args]

commands:
  price [symbol]
  buy|sell [-price p] [-type t] [-tif t] [-client id] [-reduce-only] [-soft] [-wait] <symbol> <size>
  amend [-price p] [-qty q] [-client id] <symbol> [order-id]
  revoke [-client id] <symbol> [order-id]
  status [-client id] <symbol> [order-id]
  close-all [-limit-offset f] [-side long|short] [-winners|-losers] [symbol]
  cancel-all [symbol]
  orders [symbol]
  positions
  balance
  wait [-timeout d] <tx-hash>
  capabilities
  journal [-limit n]
`

func main() {
	venue := flag.String("venue", "backpack", "backpack, base or paper")
	envPath := flag.String("env", "", ".env file, default ./.env")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := params.LoadFromEnv(*envPath)
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.LogFile, *verbose)
	} else {
		logger, err = util.NewLogger(*verbose)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	drv, err := driver.Open(ctx, cfg, *venue, sugar)
	if err != nil {
		sugar.Fatalw("driver_open_failed", "venue", *venue, "err", err)
	}
	defer drv.Close()

	out, err := run(ctx, drv, flag.Arg(0), flag.Args()[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v (kind %s)\n", flag.Arg(0), err, core.KindOf(err))
		drv.Close()
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode: %v", err)
	}
}

func run(ctx context.Context, drv *driver.Driver, cmd string, args []string) (any, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	switch cmd {
	case "price":
		px, err := drv.GetPriceNow(ctx, arg(args, 0))
		if err != nil {
			return nil, err
		}
		return map[string]any{"price": px}, nil

	case "buy", "sell":
		price := fs.String("price", "", "limit price")
		typ := fs.String("type", "", "market or limit")
		tif := fs.String("tif", "", "gtc, ioc, fok or post-only")
		client := fs.Uint64("client", 0, "client order id")
		reduce := fs.Bool("reduce-only", false, "")
		soft := fs.Bool("soft", false, "validate without sending")
		wait := fs.Bool("wait", false, "wait for on-chain confirmation")
		if err := fs.Parse(args); err != nil {
			return nil, core.Validationf(cmd, "%v", err)
		}
		if fs.NArg() != 2 {
			return nil, core.Validationf(cmd, "want <symbol> <size>")
		}
		size, err := decimal.NewFromString(fs.Arg(1))
		if err != nil {
			return nil, core.Validationf(cmd, "size: %v", err)
		}
		cid, err := clientID(cmd, *client)
		if err != nil {
			return nil, err
		}
		var opts []driver.OrderOption
		if *price != "" {
			p, err := decimal.NewFromString(*price)
			if err != nil {
				return nil, core.Validationf(cmd, "price: %v", err)
			}
			opts = append(opts, driver.Price(p))
		}
		if *typ != "" {
			opts = append(opts, driver.Type(*typ))
		}
		if *tif != "" {
			opts = append(opts, driver.TIF(*tif))
		}
		if cid != 0 {
			opts = append(opts, driver.ClientID(cid))
		}
		if *reduce {
			opts = append(opts, driver.ReduceOnly())
		}
		if *soft {
			opts = append(opts, driver.Soft())
		}
		place := drv.Buy
		if cmd == "sell" {
			place = drv.Sell
		}
		id, err := place(ctx, fs.Arg(0), size, opts...)
		if err != nil {
			return nil, err
		}
		if !*wait || id == core.DrySentinel {
			return map[string]any{"id": id}, nil
		}
		rcpt, err := drv.WaitForConfirmation(ctx, id, 0)
		return map[string]any{"id": id, "receipt": rcpt}, err

	case "amend":
		price := fs.String("price", "", "new price")
		qty := fs.String("qty", "", "new quantity")
		client := fs.Uint64("client", 0, "client order id")
		if err := fs.Parse(args); err != nil {
			return nil, core.Validationf(cmd, "%v", err)
		}
		ref, err := orderRef(cmd, fs, *client)
		if err != nil {
			return nil, err
		}
		p, err := nullDecimal(*price)
		if err != nil {
			return nil, core.Validationf(cmd, "price: %v", err)
		}
		q, err := nullDecimal(*qty)
		if err != nil {
			return nil, core.Validationf(cmd, "qty: %v", err)
		}
		id, err := drv.AmendOrder(ctx, ref, p, q)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil

	case "revoke", "status":
		client := fs.Uint64("client", 0, "client order id")
		if err := fs.Parse(args); err != nil {
			return nil, core.Validationf(cmd, "%v", err)
		}
		ref, err := orderRef(cmd, fs, *client)
		if err != nil {
			return nil, err
		}
		if cmd == "status" {
			return drv.GetOrderStatus(ctx, ref)
		}
		id, err := drv.RevokeOrder(ctx, ref)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil

	case "close-all":
		offset := fs.String("limit-offset", "", "close with limit orders this fraction off the mark")
		side := fs.String("side", "", "long or short")
		winners := fs.Bool("winners", false, "only positions in profit")
		losers := fs.Bool("losers", false, "only positions at a loss")
		if err := fs.Parse(args); err != nil {
			return nil, core.Validationf(cmd, "%v", err)
		}
		var opts []driver.CloseOption
		if *offset != "" {
			f, err := decimal.NewFromString(*offset)
			if err != nil {
				return nil, core.Validationf(cmd, "limit-offset: %v", err)
			}
			opts = append(opts, driver.CloseAtLimit(f))
		}
		switch *side {
		case "":
		case "long":
			opts = append(opts, driver.OnlyLongs())
		case "short":
			opts = append(opts, driver.OnlyShorts())
		default:
			return nil, core.Validationf(cmd, "side %q, want long or short", *side)
		}
		switch {
		case *winners && *losers:
			return nil, core.Validationf(cmd, "-winners and -losers are exclusive")
		case *winners:
			opts = append(opts, driver.OnlyWinners(true))
		case *losers:
			opts = append(opts, driver.OnlyWinners(false))
		}
		ids, err := drv.CloseAllPositions(ctx, fs.Arg(0), opts...)
		return map[string]any{"orders": ids}, err

	case "cancel-all":
		ids, err := drv.CancelAll(ctx, arg(args, 0))
		if err != nil {
			return nil, err
		}
		return map[string]any{"cancelled": ids}, nil

	case "orders":
		ids, err := drv.GetOpenOrders(ctx, arg(args, 0))
		if err != nil {
			return nil, err
		}
		return map[string]any{"orders": ids}, nil

	case "positions":
		return drv.FetchPosition(ctx)

	case "balance":
		return drv.FetchBalance(ctx)

	case "wait":
		timeout := fs.Duration("timeout", 0, "0 uses BASE_CONFIRM_TIMEOUT_MS")
		if err := fs.Parse(args); err != nil {
			return nil, core.Validationf(cmd, "%v", err)
		}
		if fs.NArg() != 1 {
			return nil, core.Validationf(cmd, "want <tx-hash>")
		}
		return drv.WaitForConfirmation(ctx, fs.Arg(0), *timeout)

	case "capabilities":
		return map[string]any{"venue": drv.Venue(), "capabilities": drv.Capabilities()}, nil

	case "journal":
		limit := fs.Int("limit", 20, "")
		if err := fs.Parse(args); err != nil {
			return nil, core.Validationf(cmd, "%v", err)
		}
		j := drv.Journal()
		if j == nil {
			return nil, core.Validationf(cmd, "JOURNAL_PATH is not set")
		}
		return j.Orders(drv.Venue(), *limit)
	}
	return nil, core.Validationf("ctosctl", "unknown command %q", cmd)
}

// orderRef reads <symbol> [order-id]; a client id replaces the order id
func orderRef(cmd string, fs *flag.FlagSet, client uint64) (core.OrderRef, error) {
	ref := core.OrderRef{Symbol: fs.Arg(0)}
	cid, err := clientID(cmd, client)
	if err != nil {
		return ref, err
	}
	if cid != 0 {
		ref.ClientID = cid
	} else {
		ref.OrderID = fs.Arg(1)
	}
	return ref, nil
}

// clientID narrows a flag value to the venue's 32-bit client id
func clientID(cmd string, v uint64) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, core.Validationf(cmd, "client id %d exceeds %d", v, uint64(math.MaxUint32))
	}
	return uint32(v), nil
}

func nullDecimal(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
