package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/tradedriver/params"
	"github.com/uhyunpark/tradedriver/pkg/paper"
	"github.com/uhyunpark/tradedriver/pkg/sandbox"
	"github.com/uhyunpark/tradedriver/pkg/util"
)

// seed markets and funds for the local venue
var (
	seedPrices = map[string]string{
		"ETH_USDC":      "2000",
		"SOL_USDC":      "150",
		"BTC_USDC":      "60000",
		"ETH_USDC_PERP": "2000",
		"SOL_USDC_PERP": "150",
	}
	seedFunds = map[string]string{
		"USDC": "100000",
		"ETH":  "10",
		"SOL":  "100",
	}
)

func main() {
	cfg := params.LoadFromEnv("")

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "data/sandbox.log"
	}
	logger, err := util.NewLoggerWithFile(logFile, os.Getenv("VERBOSE") == "true")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	venue := paper.New(paper.WithLogger(sugar.Named("paper")))
	for sym, px := range seedPrices {
		venue.SetPrice(sym, decimal.RequireFromString(px))
	}
	for asset, amt := range seedFunds {
		venue.Deposit(asset, decimal.RequireFromString(amt))
	}

	opts := []sandbox.Option{sandbox.WithLogger(sugar.Named("sandbox"))}
	if cfg.Backpack.PublicKey != "" {
		pub, err := base64.StdEncoding.DecodeString(cfg.Backpack.PublicKey)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			sugar.Fatalw("bad_api_key", "err", err, "len", len(pub))
		}
		opts = append(opts, sandbox.WithAPIKey(ed25519.PublicKey(pub)))
		sugar.Infow("signature_check_enabled")
	} else {
		sugar.Warnw("signature_check_disabled", "reason", "BP_PUBLIC_KEY not set")
	}
	srv := sandbox.NewServer(venue, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow("sandbox_starting", "addr", cfg.SandboxAddr, "markets", len(seedPrices))
	if err := srv.Start(ctx, cfg.SandboxAddr); err != nil {
		sugar.Fatalw("sandbox_failed", "err", err)
	}
	sugar.Infow("sandbox_stopped", "requests", srv.Requests())
}
