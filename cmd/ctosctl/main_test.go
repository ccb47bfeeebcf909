package main

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/tradedriver/pkg/core"
	"github.com/uhyunpark/tradedriver/pkg/driver"
	"github.com/uhyunpark/tradedriver/pkg/paper"
	"github.com/uhyunpark/tradedriver/pkg/symbol"
)

func newPaperDriver(t *testing.T) (*driver.Driver, *paper.Venue) {
	t.Helper()
	v := paper.New()
	v.SetPrice("ETH_USDC", decimal.NewFromInt(123))
	v.Deposit("USDC", decimal.NewFromInt(10_000))
	norm, err := symbol.NewNormalizer(symbol.Options{Style: symbol.StyleBackpack, DefaultQuote: "USDC", DefaultBase: "ETH"})
	if err != nil {
		t.Fatal(err)
	}
	return driver.New("paper", v, norm, driver.WithDefaultSymbol("ETH_USDC")), v
}

func TestClientIDOverflowRejected(t *testing.T) {
	ctx := context.Background()
	drv, v := newPaperDriver(t)
	tests := []struct {
		cmd  string
		args []string
	}{
		{"buy", []string{"-client", "4294967296", "-price", "100", "ETH_USDC", "1"}},
		{"amend", []string{"-client", "4294967296", "-price", "101", "ETH_USDC"}},
		{"revoke", []string{"-client", "4294967296", "ETH_USDC"}},
		{"status", []string{"-client", "8589934597", "ETH_USDC"}},
	}
	for _, tt := range tests {
		if _, err := run(ctx, drv, tt.cmd, tt.args); !errors.Is(err, core.ErrValidation) {
			t.Errorf("%s error = %v, want validation", tt.cmd, err)
		}
	}
	if orders := v.History(ctx, "", 0); len(orders) != 0 {
		t.Errorf("venue received %d orders", len(orders))
	}
}

func TestClientIDUpperBound(t *testing.T) {
	ctx := context.Background()
	drv, _ := newPaperDriver(t)
	if _, err := run(ctx, drv, "buy", []string{"-client", "4294967295", "-price", "100", "ETH_USDC", "1"}); err != nil {
		t.Fatalf("buy error = %v", err)
	}
	out, err := run(ctx, drv, "status", []string{"-client", "4294967295", "ETH_USDC"})
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if o, ok := out.(core.Order); !ok || o.ClientID != 4294967295 || o.Status != core.StatusNew {
		t.Errorf("status = %+v", out)
	}
}

func TestCloseAllFlags(t *testing.T) {
	drv, _ := newPaperDriver(t)
	bad := [][]string{
		{"-side", "sideways"},
		{"-winners", "-losers"},
		{"-limit-offset", "abc"},
	}
	for _, args := range bad {
		if _, err := run(context.Background(), drv, "close-all", args); !errors.Is(err, core.ErrValidation) {
			t.Errorf("close-all %v error = %v, want validation", args, err)
		}
	}
	if out, err := run(context.Background(), drv, "close-all", []string{"-side", "long"}); err != nil {
		t.Errorf("close-all = %v, %v", out, err)
	}
}
