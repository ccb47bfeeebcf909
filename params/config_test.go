package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnvPrecedence(t *testing.T) {
	env := filepath.Join(t.TempDir(), ".env")
	content := "BP_SYMBOL=SOL_USDC\nBP_WINDOW=3000\nDEFAULT_QUOTE=usdt\nBASE_SLIPPAGE_BPS=25\n"
	if err := os.WriteFile(env, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BP_SYMBOL", "BTC_USDC")
	t.Setenv("BP_HOST", "http://127.0.0.1:8090/")
	t.Setenv("BASE_CHAIN_ID", "84532")
	t.Setenv("MARKET_KIND", "PERP")

	cfg := LoadFromEnv(env)
	if cfg.Backpack.Symbol != "BTC_USDC" {
		t.Errorf("Symbol = %q, environment should win over .env", cfg.Backpack.Symbol)
	}
	if cfg.Backpack.Window != 3*time.Second {
		t.Errorf("Window = %v", cfg.Backpack.Window)
	}
	if cfg.Backpack.BaseURL != "http://127.0.0.1:8090" {
		t.Errorf("BaseURL = %q", cfg.Backpack.BaseURL)
	}
	if cfg.Symbols.DefaultQuote != "USDT" || cfg.Symbols.Market != "perp" {
		t.Errorf("Symbols = %+v", cfg.Symbols)
	}
	if cfg.Chain.ChainID != 84532 || cfg.Chain.SlippageBps != 25 {
		t.Errorf("Chain = %+v", cfg.Chain)
	}
	if cfg.Chain.FeeTier != 500 {
		t.Errorf("FeeTier = %d, want default 500", cfg.Chain.FeeTier)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		chain   bool
		wantErr bool
	}{
		{"backpack missing keys", func(c *Config) {}, false, true},
		{"backpack ok", func(c *Config) { c.Backpack.PublicKey, c.Backpack.SecretKey = "pk", "sk" }, false, false},
		{"backpack zero window", func(c *Config) {
			c.Backpack.PublicKey, c.Backpack.SecretKey = "pk", "sk"
			c.Backpack.Window = 0
		}, false, true},
		{"chain missing key", func(c *Config) {}, true, true},
		{"chain ok", func(c *Config) { c.Chain.PrivateKey = "0x01" }, true, false},
		{"chain slippage out of range", func(c *Config) {
			c.Chain.PrivateKey = "0x01"
			c.Chain.SlippageBps = 10_000
		}, true, true},
		{"chain low gas multiplier", func(c *Config) {
			c.Chain.PrivateKey = "0x01"
			c.Chain.GasMultiplierPct = 90
		}, true, true},
		{"chain unknown router", func(c *Config) {
			c.Chain.PrivateKey = "0x01"
			c.Chain.RouterVersion = "v4"
		}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			validate := cfg.ValidateBackpack
			if tt.chain {
				validate = cfg.ValidateChain
			}
			if err := validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
