package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backpack holds credentials and transport settings for the Backpack REST venue
type Backpack struct {
	PublicKey string // base64 ED25519 public key, sent as X-API-Key
	SecretKey string // base64 ED25519 seed (32 bytes) or full private key (64 bytes)
	Window    time.Duration
	Proxy     string
	BaseURL   string
	Symbol    string // default symbol for price/order queries, venue style
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables pacing
	Burst     int
}

// Symbols controls symbol normalization defaults
type Symbols struct {
	DefaultQuote string
	DefaultBase  string
	// Market is one of "auto", "spot", "perp"
	Market string
}

// Chain holds settings for the on-chain AMM driver (Uniswap V3 style)
type Chain struct {
	PrivateKey      string
	RPCURL          string
	ChainID         int64 // 0 = ask the node
	Router          string
	RouterVersion   string // "swaprouter02" or "swaprouter"
	Quoter          string
	PositionManager string
	WrappedNative   string
	FeeTier         uint32
	// SlippageBps bounds swap output when no limit price is given. 0 disables the bound.
	SlippageBps      int64
	DeadlineGrace    time.Duration
	ConfirmTimeout   time.Duration
	GasMultiplierPct int64
	ApproveGas       uint64
	SwapGas          uint64
	MintGas          uint64
	WrapGas          uint64
}

type Config struct {
	Backpack    Backpack
	Symbols     Symbols
	Chain       Chain
	JournalPath string // empty disables the journal
	LogFile     string
	SandboxAddr string
}

func Default() Config {
	return Config{
		Backpack: Backpack{
			Window:    10 * time.Second,
			BaseURL:   "https://api.backpack.exchange",
			Symbol:    "ETH_USDC_PERP",
			Timeout:   10 * time.Second,
			RateLimit: 10,
			Burst:     5,
		},
		Symbols: Symbols{
			DefaultQuote: "USDC",
			DefaultBase:  "ETH",
			Market:       "auto",
		},
		Chain: Chain{
			RPCURL:           "https://mainnet.base.org",
			ChainID:          8453,
			Router:           "0x2626664c2603336E57B271c5C0b26F421741e481",
			RouterVersion:    "swaprouter02",
			Quoter:           "0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a",
			PositionManager:  "0x03a520b32C04BF3bEEf7BEb72E919cf822Ed34f1",
			WrappedNative:    "0x4200000000000000000000000000000000000006",
			FeeTier:          500,
			SlippageBps:      50,
			DeadlineGrace:    600 * time.Second,
			ConfirmTimeout:   60 * time.Second,
			GasMultiplierPct: 120,
			ApproveGas:       100_000,
			SwapGas:          300_000,
			MintGas:          800_000,
			WrapGas:          100_000,
		},
		SandboxAddr: "127.0.0.1:8090",
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Backpack.PublicKey = getEnv("BP_PUBLIC_KEY", cfg.Backpack.PublicKey)
	cfg.Backpack.SecretKey = getEnv("BP_SECRET_KEY", cfg.Backpack.SecretKey)
	cfg.Backpack.Proxy = getEnv("BP_PROXY", cfg.Backpack.Proxy)
	cfg.Backpack.BaseURL = strings.TrimRight(getEnv("BP_HOST", cfg.Backpack.BaseURL), "/")
	cfg.Backpack.Symbol = getEnv("BP_SYMBOL", cfg.Backpack.Symbol)
	cfg.Backpack.Window = getMillis("BP_WINDOW", cfg.Backpack.Window)
	cfg.Backpack.Timeout = getMillis("BP_TIMEOUT_MS", cfg.Backpack.Timeout)
	if v := os.Getenv("BP_RATE_LIMIT"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Backpack.RateLimit = rps
		}
	}

	cfg.Symbols.DefaultQuote = strings.ToUpper(getEnv("DEFAULT_QUOTE", cfg.Symbols.DefaultQuote))
	cfg.Symbols.DefaultBase = strings.ToUpper(getEnv("DEFAULT_BASE", cfg.Symbols.DefaultBase))
	cfg.Symbols.Market = strings.ToLower(getEnv("MARKET_KIND", cfg.Symbols.Market))

	cfg.Chain.PrivateKey = getEnv("BASE_PRIVATE_KEY", cfg.Chain.PrivateKey)
	cfg.Chain.RPCURL = getEnv("BASE_RPC_URL", cfg.Chain.RPCURL)
	cfg.Chain.Router = getEnv("BASE_ROUTER", cfg.Chain.Router)
	cfg.Chain.RouterVersion = strings.ToLower(getEnv("BASE_ROUTER_VERSION", cfg.Chain.RouterVersion))
	cfg.Chain.Quoter = getEnv("BASE_QUOTER", cfg.Chain.Quoter)
	cfg.Chain.PositionManager = getEnv("BASE_POSITION_MANAGER", cfg.Chain.PositionManager)
	cfg.Chain.WrappedNative = getEnv("BASE_WETH", cfg.Chain.WrappedNative)
	if v := os.Getenv("BASE_CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Chain.ChainID = id
		}
	}
	if v := os.Getenv("BASE_FEE_TIER"); v != "" {
		if fee, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Chain.FeeTier = uint32(fee)
		}
	}
	if v := os.Getenv("BASE_SLIPPAGE_BPS"); v != "" {
		if bps, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Chain.SlippageBps = bps
		}
	}
	if v := os.Getenv("BASE_GAS_MULTIPLIER_PCT"); v != "" {
		if pct, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Chain.GasMultiplierPct = pct
		}
	}
	cfg.Chain.ConfirmTimeout = getMillis("BASE_CONFIRM_TIMEOUT_MS", cfg.Chain.ConfirmTimeout)

	cfg.JournalPath = getEnv("JOURNAL_PATH", cfg.JournalPath)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.SandboxAddr = getEnv("SANDBOX_ADDR", cfg.SandboxAddr)

	return cfg
}

// ValidateBackpack reports missing credentials for the REST venue
func (c Config) ValidateBackpack() error {
	if c.Backpack.PublicKey == "" || c.Backpack.SecretKey == "" {
		return fmt.Errorf("BP_PUBLIC_KEY and BP_SECRET_KEY are required")
	}
	if c.Backpack.BaseURL == "" {
		return fmt.Errorf("BP_HOST must not be empty")
	}
	if c.Backpack.Window <= 0 {
		return fmt.Errorf("BP_WINDOW must be positive")
	}
	return nil
}

// ValidateChain reports missing settings for the chain venue
func (c Config) ValidateChain() error {
	if c.Chain.PrivateKey == "" {
		return fmt.Errorf("BASE_PRIVATE_KEY is required")
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("BASE_RPC_URL must not be empty")
	}
	if c.Chain.SlippageBps < 0 || c.Chain.SlippageBps >= 10_000 {
		return fmt.Errorf("BASE_SLIPPAGE_BPS out of range: %d", c.Chain.SlippageBps)
	}
	if c.Chain.GasMultiplierPct < 100 {
		return fmt.Errorf("BASE_GAS_MULTIPLIER_PCT must be >= 100, got %d", c.Chain.GasMultiplierPct)
	}
	switch c.Chain.RouterVersion {
	case "swaprouter02", "swaprouter":
	default:
		return fmt.Errorf("unknown BASE_ROUTER_VERSION %q", c.Chain.RouterVersion)
	}
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getMillis(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
