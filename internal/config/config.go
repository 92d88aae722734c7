package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/kjannette/trahn-signals/internal/models"
)

type Config struct {
	// Secrets (from .env)
	PrivateKey          string
	EthereumAPIEndpoint string
	WebhookURL          string
	BotName             string
	APIKey              string
	CORSAllowOrigin     string

	// Database
	DBEnabled  bool
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// Blockchain
	ChainID              int
	QuoteTokenAddress    string
	QuoteTokenSymbol     string
	QuoteTokenDecimals   int
	UniswapRouterAddress string
	GasLimit             int
	GasMultiplier        float64

	// Trading
	EnableAutoTrading     bool
	MaxSlippagePct        float64
	MaxTradeSizeUSD       float64
	MinLiquidityUSD       float64
	StopLossPct           float64
	TakeProfitPct         float64
	MaxOpenPositions      int
	RiskLevel             models.RiskLevel
	Cooldown              time.Duration
	MinMovePct            float64
	AllowStackedPositions bool
	VerifiedTokens        []string

	// Paper Trading
	PaperTradingEnabled bool
	PaperInitialQuote   float64
	PaperSlippagePct    float64

	// Market data
	MarketDataURL         string
	MarketDataMinInterval time.Duration
	QuoteMinInterval      time.Duration
	MaxBackoff            time.Duration
	RetryAttempts         int
	HTTPTimeout           time.Duration
	SnapshotCacheTTL      time.Duration
	BatchCacheTTL         time.Duration
	CacheCleanupInterval  time.Duration

	// Scheduling
	PollInterval     time.Duration
	ScanInterval     time.Duration
	ConcurrencyLimit int
	Watchlist        []string

	// API / observability
	APIPort          int
	LogLevel         string
	LogFormat        string
	MetricsNamespace string
}

// Load reads .env into the environment, then resolves every key from the
// environment, an optional config file, and defaults, in that order.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := fromViper(v)

	var err error
	if cfg.VerifiedTokens, err = list(v, "verified_tokens"); err != nil {
		return nil, err
	}
	if cfg.Watchlist, err = list(v, "watchlist"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot_name", "TrahnSignals")
	v.SetDefault("cors_allow_origin", "*")

	v.SetDefault("db_enabled", true)
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_name", "trahn_signals")

	v.SetDefault("chain_id", 1)
	v.SetDefault("quote_token_address", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	v.SetDefault("quote_token_symbol", "USDC")
	v.SetDefault("quote_token_decimals", 6)
	v.SetDefault("uniswap_router_address", "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	v.SetDefault("gas_limit", 300000)
	v.SetDefault("gas_multiplier", 1.2)

	v.SetDefault("enable_auto_trading", false)
	v.SetDefault("max_slippage_pct", 1.0)
	v.SetDefault("max_trade_size_usd", 100)
	v.SetDefault("min_liquidity_usd", 50000)
	v.SetDefault("stop_loss_pct", 0.10)
	v.SetDefault("take_profit_pct", 0.20)
	v.SetDefault("max_open_positions", 5)
	v.SetDefault("risk_level", string(models.RiskMedium))
	v.SetDefault("cooldown_ms", 5*60*1000)
	v.SetDefault("min_move_pct", 5.0)
	v.SetDefault("allow_stacked_positions", true)
	v.SetDefault("verified_tokens", "")

	v.SetDefault("paper_trading_enabled", true)
	v.SetDefault("paper_initial_quote", 1000)
	v.SetDefault("paper_slippage_pct", 0.5)

	v.SetDefault("market_data_url", "https://api.dexscreener.com")
	v.SetDefault("market_data_min_interval_ms", 1000)
	v.SetDefault("quote_min_interval_ms", 500)
	v.SetDefault("max_backoff_ms", 30000)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("http_timeout_seconds", 10)
	v.SetDefault("snapshot_cache_ttl_seconds", 30)
	v.SetDefault("batch_cache_ttl_seconds", 120)
	v.SetDefault("cache_cleanup_interval_seconds", 60)

	v.SetDefault("poll_interval_ms", 60000)
	v.SetDefault("scan_interval_seconds", 300)
	v.SetDefault("concurrency_limit", 3)
	v.SetDefault("watchlist", "")

	v.SetDefault("api_port", 3001)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("metrics_namespace", "trahn")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		PrivateKey:          v.GetString("private_key"),
		EthereumAPIEndpoint: v.GetString("ethereum_api_endpoint"),
		WebhookURL:          v.GetString("webhook_url"),
		BotName:             v.GetString("bot_name"),
		APIKey:              v.GetString("api_key"),
		CORSAllowOrigin:     v.GetString("cors_allow_origin"),

		DBEnabled:  v.GetBool("db_enabled"),
		DBHost:     v.GetString("db_host"),
		DBPort:     v.GetInt("db_port"),
		DBName:     v.GetString("db_name"),
		DBUser:     v.GetString("db_user"),
		DBPassword: v.GetString("db_password"),

		ChainID:              v.GetInt("chain_id"),
		QuoteTokenAddress:    v.GetString("quote_token_address"),
		QuoteTokenSymbol:     v.GetString("quote_token_symbol"),
		QuoteTokenDecimals:   v.GetInt("quote_token_decimals"),
		UniswapRouterAddress: v.GetString("uniswap_router_address"),
		GasLimit:             v.GetInt("gas_limit"),
		GasMultiplier:        v.GetFloat64("gas_multiplier"),

		EnableAutoTrading:     v.GetBool("enable_auto_trading"),
		MaxSlippagePct:        v.GetFloat64("max_slippage_pct"),
		MaxTradeSizeUSD:       v.GetFloat64("max_trade_size_usd"),
		MinLiquidityUSD:       v.GetFloat64("min_liquidity_usd"),
		StopLossPct:           v.GetFloat64("stop_loss_pct"),
		TakeProfitPct:         v.GetFloat64("take_profit_pct"),
		MaxOpenPositions:      v.GetInt("max_open_positions"),
		RiskLevel:             models.RiskLevel(strings.ToLower(v.GetString("risk_level"))),
		Cooldown:              millis(v, "cooldown_ms"),
		MinMovePct:            v.GetFloat64("min_move_pct"),
		AllowStackedPositions: v.GetBool("allow_stacked_positions"),

		PaperTradingEnabled: v.GetBool("paper_trading_enabled"),
		PaperInitialQuote:   v.GetFloat64("paper_initial_quote"),
		PaperSlippagePct:    v.GetFloat64("paper_slippage_pct"),

		MarketDataURL:         strings.TrimRight(v.GetString("market_data_url"), "/"),
		MarketDataMinInterval: millis(v, "market_data_min_interval_ms"),
		QuoteMinInterval:      millis(v, "quote_min_interval_ms"),
		MaxBackoff:            millis(v, "max_backoff_ms"),
		RetryAttempts:         v.GetInt("retry_attempts"),
		HTTPTimeout:           seconds(v, "http_timeout_seconds"),
		SnapshotCacheTTL:      seconds(v, "snapshot_cache_ttl_seconds"),
		BatchCacheTTL:         seconds(v, "batch_cache_ttl_seconds"),
		CacheCleanupInterval:  seconds(v, "cache_cleanup_interval_seconds"),

		PollInterval:     millis(v, "poll_interval_ms"),
		ScanInterval:     seconds(v, "scan_interval_seconds"),
		ConcurrencyLimit: v.GetInt("concurrency_limit"),

		APIPort:          v.GetInt("api_port"),
		LogLevel:         v.GetString("log_level"),
		LogFormat:        v.GetString("log_format"),
		MetricsNamespace: v.GetString("metrics_namespace"),
	}
}

// Validate returns every hard misconfiguration joined together and logs
// softer concerns as warnings.
func (c *Config) Validate(log logrus.FieldLogger) error {
	var errs []error

	if !c.RiskLevel.Valid() {
		errs = append(errs, fmt.Errorf("RISK_LEVEL must be low, medium or high, got %q", c.RiskLevel))
	}
	if c.MaxTradeSizeUSD <= 0 {
		errs = append(errs, errors.New("MAX_TRADE_SIZE_USD must be positive"))
	}
	if c.StopLossPct <= 0 || c.StopLossPct >= 1 {
		errs = append(errs, errors.New("STOP_LOSS_PCT must be a fraction in (0, 1)"))
	}
	if c.TakeProfitPct <= 0 {
		errs = append(errs, errors.New("TAKE_PROFIT_PCT must be positive"))
	}
	if c.MaxOpenPositions <= 0 {
		errs = append(errs, errors.New("MAX_OPEN_POSITIONS must be positive"))
	}
	if c.ConcurrencyLimit <= 0 {
		errs = append(errs, errors.New("CONCURRENCY_LIMIT must be positive"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL_MS must be positive"))
	}
	if !c.PaperTradingEnabled {
		if c.PrivateKey == "" {
			errs = append(errs, errors.New("PRIVATE_KEY is required for live trading"))
		}
		if c.EthereumAPIEndpoint == "" {
			errs = append(errs, errors.New("ETHEREUM_API_ENDPOINT is required for live trading"))
		}
	}

	if !c.EnableAutoTrading {
		log.Warn("ENABLE_AUTO_TRADING is false; signals will be generated but not executed")
	}
	if c.APIKey == "" {
		log.Warn("API_KEY not set; REST API has no authentication")
	}
	if c.RiskLevel == models.RiskLow && len(c.VerifiedTokens) == 0 {
		log.Warn("RISK_LEVEL=low with no VERIFIED_TOKENS; only tokens the market feed marks verified can be bought")
	}

	return errors.Join(errs...)
}

func (c *Config) Print(log logrus.FieldLogger) {
	mode := "live"
	if c.PaperTradingEnabled {
		mode = "paper"
	}
	log.WithFields(logrus.Fields{
		"mode":             mode,
		"auto_trading":     c.EnableAutoTrading,
		"chain_id":         c.ChainID,
		"quote_token":      fmt.Sprintf("%s (%s)", c.QuoteTokenSymbol, truncAddr(c.QuoteTokenAddress)),
		"max_trade_usd":    c.MaxTradeSizeUSD,
		"max_slippage_pct": c.MaxSlippagePct,
		"min_liquidity":    c.MinLiquidityUSD,
		"stop_loss":        c.StopLossPct,
		"take_profit":      c.TakeProfitPct,
		"max_positions":    c.MaxOpenPositions,
		"risk_level":       c.RiskLevel,
		"cooldown":         c.Cooldown,
		"poll_interval":    c.PollInterval,
		"concurrency":      c.ConcurrencyLimit,
		"watchlist":        len(c.Watchlist),
		"persistence":      boolLabel(c.DBEnabled, "postgres", "memory only"),
	}).Info("configuration loaded")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func millis(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt64(key)) * time.Millisecond
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt64(key)) * time.Second
}

// list accepts a comma-separated env value or a sequence from the config
// file. File entries must be strings: YAML reads an unquoted 0xdeadbeef as
// an integer, which would silently turn an address into a decimal number.
func list(v *viper.Viper, key string) ([]string, error) {
	var items []string
	switch raw := v.Get(key).(type) {
	case nil:
	case string:
		items = []string{raw}
	case []string:
		items = raw
	case []any:
		for i, item := range raw {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: %v is not a string; quote token addresses in the config file",
					strings.ToUpper(key), i, item)
			}
			items = append(items, s)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported value %T", strings.ToUpper(key), raw)
	}

	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func truncAddr(addr string) string {
	if len(addr) > 10 {
		return addr[:10]
	}
	return addr
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
