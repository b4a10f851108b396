// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	RPC       RPCConfig       `mapstructure:"rpc"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Backfill  BackfillConfig  `mapstructure:"backfill"`
	Metadata  MetadataConfig  `mapstructure:"metadata"`
	CopyTrade CopyTradeConfig `mapstructure:"copytrade"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// RPCConfig contains Polygon RPC connection configuration. Endpoints is
// ordered: index 0 is the primary, the rest are fallbacks. MaxBlockRanges
// is matched to Endpoints by index; endpoints past the end of the list
// get DefaultBlockRange.
type RPCConfig struct {
	Endpoints         []string      `mapstructure:"endpoints"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	MaxBlockRanges    []uint64      `mapstructure:"max_block_ranges"`
	DefaultBlockRange uint64        `mapstructure:"default_block_range"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// MonitorConfig contains trade monitoring configuration
type MonitorConfig struct {
	Addresses            []string      `mapstructure:"addresses"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	BatchSize            uint64        `mapstructure:"batch_size"`
	RequestDelay         time.Duration `mapstructure:"request_delay"`
	RollingWindow        bool          `mapstructure:"rolling_window"`
	WindowHours          int           `mapstructure:"window_hours"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`
}

// LedgerConfig contains position accounting configuration
type LedgerConfig struct {
	SettleWinThreshold  float64 `mapstructure:"settle_win_threshold"`
	SettleLossThreshold float64 `mapstructure:"settle_loss_threshold"`
	CloseEpsilon        float64 `mapstructure:"close_epsilon"`
}

// BackfillConfig contains position history reconciliation configuration
type BackfillConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	LookbackDays  int           `mapstructure:"lookback_days"`
	BatchSize     uint64        `mapstructure:"batch_size"`
	BatchDelay    time.Duration `mapstructure:"batch_delay"`
	PositionDelay time.Duration `mapstructure:"position_delay"`
}

// MetadataConfig contains Gamma API market metadata configuration
type MetadataConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// CopyTradeConfig contains copy order recording configuration
type CopyTradeConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	SizeFactor  float64 `mapstructure:"size_factor"`
	MaxNotional float64 `mapstructure:"max_notional"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (silently ignore if missing)
	_ = godotenv.Load()

	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("POLYMON")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if endpoints := os.Getenv("POLYGON_RPC_ENDPOINTS"); endpoints != "" {
		config.RPC.Endpoints = splitAndTrim(endpoints)
	}
	if addresses := os.Getenv("MONITOR_ADDRESSES"); addresses != "" {
		config.Monitor.Addresses = splitAndTrim(addresses)
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}

	return &config, nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "polymarket-trade-monitor")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// RPC defaults (index 0 is the primary endpoint)
	viper.SetDefault("rpc.endpoints", []string{
		"https://polygon-rpc.com",
		"https://rpc-mainnet.matic.quiknode.pro",
		"https://polygon-bor-rpc.publicnode.com",
		"https://polygon.llamarpc.com",
		"https://1rpc.io/matic",
	})
	viper.SetDefault("rpc.request_timeout", "30s")
	viper.SetDefault("rpc.max_retries", 3)
	viper.SetDefault("rpc.retry_delay", "1s")
	viper.SetDefault("rpc.max_block_ranges", []uint64{100, 50, 50, 50, 50})
	viper.SetDefault("rpc.default_block_range", 50)

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/trades.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")

	// Monitor defaults (Polygon block time is ~2 seconds)
	viper.SetDefault("monitor.addresses", []string{})
	viper.SetDefault("monitor.poll_interval", "2s")
	viper.SetDefault("monitor.batch_size", 50)
	viper.SetDefault("monitor.request_delay", "300ms")
	viper.SetDefault("monitor.rolling_window", true)
	viper.SetDefault("monitor.window_hours", 24)
	viper.SetDefault("monitor.max_consecutive_errors", 5)

	// Ledger defaults
	viper.SetDefault("ledger.settle_win_threshold", 0.95)
	viper.SetDefault("ledger.settle_loss_threshold", 0.05)
	viper.SetDefault("ledger.close_epsilon", 0.0001)

	// Backfill defaults
	viper.SetDefault("backfill.enabled", true)
	viper.SetDefault("backfill.lookback_days", 7)
	viper.SetDefault("backfill.batch_size", 100)
	viper.SetDefault("backfill.batch_delay", "500ms")
	viper.SetDefault("backfill.position_delay", "2s")

	// Metadata defaults
	viper.SetDefault("metadata.enabled", true)
	viper.SetDefault("metadata.base_url", "https://gamma-api.polymarket.com")
	viper.SetDefault("metadata.request_timeout", "10s")
	viper.SetDefault("metadata.max_retries", 3)

	// Copy trade defaults
	viper.SetDefault("copytrade.enabled", false)
	viper.SetDefault("copytrade.size_factor", 1.0)
	viper.SetDefault("copytrade.max_notional", 100.0)

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.RPC.Endpoints) == 0 {
		return fmt.Errorf("at least one RPC endpoint is required")
	}
	if c.RPC.MaxRetries <= 0 {
		return fmt.Errorf("rpc max retries must be positive")
	}
	if c.RPC.DefaultBlockRange == 0 {
		return fmt.Errorf("rpc default block range must be positive")
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor poll interval must be positive")
	}
	if c.Monitor.BatchSize == 0 {
		return fmt.Errorf("monitor batch size must be positive")
	}
	if c.Monitor.WindowHours <= 0 {
		return fmt.Errorf("monitor window hours must be positive")
	}
	if c.Ledger.SettleWinThreshold <= c.Ledger.SettleLossThreshold {
		return fmt.Errorf("settle win threshold must exceed loss threshold")
	}
	if c.Backfill.LookbackDays <= 0 {
		return fmt.Errorf("backfill lookback days must be positive")
	}
	return nil
}

// BlockRangeFor returns the max getLogs span for the endpoint at index i.
func (c *RPCConfig) BlockRangeFor(i int) uint64 {
	if i >= 0 && i < len(c.MaxBlockRanges) {
		return c.MaxBlockRanges[i]
	}
	return c.DefaultBlockRange
}
