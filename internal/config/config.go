package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"minter/internal/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HTTPAddr     string
	DatabasePath string

	Log logger.Configuration

	WalletRPCURL        string
	ChainID             uint64
	StablecoinAddress   string
	SaleContractAddress string

	NeynarAPIKey  string
	NeynarBaseURL string
	NeynarHubURL  string
	PriceFeedURL  string

	AdminToken string
	AppURL     string

	ReceiptPollInterval   time.Duration
	BundlePollInterval    time.Duration
	BundlePollMaxAttempts int
	BundleErrorBackoff    time.Duration
	SessionTTL            time.Duration
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &Config{
		HTTPAddr:     getString("HTTP_ADDR", ":8080"),
		DatabasePath: getString("DATABASE_PATH", "persistent.db"),
		Log: logger.Configuration{
			LogFile:   os.Getenv("LOG_FILE"),
			ErrorFile: os.Getenv("ERROR_LOG_FILE"),
			Level:     getString("LOG_LEVEL", "info"),
			Console:   getString("LOG_CONSOLE", "true") == "true",
		},
		WalletRPCURL:        os.Getenv("WALLET_RPC_URL"),
		StablecoinAddress:   os.Getenv("STABLECOIN_ADDRESS"),
		SaleContractAddress: os.Getenv("SALE_CONTRACT_ADDRESS"),
		NeynarAPIKey:        os.Getenv("NEYNAR_API_KEY"),
		NeynarBaseURL:       getString("NEYNAR_BASE_URL", "https://api.neynar.com"),
		NeynarHubURL:        getString("NEYNAR_HUB_URL", "https://hub-api.neynar.com"),
		PriceFeedURL:        getString("PRICE_FEED_URL", "https://api.coinbase.com/v2/prices/ETH-USD/spot"),
		AdminToken:          os.Getenv("ADMIN_TOKEN"),
		AppURL:              strings.TrimRight(getString("APP_URL", "http://localhost:3000"), "/"),
	}

	var err error
	if cfg.ChainID, err = getUint("CHAIN_ID", 8453); err != nil {
		return nil, err
	}
	if cfg.ReceiptPollInterval, err = getDuration("RECEIPT_POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.BundlePollInterval, err = getDuration("BUNDLE_POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.BundleErrorBackoff, err = getDuration("BUNDLE_ERROR_BACKOFF", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	maxAttempts, err := getUint("BUNDLE_POLL_MAX_ATTEMPTS", 90)
	if err != nil {
		return nil, err
	}
	cfg.BundlePollMaxAttempts = int(maxAttempts)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("config: loaded",
		zap.String("http addr", cfg.HTTPAddr),
		zap.Uint64("chain id", cfg.ChainID),
		zap.Bool("neynar key", cfg.NeynarAPIKey != ""),
		zap.Bool("admin token", cfg.AdminToken != ""),
	)
	return cfg, nil
}

func (c *Config) Validate() error {
	var missing []string
	if c.WalletRPCURL == "" {
		missing = append(missing, "WALLET_RPC_URL")
	}
	if c.StablecoinAddress == "" {
		missing = append(missing, "STABLECOIN_ADDRESS")
	}
	if c.SaleContractAddress == "" {
		missing = append(missing, "SALE_CONTRACT_ADDRESS")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required variables: %s", strings.Join(missing, ", "))
	}
	if c.BundlePollMaxAttempts < 1 {
		return errors.New("config: BUNDLE_POLL_MAX_ATTEMPTS must be positive")
	}
	return nil
}

func getString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getUint(key string, fallback uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}
