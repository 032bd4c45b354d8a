// Package config holds the immutable runtime configuration. It is built
// once at startup and injected; nothing mutates it afterwards. In
// particular the collateral allow-list is fixed for the process lifetime.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrLengthMismatch reports asset/feed configuration lists of unequal length.
var ErrLengthMismatch = errors.New("config: asset and feed lists must have equal length")

// Asset is one allow-listed collateral type. Every asset has exactly one
// price-feed reference.
type Asset struct {
	Symbol  string
	FeedRef string
}

// Config is the application configuration, loaded from VAULT_* environment
// variables with development defaults.
type Config struct {
	Assets []Asset

	HTTPAddr    string
	MetricsAddr string

	PostgresDSN string
	NATSURL     string

	EventBuffer  int
	PersistBatch int
	PersistFlush time.Duration

	LogLevel string
}

// NewAssetList pairs symbols with feed references. The two lists must be
// the same length; order is preserved and becomes the deterministic
// valuation order.
func NewAssetList(symbols, feeds []string) ([]Asset, error) {
	if len(symbols) != len(feeds) {
		return nil, fmt.Errorf("%w: %d symbols, %d feeds", ErrLengthMismatch, len(symbols), len(feeds))
	}
	assets := make([]Asset, 0, len(symbols))
	for i := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(symbols[i]))
		feed := strings.TrimSpace(feeds[i])
		if sym == "" || feed == "" {
			return nil, fmt.Errorf("config: empty asset symbol or feed at index %d", i)
		}
		assets = append(assets, Asset{Symbol: sym, FeedRef: feed})
	}
	return assets, nil
}

// ParseAssets parses the VAULT_ASSETS format: "ETH:feed-eth,BTC:feed-btc".
func ParseAssets(s string) ([]Asset, error) {
	var symbols, feeds []string
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("config: malformed asset entry %q (want SYMBOL:feed)", pair)
		}
		symbols = append(symbols, parts[0])
		feeds = append(feeds, parts[1])
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("config: no assets configured")
	}
	return NewAssetList(symbols, feeds)
}

// FromEnv builds the configuration from environment variables.
func FromEnv() (Config, error) {
	assets, err := ParseAssets(envOrDefault("VAULT_ASSETS", "ETH:feed-eth-usd,BTC:feed-btc-usd"))
	if err != nil {
		return Config{}, err
	}

	return Config{
		Assets:       assets,
		HTTPAddr:     envOrDefault("VAULT_HTTP_ADDR", ":8080"),
		MetricsAddr:  envOrDefault("VAULT_METRICS_ADDR", ":9091"),
		PostgresDSN:  os.Getenv("VAULT_POSTGRES_DSN"),
		NATSURL:      os.Getenv("VAULT_NATS_URL"),
		EventBuffer:  envIntOrDefault("VAULT_EVENT_BUFFER", 4096),
		PersistBatch: envIntOrDefault("VAULT_PERSIST_BATCH_SIZE", 50),
		PersistFlush: 10 * time.Millisecond,
		LogLevel:     envOrDefault("VAULT_LOG_LEVEL", "info"),
	}, nil
}

// FeedFor returns the feed reference for an allow-listed asset.
func (c Config) FeedFor(symbol string) (string, bool) {
	for _, a := range c.Assets {
		if a.Symbol == symbol {
			return a.FeedRef, true
		}
	}
	return "", false
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
