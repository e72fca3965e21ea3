package pricefeed

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config declares the guarded feeds a deployment registers at startup.
type Config struct {
	Feeds []FeedSettings `toml:"feeds"`
}

// FeedSettings is the TOML shape of one feed registration.
type FeedSettings struct {
	Asset               string `toml:"Asset"`
	SourceDecimals      uint8  `toml:"SourceDecimals"`
	AssetDecimals       uint8  `toml:"AssetDecimals"`
	MaxStalenessSeconds uint64 `toml:"MaxStalenessSeconds"`
	MaxDeviationBps     uint64 `toml:"MaxDeviationBps"`
}

// FeedConfig converts the settings into the guard's runtime configuration.
func (s FeedSettings) FeedConfig() FeedConfig {
	return FeedConfig{
		SourceDecimals:      s.SourceDecimals,
		AssetDecimals:       s.AssetDecimals,
		MaxStalenessSeconds: s.MaxStalenessSeconds,
		MaxDeviationBps:     s.MaxDeviationBps,
	}
}

// LoadConfig reads a TOML feed configuration file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("pricefeed: decode config %s: %w", path, err)
	}
	for i := range cfg.Feeds {
		cfg.Feeds[i].Asset = normaliseAsset(cfg.Feeds[i].Asset)
		if cfg.Feeds[i].Asset == "" {
			return Config{}, fmt.Errorf("pricefeed: config %s: %w", path, ErrInvalidConfig)
		}
	}
	return cfg, nil
}
