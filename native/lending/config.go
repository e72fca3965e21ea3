package lending

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config captures the runtime configuration for the lending core.
type Config struct {
	// DebtToken is the symbol of the stable unit of account borrowers draw.
	DebtToken string `toml:"DebtToken"`
	// MinDebtWei is the debt floor preventing dust positions that cost more
	// to liquidate than they are worth.
	MinDebtWei *big.Int `toml:"MinDebtWei"`
	// MinLiquidationWei is the smallest repay amount a liquidation accepts.
	MinLiquidationWei *big.Int `toml:"MinLiquidationWei"`
	// CloseFactorBps bounds the debt fraction liquidatable in one call under
	// normal conditions.
	CloseFactorBps uint64 `toml:"CloseFactorBps"`
	// FullLiquidationThresholdBps is the health factor below which the whole
	// debt may be repaid in a single call.
	FullLiquidationThresholdBps uint64 `toml:"FullLiquidationThresholdBps"`
	// MaxCollateralAssets caps the registry so per-user valuation loops stay
	// bounded.
	MaxCollateralAssets int `toml:"MaxCollateralAssets"`
	// Interest configures the kinked borrow rate curve.
	Interest InterestConfig `toml:"interest"`
}

// InterestConfig shapes the utilisation curve. Rates are decimals (0.02 is a
// 2% APR); the reserve factor is in basis points.
type InterestConfig struct {
	BaseRate         float64 `toml:"BaseRate"`
	Slope1           float64 `toml:"Slope1"`
	Slope2           float64 `toml:"Slope2"`
	Kink             float64 `toml:"Kink"`
	ReserveFactorBps uint64  `toml:"ReserveFactorBps"`
}

// DefaultConfig returns the engine defaults used when fields are omitted.
func DefaultConfig() Config {
	return Config{
		DebtToken:                   "ZUSD",
		MinDebtWei:                  new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)),
		MinLiquidationWei:           big.NewInt(1e18),
		CloseFactorBps:              5000,
		FullLiquidationThresholdBps: 5000,
		MaxCollateralAssets:         32,
		Interest: InterestConfig{
			BaseRate:         0.02,
			Slope1:           0.15,
			Slope2:           0.6,
			Kink:             0.8,
			ReserveFactorBps: 1000,
		},
	}
}

// Normalise applies defaults and canonical casing to the configuration.
func (c Config) Normalise() Config {
	cfg := c
	defaults := DefaultConfig()
	cfg.DebtToken = strings.ToUpper(strings.TrimSpace(cfg.DebtToken))
	if cfg.DebtToken == "" {
		cfg.DebtToken = defaults.DebtToken
	}
	if cfg.MinDebtWei == nil || cfg.MinDebtWei.Sign() < 0 {
		cfg.MinDebtWei = new(big.Int).Set(defaults.MinDebtWei)
	}
	if cfg.MinLiquidationWei == nil || cfg.MinLiquidationWei.Sign() <= 0 {
		cfg.MinLiquidationWei = new(big.Int).Set(defaults.MinLiquidationWei)
	}
	if cfg.CloseFactorBps == 0 || cfg.CloseFactorBps > 10_000 {
		cfg.CloseFactorBps = defaults.CloseFactorBps
	}
	if cfg.FullLiquidationThresholdBps == 0 || cfg.FullLiquidationThresholdBps > 10_000 {
		cfg.FullLiquidationThresholdBps = defaults.FullLiquidationThresholdBps
	}
	if cfg.MaxCollateralAssets <= 0 {
		cfg.MaxCollateralAssets = defaults.MaxCollateralAssets
	}
	if cfg.Interest == (InterestConfig{}) {
		cfg.Interest = defaults.Interest
	}
	return cfg
}

// Model constructs the interest model described by the configuration.
func (c InterestConfig) Model() *InterestModel {
	return NewInterestModel(c.BaseRate, c.Slope1, c.Slope2, c.Kink, c.ReserveFactorBps)
}

// LoadConfig reads a TOML configuration file and normalises it.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("lending: decode config %s: %w", path, err)
	}
	return cfg.Normalise(), nil
}
