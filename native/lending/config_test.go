package lending

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func TestNormaliseAppliesDefaults(t *testing.T) {
	cfg := Config{DebtToken: " zusd "}.Normalise()
	if cfg.DebtToken != "ZUSD" {
		t.Fatalf("debt token: want ZUSD, got %q", cfg.DebtToken)
	}
	defaults := DefaultConfig()
	if cfg.MinDebtWei.Cmp(defaults.MinDebtWei) != 0 {
		t.Fatalf("min debt default: want %s, got %s", defaults.MinDebtWei, cfg.MinDebtWei)
	}
	if cfg.CloseFactorBps != defaults.CloseFactorBps {
		t.Fatalf("close factor default: want %d, got %d", defaults.CloseFactorBps, cfg.CloseFactorBps)
	}
	if cfg.Interest != defaults.Interest {
		t.Fatalf("interest defaults: want %+v, got %+v", defaults.Interest, cfg.Interest)
	}

	bad := Config{CloseFactorBps: 20_000}.Normalise()
	if bad.CloseFactorBps != defaults.CloseFactorBps {
		t.Fatalf("out-of-range close factor must fall back to default, got %d", bad.CloseFactorBps)
	}
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lending.toml")
	raw := `
DebtToken = "zusd"
MinDebtWei = "25000000000000000000"
CloseFactorBps = 4000
FullLiquidationThresholdBps = 6000
MaxCollateralAssets = 16

[interest]
BaseRate = 0.01
Slope1 = 0.1
Slope2 = 0.5
Kink = 0.75
ReserveFactorBps = 1500
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DebtToken != "ZUSD" {
		t.Fatalf("debt token: want ZUSD, got %q", cfg.DebtToken)
	}
	want := new(big.Int).Mul(big.NewInt(25), big.NewInt(1e18))
	if cfg.MinDebtWei.Cmp(want) != 0 {
		t.Fatalf("min debt: want %s, got %s", want, cfg.MinDebtWei)
	}
	if cfg.CloseFactorBps != 4000 || cfg.FullLiquidationThresholdBps != 6000 {
		t.Fatalf("liquidation params not applied: %+v", cfg)
	}
	if cfg.Interest.ReserveFactorBps != 1500 {
		t.Fatalf("reserve factor: want 1500, got %d", cfg.Interest.ReserveFactorBps)
	}
	model := cfg.Interest.Model()
	if model.ReserveFactorBps != 1500 {
		t.Fatalf("model reserve factor: want 1500, got %d", model.ReserveFactorBps)
	}
}
