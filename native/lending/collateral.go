package lending

import (
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"havenlend/core/events"
	nativecommon "havenlend/native/common"
)

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// AddCollateralAsset registers a new collateral asset. Governed: the caller
// must hold the lending admin role. Registration fails once the registry hits
// the configured cap, keeping per-position valuation loops bounded.
func (e *Engine) AddCollateralAsset(caller common.Address, cfg AssetConfig) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.RequireRole(e.roles, nativecommon.RoleLendingAdmin, caller); err != nil {
		return err
	}
	cfg.Symbol = normaliseSymbol(cfg.Symbol)
	if err := cfg.Validate(); err != nil {
		return err
	}
	existing, err := e.state.GetAssetConfig(cfg.Symbol)
	if err != nil {
		return err
	}
	if existing == nil {
		symbols, err := e.state.AssetSymbols()
		if err != nil {
			return err
		}
		if len(symbols) >= e.cfg.MaxCollateralAssets {
			return ErrTooManyAssets
		}
	}
	return e.state.PutAssetConfig(&cfg)
}

// UpdateAssetRiskParams replaces the risk parameters of a registered asset.
// Governed: the caller must hold the risk admin role. The enabled flag is
// preserved; use EnableCollateral / DisableCollateral to flip it.
func (e *Engine) UpdateAssetRiskParams(caller common.Address, cfg AssetConfig) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.RequireRole(e.roles, nativecommon.RoleRiskAdmin, caller); err != nil {
		return err
	}
	cfg.Symbol = normaliseSymbol(cfg.Symbol)
	if err := cfg.Validate(); err != nil {
		return err
	}
	existing, err := e.state.GetAssetConfig(cfg.Symbol)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrUnknownAsset
	}
	cfg.Enabled = existing.Enabled
	return e.state.PutAssetConfig(&cfg)
}

// EnableCollateral marks a registered asset as accepting new deposits.
func (e *Engine) EnableCollateral(caller common.Address, symbol string) error {
	return e.setAssetEnabled(caller, symbol, true)
}

// DisableCollateral stops new deposits of the asset. Existing balances keep
// counting toward collateral value and remain seizable.
func (e *Engine) DisableCollateral(caller common.Address, symbol string) error {
	return e.setAssetEnabled(caller, symbol, false)
}

func (e *Engine) setAssetEnabled(caller common.Address, symbol string, enabled bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.RequireRole(e.roles, nativecommon.RoleLendingAdmin, caller); err != nil {
		return err
	}
	cfg, err := e.state.GetAssetConfig(normaliseSymbol(symbol))
	if err != nil {
		return err
	}
	if cfg == nil {
		return ErrUnknownAsset
	}
	cfg.Enabled = enabled
	return e.state.PutAssetConfig(cfg)
}

// Deposit locks the user's collateral with the module. Deposits into a
// disabled asset are rejected; withdrawals are not.
func (e *Engine) Deposit(user common.Address, symbol string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilLedger
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	symbol = normaliseSymbol(symbol)
	cfg, err := e.state.GetAssetConfig(symbol)
	if err != nil {
		return err
	}
	if cfg == nil {
		return ErrUnknownAsset
	}
	if !cfg.Enabled {
		return ErrAssetDisabled
	}

	pos, err := e.ensurePosition(user)
	if err != nil {
		return err
	}
	if err := e.tokens.Transfer(symbol, user, e.collateralAddress, amount); err != nil {
		return err
	}
	balance := pos.Collateral[symbol]
	if balance == nil {
		balance = big.NewInt(0)
	}
	pos.Collateral[symbol] = new(big.Int).Add(balance, amount)
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}

	e.emitter.Emit(events.CollateralDeposited{User: user, Asset: symbol, Amount: amount})
	e.recordOp("deposit", nil)
	return nil
}

// Withdraw releases collateral back to the user. Interest is accrued first,
// then the post-withdrawal health factor is checked so a withdrawal can never
// push outstanding debt below a health factor of 1.0.
func (e *Engine) Withdraw(user common.Address, symbol string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilLedger
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	symbol = normaliseSymbol(symbol)
	cfg, err := e.state.GetAssetConfig(symbol)
	if err != nil {
		return err
	}
	if cfg == nil {
		return ErrUnknownAsset
	}

	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	pos, err := e.ensurePosition(user)
	if err != nil {
		return err
	}
	if err := e.accrue(pool, pos); err != nil {
		return err
	}

	balance := pos.Collateral[symbol]
	if balance == nil || balance.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}

	remaining := new(big.Int).Sub(balance, amount)
	if remaining.Sign() == 0 {
		delete(pos.Collateral, symbol)
	} else {
		pos.Collateral[symbol] = remaining
	}

	if debt := pos.TotalDebt(); debt.Sign() > 0 {
		weighted, err := e.weightedLiquidationValue(pos)
		if err != nil {
			return err
		}
		if healthFactorBps(weighted, debt).Cmp(basisPoints) < 0 {
			return ErrWithdrawUnhealthy
		}
	}

	if err := e.tokens.Transfer(symbol, e.collateralAddress, user, amount); err != nil {
		return err
	}
	if err := e.persistPosition(pos); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}

	e.emitter.Emit(events.CollateralWithdrawn{User: user, Asset: symbol, Amount: amount})
	e.recordOp("withdraw", pool)
	return nil
}

// CollateralBalance reports the user's locked balance of one asset.
func (e *Engine) CollateralBalance(user common.Address, symbol string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.GetPosition(user)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return big.NewInt(0), nil
	}
	balance := pos.Collateral[normaliseSymbol(symbol)]
	if balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

// CollateralValue reports the unweighted USD value of the user's collateral.
func (e *Engine) CollateralValue(user common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.GetPosition(user)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return big.NewInt(0), nil
	}
	total := big.NewInt(0)
	err = e.eachCollateral(pos, func(symbol string, balance *big.Int, cfg *AssetConfig) error {
		value, err := e.prices.ValueUSD(symbol, balance)
		if err != nil {
			return err
		}
		total.Add(total, value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// borrowCapacity sums collateral values weighted by each asset's max LTV.
func (e *Engine) borrowCapacity(pos *Position) (*big.Int, error) {
	return e.weightedValue(pos, func(cfg *AssetConfig) uint64 { return cfg.MaxLTVBps })
}

// weightedLiquidationValue sums collateral values weighted by each asset's
// liquidation threshold; this is the numerator of the health factor.
func (e *Engine) weightedLiquidationValue(pos *Position) (*big.Int, error) {
	return e.weightedValue(pos, func(cfg *AssetConfig) uint64 { return cfg.LiquidationThresholdBps })
}

func (e *Engine) weightedValue(pos *Position, weight func(*AssetConfig) uint64) (*big.Int, error) {
	if e.prices == nil {
		return nil, errNilPrices
	}
	total := big.NewInt(0)
	err := e.eachCollateral(pos, func(symbol string, balance *big.Int, cfg *AssetConfig) error {
		value, err := e.prices.ValueUSD(symbol, balance)
		if err != nil {
			return err
		}
		total.Add(total, bpsShare(value, weight(cfg)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// eachCollateral visits the position's non-zero collateral balances in sorted
// symbol order so valuation is deterministic across runs.
func (e *Engine) eachCollateral(pos *Position, fn func(symbol string, balance *big.Int, cfg *AssetConfig) error) error {
	if pos == nil || len(pos.Collateral) == 0 {
		return nil
	}
	symbols := make([]string, 0, len(pos.Collateral))
	for symbol := range pos.Collateral {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		balance := pos.Collateral[symbol]
		if balance == nil || balance.Sign() == 0 {
			continue
		}
		cfg, err := e.state.GetAssetConfig(symbol)
		if err != nil {
			return err
		}
		if cfg == nil {
			return ErrUnknownAsset
		}
		if err := fn(symbol, balance, cfg); err != nil {
			return err
		}
	}
	return nil
}
