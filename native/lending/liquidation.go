package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"havenlend/core/events"
	nativecommon "havenlend/native/common"
	"havenlend/observability"
)

// Liquidate repays part of an unhealthy borrower's debt and seizes discounted
// collateral in exchange.
//
// The repay amount is bounded by the close factor unless the position has
// fallen below the full-liquidation threshold, in which case the entire debt
// may be repaid in one call. A repay amount beyond the bound is rejected, not
// silently capped. The liquidator only funds the portion of the repay the
// seized collateral actually covers; any shortfall is written off as borrower
// bad debt in the same step, so pool accounting never double-counts it.
func (e *Engine) Liquidate(liquidator, borrower common.Address, asset string, repayAmount *big.Int) (*LiquidationRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.tokens == nil {
		return nil, errNilLedger
	}
	if e.prices == nil {
		return nil, errNilPrices
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if repayAmount == nil || repayAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if liquidator == borrower {
		return nil, ErrSelfLiquidation
	}
	asset = normaliseSymbol(asset)
	assetCfg, err := e.state.GetAssetConfig(asset)
	if err != nil {
		return nil, err
	}
	if assetCfg == nil {
		return nil, ErrUnknownAsset
	}

	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	pos, err := e.ensurePosition(borrower)
	if err != nil {
		return nil, err
	}
	if err := e.accrue(pool, pos); err != nil {
		return nil, err
	}

	debt := pos.TotalDebt()
	if debt.Sign() == 0 {
		return nil, ErrNoDebt
	}
	weighted, err := e.weightedLiquidationValue(pos)
	if err != nil {
		return nil, err
	}
	hf := healthFactorBps(weighted, debt)
	if hf.Cmp(basisPoints) >= 0 {
		e.recordLiquidation("rejected_healthy")
		return nil, ErrPositionHealthy
	}

	maxRepay := debt
	if hf.Cmp(new(big.Int).SetUint64(e.cfg.FullLiquidationThresholdBps)) >= 0 {
		maxRepay = bpsShare(debt, e.cfg.CloseFactorBps)
	}
	if repayAmount.Cmp(maxRepay) > 0 {
		return nil, ErrExceedsCloseFactor
	}
	if repayAmount.Cmp(e.cfg.MinLiquidationWei) < 0 && repayAmount.Cmp(debt) < 0 {
		return nil, ErrDustLiquidation
	}

	balance := pos.Collateral[asset]
	if balance == nil || balance.Sign() == 0 {
		return nil, ErrInsufficientCollateral
	}

	// Seizure target: repay value grossed up by the liquidation penalty,
	// converted into collateral units, capped at what the borrower holds.
	grossValue := bpsShare(repayAmount, 10_000+assetCfg.LiquidationPenaltyBps)
	seized, err := e.prices.AmountForValue(asset, grossValue)
	if err != nil {
		return nil, err
	}
	if seized.Cmp(balance) > 0 {
		seized = new(big.Int).Set(balance)
	}
	seizedValue, err := e.prices.ValueUSD(asset, seized)
	if err != nil {
		return nil, err
	}

	covered := minBig(repayAmount, seizedValue)
	shortfall := new(big.Int).Sub(repayAmount, covered)

	if covered.Sign() > 0 {
		if err := e.tokens.Transfer(e.cfg.DebtToken, liquidator, e.moduleAddress, covered); err != nil {
			return nil, err
		}
	}
	if seized.Sign() > 0 {
		if err := e.tokens.Transfer(asset, e.collateralAddress, liquidator, seized); err != nil {
			return nil, err
		}
	}

	e.reduceDebt(pos, repayAmount)
	pool.TotalBorrows = new(big.Int).Sub(pool.TotalBorrows, repayAmount)

	remaining := pos.Collateral[asset]
	remaining = new(big.Int).Sub(remaining, seized)
	if remaining.Sign() == 0 {
		delete(pos.Collateral, asset)
	} else {
		pos.Collateral[asset] = remaining
	}

	if shortfall.Sign() > 0 {
		if err := e.recordBadDebt(pool, borrower, shortfall); err != nil {
			return nil, err
		}
	}

	if err := e.persistPosition(pos); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}

	record := &LiquidationRecord{
		ID:              uuid.NewString(),
		Liquidator:      liquidator,
		Borrower:        borrower,
		CollateralAsset: asset,
		RepayAmount:     new(big.Int).Set(repayAmount),
		CoveredAmount:   covered,
		SeizedAmount:    seized,
		PenaltyBps:      assetCfg.LiquidationPenaltyBps,
		BadDebt:         shortfall,
		Timestamp:       e.nowFn(),
	}
	if err := e.state.PutLiquidationRecord(record); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LiquidationExecuted{
		ID:         record.ID,
		Liquidator: liquidator,
		Borrower:   borrower,
		Asset:      asset,
		Repaid:     repayAmount,
		Seized:     seized,
		PenaltyBps: assetCfg.LiquidationPenaltyBps,
		BadDebt:    shortfall,
	})
	e.recordLiquidation("executed")
	e.recordOp("liquidate", pool)
	return record, nil
}

// recordBadDebt writes off a liquidation shortfall against the borrower and
// the pool aggregates. The repay reduction already happened at the caller, so
// this never touches TotalBorrows.
func (e *Engine) recordBadDebt(pool *DebtPool, borrower common.Address, amount *big.Int) error {
	existing, err := e.state.GetBadDebt(borrower)
	if err != nil {
		return err
	}
	if existing == nil {
		existing = big.NewInt(0)
	}
	total := new(big.Int).Add(existing, amount)
	if err := e.state.PutBadDebt(borrower, total); err != nil {
		return err
	}
	pool.TotalBadDebt = new(big.Int).Add(pool.TotalBadDebt, amount)
	pool.TotalBadDebtRecorded = new(big.Int).Add(pool.TotalBadDebtRecorded, amount)

	e.logger.Warn("bad debt recorded",
		"module", moduleName,
		"borrower", borrower.Hex(),
		"amount", amount.String(),
		"total", total.String(),
	)
	e.emitter.Emit(events.BadDebtRecorded{Borrower: borrower, Amount: amount, Total: total})
	return nil
}

// SocializeBadDebt clears a borrower's recorded bad debt, absorbing it from
// protocol reserves first and queueing any remainder against future supplier
// interest. Governed: the caller must hold the lending admin role.
func (e *Engine) SocializeBadDebt(caller, borrower common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(e.roles, nativecommon.RoleLendingAdmin, caller); err != nil {
		return err
	}
	bad, err := e.state.GetBadDebt(borrower)
	if err != nil {
		return err
	}
	if bad == nil || bad.Sign() == 0 {
		return ErrNoBadDebt
	}
	pool, err := e.ensurePool()
	if err != nil {
		return err
	}

	fromReserves := minBig(bad, pool.ProtocolReserves)
	queued := new(big.Int).Sub(bad, fromReserves)

	pool.ProtocolReserves = new(big.Int).Sub(pool.ProtocolReserves, fromReserves)
	pool.TotalBadDebtAbsorbedByReserves = new(big.Int).Add(pool.TotalBadDebtAbsorbedByReserves, fromReserves)
	pool.BadDebtQueuedForSuppliers = new(big.Int).Add(pool.BadDebtQueuedForSuppliers, queued)
	pool.TotalBadDebt = new(big.Int).Sub(pool.TotalBadDebt, bad)

	if err := e.state.PutBadDebt(borrower, big.NewInt(0)); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}

	e.emitter.Emit(events.BadDebtSocialized{Borrower: borrower, FromReserves: fromReserves, Queued: queued})
	e.recordOp("socialize", pool)
	return nil
}

// EstimateSeize reports the collateral a liquidator would receive for a repay
// amount at current prices, before the borrower-balance cap.
func (e *Engine) EstimateSeize(asset string, repayAmount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.prices == nil {
		return nil, errNilPrices
	}
	if repayAmount == nil || repayAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	asset = normaliseSymbol(asset)
	cfg, err := e.state.GetAssetConfig(asset)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrUnknownAsset
	}
	grossValue := bpsShare(repayAmount, 10_000+cfg.LiquidationPenaltyBps)
	return e.prices.AmountForValue(asset, grossValue)
}

// IsLiquidatable reports whether the borrower can be liquidated at current
// prices, i.e. the health factor sits below 1.0. Debt-free positions are
// never liquidatable.
func (e *Engine) IsLiquidatable(borrower common.Address) (bool, error) {
	hf, err := e.HealthFactor(borrower)
	if err != nil {
		return false, err
	}
	return hf.Cmp(basisPoints) < 0, nil
}

// SetCloseFactor updates the per-call liquidation bound. Governed: risk admin.
func (e *Engine) SetCloseFactor(caller common.Address, bps uint64) error {
	if e == nil {
		return errNilState
	}
	if err := nativecommon.RequireRole(e.roles, nativecommon.RoleRiskAdmin, caller); err != nil {
		return err
	}
	if bps == 0 || bps > 10_000 {
		return ErrInvalidParameter
	}
	e.cfg.CloseFactorBps = bps
	return nil
}

// SetFullLiquidationThreshold updates the health factor below which the whole
// debt becomes liquidatable in one call. Governed: risk admin.
func (e *Engine) SetFullLiquidationThreshold(caller common.Address, bps uint64) error {
	if e == nil {
		return errNilState
	}
	if err := nativecommon.RequireRole(e.roles, nativecommon.RoleRiskAdmin, caller); err != nil {
		return err
	}
	if bps == 0 || bps > 10_000 {
		return ErrInvalidParameter
	}
	e.cfg.FullLiquidationThresholdBps = bps
	return nil
}

func (e *Engine) recordLiquidation(result string) {
	observability.Lending().Liquidations.WithLabelValues(result).Inc()
}
