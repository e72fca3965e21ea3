package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetConfig captures the governed risk parameters for a collateral asset.
// All ratios are expressed in basis points for deterministic accounting.
type AssetConfig struct {
	// Symbol is the canonical upper-case asset identifier.
	Symbol string
	// Decimals is the native decimal scale of deposit amounts.
	Decimals uint8
	// MaxLTVBps specifies the maximum loan-to-value ratio permitted at borrow
	// time.
	MaxLTVBps uint64
	// LiquidationThresholdBps is the (higher) collateral fraction at which a
	// position becomes eligible for liquidation.
	LiquidationThresholdBps uint64
	// LiquidationPenaltyBps is the seizure bonus granted to liquidators.
	LiquidationPenaltyBps uint64
	// Enabled gates new deposits. Disabling never unwinds existing positions.
	Enabled bool
}

// Clone returns a deep copy of the asset configuration.
func (c *AssetConfig) Clone() *AssetConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Position maintains the lending position for an individual borrower: the
// per-asset collateral balances plus a single aggregate debt denominated in
// the protocol's 18-decimal unit of account.
type Position struct {
	// Address is the borrower's account identifier.
	Address common.Address
	// Collateral maps asset symbol to the deposited amount in the asset's
	// native decimals.
	Collateral map[string]*big.Int
	// Principal is the borrowed amount net of repayments.
	Principal *big.Int
	// AccruedInterest is interest owed on top of principal. Repayments apply
	// here first.
	AccruedInterest *big.Int
	// LastAccrual records the unix timestamp of the last interest accrual.
	LastAccrual int64
}

// TotalDebt reports principal plus accrued interest.
func (p *Position) TotalDebt() *big.Int {
	if p == nil {
		return big.NewInt(0)
	}
	debt := big.NewInt(0)
	if p.Principal != nil {
		debt.Add(debt, p.Principal)
	}
	if p.AccruedInterest != nil {
		debt.Add(debt, p.AccruedInterest)
	}
	return debt
}

// Empty reports whether the position holds no debt and no collateral and may
// therefore be destroyed.
func (p *Position) Empty() bool {
	if p == nil {
		return true
	}
	if p.Principal != nil && p.Principal.Sign() > 0 {
		return false
	}
	if p.AccruedInterest != nil && p.AccruedInterest.Sign() > 0 {
		return false
	}
	for _, amount := range p.Collateral {
		if amount != nil && amount.Sign() > 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Address: p.Address, LastAccrual: p.LastAccrual}
	if p.Principal != nil {
		clone.Principal = new(big.Int).Set(p.Principal)
	}
	if p.AccruedInterest != nil {
		clone.AccruedInterest = new(big.Int).Set(p.AccruedInterest)
	}
	if p.Collateral != nil {
		clone.Collateral = make(map[string]*big.Int, len(p.Collateral))
		for asset, amount := range p.Collateral {
			if amount != nil {
				clone.Collateral[asset] = new(big.Int).Set(amount)
			}
		}
	}
	return clone
}

// DebtPool captures the global accounting state shared by every position.
// Every code path that changes a position's principal or interest updates
// these aggregates in the same atomic step; they are never recomputed by
// re-summing positions.
type DebtPool struct {
	// TotalBorrows is the outstanding debt across all borrowers including
	// accrued interest.
	TotalBorrows *big.Int
	// TotalSupply is the stable liquidity funding borrows, moved in and out
	// by the yield-routing vault.
	TotalSupply *big.Int
	// ProtocolReserves is the reserve-factor share of accrued interest.
	ProtocolReserves *big.Int
	// SupplierInterestAccrued is the supplier-facing interest available to
	// downstream yield routing, net of bad-debt diversions.
	SupplierInterestAccrued *big.Int
	// TotalBadDebt is the recorded borrower bad debt not yet socialized.
	TotalBadDebt *big.Int
	// TotalBadDebtRecorded is the historical cumulative bad debt ever
	// recognised, kept for conservation audits.
	TotalBadDebtRecorded *big.Int
	// TotalBadDebtAbsorbedByReserves counts socialized losses taken from
	// protocol reserves.
	TotalBadDebtAbsorbedByReserves *big.Int
	// TotalBadDebtAbsorbedBySuppliers counts socialized losses already paid
	// down by diverted supplier interest.
	TotalBadDebtAbsorbedBySuppliers *big.Int
	// BadDebtQueuedForSuppliers is the socialized remainder still being
	// worked off gradually by diverting future supplier interest.
	BadDebtQueuedForSuppliers *big.Int
}

// EnsureDefaults populates nil big.Int fields so serialization handling is
// safe.
func (p *DebtPool) EnsureDefaults() {
	if p == nil {
		return
	}
	fields := []**big.Int{
		&p.TotalBorrows,
		&p.TotalSupply,
		&p.ProtocolReserves,
		&p.SupplierInterestAccrued,
		&p.TotalBadDebt,
		&p.TotalBadDebtRecorded,
		&p.TotalBadDebtAbsorbedByReserves,
		&p.TotalBadDebtAbsorbedBySuppliers,
		&p.BadDebtQueuedForSuppliers,
	}
	for _, field := range fields {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
}

// Clone returns a deep copy of the pool.
func (p *DebtPool) Clone() *DebtPool {
	if p == nil {
		return nil
	}
	clone := &DebtPool{}
	set := func(dst **big.Int, src *big.Int) {
		if src != nil {
			*dst = new(big.Int).Set(src)
		}
	}
	set(&clone.TotalBorrows, p.TotalBorrows)
	set(&clone.TotalSupply, p.TotalSupply)
	set(&clone.ProtocolReserves, p.ProtocolReserves)
	set(&clone.SupplierInterestAccrued, p.SupplierInterestAccrued)
	set(&clone.TotalBadDebt, p.TotalBadDebt)
	set(&clone.TotalBadDebtRecorded, p.TotalBadDebtRecorded)
	set(&clone.TotalBadDebtAbsorbedByReserves, p.TotalBadDebtAbsorbedByReserves)
	set(&clone.TotalBadDebtAbsorbedBySuppliers, p.TotalBadDebtAbsorbedBySuppliers)
	set(&clone.BadDebtQueuedForSuppliers, p.BadDebtQueuedForSuppliers)
	return clone
}

// LiquidationRecord captures the outcome of a single liquidation call for
// downstream consumers.
type LiquidationRecord struct {
	ID              string
	Liquidator      common.Address
	Borrower        common.Address
	CollateralAsset string
	// RepayAmount is the debt removed from the borrower, covered repayment
	// plus any written-off shortfall.
	RepayAmount *big.Int
	// CoveredAmount is the portion actually funded by the liquidator.
	CoveredAmount *big.Int
	// SeizedAmount is the collateral transferred to the liquidator, in the
	// asset's native decimals.
	SeizedAmount *big.Int
	// PenaltyBps is the seizure bonus applied.
	PenaltyBps uint64
	// BadDebt is the uncovered shortfall recorded against the borrower.
	BadDebt *big.Int
	// Timestamp is the unix time the liquidation executed.
	Timestamp int64
}
