package lending

import (
	"errors"
	"math/big"
	"testing"

	nativecommon "havenlend/native/common"
)

// setupUnderwater takes a borrower to a 14,000 debt against 10 ETH, then
// drops the ETH price to $1500 so the health factor lands at 0.8571.
func setupUnderwater(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	env.registerETH(t, 2000)
	env.fundPool(t, toWei(100_000))
	env.depositETH(t, borrowerAddr, toWei(10))
	if err := env.engine.Borrow(borrowerAddr, toWei(10_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if err := env.engine.Borrow(borrowerAddr, toWei(4_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	env.setPrice("ETH", 1500)
	return env
}

func TestLiquidationWithinCloseFactor(t *testing.T) {
	env := setupUnderwater(t)

	hf, err := env.engine.HealthFactor(borrowerAddr)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	// (15,000 * 0.8) / 14,000 = 0.8571
	requireBig(t, big.NewInt(8571), hf, "underwater health factor")

	if err := env.ledger.Mint("ZUSD", liquidatorAddr, toWei(3_500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	record, err := env.engine.Liquidate(liquidatorAddr, borrowerAddr, "ETH", toWei(3_500))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	// 3,500 grossed up by the 5% penalty is 3,675 of ETH at $1500: 2.45 ETH.
	wantSeized := new(big.Int).Quo(new(big.Int).Mul(toWei(3_675), big.NewInt(1e18)), toWei(1_500))
	requireBig(t, wantSeized, record.SeizedAmount, "seized collateral")
	requireBig(t, toWei(3_500), record.CoveredAmount, "covered repayment")
	requireBig(t, big.NewInt(0), record.BadDebt, "no shortfall")

	seized, err := env.ledger.BalanceOf("ETH", liquidatorAddr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	requireBig(t, wantSeized, seized, "liquidator collateral balance")

	debt, err := env.engine.TotalDebt(borrowerAddr)
	if err != nil {
		t.Fatalf("total debt: %v", err)
	}
	requireBig(t, toWei(10_500), debt, "borrower debt after liquidation")
}

func TestLiquidationBounds(t *testing.T) {
	env := setupUnderwater(t)
	if err := env.ledger.Mint("ZUSD", liquidatorAddr, toWei(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// The close factor caps a single call at 50% of the 14,000 debt. Above
	// the bound the call is rejected outright, never silently capped.
	if _, err := env.engine.Liquidate(liquidatorAddr, borrowerAddr, "ETH", toWei(7_001)); !errors.Is(err, ErrExceedsCloseFactor) {
		t.Fatalf("over close factor: want ErrExceedsCloseFactor, got %v", err)
	}
	if _, err := env.engine.Liquidate(liquidatorAddr, borrowerAddr, "ETH", big.NewInt(5e17)); !errors.Is(err, ErrDustLiquidation) {
		t.Fatalf("dust repay: want ErrDustLiquidation, got %v", err)
	}
	if _, err := env.engine.Liquidate(borrowerAddr, borrowerAddr, "ETH", toWei(1_000)); !errors.Is(err, ErrSelfLiquidation) {
		t.Fatalf("self liquidation: want ErrSelfLiquidation, got %v", err)
	}
	if _, err := env.engine.Liquidate(liquidatorAddr, borrowerAddr, "ETH", toWei(7_000)); err != nil {
		t.Fatalf("at close factor: %v", err)
	}
}

func TestLiquidationRejectsHealthyPosition(t *testing.T) {
	env := newTestEnv(t)
	env.registerETH(t, 2000)
	env.fundPool(t, toWei(100_000))
	env.depositETH(t, borrowerAddr, toWei(10))
	if err := env.engine.Borrow(borrowerAddr, toWei(10_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if err := env.ledger.Mint("ZUSD", liquidatorAddr, toWei(5_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := env.engine.Liquidate(liquidatorAddr, borrowerAddr, "ETH", toWei(5_000)); !errors.Is(err, ErrPositionHealthy) {
		t.Fatalf("healthy liquidation: want ErrPositionHealthy, got %v", err)
	}
}

// setupBadDebt crashes ETH hard enough that the seizable collateral no longer
// covers the repay, leaving a 1,300 shortfall on the borrower.
func setupBadDebt(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	env.registerETH(t, 2000)
	env.fundPool(t, toWei(100_000))
	env.depositETH(t, borrowerAddr, toWei(1))
	if err := env.engine.Borrow(borrowerAddr, toWei(1_400)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	env.setPrice("ETH", 100)
	if err := env.ledger.Mint("ZUSD", liquidatorAddr, toWei(1_400)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	return env
}

func TestLiquidationRecordsBadDebt(t *testing.T) {
	env := setupBadDebt(t)

	// Health is far below the full-liquidation threshold, so the whole 1,400
	// debt is repayable in one call. The single ETH is worth only 100, so the
	// liquidator funds 100 and the remaining 1,300 becomes bad debt.
	record, err := env.engine.Liquidate(liquidatorAddr, borrowerAddr, "ETH", toWei(1_400))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	requireBig(t, toWei(100), record.CoveredAmount, "covered repayment")
	requireBig(t, toWei(1), record.SeizedAmount, "seized capped at balance")
	requireBig(t, toWei(1_300), record.BadDebt, "recorded shortfall")

	bad, err := env.engine.BorrowerBadDebt(borrowerAddr)
	if err != nil {
		t.Fatalf("borrower bad debt: %v", err)
	}
	requireBig(t, toWei(1_300), bad, "borrower bad debt")

	remaining, err := env.ledger.BalanceOf("ZUSD", liquidatorAddr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	requireBig(t, toWei(1_300), remaining, "liquidator only funds covered portion")

	borrows, err := env.engine.TotalBorrows()
	if err != nil {
		t.Fatalf("total borrows: %v", err)
	}
	requireBig(t, big.NewInt(0), borrows, "debt fully written off in one step")

	if _, ok := env.state.positions[borrowerAddr]; ok {
		t.Fatal("expected drained position to be destroyed")
	}
}

func TestSocializeFromReserves(t *testing.T) {
	env := setupBadDebt(t)
	if _, err := env.engine.Liquidate(liquidatorAddr, borrowerAddr, "ETH", toWei(1_400)); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	env.state.pool.ProtocolReserves = toWei(2_000)

	if err := env.engine.SocializeBadDebt(borrowerAddr, borrowerAddr); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("unauthorized socialize: want ErrUnauthorized, got %v", err)
	}
	if err := env.engine.SocializeBadDebt(adminAddr, borrowerAddr); err != nil {
		t.Fatalf("socialize: %v", err)
	}

	pool, err := env.engine.Pool()
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	requireBig(t, toWei(700), pool.ProtocolReserves, "reserves after absorption")
	requireBig(t, toWei(1_300), pool.TotalBadDebtAbsorbedByReserves, "absorbed by reserves")
	requireBig(t, big.NewInt(0), pool.BadDebtQueuedForSuppliers, "nothing queued")
	requireBig(t, big.NewInt(0), pool.TotalBadDebt, "no outstanding bad debt")

	if err := env.engine.SocializeBadDebt(adminAddr, borrowerAddr); !errors.Is(err, ErrNoBadDebt) {
		t.Fatalf("repeat socialize: want ErrNoBadDebt, got %v", err)
	}
	assertBadDebtConservation(t, pool)
}

func TestSocializeQueuesBeyondReserves(t *testing.T) {
	env := setupBadDebt(t)
	if _, err := env.engine.Liquidate(liquidatorAddr, borrowerAddr, "ETH", toWei(1_400)); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	env.state.pool.ProtocolReserves = toWei(300)

	if err := env.engine.SocializeBadDebt(adminAddr, borrowerAddr); err != nil {
		t.Fatalf("socialize: %v", err)
	}
	pool, err := env.engine.Pool()
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	requireBig(t, big.NewInt(0), pool.ProtocolReserves, "reserves drained")
	requireBig(t, toWei(1_000), pool.BadDebtQueuedForSuppliers, "remainder queued")
	assertBadDebtConservation(t, pool)

	// Queued bad debt is worked off by diverting future supplier interest. A
	// fresh borrower accruing a year at 10% utilisation produces 350 of
	// interest: 35 to reserves, all 315 of the supplier share diverted.
	env.setPrice("ETH", 2000)
	second := liquidatorAddr
	env.depositETH(t, second, toWei(10))
	if err := env.engine.Borrow(second, toWei(10_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	env.advance(secondsPerYear)
	if err := env.engine.AccrueInterest(second); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	pool, err = env.engine.Pool()
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	requireBig(t, toWei(685), pool.BadDebtQueuedForSuppliers, "queue after diversion")
	requireBig(t, toWei(315), pool.TotalBadDebtAbsorbedBySuppliers, "absorbed by suppliers")
	requireBig(t, big.NewInt(0), pool.SupplierInterestAccrued, "supplier share fully diverted")
	requireBig(t, toWei(35), pool.ProtocolReserves, "reserve share untouched by diversion")
	assertBadDebtConservation(t, pool)
}

// assertBadDebtConservation checks that every unit of bad debt ever recorded
// is either outstanding, absorbed by reserves, absorbed by diverted supplier
// interest, or still queued.
func assertBadDebtConservation(t *testing.T, pool *DebtPool) {
	t.Helper()
	sum := new(big.Int).Add(pool.TotalBadDebtAbsorbedByReserves, pool.TotalBadDebtAbsorbedBySuppliers)
	sum.Add(sum, pool.BadDebtQueuedForSuppliers)
	sum.Add(sum, pool.TotalBadDebt)
	requireBig(t, pool.TotalBadDebtRecorded, sum, "bad debt conservation")
}

func TestIsLiquidatable(t *testing.T) {
	env := newTestEnv(t)
	env.registerETH(t, 2000)
	env.fundPool(t, toWei(100_000))
	env.depositETH(t, borrowerAddr, toWei(10))

	// Debt-free positions never qualify, collateral or not.
	liquidatable, err := env.engine.IsLiquidatable(borrowerAddr)
	if err != nil {
		t.Fatalf("is liquidatable: %v", err)
	}
	if liquidatable {
		t.Fatal("debt-free position reported liquidatable")
	}

	if err := env.engine.Borrow(borrowerAddr, toWei(10_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	liquidatable, err = env.engine.IsLiquidatable(borrowerAddr)
	if err != nil {
		t.Fatalf("is liquidatable: %v", err)
	}
	if liquidatable {
		t.Fatal("healthy position reported liquidatable")
	}

	// At $1200 the weighted collateral is 9,600 against a 10,000 debt.
	env.setPrice("ETH", 1200)
	liquidatable, err = env.engine.IsLiquidatable(borrowerAddr)
	if err != nil {
		t.Fatalf("is liquidatable: %v", err)
	}
	if !liquidatable {
		t.Fatal("underwater position not reported liquidatable")
	}
}

func TestEstimateSeize(t *testing.T) {
	env := newTestEnv(t)
	env.registerETH(t, 1500)
	seize, err := env.engine.EstimateSeize("ETH", toWei(3_500))
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	want := new(big.Int).Quo(new(big.Int).Mul(toWei(3_675), big.NewInt(1e18)), toWei(1_500))
	requireBig(t, want, seize, "estimated seizure")
}

func TestLiquidationParamGovernance(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetCloseFactor(adminAddr, 4000); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("unauthorized close factor: want ErrUnauthorized, got %v", err)
	}
	if err := env.engine.SetCloseFactor(riskAddr, 0); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("zero close factor: want ErrInvalidParameter, got %v", err)
	}
	if err := env.engine.SetCloseFactor(riskAddr, 4000); err != nil {
		t.Fatalf("set close factor: %v", err)
	}
	if err := env.engine.SetFullLiquidationThreshold(riskAddr, 10_001); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("oversized threshold: want ErrInvalidParameter, got %v", err)
	}
	if err := env.engine.SetFullLiquidationThreshold(riskAddr, 6000); err != nil {
		t.Fatalf("set threshold: %v", err)
	}
}
