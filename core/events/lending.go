package events

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"havenlend/core/types"
)

const (
	// TypeLendingDeposit is emitted when collateral is locked.
	TypeLendingDeposit = "lending.deposit"
	// TypeLendingWithdraw is emitted when collateral is released.
	TypeLendingWithdraw = "lending.withdraw"
	// TypeLendingBorrow is emitted when debt is drawn against collateral.
	TypeLendingBorrow = "lending.borrow"
	// TypeLendingRepay is emitted when debt is paid down.
	TypeLendingRepay = "lending.repay"
	// TypeLendingAccrual is emitted when lazy interest accrual applied a
	// non-zero increment to a position.
	TypeLendingAccrual = "lending.accrual"
	// TypeLendingLiquidation is emitted for every successful liquidation call.
	TypeLendingLiquidation = "lending.liquidation"
	// TypeLendingBadDebt is emitted when a liquidation leaves an uncovered
	// shortfall on a borrower.
	TypeLendingBadDebt = "lending.bad_debt"
	// TypeLendingSocialization is emitted when recorded bad debt is written
	// off against reserves and queued against future supplier yield.
	TypeLendingSocialization = "lending.socialization"
)

func amountAttr(attrs map[string]string, key string, value *big.Int) {
	v := big.NewInt(0)
	if value != nil {
		v = new(big.Int).Set(value)
	}
	attrs[key] = v.String()
}

// CollateralDeposited captures a collateral lock.
type CollateralDeposited struct {
	User   common.Address
	Asset  string
	Amount *big.Int
}

func (CollateralDeposited) EventType() string { return TypeLendingDeposit }

// Event renders the structured deposit record.
func (e CollateralDeposited) Event() *types.Event {
	attrs := map[string]string{
		"user":  e.User.Hex(),
		"asset": strings.ToUpper(strings.TrimSpace(e.Asset)),
	}
	amountAttr(attrs, "amount", e.Amount)
	return &types.Event{Type: TypeLendingDeposit, Attributes: attrs}
}

// CollateralWithdrawn captures a collateral release.
type CollateralWithdrawn struct {
	User   common.Address
	Asset  string
	Amount *big.Int
}

func (CollateralWithdrawn) EventType() string { return TypeLendingWithdraw }

func (e CollateralWithdrawn) Event() *types.Event {
	attrs := map[string]string{
		"user":  e.User.Hex(),
		"asset": strings.ToUpper(strings.TrimSpace(e.Asset)),
	}
	amountAttr(attrs, "amount", e.Amount)
	return &types.Event{Type: TypeLendingWithdraw, Attributes: attrs}
}

// DebtBorrowed captures new debt drawn by a borrower.
type DebtBorrowed struct {
	User   common.Address
	Amount *big.Int
	Debt   *big.Int
}

func (DebtBorrowed) EventType() string { return TypeLendingBorrow }

func (e DebtBorrowed) Event() *types.Event {
	attrs := map[string]string{"user": e.User.Hex()}
	amountAttr(attrs, "amount", e.Amount)
	amountAttr(attrs, "debt", e.Debt)
	return &types.Event{Type: TypeLendingBorrow, Attributes: attrs}
}

// DebtRepaid captures an applied repayment split across interest and
// principal.
type DebtRepaid struct {
	User      common.Address
	Applied   *big.Int
	Interest  *big.Int
	Principal *big.Int
}

func (DebtRepaid) EventType() string { return TypeLendingRepay }

func (e DebtRepaid) Event() *types.Event {
	attrs := map[string]string{"user": e.User.Hex()}
	amountAttr(attrs, "applied", e.Applied)
	amountAttr(attrs, "interest", e.Interest)
	amountAttr(attrs, "principal", e.Principal)
	return &types.Event{Type: TypeLendingRepay, Attributes: attrs}
}

// InterestAccrued captures a non-zero lazy accrual on a position.
type InterestAccrued struct {
	User          common.Address
	Amount        *big.Int
	SupplierShare *big.Int
	ReserveShare  *big.Int
	Diverted      *big.Int
}

func (InterestAccrued) EventType() string { return TypeLendingAccrual }

func (e InterestAccrued) Event() *types.Event {
	attrs := map[string]string{"user": e.User.Hex()}
	amountAttr(attrs, "amount", e.Amount)
	amountAttr(attrs, "supplierShare", e.SupplierShare)
	amountAttr(attrs, "reserveShare", e.ReserveShare)
	if e.Diverted != nil && e.Diverted.Sign() > 0 {
		amountAttr(attrs, "divertedToBadDebt", e.Diverted)
	}
	return &types.Event{Type: TypeLendingAccrual, Attributes: attrs}
}

// LiquidationExecuted captures a completed liquidation call.
type LiquidationExecuted struct {
	ID         string
	Liquidator common.Address
	Borrower   common.Address
	Asset      string
	Repaid     *big.Int
	Seized     *big.Int
	PenaltyBps uint64
	BadDebt    *big.Int
}

func (LiquidationExecuted) EventType() string { return TypeLendingLiquidation }

func (e LiquidationExecuted) Event() *types.Event {
	attrs := map[string]string{
		"id":         e.ID,
		"liquidator": e.Liquidator.Hex(),
		"borrower":   e.Borrower.Hex(),
		"asset":      strings.ToUpper(strings.TrimSpace(e.Asset)),
	}
	amountAttr(attrs, "repaid", e.Repaid)
	amountAttr(attrs, "seized", e.Seized)
	attrs["penaltyBps"] = new(big.Int).SetUint64(e.PenaltyBps).String()
	if e.BadDebt != nil && e.BadDebt.Sign() > 0 {
		amountAttr(attrs, "badDebt", e.BadDebt)
	}
	return &types.Event{Type: TypeLendingLiquidation, Attributes: attrs}
}

// BadDebtRecorded captures an uncovered shortfall recognised during a
// liquidation.
type BadDebtRecorded struct {
	Borrower common.Address
	Amount   *big.Int
	Total    *big.Int
}

func (BadDebtRecorded) EventType() string { return TypeLendingBadDebt }

func (e BadDebtRecorded) Event() *types.Event {
	attrs := map[string]string{"borrower": e.Borrower.Hex()}
	amountAttr(attrs, "amount", e.Amount)
	amountAttr(attrs, "total", e.Total)
	return &types.Event{Type: TypeLendingBadDebt, Attributes: attrs}
}

// BadDebtSocialized captures the two-tier write-off of recorded bad debt.
type BadDebtSocialized struct {
	Borrower     common.Address
	FromReserves *big.Int
	Queued       *big.Int
}

func (BadDebtSocialized) EventType() string { return TypeLendingSocialization }

func (e BadDebtSocialized) Event() *types.Event {
	attrs := map[string]string{"borrower": e.Borrower.Hex()}
	amountAttr(attrs, "fromReserves", e.FromReserves)
	amountAttr(attrs, "queuedForSuppliers", e.Queued)
	return &types.Event{Type: TypeLendingSocialization, Attributes: attrs}
}
