package lending

import (
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"havenlend/core/events"
	nativecommon "havenlend/native/common"
	"havenlend/observability"
)

const moduleName = "lending"

// engineState is the persistence boundary for the lending core. Position and
// asset lookups return nil without error when no record exists.
type engineState interface {
	GetPool() (*DebtPool, error)
	PutPool(pool *DebtPool) error
	GetPosition(addr common.Address) (*Position, error)
	PutPosition(position *Position) error
	DeletePosition(addr common.Address) error
	GetAssetConfig(symbol string) (*AssetConfig, error)
	PutAssetConfig(cfg *AssetConfig) error
	AssetSymbols() ([]string, error)
	GetBadDebt(addr common.Address) (*big.Int, error)
	PutBadDebt(addr common.Address, amount *big.Int) error
	PutLiquidationRecord(record *LiquidationRecord) error
}

// TokenLedger is the external token transfer primitive. Transfers are assumed
// atomic and reverting on insufficient balance.
type TokenLedger interface {
	Transfer(token string, from, to common.Address, amount *big.Int) error
	Mint(token string, to common.Address, amount *big.Int) error
	Burn(token string, from common.Address, amount *big.Int) error
	BalanceOf(token string, addr common.Address) (*big.Int, error)
}

// PriceSource values collateral in the protocol's 18-decimal USD unit.
// Implemented by the pricefeed guard; every failure is a hard rejection.
type PriceSource interface {
	GetPrice(asset string) (*big.Int, error)
	ValueUSD(asset string, amount *big.Int) (*big.Int, error)
	AmountForValue(asset string, value *big.Int) (*big.Int, error)
}

// Engine orchestrates the collateral ledger, debt accounting and liquidation
// state transitions. Mutating operations run serialized by the embedder; each
// loads state, validates, applies token transfers and persists, so a failed
// call leaves no accounting change behind.
type Engine struct {
	state   engineState
	tokens  TokenLedger
	prices  PriceSource
	roles   nativecommon.RoleGate
	pauses  nativecommon.PauseView
	emitter events.Emitter
	logger  *slog.Logger

	interestModel *InterestModel
	cfg           Config

	moduleAddress     common.Address
	collateralAddress common.Address

	nowFn func() int64
}

// NewEngine constructs a lending engine configured with the module treasury
// addresses and runtime configuration.
func NewEngine(moduleAddr, collateralAddr common.Address, cfg Config) *Engine {
	normalised := cfg.Normalise()
	return &Engine{
		moduleAddress:     moduleAddr,
		collateralAddress: collateralAddr,
		cfg:               normalised,
		interestModel:     normalised.Interest.Model(),
		emitter:           events.NoopEmitter{},
		logger:            slog.Default(),
		nowFn:             func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokenLedger wires the engine to the token transfer primitive.
func (e *Engine) SetTokenLedger(tokens TokenLedger) {
	if e == nil {
		return
	}
	e.tokens = tokens
}

// SetPriceSource wires the engine to the guarded price feed.
func (e *Engine) SetPriceSource(prices PriceSource) {
	if e == nil {
		return
	}
	e.prices = prices
}

// SetRoles wires the capability check consulted before governed mutations.
func (e *Engine) SetRoles(roles nativecommon.RoleGate) {
	if e == nil {
		return
	}
	e.roles = roles
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter wires the engine to an event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter != nil {
		e.emitter = emitter
	} else {
		e.emitter = events.NoopEmitter{}
	}
}

// SetLogger replaces the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// SetInterestModel replaces the interest rate model used by the engine.
func (e *Engine) SetInterestModel(model *InterestModel) {
	if e == nil {
		return
	}
	if model != nil {
		e.interestModel = model.Clone()
	} else {
		e.interestModel = nil
	}
}

// SetNowFunc overrides the clock, primarily for deterministic tests. Interest
// accrual is keyed off this clock; there is no background timer.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil || now == nil {
		return
	}
	e.nowFn = now
}

// --- debt lifecycle ---

// Borrow draws the debt token against the borrower's collateral. Interest is
// accrued first so the capacity check runs against current debt.
func (e *Engine) Borrow(user common.Address, amount *big.Int) error {
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

	capacity, err := e.borrowCapacity(pos)
	if err != nil {
		return err
	}
	newDebt := new(big.Int).Add(pos.TotalDebt(), amount)
	if newDebt.Cmp(capacity) > 0 {
		return ErrExceedsBorrowCapacity
	}
	if newDebt.Cmp(e.cfg.MinDebtWei) < 0 {
		return ErrBelowMinDebt
	}
	if e.availableLiquidity(pool).Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}

	if err := e.tokens.Transfer(e.cfg.DebtToken, e.moduleAddress, user, amount); err != nil {
		return err
	}

	pos.Principal = new(big.Int).Add(pos.Principal, amount)
	pool.TotalBorrows = new(big.Int).Add(pool.TotalBorrows, amount)

	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}

	e.emitter.Emit(events.DebtBorrowed{User: user, Amount: amount, Debt: pos.TotalDebt()})
	e.recordOp("borrow", pool)
	return nil
}

// Repay pays down the borrower's debt, applying the payment to accrued
// interest before principal. Overpayment is clamped to the outstanding debt
// so it can never underflow the position.
func (e *Engine) Repay(user common.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.tokens == nil {
		return nil, errNilLedger
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	pos, err := e.ensurePosition(user)
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

	applied := minBig(amount, debt)
	if err := e.tokens.Transfer(e.cfg.DebtToken, user, e.moduleAddress, applied); err != nil {
		return nil, err
	}

	interestPaid, principalPaid := e.reduceDebt(pos, applied)
	pool.TotalBorrows = new(big.Int).Sub(pool.TotalBorrows, applied)

	if err := e.persistPosition(pos); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.DebtRepaid{
		User:      user,
		Applied:   applied,
		Interest:  interestPaid,
		Principal: principalPaid,
	})
	e.recordOp("repay", pool)
	return applied, nil
}

// AccrueInterest applies lazy interest accrual to the user's position and
// persists the result. Calling it twice at the same instant changes nothing
// the second time.
func (e *Engine) AccrueInterest(user common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
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
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	return e.state.PutPool(pool)
}

// accrue charges simple interest on the position for the elapsed wall-clock
// interval, splits the increment per the interest model and diverts the
// supplier share toward any queued socialized bad debt before it reaches
// yield routing. All aggregate updates happen here, in the same step as the
// position mutation.
func (e *Engine) accrue(pool *DebtPool, pos *Position) error {
	if pool == nil || pos == nil {
		return errNilState
	}
	now := e.nowFn()
	if pos.LastAccrual == 0 {
		pos.LastAccrual = now
		return nil
	}
	elapsed := now - pos.LastAccrual
	if elapsed <= 0 {
		return nil
	}
	debt := pos.TotalDebt()
	if debt.Sign() == 0 {
		pos.LastAccrual = now
		return nil
	}

	rateBps := uint64(0)
	if e.interestModel != nil {
		rateBps = e.interestModel.BorrowRateBps(pool.TotalBorrows, pool.TotalSupply)
	}
	increment := simpleInterest(debt, rateBps, elapsed)
	pos.LastAccrual = now
	if increment.Sign() == 0 {
		return nil
	}

	supplierShare, reserveShare := e.interestModel.SplitInterest(increment)

	pos.AccruedInterest = new(big.Int).Add(pos.AccruedInterest, increment)
	pool.TotalBorrows = new(big.Int).Add(pool.TotalBorrows, increment)
	pool.ProtocolReserves = new(big.Int).Add(pool.ProtocolReserves, reserveShare)

	diverted := big.NewInt(0)
	if pool.BadDebtQueuedForSuppliers.Sign() > 0 && supplierShare.Sign() > 0 {
		diverted = minBig(supplierShare, pool.BadDebtQueuedForSuppliers)
		pool.BadDebtQueuedForSuppliers = new(big.Int).Sub(pool.BadDebtQueuedForSuppliers, diverted)
		pool.TotalBadDebtAbsorbedBySuppliers = new(big.Int).Add(pool.TotalBadDebtAbsorbedBySuppliers, diverted)
		supplierShare = new(big.Int).Sub(supplierShare, diverted)
	}
	pool.SupplierInterestAccrued = new(big.Int).Add(pool.SupplierInterestAccrued, supplierShare)

	e.emitter.Emit(events.InterestAccrued{
		User:          pos.Address,
		Amount:        increment,
		SupplierShare: supplierShare,
		ReserveShare:  reserveShare,
		Diverted:      diverted,
	})
	return nil
}

// reduceDebt applies an amount against accrued interest first, then
// principal, and reports the split.
func (e *Engine) reduceDebt(pos *Position, amount *big.Int) (interestPaid, principalPaid *big.Int) {
	interestPaid = minBig(amount, pos.AccruedInterest)
	pos.AccruedInterest = new(big.Int).Sub(pos.AccruedInterest, interestPaid)
	principalPaid = new(big.Int).Sub(amount, interestPaid)
	if principalPaid.Cmp(pos.Principal) > 0 {
		principalPaid = new(big.Int).Set(pos.Principal)
	}
	pos.Principal = new(big.Int).Sub(pos.Principal, principalPaid)
	return interestPaid, principalPaid
}

// --- pool liquidity and reserves ---

// AddLiquidity moves stable liquidity from the vault into the pool so
// borrowers can draw on it.
func (e *Engine) AddLiquidity(vault common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilLedger
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(e.roles, nativecommon.RoleVault, vault); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	if err := e.tokens.Transfer(e.cfg.DebtToken, vault, e.moduleAddress, amount); err != nil {
		return err
	}
	pool.TotalSupply = new(big.Int).Add(pool.TotalSupply, amount)
	return e.state.PutPool(pool)
}

// RemoveLiquidity releases unborrowed liquidity back to the vault.
func (e *Engine) RemoveLiquidity(vault common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilLedger
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(e.roles, nativecommon.RoleVault, vault); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	if e.availableLiquidity(pool).Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}
	if err := e.tokens.Transfer(e.cfg.DebtToken, e.moduleAddress, vault, amount); err != nil {
		return err
	}
	pool.TotalSupply = new(big.Int).Sub(pool.TotalSupply, amount)
	return e.state.PutPool(pool)
}

// WithdrawReserves transfers accrued protocol reserves to the recipient.
// Governed: the caller must hold the lending admin role.
func (e *Engine) WithdrawReserves(caller, recipient common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilLedger
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(e.roles, nativecommon.RoleLendingAdmin, caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	if pool.ProtocolReserves.Cmp(amount) < 0 {
		return ErrInsufficientReserves
	}
	if err := e.tokens.Transfer(e.cfg.DebtToken, e.moduleAddress, recipient, amount); err != nil {
		return err
	}
	pool.ProtocolReserves = new(big.Int).Sub(pool.ProtocolReserves, amount)
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.recordOp("withdraw_reserves", pool)
	return nil
}

// --- views ---

// TotalDebt reports principal plus accrued interest for the user as stored,
// without triggering accrual.
func (e *Engine) TotalDebt(user common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.GetPosition(user)
	if err != nil {
		return nil, err
	}
	return pos.TotalDebt(), nil
}

// HealthFactor reports the user's health in basis points, where 10_000 is
// exactly 1.0. Debt-free positions report the MaxHealthFactor sentinel.
func (e *Engine) HealthFactor(user common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.GetPosition(user)
	if err != nil {
		return nil, err
	}
	debt := pos.TotalDebt()
	if debt.Sign() == 0 {
		return new(big.Int).Set(MaxHealthFactor), nil
	}
	weighted, err := e.weightedLiquidationValue(pos)
	if err != nil {
		return nil, err
	}
	return healthFactorBps(weighted, debt), nil
}

// TotalBorrows reports the outstanding debt across all borrowers.
func (e *Engine) TotalBorrows() (*big.Int, error) {
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(pool.TotalBorrows), nil
}

// ProtocolReserves reports the accumulated reserve share of interest.
func (e *Engine) ProtocolReserves() (*big.Int, error) {
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(pool.ProtocolReserves), nil
}

// BadDebtQueuedForSuppliers reports socialized losses still being worked off
// against future supplier interest.
func (e *Engine) BadDebtQueuedForSuppliers() (*big.Int, error) {
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(pool.BadDebtQueuedForSuppliers), nil
}

// SupplierInterestAccrued reports the supplier-facing interest available to
// downstream yield routing.
func (e *Engine) SupplierInterestAccrued() (*big.Int, error) {
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(pool.SupplierInterestAccrued), nil
}

// BorrowerBadDebt reports the recorded, not yet socialized bad debt for a
// borrower.
func (e *Engine) BorrowerBadDebt(user common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	bad, err := e.state.GetBadDebt(user)
	if err != nil {
		return nil, err
	}
	if bad == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bad), nil
}

// Pool returns a defensive snapshot of the global debt pool.
func (e *Engine) Pool() (*DebtPool, error) {
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// --- internals ---

func (e *Engine) ensurePool() (*DebtPool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.state.GetPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = &DebtPool{}
	}
	pool.EnsureDefaults()
	return pool, nil
}

func (e *Engine) ensurePosition(addr common.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.GetPosition(addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{Address: addr, LastAccrual: e.nowFn()}
	}
	if pos.Collateral == nil {
		pos.Collateral = make(map[string]*big.Int)
	}
	if pos.Principal == nil {
		pos.Principal = big.NewInt(0)
	}
	if pos.AccruedInterest == nil {
		pos.AccruedInterest = big.NewInt(0)
	}
	return pos, nil
}

// persistPosition stores the position, destroying the record once principal,
// interest and every collateral balance reach zero.
func (e *Engine) persistPosition(pos *Position) error {
	if pos.Empty() {
		return e.state.DeletePosition(pos.Address)
	}
	return e.state.PutPosition(pos)
}

func (e *Engine) availableLiquidity(pool *DebtPool) *big.Int {
	liquidity := new(big.Int).Sub(pool.TotalSupply, pool.TotalBorrows)
	if liquidity.Sign() < 0 {
		return big.NewInt(0)
	}
	return liquidity
}

func (e *Engine) recordOp(op string, pool *DebtPool) {
	metrics := observability.Lending()
	metrics.Operations.WithLabelValues(op, "ok").Inc()
	if pool != nil {
		observability.SetBigGauge(metrics.TotalBorrows, pool.TotalBorrows)
		observability.SetBigGauge(metrics.ProtocolReserves, pool.ProtocolReserves)
		observability.SetBigGauge(metrics.BadDebtQueued, pool.BadDebtQueuedForSuppliers)
		observability.SetBigGauge(metrics.BadDebtTotal, pool.TotalBadDebt)
	}
}
