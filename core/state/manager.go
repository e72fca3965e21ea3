package state

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"havenlend/native/lending"
	"havenlend/storage"
)

// Key layout. Positions and bad debt are keyed by hex address, assets by
// canonical symbol, liquidation records by their ID. The symbol index is a
// single sorted list so registry iteration needs no range scans.
const (
	keyPool        = "lending/pool"
	keyAssetIndex  = "lending/assets"
	prefixPosition = "lending/position/"
	prefixAsset    = "lending/asset/"
	prefixBadDebt  = "lending/baddebt/"
	prefixLiquid   = "lending/liquidation/"
)

// Manager persists lending engine state in a key-value database using RLP
// encoding. It satisfies the engine's state interface; lookups for absent
// records return nil without error.
type Manager struct {
	db storage.Database
}

// NewManager wraps a database in a lending state manager.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// RLP has no map or signed-integer support, so stored mirrors flatten the
// collateral map into a sorted entry list and widen timestamps to uint64.

type collateralEntry struct {
	Symbol string
	Amount *big.Int
}

type storedPosition struct {
	Address         common.Address
	Collateral      []collateralEntry
	Principal       *big.Int
	AccruedInterest *big.Int
	LastAccrual     uint64
}

type storedPool struct {
	TotalBorrows                    *big.Int
	TotalSupply                     *big.Int
	ProtocolReserves                *big.Int
	SupplierInterestAccrued         *big.Int
	TotalBadDebt                    *big.Int
	TotalBadDebtRecorded            *big.Int
	TotalBadDebtAbsorbedByReserves  *big.Int
	TotalBadDebtAbsorbedBySuppliers *big.Int
	BadDebtQueuedForSuppliers       *big.Int
}

type storedAsset struct {
	Symbol                  string
	Decimals                uint8
	MaxLTVBps               uint64
	LiquidationThresholdBps uint64
	LiquidationPenaltyBps   uint64
	Enabled                 bool
}

type storedLiquidation struct {
	ID              string
	Liquidator      common.Address
	Borrower        common.Address
	CollateralAsset string
	RepayAmount     *big.Int
	CoveredAmount   *big.Int
	SeizedAmount    *big.Int
	PenaltyBps      uint64
	BadDebt         *big.Int
	Timestamp       uint64
}

func (m *Manager) get(key string, out interface{}) (bool, error) {
	raw, err := m.db.Get([]byte(key))
	if err != nil {
		if err == storage.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

func (m *Manager) put(key string, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return m.db.Put([]byte(key), raw)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// GetPool loads the global debt pool, or nil when none has been stored.
func (m *Manager) GetPool() (*lending.DebtPool, error) {
	var stored storedPool
	ok, err := m.get(keyPool, &stored)
	if err != nil || !ok {
		return nil, err
	}
	pool := &lending.DebtPool{
		TotalBorrows:                    stored.TotalBorrows,
		TotalSupply:                     stored.TotalSupply,
		ProtocolReserves:                stored.ProtocolReserves,
		SupplierInterestAccrued:         stored.SupplierInterestAccrued,
		TotalBadDebt:                    stored.TotalBadDebt,
		TotalBadDebtRecorded:            stored.TotalBadDebtRecorded,
		TotalBadDebtAbsorbedByReserves:  stored.TotalBadDebtAbsorbedByReserves,
		TotalBadDebtAbsorbedBySuppliers: stored.TotalBadDebtAbsorbedBySuppliers,
		BadDebtQueuedForSuppliers:       stored.BadDebtQueuedForSuppliers,
	}
	pool.EnsureDefaults()
	return pool, nil
}

// PutPool stores the global debt pool.
func (m *Manager) PutPool(pool *lending.DebtPool) error {
	if pool == nil {
		return fmt.Errorf("state: nil pool")
	}
	stored := storedPool{
		TotalBorrows:                    orZero(pool.TotalBorrows),
		TotalSupply:                     orZero(pool.TotalSupply),
		ProtocolReserves:                orZero(pool.ProtocolReserves),
		SupplierInterestAccrued:         orZero(pool.SupplierInterestAccrued),
		TotalBadDebt:                    orZero(pool.TotalBadDebt),
		TotalBadDebtRecorded:            orZero(pool.TotalBadDebtRecorded),
		TotalBadDebtAbsorbedByReserves:  orZero(pool.TotalBadDebtAbsorbedByReserves),
		TotalBadDebtAbsorbedBySuppliers: orZero(pool.TotalBadDebtAbsorbedBySuppliers),
		BadDebtQueuedForSuppliers:       orZero(pool.BadDebtQueuedForSuppliers),
	}
	return m.put(keyPool, &stored)
}

func positionKey(addr common.Address) string {
	return prefixPosition + addr.Hex()
}

// GetPosition loads a borrower's position, or nil when none exists.
func (m *Manager) GetPosition(addr common.Address) (*lending.Position, error) {
	var stored storedPosition
	ok, err := m.get(positionKey(addr), &stored)
	if err != nil || !ok {
		return nil, err
	}
	pos := &lending.Position{
		Address:         stored.Address,
		Collateral:      make(map[string]*big.Int, len(stored.Collateral)),
		Principal:       orZero(stored.Principal),
		AccruedInterest: orZero(stored.AccruedInterest),
		LastAccrual:     int64(stored.LastAccrual),
	}
	for _, entry := range stored.Collateral {
		pos.Collateral[entry.Symbol] = orZero(entry.Amount)
	}
	return pos, nil
}

// PutPosition stores a borrower's position.
func (m *Manager) PutPosition(position *lending.Position) error {
	if position == nil {
		return fmt.Errorf("state: nil position")
	}
	stored := storedPosition{
		Address:         position.Address,
		Principal:       orZero(position.Principal),
		AccruedInterest: orZero(position.AccruedInterest),
		LastAccrual:     uint64(position.LastAccrual),
	}
	symbols := make([]string, 0, len(position.Collateral))
	for symbol := range position.Collateral {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		stored.Collateral = append(stored.Collateral, collateralEntry{
			Symbol: symbol,
			Amount: orZero(position.Collateral[symbol]),
		})
	}
	return m.put(positionKey(position.Address), &stored)
}

// DeletePosition removes a borrower's position record.
func (m *Manager) DeletePosition(addr common.Address) error {
	return m.db.Delete([]byte(positionKey(addr)))
}

// GetAssetConfig loads a collateral asset's configuration, or nil when the
// symbol is unknown.
func (m *Manager) GetAssetConfig(symbol string) (*lending.AssetConfig, error) {
	var stored storedAsset
	ok, err := m.get(prefixAsset+symbol, &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &lending.AssetConfig{
		Symbol:                  stored.Symbol,
		Decimals:                stored.Decimals,
		MaxLTVBps:               stored.MaxLTVBps,
		LiquidationThresholdBps: stored.LiquidationThresholdBps,
		LiquidationPenaltyBps:   stored.LiquidationPenaltyBps,
		Enabled:                 stored.Enabled,
	}, nil
}

// PutAssetConfig stores a collateral asset configuration and maintains the
// sorted symbol index.
func (m *Manager) PutAssetConfig(cfg *lending.AssetConfig) error {
	if cfg == nil {
		return fmt.Errorf("state: nil asset config")
	}
	stored := storedAsset{
		Symbol:                  cfg.Symbol,
		Decimals:                cfg.Decimals,
		MaxLTVBps:               cfg.MaxLTVBps,
		LiquidationThresholdBps: cfg.LiquidationThresholdBps,
		LiquidationPenaltyBps:   cfg.LiquidationPenaltyBps,
		Enabled:                 cfg.Enabled,
	}
	if err := m.put(prefixAsset+cfg.Symbol, &stored); err != nil {
		return err
	}
	symbols, err := m.AssetSymbols()
	if err != nil {
		return err
	}
	for _, existing := range symbols {
		if existing == cfg.Symbol {
			return nil
		}
	}
	symbols = append(symbols, cfg.Symbol)
	sort.Strings(symbols)
	return m.put(keyAssetIndex, symbols)
}

// AssetSymbols reports every registered collateral symbol in sorted order.
func (m *Manager) AssetSymbols() ([]string, error) {
	var symbols []string
	if _, err := m.get(keyAssetIndex, &symbols); err != nil {
		return nil, err
	}
	return symbols, nil
}

func badDebtKey(addr common.Address) string {
	return prefixBadDebt + addr.Hex()
}

// GetBadDebt loads the recorded bad debt for a borrower, or nil when none has
// ever been recorded.
func (m *Manager) GetBadDebt(addr common.Address) (*big.Int, error) {
	var amount big.Int
	ok, err := m.get(badDebtKey(addr), &amount)
	if err != nil || !ok {
		return nil, err
	}
	return &amount, nil
}

// PutBadDebt stores the recorded bad debt for a borrower. A zero amount is
// stored, not deleted, so socialized write-offs stay auditable.
func (m *Manager) PutBadDebt(addr common.Address, amount *big.Int) error {
	return m.put(badDebtKey(addr), orZero(amount))
}

// PutLiquidationRecord appends a liquidation outcome keyed by its ID.
func (m *Manager) PutLiquidationRecord(record *lending.LiquidationRecord) error {
	if record == nil {
		return fmt.Errorf("state: nil liquidation record")
	}
	stored := storedLiquidation{
		ID:              record.ID,
		Liquidator:      record.Liquidator,
		Borrower:        record.Borrower,
		CollateralAsset: record.CollateralAsset,
		RepayAmount:     orZero(record.RepayAmount),
		CoveredAmount:   orZero(record.CoveredAmount),
		SeizedAmount:    orZero(record.SeizedAmount),
		PenaltyBps:      record.PenaltyBps,
		BadDebt:         orZero(record.BadDebt),
		Timestamp:       uint64(record.Timestamp),
	}
	return m.put(prefixLiquid+record.ID, &stored)
}

// GetLiquidationRecord loads a stored liquidation by ID, or nil when unknown.
func (m *Manager) GetLiquidationRecord(id string) (*lending.LiquidationRecord, error) {
	var stored storedLiquidation
	ok, err := m.get(prefixLiquid+id, &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &lending.LiquidationRecord{
		ID:              stored.ID,
		Liquidator:      stored.Liquidator,
		Borrower:        stored.Borrower,
		CollateralAsset: stored.CollateralAsset,
		RepayAmount:     stored.RepayAmount,
		CoveredAmount:   stored.CoveredAmount,
		SeizedAmount:    stored.SeizedAmount,
		PenaltyBps:      stored.PenaltyBps,
		BadDebt:         stored.BadDebt,
		Timestamp:       int64(stored.Timestamp),
	}, nil
}
