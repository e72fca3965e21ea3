package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"havenlend/native/lending"
	"havenlend/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db)
}

func TestPoolRoundTrip(t *testing.T) {
	m := newTestManager(t)

	pool, err := m.GetPool()
	require.NoError(t, err)
	require.Nil(t, pool, "missing pool must read as nil")

	pool = &lending.DebtPool{
		TotalBorrows:              big.NewInt(14_000),
		TotalSupply:               big.NewInt(100_000),
		ProtocolReserves:          big.NewInt(35),
		SupplierInterestAccrued:   big.NewInt(315),
		TotalBadDebt:              big.NewInt(1_300),
		TotalBadDebtRecorded:      big.NewInt(1_300),
		BadDebtQueuedForSuppliers: big.NewInt(700),
	}
	require.NoError(t, m.PutPool(pool))

	loaded, err := m.GetPool()
	require.NoError(t, err)
	require.Equal(t, 0, loaded.TotalBorrows.Cmp(pool.TotalBorrows))
	require.Equal(t, 0, loaded.SupplierInterestAccrued.Cmp(pool.SupplierInterestAccrued))
	require.Equal(t, 0, loaded.BadDebtQueuedForSuppliers.Cmp(pool.BadDebtQueuedForSuppliers))
	require.NotNil(t, loaded.TotalBadDebtAbsorbedByReserves, "omitted aggregates default to zero")
	require.Equal(t, 0, loaded.TotalBadDebtAbsorbedByReserves.Sign())
}

func TestPositionRoundTrip(t *testing.T) {
	m := newTestManager(t)
	addr := common.HexToAddress("0x00000000000000000000000000000000000000C1")

	pos, err := m.GetPosition(addr)
	require.NoError(t, err)
	require.Nil(t, pos)

	pos = &lending.Position{
		Address: addr,
		Collateral: map[string]*big.Int{
			"ETH":  big.NewInt(10),
			"WBTC": big.NewInt(2),
		},
		Principal:       big.NewInt(14_000),
		AccruedInterest: big.NewInt(350),
		LastAccrual:     1_700_000_000,
	}
	require.NoError(t, m.PutPosition(pos))

	loaded, err := m.GetPosition(addr)
	require.NoError(t, err)
	require.Equal(t, addr, loaded.Address)
	require.Equal(t, int64(1_700_000_000), loaded.LastAccrual)
	require.Equal(t, 0, loaded.Principal.Cmp(pos.Principal))
	require.Equal(t, 0, loaded.AccruedInterest.Cmp(pos.AccruedInterest))
	require.Len(t, loaded.Collateral, 2)
	require.Equal(t, 0, loaded.Collateral["ETH"].Cmp(big.NewInt(10)))
	require.Equal(t, 0, loaded.Collateral["WBTC"].Cmp(big.NewInt(2)))

	require.NoError(t, m.DeletePosition(addr))
	loaded, err = m.GetPosition(addr)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestAssetConfigIndex(t *testing.T) {
	m := newTestManager(t)

	cfg, err := m.GetAssetConfig("ETH")
	require.NoError(t, err)
	require.Nil(t, cfg)

	eth := &lending.AssetConfig{
		Symbol:                  "ETH",
		Decimals:                18,
		MaxLTVBps:               7500,
		LiquidationThresholdBps: 8000,
		LiquidationPenaltyBps:   500,
		Enabled:                 true,
	}
	wbtc := &lending.AssetConfig{
		Symbol:                  "WBTC",
		Decimals:                8,
		MaxLTVBps:               7000,
		LiquidationThresholdBps: 7500,
		Enabled:                 true,
	}
	require.NoError(t, m.PutAssetConfig(wbtc))
	require.NoError(t, m.PutAssetConfig(eth))

	symbols, err := m.AssetSymbols()
	require.NoError(t, err)
	require.Equal(t, []string{"ETH", "WBTC"}, symbols, "index stays sorted")

	// Re-registering must not duplicate the index entry.
	eth.LiquidationPenaltyBps = 800
	require.NoError(t, m.PutAssetConfig(eth))
	symbols, err = m.AssetSymbols()
	require.NoError(t, err)
	require.Equal(t, []string{"ETH", "WBTC"}, symbols)

	loaded, err := m.GetAssetConfig("ETH")
	require.NoError(t, err)
	require.Equal(t, uint64(800), loaded.LiquidationPenaltyBps)
	require.True(t, loaded.Enabled)
}

func TestBadDebtRoundTrip(t *testing.T) {
	m := newTestManager(t)
	addr := common.HexToAddress("0x00000000000000000000000000000000000000C1")

	bad, err := m.GetBadDebt(addr)
	require.NoError(t, err)
	require.Nil(t, bad, "never-recorded bad debt reads as nil")

	require.NoError(t, m.PutBadDebt(addr, big.NewInt(1_300)))
	bad, err = m.GetBadDebt(addr)
	require.NoError(t, err)
	require.Equal(t, 0, bad.Cmp(big.NewInt(1_300)))

	// A socialized write-off stores zero instead of deleting, so the record
	// history stays queryable.
	require.NoError(t, m.PutBadDebt(addr, big.NewInt(0)))
	bad, err = m.GetBadDebt(addr)
	require.NoError(t, err)
	require.NotNil(t, bad)
	require.Equal(t, 0, bad.Sign())
}

func TestLiquidationRecordRoundTrip(t *testing.T) {
	m := newTestManager(t)

	record := &lending.LiquidationRecord{
		ID:              "f2b3c9e4-0000-4000-8000-000000000001",
		Liquidator:      common.HexToAddress("0x00000000000000000000000000000000000000C2"),
		Borrower:        common.HexToAddress("0x00000000000000000000000000000000000000C1"),
		CollateralAsset: "ETH",
		RepayAmount:     big.NewInt(1_400),
		CoveredAmount:   big.NewInt(100),
		SeizedAmount:    big.NewInt(1),
		PenaltyBps:      500,
		BadDebt:         big.NewInt(1_300),
		Timestamp:       1_700_000_000,
	}
	require.NoError(t, m.PutLiquidationRecord(record))

	loaded, err := m.GetLiquidationRecord(record.ID)
	require.NoError(t, err)
	require.Equal(t, record.ID, loaded.ID)
	require.Equal(t, record.Borrower, loaded.Borrower)
	require.Equal(t, record.CollateralAsset, loaded.CollateralAsset)
	require.Equal(t, 0, loaded.RepayAmount.Cmp(record.RepayAmount))
	require.Equal(t, 0, loaded.CoveredAmount.Cmp(record.CoveredAmount))
	require.Equal(t, 0, loaded.BadDebt.Cmp(record.BadDebt))
	require.Equal(t, record.Timestamp, loaded.Timestamp)

	missing, err := m.GetLiquidationRecord("unknown")
	require.NoError(t, err)
	require.Nil(t, missing)
}
