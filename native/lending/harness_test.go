package lending

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"havenlend/native/bank"
)

var (
	moduleAddr     = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	collateralAddr = common.HexToAddress("0x00000000000000000000000000000000000000A2")
	adminAddr      = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	riskAddr       = common.HexToAddress("0x00000000000000000000000000000000000000B2")
	vaultAddr      = common.HexToAddress("0x00000000000000000000000000000000000000B3")
	borrowerAddr   = common.HexToAddress("0x00000000000000000000000000000000000000C1")
	liquidatorAddr = common.HexToAddress("0x00000000000000000000000000000000000000C2")
)

// memState is an in-memory engine state for tests. Reads hand out clones so
// the engine only changes stored state through explicit puts, matching the
// persistence boundary of the real store.
type memState struct {
	pool      *DebtPool
	positions map[common.Address]*Position
	assets    map[string]*AssetConfig
	badDebt   map[common.Address]*big.Int
	records   []*LiquidationRecord
}

func newMemState() *memState {
	return &memState{
		positions: make(map[common.Address]*Position),
		assets:    make(map[string]*AssetConfig),
		badDebt:   make(map[common.Address]*big.Int),
	}
}

func (s *memState) GetPool() (*DebtPool, error) { return s.pool.Clone(), nil }

func (s *memState) PutPool(pool *DebtPool) error {
	s.pool = pool.Clone()
	return nil
}

func (s *memState) GetPosition(addr common.Address) (*Position, error) {
	return s.positions[addr].Clone(), nil
}

func (s *memState) PutPosition(position *Position) error {
	s.positions[position.Address] = position.Clone()
	return nil
}

func (s *memState) DeletePosition(addr common.Address) error {
	delete(s.positions, addr)
	return nil
}

func (s *memState) GetAssetConfig(symbol string) (*AssetConfig, error) {
	return s.assets[symbol].Clone(), nil
}

func (s *memState) PutAssetConfig(cfg *AssetConfig) error {
	s.assets[cfg.Symbol] = cfg.Clone()
	return nil
}

func (s *memState) AssetSymbols() ([]string, error) {
	symbols := make([]string, 0, len(s.assets))
	for symbol := range s.assets {
		symbols = append(symbols, symbol)
	}
	return symbols, nil
}

func (s *memState) GetBadDebt(addr common.Address) (*big.Int, error) {
	amount := s.badDebt[addr]
	if amount == nil {
		return nil, nil
	}
	return new(big.Int).Set(amount), nil
}

func (s *memState) PutBadDebt(addr common.Address, amount *big.Int) error {
	s.badDebt[addr] = new(big.Int).Set(amount)
	return nil
}

func (s *memState) PutLiquidationRecord(record *LiquidationRecord) error {
	s.records = append(s.records, record)
	return nil
}

// priceStub values assets from a fixed 18-decimal USD price per whole token.
type priceEntry struct {
	price    *big.Int
	decimals uint8
}

type priceStub struct {
	entries map[string]priceEntry
}

func newPriceStub() *priceStub {
	return &priceStub{entries: make(map[string]priceEntry)}
}

func (p *priceStub) set(asset string, price *big.Int, decimals uint8) {
	p.entries[asset] = priceEntry{price: price, decimals: decimals}
}

func (p *priceStub) GetPrice(asset string) (*big.Int, error) {
	entry, ok := p.entries[asset]
	if !ok {
		return nil, ErrUnknownAsset
	}
	return new(big.Int).Set(entry.price), nil
}

func (p *priceStub) ValueUSD(asset string, amount *big.Int) (*big.Int, error) {
	entry, ok := p.entries[asset]
	if !ok {
		return nil, ErrUnknownAsset
	}
	value := new(big.Int).Mul(amount, entry.price)
	return value.Quo(value, pow10(entry.decimals)), nil
}

func (p *priceStub) AmountForValue(asset string, value *big.Int) (*big.Int, error) {
	entry, ok := p.entries[asset]
	if !ok {
		return nil, ErrUnknownAsset
	}
	amount := new(big.Int).Mul(value, pow10(entry.decimals))
	return amount.Quo(amount, entry.price), nil
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

type roleSet map[string]map[common.Address]bool

func (r roleSet) HasRole(role string, addr common.Address) bool {
	return r[role][addr]
}

func (r roleSet) grant(role string, addr common.Address) {
	if r[role] == nil {
		r[role] = make(map[common.Address]bool)
	}
	r[role][addr] = true
}

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

type testEnv struct {
	engine *Engine
	state  *memState
	ledger *bank.Ledger
	prices *priceStub
	roles  roleSet
	pauses pauseSet
	now    int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		state:  newMemState(),
		ledger: bank.NewLedger(),
		prices: newPriceStub(),
		roles:  make(roleSet),
		pauses: make(pauseSet),
		now:    1_700_000_000,
	}
	env.roles.grant("ROLE_LENDING_ADMIN", adminAddr)
	env.roles.grant("ROLE_RISK_ADMIN", riskAddr)
	env.roles.grant("ROLE_VAULT", vaultAddr)

	engine := NewEngine(moduleAddr, collateralAddr, DefaultConfig())
	// Exact rationals keep accrual arithmetic reproducible in assertions.
	engine.SetInterestModel(&InterestModel{
		BaseRate:         big.NewRat(2, 100),
		Slope1:           big.NewRat(15, 100),
		Slope2:           big.NewRat(60, 100),
		Kink:             big.NewRat(80, 100),
		ReserveFactorBps: 1000,
	})
	engine.SetState(env.state)
	engine.SetTokenLedger(env.ledger)
	engine.SetPriceSource(env.prices)
	engine.SetRoles(env.roles)
	engine.SetPauses(env.pauses)
	engine.SetNowFunc(func() int64 { return env.now })
	env.engine = engine
	return env
}

func (env *testEnv) advance(seconds int64) { env.now += seconds }

// registerETH adds an ETH collateral market at 75% LTV, 80% liquidation
// threshold and a 5% liquidation penalty.
func (env *testEnv) registerETH(t *testing.T, priceUSD int64) {
	t.Helper()
	cfg := AssetConfig{
		Symbol:                  "ETH",
		Decimals:                18,
		MaxLTVBps:               7500,
		LiquidationThresholdBps: 8000,
		LiquidationPenaltyBps:   500,
		Enabled:                 true,
	}
	if err := env.engine.AddCollateralAsset(adminAddr, cfg); err != nil {
		t.Fatalf("add collateral asset: %v", err)
	}
	env.setPrice("ETH", priceUSD)
}

func (env *testEnv) setPrice(asset string, priceUSD int64) {
	env.prices.set(asset, toWei(priceUSD), 18)
}

// fundPool mints debt tokens to the vault and moves them into the pool.
func (env *testEnv) fundPool(t *testing.T, amount *big.Int) {
	t.Helper()
	if err := env.ledger.Mint("ZUSD", vaultAddr, amount); err != nil {
		t.Fatalf("mint liquidity: %v", err)
	}
	if err := env.engine.AddLiquidity(vaultAddr, amount); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
}

func (env *testEnv) depositETH(t *testing.T, user common.Address, amount *big.Int) {
	t.Helper()
	if err := env.ledger.Mint("ETH", user, amount); err != nil {
		t.Fatalf("mint collateral: %v", err)
	}
	if err := env.engine.Deposit(user, "ETH", amount); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func toWei(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(1e18))
}

func requireBig(t *testing.T, want, got *big.Int, label string) {
	t.Helper()
	if want.Cmp(got) != 0 {
		t.Fatalf("%s: want %s, got %s", label, want.String(), got.String())
	}
}
