package pricefeed

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"havenlend/core/events"
	nativecommon "havenlend/native/common"
	"havenlend/observability"
)

var (
	// ErrFeedNotFound indicates no feed is registered for the asset.
	ErrFeedNotFound = errors.New("pricefeed: feed not registered")
	// ErrInvalidReading indicates the upstream source returned a zero or
	// negative raw reading.
	ErrInvalidReading = errors.New("pricefeed: invalid source reading")
	// ErrNoPrice indicates no reading has ever been accepted for the asset.
	ErrNoPrice = errors.New("pricefeed: no accepted price")
	// ErrStalePrice indicates the last accepted price is older than the feed's
	// staleness limit. Callers must refresh explicitly; there is no fallback.
	ErrStalePrice = errors.New("pricefeed: price stale")
	// ErrDeviationExceeded indicates the proposed reading moved beyond the
	// configured deviation limit in a single update. Callers step the price in
	// multiple smaller updates instead.
	ErrDeviationExceeded = errors.New("pricefeed: deviation exceeds circuit breaker")
	// ErrInvalidConfig indicates a malformed feed registration.
	ErrInvalidConfig = errors.New("pricefeed: invalid feed configuration")
	// ErrInvalidAmount indicates a negative amount passed to a valuation.
	ErrInvalidAmount = errors.New("pricefeed: amount must not be negative")
)

var basisPoints = big.NewInt(10_000)

const priceDecimals = 18

// FeedConfig describes how a raw source is normalised and guarded.
type FeedConfig struct {
	// SourceDecimals is the decimal scale of raw readings from the source.
	SourceDecimals uint8
	// AssetDecimals is the native decimal scale of the collateral token,
	// used when valuing balances.
	AssetDecimals uint8
	// MaxStalenessSeconds bounds the age of the last accepted price on reads.
	MaxStalenessSeconds uint64
	// MaxDeviationBps bounds the price movement accepted in a single update.
	MaxDeviationBps uint64
}

// FeedStatus is a read-only snapshot of a feed's guarded state.
type FeedStatus struct {
	Asset      string
	LastPrice  *big.Int
	LastUpdate int64
	Config     FeedConfig
}

type feed struct {
	source     Source
	cfg        FeedConfig
	lastPrice  *big.Int
	lastUpdate int64
}

// Guard wraps external price sources per asset. It normalises raw readings to
// an 18-decimal USD price, enforces staleness limits on reads and applies a
// per-update deviation circuit breaker so a single oracle tick cannot crash
// valuations in one transaction.
type Guard struct {
	mu      sync.RWMutex
	feeds   map[string]*feed
	roles   nativecommon.RoleGate
	emitter events.Emitter
	logger  *slog.Logger
	nowFn   func() int64
}

// NewGuard constructs a guard wired to the role gate protecting feed
// registration.
func NewGuard(roles nativecommon.RoleGate) *Guard {
	return &Guard{
		feeds:   make(map[string]*feed),
		roles:   roles,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter wires the guard to an event sink.
func (g *Guard) SetEmitter(emitter events.Emitter) {
	if g == nil {
		return
	}
	g.mu.Lock()
	if emitter != nil {
		g.emitter = emitter
	} else {
		g.emitter = events.NoopEmitter{}
	}
	g.mu.Unlock()
}

// SetLogger replaces the structured logger used for rejection warnings.
func (g *Guard) SetLogger(logger *slog.Logger) {
	if g == nil || logger == nil {
		return
	}
	g.mu.Lock()
	g.logger = logger
	g.mu.Unlock()
}

// SetNowFunc overrides the clock, primarily for deterministic tests.
func (g *Guard) SetNowFunc(now func() int64) {
	if g == nil || now == nil {
		return
	}
	g.mu.Lock()
	g.nowFn = now
	g.mu.Unlock()
}

// SetFeed registers or updates the feed for an asset. Re-registering keeps the
// last accepted price so the deviation breaker stays anchored across source
// swaps. Governed: the caller must hold the oracle admin role.
func (g *Guard) SetFeed(caller ethcommon.Address, asset string, source Source, cfg FeedConfig) error {
	if g == nil {
		return fmt.Errorf("pricefeed: guard not configured")
	}
	if err := nativecommon.RequireRole(g.roles, nativecommon.RoleOracleAdmin, caller); err != nil {
		return err
	}
	key := normaliseAsset(asset)
	if key == "" || source == nil {
		return ErrInvalidConfig
	}
	if cfg.SourceDecimals > 36 || cfg.AssetDecimals > 36 {
		return ErrInvalidConfig
	}
	if cfg.MaxStalenessSeconds == 0 {
		return ErrInvalidConfig
	}
	if cfg.MaxDeviationBps == 0 || cfg.MaxDeviationBps > 10_000 {
		return ErrInvalidConfig
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.feeds[key]; ok {
		existing.source = source
		existing.cfg = cfg
		return nil
	}
	g.feeds[key] = &feed{source: source, cfg: cfg}
	return nil
}

// UpdatePrice pulls the latest raw reading, rescales it to 18 decimals and
// accepts it only when it sits within the deviation limit of the last
// accepted price. Rejections are hard errors forcing callers to step large
// moves across multiple updates.
func (g *Guard) UpdatePrice(asset string) (*big.Int, error) {
	if g == nil {
		return nil, fmt.Errorf("pricefeed: guard not configured")
	}
	key := normaliseAsset(asset)

	g.mu.Lock()
	defer g.mu.Unlock()
	f, ok := g.feeds[key]
	if !ok {
		return nil, ErrFeedNotFound
	}

	raw, err := f.source.Latest(key)
	if err != nil {
		return nil, fmt.Errorf("pricefeed: source %s: %w", key, err)
	}
	if raw == nil || raw.Sign() <= 0 {
		observability.Pricefeed().Rejections.WithLabelValues(key, "invalid").Inc()
		return nil, ErrInvalidReading
	}

	proposed := rescale(raw, f.cfg.SourceDecimals)
	if f.lastPrice != nil && f.lastPrice.Sign() > 0 {
		if exceedsDeviation(f.lastPrice, proposed, f.cfg.MaxDeviationBps) {
			observability.Pricefeed().Rejections.WithLabelValues(key, "deviation").Inc()
			g.logger.Warn("pricefeed: update rejected by deviation breaker",
				"asset", key,
				"proposed", proposed.String(),
				"accepted", f.lastPrice.String(),
				"maxDeviationBps", f.cfg.MaxDeviationBps,
			)
			g.emitter.Emit(events.PriceRejected{
				Asset:        key,
				Proposed:     proposed,
				Accepted:     new(big.Int).Set(f.lastPrice),
				DeviationBps: f.cfg.MaxDeviationBps,
			})
			return nil, ErrDeviationExceeded
		}
	}

	previous := f.lastPrice
	f.lastPrice = proposed
	f.lastUpdate = g.nowFn()
	observability.Pricefeed().Updates.WithLabelValues(key).Inc()
	g.emitter.Emit(events.PriceUpdated{
		Asset:     key,
		Price:     new(big.Int).Set(proposed),
		Previous:  previous,
		Timestamp: f.lastUpdate,
	})
	return new(big.Int).Set(proposed), nil
}

// GetPrice returns the last accepted 18-decimal USD price. Reads fail hard
// once the price ages past the staleness limit; there is no cached fallback.
func (g *Guard) GetPrice(asset string) (*big.Int, error) {
	if g == nil {
		return nil, fmt.Errorf("pricefeed: guard not configured")
	}
	key := normaliseAsset(asset)
	g.mu.RLock()
	defer g.mu.RUnlock()
	f, ok := g.feeds[key]
	if !ok {
		return nil, ErrFeedNotFound
	}
	if f.lastPrice == nil || f.lastPrice.Sign() <= 0 {
		return nil, ErrNoPrice
	}
	now := g.nowFn()
	if now-f.lastUpdate > int64(f.cfg.MaxStalenessSeconds) {
		return nil, ErrStalePrice
	}
	return new(big.Int).Set(f.lastPrice), nil
}

// ValueUSD values an asset amount at the last accepted price, producing an
// 18-decimal USD figure. Intermediates stay in big.Int so realistic supply
// ranges cannot overflow.
func (g *Guard) ValueUSD(asset string, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	price, err := g.GetPrice(asset)
	if err != nil {
		return nil, err
	}
	decimals := g.assetDecimals(asset)
	value := new(big.Int).Mul(amount, price)
	return value.Quo(value, pow10(decimals)), nil
}

// AmountForValue converts an 18-decimal USD value into asset units at the
// last accepted price. It is the inverse of ValueUSD and feeds the seizure
// math in the liquidation engine.
func (g *Guard) AmountForValue(asset string, value *big.Int) (*big.Int, error) {
	if value == nil || value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	price, err := g.GetPrice(asset)
	if err != nil {
		return nil, err
	}
	decimals := g.assetDecimals(asset)
	amount := new(big.Int).Mul(value, pow10(decimals))
	return amount.Quo(amount, price), nil
}

// Status returns a snapshot of the feed's guarded state for operators.
func (g *Guard) Status(asset string) (FeedStatus, error) {
	if g == nil {
		return FeedStatus{}, fmt.Errorf("pricefeed: guard not configured")
	}
	key := normaliseAsset(asset)
	g.mu.RLock()
	defer g.mu.RUnlock()
	f, ok := g.feeds[key]
	if !ok {
		return FeedStatus{}, ErrFeedNotFound
	}
	status := FeedStatus{Asset: key, LastUpdate: f.lastUpdate, Config: f.cfg}
	if f.lastPrice != nil {
		status.LastPrice = new(big.Int).Set(f.lastPrice)
	}
	return status, nil
}

func (g *Guard) assetDecimals(asset string) uint8 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if f, ok := g.feeds[normaliseAsset(asset)]; ok {
		return f.cfg.AssetDecimals
	}
	return priceDecimals
}

func rescale(raw *big.Int, sourceDecimals uint8) *big.Int {
	value := new(big.Int).Set(raw)
	switch {
	case sourceDecimals < priceDecimals:
		return value.Mul(value, pow10(priceDecimals-sourceDecimals))
	case sourceDecimals > priceDecimals:
		return value.Quo(value, pow10(sourceDecimals-priceDecimals))
	default:
		return value
	}
}

func exceedsDeviation(accepted, proposed *big.Int, maxDeviationBps uint64) bool {
	diff := new(big.Int).Sub(proposed, accepted)
	diff.Abs(diff)
	diff.Mul(diff, basisPoints)
	limit := new(big.Int).Mul(accepted, new(big.Int).SetUint64(maxDeviationBps))
	return diff.Cmp(limit) > 0
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
