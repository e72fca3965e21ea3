package pricefeed

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// Source delivers raw price readings for an asset in the source's native
// decimals. Implementations wrap whatever upstream oracle the deployment
// trusts; the guard never consumes a reading without normalising and
// validating it first.
type Source interface {
	Latest(asset string) (*big.Int, error)
}

// ManualSource provides an in-memory source implementation used for tests and
// manual overrides during incident response.
type ManualSource struct {
	mu       sync.RWMutex
	readings map[string]*big.Int
}

// NewManualSource constructs an empty manual source instance.
func NewManualSource() *ManualSource {
	return &ManualSource{readings: make(map[string]*big.Int)}
}

// Set stores the provided raw reading for the asset.
func (m *ManualSource) Set(asset string, reading *big.Int) {
	if m == nil || reading == nil {
		return
	}
	key := normaliseAsset(asset)
	if key == "" {
		return
	}
	m.mu.Lock()
	m.readings[key] = new(big.Int).Set(reading)
	m.mu.Unlock()
}

// Latest retrieves the stored reading for the asset.
func (m *ManualSource) Latest(asset string) (*big.Int, error) {
	if m == nil {
		return nil, fmt.Errorf("pricefeed: manual source not configured")
	}
	key := normaliseAsset(asset)
	m.mu.RLock()
	stored, ok := m.readings[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("pricefeed: manual source has no reading for %s", asset)
	}
	return new(big.Int).Set(stored), nil
}

func normaliseAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
