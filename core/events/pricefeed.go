package events

import (
	"math/big"
	"strings"

	"havenlend/core/types"
)

const (
	// TypePriceUpdated is emitted when a feed reading passes the deviation
	// breaker and becomes the accepted price.
	TypePriceUpdated = "pricefeed.updated"
	// TypePriceRejected is emitted when a feed reading is rejected by the
	// deviation breaker.
	TypePriceRejected = "pricefeed.rejected"
)

// PriceUpdated captures an accepted feed reading normalised to 1e18 USD.
type PriceUpdated struct {
	Asset     string
	Price     *big.Int
	Previous  *big.Int
	Timestamp int64
}

func (PriceUpdated) EventType() string { return TypePriceUpdated }

func (e PriceUpdated) Event() *types.Event {
	attrs := map[string]string{
		"asset": strings.ToUpper(strings.TrimSpace(e.Asset)),
	}
	amountAttr(attrs, "price", e.Price)
	if e.Previous != nil && e.Previous.Sign() > 0 {
		amountAttr(attrs, "previous", e.Previous)
	}
	attrs["timestamp"] = big.NewInt(e.Timestamp).String()
	return &types.Event{Type: TypePriceUpdated, Attributes: attrs}
}

// PriceRejected captures a reading the circuit breaker refused.
type PriceRejected struct {
	Asset        string
	Proposed     *big.Int
	Accepted     *big.Int
	DeviationBps uint64
}

func (PriceRejected) EventType() string { return TypePriceRejected }

func (e PriceRejected) Event() *types.Event {
	attrs := map[string]string{
		"asset": strings.ToUpper(strings.TrimSpace(e.Asset)),
	}
	amountAttr(attrs, "proposed", e.Proposed)
	amountAttr(attrs, "accepted", e.Accepted)
	attrs["maxDeviationBps"] = new(big.Int).SetUint64(e.DeviationBps).String()
	return &types.Event{Type: TypePriceRejected, Attributes: attrs}
}
