package lending

import "math/big"

var (
	basisPoints = big.NewInt(10_000)

	// MaxHealthFactor is the sentinel returned for debt-free positions. It
	// compares greater than any real health factor and signals "never
	// liquidatable".
	MaxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

const secondsPerYear = 31_536_000

// bpsShare computes amount * bps / 10_000 with truncation.
func bpsShare(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() == 0 || bps == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return share.Quo(share, basisPoints)
}

// healthFactorBps computes weighted * 10_000 / debt. A zero debt yields the
// MaxHealthFactor sentinel.
func healthFactorBps(weighted, debt *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(MaxHealthFactor)
	}
	if weighted == nil || weighted.Sign() <= 0 {
		return big.NewInt(0)
	}
	hf := new(big.Int).Mul(weighted, basisPoints)
	return hf.Quo(hf, debt)
}

// simpleInterest computes debt * rateBps * elapsedSeconds scaled down by
// basis points and seconds per year, using widened intermediates throughout.
func simpleInterest(debt *big.Int, rateBps uint64, elapsed int64) *big.Int {
	if debt == nil || debt.Sign() == 0 || rateBps == 0 || elapsed <= 0 {
		return big.NewInt(0)
	}
	interest := new(big.Int).Mul(debt, new(big.Int).SetUint64(rateBps))
	interest.Mul(interest, big.NewInt(elapsed))
	denom := new(big.Int).Mul(basisPoints, big.NewInt(secondsPerYear))
	return interest.Quo(interest, denom)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
