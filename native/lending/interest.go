package lending

import "math/big"

// InterestModel encapsulates the parameters that shape how borrow rates react
// to pool utilisation, plus the reserve-factor split applied to accrued
// interest.
type InterestModel struct {
	// BaseRate is the minimum borrow APR applied when utilisation is zero.
	BaseRate *big.Rat
	// Slope1 is the borrow APR increase per unit of utilisation up to the
	// kink point.
	Slope1 *big.Rat
	// Slope2 governs the additional APR increase applied when utilisation
	// exceeds the kink point.
	Slope2 *big.Rat
	// Kink represents the utilisation ratio where the borrow rate slope
	// changes to encourage liquidity.
	Kink *big.Rat
	// ReserveFactorBps is the share of accrued interest routed to protocol
	// reserves.
	ReserveFactorBps uint64
}

// NewInterestModel constructs an interest model from floating point inputs.
//
// The rate parameters should be provided as decimals, e.g. a 2% base rate is
// expressed as 0.02 and an 80% kink utilisation is 0.8.
func NewInterestModel(baseRate, slope1, slope2, kink float64, reserveFactorBps uint64) *InterestModel {
	model := &InterestModel{
		BaseRate:         new(big.Rat),
		Slope1:           new(big.Rat),
		Slope2:           new(big.Rat),
		Kink:             new(big.Rat),
		ReserveFactorBps: reserveFactorBps,
	}
	model.BaseRate.SetFloat64(baseRate)
	model.Slope1.SetFloat64(slope1)
	model.Slope2.SetFloat64(slope2)
	model.Kink.SetFloat64(kink)
	return model
}

// Clone returns a deep copy of the interest model.
func (m *InterestModel) Clone() *InterestModel {
	if m == nil {
		return nil
	}
	clone := &InterestModel{
		BaseRate:         new(big.Rat),
		Slope1:           new(big.Rat),
		Slope2:           new(big.Rat),
		Kink:             new(big.Rat),
		ReserveFactorBps: m.ReserveFactorBps,
	}
	if m.BaseRate != nil {
		clone.BaseRate.Set(m.BaseRate)
	}
	if m.Slope1 != nil {
		clone.Slope1.Set(m.Slope1)
	}
	if m.Slope2 != nil {
		clone.Slope2.Set(m.Slope2)
	}
	if m.Kink != nil {
		clone.Kink.Set(m.Kink)
	}
	return clone
}

// Utilisation computes the pool utilisation ratio U = totalBorrows /
// totalSupply. When no liquidity exists the utilisation is defined as zero.
func (m *InterestModel) Utilisation(totalBorrows, totalSupply *big.Int) *big.Rat {
	if totalBorrows == nil || totalBorrows.Sign() == 0 {
		return new(big.Rat)
	}
	if totalSupply == nil || totalSupply.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(totalBorrows, totalSupply)
}

// BorrowAPR derives the dynamic borrow APR based on the current utilisation.
func (m *InterestModel) BorrowAPR(totalBorrows, totalSupply *big.Int) *big.Rat {
	if m == nil {
		return new(big.Rat)
	}
	base := cloneRat(m.BaseRate)
	utilisation := m.Utilisation(totalBorrows, totalSupply)
	if utilisation.Sign() == 0 {
		return base
	}

	rate := base
	kink := cloneRat(m.Kink)
	slope1 := cloneRat(m.Slope1)
	slope2 := cloneRat(m.Slope2)
	if kink.Sign() == 0 || utilisation.Cmp(kink) <= 0 {
		// Linear region before the kink.
		return rate.Add(rate, new(big.Rat).Mul(slope1, utilisation))
	}

	// Rate at the kink using slope1.
	rate.Add(rate, new(big.Rat).Mul(slope1, kink))

	// Additional rate beyond the kink using slope2.
	excess := new(big.Rat).Sub(utilisation, kink)
	if excess.Sign() < 0 {
		excess.SetInt64(0)
	}
	return rate.Add(rate, new(big.Rat).Mul(slope2, excess))
}

// BorrowRateBps renders the annual borrow rate in integer basis points, the
// scale every accrual computation runs in.
func (m *InterestModel) BorrowRateBps(totalBorrows, totalSupply *big.Int) uint64 {
	if m == nil {
		return 0
	}
	apr := m.BorrowAPR(totalBorrows, totalSupply)
	if apr.Sign() <= 0 {
		return 0
	}
	scaled := new(big.Rat).Mul(apr, new(big.Rat).SetInt(basisPoints))
	bps := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	if !bps.IsUint64() {
		return 0
	}
	return bps.Uint64()
}

// SplitInterest divides an accrued interest amount into the supplier-facing
// share and the protocol reserve share per the reserve factor.
func (m *InterestModel) SplitInterest(amount *big.Int) (supplier, reserve *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	factor := uint64(0)
	if m != nil {
		factor = m.ReserveFactorBps
	}
	if factor > 10_000 {
		factor = 10_000
	}
	reserve = bpsShare(amount, factor)
	supplier = new(big.Int).Sub(amount, reserve)
	return supplier, reserve
}

func cloneRat(r *big.Rat) *big.Rat {
	if r == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(r)
}

// DefaultInterestModel provides a reasonable starting configuration featuring a
// kinked rate curve with a modest base rate and a 10% reserve factor.
var DefaultInterestModel = NewInterestModel(0.02, 0.15, 0.6, 0.8, 1000)
