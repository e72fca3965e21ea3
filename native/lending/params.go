package lending

import "strings"

// maxPenaltyBps bounds the liquidation bonus; anything beyond 20% guts
// borrower protection on small price moves.
const maxPenaltyBps = 2_000

const maxAssetDecimals = 36

// Validate rejects malformed collateral asset configurations at the boundary.
// The liquidation threshold must sit strictly above the max LTV so a position
// cannot be liquidatable the moment it borrows to its limit.
func (c *AssetConfig) Validate() error {
	if c == nil {
		return ErrInvalidAssetConfig
	}
	if strings.TrimSpace(c.Symbol) == "" {
		return ErrInvalidAssetConfig
	}
	if c.Decimals > maxAssetDecimals {
		return ErrInvalidAssetConfig
	}
	if c.MaxLTVBps == 0 || c.MaxLTVBps > 10_000 {
		return ErrInvalidAssetConfig
	}
	if c.LiquidationThresholdBps <= c.MaxLTVBps || c.LiquidationThresholdBps > 10_000 {
		return ErrInvalidAssetConfig
	}
	if c.LiquidationPenaltyBps > maxPenaltyBps {
		return ErrInvalidAssetConfig
	}
	return nil
}
