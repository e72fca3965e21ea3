package lending

import (
	"errors"

	nativecommon "havenlend/native/common"
	"havenlend/native/pricefeed"
)

var (
	errNilState  = errors.New("lending engine: state not configured")
	errNilLedger = errors.New("lending engine: token ledger not configured")
	errNilPrices = errors.New("lending engine: price source not configured")
)

// Validation errors: rejected before any state change.
var (
	ErrInvalidAmount      = errors.New("lending engine: amount must be positive")
	ErrUnknownAsset       = errors.New("lending engine: collateral asset not registered")
	ErrAssetDisabled      = errors.New("lending engine: collateral asset disabled")
	ErrInvalidAssetConfig = errors.New("lending engine: invalid collateral asset configuration")
	ErrInvalidParameter   = errors.New("lending engine: invalid parameter")
)

// Capacity errors: the caller must adjust inputs.
var (
	ErrExceedsBorrowCapacity  = errors.New("lending engine: borrow exceeds collateral capacity")
	ErrBelowMinDebt           = errors.New("lending engine: resulting debt below minimum")
	ErrExceedsCloseFactor     = errors.New("lending engine: repay exceeds close factor limit")
	ErrDustLiquidation        = errors.New("lending engine: repay below minimum liquidation size")
	ErrTooManyAssets          = errors.New("lending engine: collateral asset cap reached")
	ErrInsufficientCollateral = errors.New("lending engine: insufficient collateral balance")
	ErrInsufficientLiquidity  = errors.New("lending engine: insufficient pool liquidity")
	ErrInsufficientReserves   = errors.New("lending engine: insufficient protocol reserves")
)

// State errors: no retry helps without an external state change.
var (
	ErrPositionHealthy   = errors.New("lending engine: position not eligible for liquidation")
	ErrSelfLiquidation   = errors.New("lending engine: cannot self liquidate")
	ErrNoDebt            = errors.New("lending engine: no outstanding debt")
	ErrNoBadDebt         = errors.New("lending engine: no recorded bad debt")
	ErrWithdrawUnhealthy = errors.New("lending engine: withdrawal would leave position unhealthy")
)

// ErrorClass groups engine failures for RPC and telemetry mapping.
type ErrorClass string

const (
	ClassValidation ErrorClass = "validation"
	ClassCapacity   ErrorClass = "capacity"
	ClassState      ErrorClass = "state"
	ClassOracle     ErrorClass = "oracle"
	ClassInternal   ErrorClass = "internal"
)

// Class reports the taxonomy bucket for an engine error.
func Class(err error) ErrorClass {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrUnknownAsset),
		errors.Is(err, ErrAssetDisabled),
		errors.Is(err, ErrInvalidAssetConfig),
		errors.Is(err, ErrInvalidParameter):
		return ClassValidation
	case errors.Is(err, ErrExceedsBorrowCapacity),
		errors.Is(err, ErrBelowMinDebt),
		errors.Is(err, ErrExceedsCloseFactor),
		errors.Is(err, ErrDustLiquidation),
		errors.Is(err, ErrTooManyAssets),
		errors.Is(err, ErrInsufficientCollateral),
		errors.Is(err, ErrInsufficientLiquidity),
		errors.Is(err, ErrInsufficientReserves):
		return ClassCapacity
	case errors.Is(err, ErrPositionHealthy),
		errors.Is(err, ErrSelfLiquidation),
		errors.Is(err, ErrNoDebt),
		errors.Is(err, ErrNoBadDebt),
		errors.Is(err, ErrWithdrawUnhealthy),
		errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, nativecommon.ErrUnauthorized):
		return ClassState
	case errors.Is(err, pricefeed.ErrStalePrice),
		errors.Is(err, pricefeed.ErrDeviationExceeded),
		errors.Is(err, pricefeed.ErrNoPrice),
		errors.Is(err, pricefeed.ErrFeedNotFound),
		errors.Is(err, pricefeed.ErrInvalidReading):
		return ClassOracle
	default:
		return ClassInternal
	}
}
