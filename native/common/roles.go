package common

import (
	"errors"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Role identifiers consulted before governed mutations.
const (
	// RoleLendingAdmin may register collateral assets, socialize bad debt and
	// withdraw protocol reserves.
	RoleLendingAdmin = "ROLE_LENDING_ADMIN"
	// RoleRiskAdmin may tune liquidation parameters (close factor, full
	// liquidation threshold).
	RoleRiskAdmin = "ROLE_RISK_ADMIN"
	// RoleOracleAdmin may register or replace price feeds.
	RoleOracleAdmin = "ROLE_ORACLE_ADMIN"
	// RoleVault identifies the yield-routing vault permitted to move pool
	// liquidity in and out.
	RoleVault = "ROLE_VAULT"
)

// ErrUnauthorized signals a caller lacking the role a governed operation
// requires.
var ErrUnauthorized = errors.New("caller missing required role")

// RoleGate is the external capability check consulted before any admin-only
// mutation. The implementation lives outside the lending core.
type RoleGate interface {
	HasRole(role string, addr ethcommon.Address) bool
}

// RequireRole rejects callers that do not hold the given role. A nil gate
// denies everything so a misconfigured engine fails closed.
func RequireRole(gate RoleGate, role string, caller ethcommon.Address) error {
	if gate == nil || !gate.HasRole(role, caller) {
		return ErrUnauthorized
	}
	return nil
}
