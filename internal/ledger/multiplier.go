package ledger

import (
	"math/big"

	"github.com/basketfi/vaultcore/internal/pkg/apperrors"
)

// MintFeeShares mints new shares to pay a fee and scales the supply
// multiplier down in the same step, so every stored position keeps its
// notional value while its effective unit count shrinks proportionally.
//
//	multiplier' = multiplier * supply / (supply + shares)
//	supply'     = supply + shares
//
// This is the only writer of the multiplier after vault genesis; the
// multiplier is monotonically non-increasing.
func (v *Vault) MintFeeShares(shares *big.Int) error {
	if shares == nil || shares.Sign() <= 0 {
		return apperrors.NewValidation("fee share amount must be positive")
	}
	if v.totalSupply.Sign() == 0 {
		return apperrors.NewValidation("cannot accrue fees before first issuance")
	}
	newSupply := new(big.Int).Add(v.totalSupply, shares)
	scaled := new(big.Int).Mul(v.multiplier, v.totalSupply)
	v.multiplier = scaled.Quo(scaled, newSupply)
	v.totalSupply = newSupply
	return nil
}
