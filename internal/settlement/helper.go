package settlement

import (
	"context"
	"math/big"

	"github.com/basketfi/vaultcore/internal/ledger"
	"github.com/basketfi/vaultcore/internal/pkg/apperrors"
	"github.com/basketfi/vaultcore/internal/venue"
	"github.com/ethereum/go-ethereum/common"
)

// Helper implements the snapshot/execute/reconcile pattern shared by
// every module that moves vault assets through an external venue.
type Helper struct {
	balances venue.BalanceReader
}

func NewHelper(balances venue.BalanceReader) *Helper {
	return &Helper{balances: balances}
}

// DeriveDefaultPosition reads a component's actual balance and computes
// the Default unit it implies at the current supply, without touching
// the ledger. Callers that must not leave partial state behind stage
// units through this and write only after their last fallible step.
//
// Returns the post-action balance and the pre/post units so the caller
// can compute exactly how much moved.
func (h *Helper) DeriveDefaultPosition(ctx context.Context, v *ledger.Vault,
	component common.Address) (*big.Int, *big.Int, *big.Int, error) {

	postBalance, err := h.balances.Balance(ctx, v.ID, component)
	if err != nil {
		return nil, nil, nil, apperrors.NewExternalState("balance read failed", err)
	}

	preUnit := v.DefaultPositionRealUnit(component)
	postUnit, err := ledger.PositionUnit(v.TotalSupply(), postBalance)
	if err != nil {
		return nil, nil, nil, err
	}
	return postBalance, preUnit, postUnit, nil
}

// CalculateAndEditDefaultPosition is DeriveDefaultPosition plus the
// write. This is the sanctioned way to update a Default position after
// an external interaction: the unit comes from what the vault really
// holds, so an airdrop landing mid-trade or a venue returning less than
// requested is absorbed instead of lost or double-counted.
//
// The final parameter is the pre-action notional the caller measured.
// The absolute re-derivation here needs only the live balance; it is
// accepted for signature parity with CalculateDefaultEditPositionUnit
// and otherwise ignored.
func (h *Helper) CalculateAndEditDefaultPosition(ctx context.Context, v *ledger.Vault,
	component common.Address, _ *big.Int) (*big.Int, *big.Int, *big.Int, error) {

	postBalance, preUnit, postUnit, err := h.DeriveDefaultPosition(ctx, v, component)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := v.EditDefaultPosition(component, postUnit); err != nil {
		return nil, nil, nil, err
	}
	return postBalance, preUnit, postUnit, nil
}

// CalculateDefaultEditPositionUnit computes the new Default unit from
// two notional snapshots when the caller owns both sides of the flow
// (wrap/unwrap style) and an absolute re-derivation would be wrong,
// e.g. a position the caller intentionally zeroed. Any balance present
// before the action that the pre-unit did not account for (an earlier
// airdrop) is excluded from the new unit.
func CalculateDefaultEditPositionUnit(totalSupply, preTotalNotional, postTotalNotional, prePositionUnit *big.Int) (*big.Int, error) {
	tracked := ledger.TotalNotional(totalSupply, prePositionUnit)
	airdropped := new(big.Int).Sub(preTotalNotional, tracked)
	if airdropped.Sign() < 0 {
		return nil, apperrors.NewValidation("pre-action notional below tracked balance")
	}
	adjusted := new(big.Int).Sub(postTotalNotional, airdropped)
	if adjusted.Sign() < 0 {
		return nil, apperrors.NewValidation("post-action notional below untracked balance")
	}
	return ledger.PositionUnit(totalSupply, adjusted)
}
