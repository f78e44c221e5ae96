package ledger

import (
	"math/big"
	"testing"

	"github.com/basketfi/vaultcore/internal/pkg/apperrors"
	"github.com/basketfi/vaultcore/internal/precise"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

var (
	vaultAddr = common.HexToAddress("0x0000000000000000000000000000000000000001")
	assetA    = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	assetB    = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	moduleX   = common.HexToAddress("0x0000000000000000000000000000000000000101")
)

func scaled(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), precise.Scale)
}

func newTestVault(t *testing.T, supply int64) *Vault {
	v := NewVault(vaultAddr)
	if supply > 0 {
		assert.NoError(t, v.MintShares(scaled(supply)))
	}
	return v
}

func TestConversionRoundTripNeverOverstates(t *testing.T) {
	supply := scaled(7)
	notional := big.NewInt(1000000000000000001) // deliberately not divisible

	unit, err := PositionUnit(supply, notional)
	assert.NoError(t, err)
	back := TotalNotional(supply, unit)

	assert.True(t, back.Cmp(notional) <= 0, "round-trip must not inflate the claim")
	loss := new(big.Int).Sub(notional, back)
	assert.True(t, loss.Cmp(big.NewInt(7)) <= 0, "loss bounded by supply in wei")
}

func TestPositionUnitRequiresSupply(t *testing.T) {
	_, err := PositionUnit(precise.Zero(), scaled(100))
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestEditDefaultPosition(t *testing.T) {
	v := newTestVault(t, 10)

	assert.NoError(t, v.EditDefaultPosition(assetA, scaled(5)))
	assert.True(t, v.HasDefaultPosition(assetA))
	assert.Equal(t, scaled(5), v.DefaultPositionRealUnit(assetA))
	assert.Equal(t, []common.Address{assetA}, v.Components())

	// writing the current value again changes nothing
	assert.NoError(t, v.EditDefaultPosition(assetA, scaled(5)))
	assert.Equal(t, scaled(5), v.DefaultPositionRealUnit(assetA))
	assert.Equal(t, []common.Address{assetA}, v.Components())

	// negative unit is rejected
	err := v.EditDefaultPosition(assetA, big.NewInt(-1))
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	// zero removes the position and collapses membership
	assert.NoError(t, v.EditDefaultPosition(assetA, precise.Zero()))
	assert.False(t, v.HasDefaultPosition(assetA))
	assert.Empty(t, v.Components())
}

func TestZeroDefaultKeepsComponentWithExternalEntry(t *testing.T) {
	v := newTestVault(t, 10)
	assert.NoError(t, v.EditDefaultPosition(assetA, scaled(5)))
	assert.NoError(t, v.EditExternalPosition(assetA, moduleX, scaled(-2), []byte("aux")))

	assert.NoError(t, v.EditDefaultPosition(assetA, precise.Zero()))
	assert.Equal(t, []common.Address{assetA}, v.Components())
	assert.Equal(t, scaled(-2), v.ExternalPositionRealUnit(assetA, moduleX))

	// dropping the external entry too collapses the component
	assert.NoError(t, v.EditExternalPosition(assetA, moduleX, precise.Zero(), nil))
	assert.Empty(t, v.Components())
}

func TestExternalPositionDataIsCopied(t *testing.T) {
	v := newTestVault(t, 10)
	aux := []byte{1, 2, 3}
	assert.NoError(t, v.EditExternalPosition(assetB, moduleX, scaled(-1), aux))

	aux[0] = 99
	stored := v.ExternalPositionData(assetB, moduleX)
	assert.Equal(t, []byte{1, 2, 3}, stored)

	stored[1] = 99
	assert.Equal(t, []byte{1, 2, 3}, v.ExternalPositionData(assetB, moduleX))
}

func TestHasSufficientUnits(t *testing.T) {
	v := newTestVault(t, 10)
	assert.NoError(t, v.EditDefaultPosition(assetA, scaled(5)))

	assert.True(t, v.HasSufficientDefaultUnits(assetA, scaled(5)))
	assert.False(t, v.HasSufficientDefaultUnits(assetA, scaled(6)))
	assert.False(t, v.HasSufficientDefaultUnits(assetA, big.NewInt(-1)))

	assert.NoError(t, v.EditExternalPosition(assetA, moduleX, scaled(-3), nil))
	assert.True(t, v.HasSufficientExternalUnits(assetA, moduleX, scaled(-3)))
	assert.False(t, v.HasSufficientExternalUnits(assetA, moduleX, scaled(-2)))
}

func TestDefaultTrackedBalance(t *testing.T) {
	v := newTestVault(t, 10)
	assert.NoError(t, v.EditDefaultPosition(assetA, scaled(5)))
	assert.Equal(t, scaled(50), v.DefaultTrackedBalance(assetA))

	// untracked component reads zero, not an error
	assert.Zero(t, v.DefaultTrackedBalance(assetB).Sign())
}

func TestMintFeeSharesPreservesNotional(t *testing.T) {
	v := newTestVault(t, 10)
	assert.NoError(t, v.EditDefaultPosition(assetA, scaled(5)))
	assert.NoError(t, v.EditExternalPosition(assetB, moduleX, scaled(-2), nil))

	preDefault := v.DefaultTrackedBalance(assetA)
	preDebt := TotalNotional(v.TotalSupply(), v.ExternalPositionRealUnit(assetB, moduleX))

	assert.NoError(t, v.MintFeeShares(scaled(1)))
	assert.Equal(t, scaled(11), v.TotalSupply())
	assert.True(t, v.Multiplier().Cmp(precise.Scale) < 0)

	// notional claims are unchanged (up to wei-level truncation), while
	// per-share units shrank
	postDefault := v.DefaultTrackedBalance(assetA)
	postDebt := TotalNotional(v.TotalSupply(), v.ExternalPositionRealUnit(assetB, moduleX))

	diff := new(big.Int).Abs(new(big.Int).Sub(preDefault, postDefault))
	assert.True(t, diff.Cmp(big.NewInt(100)) <= 0, "default notional moved by %s", diff)
	diff = new(big.Int).Abs(new(big.Int).Sub(preDebt, postDebt))
	assert.True(t, diff.Cmp(big.NewInt(100)) <= 0, "debt notional moved by %s", diff)

	assert.True(t, v.DefaultPositionRealUnit(assetA).Cmp(scaled(5)) < 0)
}

func TestMintFeeSharesValidation(t *testing.T) {
	v := newTestVault(t, 0)
	err := v.MintFeeShares(scaled(1))
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	v = newTestVault(t, 10)
	err = v.MintFeeShares(precise.Zero())
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestBurnShares(t *testing.T) {
	v := newTestVault(t, 10)
	assert.NoError(t, v.BurnShares(scaled(4)))
	assert.Equal(t, scaled(6), v.TotalSupply())

	err := v.BurnShares(scaled(7))
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestPositionWouldChangeComparesVirtualUnits(t *testing.T) {
	v := newTestVault(t, 10)
	assert.NoError(t, v.MintFeeShares(big.NewInt(337)))

	// absent entries: only a non-zero target counts as a change
	assert.False(t, v.DefaultPositionWouldChange(assetA, precise.Zero()))
	assert.True(t, v.DefaultPositionWouldChange(assetA, scaled(5)))
	assert.False(t, v.ExternalPositionWouldChange(assetB, moduleX, precise.Zero()))
	assert.True(t, v.ExternalPositionWouldChange(assetB, moduleX, scaled(-2)))

	// re-deriving the same real unit is never a change, even when the
	// real read-back truncates a wei short of what was written
	assert.NoError(t, v.EditDefaultPosition(assetA, scaled(5)))
	assert.False(t, v.DefaultPositionWouldChange(assetA, scaled(5)))
	assert.True(t, v.DefaultPositionWouldChange(assetA, scaled(6)))

	assert.NoError(t, v.EditExternalPosition(assetB, moduleX, scaled(-2), nil))
	assert.False(t, v.ExternalPositionWouldChange(assetB, moduleX, scaled(-2)))
	assert.True(t, v.ExternalPositionWouldChange(assetB, moduleX, scaled(-3)))
}

func TestEditAfterFeeAccrualStoresRealUnits(t *testing.T) {
	// A write after fee accrual must read back as written: the virtual
	// conversion and the read-side rescale cancel out.
	v := newTestVault(t, 10)
	assert.NoError(t, v.MintFeeShares(scaled(2)))

	assert.NoError(t, v.EditDefaultPosition(assetA, scaled(3)))
	got := v.DefaultPositionRealUnit(assetA)
	diff := new(big.Int).Abs(new(big.Int).Sub(got, scaled(3)))
	assert.True(t, diff.Cmp(big.NewInt(10)) <= 0, "read-back drifted by %s", diff)
}
