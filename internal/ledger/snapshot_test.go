package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotRoundTrip(t *testing.T) {
	v := newTestVault(t, 10)
	assert.NoError(t, v.MintFeeShares(scaled(1)))
	assert.NoError(t, v.EditDefaultPosition(assetA, scaled(5)))
	assert.NoError(t, v.EditExternalPosition(assetB, moduleX, scaled(-2), []byte("route")))

	restored, err := FromSnapshot(v.Snapshot())
	assert.NoError(t, err)

	assert.Equal(t, v.ID, restored.ID)
	assert.Equal(t, v.TotalSupply(), restored.TotalSupply())
	assert.Equal(t, v.Multiplier(), restored.Multiplier())
	assert.ElementsMatch(t, v.Components(), restored.Components())
	assert.Equal(t, v.DefaultPositionRealUnit(assetA), restored.DefaultPositionRealUnit(assetA))
	assert.Equal(t, v.ExternalPositionRealUnit(assetB, moduleX), restored.ExternalPositionRealUnit(assetB, moduleX))
	assert.Equal(t, []byte("route"), restored.ExternalPositionData(assetB, moduleX))
}

func TestFromSnapshotRejectsGarbage(t *testing.T) {
	_, err := FromSnapshot(&Snapshot{ID: vaultAddr.Hex(), TotalSupply: "not-a-number", Multiplier: "1"})
	assert.Error(t, err)

	_, err = FromSnapshot(&Snapshot{
		ID: vaultAddr.Hex(), TotalSupply: "10", Multiplier: "1",
		Defaults: []DefaultSnapshot{{Component: assetA.Hex(), VirtualUnit: "xx"}},
	})
	assert.Error(t, err)
}
