package service

import (
	"context"
	"testing"
	"time"

	"github.com/basketfi/vaultcore/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

type captureBroadcaster struct {
	changes chan *model.PositionChange
}

func (b *captureBroadcaster) Broadcast(change *model.PositionChange) {
	b.changes <- change
}

func TestRecorderListsNewestFirst(t *testing.T) {
	r := NewChangeRecorder(nil)
	defer r.Close()

	otherVault := common.HexToAddress("0x0000000000000000000000000000000000000002")
	r.Record(model.NewPositionChange(vaultAddr, moduleAddr, "lever", collateral, scaled(5), scaled(-5), scaled(50)))
	r.Record(model.NewPositionChange(otherVault, moduleAddr, "sync", collateral, scaled(7), nil, nil))
	r.Record(model.NewPositionChange(vaultAddr, moduleAddr, "delever", collateral, scaled(3), scaled(-3), scaled(20)))

	records, err := r.List(context.Background(), vaultAddr.Hex(), 10)
	assert.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "delever", records[0].Op)
	assert.Equal(t, "lever", records[1].Op)
}

func TestRecorderBroadcasts(t *testing.T) {
	b := &captureBroadcaster{changes: make(chan *model.PositionChange, 1)}
	r := NewChangeRecorder(b)
	defer r.Close()

	r.Record(model.NewPositionChange(vaultAddr, moduleAddr, "lever", collateral, scaled(5), scaled(-5), scaled(50)))

	select {
	case change := <-b.changes:
		assert.Equal(t, "lever", change.Op)
		assert.Equal(t, vaultAddr.Hex(), change.VaultID)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast never arrived")
	}
}

func TestRecorderIgnoresNil(t *testing.T) {
	r := NewChangeRecorder(nil)
	defer r.Close()

	r.Record(nil)
	records, err := r.List(context.Background(), "", 10)
	assert.NoError(t, err)
	assert.Empty(t, records)
}
