package ledger

import (
	"math/big"

	"github.com/basketfi/vaultcore/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is the persistence image of a vault. Units are stored as
// decimal strings of the raw *virtual* values so a restore is lossless
// regardless of the multiplier at save time.
type Snapshot struct {
	ID          string
	TotalSupply string
	Multiplier  string
	Defaults    []DefaultSnapshot
	Externals   []ExternalSnapshot
}

type DefaultSnapshot struct {
	Component   string
	VirtualUnit string
}

type ExternalSnapshot struct {
	Component   string
	Module      string
	VirtualUnit string
	Data        []byte
}

func (v *Vault) Snapshot() *Snapshot {
	snap := &Snapshot{
		ID:          v.ID.Hex(),
		TotalSupply: v.totalSupply.String(),
		Multiplier:  v.multiplier.String(),
	}
	for _, c := range v.components {
		if unit, ok := v.defaults[c]; ok && unit.Sign() != 0 {
			snap.Defaults = append(snap.Defaults, DefaultSnapshot{
				Component:   c.Hex(),
				VirtualUnit: unit.String(),
			})
		}
		for _, m := range v.ExternalModules(c) {
			entry := v.externals[c][m]
			snap.Externals = append(snap.Externals, ExternalSnapshot{
				Component:   c.Hex(),
				Module:      m.Hex(),
				VirtualUnit: entry.virtualUnit.String(),
				Data:        entry.data,
			})
		}
	}
	return snap
}

func FromSnapshot(snap *Snapshot) (*Vault, error) {
	v := NewVault(common.HexToAddress(snap.ID))
	var ok bool
	if v.totalSupply, ok = new(big.Int).SetString(snap.TotalSupply, 10); !ok {
		return nil, apperrors.NewValidation("invalid total supply %q", snap.TotalSupply)
	}
	if v.multiplier, ok = new(big.Int).SetString(snap.Multiplier, 10); !ok {
		return nil, apperrors.NewValidation("invalid multiplier %q", snap.Multiplier)
	}
	for _, d := range snap.Defaults {
		unit, ok := new(big.Int).SetString(d.VirtualUnit, 10)
		if !ok {
			return nil, apperrors.NewValidation("invalid default unit %q", d.VirtualUnit)
		}
		c := common.HexToAddress(d.Component)
		v.defaults[c] = unit
		v.addComponent(c)
	}
	for _, e := range snap.Externals {
		unit, ok := new(big.Int).SetString(e.VirtualUnit, 10)
		if !ok {
			return nil, apperrors.NewValidation("invalid external unit %q", e.VirtualUnit)
		}
		c := common.HexToAddress(e.Component)
		if v.externals[c] == nil {
			v.externals[c] = make(map[common.Address]*ExternalEntry)
		}
		v.externals[c][common.HexToAddress(e.Module)] = &ExternalEntry{
			virtualUnit: unit,
			data:        e.Data,
		}
		v.addComponent(c)
	}
	return v, nil
}
