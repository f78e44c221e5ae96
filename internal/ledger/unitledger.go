package ledger

import (
	"math/big"

	"github.com/basketfi/vaultcore/internal/pkg/apperrors"
	"github.com/basketfi/vaultcore/internal/pkg/metrics"
	"github.com/basketfi/vaultcore/internal/precise"
	"github.com/ethereum/go-ethereum/common"
)

// TotalNotional converts a real position unit into its absolute amount
// at the given total supply: unit * supply / Scale, truncated. Rounding
// down here and in PositionUnit is deliberately asymmetric: composing
// the two can lose fractional notional but never lets the ledger claim
// more than the vault actually received.
func TotalNotional(totalSupply, positionUnit *big.Int) *big.Int {
	return precise.Mul(positionUnit, totalSupply)
}

// PositionUnit is the inverse conversion: notional * Scale / supply,
// truncated. It is not a perfect inverse of TotalNotional; see above.
func PositionUnit(totalSupply, totalNotional *big.Int) (*big.Int, error) {
	if totalSupply == nil || totalSupply.Sign() <= 0 {
		return nil, apperrors.NewValidation("total supply must be positive to derive a position unit")
	}
	return precise.Div(totalNotional, totalSupply), nil
}

func (v *Vault) HasDefaultPosition(c common.Address) bool {
	unit, ok := v.defaults[c]
	return ok && unit.Sign() != 0
}

func (v *Vault) HasExternalPosition(c, module common.Address) bool {
	entry, ok := v.externals[c][module]
	return ok && entry.virtualUnit.Sign() != 0
}

// DefaultPositionRealUnit returns the component's Default unit with the
// supply multiplier applied.
func (v *Vault) DefaultPositionRealUnit(c common.Address) *big.Int {
	unit, ok := v.defaults[c]
	if !ok {
		return precise.Zero()
	}
	return v.virtualToReal(unit)
}

// ExternalPositionRealUnit returns the module's External unit for the
// component with the supply multiplier applied.
func (v *Vault) ExternalPositionRealUnit(c, module common.Address) *big.Int {
	entry, ok := v.externals[c][module]
	if !ok {
		return precise.Zero()
	}
	return v.virtualToReal(entry.virtualUnit)
}

// ExternalPositionData returns a copy of the module's opaque blob.
func (v *Vault) ExternalPositionData(c, module common.Address) []byte {
	entry, ok := v.externals[c][module]
	if !ok || entry.data == nil {
		return nil
	}
	out := make([]byte, len(entry.data))
	copy(out, entry.data)
	return out
}

// HasSufficientDefaultUnits is the pre-flight check before a module
// reduces a Default position. It never mutates.
func (v *Vault) HasSufficientDefaultUnits(c common.Address, requiredUnit *big.Int) bool {
	if requiredUnit == nil || requiredUnit.Sign() < 0 {
		return false
	}
	return v.DefaultPositionRealUnit(c).Cmp(requiredUnit) >= 0
}

// HasSufficientExternalUnits compares the stored signed unit against the
// requested one.
func (v *Vault) HasSufficientExternalUnits(c, module common.Address, requiredUnit *big.Int) bool {
	if requiredUnit == nil {
		return false
	}
	return v.ExternalPositionRealUnit(c, module).Cmp(requiredUnit) >= 0
}

// DefaultPositionWouldChange reports whether writing newUnit would
// alter the stored entry. Stored units are virtual, so the comparison
// happens in virtual space: a real unit read back through the
// multiplier can truncate a wei short of what was written, and treating
// that as drift would make reconcilers rewrite forever.
func (v *Vault) DefaultPositionWouldChange(c common.Address, newUnit *big.Int) bool {
	stored, ok := v.defaults[c]
	if !ok {
		return newUnit != nil && newUnit.Sign() != 0
	}
	return stored.Cmp(v.realToVirtual(newUnit)) != 0
}

// ExternalPositionWouldChange is the External counterpart of
// DefaultPositionWouldChange.
func (v *Vault) ExternalPositionWouldChange(c, module common.Address, newUnit *big.Int) bool {
	entry, ok := v.externals[c][module]
	if !ok {
		return newUnit != nil && newUnit.Sign() != 0
	}
	return entry.virtualUnit.Cmp(v.realToVirtual(newUnit)) != 0
}

// EditDefaultPosition sets the Default unit for the component. A zero
// unit removes the component from the membership set unless External
// entries remain; a repeated edit with the current value is a no-op.
func (v *Vault) EditDefaultPosition(c common.Address, newUnit *big.Int) error {
	if newUnit == nil || newUnit.Sign() < 0 {
		return apperrors.NewValidation("default unit must be non-negative")
	}
	if newUnit.Sign() == 0 {
		delete(v.defaults, c)
		v.removeComponentIfEmpty(c)
	} else {
		v.defaults[c] = v.realToVirtual(newUnit)
		v.addComponent(c)
	}
	metrics.PositionEdits.WithLabelValues("default").Inc()
	return nil
}

// EditExternalPosition sets the (component, module) External unit and
// stores the aux blob verbatim. Only the attributing module may call
// this for its own slot; the service layer enforces that.
func (v *Vault) EditExternalPosition(c, module common.Address, newUnit *big.Int, auxData []byte) error {
	if newUnit == nil {
		return apperrors.NewValidation("external unit is required")
	}
	if newUnit.Sign() == 0 {
		if mods, ok := v.externals[c]; ok {
			delete(mods, module)
			if len(mods) == 0 {
				delete(v.externals, c)
			}
		}
		v.removeComponentIfEmpty(c)
	} else {
		if v.externals[c] == nil {
			v.externals[c] = make(map[common.Address]*ExternalEntry)
		}
		var data []byte
		if auxData != nil {
			data = make([]byte, len(auxData))
			copy(data, auxData)
		}
		v.externals[c][module] = &ExternalEntry{
			virtualUnit: v.realToVirtual(newUnit),
			data:        data,
		}
		v.addComponent(c)
	}
	metrics.PositionEdits.WithLabelValues("external").Inc()
	return nil
}

// DefaultTrackedBalance is what the ledger believes the vault holds of
// this component right now: the stored unit converted at current supply.
func (v *Vault) DefaultTrackedBalance(c common.Address) *big.Int {
	return TotalNotional(v.totalSupply, v.DefaultPositionRealUnit(c))
}

func (v *Vault) virtualToReal(unit *big.Int) *big.Int {
	return precise.MulDiv(unit, v.multiplier, precise.Scale)
}

func (v *Vault) realToVirtual(unit *big.Int) *big.Int {
	return precise.MulDiv(unit, precise.Scale, v.multiplier)
}
