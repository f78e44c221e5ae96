package ledger

import (
	"math/big"
	"sort"

	"github.com/basketfi/vaultcore/internal/pkg/apperrors"
	"github.com/basketfi/vaultcore/internal/precise"
	"github.com/ethereum/go-ethereum/common"
)

// ExternalEntry is one module-attributed exposure for a component:
// a signed virtual unit (typically negative for debt) plus an opaque
// data blob owned by the attributing module.
type ExternalEntry struct {
	virtualUnit *big.Int
	data        []byte
}

// Vault is the per-vault ledger: total share supply, the supply
// multiplier, the component membership set and both position maps.
// Stored units are virtual; every read rescales through the multiplier
// so fee inflation never rewrites individual entries.
//
// A Vault is not safe for concurrent use. The owning service serializes
// all access per vault; lifecycle modules additionally hold a
// re-entrancy lock for the duration of an operation.
type Vault struct {
	ID common.Address

	totalSupply *big.Int
	multiplier  *big.Int

	components []common.Address
	defaults   map[common.Address]*big.Int
	externals  map[common.Address]map[common.Address]*ExternalEntry
}

func NewVault(id common.Address) *Vault {
	return &Vault{
		ID:          id,
		totalSupply: precise.Zero(),
		multiplier:  new(big.Int).Set(precise.Scale),
		defaults:    make(map[common.Address]*big.Int),
		externals:   make(map[common.Address]map[common.Address]*ExternalEntry),
	}
}

func (v *Vault) TotalSupply() *big.Int {
	return new(big.Int).Set(v.totalSupply)
}

func (v *Vault) Multiplier() *big.Int {
	return new(big.Int).Set(v.multiplier)
}

// Components returns the membership set in insertion order.
func (v *Vault) Components() []common.Address {
	out := make([]common.Address, len(v.components))
	copy(out, v.components)
	return out
}

// MintShares increases total supply, e.g. on issuance.
func (v *Vault) MintShares(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return apperrors.NewValidation("mint amount must be positive")
	}
	v.totalSupply.Add(v.totalSupply, amount)
	return nil
}

// BurnShares decreases total supply, e.g. on redemption.
func (v *Vault) BurnShares(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return apperrors.NewValidation("burn amount must be positive")
	}
	if v.totalSupply.Cmp(amount) < 0 {
		return apperrors.NewValidation("burn amount %s exceeds total supply %s", amount, v.totalSupply)
	}
	v.totalSupply.Sub(v.totalSupply, amount)
	return nil
}

func (v *Vault) addComponent(c common.Address) {
	for _, existing := range v.components {
		if existing == c {
			return
		}
	}
	v.components = append(v.components, c)
}

// removeComponentIfEmpty drops c from the membership set once it has
// neither a Default unit nor any External entry left.
func (v *Vault) removeComponentIfEmpty(c common.Address) {
	if unit, ok := v.defaults[c]; ok && unit.Sign() != 0 {
		return
	}
	if len(v.externals[c]) > 0 {
		return
	}
	delete(v.defaults, c)
	delete(v.externals, c)
	for i, existing := range v.components {
		if existing == c {
			v.components = append(v.components[:i], v.components[i+1:]...)
			return
		}
	}
}

// ExternalModules lists the modules holding an External entry for c,
// sorted by address for deterministic iteration.
func (v *Vault) ExternalModules(c common.Address) []common.Address {
	entries := v.externals[c]
	out := make([]common.Address, 0, len(entries))
	for m := range entries {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Cmp(out[j]) < 0
	})
	return out
}
