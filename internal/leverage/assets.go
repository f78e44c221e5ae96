package leverage

import (
	"context"
	"sync"

	"github.com/basketfi/vaultcore/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
)

// lockVault acquires the vault's re-entrancy lock. A collaborator
// calling back into the same vault before the original operation
// returns finds the lock held and fails instead of observing
// mid-computation state. The returned func releases on every exit path.
func (l *Lifecycle) lockVault(vault common.Address) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[vault]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[vault] = lock
	}
	l.mu.Unlock()

	if !lock.TryLock() {
		return nil, apperrors.New(apperrors.ErrReentrant, "vault operation already in progress", nil)
	}
	return lock.Unlock, nil
}

// EnableAssets registers the assets this module may use as collateral
// and borrow against for the vault. Enabling is additive and
// idempotent.
func (l *Lifecycle) EnableAssets(vault common.Address, collateralAssets, borrowAssets []common.Address) error {
	if len(collateralAssets) == 0 && len(borrowAssets) == 0 {
		return apperrors.NewValidation("at least one asset is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.collateralAssets[vault] = appendUnique(l.collateralAssets[vault], collateralAssets)
	l.borrowAssets[vault] = appendUnique(l.borrowAssets[vault], borrowAssets)
	return nil
}

func (l *Lifecycle) EnabledCollateralAssets(vault common.Address) []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]common.Address, len(l.collateralAssets[vault]))
	copy(out, l.collateralAssets[vault])
	return out
}

func (l *Lifecycle) EnabledBorrowAssets(vault common.Address) []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]common.Address, len(l.borrowAssets[vault]))
	copy(out, l.borrowAssets[vault])
	return out
}

func (l *Lifecycle) collateralEnabled(vault, asset common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return contains(l.collateralAssets[vault], asset)
}

func (l *Lifecycle) borrowEnabled(vault, asset common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return contains(l.borrowAssets[vault], asset)
}

// UpdateCollateralAsset flips the money market's used-as-collateral
// toggle for a deposited asset. Callable directly; Lever also routes
// through it after depositing.
func (l *Lifecycle) UpdateCollateralAsset(ctx context.Context, vault, asset common.Address, enabled bool) error {
	unlock, err := l.lockVault(vault)
	if err != nil {
		return err
	}
	defer unlock()
	return l.updateCollateralToggle(ctx, vault, asset, enabled)
}

// updateCollateralToggle handles all four corners of (currently
// enabled, requested) without an unnecessary external call: a matching
// state is left alone, and enabling with a zero deposited balance is
// skipped entirely because the money market would reject it.
func (l *Lifecycle) updateCollateralToggle(ctx context.Context, vault, asset common.Address, enabled bool) error {
	l.mu.Lock()
	current := l.collateralInUse[vault][asset]
	l.mu.Unlock()

	if current == enabled {
		return nil
	}
	if enabled {
		balance, err := l.mm.CollateralBalance(ctx, vault, asset)
		if err != nil {
			return apperrors.NewExternalState("collateral balance read failed", err)
		}
		if balance.Sign() == 0 {
			return nil
		}
	}
	if err := l.mm.SetUsedAsCollateral(ctx, vault, asset, enabled); err != nil {
		return apperrors.Wrap(err)
	}

	l.mu.Lock()
	if l.collateralInUse[vault] == nil {
		l.collateralInUse[vault] = make(map[common.Address]bool)
	}
	l.collateralInUse[vault][asset] = enabled
	l.mu.Unlock()
	return nil
}

func appendUnique(existing []common.Address, add []common.Address) []common.Address {
	for _, a := range add {
		if !contains(existing, a) {
			existing = append(existing, a)
		}
	}
	return existing
}

func contains(list []common.Address, a common.Address) bool {
	for _, existing := range list {
		if existing == a {
			return true
		}
	}
	return false
}
