package leverage

import (
	"context"

	"github.com/basketfi/vaultcore/internal/ledger"
	"github.com/basketfi/vaultcore/internal/model"
	"github.com/basketfi/vaultcore/internal/pkg/apperrors"
	"github.com/basketfi/vaultcore/internal/pkg/metrics"
)

// Sync reconciles the ledger against the money market's authoritative
// balances: collateral Default units and debt External units are
// overwritten wherever interest accrual (or anything else outside the
// vault's control) has moved them. It only pulls truth from the money
// market, never pushes, so it is safe for anyone to call; repeated
// calls without drift are no-ops. With zero share supply there is
// nothing to reconcile and the ledger is left untouched.
func (l *Lifecycle) Sync(ctx context.Context, v *ledger.Vault, accrueInterest bool) error {
	unlock, err := l.lockVault(v.ID)
	if err != nil {
		return err
	}
	defer unlock()

	supply := v.TotalSupply()
	if supply.Sign() == 0 {
		return nil
	}

	for _, asset := range l.EnabledCollateralAssets(v.ID) {
		balance, err := l.mm.CollateralBalance(ctx, v.ID, asset)
		if err != nil {
			return apperrors.NewExternalState("collateral balance read failed", err)
		}
		newUnit, err := ledger.PositionUnit(supply, balance)
		if err != nil {
			return err
		}
		// Drift is detected against the stored virtual unit: the real
		// round trip truncates and would report phantom drift forever
		// once the multiplier is below one.
		if !v.DefaultPositionWouldChange(asset, newUnit) {
			continue
		}
		if err := v.EditDefaultPosition(asset, newUnit); err != nil {
			return err
		}
		metrics.SyncDrift.WithLabelValues("collateral").Inc()
		if l.recorder != nil {
			l.recorder.Record(model.NewPositionChange(v.ID, l.module, "sync", asset, newUnit, nil, balance))
		}
	}

	for _, asset := range l.EnabledBorrowAssets(v.ID) {
		if accrueInterest {
			if err := l.mm.AccrueInterest(ctx, v.ID, asset); err != nil {
				return apperrors.Wrap(err)
			}
		}
		owed, err := l.mm.DebtBalance(ctx, v.ID, asset)
		if err != nil {
			return apperrors.NewExternalState("debt balance read failed", err)
		}
		newUnit := l.debtUnit(supply, owed)
		if !v.ExternalPositionWouldChange(asset, l.module, newUnit) {
			continue
		}
		if err := v.EditExternalPosition(asset, l.module, newUnit, v.ExternalPositionData(asset, l.module)); err != nil {
			return err
		}
		metrics.SyncDrift.WithLabelValues("debt").Inc()
		if l.recorder != nil {
			l.recorder.Record(model.NewPositionChange(v.ID, l.module, "sync", asset, nil, newUnit, owed))
		}
	}
	return nil
}
