package leverage

import (
	"context"
	"math/big"
	"sync"

	"github.com/basketfi/vaultcore/internal/ledger"
	"github.com/basketfi/vaultcore/internal/model"
	"github.com/basketfi/vaultcore/internal/pkg/apperrors"
	"github.com/basketfi/vaultcore/internal/pkg/metrics"
	"github.com/basketfi/vaultcore/internal/precise"
	"github.com/basketfi/vaultcore/internal/settlement"
	"github.com/basketfi/vaultcore/internal/venue"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Recorder receives a record of every ledger change a lifecycle
// operation makes. Delivery is best-effort and must never block.
type Recorder interface {
	Record(change *model.PositionChange)
}

// FeeCollector moves a protocol fee out of the vault's balance. Nil
// disables fee collection.
type FeeCollector interface {
	Collect(ctx context.Context, vault, asset common.Address, notional *big.Int) error
}

// Lifecycle opens, closes and reconciles borrowed positions against an
// external money market. Debt is tracked as a negative External unit
// attributed to this module; deposited collateral is tracked as the
// collateral asset's Default unit, both re-derived from the money
// market's authoritative balances after every operation.
type Lifecycle struct {
	module   common.Address
	mm       venue.MoneyMarket
	trade    venue.TradeVenue
	exec     venue.Executor
	balances venue.BalanceReader
	settle   *settlement.Helper
	fees     FeeCollector
	feeRate  decimal.Decimal
	recorder Recorder

	mu    sync.Mutex
	locks map[common.Address]*sync.Mutex

	collateralAssets map[common.Address][]common.Address
	borrowAssets     map[common.Address][]common.Address
	collateralInUse  map[common.Address]map[common.Address]bool
}

type Options struct {
	Module       common.Address
	MoneyMarket  venue.MoneyMarket
	TradeVenue   venue.TradeVenue
	Executor     venue.Executor
	Balances     venue.BalanceReader
	FeeCollector FeeCollector
	FeeRate      decimal.Decimal
	Recorder     Recorder
}

func New(opts Options) *Lifecycle {
	return &Lifecycle{
		module:           opts.Module,
		mm:               opts.MoneyMarket,
		trade:            opts.TradeVenue,
		exec:             opts.Executor,
		balances:         opts.Balances,
		settle:           settlement.NewHelper(opts.Balances),
		fees:             opts.FeeCollector,
		feeRate:          opts.FeeRate,
		recorder:         opts.Recorder,
		locks:            make(map[common.Address]*sync.Mutex),
		collateralAssets: make(map[common.Address][]common.Address),
		borrowAssets:     make(map[common.Address][]common.Address),
		collateralInUse:  make(map[common.Address]map[common.Address]bool),
	}
}

// Module is the address External debt entries are attributed to.
func (l *Lifecycle) Module() common.Address {
	return l.module
}

// Result reports what a lever or delever actually moved. All amounts
// are notionals taken from balance deltas and money-market responses,
// never from the requested quantities.
type Result struct {
	SentNotional     *big.Int
	RealizedNotional *big.Int
	FeeNotional      *big.Int
	CollateralUnit   *big.Int
	DebtUnit         *big.Int
}

// Lever borrows borrowAsset against the vault, trades the proceeds into
// collateralAsset and deposits the result with the money market.
// Fails atomically: the ledger is only written after the slippage guard
// and every external step succeed.
func (l *Lifecycle) Lever(ctx context.Context, v *ledger.Vault, borrowAsset, collateralAsset common.Address,
	borrowUnits, minReceiveUnits *big.Int, routeData []byte) (*Result, error) {

	unlock, err := l.lockVault(v.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := l.validatePair(v, collateralAsset, borrowAsset, borrowUnits, minReceiveUnits); err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("lever", "rejected").Inc()
		return nil, err
	}
	supply := v.TotalSupply()

	borrowNotional := ledger.TotalNotional(supply, borrowUnits)
	if borrowNotional.Sign() == 0 {
		metrics.LifecycleOpsTotal.WithLabelValues("lever", "rejected").Inc()
		return nil, apperrors.NewValidation("borrow quantity rounds to zero notional")
	}
	minReceiveNotional := ledger.TotalNotional(supply, minReceiveUnits)

	if err := l.mm.Borrow(ctx, v.ID, borrowAsset, borrowNotional); err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("lever", "failed").Inc()
		return nil, apperrors.Wrap(err)
	}

	realized, err := l.executeTrade(ctx, v.ID, borrowAsset, collateralAsset, borrowNotional, minReceiveNotional, routeData)
	if err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("lever", "failed").Inc()
		return nil, err
	}

	fee, err := l.collectFee(ctx, v.ID, collateralAsset, realized)
	if err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("lever", "failed").Inc()
		return nil, err
	}

	depositNotional := new(big.Int).Sub(realized, fee)
	if err := l.mm.Deposit(ctx, v.ID, collateralAsset, depositNotional); err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("lever", "failed").Inc()
		return nil, apperrors.Wrap(err)
	}
	if err := l.updateCollateralToggle(ctx, v.ID, collateralAsset, true); err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("lever", "failed").Inc()
		return nil, err
	}

	res, err := l.reconcilePair(ctx, v, collateralAsset, borrowAsset)
	if err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("lever", "failed").Inc()
		return nil, err
	}
	res.SentNotional = borrowNotional
	res.RealizedNotional = realized
	res.FeeNotional = fee

	metrics.LifecycleOpsTotal.WithLabelValues("lever", "ok").Inc()
	l.record(v, "lever", collateralAsset, res)
	return res, nil
}

// Delever withdraws collateral, trades it back into the repay asset and
// repays the money market. Mirror of Lever.
func (l *Lifecycle) Delever(ctx context.Context, v *ledger.Vault, collateralAsset, repayAsset common.Address,
	redeemUnits, minRepayUnits *big.Int, routeData []byte) (*Result, error) {

	unlock, err := l.lockVault(v.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := l.delever(ctx, v, collateralAsset, repayAsset, redeemUnits, minRepayUnits, routeData, false)
	if err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("delever", "failed").Inc()
		return nil, err
	}
	metrics.LifecycleOpsTotal.WithLabelValues("delever", "ok").Inc()
	l.record(v, "delever", collateralAsset, res)
	return res, nil
}

// DeleverToZeroBorrowBalance is Delever with the repay target read live
// from the money market's owed balance and no protocol fee; any trade
// surplus beyond the owed amount remains in the vault and becomes a
// Default position of the repay asset.
func (l *Lifecycle) DeleverToZeroBorrowBalance(ctx context.Context, v *ledger.Vault, collateralAsset, repayAsset common.Address,
	redeemUnits *big.Int, routeData []byte) (*Result, error) {

	unlock, err := l.lockVault(v.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := l.delever(ctx, v, collateralAsset, repayAsset, redeemUnits, precise.Zero(), routeData, true)
	if err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("delever_to_zero", "failed").Inc()
		return nil, err
	}
	metrics.LifecycleOpsTotal.WithLabelValues("delever_to_zero", "ok").Inc()
	l.record(v, "delever_to_zero", collateralAsset, res)
	return res, nil
}

func (l *Lifecycle) delever(ctx context.Context, v *ledger.Vault, collateralAsset, repayAsset common.Address,
	redeemUnits, minRepayUnits *big.Int, routeData []byte, toZero bool) (*Result, error) {

	if err := l.validatePair(v, collateralAsset, repayAsset, redeemUnits, minRepayUnits); err != nil {
		return nil, err
	}
	if !v.HasSufficientDefaultUnits(collateralAsset, redeemUnits) {
		return nil, apperrors.NewValidation("insufficient collateral units: have %s, need %s",
			v.DefaultPositionRealUnit(collateralAsset), redeemUnits)
	}
	supply := v.TotalSupply()

	redeemNotional := ledger.TotalNotional(supply, redeemUnits)
	if redeemNotional.Sign() == 0 {
		return nil, apperrors.NewValidation("redeem quantity rounds to zero notional")
	}

	// The repay floor: caller-supplied for a plain delever, the live
	// owed balance when closing out entirely.
	minRepayNotional := ledger.TotalNotional(supply, minRepayUnits)
	if toZero {
		if err := l.mm.AccrueInterest(ctx, v.ID, repayAsset); err != nil {
			return nil, apperrors.Wrap(err)
		}
		owed, err := l.mm.DebtBalance(ctx, v.ID, repayAsset)
		if err != nil {
			return nil, apperrors.NewExternalState("debt balance read failed", err)
		}
		minRepayNotional = owed
	}

	withdrawn, err := l.mm.Withdraw(ctx, v.ID, collateralAsset, redeemNotional)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}

	realized, err := l.executeTrade(ctx, v.ID, collateralAsset, repayAsset, withdrawn, minRepayNotional, routeData)
	if err != nil {
		return nil, err
	}

	fee := precise.Zero()
	if !toZero {
		if fee, err = l.collectFee(ctx, v.ID, repayAsset, realized); err != nil {
			return nil, err
		}
	}

	repayNotional := new(big.Int).Sub(realized, fee)
	if toZero {
		// Repay exactly what is owed; the surplus stays in the vault
		// and is captured by the settlement pass below.
		repayNotional = minRepayNotional
	}
	if _, err := l.mm.Repay(ctx, v.ID, repayAsset, repayNotional); err != nil {
		return nil, apperrors.Wrap(err)
	}

	// Any repay-asset residue (a capped repayment, or the to-zero
	// surplus) becomes a Default position derived from the actual
	// balance. The unit is staged here and written after the reconcile
	// reads, so every fallible read precedes the first ledger write.
	_, _, residueUnit, err := l.settle.DeriveDefaultPosition(ctx, v, repayAsset)
	if err != nil {
		return nil, err
	}

	res, err := l.reconcilePair(ctx, v, collateralAsset, repayAsset)
	if err != nil {
		return nil, err
	}
	if err := v.EditDefaultPosition(repayAsset, residueUnit); err != nil {
		return nil, err
	}
	res.SentNotional = withdrawn
	res.RealizedNotional = realized
	res.FeeNotional = fee
	return res, nil
}

// executeTrade runs the snapshot / approve / invoke / snapshot sequence
// and enforces the slippage guard on the measured delta. The realized
// amount comes exclusively from the balance snapshots.
func (l *Lifecycle) executeTrade(ctx context.Context, vault, sendAsset, receiveAsset common.Address,
	sendNotional, minReceiveNotional *big.Int, routeData []byte) (*big.Int, error) {

	preBalance, err := l.balances.Balance(ctx, vault, receiveAsset)
	if err != nil {
		return nil, apperrors.NewExternalState("balance read failed", err)
	}

	instr, err := l.trade.BuildTrade(ctx, vault, sendAsset, receiveAsset, sendNotional, minReceiveNotional, routeData)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	if err := l.exec.Approve(ctx, vault, sendAsset, instr.Spender, sendNotional); err != nil {
		return nil, apperrors.NewExternalState("approval failed", err)
	}
	if _, err := l.exec.Invoke(ctx, vault, instr.Target, instr.Value, instr.Calldata); err != nil {
		return nil, apperrors.Wrap(err)
	}

	postBalance, err := l.balances.Balance(ctx, vault, receiveAsset)
	if err != nil {
		return nil, apperrors.NewExternalState("balance read failed", err)
	}

	realized := new(big.Int).Sub(postBalance, preBalance)
	if realized.Cmp(minReceiveNotional) < 0 {
		metrics.SlippageRejects.Inc()
		return nil, apperrors.NewSlippage("trade realized %s, below minimum %s", realized, minReceiveNotional)
	}
	return realized, nil
}

func (l *Lifecycle) collectFee(ctx context.Context, vault, asset common.Address, realized *big.Int) (*big.Int, error) {
	if l.fees == nil || l.feeRate.IsZero() {
		return precise.Zero(), nil
	}
	fee := precise.Fraction(realized, l.feeRate)
	if fee.Sign() > 0 {
		if err := l.fees.Collect(ctx, vault, asset, fee); err != nil {
			return nil, apperrors.NewExternalState("fee collection failed", err)
		}
	}
	return fee, nil
}

// reconcilePair rewrites the collateral Default unit and the debt
// External unit from the money market's post-action balances. Both
// balance reads happen before the first ledger write, so a failed read
// aborts with the vault untouched. Debt units round away from zero so
// the ledger never understates what the vault owes.
func (l *Lifecycle) reconcilePair(ctx context.Context, v *ledger.Vault, collateralAsset, borrowAsset common.Address) (*Result, error) {
	supply := v.TotalSupply()

	collateralBalance, err := l.mm.CollateralBalance(ctx, v.ID, collateralAsset)
	if err != nil {
		return nil, apperrors.NewExternalState("collateral balance read failed", err)
	}
	collateralUnit, err := ledger.PositionUnit(supply, collateralBalance)
	if err != nil {
		return nil, err
	}
	debtBalance, err := l.mm.DebtBalance(ctx, v.ID, borrowAsset)
	if err != nil {
		return nil, apperrors.NewExternalState("debt balance read failed", err)
	}
	debtUnit := l.debtUnit(supply, debtBalance)

	if err := v.EditDefaultPosition(collateralAsset, collateralUnit); err != nil {
		return nil, err
	}
	if err := v.EditExternalPosition(borrowAsset, l.module, debtUnit, v.ExternalPositionData(borrowAsset, l.module)); err != nil {
		return nil, err
	}

	return &Result{CollateralUnit: collateralUnit, DebtUnit: debtUnit}, nil
}

func (l *Lifecycle) debtUnit(supply, owed *big.Int) *big.Int {
	if owed.Sign() == 0 {
		return precise.Zero()
	}
	return new(big.Int).Neg(precise.DivCeil(owed, supply))
}

func (l *Lifecycle) validatePair(v *ledger.Vault, collateralAsset, borrowAsset common.Address, units, minUnits *big.Int) error {
	if collateralAsset == borrowAsset {
		return apperrors.NewValidation("collateral and borrow assets must be distinct")
	}
	if !l.collateralEnabled(v.ID, collateralAsset) {
		return apperrors.NewValidation("collateral asset %s is not enabled", collateralAsset.Hex())
	}
	if !l.borrowEnabled(v.ID, borrowAsset) {
		return apperrors.NewValidation("borrow asset %s is not enabled", borrowAsset.Hex())
	}
	if units == nil || units.Sign() <= 0 {
		return apperrors.NewValidation("quantity must be positive")
	}
	if minUnits == nil || minUnits.Sign() < 0 {
		return apperrors.NewValidation("minimum receive quantity must be non-negative")
	}
	if v.TotalSupply().Sign() == 0 {
		return apperrors.NewValidation("vault has no share supply")
	}
	return nil
}

func (l *Lifecycle) record(v *ledger.Vault, op string, component common.Address, res *Result) {
	if l.recorder == nil {
		return
	}
	l.recorder.Record(model.NewPositionChange(v.ID, l.module, op, component, res.CollateralUnit, res.DebtUnit, res.RealizedNotional))
}
