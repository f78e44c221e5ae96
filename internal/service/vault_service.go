package service

import (
	"context"
	"math/big"
	"sync"

	"github.com/basketfi/vaultcore/internal/ledger"
	"github.com/basketfi/vaultcore/internal/leverage"
	"github.com/basketfi/vaultcore/internal/model"
	"github.com/basketfi/vaultcore/internal/pkg/apperrors"
	"github.com/basketfi/vaultcore/internal/pkg/logger"
	"github.com/basketfi/vaultcore/internal/precise"
	"github.com/ethereum/go-ethereum/common"
)

// VaultStore is the host-environment persistence for ledger state.
type VaultStore interface {
	Save(ctx context.Context, snap *ledger.Snapshot) error
	LoadAll(ctx context.Context) ([]*ledger.Snapshot, error)
}

// VaultHook is notified after vault-level events (creation, issuance,
// fee accrual). Notification is best-effort: failures are collected and
// logged, never propagated to the primary operation.
type VaultHook interface {
	Name() string
	Notify(vault common.Address, event string) error
}

// VaultService owns every vault ledger and is the single serialized
// entry point per vault: one operation, including all its nested
// external calls, completes before the next begins. Modules mutate a
// vault only when authorized against it; the read-only surface is open.
type VaultService struct {
	mu         sync.RWMutex
	vaults     map[common.Address]*ledger.Vault
	vaultLocks map[common.Address]*sync.Mutex
	authorized map[common.Address]map[common.Address]bool

	lifecycle *leverage.Lifecycle
	recorder  *ChangeRecorder
	store     VaultStore
	hooks     []VaultHook
}

func NewVaultService(lifecycle *leverage.Lifecycle, recorder *ChangeRecorder, store VaultStore) *VaultService {
	return &VaultService{
		vaults:     make(map[common.Address]*ledger.Vault),
		vaultLocks: make(map[common.Address]*sync.Mutex),
		authorized: make(map[common.Address]map[common.Address]bool),
		lifecycle:  lifecycle,
		recorder:   recorder,
		store:      store,
	}
}

// LoadFromStore restores all persisted vaults. Called once at startup,
// before the service is shared.
func (s *VaultService) LoadFromStore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	snaps, err := s.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		v, err := ledger.FromSnapshot(snap)
		if err != nil {
			return err
		}
		s.vaults[v.ID] = v
		s.vaultLocks[v.ID] = &sync.Mutex{}
	}
	logger.Info("restored vaults from store", "count", len(snaps))
	return nil
}

func (s *VaultService) RegisterHook(h VaultHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

func (s *VaultService) CreateVault(ctx context.Context, id common.Address) error {
	s.mu.Lock()
	if _, exists := s.vaults[id]; exists {
		s.mu.Unlock()
		return apperrors.NewValidation("vault %s already exists", id.Hex())
	}
	v := ledger.NewVault(id)
	s.vaults[id] = v
	s.vaultLocks[id] = &sync.Mutex{}
	s.mu.Unlock()

	if err := s.persist(ctx, v); err != nil {
		return err
	}
	s.notifyHooks(id, "created")
	return nil
}

// AuthorizeModule grants the module write access to the vault's ledger.
func (s *VaultService) AuthorizeModule(vault, module common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authorized[vault] == nil {
		s.authorized[vault] = make(map[common.Address]bool)
	}
	s.authorized[vault][module] = true
}

func (s *VaultService) isAuthorized(vault, module common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authorized[vault][module]
}

// Issue mints shares against the vault. The vault must have supply
// before any notional conversion is meaningful.
func (s *VaultService) Issue(ctx context.Context, vaultID common.Address, shares *big.Int) error {
	v, unlock, err := s.acquire(vaultID)
	if err != nil {
		return err
	}
	defer unlock()
	if err := v.MintShares(shares); err != nil {
		return err
	}
	if err := s.persist(ctx, v); err != nil {
		return err
	}
	s.notifyHooks(vaultID, "issued")
	return nil
}

func (s *VaultService) Redeem(ctx context.Context, vaultID common.Address, shares *big.Int) error {
	v, unlock, err := s.acquire(vaultID)
	if err != nil {
		return err
	}
	defer unlock()
	if err := v.BurnShares(shares); err != nil {
		return err
	}
	if err := s.persist(ctx, v); err != nil {
		return err
	}
	s.notifyHooks(vaultID, "redeemed")
	return nil
}

// AccrueFee mints fee shares, scaling the supply multiplier down so
// existing position notionals are untouched. This is the multiplier's
// only mutation path.
func (s *VaultService) AccrueFee(ctx context.Context, vaultID common.Address, shares *big.Int) error {
	v, unlock, err := s.acquire(vaultID)
	if err != nil {
		return err
	}
	defer unlock()
	if err := v.MintFeeShares(shares); err != nil {
		return err
	}
	if err := s.persist(ctx, v); err != nil {
		return err
	}
	s.notifyHooks(vaultID, "fee_accrued")
	return nil
}

func (s *VaultService) EnableAssets(vaultID, module common.Address, collateral, borrow []common.Address) error {
	if !s.isAuthorized(vaultID, module) {
		return apperrors.NewUnauthorized("module is not authorized for this vault")
	}
	if _, err := s.vault(vaultID); err != nil {
		return err
	}
	return s.lifecycle.EnableAssets(vaultID, collateral, borrow)
}

func (s *VaultService) Lever(ctx context.Context, vaultID, module common.Address, borrowAsset, collateralAsset common.Address,
	borrowUnits, minReceiveUnits *big.Int, routeData []byte) (*leverage.Result, error) {

	if !s.isAuthorized(vaultID, module) {
		return nil, apperrors.NewUnauthorized("module is not authorized for this vault")
	}
	v, unlock, err := s.acquire(vaultID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := s.lifecycle.Lever(ctx, v, borrowAsset, collateralAsset, borrowUnits, minReceiveUnits, routeData)
	if err != nil {
		return nil, err
	}
	return res, s.persist(ctx, v)
}

func (s *VaultService) Delever(ctx context.Context, vaultID, module common.Address, collateralAsset, repayAsset common.Address,
	redeemUnits, minRepayUnits *big.Int, routeData []byte, toZero bool) (*leverage.Result, error) {

	if !s.isAuthorized(vaultID, module) {
		return nil, apperrors.NewUnauthorized("module is not authorized for this vault")
	}
	v, unlock, err := s.acquire(vaultID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var res *leverage.Result
	var err2 error
	if toZero {
		res, err2 = s.lifecycle.DeleverToZeroBorrowBalance(ctx, v, collateralAsset, repayAsset, redeemUnits, routeData)
	} else {
		res, err2 = s.lifecycle.Delever(ctx, v, collateralAsset, repayAsset, redeemUnits, minRepayUnits, routeData)
	}
	if err2 != nil {
		return nil, err2
	}
	return res, s.persist(ctx, v)
}

// Sync pulls truth from the money market; it is open to any caller.
func (s *VaultService) Sync(ctx context.Context, vaultID common.Address, accrueInterest bool) error {
	v, unlock, err := s.acquire(vaultID)
	if err != nil {
		return err
	}
	defer unlock()
	if err := s.lifecycle.Sync(ctx, v, accrueInterest); err != nil {
		return err
	}
	return s.persist(ctx, v)
}

func (s *VaultService) UpdateCollateralAsset(ctx context.Context, vaultID, module, asset common.Address, enabled bool) error {
	if !s.isAuthorized(vaultID, module) {
		return apperrors.NewUnauthorized("module is not authorized for this vault")
	}
	if _, err := s.vault(vaultID); err != nil {
		return err
	}
	return s.lifecycle.UpdateCollateralAsset(ctx, vaultID, asset, enabled)
}

// --- read-only surface ---

func (s *VaultService) ListVaults() []model.VaultView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.VaultView, 0, len(s.vaults))
	for _, v := range s.vaults {
		out = append(out, s.viewLocked(v, false))
	}
	return out
}

func (s *VaultService) VaultView(vaultID common.Address) (*model.VaultView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vaults[vaultID]
	if !ok {
		return nil, apperrors.NewNotFound("vault %s not found", vaultID.Hex())
	}
	view := s.viewLocked(v, true)
	return &view, nil
}

// TrackedBalance is what the ledger believes the vault holds of the
// component right now.
func (s *VaultService) TrackedBalance(vaultID, component common.Address) (*big.Int, error) {
	v, err := s.vault(vaultID)
	if err != nil {
		return nil, err
	}
	return v.DefaultTrackedBalance(component), nil
}

func (s *VaultService) EnabledAssets(vaultID common.Address) (collateral, borrow []common.Address, err error) {
	if _, err := s.vault(vaultID); err != nil {
		return nil, nil, err
	}
	return s.lifecycle.EnabledCollateralAssets(vaultID), s.lifecycle.EnabledBorrowAssets(vaultID), nil
}

func (s *VaultService) Changes(ctx context.Context, vaultID string, limit int) ([]*model.PositionChange, error) {
	if s.recorder == nil {
		return nil, nil
	}
	return s.recorder.List(ctx, vaultID, limit)
}

func (s *VaultService) viewLocked(v *ledger.Vault, withPositions bool) model.VaultView {
	view := model.VaultView{
		ID:          v.ID.Hex(),
		TotalSupply: precise.ToDecimal(v.TotalSupply()).String(),
		Multiplier:  precise.ToDecimal(v.Multiplier()).String(),
	}
	for _, c := range v.Components() {
		view.Components = append(view.Components, c.Hex())
		if !withPositions {
			continue
		}
		if v.HasDefaultPosition(c) {
			unit := v.DefaultPositionRealUnit(c)
			view.Positions = append(view.Positions, model.PositionView{
				Component: c.Hex(),
				Kind:      "default",
				Unit:      precise.ToDecimal(unit).String(),
				Notional:  precise.ToDecimal(ledger.TotalNotional(v.TotalSupply(), unit)).String(),
			})
		}
		for _, m := range v.ExternalModules(c) {
			unit := v.ExternalPositionRealUnit(c, m)
			view.Positions = append(view.Positions, model.PositionView{
				Component: c.Hex(),
				Kind:      "external",
				Module:    m.Hex(),
				Unit:      precise.ToDecimal(unit).String(),
				Notional:  precise.ToDecimal(ledger.TotalNotional(v.TotalSupply(), unit)).String(),
			})
		}
	}
	return view
}

// acquire returns the vault and its held serialization lock.
func (s *VaultService) acquire(vaultID common.Address) (*ledger.Vault, func(), error) {
	s.mu.RLock()
	v, ok := s.vaults[vaultID]
	lock := s.vaultLocks[vaultID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, apperrors.NewNotFound("vault %s not found", vaultID.Hex())
	}
	lock.Lock()
	return v, lock.Unlock, nil
}

func (s *VaultService) vault(vaultID common.Address) (*ledger.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vaults[vaultID]
	if !ok {
		return nil, apperrors.NewNotFound("vault %s not found", vaultID.Hex())
	}
	return v, nil
}

func (s *VaultService) persist(ctx context.Context, v *ledger.Vault) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, v.Snapshot()); err != nil {
		return apperrors.Wrap(err)
	}
	return nil
}

// notifyHooks delivers the event to every hook, collecting failures
// instead of aborting; a broken listener never blocks vault accounting.
func (s *VaultService) notifyHooks(vault common.Address, event string) {
	s.mu.RLock()
	hooks := make([]VaultHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.RUnlock()

	var failed []string
	for _, h := range hooks {
		if err := h.Notify(vault, event); err != nil {
			failed = append(failed, h.Name())
		}
	}
	if len(failed) > 0 {
		logger.Warn("vault hooks failed", "vault", vault.Hex(), "event", event, "hooks", failed)
	}
}
