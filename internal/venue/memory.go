package venue

import (
	"context"
	"math/big"
	"sync"

	"github.com/basketfi/vaultcore/internal/pkg/apperrors"
	"github.com/basketfi/vaultcore/internal/precise"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// The memory backend simulates the vault's host environment: token
// balances, a money market and a trade venue, all reachable only
// through the Executor so the engine exercises the same snapshot and
// invoke paths it would against a real integration. It backs the test
// suites and the server's default (non-chain) configuration.

type MemoryBank struct {
	mu       sync.RWMutex
	balances map[common.Address]map[common.Address]*big.Int
}

func NewMemoryBank() *MemoryBank {
	return &MemoryBank{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

func (b *MemoryBank) Balance(ctx context.Context, vault, asset common.Address) (*big.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if bal, ok := b.balances[vault][asset]; ok {
		return new(big.Int).Set(bal), nil
	}
	return precise.Zero(), nil
}

func (b *MemoryBank) Credit(vault, asset common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances[vault] == nil {
		b.balances[vault] = make(map[common.Address]*big.Int)
	}
	if b.balances[vault][asset] == nil {
		b.balances[vault][asset] = precise.Zero()
	}
	b.balances[vault][asset].Add(b.balances[vault][asset], amount)
}

func (b *MemoryBank) Debit(vault, asset common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := b.balances[vault][asset]
	if bal == nil || bal.Cmp(amount) < 0 {
		return apperrors.NewExternalState("insufficient balance for transfer", nil)
	}
	bal.Sub(bal, amount)
	return nil
}

// InvokeHandler receives a call the vault performs against a synthetic
// target address.
type InvokeHandler func(ctx context.Context, vault common.Address, value *big.Int, calldata []byte) ([]byte, error)

type MemoryExecutor struct {
	mu         sync.RWMutex
	handlers   map[common.Address]InvokeHandler
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int
}

func NewMemoryExecutor() *MemoryExecutor {
	return &MemoryExecutor{
		handlers:   make(map[common.Address]InvokeHandler),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
	}
}

func (e *MemoryExecutor) RegisterTarget(target common.Address, h InvokeHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[target] = h
}

func (e *MemoryExecutor) Invoke(ctx context.Context, vault, target common.Address, value *big.Int, calldata []byte) ([]byte, error) {
	e.mu.RLock()
	h, ok := e.handlers[target]
	e.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewExternalState("no handler for invocation target", nil)
	}
	return h(ctx, vault, value, calldata)
}

func (e *MemoryExecutor) Approve(ctx context.Context, vault, asset, spender common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.allowances[vault] == nil {
		e.allowances[vault] = make(map[common.Address]map[common.Address]*big.Int)
	}
	if e.allowances[vault][asset] == nil {
		e.allowances[vault][asset] = make(map[common.Address]*big.Int)
	}
	e.allowances[vault][asset][spender] = new(big.Int).Set(amount)
	return nil
}

type MemoryMoneyMarket struct {
	mu         sync.Mutex
	bank       *MemoryBank
	collateral map[common.Address]map[common.Address]*big.Int
	debt       map[common.Address]map[common.Address]*big.Int
	enabled    map[common.Address]map[common.Address]bool

	// pending interest applied on the next AccrueInterest call, keyed
	// by (vault, asset); lets tests model passive drift.
	pendingInterest map[common.Address]map[common.Address]*big.Int
}

func NewMemoryMoneyMarket(bank *MemoryBank) *MemoryMoneyMarket {
	return &MemoryMoneyMarket{
		bank:            bank,
		collateral:      make(map[common.Address]map[common.Address]*big.Int),
		debt:            make(map[common.Address]map[common.Address]*big.Int),
		enabled:         make(map[common.Address]map[common.Address]bool),
		pendingInterest: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func get2(m map[common.Address]map[common.Address]*big.Int, vault, asset common.Address) *big.Int {
	if v, ok := m[vault][asset]; ok {
		return v
	}
	return nil
}

func set2(m map[common.Address]map[common.Address]*big.Int, vault, asset common.Address) *big.Int {
	if m[vault] == nil {
		m[vault] = make(map[common.Address]*big.Int)
	}
	if m[vault][asset] == nil {
		m[vault][asset] = precise.Zero()
	}
	return m[vault][asset]
}

func (m *MemoryMoneyMarket) Borrow(ctx context.Context, vault, asset common.Address, notional *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set2(m.debt, vault, asset).Add(set2(m.debt, vault, asset), notional)
	m.bank.Credit(vault, asset, notional)
	return nil
}

func (m *MemoryMoneyMarket) Repay(ctx context.Context, vault, asset common.Address, notional *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owed := set2(m.debt, vault, asset)
	pay := new(big.Int).Set(notional)
	if pay.Cmp(owed) > 0 {
		pay.Set(owed)
	}
	if err := m.bank.Debit(vault, asset, pay); err != nil {
		return nil, err
	}
	owed.Sub(owed, pay)
	return pay, nil
}

func (m *MemoryMoneyMarket) Deposit(ctx context.Context, vault, asset common.Address, notional *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bank.Debit(vault, asset, notional); err != nil {
		return err
	}
	set2(m.collateral, vault, asset).Add(set2(m.collateral, vault, asset), notional)
	return nil
}

func (m *MemoryMoneyMarket) Withdraw(ctx context.Context, vault, asset common.Address, notional *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	avail := set2(m.collateral, vault, asset)
	out := new(big.Int).Set(notional)
	if out.Cmp(avail) > 0 {
		out.Set(avail)
	}
	avail.Sub(avail, out)
	m.bank.Credit(vault, asset, out)
	return out, nil
}

func (m *MemoryMoneyMarket) CollateralBalance(ctx context.Context, vault, asset common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bal := get2(m.collateral, vault, asset); bal != nil {
		return new(big.Int).Set(bal), nil
	}
	return precise.Zero(), nil
}

func (m *MemoryMoneyMarket) DebtBalance(ctx context.Context, vault, asset common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bal := get2(m.debt, vault, asset); bal != nil {
		return new(big.Int).Set(bal), nil
	}
	return precise.Zero(), nil
}

func (m *MemoryMoneyMarket) AccrueInterest(ctx context.Context, vault, asset common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pending := get2(m.pendingInterest, vault, asset); pending != nil && pending.Sign() > 0 {
		set2(m.debt, vault, asset).Add(set2(m.debt, vault, asset), pending)
		pending.SetInt64(0)
	}
	return nil
}

func (m *MemoryMoneyMarket) SetUsedAsCollateral(ctx context.Context, vault, asset common.Address, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if enabled {
		bal := get2(m.collateral, vault, asset)
		if bal == nil || bal.Sign() == 0 {
			return apperrors.NewExternalState("cannot enable zero collateral balance", nil)
		}
	}
	if m.enabled[vault] == nil {
		m.enabled[vault] = make(map[common.Address]bool)
	}
	m.enabled[vault][asset] = enabled
	return nil
}

// UsedAsCollateral reports the current toggle state; test hook.
func (m *MemoryMoneyMarket) UsedAsCollateral(vault, asset common.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled[vault][asset]
}

// GrowCollateral models supply-side interest landing outside the
// vault's control.
func (m *MemoryMoneyMarket) GrowCollateral(vault, asset common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set2(m.collateral, vault, asset).Add(set2(m.collateral, vault, asset), amount)
}

// GrowDebt models borrow-side interest that has already been applied.
func (m *MemoryMoneyMarket) GrowDebt(vault, asset common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set2(m.debt, vault, asset).Add(set2(m.debt, vault, asset), amount)
}

// SetPendingInterest queues debt interest that only materializes when
// AccrueInterest runs.
func (m *MemoryMoneyMarket) SetPendingInterest(vault, asset common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set2(m.pendingInterest, vault, asset).Set(amount)
}

// MemoryFeeCollector moves protocol fees from a vault's balance to a
// treasury account in the same bank.
type MemoryFeeCollector struct {
	bank     *MemoryBank
	treasury common.Address
}

func NewMemoryFeeCollector(bank *MemoryBank, treasury common.Address) *MemoryFeeCollector {
	return &MemoryFeeCollector{bank: bank, treasury: treasury}
}

func (c *MemoryFeeCollector) Collect(ctx context.Context, vault, asset common.Address, notional *big.Int) error {
	if err := c.bank.Debit(vault, asset, notional); err != nil {
		return err
	}
	c.bank.Credit(c.treasury, asset, notional)
	return nil
}

type pendingTrade struct {
	vault        common.Address
	sendAsset    common.Address
	receiveAsset common.Address
	sendNotional *big.Int
}

type MemoryTradeVenue struct {
	mu      sync.Mutex
	bank    *MemoryBank
	target  common.Address
	rates   map[common.Address]map[common.Address]decimal.Decimal
	pending map[string]pendingTrade

	// nextRealized, when set, overrides the rate-derived output of the
	// next trade; consumed once. Lets tests force slippage.
	nextRealized *big.Int
}

func NewMemoryTradeVenue(bank *MemoryBank, exec *MemoryExecutor, target common.Address) *MemoryTradeVenue {
	v := &MemoryTradeVenue{
		bank:    bank,
		target:  target,
		rates:   make(map[common.Address]map[common.Address]decimal.Decimal),
		pending: make(map[string]pendingTrade),
	}
	exec.RegisterTarget(target, v.execute)
	return v
}

func (v *MemoryTradeVenue) SetRate(sendAsset, receiveAsset common.Address, rate decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.rates[sendAsset] == nil {
		v.rates[sendAsset] = make(map[common.Address]decimal.Decimal)
	}
	v.rates[sendAsset][receiveAsset] = rate
}

func (v *MemoryTradeVenue) SetNextRealized(amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextRealized = new(big.Int).Set(amount)
}

func (v *MemoryTradeVenue) BuildTrade(ctx context.Context, vault, sendAsset, receiveAsset common.Address,
	sendNotional, minReceiveNotional *big.Int, routeData []byte) (*TradeInstruction, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := uuid.NewString()
	v.pending[id] = pendingTrade{
		vault:        vault,
		sendAsset:    sendAsset,
		receiveAsset: receiveAsset,
		sendNotional: new(big.Int).Set(sendNotional),
	}
	return &TradeInstruction{
		Target:   v.target,
		Value:    precise.Zero(),
		Calldata: []byte(id),
		Spender:  v.target,
	}, nil
}

func (v *MemoryTradeVenue) execute(ctx context.Context, vault common.Address, value *big.Int, calldata []byte) ([]byte, error) {
	v.mu.Lock()
	trade, ok := v.pending[string(calldata)]
	if ok {
		delete(v.pending, string(calldata))
	}
	out := v.nextRealized
	v.nextRealized = nil
	rate, hasRate := v.rates[trade.sendAsset][trade.receiveAsset]
	v.mu.Unlock()

	if !ok {
		return nil, apperrors.NewExternalState("unknown trade payload", nil)
	}
	if trade.vault != vault {
		return nil, apperrors.NewExternalState("trade was quoted for a different vault", nil)
	}
	if err := v.bank.Debit(vault, trade.sendAsset, trade.sendNotional); err != nil {
		return nil, err
	}
	if out == nil {
		if !hasRate {
			rate = decimal.NewFromInt(1)
		}
		out = precise.Fraction(trade.sendNotional, rate)
	}
	v.bank.Credit(vault, trade.receiveAsset, out)
	return nil, nil
}
