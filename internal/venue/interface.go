package venue

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TradeInstruction is what a trade venue hands back: the call the vault
// itself must perform, plus the spender to approve beforehand. The
// engine never trusts a venue-reported fill amount; realized output is
// always measured with balance snapshots around the invocation.
type TradeInstruction struct {
	Target   common.Address
	Value    *big.Int
	Calldata []byte
	Spender  common.Address
}

// BalanceReader reports a vault's current holdings of an asset. This is
// the authoritative source the settlement helper re-derives units from.
type BalanceReader interface {
	Balance(ctx context.Context, vault, asset common.Address) (*big.Int, error)
}

// MoneyMarket is the external lending venue the leverage module deposits
// collateral to and borrows from. All returned notionals are
// authoritative even when they differ from the requested amount.
type MoneyMarket interface {
	Borrow(ctx context.Context, vault, asset common.Address, notional *big.Int) error
	Repay(ctx context.Context, vault, asset common.Address, notional *big.Int) (*big.Int, error)
	Deposit(ctx context.Context, vault, asset common.Address, notional *big.Int) error
	Withdraw(ctx context.Context, vault, asset common.Address, notional *big.Int) (*big.Int, error)
	CollateralBalance(ctx context.Context, vault, asset common.Address) (*big.Int, error)
	DebtBalance(ctx context.Context, vault, asset common.Address) (*big.Int, error)
	AccrueInterest(ctx context.Context, vault, asset common.Address) error
	SetUsedAsCollateral(ctx context.Context, vault, asset common.Address, enabled bool) error
}

// TradeVenue quotes a swap and returns the instruction for the vault to
// execute. routeData is venue-specific and opaque to the engine.
type TradeVenue interface {
	BuildTrade(ctx context.Context, vault, sendAsset, receiveAsset common.Address,
		sendNotional, minReceiveNotional *big.Int, routeData []byte) (*TradeInstruction, error)
}

// Executor is the vault execution capability: it makes the vault itself
// perform an arbitrary call and manage token approvals, so every
// external interaction is attributed to the vault's own balance.
type Executor interface {
	Invoke(ctx context.Context, vault, target common.Address, value *big.Int, calldata []byte) ([]byte, error)
	Approve(ctx context.Context, vault, asset, spender common.Address, amount *big.Int) error
}
