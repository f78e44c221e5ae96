package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// PositionChange is the audit record emitted for every ledger mutation
// a module makes: who changed what, the resulting units and the
// notional that moved. Persisted to Postgres and Redis and broadcast to
// stream subscribers.
type PositionChange struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	VaultID   string    `json:"vault_id" gorm:"index:idx_changes_vault"`
	Module    string    `json:"module"`
	Op        string    `json:"op"`
	Component string    `json:"component"`
	// Units and notional are decimal strings of scaled values; big.Int
	// does not survive JSON round-trips losslessly as a number.
	CollateralUnit string    `json:"collateral_unit,omitempty"`
	DebtUnit       string    `json:"debt_unit,omitempty"`
	Notional       string    `json:"notional,omitempty"`
	CreatedAt      time.Time `json:"created_at" gorm:"index:idx_changes_vault"`
}

func NewPositionChange(vault, module common.Address, op string, component common.Address,
	collateralUnit, debtUnit, notional *big.Int) *PositionChange {
	return &PositionChange{
		ID:             uuid.NewString(),
		VaultID:        vault.Hex(),
		Module:         module.Hex(),
		Op:             op,
		Component:      component.Hex(),
		CollateralUnit: bigString(collateralUnit),
		DebtUnit:       bigString(debtUnit),
		Notional:       bigString(notional),
		CreatedAt:      time.Now().UTC(),
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
