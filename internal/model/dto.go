package model

// PositionView is one ledger entry as exposed over the API. Units and
// notionals are human-readable decimal strings (18-decimal fixed point
// already applied).
type PositionView struct {
	Component string `json:"component"`
	Kind      string `json:"kind"` // "default" or "external"
	Module    string `json:"module,omitempty"`
	Unit      string `json:"unit"`
	Notional  string `json:"notional"`
}

type VaultView struct {
	ID          string         `json:"id"`
	TotalSupply string         `json:"total_supply"`
	Multiplier  string         `json:"multiplier"`
	Components  []string       `json:"components"`
	Positions   []PositionView `json:"positions,omitempty"`
}

// LeverRequest opens or extends a borrowed position. Quantities are
// decimal strings in position units.
type LeverRequest struct {
	BorrowAsset     string `json:"borrow_asset" binding:"required"`
	CollateralAsset string `json:"collateral_asset" binding:"required"`
	BorrowUnits     string `json:"borrow_units" binding:"required"`
	MinReceiveUnits string `json:"min_receive_units" binding:"required"`
	RouteData       string `json:"route_data,omitempty"` // hex, venue-specific
}

type DeleverRequest struct {
	CollateralAsset string `json:"collateral_asset" binding:"required"`
	RepayAsset      string `json:"repay_asset" binding:"required"`
	RedeemUnits     string `json:"redeem_units" binding:"required"`
	MinRepayUnits   string `json:"min_repay_units,omitempty"`
	RouteData       string `json:"route_data,omitempty"`
	ToZero          bool   `json:"to_zero,omitempty"`
}

type SyncRequest struct {
	AccrueInterest bool `json:"accrue_interest"`
}

type FeeAccrualRequest struct {
	Shares string `json:"shares" binding:"required"`
}

type CollateralToggleRequest struct {
	Asset   string `json:"asset" binding:"required"`
	Enabled bool   `json:"enabled"`
}

type EnableAssetsRequest struct {
	CollateralAssets []string `json:"collateral_assets"`
	BorrowAssets     []string `json:"borrow_assets"`
}

type IssueRequest struct {
	Shares string `json:"shares" binding:"required"`
}
