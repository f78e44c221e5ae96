package handler

import (
	"context"
	"encoding/hex"
	"math/big"
	"net/http"
	"strings"

	"github.com/basketfi/vaultcore/internal/middleware"
	"github.com/basketfi/vaultcore/internal/model"
	"github.com/basketfi/vaultcore/internal/pkg/apperrors"
	"github.com/basketfi/vaultcore/internal/precise"
	"github.com/basketfi/vaultcore/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// LifecycleHandler exposes the mutating vault operations. Every route
// except sync requires an authenticated module; vault-level
// authorization is enforced by the service.
type LifecycleHandler struct {
	svc *service.VaultService
}

func NewLifecycleHandler(svc *service.VaultService) *LifecycleHandler {
	return &LifecycleHandler{svc: svc}
}

func (h *LifecycleHandler) Lever(c *gin.Context) {
	vaultID, module, ok := h.callerContext(c)
	if !ok {
		return
	}
	var req model.LeverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation("invalid request: %v", err))
		return
	}
	borrowAsset, ok := parseAddress(c, req.BorrowAsset, "borrow_asset")
	if !ok {
		return
	}
	collateralAsset, ok := parseAddress(c, req.CollateralAsset, "collateral_asset")
	if !ok {
		return
	}
	borrowUnits, ok := parseUnits(c, req.BorrowUnits, "borrow_units")
	if !ok {
		return
	}
	minReceive, ok := parseUnits(c, req.MinReceiveUnits, "min_receive_units")
	if !ok {
		return
	}
	routeData, ok := parseRouteData(c, req.RouteData)
	if !ok {
		return
	}

	res, err := h.svc.Lever(c.Request.Context(), vaultID, module, borrowAsset, collateralAsset, borrowUnits, minReceive, routeData)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resultBody(res.SentNotional, res.RealizedNotional, res.FeeNotional, res.CollateralUnit, res.DebtUnit))
}

func (h *LifecycleHandler) Delever(c *gin.Context) {
	h.delever(c, false)
}

// DeleverToZero closes the borrowed position entirely against the live
// owed balance; any to_zero flag in the body is redundant here.
func (h *LifecycleHandler) DeleverToZero(c *gin.Context) {
	h.delever(c, true)
}

func (h *LifecycleHandler) delever(c *gin.Context, forceToZero bool) {
	vaultID, module, ok := h.callerContext(c)
	if !ok {
		return
	}
	var req model.DeleverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation("invalid request: %v", err))
		return
	}
	if forceToZero {
		req.ToZero = true
	}
	collateralAsset, ok := parseAddress(c, req.CollateralAsset, "collateral_asset")
	if !ok {
		return
	}
	repayAsset, ok := parseAddress(c, req.RepayAsset, "repay_asset")
	if !ok {
		return
	}
	redeemUnits, ok := parseUnits(c, req.RedeemUnits, "redeem_units")
	if !ok {
		return
	}
	minRepay := precise.Zero()
	if req.MinRepayUnits != "" {
		minRepay, ok = parseUnits(c, req.MinRepayUnits, "min_repay_units")
		if !ok {
			return
		}
	}
	routeData, ok := parseRouteData(c, req.RouteData)
	if !ok {
		return
	}

	res, err := h.svc.Delever(c.Request.Context(), vaultID, module, collateralAsset, repayAsset, redeemUnits, minRepay, routeData, req.ToZero)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resultBody(res.SentNotional, res.RealizedNotional, res.FeeNotional, res.CollateralUnit, res.DebtUnit))
}

// Sync is callable by anyone: reconciling the ledger against the money
// market needs no privileges.
func (h *LifecycleHandler) Sync(c *gin.Context) {
	vaultID, ok := parseAddress(c, c.Param("id"), "vault id")
	if !ok {
		return
	}
	var req model.SyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.NewValidation("invalid request: %v", err))
			return
		}
	}
	if err := h.svc.Sync(c.Request.Context(), vaultID, req.AccrueInterest); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "synced"})
}

func (h *LifecycleHandler) AccrueFee(c *gin.Context) {
	vaultID, _, ok := h.callerContext(c)
	if !ok {
		return
	}
	var req model.FeeAccrualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation("invalid request: %v", err))
		return
	}
	shares, ok := parseUnits(c, req.Shares, "shares")
	if !ok {
		return
	}
	if err := h.svc.AccrueFee(c.Request.Context(), vaultID, shares); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accrued"})
}

func (h *LifecycleHandler) UpdateCollateral(c *gin.Context) {
	vaultID, module, ok := h.callerContext(c)
	if !ok {
		return
	}
	var req model.CollateralToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation("invalid request: %v", err))
		return
	}
	asset, ok := parseAddress(c, req.Asset, "asset")
	if !ok {
		return
	}
	if err := h.svc.UpdateCollateralAsset(c.Request.Context(), vaultID, module, asset, req.Enabled); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *LifecycleHandler) EnableAssets(c *gin.Context) {
	vaultID, module, ok := h.callerContext(c)
	if !ok {
		return
	}
	var req model.EnableAssetsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation("invalid request: %v", err))
		return
	}
	collateral, ok := parseAddressList(c, req.CollateralAssets, "collateral_assets")
	if !ok {
		return
	}
	borrow, ok := parseAddressList(c, req.BorrowAssets, "borrow_assets")
	if !ok {
		return
	}
	if err := h.svc.EnableAssets(vaultID, module, collateral, borrow); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "enabled"})
}

func (h *LifecycleHandler) Issue(c *gin.Context) {
	h.shareOp(c, h.svc.Issue)
}

func (h *LifecycleHandler) Redeem(c *gin.Context) {
	h.shareOp(c, h.svc.Redeem)
}

func (h *LifecycleHandler) shareOp(c *gin.Context, op func(ctx context.Context, vaultID common.Address, shares *big.Int) error) {
	vaultID, _, ok := h.callerContext(c)
	if !ok {
		return
	}
	var req model.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation("invalid request: %v", err))
		return
	}
	shares, ok := parseUnits(c, req.Shares, "shares")
	if !ok {
		return
	}
	if err := op(c.Request.Context(), vaultID, shares); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *LifecycleHandler) callerContext(c *gin.Context) (common.Address, common.Address, bool) {
	vaultID, ok := parseAddress(c, c.Param("id"), "vault id")
	if !ok {
		return common.Address{}, common.Address{}, false
	}
	module, ok := middleware.ModuleFromContext(c)
	if !ok {
		c.Error(apperrors.NewUnauthorized("missing module context"))
		return common.Address{}, common.Address{}, false
	}
	return vaultID, module, true
}

func parseUnits(c *gin.Context, raw, field string) (*big.Int, bool) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		c.Error(apperrors.NewValidation("invalid %s: %s", field, raw))
		return nil, false
	}
	return precise.FromDecimal(d), true
}

func parseAddressList(c *gin.Context, raw []string, field string) ([]common.Address, bool) {
	out := make([]common.Address, 0, len(raw))
	for _, s := range raw {
		if !common.IsHexAddress(s) {
			c.Error(apperrors.NewValidation("invalid address in %s: %s", field, s))
			return nil, false
		}
		out = append(out, common.HexToAddress(s))
	}
	return out, true
}

func parseRouteData(c *gin.Context, raw string) ([]byte, bool) {
	if raw == "" {
		return nil, true
	}
	data, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		c.Error(apperrors.NewValidation("invalid route_data: %v", err))
		return nil, false
	}
	return data, true
}

func resultBody(sent, realized, fee, collateralUnit, debtUnit *big.Int) gin.H {
	return gin.H{
		"sent_notional":     precise.ToDecimal(sent).String(),
		"realized_notional": precise.ToDecimal(realized).String(),
		"fee_notional":      precise.ToDecimal(fee).String(),
		"collateral_unit":   precise.ToDecimal(collateralUnit).String(),
		"debt_unit":         precise.ToDecimal(debtUnit).String(),
	}
}
