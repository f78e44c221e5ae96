package handler

import (
	"net/http"
	"strconv"

	"github.com/basketfi/vaultcore/internal/pkg/apperrors"
	"github.com/basketfi/vaultcore/internal/precise"
	"github.com/basketfi/vaultcore/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// VaultHandler serves the read-only ledger surface.
type VaultHandler struct {
	svc *service.VaultService
}

func NewVaultHandler(svc *service.VaultService) *VaultHandler {
	return &VaultHandler{svc: svc}
}

func (h *VaultHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.ListVaults())
}

func (h *VaultHandler) Positions(c *gin.Context) {
	vaultID, ok := parseAddress(c, c.Param("id"), "vault id")
	if !ok {
		return
	}
	view, err := h.svc.VaultView(vaultID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *VaultHandler) ComponentBalance(c *gin.Context) {
	vaultID, ok := parseAddress(c, c.Param("id"), "vault id")
	if !ok {
		return
	}
	component, ok := parseAddress(c, c.Param("asset"), "component")
	if !ok {
		return
	}
	balance, err := h.svc.TrackedBalance(vaultID, component)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"vault":     vaultID.Hex(),
		"component": component.Hex(),
		"balance":   precise.ToDecimal(balance).String(),
	})
}

func (h *VaultHandler) EnabledAssets(c *gin.Context) {
	vaultID, ok := parseAddress(c, c.Param("id"), "vault id")
	if !ok {
		return
	}
	collateral, borrow, err := h.svc.EnabledAssets(vaultID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"collateral_assets": hexList(collateral),
		"borrow_assets":     hexList(borrow),
	})
}

func (h *VaultHandler) Changes(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	vaultID := c.Query("vault")
	if vaultID != "" {
		if !common.IsHexAddress(vaultID) {
			c.Error(apperrors.NewValidation("invalid vault filter: %s", vaultID))
			return
		}
		vaultID = common.HexToAddress(vaultID).Hex()
	}
	records, err := h.svc.Changes(c.Request.Context(), vaultID, limit)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, records)
}

func parseAddress(c *gin.Context, raw, field string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		c.Error(apperrors.NewValidation("invalid %s: %s", field, raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func hexList(addrs []common.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Hex())
	}
	return out
}
