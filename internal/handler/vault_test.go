package handler

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/basketfi/vaultcore/internal/leverage"
	"github.com/basketfi/vaultcore/internal/middleware"
	"github.com/basketfi/vaultcore/internal/model"
	"github.com/basketfi/vaultcore/internal/precise"
	"github.com/basketfi/vaultcore/internal/service"
	"github.com/basketfi/vaultcore/internal/venue"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var (
	vaultAddr  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	moduleAddr = common.HexToAddress("0x0000000000000000000000000000000000000101")
	venueAddr  = common.HexToAddress("0x00000000000000000000000000000000000000D1")
	collateral = common.HexToAddress("0x00000000000000000000000000000000000000C1")
	borrowed   = common.HexToAddress("0x00000000000000000000000000000000000000B1")
)

func scaled(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), precise.Scale)
}

func newTestRouter(t *testing.T) (*gin.Engine, *venue.MemoryMoneyMarket) {
	gin.SetMode(gin.TestMode)

	bank := venue.NewMemoryBank()
	exec := venue.NewMemoryExecutor()
	mm := venue.NewMemoryMoneyMarket(bank)
	trade := venue.NewMemoryTradeVenue(bank, exec, venueAddr)
	trade.SetRate(borrowed, collateral, decimal.NewFromInt(1))

	lc := leverage.New(leverage.Options{
		Module:      moduleAddr,
		MoneyMarket: mm,
		TradeVenue:  trade,
		Executor:    exec,
		Balances:    bank,
	})
	svc := service.NewVaultService(lc, nil, nil)
	ctx := context.Background()
	assert.NoError(t, svc.CreateVault(ctx, vaultAddr))
	svc.AuthorizeModule(vaultAddr, moduleAddr)
	assert.NoError(t, svc.Issue(ctx, vaultAddr, scaled(10)))
	assert.NoError(t, svc.EnableAssets(vaultAddr, moduleAddr,
		[]common.Address{collateral}, []common.Address{borrowed}))

	vh := NewVaultHandler(svc)
	lh := NewLifecycleHandler(svc)

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	r.GET("/v1/vaults", vh.List)
	r.GET("/v1/vaults/:id/positions", vh.Positions)
	r.GET("/v1/vaults/:id/components/:asset/balance", vh.ComponentBalance)
	r.GET("/v1/vaults/:id/enabled-assets", vh.EnabledAssets)
	r.POST("/v1/vaults/:id/sync", lh.Sync)
	return r, mm
}

func doRequest(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestListVaults(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/v1/vaults")
	assert.Equal(t, http.StatusOK, w.Code)

	var views []model.VaultView
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	assert.Len(t, views, 1)
	assert.Equal(t, vaultAddr.Hex(), views[0].ID)
	assert.Equal(t, "10", views[0].TotalSupply)
}

func TestPositionsUnknownVault(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/v1/vaults/0x00000000000000000000000000000000000000FF/positions")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPositionsInvalidAddress(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/v1/vaults/not-an-address/positions")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncThenReadPositions(t *testing.T) {
	r, mm := newTestRouter(t)
	mm.GrowCollateral(vaultAddr, collateral, scaled(100))

	w := doRequest(r, http.MethodPost, "/v1/vaults/"+vaultAddr.Hex()+"/sync")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/v1/vaults/"+vaultAddr.Hex()+"/positions")
	assert.Equal(t, http.StatusOK, w.Code)

	var view model.VaultView
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Len(t, view.Positions, 1)
	assert.Equal(t, "10", view.Positions[0].Unit)
	assert.Equal(t, "default", view.Positions[0].Kind)
}

func TestEnabledAssetsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/v1/vaults/"+vaultAddr.Hex()+"/enabled-assets")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string][]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{collateral.Hex()}, body["collateral_assets"])
	assert.Equal(t, []string{borrowed.Hex()}, body["borrow_assets"])
}

func TestComponentBalanceEndpoint(t *testing.T) {
	r, mm := newTestRouter(t)
	mm.GrowCollateral(vaultAddr, collateral, scaled(100))
	doRequest(r, http.MethodPost, "/v1/vaults/"+vaultAddr.Hex()+"/sync")

	w := doRequest(r, http.MethodGet,
		"/v1/vaults/"+vaultAddr.Hex()+"/components/"+collateral.Hex()+"/balance")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "100", body["balance"])
}
