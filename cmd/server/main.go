package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/basketfi/vaultcore/internal/config"
	"github.com/basketfi/vaultcore/internal/handler"
	"github.com/basketfi/vaultcore/internal/leverage"
	"github.com/basketfi/vaultcore/internal/middleware"
	"github.com/basketfi/vaultcore/internal/pkg/logger"
	"github.com/basketfi/vaultcore/internal/repository"
	"github.com/basketfi/vaultcore/internal/service"
	"github.com/basketfi/vaultcore/internal/stream"
	"github.com/basketfi/vaultcore/internal/venue"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Logger
	logger.Init(cfg.Server.LogLevel)

	// 3. Initialize Persistence
	// Change-record persistence (Postgres > Redis > Memory ring)
	var changeRepos []service.ChangeRepo
	var vaultStore service.VaultStore
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			logger.Info("Connected to PostgreSQL")
			store, err := repository.NewPostgresVaultStore(db)
			if err != nil {
				log.Fatalf("Failed to migrate vault tables: %v", err)
			}
			vaultStore = store
			changeRepo, err := repository.NewPostgresChangeRepo(db)
			if err != nil {
				log.Fatalf("Failed to migrate change tables: %v", err)
			}
			changeRepos = append(changeRepos, changeRepo)
		} else {
			logger.Error("Failed to connect to DB, state will not survive restarts", "error", err)
		}
	}
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("Connected to Redis")
			changeRepos = append(changeRepos, repository.NewRedisChangeRepo(redisClient, cfg.Redis.ChangesKey, cfg.Redis.ChangesMax))
		} else {
			logger.Error("Failed to connect to Redis, skipping change cache", "error", err)
		}
	}

	// 4. Host environment: in-memory bank, executor, money market and
	// trade venue. Chain-backed adapters register under their own names
	// and are selected through config.
	bank := venue.NewMemoryBank()
	executor := venue.NewMemoryExecutor()
	registry := venue.NewRegistry()
	registry.RegisterMoneyMarket("memory", venue.NewMemoryMoneyMarket(bank))
	registry.RegisterTradeVenue("memory", venue.NewMemoryTradeVenue(bank, executor,
		common.HexToAddress("0x00000000000000000000000000000000000000D1")))

	moneyMarket, err := registry.MoneyMarket(cfg.Leverage.MoneyMarket)
	if err != nil {
		log.Fatalf("Money market %q not available: %v", cfg.Leverage.MoneyMarket, err)
	}
	tradeVenue, err := registry.TradeVenue(cfg.Leverage.TradeVenue)
	if err != nil {
		log.Fatalf("Trade venue %q not available: %v", cfg.Leverage.TradeVenue, err)
	}

	feeRate, err := decimal.NewFromString(cfg.Leverage.ProtocolFee)
	if err != nil {
		log.Fatalf("Invalid protocol fee %q: %v", cfg.Leverage.ProtocolFee, err)
	}
	var feeCollector leverage.FeeCollector
	if feeRate.IsPositive() && cfg.Leverage.Treasury != "" {
		feeCollector = venue.NewMemoryFeeCollector(bank, common.HexToAddress(cfg.Leverage.Treasury))
	}

	// 5. Initialize Core Services
	hub := stream.NewHub()
	recorder := service.NewChangeRecorder(hub, changeRepos...)
	defer recorder.Close()

	lifecycle := leverage.New(leverage.Options{
		Module:       common.HexToAddress(cfg.Leverage.ModuleAddress),
		MoneyMarket:  moneyMarket,
		TradeVenue:   tradeVenue,
		Executor:     executor,
		Balances:     bank,
		FeeCollector: feeCollector,
		FeeRate:      feeRate,
		Recorder:     recorder,
	})

	vaultSvc := service.NewVaultService(lifecycle, recorder, vaultStore)
	ctx := context.Background()
	if err := vaultSvc.LoadFromStore(ctx); err != nil {
		log.Fatalf("Failed to restore vaults: %v", err)
	}
	if err := seedVaults(ctx, cfg, vaultSvc); err != nil {
		log.Fatalf("Failed to seed configured vaults: %v", err)
	}

	// 6. Initialize Handlers
	vaultHandler := handler.NewVaultHandler(vaultSvc)
	lifecycleHandler := handler.NewLifecycleHandler(vaultSvc)

	// 7. Setup Router
	r := gin.Default()

	// Global Middleware
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	// Health Check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "vaultcore"})
	})

	// Metrics Endpoint
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// Read-only surface and live stream need no module key.
	v1 := r.Group("/v1")
	{
		v1.GET("/vaults", vaultHandler.List)
		v1.GET("/vaults/:id/positions", vaultHandler.Positions)
		v1.GET("/vaults/:id/components/:asset/balance", vaultHandler.ComponentBalance)
		v1.GET("/vaults/:id/enabled-assets", vaultHandler.EnabledAssets)
		v1.GET("/changes", vaultHandler.Changes)
		v1.GET("/stream", func(c *gin.Context) {
			hub.Serve(c.Writer, c.Request)
		})
		v1.POST("/vaults/:id/sync", lifecycleHandler.Sync)
	}

	// Mutating routes require an authenticated module.
	mutating := r.Group("/v1")
	mutating.Use(middleware.ModuleAuthMiddleware(cfg))
	mutating.Use(middleware.RateLimitMiddleware(cfg))
	{
		mutating.POST("/vaults/:id/lever", lifecycleHandler.Lever)
		mutating.POST("/vaults/:id/delever", lifecycleHandler.Delever)
		mutating.POST("/vaults/:id/delever-to-zero", lifecycleHandler.DeleverToZero)
		mutating.POST("/vaults/:id/fee-accrual", lifecycleHandler.AccrueFee)
		mutating.POST("/vaults/:id/collateral", lifecycleHandler.UpdateCollateral)
		mutating.POST("/vaults/:id/enabled-assets", lifecycleHandler.EnableAssets)
		mutating.POST("/vaults/:id/issue", lifecycleHandler.Issue)
		mutating.POST("/vaults/:id/redeem", lifecycleHandler.Redeem)
	}

	// 8. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	logger.Info("Server exited")
}

// seedVaults creates configured vaults that do not exist yet and wires
// their module authorizations and enabled assets.
func seedVaults(ctx context.Context, cfg *config.Config, svc *service.VaultService) error {
	for _, vc := range cfg.Vaults {
		if !common.IsHexAddress(vc.Address) {
			logger.Warn("Skipping vault with invalid address", "address", vc.Address)
			continue
		}
		vaultID := common.HexToAddress(vc.Address)
		if err := svc.CreateVault(ctx, vaultID); err != nil {
			// Already restored from the store is fine.
			logger.Debug("Vault already present", "vault", vaultID.Hex())
		}
		var firstModule common.Address
		for i, m := range vc.Modules {
			if !common.IsHexAddress(m) {
				continue
			}
			addr := common.HexToAddress(m)
			svc.AuthorizeModule(vaultID, addr)
			if i == 0 {
				firstModule = addr
			}
		}
		collateral := hexAddresses(vc.CollateralAssets)
		borrow := hexAddresses(vc.BorrowAssets)
		if (len(collateral) > 0 || len(borrow) > 0) && firstModule != (common.Address{}) {
			if err := svc.EnableAssets(vaultID, firstModule, collateral, borrow); err != nil {
				return err
			}
		}
	}
	return nil
}

func hexAddresses(raw []string) []common.Address {
	out := make([]common.Address, 0, len(raw))
	for _, s := range raw {
		if common.IsHexAddress(s) {
			out = append(out, common.HexToAddress(s))
		}
	}
	return out
}
