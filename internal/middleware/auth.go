package middleware

import (
	"net/http"

	"github.com/basketfi/vaultcore/internal/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

const (
	HeaderModuleKey  = "X-Module-Key"
	ContextModuleKey = "module_address"
)

// ModuleAuthMiddleware resolves the caller's API key into the module
// address it acts as. Vault-scoped authorization happens in the service
// layer; this only establishes identity.
func ModuleAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderModuleKey)
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing module key"})
			c.Abort()
			return
		}

		addr, ok := cfg.Auth.Modules[apiKey]
		if !ok || !common.IsHexAddress(addr) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid module key"})
			c.Abort()
			return
		}

		c.Set(ContextModuleKey, common.HexToAddress(addr))
		c.Next()
	}
}

// ModuleFromContext returns the authenticated module address. Must be
// used behind ModuleAuthMiddleware.
func ModuleFromContext(c *gin.Context) (common.Address, bool) {
	val, exists := c.Get(ContextModuleKey)
	if !exists {
		return common.Address{}, false
	}
	addr, ok := val.(common.Address)
	return addr, ok
}
