package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Leverage LeverageConfig `mapstructure:"leverage"`
	Vaults   []VaultConfig  `mapstructure:"vaults"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type AuthConfig struct {
	// Modules maps gateway API keys to the module address the caller
	// acts as. Vault-scoped authorization is configured per vault.
	Modules map[string]string `mapstructure:"modules"`
	// RateQPS / RateBurst apply per module key on mutating routes.
	RateQPS   float64 `mapstructure:"rate_qps"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	ChangesKey string `mapstructure:"changes_key"`
	ChangesMax int    `mapstructure:"changes_max"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LeverageConfig struct {
	// ModuleAddress attributes External debt entries.
	ModuleAddress string `mapstructure:"module_address"`
	// ProtocolFee is the fraction of realized trade output collected
	// on lever/delever, e.g. "0.0005".
	ProtocolFee string `mapstructure:"protocol_fee"`
	// MoneyMarket / TradeVenue select registered adapters by name.
	MoneyMarket string `mapstructure:"money_market"`
	TradeVenue  string `mapstructure:"trade_venue"`
	Treasury    string `mapstructure:"treasury"`
}

type VaultConfig struct {
	Address          string   `mapstructure:"address"`
	Modules          []string `mapstructure:"modules"`
	CollateralAssets []string `mapstructure:"collateral_assets"`
	BorrowAssets     []string `mapstructure:"borrow_assets"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support, e.g. VAULTCORE_DATABASE_DSN
	viper.SetEnvPrefix("vaultcore")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("auth.rate_qps", 10)
	viper.SetDefault("auth.rate_burst", 20)
	viper.SetDefault("redis.changes_key", "position_changes")
	viper.SetDefault("redis.changes_max", 10000)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("leverage.module_address", "0x0000000000000000000000000000000000000101")
	viper.SetDefault("leverage.protocol_fee", "0")
	viper.SetDefault("leverage.money_market", "memory")
	viper.SetDefault("leverage.trade_venue", "memory")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
