// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Estimation  EstimationConfig  `mapstructure:"estimation"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Options     OptionsConfig     `mapstructure:"options"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Estimation Engine Config ---

// EstimationConfig holds the tunables of the estimation pipeline.
type EstimationConfig struct {
	ThrottleInterval int `mapstructure:"throttle_interval"` // milliseconds between upstream calls
	CacheTTL         int `mapstructure:"cache_ttl"`         // minutes
	SweepInterval    int `mapstructure:"sweep_interval"`    // minutes
	PriceFloor       int `mapstructure:"price_floor"`       // currency units
	MaxResults       int `mapstructure:"max_results"`       // listings echoed back to the caller
}

// MarketplaceConfig holds settings for the external classified-ads API.
type MarketplaceConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	UserAgent string `mapstructure:"user_agent"`
	Timeout   int    `mapstructure:"timeout"` // milliseconds
	Limit     int    `mapstructure:"limit"`   // max ads per search
}

// OptionsConfig holds settings for the premium option detector.
type OptionsConfig struct {
	AIBaseURL string `mapstructure:"ai_base_url"`
	AIAPIKey  string `mapstructure:"ai_api_key"`
	AIModel   string `mapstructure:"ai_model"`
	Timeout   int    `mapstructure:"timeout"` // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
