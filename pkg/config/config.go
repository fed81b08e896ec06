package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Player data
	DatabaseURL         string `mapstructure:"DATABASE_URL"`
	PlayersCSV          string `mapstructure:"PLAYERS_CSV"`
	AutoSync            bool   `mapstructure:"AUTO_SYNC"`
	PoolRefreshSchedule string `mapstructure:"POOL_REFRESH_SCHEDULE"`

	// Result cache
	RedisURL                string        `mapstructure:"REDIS_URL"`
	CacheEnabled            bool          `mapstructure:"CACHE_ENABLED"`
	CacheTTL                time.Duration `mapstructure:"CACHE_TTL"`
	CircuitBreakerThreshold int           `mapstructure:"CIRCUIT_BREAKER_THRESHOLD"`

	// CORS
	CorsOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Optimization
	DefaultTeamSize     int     `mapstructure:"DEFAULT_TEAM_SIZE"`
	MaxTeamSize         int     `mapstructure:"MAX_TEAM_SIZE"`
	MinBudget           float64 `mapstructure:"MIN_BUDGET"`
	MaxBudget           float64 `mapstructure:"MAX_BUDGET"`
	OptimizationTimeout int     `mapstructure:"OPTIMIZATION_TIMEOUT"`
	SolverMaxNodes      int     `mapstructure:"SOLVER_MAX_NODES"`

	// Rate limiting on /optimize
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "")
	viper.SetDefault("DATABASE_URL", "sqlite://cricket.db")
	viper.SetDefault("PLAYERS_CSV", "data/players.csv")
	viper.SetDefault("AUTO_SYNC", true)
	viper.SetDefault("POOL_REFRESH_SCHEDULE", "") // cron spec, empty disables
	viper.SetDefault("REDIS_URL", "")             // empty uses the in-memory cache
	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_TTL", "10m")
	viper.SetDefault("CIRCUIT_BREAKER_THRESHOLD", 5)
	viper.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("DEFAULT_TEAM_SIZE", 11)
	viper.SetDefault("MAX_TEAM_SIZE", 11)
	viper.SetDefault("MIN_BUDGET", 1)
	viper.SetDefault("MAX_BUDGET", 1000)
	viper.SetDefault("OPTIMIZATION_TIMEOUT", 30) // seconds
	viper.SetDefault("SOLVER_MAX_NODES", 200000)
	viper.SetDefault("RATE_LIMIT_RPS", 5)
	viper.SetDefault("RATE_LIMIT_BURST", 10)

	// Read from environment
	viper.AutomaticEnv()

	// Read config file if exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Parse CORS origins from comma-separated string
	if corsStr := viper.GetString("CORS_ORIGINS"); corsStr != "" {
		config.CorsOrigins = strings.Split(corsStr, ",")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.DefaultTeamSize <= 0 {
		return fmt.Errorf("DEFAULT_TEAM_SIZE must be positive, got %d", c.DefaultTeamSize)
	}
	if c.MaxTeamSize < c.DefaultTeamSize {
		return fmt.Errorf("MAX_TEAM_SIZE (%d) must be at least DEFAULT_TEAM_SIZE (%d)", c.MaxTeamSize, c.DefaultTeamSize)
	}
	if c.MinBudget <= 0 || c.MaxBudget < c.MinBudget {
		return fmt.Errorf("budget range %v..%v is invalid", c.MinBudget, c.MaxBudget)
	}
	if c.OptimizationTimeout <= 0 {
		return fmt.Errorf("OPTIMIZATION_TIMEOUT must be positive, got %d", c.OptimizationTimeout)
	}
	// CORS responses allow credentials, so production needs explicit origins.
	if c.IsProduction() {
		for _, o := range c.CorsOrigins {
			if strings.TrimSpace(o) == "*" {
				return fmt.Errorf("CORS_ORIGINS must list explicit origins in production")
			}
		}
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// OptimizationDeadline is the per-request solve timeout.
func (c *Config) OptimizationDeadline() time.Duration {
	return time.Duration(c.OptimizationTimeout) * time.Second
}
