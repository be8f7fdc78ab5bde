package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	Port           string
	Env            string
	AllowedOrigin  string
	TrustedProxies []string

	StorageDriver string
	SQLitePath    string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StoreKey      string
	UsersKey      string

	AuthSecret            string
	AccessTokenTTLMinutes int
	SeedOwnerPassword     string
	SeedWorkerPassword    string

	ShopName   string
	Currency   string
	DateLayout string
	Timezone   string

	LogFile  string
	LogLevel string
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Variables already set in the environment win.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("STORAGE_DRIVER", DriverMemory)
	v.SetDefault("SQLITE_PATH", "pharmapos.db")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("STORE_KEY", "pharma.db")
	v.SetDefault("USERS_KEY", "pharma.users")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("SHOP_NAME", "Popular Pharmacy")
	v.SetDefault("CURRENCY", "INR")
	v.SetDefault("DATE_LAYOUT", "1/2/2006")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("LOG_LEVEL", "info")

	tokenTTL := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:                  v.GetString("PORT"),
		Env:                   strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		AllowedOrigin:         v.GetString("ALLOWED_ORIGIN"),
		TrustedProxies:        splitList(v.GetString("TRUSTED_PROXIES")),
		StorageDriver:         strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_DRIVER"))),
		SQLitePath:            v.GetString("SQLITE_PATH"),
		DatabaseURL:           v.GetString("DATABASE_URL"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		StoreKey:              v.GetString("STORE_KEY"),
		UsersKey:              v.GetString("USERS_KEY"),
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		SeedOwnerPassword:     v.GetString("SEED_OWNER_PASSWORD"),
		SeedWorkerPassword:    v.GetString("SEED_WORKER_PASSWORD"),
		ShopName:              v.GetString("SHOP_NAME"),
		Currency:              strings.ToUpper(strings.TrimSpace(v.GetString("CURRENCY"))),
		DateLayout:            v.GetString("DATE_LAYOUT"),
		Timezone:              strings.TrimSpace(v.GetString("TIMEZONE")),
		LogFile:               strings.TrimSpace(v.GetString("LOG_FILE")),
		LogLevel:              strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
	}

	switch cfg.StorageDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("STORAGE_DRIVER=postgres requires DATABASE_URL")
		}
	case DriverRedis:
		if cfg.RedisAddr == "" {
			return Config{}, fmt.Errorf("STORAGE_DRIVER=redis requires REDIS_ADDR")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
