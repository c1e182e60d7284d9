package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// XPTier maps a minimum streak length to an XP multiplier.
type XPTier struct {
	Name       string  `toml:"name"`
	MinStreak  int     `toml:"min_streak"`
	Multiplier float64 `toml:"multiplier"`
}

// NetworkConfig holds per-network EAS deployment details.
type NetworkConfig struct {
	ChainID    int64  `toml:"chain_id"`
	RPCURL     string `toml:"rpc_url"`
	EASAddress string `toml:"eas_address"`
}

// AppConfig holds environment driven configuration values.
// Secrets (JWT secret, relayer key) never have defaults and must come from the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	JWTPublicKeyPEM    string
	RateLimitPerMinute int
	AllowedOrigins     []string
	GinMode            string
	GinPath            string
	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis for schema cache and commit guards
	RedisEnabled  bool
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Check-in XP table
	CheckinBaseXP       int
	CheckinBonusPerDay  int
	CheckinMaxBonusDays int
	CheckinTiers        []XPTier
	// Attestations
	EASEnabled         bool
	EASGracefulDegrade bool
	EASDefaultNetwork  string
	EASCheckinSchema   string
	EASNetworks        map[string]NetworkConfig
	RelayerPrivateKey  string
	SchemaCacheTTL     time.Duration
	CommitTimeout      time.Duration
	// Background jobs
	JobsEnabled        bool
	CachePurgeInterval time.Duration
	UnattestedInterval time.Duration
}

// fileConfig mirrors config/config.toml. Only non-secret values are expected in the file.
type fileConfig struct {
	App struct {
		Port               string   `toml:"port"`
		RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
		AllowedOrigins     []string `toml:"allowed_origins"`
		GinMode            string   `toml:"gin_mode"`
		GinLogPath         string   `toml:"gin_log_path"`
	} `toml:"app"`
	Database struct {
		Driver string `toml:"driver"`
		URI    string `toml:"uri"`
		Host   string `toml:"host"`
		Port   string `toml:"port"`
		User   string `toml:"user"`
		Name   string `toml:"name"`
	} `toml:"database"`
	Redis struct {
		Enabled bool   `toml:"enabled"`
		Host    string `toml:"host"`
		Port    int    `toml:"port"`
		DB      int    `toml:"db"`
	} `toml:"redis"`
	Log struct {
		Level      string `toml:"level"`
		Path       string `toml:"path"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
		Compress   bool   `toml:"compress"`
	} `toml:"log"`
	Checkin struct {
		BaseXP       int      `toml:"base_xp"`
		BonusPerDay  int      `toml:"bonus_per_day"`
		MaxBonusDays int      `toml:"max_bonus_days"`
		Tiers        []XPTier `toml:"tiers"`
	} `toml:"checkin"`
	EAS struct {
		Enabled         bool                     `toml:"enabled"`
		GracefulDegrade bool                     `toml:"graceful_degrade"`
		DefaultNetwork  string                   `toml:"default_network"`
		CheckinSchema   string                   `toml:"checkin_schema"`
		SchemaCacheTTL  string                   `toml:"schema_cache_ttl"`
		CommitTimeout   string                   `toml:"commit_timeout"`
		Networks        map[string]NetworkConfig `toml:"networks"`
	} `toml:"eas"`
	Jobs struct {
		Enabled            bool   `toml:"enabled"`
		CachePurgeInterval string `toml:"cache_purge_interval"`
		UnattestedInterval string `toml:"unattested_interval"`
	} `toml:"jobs"`
}

var cfg AppConfig
var loaded bool

// File is the TOML file read by Load. CONFIG_FILE overrides it.
var File = filepath.Join("config", "config.toml")

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: .env -> TOML file -> defaults -> environment variable overrides
	_ = godotenv.Load()

	path := getEnv("CONFIG_FILE", File)
	if err := loadTOMLConfig(path, &cfg); err != nil {
		log.Fatalf("invalid %s: %v", path, err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" && cfg.JWTPublicKeyPEM == "" {
		log.Fatal("JWT_SECRET or JWT_PUBLIC_KEY must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadTOMLConfig reads the TOML file into out if present. Missing file is not an error.
func loadTOMLConfig(path string, out *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	out.AppPort = fc.App.Port
	out.RateLimitPerMinute = fc.App.RateLimitPerMinute
	out.AllowedOrigins = fc.App.AllowedOrigins
	out.GinMode = fc.App.GinMode
	out.GinPath = fc.App.GinLogPath

	out.DBDriver = fc.Database.Driver
	out.DatabaseURI = fc.Database.URI
	out.DBHost = fc.Database.Host
	out.DBPort = fc.Database.Port
	out.DBUser = fc.Database.User
	out.DBName = fc.Database.Name

	out.RedisEnabled = fc.Redis.Enabled
	out.RedisHost = fc.Redis.Host
	out.RedisPort = fc.Redis.Port
	out.RedisDB = fc.Redis.DB

	out.LogLevel = fc.Log.Level
	out.LogPath = fc.Log.Path
	out.LogMaxSizeMB = fc.Log.MaxSizeMB
	out.LogMaxBackups = fc.Log.MaxBackups
	out.LogMaxAgeDays = fc.Log.MaxAgeDays
	out.LogCompress = fc.Log.Compress

	out.CheckinBaseXP = fc.Checkin.BaseXP
	out.CheckinBonusPerDay = fc.Checkin.BonusPerDay
	out.CheckinMaxBonusDays = fc.Checkin.MaxBonusDays
	out.CheckinTiers = fc.Checkin.Tiers

	out.EASEnabled = fc.EAS.Enabled
	out.EASGracefulDegrade = fc.EAS.GracefulDegrade
	out.EASDefaultNetwork = fc.EAS.DefaultNetwork
	out.EASCheckinSchema = fc.EAS.CheckinSchema
	out.EASNetworks = fc.EAS.Networks
	if out.SchemaCacheTTL, err = parseDuration(fc.EAS.SchemaCacheTTL); err != nil {
		return fmt.Errorf("eas.schema_cache_ttl: %w", err)
	}
	if out.CommitTimeout, err = parseDuration(fc.EAS.CommitTimeout); err != nil {
		return fmt.Errorf("eas.commit_timeout: %w", err)
	}

	out.JobsEnabled = fc.Jobs.Enabled
	if out.CachePurgeInterval, err = parseDuration(fc.Jobs.CachePurgeInterval); err != nil {
		return fmt.Errorf("jobs.cache_purge_interval: %w", err)
	}
	if out.UnattestedInterval, err = parseDuration(fc.Jobs.UnattestedInterval); err != nil {
		return fmt.Errorf("jobs.unattested_interval: %w", err)
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBDriver == "" {
		c.DBDriver = "postgres"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		switch c.DBDriver {
		case "mysql":
			c.DBPort = "3306"
		default:
			c.DBPort = "5432"
		}
	}
	if c.DBUser == "" {
		c.DBUser = "postgres"
	}
	if c.DBName == "" {
		c.DBName = "inferno"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.CheckinBaseXP == 0 {
		c.CheckinBaseXP = 50
	}
	if c.CheckinBonusPerDay == 0 {
		c.CheckinBonusPerDay = 5
	}
	if c.CheckinMaxBonusDays == 0 {
		c.CheckinMaxBonusDays = 30
	}
	if len(c.CheckinTiers) == 0 {
		c.CheckinTiers = []XPTier{
			{Name: "ember", MinStreak: 0, Multiplier: 1.0},
			{Name: "flame", MinStreak: 7, Multiplier: 1.2},
			{Name: "blaze", MinStreak: 30, Multiplier: 1.5},
			{Name: "inferno", MinStreak: 90, Multiplier: 2.0},
		}
	}
	if c.EASDefaultNetwork == "" {
		c.EASDefaultNetwork = "base-sepolia"
	}
	if c.EASCheckinSchema == "" {
		c.EASCheckinSchema = "daily_checkin"
	}
	if c.SchemaCacheTTL == 0 {
		c.SchemaCacheTTL = 5 * time.Minute
	}
	if c.CommitTimeout == 0 {
		c.CommitTimeout = 45 * time.Second
	}
	if c.CachePurgeInterval == 0 {
		c.CachePurgeInterval = 10 * time.Minute
	}
	if c.UnattestedInterval == 0 {
		c.UnattestedInterval = time.Hour
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("JWT_PUBLIC_KEY", ""); v != "" {
		c.JWTPublicKeyPEM = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	c.AllowedOrigins = readListEnv("ALLOWED_ORIGINS", c.AllowedOrigins)

	if v := getEnv("DB_DRIVER", ""); v != "" {
		c.DBDriver = strings.ToLower(v)
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}

	if v := getEnv("REDIS_ENABLED", ""); v != "" {
		c.RedisEnabled = parseBool(v)
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}

	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}

	if v := getEnv("CHECKIN_BASE_XP", ""); v != "" {
		c.CheckinBaseXP = mustParseInt(v)
	}

	if v := getEnv("ENABLE_EAS", ""); v != "" {
		c.EASEnabled = parseBool(v)
	}
	// CHECKIN_EAS_GRACEFUL_DEGRADE=true switches the gate away from fail-closed.
	if v := getEnv("CHECKIN_EAS_GRACEFUL_DEGRADE", ""); v != "" {
		c.EASGracefulDegrade = parseBool(v)
	}
	if v := getEnv("EAS_NETWORK", ""); v != "" {
		c.EASDefaultNetwork = v
	}
	if v := getEnv("EAS_RELAYER_PRIVATE_KEY", ""); v != "" {
		c.RelayerPrivateKey = v
	}
	if v := getEnv("EAS_SCHEMA_CACHE_TTL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SchemaCacheTTL = d
		}
	}
	if v := getEnv("JOBS_ENABLED", ""); v != "" {
		c.JobsEnabled = parseBool(v)
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		log.Fatalf("invalid integer value %q: %v", val, err)
	}
	return i
}

func parseBool(val string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	return err == nil && b
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
