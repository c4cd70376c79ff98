package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Accounting AccountingConfig `mapstructure:"accounting"`
	Family     FamilyConfig     `mapstructure:"family"`
}

// ServerConfig defines server addresses and ports
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AccountingConfig defines usage accounting and evaluation settings
type AccountingConfig struct {
	MinUsageDuration   string `mapstructure:"min_usage_duration"`
	IdleTimeout        string `mapstructure:"idle_timeout"`
	EvaluationInterval string `mapstructure:"evaluation_interval"`
	CompactionTime     string `mapstructure:"compaction_time"`
	Timezone           string `mapstructure:"timezone"`
	ActivityCacheSize  int    `mapstructure:"activity_cache_size"`
	ActivityCacheTTL   string `mapstructure:"activity_cache_ttl"`
}

// FamilyConfig defines the household inventory: users, their profiles,
// and the devices they operate.
type FamilyConfig struct {
	Enabled  bool            `mapstructure:"enabled"`
	Users    []UserConfig    `mapstructure:"users"`
	Profiles []ProfileConfig `mapstructure:"profiles"`
	Devices  []DeviceConfig  `mapstructure:"devices"`
}

// UserConfig defines a household user
type UserConfig struct {
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	Profile string `mapstructure:"profile"`
}

// ProfileConfig defines the access policy attached to a user
type ProfileConfig struct {
	ID              string             `mapstructure:"id"`
	Name            string             `mapstructure:"name"`
	TimeControlled  bool               `mapstructure:"time_controlled"`
	UsageControlled bool               `mapstructure:"usage_controlled"`
	InternetBlocked bool               `mapstructure:"internet_blocked"`
	MaxUsageMinutes map[string]int     `mapstructure:"max_usage_minutes"`
	Contingents     []ContingentConfig `mapstructure:"contingents"`
}

// ContingentConfig defines a permitted day/time window.
// Day accepts a weekday name or the "weekday"/"weekend" sentinels;
// From and Till are inclusive "HH:MM" times.
type ContingentConfig struct {
	Day  string `mapstructure:"day"`
	From string `mapstructure:"from"`
	Till string `mapstructure:"till"`
}

// DeviceConfig defines a network device and its operating user
type DeviceConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
	IP   string `mapstructure:"ip"`
	MAC  string `mapstructure:"mac"`
	User string `mapstructure:"user"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.metrics_port", 9090)

	// Storage defaults
	v.SetDefault("storage.type", "redis")
	v.SetDefault("storage.redis.host", "127.0.0.1")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Accounting defaults
	v.SetDefault("accounting.min_usage_duration", "10m")
	v.SetDefault("accounting.idle_timeout", "10m")
	v.SetDefault("accounting.evaluation_interval", "1m")
	v.SetDefault("accounting.compaction_time", "03:00")
	v.SetDefault("accounting.timezone", "Local")
	v.SetDefault("accounting.activity_cache_size", 256)
	v.SetDefault("accounting.activity_cache_ttl", "30s")

	// Family defaults
	v.SetDefault("family.enabled", true)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "redis"
	}
	if cfg.Storage.Type != "redis" {
		return fmt.Errorf("unsupported storage type: %s (only 'redis' is supported)", cfg.Storage.Type)
	}

	if _, err := time.ParseDuration(cfg.Accounting.MinUsageDuration); err != nil {
		return fmt.Errorf("invalid min_usage_duration: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Accounting.IdleTimeout); err != nil {
		return fmt.Errorf("invalid idle_timeout: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Accounting.EvaluationInterval); err != nil {
		return fmt.Errorf("invalid evaluation_interval: %w", err)
	}
	if _, err := time.Parse("15:04", cfg.Accounting.CompactionTime); err != nil {
		return fmt.Errorf("invalid compaction_time (want HH:MM): %w", err)
	}
	if _, err := LoadLocation(cfg.Accounting.Timezone); err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	// Devices must reference known users, users known profiles
	users := make(map[string]bool, len(cfg.Family.Users))
	for _, u := range cfg.Family.Users {
		if u.ID == "" {
			return fmt.Errorf("family user without id")
		}
		users[u.ID] = true
	}
	profiles := make(map[string]bool, len(cfg.Family.Profiles))
	for _, p := range cfg.Family.Profiles {
		if p.ID == "" {
			return fmt.Errorf("family profile without id")
		}
		profiles[p.ID] = true
	}
	for _, u := range cfg.Family.Users {
		if u.Profile != "" && !profiles[u.Profile] {
			return fmt.Errorf("user %s references unknown profile %s", u.ID, u.Profile)
		}
	}
	for _, d := range cfg.Family.Devices {
		if d.ID == "" {
			return fmt.Errorf("family device without id")
		}
		if d.User != "" && !users[d.User] {
			return fmt.Errorf("device %s references unknown user %s", d.ID, d.User)
		}
	}

	return nil
}

// LoadLocation resolves a configured timezone name. The special value
// "Local" (or an empty string) keeps the appliance's system time zone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}
