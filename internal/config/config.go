package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Values that must never reach production
var insecureDefaults = map[string]bool{
	"your-secret-key-change-in-production": true,
	"internal-secret":                      true,
	"internal-service-secret":              true,
	"":                                     true,
}

type Config struct {
	Server         ServerConfig       `mapstructure:"server"`
	Database       DatabaseConfig     `mapstructure:"database"`
	JWT            JWTConfig          `mapstructure:"jwt"`
	Redis          RedisConfig        `mapstructure:"redis"`
	Kafka          KafkaConfig        `mapstructure:"kafka"`
	Provider       ProviderConfig     `mapstructure:"provider"`
	Provisioning   ProvisioningConfig `mapstructure:"provisioning"`
	InternalSecret string             `mapstructure:"internal_secret"`
	Env            string             `mapstructure:"env"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	Schema   string `mapstructure:"schema"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

// RedisConfig backs the distributed per-service lifecycle lock.
// When disabled an in-process lock is used instead.
type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	DB         int           `mapstructure:"db"`
	Password   string        `mapstructure:"password"`
	LockPrefix string        `mapstructure:"lock_prefix"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
}

// KafkaConfig enables mirroring audit events onto a topic.
type KafkaConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Brokers    []string `mapstructure:"brokers"`
	AuditTopic string   `mapstructure:"audit_topic"`
}

// ProviderConfig applies to every outbound provider client.
type ProviderConfig struct {
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	RateLimitPerSecond float64       `mapstructure:"rate_limit_per_second"`
	RateBurst          int           `mapstructure:"rate_burst"`
}

type ProvisioningConfig struct {
	LockWait       time.Duration `mapstructure:"lock_wait"`
	PasswordLength int           `mapstructure:"password_length"`
}

var envKeys = []string{
	"env",
	"server.port",
	"server.mode",
	"database.host",
	"database.port",
	"database.user",
	"database.password",
	"database.name",
	"database.schema",
	"database.ssl_mode",
	"database.max_conns",
	"database.min_conns",
	"jwt.secret_key",
	"internal_secret",
	"redis.enabled",
	"redis.host",
	"redis.port",
	"redis.db",
	"redis.password",
	"redis.lock_prefix",
	"redis.lock_ttl",
	"kafka.enabled",
	"kafka.brokers",
	"kafka.audit_topic",
	"provider.request_timeout",
	"provider.rate_limit_per_second",
	"provider.rate_burst",
	"provisioning.lock_wait",
	"provisioning.password_length",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("PROVISIONING")

	setDefaults(v)

	for _, key := range envKeys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "PROVISIONING_"+envKey, envKey); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Secrets are deliberately left out of this line
	log.Printf("[config] Provisioning Service loaded: port=%s db=%s/%s.%s redis=%t kafka=%t",
		cfg.Server.Port, cfg.Database.Host, cfg.Database.DBName, cfg.Database.Schema, cfg.Redis.Enabled, cfg.Kafka.Enabled)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("server.port", "8006")
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "saas_user")
	v.SetDefault("database.password", "saas_pass")
	v.SetDefault("database.name", "saas_db")
	v.SetDefault("database.schema", "billing")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("jwt.secret_key", "")
	v.SetDefault("internal_secret", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.lock_prefix", "provisioning:service-lock")
	v.SetDefault("redis.lock_ttl", "5m")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.audit_topic", "billing.audit")

	v.SetDefault("provider.request_timeout", "60s")
	v.SetDefault("provider.rate_limit_per_second", 5.0)
	v.SetDefault("provider.rate_burst", 10)

	v.SetDefault("provisioning.lock_wait", "30s")
	v.SetDefault("provisioning.password_length", 16)
}

// Validate rejects insecure secrets and unusable provider settings.
func (c *Config) Validate() error {
	if insecureDefaults[c.JWT.SecretKey] {
		return fmt.Errorf("JWT_SECRET_KEY must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters long")
	}

	if insecureDefaults[c.InternalSecret] {
		return fmt.Errorf("INTERNAL_SECRET must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.InternalSecret) < 32 {
		return fmt.Errorf("INTERNAL_SECRET must be at least 32 characters long")
	}

	if c.Provider.RequestTimeout <= 0 {
		return fmt.Errorf("PROVIDER_REQUEST_TIMEOUT must be positive")
	}
	if c.Provisioning.PasswordLength < 8 {
		return fmt.Errorf("PROVISIONING_PASSWORD_LENGTH must be at least 8")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must be set when kafka is enabled")
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
