package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Etcd     EtcdConfig     `mapstructure:"etcd"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Session  SessionConfig  `mapstructure:"session"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Imaging  ImagingConfig  `mapstructure:"imaging"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type GatewayConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
	// MaxBodyBytes caps request bodies; zero disables the limit.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

type GRPCConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	// Target is dialed when etcd discovery has no ledger instance.
	Target string `mapstructure:"target"`
}

type EtcdConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Endpoints   []string `mapstructure:"endpoints"`
	DialTimeout int      `mapstructure:"dial_timeout"` // seconds
	Prefix      string   `mapstructure:"prefix"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// DatabaseConfig selects the gorm dialector. DSN wins over the discrete
// mysql fields when both are set.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type MongoDBConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	OrdersTopic string   `mapstructure:"orders_topic"`
	WalletTopic string   `mapstructure:"wallet_topic"`
	GroupID     string   `mapstructure:"group_id"`
}

type SessionConfig struct {
	Key        string `mapstructure:"key"`
	CookieName string `mapstructure:"cookie_name"`
	MaxAge     int    `mapstructure:"max_age"`
	Secure     bool   `mapstructure:"secure"`
}

type AuthConfig struct {
	// LegacyFirstAccountFallback resolves an unknown session username to the
	// first admin account instead of failing.
	LegacyFirstAccountFallback bool `mapstructure:"legacy_first_account_fallback"`
}

type WalletConfig struct {
	DefaultCommissionPercent float64 `mapstructure:"default_commission_percent"`
	StoreCode                string  `mapstructure:"store_code"`
	CountryCode              string  `mapstructure:"country_code"`
}

type ImagingConfig struct {
	MaxWidth    uint `mapstructure:"max_width"`
	MaxHeight   uint `mapstructure:"max_height"`
	JPEGQuality int  `mapstructure:"jpeg_quality"`
	// MaxPixels bounds width×height of an upload before it is decoded.
	MaxPixels int `mapstructure:"max_pixels"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
	MaxSizeMB   int      `mapstructure:"max_size_mb"`
	MaxBackups  int      `mapstructure:"max_backups"`
	MaxAgeDays  int      `mapstructure:"max_age_days"`
}

const defaultSQLiteFile = "giftshop.db"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "giftshop-ledger")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 50052)
	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8080)
	v.SetDefault("gateway.mode", "release")
	v.SetDefault("gateway.max_body_bytes", 16<<20)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50052)
	v.SetDefault("grpc.target", "localhost:50052")
	v.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd.dial_timeout", 5)
	v.SetDefault("etcd.prefix", "/giftshop/services/")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("mongodb.database", "giftshop")
	v.SetDefault("mongodb.collection", "audit_logs")
	v.SetDefault("kafka.orders_topic", "giftshop.orders")
	v.SetDefault("kafka.wallet_topic", "giftshop.wallet")
	v.SetDefault("kafka.group_id", "giftshop-gateway")
	v.SetDefault("session.cookie_name", "admin_auth")
	v.SetDefault("session.max_age", 86400)
	v.SetDefault("wallet.default_commission_percent", 4)
	v.SetDefault("wallet.store_code", "ASM")
	v.SetDefault("wallet.country_code", "+91")
	v.SetDefault("imaging.max_width", 1200)
	v.SetDefault("imaging.max_height", 1200)
	v.SetDefault("imaging.jpeg_quality", 80)
	v.SetDefault("imaging.max_pixels", 40_000_000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.max_age_days", 30)
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GIFTSHOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		// Read config file
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = defaultSQLiteFile
	}
	if c.Wallet.DefaultCommissionPercent < 0 || c.Wallet.DefaultCommissionPercent > 100 {
		return fmt.Errorf("wallet.default_commission_percent must be within 0..100, got %v", c.Wallet.DefaultCommissionPercent)
	}
	if c.Wallet.StoreCode == "" {
		return fmt.Errorf("wallet.store_code is required")
	}
	return nil
}

func (c *DatabaseConfig) DSNString() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.Username, c.Password, c.Database)
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.Username, c.Password, c.Host, c.Port, c.Database)
	}
}
