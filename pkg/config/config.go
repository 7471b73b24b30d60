package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. STOREFRONT_STRIPE_SECRET_KEY.
const EnvPrefix = "STOREFRONT"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Platform PlatformConfig `mapstructure:"platform"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
	Etcd     EtcdConfig     `mapstructure:"etcd"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Identity IdentityConfig `mapstructure:"identity"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig is the listen address of the gRPC procedures service.
type ServerConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type GatewayConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	// RootDomain is the apex domain stores are served under as subdomains.
	RootDomain string `mapstructure:"root_domain"`
}

type PlatformConfig struct {
	// BootstrapAdmins are emails granted platform admin on sign-in.
	BootstrapAdmins []string `mapstructure:"bootstrap_admins"`
	DefaultPlan     string   `mapstructure:"default_plan"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Prefix      string        `mapstructure:"prefix"`
}

// RPCConfig tells the gateway where the procedures service lives. With no
// address and no etcd endpoints the gateway runs procedures in-process.
type RPCConfig struct {
	Address string        `mapstructure:"address"`
	Service string        `mapstructure:"service"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type IdentityConfig struct {
	URL       string        `mapstructure:"url"`
	AnonKey   string        `mapstructure:"anon_key"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type StripeConfig struct {
	SecretKey     string            `mapstructure:"secret_key"`
	WebhookSecret string            `mapstructure:"webhook_secret"`
	Prices        map[string]string `mapstructure:"prices"`
	AppBaseURL    string            `mapstructure:"app_base_url"`
}

type LogConfig struct {
	Level       string        `mapstructure:"level"`
	Encoding    string        `mapstructure:"encoding"`
	OutputPaths []string      `mapstructure:"output_paths"`
	File        LogFileConfig `mapstructure:"file"`
}

type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// placeholders shipped in sample env files; treated as unset.
var placeholders = map[string]bool{
	"https://your-project.supabase.co": true,
	"your_anon_key_here":               true,
	"your_service_role_key_here":       true,
	"sk_test_placeholder":              true,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "platform")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 50061)
	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8080)
	v.SetDefault("platform.default_plan", "basic")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("mongodb.database", "storefront")
	v.SetDefault("mongodb.collection", "audit_logs")
	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.prefix", "/storefront/services/")
	v.SetDefault("rpc.service", "platform")
	v.SetDefault("rpc.timeout", 3*time.Second)
	v.SetDefault("identity.timeout", 10*time.Second)
	v.SetDefault("stripe.app_base_url", "http://localhost:3000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})
	v.SetDefault("log.file.filename", "logs/storefront.log")
	v.SetDefault("log.file.max_size_mb", 64)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.max_age_days", 7)
}

// Load reads configuration from an optional YAML file and the environment.
// A missing file is not an error: every setting can come from STOREFRONT_*
// variables, and a .env file in the working directory is loaded first.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.normalize()

	return &config, nil
}

// bindEnv registers keys without defaults so AutomaticEnv can see them
// during Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"database.dsn",
		"redis.addr", "redis.password", "redis.db",
		"mongodb.uri",
		"etcd.endpoints",
		"rpc.address",
		"gateway.root_domain",
		"platform.bootstrap_admins",
		"identity.url", "identity.anon_key", "identity.jwt_secret",
		"stripe.secret_key", "stripe.webhook_secret",
		"stripe.prices.basic", "stripe.prices.pro",
		"log.file.enabled",
	} {
		_ = v.BindEnv(key)
	}
}

func (c *Config) normalize() {
	for _, s := range []*string{&c.Identity.URL, &c.Identity.AnonKey, &c.Stripe.SecretKey, &c.Stripe.WebhookSecret} {
		*s = strings.TrimSpace(*s)
		if placeholders[*s] {
			*s = ""
		}
	}
	if len(c.Platform.BootstrapAdmins) == 1 && strings.Contains(c.Platform.BootstrapAdmins[0], ",") {
		c.Platform.BootstrapAdmins = strings.Split(c.Platform.BootstrapAdmins[0], ",")
	}
	for i, e := range c.Platform.BootstrapAdmins {
		c.Platform.BootstrapAdmins[i] = strings.ToLower(strings.TrimSpace(e))
	}
	if len(c.Etcd.Endpoints) == 1 && strings.Contains(c.Etcd.Endpoints[0], ",") {
		c.Etcd.Endpoints = strings.Split(c.Etcd.Endpoints[0], ",")
	}
	c.Identity.URL = strings.TrimRight(c.Identity.URL, "/")
	c.Stripe.AppBaseURL = strings.TrimRight(c.Stripe.AppBaseURL, "/")
}

func (c *GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Configured reports whether the identity provider can be called.
func (c *IdentityConfig) Configured() bool {
	return c.URL != "" && c.AnonKey != ""
}

// PriceID returns the configured Stripe price for a plan key.
func (c *StripeConfig) PriceID(plan string) string {
	if c.Prices == nil {
		return ""
	}
	return c.Prices[plan]
}
