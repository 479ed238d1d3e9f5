package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/httpapi"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	gatewayRedis  = "redis"
	gatewaySQLite = "sqlite"
	gatewayMemory = "memory"
)

var errMissingSecret = errors.New("missing secret")

type settings struct {
	Env                  string
	Host                 string
	Port                 int
	AuthPath             string
	AutoRefresh          bool
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	JWTSecret            string
	RefreshSecret        string
	CookieSecret         string
	Gateway              string
	RedisAddr            string
	RedisPrefix          string
	DatabaseFile         string
	LogLevel             string
	MetricsEnabled       bool
	ShutdownGracePeriod  time.Duration
	HousekeepingInterval time.Duration
	PasswordHash         string
	LoginRateLimit       int
	LoginThrottleMax     int
	LoginThrottleWindow  time.Duration
	OTLPEndpoint         string
	OTLPInsecure         bool
	OTLPInterval         time.Duration
	TrustedProxies       []string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "production")
	v.SetDefault("host", "")
	v.SetDefault("port", 5000)
	v.SetDefault("auth_path", "/auth")
	v.SetDefault("auto_refresh", true)
	v.SetDefault("access_ttl", time.Hour)
	v.SetDefault("refresh_ttl", 7*24*time.Hour)
	v.SetDefault("gateway", gatewayRedis)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_prefix", "tokenauth")
	v.SetDefault("database_file", "tokenauth.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("shutdown_grace_period", 10*time.Second)
	v.SetDefault("housekeeping_interval", time.Hour)
	v.SetDefault("password_hash", "bcrypt")
	v.SetDefault("login_rate_limit", 5)
	v.SetDefault("login_throttle_max", 5)
	v.SetDefault("login_throttle_window", 15*time.Minute)
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("otlp_insecure", false)
	v.SetDefault("otlp_interval", 15*time.Second)
	v.SetDefault("trusted_proxies", "")
	return v
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	flags.String("config", "", "optional config file (yaml, json or toml)")
	flags.String("host", "", "listen host")
	flags.Int("port", 5000, "listen port")
	flags.String("gateway", gatewayRedis, "revocation gateway: redis, sqlite or memory")
	flags.String("log-level", "info", "log level")
	flags.String("database-file", "tokenauth.db", "sqlite revocation ledger file")

	for key, flag := range map[string]string{
		"config":        "config",
		"host":          "host",
		"port":          "port",
		"gateway":       "gateway",
		"log_level":     "log-level",
		"database_file": "database-file",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

func readConfigFile(v *viper.Viper) error {
	path := v.GetString("config")
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func loadSettings(v *viper.Viper) (settings, error) {
	s := settings{
		Env:                  v.GetString("env"),
		Host:                 v.GetString("host"),
		Port:                 v.GetInt("port"),
		AuthPath:             v.GetString("auth_path"),
		AutoRefresh:          v.GetBool("auto_refresh"),
		AccessTTL:            v.GetDuration("access_ttl"),
		RefreshTTL:           v.GetDuration("refresh_ttl"),
		JWTSecret:            v.GetString("jwt_secret"),
		RefreshSecret:        v.GetString("refresh_secret"),
		CookieSecret:         v.GetString("cookie_secret"),
		Gateway:              strings.ToLower(v.GetString("gateway")),
		RedisAddr:            v.GetString("redis_addr"),
		RedisPrefix:          v.GetString("redis_prefix"),
		DatabaseFile:         v.GetString("database_file"),
		LogLevel:             v.GetString("log_level"),
		MetricsEnabled:       v.GetBool("metrics_enabled"),
		ShutdownGracePeriod:  v.GetDuration("shutdown_grace_period"),
		HousekeepingInterval: v.GetDuration("housekeeping_interval"),
		PasswordHash:         strings.ToLower(v.GetString("password_hash")),
		LoginRateLimit:       v.GetInt("login_rate_limit"),
		LoginThrottleMax:     v.GetInt("login_throttle_max"),
		LoginThrottleWindow:  v.GetDuration("login_throttle_window"),
		OTLPEndpoint:         v.GetString("otlp_endpoint"),
		OTLPInsecure:         v.GetBool("otlp_insecure"),
		OTLPInterval:         v.GetDuration("otlp_interval"),
		TrustedProxies:       splitList(v.GetString("trusted_proxies")),
	}

	for name, value := range map[string]string{
		"JWT_SECRET":     s.JWTSecret,
		"REFRESH_SECRET": s.RefreshSecret,
		"COOKIE_SECRET":  s.CookieSecret,
	} {
		if value == "" {
			return settings{}, fmt.Errorf("%w: %s", errMissingSecret, name)
		}
	}

	switch s.Gateway {
	case gatewayRedis, gatewaySQLite, gatewayMemory:
	default:
		return settings{}, fmt.Errorf("unknown gateway %q", s.Gateway)
	}
	switch s.PasswordHash {
	case "bcrypt", "argon2":
	default:
		return settings{}, fmt.Errorf("unknown password hash %q", s.PasswordHash)
	}

	if _, err := httpapi.TrustedProxies(s.TrustedProxies...); err != nil {
		return settings{}, err
	}

	return s, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (s settings) engineConfig() tokenauth.Config {
	cfg := tokenauth.DefaultConfig()
	cfg.Environment = s.Env
	cfg.AutoRefresh = s.AutoRefresh
	cfg.PathPrefix = s.AuthPath
	cfg.Access.TTL = s.AccessTTL
	cfg.Access.Secret = []byte(s.JWTSecret)
	cfg.Refresh.TTL = s.RefreshTTL
	cfg.Refresh.Secret = []byte(s.RefreshSecret)
	cfg.Cookie.Secret = []byte(s.CookieSecret)
	cfg.Metrics.Enabled = s.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = s.MetricsEnabled
	return cfg
}
