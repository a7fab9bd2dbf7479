// Package config loads service and agent settings from the environment,
// an optional .env file and an optional YAML file named by CMM_CONFIG.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	keyDatabaseURL      = "database_url"
	keyJWTSecret        = "jwt_secret"
	keyJWTExpireMinutes = "jwt_expire_minutes"
	keyAllowedOrigins   = "allowed_origins"
	keyTrustedProxies   = "trusted_proxies"
	keyPort             = "port"
	keyIngestKey        = "ingest_key"
	keyRateLimit        = "rate_limit_per_minute"
	keyRateBurst        = "rate_limit_burst"
	keyLockout          = "auth_lockout_threshold"
	keyLogLevel         = "log_level"
	keyLogFile          = "log_file"
	keyLogDev           = "log_development"
	keyGinMode          = "gin_mode"
	keyTracesExporter   = "otel_traces_exporter"
	keyOTLPEndpoint     = "otel_exporter_otlp_endpoint"
	keyOTLPInsecure     = "otel_exporter_otlp_insecure"
	keyAlertCPU         = "alert_cpu_threshold"
	keyAlertRAM         = "alert_ram_threshold"
	keyAlertDisk        = "alert_disk_threshold"
	keyAgentURL         = "agent_api_url"
	keyAgentServerID    = "agent_server_id"
	keyAgentInterval    = "agent_interval"
	keyAgentTimeout     = "agent_timeout"
	keyAgentDiskPath    = "agent_disk_path"
)

// Config is built once at startup and passed to every component that needs it.
type Config struct {
	DatabaseURL    string
	JWTSecret      string
	JWTExpire      time.Duration
	AllowedOrigins []string
	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For is
	// believed. Empty means the peer address is the client address.
	TrustedProxies []string
	Port           int
	IngestKey      string

	RateLimitPerMinute   int
	RateLimitBurst       int
	AuthLockoutThreshold int

	LogLevel       string
	LogFile        string
	LogDevelopment bool
	GinMode        string

	TracesExporter string
	OTLPEndpoint   string
	OTLPInsecure   bool

	AlertCPUThreshold  float64
	AlertRAMThreshold  float64
	AlertDiskThreshold float64

	Agent AgentConfig

	// GeneratedSecret is true when JWT_SECRET was unset and a random secret
	// was created for this process. Tokens will not survive a restart.
	GeneratedSecret bool
}

type AgentConfig struct {
	APIURL   string
	ServerID string
	Interval time.Duration
	Timeout  time.Duration
	DiskPath string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyDatabaseURL, "sqlite://./data/cmm.db")
	v.SetDefault(keyJWTExpireMinutes, 720)
	v.SetDefault(keyAllowedOrigins, "*")
	v.SetDefault(keyPort, 8000)
	v.SetDefault(keyRateLimit, 600)
	v.SetDefault(keyRateBurst, 60)
	v.SetDefault(keyLockout, 10)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyGinMode, "release")
	v.SetDefault(keyTracesExporter, "none")
	v.SetDefault(keyOTLPInsecure, true)
	v.SetDefault(keyAlertCPU, 85.0)
	v.SetDefault(keyAlertRAM, 90.0)
	v.SetDefault(keyAlertDisk, 90.0)
	v.SetDefault(keyAgentURL, "http://localhost:8000/metrics")
	v.SetDefault(keyAgentInterval, "30s")
	v.SetDefault(keyAgentTimeout, "8s")
	v.SetDefault(keyAgentDiskPath, "/")
}

// Load reads .env (if present), the environment and CMM_CONFIG (if set).
// Environment variables win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if path := strings.TrimSpace(os.Getenv("CMM_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabaseURL:          strings.TrimSpace(v.GetString(keyDatabaseURL)),
		JWTSecret:            v.GetString(keyJWTSecret),
		JWTExpire:            time.Duration(v.GetInt(keyJWTExpireMinutes)) * time.Minute,
		AllowedOrigins:       splitList(v.GetString(keyAllowedOrigins)),
		TrustedProxies:       splitList(v.GetString(keyTrustedProxies)),
		Port:                 v.GetInt(keyPort),
		IngestKey:            strings.TrimSpace(v.GetString(keyIngestKey)),
		RateLimitPerMinute:   v.GetInt(keyRateLimit),
		RateLimitBurst:       v.GetInt(keyRateBurst),
		AuthLockoutThreshold: v.GetInt(keyLockout),
		LogLevel:             v.GetString(keyLogLevel),
		LogFile:              v.GetString(keyLogFile),
		LogDevelopment:       v.GetBool(keyLogDev),
		GinMode:              v.GetString(keyGinMode),
		TracesExporter:       strings.ToLower(strings.TrimSpace(v.GetString(keyTracesExporter))),
		OTLPEndpoint:         strings.TrimSpace(v.GetString(keyOTLPEndpoint)),
		OTLPInsecure:         v.GetBool(keyOTLPInsecure),
		AlertCPUThreshold:    v.GetFloat64(keyAlertCPU),
		AlertRAMThreshold:    v.GetFloat64(keyAlertRAM),
		AlertDiskThreshold:   v.GetFloat64(keyAlertDisk),
		Agent: AgentConfig{
			APIURL:   strings.TrimSpace(v.GetString(keyAgentURL)),
			ServerID: strings.TrimSpace(v.GetString(keyAgentServerID)),
			Interval: v.GetDuration(keyAgentInterval),
			Timeout:  v.GetDuration(keyAgentTimeout),
			DiskPath: v.GetString(keyAgentDiskPath),
		},
	}
	// An OTLP endpoint alone is enough to turn on OTLP export.
	if cfg.OTLPEndpoint != "" && (cfg.TracesExporter == "" || cfg.TracesExporter == "none") {
		cfg.TracesExporter = "otlp"
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.JWTSecret = secret
		cfg.GeneratedSecret = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail far from their source.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL must not be empty"))
	}
	if c.JWTExpire <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRE_MINUTES must be positive"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				errs = append(errs, fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP or CIDR", p))
			}
		}
	}
	switch c.TracesExporter {
	case "", "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("OTEL_TRACES_EXPORTER %q not supported", c.TracesExporter))
	}
	if c.Agent.Interval <= 0 {
		errs = append(errs, errors.New("AGENT_INTERVAL must be positive"))
	}
	if c.Agent.Timeout <= 0 {
		errs = append(errs, errors.New("AGENT_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
