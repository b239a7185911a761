package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/haukened/dns-sinkhole/internal/dns/domain"
)

// EnvPrefix prefixes every environment override, e.g. SINKHOLE_SERVER_PORT.
const EnvPrefix = "SINKHOLE_"

// ConfigFileEnv names the YAML file to load when no path is passed to Load.
const ConfigFileEnv = "SINKHOLE_CONFIG"

// AppConfig is the complete runtime configuration.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log       LogConfig             `koanf:"log"`
	Server    ServerConfig          `koanf:"server"`
	Upstream  UpstreamConfig        `koanf:"upstream"`
	Blocklist BlocklistConfig       `koanf:"blocklist"`
	Cache     CacheConfig           `koanf:"cache"`
	Database  DatabaseConfig        `koanf:"database"`
	Ingest    IngestConfig          `koanf:"ingest"`
	Feeds     map[string]FeedConfig `koanf:"feeds" validate:"dive"`
	Redis     RedisConfig           `koanf:"redis"`
	Admin     AdminConfig           `koanf:"admin"`
}

type LogConfig struct {
	// Level controls log verbosity: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	// Port is the DNS listening port. 0 picks a free port.
	Port int `koanf:"port" validate:"gte=0,lt=65536"`
	// FallbackPort is tried once when Port cannot be bound for lack of privileges. 0 disables.
	FallbackPort int           `koanf:"fallback_port" validate:"gte=0,lt=65536"`
	QueryTimeout time.Duration `koanf:"query_timeout" validate:"gt=0"`
	TCP          bool          `koanf:"tcp"`
}

type UpstreamConfig struct {
	// Servers is the ordered list of upstream resolvers in ip:port format; the first is primary.
	Servers []string      `koanf:"servers" validate:"required,min=1,dive,ip_port"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

type BlocklistConfig struct {
	// Driver selects the store: "bolt" (embedded file), "postgres", or "none".
	Driver          string `koanf:"driver" validate:"required,oneof=bolt postgres none"`
	Path            string `koanf:"path"`
	MatchSubdomains bool   `koanf:"match_subdomains"`
	TTL             uint32 `koanf:"ttl" validate:"gte=1"`
	NullIPv4        string `koanf:"null_ipv4" validate:"required,ipv4"`
	NullIPv6        string `koanf:"null_ipv6" validate:"required,ipv6"`
}

type CacheConfig struct {
	// Size bounds the decision cache. 0 is unbounded, negative disables caching.
	Size int           `koanf:"size" validate:"gte=-1"`
	TTL  time.Duration `koanf:"ttl" validate:"gte=0"`
	// BloomFPRate enables the bloom pre-filter when positive.
	BloomFPRate float64 `koanf:"bloom_fp_rate" validate:"gte=0,lt=1"`
}

type DatabaseConfig struct {
	Host         string `koanf:"host"`
	Port         int    `koanf:"port" validate:"gte=0,lt=65536"`
	User         string `koanf:"user"`
	Password     string `koanf:"password"`
	Name         string `koanf:"name"`
	SSLMode      string `koanf:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"gte=0"`
	// Resolver, when set, is the DNS server (ip:port) used to resolve Host.
	Resolver string `koanf:"resolver" validate:"omitempty,ip_port"`
}

type IngestConfig struct {
	// Interval between ingestion runs while serving. 0 ingests only at startup.
	Interval    time.Duration `koanf:"interval" validate:"gte=0"`
	OnStart     bool          `koanf:"on_start"`
	Concurrency int           `koanf:"concurrency" validate:"gte=1"`
	Timeout     time.Duration `koanf:"timeout" validate:"gte=0"`
	UserAgent   string        `koanf:"user_agent"`
	MaxBytes    int64         `koanf:"max_bytes" validate:"gte=0"`
}

type FeedConfig struct {
	URL     string `koanf:"url" validate:"omitempty,url"`
	Enabled bool   `koanf:"enabled"`
	Format  string `koanf:"format" validate:"omitempty,oneof=hosts plain"`
}

type RedisConfig struct {
	// URL enables cross-process cache invalidation when set (redis://host:port/db).
	URL     string `koanf:"url"`
	Channel string `koanf:"channel"`
}

type AdminConfig struct {
	// Addr is the admin HTTP listen address. Empty disables the admin server.
	Addr string `koanf:"addr" validate:"omitempty,hostname_port"`
}

// DEFAULT_APP_CONFIG defines the default application configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LogConfig{Level: "info"},
	Server: ServerConfig{
		Host:         "0.0.0.0",
		Port:         53,
		FallbackPort: 10053,
		QueryTimeout: 5 * time.Second,
		TCP:          true,
	},
	Upstream: UpstreamConfig{
		Servers: []string{"1.1.1.1:53", "8.8.8.8:53"},
		Timeout: 3 * time.Second,
	},
	Blocklist: BlocklistConfig{
		Driver:          "bolt",
		Path:            "/var/lib/dns-sinkhole/blocklist.db",
		MatchSubdomains: true,
		TTL:             300,
		NullIPv4:        "0.0.0.0",
		NullIPv6:        "::",
	},
	Cache: CacheConfig{
		Size: 100000,
	},
	Database: DatabaseConfig{
		Host:         "localhost",
		Port:         5432,
		User:         "sinkhole",
		Name:         "sinkhole",
		SSLMode:      "disable",
		MaxOpenConns: 100,
	},
	Ingest: IngestConfig{
		Interval:    24 * time.Hour,
		OnStart:     true,
		Concurrency: 1,
		Timeout:     5 * time.Minute,
		UserAgent:   "dns-sinkhole/1.0",
		MaxBytes:    64 << 20,
	},
	Feeds: map[string]FeedConfig{
		"adware_malware_link": {URL: "https://raw.githubusercontent.com/StevenBlack/hosts/master/hosts", Enabled: true, Format: "hosts"},
		"fake_news":           {URL: "https://raw.githubusercontent.com/StevenBlack/hosts/master/alternates/fakenews-only/hosts", Enabled: true, Format: "hosts"},
		"gambling":            {URL: "https://raw.githubusercontent.com/StevenBlack/hosts/master/alternates/gambling-only/hosts", Enabled: true, Format: "hosts"},
		"porn":                {URL: "https://raw.githubusercontent.com/StevenBlack/hosts/master/alternates/porn-only/hosts", Enabled: true, Format: "hosts"},
		"social":              {URL: "https://raw.githubusercontent.com/StevenBlack/hosts/master/alternates/social-only/hosts", Enabled: true, Format: "hosts"},
	},
	Redis: RedisConfig{Channel: "sinkhole:blocklist:invalidate"},
	Admin: AdminConfig{Addr: "127.0.0.1:8053"},
}

// sections are the top-level keys that contain nested settings.
var sections = []string{"blocklist", "database", "upstream", "server", "ingest", "cache", "feeds", "redis", "admin", "log"}

// listKeys are split on spaces and commas when read from the environment.
var listKeys = map[string]bool{"upstream.servers": true}

// validIPPort validates whether the provided field value is a valid IP address and port combination.
func validIPPort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	ip, port, err := net.SplitHostPort(addr)
	if err != nil || ip == "" || port == "" {
		return false
	}
	if net.ParseIP(ip) == nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0 && portNum < 65536
}

// envKey maps SINKHOLE_SERVER_FALLBACK_PORT to server.fallback_port and
// SINKHOLE_FEEDS_FAKE_NEWS_ENABLED to feeds.fake_news.enabled.
func envKey(raw string) string {
	key := strings.ToLower(strings.TrimPrefix(raw, EnvPrefix))
	for _, s := range sections {
		rest, ok := strings.CutPrefix(key, s+"_")
		if !ok {
			continue
		}
		if s == "feeds" {
			if i := strings.LastIndex(rest, "_"); i > 0 {
				return s + "." + rest[:i] + "." + rest[i+1:]
			}
		}
		return s + "." + rest
	}
	return key
}

// envLoader loads SINKHOLE_ prefixed environment variables. It can be replaced in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = envKey(key)
			value = strings.TrimSpace(value)
			if key == "config" {
				return "", nil
			}
			if listKeys[key] && value != "" {
				return key, strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
			}
			return key, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader merges a YAML file over the defaults.
var fileLoader = func(k *koanf.Koanf, path string) error {
	return k.Load(file.Provider(path), yaml.Parser())
}

// registerValidation registers the "ip_port" rule.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("ip_port", validIPPort)
}

// Load builds the configuration from defaults, then the YAML file at path (or
// $SINKHOLE_CONFIG when path is empty), then the environment, and validates it.
func Load(path string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if err := fileLoader(k, path); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", path, err)
		}
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := cfg.check(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

// check covers rules that span fields.
func (c *AppConfig) check() error {
	var errs []error
	if c.Blocklist.Driver == "bolt" && c.Blocklist.Path == "" {
		errs = append(errs, errors.New("blocklist.path is required for the bolt driver"))
	}
	if c.Blocklist.Driver == "postgres" && (c.Database.Host == "" || c.Database.Name == "") {
		errs = append(errs, errors.New("database.host and database.name are required for the postgres driver"))
	}
	for name, f := range c.Feeds {
		if name != strings.ToLower(name) {
			errs = append(errs, fmt.Errorf("feeds.%s: feed keys must be lower case", name))
		}
		if f.Enabled && f.URL == "" {
			errs = append(errs, fmt.Errorf("feeds.%s: enabled feed needs a url", name))
		}
	}
	return errors.Join(errs...)
}

// BlocklistFeeds returns the configured feeds ordered by category. Feed keys
// are case-insensitive and become upper-case categories.
func (c *AppConfig) BlocklistFeeds() []domain.BlocklistFeed {
	names := make([]string, 0, len(c.Feeds))
	for name := range c.Feeds {
		names = append(names, name)
	}
	sort.Strings(names)

	feeds := make([]domain.BlocklistFeed, 0, len(names))
	for _, name := range names {
		f := c.Feeds[name]
		format := domain.FeedFormat(f.Format)
		if format == "" {
			format = domain.FeedFormatHosts
		}
		feeds = append(feeds, domain.BlocklistFeed{
			Category: domain.Category(strings.ToUpper(name)),
			URL:      f.URL,
			Enabled:  f.Enabled,
			Format:   format,
		})
	}
	return feeds
}
