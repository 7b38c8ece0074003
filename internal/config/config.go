// Package config loads server settings.
//
// Sources, lowest precedence first:
//
//  1. built-in defaults
//  2. a YAML file named by CONFIG_FILE
//  3. environment variables (a .env file is loaded into the environment
//     first, without overriding variables already set)
//
// Missing credentials are not a load error. The server starts and
// reports them through Missing, ShopifyMissing and the /debug/config page.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	GatewayLocal    = "local"
	GatewaySupabase = "supabase"
)

type Config struct {
	Port        int    `yaml:"port"`
	DBPath      string `yaml:"db_path"`
	GatewayMode string `yaml:"gateway_mode"`

	Supabase Supabase `yaml:"supabase"`
	Shopify  Shopify  `yaml:"shopify"`

	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	CookieSecure  bool          `yaml:"cookie_secure"`

	// RedisURL selects the Redis flow store. Empty keeps flows in memory.
	RedisURL string `yaml:"redis_url"`

	CORSOrigins     []string      `yaml:"cors_origins"`
	CatalogCacheTTL time.Duration `yaml:"catalog_cache_ttl"`
}

type Supabase struct {
	URL            string `yaml:"url"`
	AnonKey        string `yaml:"anon_key"`
	ServiceRoleKey string `yaml:"service_role_key"`
}

type Shopify struct {
	StoreURL    string `yaml:"store_url"`
	AccessToken string `yaml:"access_token"`
}

func Default() *Config {
	return &Config{
		Port:            8080,
		DBPath:          "data/snuffspec.db",
		GatewayMode:     GatewayLocal,
		SessionTTL:      12 * time.Hour,
		CatalogCacheTTL: 60 * time.Second,
	}
}

// Load reads .env files (".env" when none are named) and then Parse's the
// process environment. A missing default .env is not an error.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		if len(envFiles) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: loading env file: %w", err)
		}
	}
	return Parse(os.LookupEnv)
}

// Parse builds a Config from defaults, the optional YAML file and lookup.
func Parse(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	env := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	var errs []error
	if v, ok := env("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PORT: %w", err))
		}
		cfg.Port = port
	}
	setString(env, "DB_PATH", &cfg.DBPath)
	setString(env, "GATEWAY_MODE", &cfg.GatewayMode)
	setString(env, "SUPABASE_URL", &cfg.Supabase.URL)
	setString(env, "SUPABASE_ANON_KEY", &cfg.Supabase.AnonKey)
	setString(env, "SUPABASE_SERVICE_ROLE_KEY", &cfg.Supabase.ServiceRoleKey)
	setString(env, "SHOPIFY_STORE_URL", &cfg.Shopify.StoreURL)
	setString(env, "SHOPIFY_ACCESS_TOKEN", &cfg.Shopify.AccessToken)
	setString(env, "SESSION_SECRET", &cfg.SessionSecret)
	setString(env, "REDIS_URL", &cfg.RedisURL)

	if v, ok := env("SESSION_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SESSION_TTL: %w", err))
		}
		cfg.SessionTTL = d
	}
	if v, ok := env("CATALOG_CACHE_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CATALOG_CACHE_TTL: %w", err))
		}
		cfg.CatalogCacheTTL = d
	}
	if v, ok := env("COOKIE_SECURE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("COOKIE_SECURE: %w", err))
		}
		cfg.CookieSecure = b
	}
	if v, ok := env("CORS_ORIGINS"); ok {
		cfg.CORSOrigins = splitList(v)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	c.GatewayMode = strings.ToLower(c.GatewayMode)
	if c.GatewayMode != GatewayLocal && c.GatewayMode != GatewaySupabase {
		return fmt.Errorf("config: GATEWAY_MODE must be %q or %q, got %q", GatewayLocal, GatewaySupabase, c.GatewayMode)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: SESSION_TTL must be positive")
	}
	return nil
}

func setString(env func(string) (string, bool), key string, dst *string) {
	if v, ok := env(key); ok {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Missing names the required keys that are unset. The server refuses to
// start while it is non-empty.
func (c *Config) Missing() []string {
	var missing []string
	if c.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if c.GatewayMode == GatewaySupabase {
		if c.Supabase.URL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.Supabase.AnonKey == "" {
			missing = append(missing, "SUPABASE_ANON_KEY")
		}
		if c.Supabase.ServiceRoleKey == "" {
			missing = append(missing, "SUPABASE_SERVICE_ROLE_KEY")
		}
	}
	return missing
}

// ShopifyMissing names absent commerce keys. Only catalog pages need them.
func (c *Config) ShopifyMissing() []string {
	var missing []string
	if c.Shopify.StoreURL == "" {
		missing = append(missing, "SHOPIFY_STORE_URL")
	}
	if c.Shopify.AccessToken == "" {
		missing = append(missing, "SHOPIFY_ACCESS_TOKEN")
	}
	return missing
}

// Presence reports, per key, whether a value is set. Values themselves
// are never exposed.
func (c *Config) Presence() map[string]bool {
	return map[string]bool{
		"SUPABASE_URL":              c.Supabase.URL != "",
		"SUPABASE_ANON_KEY":         c.Supabase.AnonKey != "",
		"SUPABASE_SERVICE_ROLE_KEY": c.Supabase.ServiceRoleKey != "",
		"SHOPIFY_STORE_URL":         c.Shopify.StoreURL != "",
		"SHOPIFY_ACCESS_TOKEN":      c.Shopify.AccessToken != "",
		"SESSION_SECRET":            c.SessionSecret != "",
		"REDIS_URL":                 c.RedisURL != "",
	}
}

// PresentKeys lists the keys of Presence in a stable order, for logging.
func (c *Config) PresentKeys() []string {
	var keys []string
	for k, ok := range c.Presence() {
		if ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
