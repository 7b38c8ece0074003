package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envMap turns a map into a lookup function.
func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, GatewayLocal, cfg.GatewayMode)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 60*time.Second, cfg.CatalogCacheTTL)
	assert.Equal(t, []string{"SESSION_SECRET"}, cfg.Missing())
}

func TestParse_Environment(t *testing.T) {
	cfg, err := Parse(envMap(map[string]string{
		"PORT":                      "9090",
		"DB_PATH":                   "/tmp/x.db",
		"GATEWAY_MODE":              "Supabase",
		"SUPABASE_URL":              "https://proj.supabase.co",
		"SUPABASE_ANON_KEY":         "anon",
		"SUPABASE_SERVICE_ROLE_KEY": "service",
		"SHOPIFY_STORE_URL":         "shop.myshopify.com",
		"SHOPIFY_ACCESS_TOKEN":      "shpat",
		"SESSION_SECRET":            "0123456789abcdef0123",
		"SESSION_TTL":               "2h",
		"REDIS_URL":                 "redis://localhost:6379/0",
		"CORS_ORIGINS":              "https://a.example, https://b.example,,",
		"COOKIE_SECURE":             "true",
		"CATALOG_CACHE_TTL":         "0s",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, GatewaySupabase, cfg.GatewayMode)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.CookieSecure)
	assert.Zero(t, cfg.CatalogCacheTTL)
	assert.Empty(t, cfg.Missing())
	assert.Empty(t, cfg.ShopifyMissing())
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad port":          {"PORT": "eighty"},
		"port out of range": {"PORT": "70000"},
		"bad mode":          {"GATEWAY_MODE": "firebase"},
		"bad ttl":           {"SESSION_TTL": "forever"},
		"zero ttl":          {"SESSION_TTL": "0s"},
		"bad bool":          {"COOKIE_SECURE": "maybe"},
		"bad cache ttl":     {"CATALOG_CACHE_TTL": "soon"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(envMap(env))
			assert.Error(t, err)
		})
	}
}

func TestMissing_SupabaseMode(t *testing.T) {
	cfg, err := Parse(envMap(map[string]string{
		"GATEWAY_MODE":   "supabase",
		"SESSION_SECRET": "0123456789abcdef0123",
		"SUPABASE_URL":   "https://proj.supabase.co",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"SUPABASE_ANON_KEY", "SUPABASE_SERVICE_ROLE_KEY"}, cfg.Missing())
	assert.Equal(t, []string{"SHOPIFY_STORE_URL", "SHOPIFY_ACCESS_TOKEN"}, cfg.ShopifyMissing())
}

func TestParse_YAMLFileUnderEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snuffspec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 7000
gateway_mode: supabase
session_ttl: 30m
catalog_cache_ttl: 5m
supabase:
  url: https://from-file.supabase.co
  anon_key: file-anon
cors_origins:
  - https://file.example
`), 0o600))

	cfg, err := Parse(envMap(map[string]string{
		"CONFIG_FILE":  path,
		"PORT":         "7001",
		"SUPABASE_URL": "https://from-env.supabase.co",
	}))
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Port, "env wins over file")
	assert.Equal(t, "https://from-env.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, "file-anon", cfg.Supabase.AnonKey)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	assert.Equal(t, []string{"https://file.example"}, cfg.CORSOrigins)
}

func TestParse_MissingYAMLFile(t *testing.T) {
	_, err := Parse(envMap(map[string]string{"CONFIG_FILE": "/does/not/exist.yaml"}))
	assert.Error(t, err)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SNUFFSPEC_TEST_ONLY=1\nSESSION_SECRET=from-dotenv-file-000\n"), 0o600))
	t.Setenv("SESSION_SECRET", "from-process-env-000")
	t.Cleanup(func() { os.Unsetenv("SNUFFSPEC_TEST_ONLY") })

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "1", os.Getenv("SNUFFSPEC_TEST_ONLY"))
	assert.Equal(t, "from-process-env-000", cfg.SessionSecret, "existing variables are not overridden")

	_, err = Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}

func TestPresence(t *testing.T) {
	cfg := Default()
	cfg.Shopify.StoreURL = "shop.myshopify.com"
	cfg.SessionSecret = "secret"

	p := cfg.Presence()
	assert.True(t, p["SHOPIFY_STORE_URL"])
	assert.False(t, p["SHOPIFY_ACCESS_TOKEN"])
	assert.Equal(t, []string{"SESSION_SECRET", "SHOPIFY_STORE_URL"}, cfg.PresentKeys())
}
