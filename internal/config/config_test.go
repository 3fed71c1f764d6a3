// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthhub/healthhub/pkg/errutil"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "healthhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Database.OpTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "healthhub_session", cfg.Session.CookieName)
	assert.True(t, cfg.Session.CookieSecure)
	assert.Equal(t, SessionBackendDatabase, cfg.Session.Backend)
	assert.InDelta(t, 5.0, cfg.Security.RateLimit, 0)
	assert.Equal(t, "json", cfg.Log.Format)

	err = cfg.Validate()
	require.Error(t, err, "postgres without a URL is not runnable")
	assert.Contains(t, err.Error(), "database.url")
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9000"
database:
  driver: sqlite
  sqlite_path: /var/lib/healthhub/auth.db
session:
  ttl: 2h
  cookie_secure: false
log:
  level: debug
`)

	t.Run("file overrides defaults", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		cfg, err := Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.Server.Addr)
		assert.Equal(t, DriverSQLite, cfg.Database.Driver)
		assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
		assert.False(t, cfg.Session.CookieSecure)
		assert.Equal(t, "debug", cfg.Log.Level)
		require.NoError(t, cfg.Validate())
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("HEALTHHUB_SERVER__ADDR", ":9100")
		t.Setenv("HEALTHHUB_SESSION__TTL", "30m")
		t.Setenv("HEALTHHUB_SESSION__COOKIE_NAME", "hh")
		cfg, err := Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, ":9100", cfg.Server.Addr)
		assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
		assert.Equal(t, "hh", cfg.Session.CookieName)
	})

	t.Run("DATABASE_URL fills database.url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://hh:secret@db/healthhub")
		cfg, err := Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, "postgres://hh:secret@db/healthhub", cfg.Database.URL)
		require.NoError(t, cfg.Validate())
	})

	t.Run("prefixed variable beats DATABASE_URL", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://generic/db")
		t.Setenv("HEALTHHUB_DATABASE__URL", "postgres://specific/db")
		cfg, err := Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, "postgres://specific/db", cfg.Database.URL)
	})

	t.Run("flags override everything", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("HEALTHHUB_LOG__LEVEL", "warn")

		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		RegisterFlags(fs)
		require.NoError(t, fs.Parse([]string{"--log-level=error", "--database-driver=memory"}))

		cfg, err := Load(path, fs)
		require.NoError(t, err)
		assert.Equal(t, "error", cfg.Log.Level)
		assert.Equal(t, DriverMemory, cfg.Database.Driver)
		assert.Equal(t, ":9000", cfg.Server.Addr, "unset flags leave earlier layers alone")
	})
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	cfg, err := Load("", nil)
	require.NoError(t, err)
	cfg.Database.Driver = DriverMemory
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"sqlite without path", func(c *Config) { c.Database.Driver = DriverSQLite; c.Database.SQLitePath = "" }, "database.sqlite_path"},
		{"unknown session backend", func(c *Config) { c.Session.Backend = "memcached" }, "session.backend"},
		{"redis without addr", func(c *Config) { c.Session.Backend = SessionBackendRedis; c.Redis.Addr = "" }, "redis.addr"},
		{"zero ttl", func(c *Config) { c.Session.TTL = 0 }, "session.ttl"},
		{"bad cookie name", func(c *Config) { c.Session.CookieName = "a b" }, "session.cookie_name"},
		{"bad origin glob", func(c *Config) { c.Security.AllowedOrigins = []string{"https://[a-"} }, "security.allowed_origins"},
		{"burst without room", func(c *Config) { c.Security.RateBurst = 0 }, "security.rate_burst"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("reports every problem", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Log.Format = "xml"
		cfg.Log.Level = "trace"
		err := cfg.Validate()
		require.Error(t, err)
		errutil.AssertErrorContext(t, err, "problems", 2)
	})

	t.Run("rate limiting off needs no burst", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Security.RateLimit = 0
		cfg.Security.RateBurst = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestRedacted(t *testing.T) {
	cfg := validConfig(t)
	cfg.Database.URL = "postgres://hh:secret@db:5432/healthhub?sslmode=disable"
	cfg.Redis.Password = "hunter2"

	out := cfg.Redacted()
	assert.Equal(t, "postgres://hh:REDACTED@db:5432/healthhub?sslmode=disable", out.Database.URL)
	assert.Equal(t, "REDACTED", out.Redis.Password)
	assert.Equal(t, "hunter2", cfg.Redis.Password, "original untouched")

	assert.Equal(t, "postgres://db/healthhub", redactURL("postgres://db/healthhub"))
	assert.Equal(t, "postgres://hh@db/healthhub", redactURL("postgres://hh@db/healthhub"))
}

func TestGenerateSchema(t *testing.T) {
	raw, err := GenerateSchema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, SchemaID, doc["$id"])

	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"server", "database", "session", "redis", "security", "log"} {
		assert.Contains(t, props, key)
	}
}

func TestValidateYAML(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"empty", "", ""},
		{"partial override", "session:\n  ttl: 1h\nlog:\n  format: text\n", ""},
		{"full", "server:\n  addr: ':8080'\ndatabase:\n  driver: sqlite\n  connect_retries: 3\nsecurity:\n  allowed_origins: ['https://*.example.com']\n  rate_limit: 2.5\n", ""},
		{"unknown key", "sesion:\n  ttl: 1h\n", "CONFIG_SCHEMA_INVALID"},
		{"bad enum", "database:\n  driver: mysql\n", "CONFIG_SCHEMA_INVALID"},
		{"wrong type", "session:\n  cookie_secure: maybe\n", "CONFIG_SCHEMA_INVALID"},
		{"not yaml", "server: [unclosed", "CONFIG_YAML_INVALID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateYAML([]byte(tt.doc))
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantErr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "session.cookie_name", envKey("HEALTHHUB_SESSION__COOKIE_NAME"))
	assert.Equal(t, "log.level", envKey("HEALTHHUB_LOG__LEVEL"))
	assert.False(t, strings.Contains(envKey("HEALTHHUB_SERVER__ADDR"), "healthhub"))
}

func TestLoad_SQLitePathDefaultsToDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/srv/data")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "/srv/data/healthhub/healthhub.db", cfg.Database.SQLitePath)

	path := writeFile(t, "database:\n  sqlite_path: /tmp/explicit.db\n")
	cfg, err = Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/explicit.db", cfg.Database.SQLitePath)
}
