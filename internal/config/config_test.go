package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "canteen.db", cfg.DB)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.MenuCacheTTL.Std())
	assert.Equal(t, 5, cfg.Compensation.Attempts)
	assert.Equal(t, 20*time.Millisecond, cfg.Compensation.Backoff.Std())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "canteen.yaml", `
db: /var/lib/canteen/canteen.db
addr: ":9090"
redis_addr: localhost:6379
menu_cache_ttl: 1m
compensation:
  attempts: 8
  backoff: 50ms
`)
	cfg := Default()
	require.NoError(t, loadFile(path, &cfg))

	assert.Equal(t, "/var/lib/canteen/canteen.db", cfg.DB)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, time.Minute, cfg.MenuCacheTTL.Std())
	assert.Equal(t, 8, cfg.Compensation.Attempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Compensation.Backoff.Std())
}

func TestLoadFile_UnknownField(t *testing.T) {
	path := writeFile(t, "canteen.yaml", "db: x.db\ndatabase_url: postgres://\n")
	cfg := Default()
	err := loadFile(path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")
}

func TestLoadFile_BadDuration(t *testing.T) {
	path := writeFile(t, "canteen.yaml", "menu_cache_ttl: soon\n")
	cfg := Default()
	assert.Error(t, loadFile(path, &cfg))
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, lookupFrom(map[string]string{
		EnvDB:                   "env.db",
		EnvJWTSecret:            "s3cret",
		EnvRedisAddr:            "cache:6379",
		EnvMenuCacheTTL:         "5s",
		EnvCompensationAttempts: "3",
		EnvCompensationBackoff:  "1ms",
	}))
	require.NoError(t, err)

	assert.Equal(t, "env.db", cfg.DB)
	assert.Equal(t, ":8080", cfg.Addr, "unset keys keep their value")
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, 5*time.Second, cfg.MenuCacheTTL.Std())
	assert.Equal(t, 3, cfg.Compensation.Attempts)
	assert.Equal(t, time.Millisecond, cfg.Compensation.Backoff.Std())
}

func TestApplyEnv_Invalid(t *testing.T) {
	tests := map[string]string{
		EnvMenuCacheTTL:         "forever",
		EnvCompensationAttempts: "many",
		EnvCompensationBackoff:  "-",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			cfg := Default()
			err := applyEnv(&cfg, lookupFrom(map[string]string{key: value}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "canteen.yaml", "db: file.db\naddr: \":7070\"\n")
	t.Setenv(EnvDB, "env.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.DB)
	assert.Equal(t, ":7070", cfg.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Compensation.Attempts = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.DB = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.MenuCacheTTL = Duration(-time.Second)
	assert.Error(t, cfg.Validate())
}
