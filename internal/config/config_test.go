package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/locks"
)

// resetViper clears viper's global state between tests.
func resetViper() {
	viper.Reset()
}

// writeTempYAML writes a temporary YAML file with given content and returns its path.
func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)
	return path
}

func TestLoadDefaults(t *testing.T) {
	resetViper()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, "read_committed", cfg.Cache.Isolation)
	assert.Equal(t, 10000, cfg.Memory.MaxEntries)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFromFile(t *testing.T) {
	resetViper()

	yaml := `
app:
  name: custom
  environment: production
cache:
  backend: sqlite
  isolation: serializable
sqlite:
  path: /tmp/custom.db
`
	path := writeTempYAML(t, yaml)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "custom", cfg.App.Name)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, BackendSQLite, cfg.Cache.Backend)
	assert.Equal(t, "/tmp/custom.db", cfg.SQLite.Path)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	resetViper()

	yaml := `
app:
  name: file-name
cache:
  backend: memory
`
	path := writeTempYAML(t, yaml)

	require.NoError(t, os.Setenv("TAGCACHE_APP_NAME", "env-name"))
	t.Cleanup(func() { _ = os.Unsetenv("TAGCACHE_APP_NAME") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-name", cfg.App.Name, "env should override file")
}

func TestLoadRejectsMissingRedisAddr(t *testing.T) {
	resetViper()

	yaml := `
cache:
  backend: redis
redis:
  addr: ""
`
	path := writeTempYAML(t, yaml)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingPostgresFields(t *testing.T) {
	resetViper()

	yaml := `
cache:
  backend: postgres
postgres:
  host: ""
  database: ""
`
	path := writeTempYAML(t, yaml)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	resetViper()

	yaml := `
app:
  environment: sandbox
`
	path := writeTempYAML(t, yaml)

	_, err := Load(path)
	require.Error(t, err)
}

func TestIsDevelopmentIsProduction(t *testing.T) {
	c := &Config{App: AppConfig{Environment: "development"}}
	assert.True(t, c.IsDevelopment())
	assert.False(t, c.IsProduction())

	c.App.Environment = "production"
	assert.False(t, c.IsDevelopment())
	assert.True(t, c.IsProduction())
}

func TestIsolationLevelMapsEveryKnownName(t *testing.T) {
	cases := map[string]locks.Level{
		"read_uncommitted": locks.ReadUncommitted,
		"read_committed":   locks.ReadCommitted,
		"repeatable_read":  locks.RepeatableRead,
		"serializable":     locks.Serializable,
	}
	for name, want := range cases {
		c := &Config{Cache: CacheConfig{Isolation: name}}
		got, err := c.IsolationLevel()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestIsolationLevelRejectsUnknownName(t *testing.T) {
	c := &Config{Cache: CacheConfig{Isolation: "bogus"}}
	_, err := c.IsolationLevel()
	require.Error(t, err)
}
