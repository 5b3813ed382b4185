package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port       int           `env:"TEST_CFG_PORT" envDefault:"8080"`
	Currencies []string      `env:"TEST_CFG_CURRENCIES" envDefault:"EUR"`
	Horizon    time.Time     `env:"TEST_CFG_HORIZON" envDefault:"2100-01-01T00:00:00Z"`
	TTL        time.Duration `env:"TEST_CFG_TTL" envDefault:"1h"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"EUR"}, cfg.Currencies)
	assert.Equal(t, time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Horizon.UTC())
	assert.Equal(t, time.Hour, cfg.TTL)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_CURRENCIES", "EUR,CHF")

	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"EUR", "CHF"}, cfg.Currencies)
}

func TestLoad_InvalidType(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadDotEnv_SetsMissingVariablesOnly(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("TEST_CFG_DOTENV_A=from-file\nTEST_CFG_DOTENV_B=from-file\n"), 0o600))

	t.Setenv("TEST_CFG_DOTENV_B", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("TEST_CFG_DOTENV_A") })

	require.NoError(t, LoadDotEnv(file))

	assert.Equal(t, "from-file", os.Getenv("TEST_CFG_DOTENV_A"))
	assert.Equal(t, "from-env", os.Getenv("TEST_CFG_DOTENV_B"))
}

func TestLoadDotEnv_MissingFileIgnored(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}
