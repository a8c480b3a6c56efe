package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Input.Dir)
	assert.Equal(t, ",", cfg.Input.CSVDelimiter)
	assert.Equal(t, "utf-8", cfg.Input.CSVCharset)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.Equal(t, "", cfg.Schema.Path)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "returns.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 30, cfg.FTP.TimeoutSecs)
	assert.InDelta(t, 4.0, cfg.FTP.RatePerSec, 0.001)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
input:
  dir: /srv/returns/inbox
  sheet: Returns
  csv_delimiter: ";"
output:
  dir: /srv/returns/out
store:
  driver: postgres
  database_url: postgres://localhost/returns
batch:
  concurrency: 8
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/returns/inbox", cfg.Input.Dir)
	assert.Equal(t, "Returns", cfg.Input.Sheet)
	assert.Equal(t, ";", cfg.Input.CSVDelimiter)
	assert.Equal(t, "/srv/returns/out", cfg.Output.Dir)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/returns", cfg.Store.DatabaseURL)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.FTP.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("RETURNS_STORE_DRIVER", "postgres")
	t.Setenv("RETURNS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("RETURNS_SERVER_PORT", "3000")
	t.Setenv("RETURNS_OUTPUT_DIR", "/tmp/artifacts")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/tmp/artifacts", cfg.Output.Dir)
}

func TestInputDelimiter(t *testing.T) {
	assert.Equal(t, ',', InputConfig{}.Delimiter())
	assert.Equal(t, ';', InputConfig{CSVDelimiter: ";"}.Delimiter())
	assert.Equal(t, '\t', InputConfig{CSVDelimiter: "\t"}.Delimiter())
}

func TestFTPTimeout(t *testing.T) {
	assert.Equal(t, 45*time.Second, FTPConfig{TimeoutSecs: 45}.Timeout())
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Input.Dir = "."
	cfg.Input.CSVDelimiter = ","
	cfg.Output.Dir = "out"
	cfg.Batch.Concurrency = 4
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "returns.db"
	cfg.FTP.TimeoutSecs = 30
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateConsolidate_AllPresent(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("consolidate"))
}

func TestValidateConsolidate_MissingDirs(t *testing.T) {
	cfg := validDefaults()
	cfg.Input.Dir = ""
	cfg.Output.Dir = ""

	err := cfg.Validate("consolidate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "input.dir is required")
	assert.Contains(t, err.Error(), "output.dir is required")
}

func TestValidateFetch_RequiresURL(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("fetch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ftp.url is required")

	cfg.FTP.URL = "ftp://drop.example.com/returns"
	assert.NoError(t, cfg.Validate("fetch"))
}

func TestValidateFetch_TimeoutBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.FTP.URL = "ftp://drop.example.com/returns"
	cfg.FTP.TimeoutSecs = 0

	err := cfg.Validate("fetch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ftp.timeout_secs must be > 0")
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_RequiresDatabaseURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.Concurrency = 0
	err := cfg.Validate("consolidate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 32")

	cfg.Batch.Concurrency = 33
	err = cfg.Validate("consolidate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 32")

	cfg.Batch.Concurrency = 32
	err = cfg.Validate("consolidate")
	assert.NoError(t, err)
}

func TestValidateDelimiter(t *testing.T) {
	cfg := validDefaults()
	cfg.Input.CSVDelimiter = ";;"

	err := cfg.Validate("consolidate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "input.csv_delimiter must be a single character")
}
