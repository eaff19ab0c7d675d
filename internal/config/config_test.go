package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var botEnv = []string{
	"APCA_API_BASE_URL", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
	"BOT_LIVE", "BOT_TIMEZONE", "BOT_QUANTITY", "BOT_ENTRY_TIME", "BOT_EXIT_TIME",
	"BOT_INVERSE_SYMBOL", "BOT_REPORT_FORMAT", "BOT_PRICE_BACKOFF", "BOT_CALL_TIMEOUT",
	"BOT_MAX_POSITION_SIZE", "BOT_LONG_SYMBOL", "BOT_REFERENCE_SYMBOL", "BOT_LOG_LEVEL",
}

// cleanEnv sets the required keys and unsets every optional one for the test.
func cleanEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APCA_API_KEY_ID", "test_key_1234")
	t.Setenv("APCA_API_SECRET_KEY", "test_secret_9876")
	for _, k := range botEnv {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cleanEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "America/Los_Angeles", cfg.Timezone)
	assert.Equal(t, "TQQQ", cfg.ReferenceSymbol)
	assert.Equal(t, "SQQQ", cfg.InverseSymbol)
	assert.Equal(t, int64(1), cfg.Quantity)
	assert.Equal(t, "06:30", cfg.OpenCaptureTime)
	assert.Equal(t, "12:59", cfg.ExitTime)
	assert.True(t, cfg.PaperTrading)
	assert.Equal(t, PaperBaseURL, cfg.BaseURL)
	assert.Equal(t, 3, cfg.PriceRetries)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.Equal(t, "both", cfg.ReportFormat)
	assert.False(t, cfg.TelegramEnabled())
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.False(t, cfg.Debug())
}

func TestLoadConfig_YAMLThenEnv(t *testing.T) {
	cleanEnv(t)
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
reference_symbol: QQQ
long_symbol: TQQQ
inverse_symbol: ""
quantity: 5
entry_time: "07:15"
price_backoff: 2s
report_format: all
`), 0o644))
	t.Setenv("BOT_QUANTITY", "3")
	t.Setenv("BOT_CALL_TIMEOUT", "10")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "QQQ", cfg.ReferenceSymbol)
	assert.Empty(t, cfg.InverseSymbol)
	assert.Equal(t, int64(3), cfg.Quantity)
	assert.Equal(t, "07:15", cfg.EntryTime)
	assert.Equal(t, 2*time.Second, cfg.PriceBackoff)
	assert.Equal(t, 10*time.Second, cfg.CallTimeout)
	assert.Equal(t, "all", cfg.ReportFormat)
	assert.Equal(t, "TQQQ", cfg.LongSymbol)
}

func TestLoadConfig_MissingStrategyFile(t *testing.T) {
	cleanEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_LiveFlipsBaseURL(t *testing.T) {
	cleanEnv(t)
	t.Setenv("BOT_LIVE", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.PaperTrading)
	assert.Equal(t, LiveBaseURL, cfg.BaseURL)
	assert.NoError(t, cfg.Validate())

	t.Setenv("APCA_API_BASE_URL", PaperBaseURL)
	cfg, err = Load("")
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "points at paper")
}

func TestLogLevelDebug(t *testing.T) {
	cleanEnv(t)
	t.Setenv("BOT_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.True(t, cfg.Debug())
}

func TestSetLive(t *testing.T) {
	cleanEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.SetLive()
	assert.False(t, cfg.PaperTrading)
	assert.Equal(t, LiveBaseURL, cfg.BaseURL)

	t.Setenv("APCA_API_BASE_URL", PaperBaseURL)
	cfg, err = Load("")
	require.NoError(t, err)
	cfg.SetLive()
	assert.Equal(t, PaperBaseURL, cfg.BaseURL)
	assert.Error(t, cfg.Validate())
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.EntryTime = "06:00"
	cfg.Quantity = 0
	cfg.ReportFormat = "xml"
	cfg.CallTimeout = time.Minute
	cfg.TelegramToken = "token-only"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"APCA_API_KEY_ID",
		"entry_time 06:00 must be after open_capture_time 06:30",
		"quantity must be positive",
		"report_format",
		"call_timeout",
		"must be set together",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_BadCheckpoint(t *testing.T) {
	cfg := Default()
	cfg.APIKey, cfg.APISecret = "k", "s"
	cfg.ExitTime = "1pm"
	assert.ErrorContains(t, cfg.Validate(), "invalid time")
}

func TestLinesMaskSecrets(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "AKFAKEKEY1234"
	cfg.APISecret = "supersecretvalue"

	out := strings.Join(cfg.Lines(), "\n")
	assert.Contains(t, out, "APCA_API_KEY_ID=***1234")
	assert.NotContains(t, out, "supersecret")
	assert.Contains(t, out, "TELEGRAM_BOT_TOKEN=(unset)")
	assert.Contains(t, out, "mode=PAPER")
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_DUR", "1m30s")
	t.Setenv("X_SECS", "2.5")
	t.Setenv("X_BAD", "soon")
	t.Setenv("X_BOOL", "yes")

	assert.Equal(t, 90*time.Second, getEnvAsDuration("X_DUR", 0))
	assert.Equal(t, 2500*time.Millisecond, getEnvAsDuration("X_SECS", 0))
	assert.Equal(t, time.Second, getEnvAsDuration("X_BAD", time.Second))
	assert.True(t, getEnvAsBool("X_BOOL", true))
	assert.Equal(t, 7, getEnvAsInt("X_MISSING_INT", 7))
}
