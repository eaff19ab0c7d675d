package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"etf_momentum/internal/market/alpaca"
	"etf_momentum/internal/report"
	"etf_momentum/internal/schedule"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	PaperBaseURL = alpaca.PaperBaseURL
	LiveBaseURL  = alpaca.LiveBaseURL
)

// Config holds everything the bot reads at startup. It is loaded once and
// not modified afterwards.
type Config struct {
	// Secrets come from the environment only.
	APIKey         string `yaml:"-"`
	APISecret      string `yaml:"-"`
	BaseURL        string `yaml:"-"`
	TelegramToken  string `yaml:"-"`
	TelegramChatID string `yaml:"-"`

	Timezone        string `yaml:"timezone"`
	ReferenceSymbol string `yaml:"reference_symbol"`
	LongSymbol      string `yaml:"long_symbol"`
	InverseSymbol   string `yaml:"inverse_symbol"`
	Quantity        int64  `yaml:"quantity"`
	MaxPositionSize int64  `yaml:"max_position_size"`

	OpenCaptureTime string `yaml:"open_capture_time"`
	EntryTime       string `yaml:"entry_time"`
	ExitTime        string `yaml:"exit_time"`

	PaperTrading bool   `yaml:"paper_trading"`
	DataFeed     string `yaml:"data_feed"`

	PriceRetries    int           `yaml:"price_retries"`
	PriceBackoff    time.Duration `yaml:"price_backoff"`
	PriceRatePerSec float64       `yaml:"price_rate_per_sec"`
	CallTimeout     time.Duration `yaml:"call_timeout"`
	FillWait        time.Duration `yaml:"fill_wait"`
	OpenSettleDelay time.Duration `yaml:"open_settle_delay"`

	ConnectRetries    int           `yaml:"connect_retries"`
	ConnectRetryDelay time.Duration `yaml:"connect_retry_delay"`
	SchedulerTick     time.Duration `yaml:"scheduler_tick"`
	MaxClockDrift     time.Duration `yaml:"max_clock_drift"`
	RunOnWeekends     bool          `yaml:"run_on_weekends"`
	CheckHolidays     bool          `yaml:"check_holidays"`

	ReportDir         string `yaml:"report_dir"`
	ReportFormat      string `yaml:"report_format"`
	JournalPath       string `yaml:"journal_path"`
	StateFile         string `yaml:"state_file"`
	ClientOrderPrefix string `yaml:"client_order_prefix"`

	LogFile       string `yaml:"log_file"`
	LogLevel      string `yaml:"log_level"`
	MaxLogSizeMB  int64  `yaml:"max_log_size_mb"`
	MaxLogBackups int    `yaml:"max_log_backups"`
	KeepLogsDays  int    `yaml:"keep_logs_days"`

	MetricsAddr string `yaml:"metrics_addr"`

	baseURLFromEnv bool
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Timezone:          "America/Los_Angeles",
		ReferenceSymbol:   "TQQQ",
		LongSymbol:        "TQQQ",
		InverseSymbol:     "SQQQ",
		Quantity:          1,
		MaxPositionSize:   10,
		OpenCaptureTime:   "06:30",
		EntryTime:         "07:00",
		ExitTime:          "12:59",
		PaperTrading:      true,
		DataFeed:          "iex",
		PriceRetries:      3,
		PriceBackoff:      time.Second,
		PriceRatePerSec:   3,
		CallTimeout:       30 * time.Second,
		FillWait:          5 * time.Second,
		OpenSettleDelay:   5 * time.Second,
		ConnectRetries:    3,
		ConnectRetryDelay: 60 * time.Second,
		SchedulerTick:     15 * time.Second,
		MaxClockDrift:     5 * time.Second,
		RunOnWeekends:     false,
		CheckHolidays:     true,
		ReportDir:         "logs",
		ReportFormat:      report.FormatBoth,
		StateFile:         "day_state.json",
		ClientOrderPrefix: "mom",
		LogFile:           "momentum_bot.log",
		LogLevel:          "INFO",
		MaxLogSizeMB:      100,
		MaxLogBackups:     5,
		KeepLogsDays:      30,
	}
}

// Load builds the configuration from defaults, the optional YAML strategy
// file at path, a .env file, and environment variables, in increasing
// precedence. It does not validate; call Validate.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: No .env file found, using system environment variables")
	}

	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read strategy file: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse strategy file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.APIKey = getEnv("APCA_API_KEY_ID", c.APIKey)
	c.APISecret = getEnv("APCA_API_SECRET_KEY", c.APISecret)
	if u := getEnv("APCA_API_BASE_URL", ""); u != "" {
		c.BaseURL = u
		c.baseURLFromEnv = true
	}
	c.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramToken)
	c.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.TelegramChatID)

	c.Timezone = getEnv("BOT_TIMEZONE", c.Timezone)
	c.ReferenceSymbol = strings.ToUpper(getEnv("BOT_REFERENCE_SYMBOL", c.ReferenceSymbol))
	c.LongSymbol = strings.ToUpper(getEnv("BOT_LONG_SYMBOL", c.LongSymbol))
	c.InverseSymbol = strings.ToUpper(getEnv("BOT_INVERSE_SYMBOL", c.InverseSymbol))
	c.Quantity = getEnvAsInt64("BOT_QUANTITY", c.Quantity)
	c.MaxPositionSize = getEnvAsInt64("BOT_MAX_POSITION_SIZE", c.MaxPositionSize)

	c.OpenCaptureTime = getEnv("BOT_OPEN_CAPTURE_TIME", c.OpenCaptureTime)
	c.EntryTime = getEnv("BOT_ENTRY_TIME", c.EntryTime)
	c.ExitTime = getEnv("BOT_EXIT_TIME", c.ExitTime)

	if getEnvAsBool("BOT_LIVE", false) {
		c.PaperTrading = false
	}
	c.DataFeed = getEnv("BOT_DATA_FEED", c.DataFeed)

	c.PriceRetries = getEnvAsInt("BOT_PRICE_RETRIES", c.PriceRetries)
	c.PriceBackoff = getEnvAsDuration("BOT_PRICE_BACKOFF", c.PriceBackoff)
	c.PriceRatePerSec = getEnvAsFloat64("BOT_PRICE_RATE_PER_SEC", c.PriceRatePerSec)
	c.CallTimeout = getEnvAsDuration("BOT_CALL_TIMEOUT", c.CallTimeout)
	c.FillWait = getEnvAsDuration("BOT_FILL_WAIT", c.FillWait)
	c.OpenSettleDelay = getEnvAsDuration("BOT_OPEN_SETTLE_DELAY", c.OpenSettleDelay)

	c.ConnectRetries = getEnvAsInt("BOT_CONNECT_RETRIES", c.ConnectRetries)
	c.ConnectRetryDelay = getEnvAsDuration("BOT_CONNECT_RETRY_DELAY", c.ConnectRetryDelay)
	c.SchedulerTick = getEnvAsDuration("BOT_SCHEDULER_TICK", c.SchedulerTick)
	c.MaxClockDrift = getEnvAsDuration("BOT_MAX_CLOCK_DRIFT", c.MaxClockDrift)
	c.RunOnWeekends = getEnvAsBool("BOT_RUN_ON_WEEKENDS", c.RunOnWeekends)
	c.CheckHolidays = getEnvAsBool("BOT_CHECK_HOLIDAYS", c.CheckHolidays)

	c.ReportDir = getEnv("BOT_REPORT_DIR", c.ReportDir)
	c.ReportFormat = strings.ToLower(getEnv("BOT_REPORT_FORMAT", c.ReportFormat))
	c.JournalPath = getEnv("BOT_JOURNAL_PATH", c.JournalPath)
	c.StateFile = getEnv("BOT_STATE_FILE", c.StateFile)
	c.ClientOrderPrefix = getEnv("BOT_CLIENT_ORDER_PREFIX", c.ClientOrderPrefix)

	c.LogFile = getEnv("BOT_LOG_FILE", c.LogFile)
	c.LogLevel = strings.ToUpper(getEnv("BOT_LOG_LEVEL", c.LogLevel))
	c.MaxLogSizeMB = getEnvAsInt64("BOT_MAX_LOG_SIZE_MB", c.MaxLogSizeMB)
	c.MaxLogBackups = getEnvAsInt("BOT_MAX_LOG_BACKUPS", c.MaxLogBackups)
	c.KeepLogsDays = getEnvAsInt("BOT_KEEP_LOGS_DAYS", c.KeepLogsDays)

	c.MetricsAddr = getEnv("BOT_METRICS_ADDR", c.MetricsAddr)

	if c.BaseURL == "" {
		c.BaseURL = PaperBaseURL
		if !c.PaperTrading {
			c.BaseURL = LiveBaseURL
		}
	}
}

// SetLive switches to live trading. An explicit APCA_API_BASE_URL is kept
// so Validate can flag a paper URL.
func (c *Config) SetLive() {
	c.PaperTrading = false
	if !c.baseURLFromEnv {
		c.BaseURL = LiveBaseURL
	}
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("APCA_API_KEY_ID is not set"))
	}
	if c.APISecret == "" {
		errs = append(errs, errors.New("APCA_API_SECRET_KEY is not set"))
	}
	if c.LongSymbol == "" {
		errs = append(errs, errors.New("long_symbol is required"))
	}
	if c.ReferenceSymbol == "" {
		errs = append(errs, errors.New("reference_symbol is required"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}

	open, entry, exit, err := c.Checkpoints()
	if err != nil {
		errs = append(errs, err)
	} else {
		if !open.Before(entry) {
			errs = append(errs, fmt.Errorf("entry_time %s must be after open_capture_time %s", entry, open))
		}
		if !entry.Before(exit) {
			errs = append(errs, fmt.Errorf("exit_time %s must be after entry_time %s", exit, entry))
		}
	}

	if c.Quantity <= 0 {
		errs = append(errs, fmt.Errorf("quantity must be positive, got %d", c.Quantity))
	}
	if c.MaxPositionSize < c.Quantity {
		errs = append(errs, fmt.Errorf("max_position_size %d is below quantity %d", c.MaxPositionSize, c.Quantity))
	}
	if c.PriceRetries < 1 {
		errs = append(errs, fmt.Errorf("price_retries must be at least 1, got %d", c.PriceRetries))
	}
	if c.ConnectRetries < 1 {
		errs = append(errs, fmt.Errorf("connect_retries must be at least 1, got %d", c.ConnectRetries))
	}
	if c.CallTimeout <= 0 || c.CallTimeout > 30*time.Second {
		errs = append(errs, fmt.Errorf("call_timeout must be in (0s, 30s], got %s", c.CallTimeout))
	}
	if !report.ValidFormat(c.ReportFormat) {
		errs = append(errs, fmt.Errorf("report_format %q must be one of text, csv, json, both, all", c.ReportFormat))
	}
	if c.DataFeed != "iex" && c.DataFeed != "sip" {
		errs = append(errs, fmt.Errorf("data_feed %q must be iex or sip", c.DataFeed))
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == "") {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together"))
	}
	if !c.PaperTrading && c.BaseURL == PaperBaseURL {
		errs = append(errs, errors.New("live trading requested but APCA_API_BASE_URL points at paper"))
	}
	return errors.Join(errs...)
}

// Location loads the trading time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Checkpoints parses the three daily checkpoint times.
func (c *Config) Checkpoints() (open, entry, exit schedule.Checkpoint, err error) {
	if open, err = schedule.ParseCheckpoint(schedule.OpenCapture, c.OpenCaptureTime); err != nil {
		return
	}
	if entry, err = schedule.ParseCheckpoint(schedule.EntryDecision, c.EntryTime); err != nil {
		return
	}
	exit, err = schedule.ParseCheckpoint(schedule.ExitClose, c.ExitTime)
	return
}

// Debug reports whether log_level asks for debug output.
func (c *Config) Debug() bool {
	return c.LogLevel == "DEBUG"
}

// TelegramEnabled reports whether Telegram credentials are present.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

// Mask hides all but the last 4 characters of a secret.
func Mask(val string) string {
	if val == "" {
		return "(unset)"
	}
	if len(val) > 4 {
		return "***" + val[len(val)-4:]
	}
	return "***"
}

// Lines renders the effective configuration, secrets masked, one key per line.
func (c *Config) Lines() []string {
	mode := "PAPER"
	if !c.PaperTrading {
		mode = "LIVE"
	}
	kv := map[string]string{
		"APCA_API_KEY_ID":     Mask(c.APIKey),
		"APCA_API_SECRET_KEY": Mask(c.APISecret),
		"APCA_API_BASE_URL":   c.BaseURL,
		"TELEGRAM_BOT_TOKEN":  Mask(c.TelegramToken),
		"TELEGRAM_CHAT_ID":    Mask(c.TelegramChatID),
		"mode":                mode,
		"timezone":            c.Timezone,
		"symbols":             fmt.Sprintf("reference=%s long=%s inverse=%s", c.ReferenceSymbol, c.LongSymbol, orNone(c.InverseSymbol)),
		"quantity":            fmt.Sprintf("%d (max position %d)", c.Quantity, c.MaxPositionSize),
		"schedule":            fmt.Sprintf("open=%s entry=%s exit=%s", c.OpenCaptureTime, c.EntryTime, c.ExitTime),
		"data_feed":           c.DataFeed,
		"price":               fmt.Sprintf("retries=%d backoff=%s rate=%.1f/s", c.PriceRetries, c.PriceBackoff, c.PriceRatePerSec),
		"timeouts":            fmt.Sprintf("call=%s fill_wait=%s settle=%s", c.CallTimeout, c.FillWait, c.OpenSettleDelay),
		"connect":             fmt.Sprintf("retries=%d delay=%s", c.ConnectRetries, c.ConnectRetryDelay),
		"calendar":            fmt.Sprintf("weekends=%t holidays=%t tick=%s drift=%s", c.RunOnWeekends, c.CheckHolidays, c.SchedulerTick, c.MaxClockDrift),
		"reports":             fmt.Sprintf("dir=%s format=%s journal=%s", c.ReportDir, c.ReportFormat, orNone(c.JournalPath)),
		"state_file":          c.StateFile,
		"logging":             fmt.Sprintf("file=%s level=%s size=%dMB backups=%d keep=%dd", c.LogFile, c.LogLevel, c.MaxLogSizeMB, c.MaxLogBackups, c.KeepLogsDays),
		"metrics_addr":        orNone(c.MetricsAddr),
	}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+kv[k])
	}
	return lines
}

// Print logs the effective configuration.
func (c *Config) Print() {
	log.Println("--- Effective Configuration ---")
	for _, l := range c.Lines() {
		log.Println(l)
	}
	log.Println("-------------------------------")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
