package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"etf_momentum/internal/config"
	"etf_momentum/internal/engine"
	"etf_momentum/internal/executor"
	"etf_momentum/internal/id"
	"etf_momentum/internal/ledger"
	"etf_momentum/internal/logger"
	"etf_momentum/internal/market/alpaca"
	"etf_momentum/internal/metrics"
	"etf_momentum/internal/notify"
	"etf_momentum/internal/oracle"
	"etf_momentum/internal/report"
	"etf_momentum/internal/schedule"
	"etf_momentum/internal/storage"
	"etf_momentum/internal/telegram"

	"github.com/spf13/cobra"
)

// LiveConfirmation must be typed before live trading starts.
const LiveConfirmation = "YES I WANT LIVE TRADING"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run today's trading day",
	Long: `Run waits for each checkpoint of the current trading day and exits
once positions are closed and the summary is written.

Example:
  momentum_bot run
  momentum_bot run --config strategy.yaml --live`,
	RunE: runRun,
}

var (
	runLive  bool
	runYes   bool
	runForce bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runLive, "live", false, "trade with real money")
	runCmd.Flags().BoolVar(&runYes, "yes", false, "skip the live trading confirmation")
	runCmd.Flags().BoolVar(&runForce, "force", false, "run even if validation fails")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return withCode(engine.ExitFatal, err)
	}
	if runLive {
		cfg.SetLive()
	}

	rot := logger.Setup(logger.Options{
		Filename:   cfg.LogFile,
		MaxSizeMB:  cfg.MaxLogSizeMB,
		MaxBackups: cfg.MaxLogBackups,
		KeepDays:   cfg.KeepLogsDays,
	})
	if rot != nil {
		defer func() {
			log.SetOutput(os.Stdout)
			rot.Close()
		}()
	}

	if err := cfg.Validate(); err != nil {
		if !runForce {
			return withCode(engine.ExitFatal, fmt.Errorf("invalid configuration:\n%w", err))
		}
		log.Printf("Warning: continuing despite invalid configuration (--force): %v", err)
	}

	if !cfg.PaperTrading && !runYes {
		if !confirmLive(cmd.InOrStdin(), cmd.OutOrStdout()) {
			return withCode(engine.ExitFatal, errors.New("live trading not confirmed"))
		}
	}

	log.Printf("Momentum Bot %s starting", readVersion())
	cfg.Print()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := runDay(ctx, stop, cfg)
	if code != engine.ExitOK {
		return withCode(code, nil)
	}
	return nil
}

// runDay wires the components and runs the engine once. A panic outside
// the checkpoint handlers still ends in the fault exit code.
func runDay(ctx context.Context, stop context.CancelFunc, cfg *config.Config) (code int) {
	var notifier notify.Notifier
	defer func() {
		if r := recover(); r != nil {
			code = reportPanic(ctx, notifier, r)
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		log.Printf("ERROR: %v", err)
		return engine.ExitFatal
	}
	open, entry, exit, err := cfg.Checkpoints()
	if err != nil {
		log.Printf("ERROR: %v", err)
		return engine.ExitFatal
	}

	m := metrics.New()
	broker := alpaca.NewProvider(alpaca.Options{
		APIKey:      cfg.APIKey,
		APISecret:   cfg.APISecret,
		BaseURL:     cfg.BaseURL,
		Feed:        cfg.DataFeed,
		CallTimeout: cfg.CallTimeout,
	})
	prices := oracle.New(broker, oracle.Options{
		Retries:     cfg.PriceRetries,
		Backoff:     cfg.PriceBackoff,
		CallTimeout: cfg.CallTimeout,
		RatePerSec:  cfg.PriceRatePerSec,
	}, m)
	positions := ledger.New(broker, cfg.CallTimeout)
	notifier = buildNotifier(cfg, m)
	exec := executor.New(broker, prices, positions, notifier, m, executor.Options{
		ClientOrderPrefix: cfg.ClientOrderPrefix,
		FillWait:          cfg.FillWait,
		CallTimeout:       cfg.CallTimeout,
		MaxPositionSize:   cfg.MaxPositionSize,
	})

	sink, err := report.Build(cfg.ReportFormat, cfg.ReportDir, cfg.JournalPath, m)
	if err != nil {
		log.Printf("ERROR: %v", err)
		return engine.ExitFatal
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Printf("Warning: closing report sinks: %v", err)
		}
	}()

	eng := engine.New(engine.Config{
		Reference:         cfg.ReferenceSymbol,
		Long:              cfg.LongSymbol,
		Inverse:           cfg.InverseSymbol,
		Quantity:          cfg.Quantity,
		Open:              open,
		Entry:             entry,
		Exit:              exit,
		OpenSettleDelay:   cfg.OpenSettleDelay,
		ConnectRetries:    cfg.ConnectRetries,
		ConnectRetryDelay: cfg.ConnectRetryDelay,
		MaxClockDrift:     cfg.MaxClockDrift,
		RunOnWeekends:     cfg.RunOnWeekends,
		CheckHolidays:     cfg.CheckHolidays,
		CallTimeout:       cfg.CallTimeout,
	}, engine.Deps{
		Waiter:   schedule.New(loc, cfg.SchedulerTick),
		Oracle:   prices,
		Ledger:   positions,
		Executor: exec,
		Session:  broker,
		Store:    storage.New(cfg.StateFile),
		Sink:     sink,
		Notifier: notifier,
		Metrics:  m,
		RunID:    id.New(),
	})

	// Side goroutines stop with the run, not with the signal context, so
	// /status keeps answering while the summary is written.
	sideCtx, sideCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer sideCancel()

	if cfg.MetricsAddr != "" {
		go m.Serve(sideCtx, cfg.MetricsAddr, func() (string, bool) {
			st := eng.State()
			return string(st), st != engine.Cancelled
		})
	}
	if cfg.TelegramEnabled() {
		tg := telegram.NewClient(cfg.TelegramToken, cfg.TelegramChatID).WithDebug(cfg.Debug())
		go tg.Listen(sideCtx, eng.CommandHandler(cfg.Lines(), stop))
	}

	res := eng.Run(ctx)
	if res.Err != nil {
		log.Printf("Run ended in %s: %v", res.State, res.Err)
	} else {
		log.Printf("Run ended in %s", res.State)
	}
	return res.ExitCode
}

// reportPanic logs a panic that escaped the engine and raises a critical
// alert when a notifier exists. It returns the fault exit code.
func reportPanic(ctx context.Context, n notify.Notifier, r any) int {
	log.Printf("CRITICAL: unhandled panic: %v\n%s", r, debug.Stack())
	notify.Send(context.WithoutCancel(ctx), n, notify.Event{
		Title:    "Bot crashed",
		Body:     fmt.Sprintf("Unhandled panic: %v. Check open positions manually.", r),
		Severity: notify.Critical,
	})
	return engine.ExitFault
}

// confirmLive asks the operator to type LiveConfirmation.
func confirmLive(in io.Reader, out io.Writer) bool {
	fmt.Fprintln(out, "⚠️  LIVE TRADING: real orders will be placed with real money.")
	fmt.Fprintf(out, "Type %q to continue: ", LiveConfirmation)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimSpace(line) == LiveConfirmation
}
