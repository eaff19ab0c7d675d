package cli

import (
	"context"
	"fmt"
	"time"

	"etf_momentum/internal/config"
	"etf_momentum/internal/metrics"
	"etf_momentum/internal/notify"
	"etf_momentum/internal/telegram"

	"github.com/spf13/cobra"
)

var testNotifyCmd = &cobra.Command{
	Use:   "test-notify",
	Short: "Send one normal and one critical test notification",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return withCode(1, err)
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		n := buildNotifier(cfg, nil)
		events := []notify.Event{
			{Title: "Test notification", Body: "Normal channel is working."},
			{Title: "Test critical alert", Body: "Critical channel is working.", Severity: notify.Critical},
		}
		for _, ev := range events {
			if err := n.Notify(ctx, ev); err != nil {
				return withCode(1, fmt.Errorf("send %q: %w", ev.Title, err))
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Test notifications sent")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testNotifyCmd)
}

// buildNotifier always logs to the console and adds Telegram when configured.
func buildNotifier(cfg *config.Config, m *metrics.Metrics) *notify.Multi {
	channels := []notify.Channel{{Name: "console", Notifier: notify.Console{}}}
	if cfg.TelegramEnabled() {
		tg := telegram.NewClient(cfg.TelegramToken, cfg.TelegramChatID).WithDebug(cfg.Debug())
		channels = append(channels, notify.Channel{Name: "telegram", Notifier: notify.Telegram{Client: tg}})
	}
	return notify.NewMulti(m, channels...)
}
