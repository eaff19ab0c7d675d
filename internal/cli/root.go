package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const VersionFile = "version.latest"

var rootCmd = &cobra.Command{
	Use:   "momentum_bot",
	Short: "Daily open-momentum ETF trader for Alpaca",
	Long: `momentum_bot runs one trading day per invocation.

At the open capture time it records the reference price, at the entry time
it buys the long instrument if the price is up (or the inverse instrument if
configured and the price is not up), and at the exit time it closes every
tracked position and writes a summary.

Paper trading is the default. Credentials come from APCA_API_KEY_ID and
APCA_API_SECRET_KEY (a .env file is read if present).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "optional YAML strategy file")
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	return execute(os.Args[1:])
}

func execute(args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}

func readVersion() string {
	version, err := os.ReadFile(VersionFile)
	if err != nil {
		return "v0.0.0-dev"
	}
	return strings.TrimSpace(string(version))
}
