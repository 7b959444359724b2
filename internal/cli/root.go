// Package cli implements the idlemine command line: `serve` runs the daemon,
// every other command drives a running daemon over its HTTP API.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tutu-network/idlemine/internal/client"
	"github.com/tutu-network/idlemine/internal/daemon"
	"github.com/tutu-network/idlemine/internal/logging"
)

var (
	flagHome     string
	flagAddr     string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "idlemine",
	Short:         "Idle mining sessions and reward ledger",
	Long:          `idlemine runs time-boxed mining sessions that accrue rewards from a user's level, upgrades, login streak, collectibles and referrals, and credits them to a ledger on collect.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := flagLogLevel
		if level == "" {
			level = "warn"
		}
		return logging.InitLogging(level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagHome, "home", "", "idlemine home directory (default $IDLEMINE_HOME or ~/.idlemine)")
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "", "daemon address (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func homeDir() (string, error) {
	if flagHome != "" {
		return flagHome, nil
	}
	return daemon.Home()
}

func loadConfig() (daemon.Config, string, error) {
	home, err := homeDir()
	if err != nil {
		return daemon.Config{}, "", err
	}
	cfg, err := daemon.LoadConfig(filepath.Join(home, daemon.ConfigFileName))
	return cfg, home, err
}

func newClient() (*client.Client, error) {
	addr := flagAddr
	if addr == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return nil, err
		}
		addr = cfg.API.Addr()
	}
	return client.New("http://" + addr), nil
}

// printJSON writes raw JSON indented to w.
func printJSON(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = w.Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
