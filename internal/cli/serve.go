package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lbatista/gambit/internal/config"
	"github.com/lbatista/gambit/internal/daemon"
	"github.com/lbatista/gambit/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gambit daemon",
	Long: `Run the gambit daemon in the foreground. The daemon serves the
websocket gateway and processes tool calls until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	lg, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer lg.Close()

	d, err := daemon.New(cfg, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize daemon: %w", err)
	}
	return d.Run()
}
