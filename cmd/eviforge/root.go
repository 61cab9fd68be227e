package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"eviforge/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "eviforge",
		Short: "Eviforge manages forensic cases: evidence intake, module jobs, and the chain of custody",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(cfg),
		newWorkerCmd(cfg),
		newCaseCmd(cfg, &jsonOutput),
		newIngestCmd(cfg, &jsonOutput),
		newRunCmd(cfg, &jsonOutput),
		newVerifyCmd(cfg, &jsonOutput),
		newModulesCmd(cfg, &jsonOutput),
		newExportCmd(cfg),
	)

	return cmd
}
