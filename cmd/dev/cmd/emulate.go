package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// EmulateCmd serves metrics and the sample stream from an emulated sensor so
// that dashboards can be developed without hardware.
func EmulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emulate",
		Short: "Run the monitor against an emulated SCD4x",
		RunE: func(cmd *cobra.Command, args []string) error {
			listen, err := cmd.Flags().GetString("listen")
			if err != nil {
				return fmt.Errorf("could not get listen flag: %w", err)
			}
			runArgs := []string{"run", "./cmd/airsense", "scd4x", "--adapter", "emulator", "serve", "--listen", listen}
			if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
				runArgs = append(runArgs, "--config", configPath)
			}
			slog.Info("starting emulated monitor", "listen", listen)
			run := exec.CommandContext(cmd.Context(), "go", runArgs...)
			run.Stdout = os.Stdout
			run.Stderr = os.Stderr
			if err := run.Run(); err != nil {
				return fmt.Errorf("emulated monitor failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("listen", "127.0.0.1:9120", "HTTP listen address")
	cmd.Flags().String("config", "", "YAML configuration file")
	return cmd
}
