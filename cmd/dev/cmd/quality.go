package cmd

import (
	"fmt"
	"log/slog"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

// set by test.Integ; the serve tests of cmd/airsense skip themselves without it
const integrationEnv = "TEST_INTEGRATION_ENABLED"

type qualityCheck struct {
	use   string
	short string
	what  string
	run   func() error
}

func (q qualityCheck) command() *cobra.Command {
	return &cobra.Command{
		Use:   q.use,
		Short: q.short,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("running " + q.what)
			if err := q.run(); err != nil {
				return fmt.Errorf("failed to run %s: %w", q.what, err)
			}
			return nil
		},
	}
}

// TestCmd runs the unit tests: driver transactions against the mock bus,
// the emulator, adapters and the monitor.
func TestCmd() *cobra.Command {
	return qualityCheck{use: "test", short: "Run unit tests", what: "unit tests", run: test.Test}.command()
}

func LintCmd() *cobra.Command {
	return qualityCheck{use: "lint", short: "Run golangci-lint", what: "linting", run: test.Lint}.command()
}

// IntegrationTestCmd reruns the suite with integrationEnv set, which enables
// the end-to-end serve tests of cmd/airsense: an emulated SCD4x left
// measuring, the monitor, Prometheus metrics and the websocket stream.
func IntegrationTestCmd() *cobra.Command {
	return qualityCheck{
		use:   "integration-test",
		short: "Run the emulator backed end-to-end tests",
		what:  "integration tests with " + integrationEnv + "=1",
		run:   test.Integ,
	}.command()
}
