package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/veskora/screenpilot/internal/agent"
	"github.com/veskora/screenpilot/internal/config"
	"github.com/veskora/screenpilot/internal/llmclient"
	"github.com/veskora/screenpilot/internal/observability"
	"github.com/veskora/screenpilot/internal/screen"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <objective>",
		Short: "Runs the agent until the objective is met or the iteration budget is spent",
		Args:  cobra.ExactArgs(1),
		// Bind flags to their Viper keys here so command-line values
		// correctly override the config file and environment variables.
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("agent.max_iterations", cmd.Flags().Lookup("max-iterations")); err != nil {
				return err
			}
			if err := viper.BindPFlag("agent.input_text", cmd.Flags().Lookup("input-text")); err != nil {
				return err
			}
			if err := viper.BindPFlag("screen.start_url", cmd.Flags().Lookup("url")); err != nil {
				return err
			}
			if err := viper.BindPFlag("screen.remote_debugging_url", cmd.Flags().Lookup("attach")); err != nil {
				return err
			}
			return viper.BindPFlag("screen.headless", cmd.Flags().Lookup("headless"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// cmd.Context() carries signal-driven cancellation from main.go.
			ctx := cmd.Context()
			logger := observability.GetLogger()
			objective := strings.TrimSpace(args[0])

			// Re-resolve the config now that flags are bound, so the flag
			// overrides land with the right precedence.
			resolved, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to resolve config with flag overrides: %w", err)
			}
			cfg = resolved

			logger.Info("Starting agent run",
				zap.String("objective", objective),
				zap.Int("max_iterations", cfg.Agent.MaxIterations),
				zap.String("start_url", cfg.Screen.StartURL),
			)

			router, err := llmclient.NewRouterFromConfig(cfg.LLM, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize LLM router: %w", err)
			}
			defer func() {
				if err := router.Close(); err != nil {
					logger.Warn("Error closing LLM clients", zap.Error(err))
				}
			}()

			session, err := screen.NewSession(ctx, cfg.Screen, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize browser session: %w", err)
			}
			defer func() {
				if err := session.Close(); err != nil {
					logger.Warn("Error closing browser session", zap.Error(err))
				}
			}()

			// The driver serves as both the agent's screen and its input device.
			driver := screen.NewDriver(session.Executor(), cfg.Screen, logger)

			pilot := agent.New(cfg.Agent, logger, router, driver, driver, nil)
			result, err := pilot.Run(ctx, objective)
			if err != nil {
				return err
			}

			printRunResult(result)

			switch result.Outcome {
			case agent.StateDone:
				return nil
			case agent.StateAborted:
				if ctx.Err() != nil {
					return fmt.Errorf("run aborted by user signal")
				}
				return fmt.Errorf("run aborted: %s", result.Reason)
			default:
				return fmt.Errorf("run stopped without completing the objective: %s", result.Reason)
			}
		},
	}

	// Agent override flags.
	runCmd.Flags().IntP("max-iterations", "n", 10, "Maximum perception-action cycles. (Overrides config/env)")
	runCmd.Flags().String("input-text", "", "Text typed into input elements. (Overrides config/env)")

	// Screen override flags.
	runCmd.Flags().StringP("url", "u", "", "Page to open before the run starts. (Overrides config/env)")
	runCmd.Flags().String("attach", "", "DevTools websocket URL of a running browser to attach to. (Overrides config/env)")
	runCmd.Flags().Bool("headless", false, "Run the launched browser headless. (Overrides config/env)")

	return runCmd
}

// printRunResult writes the run summary and the full action transcript to
// stdout, mirroring what the models were shown.
func printRunResult(result *agent.RunResult) {
	fmt.Printf("\nRun %s finished: %s\n", result.RunID, result.Outcome)
	if result.Reason != "" {
		fmt.Printf("Reason: %s\n", result.Reason)
	}
	fmt.Printf("Iterations used: %d\n\n", result.Iterations)

	for _, line := range result.Transcript.Lines() {
		fmt.Println(line)
	}
}
