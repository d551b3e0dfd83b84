package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/doser/app"
	"github.com/kilianp07/doser/config"
	"github.com/kilianp07/doser/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "doser",
	Short:        "Gravimetric liquid dosing controller",
	SilenceUsage: true,
	RunE:         run,
}

var console bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the controller loop, HTTP API and telemetry",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	runCmd.Flags().BoolVar(&console, "console", false, "drive the front panel from stdin (+ - c l d s)")
	rootCmd.AddCommand(runCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	if console {
		go func() {
			if err := runConsole(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), svc.Panel); err != nil {
				logger.New("console").Warnf("console stopped: %v", err)
			}
		}()
	}
	return svc.Run(ctx)
}

// newService loads the configuration and builds a service for one-shot
// commands. Unless realtime is set the rig runs on a simulated clock.
func newService(realtime bool, opts ...app.Option) (*config.Config, *app.Service, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if !realtime {
		opts = append(opts, app.WithClock(simClock()))
	}
	svc, err := app.New(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cfg, svc, nil
}
