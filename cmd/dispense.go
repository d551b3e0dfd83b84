package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilianp07/doser/core/events"
	"github.com/kilianp07/doser/core/trace"
	"github.com/kilianp07/doser/infra/sim"
)

var (
	realtime     bool
	targetGrams  float64
	knownWeightG float64
)

var dispenseCmd = &cobra.Command{
	Use:   "dispense <liquid>",
	Short: "Run one dosing session and print its outcome",
	Args:  cobra.ExactArgs(1),
	RunE:  runDispense,
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Flush the line",
	RunE:  runFlush,
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Calibrate the scale against a known weight",
	RunE:  runCalibrate,
}

func init() {
	dispenseCmd.Flags().BoolVar(&realtime, "realtime", false, "run on the wall clock instead of a simulated one")
	dispenseCmd.Flags().Float64Var(&targetGrams, "target", 0, "override the configured target in grams")
	flushCmd.Flags().BoolVar(&realtime, "realtime", false, "run on the wall clock instead of a simulated one")
	calibrateCmd.Flags().Float64Var(&knownWeightG, "known", 100, "reference weight in grams")
	rootCmd.AddCommand(dispenseCmd, flushCmd, calibrateCmd)
}

func simClock() *sim.ManualClock { return sim.NewManualClock(time.Now()) }

func runDispense(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, svc, err := newService(realtime)
	if err != nil {
		return err
	}
	defer svc.Close()

	name := args[0]
	if cmd.Flags().Changed("target") {
		idx, ok := svc.Registry.Index(name)
		if !ok {
			return fmt.Errorf("unknown liquid %q", name)
		}
		if err := svc.Controller.SetTarget(idx, targetGrams); err != nil {
			return err
		}
	}
	res, err := svc.Dispense(ctx, name)
	if err != nil {
		return err
	}
	printDose(cmd, res)
	return nil
}

func printDose(cmd *cobra.Command, res events.DoseFinished) {
	out := cmd.OutOrStdout()
	outcome := color.New(color.Bold, color.FgGreen).Sprint(res.Outcome)
	if res.Outcome != events.OutcomeCompleted {
		outcome = color.New(color.Bold, color.FgRed).Sprint(res.Outcome)
	}
	fmt.Fprintf(out, "%s %s\n", bold("Session:"), res.SessionID)
	fmt.Fprintf(out, "%s %s\n", bold("Liquid:"), res.Liquid)
	fmt.Fprintf(out, "%s %s\n", bold("Outcome:"), outcome)
	if res.Reason != "" {
		fmt.Fprintf(out, "%s %s\n", bold("Reason:"), res.Reason)
	}
	fmt.Fprintf(out, "%s %.3f g of %.3f g (%+.3f g)\n", bold("Dispensed:"), res.Dispensed, res.Target, res.Dispensed-res.Target)
	fmt.Fprintf(out, "%s %d, flow %.3f g/s\n", bold("Iterations:"), res.Iterations, res.FlowRate)
	fmt.Fprintf(out, "%s %s\n", bold("Duration:"), res.Finished.Sub(res.Started).Round(time.Millisecond))
	if s, err := trace.Summarize(res.Samples, res.Target); err == nil {
		fmt.Fprintf(out, "%s %d samples, %.3f g/s (r² %.2f)\n", bold("Trace:"), s.Samples, s.Rate, s.RSquared)
	}
}

func runFlush(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, svc, err := newService(realtime)
	if err != nil {
		return err
	}
	defer svc.Close()
	res, err := svc.Flush(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s flushed for %s\n", color.GreenString("✔"), res.Duration)
	return nil
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	_, svc, err := newService(false)
	if err != nil {
		return err
	}
	defer svc.Close()
	factor, err := svc.Calibrate(knownWeightG)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s scale factor %.4f\n", bold("Calibrated:"), factor)
	return nil
}
