package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilianp07/doser/config"
	"github.com/kilianp07/doser/core/history"
	"github.com/kilianp07/doser/core/trace"
	"github.com/kilianp07/doser/pkg/export"
)

var (
	histLiquid  string
	histOutcome string
	histLimit   int
	histSince   time.Duration

	traceSession string
	traceFormat  string
	traceOut     string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Dose history commands",
}

var historyLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recorded dosing sessions",
	RunE:  runHistoryLs,
}

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Weight trace commands",
}

var traceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the weight trace of a recorded session",
	RunE:  runTraceExport,
}

func init() {
	historyLsCmd.Flags().StringVar(&histLiquid, "liquid", "", "only this liquid")
	historyLsCmd.Flags().StringVar(&histOutcome, "outcome", "", "only this outcome (completed, timeout, aborted)")
	historyLsCmd.Flags().IntVar(&histLimit, "limit", 20, "most recent sessions to show, 0 for all")
	historyLsCmd.Flags().DurationVar(&histSince, "since", 0, "only sessions finished within this duration")
	historyCmd.AddCommand(historyLsCmd)

	traceExportCmd.Flags().StringVar(&traceSession, "session", "", "session id (default: most recent)")
	traceExportCmd.Flags().StringVarP(&traceFormat, "format", "f", "csv", "csv, json, yaml or html")
	traceExportCmd.Flags().StringVarP(&traceOut, "out", "o", "", "output file (default: stdout)")
	traceCmd.AddCommand(traceExportCmd)

	rootCmd.AddCommand(historyCmd, traceCmd)
}

func openHistory() (history.Store, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return history.NewStore(cfg.History)
}

func runHistoryLs(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	q := history.Query{Liquid: histLiquid, Outcome: histOutcome, Limit: histLimit}
	if histSince > 0 {
		q.Start = time.Now().Add(-histSince)
	}
	recs, err := store.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FINISHED\tSESSION\tLIQUID\tTARGET\tDISPENSED\tERROR\tITER\tOUTCOME")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\t%.3f\t%+.3f\t%d\t%s\n",
			r.Finished.Local().Format(time.DateTime), r.SessionID, r.Liquid,
			r.Target, r.Dispensed, r.Error(), r.Iterations, outcomeString(r.Outcome))
	}
	return w.Flush()
}

func outcomeString(o string) string {
	if o == "completed" {
		return color.GreenString(o)
	}
	return color.RedString(o)
}

func findRecord(ctx context.Context, store history.Store, session string) (history.DoseRecord, error) {
	if session == "" {
		recs, err := store.Query(ctx, history.Query{Limit: 1})
		if err != nil {
			return history.DoseRecord{}, err
		}
		if len(recs) == 0 {
			return history.DoseRecord{}, fmt.Errorf("history is empty")
		}
		return recs[0], nil
	}
	recs, err := store.Query(ctx, history.Query{})
	if err != nil {
		return history.DoseRecord{}, err
	}
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].SessionID == session {
			return recs[i], nil
		}
	}
	return history.DoseRecord{}, fmt.Errorf("session %s not found", session)
}

func runTraceExport(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := findRecord(cmd.Context(), store, traceSession)
	if err != nil {
		return err
	}
	if len(rec.Samples) == 0 {
		return fmt.Errorf("session %s: %w", rec.SessionID, trace.ErrEmptyTrace)
	}
	t := export.NewTrace(rec.SessionID, rec.Liquid, rec.Target, rec.Samples)

	out := cmd.OutOrStdout()
	if traceOut != "" {
		f, err := os.Create(traceOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return export.Write(out, traceFormat, t)
}
