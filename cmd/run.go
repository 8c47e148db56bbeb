package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/CraigKelly/bayescmp/cache"
	"github.com/CraigKelly/bayescmp/data"
	"github.com/CraigKelly/bayescmp/sampler"
	"github.com/CraigKelly/bayescmp/store"
	"github.com/CraigKelly/bayescmp/workflow"
)

var maxConcurrent int64
var fitTimeout time.Duration

var runCmd = &cobra.Command{
	Use:   "run [plan.yaml]",
	Short: "Execute a workflow plan: fit every model, then compare",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := workflow.Load(args[0])
		if err != nil {
			return err
		}

		tbl, err := plan.Table()
		if err != nil {
			return err
		}
		desc := tbl.Describe()

		runner := &workflow.Runner{
			Cache:   cache.New(maxConcurrent, fitTimeout),
			Adapter: sampler.NewMetropolis(data.MapSource{tbl.Name: tbl}),
			Log:     slog.Default(),
		}

		if len(archivePath) > 0 {
			arc, err := store.Open(archivePath)
			if err != nil {
				return err
			}
			defer arc.Close()
			runner.Archive = arc
		}

		rep, err := runner.Run(cmd.Context(), plan, desc)
		if err != nil {
			return errors.Wrapf(err, "Plan %s did not complete", plan.Name)
		}

		printReport(rep)
		return nil
	},
}

func printReport(rep *workflow.Report) {
	fmt.Printf("Run %s (plan %s) - %v\n", rep.RunID, rep.Plan, rep.Finished.Sub(rep.Started))

	for _, m := range rep.Models {
		if !m.Fit.OK() {
			fmt.Printf("\n%s: FAILED (%s) %s\n", m.Name, m.Fit.Reason, m.Fit.Message)
			continue
		}

		fmt.Printf("\n%s: %s\n", m.Name, m.Fit.Spec.Formula.Canonical())
		fmt.Printf("  %-16s %10s %10s %10s %10s %8s\n", "param", "mean", "sd", "lower", "upper", "ess")
		for _, p := range m.Summary.Params {
			flag := ""
			if p.Unreliable {
				flag = " (!)"
			}
			fmt.Printf("  %-16s %10.4f %10.4f %10.4f %10.4f %8.0f%s\n",
				p.Name, p.Mean, p.SD, p.Lower, p.Upper, p.ESS, flag)
		}
		if m.Fit.Diagnostics.Divergences > 0 {
			fmt.Printf("  divergences: %d\n", m.Fit.Diagnostics.Divergences)
		}
	}

	if rep.Comparison != nil {
		fmt.Printf("\nComparison (%s):\n", rep.Comparison.Metric)
		for _, name := range rep.Comparison.Order {
			est := rep.Comparison.PerModel[name]
			flag := ""
			if est.Unreliable {
				flag = " (!)"
			}
			fmt.Printf("  %-16s %10.2f (se %.2f)%s\n", name, est.Value, est.SE, flag)
		}
		if rep.Comparison.Pairwise != nil {
			fmt.Printf("  %s - %s: %.2f (se %.2f)\n",
				rep.Comparison.Order[0], rep.Comparison.Order[1],
				rep.Comparison.Pairwise.Value, rep.Comparison.Pairwise.SE)
		}
	}

	fmt.Printf("\nCache: %d fits, %d hits, %d misses\n",
		rep.CacheStats.Fits, rep.CacheStats.Hits, rep.CacheStats.Misses)
}

func init() {
	runCmd.Flags().Int64VarP(&maxConcurrent, "max-fits", "j", 2, "Maximum concurrent model fits")
	runCmd.Flags().DurationVarP(&fitTimeout, "timeout", "t", 10*time.Minute, "Per-fit timeout (0 disables)")
	rootCmd.AddCommand(runCmd)
}
