package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/CraigKelly/bayescmp/store"
)

var historyRunID string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived runs (or one run's fits with --run)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(archivePath) < 1 {
			return errors.New("history requires --archive")
		}

		arc, err := store.Open(archivePath)
		if err != nil {
			return err
		}
		defer arc.Close()

		if len(historyRunID) > 0 {
			fits, err := arc.Fits(historyRunID)
			if err != nil {
				return err
			}
			for _, f := range fits {
				fmt.Printf("%-16s %-8s %-40s div=%d acc=%.3f %v\n",
					f.ModelName, f.Status, f.Formula, f.Divergences, f.AcceptRate, f.Elapsed)
			}
			return nil
		}

		runs, err := arc.Runs()
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Printf("%s  %-20s %v\n", r.RunID, r.PlanName, r.FinishedAt.Sub(r.StartedAt))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyRunID, "run", "r", "", "Show fits for a single run id")
	rootCmd.AddCommand(historyCmd)
}
