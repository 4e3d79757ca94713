package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/papersmith/internal/report"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored analysis runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		runs, err := s.RunRepo().List(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}

		w := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(w, "No runs recorded yet.")
			return nil
		}

		fmt.Fprintf(w, "%-36s  %-19s  %6s  %8s  %8s\n", "Run", "Created", "Length", "Students", "Excluded")
		fmt.Fprintln(w, strings.Repeat("─", 86))
		for _, r := range runs {
			fmt.Fprintf(w, "%-36s  %-19s  %6d  %8d  %8d\n",
				r.ID,
				r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				r.PaperLength,
				r.Students,
				r.Excluded,
			)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the class summary and exclusions of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		repo := s.RunRepo()
		run, err := repo.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get run: %w", err)
		}
		if run == nil {
			return fmt.Errorf("run %s not found", args[0])
		}
		rows, err := repo.Summary(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("query summary: %w", err)
		}
		excl, err := repo.Exclusions(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("query exclusions: %w", err)
		}

		summary := report.Summary{Students: run.Students}
		for _, r := range rows {
			summary.Rows = append(summary.Rows, report.Row{
				Topic:        r.Topic,
				Affected:     r.Affected,
				Students:     r.Students,
				MeanSeverity: r.MeanSeverity,
			})
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Run %s (%s)\n\n", run.ID, run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		if err := report.WriteTable(w, summary); err != nil {
			return err
		}
		if len(excl) > 0 {
			fmt.Fprintf(w, "\nExcluded students (%d)\n", len(excl))
			for _, e := range excl {
				fmt.Fprintf(w, "  %-12s  %-10s  %s\n", e.StudentID, e.Kind, e.Reason)
			}
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntP("limit", "n", 20, "Number of runs to show")
	runsCmd.AddCommand(runsShowCmd)
}
