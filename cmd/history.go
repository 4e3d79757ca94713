package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <student>",
	Short: "List questions already assigned to a student",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		entries, err := s.HistoryRepo().Entries(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("query history: %w", err)
		}

		w := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintf(w, "No questions assigned to %s yet.\n", args[0])
			return nil
		}

		fmt.Fprintf(w, "%-19s  %-36s  %-12s  %-20s  %s\n", "Assigned", "Run", "Question", "Topic", "Difficulty")
		fmt.Fprintln(w, strings.Repeat("─", 104))
		for _, e := range entries {
			fmt.Fprintf(w, "%-19s  %-36s  %-12s  %-20s  %s\n",
				e.AssignedAt.Local().Format("2006-01-02 15:04:05"),
				e.RunID,
				e.QuestionID,
				truncate(e.Topic, 20),
				e.Difficulty,
			)
		}
		return nil
	},
}
