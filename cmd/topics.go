package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/papersmith/internal/bank"
	"github.com/abhisek/papersmith/internal/syllabus"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List syllabus topics, optionally with question bank coverage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viperForCmd(cmd)
		if err := requireInputs(v, "syllabus"); err != nil {
			return err
		}
		tax, err := syllabus.Load(v.GetString("syllabus"))
		if err != nil {
			return err
		}
		var b *bank.Bank
		if p := v.GetString("bank"); p != "" {
			if b, err = bank.Load(p); err != nil {
				return err
			}
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s (%s)\n", tax.Subject, tax.Code)
		fmt.Fprintln(w, strings.Repeat("─", 60))
		for _, t := range tax.Topics() {
			fmt.Fprintf(w, "%-4s %s%s\n", t.Number, t.Name, coverage(b, t.Name))
			for _, sub := range t.Subtopics {
				fmt.Fprintf(w, "       %s%s\n", sub, coverage(b, sub))
			}
		}

		if b != nil {
			if unknown := tax.Unknown(b.Topics()); len(unknown) > 0 {
				fmt.Fprintf(w, "\nBank topics outside the syllabus: %s\n", strings.Join(unknown, ", "))
			}
		}
		return nil
	},
}

func coverage(b *bank.Bank, tag string) string {
	if b == nil {
		return ""
	}
	n := b.Count(tag)
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("  [%d questions]", n)
}

func init() {
	topicsCmd.Flags().String("syllabus", "", "Syllabus topics document (.json or .yaml)")
	topicsCmd.Flags().String("bank", "", "Question bank to show coverage for")
}
