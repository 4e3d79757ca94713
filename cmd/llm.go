package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/abhisek/papersmith/internal/llm"
	"github.com/abhisek/papersmith/internal/mapping"
	"github.com/abhisek/papersmith/internal/store"
	"github.com/spf13/cobra"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect AI topic-tagging decisions",
}

// taggedEvent pairs a stored call with what the tagger made of it.
type taggedEvent struct {
	store.LLMEvent
	mapping.TagDecision
	decodeErr error
}

// outcome is "tagged", "declined" or "failed".
func (e taggedEvent) outcome() string {
	switch {
	case !e.Success || e.decodeErr != nil:
		return "failed"
	case e.Topic == "":
		return "declined"
	default:
		return "tagged"
	}
}

func decodeEvent(e store.LLMEvent) taggedEvent {
	d, err := mapping.DecodeTagDecision(e.RequestBody, e.ResponseBody)
	return taggedEvent{LLMEvent: e, TagDecision: d, decodeErr: err}
}

func loadTaggingEvents(cmd *cobra.Command, limit int) ([]taggedEvent, error) {
	s, err := openStore(cmd)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	events, err := s.EventRepo().QueryLLMEvents(cmd.Context(),
		store.QueryOpts{Limit: limit, Purpose: mapping.TaggingPurpose})
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	out := make([]taggedEvent, 0, len(events))
	for _, e := range events {
		out = append(out, decodeEvent(e))
	}
	return out, nil
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent questions the tagger placed in the syllabus",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		topic, _ := cmd.Flags().GetString("topic")
		declined, _ := cmd.Flags().GetBool("declined")

		events, err := loadTaggingEvents(cmd, limit)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()

		var rows []taggedEvent
		for _, e := range events {
			if topic != "" && e.Topic != topic {
				continue
			}
			if declined && e.outcome() == "tagged" {
				continue
			}
			rows = append(rows, e)
		}
		if len(rows) == 0 {
			fmt.Fprintln(w, "No tagging decisions recorded yet.")
			return nil
		}

		fmt.Fprintf(w, "%-5s  %-19s  %-24s  %-5s  %s\n", "ID", "Timestamp", "Suggested topic", "Conf", "Question")
		fmt.Fprintln(w, strings.Repeat("─", 110))
		for _, e := range rows {
			suggested := e.Topic
			conf := fmt.Sprintf("%.2f", e.Confidence)
			switch e.outcome() {
			case "declined":
				suggested = "(none)"
			case "failed":
				suggested, conf = "(failed)", "-"
			}
			fmt.Fprintf(w, "%-5d  %-19s  %-24s  %-5s  %s\n",
				e.ID,
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				truncate(suggested, 24),
				conf,
				truncate(oneLine(e.Question), 52),
			)
		}
		return nil
	},
}

var llmViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show one tagging decision with the model's reasoning",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("invalid ID %q: %w", args[0], err)
		}
		raw, _ := cmd.Flags().GetBool("raw")

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		w := cmd.OutOrStdout()

		ev, err := s.EventRepo().GetLLMEvent(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		if ev == nil {
			return fmt.Errorf("event %d not found", id)
		}
		if ev.Purpose != mapping.TaggingPurpose {
			return fmt.Errorf("event %d is a %q call, not a tagging decision", id, ev.Purpose)
		}
		e := decodeEvent(*ev)

		fmt.Fprintf(w, "Question:   %s\n", e.Question)
		switch e.outcome() {
		case "tagged":
			fmt.Fprintf(w, "Suggested:  %s (confidence %.2f)\n", e.Topic, e.Confidence)
		case "declined":
			fmt.Fprintf(w, "Suggested:  none (confidence %.2f)\n", e.Confidence)
		default:
			reason := e.ErrorMessage
			if reason == "" && e.decodeErr != nil {
				reason = e.decodeErr.Error()
			}
			fmt.Fprintf(w, "Suggested:  failed: %s\n", reason)
		}
		if e.Reasoning != "" {
			fmt.Fprintf(w, "Reasoning:  %s\n", e.Reasoning)
		}
		fmt.Fprintf(w, "Model:      %s via %s, %d in / %d out tokens, %dms\n",
			e.Model, e.Provider, e.InputTokens, e.OutputTokens, e.LatencyMs)
		fmt.Fprintf(w, "Time:       %s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"))

		if raw {
			sep := strings.Repeat("─", 60)
			for _, part := range []struct{ title, body string }{
				{"REQUEST", e.RequestBody},
				{"RESPONSE", e.ResponseBody},
			} {
				fmt.Fprintf(w, "\n%s\n%s\n%s\n", sep, part.title, sep)
				if part.body == "" {
					fmt.Fprintln(w, "(not captured)")
					continue
				}
				fmt.Fprintln(w, part.body)
			}
		}
		return nil
	},
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise tagging outcomes per topic and estimated cost",
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := loadTaggingEvents(cmd, 0)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(w, "No tagging decisions recorded yet.")
			return nil
		}

		outcomes := make(map[string]int)
		perTopic := make(map[string]int)
		var confSum float64
		for _, e := range events {
			o := e.outcome()
			outcomes[o]++
			if o == "tagged" {
				perTopic[e.Topic]++
				confSum += e.Confidence
			}
		}

		fmt.Fprintf(w, "Tagging calls: %d  tagged: %d  declined: %d  failed: %d\n",
			len(events), outcomes["tagged"], outcomes["declined"], outcomes["failed"])
		if n := outcomes["tagged"]; n > 0 {
			fmt.Fprintf(w, "Mean confidence of accepted tags: %.2f\n", confSum/float64(n))

			topics := make([]string, 0, len(perTopic))
			for t := range perTopic {
				topics = append(topics, t)
			}
			sort.Slice(topics, func(i, j int) bool {
				if perTopic[topics[i]] != perTopic[topics[j]] {
					return perTopic[topics[i]] > perTopic[topics[j]]
				}
				return topics[i] < topics[j]
			})
			fmt.Fprintln(w)
			fmt.Fprintf(w, "%-32s  %s\n", "Suggested topic", "Questions")
			fmt.Fprintln(w, strings.Repeat("─", 44))
			for _, t := range topics {
				fmt.Fprintf(w, "%-32s  %9d\n", truncate(t, 32), perTopic[t])
			}
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		modelUsage, err := s.EventRepo().LLMUsageByModel(cmd.Context())
		if err != nil {
			return fmt.Errorf("query model usage: %w", err)
		}
		if len(modelUsage) == 0 {
			return nil
		}

		fmt.Fprintln(w)
		fmt.Fprintf(w, "%-32s  %6s  %10s  %10s\n", "Model", "Calls", "Tokens", "Cost")
		fmt.Fprintln(w, strings.Repeat("─", 64))
		var total float64
		var unpriced []string
		for _, mu := range modelUsage {
			cost := "?"
			if p := llm.LookupCost(mu.Model); p != nil {
				c := p.Cost(mu.InputTokens, mu.OutputTokens)
				total += c
				cost = formatCost(c)
			} else {
				unpriced = append(unpriced, mu.Model)
			}
			fmt.Fprintf(w, "%-32s  %6d  %10d  %10s\n",
				truncate(mu.Model, 32), mu.Calls, mu.InputTokens+mu.OutputTokens, cost)
		}
		fmt.Fprintln(w, strings.Repeat("─", 64))
		fmt.Fprintf(w, "%-32s  %6s  %10s  %10s\n", "TOTAL", "", "", formatCost(total))
		if len(unpriced) > 0 {
			fmt.Fprintf(w, "\nPricing unavailable for: %s\n", strings.Join(unpriced, ", "))
		}
		return nil
	},
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of tagging calls to scan")
	llmListCmd.Flags().String("topic", "", "Only show questions tagged with this topic")
	llmListCmd.Flags().Bool("declined", false, "Only show calls that produced no usable tag")
	llmViewCmd.Flags().Bool("raw", false, "Also print the captured request and response")

	llmCmd.AddCommand(llmListCmd)
	llmCmd.AddCommand(llmViewCmd)
	llmCmd.AddCommand(llmStatsCmd)
}
