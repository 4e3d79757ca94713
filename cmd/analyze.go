package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/abhisek/papersmith/internal/bank"
	"github.com/abhisek/papersmith/internal/config"
	"github.com/abhisek/papersmith/internal/llm"
	"github.com/abhisek/papersmith/internal/mapping"
	"github.com/abhisek/papersmith/internal/paper"
	"github.com/abhisek/papersmith/internal/pipeline"
	"github.com/abhisek/papersmith/internal/report"
	"github.com/abhisek/papersmith/internal/roster"
	"github.com/abhisek/papersmith/internal/syllabus"
	"github.com/abhisek/papersmith/internal/weakness"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Diagnose weak topics and assemble a practice paper per student",
	Args:  cobra.NoArgs,
	RunE:  runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.String("mcq-file", "", "MCQ results CSV (student_id,q1..qN[,total_score])")
	f.String("assignments-file", "", "Assignment marks CSV (student_id,<assignment...>[,total])")
	f.String("participation-file", "", "Weekly participation CSV (student_id,week_1..week_M[,average])")
	f.String("mapping", "", "Question to topic mapping table (.yaml or .csv)")
	f.String("bank", "", "Question bank (.yaml or .json)")
	f.String("syllabus", "", "Syllabus topics document (.json or .yaml)")
	f.StringP("out", "o", "papers", "Output directory")
	f.Bool("answer-key", false, "Append an answer key to each paper")
	f.Bool("ai-tagging", false, "Ask the configured LLM to tag questions missing from the mapping table")
	f.Bool("no-save", false, "Do not record the run or the assigned questions")

	d := config.Default()
	f.IntP(config.KeyPaperLength, "n", d.PaperLength, "Questions per paper")
	f.Int(config.KeyTopK, d.TopK, "Weakest topics that receive a quota (0 = ceil(n/3))")
	f.String(config.KeyFallbackTopic, "", "Topic that absorbs quota no weak topic can serve")
	f.Bool(config.KeyFreshOnly, false, "Never repeat previously assigned questions, even if papers come out short")
	f.String(config.KeyWeights, "", "Signal weights, e.g. mcq=0.6,assignment=0.3,participation=0.1")
	f.String(config.KeyMissing, string(d.Missing), "Missing value policy (reject, zero)")
	f.Bool(config.KeyIgnoreUnmapped, false, "Drop unmapped questions from scoring instead of failing")
	f.Float64(config.KeyAffectedThreshold, 0, "Severity a student must exceed to count as affected")
	f.Int(config.KeyQuestions, 0, "Expected MCQ question count (0 = from header)")
	f.Int(config.KeyAssignments, 0, "Expected assignment count (0 = from header)")
	f.Int(config.KeyWeeks, 0, "Expected participation week count (0 = from header)")
	f.Int(config.KeyWorkers, d.Workers, "Students processed concurrently")
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	v := viperForCmd(cmd)

	if err := requireInputs(v, "mcq-file", "mapping", "bank"); err != nil {
		return err
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	b, err := bank.Load(v.GetString("bank"))
	if err != nil {
		return err
	}
	table, err := mapping.LoadTable(v.GetString("mapping"))
	if err != nil {
		return err
	}
	var tax *syllabus.Taxonomy
	if p := v.GetString("syllabus"); p != "" {
		if tax, err = syllabus.Load(p); err != nil {
			return err
		}
	}
	class, err := loadClass(v, cfg)
	if err != nil {
		return err
	}

	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	in := pipeline.Inputs{
		Class:    class,
		Table:    table,
		Bank:     b,
		Taxonomy: tax,
		History:  st.HistoryRepo(),
		Logger:   slog.Default(),
	}
	if !v.GetBool("no-save") {
		in.Runs = st.RunRepo()
	}
	if v.GetBool("ai-tagging") {
		if tax == nil {
			return errors.New("--ai-tagging needs --syllabus to validate suggestions")
		}
		provider, err := llm.NewProviderFromEnv(ctx, st.EventRepo())
		if err != nil {
			return fmt.Errorf("ai tagging: %w", err)
		}
		in.Tagger = mapping.NewLLMTagger(provider, tax, mapping.DefaultLLMTaggerConfig())
	}

	res, err := pipeline.Run(ctx, in, cfg)
	if err != nil {
		return err
	}

	outDir := v.GetString("out")
	if err := writeOutputs(outDir, res, v.GetBool("answer-key")); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if err := report.WriteTable(w, res.Summary); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nRun %s: %d papers written to %s, %d students excluded.\n",
		res.RunID, len(res.Students), outDir, len(res.Exclusions))
	return nil
}

// requireInputs checks keys after flags, environment and config file have
// been merged, so any of them may supply the value.
func requireInputs(v *viper.Viper, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(v.GetString(k)) == "" {
			missing = append(missing, "--"+k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required input %s (flag, PAPERSMITH_* env var or papersmith.yaml)", strings.Join(missing, ", "))
	}
	return nil
}

func loadClass(v *viper.Viper, cfg config.Config) (*roster.Class, error) {
	var src roster.Sources
	var files []*os.File
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	open := func(key string) (io.Reader, error) {
		path := v.GetString(key)
		if path == "" {
			return nil, nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", key, err)
		}
		files = append(files, f)
		return f, nil
	}

	var err error
	if src.MCQ, err = open("mcq-file"); err != nil {
		return nil, err
	}
	if src.Assignments, err = open("assignments-file"); err != nil {
		return nil, err
	}
	if src.Participation, err = open("participation-file"); err != nil {
		return nil, err
	}
	return roster.Load(src, cfg.Roster())
}

// paperDocument is the JSON form of one student's output.
type paperDocument struct {
	RunID   string            `json:"run_id"`
	Profile *weakness.Profile `json:"profile"`
	Paper   *paper.Paper      `json:"paper"`
}

func writeOutputs(dir string, res *pipeline.Result, answerKey bool) error {
	papersDir := filepath.Join(dir, "papers")
	if err := os.MkdirAll(papersDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	for _, s := range res.Students {
		base := filepath.Join(papersDir, s.Paper.StudentID)
		err := writeFile(base+".md", func(w io.Writer) error {
			return report.WritePaperMarkdown(w, s.Paper, s.Profile, report.PaperOptions{AnswerKey: answerKey})
		})
		if err != nil {
			return err
		}
		err = writeFile(base+".json", func(w io.Writer) error {
			return report.WriteJSON(w, paperDocument{RunID: res.RunID, Profile: s.Profile, Paper: s.Paper})
		})
		if err != nil {
			return err
		}
	}

	if err := writeFile(filepath.Join(dir, "summary.csv"), func(w io.Writer) error {
		return report.WriteCSV(w, res.Summary)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "summary.json"), func(w io.Writer) error {
		return report.WriteJSON(w, res.Summary)
	}); err != nil {
		return err
	}
	exclusions := res.Exclusions
	if exclusions == nil {
		exclusions = []pipeline.Exclusion{}
	}
	return writeFile(filepath.Join(dir, "exclusions.json"), func(w io.Writer) error {
		return report.WriteJSON(w, exclusions)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
