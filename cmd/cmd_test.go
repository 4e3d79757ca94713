package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/abhisek/papersmith/internal/llm"
	"github.com/abhisek/papersmith/internal/mapping"
	"github.com/abhisek/papersmith/internal/store"
	"github.com/abhisek/papersmith/internal/syllabus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func TestAnalyzeWritesOutputsAndRecordsRun(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "papersmith.db")
	out := filepath.Join(dir, "out")

	mcq := writeFixture(t, dir, "mcq.csv", `student_id,q1,q2,q3,q4,total_score
S001,0,1,1,1,3
S002,1,1,0,0,2
`)
	mapping := writeFixture(t, dir, "mapping.csv", `question_id,topic
q1,Algebra
q2,Algebra
q3,Geometry
q4,Geometry
`)
	bank := writeFixture(t, dir, "bank.yaml", `questions:
  - {id: A-01, topic: Algebra, difficulty: easy, text: "Solve 2x = 6.", answer: "3", marks: 1}
  - {id: A-02, topic: Algebra, difficulty: medium, text: "Factorise x^2 - 9."}
  - {id: G-01, topic: Geometry, difficulty: easy, text: "Find the angle."}
  - {id: G-02, topic: Geometry, difficulty: hard, text: "Prove the triangles are similar."}
`)

	stdout := execute(t, "analyze",
		"--db", db,
		"--mcq-file", mcq,
		"--mapping", mapping,
		"--bank", bank,
		"--out", out,
		"--paper-length", "2",
		"--answer-key",
	)
	assert.Contains(t, stdout, "Class summary (2 students)")
	assert.Contains(t, stdout, "2 papers written")

	md, err := os.ReadFile(filepath.Join(out, "papers", "S002.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "Student: **S002**")
	assert.Contains(t, string(md), "## Answers")

	var doc struct {
		RunID string `json:"run_id"`
		Paper struct {
			Questions []struct {
				ID string `json:"id"`
			} `json:"questions"`
		} `json:"paper"`
	}
	data, err := os.ReadFile(filepath.Join(out, "papers", "S002.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc.Paper.Questions, 2)
	require.NotEmpty(t, doc.RunID)

	csvData, err := os.ReadFile(filepath.Join(out, "summary.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csvData), "topic,affected_students,students,mean_severity")

	excl, err := os.ReadFile(filepath.Join(out, "exclusions.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(excl))

	runs := execute(t, "runs", "--db", db)
	assert.Contains(t, runs, doc.RunID)

	show := execute(t, "runs", "show", doc.RunID, "--db", db)
	assert.Contains(t, show, "Geometry")

	history := execute(t, "history", "S002", "--db", db)
	assert.Contains(t, history, "G-0")
}

func TestVersion(t *testing.T) {
	assert.Contains(t, execute(t, "version"), "papersmith")
}

func TestRequireInputsAcceptsEnvironment(t *testing.T) {
	t.Setenv("PAPERSMITH_MCQ_FILE", "mcq.csv")
	t.Setenv("PAPERSMITH_BANK", "bank.yaml")

	c := &cobra.Command{Use: "analyze"}
	c.Flags().String("mcq-file", "", "")
	c.Flags().String("mapping", "", "")
	c.Flags().String("bank", "", "")
	v := viperForCmd(c)

	err := requireInputs(v, "mcq-file", "mapping", "bank")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--mapping")
	assert.NotContains(t, err.Error(), "--bank")
	assert.NotContains(t, err.Error(), "--mcq-file")

	require.NoError(t, c.Flags().Set("mapping", "mapping.csv"))
	assert.NoError(t, requireInputs(viperForCmd(c), "mcq-file", "mapping", "bank"))
}

func TestLLMShowsTaggingDecisions(t *testing.T) {
	db := filepath.Join(t.TempDir(), "papersmith.db")
	s, err := store.Open(db)
	require.NoError(t, err)

	tax, err := syllabus.New("Mathematics", "0580", []syllabus.Topic{
		{Number: "2", Name: "Algebra", Subtopics: []string{"Linear equations"}},
		{Number: "4", Name: "Geometry"},
	})
	require.NoError(t, err)
	mock := llm.NewMockProvider(
		llm.MockResponse{Content: json.RawMessage(`{"topic":"Linear equations","confidence":0.92,"reasoning":"Solve for x."}`)},
		llm.MockResponse{Content: json.RawMessage(`{"topic":null,"confidence":0.8,"reasoning":"This is statistics."}`)},
	)
	tagger := mapping.NewLLMTagger(llm.WithLogging(mock, "mock", s.EventRepo()), tax, mapping.DefaultLLMTaggerConfig())

	ctx := context.Background()
	topic, err := tagger.SuggestTopic(ctx, "Solve 3x + 2 = 11.")
	require.NoError(t, err)
	assert.Equal(t, "Linear equations", topic)
	_, err = tagger.SuggestTopic(ctx, "Find the median of 3, 7, 9.")
	assert.ErrorIs(t, err, mapping.ErrNoSuggestion)
	require.NoError(t, s.Close())

	list := execute(t, "llm", "list", "--db", db)
	assert.Contains(t, list, "Linear equations")
	assert.Contains(t, list, "0.92")
	assert.Contains(t, list, "Solve 3x + 2 = 11.")
	assert.Contains(t, list, "(none)")
	assert.Contains(t, list, "Find the median of 3, 7, 9.")

	view := execute(t, "llm", "view", "1", "--db", db)
	assert.Contains(t, view, "Question:   Solve 3x + 2 = 11.")
	assert.Contains(t, view, "Suggested:  Linear equations (confidence 0.92)")
	assert.Contains(t, view, "Reasoning:  Solve for x.")
	assert.NotContains(t, view, "REQUEST")

	stats := execute(t, "llm", "stats", "--db", db)
	assert.Contains(t, stats, "Tagging calls: 2  tagged: 1  declined: 1  failed: 0")
	assert.Contains(t, stats, "Mean confidence of accepted tags: 0.92")

	declined := execute(t, "llm", "list", "--declined", "--db", db)
	assert.NotContains(t, declined, "Solve 3x + 2 = 11.")
	assert.Contains(t, declined, "Find the median of 3, 7, 9.")
}

func TestTopicsReadsSyllabusFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	syl := writeFixture(t, dir, "syllabus.yaml", `subject: Mathematics
code: "0580"
topics:
  "2": {name: Algebra, subtopics: [Linear equations]}
  "4": {name: Geometry}
`)
	t.Setenv("PAPERSMITH_SYLLABUS", syl)

	out := execute(t, "topics")
	assert.Contains(t, out, "Mathematics (0580)")
	assert.Contains(t, out, "Linear equations")
	assert.Contains(t, out, "Geometry")
}
