package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/papersmith/internal/bank"
	"github.com/abhisek/papersmith/internal/config"
	"github.com/abhisek/papersmith/internal/errs"
	"github.com/abhisek/papersmith/internal/mapping"
	"github.com/abhisek/papersmith/internal/roster"
	"github.com/abhisek/papersmith/internal/store"
	"github.com/abhisek/papersmith/internal/weakness"
)

const mcqCSV = `student_id,q1,q2,q3,q4,total_score
S002,1,1,0,0,2
S001,0,1,1,1,3
S003,1,1,1,1,4
S004,1,2,0,0,
`

func loadClass(t *testing.T) *roster.Class {
	t.Helper()
	class, err := roster.Load(roster.Sources{MCQ: strings.NewReader(mcqCSV)}, roster.Options{Questions: 4})
	require.NoError(t, err)
	return class
}

func newBank(t *testing.T, withGeometry bool) *bank.Bank {
	t.Helper()
	entries := []bank.Entry{
		{ID: "A-01", Topic: "Algebra", Difficulty: bank.DifficultyEasy},
		{ID: "A-02", Topic: "Algebra", Difficulty: bank.DifficultyMedium},
		{ID: "A-03", Topic: "Algebra", Difficulty: bank.DifficultyHard},
		{ID: "A-04", Topic: "Algebra", Difficulty: bank.DifficultyMedium},
	}
	if withGeometry {
		entries = append(entries,
			bank.Entry{ID: "G-01", Topic: "Geometry", Difficulty: bank.DifficultyEasy},
			bank.Entry{ID: "G-02", Topic: "Geometry", Difficulty: bank.DifficultyMedium},
			bank.Entry{ID: "G-03", Topic: "Geometry", Difficulty: bank.DifficultyHard},
		)
	}
	b, err := bank.New(entries)
	require.NoError(t, err)
	return b
}

func table() mapping.Table {
	return mapping.Table{"q1": "Algebra", "q2": "Algebra", "q3": "Geometry", "q4": "Geometry"}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.PaperLength = 3
	return cfg
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func paperIDs(s Student) []string {
	ids := make([]string, len(s.Paper.Questions))
	for i, q := range s.Paper.Questions {
		ids[i] = q.ID
	}
	return ids
}

func TestRun_EndToEnd(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	res, err := Run(ctx, Inputs{
		Class:   loadClass(t),
		Table:   table(),
		Bank:    newBank(t, true),
		History: st.HistoryRepo(),
		Runs:    st.RunRepo(),
	}, testConfig())
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	require.Len(t, res.Students, 3)
	assert.Equal(t, "S001", res.Students[0].Profile.StudentID)
	assert.Equal(t, "S002", res.Students[1].Profile.StudentID)
	assert.Equal(t, "S003", res.Students[2].Profile.StudentID)

	s001 := res.Students[0]
	require.Len(t, s001.Profile.Topics, 2)
	assert.Equal(t, "Algebra", s001.Profile.Topics[0].Topic)
	assert.InDelta(t, 0.5, s001.Profile.Topics[0].Severity, 1e-9)
	assert.Len(t, s001.Paper.Questions, 3)
	assert.False(t, s001.Paper.Partial)

	assert.ElementsMatch(t, []string{"G-01", "G-02", "G-03"}, paperIDs(res.Students[1]))

	require.Len(t, res.Exclusions, 1)
	assert.Equal(t, "S004", res.Exclusions[0].StudentID)
	assert.Equal(t, KindValidation, res.Exclusions[0].Kind)

	assert.Equal(t, 3, res.Summary.Students)
	require.Len(t, res.Summary.Rows, 2)
	assert.Equal(t, "Algebra", res.Summary.Rows[0].Topic)
	assert.Equal(t, 1, res.Summary.Rows[0].Affected)
	assert.InDelta(t, 1.0/6, res.Summary.Rows[0].MeanSeverity, 1e-9)
	assert.InDelta(t, 1.0/3, res.Summary.Rows[1].MeanSeverity, 1e-9)

	run, err := st.RunRepo().Get(ctx, res.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, 3, run.Students)
	assert.Equal(t, 1, run.Excluded)
	assert.Contains(t, run.Config, `"paper_length":3`)

	items, err := st.RunRepo().Paper(ctx, res.RunID, "S002")
	require.NoError(t, err)
	assert.Len(t, items, 3)

	excl, err := st.RunRepo().Exclusions(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, excl, 1)
	assert.Equal(t, "S004", excl[0].StudentID)
}

func TestRun_SecondRunAvoidsHistory(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	in := Inputs{
		Class:   loadClass(t),
		Table:   table(),
		Bank:    newBank(t, true),
		History: st.HistoryRepo(),
		Runs:    st.RunRepo(),
	}

	first, err := Run(ctx, in, testConfig())
	require.NoError(t, err)
	second, err := Run(ctx, in, testConfig())
	require.NoError(t, err)

	before := paperIDs(first.Students[1])
	after := paperIDs(second.Students[1])
	assert.Len(t, after, 3)
	for _, id := range before {
		assert.NotContains(t, after, id)
	}

	// Only one fresh question is left for S002; history fills the rest.
	third, err := Run(ctx, in, testConfig())
	require.NoError(t, err)
	p := third.Students[1].Paper
	assert.Len(t, p.Questions, 3)
	assert.False(t, p.Partial)
	assert.Len(t, p.Reused, 2)

	cfg := testConfig()
	cfg.FreshOnly = true
	fresh, err := Run(ctx, in, cfg)
	require.NoError(t, err)
	assert.True(t, fresh.Students[1].Paper.Partial)
}

func TestRun_InvalidWeightsFailBeforeAnyStudent(t *testing.T) {
	var historyCalls atomic.Int32
	cfg := testConfig()
	cfg.Weights = weakness.Weights{"mcq": 0.6, "assignment": 0.3, "participation": 0.2}

	res, err := Run(context.Background(), Inputs{
		Class:   loadClass(t),
		Table:   table(),
		Bank:    newBank(t, true),
		History: countingHistory{calls: &historyCalls},
	}, cfg)

	assert.Nil(t, res)
	var ce *errs.ConfigError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "weights", ce.Param)
	assert.Zero(t, historyCalls.Load())
}

func TestRun_UnmappedQuestions(t *testing.T) {
	tbl := table()
	delete(tbl, "q4")
	in := Inputs{Class: loadClass(t), Table: tbl, Bank: newBank(t, true)}

	_, err := Run(context.Background(), in, testConfig())
	var me *errs.MappingError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, []string{"q4"}, me.Unmapped)

	cfg := testConfig()
	cfg.IgnoreUnmapped = true
	res, err := Run(context.Background(), in, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"q4"}, res.Mapping.Ignored)
	assert.Len(t, res.Students, 3)
}

func TestRun_TaggerFillsGaps(t *testing.T) {
	tbl := table()
	delete(tbl, "q4")
	tagger := mapping.TaggerFunc(func(context.Context, string) (string, error) { return "Geometry", nil })

	var logs bytes.Buffer
	res, err := Run(context.Background(), Inputs{
		Class: loadClass(t), Table: tbl, Bank: newBank(t, true), Tagger: tagger,
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
	}, testConfig())
	require.NoError(t, err)
	assert.Equal(t, mapping.SourceTagger, res.Mapping.Source("q4"))
	assert.Equal(t, mapping.SourceStatic, res.Mapping.Source("q1"))
	assert.Contains(t, logs.String(), `msg="questions tagged by model"`)
	assert.Contains(t, logs.String(), "question_ids=[q4]")
}

func TestRun_EmptyBankExcludesOnlyThatStudent(t *testing.T) {
	res, err := Run(context.Background(), Inputs{
		Class: loadClass(t),
		Table: table(),
		Bank:  newBank(t, false),
	}, testConfig())
	require.NoError(t, err)

	require.Len(t, res.Students, 2)
	assert.Equal(t, "S001", res.Students[0].Profile.StudentID)
	assert.Equal(t, "S003", res.Students[1].Profile.StudentID)

	require.Len(t, res.Exclusions, 2)
	assert.Equal(t, "S002", res.Exclusions[0].StudentID)
	assert.Equal(t, KindEmptyBank, res.Exclusions[0].Kind)
	var eb *errs.EmptyBankError
	assert.True(t, errors.As(res.Exclusions[0].Err, &eb))

	assert.Equal(t, 2, res.Summary.Students, "excluded students do not count in the summary")
}

func TestRun_FallbackTopicKeepsStudent(t *testing.T) {
	cfg := testConfig()
	cfg.FallbackTopic = "Algebra"
	res, err := Run(context.Background(), Inputs{Class: loadClass(t), Table: table(), Bank: newBank(t, false)}, cfg)
	require.NoError(t, err)
	require.Len(t, res.Students, 3)
	for _, q := range res.Students[1].Paper.Questions {
		assert.Equal(t, "Algebra", q.Topic)
	}
}

func TestRun_Deterministic(t *testing.T) {
	in := Inputs{Class: loadClass(t), Table: table(), Bank: newBank(t, true)}
	cfg := testConfig()
	cfg.Workers = 8

	a, err := Run(context.Background(), in, cfg)
	require.NoError(t, err)
	b, err := Run(context.Background(), in, cfg)
	require.NoError(t, err)

	assert.Equal(t, a.Summary, b.Summary)
	require.Equal(t, len(a.Students), len(b.Students))
	for i := range a.Students {
		assert.Equal(t, paperIDs(a.Students[i]), paperIDs(b.Students[i]))
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, Inputs{Class: loadClass(t), Table: table(), Bank: newBank(t, true)}, testConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

type countingHistory struct {
	store.HistoryRepo
	calls *atomic.Int32
}

func (c countingHistory) AssignedQuestions(context.Context, string) ([]string, error) {
	c.calls.Add(1)
	return nil, nil
}
