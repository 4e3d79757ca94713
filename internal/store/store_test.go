package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)

	// journal_mode reports "memory" for in-memory databases.
	for pragma, want := range map[string]string{"foreign_keys": "1", "synchronous": "1"} {
		var got string
		require.NoError(t, s.DB().QueryRow("PRAGMA "+pragma).Scan(&got))
		assert.Equal(t, want, got, pragma)
	}
}

func TestMigrationCreatesTables(t *testing.T) {
	s := openTestStore(t)
	for _, table := range []string{"runs", "summary_rows", "profiles", "paper_items", "exclusions", "llm_requests", "global_sequence"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestSequenceCounter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := s.seq.Next(ctx, s.DB())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func sampleRun(id string) *RunData {
	return &RunData{
		Run: Run{ID: id, PaperLength: 3, Students: 2, Excluded: 1, Config: `{"paper_length":3}`},
		Summary: []SummaryRow{
			{Topic: "Geometry", Affected: 1, Students: 2, MeanSeverity: 0.75},
			{Topic: "Algebra", Affected: 1, Students: 2, MeanSeverity: 1.0 / 3},
		},
		Profiles: []ProfileRow{
			{StudentID: "S001", Rank: 1, Topic: "Geometry", Severity: 0.75, Attempted: 4, Correct: 1},
			{StudentID: "S001", Rank: 2, Topic: "Algebra", Severity: 1.0 / 3, Attempted: 3, Correct: 2},
		},
		Items: []PaperItem{
			{StudentID: "S001", Position: 1, QuestionID: "G-01", Topic: "Geometry", Difficulty: "easy"},
			{StudentID: "S001", Position: 2, QuestionID: "G-02", Topic: "Geometry", Difficulty: "easy"},
			{StudentID: "S001", Position: 3, QuestionID: "A-01", Topic: "Algebra", Difficulty: "medium"},
		},
		Exclusions: []Exclusion{{StudentID: "S002", Kind: "validation", Reason: "answers: expected 7 values, got 6"}},
	}
}

func TestRunRepo_SaveAndRead(t *testing.T) {
	s := openTestStore(t)
	repo := s.RunRepo()
	ctx := context.Background()

	data := sampleRun("run-1")
	require.NoError(t, repo.Save(ctx, data))
	assert.Equal(t, int64(1), data.Run.Sequence)
	assert.False(t, data.Run.CreatedAt.IsZero())

	run, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, 3, run.PaperLength)
	assert.Equal(t, 1, run.Excluded)
	assert.JSONEq(t, `{"paper_length":3}`, run.Config)
	assert.WithinDuration(t, data.Run.CreatedAt, run.CreatedAt, time.Millisecond)

	summary, err := repo.Summary(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, "Algebra", summary[0].Topic, "summary rows come back sorted by topic")
	assert.Equal(t, 2, summary[0].Students)

	profile, err := repo.Profile(ctx, "run-1", "S001")
	require.NoError(t, err)
	require.Len(t, profile, 2)
	assert.Equal(t, "Geometry", profile[0].Topic)

	paper, err := repo.Paper(ctx, "run-1", "S001")
	require.NoError(t, err)
	require.Len(t, paper, 3)
	assert.Equal(t, "A-01", paper[2].QuestionID)

	ex, err := repo.Exclusions(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []Exclusion{{StudentID: "S002", Kind: "validation", Reason: "answers: expected 7 values, got 6"}}, ex)
}

func TestRunRepo_GetMissing(t *testing.T) {
	s := openTestStore(t)
	run, err := s.RunRepo().Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestRunRepo_DuplicateIDRollsBack(t *testing.T) {
	s := openTestStore(t)
	repo := s.RunRepo()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleRun("run-1")))
	assert.Error(t, repo.Save(ctx, sampleRun("run-1")))

	runs, err := repo.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunRepo_ListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	repo := s.RunRepo()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Save(ctx, &RunData{Run: Run{ID: id, PaperLength: 5}}))
	}
	runs, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
}

func TestHistoryRepo(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RunRepo().Save(ctx, sampleRun("run-1")))
	second := &RunData{
		Run: Run{ID: "run-2", PaperLength: 2, Students: 1},
		Items: []PaperItem{
			{StudentID: "S001", Position: 1, QuestionID: "G-02", Topic: "Geometry", Difficulty: "easy"},
			{StudentID: "S001", Position: 2, QuestionID: "G-03", Topic: "Geometry", Difficulty: "medium"},
		},
	}
	require.NoError(t, s.RunRepo().Save(ctx, second))

	ids, err := s.HistoryRepo().AssignedQuestions(ctx, "S001")
	require.NoError(t, err)
	assert.Equal(t, []string{"A-01", "G-01", "G-02", "G-03"}, ids)

	entries, err := s.HistoryRepo().Entries(ctx, "S001")
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, "run-2", entries[0].RunID)
	assert.Equal(t, "G-02", entries[0].QuestionID)

	none, err := s.HistoryRepo().AssignedQuestions(ctx, "S999")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEventRepo(t *testing.T) {
	s := openTestStore(t)
	repo := s.EventRepo()
	ctx := context.Background()

	events := []LLMRequestEventData{
		{Provider: "anthropic", Model: "claude-haiku-4-5-20251001", Purpose: "topic-tagging", InputTokens: 100, OutputTokens: 10, LatencyMs: 200, Success: true},
		{Provider: "anthropic", Model: "claude-haiku-4-5-20251001", Purpose: "topic-tagging", InputTokens: 80, OutputTokens: 0, LatencyMs: 400, ErrorMessage: "rate limited"},
		{Provider: "openai", Model: "gpt-4o-mini", Purpose: "other", InputTokens: 10, OutputTokens: 5, LatencyMs: 100, Success: true},
	}
	for _, e := range events {
		require.NoError(t, repo.AppendLLMRequest(ctx, e))
	}

	all, err := repo.QueryLLMEvents(ctx, QueryOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "gpt-4o-mini", all[0].Model, "newest first")
	assert.Greater(t, all[0].Sequence, all[1].Sequence)

	tagging, err := repo.QueryLLMEvents(ctx, QueryOpts{Purpose: "topic-tagging", Limit: 1})
	require.NoError(t, err)
	require.Len(t, tagging, 1)
	assert.False(t, tagging[0].Success)
	assert.Equal(t, "rate limited", tagging[0].ErrorMessage)

	got, err := repo.GetLLMEvent(ctx, all[2].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Success)
	missing, err := repo.GetLLMEvent(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	byPurpose, err := repo.LLMUsageByPurpose(ctx)
	require.NoError(t, err)
	require.Len(t, byPurpose, 2)
	assert.Equal(t, PurposeUsage{Purpose: "topic-tagging", Calls: 2, InputTokens: 180, OutputTokens: 10, AvgLatencyMs: 300}, byPurpose[1])

	byModel, err := repo.LLMUsageByModel(ctx)
	require.NoError(t, err)
	require.Len(t, byModel, 2)
	assert.Equal(t, "claude-haiku-4-5-20251001", byModel[0].Model)
	assert.Equal(t, 2, byModel[0].Calls)
}
