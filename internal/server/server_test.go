package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/papersmith/internal/store"
)

func setup(t *testing.T) http.Handler {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	err = st.RunRepo().Save(context.Background(), &store.RunData{
		Run: store.Run{ID: "run-1", PaperLength: 2, Students: 1, Excluded: 1, Config: "{}"},
		Summary: []store.SummaryRow{
			{Topic: "Algebra", Affected: 1, MeanSeverity: 0.5},
		},
		Profiles: []store.ProfileRow{
			{StudentID: "S001", Rank: 1, Topic: "Algebra", Severity: 0.5, Attempted: 2, Correct: 1},
		},
		Items: []store.PaperItem{
			{StudentID: "S001", Position: 1, QuestionID: "A-02", Topic: "Algebra", Difficulty: "medium"},
			{StudentID: "S001", Position: 2, QuestionID: "A-03", Topic: "Algebra", Difficulty: "hard"},
		},
		Exclusions: []store.Exclusion{{StudentID: "S004", Kind: "validation", Reason: "bad answer"}},
	})
	require.NoError(t, err)
	return New(st.RunRepo(), st.HistoryRepo()).Router()
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	rec, body := get(t, setup(t), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", body["status"])
}

func TestListRuns(t *testing.T) {
	h := setup(t)
	rec, _ := get(t, h, "/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)

	rec, body := get(t, h, "/runs?limit=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "limit")
}

func TestRunAndSummary(t *testing.T) {
	h := setup(t)

	rec, body := get(t, h, "/runs/run-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", body["id"])

	rec, body = get(t, h, "/runs/run-1/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := body["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "Algebra", rows[0].(map[string]any)["topic"])

	rec, _ = get(t, h, "/runs/run-1/exclusions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "S004")
}

func TestMissingRun(t *testing.T) {
	h := setup(t)
	for _, path := range []string{"/runs/nope", "/runs/nope/summary", "/runs/nope/papers/S001"} {
		rec, body := get(t, h, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Contains(t, body["error"], "nope", path)
	}
}

func TestPaper(t *testing.T) {
	h := setup(t)

	rec, body := get(t, h, "/runs/run-1/papers/S001")
	require.Equal(t, http.StatusOK, rec.Code)
	qs := body["questions"].([]any)
	require.Len(t, qs, 2)
	assert.Equal(t, "A-02", qs[0].(map[string]any)["question_id"])
	assert.Len(t, body["profile"], 1)

	rec, _ = get(t, h, "/runs/run-1/papers/S999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory(t *testing.T) {
	h := setup(t)

	rec, body := get(t, h, "/students/S001/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["entries"], 2)

	rec, body = get(t, h, "/students/S404/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["entries"])
}
