package mapping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abhisek/papersmith/internal/errs"
	"github.com/abhisek/papersmith/internal/llm"
	"github.com/abhisek/papersmith/internal/syllabus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTaxonomy(t *testing.T) *syllabus.Taxonomy {
	t.Helper()
	tax, err := syllabus.New("Mathematics", "0580", []syllabus.Topic{
		{Number: "1", Name: "Number", Subtopics: []string{"Fractions"}},
		{Number: "2", Name: "Algebra", Subtopics: []string{"Linear equations"}},
		{Number: "4", Name: "Geometry"},
	})
	require.NoError(t, err)
	return tax
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestParseCSV(t *testing.T) {
	table, err := ParseCSV(strings.NewReader("question_id,topic\nq1, Algebra\nq2,Geometry\nq1,Algebra\n"))
	require.NoError(t, err)
	assert.Equal(t, Table{"q1": "Algebra", "q2": "Geometry"}, table)
	assert.Equal(t, []string{"Algebra", "Geometry"}, table.Topics())

	_, err = ParseCSV(strings.NewReader("q1,Algebra\nq1,Geometry\n"))
	assert.ErrorContains(t, err, "mapped to both")

	_, err = ParseCSV(strings.NewReader("q1,\n"))
	assert.ErrorContains(t, err, "empty entries")
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "mapping.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("q1: Algebra\nq2: Geometry\n"), 0o644))
	csvPath := filepath.Join(dir, "mapping.CSV")
	require.NoError(t, os.WriteFile(csvPath, []byte("q1,Algebra\n"), 0o644))

	table, err := LoadTable(yamlPath)
	require.NoError(t, err)
	topic, ok := table.Lookup("q2")
	assert.True(t, ok)
	assert.Equal(t, "Geometry", topic)

	table, err = LoadTable(csvPath)
	require.NoError(t, err)
	assert.Len(t, table, 1)

	_, err = LoadTable(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func questions(ids ...string) []Question {
	qs := make([]Question, len(ids))
	for i, id := range ids {
		qs[i] = Question{ID: id, Text: "text of " + id}
	}
	return qs
}

func TestResolve_UnmappedFails(t *testing.T) {
	table := Table{"q1": "Algebra"}
	_, err := Resolve(context.Background(), table, questions("q1", "q3", "q2"), nil, Options{})

	var me *errs.MappingError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, []string{"q2", "q3"}, me.Unmapped)
}

func TestResolve_IgnoreUnmappedLogsEach(t *testing.T) {
	var logs bytes.Buffer
	table := Table{"q1": "Algebra"}
	m, err := Resolve(context.Background(), table, questions("q1", "q2", "q3"), nil,
		Options{IgnoreUnmapped: true, Logger: quietLogger(&logs)})
	require.NoError(t, err)

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, []string{"q2", "q3"}, m.Ignored)
	assert.Equal(t, 2, strings.Count(logs.String(), "excluding unmapped question"))
}

func TestResolve_StaticWinsOverTagger(t *testing.T) {
	calls := 0
	tagger := TaggerFunc(func(context.Context, string) (string, error) {
		calls++
		return "Geometry", nil
	})
	m, err := Resolve(context.Background(), Table{"q1": "Algebra"}, questions("q1", "q2"), tagger, Options{})
	require.NoError(t, err)

	topic, _ := m.Topic("q1")
	assert.Equal(t, "Algebra", topic)
	assert.Equal(t, SourceStatic, m.Source("q1"))
	topic, _ = m.Topic("q2")
	assert.Equal(t, "Geometry", topic)
	assert.Equal(t, []string{"q2"}, m.Suggested())
	assert.Equal(t, 1, calls, "tagger only consulted for the gap")
}

func TestResolve_TaggerFailureFallsBack(t *testing.T) {
	var logs bytes.Buffer
	tagger := TaggerFunc(func(context.Context, string) (string, error) {
		return "", errors.New("timeout")
	})
	_, err := Resolve(context.Background(), Table{}, questions("q1"), tagger, Options{Logger: quietLogger(&logs)})

	var me *errs.MappingError
	require.True(t, errors.As(err, &me), "tagger failure leaves the question unmapped")
	assert.Contains(t, logs.String(), "topic tagger failed")
}

func TestResolve_RejectsOffSyllabusSuggestion(t *testing.T) {
	var logs bytes.Buffer
	tagger := TaggerFunc(func(context.Context, string) (string, error) { return "Calculus", nil })
	m, err := Resolve(context.Background(), Table{}, questions("q1"), tagger, Options{
		IgnoreUnmapped: true,
		Taxonomy:       testTaxonomy(t),
		Logger:         quietLogger(&logs),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
	assert.Contains(t, logs.String(), "outside the syllabus")
}

func TestResolve_QuestionsWithoutTextSkipTagger(t *testing.T) {
	tagger := TaggerFunc(func(context.Context, string) (string, error) {
		t.Fatal("tagger must not be called without question text")
		return "", nil
	})
	_, err := Resolve(context.Background(), Table{}, []Question{{ID: "q1"}}, tagger, Options{IgnoreUnmapped: true})
	assert.NoError(t, err)
}

func TestNewStatic(t *testing.T) {
	m := NewStatic(Table{"q1": "Algebra", "q2": "Algebra", "q3": "Number"})
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []string{"Algebra", "Number"}, m.Topics())
	assert.Empty(t, m.Suggested())
}

func TestLLMTagger(t *testing.T) {
	tax := testTaxonomy(t)
	tests := []struct {
		name    string
		content string
		want    string
		wantErr error
	}{
		{"subtopic", `{"topic":"Linear equations","confidence":0.9,"reasoning":"Solve for x."}`, "Linear equations", nil},
		{"null topic", `{"topic":null,"confidence":0.8,"reasoning":"Statistics question."}`, "", ErrNoSuggestion},
		{"low confidence", `{"topic":"Algebra","confidence":0.2,"reasoning":"Unsure."}`, "", ErrNoSuggestion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(tt.content)})
			tagger := NewLLMTagger(mock, tax, DefaultLLMTaggerConfig())

			got, err := tagger.SuggestTopic(context.Background(), "Solve 3x + 2 = 11.")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			require.Len(t, mock.Calls, 1)
			req := mock.Calls[0]
			assert.Equal(t, "topic-suggestion", req.Schema.Name)
			assert.Contains(t, req.Messages[0].Content, "  - Linear equations")
			assert.Contains(t, req.Messages[0].Content, "Solve 3x + 2 = 11.")
		})
	}
}

func TestLLMTagger_InventedTagIsError(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{
		Content: json.RawMessage(`{"topic":"Calculus","confidence":0.95,"reasoning":"Derivative."}`),
	})
	_, err := NewLLMTagger(mock, testTaxonomy(t), DefaultLLMTaggerConfig()).SuggestTopic(context.Background(), "d/dx x^2")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSuggestion)
}

func TestLLMTagger_ProviderErrorIsNotFatalToResolve(t *testing.T) {
	var logs bytes.Buffer
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}})
	tagger := NewLLMTagger(mock, testTaxonomy(t), DefaultLLMTaggerConfig())

	m, err := Resolve(context.Background(), Table{"q1": "Algebra"}, questions("q1", "q2"), tagger,
		Options{IgnoreUnmapped: true, Logger: quietLogger(&logs)})
	require.NoError(t, err)
	assert.Equal(t, []string{"q2"}, m.Ignored)
}

func TestDecodeTagDecision(t *testing.T) {
	prompt, err := buildTaggingMessage(testTaxonomy(t), "Solve 3x + 2 = 11.\nShow your working.")
	require.NoError(t, err)
	request := "[system]\n" + taggingSystemPrompt + "\n\n[user]\n" + prompt + "\n\n[schema: topic-suggestion]\n{}\n"

	d, err := DecodeTagDecision(request, `{"topic":"Linear equations","confidence":0.9,"reasoning":"Solve for x."}`)
	require.NoError(t, err)
	assert.Equal(t, "Solve 3x + 2 = 11.\nShow your working.", d.Question)
	assert.Equal(t, "Linear equations", d.Topic)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)
	assert.Equal(t, "Solve for x.", d.Reasoning)

	d, err = DecodeTagDecision(request, `{"topic":null,"confidence":0.7,"reasoning":"Statistics."}`)
	require.NoError(t, err)
	assert.Empty(t, d.Topic)

	d, err = DecodeTagDecision(request, "")
	require.Error(t, err)
	assert.Equal(t, "Solve 3x + 2 = 11.\nShow your working.", d.Question)
}
