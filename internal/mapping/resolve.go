package mapping

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/abhisek/papersmith/internal/errs"
	"github.com/abhisek/papersmith/internal/syllabus"
)

// Question identifies one MCQ test question. Text is only needed when a
// Tagger is asked to fill a gap in the static table.
type Question struct {
	ID   string
	Text string
}

// Source records where a resolved topic came from.
type Source string

const (
	SourceStatic Source = "static"
	SourceTagger Source = "tagger"
)

// Options controls resolution.
type Options struct {
	// IgnoreUnmapped drops unresolved questions from scoring instead of
	// failing with a MappingError.
	IgnoreUnmapped bool
	// Taxonomy, when set, restricts tagger suggestions to known tags and is
	// used to warn about unknown static topics.
	Taxonomy *syllabus.Taxonomy
	Logger   *slog.Logger
}

// Mapping is the resolved question -> topic assignment for one test.
type Mapping struct {
	topics  map[string]string
	sources map[string]Source
	// Ignored lists questions excluded from scoring, sorted.
	Ignored []string
}

// Topic returns the topic of a test question.
func (m *Mapping) Topic(questionID string) (string, bool) {
	t, ok := m.topics[questionID]
	return t, ok
}

// Source reports how a question's topic was resolved.
func (m *Mapping) Source(questionID string) Source {
	return m.sources[questionID]
}

// Len returns the number of mapped questions.
func (m *Mapping) Len() int { return len(m.topics) }

// Topics returns the distinct mapped topics, sorted.
func (m *Mapping) Topics() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range m.topics {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Suggested returns the question ids whose topic came from the tagger.
func (m *Mapping) Suggested() []string {
	var ids []string
	for id, src := range m.sources {
		if src == SourceTagger {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// NewStatic builds a Mapping directly from a table, for callers that have no
// tagger and want the table used verbatim.
func NewStatic(t Table) *Mapping {
	m := &Mapping{topics: make(map[string]string, len(t)), sources: make(map[string]Source, len(t))}
	for id, topic := range t {
		m.topics[id] = topic
		m.sources[id] = SourceStatic
	}
	return m
}

// Resolve maps every test question to a topic. The static table always
// wins; the tagger is consulted only for questions the table lacks. Tagger
// failures are logged and never fatal. Questions that remain unmapped fail
// the run with a MappingError unless opts.IgnoreUnmapped is set.
func Resolve(ctx context.Context, table Table, questions []Question, tagger Tagger, opts Options) (*Mapping, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if tagger == nil {
		tagger = NopTagger{}
	}

	if opts.Taxonomy != nil {
		if unknown := opts.Taxonomy.Unknown(table.Topics()); len(unknown) > 0 {
			log.Warn("mapping table references topics outside the syllabus", "topics", strings.Join(unknown, ", "))
		}
	}

	m := &Mapping{
		topics:  make(map[string]string, len(questions)),
		sources: make(map[string]Source, len(questions)),
	}
	var unmapped []string

	for _, q := range questions {
		if topic, ok := table.Lookup(q.ID); ok {
			m.topics[q.ID] = topic
			m.sources[q.ID] = SourceStatic
			continue
		}
		if topic, ok := suggest(ctx, tagger, q, opts.Taxonomy, log); ok {
			m.topics[q.ID] = topic
			m.sources[q.ID] = SourceTagger
			continue
		}
		unmapped = append(unmapped, q.ID)
	}

	if len(unmapped) == 0 {
		return m, nil
	}
	sort.Strings(unmapped)
	if !opts.IgnoreUnmapped {
		return nil, &errs.MappingError{Unmapped: unmapped}
	}
	for _, id := range unmapped {
		log.Warn("excluding unmapped question from severity computation", "question_id", id)
	}
	m.Ignored = unmapped
	return m, nil
}

func suggest(ctx context.Context, tagger Tagger, q Question, tax *syllabus.Taxonomy, log *slog.Logger) (string, bool) {
	if strings.TrimSpace(q.Text) == "" {
		return "", false
	}
	topic, err := tagger.SuggestTopic(ctx, q.Text)
	if err != nil {
		if !errors.Is(err, ErrNoSuggestion) {
			log.Warn("topic tagger failed, falling back to static mapping", "question_id", q.ID, "error", err)
		}
		return "", false
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", false
	}
	if tax != nil && !tax.Has(topic) {
		log.Warn("topic tagger suggested a tag outside the syllabus", "question_id", q.ID, "topic", topic)
		return "", false
	}
	log.Info("topic suggested by tagger", "question_id", q.ID, "topic", topic)
	return topic, true
}
