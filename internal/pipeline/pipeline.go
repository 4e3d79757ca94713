// Package pipeline runs one class analysis end to end: resolve the topic
// mapping, score and assemble a paper for every student, aggregate the
// class summary and persist the run.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/papersmith/internal/bank"
	"github.com/abhisek/papersmith/internal/config"
	"github.com/abhisek/papersmith/internal/errs"
	"github.com/abhisek/papersmith/internal/mapping"
	"github.com/abhisek/papersmith/internal/paper"
	"github.com/abhisek/papersmith/internal/report"
	"github.com/abhisek/papersmith/internal/roster"
	"github.com/abhisek/papersmith/internal/store"
	"github.com/abhisek/papersmith/internal/syllabus"
	"github.com/abhisek/papersmith/internal/weakness"
)

// Exclusion kinds.
const (
	KindValidation = "validation"
	KindEmptyBank  = "empty_bank"
)

// Inputs are the loaded reference data and collaborators for a run.
// Taxonomy, Tagger, History, Runs and Logger are optional.
type Inputs struct {
	Class    *roster.Class
	Table    mapping.Table
	Bank     *bank.Bank
	Taxonomy *syllabus.Taxonomy
	Tagger   mapping.Tagger
	// History supplies previously assigned questions per student.
	History store.HistoryRepo
	// Runs persists the finished run when set.
	Runs   store.RunRepo
	Logger *slog.Logger
}

// Student is one scored student with their paper.
type Student struct {
	Profile *weakness.Profile `json:"profile"`
	Paper   *paper.Paper      `json:"paper"`
}

// Exclusion explains why a student got no paper.
type Exclusion struct {
	StudentID string `json:"student_id"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

// Result is the outcome of a run. Students and Exclusions are sorted by
// student ID.
type Result struct {
	RunID      string           `json:"run_id"`
	Config     config.Config    `json:"config"`
	Mapping    *mapping.Mapping `json:"-"`
	Students   []Student        `json:"students"`
	Exclusions []Exclusion      `json:"exclusions"`
	Summary    report.Summary   `json:"summary"`
}

// Profiles returns the successful students' profiles.
func (r *Result) Profiles() []*weakness.Profile {
	out := make([]*weakness.Profile, len(r.Students))
	for i, s := range r.Students {
		out[i] = s.Profile
	}
	return out
}

// outcome is one worker's result, written only at its own index.
type outcome struct {
	student   Student
	exclusion *Exclusion
}

// Run validates cfg, resolves the mapping and processes every student
// independently. ConfigError and MappingError are fatal; per-student
// ValidationError and EmptyBankError exclude only that student.
func Run(ctx context.Context, in Inputs, cfg config.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if in.Class == nil || in.Bank == nil {
		return nil, errors.New("pipeline: class and question bank are required")
	}
	log := in.Logger
	if log == nil {
		log = slog.Default()
	}

	start := time.Now()
	runID := uuid.NewString()
	log = log.With("run_id", runID)
	log.Info("analysis started",
		"students", len(in.Class.Records),
		"questions", len(in.Class.Layout.QuestionIDs),
		"bank_size", in.Bank.Len(),
		"paper_length", cfg.PaperLength)

	if in.Taxonomy != nil {
		if unknown := in.Taxonomy.Unknown(in.Bank.Topics()); len(unknown) > 0 {
			log.Warn("question bank references topics outside the syllabus", "topics", unknown)
		}
	}

	m, err := mapping.Resolve(ctx, in.Table, questions(in.Class.Layout.QuestionIDs, in.Bank), in.Tagger, mapping.Options{
		IgnoreUnmapped: cfg.IgnoreUnmapped,
		Taxonomy:       in.Taxonomy,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}
	if tagged := m.Suggested(); len(tagged) > 0 {
		log.Info("questions tagged by model", "count", len(tagged), "question_ids", tagged)
	}

	scoring := weakness.Config{QuestionIDs: in.Class.Layout.QuestionIDs, Weights: cfg.Weights}
	records := in.Class.Records
	outcomes := make([]outcome, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, rec := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := processStudent(gctx, in, m, rec, scoring, cfg)
			if err != nil {
				return fmt.Errorf("student %s: %w", rec.StudentID, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{RunID: runID, Config: cfg, Mapping: m}
	for _, ve := range in.Class.Rejected {
		res.Exclusions = append(res.Exclusions, exclusionFor(ve.StudentID, ve))
	}
	for _, o := range outcomes {
		if o.exclusion != nil {
			res.Exclusions = append(res.Exclusions, *o.exclusion)
			continue
		}
		res.Students = append(res.Students, o.student)
	}
	sort.Slice(res.Students, func(i, j int) bool {
		return res.Students[i].Profile.StudentID < res.Students[j].Profile.StudentID
	})
	sort.SliceStable(res.Exclusions, func(i, j int) bool {
		return res.Exclusions[i].StudentID < res.Exclusions[j].StudentID
	})
	for _, ex := range res.Exclusions {
		log.Warn("student excluded", "student_id", ex.StudentID, "kind", ex.Kind, "reason", ex.Reason)
	}

	res.Summary = report.Summarize(res.Profiles(), cfg.AffectedThreshold)

	if in.Runs != nil {
		data, err := runData(res)
		if err != nil {
			return nil, err
		}
		if err := in.Runs.Save(ctx, data); err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
	}

	log.Info("analysis finished",
		"papers", len(res.Students),
		"excluded", len(res.Exclusions),
		"topics", len(res.Summary.Rows),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

func processStudent(ctx context.Context, in Inputs, m *mapping.Mapping, rec roster.Record, scoring weakness.Config, cfg config.Config) (outcome, error) {
	prof, err := weakness.Score(rec, m, cfg.Signals, scoring)
	if err != nil {
		return excluded(rec.StudentID, err)
	}

	var history paper.History
	if in.History != nil {
		ids, err := in.History.AssignedQuestions(ctx, rec.StudentID)
		if err != nil {
			return outcome{}, fmt.Errorf("load history: %w", err)
		}
		history = paper.NewHistory(ids...)
	}

	p, err := paper.Assemble(prof, in.Bank, history, cfg.Paper())
	if err != nil {
		return excluded(rec.StudentID, err)
	}
	return outcome{student: Student{Profile: prof, Paper: p}}, nil
}

// excluded turns a per-student error into an exclusion. Anything else is
// returned as fatal.
func excluded(studentID string, err error) (outcome, error) {
	var ve *errs.ValidationError
	var eb *errs.EmptyBankError
	if errors.As(err, &ve) || errors.As(err, &eb) {
		ex := exclusionFor(studentID, err)
		return outcome{exclusion: &ex}, nil
	}
	return outcome{}, err
}

func exclusionFor(studentID string, err error) Exclusion {
	kind := KindValidation
	var eb *errs.EmptyBankError
	if errors.As(err, &eb) {
		kind = KindEmptyBank
	}
	return Exclusion{StudentID: studentID, Kind: kind, Reason: err.Error(), Err: err}
}

// questions pairs test question IDs with bank text of the same ID, which
// gives the tagger something to read.
func questions(ids []string, b *bank.Bank) []mapping.Question {
	qs := make([]mapping.Question, len(ids))
	for i, id := range ids {
		qs[i] = mapping.Question{ID: id}
		if e, ok := b.Get(id); ok {
			qs[i].Text = e.Text
		}
	}
	return qs
}

func runData(res *Result) (*store.RunData, error) {
	cfgJSON, err := json.Marshal(res.Config)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	data := &store.RunData{
		Run: store.Run{
			ID:          res.RunID,
			PaperLength: res.Config.PaperLength,
			Students:    len(res.Students),
			Excluded:    len(res.Exclusions),
			Config:      string(cfgJSON),
		},
	}
	for _, r := range res.Summary.Rows {
		data.Summary = append(data.Summary, store.SummaryRow{Topic: r.Topic, Affected: r.Affected, Students: r.Students, MeanSeverity: r.MeanSeverity})
	}
	for _, s := range res.Students {
		for i, tw := range s.Profile.Topics {
			data.Profiles = append(data.Profiles, store.ProfileRow{
				StudentID: tw.StudentID,
				Rank:      i + 1,
				Topic:     tw.Topic,
				Severity:  tw.Severity,
				Attempted: tw.Attempted,
				Correct:   tw.Correct,
			})
		}
		for i, q := range s.Paper.Questions {
			data.Items = append(data.Items, store.PaperItem{
				StudentID:  s.Paper.StudentID,
				Position:   i + 1,
				QuestionID: q.ID,
				Topic:      q.Topic,
				Difficulty: string(q.Difficulty),
			})
		}
	}
	for _, ex := range res.Exclusions {
		data.Exclusions = append(data.Exclusions, store.Exclusion{StudentID: ex.StudentID, Kind: ex.Kind, Reason: ex.Reason})
	}
	return data, nil
}
