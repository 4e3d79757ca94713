package store

import (
	"context"
	"time"
)

// QueryOpts filters and pages event queries.
type QueryOpts struct {
	Limit   int    // max results (0 = unlimited)
	Purpose string // exact purpose match when set
}

// LLMRequestEventData captures one model call.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMEvent is a stored LLM request.
type LLMEvent struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// PurposeUsage aggregates calls per purpose.
type PurposeUsage struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// ModelUsage aggregates tokens per model for cost estimates.
type ModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}

// EventRepo appends and queries LLM request events.
type EventRepo interface {
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error
	// QueryLLMEvents returns events newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEvent, error)
	// GetLLMEvent returns nil when id does not exist.
	GetLLMEvent(ctx context.Context, id int) (*LLMEvent, error)
	LLMUsageByPurpose(ctx context.Context) ([]PurposeUsage, error)
	LLMUsageByModel(ctx context.Context) ([]ModelUsage, error)
}

// Run is one stored pipeline execution.
type Run struct {
	ID          string    `json:"id"`
	Sequence    int64     `json:"sequence"`
	CreatedAt   time.Time `json:"created_at"`
	PaperLength int       `json:"paper_length"`
	Students    int       `json:"students"`
	Excluded    int       `json:"excluded"`
	// Config is the JSON-encoded run configuration.
	Config string `json:"config"`
}

// SummaryRow is one topic of a class summary.
type SummaryRow struct {
	Topic        string  `json:"topic"`
	Affected     int     `json:"affected"`
	Students     int     `json:"students"`
	MeanSeverity float64 `json:"mean_severity"`
}

// ProfileRow is one ranked topic of a student's weakness profile.
type ProfileRow struct {
	StudentID string  `json:"student_id"`
	Rank      int     `json:"rank"`
	Topic     string  `json:"topic"`
	Severity  float64 `json:"severity"`
	Attempted int     `json:"attempted"`
	Correct   int     `json:"correct"`
}

// PaperItem is one question placed on a student's paper.
type PaperItem struct {
	StudentID  string `json:"student_id"`
	Position   int    `json:"position"`
	QuestionID string `json:"question_id"`
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
}

// Exclusion records why a student got no paper.
type Exclusion struct {
	StudentID string `json:"student_id"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
}

// RunData is everything persisted for a run, written atomically.
type RunData struct {
	Run        Run
	Summary    []SummaryRow
	Profiles   []ProfileRow
	Items      []PaperItem
	Exclusions []Exclusion
}

// RunRepo stores and reads back runs.
type RunRepo interface {
	// Save writes data in one transaction and fills in Sequence and
	// CreatedAt when zero.
	Save(ctx context.Context, data *RunData) error
	// List returns runs newest first.
	List(ctx context.Context, limit int) ([]Run, error)
	// Get returns nil when the run does not exist.
	Get(ctx context.Context, id string) (*Run, error)
	Summary(ctx context.Context, runID string) ([]SummaryRow, error)
	Profile(ctx context.Context, runID, studentID string) ([]ProfileRow, error)
	Paper(ctx context.Context, runID, studentID string) ([]PaperItem, error)
	Exclusions(ctx context.Context, runID string) ([]Exclusion, error)
}

// HistoryEntry is a question assigned to a student in an earlier run.
type HistoryEntry struct {
	RunID      string    `json:"run_id"`
	AssignedAt time.Time `json:"assigned_at"`
	QuestionID string    `json:"question_id"`
	Topic      string    `json:"topic"`
	Difficulty string    `json:"difficulty"`
}

// HistoryRepo answers which questions a student has already been given.
type HistoryRepo interface {
	// AssignedQuestions returns distinct question IDs, sorted.
	AssignedQuestions(ctx context.Context, studentID string) ([]string, error)
	// Entries returns the student's assignments, newest run first.
	Entries(ctx context.Context, studentID string) ([]HistoryEntry, error)
}
