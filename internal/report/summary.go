// Package report aggregates weakness profiles across a class and renders
// summaries and practice papers.
package report

import (
	"sort"

	"github.com/abhisek/papersmith/internal/weakness"
)

// Row is one topic of the class summary.
type Row struct {
	Topic string `json:"topic"`
	// Affected counts students whose severity exceeds the threshold.
	Affected int `json:"affected"`
	// Students counts students whose profile includes the topic.
	Students int `json:"students"`
	// MeanSeverity averages over Students.
	MeanSeverity float64 `json:"mean_severity"`
}

// Summary is the class-level topic table, sorted by topic.
type Summary struct {
	Students  int     `json:"students"`
	Threshold float64 `json:"threshold"`
	Rows      []Row   `json:"rows"`
}

// Summarize aggregates profiles. A student counts as affected by a topic
// when its severity is strictly greater than threshold. Nil profiles are
// skipped.
func Summarize(profiles []*weakness.Profile, threshold float64) Summary {
	type acc struct {
		affected, students int
		sum                float64
	}
	byTopic := make(map[string]*acc)
	s := Summary{Threshold: threshold}

	for _, p := range profiles {
		if p == nil {
			continue
		}
		s.Students++
		for _, tw := range p.Topics {
			a := byTopic[tw.Topic]
			if a == nil {
				a = &acc{}
				byTopic[tw.Topic] = a
			}
			a.students++
			a.sum += tw.Severity
			if tw.Severity > threshold {
				a.affected++
			}
		}
	}

	s.Rows = make([]Row, 0, len(byTopic))
	for topic, a := range byTopic {
		s.Rows = append(s.Rows, Row{
			Topic:        topic,
			Affected:     a.affected,
			Students:     a.students,
			MeanSeverity: a.sum / float64(a.students),
		})
	}
	sort.Slice(s.Rows, func(i, j int) bool { return s.Rows[i].Topic < s.Rows[j].Topic })
	return s
}

// MostAffected returns up to n rows ordered by affected count desc, then
// mean severity desc, then topic.
func (s Summary) MostAffected(n int) []Row {
	rows := append([]Row(nil), s.Rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Affected != b.Affected {
			return a.Affected > b.Affected
		}
		if a.MeanSeverity != b.MeanSeverity {
			return a.MeanSeverity > b.MeanSeverity
		}
		return a.Topic < b.Topic
	})
	if n < len(rows) {
		rows = rows[:n]
	}
	return rows
}
