// Package weakness turns one student's assessment record into a ranked
// list of weak syllabus topics.
package weakness

import (
	"fmt"
	"math"
	"sort"

	"github.com/abhisek/papersmith/internal/errs"
	"github.com/abhisek/papersmith/internal/roster"
)

// TopicLookup resolves a test question to its topic. *mapping.Mapping
// satisfies it.
type TopicLookup interface {
	Topic(questionID string) (string, bool)
}

// Signals says which non-MCQ scores inform which topics.
type Signals struct {
	// AssignmentTopics maps an assignment name to the topics it covers.
	AssignmentTopics map[string][]string `mapstructure:"assignment_topics" yaml:"assignment_topics" json:"assignment_topics"`
	// WeekTopics maps a 1-based week number to the topics taught that week.
	WeekTopics map[int][]string `mapstructure:"week_topics" yaml:"week_topics" json:"week_topics"`
	// AssignmentMax and ParticipationMax are full marks used to normalize
	// raw scores. Zero means 100.
	AssignmentMax    float64 `mapstructure:"assignment_max" yaml:"assignment_max" json:"assignment_max"`
	ParticipationMax float64 `mapstructure:"participation_max" yaml:"participation_max" json:"participation_max"`
}

// Config controls scoring for a class.
type Config struct {
	// QuestionIDs names the MCQ questions in answer order.
	QuestionIDs []string
	Weights     Weights
}

// TopicWeakness is one topic's severity for one student.
type TopicWeakness struct {
	StudentID string  `json:"student_id"`
	Topic     string  `json:"topic"`
	Severity  float64 `json:"severity"`
	// Attempted and Correct count the student's MCQ answers on the topic.
	Attempted int `json:"attempted"`
	Correct   int `json:"correct"`
}

// Accuracy is the MCQ hit rate on the topic.
func (t TopicWeakness) Accuracy() float64 {
	if t.Attempted == 0 {
		return 0
	}
	return float64(t.Correct) / float64(t.Attempted)
}

// Profile is a student's topics ordered by severity desc, then topic asc.
// It is never modified after Score returns it.
type Profile struct {
	StudentID string          `json:"student_id"`
	Topics    []TopicWeakness `json:"topics"`
}

// Len returns the number of scored topics.
func (p *Profile) Len() int { return len(p.Topics) }

// Top returns the k weakest topics; k beyond the profile length is capped.
func (p *Profile) Top(k int) []TopicWeakness {
	if k > len(p.Topics) {
		k = len(p.Topics)
	}
	if k < 0 {
		k = 0
	}
	return p.Topics[:k]
}

// Lookup returns the entry for topic.
func (p *Profile) Lookup(topic string) (TopicWeakness, bool) {
	for _, t := range p.Topics {
		if t.Topic == topic {
			return t, true
		}
	}
	return TopicWeakness{}, false
}

// Score computes rec's weakness profile.
//
// MCQ severity is 1 - correct/attempted over the topic's mapped questions.
// Assignment and participation severities are 1 - the mean normalized
// score of the entries that touch the topic. The blend weights signals
// present for the topic and renormalizes over them, so a topic no
// assignment covers is scored on the remaining signals alone. Topics with
// no attempted MCQ question are left out.
func Score(rec roster.Record, topics TopicLookup, sig Signals, cfg Config) (*Profile, error) {
	weights := cfg.Weights
	if weights == nil {
		weights = DefaultWeights()
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if len(rec.Answers) != len(cfg.QuestionIDs) {
		return nil, &errs.ValidationError{
			StudentID: rec.StudentID,
			Field:     "answers",
			Reason:    fmt.Sprintf("expected %d answers, got %d", len(cfg.QuestionIDs), len(rec.Answers)),
		}
	}

	type tally struct{ attempted, correct int }
	tallies := make(map[string]*tally)
	for i, qid := range cfg.QuestionIDs {
		a := rec.Answers[i]
		if a != 0 && a != 1 {
			return nil, &errs.ValidationError{
				StudentID: rec.StudentID,
				Field:     qid,
				Reason:    fmt.Sprintf("answer must be 0 or 1, got %d", a),
			}
		}
		topic, ok := topics.Topic(qid)
		if !ok {
			continue
		}
		t := tallies[topic]
		if t == nil {
			t = &tally{}
			tallies[topic] = t
		}
		t.attempted++
		t.correct += a
	}

	asg := assignmentSeverities(rec, sig)
	part := participationSeverities(rec, sig)

	p := &Profile{StudentID: rec.StudentID, Topics: make([]TopicWeakness, 0, len(tallies))}
	for topic, t := range tallies {
		if t.attempted == 0 {
			continue
		}
		mcq := 1 - float64(t.correct)/float64(t.attempted)
		sev := blend(weights, mcq, asg[topic], part[topic])
		p.Topics = append(p.Topics, TopicWeakness{
			StudentID: rec.StudentID,
			Topic:     topic,
			Severity:  clamp01(sev),
			Attempted: t.attempted,
			Correct:   t.correct,
		})
	}
	sort.Slice(p.Topics, func(i, j int) bool {
		a, b := p.Topics[i], p.Topics[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		return a.Topic < b.Topic
	})
	return p, nil
}

// meanAcc accumulates normalized scores for one topic.
type meanAcc struct {
	sum float64
	n   int
}

func (m *meanAcc) severity() (float64, bool) {
	if m == nil || m.n == 0 {
		return 0, false
	}
	return 1 - m.sum/float64(m.n), true
}

func assignmentSeverities(rec roster.Record, sig Signals) map[string]*meanAcc {
	out := make(map[string]*meanAcc)
	max := orDefault(sig.AssignmentMax)
	for name, topics := range sig.AssignmentTopics {
		score, ok := rec.Assignments[name]
		if !ok {
			continue
		}
		addScore(out, topics, clamp01(score/max))
	}
	return out
}

func participationSeverities(rec roster.Record, sig Signals) map[string]*meanAcc {
	out := make(map[string]*meanAcc)
	max := orDefault(sig.ParticipationMax)
	for week, topics := range sig.WeekTopics {
		if week < 1 || week > len(rec.Participation) {
			continue
		}
		addScore(out, topics, clamp01(rec.Participation[week-1]/max))
	}
	return out
}

func addScore(into map[string]*meanAcc, topics []string, v float64) {
	for _, topic := range topics {
		acc := into[topic]
		if acc == nil {
			acc = &meanAcc{}
			into[topic] = acc
		}
		acc.sum += v
		acc.n++
	}
}

// blend returns the weighted mean of the signals present. If every present
// signal has zero weight the MCQ severity is used on its own.
func blend(w Weights, mcq float64, asg, part *meanAcc) float64 {
	total := w[SignalMCQ] * mcq
	weight := w[SignalMCQ]
	if s, ok := asg.severity(); ok {
		total += w[SignalAssignment] * s
		weight += w[SignalAssignment]
	}
	if s, ok := part.severity(); ok {
		total += w[SignalParticipation] * s
		weight += w[SignalParticipation]
	}
	if weight == 0 {
		return mcq
	}
	return total / weight
}

func orDefault(max float64) float64 {
	if max <= 0 {
		return 100
	}
	return max
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
