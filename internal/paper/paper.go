// Package paper assembles a personalized practice paper from a weakness
// profile and the question bank.
package paper

import (
	"fmt"

	"github.com/abhisek/papersmith/internal/bank"
	"github.com/abhisek/papersmith/internal/errs"
	"github.com/abhisek/papersmith/internal/weakness"
)

// Config controls assembly.
type Config struct {
	// Length is the requested number of questions (N).
	Length int `yaml:"length" json:"length"`
	// TopK is how many of the weakest topics receive a quota. Zero means
	// DefaultTopK(Length).
	TopK int `yaml:"top_k" json:"top_k"`
	// FallbackTopic absorbs quota no profile topic can serve.
	FallbackTopic string `yaml:"fallback_topic" json:"fallback_topic"`
	// FreshOnly never repeats a previously assigned question, even when
	// that leaves the paper short. By default history questions fill a
	// shortfall after every fresh question has been considered.
	FreshOnly bool `yaml:"fresh_only" json:"fresh_only"`
}

// Validate reports invalid parameters as *errs.ConfigError.
func (c Config) Validate() error {
	if c.Length <= 0 {
		return &errs.ConfigError{Param: "paper_length", Reason: fmt.Sprintf("must be positive, got %d", c.Length)}
	}
	if c.TopK < 0 {
		return &errs.ConfigError{Param: "top_k", Reason: fmt.Sprintf("must not be negative, got %d", c.TopK)}
	}
	return nil
}

// History is the set of question IDs already given to a student.
type History map[string]bool

func NewHistory(ids ...string) History {
	h := make(History, len(ids))
	for _, id := range ids {
		h[id] = true
	}
	return h
}

// Allocation records how one topic's quota was met.
type Allocation struct {
	Topic    string          `json:"topic"`
	Severity float64         `json:"severity"`
	Band     bank.Difficulty `json:"band"`
	Quota    int             `json:"quota"`
	Selected int             `json:"selected"`
}

// Paper is one student's practice paper.
type Paper struct {
	StudentID   string       `json:"student_id"`
	Requested   int          `json:"requested"`
	Questions   []bank.Entry `json:"questions"`
	Allocations []Allocation `json:"allocations"`
	// Reused lists questions taken from the student's history.
	Reused []string `json:"reused,omitempty"`
	// Partial is set when the bank could not supply Requested questions.
	Partial   bool `json:"partial"`
	Shortfall int  `json:"shortfall"`
}

// Assemble builds a paper for profile.
//
// The top-K topics get quotas proportional to severity. Each topic draws
// from its starting difficulty band outward, skipping questions in history.
// Quota a topic cannot serve spills to the next weaker topics, then the
// fallback topic, then stronger topics. A second pass repeats the same
// procedure over history questions unless FreshOnly is set, so the paper
// has min(Length, distinct questions available) entries.
//
// EmptyBankError is returned when one of the top-K topics has no bank
// entries at all and no fallback topic is configured. Weaker profile topics
// beyond K only receive spill, so an empty bank for them is not an error.
func Assemble(profile *weakness.Profile, b *bank.Bank, history History, cfg Config) (*Paper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	k := cfg.TopK
	if k == 0 {
		k = DefaultTopK(cfg.Length)
	}
	selected := profile.Top(k)

	for _, tw := range selected {
		if b.Count(tw.Topic) == 0 && cfg.FallbackTopic == "" {
			return nil, &errs.EmptyBankError{StudentID: profile.StudentID, Topic: tw.Topic}
		}
	}

	a := &assembler{
		bank:    b,
		history: history,
		profile: profile.Topics,
		cfg:     cfg,
		used:    make(map[string]bool),
		picks:   make(map[string][]bank.Entry),
		pools:   make(map[string][]bank.Entry),
	}

	severities := make([]float64, len(selected))
	for i, tw := range selected {
		severities[i] = tw.Severity
	}
	quotas := Quotas(severities, cfg.Length)
	need := append([]int(nil), quotas...)
	switch {
	case len(selected) > 0:
		a.fill(need, selected)
	case cfg.FallbackTopic != "":
		// Nothing scored; the fallback topic carries the whole paper.
		a.fill([]int{cfg.Length}, nil)
	}

	p := &Paper{StudentID: profile.StudentID, Requested: cfg.Length}
	for i, tw := range selected {
		p.Allocations = append(p.Allocations, Allocation{
			Topic:    tw.Topic,
			Severity: tw.Severity,
			Band:     BandFor(tw.Accuracy()),
			Quota:    quotas[i],
			Selected: len(a.picks[tw.Topic]),
		})
	}
	for _, topic := range a.emitOrder(selected) {
		if !inTop(selected, topic) {
			// Spill target: no quota of its own.
			p.Allocations = append(p.Allocations, Allocation{
				Topic:    topic,
				Band:     a.band(topic),
				Selected: len(a.picks[topic]),
			})
		}
		for _, e := range a.picks[topic] {
			p.Questions = append(p.Questions, e)
			if history[e.ID] {
				p.Reused = append(p.Reused, e.ID)
			}
		}
	}
	p.Shortfall = cfg.Length - len(p.Questions)
	p.Partial = p.Shortfall > 0
	return p, nil
}

type assembler struct {
	bank    *bank.Bank
	history History
	profile []weakness.TopicWeakness
	cfg     Config

	used  map[string]bool
	picks map[string][]bank.Entry
	pools map[string][]bank.Entry
}

// fill runs the fresh pass and, unless FreshOnly, the history pass. With no
// selected topics need[0] is served by the fallback topic alone.
func (a *assembler) fill(need []int, selected []weakness.TopicWeakness) {
	passes := []bool{false}
	if !a.cfg.FreshOnly {
		passes = append(passes, true)
	}
	for _, reused := range passes {
		if len(selected) == 0 {
			need[0] -= a.take(a.cfg.FallbackTopic, need[0], reused)
			continue
		}
		for i, tw := range selected {
			need[i] -= a.take(tw.Topic, need[i], reused)
		}
		for i := range selected {
			for _, topic := range a.spillOrder(i) {
				if need[i] == 0 {
					break
				}
				need[i] -= a.take(topic, need[i], reused)
			}
		}
	}
}

// spillOrder lists where profile topic i sends unmet quota: weaker topics,
// the fallback topic, then stronger topics. A topic with no bank entries
// goes to the fallback first.
func (a *assembler) spillOrder(i int) []string {
	var order []string
	add := func(t string) {
		if t == "" || t == a.profile[i].Topic {
			return
		}
		for _, o := range order {
			if o == t {
				return
			}
		}
		order = append(order, t)
	}
	if a.bank.Count(a.profile[i].Topic) == 0 {
		add(a.cfg.FallbackTopic)
	}
	for _, tw := range a.profile[i+1:] {
		add(tw.Topic)
	}
	add(a.cfg.FallbackTopic)
	for _, tw := range a.profile[:i] {
		add(tw.Topic)
	}
	return order
}

// take selects up to n unused questions from topic, either fresh ones or,
// when reused is set, ones from history. It returns how many it took.
func (a *assembler) take(topic string, n int, reused bool) int {
	if n <= 0 || topic == "" {
		return 0
	}
	got := 0
	for _, e := range a.pool(topic) {
		if got == n {
			break
		}
		if a.used[e.ID] || a.history[e.ID] != reused {
			continue
		}
		a.used[e.ID] = true
		a.picks[topic] = append(a.picks[topic], e)
		got++
	}
	return got
}

// pool returns topic's entries in selection order: band order, then ID.
func (a *assembler) pool(topic string) []bank.Entry {
	if p, ok := a.pools[topic]; ok {
		return p
	}
	entries := a.bank.ByTopic(topic)
	var p []bank.Entry
	for _, band := range bandOrder(a.band(topic)) {
		for _, e := range entries {
			if e.Difficulty == band {
				p = append(p, e)
			}
		}
	}
	a.pools[topic] = p
	return p
}

// band is the starting band for topic. Topics outside the profile start easy.
func (a *assembler) band(topic string) bank.Difficulty {
	for _, tw := range a.profile {
		if tw.Topic == topic {
			return BandFor(tw.Accuracy())
		}
	}
	return bank.DifficultyEasy
}

// emitOrder lists topics for output: selected topics by rank, then any
// topic that received spilled questions, in profile order with the
// fallback topic last.
func (a *assembler) emitOrder(selected []weakness.TopicWeakness) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(t string) {
		if t != "" && !seen[t] && len(a.picks[t]) > 0 {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, tw := range selected {
		add(tw.Topic)
	}
	for _, tw := range a.profile {
		add(tw.Topic)
	}
	add(a.cfg.FallbackTopic)
	return out
}

func inTop(selected []weakness.TopicWeakness, topic string) bool {
	for _, tw := range selected {
		if tw.Topic == topic {
			return true
		}
	}
	return false
}
