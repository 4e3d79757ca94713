// Package bank holds the question bank that practice papers are drawn from.
package bank

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Difficulty is the difficulty label of a bank question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Bands lists the difficulty bands from easiest to hardest.
var Bands = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Rank returns the position of d in Bands, or -1 for an unknown label.
func (d Difficulty) Rank() int {
	for i, b := range Bands {
		if b == d {
			return i
		}
	}
	return -1
}

// ParseDifficulty normalizes a difficulty label.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if d.Rank() < 0 {
		return "", fmt.Errorf("unknown difficulty %q (want easy, medium or hard)", s)
	}
	return d, nil
}

// Entry is a single question bank item. Entries are immutable reference data.
type Entry struct {
	ID         string     `yaml:"id" json:"id"`
	Topic      string     `yaml:"topic" json:"topic"`
	Difficulty Difficulty `yaml:"difficulty" json:"difficulty"`
	Source     string     `yaml:"source" json:"source"`
	Text       string     `yaml:"text" json:"text"`
	Answer     string     `yaml:"answer" json:"answer"`
	Marks      int        `yaml:"marks" json:"marks"`
}

// Bank is an indexed, read-only question bank.
type Bank struct {
	entries []Entry
	byID    map[string]*Entry
	byTopic map[string][]Entry
}

type document struct {
	Questions []Entry `yaml:"questions"`
}

// Load reads a bank from a YAML or JSON file. The document is either a list
// of entries or an object with a "questions" list.
func Load(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	return Parse(data)
}

// Parse decodes and indexes a bank document.
func Parse(data []byte) (*Bank, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		var doc document
		if derr := yaml.Unmarshal(data, &doc); derr != nil {
			return nil, fmt.Errorf("parse question bank: %w", derr)
		}
		entries = doc.Questions
	}
	return New(entries)
}

// New validates entries and builds the topic index. All problems are
// reported together.
func New(entries []Entry) (*Bank, error) {
	b := &Bank{
		entries: make([]Entry, 0, len(entries)),
		byID:    make(map[string]*Entry, len(entries)),
		byTopic: make(map[string][]Entry),
	}

	var problems []string
	for i, e := range entries {
		e.ID = strings.TrimSpace(e.ID)
		e.Topic = strings.TrimSpace(e.Topic)
		if e.ID == "" {
			problems = append(problems, fmt.Sprintf("entry %d has an empty id", i))
			continue
		}
		if e.Topic == "" {
			problems = append(problems, fmt.Sprintf("question %q has no topic", e.ID))
		}
		d, err := ParseDifficulty(string(e.Difficulty))
		if err != nil {
			problems = append(problems, fmt.Sprintf("question %q: %v", e.ID, err))
		}
		e.Difficulty = d
		if _, dup := b.byID[e.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate question id %q", e.ID))
			continue
		}
		b.entries = append(b.entries, e)
		b.byID[e.ID] = &b.entries[len(b.entries)-1]
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("question bank validation failed:\n  %s", strings.Join(problems, "\n  "))
	}

	// Pointers into b.entries are stable from here on.
	for i := range b.entries {
		b.byID[b.entries[i].ID] = &b.entries[i]
		b.byTopic[b.entries[i].Topic] = append(b.byTopic[b.entries[i].Topic], b.entries[i])
	}
	for topic := range b.byTopic {
		list := b.byTopic[topic]
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return b, nil
}

// Len returns the number of entries.
func (b *Bank) Len() int { return len(b.entries) }

// Get returns the entry with the given id.
func (b *Bank) Get(id string) (Entry, bool) {
	e, ok := b.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ByTopic returns the topic's entries ordered by question id. The returned
// slice is a copy.
func (b *Bank) ByTopic(topic string) []Entry {
	src := b.byTopic[topic]
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

// Count returns the number of entries for topic.
func (b *Bank) Count(topic string) int {
	return len(b.byTopic[topic])
}

// Topics returns every topic that has at least one entry, sorted.
func (b *Bank) Topics() []string {
	topics := make([]string, 0, len(b.byTopic))
	for t := range b.byTopic {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}
