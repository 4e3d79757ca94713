// Package syllabus loads the syllabus taxonomy that weakness topics are
// reported against.
package syllabus

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Topic is a numbered syllabus topic with its subtopics.
type Topic struct {
	Number    string
	Name      string
	Subtopics []string
}

// Taxonomy indexes every topic tag (topic names and subtopics) of a syllabus.
type Taxonomy struct {
	Subject string
	Code    string

	topics []Topic
	parent map[string]string // tag -> topic name
}

// document mirrors syllabus_topics.json. JSON is valid YAML, so one decoder
// reads both formats.
type document struct {
	Subject string                `yaml:"subject"`
	Code    string                `yaml:"code"`
	Topics  map[string]topicEntry `yaml:"topics"`
}

type topicEntry struct {
	Name      string   `yaml:"name"`
	Subtopics []string `yaml:"subtopics"`
}

// Load reads a syllabus document from path.
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read syllabus: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a syllabus document.
func Parse(data []byte) (*Taxonomy, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse syllabus: %w", err)
	}

	topics := make([]Topic, 0, len(doc.Topics))
	for num, entry := range doc.Topics {
		topics = append(topics, Topic{
			Number:    num,
			Name:      strings.TrimSpace(entry.Name),
			Subtopics: entry.Subtopics,
		})
	}
	sort.Slice(topics, func(i, j int) bool {
		return numberLess(topics[i].Number, topics[j].Number)
	})

	return New(doc.Subject, doc.Code, topics)
}

// New builds a Taxonomy from topics, reporting every structural problem at once.
func New(subject, code string, topics []Topic) (*Taxonomy, error) {
	t := &Taxonomy{
		Subject: subject,
		Code:    code,
		topics:  topics,
		parent:  make(map[string]string),
	}

	var problems []string
	for _, tp := range topics {
		if tp.Name == "" {
			problems = append(problems, fmt.Sprintf("topic %s has an empty name", tp.Number))
			continue
		}
		if prev, ok := t.parent[tp.Name]; ok {
			problems = append(problems, fmt.Sprintf("tag %q is declared by both %q and %q", tp.Name, prev, tp.Name))
		}
		t.parent[tp.Name] = tp.Name
		for _, sub := range tp.Subtopics {
			sub = strings.TrimSpace(sub)
			if sub == "" {
				problems = append(problems, fmt.Sprintf("topic %q has an empty subtopic", tp.Name))
				continue
			}
			if prev, ok := t.parent[sub]; ok && prev != tp.Name {
				problems = append(problems, fmt.Sprintf("tag %q is declared by both %q and %q", sub, prev, tp.Name))
			}
			t.parent[sub] = tp.Name
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("syllabus validation failed:\n  %s", strings.Join(problems, "\n  "))
	}
	return t, nil
}

// Has reports whether tag is a topic or subtopic of the syllabus.
func (t *Taxonomy) Has(tag string) bool {
	if t == nil {
		return false
	}
	_, ok := t.parent[tag]
	return ok
}

// Parent returns the top-level topic a tag belongs to.
func (t *Taxonomy) Parent(tag string) (string, bool) {
	if t == nil {
		return "", false
	}
	p, ok := t.parent[tag]
	return p, ok
}

// Topics returns the top-level topics in syllabus order.
func (t *Taxonomy) Topics() []Topic {
	out := make([]Topic, len(t.topics))
	copy(out, t.topics)
	return out
}

// Tags returns every known tag in lexical order.
func (t *Taxonomy) Tags() []string {
	tags := make([]string, 0, len(t.parent))
	for tag := range t.parent {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Unknown returns the tags from the input that the syllabus does not declare,
// deduplicated and sorted.
func (t *Taxonomy) Unknown(tags []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tag := range tags {
		if t.Has(tag) || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func numberLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
