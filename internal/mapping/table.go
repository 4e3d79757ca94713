// Package mapping resolves MCQ question identifiers to syllabus topic tags.
package mapping

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table is the static question id -> topic lookup.
type Table map[string]string

// Lookup returns the topic for a question id.
func (t Table) Lookup(questionID string) (string, bool) {
	topic, ok := t[questionID]
	return topic, ok
}

// Topics returns the distinct topics referenced by the table, sorted.
func (t Table) Topics() []string {
	seen := make(map[string]bool)
	var out []string
	for _, topic := range t {
		if !seen[topic] {
			seen[topic] = true
			out = append(out, topic)
		}
	}
	sort.Strings(out)
	return out
}

// LoadTable reads a mapping table. Files ending in .csv are read as
// "question_id,topic" rows; anything else is decoded as a YAML/JSON object
// keyed by question id.
func LoadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mapping table: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return ParseCSV(f)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read mapping table: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a question id -> topic object.
func ParseYAML(data []byte) (Table, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse mapping table: %w", err)
	}
	return normalize(raw)
}

// ParseCSV decodes "question_id,topic" rows. A header row is optional.
func ParseCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	raw := make(map[string]string)
	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse mapping table line %d: %w", line, err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "question_id") {
			continue
		}
		id := strings.TrimSpace(row[0])
		if prev, dup := raw[id]; dup && prev != strings.TrimSpace(row[1]) {
			return nil, fmt.Errorf("mapping table line %d: question %q mapped to both %q and %q", line, id, prev, row[1])
		}
		raw[id] = row[1]
	}
	return normalize(raw)
}

func normalize(raw map[string]string) (Table, error) {
	t := make(Table, len(raw))
	var empty []string
	for id, topic := range raw {
		id = strings.TrimSpace(id)
		topic = strings.TrimSpace(topic)
		if id == "" || topic == "" {
			empty = append(empty, id)
			continue
		}
		t[id] = topic
	}
	if len(empty) > 0 {
		sort.Strings(empty)
		return nil, fmt.Errorf("mapping table has empty entries for: %s", strings.Join(empty, ", "))
	}
	return t, nil
}
