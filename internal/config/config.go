// Package config holds the parameters of one analysis run and reads them
// from flags, PAPERSMITH_* environment variables and papersmith.yaml.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/abhisek/papersmith/internal/errs"
	"github.com/abhisek/papersmith/internal/paper"
	"github.com/abhisek/papersmith/internal/roster"
	"github.com/abhisek/papersmith/internal/weakness"
)

// Keys shared by the cobra flags and the config file.
const (
	KeyPaperLength       = "paper-length"
	KeyTopK              = "top-k"
	KeyFallbackTopic     = "fallback-topic"
	KeyFreshOnly         = "fresh-only"
	KeyWeights           = "weights"
	KeyMissing           = "missing"
	KeyIgnoreUnmapped    = "ignore-unmapped"
	KeyAffectedThreshold = "affected-threshold"
	KeyQuestions         = "questions"
	KeyAssignments       = "assignments"
	KeyWeeks             = "weeks"
	KeyWorkers           = "workers"
	KeySignals           = "signals"
)

// Config is the full set of run parameters.
type Config struct {
	PaperLength   int    `yaml:"paper-length" json:"paper_length"`
	TopK          int    `yaml:"top-k" json:"top_k"`
	FallbackTopic string `yaml:"fallback-topic" json:"fallback_topic,omitempty"`
	FreshOnly     bool   `yaml:"fresh-only" json:"fresh_only"`

	Weights weakness.Weights `yaml:"weights" json:"weights"`
	Signals weakness.Signals `yaml:"signals" json:"signals"`

	Missing        roster.MissingPolicy `yaml:"missing" json:"missing"`
	IgnoreUnmapped bool                 `yaml:"ignore-unmapped" json:"ignore_unmapped"`

	// AffectedThreshold is the severity a student must exceed to count as
	// affected by a topic in the class summary.
	AffectedThreshold float64 `yaml:"affected-threshold" json:"affected_threshold"`

	// Expected table widths. Zero accepts whatever the header declares.
	Questions   int `yaml:"questions" json:"questions"`
	Assignments int `yaml:"assignments" json:"assignments"`
	Weeks       int `yaml:"weeks" json:"weeks"`

	Workers int `yaml:"workers" json:"workers"`
}

// Default returns the built-in parameters: a 10-question paper scored on
// MCQ results alone.
func Default() Config {
	return Config{
		PaperLength: 10,
		Weights:     weakness.DefaultWeights(),
		Missing:     roster.MissingReject,
		Workers:     4,
	}
}

// Validate checks every parameter and returns the first problem as a
// *errs.ConfigError.
func (c Config) Validate() error {
	if err := c.Paper().Validate(); err != nil {
		return err
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if _, err := roster.ParseMissingPolicy(string(c.Missing)); err != nil {
		return &errs.ConfigError{Param: KeyMissing, Reason: "unknown policy", Err: err}
	}
	if c.AffectedThreshold < 0 || c.AffectedThreshold >= 1 {
		return &errs.ConfigError{Param: KeyAffectedThreshold, Reason: fmt.Sprintf("must be in [0, 1), got %g", c.AffectedThreshold)}
	}
	for _, f := range []struct {
		key string
		v   int
	}{{KeyQuestions, c.Questions}, {KeyAssignments, c.Assignments}, {KeyWeeks, c.Weeks}} {
		if f.v < 0 {
			return &errs.ConfigError{Param: f.key, Reason: fmt.Sprintf("must not be negative, got %d", f.v)}
		}
	}
	if c.Signals.AssignmentMax < 0 || c.Signals.ParticipationMax < 0 {
		return &errs.ConfigError{Param: KeySignals, Reason: "maximum scores must not be negative"}
	}
	for week := range c.Signals.WeekTopics {
		if week < 1 {
			return &errs.ConfigError{Param: KeySignals + ".week_topics", Reason: fmt.Sprintf("weeks are numbered from 1, got %d", week)}
		}
	}
	if c.Workers < 1 {
		return &errs.ConfigError{Param: KeyWorkers, Reason: fmt.Sprintf("must be at least 1, got %d", c.Workers)}
	}
	return nil
}

// Paper returns the assembly parameters.
func (c Config) Paper() paper.Config {
	return paper.Config{
		Length:        c.PaperLength,
		TopK:          c.TopK,
		FallbackTopic: c.FallbackTopic,
		FreshOnly:     c.FreshOnly,
	}
}

// Roster returns the ingestion options.
func (c Config) Roster() roster.Options {
	return roster.Options{
		Questions:   c.Questions,
		Assignments: c.Assignments,
		Weeks:       c.Weeks,
		Missing:     c.Missing,
	}
}

// FromViper reads a Config from v, falling back to Default for unset keys.
// Weights may be a map (config file) or a "mcq=0.6,assignment=0.4" string
// (flag or environment).
func FromViper(v *viper.Viper) (Config, error) {
	c := Default()

	if v.IsSet(KeyPaperLength) {
		c.PaperLength = v.GetInt(KeyPaperLength)
	}
	if v.IsSet(KeyWorkers) {
		c.Workers = v.GetInt(KeyWorkers)
	}
	c.TopK = v.GetInt(KeyTopK)
	c.FallbackTopic = strings.TrimSpace(v.GetString(KeyFallbackTopic))
	c.FreshOnly = v.GetBool(KeyFreshOnly)
	c.IgnoreUnmapped = v.GetBool(KeyIgnoreUnmapped)
	c.AffectedThreshold = v.GetFloat64(KeyAffectedThreshold)
	c.Questions = v.GetInt(KeyQuestions)
	c.Assignments = v.GetInt(KeyAssignments)
	c.Weeks = v.GetInt(KeyWeeks)

	missing, err := roster.ParseMissingPolicy(v.GetString(KeyMissing))
	if err != nil {
		return c, &errs.ConfigError{Param: KeyMissing, Reason: "unknown policy", Err: err}
	}
	c.Missing = missing

	switch raw := v.Get(KeyWeights).(type) {
	case nil:
	case string:
		if strings.TrimSpace(raw) != "" {
			if c.Weights, err = ParseWeights(raw); err != nil {
				return c, err
			}
		}
	default:
		var w weakness.Weights
		if err := v.UnmarshalKey(KeyWeights, &w); err != nil {
			return c, &errs.ConfigError{Param: KeyWeights, Reason: "cannot decode", Err: err}
		}
		c.Weights = w
	}

	if v.IsSet(KeySignals) {
		if err := v.UnmarshalKey(KeySignals, &c.Signals); err != nil {
			return c, &errs.ConfigError{Param: KeySignals, Reason: "cannot decode", Err: err}
		}
	}
	return c, nil
}

// ParseWeights parses "name=value" pairs separated by commas.
func ParseWeights(s string) (weakness.Weights, error) {
	w := make(weakness.Weights)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, ok := strings.Cut(part, "=")
		if !ok {
			return nil, &errs.ConfigError{Param: KeyWeights, Reason: fmt.Sprintf("%q is not name=value", part)}
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, &errs.ConfigError{Param: KeyWeights, Reason: fmt.Sprintf("bad value for %s", name), Err: err}
		}
		w[strings.ToLower(strings.TrimSpace(name))] = f
	}
	return w, nil
}
