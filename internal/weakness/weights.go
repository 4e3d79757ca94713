package weakness

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/abhisek/papersmith/internal/errs"
)

// Signal names accepted in Weights.
const (
	SignalMCQ           = "mcq"
	SignalAssignment    = "assignment"
	SignalParticipation = "participation"
)

const weightTolerance = 1e-6

// Weights maps a signal name to its share of the blended severity.
type Weights map[string]float64

// DefaultWeights scores on MCQ results alone.
func DefaultWeights() Weights {
	return Weights{SignalMCQ: 1}
}

// Validate requires known signal names, non-negative weights and a sum of
// 1 within 1e-6.
func (w Weights) Validate() error {
	if len(w) == 0 {
		return &errs.ConfigError{Param: "weights", Reason: "at least one signal weight is required"}
	}
	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	sort.Strings(names)

	var sum float64
	for _, name := range names {
		v := w[name]
		switch name {
		case SignalMCQ, SignalAssignment, SignalParticipation:
		default:
			return &errs.ConfigError{Param: "weights." + name, Reason: "unknown signal (want mcq, assignment or participation)"}
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return &errs.ConfigError{Param: "weights." + name, Reason: fmt.Sprintf("weight must be a finite value >= 0, got %g", v)}
		}
		sum += v
	}
	if math.Abs(sum-1) > weightTolerance {
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s:%g", name, w[name])
		}
		return &errs.ConfigError{
			Param:  "weights",
			Reason: fmt.Sprintf("weights {%s} sum to %g, want 1", strings.Join(parts, ", "), sum),
		}
	}
	return nil
}
