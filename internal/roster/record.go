// Package roster ingests per-student assessment tables into StudentRecords.
package roster

import (
	"fmt"
	"strings"
)

// Record is one student's assessment data for a class dataset.
type Record struct {
	StudentID string
	// Answers holds per-question correctness (0 or 1) in test order.
	Answers []int
	// Assignments maps assignment name to raw score.
	Assignments map[string]float64
	// Participation holds weekly scores in week order.
	Participation []float64
}

// Correct returns the number of correct answers.
func (r Record) Correct() int {
	n := 0
	for _, a := range r.Answers {
		n += a
	}
	return n
}

// Layout describes the column shape shared by every record in a class.
type Layout struct {
	// QuestionIDs are the MCQ column headers, e.g. q1..qN.
	QuestionIDs []string
	// Assignments are the assignment column headers.
	Assignments []string
	// Weeks is the number of weekly participation columns.
	Weeks int
}

// MissingPolicy decides how empty cells are treated.
type MissingPolicy string

const (
	// MissingReject turns any empty cell into a validation error for that student.
	MissingReject MissingPolicy = "reject"
	// MissingZero substitutes zero for empty cells and absent rows.
	MissingZero MissingPolicy = "zero"
)

// ParseMissingPolicy validates a policy name. Empty means MissingReject.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch p := MissingPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return MissingReject, nil
	case MissingReject, MissingZero:
		return p, nil
	default:
		return "", fmt.Errorf("unknown missing-value policy %q (want reject or zero)", s)
	}
}
