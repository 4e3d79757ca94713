// Package errs defines the error taxonomy shared by the analysis pipeline.
// Callers match on these with errors.As; every type supports Unwrap.
package errs

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed or inconsistent input for one student.
// It is non-fatal to a batch: the student is excluded from the run outputs.
type ValidationError struct {
	StudentID string
	Field     string
	Reason    string
	Err       error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed")
	if e.StudentID != "" {
		fmt.Fprintf(&b, " for student %q", e.StudentID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (%s)", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// MappingError reports question IDs referenced by MCQ results that have no
// topic in the mapping table.
type MappingError struct {
	Unmapped []string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("%d question(s) have no topic mapping: %s",
		len(e.Unmapped), strings.Join(e.Unmapped, ", "))
}

// ConfigError reports invalid run parameters. It is fatal to the whole run.
type ConfigError struct {
	Param  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("invalid configuration %q: %s", e.Param, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// EmptyBankError reports a required topic with no selectable questions in
// the bank and no fallback topic to redirect its quota to.
type EmptyBankError struct {
	StudentID string
	Topic     string
}

func (e *EmptyBankError) Error() string {
	if e.StudentID == "" {
		return fmt.Sprintf("question bank has no entries for topic %q", e.Topic)
	}
	return fmt.Sprintf("question bank has no entries for topic %q (student %q)", e.Topic, e.StudentID)
}
