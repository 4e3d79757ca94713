package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/abhisek/papersmith/internal/errs"
)

// Options declares the expected table shapes and the missing-value policy.
type Options struct {
	Questions   int
	Assignments int
	Weeks       int
	Missing     MissingPolicy
}

// Sources are the three input tables. Assignments and Participation may be
// nil when a class has no such data.
type Sources struct {
	MCQ           io.Reader
	Assignments   io.Reader
	Participation io.Reader
}

// Class is an ingested class dataset. Records holds only students whose rows
// passed validation; Rejected holds one error per excluded student.
type Class struct {
	Layout   Layout
	Records  []Record
	Rejected []*errs.ValidationError
}

// table is one parsed CSV with its data columns split from the id and
// optional trailing summary column.
type table struct {
	name    string
	columns []string
	summary bool
	rows    map[string][]string
	order   []string
}

// Load reads and cross-validates the input tables. Header shape mismatches
// against the declared counts are fatal ConfigErrors. Row problems exclude
// only the affected student.
func Load(src Sources, opts Options) (*Class, error) {
	if opts.Missing == "" {
		opts.Missing = MissingReject
	}

	class := &Class{}
	rejected := make(map[string]*errs.ValidationError)
	reject := func(ve *errs.ValidationError) {
		if _, seen := rejected[ve.StudentID]; !seen {
			rejected[ve.StudentID] = ve
		}
	}

	mcq, err := readTable("mcq", src.MCQ, opts.Questions, "total_score", reject)
	if err != nil {
		return nil, err
	}
	class.Layout.QuestionIDs = mcq.columns

	var asg, part *table
	if src.Assignments != nil {
		asg, err = readTable("assignments", src.Assignments, opts.Assignments, "total", reject)
		if err != nil {
			return nil, err
		}
		class.Layout.Assignments = asg.columns
	}
	if src.Participation != nil {
		part, err = readTable("participation", src.Participation, opts.Weeks, "average", reject)
		if err != nil {
			return nil, err
		}
		class.Layout.Weeks = len(part.columns)
	}

	for _, id := range mcq.order {
		if _, bad := rejected[id]; bad {
			continue
		}
		rec, ve := buildRecord(id, mcq, asg, part, opts.Missing)
		if ve != nil {
			reject(ve)
			continue
		}
		class.Records = append(class.Records, rec)
	}

	// Students absent from the MCQ table cannot be scored.
	for _, t := range []*table{asg, part} {
		if t == nil {
			continue
		}
		for _, id := range t.order {
			if _, ok := mcq.rows[id]; !ok {
				reject(&errs.ValidationError{
					StudentID: id,
					Field:     "mcq",
					Reason:    fmt.Sprintf("present in %s table but missing from mcq table", t.name),
				})
			}
		}
	}

	sort.Slice(class.Records, func(i, j int) bool {
		return class.Records[i].StudentID < class.Records[j].StudentID
	})
	for _, ve := range rejected {
		class.Rejected = append(class.Rejected, ve)
	}
	sort.Slice(class.Rejected, func(i, j int) bool {
		return class.Rejected[i].StudentID < class.Rejected[j].StudentID
	})
	return class, nil
}

func readTable(name string, r io.Reader, want int, summaryCol string, reject func(*errs.ValidationError)) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &errs.ConfigError{Param: name, Reason: "table is empty"}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", name, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) < 2 || !strings.EqualFold(header[0], "student_id") {
		return nil, &errs.ConfigError{Param: name, Reason: "first column must be student_id"}
	}

	t := &table{name: name, rows: make(map[string][]string)}
	cols := header[1:]
	if strings.EqualFold(cols[len(cols)-1], summaryCol) {
		t.summary = true
		cols = cols[:len(cols)-1]
	}
	if want > 0 && len(cols) != want {
		return nil, &errs.ConfigError{
			Param:  name,
			Reason: fmt.Sprintf("table has %d data columns, configuration declares %d", len(cols), want),
		}
	}
	t.columns = cols
	width := len(header)

	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s line %d: %w", name, line, err)
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		id := strings.TrimSpace(row[0])
		if id == "" {
			return nil, &errs.ConfigError{Param: name, Reason: fmt.Sprintf("line %d has an empty student_id", line)}
		}
		if _, dup := t.rows[id]; dup {
			reject(&errs.ValidationError{StudentID: id, Field: name, Reason: "duplicate student row"})
			continue
		}
		t.order = append(t.order, id)
		if len(row) != width {
			reject(&errs.ValidationError{
				StudentID: id,
				Field:     name,
				Reason:    fmt.Sprintf("row has %d cells, header has %d", len(row), width),
			})
			t.rows[id] = nil
			continue
		}
		t.rows[id] = row[1:]
	}
	return t, nil
}

func buildRecord(id string, mcq, asg, part *table, policy MissingPolicy) (Record, *errs.ValidationError) {
	rec := Record{StudentID: id}

	answers, err := parseAnswers(mcq, mcq.rows[id], policy)
	if err != nil {
		return rec, &errs.ValidationError{StudentID: id, Field: "mcq", Reason: err.Error()}
	}
	rec.Answers = answers

	if asg != nil {
		cells, ok := asg.rows[id]
		if !ok && policy == MissingReject {
			return rec, &errs.ValidationError{StudentID: id, Field: "assignments", Reason: "no row in assignments table"}
		}
		scores, total, err := parseNumbers(asg, cells, policy)
		if err != nil {
			return rec, &errs.ValidationError{StudentID: id, Field: "assignments", Reason: err.Error()}
		}
		if total != nil && !approxEqual(*total, sum(scores), 1e-6) {
			return rec, &errs.ValidationError{
				StudentID: id,
				Field:     "assignments",
				Reason:    fmt.Sprintf("total %.2f does not match sum of assignments %.2f", *total, sum(scores)),
			}
		}
		rec.Assignments = make(map[string]float64, len(scores))
		for i, name := range asg.columns {
			rec.Assignments[name] = scores[i]
		}
	}

	if part != nil {
		cells, ok := part.rows[id]
		if !ok && policy == MissingReject {
			return rec, &errs.ValidationError{StudentID: id, Field: "participation", Reason: "no row in participation table"}
		}
		weeks, avg, err := parseNumbers(part, cells, policy)
		if err != nil {
			return rec, &errs.ValidationError{StudentID: id, Field: "participation", Reason: err.Error()}
		}
		if avg != nil && len(weeks) > 0 {
			mean := sum(weeks) / float64(len(weeks))
			if !approxEqual(*avg, mean, 0.01) {
				return rec, &errs.ValidationError{
					StudentID: id,
					Field:     "participation",
					Reason:    fmt.Sprintf("average %.2f does not match weekly mean %.2f", *avg, mean),
				}
			}
		}
		rec.Participation = weeks
	}

	return rec, nil
}

func parseAnswers(t *table, cells []string, policy MissingPolicy) ([]int, error) {
	answers := make([]int, len(t.columns))
	for i, col := range t.columns {
		raw := strings.TrimSpace(cells[i])
		if raw == "" {
			if policy == MissingReject {
				return nil, fmt.Errorf("missing answer for %s", col)
			}
			continue
		}
		switch raw {
		case "0":
		case "1":
			answers[i] = 1
		default:
			return nil, fmt.Errorf("answer for %s must be 0 or 1, got %q", col, raw)
		}
	}

	if t.summary {
		raw := strings.TrimSpace(cells[len(t.columns)])
		if raw != "" {
			total, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("total_score %q is not a number", raw)
			}
			correct := 0
			for _, a := range answers {
				correct += a
			}
			if !approxEqual(total, float64(correct), 1e-9) {
				return nil, fmt.Errorf("total_score %s does not match %d correct answers", raw, correct)
			}
		}
	}
	return answers, nil
}

// parseNumbers returns the data cells as floats and the summary cell when
// present. A nil cells slice (absent row under MissingZero) yields zeros.
func parseNumbers(t *table, cells []string, policy MissingPolicy) ([]float64, *float64, error) {
	values := make([]float64, len(t.columns))
	if cells == nil {
		return values, nil, nil
	}
	for i, col := range t.columns {
		raw := strings.TrimSpace(cells[i])
		if raw == "" {
			if policy == MissingReject {
				return nil, nil, fmt.Errorf("missing value for %s", col)
			}
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, fmt.Errorf("value for %s is not a number: %q", col, raw)
		}
		if v < 0 {
			return nil, nil, fmt.Errorf("value for %s is negative: %s", col, raw)
		}
		values[i] = v
	}

	if !t.summary {
		return values, nil, nil
	}
	raw := strings.TrimSpace(cells[len(t.columns)])
	if raw == "" {
		return values, nil, nil
	}
	s, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("summary column %q is not a number", raw)
	}
	return values, &s, nil
}

func sum(vs []float64) float64 {
	total := 0.0
	for _, v := range vs {
		total += v
	}
	return total
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
