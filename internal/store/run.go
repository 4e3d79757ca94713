package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type runRepo struct {
	s *Store
}

func (r *runRepo) Save(ctx context.Context, data *RunData) (err error) {
	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	run := &data.Run
	if run.Sequence == 0 {
		if run.Sequence, err = r.s.seq.Next(ctx, tx); err != nil {
			return err
		}
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = r.s.now()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, sequence, created_at, paper_length, students, excluded, config)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Sequence, formatTime(run.CreatedAt), run.PaperLength, run.Students, run.Excluded, run.Config)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for _, row := range data.Summary {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO summary_rows (run_id, topic, affected, students, mean_severity) VALUES (?, ?, ?, ?, ?)`,
			run.ID, row.Topic, row.Affected, row.Students, row.MeanSeverity); err != nil {
			return fmt.Errorf("insert summary row %q: %w", row.Topic, err)
		}
	}
	for _, p := range data.Profiles {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO profiles (run_id, student_id, rank, topic, severity, attempted, correct)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, p.StudentID, p.Rank, p.Topic, p.Severity, p.Attempted, p.Correct); err != nil {
			return fmt.Errorf("insert profile %s/%s: %w", p.StudentID, p.Topic, err)
		}
	}
	for _, it := range data.Items {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO paper_items (run_id, student_id, position, question_id, topic, difficulty)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, it.StudentID, it.Position, it.QuestionID, it.Topic, it.Difficulty); err != nil {
			return fmt.Errorf("insert paper item %s/%s: %w", it.StudentID, it.QuestionID, err)
		}
	}
	for _, ex := range data.Exclusions {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO exclusions (run_id, student_id, kind, reason) VALUES (?, ?, ?, ?)`,
			run.ID, ex.StudentID, ex.Kind, ex.Reason); err != nil {
			return fmt.Errorf("insert exclusion %s: %w", ex.StudentID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, sequence, created_at, paper_length, students, excluded, config`

func scanRun(sc scanner) (Run, error) {
	var (
		run     Run
		created string
	)
	err := sc.Scan(&run.ID, &run.Sequence, &created, &run.PaperLength, &run.Students, &run.Excluded, &run.Config)
	run.CreatedAt = parseTime(created)
	return run, err
}

func (r *runRepo) List(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY sequence DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *runRepo) Get(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(r.s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}

func (r *runRepo) Summary(ctx context.Context, runID string) ([]SummaryRow, error) {
	rows, err := r.s.db.QueryContext(ctx,
		`SELECT topic, affected, students, mean_severity FROM summary_rows WHERE run_id = ? ORDER BY topic`, runID)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()
	var out []SummaryRow
	for rows.Next() {
		var row SummaryRow
		if err := rows.Scan(&row.Topic, &row.Affected, &row.Students, &row.MeanSeverity); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *runRepo) Profile(ctx context.Context, runID, studentID string) ([]ProfileRow, error) {
	rows, err := r.s.db.QueryContext(ctx,
		`SELECT student_id, rank, topic, severity, attempted, correct FROM profiles
		 WHERE run_id = ? AND student_id = ? ORDER BY rank`, runID, studentID)
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	defer rows.Close()
	var out []ProfileRow
	for rows.Next() {
		var p ProfileRow
		if err := rows.Scan(&p.StudentID, &p.Rank, &p.Topic, &p.Severity, &p.Attempted, &p.Correct); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *runRepo) Paper(ctx context.Context, runID, studentID string) ([]PaperItem, error) {
	rows, err := r.s.db.QueryContext(ctx,
		`SELECT student_id, position, question_id, topic, difficulty FROM paper_items
		 WHERE run_id = ? AND student_id = ? ORDER BY position`, runID, studentID)
	if err != nil {
		return nil, fmt.Errorf("query paper: %w", err)
	}
	defer rows.Close()
	var out []PaperItem
	for rows.Next() {
		var it PaperItem
		if err := rows.Scan(&it.StudentID, &it.Position, &it.QuestionID, &it.Topic, &it.Difficulty); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *runRepo) Exclusions(ctx context.Context, runID string) ([]Exclusion, error) {
	rows, err := r.s.db.QueryContext(ctx,
		`SELECT student_id, kind, reason FROM exclusions WHERE run_id = ? ORDER BY student_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query exclusions: %w", err)
	}
	defer rows.Close()
	var out []Exclusion
	for rows.Next() {
		var ex Exclusion
		if err := rows.Scan(&ex.StudentID, &ex.Kind, &ex.Reason); err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}
