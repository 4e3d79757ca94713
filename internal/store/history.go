package store

import (
	"context"
	"fmt"
)

type historyRepo struct {
	s *Store
}

func (r *historyRepo) AssignedQuestions(ctx context.Context, studentID string) ([]string, error) {
	rows, err := r.s.db.QueryContext(ctx,
		`SELECT DISTINCT question_id FROM paper_items WHERE student_id = ? ORDER BY question_id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query assigned questions: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *historyRepo) Entries(ctx context.Context, studentID string) ([]HistoryEntry, error) {
	rows, err := r.s.db.QueryContext(ctx,
		`SELECT p.run_id, r.created_at, p.question_id, p.topic, p.difficulty
		 FROM paper_items p JOIN runs r ON r.id = p.run_id
		 WHERE p.student_id = ?
		 ORDER BY r.sequence DESC, p.position`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var (
			e       HistoryEntry
			created string
		)
		if err := rows.Scan(&e.RunID, &created, &e.QuestionID, &e.Topic, &e.Difficulty); err != nil {
			return nil, err
		}
		e.AssignedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
