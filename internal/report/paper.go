package report

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/abhisek/papersmith/internal/paper"
	"github.com/abhisek/papersmith/internal/weakness"
)

// PaperOptions controls the Markdown document for one paper.
type PaperOptions struct {
	Title string
	// AnswerKey appends an answers section.
	AnswerKey bool
}

var paperTemplate = template.Must(template.New("paper").Funcs(template.FuncMap{
	"pct":  func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
	"inc":  func(i int) int { return i + 1 },
	"text": func(s string) string { return strings.TrimSpace(s) },
}).Parse(`# {{.Title}}

Student: **{{.Paper.StudentID}}**  
Questions: {{len .Paper.Questions}}{{if .Paper.Partial}} of {{.Paper.Requested}} requested (partial: the bank ran short by {{.Paper.Shortfall}}){{end}}
{{if .Profile}}
## Focus topics

| Topic | Severity | MCQ accuracy |
|---|---|---|
{{range .Profile.Topics}}| {{.Topic}} | {{pct .Severity}} | {{.Correct}}/{{.Attempted}} |
{{end}}{{end}}
## Questions
{{range $i, $q := .Paper.Questions}}
### {{inc $i}}. {{$q.Topic}} ({{$q.Difficulty}}{{if $q.Marks}}, {{$q.Marks}} marks{{end}})
{{if $q.Source}}
_Source: {{$q.Source}}_
{{end}}
{{if $q.Text}}{{text $q.Text}}{{else}}Question {{$q.ID}}{{end}}
{{end}}{{if .AnswerKey}}
## Answers
{{range $i, $q := .Paper.Questions}}
{{inc $i}}. {{if $q.Answer}}{{text $q.Answer}}{{else}}-{{end}}{{end}}
{{end}}`))

// WritePaperMarkdown renders p as a Markdown document. prof may be nil.
func WritePaperMarkdown(w io.Writer, p *paper.Paper, prof *weakness.Profile, opts PaperOptions) error {
	title := opts.Title
	if title == "" {
		title = "Practice paper"
	}
	return paperTemplate.Execute(w, map[string]any{
		"Title":     title,
		"Paper":     p,
		"Profile":   prof,
		"AnswerKey": opts.AnswerKey,
	})
}
