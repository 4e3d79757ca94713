package mapping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/abhisek/papersmith/internal/llm"
	"github.com/abhisek/papersmith/internal/syllabus"
)

// LLMTaggerConfig tunes topic suggestion calls.
type LLMTaggerConfig struct {
	MaxTokens   int
	Temperature float64
	// MinConfidence drops suggestions the model is unsure about.
	MinConfidence float64
}

func DefaultLLMTaggerConfig() LLMTaggerConfig {
	return LLMTaggerConfig{MaxTokens: 200, Temperature: 0.1, MinConfidence: 0.5}
}

// LLMTagger asks a language model to place a question in the syllabus.
type LLMTagger struct {
	provider llm.Provider
	taxonomy *syllabus.Taxonomy
	cfg      LLMTaggerConfig
}

// NewLLMTagger returns a tagger restricted to taxonomy, which must be non-nil.
func NewLLMTagger(provider llm.Provider, taxonomy *syllabus.Taxonomy, cfg LLMTaggerConfig) *LLMTagger {
	return &LLMTagger{provider: provider, taxonomy: taxonomy, cfg: cfg}
}

// TaggingPurpose labels tagger calls in the LLM event log.
const TaggingPurpose = "topic-tagging"

// TopicSuggestionSchema constrains the model to one tag or null.
var TopicSuggestionSchema = &llm.Schema{
	Name:        "topic-suggestion",
	Description: "Syllabus topic tag for an exam question",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topic": map[string]any{
				"type":        []any{"string", "null"},
				"description": "Exactly one tag from the syllabus list, or null if none fits",
			},
			"confidence": map[string]any{
				"type":    "number",
				"minimum": 0.0,
				"maximum": 1.0,
			},
			"reasoning": map[string]any{
				"type":        "string",
				"description": "One sentence",
			},
		},
		"required":             []any{"topic", "confidence", "reasoning"},
		"additionalProperties": false,
	},
}

type suggestionOutput struct {
	Topic      *string `json:"topic"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// SuggestTopic implements Tagger. A null or low confidence answer yields
// ErrNoSuggestion; a tag outside the taxonomy is an error.
func (t *LLMTagger) SuggestTopic(ctx context.Context, questionText string) (string, error) {
	ctx = llm.WithPurpose(ctx, TaggingPurpose)

	prompt, err := buildTaggingMessage(t.taxonomy, questionText)
	if err != nil {
		return "", fmt.Errorf("build tagging prompt: %w", err)
	}
	resp, err := t.provider.Generate(ctx, llm.Request{
		System:      taggingSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Schema:      TopicSuggestionSchema,
		MaxTokens:   t.cfg.MaxTokens,
		Temperature: t.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("topic tagging failed: %w", err)
	}

	var out suggestionOutput
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		return "", fmt.Errorf("parse topic suggestion: %w", err)
	}
	if out.Topic == nil || out.Confidence < t.cfg.MinConfidence {
		return "", ErrNoSuggestion
	}
	if !t.taxonomy.Has(*out.Topic) {
		return "", fmt.Errorf("model suggested %q, which is not a syllabus tag", *out.Topic)
	}
	return *out.Topic, nil
}

const taggingSystemPrompt = `You classify exam questions against a fixed syllabus.

Instructions:
- Return exactly one tag, copied verbatim from the syllabus list.
- Prefer the most specific subtopic that fits.
- If no tag fits, return null for topic.
- Do NOT invent tags.
- Keep reasoning to one sentence.`

var taggingUserTemplate = template.Must(template.New("tagging").Parse(`Syllabus: {{.Subject}}{{if .Code}} ({{.Code}}){{end}}
{{range .Topics}}- {{.Name}}
{{range .Subtopics}}  - {{.}}
{{end}}{{end}}
Question:
{{.Question}}`))

// TagDecision is one logged tagger call read back from the event store.
type TagDecision struct {
	Question   string
	Topic      string // empty when the model declined to tag
	Confidence float64
	Reasoning  string
}

// DecodeTagDecision recovers the question and the model's answer from a
// logged tagging request. The question is whatever follows the last
// "Question:" line of the user message.
func DecodeTagDecision(requestBody, responseBody string) (TagDecision, error) {
	var d TagDecision
	if i := strings.LastIndex(requestBody, questionMarker); i >= 0 {
		q := requestBody[i+len(questionMarker):]
		if j := strings.Index(q, "\n\n["); j >= 0 {
			q = q[:j]
		}
		d.Question = strings.TrimSpace(q)
	}
	if strings.TrimSpace(responseBody) == "" {
		return d, errors.New("no response recorded")
	}
	var out suggestionOutput
	if err := json.Unmarshal([]byte(responseBody), &out); err != nil {
		return d, fmt.Errorf("parse topic suggestion: %w", err)
	}
	if out.Topic != nil {
		d.Topic = *out.Topic
	}
	d.Confidence = out.Confidence
	d.Reasoning = out.Reasoning
	return d, nil
}

const questionMarker = "Question:\n"

func buildTaggingMessage(tax *syllabus.Taxonomy, question string) (string, error) {
	var buf bytes.Buffer
	err := taggingUserTemplate.Execute(&buf, map[string]any{
		"Subject":  tax.Subject,
		"Code":     tax.Code,
		"Topics":   tax.Topics(),
		"Question": question,
	})
	return buf.String(), err
}
