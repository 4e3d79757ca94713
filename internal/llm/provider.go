// Package llm wraps the hosted language models used to suggest syllabus
// topics for questions the static mapping table does not cover.
package llm

import (
	"context"
	"encoding/json"
)

// Provider generates a (usually schema-constrained) completion.
type Provider interface {
	// Generate sends req and returns the model output. When req.Schema is
	// set, Content is JSON already validated against it.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier requests are sent to.
	ModelID() string
}

// Request is a single completion request.
type Request struct {
	System   string
	Messages []Message
	// Schema, when set, asks the provider for structured JSON output.
	Schema      *Schema
	MaxTokens   int
	Temperature float64
}

// Message is one conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Role is the sender of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema is a named JSON Schema for structured output.
type Schema struct {
	// Name is a kebab-case identifier, e.g. "topic-suggestion".
	Name        string
	Description string
	Definition  map[string]any
}

// Response is a completed generation.
type Response struct {
	Content json.RawMessage
	Usage   Usage
	Model   string
	// StopReason is normalized to "end", "max_tokens" or "error".
	StopReason string
}

// Usage is token consumption for one request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
