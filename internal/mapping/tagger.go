package mapping

import (
	"context"
	"errors"
)

// ErrNoSuggestion is returned by taggers that have nothing to offer.
var ErrNoSuggestion = errors.New("no topic suggestion")

// Tagger suggests a topic tag for a question's text. Implementations may
// call external services; any error is treated as "no suggestion".
type Tagger interface {
	SuggestTopic(ctx context.Context, questionText string) (string, error)
}

// NopTagger always defers to the static table.
type NopTagger struct{}

// SuggestTopic implements Tagger.
func (NopTagger) SuggestTopic(context.Context, string) (string, error) {
	return "", ErrNoSuggestion
}

// TaggerFunc adapts a function to the Tagger interface.
type TaggerFunc func(ctx context.Context, questionText string) (string, error)

// SuggestTopic implements Tagger.
func (f TaggerFunc) SuggestTopic(ctx context.Context, questionText string) (string, error) {
	return f(ctx, questionText)
}
