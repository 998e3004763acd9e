// Package routing picks the completion model for a request.
package routing

import (
	"regexp"
	"unicode/utf8"
)

var complexKeywords = regexp.MustCompile(`(?i)\b(explain|analyze|detail|complex|algorithm|code|technical|help|how|why|what)\b`)

// Signals are the request features a routing policy may branch on.
type Signals struct {
	MessageLength int
	ContextLength int
	HasComplexity bool
}

// Policy maps request signals to a model identifier.
type Policy func(s Signals) string

// Fixed returns a policy that always picks model.
func Fixed(model string) Policy {
	return func(Signals) string { return model }
}

// Router selects a model for each request. It performs no I/O.
type Router struct {
	enabled      bool
	defaultModel string
	policy       Policy
}

// New creates a Router. When enabled is false every request gets
// defaultModel. A nil policy falls back to the default model as well.
func New(enabled bool, defaultModel string, policy Policy) *Router {
	if policy == nil {
		policy = Fixed(defaultModel)
	}
	return &Router{enabled: enabled, defaultModel: defaultModel, policy: policy}
}

// Analyze computes routing signals for a message and its context size.
func Analyze(text string, contextLength int) Signals {
	return Signals{
		MessageLength: utf8.RuneCountInString(text),
		ContextLength: contextLength,
		HasComplexity: complexKeywords.MatchString(text),
	}
}

// SelectModel returns the model to use for text given contextLength bytes
// of group context.
func (r *Router) SelectModel(text string, contextLength int) string {
	if !r.enabled {
		return r.defaultModel
	}
	return r.policy(Analyze(text, contextLength))
}
