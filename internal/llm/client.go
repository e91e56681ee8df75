// Package llm provides provider-polymorphic chat-completion clients used by
// the analysis pipeline. Each dialect wraps its SDK with the same circuit
// breaker and retry patterns, so callers depend only on Client.
package llm

import (
	"context"
	"errors"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
)

// ErrEmptyResponse is returned when a provider call succeeds at the
// transport level but yields no usable content.
var ErrEmptyResponse = errors.New("llm: provider returned empty response")

// ErrUnavailable is returned when a call is rejected because the dialect's
// circuit breaker is open.
var ErrUnavailable = errors.New("llm: provider unavailable, circuit breaker open")

// Client is a chat-completions dialect. Implementations are expected to
// apply provider defaults (temperature 0.7, max tokens 4096) when the
// caller leaves them unset, and to retry transient failures internally.
type Client interface {
	// Chat sends messages and returns the normalized response. temperature
	// and maxTokens of zero mean "use the dialect default".
	Chat(ctx context.Context, messages []entity.ChatMessage, temperature float64, maxTokens int) (entity.ChatResponse, error)

	// Model returns the identifier of the model this client talks to, for
	// attribution on AnalysisResult.ModelUsed.
	Model() string
}

// CircuitChecker is implemented by dialects that can report their circuit
// breaker state without making a call, for use by health check handlers.
type CircuitChecker interface {
	CircuitOpen() bool
}

// ClientStats summarizes a dialect's configuration and availability for
// introspection endpoints that shouldn't need a live call to answer
// "is this client usable and what's it pointed at".
type ClientStats struct {
	Model       string
	CircuitOpen bool
}

// StatsReporter is implemented by dialects that can summarize their own
// state without making a call.
type StatsReporter interface {
	Stats() ClientStats
}

// ChatSimple is a convenience wrapper around Chat for the common case of a
// single user prompt with default temperature and token limits, returning
// just the response text.
func ChatSimple(ctx context.Context, c Client, prompt string) (string, error) {
	resp, err := c.Chat(ctx, []entity.ChatMessage{{Role: entity.RoleUser, Content: prompt}}, 0, 0)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 4096
)

func withDefaults(temperature float64, maxTokens int) (float64, int) {
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return temperature, maxTokens
}
