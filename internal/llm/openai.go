package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
	"github.com/zhanzhaozzz/newsradar/internal/resilience/circuitbreaker"
	"github.com/zhanzhaozzz/newsradar/internal/resilience/retry"
)

// OpenAI implements Client against any OpenAI-compatible chat-completions
// endpoint. It includes circuit breaker and retry logic for reliability and
// records call metrics for observability.
type OpenAI struct {
	client         *openai.Client
	model          string
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	metrics        ChatMetricsRecorder
	dialectLabel   string
}

// NewOpenAI creates an OpenAI-compatible client. baseURL may be empty to use
// the default OpenAI API, or set to route to any compatible provider.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	slog.Info("initialized openai chat client", slog.String("model", model))

	return &OpenAI{
		client:         openai.NewClientWithConfig(cfg),
		model:          model,
		circuitBreaker: circuitbreaker.New(circuitbreaker.OpenAIAPIConfig()),
		retryConfig:    retry.AIAPIConfig(),
		metrics:        NewPrometheusChatMetrics(),
		dialectLabel:   "openai",
	}
}

func (o *OpenAI) Model() string { return o.model }

// Chat sends messages through the circuit breaker with retry-with-backoff,
// per the openai dialect contract.
func (o *OpenAI) Chat(ctx context.Context, messages []entity.ChatMessage, temperature float64, maxTokens int) (entity.ChatResponse, error) {
	temperature, maxTokens = withDefaults(temperature, maxTokens)

	ctx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()

	var result entity.ChatResponse
	start := time.Now()

	retryErr := retry.WithBackoff(ctx, o.retryConfig, func() error {
		cbResult, err := o.circuitBreaker.Execute(func() (interface{}, error) {
			return o.doChat(ctx, messages, temperature, maxTokens)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("openai circuit breaker open, request rejected",
					slog.String("state", o.circuitBreaker.State().String()))
				o.metrics.RecordOutcome(o.dialectLabel, "circuit_open")
				return ErrUnavailable
			}
			return err
		}
		result = cbResult.(entity.ChatResponse)
		return nil
	})

	o.metrics.RecordDuration(o.dialectLabel, time.Since(start))

	if retryErr != nil {
		o.metrics.RecordOutcome(o.dialectLabel, "error")
		return entity.ChatResponse{}, fmt.Errorf("openai chat failed after retries: %w", retryErr)
	}

	o.metrics.RecordOutcome(o.dialectLabel, "success")
	o.metrics.RecordTokens(o.dialectLabel, result.Usage.PromptTokens, result.Usage.CompletionTokens)
	return result, nil
}

func (o *OpenAI) doChat(ctx context.Context, messages []entity.ChatMessage, temperature float64, maxTokens int) (entity.ChatResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
		Messages:    toOpenAIMessages(messages),
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return entity.ChatResponse{}, fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return entity.ChatResponse{}, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	return entity.ChatResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: entity.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func toOpenAIMessages(messages []entity.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}
	return out
}

// CircuitOpen reports whether the dialect's circuit breaker is currently open.
func (o *OpenAI) CircuitOpen() bool { return o.circuitBreaker.IsOpen() }

// Stats summarizes this dialect's configuration for introspection.
func (o *OpenAI) Stats() ClientStats {
	return ClientStats{Model: o.model, CircuitOpen: o.CircuitOpen()}
}
