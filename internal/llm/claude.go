package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
	"github.com/zhanzhaozzz/newsradar/internal/resilience/circuitbreaker"
	"github.com/zhanzhaozzz/newsradar/internal/resilience/retry"
)

// Claude implements Client against Anthropic's Messages API. System-role
// messages are pulled out of the turn list into the request's top-level
// System field, matching Anthropic's wire contract.
type Claude struct {
	client         anthropic.Client
	model          string
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	metrics        ChatMetricsRecorder
	dialectLabel   string
}

// NewClaude creates a Claude chat client for the given model.
func NewClaude(apiKey, model string) *Claude {
	slog.Info("initialized claude chat client", slog.String("model", model))

	return &Claude{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          model,
		circuitBreaker: circuitbreaker.New(circuitbreaker.ClaudeAPIConfig()),
		retryConfig:    retry.AIAPIConfig(),
		metrics:        NewPrometheusChatMetrics(),
		dialectLabel:   "claude",
	}
}

func (c *Claude) Model() string { return c.model }

func (c *Claude) Chat(ctx context.Context, messages []entity.ChatMessage, temperature float64, maxTokens int) (entity.ChatResponse, error) {
	temperature, maxTokens = withDefaults(temperature, maxTokens)

	ctx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()

	requestID := uuid.New().String()
	var result entity.ChatResponse
	start := time.Now()

	retryErr := retry.WithBackoff(ctx, c.retryConfig, func() error {
		cbResult, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.doChat(ctx, requestID, messages, temperature, maxTokens)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("claude circuit breaker open, request rejected",
					slog.String("request_id", requestID),
					slog.String("state", c.circuitBreaker.State().String()))
				c.metrics.RecordOutcome(c.dialectLabel, "circuit_open")
				return ErrUnavailable
			}
			return err
		}
		result = cbResult.(entity.ChatResponse)
		return nil
	})

	c.metrics.RecordDuration(c.dialectLabel, time.Since(start))

	if retryErr != nil {
		c.metrics.RecordOutcome(c.dialectLabel, "error")
		return entity.ChatResponse{}, fmt.Errorf("claude chat failed after retries: %w", retryErr)
	}

	c.metrics.RecordOutcome(c.dialectLabel, "success")
	c.metrics.RecordTokens(c.dialectLabel, result.Usage.PromptTokens, result.Usage.CompletionTokens)
	return result, nil
}

func (c *Claude) doChat(ctx context.Context, requestID string, messages []entity.ChatMessage, temperature float64, maxTokens int) (entity.ChatResponse, error) {
	var system string
	var turns []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case entity.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case entity.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	slog.InfoContext(ctx, "sending claude chat request", slog.String("request_id", requestID))

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return entity.ChatResponse{}, fmt.Errorf("claude api error: %w", err)
	}

	if len(message.Content) == 0 {
		return entity.ChatResponse{}, ErrEmptyResponse
	}

	textBlock, ok := message.Content[0].AsAny().(anthropic.TextBlock)
	if !ok {
		return entity.ChatResponse{}, fmt.Errorf("claude api returned unexpected content type")
	}

	return entity.ChatResponse{
		Content:      textBlock.Text,
		Model:        string(message.Model),
		FinishReason: string(message.StopReason),
		Usage: entity.TokenUsage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}, nil
}

// CircuitOpen reports whether the dialect's circuit breaker is currently open.
func (c *Claude) CircuitOpen() bool { return c.circuitBreaker.IsOpen() }

// Stats summarizes this dialect's configuration for introspection.
func (c *Claude) Stats() ClientStats {
	return ClientStats{Model: c.model, CircuitOpen: c.CircuitOpen()}
}
