package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
	"github.com/zhanzhaozzz/newsradar/internal/resilience/circuitbreaker"
	"github.com/zhanzhaozzz/newsradar/internal/resilience/retry"
)

// Raw implements Client against an arbitrary openai-compatible
// chat-completions endpoint via plain HTTP, for providers that ship no Go
// SDK. It supports both a single JSON response body and a
// "text/event-stream" SSE body, concatenating delta fragments itself since
// no SDK does it for us.
type Raw struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	model          string
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	metrics        ChatMetricsRecorder
	dialectLabel   string
}

// NewRaw creates a generic openai-compatible dialect. baseURL must include
// the scheme and host, e.g. "https://api.example.com/v1".
func NewRaw(baseURL, apiKey, model string) *Raw {
	slog.Info("initialized raw chat client", slog.String("model", model), slog.String("base_url", baseURL))

	return &Raw{
		httpClient:     &http.Client{Timeout: 120 * time.Second},
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		apiKey:         apiKey,
		model:          model,
		circuitBreaker: circuitbreaker.New(circuitbreaker.OpenAIAPIConfig()),
		retryConfig:    retry.AIAPIConfig(),
		metrics:        NewPrometheusChatMetrics(),
		dialectLabel:   "raw",
	}
}

func (r *Raw) Model() string { return r.model }

func (r *Raw) Chat(ctx context.Context, messages []entity.ChatMessage, temperature float64, maxTokens int) (entity.ChatResponse, error) {
	temperature, maxTokens = withDefaults(temperature, maxTokens)

	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	var result entity.ChatResponse
	start := time.Now()

	retryErr := retry.WithBackoff(ctx, r.retryConfig, func() error {
		cbResult, err := r.circuitBreaker.Execute(func() (interface{}, error) {
			return r.doChat(ctx, messages, temperature, maxTokens)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("raw dialect circuit breaker open, request rejected",
					slog.String("state", r.circuitBreaker.State().String()))
				r.metrics.RecordOutcome(r.dialectLabel, "circuit_open")
				return ErrUnavailable
			}
			return err
		}
		result = cbResult.(entity.ChatResponse)
		return nil
	})

	r.metrics.RecordDuration(r.dialectLabel, time.Since(start))

	if retryErr != nil {
		r.metrics.RecordOutcome(r.dialectLabel, "error")
		return entity.ChatResponse{}, fmt.Errorf("raw chat failed after retries: %w", retryErr)
	}

	r.metrics.RecordOutcome(r.dialectLabel, "success")
	r.metrics.RecordTokens(r.dialectLabel, result.Usage.PromptTokens, result.Usage.CompletionTokens)
	return result, nil
}

type rawChatRequest struct {
	Model       string             `json:"model"`
	Messages    []rawChatMessage   `json:"messages"`
	Temperature float64            `json:"temperature"`
	MaxTokens   int                `json:"max_tokens"`
	Stream      bool               `json:"stream"`
}

type rawChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type rawChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      rawChatMessage `json:"message"`
		FinishReason string         `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// rawStreamChunk mirrors one SSE "data:" payload of a streamed
// chat-completions response.
type rawStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (r *Raw) doChat(ctx context.Context, messages []entity.ChatMessage, temperature float64, maxTokens int) (entity.ChatResponse, error) {
	body := rawChatRequest{
		Model:       r.model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      true,
		Messages:    make([]rawChatMessage, len(messages)),
	}
	for i, m := range messages {
		body.Messages[i] = rawChatMessage{Role: string(m.Role), Content: m.Content}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return entity.ChatResponse{}, fmt.Errorf("encode raw chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return entity.ChatResponse{}, fmt.Errorf("build raw chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return entity.ChatResponse{}, fmt.Errorf("raw chat transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return entity.ChatResponse{}, &retry.HTTPError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/event-stream") {
		return r.parseSSE(resp)
	}
	return r.parseJSON(resp)
}

func (r *Raw) parseJSON(resp *http.Response) (entity.ChatResponse, error) {
	var decoded rawChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return entity.ChatResponse{}, fmt.Errorf("decode raw chat response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return entity.ChatResponse{}, ErrEmptyResponse
	}
	choice := decoded.Choices[0]
	return entity.ChatResponse{
		Content:      choice.Message.Content,
		Model:        decoded.Model,
		FinishReason: choice.FinishReason,
		Usage: entity.TokenUsage{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
		},
	}, nil
}

// parseSSE accumulates "data: {...}" lines into a single response, the way
// a non-streaming caller wants it. Each chunk's delta content is
// concatenated in order; the terminal "data: [DONE]" line ends the scan.
func (r *Raw) parseSSE(resp *http.Response) (entity.ChatResponse, error) {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var content strings.Builder
	var model, finishReason string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk rawStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		for _, choice := range chunk.Choices {
			content.WriteString(choice.Delta.Content)
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return entity.ChatResponse{}, fmt.Errorf("read raw chat stream: %w", err)
	}
	if content.Len() == 0 {
		return entity.ChatResponse{}, ErrEmptyResponse
	}

	return entity.ChatResponse{
		Content:      content.String(),
		Model:        model,
		FinishReason: finishReason,
	}, nil
}

// CircuitOpen reports whether the dialect's circuit breaker is currently open.
func (r *Raw) CircuitOpen() bool { return r.circuitBreaker.IsOpen() }

// Stats summarizes this dialect's configuration for introspection.
func (r *Raw) Stats() ClientStats {
	return ClientStats{Model: r.model, CircuitOpen: r.CircuitOpen()}
}
