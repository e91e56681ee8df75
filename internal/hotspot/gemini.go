package hotspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
	"github.com/zhanzhaozzz/newsradar/internal/llm"
	"github.com/zhanzhaozzz/newsradar/internal/resilience/circuitbreaker"
	"github.com/zhanzhaozzz/newsradar/internal/resilience/retry"
)

// geminiClient implements llm.Client against Google's generateContent REST
// API. No Gemini Go SDK appears anywhere in this module's dependency
// lineage, so this dialect is a small hand-rolled REST client built the
// same way the other raw dialect is: circuit breaker plus retry around a
// single HTTP call.
type geminiClient struct {
	httpClient     *http.Client
	apiKey         string
	model          string
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// newGeminiClient builds a Gemini chat client for the given model, e.g.
// "gemini-2.0-flash".
func newGeminiClient(apiKey, model string) *geminiClient {
	return &geminiClient{
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		apiKey:         apiKey,
		model:          model,
		circuitBreaker: circuitbreaker.New(circuitbreaker.OpenAIAPIConfig()),
		retryConfig:    retry.AIAPIConfig(),
	}
}

func (c *geminiClient) Model() string { return c.model }

func (c *geminiClient) Chat(ctx context.Context, messages []entity.ChatMessage, temperature float64, maxTokens int) (entity.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var result entity.ChatResponse
	retryErr := retry.WithBackoff(ctx, c.retryConfig, func() error {
		cbResult, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.doChat(ctx, messages, temperature, maxTokens)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("gemini circuit breaker open, request rejected")
				return llm.ErrUnavailable
			}
			return err
		}
		result = cbResult.(entity.ChatResponse)
		return nil
	})
	if retryErr != nil {
		return entity.ChatResponse{}, fmt.Errorf("gemini chat failed after retries: %w", retryErr)
	}
	return result, nil
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent        `json:"systemInstruction,omitempty"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (c *geminiClient) doChat(ctx context.Context, messages []entity.ChatMessage, temperature float64, maxTokens int) (entity.ChatResponse, error) {
	req := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxTokens,
		},
	}

	for _, m := range messages {
		if m.Role == entity.RoleSystem {
			req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}
		role := "user"
		if m.Role == entity.RoleAssistant {
			role = "model"
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return entity.ChatResponse{}, fmt.Errorf("encode gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return entity.ChatResponse{}, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return entity.ChatResponse{}, fmt.Errorf("gemini transport error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return entity.ChatResponse{}, fmt.Errorf("read gemini response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return entity.ChatResponse{}, &retry.HTTPError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var decoded geminiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return entity.ChatResponse{}, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return entity.ChatResponse{}, llm.ErrEmptyResponse
	}

	candidate := decoded.Candidates[0]
	var text string
	for _, p := range candidate.Content.Parts {
		text += p.Text
	}

	return entity.ChatResponse{
		Content:      text,
		Model:        c.model,
		FinishReason: candidate.FinishReason,
		Usage: entity.TokenUsage{
			PromptTokens:     decoded.UsageMetadata.PromptTokenCount,
			CompletionTokens: decoded.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      decoded.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

// CircuitOpen reports whether the dialect's circuit breaker is currently open.
func (c *geminiClient) CircuitOpen() bool { return c.circuitBreaker.IsOpen() }
