package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/zhanzhaozzz/newsradar/internal/llm"
)

// AIHealthHandler reports the health of the chat client used by the daily
// analysis pipeline. Unlike HealthHandler's database ping, this never makes
// a live API call: it only reports circuit breaker state, since an LLM call
// on every health check would itself drain the rate budget it's guarding.
type AIHealthHandler struct {
	client llm.Client
}

// NewAIHealthHandler creates a new AI health check handler.
func NewAIHealthHandler(client llm.Client) *AIHealthHandler {
	return &AIHealthHandler{client: client}
}

// AIHealthResponse represents the response structure for AI health endpoints.
type AIHealthResponse struct {
	Status      string `json:"status"`
	Model       string `json:"model,omitempty"`
	CircuitOpen bool   `json:"circuit_open"`
}

// Health returns the chat client's model and circuit breaker state.
//
// @Summary      AI client health
// @Description  Reports the chat client's circuit breaker state without making a live API call
// @Tags         admin
// @Produce      json
// @Success      200 {object} AIHealthResponse
// @Failure      503 {object} AIHealthResponse
// @Router       /health/ai [get]
func (h *AIHealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.client == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		h.encode(w, AIHealthResponse{Status: "unconfigured"})
		return
	}

	open := false
	if checker, ok := h.client.(llm.CircuitChecker); ok {
		open = checker.CircuitOpen()
	}

	status := "healthy"
	code := http.StatusOK
	if open {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	h.encode(w, AIHealthResponse{
		Status:      status,
		Model:       h.client.Model(),
		CircuitOpen: open,
	})
}

func (h *AIHealthHandler) encode(w http.ResponseWriter, resp AIHealthResponse) {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode AI health response", slog.Any("error", err))
	}
}
