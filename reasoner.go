package flightagent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aerodesk/flightagent/internal/ratelimit"
	"github.com/aerodesk/flightagent/providers"
)

// fallbackMessage is the synthetic assistant reply used when the reasoning
// service is unavailable. The session stays alive; the user can retry.
const fallbackMessage = "Let me check that for you..."

// Reasoner wraps the reasoning service behind the shared rate limiter and
// the fixed system prompt.
type Reasoner struct {
	provider     providers.Provider
	limiter      *ratelimit.Limiter
	model        string
	temperature  float32
	systemPrompt string
	logger       *slog.Logger
}

// NewReasoner creates a reasoning step.
func NewReasoner(provider providers.Provider, limiter *ratelimit.Limiter, model, systemPrompt string, temperature float32, logger *slog.Logger) *Reasoner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reasoner{
		provider:     provider,
		limiter:      limiter,
		model:        model,
		temperature:  temperature,
		systemPrompt: systemPrompt,
		logger:       logger,
	}
}

// Respond produces one assistant message for the given history. The system
// prompt is prepended transiently; stored history stays human/assistant/tool
// only. A reasoning-service failure is absorbed into a fallback assistant
// message; the only error returned is cancellation.
func (r *Reasoner) Respond(ctx context.Context, history []providers.Message, tools []providers.ToolDefinition) (*providers.CompletionResponse, error) {
	if err := r.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	resp, err := r.provider.Complete(ctx, providers.CompletionRequest{
		Model:        r.model,
		SystemPrompt: r.systemPrompt,
		Messages:     history,
		Tools:        tools,
		Temperature:  r.temperature,
		ToolChoice:   "auto",
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("reasoning call cancelled: %w", ctx.Err())
		}
		r.logger.Error("reasoning service failed", "provider", r.provider.Name(), "error", err)
		return &providers.CompletionResponse{
			Content:      fallbackMessage,
			FinishReason: providers.FinishReasonError,
			Model:        r.model,
			Created:      time.Now(),
		}, nil
	}

	return resp, nil
}
