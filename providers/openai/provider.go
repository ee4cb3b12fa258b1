// Package openai implements the Provider interface over the OpenAI
// Chat Completions API (and compatible endpoints).
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/aerodesk/flightagent/providers"
)

// Provider implements providers.Provider for OpenAI-compatible APIs.
type Provider struct {
	client *goopenai.Client
	logger *slog.Logger
}

// New creates a new OpenAI provider.
func New(apiKey string, logger *slog.Logger) *Provider {
	return NewWithBaseURL(apiKey, "", logger)
}

// NewWithBaseURL creates a provider pointed at an OpenAI-compatible endpoint.
// An empty baseURL uses the OpenAI default.
func NewWithBaseURL(apiKey, baseURL string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Provider{
		client: goopenai.NewClientWithConfig(cfg),
		logger: logger,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Complete generates a single completion.
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	apiReq, err := toAPIRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	out := fromAPIResponse(&resp)
	p.logger.Debug("completion received",
		"model", resp.Model,
		"tool_calls", len(out.ToolCalls),
		"finish_reason", out.FinishReason)
	return out, nil
}

// toAPIRequest converts a provider-agnostic request to the OpenAI format.
// The system prompt becomes the leading message; it is never part of the
// caller's stored history.
func toAPIRequest(req providers.CompletionRequest) (goopenai.ChatCompletionRequest, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	for _, msg := range req.Messages {
		apiMsg := goopenai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
		}
		for _, tc := range msg.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				return goopenai.ChatCompletionRequest{}, fmt.Errorf("marshal tool call arguments: %w", err)
			}
			apiMsg.ToolCalls = append(apiMsg.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		messages = append(messages, apiMsg)
	}

	apiReq := goopenai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.ToolChoice != "" {
		apiReq.ToolChoice = req.ToolChoice
	}

	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return apiReq, nil
}

// fromAPIResponse converts an OpenAI response to the provider-agnostic form.
// Tool call arguments that fail to parse become empty argument maps rather
// than dropped calls, so the correlation id still gets answered.
func fromAPIResponse(resp *goopenai.ChatCompletionResponse) *providers.CompletionResponse {
	choice := resp.Choices[0]

	out := &providers.CompletionResponse{
		ID:      resp.ID,
		Content: choice.Message.Content,
		Model:   resp.Model,
		Created: time.Unix(resp.Created, 0),
		Usage: providers.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	switch choice.FinishReason {
	case goopenai.FinishReasonToolCalls:
		out.FinishReason = providers.FinishReasonToolCalls
	case goopenai.FinishReasonLength:
		out.FinishReason = providers.FinishReasonLength
	default:
		out.FinishReason = providers.FinishReasonStop
	}

	for _, tc := range choice.Message.ToolCalls {
		call := providers.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: map[string]any{},
		}
		if tc.Function.Arguments != "" {
			var args map[string]any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err == nil {
				call.Arguments = args
			}
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}

	if len(out.ToolCalls) > 0 {
		out.FinishReason = providers.FinishReasonToolCalls
	}

	return out
}
