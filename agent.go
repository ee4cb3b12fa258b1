// Package flightagent implements the orchestration core of a conversational
// flight-booking assistant: a conversation state machine that routes each
// user turn between a rate-limited reasoning step and a registry of booking
// tools backed by the flight-data service.
package flightagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aerodesk/flightagent/internal/ratelimit"
	"github.com/aerodesk/flightagent/providers"
	"github.com/aerodesk/flightagent/providers/openai"
)

const (
	defaultModel      = "gpt-4o-mini"
	defaultMaxRounds  = 5
	defaultMaxOffers  = 3
	defaultSystemText = "You are a helpful flight-booking assistant. Use the available tools to " +
		"search flights, collect passenger and payment details, and complete bookings. " +
		"Ask for missing information instead of guessing. Present prices with their currency."

	// turnCapMessage is the synthetic reply when a single user turn exhausts
	// its reasoning rounds without producing a final answer.
	turnCapMessage = "Please give me a moment and try again."

	goodbyeMessage = "Goodbye! Safe travels."
)

// quitTokens end the session without a reasoning call. Exact, case-sensitive.
var quitTokens = map[string]struct{}{
	"q":       {},
	"quit":    {},
	"exit":    {},
	"goodbye": {},
}

// Common validation errors.
var (
	ErrMissingAPIKey      = errors.New("flightagent: APIKey is required when no Provider is set")
	ErrMissingBackend     = errors.New("flightagent: Backend is required")
	ErrInvalidToolRounds  = errors.New("flightagent: MaxToolRounds must be between 1 and 100")
	ErrInvalidTemperature = errors.New("flightagent: Temperature must be between 0.0 and 2.0")

	// ErrSessionFinished is returned by Submit after the session reached its
	// terminal state; only a fresh session accepts input again.
	ErrSessionFinished = errors.New("flightagent: session is finished")
)

// Config holds agent configuration.
type Config struct {
	// APIKey is the reasoning-service key, used only when Provider is nil.
	APIKey string
	Model  string

	// SystemPrompt overrides the default assistant instructions.
	SystemPrompt string
	Temperature  float32

	// MaxToolRounds caps the reason/dispatch loop within one user turn.
	MaxToolRounds int

	// MaxOffers bounds how many offers a search feeds back into the
	// conversation.
	MaxOffers int

	// Backend is the flight-data service. Required.
	Backend Backend

	// Provider overrides the default reasoning-service client.
	Provider providers.Provider

	// RateLimit overrides the outbound-call limiter settings shared by
	// reasoning and backend calls.
	RateLimit *ratelimit.Config

	Timeout *TimeoutConfig
	Logging *LoggingConfig

	// Tracer overrides the tracer; defaults to the global otel provider.
	Tracer trace.Tracer
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.APIKey == "" && c.Provider == nil {
		return ErrMissingAPIKey
	}
	if c.Backend == nil {
		return ErrMissingBackend
	}
	if c.MaxToolRounds < 0 || c.MaxToolRounds > 100 {
		return ErrInvalidToolRounds
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return ErrInvalidTemperature
	}
	return nil
}

// Agent drives conversations: it owns the reasoning step, the shared rate
// limiter, and the flight-tool registry. One Agent can serve many sessions,
// all sharing the same outbound-call quota.
type Agent struct {
	reasoner      *Reasoner
	backend       Backend
	limiter       *ratelimit.Limiter
	maxToolRounds int
	maxOffers     int
	timeoutConfig TimeoutConfig
	loggingConfig LoggingConfig
	logger        *slog.Logger
	tracer        trace.Tracer
}

// New creates a new agent with the given configuration.
func New(cfg Config) (*Agent, error) {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxToolRounds == 0 {
		cfg.MaxToolRounds = defaultMaxRounds
	}
	if cfg.MaxOffers <= 0 {
		cfg.MaxOffers = defaultMaxOffers
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemText
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}

	loggingConfig := DefaultLoggingConfig()
	if cfg.Logging != nil {
		loggingConfig = *cfg.Logging
	}
	logger := resolveLogger(loggingConfig)

	timeoutConfig := DefaultTimeoutConfig()
	if cfg.Timeout != nil {
		timeoutConfig = *cfg.Timeout
	}

	limiterConfig := ratelimit.DefaultConfig()
	if cfg.RateLimit != nil {
		limiterConfig = *cfg.RateLimit
	}
	limiter := ratelimit.New(limiterConfig)

	provider := cfg.Provider
	if provider == nil {
		provider = openai.New(cfg.APIKey, logger)
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/aerodesk/flightagent")
	}

	return &Agent{
		reasoner:      NewReasoner(provider, limiter, cfg.Model, cfg.SystemPrompt, cfg.Temperature, logger),
		backend:       cfg.Backend,
		limiter:       limiter,
		maxToolRounds: cfg.MaxToolRounds,
		maxOffers:     cfg.MaxOffers,
		timeoutConfig: timeoutConfig,
		loggingConfig: loggingConfig,
		logger:        logger,
		tracer:        tracer,
	}, nil
}

// StartSession creates a fresh conversation seeded with the welcome message.
func (a *Agent) StartSession() *Session {
	session := newSession()
	a.logger.Info("session started", "session_id", session.ID())
	return session
}

// Reset discards a session unconditionally and returns a fresh one. In-flight
// side effects of an abandoned turn are not rolled back.
func (a *Agent) Reset(session *Session) *Session {
	if session != nil {
		session.markFinished()
		a.logger.Info("session reset", "session_id", session.ID())
	}
	return a.StartSession()
}

// Submit feeds one unit of user text into the session and returns the latest
// assistant message. Quit tokens terminate the session without a reasoning
// call. The only errors are cancellation and submitting to a finished
// session; reasoning and backend failures surface as assistant text.
func (a *Agent) Submit(ctx context.Context, session *Session, text string) (string, error) {
	if session.Finished() {
		return "", ErrSessionFinished
	}

	session.append(providers.Message{Role: providers.RoleUser, Content: text})

	if _, quit := quitTokens[text]; quit {
		session.append(providers.Message{Role: providers.RoleAssistant, Content: goodbyeMessage})
		session.markFinished()
		a.logger.Info("session finished", "session_id", session.ID())
		return goodbyeMessage, nil
	}

	ctx, span := a.tracer.Start(ctx, "agent.turn",
		trace.WithAttributes(attribute.String("session.id", session.ID())))
	defer span.End()

	ctx, cancel := withTimeout(ctx, a.timeoutConfig.Turn)
	defer cancel()

	reply, err := a.runTurn(ctx, session)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return reply, nil
}

// runTurn loops reason -> dispatch until the assistant answers without tool
// requests or the round cap is hit.
func (a *Agent) runTurn(ctx context.Context, session *Session) (string, error) {
	ts := newToolset(a.backend, a.limiter, session, a.logger, a.maxOffers)
	registry := ts.tools()
	definitions := toolDefinitions(registry)

	for round := 0; round < a.maxToolRounds; round++ {
		a.logger.Debug("reasoning round", "session_id", session.ID(), "round", round, "max", a.maxToolRounds)

		resp, err := a.reason(ctx, session, definitions, round)
		if err != nil {
			return "", err
		}

		calls := ensureToolCallIDs(filterCompleteToolCalls(resp.ToolCalls))
		session.append(providers.Message{
			Role:      providers.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: calls,
		})

		if len(calls) == 0 {
			return resp.Content, nil
		}

		if err := a.dispatch(ctx, session, registry, calls); err != nil {
			return "", err
		}
	}

	a.logger.Warn("turn exceeded tool rounds", "session_id", session.ID(), "max", a.maxToolRounds)
	session.append(providers.Message{Role: providers.RoleAssistant, Content: turnCapMessage})
	return turnCapMessage, nil
}

func (a *Agent) reason(ctx context.Context, session *Session, definitions []providers.ToolDefinition, round int) (*providers.CompletionResponse, error) {
	ctx, span := a.tracer.Start(ctx, "agent.reason",
		trace.WithAttributes(attribute.Int("turn.round", round)))
	defer span.End()

	ctx, cancel := withTimeout(ctx, a.timeoutConfig.ReasoningCall)
	defer cancel()

	return a.reasoner.Respond(ctx, session.Messages(), definitions)
}

// dispatch executes every tool request sequentially, appending results in
// request order. A successful search additionally appends a human-readable
// digest ahead of the next reasoning call.
func (a *Agent) dispatch(ctx context.Context, session *Session, registry map[string]Tool, calls []providers.ToolCall) error {
	var digests []string

	for _, call := range calls {
		msg, digest, err := a.executeToolCall(ctx, registry, call)
		if err != nil {
			return err
		}
		session.append(msg)
		if digest != "" {
			digests = append(digests, digest)
		}
	}

	for _, digest := range digests {
		session.append(providers.Message{Role: providers.RoleAssistant, Content: digest})
	}
	return nil
}

func (a *Agent) executeToolCall(ctx context.Context, registry map[string]Tool, call providers.ToolCall) (providers.Message, string, error) {
	ctx, span := a.tracer.Start(ctx, "agent.tool",
		trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	tool, exists := registry[call.Name]
	if !exists {
		a.logger.Warn("tool not found", "tool", call.Name)
		return toolMessage(call, errorPayload("tool not found")), "", nil
	}

	ctx, cancel := withTimeout(ctx, a.timeoutConfig.ToolExecution)
	defer cancel()

	loggedArgs := call.Arguments
	if a.loggingConfig.RedactSensitive {
		loggedArgs = redactArgs(loggedArgs)
	}
	a.logger.Debug("tool call", "tool", call.Name, "args", loggedArgs)

	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		// Handlers absorb backend failures into error payloads; a Go error
		// here is cancellation and ends the turn.
		span.RecordError(err)
		return providers.Message{}, "", fmt.Errorf("tool %s: %w", call.Name, err)
	}

	if search, ok := result.(searchSuccess); ok {
		return toolMessage(call, map[string]any{"count": search.Count}), formatFlightOptions(search.Options), nil
	}

	a.logger.Info("tool executed", "tool", call.Name)
	return toolMessage(call, result), "", nil
}

func toolMessage(call providers.ToolCall, result any) providers.Message {
	return providers.Message{
		Role:       providers.RoleTool,
		Content:    formatToolResult(result),
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}

func formatToolResult(result any) string {
	if result == nil {
		return "null"
	}
	switch v := result.(type) {
	case string:
		return v
	case error:
		return fmt.Sprintf("Error: %v", v)
	default:
		if data, err := json.Marshal(result); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", result)
	}
}

// toolDefinitions renders the registry as a sorted schema catalogue for the
// reasoning service.
func toolDefinitions(registry map[string]Tool) []providers.ToolDefinition {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	definitions := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		tool := registry[name]
		definitions = append(definitions, tool.ToToolDefinition())
	}
	return definitions
}

func filterCompleteToolCalls(toolCalls []providers.ToolCall) []providers.ToolCall {
	if len(toolCalls) == 0 {
		return toolCalls
	}
	filtered := make([]providers.ToolCall, 0, len(toolCalls))
	for _, tc := range toolCalls {
		if tc.Name == "" {
			continue
		}
		if tc.Arguments == nil {
			tc.Arguments = map[string]any{}
		}
		filtered = append(filtered, tc)
	}
	return filtered
}

// ensureToolCallIDs backfills missing correlation ids so every result can be
// matched to its request.
func ensureToolCallIDs(toolCalls []providers.ToolCall) []providers.ToolCall {
	if len(toolCalls) == 0 {
		return toolCalls
	}
	used := make(map[string]struct{}, len(toolCalls))
	for _, tc := range toolCalls {
		if tc.ID != "" {
			used[tc.ID] = struct{}{}
		}
	}
	next := 1
	for i := range toolCalls {
		if toolCalls[i].ID != "" {
			continue
		}
		for {
			id := fmt.Sprintf("call_%d", next)
			next++
			if _, exists := used[id]; exists {
				continue
			}
			toolCalls[i].ID = id
			used[id] = struct{}{}
			break
		}
	}
	return toolCalls
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
