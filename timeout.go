package flightagent

import (
	"time"
)

// TimeoutConfig configures timeout behavior for different operations. The
// reasoning and tool timeouts must leave room for the rate limiter's wait,
// which can last a full window.
type TimeoutConfig struct {
	Turn          time.Duration // Whole user turn (0 = no timeout)
	ReasoningCall time.Duration // Per reasoning call, including limiter wait (0 = no timeout)
	ToolExecution time.Duration // Per tool execution, including limiter wait (0 = no timeout)
}

// DefaultTimeoutConfig returns sensible timeout defaults.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Turn:          5 * time.Minute,
		ReasoningCall: 2 * time.Minute,
		ToolExecution: 2 * time.Minute,
	}
}

// NoTimeouts returns a config with all timeouts disabled.
func NoTimeouts() TimeoutConfig {
	return TimeoutConfig{}
}
