// Command flightagent runs the flight-booking assistant as an interactive
// terminal chat.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/aerodesk/flightagent"
	"github.com/aerodesk/flightagent/amadeus"
	"github.com/aerodesk/flightagent/internal/ratelimit"
)

type config struct {
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY" required:"true"`
	Model        string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	AmadeusClientID     string `envconfig:"AMADEUS_CLIENT_ID" required:"true"`
	AmadeusClientSecret string `envconfig:"AMADEUS_CLIENT_SECRET" required:"true"`
	AmadeusBaseURL      string `envconfig:"AMADEUS_BASE_URL"`

	OTLPEndpoint string            `envconfig:"OTLP_ENDPOINT"`
	OTLPHeaders  map[string]string `envconfig:"OTLP_HEADERS"`
	Environment  string            `envconfig:"ENVIRONMENT" default:"development"`

	RateMinInterval time.Duration `envconfig:"RATE_MIN_INTERVAL" default:"6s"`
	RateMaxCalls    int           `envconfig:"RATE_MAX_CALLS" default:"10"`
	RateWindow      time.Duration `envconfig:"RATE_WINDOW" default:"1m"`

	LogLevel slog.Level `envconfig:"LOG_LEVEL"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "flightagent:", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing, err := flightagent.SetupTracing(ctx, flightagent.TracingConfig{
		Endpoint:    cfg.OTLPEndpoint,
		Headers:     cfg.OTLPHeaders,
		ServiceName: "flightagent",
		Environment: cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	var backendOpts []amadeus.Option
	if cfg.AmadeusBaseURL != "" {
		backendOpts = append(backendOpts, amadeus.WithBaseURL(cfg.AmadeusBaseURL))
	}
	backend := amadeus.NewClient(cfg.AmadeusClientID, cfg.AmadeusClientSecret, logger, backendOpts...)

	agent, err := flightagent.New(flightagent.Config{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.Model,
		Backend: backend,
		RateLimit: &ratelimit.Config{
			MinInterval: cfg.RateMinInterval,
			MaxCalls:    cfg.RateMaxCalls,
			Window:      cfg.RateWindow,
		},
		Logging: &flightagent.LoggingConfig{Logger: logger},
		Tracer:  tracing.Tracer,
	})
	if err != nil {
		return err
	}

	return chatLoop(ctx, agent)
}

func chatLoop(ctx context.Context, agent *flightagent.Agent) error {
	session := agent.StartSession()
	if messages := session.Messages(); len(messages) > 0 {
		fmt.Println(messages[0].Content)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		reply, err := agent.Submit(ctx, session, text)
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case errors.Is(err, flightagent.ErrSessionFinished):
			return nil
		case err != nil:
			return err
		}

		fmt.Println(reply)
		if session.Finished() {
			return nil
		}
	}
	return scanner.Err()
}
