package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/aerodesk/flightagent/providers"
)

func TestProviderFIFO(t *testing.T) {
	provider := New().
		WithResponse("first", nil).
		WithError(errors.New("boom")).
		WithResponse("", []providers.ToolCall{{ID: "call_1", Name: "search_flights"}})

	ctx := context.Background()

	resp, err := provider.Complete(ctx, providers.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "first" || resp.FinishReason != providers.FinishReasonStop {
		t.Fatalf("resp = %+v", resp)
	}

	if _, err := provider.Complete(ctx, providers.CompletionRequest{}); err == nil {
		t.Fatal("expected configured error")
	}

	resp, err = provider.Complete(ctx, providers.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.FinishReason != providers.FinishReasonToolCalls {
		t.Fatalf("finish reason = %q", resp.FinishReason)
	}

	if _, err := provider.Complete(ctx, providers.CompletionRequest{}); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("err = %v, want ErrNoResponse", err)
	}

	// The exhausted call is not counted; only configured responses consume.
	if provider.CallCount() != 3 {
		t.Fatalf("call count = %d", provider.CallCount())
	}
}

func TestProviderRecordsRequests(t *testing.T) {
	provider := New().WithResponse("ok", nil)

	req := providers.CompletionRequest{
		Model:        "mock-model",
		SystemPrompt: "prompt",
		Messages:     []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
	}
	if _, err := provider.Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	requests := provider.Requests()
	if len(requests) != 1 {
		t.Fatalf("requests = %d", len(requests))
	}
	if requests[0].SystemPrompt != "prompt" || len(requests[0].Messages) != 1 {
		t.Fatalf("recorded request = %+v", requests[0])
	}
}
