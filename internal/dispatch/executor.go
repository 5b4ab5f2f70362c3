package dispatch

import (
	"context"
	"time"
)

// Message is one turn of a provider-agnostic chat request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic completion request. The dispatcher passes it
// through to the executor untouched.
type Request struct {
	Messages    []Message         `json:"messages"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   *int              `json:"max_tokens,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Usage contains token usage statistics reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a provider-agnostic completion response. Endpoint and Latency
// are filled in by the dispatcher.
type Response struct {
	Content      string        `json:"content"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Usage        *Usage        `json:"usage,omitempty"`
	Endpoint     string        `json:"endpoint"`
	Latency      time.Duration `json:"latency_ns"`
}

// EndpointInfo is the opaque connection material handed to the executor. The
// dispatcher never interprets BaseURL or Credential.
type EndpointInfo struct {
	ID         string
	BaseURL    string
	Model      string
	Credential string
}

// Executor performs the actual provider call. The dispatcher only cares about
// the outcome triple: response, error, and how long it took. Implementations
// must honor ctx cancellation and should return *ProviderError with Permanent
// set for faults that retrying cannot fix (e.g. rejected credentials).
type Executor interface {
	Execute(ctx context.Context, ep EndpointInfo, req *Request) (*Response, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, ep EndpointInfo, req *Request) (*Response, error)

func (f ExecutorFunc) Execute(ctx context.Context, ep EndpointInfo, req *Request) (*Response, error) {
	return f(ctx, ep, req)
}
