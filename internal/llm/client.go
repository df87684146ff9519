package llm

import (
	"context"
	"time"
)

// Client defines the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is a single prompt, optionally carrying an image for vision models.
type Request struct {
	System    string
	Prompt    string
	MimeType  string
	Image     []byte
	MaxTokens int
}

// Config holds configuration for the LLM oracles.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	MaxRetries  int
	RetryDelay  time.Duration
	CacheTTL    time.Duration
	Timeout     time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

const defaultHTTPTimeout = 30 * time.Second
