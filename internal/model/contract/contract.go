package contract

import "errors"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	// JSON asks the provider for a single JSON object when it supports it.
	JSON bool `json:"json,omitempty"`
}

type CompletionResponse struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

const DefaultMaxTokens = 1024

// ErrEmbeddingUnsupported is returned by providers that only generate text.
var ErrEmbeddingUnsupported = errors.New("embedding not supported")
