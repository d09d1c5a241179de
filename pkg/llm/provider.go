package llm

import (
	"context"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// Tool describes a function the model may call. Parameters is a JSON Schema
// object in the shape both OpenAI and Ollama accept.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Strict      bool
}

// ToolCall is a function invocation requested by the model. Arguments is the
// raw JSON argument object.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Completion is the assistant turn returned by ChatWithTools: free text,
// tool calls, or both.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the response text
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// ChatWithTools sends a chat history together with tool definitions and
	// returns the full assistant turn, including any tool calls
	ChatWithTools(ctx context.Context, history []Message, tools []Tool, options ...Option) (*Completion, error)
}
