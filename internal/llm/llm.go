// Package llm is the gateway to chat-completion providers. Providers
// implement Client; cross-cutting concerns (retries, rate limiting, logging)
// are layered on with Middleware.
package llm

import (
	"context"
	"errors"
)

var (
	ErrEmptyResponse = errors.New("llm: empty response")
	ErrNoAPIKey      = errors.New("llm: api key is required")
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation. Order is significant.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// ToolDefinition describes a function the model may call. Parameters is a
// JSON schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is one function invocation returned by the model. Arguments is
// the JSON-encoded argument object.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	Tools       []ToolDefinition
	// ToolChoice forces the named tool. Empty leaves the choice to the model.
	ToolChoice string
}

type Response struct {
	Content   string
	Usage     *Usage
	Model     string
	ToolCalls []ToolCall
}

// ToolCall returns the first call to the named function.
func (r *Response) ToolCall(name string) (ToolCall, bool) {
	if r == nil {
		return ToolCall{}, false
	}
	for _, tc := range r.ToolCalls {
		if tc.Name == name {
			return tc, true
		}
	}
	return ToolCall{}, false
}

// Client is implemented by every provider and middleware layer.
type Client interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
	Close() error
}

// PermanentError marks an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is or wraps a PermanentError.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
