package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/secboard/core"
)

// Request captures the normalized model input produced by agents.
type Request struct {
	Instructions string         `json:"instructions"` // System prompt
	Contents     []core.Content `json:"contents"`     // Conversation converted to provider messages
	Stream       bool           `json:"stream,omitempty"`
}

// LastUserText returns the text of the last user content, if any.
func (r Request) LastUserText() string {
	for i := len(r.Contents) - 1; i >= 0; i-- {
		if r.Contents[i].Role == core.RoleUser {
			return r.Contents[i].Text()
		}
	}
	return ""
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
//
// Streaming adapters emit text deltas as partial responses and finish with one
// final response carrying the aggregated text plus any citation parts.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"`
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "azure-openai", "anthropic", "mock"
}

// Model is the minimal interface agents use to drive generation. Both
// channels are closed when generation ends; the error channel yields at most
// one error.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests, examples and
// offline demos. Responses are matched by substring of the last user message;
// the first registered match wins.
type MockModel struct {
	info Info

	mu        sync.RWMutex
	rules     []mockRule
	fallback  func(req Request) string
	citations []core.Part
	calls     []Request
}

type mockRule struct {
	match    string
	response string
	err      error
}

// NewMockModel constructs an empty MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{info: Info{Name: name, Provider: "mock"}}
}

// AddResponse registers a canned completion for prompts containing match.
func (m *MockModel) AddResponse(match, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{match: match, response: response})
}

// AddError makes prompts containing match fail with err.
func (m *MockModel) AddError(match string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{match: match, err: err})
}

// SetFallback sets the responder used when no rule matches.
func (m *MockModel) SetFallback(fn func(req Request) string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = fn
}

// AddCitation attaches a citation part to every final response.
func (m *MockModel) AddCitation(p core.Part) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.citations = append(m.citations, p)
}

// Calls returns the requests received so far.
func (m *MockModel) Calls() []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockModel) resolve(req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	input := req.LastUserText()
	for _, r := range m.rules {
		if strings.Contains(input, r.match) {
			return r.response, r.err
		}
	}
	if m.fallback != nil {
		return m.fallback(req), nil
	}
	return fmt.Sprintf("Mock response to: %s", input), nil
}

// Generate implements Model; emits word sized streaming chunks when req.Stream
// is set, then the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if len(req.Contents) == 0 {
			errCh <- fmt.Errorf("no contents provided")
			return
		}

		full, err := m.resolve(req)
		if err != nil {
			errCh <- err
			return
		}

		if req.Stream {
			for _, chunk := range splitKeep(full) {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, chunk),
				}:
				}
			}
		}

		m.mu.RLock()
		parts := append([]core.Part{core.TextPart{Text: full}}, m.citations...)
		m.mu.RUnlock()

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{
			Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
			FinishReason: "stop",
			Usage:        &TokenUsage{CompletionTokens: len(strings.Fields(full)), TotalTokens: len(strings.Fields(full))},
		}:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

// splitKeep splits s after every space, keeping separators so the chunks
// concatenate back to s.
func splitKeep(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == ' ' || r == '\n' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
