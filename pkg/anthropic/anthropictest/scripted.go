// Package anthropictest provides a scripted in-memory Client for tests.
package anthropictest

import (
	"context"
	"sync"

	"github.com/scenariolab/foresight/pkg/anthropic"
)

// Scripted is an anthropic.Client whose responses come from a script
// function keyed on the prompt text. It is safe for concurrent use.
type Scripted struct {
	mu    sync.Mutex
	fn    func(prompt string) (string, error)
	calls int
}

// NewScripted creates a client that answers every call through fn. The
// prompt passed to fn is the content of the last user message.
func NewScripted(fn func(prompt string) (string, error)) *Scripted {
	return &Scripted{fn: fn}
}

func (s *Scripted) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	var prompt string
	for _, m := range req.Messages {
		if m.Role != "assistant" {
			prompt = m.Content
		}
	}

	text, err := s.fn(prompt)
	if err != nil {
		return nil, err
	}
	return &anthropic.MessageResponse{
		ID:         "msg_test",
		Model:      req.Model,
		StopReason: "end_turn",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
	}, nil
}

// Calls reports how many CreateMessage calls have been made.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
