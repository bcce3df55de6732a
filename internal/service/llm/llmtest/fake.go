// Package llmtest provides a scripted llm.Generator for tests.
package llmtest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/znerol74/call/internal/model/conversation"
	"github.com/znerol74/call/internal/service/llm"
)

// ErrScriptExhausted is returned when Stream is called more often than
// scripted and no fallback is set.
var ErrScriptExhausted = errors.New("llmtest: no scripted pass left")

// Step is one scripted generation pass.
type Step struct {
	Fragments []llm.Fragment
	// StreamErr is returned by Stream itself.
	StreamErr error
	// RecvErr is returned by Recv after all fragments are delivered.
	RecvErr error
}

// Text scripts a pass emitting the given text fragments.
func Text(parts ...string) Step {
	var step Step
	for _, p := range parts {
		step.Fragments = append(step.Fragments, llm.Fragment{Kind: llm.FragmentText, Text: p})
	}
	return step
}

// ToolCalls scripts a pass emitting optional leading text then tool calls.
func ToolCalls(text string, calls ...llm.ToolCall) Step {
	var step Step
	if text != "" {
		step.Fragments = append(step.Fragments, llm.Fragment{Kind: llm.FragmentText, Text: text})
	}
	for _, c := range calls {
		step.Fragments = append(step.Fragments, llm.Fragment{Kind: llm.FragmentToolCall, ToolCall: c})
	}
	return step
}

// Failure scripts a pass that cannot be started.
func Failure(err error) Step {
	return Step{StreamErr: err}
}

// Request records the input of one Stream call.
type Request struct {
	Turns []conversation.Turn
	Tools []llm.ToolSpec
}

// Generator replays steps in order.
type Generator struct {
	mu       sync.Mutex
	steps    []Step
	fallback *Step
	requests []Request

	// Block, when set, is waited on at the start of every Stream call.
	Block chan struct{}
}

// New returns a Generator scripted with steps.
func New(steps ...Step) *Generator {
	return &Generator{steps: steps}
}

// WithFallback sets the step replayed once the script is exhausted.
func (g *Generator) WithFallback(step Step) *Generator {
	g.fallback = &step
	return g
}

// Push appends steps to the script.
func (g *Generator) Push(steps ...Step) {
	g.mu.Lock()
	g.steps = append(g.steps, steps...)
	g.mu.Unlock()
}

// Requests returns every recorded Stream input.
func (g *Generator) Requests() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Request(nil), g.requests...)
}

// Calls returns how many times Stream was invoked.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// Stream implements llm.Generator.
func (g *Generator) Stream(ctx context.Context, turns []conversation.Turn, tools []llm.ToolSpec) (llm.FragmentStream, error) {
	if g.Block != nil {
		select {
		case <-g.Block:
		case <-ctx.Done():
		}
	}

	g.mu.Lock()
	g.requests = append(g.requests, Request{
		Turns: append([]conversation.Turn(nil), turns...),
		Tools: append([]llm.ToolSpec(nil), tools...),
	})
	var step Step
	switch {
	case len(g.steps) > 0:
		step = g.steps[0]
		g.steps = g.steps[1:]
	case g.fallback != nil:
		step = *g.fallback
	default:
		g.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if step.StreamErr != nil {
		return nil, step.StreamErr
	}
	return &stream{fragments: step.Fragments, end: step.RecvErr}, nil
}

type stream struct {
	fragments []llm.Fragment
	end       error
}

func (s *stream) Recv() (llm.Fragment, error) {
	if len(s.fragments) == 0 {
		if s.end != nil {
			return llm.Fragment{}, s.end
		}
		return llm.Fragment{}, io.EOF
	}
	frag := s.fragments[0]
	s.fragments = s.fragments[1:]
	return frag, nil
}

func (s *stream) Close() {}
