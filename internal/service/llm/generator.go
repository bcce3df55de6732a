// Package llm adapts language-generation backends to a uniform stream of text
// and tool-call fragments.
package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/znerol74/call/internal/model/conversation"
)

// ErrMalformedStream reports a backend stream that cannot be turned into
// fragments, such as a tool call without a name.
var ErrMalformedStream = errors.New("malformed generation stream")

// ToolSpec is the backend-neutral function-calling schema of one tool.
type ToolSpec struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object. Nil means no parameters.
	Parameters map[string]any
}

// FragmentKind distinguishes text output from tool calls.
type FragmentKind int

const (
	FragmentText FragmentKind = iota
	FragmentToolCall
)

// ToolCall is one fully assembled tool invocation. Arguments is the raw JSON
// text produced by the backend.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Fragment is one incremental unit of generator output.
type Fragment struct {
	Kind     FragmentKind
	Text     string
	ToolCall ToolCall
}

// FragmentStream yields fragments until Recv returns io.EOF.
type FragmentStream interface {
	Recv() (Fragment, error)
	Close()
}

// Generator produces a single generation pass over the conversation. A nil or
// empty tools slice disables tool calling for the pass.
type Generator interface {
	Stream(ctx context.Context, turns []conversation.Turn, tools []ToolSpec) (FragmentStream, error)
}

// Pass is the collected output of one generation pass.
type Pass struct {
	Text      string
	ToolCalls []ToolCall
}

// Collect drains stream into a Pass and closes it. Text fragments are
// concatenated and tool calls kept in the order received.
func Collect(stream FragmentStream) (Pass, error) {
	defer stream.Close()

	var (
		text strings.Builder
		pass Pass
	)
	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Pass{}, err
		}
		switch frag.Kind {
		case FragmentText:
			text.WriteString(frag.Text)
		case FragmentToolCall:
			pass.ToolCalls = append(pass.ToolCalls, frag.ToolCall)
		}
	}
	pass.Text = text.String()
	return pass, nil
}

// ErrNotConfigured is returned by the generator used when no backend has
// credentials.
var ErrNotConfigured = errors.New("generation backend not configured")

// Unavailable returns a Generator whose passes always fail with
// ErrNotConfigured. Calls are still answered, with an apology.
func Unavailable() Generator { return unavailable{} }

type unavailable struct{}

func (unavailable) Stream(context.Context, []conversation.Turn, []ToolSpec) (FragmentStream, error) {
	return nil, ErrNotConfigured
}
