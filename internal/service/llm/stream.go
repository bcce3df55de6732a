package llm

import (
	"errors"
	"fmt"
	"io"

	"github.com/znerol74/call/internal/model/conversation"
)

// chunk is one backend stream event reduced to what fragments need.
type chunk struct {
	text  string
	calls []callDelta
}

// callDelta is a partial tool call. Backends split the arguments of one call
// across many chunks and identify the call by index.
type callDelta struct {
	index *int
	id    string
	name  string
	args  string
}

type chunkSource interface {
	recv() (chunk, error)
	close()
}

// toolCallAssembler merges deltas into whole calls, preserving the order in
// which calls first appeared.
type toolCallAssembler struct {
	order []int
	calls map[int]*ToolCall
	next  int
	last  int
}

func (a *toolCallAssembler) add(d callDelta) {
	if a.calls == nil {
		a.calls = make(map[int]*ToolCall)
		a.last = -1
	}

	var key int
	switch {
	case d.index != nil:
		key = *d.index
	case d.id == "" && d.name == "" && a.last >= 0:
		key = a.last
	default:
		// Unindexed new call: place it after every index seen so far.
		key = a.next
	}

	call, ok := a.calls[key]
	if !ok {
		call = &ToolCall{}
		a.calls[key] = call
		a.order = append(a.order, key)
	}
	if d.id != "" {
		call.ID = d.id
	}
	if d.name != "" {
		call.Name = d.name
	}
	call.Arguments += d.args

	a.last = key
	if key >= a.next {
		a.next = key + 1
	}
}

func (a *toolCallAssembler) drain() ([]ToolCall, error) {
	out := make([]ToolCall, 0, len(a.order))
	for _, key := range a.order {
		call := a.calls[key]
		if call.Name == "" {
			return nil, fmt.Errorf("%w: tool call %d has no name", ErrMalformedStream, key)
		}
		out = append(out, *call)
	}
	a.order = nil
	a.calls = nil
	return out, nil
}

// fragmentStream turns backend chunks into fragments. Text is forwarded as it
// arrives; tool calls are released once the backend ends the pass.
type fragmentStream struct {
	src     chunkSource
	asm     toolCallAssembler
	pending []Fragment
	done    bool
}

func newFragmentStream(src chunkSource) *fragmentStream {
	return &fragmentStream{src: src}
}

func (s *fragmentStream) Recv() (Fragment, error) {
	for {
		if len(s.pending) > 0 {
			frag := s.pending[0]
			s.pending = s.pending[1:]
			return frag, nil
		}
		if s.done {
			return Fragment{}, io.EOF
		}

		c, err := s.src.recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			calls, err := s.asm.drain()
			if err != nil {
				return Fragment{}, err
			}
			for _, call := range calls {
				s.pending = append(s.pending, Fragment{Kind: FragmentToolCall, ToolCall: call})
			}
			continue
		}
		if err != nil {
			return Fragment{}, err
		}

		for _, d := range c.calls {
			s.asm.add(d)
		}
		if c.text != "" {
			return Fragment{Kind: FragmentText, Text: c.text}, nil
		}
	}
}

func (s *fragmentStream) Close() {
	s.src.close()
}

// walkTurns visits turns in wire order. Backends require the assistant
// message announcing tool calls to precede the tool results, so before every
// run of tool turns onCalls receives the whole run.
func walkTurns(turns []conversation.Turn, onTurn func(conversation.Turn), onCalls func([]conversation.Turn)) {
	for i := 0; i < len(turns); i++ {
		if turns[i].Role != conversation.RoleTool {
			onTurn(turns[i])
			continue
		}
		end := i
		for end < len(turns) && turns[end].Role == conversation.RoleTool {
			end++
		}
		onCalls(turns[i:end])
		for _, t := range turns[i:end] {
			onTurn(t)
		}
		i = end - 1
	}
}
