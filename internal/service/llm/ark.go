package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/znerol74/call/internal/model/conversation"
)

// ArkGenerator drives an eino tool-calling chat model, normally the Ark
// endpoint configured in config.LLMConfig.
type ArkGenerator struct {
	chatModel   model.ToolCallingChatModel
	temperature float32
	maxTokens   int
}

// NewArkGenerator wraps chatModel with the given sampling options.
func NewArkGenerator(chatModel model.ToolCallingChatModel, temperature float32, maxTokens int) *ArkGenerator {
	return &ArkGenerator{chatModel: chatModel, temperature: temperature, maxTokens: maxTokens}
}

// Stream implements Generator.
func (g *ArkGenerator) Stream(ctx context.Context, turns []conversation.Turn, tools []ToolSpec) (FragmentStream, error) {
	chatModel := g.chatModel
	if len(tools) > 0 {
		bound, err := chatModel.WithTools(toToolInfos(tools))
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
		chatModel = bound
	}

	opts := []model.Option{model.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(g.maxTokens))
	}

	reader, err := chatModel.Stream(ctx, toSchemaMessages(turns), opts...)
	if err != nil {
		return nil, fmt.Errorf("stream chat model: %w", err)
	}
	return newFragmentStream(&einoSource{reader: reader}), nil
}

type einoSource struct {
	reader *schema.StreamReader[*schema.Message]
}

func (s *einoSource) recv() (chunk, error) {
	msg, err := s.reader.Recv()
	if err != nil {
		return chunk{}, err
	}
	if msg == nil {
		return chunk{}, nil
	}
	c := chunk{text: msg.Content}
	for _, tc := range msg.ToolCalls {
		c.calls = append(c.calls, callDelta{
			index: tc.Index,
			id:    tc.ID,
			name:  tc.Function.Name,
			args:  tc.Function.Arguments,
		})
	}
	return c, nil
}

func (s *einoSource) close() {
	s.reader.Close()
}

func toSchemaMessages(turns []conversation.Turn) []*schema.Message {
	out := make([]*schema.Message, 0, len(turns)+1)
	walkTurns(turns,
		func(t conversation.Turn) {
			switch t.Role {
			case conversation.RoleSystem:
				out = append(out, schema.SystemMessage(t.Content))
			case conversation.RoleUser:
				out = append(out, schema.UserMessage(t.Content))
			case conversation.RoleAssistant:
				out = append(out, schema.AssistantMessage(t.Content, nil))
			case conversation.RoleTool:
				out = append(out, schema.ToolMessage(t.Content, t.ToolCallID))
			}
		},
		func(run []conversation.Turn) {
			calls := make([]schema.ToolCall, 0, len(run))
			for _, t := range run {
				calls = append(calls, schema.ToolCall{
					ID:   t.ToolCallID,
					Type: "function",
					Function: schema.FunctionCall{
						Name:      t.ToolName,
						Arguments: argumentsOrEmpty(t.ToolArguments),
					},
				})
			}
			out = append(out, schema.AssistantMessage(run[0].Preamble, calls))
		},
	)
	return out
}

func toToolInfos(tools []ToolSpec) []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, spec := range tools {
		info := &schema.ToolInfo{Name: spec.Name, Desc: spec.Description}
		if params := paramsFromSchema(spec.Parameters); len(params) > 0 {
			info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
		}
		infos = append(infos, info)
	}
	return infos
}

// paramsFromSchema converts the properties of a JSON-schema object into eino
// parameter descriptions.
func paramsFromSchema(obj map[string]any) map[string]*schema.ParameterInfo {
	props, _ := obj["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}
	required := make(map[string]bool)
	for _, name := range stringList(obj["required"]) {
		required[name] = true
	}

	out := make(map[string]*schema.ParameterInfo, len(props))
	for name, raw := range props {
		prop, _ := raw.(map[string]any)
		info := paramInfo(prop)
		info.Required = required[name]
		out[name] = info
	}
	return out
}

func paramInfo(prop map[string]any) *schema.ParameterInfo {
	info := &schema.ParameterInfo{Type: schema.String}
	if t, ok := prop["type"].(string); ok {
		info.Type = schema.DataType(t)
	}
	if desc, ok := prop["description"].(string); ok {
		info.Desc = desc
	}
	info.Enum = stringList(prop["enum"])
	switch info.Type {
	case schema.Array:
		if items, ok := prop["items"].(map[string]any); ok {
			info.ElemInfo = paramInfo(items)
		}
	case schema.Object:
		info.SubParams = paramsFromSchema(prop)
	}
	return info
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func argumentsOrEmpty(args string) string {
	if args == "" {
		return "{}"
	}
	return args
}
