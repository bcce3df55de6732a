package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/znerol74/call/internal/model/conversation"
)

// AzureConfig configures an Azure OpenAI deployment.
type AzureConfig struct {
	Endpoint    string
	APIKey      string
	Deployment  string
	APIVersion  string
	Temperature float32
	MaxTokens   int
}

// AzureGenerator streams chat completions from Azure OpenAI.
type AzureGenerator struct {
	client *openai.Client
	cfg    AzureConfig
}

// NewAzureGenerator builds a client for the configured deployment.
func NewAzureGenerator(cfg AzureConfig) *AzureGenerator {
	clientCfg := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	if cfg.APIVersion != "" {
		clientCfg.APIVersion = cfg.APIVersion
	}
	deployment := cfg.Deployment
	clientCfg.AzureModelMapperFunc = func(string) string { return deployment }

	return &AzureGenerator{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}
}

// Stream implements Generator.
func (g *AzureGenerator) Stream(ctx context.Context, turns []conversation.Turn, tools []ToolSpec) (FragmentStream, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.cfg.Deployment,
		Messages:    toOpenAIMessages(turns),
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
		Stream:      true,
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
		req.ToolChoice = "auto"
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create completion stream: %w", err)
	}
	return newFragmentStream(&openAISource{stream: stream}), nil
}

type openAISource struct {
	stream *openai.ChatCompletionStream
}

func (s *openAISource) recv() (chunk, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		return chunk{}, err
	}
	var c chunk
	for _, choice := range resp.Choices {
		c.text += choice.Delta.Content
		for _, tc := range choice.Delta.ToolCalls {
			c.calls = append(c.calls, callDelta{
				index: tc.Index,
				id:    tc.ID,
				name:  tc.Function.Name,
				args:  tc.Function.Arguments,
			})
		}
	}
	return c, nil
}

func (s *openAISource) close() {
	s.stream.Close()
}

func toOpenAIMessages(turns []conversation.Turn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	walkTurns(turns,
		func(t conversation.Turn) {
			msg := openai.ChatCompletionMessage{Content: t.Content}
			switch t.Role {
			case conversation.RoleSystem:
				msg.Role = openai.ChatMessageRoleSystem
			case conversation.RoleUser:
				msg.Role = openai.ChatMessageRoleUser
			case conversation.RoleAssistant:
				msg.Role = openai.ChatMessageRoleAssistant
			case conversation.RoleTool:
				msg.Role = openai.ChatMessageRoleTool
				msg.ToolCallID = t.ToolCallID
			}
			out = append(out, msg)
		},
		func(run []conversation.Turn) {
			calls := make([]openai.ToolCall, 0, len(run))
			for _, t := range run {
				calls = append(calls, openai.ToolCall{
					ID:   t.ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      t.ToolName,
						Arguments: argumentsOrEmpty(t.ToolArguments),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   run[0].Preamble,
				ToolCalls: calls,
			})
		},
	)
	return out
}

func toOpenAITools(tools []ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, spec := range tools {
		params := spec.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
