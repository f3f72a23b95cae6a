// Package bedrock implements llm.Client on the AWS Bedrock Converse API,
// so either model endpoint can point at a Bedrock-hosted model instead of
// an OpenAI-compatible server.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"

	"github.com/scisolve/scigateway/internal/domain"
	"github.com/scisolve/scigateway/internal/llm"
)

type Client struct {
	modelID string
	client  *bedrockruntime.Client
}

func New(ctx context.Context, modelID, region string) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Client{
		modelID: modelID,
		client:  bedrockruntime.NewFromConfig(cfg),
	}, nil
}

func NewWithConfig(modelID string, cfg aws.Config) *Client {
	return &Client{
		modelID: modelID,
		client:  bedrockruntime.NewFromConfig(cfg),
	}
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(c.modelID),
		InferenceConfig: toInferenceConfig(req.Sampling),
	}

	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			input.System = append(input.System, &types.SystemContentBlockMemberText{Value: m.Content})
		case "tool":
			input.Messages = append(input.Messages, toolResultMessage(m))
		default:
			msg, err := toConverseMessage(m)
			if err != nil {
				return nil, err
			}
			input.Messages = append(input.Messages, msg)
		}
	}

	if len(req.Tools) > 0 {
		toolCfg, err := toToolConfig(req.Tools)
		if err != nil {
			return nil, err
		}
		input.ToolConfig = toolCfg
	}

	output, err := c.client.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("converse: %w", err)
	}

	return parseOutput(output)
}

func toInferenceConfig(s llm.Sampling) *types.InferenceConfiguration {
	cfg := &types.InferenceConfiguration{}
	if s.Temperature != nil {
		cfg.Temperature = aws.Float32(float32(*s.Temperature))
	}
	if s.TopP != nil {
		cfg.TopP = aws.Float32(float32(*s.TopP))
	}
	if s.MaxTokens != nil {
		cfg.MaxTokens = aws.Int32(int32(*s.MaxTokens))
	}
	return cfg
}

func toConverseMessage(m llm.Message) (types.Message, error) {
	role := types.ConversationRoleUser
	if m.Role == domain.RoleAssistant {
		role = types.ConversationRoleAssistant
	}

	msg := types.Message{Role: role}
	if m.Content != "" {
		msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: m.Content})
	}

	for _, tc := range m.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return types.Message{}, fmt.Errorf("tool call arguments: %w", err)
		}
		msg.Content = append(msg.Content, &types.ContentBlockMemberToolUse{
			Value: types.ToolUseBlock{
				ToolUseId: aws.String(tc.ID),
				Name:      aws.String(tc.Function.Name),
				Input:     document.NewLazyDocument(args),
			},
		})
	}

	return msg, nil
}

// Converse has no "tool" role: results go back as a user message carrying
// a tool-result content block.
func toolResultMessage(m llm.Message) types.Message {
	return types.Message{
		Role: types.ConversationRoleUser,
		Content: []types.ContentBlock{
			&types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(m.ToolCallID),
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: m.Content},
					},
				},
			},
		},
	}
}

func toToolConfig(tools []llm.ToolDef) (*types.ToolConfiguration, error) {
	cfg := &types.ToolConfiguration{}
	for _, t := range tools {
		var schema map[string]interface{}
		if err := json.Unmarshal(t.Function.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("tool %s parameters: %w", t.Function.Name, err)
		}
		cfg.Tools = append(cfg.Tools, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Function.Name),
				Description: aws.String(t.Function.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return cfg, nil
}

func parseOutput(output *bedrockruntime.ConverseOutput) (*llm.Completion, error) {
	msgOut, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected converse output type %T", output.Output)
	}

	msg := llm.Message{Role: domain.RoleAssistant}
	for _, block := range msgOut.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			msg.Content += b.Value
		case *types.ContentBlockMemberToolUse:
			var args interface{}
			if err := b.Value.Input.UnmarshalSmithyDocument(&args); err != nil {
				return nil, fmt.Errorf("tool use input: %w", err)
			}
			raw, err := json.Marshal(args)
			if err != nil {
				return nil, fmt.Errorf("tool use input: %w", err)
			}
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:   aws.ToString(b.Value.ToolUseId),
				Type: "function",
				Function: llm.FunctionCall{
					Name:      aws.ToString(b.Value.Name),
					Arguments: string(raw),
				},
			})
		}
	}

	comp := &llm.Completion{
		Message:      msg,
		FinishReason: mapStopReason(output.StopReason),
	}
	if output.Usage != nil {
		comp.Usage = domain.Usage{
			PromptTokens:     int(aws.ToInt32(output.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(output.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(output.Usage.TotalTokens)),
		}
	}
	return comp, nil
}

func mapStopReason(reason types.StopReason) string {
	switch reason {
	case types.StopReasonToolUse:
		return "tool_calls"
	case types.StopReasonMaxTokens:
		return "length"
	default:
		return "stop"
	}
}
