package kimi

import (
	openai "github.com/sashabaranov/go-openai"

	"github.com/voxpet/voxpet-core/core/llms"
)

// builtinWebSearchTool is Moonshot's server-side search capability. It is
// declared with a vendor-specific tool type and carries no schema.
const builtinWebSearchTool = "$web_search"

func toChatMessages(messages []llms.Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, message := range messages {
		chatMessage := openai.ChatCompletionMessage{
			Role:    string(message.Role),
			Content: message.Content,
		}

		if message.Role == llms.RoleTool {
			chatMessage.ToolCallID = message.ToolCallID
			chatMessage.Name = message.Name
		}
		for _, toolCall := range message.ToolCalls {
			chatMessage.ToolCalls = append(chatMessage.ToolCalls, openai.ToolCall{
				ID:   toolCall.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      toolCall.Name,
					Arguments: toolCall.Arguments,
				},
			})
		}

		converted = append(converted, chatMessage)
	}
	return converted
}

func toChatTools(tools []llms.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}

	converted := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		if tool.Name == builtinWebSearchTool {
			converted = append(converted, openai.Tool{
				Type:     openai.ToolType("builtin_function"),
				Function: &openai.FunctionDefinition{Name: tool.Name},
			})
			continue
		}

		converted = append(converted, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return converted
}

func fromChatMessage(message openai.ChatCompletionMessage) llms.Message {
	converted := llms.NewMessage(llms.Role(message.Role), message.Content)
	for _, toolCall := range message.ToolCalls {
		converted.ToolCalls = append(converted.ToolCalls, llms.ToolCall{
			ID:        toolCall.ID,
			Name:      toolCall.Function.Name,
			Arguments: toolCall.Function.Arguments,
		})
	}
	return converted
}
