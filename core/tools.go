package orchestration

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/voxpet/voxpet-core/core/llms"
)

// WebSearchToolName is the inference service's built-in search tool. The
// service executes the search itself; the client's only job is to echo the
// call's arguments back as the tool result.
const WebSearchToolName = "$web_search"

// WebSearchTool returns the passthrough handler for the built-in search.
func WebSearchTool() llms.Tool {
	return llms.NewTool(WebSearchToolName,
		"Search the web for up-to-date information",
		func(arguments json.RawMessage) (string, error) {
			return string(arguments), nil
		})
}

// executeToolCall resolves and runs one requested tool call. Failures are
// reported in-band as the tool result so the turn keeps going; the model
// sees the error text and can respond to it.
func (o *Orchestrator) executeToolCall(ctx context.Context, call llms.ToolCall) llms.ToolOutcome {
	_, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", call.Name))

	for _, tool := range o.tools {
		if tool.Name != call.Name {
			continue
		}

		content, err := tool.Execute(call.Arguments)
		if err != nil {
			recordedErr := fmt.Errorf("failed to execute tool %q: %w", call.Name, err)
			span.RecordError(recordedErr)
			span.SetStatus(codes.Error, recordedErr.Error())
			return llms.ToolOutcome{
				Content:       fmt.Sprintf("Error: tool '%s' failed: %v", call.Name, err),
				ReportedError: true,
			}
		}
		return llms.ToolOutcome{Content: content}
	}

	err := fmt.Errorf("tool not found: %s", call.Name)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return llms.ToolOutcome{
		Content:       fmt.Sprintf("Error: unable to find tool by name '%s'", call.Name),
		ReportedError: true,
	}
}
