// Package toolhelp exposes the extended usage notes of the other registered tools.
package toolhelp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/fileqa/internal/registry"
	"github.com/sammcj/fileqa/internal/tools"
	"github.com/sirupsen/logrus"
)

// ToolHelpTool returns examples and troubleshooting notes for a named tool
type ToolHelpTool struct{}

// Response is the get_tool_help result
type Response struct {
	ToolName     string              `json:"tool_name"`
	Description  string              `json:"description"`
	InputSchema  mcp.ToolInputSchema `json:"input_schema"`
	ExtendedInfo *tools.ExtendedHelp `json:"extended_info,omitempty"`
}

// Register adds get_tool_help; call it after the tools it documents are registered
func Register() {
	registry.Register(&ToolHelpTool{})
}

// Definition returns the tool's definition for MCP registration
func (t *ToolHelpTool) Definition() mcp.Tool {
	names := registry.GetToolNamesWithExtendedHelp()

	description := "Get usage examples and troubleshooting notes for the file tools."
	if len(names) == 0 {
		description = "No tools currently provide extended help information."
	}

	return mcp.NewTool(
		"get_tool_help",
		mcp.WithDescription(description),
		mcp.WithString("tool_name",
			mcp.Required(),
			mcp.Description("Name of the tool to get help for"),
			mcp.Enum(names...),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

// Execute looks up the tool and returns its help as JSON
func (t *ToolHelpTool) Execute(_ context.Context, _ *logrus.Logger, _ *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	toolName, ok := args["tool_name"].(string)
	if !ok || toolName == "" {
		return nil, fmt.Errorf("invalid parameters: missing or invalid required parameter: tool_name")
	}

	tool, exists := registry.GetTool(toolName)
	provider, hasHelp := tool.(tools.ExtendedHelpProvider)
	if !exists || !hasHelp {
		return nil, fmt.Errorf("tool '%s' not found, disabled, or does not provide extended help. Tools with extended help: %s",
			toolName, strings.Join(registry.GetToolNamesWithExtendedHelp(), ", "))
	}

	definition := tool.Definition()
	response := Response{
		ToolName:     definition.Name,
		Description:  definition.Description,
		InputSchema:  definition.InputSchema,
		ExtendedInfo: provider.ProvideExtendedInfo(),
	}

	responseJSON, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}
