package toolhelp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/fileqa/internal/registry"
	"github.com/sammcj/fileqa/internal/tools/fileqa"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *ToolHelpTool {
	t.Helper()
	t.Setenv("DISABLED_TOOLS", "")
	t.Setenv("ENABLE_ADDITIONAL_TOOLS", "")
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	registry.Init(logger)

	fileqa.Register(nil, nil)
	Register()

	tool, ok := registry.GetTool("get_tool_help")
	require.True(t, ok)
	return tool.(*ToolHelpTool)
}

func TestDefinition_EnumListsToolsWithHelp(t *testing.T) {
	tool := setup(t)

	prop, ok := tool.Definition().InputSchema.Properties["tool_name"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"ask_files"}, prop["enum"])
}

func TestExecute(t *testing.T) {
	tool := setup(t)

	result, err := tool.Execute(context.Background(), nil, nil, map[string]any{"tool_name": "ask_files"})
	require.NoError(t, err)

	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var response Response
	require.NoError(t, json.Unmarshal([]byte(text.Text), &response))
	assert.Equal(t, "ask_files", response.ToolName)
	require.NotNil(t, response.ExtendedInfo)
	assert.NotEmpty(t, response.ExtendedInfo.Examples)
	assert.Contains(t, response.InputSchema.Required, "question")
}

func TestExecute_Errors(t *testing.T) {
	tool := setup(t)

	_, err := tool.Execute(context.Background(), nil, nil, map[string]any{})
	assert.ErrorContains(t, err, "tool_name")

	_, err = tool.Execute(context.Background(), nil, nil, map[string]any{"tool_name": "get_tool_help"})
	assert.ErrorContains(t, err, "does not provide extended help")

	_, err = tool.Execute(context.Background(), nil, nil, map[string]any{"tool_name": "missing"})
	assert.ErrorContains(t, err, "Tools with extended help: ask_files")
}
