// Package registry holds the MCP tools exposed by the serve command.
package registry

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sammcj/fileqa/internal/tools"
	"github.com/sirupsen/logrus"
)

var (
	// toolRegistry is a map of tool names to tool implementations
	toolRegistry = make(map[string]tools.Tool)

	// disabledTools is a set of tool names to disable
	disabledTools = make(map[string]bool)

	// logger is the shared logger instance
	logger *logrus.Logger

	// cache is the shared cache instance
	cache *sync.Map

	mu sync.RWMutex
)

// additionalTools are registered only when named in ENABLE_ADDITIONAL_TOOLS.
// extract_text returns raw file contents to the MCP client, so it is opt-in.
var additionalTools = []string{
	"extract_text",
}

// Init initialises the registry and shared resources, discarding any registered tools
func Init(l *logrus.Logger) {
	mu.Lock()
	defer mu.Unlock()

	logger = l
	cache = &sync.Map{}
	toolRegistry = make(map[string]tools.Tool)

	parseDisabledTools()
}

// parseDisabledTools parses the DISABLED_TOOLS environment variable
func parseDisabledTools() {
	disabledTools = make(map[string]bool)

	for tool := range strings.SplitSeq(os.Getenv("DISABLED_TOOLS"), ",") {
		tool = strings.TrimSpace(tool)
		if tool == "" {
			continue
		}
		disabledTools[normaliseToolName(tool)] = true
		if logger != nil {
			logger.WithField("tool", tool).Debug("Tool disabled")
		}
	}
}

// normaliseToolName lowercases and replaces underscores with hyphens
func normaliseToolName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", "-"))
}

func isDisabled(toolName string) bool {
	return disabledTools[normaliseToolName(toolName)]
}

// requiresEnablement checks if a tool requires enablement via ENABLE_ADDITIONAL_TOOLS
func requiresEnablement(toolName string) bool {
	normalised := normaliseToolName(toolName)
	for _, tool := range additionalTools {
		if normaliseToolName(tool) == normalised {
			return true
		}
	}
	return false
}

// IsToolEnabled checks if a tool is listed in ENABLE_ADDITIONAL_TOOLS (or the list is "all")
func IsToolEnabled(toolName string) bool {
	enabledTools := os.Getenv("ENABLE_ADDITIONAL_TOOLS")
	if enabledTools == "" {
		return false
	}

	if strings.TrimSpace(strings.ToLower(enabledTools)) == "all" {
		return true
	}

	normalised := normaliseToolName(toolName)
	for tool := range strings.SplitSeq(enabledTools, ",") {
		if normaliseToolName(tool) == normalised {
			return true
		}
	}
	return false
}

// ShouldRegisterTool checks if a tool should be registered based on:
// 1. DISABLED_TOOLS - explicit disable, highest priority
// 2. Tool's enablement requirement
// 3. ENABLE_ADDITIONAL_TOOLS (explicit enable)
func ShouldRegisterTool(toolName string) bool {
	if isDisabled(toolName) {
		if logger != nil {
			logger.WithField("tool", toolName).Debug("Tool disabled via environment variable")
		}
		return false
	}

	if requiresEnablement(toolName) {
		enabled := IsToolEnabled(toolName)
		if logger != nil {
			logger.WithFields(logrus.Fields{"tool": toolName, "enabled": enabled}).Debug("Tool requires enablement")
		}
		return enabled
	}

	return true
}

// Register adds a tool implementation to the registry if it should be registered
func Register(tool tools.Tool) {
	toolName := tool.Definition().Name

	if !ShouldRegisterTool(toolName) {
		if logger != nil {
			logger.WithField("tool", toolName).Debug("Tool not registered (disabled or requires enablement)")
		}
		return
	}

	mu.Lock()
	toolRegistry[toolName] = tool
	mu.Unlock()

	if logger != nil {
		logger.WithField("tool", toolName).Debug("Tool successfully registered")
	}
}

// GetTool retrieves a tool by name, returns false if disabled or unknown
func GetTool(name string) (tools.Tool, bool) {
	if isDisabled(name) {
		return nil, false
	}
	mu.RLock()
	defer mu.RUnlock()
	tool, ok := toolRegistry[name]
	return tool, ok
}

// GetEnabledTools returns all tools that are enabled for MCP server registration
func GetEnabledTools() map[string]tools.Tool {
	mu.RLock()
	defer mu.RUnlock()

	filteredTools := make(map[string]tools.Tool)
	for name, tool := range toolRegistry {
		if isDisabled(name) {
			continue
		}
		if requiresEnablement(name) && !IsToolEnabled(name) {
			continue
		}
		filteredTools[name] = tool
	}
	return filteredTools
}

// GetLogger returns the shared logger instance
func GetLogger() *logrus.Logger {
	return logger
}

// GetCache returns the shared cache instance
func GetCache() *sync.Map {
	return cache
}

// GetEnabledToolNames returns a sorted list of enabled tool names
func GetEnabledToolNames() []string {
	enabled := GetEnabledTools()
	names := make([]string, 0, len(enabled))
	for name := range enabled {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetToolNamesWithExtendedHelp returns a sorted list of enabled tool names that provide extended help
func GetToolNamesWithExtendedHelp() []string {
	var names []string
	for name, tool := range GetEnabledTools() {
		if _, ok := tool.(tools.ExtendedHelpProvider); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
