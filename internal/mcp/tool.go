package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pkgaudit/symaudit/internal/validate"
)

// ValidateFunc runs one validation pass over a package on disk.
type ValidateFunc func(ctx context.Context, packagePath string) (validate.Outcome, error)

// ValidateResponse is the JSON payload returned by the symaudit_validate
// tool.
type ValidateResponse struct {
	Result       string `json:"result"`
	Valid        bool   `json:"valid"`
	External     bool   `json:"external"`
	ErrorMessage string `json:"error_message,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// AddValidateTool registers the symaudit_validate tool with an MCP server.
// This function is composable - it can be combined with other tool
// registrations.
func AddValidateTool(s *server.MCPServer, validateFn ValidateFunc) {
	tool := mcp.NewTool(
		"symaudit_validate",
		mcp.WithDescription("Validate the debug symbols and Source Link of a NuGet package on disk. Returns the overall verdict plus a per-category report of missing symbols, missing Source Link, and Source Link errors."),
		mcp.WithString("package_path",
			mcp.Required(),
			mcp.Description("Filesystem path to the .nupkg file to validate")),
	)

	s.AddTool(tool, createValidateHandler(validateFn))
}

// createValidateHandler creates the handler function for symaudit_validate.
func createValidateHandler(validateFn ValidateFunc) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("invalid arguments format"), nil
		}

		packagePath, ok := argsMap["package_path"].(string)
		if !ok || packagePath == "" {
			return mcp.NewToolResultError("package_path parameter is required"), nil
		}

		outcome, err := validateFn(ctx, packagePath)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("validation failed: %v", err)), nil
		}

		response := ValidateResponse{
			Result:       outcome.Result.String(),
			Valid:        outcome.Result.IsValid(),
			External:     outcome.External,
			ErrorMessage: outcome.ErrorMessage,
			DurationMs:   outcome.Duration.Milliseconds(),
		}

		data, err := json.MarshalIndent(response, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode response: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}
