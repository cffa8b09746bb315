package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// ToolAdd is the name of the addition tool
	ToolAdd = "add"

	// Version is reported as the MCP implementation version
	Version = "1.0.0"
)

// AddInput holds the arguments of the add tool
type AddInput struct {
	A float64 `json:"a" jsonschema:"First number"`
	B float64 `json:"b" jsonschema:"Second number"`
}

// NewServer creates an MCP server named name with the add tool registered
func NewServer(name string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: Version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolAdd,
		Title:       "Add tool",
		Description: "A simple addition tool",
	}, Add)

	return server
}

// NewHandler returns a stateless streamable HTTP handler serving NewServer(name).
// A fresh server is built per request.
func NewHandler(name string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		logger.Debug("Dispatching MCP request", "server", name, "path", r.URL.Path)
		return NewServer(name)
	}, &mcp.StreamableHTTPOptions{
		Stateless:    true,
		JSONResponse: true,
	})
}

// Add implements the add tool
func Add(_ context.Context, _ *mcp.CallToolRequest, in AddInput) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: FormatSum(in.A, in.B)},
		},
	}, nil, nil
}

// FormatSum renders "a + b = sum" using the shortest representation of each number
func FormatSum(a, b float64) string {
	return fmt.Sprintf("%s + %s = %s", formatNumber(a), formatNumber(b), formatNumber(a+b))
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
