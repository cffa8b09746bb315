// Package mcpserver provides the MCP server that sits behind the resource
// server's bearer gate.
//
// It exposes a single tool, "add", over the streamable HTTP transport in
// stateless mode with plain JSON responses, so every POST is self-contained
// and no session state outlives the request.
package mcpserver
