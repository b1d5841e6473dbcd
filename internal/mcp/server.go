// Package mcp exposes refine-service session data over the Model
// Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ternarybob/refine/pkg/archive"
	"github.com/ternarybob/refine/pkg/session"
)

// Server wraps the session store and archive to provide MCP tool
// access.
type Server struct {
	store   session.Store
	archive *archive.Archive
	server  *server.MCPServer
}

// NewServer creates a new MCP server. The archive may be nil when
// search is disabled.
func NewServer(store session.Store, arch *archive.Archive, version string) *Server {
	s := &Server{
		store:   store,
		archive: arch,
	}

	mcpServer := server.NewMCPServer(
		"refine-sessions",
		version,
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.server = mcpServer
	return s
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	// refine_list_sessions - Session overview
	mcpServer.AddTool(
		mcp.NewTool("refine_list_sessions",
			mcp.WithDescription("List prompt refinement sessions with status, iteration count, and prompt preview."),
			mcp.WithString("status",
				mcp.Description("Filter by status: active, completed, aborted"),
			),
		),
		s.handleListSessions,
	)

	// refine_get_session - Full session record
	mcpServer.AddTool(
		mcp.NewTool("refine_get_session",
			mcp.WithDescription("Get a full refinement session: current prompt, goal query, and iteration history."),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Session identifier"),
			),
		),
		s.handleGetSession,
	)

	// refine_search - Search across archived iterations
	mcpServer.AddTool(
		mcp.NewTool("refine_search",
			mcp.WithDescription("Search archived session iterations by prompt and response content."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Search query (e.g., 'refusal about chemistry', 'bullet point prompts')"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of results (default: 10)"),
			),
		),
		s.handleSearch,
	)
}

// handleListSessions handles the refine_list_sessions tool.
func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	statusFilter := request.GetString("status", "")

	summaries, err := s.store.List()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list sessions failed: %v", err)), nil
	}

	if statusFilter != "" {
		filtered := summaries[:0]
		for _, summary := range summaries {
			if string(summary.Status) == statusFilter {
				filtered = append(filtered, summary)
			}
		}
		summaries = filtered
	}

	return mcp.NewToolResultText(formatSummaries(summaries)), nil
}

// handleGetSession handles the refine_get_session tool.
func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	sess, err := s.store.Load(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load session failed: %v", err)), nil
	}

	jsonBytes, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal session failed: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// handleSearch handles the refine_search tool.
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.archive == nil {
		return mcp.NewToolResultError("archive search is disabled"), nil
	}

	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	limit := request.GetInt("limit", 10)

	results, err := s.archive.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatResults(results)), nil
}

// formatSummaries formats session summaries as markdown.
func formatSummaries(summaries []session.Summary) string {
	if len(summaries) == 0 {
		return "No sessions found.\n"
	}

	var sb strings.Builder
	sb.WriteString("## Refinement Sessions\n\n")

	for i, summary := range summaries {
		sb.WriteString(fmt.Sprintf("### %d. `%s` (%s)\n", i+1, summary.ID, summary.Status))
		sb.WriteString(fmt.Sprintf("**Prompt**: %s\n", summary.PromptPreview))
		sb.WriteString(fmt.Sprintf("**Iterations**: %d, created %s\n\n",
			summary.Iterations,
			summary.CreatedAt.Format("2006-01-02 15:04:05")))
	}

	return sb.String()
}

// formatResults formats search results as markdown.
func formatResults(results []archive.Result) string {
	if len(results) == 0 {
		return "No matching iterations found.\n"
	}

	var sb strings.Builder
	sb.WriteString("## Matching Iterations\n\n")

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("### %d. Session `%s` iteration %d (%.0f%% match)\n",
			i+1, r.SessionID, r.Iteration, r.Score*100))
		sb.WriteString(fmt.Sprintf("**Prompt**: %s\n\n", r.Prompt))
		sb.WriteString(fmt.Sprintf("> %s\n\n", strings.TrimSpace(r.Snippet)))
	}

	return sb.String()
}

// ServeStdio starts the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.server)
}
