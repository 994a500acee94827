package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/chat"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/retrieval"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/storage"
)

const maxSearchResults = 20

// MCPDeps holds dependencies for the MCP tool server.
type MCPDeps struct {
	Store     *storage.Store
	Assembler *retrieval.Assembler
	Chat      *chat.Dispatcher
}

// NewMCPServer exposes the directory assistant to MCP clients: semantic
// listing search, the grounded chat pipeline, and the directory taxonomy
// as a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"directorist-assistant",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("Directory listing assistant: search business listings semantically and ask grounded questions about them."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_listings",
			mcp.WithDescription("Semantically search the directory and return the most relevant published listings."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default uses the configured top-k)")),
		),
		mcpSearchListings(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_assistant",
			mcp.WithDescription("Ask the directory assistant a question. The answer is grounded in listing content."),
			mcp.WithString("message", mcp.Description("The question to ask"), mcp.Required()),
		),
		mcpAskAssistant(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"directory://taxonomy",
			"Directory Taxonomy",
			mcp.WithResourceDescription("Directory types and listing statuses as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTaxonomy(deps),
	)

	return s
}

func mcpSearchListings(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 0)
		if limit > maxSearchResults {
			limit = maxSearchResults
		}

		listings, err := deps.Assembler.SearchListings(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(listings) == 0 {
			return mcpText("[]"), nil
		}

		type listingResult struct {
			ID        int64    `json:"id"`
			Title     string   `json:"title"`
			Types     []string `json:"types,omitempty"`
			Locations []string `json:"locations,omitempty"`
			Permalink string   `json:"permalink,omitempty"`
		}

		results := make([]listingResult, len(listings))
		for i, l := range listings {
			results[i] = listingResult{
				ID:        l.ID,
				Title:     l.Title,
				Types:     l.Types,
				Locations: l.Locations,
				Permalink: l.Permalink,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAskAssistant(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		answer, err := deps.Chat.Ask(ctx, message)
		if err != nil {
			return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
		}
		return mcpText(answer.Reply), nil
	}
}

func mcpResourceTaxonomy(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		types, err := deps.Store.DirectoryTypes(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading directory types: %w", err)
		}
		statuses, err := deps.Store.Statuses(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading listing statuses: %w", err)
		}

		b, err := json.Marshal(map[string][]string{
			"directory_types":  types,
			"listing_statuses": statuses,
		})
		if err != nil {
			return nil, fmt.Errorf("marshaling taxonomy: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
