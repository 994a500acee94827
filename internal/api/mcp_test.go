package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/chat"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/embedding"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/listing"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/retrieval"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/settings"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/storage"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/vector"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *textVector) {
	t.Helper()

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sm, err := settings.NewManager(store, "test-key")
	if err != nil {
		t.Fatalf("settings.NewManager: %v", err)
	}
	err = sm.Save(context.Background(), map[string]string{
		settings.KeyVectorService: "fakevec",
		settings.KeyChatService:   "fakechat",
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	fv := &textVector{}
	vm := vector.NewManager(sm)
	vm.Register("fakevec", func() vector.Provider { return fv })
	em := embedding.NewManager(sm)

	logger := slog.New(slog.DiscardHandler)
	assembler := retrieval.New(store, sm, em, vm, logger)

	backends := chat.NewManager(sm)
	backends.Register("fakechat", func() chat.Backend { return &cannedChat{reply: "the answer"} })
	dispatcher := chat.NewDispatcher(sm, backends, assembler, logger)

	return MCPDeps{
		Store:     store,
		Assembler: assembler,
		Chat:      dispatcher,
	}, fv
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_SearchListings(t *testing.T) {
	deps, fv := newTestMCPDeps(t)
	ctx := context.Background()

	l := listing.Listing{ID: 9, Title: "Sauna", Status: "publish", Types: []string{"Wellness"}}
	if err := deps.Store.SaveListing(ctx, l); err != nil {
		t.Fatalf("SaveListing: %v", err)
	}
	fv.matches = []vector.Match{{ID: "v9", ListingID: 9, Score: 0.9}}

	handler := mcpSearchListings(deps)
	result, err := handler(ctx, makeCallToolRequest("search_listings", map[string]interface{}{
		"query": "relax",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &rows); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if len(rows) != 1 || rows[0]["title"] != "Sauna" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestMCPTool_SearchListings_Empty(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	handler := mcpSearchListings(deps)
	result, err := handler(context.Background(), makeCallToolRequest("search_listings", map[string]interface{}{
		"query": "nothing here",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "[]" {
		t.Fatalf("expected empty array, got %s", got)
	}
}

func TestMCPTool_SearchListings_MissingQuery(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	handler := mcpSearchListings(deps)
	result, err := handler(context.Background(), makeCallToolRequest("search_listings", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing query")
	}
}

func TestMCPTool_AskAssistant(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	handler := mcpAskAssistant(deps)
	result, err := handler(context.Background(), makeCallToolRequest("ask_assistant", map[string]interface{}{
		"message": "what should I eat?",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "the answer" {
		t.Fatalf("reply = %q", got)
	}
}

func TestMCPResource_Taxonomy(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	ctx := context.Background()

	l := listing.Listing{ID: 1, Title: "A", Status: "publish", Types: []string{"Restaurant"}}
	if err := deps.Store.SaveListing(ctx, l); err != nil {
		t.Fatalf("SaveListing: %v", err)
	}

	handler := mcpResourceTaxonomy(deps)
	contents, err := handler(ctx, mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "directory://taxonomy"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}

	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var taxonomy map[string][]string
	if err := json.Unmarshal([]byte(text.Text), &taxonomy); err != nil {
		t.Fatalf("parsing taxonomy: %v", err)
	}
	if len(taxonomy["directory_types"]) != 1 || taxonomy["directory_types"][0] != "Restaurant" {
		t.Fatalf("taxonomy = %v", taxonomy)
	}
}
