package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func newTestHandlers() *mcpHandlers {
	cfg := DefaultConfig()
	cfg.SessionSecret = "test-secret"
	return &mcpHandlers{app: NewApp(NewMemoryKV(), nil, nil, cfg)}
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, r.Content)
	text, ok := r.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is not TextContent")
	return text.Text
}

func resultErrorCode(t *testing.T, r *mcp.CallToolResult) ErrorCode {
	t.Helper()
	require.True(t, r.IsError)
	var payload struct {
		Error struct {
			Code ErrorCode `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, r)), &payload))
	return payload.Error.Code
}

func TestMCPToolDefinitions(t *testing.T) {
	names := make(map[string]bool)
	for _, tool := range mcpTools {
		names[tool.def.Name] = true
		require.NotEmpty(t, tool.def.Description)
	}
	for _, want := range []string{"draft_get", "draft_add_text", "puzzle_generate", "issue_publish", "issue_list", "issue_render"} {
		require.True(t, names[want], "missing tool %s", want)
	}
	require.NotNil(t, NewMCPServer(newTestHandlers().app, "test"))
}

func TestMCPDraftAndPublish(t *testing.T) {
	h := newTestHandlers()
	ctx := context.Background()
	member := map[string]any{"name": "Alex", "group_code": "fam-202"}

	r, err := h.handleDraftAddText(ctx, makeRequest(map[string]any{
		"name": "Alex", "group_code": "fam-202", "content": "Coffee on the porch.",
	}))
	require.NoError(t, err)
	require.False(t, r.IsError, resultText(t, r))

	r, err = h.handleDraftGet(ctx, makeRequest(member))
	require.NoError(t, err)
	var draft struct {
		Blocks BlockList `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, r)), &draft))
	require.Len(t, draft.Blocks, 1)

	r, err = h.handlePuzzleGenerate(ctx, makeRequest(member))
	require.NoError(t, err)
	require.False(t, r.IsError, resultText(t, r))
	var puzzle struct {
		Generating bool        `json:"isGenerating"`
		Data       *PuzzleData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, r)), &puzzle))
	require.False(t, puzzle.Generating)
	require.Equal(t, "Weekly Mini", puzzle.Data.Title)

	r, err = h.handleIssuePublish(ctx, makeRequest(map[string]any{
		"name": "Alex", "email": "alex@example.com", "group_code": "fam-202",
	}))
	require.NoError(t, err)
	require.False(t, r.IsError, resultText(t, r))
	var issue Issue
	require.NoError(t, json.Unmarshal([]byte(resultText(t, r)), &issue))
	require.Equal(t, 42, issue.WeekNumber)
	require.Equal(t, "FAM-202", issue.CircleCode)
	require.Len(t, issue.Sections[0].Blocks, 2)

	r, err = h.handleIssueList(ctx, makeRequest(map[string]any{"group_code": "FAM-202"}))
	require.NoError(t, err)
	var list struct {
		Issues []Issue `json:"issues"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, r)), &list))
	require.Len(t, list.Issues, 1)

	r, err = h.handleIssueRender(ctx, makeRequest(map[string]any{"group_code": "FAM-202", "id": issue.ID}))
	require.NoError(t, err)
	require.False(t, r.IsError)
	md := resultText(t, r)
	require.True(t, strings.HasPrefix(md, "# Sunday Paper"))
	require.Contains(t, md, "### Weekly Mini")
}

func TestMCPErrors(t *testing.T) {
	h := newTestHandlers()
	ctx := context.Background()

	r, err := h.handleDraftGet(ctx, makeRequest(map[string]any{"name": "Alex"}))
	require.NoError(t, err)
	require.Equal(t, ErrInvalidRequest, resultErrorCode(t, r))

	r, err = h.handleDraftAddText(ctx, makeRequest(map[string]any{"name": "Alex", "group_code": "X", "content": ""}))
	require.NoError(t, err)
	require.Equal(t, ErrInvalidRequest, resultErrorCode(t, r))

	r, err = h.handleIssuePublish(ctx, makeRequest(map[string]any{"name": "Alex", "group_code": "X"}))
	require.NoError(t, err)
	require.Equal(t, ErrInvalidRequest, resultErrorCode(t, r))

	r, err = h.handleIssueList(ctx, makeRequest(map[string]any{}))
	require.NoError(t, err)
	require.Equal(t, ErrInvalidRequest, resultErrorCode(t, r))

	r, err = h.handleIssueRender(ctx, makeRequest(map[string]any{"group_code": "X", "id": "missing"}))
	require.NoError(t, err)
	require.Equal(t, ErrNotFound, resultErrorCode(t, r))

	r, err = h.handleDraftGet(ctx, makeRequest(map[string]any{"name": "a:B", "group_code": "C"}))
	require.NoError(t, err)
	require.Equal(t, ErrInvalidRequest, resultErrorCode(t, r))

	// Wrong argument types.
	r, err = h.handleDraftGet(ctx, makeRequest(map[string]any{"name": 42, "group_code": "X"}))
	require.NoError(t, err)
	require.Equal(t, ErrInvalidRequest, resultErrorCode(t, r))
}

func TestMCPErrorHidesInternalDetails(t *testing.T) {
	r := mcpError(NewInternal(context.DeadlineExceeded))
	require.Equal(t, ErrInternal, resultErrorCode(t, r))
	require.NotContains(t, resultText(t, r), "deadline")
}
