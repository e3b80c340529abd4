package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// mcpTool pairs a tool definition with its handler.
type mcpTool struct {
	def     mcp.Tool
	handler func(*mcpHandlers) server.ToolHandlerFunc
}

var mcpTools = []mcpTool{
	{
		def: mcp.NewTool("draft_get",
			mcp.WithDescription("Return a member's current draft blocks"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Member name")),
			mcp.WithString("group_code", mcp.Required(), mcp.Description("Circle code")),
		),
		handler: func(h *mcpHandlers) server.ToolHandlerFunc { return h.handleDraftGet },
	},
	{
		def: mcp.NewTool("draft_add_text",
			mcp.WithDescription("Add a text note to a member's draft"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Member name")),
			mcp.WithString("group_code", mcp.Required(), mcp.Description("Circle code")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Note text")),
		),
		handler: func(h *mcpHandlers) server.ToolHandlerFunc { return h.handleDraftAddText },
	},
	{
		def: mcp.NewTool("puzzle_generate",
			mcp.WithDescription("Generate a mini crossword from the draft's notes and add it to the draft"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Member name")),
			mcp.WithString("group_code", mcp.Required(), mcp.Description("Circle code")),
		),
		handler: func(h *mcpHandlers) server.ToolHandlerFunc { return h.handlePuzzleGenerate },
	},
	{
		def: mcp.NewTool("issue_publish",
			mcp.WithDescription("Publish a member's draft as the circle's next issue"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Member name")),
			mcp.WithString("email", mcp.Required(), mcp.Description("Member email, receives a copy")),
			mcp.WithString("group_code", mcp.Required(), mcp.Description("Circle code")),
		),
		handler: func(h *mcpHandlers) server.ToolHandlerFunc { return h.handleIssuePublish },
	},
	{
		def: mcp.NewTool("issue_list",
			mcp.WithDescription("List a circle's issues, newest first"),
			mcp.WithString("group_code", mcp.Required(), mcp.Description("Circle code")),
		),
		handler: func(h *mcpHandlers) server.ToolHandlerFunc { return h.handleIssueList },
	},
	{
		def: mcp.NewTool("issue_render",
			mcp.WithDescription("Render an issue as Markdown"),
			mcp.WithString("group_code", mcp.Required(), mcp.Description("Circle code")),
			mcp.WithString("id", mcp.Required(), mcp.Description("Issue id")),
		),
		handler: func(h *mcpHandlers) server.ToolHandlerFunc { return h.handleIssueRender },
	},
}

// NewMCPServer creates an MCP server exposing the newsletter tools.
func NewMCPServer(app *App, version string) *server.MCPServer {
	s := server.NewMCPServer("sundaypaper", version, server.WithToolCapabilities(true))
	h := &mcpHandlers{app: app}
	for _, t := range mcpTools {
		s.AddTool(t.def, t.handler(h))
	}
	return s
}

type mcpHandlers struct {
	app *App
}

type memberArgs struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	GroupCode string `json:"group_code"`
	Content   string `json:"content"`
	ID        string `json:"id"`
}

// member builds the user addressed by a tool call. Drafts are keyed by
// name and circle only, so the email is optional outside of publishing.
func (a memberArgs) member() (User, error) {
	u := User{
		Name:      strings.TrimSpace(a.Name),
		Email:     strings.TrimSpace(a.Email),
		GroupCode: strings.ToUpper(strings.TrimSpace(a.GroupCode)),
	}
	if u.Name == "" || u.GroupCode == "" {
		return User{}, NewInvalidRequest("name and group_code are required")
	}
	if err := checkKeyParts(u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (h *mcpHandlers) handleDraftGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs[memberArgs](req)
	if err != nil {
		return mcpError(NewInvalidRequest(err.Error())), nil
	}
	u, err := args.member()
	if err != nil {
		return mcpError(err), nil
	}
	blocks, err := h.app.Store.GetDraft(ctx, u)
	if err != nil {
		return mcpError(err), nil
	}
	return mcp.NewToolResultJSON(map[string]any{"blocks": blocks})
}

func (h *mcpHandlers) handleDraftAddText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs[memberArgs](req)
	if err != nil {
		return mcpError(NewInvalidRequest(err.Error())), nil
	}
	u, err := args.member()
	if err != nil {
		return mcpError(err), nil
	}
	b, err := h.app.Shoebox.AddText(ctx, u, args.Content)
	if err != nil {
		return mcpError(err), nil
	}
	return mcp.NewToolResultJSON(b)
}

func (h *mcpHandlers) handlePuzzleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs[memberArgs](req)
	if err != nil {
		return mcpError(NewInvalidRequest(err.Error())), nil
	}
	u, err := args.member()
	if err != nil {
		return mcpError(err), nil
	}
	b, err := h.app.Shoebox.GeneratePuzzle(ctx, u)
	if err != nil {
		return mcpError(err), nil
	}
	return mcp.NewToolResultJSON(b)
}

func (h *mcpHandlers) handleIssuePublish(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs[memberArgs](req)
	if err != nil {
		return mcpError(NewInvalidRequest(err.Error())), nil
	}
	u, err := NewUser(args.Name, args.Email, args.GroupCode)
	if err != nil {
		return mcpError(err), nil
	}
	issue, err := h.app.Publisher.PublishDraft(ctx, u)
	if err != nil {
		return mcpError(err), nil
	}
	return mcp.NewToolResultJSON(issue)
}

func (h *mcpHandlers) handleIssueList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs[memberArgs](req)
	if err != nil {
		return mcpError(NewInvalidRequest(err.Error())), nil
	}
	circle := strings.ToUpper(strings.TrimSpace(args.GroupCode))
	if circle == "" {
		return mcpError(NewInvalidRequest("group_code is required")), nil
	}
	issues, err := h.app.Store.ListIssues(ctx, circle)
	if err != nil {
		return mcpError(err), nil
	}
	return mcp.NewToolResultJSON(map[string]any{"issues": issues})
}

func (h *mcpHandlers) handleIssueRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs[memberArgs](req)
	if err != nil {
		return mcpError(NewInvalidRequest(err.Error())), nil
	}
	circle := strings.ToUpper(strings.TrimSpace(args.GroupCode))
	issue, err := h.app.Store.GetIssue(ctx, circle, args.ID)
	if err != nil {
		return mcpError(err), nil
	}
	return mcp.NewToolResultText(RenderMarkdown(issue)), nil
}

// decodeArgs unmarshals tool arguments into a typed struct.
func decodeArgs[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("unmarshal args: %w", err)
	}
	return result, nil
}

// mcpError turns err into an error result. Internal details are not exposed.
func mcpError(err error) *mcp.CallToolResult {
	appErr := asAppError(err)
	body := map[string]any{"code": appErr.Code, "message": appErr.Message, "status": appErr.Status}
	if appErr.Code == ErrInternal {
		body["message"] = "an internal error occurred"
	}
	content, _ := json.Marshal(map[string]any{"error": body})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}
