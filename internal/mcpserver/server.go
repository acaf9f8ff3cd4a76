// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes bangd tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/bangd/internal/bangservice"
	"github.com/starford/bangd/internal/intercept"
	"github.com/starford/bangd/internal/models"
)

// QueryResolver answers what a query would do without navigating.
type QueryResolver interface {
	Resolve(query string) intercept.Decision
}

// Server wraps the MCP server with bangd tools.
type Server struct {
	mcp      *server.MCPServer
	svc      *bangservice.Service
	resolver QueryResolver
}

// New creates a new MCP server with all bangd tools registered.
func New(svc *bangservice.Service, resolver QueryResolver) *Server {
	s := &Server{svc: svc, resolver: resolver}

	s.mcp = server.NewMCPServer(
		"bangd",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("resolve_query",
		mcp.WithDescription("Show where a search query with a bang (e.g. \"!w golang\") would be redirected."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query as typed into a search engine")),
	), s.resolveQuery)

	s.mcp.AddTool(mcp.NewTool("list_bangs",
		mcp.WithDescription("List custom bangs in their configured order, or the provider's default bangs."),
		mcp.WithString("kind", mcp.Description("\"custom\" (default) or \"default\""), mcp.Enum("custom", "default")),
		mcp.WithString("search", mcp.Description("Optional case-insensitive filter on name and trigger")),
		mcp.WithNumber("page", mcp.Description("Page number, 25 bangs per page")),
	), s.listBangs)

	s.mcp.AddTool(mcp.NewTool("add_bang",
		mcp.WithDescription("Create a custom bang. Read the bang format contract first via the "+
			"bangd://bang-format resource."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Human-readable name")),
		mcp.WithString("bang", mcp.Required(), mcp.Description("Trigger without whitespace, e.g. yt")),
		mcp.WithString("url", mcp.Required(), mcp.Description("Target URL containing the {{{s}}} placeholder")),
		mcp.WithBoolean("url_encode_query", mcp.Description("Percent-encode the search terms (default true)")),
		mcp.WithString("base_url", mcp.Description("URL opened when the bang is used without search terms")),
	), s.addBang)

	s.mcp.AddTool(mcp.NewTool("toggle_bang",
		mcp.WithDescription("Activate or deactivate one of the provider's default bangs."),
		mcp.WithString("bang", mcp.Required(), mcp.Description("Trigger of the default bang")),
		mcp.WithBoolean("active", mcp.Required(), mcp.Description("Desired state")),
	), s.toggleBang)

	s.mcp.AddTool(mcp.NewTool("get_settings",
		mcp.WithDescription("Return the bang symbol, the default bang provider and storage usage."),
	), s.getSettings)

	s.mcp.AddResource(
		mcp.NewResource("bangd://bang-format", "Bang Format Contract",
			mcp.WithResourceDescription("How bangs are defined and resolved."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readBangFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) resolveQuery(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.resolver.Resolve(query)), nil
}

func (s *Server) listBangs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := bangservice.ListQuery{
		Search: req.GetString("search", ""),
		Page:   req.GetInt("page", 1),
	}
	if req.GetString("kind", "custom") == "default" {
		return jsonResult(s.svc.ListDefaults(ctx, q)), nil
	}
	page, err := s.svc.ListCustom(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(page), nil
}

func (s *Server) addBang(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	token, err := req.RequireString("bang")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	u, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	def, err := s.svc.AddBang(ctx, bangservice.BangInput{
		Name:  name,
		Token: token,
		Targets: []models.BangTarget{{
			URL:            u,
			BaseURL:        req.GetString("base_url", ""),
			URLEncodeQuery: req.GetBool("url_encode_query", true),
		}},
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", def.Token)), nil
}

func (s *Server) toggleBang(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := req.RequireString("bang")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	active, err := req.RequireBool("active")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.SetActive(ctx, token, active); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	state := "deactivated"
	if active {
		state = "activated"
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s", state, token)), nil
}

func (s *Server) getSettings(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.GetSettings(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	u, err := s.svc.Usage(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"settings": st, "usage": u}), nil
}

func (s *Server) readBangFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "bangd://bang-format",
			MIMEType: "text/markdown",
			Text:     BangFormatContract,
		},
	}, nil
}
