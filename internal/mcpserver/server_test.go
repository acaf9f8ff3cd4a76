package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/bangd/internal/bangservice"
	"github.com/starford/bangd/internal/catalog"
	"github.com/starford/bangd/internal/intercept"
	"github.com/starford/bangd/internal/models"
	"github.com/starford/bangd/internal/session"
	"github.com/starford/bangd/internal/settings"
	"github.com/starford/bangd/internal/testutil"
)

type fakeCatalog struct{}

func (fakeCatalog) Fetch(context.Context, string) ([]models.BangDefinition, error) {
	return []models.BangDefinition{{
		Name:      "Wikipedia",
		Token:     "w",
		Targets:   []models.BangTarget{{URL: "https://en.wikipedia.org/wiki/{{{s}}}", URLEncodeQuery: true}},
		IsDefault: true,
		IsActive:  true,
	}}, nil
}

func (fakeCatalog) Registry() catalog.Registry { return catalog.DefaultRegistry() }

func testServer(t *testing.T) *Server {
	t.Helper()
	logger := testutil.Logger()
	db := testutil.TestDB(t)

	tier := session.NewStore()
	res := settings.NewResolver(db, tier, fakeCatalog{}, logger)
	db.OnChanged(res.HandleChanges)
	if err := res.Resolve(context.Background(), true); err != nil {
		t.Fatal(err)
	}

	svc := bangservice.NewService(db, tier, res, nil, logger)
	engine := intercept.NewEngine(intercept.DefaultRules(), intercept.NewLimiter(0), tier, nil, logger)
	return New(svc, engine)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" helper, so handlers are called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "resolve_query":
		result, err = srv.resolveQuery(ctx, req)
	case "list_bangs":
		result, err = srv.listBangs(ctx, req)
	case "add_bang":
		result, err = srv.addBang(ctx, req)
	case "toggle_bang":
		result, err = srv.toggleBang(ctx, req)
	case "get_settings":
		result, err = srv.getSettings(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestAddAndResolve(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "add_bang", map[string]interface{}{
		"name": "YouTube",
		"bang": "!YT",
		"url":  "https://www.youtube.com/results?search_query={{{s}}}",
	})
	if text := resultText(r); text != "created: yt" {
		t.Fatalf("add result = %q", text)
	}

	r = callTool(t, srv, "resolve_query", map[string]interface{}{"query": "cats !yt"})
	var dec intercept.Decision
	if err := json.Unmarshal([]byte(resultText(r)), &dec); err != nil {
		t.Fatal(err)
	}
	if dec.Action != intercept.ActionRedirect || dec.Navigations[0].URL != "https://www.youtube.com/results?search_query=cats" {
		t.Errorf("decision = %+v", dec)
	}
}

func TestAddBangInvalid(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "add_bang", map[string]interface{}{
		"name": "Broken",
		"bang": "b",
		"url":  "https://example.com/no-placeholder",
	})
	if !r.IsError {
		t.Error("expected error for url without placeholder")
	}
	r = callTool(t, srv, "add_bang", map[string]interface{}{"name": "x"})
	if !r.IsError {
		t.Error("expected error for missing arguments")
	}
}

func TestListBangs(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "add_bang", map[string]interface{}{
		"name": "GitHub",
		"bang": "gh",
		"url":  "https://github.com/search?q={{{s}}}",
	})

	r := callTool(t, srv, "list_bangs", map[string]interface{}{})
	if !strings.Contains(resultText(r), `"bang": "gh"`) {
		t.Errorf("custom list = %s", resultText(r))
	}
	r = callTool(t, srv, "list_bangs", map[string]interface{}{"kind": "default", "search": "wiki"})
	if !strings.Contains(resultText(r), `"bang": "w"`) {
		t.Errorf("default list = %s", resultText(r))
	}
}

func TestToggleBang(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "toggle_bang", map[string]interface{}{"bang": "w", "active": false})
	if text := resultText(r); text != "deactivated: w" {
		t.Fatalf("toggle result = %q", text)
	}
	r = callTool(t, srv, "resolve_query", map[string]interface{}{"query": "!w cats"})
	if !strings.Contains(resultText(r), intercept.ReasonUnknown) {
		t.Errorf("deactivated bang still resolves: %s", resultText(r))
	}

	r = callTool(t, srv, "toggle_bang", map[string]interface{}{"bang": "missing", "active": true})
	if !r.IsError {
		t.Error("expected error for unknown default bang")
	}
}

func TestGetSettings(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_settings", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, `"bangSymbol": "!"`) || !strings.Contains(text, `"bangProvider": "kagi"`) {
		t.Errorf("settings = %s", text)
	}
}
