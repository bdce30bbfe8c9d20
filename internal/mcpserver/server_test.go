package mcpserver

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/bonsai/internal/testutil"
	"github.com/starford/bonsai/internal/workspace"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	_, store := testutil.TestVault(t, map[string]string{
		"i.bonsai.md": "- [[a]]\n  - [[b]]\n",
		"i.lost.md":   "- [[c]]\n",
		"a.md":        "see [[b]] and [[ghost]]\n",
		"b.md":        ":author::[[a]]\n",
	})
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ws, err := workspace.New(store, workspace.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ws.Close)
	if err := ws.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return New(ws)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// called directly.
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"get_tree":      srv.getTree,
		"get_node":      srv.getNode,
		"get_ancestors": srv.getAncestors,
		"get_children":  srv.getChildren,
		"get_backrefs":  srv.getBackRefs,
		"get_forerefs":  srv.getForeRefs,
		"list_zombies":  srv.listZombies,
		"list_orphans":  srv.listOrphans,
		"lint_tree":     srv.lintTree,
		"read_doc":      srv.readDoc,
		"create_doc":    srv.createDoc,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
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

func TestGetTree(t *testing.T) {
	srv := testServer(t)

	text := resultText(callTool(t, srv, "get_tree", map[string]interface{}{}))
	if !strings.HasPrefix(text, "state: built") {
		t.Errorf("tree = %q", text)
	}
	for _, name := range []string{"i.bonsai", "a", "b"} {
		if !strings.Contains(text, name) {
			t.Errorf("tree is missing %s: %q", name, text)
		}
	}
}

func TestTreeNavigation(t *testing.T) {
	srv := testServer(t)

	if got := resultText(callTool(t, srv, "get_ancestors", map[string]interface{}{"filename": "b"})); got != "i.bonsai\na" {
		t.Errorf("ancestors = %q", got)
	}
	if got := resultText(callTool(t, srv, "get_children", map[string]interface{}{"filename": "i.bonsai"})); got != "a" {
		t.Errorf("children = %q", got)
	}
	if got := resultText(callTool(t, srv, "get_children", map[string]interface{}{"filename": "b"})); got != "no children" {
		t.Errorf("leaf children = %q", got)
	}

	text := resultText(callTool(t, srv, "get_node", map[string]interface{}{"filename": "b"}))
	if !strings.Contains(text, `"parent": "a"`) || !strings.Contains(text, `"petiole": "i.bonsai"`) {
		t.Errorf("node = %s", text)
	}
}

func TestReferences(t *testing.T) {
	srv := testServer(t)

	got := resultText(callTool(t, srv, "get_forerefs", map[string]interface{}{"filename": "b"}))
	if got != "attr:author a" {
		t.Errorf("forerefs = %q", got)
	}
	got = resultText(callTool(t, srv, "get_backrefs", map[string]interface{}{"filename": "ghost"}))
	if got != "link a" {
		t.Errorf("backrefs = %q", got)
	}
	r := callTool(t, srv, "get_backrefs", map[string]interface{}{"filename": "nope"})
	if !r.IsError {
		t.Error("expected error for unknown node")
	}
}

func TestZombiesAndOrphans(t *testing.T) {
	srv := testServer(t)

	if got := resultText(callTool(t, srv, "list_zombies", map[string]interface{}{})); !strings.Contains(got, "ghost") {
		t.Errorf("zombies = %q", got)
	}
	if got := resultText(callTool(t, srv, "list_orphans", map[string]interface{}{})); got != "i.lost" {
		t.Errorf("orphans = %q", got)
	}
}

func TestLintTree(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "lint_tree", map[string]interface{}{})
	if r.IsError {
		t.Errorf("lint of a valid garden failed: %s", resultText(r))
	}
}

func TestCreateAndReadDoc(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "create_doc", map[string]interface{}{
		"path":    "ghost.md",
		"content": "# Ghost\nno longer missing",
	})
	if text := resultText(r); text != "created: ghost.md" {
		t.Errorf("create result = %q", text)
	}

	text := resultText(callTool(t, srv, "read_doc", map[string]interface{}{"filename": "ghost"}))
	if !strings.Contains(text, `"title": "Ghost"`) || !strings.Contains(text, `"kind": "doc"`) {
		t.Errorf("read result = %s", text)
	}

	r = callTool(t, srv, "create_doc", map[string]interface{}{"path": "a.md", "content": "dup"})
	if !r.IsError {
		t.Error("expected error for existing document")
	}
}

func TestCreateTypedDoc(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "create_doc", map[string]interface{}{
		"path":    "topics/garden.md",
		"content": "- [[a]]\n",
		"type":    "index",
	})
	if text := resultText(r); text != "created: topics/i.garden.md" {
		t.Fatalf("create result = %q", text)
	}

	text := resultText(callTool(t, srv, "get_node", map[string]interface{}{"filename": "i.garden"}))
	if !strings.Contains(text, `"type": "index"`) || !strings.Contains(text, `"title": "garden"`) {
		t.Errorf("node = %s", text)
	}
}

func TestReadDocMissing(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "read_doc", map[string]interface{}{"filename": "ghost"})
	if !r.IsError {
		t.Error("expected error for a zombie")
	}
}

func TestOutlineContractResource(t *testing.T) {
	srv := testServer(t)

	contents, err := srv.readOutlineFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != outlineFormatURI || !strings.Contains(tc.Text, "[[filename]]") {
		t.Errorf("resource = %+v", contents[0])
	}
}
