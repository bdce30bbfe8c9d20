// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes bonsai graph and tree tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/bonsai/internal/graph"
	"github.com/starford/bonsai/internal/workspace"
)

const outlineFormatURI = "bonsai://outline-format"

// Server wraps the MCP server with bonsai tools.
type Server struct {
	mcp *server.MCPServer
	ws  *workspace.Workspace
}

// New creates a new MCP server with all bonsai tools registered.
func New(ws *workspace.Workspace) *Server {
	s := &Server{ws: ws}

	s.mcp = server.NewMCPServer(
		"bonsai",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_tree",
		mcp.WithDescription("Render the semantic tree as indented text, with its state."),
		mcp.WithString("label", mcp.Description("Node field used as label: filename (default), title or id")),
	), s.getTree)

	s.mcp.AddTool(mcp.NewTool("get_node",
		mcp.WithDescription("Get a node by filename, with its parent and the index document that placed it."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Filename without .md extension")),
	), s.getNode)

	s.mcp.AddTool(mcp.NewTool("get_ancestors",
		mcp.WithDescription("List a node's ancestors in the semantic tree, root first."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Filename without .md extension")),
	), s.getAncestors)

	s.mcp.AddTool(mcp.NewTool("get_children",
		mcp.WithDescription("List a node's children in the semantic tree, in outline order."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Filename without .md extension")),
	), s.getChildren)

	s.mcp.AddTool(mcp.NewTool("get_backrefs",
		mcp.WithDescription("List the documents that link to, embed or attribute the given node."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Filename without .md extension")),
	), s.getBackRefs)

	s.mcp.AddTool(mcp.NewTool("get_forerefs",
		mcp.WithDescription("List the nodes the given document links to, embeds or attributes."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Filename without .md extension")),
	), s.getForeRefs)

	s.mcp.AddTool(mcp.NewTool("list_zombies",
		mcp.WithDescription("List referenced documents that do not exist yet."),
	), s.listZombies)

	s.mcp.AddTool(mcp.NewTool("list_orphans",
		mcp.WithDescription("List index documents that no outline reaches from the root."),
	), s.listOrphans)

	s.mcp.AddTool(mcp.NewTool("lint_tree",
		mcp.WithDescription("Check every index document and report outline problems without changing the tree."),
	), s.lintTree)

	s.mcp.AddTool(mcp.NewTool("read_doc",
		mcp.WithDescription("Read the parsed content of a document by filename."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Filename without .md extension")),
	), s.readDoc)

	s.mcp.AddTool(mcp.NewTool("create_doc",
		mcp.WithDescription("Create a new Markdown document. Index documents MUST follow the outline format; "+
			"read it first via the get_outline_contract tool or the "+outlineFormatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new document (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content")),
		mcp.WithString("type", mcp.Description("Document type; its filename prefix is added to the path (e.g. index)")),
	), s.createDoc)

	s.mcp.AddTool(mcp.NewTool("get_outline_contract",
		mcp.WithDescription("Returns the outline format that index documents follow."),
	), s.getOutlineContract)

	s.mcp.AddResource(
		mcp.NewResource(outlineFormatURI, "Outline Format Contract",
			mcp.WithResourceDescription("Format of the index documents the semantic tree is built from."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readOutlineFormatResource,
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

func (s *Server) getTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	label := graph.FieldFilename
	if l, err := req.RequireString("label"); err == nil && l != "" {
		label = graph.Field(l)
	}
	_, state := s.ws.Tree().Tree()
	text := s.ws.Graph().PrintTree(label)
	if text == "" {
		return mcp.NewToolResultText(fmt.Sprintf("tree is %s and empty", state)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("state: %s\n\n%s", state, text)), nil
}

type nodeInfo struct {
	graph.Node
	Parent  string `json:"parent,omitempty"`
	Petiole string `json:"petiole,omitempty"`
}

func (s *Server) getNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, errRes := s.node(req)
	if errRes != nil {
		return errRes, nil
	}
	info := nodeInfo{Node: n}
	if p, ok := s.ws.Graph().Parent(n.ID); ok {
		info.Parent = p.Data.Filename
	}
	if p, ok := s.ws.Tree().Petiole(n.Data.Filename); ok {
		info.Petiole = p
	}
	return jsonResult(info), nil
}

func (s *Server) getAncestors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, errRes := s.node(req)
	if errRes != nil {
		return errRes, nil
	}
	return filenameList(s.ws.Graph().Ancestors(n.ID), "no ancestors"), nil
}

func (s *Server) getChildren(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, errRes := s.node(req)
	if errRes != nil {
		return errRes, nil
	}
	return filenameList(s.ws.Graph().Children(n.ID), "no children"), nil
}

func (s *Server) getBackRefs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, errRes := s.node(req)
	if errRes != nil {
		return errRes, nil
	}
	return refList(s.ws.Graph().BackRefs(n.ID), "no backrefs found"), nil
}

func (s *Server) getForeRefs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, errRes := s.node(req)
	if errRes != nil {
		return errRes, nil
	}
	return refList(s.ws.Graph().ForeRefs(n.ID), "no forerefs found"), nil
}

func (s *Server) listZombies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return filenameList(s.ws.Graph().Zombies(), "no zombies"), nil
}

func (s *Server) listOrphans(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, _ := s.ws.Tree().Tree()
	if len(t.Orphans) == 0 {
		return mcp.NewToolResultText("no orphans"), nil
	}
	return mcp.NewToolResultText(strings.Join(t.Orphans, "\n")), nil
}

func (s *Server) lintTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep := s.ws.Lint(ctx)
	if rep.OK() && len(rep.Warnings) == 0 {
		return mcp.NewToolResultText("ok"), nil
	}
	res := jsonResult(rep)
	res.IsError = !rep.OK()
	return res, nil
}

func (s *Server) readDoc(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.ws.Document(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", name)), nil
	}
	return jsonResult(doc), nil
}

func (s *Server) createDoc(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if typ, err := req.RequireString("type"); err == nil {
		path = s.ws.TypedPath(typ, path)
	}
	doc, err := s.ws.CreateDocument(ctx, path, []byte(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", doc.Path)), nil
}

func (s *Server) getOutlineContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(OutlineFormatContract), nil
}

func (s *Server) readOutlineFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      outlineFormatURI,
			MIMEType: "text/markdown",
			Text:     OutlineFormatContract,
		},
	}, nil
}

func (s *Server) node(req mcp.CallToolRequest) (graph.Node, *mcp.CallToolResult) {
	name, err := req.RequireString("filename")
	if err != nil {
		return graph.Node{}, mcp.NewToolResultError(err.Error())
	}
	n, ok := s.ws.Graph().Find(graph.FieldFilename, strings.TrimSuffix(name, ".md"))
	if !ok {
		return graph.Node{}, mcp.NewToolResultError(fmt.Sprintf("not found: %s", name))
	}
	return n, nil
}

func filenameList(nodes []graph.Node, empty string) *mcp.CallToolResult {
	if len(nodes) == 0 {
		return mcp.NewToolResultText(empty)
	}
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Data.Filename
	}
	return mcp.NewToolResultText(strings.Join(names, "\n"))
}

// refList renders one reference per line as "kind[:type] filename".
func refList(refs []graph.Reference, empty string) *mcp.CallToolResult {
	if len(refs) == 0 {
		return mcp.NewToolResultText(empty)
	}
	lines := make([]string, len(refs))
	for i, r := range refs {
		kind := r.Kind.String()
		if r.RefType != "" {
			kind += ":" + r.RefType
		}
		lines[i] = kind + " " + r.Node.Data.Filename
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n"))
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}
