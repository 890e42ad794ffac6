// Package mcp provides the MCP (Model Context Protocol) server for FlowSketch.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/flowsketch/flowsketch-go/internal/diagram"
	"github.com/flowsketch/flowsketch-go/internal/genai"
	"github.com/flowsketch/flowsketch-go/internal/placement"
	"github.com/flowsketch/flowsketch-go/internal/snapshot"
	"github.com/flowsketch/flowsketch-go/internal/store"
)

// Generator produces a diagram graph from a free-text description.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*genai.Graph, error)
}

// Server represents the MCP server.
type Server struct {
	designs   store.DesignStore
	generator Generator
	renderer  *snapshot.Renderer
	placer    *placement.Engine
	server    *mcp.Server
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a new MCP server. generator may be nil when no API key
// is configured; design_generate then reports an error instead of calling out.
func NewServer(designs store.DesignStore, generator Generator, renderer *snapshot.Renderer) *Server {
	s := &Server{
		designs:   designs,
		generator: generator,
		renderer:  renderer,
		placer:    placement.NewEngine(),
	}

	// Create MCP server
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "flowsketch",
		Version: "0.1.0",
	}, nil)

	// Register tools
	s.registerTools()

	// Register resources
	s.registerResources()

	return s
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "design_generate",
			Description: "Generate a new architecture diagram from a natural-language description and store it as a design.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"prompt": {Type: "string", Description: "System description to diagram"},
					"title":  {Type: "string", Description: "Title for the stored design"},
				},
				Required: []string{"prompt"},
			},
		},
		{
			Name:        "design_list",
			Description: "List all stored designs with their node and edge counts.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
		{
			Name:        "design_get",
			Description: "Show a design's nodes and edges in detail.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"design": {Type: "string", Description: "Design ID"},
				},
				Required: []string{"design"},
			},
		},
		{
			Name:        "design_delete",
			Description: "Delete a stored design and its snapshot image.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"design": {Type: "string", Description: "Design ID"},
				},
				Required: []string{"design"},
			},
		},
		{
			Name:        "node_add",
			Description: "Add a node of a given variant to a design at a free position.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"design":  {Type: "string", Description: "Design ID"},
					"variant": {Type: "string", Description: "Node variant (cloud, database, queue, compute, storage, api, user, decision, start, end, annotation)"},
					"label":   {Type: "string", Description: "Node label"},
				},
				Required: []string{"design", "variant"},
			},
		},
		{
			Name:        "node_move",
			Description: "Move a node to an absolute canvas position.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"design": {Type: "string", Description: "Design ID"},
					"node":   {Type: "string", Description: "Node ID"},
					"x":      {Type: "number", Description: "New x coordinate"},
					"y":      {Type: "number", Description: "New y coordinate"},
				},
				Required: []string{"design", "node", "x", "y"},
			},
		},
		{
			Name:        "node_delete",
			Description: "Delete a node and every edge attached to it.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"design": {Type: "string", Description: "Design ID"},
					"node":   {Type: "string", Description: "Node ID"},
				},
				Required: []string{"design", "node"},
			},
		},
		{
			Name:        "nodes_connect",
			Description: "Connect two nodes with a labeled edge (source right handle to target left handle).",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"design": {Type: "string", Description: "Design ID"},
					"source": {Type: "string", Description: "Source node ID"},
					"target": {Type: "string", Description: "Target node ID"},
					"label":  {Type: "string", Description: "Edge label"},
				},
				Required: []string{"design", "source", "target"},
			},
		},
		{
			Name:        "edge_delete",
			Description: "Delete an edge from a design.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"design": {Type: "string", Description: "Design ID"},
					"edge":   {Type: "string", Description: "Edge ID"},
				},
				Required: []string{"design", "edge"},
			},
		},
		{
			Name:        "snapshot_render",
			Description: "Render a design to a PNG snapshot and store it alongside the design.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"design": {Type: "string", Description: "Design ID"},
				},
				Required: []string{"design"},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "flowsketch://designs",
			Name:        "Design Index",
			Description: "All stored designs with their sizes and timestamps",
			MimeType:    "text/plain",
		},
		{
			URI:         "flowsketch://variants",
			Name:        "Variant Catalog",
			Description: "The closed set of node variants with colors and icons",
			MimeType:    "text/plain",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "design_generate":
		prompt, _ := args["prompt"].(string)
		title, _ := args["title"].(string)
		return s.handleGenerate(ctx, prompt, title)
	case "design_list":
		return s.handleList(ctx)
	case "design_get":
		id, _ := args["design"].(string)
		return s.handleGet(ctx, id)
	case "design_delete":
		id, _ := args["design"].(string)
		if err := s.designs.Delete(ctx, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted design %s", id), nil
	case "node_add":
		id, _ := args["design"].(string)
		variant, _ := args["variant"].(string)
		label, _ := args["label"].(string)
		return s.handleNodeAdd(ctx, id, variant, label)
	case "node_move":
		id, _ := args["design"].(string)
		node, _ := args["node"].(string)
		x, _ := args["x"].(float64)
		y, _ := args["y"].(float64)
		return s.handleNodeMove(ctx, id, node, x, y)
	case "node_delete":
		id, _ := args["design"].(string)
		node, _ := args["node"].(string)
		return s.handleNodeDelete(ctx, id, node)
	case "nodes_connect":
		id, _ := args["design"].(string)
		source, _ := args["source"].(string)
		target, _ := args["target"].(string)
		label, _ := args["label"].(string)
		return s.handleConnect(ctx, id, source, target, label)
	case "edge_delete":
		id, _ := args["design"].(string)
		edge, _ := args["edge"].(string)
		return s.handleEdgeDelete(ctx, id, edge)
	case "snapshot_render":
		id, _ := args["design"].(string)
		return s.handleRender(ctx, id)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "flowsketch://designs":
		return s.handleList(ctx)
	case "flowsketch://variants":
		return variantCatalog(), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// Run starts the MCP server with stdio transport.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	reader := bufio.NewReader(stdin)
	encoder := json.NewEncoder(stdout)
	// Note: Do NOT use SetIndent - MCP protocol requires compact JSON (one line per message)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		// Parse JSON-RPC request
		var req map[string]any
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}

		// Handle request
		resp := s.handleRequest(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req map[string]any) map[string]any {
	method, _ := req["method"].(string)
	id := req["id"]

	switch method {
	case "initialize":
		return s.handleInitialize(id)
	case "tools/list":
		return s.handleToolsList(id)
	case "tools/call":
		return s.handleToolsCall(ctx, id, req)
	case "resources/list":
		return s.handleResourcesList(id)
	case "resources/read":
		return s.handleResourcesRead(ctx, id, req)
	default:
		return errorResponse(id, -32601, "Method not found: "+method)
	}
}

func (s *Server) handleInitialize(id any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]any{
				"name":    "flowsketch",
				"version": "0.1.0",
			},
			"capabilities": map[string]any{
				"tools": map[string]any{
					"listChanged": false,
				},
				"resources": map[string]any{
					"listChanged": false,
				},
			},
		},
	}
}

func (s *Server) handleToolsList(id any) map[string]any {
	tools := s.ListTools()
	toolList := make([]map[string]any, len(tools))
	for i, tool := range tools {
		schema, _ := json.Marshal(tool.InputSchema)
		var schemaMap map[string]any
		json.Unmarshal(schema, &schemaMap)

		toolList[i] = map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": schemaMap,
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"tools": toolList,
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	result, err := s.CallTool(ctx, name, args)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"content": []map[string]any{
				{
					"type": "text",
					"text": result,
				},
			},
		},
	}
}

func (s *Server) handleResourcesList(id any) map[string]any {
	resources := s.ListResources()
	resourceList := make([]map[string]any, len(resources))
	for i, res := range resources {
		resourceList[i] = map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"resources": resourceList,
		},
	}
}

func (s *Server) handleResourcesRead(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	uri, _ := params["uri"].(string)

	content, err := s.ReadResource(ctx, uri)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"contents": []map[string]any{
				{
					"uri":      uri,
					"mimeType": "text/plain",
					"text":     content,
				},
			},
		},
	}
}

// Tool Handlers

func (s *Server) handleGenerate(ctx context.Context, prompt, title string) (string, error) {
	if s.generator == nil {
		return "", fmt.Errorf("no generation API key configured")
	}
	if strings.TrimSpace(prompt) == "" {
		return "No prompt provided", nil
	}

	generated, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	if title == "" {
		title = prompt
		if len(title) > 60 {
			title = title[:60]
		}
	}
	d := store.NewDesign(title, prompt)
	d.Nodes = generated.Nodes
	d.Edges = generated.Edges

	created, err := s.designs.Create(ctx, d)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Created design **%s** (%s)\n\n", created.Title, created.ID)
	fmt.Fprintf(&sb, "- %d nodes, %d edges\n", len(created.Nodes), len(created.Edges))
	for _, n := range created.Nodes {
		fmt.Fprintf(&sb, "- %s [%s] %q\n", n.ID, n.Data.Variant, n.Data.Label)
	}
	return sb.String(), nil
}

func (s *Server) handleList(ctx context.Context) (string, error) {
	summaries, err := s.designs.List(ctx)
	if err != nil {
		return "", err
	}
	if len(summaries) == 0 {
		return "No designs stored", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Designs (%d)\n\n", len(summaries))
	for _, d := range summaries {
		fmt.Fprintf(&sb, "- %s — **%s** (%d nodes, %d edges, updated %s)\n",
			d.ID, d.Title, d.NodeCount, d.EdgeCount, d.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return sb.String(), nil
}

func (s *Server) handleGet(ctx context.Context, id string) (string, error) {
	d, err := s.designs.Get(ctx, id)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s (%s)\n\n", d.Title, d.ID)
	if d.Prompt != "" {
		fmt.Fprintf(&sb, "Prompt: %s\n\n", d.Prompt)
	}
	fmt.Fprintf(&sb, "## Nodes (%d)\n\n", len(d.Nodes))
	for _, n := range d.Nodes {
		fmt.Fprintf(&sb, "- %s [%s] %q at (%.0f, %.0f) %dx%d\n",
			n.ID, n.Data.Variant, n.Data.Label, n.Position.X, n.Position.Y, int(n.Width), int(n.Height))
	}
	fmt.Fprintf(&sb, "\n## Edges (%d)\n\n", len(d.Edges))
	for _, e := range d.Edges {
		fmt.Fprintf(&sb, "- %s: %s -> %s %q\n", e.ID, e.Source, e.Target, e.Label)
	}
	return sb.String(), nil
}

func (s *Server) handleNodeAdd(ctx context.Context, id, variant, label string) (string, error) {
	g, d, err := s.loadGraph(ctx, id)
	if err != nil {
		return "", err
	}

	v := diagram.Variant(variant)
	if !diagram.KnownVariant(v) {
		return "", fmt.Errorf("%w: %s", diagram.ErrUnknownVariant, variant)
	}

	pos, err := s.placer.FindFreePosition(
		placement.OccupiedRects(g), placement.Viewport{Width: 1600, Height: 900},
		diagram.Size{Width: diagram.DefaultNodeWidth, Height: diagram.DefaultNodeHeight})
	if err != nil {
		return "", err
	}

	node := diagram.NewNode(d.ID, v, pos)
	if label != "" {
		node.Data.Label = label
	}
	if err := g.InsertNode(node); err != nil {
		return "", err
	}
	if err := s.saveGraph(ctx, d, g); err != nil {
		return "", err
	}
	return fmt.Sprintf("Added node %s [%s] at (%.0f, %.0f)", node.ID, v, pos.X, pos.Y), nil
}

func (s *Server) handleNodeMove(ctx context.Context, id, nodeID string, x, y float64) (string, error) {
	g, d, err := s.loadGraph(ctx, id)
	if err != nil {
		return "", err
	}
	if g.Node(nodeID) == nil {
		return "", fmt.Errorf("%w: %s", diagram.ErrNodeNotFound, nodeID)
	}
	g.MoveNode(nodeID, diagram.Position{X: x, Y: y})
	if err := s.saveGraph(ctx, d, g); err != nil {
		return "", err
	}
	return fmt.Sprintf("Moved %s to (%.0f, %.0f)", nodeID, x, y), nil
}

func (s *Server) handleNodeDelete(ctx context.Context, id, nodeID string) (string, error) {
	g, d, err := s.loadGraph(ctx, id)
	if err != nil {
		return "", err
	}
	before := g.EdgeCount()
	if !g.DeleteNode(nodeID) {
		return "", fmt.Errorf("%w: %s", diagram.ErrNodeNotFound, nodeID)
	}
	removed := before - g.EdgeCount()
	if err := s.saveGraph(ctx, d, g); err != nil {
		return "", err
	}
	return fmt.Sprintf("Deleted %s and %d attached edge(s)", nodeID, removed), nil
}

func (s *Server) handleConnect(ctx context.Context, id, source, target, label string) (string, error) {
	g, d, err := s.loadGraph(ctx, id)
	if err != nil {
		return "", err
	}
	edge, err := g.Connect(source, source+"-right", target, target+"-left")
	if err != nil {
		return "", err
	}
	if label != "" {
		g.RelabelEdge(edge.ID, label)
	}
	if err := s.saveGraph(ctx, d, g); err != nil {
		return "", err
	}
	return fmt.Sprintf("Connected %s -> %s (edge %s)", source, target, edge.ID), nil
}

func (s *Server) handleEdgeDelete(ctx context.Context, id, edgeID string) (string, error) {
	g, d, err := s.loadGraph(ctx, id)
	if err != nil {
		return "", err
	}
	if !g.DeleteEdge(edgeID) {
		return "", fmt.Errorf("%w: %s", diagram.ErrEdgeNotFound, edgeID)
	}
	if err := s.saveGraph(ctx, d, g); err != nil {
		return "", err
	}
	return fmt.Sprintf("Deleted edge %s", edgeID), nil
}

func (s *Server) handleRender(ctx context.Context, id string) (string, error) {
	if s.renderer == nil {
		return "", fmt.Errorf("no renderer configured")
	}
	g, d, err := s.loadGraph(ctx, id)
	if err != nil {
		return "", err
	}
	png, err := s.renderer.RenderPNG(g.Nodes(), g.Edges())
	if err != nil {
		return "", err
	}
	if err := s.designs.PutImage(ctx, d.ID, png); err != nil {
		return "", err
	}
	return fmt.Sprintf("Rendered snapshot for %s (%d bytes)", d.ID, len(png)), nil
}

func (s *Server) loadGraph(ctx context.Context, id string) (*diagram.Graph, *store.Design, error) {
	d, err := s.designs.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	g := diagram.NewGraph()
	if err := g.Replace(d.Nodes, d.Edges); err != nil {
		return nil, nil, fmt.Errorf("design %s is inconsistent: %w", id, err)
	}
	return g, d, nil
}

func (s *Server) saveGraph(ctx context.Context, d *store.Design, g *diagram.Graph) error {
	_, err := s.designs.Save(ctx, d.ID, g.Nodes(), g.Edges())
	return err
}

func variantCatalog() string {
	names := make([]string, 0, len(diagram.Variants))
	for v := range diagram.Variants {
		names = append(names, string(v))
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("# Variant Catalog\n\n")
	for _, name := range names {
		meta := diagram.Variants[diagram.Variant(name)]
		fmt.Fprintf(&sb, "- %-11s color %s, icon %s, default name %q\n",
			name, meta.Color, meta.Icon, meta.DefaultName)
	}
	return sb.String()
}

func errorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}

// registerTools registers tools with the MCP server.
func (s *Server) registerTools() {
	// Tools are exposed through the stdio JSON-RPC loop in Run.
}

// registerResources registers resources with the MCP server.
func (s *Server) registerResources() {
	// Resources are exposed through the stdio JSON-RPC loop in Run.
}
