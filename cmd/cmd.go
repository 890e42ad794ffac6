// Package cmd provides CLI command implementations for FlowSketch.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/flowsketch/flowsketch-go/internal/diagram"
	"github.com/flowsketch/flowsketch-go/internal/genai"
	"github.com/flowsketch/flowsketch-go/internal/remote"
	"github.com/flowsketch/flowsketch-go/internal/server"
	"github.com/flowsketch/flowsketch-go/internal/session"
	"github.com/flowsketch/flowsketch-go/internal/snapshot"
	"github.com/flowsketch/flowsketch-go/internal/store"
	"github.com/flowsketch/flowsketch-go/internal/watch"
	"github.com/flowsketch/flowsketch-go/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Environment keys. A .env file in the working directory is loaded first.
const (
	envDataDir   = "FLOWSKETCH_DATA_DIR"
	envRemoteURL = "FLOWSKETCH_REMOTE_URL"
	envAPIToken  = "FLOWSKETCH_API_TOKEN"
	envGeminiKey = "GEMINI_API_KEY"
	envGeminiMod = "GEMINI_MODEL"
)

// GenerateCmd creates a new design from a natural-language description.
type GenerateCmd struct {
	Prompt     string `arg:"" help:"System description to diagram"`
	Title      string `help:"Title for the stored design"`
	NoSnapshot bool   `help:"Skip rendering the snapshot image"`
}

// Run executes the generate command.
func (c *GenerateCmd) Run() error {
	ctx := context.Background()

	gen, err := newGenerator()
	if err != nil {
		return err
	}

	color.Cyan("Generating diagram...")
	g, err := gen.Generate(ctx, c.Prompt)
	if err != nil {
		return fmt.Errorf("generating diagram: %w", err)
	}

	title := c.Title
	if title == "" {
		title = c.Prompt
		if len(title) > 60 {
			title = title[:60]
		}
	}

	designs, err := loadStore(false)
	if err != nil {
		return err
	}
	defer func() { _ = designs.Close() }()

	d := store.NewDesign(title, c.Prompt)
	d.Nodes = g.Nodes
	d.Edges = g.Edges
	created, err := designs.Create(ctx, d)
	if err != nil {
		return fmt.Errorf("storing design: %w", err)
	}

	if !c.NoSnapshot {
		if err := renderToStore(ctx, designs, created); err != nil {
			fmt.Fprintf(os.Stderr, "snapshot skipped: %v\n", err)
		}
	}

	color.Green("✓ Created design %s", created.ID)
	fmt.Printf("  Title:  %s\n", created.Title)
	fmt.Printf("  Nodes:  %d\n", len(created.Nodes))
	fmt.Printf("  Edges:  %d\n", len(created.Edges))
	return nil
}

// ListCmd lists all stored designs.
type ListCmd struct{}

// Run executes the list command.
func (c *ListCmd) Run() error {
	designs, err := loadStore(true)
	if err != nil {
		return err
	}
	defer func() { _ = designs.Close() }()

	summaries, err := designs.List(context.Background())
	if err != nil {
		return fmt.Errorf("listing designs: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Println("No designs stored")
		return nil
	}

	for _, d := range summaries {
		fmt.Printf("\n  %s\n", d.ID)
		fmt.Printf("    Title:   %s\n", d.Title)
		fmt.Printf("    Size:    %d nodes, %d edges\n", d.NodeCount, d.EdgeCount)
		fmt.Printf("    Updated: %s\n", d.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// ShowCmd prints a design's nodes and edges.
type ShowCmd struct {
	ID   string `arg:"" help:"Design ID"`
	JSON bool   `help:"Emit raw JSON instead of a summary"`
}

// Run executes the show command.
func (c *ShowCmd) Run() error {
	designs, err := loadStore(true)
	if err != nil {
		return err
	}
	defer func() { _ = designs.Close() }()

	d, err := designs.Get(context.Background(), c.ID)
	if err != nil {
		return err
	}

	if c.JSON {
		out, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("%s (%s)\n", d.Title, d.ID)
	if d.Prompt != "" {
		fmt.Printf("Prompt: %s\n", d.Prompt)
	}
	fmt.Printf("\nNodes (%d):\n", len(d.Nodes))
	for _, n := range d.Nodes {
		fmt.Printf("  %s  [%s]  %q  (%.0f, %.0f)  %.0fx%.0f\n",
			n.ID, n.Data.Variant, n.Data.Label, n.Position.X, n.Position.Y, n.Width, n.Height)
	}
	fmt.Printf("\nEdges (%d):\n", len(d.Edges))
	for _, e := range d.Edges {
		fmt.Printf("  %s  %s -> %s  %q\n", e.ID, e.Source, e.Target, e.Label)
	}
	return nil
}

// AddNodeCmd adds a node to a design at a collision-free position.
type AddNodeCmd struct {
	ID      string `arg:"" help:"Design ID"`
	Variant string `arg:"" help:"Node variant (cloud, database, queue, compute, storage, api, user, decision, start, end, annotation)"`
	Label   string `help:"Node label (defaults to the variant name)"`
}

// Run executes the add-node command.
func (c *AddNodeCmd) Run() error {
	return withSession(c.ID, func(ctx context.Context, s *session.Session) error {
		node, err := s.AddNode(diagram.Variant(c.Variant))
		if err != nil {
			return err
		}
		if c.Label != "" {
			if err := s.RelabelNode(node.ID, c.Label); err != nil {
				return err
			}
		}
		color.Green("✓ Added node %s at (%.0f, %.0f)", node.ID, node.Position.X, node.Position.Y)
		return nil
	})
}

// ConnectCmd connects two nodes with an edge.
type ConnectCmd struct {
	ID     string `arg:"" help:"Design ID"`
	Source string `arg:"" help:"Source node ID"`
	Target string `arg:"" help:"Target node ID"`
	Label  string `help:"Edge label"`
}

// Run executes the connect command.
func (c *ConnectCmd) Run() error {
	return withSession(c.ID, func(ctx context.Context, s *session.Session) error {
		edge, err := s.Connect(c.Source, c.Source+"-right", c.Target, c.Target+"-left")
		if err != nil {
			return err
		}
		if c.Label != "" {
			s.Graph().RelabelEdge(edge.ID, c.Label)
		}
		color.Green("✓ Connected %s -> %s (edge %s)", c.Source, c.Target, edge.ID)
		return nil
	})
}

// DeleteNodeCmd deletes a node and its attached edges.
type DeleteNodeCmd struct {
	ID   string `arg:"" help:"Design ID"`
	Node string `arg:"" help:"Node ID"`
}

// Run executes the delete-node command.
func (c *DeleteNodeCmd) Run() error {
	return withSession(c.ID, func(ctx context.Context, s *session.Session) error {
		if err := s.DeleteNode(c.Node); err != nil {
			return err
		}
		color.Green("✓ Deleted node %s", c.Node)
		return nil
	})
}

// RenderCmd renders a design snapshot to a PNG file.
type RenderCmd struct {
	ID     string `arg:"" help:"Design ID"`
	Output string `short:"o" help:"Output file (defaults to <id>.png)"`
	Store  bool   `help:"Also store the snapshot alongside the design"`
}

// Run executes the render command.
func (c *RenderCmd) Run() error {
	ctx := context.Background()
	designs, err := loadStore(!c.Store)
	if err != nil {
		return err
	}
	defer func() { _ = designs.Close() }()

	d, err := designs.Get(ctx, c.ID)
	if err != nil {
		return err
	}

	r, err := snapshot.NewRenderer()
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}
	png, err := r.RenderPNG(d.Nodes, d.Edges)
	if err != nil {
		return fmt.Errorf("rendering design: %w", err)
	}

	out := c.Output
	if out == "" {
		out = c.ID + ".png"
	}
	if err := os.WriteFile(out, png, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	if c.Store {
		if err := designs.PutImage(ctx, c.ID, png); err != nil {
			return fmt.Errorf("storing snapshot: %w", err)
		}
	}

	color.Green("✓ Rendered %s (%d bytes)", out, len(png))
	return nil
}

// exportPayload is the on-disk design interchange shape.
type exportPayload struct {
	ID     string         `json:"id,omitempty"`
	Title  string         `json:"title,omitempty"`
	Prompt string         `json:"prompt,omitempty"`
	Nodes  []diagram.Node `json:"nodes"`
	Edges  []diagram.Edge `json:"edges"`
}

// ExportCmd writes a design to a JSON file.
type ExportCmd struct {
	ID     string `arg:"" help:"Design ID"`
	Output string `short:"o" help:"Output file (defaults to <id>.json)"`
}

// Run executes the export command.
func (c *ExportCmd) Run() error {
	designs, err := loadStore(true)
	if err != nil {
		return err
	}
	defer func() { _ = designs.Close() }()

	d, err := designs.Get(context.Background(), c.ID)
	if err != nil {
		return err
	}

	out := c.Output
	if out == "" {
		out = c.ID + ".json"
	}
	payload, err := json.MarshalIndent(exportPayload{
		ID:     d.ID,
		Title:  d.Title,
		Prompt: d.Prompt,
		Nodes:  d.Nodes,
		Edges:  d.Edges,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, payload, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	color.Green("✓ Exported %s", out)
	return nil
}

// ImportCmd creates a design from an exported JSON file.
type ImportCmd struct {
	File  string `arg:"" help:"Design JSON file"`
	Title string `help:"Title for the stored design (defaults to the file name)"`
}

// Run executes the import command.
func (c *ImportCmd) Run() error {
	raw, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("reading %s: %w", c.File, err)
	}
	var payload exportPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("parsing %s: %w", c.File, err)
	}

	// Reject inconsistent files before they reach the store.
	staged := diagram.NewGraph()
	if err := staged.Replace(payload.Nodes, remote.NormalizeEdges(payload.Edges, nil)); err != nil {
		return fmt.Errorf("validating %s: %w", c.File, err)
	}

	title := c.Title
	if title == "" {
		title = payload.Title
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(c.File), filepath.Ext(c.File))
	}

	designs, err := loadStore(false)
	if err != nil {
		return err
	}
	defer func() { _ = designs.Close() }()

	d := store.NewDesign(title, payload.Prompt)
	d.Nodes = staged.Nodes()
	d.Edges = staged.Edges()
	created, err := designs.Create(context.Background(), d)
	if err != nil {
		return fmt.Errorf("storing design: %w", err)
	}

	color.Green("✓ Imported %s as %s", c.File, created.ID)
	return nil
}

// WatchCmd re-renders PNG previews next to exported design files as they
// change on disk.
type WatchCmd struct {
	Dir string `arg:"" optional:"" default:"." help:"Directory of exported design JSON files"`
}

// Run executes the watch command.
func (c *WatchCmd) Run() error {
	r, err := snapshot.NewRenderer()
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-osSignalChannel()
		cancel()
	}()

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", c.Dir)
	err = watch.Watch(ctx, c.Dir, func(path string) {
		if err := rerender(r, path); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			return
		}
		color.Green("✓ %s", pngPath(path))
	})
	if err == context.Canceled {
		return nil
	}
	return err
}

func rerender(r *snapshot.Renderer, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var payload exportPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	png, err := r.RenderPNG(payload.Nodes, remote.NormalizeEdges(payload.Edges, nil))
	if err != nil {
		return err
	}
	return os.WriteFile(pngPath(path), png, 0o644)
}

func pngPath(jsonPath string) string {
	return strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath)) + ".png"
}

// ServeCmd runs the design store HTTP server.
type ServeCmd struct {
	Port int `short:"p" default:"8080" help:"Port to listen on"`
}

// Run executes the serve command.
func (c *ServeCmd) Run() error {
	designs, err := loadStore(false)
	if err != nil {
		return err
	}
	defer func() { _ = designs.Close() }()

	app := server.New(designs)
	fmt.Fprintf(os.Stderr, "Serving design store on :%d\n", c.Port)
	return server.Listen(app, c.Port)
}

// MCPCmd starts the MCP server on stdio.
type MCPCmd struct{}

// Run executes the mcp command.
func (c *MCPCmd) Run() error {
	ctx := context.Background()
	designs, err := loadStore(false)
	if err != nil {
		return err
	}
	defer func() { _ = designs.Close() }()

	var gen mcp.Generator
	if g, err := newGenerator(); err == nil {
		gen = g
	}
	r, err := snapshot.NewRenderer()
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}

	srv := mcp.NewServer(designs, gen, r)

	// Note: No output to stderr - MCP server uses stdio for JSON-RPC only
	return srv.Run(ctx, os.Stdin, os.Stdout)
}

// StatusCmd shows store location and design counts.
type StatusCmd struct{}

// Run executes the status command.
func (c *StatusCmd) Run() error {
	if url := os.Getenv(envRemoteURL); url != "" {
		fmt.Printf("Store:    remote (%s)\n", url)
	} else {
		fmt.Printf("Store:    local (%s)\n", dataDir())
	}

	designs, err := loadStore(true)
	if err != nil {
		return err
	}
	defer func() { _ = designs.Close() }()

	summaries, err := designs.List(context.Background())
	if err != nil {
		return fmt.Errorf("listing designs: %w", err)
	}

	nodes, edges := 0, 0
	for _, d := range summaries {
		nodes += d.NodeCount
		edges += d.EdgeCount
	}
	fmt.Printf("Designs:  %d\n", len(summaries))
	fmt.Printf("Nodes:    %d\n", nodes)
	fmt.Printf("Edges:    %d\n", edges)
	return nil
}

// CleanCmd deletes the local design store.
type CleanCmd struct {
	Force bool `short:"f" help:"Skip confirmation"`
}

// Run executes the clean command.
func (c *CleanCmd) Run() error {
	if os.Getenv(envRemoteURL) != "" {
		return fmt.Errorf("clean only applies to the local store; unset %s first", envRemoteURL)
	}

	dir := dataDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("no store found at %s. Nothing to clean", dir)
	}

	if !c.Force {
		fmt.Printf("Delete store at %s? [y/N] ", dir)
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted")
			return nil
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting store: %w", err)
	}

	color.Green("Deleted %s", dir)
	return nil
}

// Helper functions

// osSignalChannel returns a channel that receives OS signals for graceful shutdown.
func osSignalChannel() <-chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

func dataDir() string {
	if dir := os.Getenv(envDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowsketch"
	}
	return filepath.Join(home, ".flowsketch")
}

// loadStore opens the design store: the remote sync client when a remote
// URL is configured, the local Badger store otherwise. readOnly only
// affects the local store.
func loadStore(readOnly bool) (store.DesignStore, error) {
	if url := os.Getenv(envRemoteURL); url != "" {
		return remote.NewClient(url, os.Getenv(envAPIToken)), nil
	}

	dir := dataDir()
	dbPath := filepath.Join(dir, "badger")
	if readOnly {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("no store found at %s. Run 'flowsketch generate' first", dir)
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	designs := store.NewBadgerStore()
	if err := designs.Initialize(dbPath, readOnly); err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return designs, nil
}

func newGenerator() (*genai.Client, error) {
	key := os.Getenv(envGeminiKey)
	if key == "" {
		return nil, fmt.Errorf("%s is not set", envGeminiKey)
	}
	var opts []genai.Option
	if model := os.Getenv(envGeminiMod); model != "" {
		opts = append(opts, genai.WithModel(model))
	}
	return genai.NewClient(key, opts...), nil
}

// withSession hydrates an editing session for a design, applies fn, saves,
// and captures a fresh snapshot.
func withSession(designID string, fn func(ctx context.Context, s *session.Session) error) error {
	ctx := context.Background()
	designs, err := loadStore(false)
	if err != nil {
		return err
	}
	defer func() { _ = designs.Close() }()

	r, err := snapshot.NewRenderer()
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}

	s := session.New(designID, designs, session.WithCapturer(r))
	defer s.Dispose()
	if err := s.Hydrate(ctx); err != nil {
		return fmt.Errorf("loading design %s: %w", designID, err)
	}

	if err := fn(ctx, s); err != nil {
		return err
	}
	if err := s.Save(ctx); err != nil {
		return fmt.Errorf("saving design %s: %w", designID, err)
	}
	// The CLI exits immediately, so capture now instead of waiting for the
	// settle timer.
	if err := s.CaptureSnapshot(); err != nil {
		fmt.Fprintf(os.Stderr, "snapshot skipped: %v\n", err)
	}
	return nil
}

func renderToStore(ctx context.Context, designs store.DesignStore, d *store.Design) error {
	r, err := snapshot.NewRenderer()
	if err != nil {
		return err
	}
	png, err := r.RenderPNG(d.Nodes, d.Edges)
	if err != nil {
		return err
	}
	return designs.PutImage(ctx, d.ID, png)
}

// CLI is the root Kong command structure.
type CLI struct {
	Version kong.VersionFlag `help:"Show version information"`
	Verbose bool             `short:"v" help:"Enable verbose output"`
	Quiet   bool             `short:"q" help:"Suppress non-essential output"`

	// Commands
	Generate   GenerateCmd   `cmd:"" help:"Generate a design from a description"`
	List       ListCmd       `cmd:"" help:"List all stored designs"`
	Show       ShowCmd       `cmd:"" help:"Show a design's nodes and edges"`
	AddNode    AddNodeCmd    `cmd:"" help:"Add a node to a design"`
	Connect    ConnectCmd    `cmd:"" help:"Connect two nodes with an edge"`
	DeleteNode DeleteNodeCmd `cmd:"" help:"Delete a node and its edges"`
	Render     RenderCmd     `cmd:"" help:"Render a design snapshot to PNG"`
	Export     ExportCmd     `cmd:"" help:"Export a design to a JSON file"`
	Import     ImportCmd     `cmd:"" help:"Import a design from a JSON file"`
	Watch      WatchCmd      `cmd:"" help:"Re-render previews for exported designs on change"`
	Serve      ServeCmd      `cmd:"" help:"Run the design store HTTP server"`
	MCP        MCPCmd        `cmd:"" help:"Start MCP server (stdio transport)"`
	Status     StatusCmd     `cmd:"" help:"Show store location and design counts"`
	Clean      CleanCmd      `cmd:"" help:"Delete the local design store"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	_ = godotenv.Load()

	kongCtx := kong.Parse(c,
		kong.Name("flowsketch"),
		kong.Description("AI-assisted system architecture diagram engine"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)

	return kongCtx.Run()
}
