// Package remote implements the sync adapter for a remote design store.
//
// It speaks the design-store wire contract (get-design, save-design,
// upload-image, all-designs, delete-design) and normalizes payloads on the
// way in: missing edge labels get the default directional glyph, and edges
// carrying malformed handle references are stripped before anything reaches
// the graph store.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/flowsketch/flowsketch-go/internal/diagram"
	"github.com/flowsketch/flowsketch-go/internal/store"
)

// Client talks to a remote design store over HTTP. It satisfies the same
// DesignStore interface as the local stores, so sessions are indifferent to
// where a design lives.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logf    func(format string, args ...any)
}

// NewClient creates a client for the store at baseURL. token may be empty
// for unauthenticated dev servers.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logf:    log.Printf,
	}
}

type designEnvelope struct {
	Design *store.Design `json:"design"`
}

type savePayload struct {
	Nodes []diagram.Node `json:"nodes"`
	Edges []diagram.Edge `json:"edges"`
}

type listEnvelope struct {
	Designs []store.DesignSummary `json:"designs"`
}

// Get implements DesignStore. The returned design has edge labels
// normalized and malformed handle references stripped.
func (c *Client) Get(ctx context.Context, designID string) (*store.Design, error) {
	var env designEnvelope
	if err := c.do(ctx, http.MethodGet, "/designs/get-design/"+designID, nil, &env); err != nil {
		return nil, err
	}
	if env.Design == nil {
		return nil, store.ErrDesignNotFound
	}
	env.Design.Edges = NormalizeEdges(env.Design.Edges, c.logf)
	return env.Design, nil
}

// Save implements DesignStore. The server's response is the canonical copy
// that callers adopt as their new state.
func (c *Client) Save(ctx context.Context, designID string, nodes []diagram.Node, edges []diagram.Edge) (*store.Design, error) {
	payload := savePayload{Nodes: nodes, Edges: edges}
	var resp savePayload
	if err := c.do(ctx, http.MethodPatch, "/designs/save-design/"+designID, payload, &resp); err != nil {
		return nil, err
	}
	return &store.Design{
		ID:    designID,
		Nodes: resp.Nodes,
		Edges: NormalizeEdges(resp.Edges, c.logf),
	}, nil
}

// Create implements DesignStore.
func (c *Client) Create(ctx context.Context, d *store.Design) (*store.Design, error) {
	var env designEnvelope
	if err := c.do(ctx, http.MethodPost, "/designs/create-design", d, &env); err != nil {
		return nil, err
	}
	if env.Design == nil {
		return nil, fmt.Errorf("remote: create returned no design")
	}
	return env.Design, nil
}

// Delete implements DesignStore.
func (c *Client) Delete(ctx context.Context, designID string) error {
	return c.do(ctx, http.MethodDelete, "/designs/delete-design/"+designID, nil, nil)
}

// List implements DesignStore.
func (c *Client) List(ctx context.Context) ([]store.DesignSummary, error) {
	var env listEnvelope
	if err := c.do(ctx, http.MethodGet, "/designs/all-designs", nil, &env); err != nil {
		return nil, err
	}
	return env.Designs, nil
}

// PutImage implements DesignStore. The snapshot upload is fire-and-forget
// from the save flow's perspective; callers swallow the error after logging.
func (c *Client) PutImage(ctx context.Context, designID string, png []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "diagram-"+designID+".png")
	if err != nil {
		return fmt.Errorf("building upload: %w", err)
	}
	if _, err := fw.Write(png); err != nil {
		return fmt.Errorf("building upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("building upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/designs/upload-image/"+designID, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("uploading image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("uploading image: %s", resp.Status)
	}
	return nil
}

// GetImage implements DesignStore.
func (c *Client) GetImage(ctx context.Context, designID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/designs/get-image/"+designID, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, store.ErrDesignNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetching image: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Close implements DesignStore.
func (c *Client) Close() error { return nil }

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return store.ErrDesignNotFound
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// NormalizeEdges applies the wire contract's inbound guarantees: missing
// labels become the default directional glyph, and edges whose handle
// references do not follow the {nodeId}-{slot}-{source|target} grammar are
// stripped rather than forwarded into the store.
func NormalizeEdges(edges []diagram.Edge, logf func(format string, args ...any)) []diagram.Edge {
	if logf == nil {
		logf = log.Printf
	}
	out := make([]diagram.Edge, 0, len(edges))
	for _, e := range edges {
		if !diagram.ValidHandleRef(e.SourceHandle) || !diagram.ValidHandleRef(e.TargetHandle) {
			logf("remote: dropping edge %s with malformed handle reference", e.ID)
			continue
		}
		if e.Label == "" {
			e.Label = diagram.DefaultEdgeLabel
		}
		out = append(out, e)
	}
	return out
}
