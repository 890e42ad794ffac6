// Package genai converts natural-language system descriptions into diagram
// graphs by calling a Gemini-style generateContent endpoint.
//
// The model's output is treated as untrusted: the response text is searched
// for a JSON payload, validated against a JSON Schema covering the variant
// catalog and the handle-reference grammar, and only then decoded. Any
// failure along the way is a generation failure — nothing is ever partially
// applied to an existing graph.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/flowsketch/flowsketch-go/internal/diagram"
)

// DefaultModel is the generation model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// DefaultBaseURL is the Gemini API endpoint root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

var (
	// ErrNoJSON is returned when the response contains no JSON payload.
	ErrNoJSON = errors.New("genai: no JSON object found in model response")

	// ErrInvalidGraph is returned when the payload fails schema validation.
	ErrInvalidGraph = errors.New("genai: model output does not conform to the graph schema")
)

// Graph is a validated generation result.
type Graph struct {
	Nodes []diagram.Node `json:"nodes"`
	Edges []diagram.Edge `json:"edges"`
}

// Client calls the generation endpoint.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the generation model.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithBaseURL overrides the API endpoint, for tests and proxies.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a generation client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		model:   DefaultModel,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// generateContent request/response wire types.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate converts a free-text description into a validated graph.
func (c *Client) Generate(ctx context.Context, userPrompt string) (*Graph, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: BuildPrompt(userPrompt)}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling generation API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("generation API: %s", resp.Status)
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("decoding generation response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, ErrNoJSON
	}

	return ParseGraph(gr.Candidates[0].Content.Parts[0].Text)
}

// fenceRe matches a fenced code block, optionally tagged json.
var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParseGraph extracts, validates, and decodes a graph from raw model text.
func ParseGraph(raw string) (*Graph, error) {
	payload := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(payload); m != nil {
		payload = m[1]
	}
	if !strings.HasPrefix(payload, "{") {
		// Models sometimes prepend prose; fall back to the first object.
		if i := strings.Index(payload, "{"); i >= 0 {
			payload = payload[i:]
		} else {
			return nil, ErrNoJSON
		}
	}

	var instance any
	if err := json.Unmarshal([]byte(payload), &instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}

	resolved, err := resolvedSchema()
	if err != nil {
		return nil, err
	}
	if err := resolved.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}

	var g Graph
	if err := json.Unmarshal([]byte(payload), &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}
	for i := range g.Nodes {
		if g.Nodes[i].Type == "" {
			g.Nodes[i].Type = diagram.NodeType
		}
	}
	for i := range g.Edges {
		if g.Edges[i].Label == "" {
			g.Edges[i].Label = diagram.DefaultEdgeLabel
		}
	}
	return &g, nil
}

var resolveOnce = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	return graphSchema().Resolve(nil)
})

func resolvedSchema() (*jsonschema.Resolved, error) {
	resolved, err := resolveOnce()
	if err != nil {
		return nil, fmt.Errorf("resolving graph schema: %w", err)
	}
	return resolved, nil
}
