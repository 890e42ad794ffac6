package genai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsketch/flowsketch-go/internal/diagram"
)

const sampleGraphJSON = `{
  "nodes": [
    {
      "id": "n-api",
      "type": "baseNode",
      "position": { "x": 50, "y": 200 },
      "width": 225,
      "height": 100,
      "data": {
        "variant": "api",
        "name": "API",
        "icon": "AiOutlineApi",
        "label": "Gateway",
        "color": "#FFDFD3"
      }
    },
    {
      "id": "n-db",
      "type": "baseNode",
      "position": { "x": 550, "y": 200 },
      "width": 225,
      "height": 100,
      "data": {
        "variant": "database",
        "name": "Database",
        "icon": "FaDatabase",
        "label": "Orders",
        "color": "#B4F8C8"
      }
    }
  ],
  "edges": [
    {
      "id": "e-1",
      "source": "n-api",
      "sourceHandle": "n-api-right-source",
      "target": "n-db",
      "targetHandle": "n-db-left-target",
      "label": "persists",
      "style": { "stroke": "#FFDFD3", "strokeWidth": 6 }
    }
  ]
}`

func TestParseGraph(t *testing.T) {
	t.Parallel()

	t.Run("BareObject", func(t *testing.T) {
		t.Parallel()
		g, err := ParseGraph(sampleGraphJSON)
		require.NoError(t, err)
		require.Len(t, g.Nodes, 2)
		require.Len(t, g.Edges, 1)
		assert.Equal(t, "n-api", g.Nodes[0].ID)
		assert.Equal(t, diagram.VariantAPI, g.Nodes[0].Data.Variant)
		assert.Equal(t, "persists", g.Edges[0].Label)
	})

	t.Run("FencedJSON", func(t *testing.T) {
		t.Parallel()
		g, err := ParseGraph("```json\n" + sampleGraphJSON + "\n```")
		require.NoError(t, err)
		assert.Len(t, g.Nodes, 2)
	})

	t.Run("UntaggedFence", func(t *testing.T) {
		t.Parallel()
		g, err := ParseGraph("```\n" + sampleGraphJSON + "\n```")
		require.NoError(t, err)
		assert.Len(t, g.Nodes, 2)
	})

	t.Run("ProsePrefix", func(t *testing.T) {
		t.Parallel()
		g, err := ParseGraph("Here is the architecture you asked for:\n\n" + sampleGraphJSON)
		require.NoError(t, err)
		assert.Len(t, g.Nodes, 2)
	})

	t.Run("NoJSON", func(t *testing.T) {
		t.Parallel()
		_, err := ParseGraph("I could not produce a diagram for that request.")
		assert.ErrorIs(t, err, ErrNoJSON)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		t.Parallel()
		_, err := ParseGraph(`{"nodes": [`)
		assert.ErrorIs(t, err, ErrNoJSON)
	})

	t.Run("UnknownVariantRejected", func(t *testing.T) {
		t.Parallel()
		bad := strings.Replace(sampleGraphJSON, `"variant": "api"`, `"variant": "mainframe"`, 1)
		_, err := ParseGraph(bad)
		assert.ErrorIs(t, err, ErrInvalidGraph)
	})

	t.Run("MalformedHandleRefRejected", func(t *testing.T) {
		t.Parallel()
		bad := strings.Replace(sampleGraphJSON, `"n-api-right-source"`, `"n-api-right"`, 1)
		_, err := ParseGraph(bad)
		assert.ErrorIs(t, err, ErrInvalidGraph)
	})

	t.Run("MissingEdgesKeyRejected", func(t *testing.T) {
		t.Parallel()
		_, err := ParseGraph(`{"nodes": []}`)
		assert.ErrorIs(t, err, ErrInvalidGraph)
	})

	t.Run("FillsDefaults", func(t *testing.T) {
		t.Parallel()
		sparse := strings.Replace(sampleGraphJSON, `"type": "baseNode",`, ``, 2)
		sparse = strings.Replace(sparse, `"label": "persists",`, ``, 1)
		g, err := ParseGraph(sparse)
		require.NoError(t, err)
		assert.Equal(t, diagram.NodeType, g.Nodes[0].Type)
		assert.Equal(t, diagram.DefaultEdgeLabel, g.Edges[0].Label)
	})
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	p := BuildPrompt("an order processing pipeline")
	assert.True(t, strings.HasSuffix(p, "an order processing pipeline"))
	assert.Contains(t, p, "[SYSTEM]")
	assert.Contains(t, p, "[USER]")

	// The prompt's catalog must stay in lockstep with the variant catalog.
	for v, def := range diagram.Variants {
		assert.Contains(t, p, string(v), "variant %s missing from prompt", v)
		assert.Contains(t, p, def.Color, "color for %s missing from prompt", v)
	}
}

func TestClient_Generate(t *testing.T) {
	t.Parallel()

	t.Run("Success", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
			assert.Equal(t, "test-key", r.URL.Query().Get("key"))

			var req generateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.Contents, 1)
			assert.Contains(t, req.Contents[0].Parts[0].Text, "a payments system")

			json.NewEncoder(w).Encode(map[string]any{
				"candidates": []map[string]any{{
					"content": map[string]any{
						"parts": []map[string]any{{"text": sampleGraphJSON}},
					},
				}},
			})
		}))
		defer srv.Close()

		c := NewClient("test-key", WithBaseURL(srv.URL))
		g, err := c.Generate(context.Background(), "a payments system")
		require.NoError(t, err)
		assert.Len(t, g.Nodes, 2)
	})

	t.Run("ModelOverride", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1beta/models/gemini-2.5-pro:generateContent", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]any{
				"candidates": []map[string]any{{
					"content": map[string]any{
						"parts": []map[string]any{{"text": sampleGraphJSON}},
					},
				}},
			})
		}))
		defer srv.Close()

		c := NewClient("k", WithBaseURL(srv.URL), WithModel("gemini-2.5-pro"))
		_, err := c.Generate(context.Background(), "anything")
		assert.NoError(t, err)
	})

	t.Run("APIError", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewClient("k", WithBaseURL(srv.URL)).Generate(context.Background(), "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("EmptyCandidates", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
		}))
		defer srv.Close()

		_, err := NewClient("k", WithBaseURL(srv.URL)).Generate(context.Background(), "x")
		assert.ErrorIs(t, err, ErrNoJSON)
	})
}
