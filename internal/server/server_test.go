package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsketch/flowsketch-go/internal/diagram"
	"github.com/flowsketch/flowsketch-go/internal/store"
)

func TestHealthz(t *testing.T) {
	t.Parallel()

	designs := store.NewMemoryStore()
	app := New(designs)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetDesign(t *testing.T) {
	t.Parallel()

	designs := store.NewMemoryStore()
	app := New(designs)
	d := store.NewDesign("Checkout", "")
	_, err := designs.Create(context.Background(), d)
	require.NoError(t, err)

	t.Run("Found", func(t *testing.T) {
		t.Parallel()
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/designs/get-design/"+d.ID, nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var env struct {
			Design store.Design `json:"design"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
		assert.Equal(t, d.ID, env.Design.ID)
		assert.Equal(t, "Checkout", env.Design.Title)
	})

	t.Run("NotFound", func(t *testing.T) {
		t.Parallel()
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/designs/get-design/nope", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestCreateDesign(t *testing.T) {
	t.Parallel()

	designs := store.NewMemoryStore()
	app := New(designs)

	body, err := json.Marshal(store.Design{Title: "New design"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/designs/create-design", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var env struct {
		Design store.Design `json:"design"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.NotEmpty(t, env.Design.ID)
	assert.Equal(t, store.VisibilityPrivate, env.Design.Visibility)
}

func TestSaveDesign(t *testing.T) {
	t.Parallel()

	designs := store.NewMemoryStore()
	app := New(designs)
	d := store.NewDesign("Checkout", "")
	_, err := designs.Create(context.Background(), d)
	require.NoError(t, err)

	n := diagram.NewNode(d.ID, diagram.VariantQueue, diagram.Position{X: 10})
	body, err := json.Marshal(map[string]any{
		"nodes": []diagram.Node{*n},
		"edges": []diagram.Edge{},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPatch, "/designs/save-design/"+d.ID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The response is the canonical copy: bare nodes and edges.
	var canonical struct {
		Nodes []diagram.Node `json:"nodes"`
		Edges []diagram.Edge `json:"edges"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&canonical))
	require.Len(t, canonical.Nodes, 1)
	assert.Equal(t, n.ID, canonical.Nodes[0].ID)

	stored, err := designs.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Nodes, 1)
}

func TestSaveDesignStripsMalformedEdges(t *testing.T) {
	t.Parallel()

	designs := store.NewMemoryStore()
	app := New(designs)
	d := store.NewDesign("Checkout", "")
	_, err := designs.Create(context.Background(), d)
	require.NoError(t, err)

	a := diagram.NewNode(d.ID, diagram.VariantAPI, diagram.Position{})
	b := diagram.NewNode(d.ID, diagram.VariantDatabase, diagram.Position{X: 500})
	body, err := json.Marshal(map[string]any{
		"nodes": []diagram.Node{*a, *b},
		"edges": []diagram.Edge{{
			ID:           "e-bad",
			Source:       a.ID,
			Target:       b.ID,
			SourceHandle: a.ID + "-right", // malformed: no role suffix
			TargetHandle: b.ID + "-left-target",
		}},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPatch, "/designs/save-design/"+d.ID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var canonical struct {
		Edges []diagram.Edge `json:"edges"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&canonical))
	assert.Empty(t, canonical.Edges)
}

func TestListDesigns(t *testing.T) {
	t.Parallel()

	designs := store.NewMemoryStore()
	app := New(designs)

	t.Run("EmptyStoreReturnsEmptyArray", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/designs/all-designs", nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var env struct {
			Designs []store.DesignSummary `json:"designs"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
		assert.NotNil(t, env.Designs)
		assert.Empty(t, env.Designs)
	})

	t.Run("ListsAll", func(t *testing.T) {
		_, err := designs.Create(context.Background(), store.NewDesign("one", ""))
		require.NoError(t, err)
		_, err = designs.Create(context.Background(), store.NewDesign("two", ""))
		require.NoError(t, err)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/designs/all-designs", nil))
		require.NoError(t, err)

		var env struct {
			Designs []store.DesignSummary `json:"designs"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
		assert.Len(t, env.Designs, 2)
	})
}

func TestDeleteDesign(t *testing.T) {
	t.Parallel()

	designs := store.NewMemoryStore()
	app := New(designs)
	d := store.NewDesign("doomed", "")
	_, err := designs.Create(context.Background(), d)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/designs/delete-design/"+d.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/designs/delete-design/"+d.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestImageRoundTrip(t *testing.T) {
	t.Parallel()

	designs := store.NewMemoryStore()
	app := New(designs)
	d := store.NewDesign("with image", "")
	_, err := designs.Create(context.Background(), d)
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "diagram.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/designs/upload-image/"+d.ID, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/designs/get-image/"+d.ID, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", buf.String())
}

func TestUploadImageMissingFile(t *testing.T) {
	t.Parallel()

	designs := store.NewMemoryStore()
	app := New(designs)
	d := store.NewDesign("no file", "")
	_, err := designs.Create(context.Background(), d)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/designs/upload-image/"+d.ID, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
