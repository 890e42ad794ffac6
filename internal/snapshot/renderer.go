// Package snapshot renders a diagram graph to a PNG raster.
//
// The raster is a derived artifact persisted next to the design for preview
// purposes. Capture dimensions come from the bounding box of all nodes plus
// fixed padding, with the zoom clamped so very large or very small diagrams
// still fit a reasonable canvas. A missing snapshot never blocks saving or
// editing; render failures are the caller's to log and swallow.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/flowsketch/flowsketch-go/internal/diagram"
)

// ErrEmptyGraph is returned when there is nothing to capture.
var ErrEmptyGraph = errors.New("snapshot: no nodes to capture")

// Capture geometry defaults, matching the editor's export settings.
const (
	// Padding is added on every side of the node bounding box.
	Padding = 60

	// MinZoom and MaxZoom clamp the fit transform.
	MinZoom = 0.5
	MaxZoom = 2.0

	// maxCanvasDim caps either canvas dimension before zoom clamping.
	maxCanvasDim = 2400
)

var (
	colorBorder    = color.RGBA{75, 85, 99, 255}    // #4B5563
	colorText      = color.RGBA{31, 41, 55, 255}    // #1f2937
	colorNameText  = color.RGBA{107, 114, 128, 255} // #6b7280
	colorFallback  = color.RGBA{229, 231, 235, 255} // unknown-variant fill
	colorEdgeStyle = colorBorder                    // default edge stroke
)

// Renderer rasterizes diagram graphs.
type Renderer struct {
	labelFace font.Face
	nameFace  font.Face
}

// NewRenderer creates a renderer using the embedded Go Regular font.
func NewRenderer() (*Renderer, error) {
	fnt, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}
	labelFace, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size: 18, DPI: 72, Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("creating label face: %w", err)
	}
	nameFace, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size: 13, DPI: 72, Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("creating name face: %w", err)
	}
	return &Renderer{labelFace: labelFace, nameFace: nameFace}, nil
}

// Render rasterizes the graph. Edges are drawn beneath nodes so node fills
// stay readable.
func (r *Renderer) Render(nodes []diagram.Node, edges []diagram.Edge) (image.Image, error) {
	if len(nodes) == 0 {
		return nil, ErrEmptyGraph
	}

	minX, minY, maxX, maxY := nodeBounds(nodes)
	w := maxX - minX + 2*Padding
	h := maxY - minY + 2*Padding

	zoom := 1.0
	if w > maxCanvasDim {
		zoom = maxCanvasDim / w
	}
	if h*zoom > maxCanvasDim {
		zoom = maxCanvasDim / h
	}
	zoom = math.Max(MinZoom, math.Min(MaxZoom, zoom))

	canvasW := int(math.Ceil(w * zoom))
	canvasH := int(math.Ceil(h * zoom))
	img := image.NewRGBA(image.Rect(0, 0, canvasW, canvasH))

	// Graph-to-canvas transform.
	tx := func(p diagram.Position) (int, int) {
		return int((p.X - minX + Padding) * zoom), int((p.Y - minY + Padding) * zoom)
	}

	byID := make(map[string]*diagram.Node, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}

	for i := range edges {
		r.drawEdge(img, &edges[i], byID, tx, zoom)
	}
	for i := range nodes {
		r.drawNode(img, &nodes[i], tx, zoom)
	}
	return img, nil
}

// RenderPNG rasterizes the graph and encodes it as PNG.
func (r *Renderer) RenderPNG(nodes []diagram.Node, edges []diagram.Edge) ([]byte, error) {
	img, err := r.Render(nodes, edges)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// Encode writes an already rendered image as PNG.
func (r *Renderer) Encode(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

func (r *Renderer) drawEdge(img *image.RGBA, e *diagram.Edge, byID map[string]*diagram.Node, tx func(diagram.Position) (int, int), zoom float64) {
	src, ok := byID[e.Source]
	if !ok {
		return
	}
	dst, ok := byID[e.Target]
	if !ok {
		return
	}
	from := handleAnchor(src, e.SourceHandle)
	to := handleAnchor(dst, e.TargetHandle)

	stroke := colorEdgeStyle
	if c, ok := parseHexColor(e.Style.Stroke); ok {
		stroke = c
	}
	width := e.Style.StrokeWidth
	if width <= 0 {
		width = diagram.DefaultEdgeStrokeWidth
	}
	x1, y1 := tx(from)
	x2, y2 := tx(to)
	drawThickLine(img, x1, y1, x2, y2, int(math.Max(1, width*zoom/2)), stroke)
}

func (r *Renderer) drawNode(img *image.RGBA, n *diagram.Node, tx func(diagram.Position) (int, int), zoom float64) {
	x, y, w, h := n.Rect()
	x0, y0 := tx(diagram.Position{X: x, Y: y})
	x1, y1 := tx(diagram.Position{X: x + w, Y: y + h})

	fill := colorFallback
	if c, ok := parseHexColor(n.Data.Color); ok {
		fill = c
	}
	fillRect(img, x0, y0, x1, y1, fill)
	strokeRect(img, x0, y0, x1, y1, int(math.Max(1, 2*zoom)), colorBorder)

	cx := (x0 + x1) / 2
	cy := (y0 + y1) / 2
	label := n.Data.Label
	if label == "" {
		label = n.Data.Name
	}
	drawTextCentered(img, r.labelFace, cx, cy-4, label, colorText)
	if n.Data.Name != "" && n.Data.Name != label {
		drawTextCentered(img, r.nameFace, cx, cy+16, n.Data.Name, colorNameText)
	}
}

// handleAnchor resolves a wire handle reference to its anchor point on the
// node; unknown references fall back to the node center.
func handleAnchor(n *diagram.Node, ref string) diagram.Position {
	base := diagram.StripRole(ref)
	for _, hd := range n.Handles() {
		if hd.ID == base {
			return n.HandlePoint(hd)
		}
	}
	x, y, w, h := n.Rect()
	return diagram.Position{X: x + w/2, Y: y + h/2}
}

func nodeBounds(nodes []diagram.Node) (minX, minY, maxX, maxY float64) {
	for i := range nodes {
		x, y, w, h := nodes[i].Rect()
		if i == 0 {
			minX, minY, maxX, maxY = x, y, x+w, y+h
			continue
		}
		minX = math.Min(minX, x)
		minY = math.Min(minY, y)
		maxX = math.Max(maxX, x+w)
		maxY = math.Max(maxY, y+h)
	}
	return minX, minY, maxX, maxY
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.Set(x, y, c)
		}
	}
}

func strokeRect(img *image.RGBA, x0, y0, x1, y1, w int, c color.Color) {
	for i := 0; i < w; i++ {
		for x := x0; x < x1; x++ {
			img.Set(x, y0+i, c)
			img.Set(x, y1-1-i, c)
		}
		for y := y0; y < y1; y++ {
			img.Set(x0+i, y, c)
			img.Set(x1-1-i, y, c)
		}
	}
}

// drawThickLine draws a line of the given half-width using integer stepping.
func drawThickLine(img *image.RGBA, x1, y1, x2, y2, halfWidth int, c color.Color) {
	dx := math.Abs(float64(x2 - x1))
	dy := math.Abs(float64(y2 - y1))
	steps := int(math.Max(dx, dy))
	if steps == 0 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := int(float64(x1) + t*float64(x2-x1))
		y := int(float64(y1) + t*float64(y2-y1))
		for oy := -halfWidth; oy <= halfWidth; oy++ {
			for ox := -halfWidth; ox <= halfWidth; ox++ {
				img.Set(x+ox, y+oy, c)
			}
		}
	}
}

func drawTextCentered(img *image.RGBA, face font.Face, x, y int, text string, c color.Color) {
	if text == "" {
		return
	}
	width := font.MeasureString(face, text).Ceil()
	metrics := face.Metrics()
	baselineY := y + metrics.Ascent.Ceil()/2

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(x - width/2),
			Y: fixed.I(baselineY),
		},
	}
	d.DrawString(text)
}

// parseHexColor parses #RGB and #RRGGBB colors.
func parseHexColor(s string) (color.RGBA, bool) {
	if len(s) == 0 || s[0] != '#' {
		return color.RGBA{}, false
	}
	hex := s[1:]
	var r, g, b uint8
	switch len(hex) {
	case 3:
		rv, ok1 := hexNibble(hex[0])
		gv, ok2 := hexNibble(hex[1])
		bv, ok3 := hexNibble(hex[2])
		if !ok1 || !ok2 || !ok3 {
			return color.RGBA{}, false
		}
		r, g, b = rv*17, gv*17, bv*17
	case 6:
		var vals [3]uint8
		for i := 0; i < 3; i++ {
			hi, ok1 := hexNibble(hex[i*2])
			lo, ok2 := hexNibble(hex[i*2+1])
			if !ok1 || !ok2 {
				return color.RGBA{}, false
			}
			vals[i] = hi<<4 | lo
		}
		r, g, b = vals[0], vals[1], vals[2]
	default:
		return color.RGBA{}, false
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}, true
}

func hexNibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
