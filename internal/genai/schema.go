package genai

import (
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/flowsketch/flowsketch-go/internal/diagram"
)

// handleRefRegex is the wire grammar for edge handle references.
const handleRefRegex = `^.+-(left|right|top-[0-9]+|bottom-[0-9]+)-(source|target)$`

// graphSchema describes the shape the model must return. Anything that
// fails validation is rejected wholesale; no partial graph is ever applied.
func graphSchema() *jsonschema.Schema {
	variants := make([]any, 0, len(diagram.Variants))
	for v := range diagram.Variants {
		variants = append(variants, string(v))
	}

	position := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"x": {Type: "number"},
			"y": {Type: "number"},
		},
		Required: []string{"x", "y"},
	}

	node := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"id":       {Type: "string", MinLength: intPtr(1)},
			"type":     {Type: "string"},
			"position": position,
			"width":    {Type: "number"},
			"height":   {Type: "number"},
			"data": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"variant": {Type: "string", Enum: variants},
					"name":    {Type: "string"},
					"label":   {Type: "string"},
					"color":   {Type: "string", Pattern: "^#[0-9a-fA-F]{3,6}$"},
					"icon":    {Type: "string"},
				},
				Required: []string{"variant", "label"},
			},
		},
		Required: []string{"id", "position", "data"},
	}

	edge := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"id":           {Type: "string", MinLength: intPtr(1)},
			"source":       {Type: "string", MinLength: intPtr(1)},
			"target":       {Type: "string", MinLength: intPtr(1)},
			"sourceHandle": {Type: "string", Pattern: handleRefRegex},
			"targetHandle": {Type: "string", Pattern: handleRefRegex},
			"label":        {Type: "string"},
			"style": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"stroke":      {Type: "string"},
					"strokeWidth": {Type: "number"},
				},
			},
		},
		Required: []string{"id", "source", "target", "sourceHandle", "targetHandle"},
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"nodes": {Type: "array", Items: node},
			"edges": {Type: "array", Items: edge},
		},
		Required: []string{"nodes", "edges"},
	}
}

func intPtr(n int) *int { return &n }
