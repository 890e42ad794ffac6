// Package server exposes a DesignStore over HTTP, implementing the design
// store wire contract the remote sync adapter speaks. It exists so the CLI
// and editor clients can run against a local dev server end to end.
package server

import (
	"errors"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v3"

	"github.com/flowsketch/flowsketch-go/internal/diagram"
	"github.com/flowsketch/flowsketch-go/internal/remote"
	"github.com/flowsketch/flowsketch-go/internal/store"
)

type savePayload struct {
	Nodes []diagram.Node `json:"nodes"`
	Edges []diagram.Edge `json:"edges"`
}

// New builds the fiber app serving the design store contract.
func New(designs store.DesignStore) *fiber.App {
	app := fiber.New(fiber.Config{AppName: "flowsketch"})

	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// ── Designs ───────────────────────────────────────────────────────
	app.Post("/designs/create-design", func(c fiber.Ctx) error {
		var d store.Design
		if err := c.Bind().JSON(&d); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		d.Edges = remote.NormalizeEdges(d.Edges, nil)
		created, err := designs.Create(c.Context(), &d)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(fiber.Map{"design": created})
	})

	app.Get("/designs/get-design/:id", func(c fiber.Ctx) error {
		d, err := designs.Get(c.Context(), c.Params("id"))
		if errors.Is(err, store.ErrDesignNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "design not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		d.Edges = remote.NormalizeEdges(d.Edges, nil)
		return c.JSON(fiber.Map{"design": d})
	})

	app.Get("/designs/all-designs", func(c fiber.Ctx) error {
		summaries, err := designs.List(c.Context())
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		if summaries == nil {
			summaries = []store.DesignSummary{}
		}
		return c.JSON(fiber.Map{"designs": summaries})
	})

	app.Patch("/designs/save-design/:id", func(c fiber.Ctx) error {
		var payload savePayload
		if err := c.Bind().JSON(&payload); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		payload.Edges = remote.NormalizeEdges(payload.Edges, nil)
		saved, err := designs.Save(c.Context(), c.Params("id"), payload.Nodes, payload.Edges)
		if errors.Is(err, store.ErrDesignNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "design not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		// Response is the canonical copy the client adopts.
		return c.JSON(savePayload{Nodes: saved.Nodes, Edges: saved.Edges})
	})

	app.Delete("/designs/delete-design/:id", func(c fiber.Ctx) error {
		err := designs.Delete(c.Context(), c.Params("id"))
		if errors.Is(err, store.ErrDesignNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "design not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(204)
	})

	// ── Snapshot images ───────────────────────────────────────────────
	app.Post("/designs/upload-image/:id", func(c fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "missing file"})
		}
		f, err := fh.Open()
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "unreadable file"})
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "unreadable file"})
		}
		err = designs.PutImage(c.Context(), c.Params("id"), data)
		if errors.Is(err, store.ErrDesignNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "design not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "image stored"})
	})

	app.Get("/designs/get-image/:id", func(c fiber.Ctx) error {
		png, err := designs.GetImage(c.Context(), c.Params("id"))
		if errors.Is(err, store.ErrDesignNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "image not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		c.Set("Content-Type", "image/png")
		return c.Send(png)
	})

	return app
}

// Listen runs the app on the given port.
func Listen(app *fiber.App, port int) error {
	return app.Listen(fmt.Sprintf(":%d", port))
}
