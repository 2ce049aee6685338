// Package templates holds the built-in output templates and their renderer.
package templates

import (
	"fmt"

	"git.home.luguber.info/inful/docgen/internal/errors"
	"git.home.luguber.info/inful/docgen/internal/models"
)

// Descriptor describes one output template.
type Descriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Layout      string `json:"-"`
}

// Catalog resolves template identifiers to descriptors. The identifier
// "minimal" always resolves; it is the fallback target when selection fails.
type Catalog struct {
	byID map[string]Descriptor
}

// NewCatalog returns the built-in catalog.
func NewCatalog() *Catalog {
	c := &Catalog{byID: make(map[string]Descriptor)}
	for _, d := range builtins() {
		c.byID[d.ID] = d
	}
	return c
}

// Lookup resolves a template id.
func (c *Catalog) Lookup(id string) (Descriptor, error) {
	d, ok := c.byID[id]
	if !ok {
		return Descriptor{}, errors.New(errors.CategoryTemplate, errors.SeverityError,
			fmt.Sprintf("unknown template id %q", id))
	}
	return d, nil
}

// Has reports whether a template id resolves.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// IDs lists the known template identifiers.
func (c *Catalog) IDs() []string {
	out := make([]string, 0, len(c.byID))
	for id := range c.byID {
		out = append(out, id)
	}
	return out
}

// Select picks the template id for a run: an explicit override wins, then the
// document's hint, then the standard default. The returned id is not yet
// resolved; resolution failures flow through the pipeline failure policy.
func (c *Catalog) Select(override, hint string) string {
	if override != "" {
		return override
	}
	if hint != "" {
		return hint
	}
	return "standard"
}

func builtins() []Descriptor {
	return []Descriptor{
		{
			ID:          models.DefaultTemplateID,
			Name:        "Minimal",
			Description: "Bare single-column page, no chrome. Always available.",
			Layout:      minimalLayout,
		},
		{
			ID:          "standard",
			Name:        "Standard",
			Description: "Single page with a table of contents.",
			Layout:      standardLayout,
		},
		{
			ID:          "report",
			Name:        "Report",
			Description: "Formal layout with a metadata header block.",
			Layout:      reportLayout,
		},
	}
}
