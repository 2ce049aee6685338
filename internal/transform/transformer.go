// Package transform turns the semantic representation into a
// presentation-ready structure for template rendering.
package transform

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/docgen/internal/errors"
	"git.home.luguber.info/inful/docgen/internal/extract"
)

// Block is one renderable unit of the output document.
type Block struct {
	Kind    string `json:"kind"` // "preamble" | "section"
	Heading string `json:"heading,omitempty"`
	Level   int    `json:"level,omitempty"`
	HTML    string `json:"html"`
}

// Presentation is the render-ready form of a document.
type Presentation struct {
	Title        string            `json:"title"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Blocks       []Block           `json:"blocks"`
	TemplateHint string            `json:"template_hint,omitempty"`
}

// Transformer converts Semantic values to Presentations.
type Transformer struct {
	md    goldmark.Markdown
	caser cases.Caser
}

// NewTransformer creates a transformer.
func NewTransformer() *Transformer {
	return &Transformer{
		md:    goldmark.New(),
		caser: cases.Title(language.English),
	}
}

// Transform renders every section body to HTML and derives the template hint
// from the document metadata.
func (t *Transformer) Transform(sem *extract.Semantic) (*Presentation, error) {
	if sem == nil {
		return nil, errors.New(errors.CategoryTransform, errors.SeverityError, "nil semantic input")
	}

	p := &Presentation{
		Title:        t.normalizeTitle(sem.Title),
		Metadata:     sem.Metadata,
		TemplateHint: sem.Metadata["template"],
	}

	for _, sec := range sem.Sections {
		html, err := t.renderHTML(sec.Body)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryTransform, errors.SeverityError,
				"render section body")
		}
		block := Block{Kind: "section", Heading: sec.Heading, Level: sec.Level, HTML: html}
		if sec.Heading == "" {
			block.Kind = "preamble"
		}
		p.Blocks = append(p.Blocks, block)
	}

	if len(p.Blocks) == 0 {
		return nil, errors.New(errors.CategoryTransform, errors.SeverityError, "document has no content blocks")
	}
	return p, nil
}

func (t *Transformer) renderHTML(body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := t.md.Convert([]byte(body), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// normalizeTitle title-cases titles that arrive entirely lowercased; anything
// with existing casing is left alone.
func (t *Transformer) normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "Untitled Document"
	}
	if title == strings.ToLower(title) {
		return t.caser.String(title)
	}
	return title
}
