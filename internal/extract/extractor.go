// Package extract converts raw input content into a structured semantic
// representation that later stages operate on.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/docgen/internal/errors"
	"git.home.luguber.info/inful/docgen/internal/ingest"
)

// Section is one titled region of the input.
type Section struct {
	Heading string `json:"heading"`
	Level   int    `json:"level"`
	Body    string `json:"body"`
}

// Semantic is the structured representation of an input document.
type Semantic struct {
	Title    string            `json:"title"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Sections []Section         `json:"sections"`
}

// Extractor parses ingested documents into Semantic form.
type Extractor struct{}

// NewExtractor creates an extractor.
func NewExtractor() *Extractor { return &Extractor{} }

// Extract dispatches on the detected input format.
func (e *Extractor) Extract(doc *ingest.Document) (*Semantic, error) {
	switch doc.Format {
	case ingest.FormatMarkdown:
		return extractMarkdown([]byte(doc.Content))
	case ingest.FormatYAML:
		return extractYAML([]byte(doc.Content))
	case ingest.FormatJSON:
		return extractJSON([]byte(doc.Content))
	case ingest.FormatText:
		return extractText(doc.Content), nil
	default:
		return nil, errors.New(errors.CategoryExtraction, errors.SeverityError,
			fmt.Sprintf("no extractor for format %q", doc.Format))
	}
}

// extractMarkdown walks the Goldmark AST and slices the source into sections
// delimited by headings. Content before the first heading becomes an untitled
// preamble section.
func extractMarkdown(source []byte) (*Semantic, error) {
	md := goldmark.New()
	root := md.Parser().Parse(gmtext.NewReader(source))

	type headingMark struct {
		text  string
		level int
		start int
		stop  int
	}
	var marks []headingMark

	err := gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		h, ok := n.(*gmast.Heading)
		if !ok || h.Lines().Len() == 0 {
			return gmast.WalkContinue, nil
		}
		seg := h.Lines().At(0)
		last := h.Lines().At(h.Lines().Len() - 1)
		marks = append(marks, headingMark{
			text:  headingText(h, source),
			level: h.Level,
			start: seg.Start,
			stop:  last.Stop,
		})
		return gmast.WalkContinue, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExtraction, errors.SeverityError, "walk markdown ast")
	}

	sem := &Semantic{Metadata: map[string]string{}}

	if len(marks) == 0 {
		sem.Sections = []Section{{Body: strings.TrimSpace(string(source))}}
		return sem, nil
	}

	if pre := strings.TrimSpace(string(source[:marks[0].start])); pre != "" {
		// The marker characters of an ATX heading precede its text segment.
		pre = strings.TrimRight(strings.TrimSpace(strings.TrimRight(pre, "#")), " \t")
		if pre != "" {
			sem.Sections = append(sem.Sections, Section{Body: pre})
		}
	}

	for i, m := range marks {
		end := len(source)
		if i+1 < len(marks) {
			end = marks[i+1].start
		}
		// end points at the next heading's text segment, so the slice can
		// carry that heading's trailing "#" markers; strip them.
		body := strings.TrimSpace(string(source[m.stop:end]))
		body = strings.TrimSpace(strings.TrimRight(body, "#"))
		sec := Section{Heading: m.text, Level: m.level, Body: body}
		if sem.Title == "" && m.level == 1 {
			sem.Title = m.text
		}
		sem.Sections = append(sem.Sections, sec)
	}
	if sem.Title == "" {
		sem.Title = marks[0].text
	}
	return sem, nil
}

// headingText concatenates the raw text segments under a heading node.
func headingText(h *gmast.Heading, source []byte) string {
	var sb strings.Builder
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*gmast.Text); ok {
			sb.Write(t.Segment.Value(source))
			continue
		}
		if h.Lines().Len() > 0 {
			// Inline markup inside the heading: fall back to the raw line.
			seg := h.Lines().At(0)
			return strings.TrimSpace(string(seg.Value(source)))
		}
	}
	return strings.TrimSpace(sb.String())
}

func extractYAML(source []byte) (*Semantic, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(source, &raw); err != nil {
		return nil, errors.Wrap(err, errors.CategoryExtraction, errors.SeverityError, "parse yaml input")
	}
	return semanticFromMap(raw)
}

func extractJSON(source []byte) (*Semantic, error) {
	var raw map[string]any
	if err := json.Unmarshal(source, &raw); err != nil {
		return nil, errors.Wrap(err, errors.CategoryExtraction, errors.SeverityError, "parse json input")
	}
	return semanticFromMap(raw)
}

// semanticFromMap maps a decoded structured document onto the semantic shape:
// "title" and "sections" are recognized, every other scalar becomes metadata.
func semanticFromMap(raw map[string]any) (*Semantic, error) {
	sem := &Semantic{Metadata: map[string]string{}}

	if title, ok := raw["title"].(string); ok {
		sem.Title = title
	}

	if sections, ok := raw["sections"].([]any); ok {
		for i, entry := range sections {
			sec, ok := entry.(map[string]any)
			if !ok {
				return nil, errors.New(errors.CategoryExtraction, errors.SeverityError,
					fmt.Sprintf("sections[%d] is not a mapping", i))
			}
			heading, _ := sec["heading"].(string)
			body, _ := sec["body"].(string)
			level := 2
			switch v := sec["level"].(type) {
			case int:
				level = v
			case float64:
				level = int(v)
			}
			sem.Sections = append(sem.Sections, Section{Heading: heading, Level: level, Body: body})
		}
	}

	for k, v := range raw {
		if k == "title" || k == "sections" {
			continue
		}
		switch val := v.(type) {
		case string:
			sem.Metadata[k] = val
		case bool, int, int64, float64:
			sem.Metadata[k] = fmt.Sprintf("%v", val)
		}
	}

	if sem.Title == "" && len(sem.Sections) == 0 {
		return nil, errors.New(errors.CategoryExtraction, errors.SeverityError,
			"structured input has neither title nor sections")
	}
	return sem, nil
}

func extractText(content string) *Semantic {
	lines := strings.SplitN(strings.TrimSpace(content), "\n", 2)
	sem := &Semantic{Metadata: map[string]string{}, Title: strings.TrimSpace(lines[0])}
	body := ""
	if len(lines) > 1 {
		body = strings.TrimSpace(lines[1])
	}
	sem.Sections = []Section{{Heading: sem.Title, Level: 1, Body: body}}
	return sem
}
