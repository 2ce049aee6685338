package templates

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"text/template"
	"time"

	"git.home.luguber.info/inful/docgen/internal/transform"
)

type pageBlock struct {
	Heading string
	Level   int
	HTML    string
	Anchor  string
}

type page struct {
	Title    string
	Metadata map[string]string
	Blocks   []pageBlock
	Date     string
	DateTime string
}

// Render executes a template layout against a presentation and returns the
// finished document. Block HTML is inserted as-is (it comes from the markdown
// renderer); titles, headings and metadata are plain text and get escaped.
func Render(d Descriptor, pres *transform.Presentation) (string, error) {
	tpl, err := template.New(d.ID).Option("missingkey=error").Parse(d.Layout)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", d.ID, err)
	}

	now := time.Now().UTC()
	pg := page{
		Title:    html.EscapeString(pres.Title),
		Metadata: escapeMap(pres.Metadata),
		Date:     now.Format("2006-01-02"),
		DateTime: now.Format(time.RFC3339),
	}
	for _, b := range pres.Blocks {
		level := b.Level
		if level < 2 {
			level = 2
		}
		pg.Blocks = append(pg.Blocks, pageBlock{
			Heading: html.EscapeString(b.Heading),
			Level:   level,
			HTML:    b.HTML,
			Anchor:  Anchor(b.Heading),
		})
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, pg); err != nil {
		return "", fmt.Errorf("render template %s: %w", d.ID, err)
	}
	return buf.String(), nil
}

func escapeMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return in
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[html.EscapeString(k)] = html.EscapeString(v)
	}
	return out
}

// Anchor derives a stable fragment identifier from a heading.
func Anchor(heading string) string {
	var sb strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(heading)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && sb.Len() > 0 {
				sb.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
