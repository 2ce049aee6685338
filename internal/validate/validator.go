// Package validate runs content and accessibility checks over the
// presentation structure. Findings are diagnostics, not hard errors; the
// pipeline decides whether they gate the run.
package validate

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/docgen/internal/transform"
)

// Severity grades a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one validation finding.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Block    int      `json:"block"`
	Message  string   `json:"message"`
}

// Report is the validator's verdict over a presentation.
type Report struct {
	Passed      bool         `json:"passed"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Validator checks presentation structures. In strict mode warnings also fail
// the report.
type Validator struct {
	strict bool
}

// NewValidator creates a validator.
func NewValidator(strict bool) *Validator { return &Validator{strict: strict} }

// Validate inspects every block's HTML fragment and the document structure.
func (v *Validator) Validate(pres *transform.Presentation) *Report {
	rep := &Report{}

	if strings.TrimSpace(pres.Title) == "" {
		rep.add(SeverityError, -1, "document has no title")
	}

	prevLevel := 1
	for i, block := range pres.Blocks {
		if block.Heading != "" {
			if block.Level > prevLevel+1 {
				rep.add(SeverityWarning, i,
					fmt.Sprintf("heading %q jumps from level %d to %d", block.Heading, prevLevel, block.Level))
			}
			prevLevel = block.Level
		}
		if strings.TrimSpace(block.HTML) == "" && block.Heading == "" {
			rep.add(SeverityWarning, i, "empty block with no heading")
			continue
		}
		v.checkFragment(rep, i, block.HTML)
	}

	rep.Passed = true
	for _, d := range rep.Diagnostics {
		if d.Severity == SeverityError || (v.strict && d.Severity == SeverityWarning) {
			rep.Passed = false
			break
		}
	}
	return rep
}

// checkFragment parses a block's HTML and flags empty link targets and images
// without alternative text.
func (v *Validator) checkFragment(rep *Report, block int, fragment string) {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		rep.add(SeverityError, block, fmt.Sprintf("unparseable HTML fragment: %v", err))
		return
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.A:
				if attr(n, "href") == "" {
					rep.add(SeverityWarning, block, fmt.Sprintf("link %q has no destination", nodeText(n)))
				}
			case atom.Img:
				if attr(n, "alt") == "" {
					rep.add(SeverityWarning, block, fmt.Sprintf("image %q has no alt text", attr(n, "src")))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
}

func (r *Report) add(sev Severity, block int, msg string) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Severity: sev, Block: block, Message: msg})
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
