// Package render turns the content-stage artifact into a Quarto Markdown
// document. Rendering is deterministic: identical content bytes always
// yield identical markup.
package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/local/docsmith/internal/document"
	"github.com/local/docsmith/internal/transform"
)

const qmdVersion = "qmd-render/1"

// QMD returns the rendering transform producing a .qmd artifact.
func QMD() transform.Transform {
	return transform.NewFunc("qmd-render", []byte(qmdVersion), renderQMD)
}

func renderQMD(ctx context.Context, in []byte) ([]byte, error) {
	c, err := document.DecodeContent(in)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %q\n", title(c))
	fmt.Fprintf(&b, "source: %q\n", c.Metadata.Source)
	b.WriteString("format: html\n")
	b.WriteString("---\n")

	for _, s := range c.Sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch s.Kind {
		case "title":
			fmt.Fprintf(&b, "\n# %s\n", oneLine(s.Text))
		case "heading":
			fmt.Fprintf(&b, "\n## %s\n", oneLine(s.Text))
		case "paragraph":
			if s.Text != "" {
				fmt.Fprintf(&b, "\n%s\n", s.Text)
			}
		case "table":
			if s.Text != "" {
				fmt.Fprintf(&b, "\n```\n%s\n```\n", s.Text)
			}
		case "figure":
			fmt.Fprintf(&b, "\n::: {.figure}\n%s\n:::\n", oneLine(s.Caption))
		}
	}
	return []byte(b.String()), nil
}

func title(c *document.Content) string {
	for _, s := range c.Sections {
		if s.Kind == "title" && s.Text != "" {
			return oneLine(s.Text)
		}
	}
	if c.Metadata.Source != "" {
		return c.Metadata.Source
	}
	return "Untitled document"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
