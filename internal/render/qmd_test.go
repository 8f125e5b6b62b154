package render

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/docsmith/internal/document"
	"github.com/local/docsmith/internal/transform"
)

func contentFixture(t *testing.T) []byte {
	t.Helper()
	c := &document.Content{
		Metadata: document.Metadata{Source: "file:///tmp/report.pdf"},
		Sections: []document.Section{
			{Kind: "title", Page: 1, Text: "Quarterly  Report"},
			{Kind: "heading", Page: 1, Text: "Revenue"},
			{Kind: "paragraph", Page: 1, Text: "Revenue grew."},
			{Kind: "table", Page: 2, Text: "Q1 100\nQ2 120"},
			{Kind: "figure", Page: 2, Caption: "Revenue chart"},
		},
	}
	data, err := c.Encode()
	require.NoError(t, err)
	return data
}

func TestQMDRendering(t *testing.T) {
	out, err := transform.Invoke(context.Background(), QMD(), contentFixture(t))
	require.NoError(t, err)
	qmd := string(out)

	assert.True(t, strings.HasPrefix(qmd, "---\n"), "front matter first")
	assert.Contains(t, qmd, `title: "Quarterly Report"`)
	assert.Contains(t, qmd, "# Quarterly Report\n")
	assert.Contains(t, qmd, "## Revenue\n")
	assert.Contains(t, qmd, "Revenue grew.\n")
	assert.Contains(t, qmd, "```\nQ1 100\nQ2 120\n```")
	assert.Contains(t, qmd, "Revenue chart")
}

func TestQMDDeterministic(t *testing.T) {
	in := contentFixture(t)
	a, err := transform.Invoke(context.Background(), QMD(), in)
	require.NoError(t, err)
	b, err := transform.Invoke(context.Background(), QMD(), in)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestQMDFallbackTitle(t *testing.T) {
	c := &document.Content{Metadata: document.Metadata{Source: "file:///tmp/x.pdf"}}
	data, err := c.Encode()
	require.NoError(t, err)

	out, err := transform.Invoke(context.Background(), QMD(), data)
	require.NoError(t, err)
	assert.Contains(t, string(out), `title: "file:///tmp/x.pdf"`)
}

func TestQMDRejectsMalformedContent(t *testing.T) {
	_, err := transform.Invoke(context.Background(), QMD(), []byte("not json"))
	require.Error(t, err)
}
