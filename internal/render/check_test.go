package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/docsmith/internal/transform"
)

func TestCheckPassesOnRenderedOutput(t *testing.T) {
	out, err := transform.Invoke(context.Background(), QMD(), contentFixture(t))
	require.NoError(t, err)

	rep := Check(out)
	assert.True(t, rep.Clean(), "issues: %v", rep.Issues)
	assert.True(t, rep.FrontMatter.Present)
}

func TestCheckMissingFrontMatter(t *testing.T) {
	rep := Check([]byte("# No front matter\n\nBody.\n"))
	assert.False(t, rep.Clean())
	assert.False(t, rep.FrontMatter.Present)
	assert.Contains(t, rep.Issues, "missing YAML front matter")
}

func TestCheckUnclosedFrontMatter(t *testing.T) {
	rep := Check([]byte("---\ntitle: \"x\"\nformat: html\n\n# Body\n"))
	assert.Contains(t, rep.Issues, "YAML front matter not closed")
}

func TestCheckFrontMatterFields(t *testing.T) {
	rep := Check([]byte("---\nsource: \"x\"\n---\n"))
	assert.Contains(t, rep.Issues, "missing 'title' in front matter")
	assert.Contains(t, rep.Issues, "missing 'format' in front matter")
}

func TestCheckTableAlignment(t *testing.T) {
	aligned := "---\ntitle: \"t\"\nformat: html\n---\n\n" +
		"| a   | b   |\n" +
		"| --- | --- |\n" +
		"| 1   | 2   |\n"
	rep := Check([]byte(aligned))
	assert.True(t, rep.Clean(), "issues: %v", rep.Issues)
	assert.Equal(t, 1, rep.Tables.Found)
	assert.Equal(t, 1, rep.Tables.Aligned)

	misaligned := "---\ntitle: \"t\"\nformat: html\n---\n\n" +
		"| a   | b   |\n" +
		"| --- | --- |\n" +
		"| 1 | 2 |\n"
	rep = Check([]byte(misaligned))
	assert.False(t, rep.Clean())
	assert.Equal(t, 1, rep.Tables.Found)
	assert.Equal(t, 0, rep.Tables.Aligned)
	assert.Contains(t, rep.Issues[0], "pipe misaligned")

	ragged := "---\ntitle: \"t\"\nformat: html\n---\n\n" +
		"| a   | b   |\n" +
		"| only one |\n"
	rep = Check([]byte(ragged))
	assert.Contains(t, rep.Issues[0], "inconsistent number of columns")
}

func TestCheckSyntaxIssues(t *testing.T) {
	rep := Check([]byte("---\ntitle: \"t\"\nformat: html\n---\n\ntrailing space \n#### Deep heading\n"))
	require.Len(t, rep.Syntax.Issues, 2)
	assert.Contains(t, rep.Syntax.Issues[0], "trailing whitespace")
	assert.Contains(t, rep.Syntax.Issues[1], "heading level 4")
}
