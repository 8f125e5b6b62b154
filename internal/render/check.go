package render

import (
	"fmt"
	"regexp"
	"strings"
)

// Report is the outcome of the quality checks over a rendered document.
// Issues aggregates every finding; the per-check results keep their own.
type Report struct {
	Issues      []string          `json:"issues"`
	FrontMatter FrontMatterResult `json:"front_matter"`
	Tables      TableResult       `json:"tables"`
	Syntax      SyntaxResult      `json:"syntax"`
}

// Clean reports whether every check passed.
func (r Report) Clean() bool { return len(r.Issues) == 0 }

type FrontMatterResult struct {
	Present bool     `json:"present"`
	Lines   int      `json:"lines"`
	Issues  []string `json:"issues,omitempty"`
}

type TableResult struct {
	Found   int      `json:"found"`
	Aligned int      `json:"aligned"`
	Issues  []string `json:"issues,omitempty"`
}

type SyntaxResult struct {
	TotalLines int      `json:"total_lines"`
	Issues     []string `json:"issues,omitempty"`
}

var tableRowRe = regexp.MustCompile(`^\s*\|.*\|`)

// Check runs the quality checks over a rendered Quarto Markdown document:
// front matter shape, pipe-table column alignment and basic markdown
// hygiene. It never fails; defects come back as issues in the report.
func Check(doc []byte) Report {
	lines := strings.Split(string(doc), "\n")
	rep := Report{
		FrontMatter: checkFrontMatter(lines),
		Tables:      checkTables(lines),
		Syntax:      checkSyntax(lines),
	}
	rep.Issues = append(rep.Issues, rep.FrontMatter.Issues...)
	rep.Issues = append(rep.Issues, rep.Tables.Issues...)
	rep.Issues = append(rep.Issues, rep.Syntax.Issues...)
	return rep
}

func checkFrontMatter(lines []string) FrontMatterResult {
	var res FrontMatterResult
	if len(lines) == 0 || strings.TrimRight(lines[0], " \t") != "---" {
		res.Issues = append(res.Issues, "missing YAML front matter")
		return res
	}
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		res.Issues = append(res.Issues, "YAML front matter not closed")
		return res
	}
	res.Present = true
	res.Lines = end - 1
	block := strings.Join(lines[1:end], "\n")
	if !strings.Contains(block, "title:") {
		res.Issues = append(res.Issues, "missing 'title' in front matter")
	}
	if !strings.Contains(block, "format:") {
		res.Issues = append(res.Issues, "missing 'format' in front matter")
	}
	return res
}

func checkTables(lines []string) TableResult {
	var res TableResult
	var table []string
	start := 0

	flush := func() {
		// A lone pipe line is not a table.
		if len(table) >= 2 {
			res.Found++
			issues := checkTableAlignment(table, start)
			if len(issues) == 0 {
				res.Aligned++
			}
			res.Issues = append(res.Issues, issues...)
		}
		table = nil
	}

	for i, line := range lines {
		if tableRowRe.MatchString(line) {
			if table == nil {
				start = i + 1
			}
			table = append(table, line)
			continue
		}
		flush()
	}
	flush()
	return res
}

// checkTableAlignment requires every row to carry the same pipe count at
// the same column positions as the header row.
func checkTableAlignment(table []string, startLine int) []string {
	header := pipePositions(table[0])
	if len(header) < 2 {
		return nil
	}
	var issues []string
	for i, line := range table[1:] {
		got := pipePositions(line)
		if len(got) != len(header) {
			issues = append(issues, fmt.Sprintf("line %d: table has inconsistent number of columns", startLine+i+1))
			continue
		}
		for j := range header {
			if got[j] != header[j] {
				issues = append(issues, fmt.Sprintf(
					"line %d, column %d: pipe misaligned (expected position %d, found %d)",
					startLine+i+1, j+1, header[j], got[j]))
			}
		}
	}
	return issues
}

func pipePositions(line string) []int {
	var pos []int
	for i, r := range line {
		if r == '|' {
			pos = append(pos, i)
		}
	}
	return pos
}

func checkSyntax(lines []string) SyntaxResult {
	res := SyntaxResult{TotalLines: len(lines)}
	for i, line := range lines {
		if strings.HasSuffix(line, " ") || strings.HasSuffix(line, "\t") {
			res.Issues = append(res.Issues, fmt.Sprintf("line %d: trailing whitespace", i+1))
		}
		if strings.HasPrefix(strings.TrimSpace(line), "####") {
			res.Issues = append(res.Issues, fmt.Sprintf("line %d: heading level 4 or deeper", i+1))
		}
	}
	return res
}
