package document

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Section is one reading-order unit of the content-stage artifact.
type Section struct {
	Kind    string `json:"kind"`
	Page    int    `json:"page"`
	Text    string `json:"text,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Content is the content-stage artifact: the document flattened into
// reading order with layout geometry stripped.
type Content struct {
	Metadata Metadata  `json:"metadata"`
	Sections []Section `json:"sections"`
}

// DecodeContent parses a content-stage artifact.
func DecodeContent(data []byte) (*Content, error) {
	var c Content
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return &c, nil
}

// Encode serializes the content as a stage artifact.
func (c *Content) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	return data, nil
}

// FlattenContent orders every page's elements top-to-bottom then
// left-to-right and maps them into sections. Elements with unknown types
// are skipped.
func FlattenContent(doc *Document) *Content {
	c := &Content{Metadata: doc.Metadata, Sections: []Section{}}
	for _, p := range doc.Pages {
		els := make([]Element, len(p.Elements))
		copy(els, p.Elements)
		sort.SliceStable(els, func(i, j int) bool {
			if els[i].BBox[1] != els[j].BBox[1] {
				return els[i].BBox[1] < els[j].BBox[1]
			}
			return els[i].BBox[0] < els[j].BBox[0]
		})
		for _, el := range els {
			switch el.Type {
			case "title", "heading":
				c.Sections = append(c.Sections, Section{Kind: el.Type, Page: p.PageNumber, Text: el.Content})
			case "text":
				c.Sections = append(c.Sections, Section{Kind: "paragraph", Page: p.PageNumber, Text: el.Content})
			case "table":
				c.Sections = append(c.Sections, Section{Kind: "table", Page: p.PageNumber, Text: el.Content})
			case "figure":
				c.Sections = append(c.Sections, Section{Kind: "figure", Page: p.PageNumber, Caption: el.Content})
			}
		}
	}
	return c
}
