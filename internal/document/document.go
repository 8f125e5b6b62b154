// Package document defines the JSON artifact schema flowing between
// pipeline stages: the page-element structure produced by extraction, the
// per-page density annotations, and the flattened content form consumed by
// rendering.
package document

import (
	"encoding/json"
	"fmt"

	"github.com/local/docsmith/internal/geometry"
)

// Metadata records provenance for the whole document.
type Metadata struct {
	Source      string `json:"source"`
	Checksum    string `json:"_checksum"`
	LayoutModel string `json:"layout_model"`
	OCREnabled  bool   `json:"ocr_enabled"`
}

// Element is one detected page element with its bounding box.
type Element struct {
	Type       string     `json:"type"`
	Page       int        `json:"page"`
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence"`
	Content    string     `json:"content,omitempty"`
}

// Density holds the occupancy profiles of one page along both axes.
type Density struct {
	X geometry.Profile `json:"x"`
	Y geometry.Profile `json:"y"`
}

// Page is one page of the document. Margins and Density are derived fields
// recomputed whenever the elements change.
type Page struct {
	PageNumber int               `json:"page_number"`
	Width      float64           `json:"width"`
	Height     float64           `json:"height"`
	Elements   []Element         `json:"elements"`
	Margins    *geometry.Margins `json:"margins,omitempty"`
	Density    *Density          `json:"_density,omitempty"`
}

// TableRef, FigureRef and TextBlockRef are the entries of the high-level
// structure summary.
type TableRef struct {
	Page int        `json:"page"`
	BBox [4]float64 `json:"bbox"`
}

type FigureRef struct {
	Page    int        `json:"page"`
	BBox    [4]float64 `json:"bbox"`
	Caption string     `json:"caption"`
}

type TextBlockRef struct {
	Page int        `json:"page"`
	BBox [4]float64 `json:"bbox"`
	Text string     `json:"text"`
	Type string     `json:"type"`
}

// Structure is a document-level summary grouping elements by kind.
type Structure struct {
	Tables     []TableRef     `json:"tables"`
	Figures    []FigureRef    `json:"figures"`
	TextBlocks []TextBlockRef `json:"text_blocks"`
}

// Document is the structure-stage artifact.
type Document struct {
	Metadata  Metadata  `json:"metadata"`
	Pages     []Page    `json:"pages"`
	Structure Structure `json:"structure"`
}

// Decode parses a structure-stage artifact.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

// Encode serializes the document as a stage artifact.
func (d *Document) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// Geometry converts a page into the form the density engine consumes.
func (p Page) Geometry() geometry.Page {
	boxes := make([]geometry.Box, 0, len(p.Elements))
	for _, el := range p.Elements {
		boxes = append(boxes, geometry.Box{
			Rect:  geometry.Rect{X0: el.BBox[0], Y0: el.BBox[1], X1: el.BBox[2], Y1: el.BBox[3]},
			Label: el.Type,
		})
	}
	return geometry.Page{Width: p.Width, Height: p.Height, Boxes: boxes}
}

// RebuildStructure regenerates the structure summary from the page
// elements. Called after corrections so the summary never drifts from the
// elements it describes.
func (d *Document) RebuildStructure() {
	s := Structure{
		Tables:     []TableRef{},
		Figures:    []FigureRef{},
		TextBlocks: []TextBlockRef{},
	}
	for _, p := range d.Pages {
		for _, el := range p.Elements {
			switch el.Type {
			case "table":
				s.Tables = append(s.Tables, TableRef{Page: p.PageNumber, BBox: el.BBox})
			case "figure":
				s.Figures = append(s.Figures, FigureRef{Page: p.PageNumber, BBox: el.BBox, Caption: el.Content})
			case "text", "title", "heading":
				s.TextBlocks = append(s.TextBlocks, TextBlockRef{
					Page: p.PageNumber,
					BBox: el.BBox,
					Text: el.Content,
					Type: el.Type,
				})
			}
		}
	}
	d.Structure = s
}
