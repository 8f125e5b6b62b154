package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/local/docsmith/internal/document"
)

// Match selects elements a rule applies to. Zero-valued fields match
// everything.
type Match struct {
	Type            string  `json:"type,omitempty"`
	Page            int     `json:"page,omitempty"`
	ContentContains string  `json:"content_contains,omitempty"`
	MaxConfidence   float64 `json:"max_confidence,omitempty"`
}

func (m Match) hits(pageNumber int, el document.Element) bool {
	if m.Type != "" && el.Type != m.Type {
		return false
	}
	if m.Page != 0 && m.Page != pageNumber {
		return false
	}
	if m.ContentContains != "" && !strings.Contains(strings.ToLower(el.Content), strings.ToLower(m.ContentContains)) {
		return false
	}
	if m.MaxConfidence > 0 && el.Confidence > m.MaxConfidence {
		return false
	}
	return true
}

// Rule is one correction step. Supported actions:
//
//	relabel     set the type of matched elements to "to"
//	drop        remove matched elements
//	clamp_bbox  clip matched boxes to the page and repair inverted or
//	            degenerate boxes
//	sort        reorder each page's elements top to bottom, then left to
//	            right (match is ignored)
type Rule struct {
	Action string `json:"action"`
	Match  Match  `json:"match,omitempty"`
	To     string `json:"to,omitempty"`
}

func (r Rule) validate() error {
	switch r.Action {
	case "relabel":
		if r.To == "" {
			return fmt.Errorf("relabel rule requires \"to\"")
		}
	case "drop", "clamp_bbox", "sort":
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
	return nil
}

// Script is a correction transform described by a JSON rule list. Rules
// run in order over the structure document; derived density and margin
// fields are recomputed afterwards so they always describe the corrected
// elements.
type Script struct {
	name  string
	raw   []byte
	Rules []Rule
}

type scriptFile struct {
	Rules []Rule `json:"rules"`
}

// LoadScript parses a rule script. The raw bytes are kept verbatim as the
// transform source, so even a formatting-only edit produces a new
// fingerprint.
func LoadScript(name string, raw []byte) (*Script, error) {
	var sf scriptFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return nil, fmt.Errorf("parse correction script %s: %w", name, err)
	}
	for i, r := range sf.Rules {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("correction script %s rule %d: %w", name, i, err)
		}
	}
	return &Script{name: name, raw: raw, Rules: sf.Rules}, nil
}

func (s *Script) Name() string   { return s.name }
func (s *Script) Source() []byte { return s.raw }

func (s *Script) Apply(ctx context.Context, in []byte) ([]byte, error) {
	doc, err := document.Decode(in)
	if err != nil {
		return nil, err
	}
	for _, rule := range s.Rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		applyRule(doc, rule)
	}
	doc.RebuildStructure()
	if err := doc.AnnotateDensity(); err != nil {
		return nil, err
	}
	return doc.Encode()
}

func applyRule(doc *document.Document, rule Rule) {
	for i := range doc.Pages {
		p := &doc.Pages[i]
		switch rule.Action {
		case "relabel":
			for j := range p.Elements {
				if rule.Match.hits(p.PageNumber, p.Elements[j]) {
					p.Elements[j].Type = rule.To
				}
			}
		case "drop":
			kept := p.Elements[:0]
			for _, el := range p.Elements {
				if !rule.Match.hits(p.PageNumber, el) {
					kept = append(kept, el)
				}
			}
			p.Elements = kept
		case "clamp_bbox":
			for j := range p.Elements {
				if rule.Match.hits(p.PageNumber, p.Elements[j]) {
					p.Elements[j].BBox = repairBBox(p.Elements[j].BBox, p.Width, p.Height)
				}
			}
		case "sort":
			sort.SliceStable(p.Elements, func(a, b int) bool {
				if p.Elements[a].BBox[1] != p.Elements[b].BBox[1] {
					return p.Elements[a].BBox[1] < p.Elements[b].BBox[1]
				}
				return p.Elements[a].BBox[0] < p.Elements[b].BBox[0]
			})
		}
	}
}

// repairBBox orders the corners, clips to the page and gives degenerate
// boxes a minimal extent so downstream geometry never sees an invalid box.
func repairBBox(b [4]float64, w, h float64) [4]float64 {
	x0, y0, x1, y1 := b[0], b[1], b[2], b[3]
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	x0, x1 = clip(x0, 0, w), clip(x1, 0, w)
	y0, y1 = clip(y0, 0, h), clip(y1, 0, h)
	if x1 == x0 {
		x1 = clip(x0+1, 0, w)
		if x1 == x0 {
			x0 = clip(x1-1, 0, w)
		}
	}
	if y1 == y0 {
		y1 = clip(y0+1, 0, h)
		if y1 == y0 {
			y0 = clip(y1-1, 0, h)
		}
	}
	return [4]float64{x0, y0, x1, y1}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
