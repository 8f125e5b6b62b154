package transform

import (
	"context"

	"github.com/local/docsmith/internal/document"
)

// Version markers for the built-in transforms. Bumping one changes the
// fingerprint of its stage and forces recomputation on the next run.
const (
	contentExtractionVersion = "content-extraction/1"
)

// ContentExtraction flattens a corrected structure document into the
// reading-order content form consumed by rendering.
func ContentExtraction() Transform {
	return NewFunc("content-extraction", []byte(contentExtractionVersion),
		func(ctx context.Context, in []byte) ([]byte, error) {
			doc, err := document.Decode(in)
			if err != nil {
				return nil, err
			}
			return document.FlattenContent(doc).Encode()
		})
}
