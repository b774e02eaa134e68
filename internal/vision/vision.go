// Package vision turns a photo of a shelf or cupboard into draft items.
package vision

import (
	"context"
	"io"
)

// AnalysisPrompt is the shared prompt used by all vision adapters.
const AnalysisPrompt = `List every household item you can see in this photo of a shelf, cupboard,
pantry or storage area. For each item provide: name, approximate quantity
with its unit, and any relevant notes (e.g. opened, nearly empty, brand).
Respond in plain text, one item per line,
format: name | quantity | notes`

type Analyzer interface {
	Analyze(ctx context.Context, r io.Reader, mimeType string) (*AnalysisResult, error)
}

type AnalysisResult struct {
	Drafts      []Draft
	RawResponse string
}

// Draft is an item seen in a photo that the user may create. Quantity is
// the leading count of the model's quantity text and Unit the rest of it.
type Draft struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Unit     string `json:"unit"`
	Notes    string `json:"notes"`
}
