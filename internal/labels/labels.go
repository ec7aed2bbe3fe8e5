package labels

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// Result is what was read from one label.
type Result struct {
	Raw string `json:"raw"`
	Row Row    `json:"fields"`
	// Matched is true when the spare part code was found in the spare parts table.
	Matched bool `json:"spare_part_matched"`
}

// Extractor runs OCR, maps the text to columns and files rows into a workbook.
type Extractor struct {
	OCR        TextExtractor
	Workbook   string
	SpareParts string

	// Appends are serialized so concurrent uploads do not overwrite each other.
	mu sync.Mutex
}

// Extract reads img without saving anything.
func (e *Extractor) Extract(ctx context.Context, img []byte) (Result, error) {
	mimeType := http.DetectContentType(img)
	switch mimeType {
	case "image/jpeg", "image/png", "image/webp":
	default:
		return Result{}, fmt.Errorf("unsupported image type %s", mimeType)
	}

	raw, err := e.OCR.ExtractText(ctx, img, mimeType)
	if err != nil {
		return Result{}, err
	}

	res := Result{Raw: raw, Row: MapFields(raw)}

	parts, err := LoadSpareParts(e.SpareParts)
	if err != nil {
		slog.Warn("labels: spare parts unavailable", "path", e.SpareParts, "err", err)
		return res, nil
	}
	// An unknown code is kept as read so the row can be corrected by hand later.
	if desc, ok := parts[res.Row[colSpareCode]]; ok && res.Row[colSpareCode] != "" {
		res.Row[colDescription] = desc
		res.Matched = true
	}
	return res, nil
}

// WorkbookPath is the spreadsheet rows are appended to.
func (e *Extractor) WorkbookPath() string { return e.Workbook }

// Save appends row to the workbook.
func (e *Extractor) Save(row Row) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := AppendRow(e.Workbook, row); err != nil {
		return err
	}
	slog.Info("labels: row saved", "workbook", e.Workbook)
	return nil
}

// Process extracts and saves in one step.
func (e *Extractor) Process(ctx context.Context, img []byte) (Result, error) {
	res, err := e.Extract(ctx, img)
	if err != nil {
		return res, err
	}
	return res, e.Save(res.Row)
}
