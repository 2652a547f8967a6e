// Package ingest implements the asynchronous PDF/text extraction
// worker pool (SPEC_FULL.md §4.I), grounded on
// original_source/backend/src/PDFProcessingPool.cpp's worker loop and
// on the teacher's own interface-plus-default-implementation split
// (etl.Crawler/etl.Scraper) for pluggable extraction.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Extractor pulls a title and a flat list of body tokens out of a
// source document. The default implementation shells out to an
// external process; tests substitute a stub.
type Extractor interface {
	Extract(ctx context.Context, path string, docID int) (title string, tokens []string, err error)
}

// extractorOutput is the JSON contract the external process writes
// (§6): {"title": ..., "body_tokens": [...]}.
type extractorOutput struct {
	Title      string   `json:"title"`
	BodyTokens []string `json:"body_tokens"`
}

// ProcessExtractor invokes an external extractor binary once per
// document. A non-zero exit code is a failure; on success the output
// JSON file is read then deleted.
type ProcessExtractor struct {
	// BinaryPath is the extractor executable, invoked as
	// binaryPath(pdf_path, doc_id, output_json_path).
	BinaryPath string
	// OutputDir holds the scratch output files, one per doc_id.
	OutputDir string
}

func NewProcessExtractor(binaryPath, outputDir string) *ProcessExtractor {
	return &ProcessExtractor{BinaryPath: binaryPath, OutputDir: outputDir}
}

func (e *ProcessExtractor) Extract(ctx context.Context, path string, docID int) (string, []string, error) {
	if err := os.MkdirAll(e.OutputDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating extractor output dir %s: %w", e.OutputDir, err)
	}

	outputPath := filepath.Join(e.OutputDir, fmt.Sprintf("extract-%d.json", docID))
	defer os.Remove(outputPath)

	cmd := exec.CommandContext(ctx, e.BinaryPath, path, strconv.Itoa(docID), outputPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", nil, fmt.Errorf("extractor failed for %s: %w: %s", path, err, stderr.String())
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return "", nil, fmt.Errorf("reading extractor output for %s: %w", path, err)
	}

	var out extractorOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return "", nil, fmt.Errorf("malformed extractor output for %s: %w", path, err)
	}

	return out.Title, out.BodyTokens, nil
}
