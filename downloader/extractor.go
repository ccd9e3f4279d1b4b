// Package downloader turns a platform URL into a verified media file on disk.
// The external extraction tool is hidden behind the Extractor interface so the
// pipeline never depends on the subprocess's argument shape and tests can swap
// in a fake.
package downloader

import (
	"context"
	"fmt"

	"github.com/clipvault/clipvault/platform"
)

// Metadata is the subset of the extractor's probe output the pipeline needs.
type Metadata struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Filename string `json:"_filename"`
	Ext      string `json:"ext"`
}

// Extractor is the narrow adapter over the external extraction tool.
// Probe resolves metadata without downloading; Fetch writes the media file as
// filename inside outputDir. Both must request the identical format policy,
// otherwise the probed filename will not match the fetched output.
type Extractor interface {
	Probe(ctx context.Context, rawURL string, p platform.Platform) (*Metadata, error)
	Fetch(ctx context.Context, rawURL string, p platform.Platform, outputDir, filename string) error
}

// ExtractionError normalizes every pipeline failure (non-zero exit, malformed
// JSON, timeout, missing output). Detail carries operator diagnostics such as
// a stderr excerpt and must never be surfaced to end users.
type ExtractionError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("extraction %s failed: %v (%s)", e.Op, e.Err, e.Detail)
	}
	return fmt.Sprintf("extraction %s failed: %v", e.Op, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func extractionErr(op, detail string, err error) *ExtractionError {
	return &ExtractionError{Op: op, Detail: detail, Err: err}
}
