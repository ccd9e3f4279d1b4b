package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/clipvault/clipvault/platform"
)

// fakeExtractor records calls and materializes files the way the real tool
// would, without touching the network.
type fakeExtractor struct {
	meta      *Metadata
	probeErr  error
	fetchErr  error
	fetchBody []byte

	probeCalls int
	fetchCalls int
	fetchDir   string
	fetchName  string
}

func (f *fakeExtractor) Probe(_ context.Context, _ string, _ platform.Platform) (*Metadata, error) {
	f.probeCalls++
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return f.meta, nil
}

func (f *fakeExtractor) Fetch(_ context.Context, _ string, _ platform.Platform, outputDir, filename string) error {
	f.fetchCalls++
	f.fetchDir = outputDir
	f.fetchName = filename
	if f.fetchErr != nil {
		return f.fetchErr
	}
	if f.fetchBody == nil {
		return nil
	}
	return os.WriteFile(filepath.Join(outputDir, filename), f.fetchBody, 0o644)
}

func newTestService(t *testing.T, ext Extractor) *Service {
	t.Helper()
	return NewService(ext, t.TempDir(), time.Minute, zap.NewNop().Sugar())
}

func TestDownloadHappyPath(t *testing.T) {
	ext := &fakeExtractor{
		meta:      &Metadata{Filename: "some_video.mp4", Title: "some video"},
		fetchBody: []byte("0123456789"),
	}
	svc := newTestService(t, ext)

	res, err := svc.Download(context.Background(), "https://youtu.be/abc123XYZ05", platform.YouTube)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	wantRel := filepath.Join(time.Now().Format("2006-01-02"), "some_video.mp4")
	if res.Path != wantRel {
		t.Errorf("Path = %q, want %q", res.Path, wantRel)
	}
	if res.Size != 10 {
		t.Errorf("Size = %d, want 10", res.Size)
	}
	if ext.probeCalls != 1 || ext.fetchCalls != 1 {
		t.Errorf("calls = %d probe / %d fetch, want 1/1", ext.probeCalls, ext.fetchCalls)
	}
	if _, err := os.Stat(svc.AbsPath(res.Path)); err != nil {
		t.Errorf("result path does not resolve: %v", err)
	}
}

func TestDownloadSanitizesTraversalFilename(t *testing.T) {
	ext := &fakeExtractor{
		meta:      &Metadata{Filename: "../../../etc/evil.mp4"},
		fetchBody: []byte("x"),
	}
	svc := newTestService(t, ext)

	res, err := svc.Download(context.Background(), "https://youtu.be/abc123XYZ05", platform.YouTube)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if ext.fetchName != "evil.mp4" {
		t.Errorf("fetch filename = %q, want bare %q", ext.fetchName, "evil.mp4")
	}
	if filepath.IsAbs(res.Path) || res.Path != filepath.Join(time.Now().Format("2006-01-02"), "evil.mp4") {
		t.Errorf("result escaped the date folder: %q", res.Path)
	}
}

func TestDownloadTitleFallback(t *testing.T) {
	ext := &fakeExtractor{
		meta:      &Metadata{Title: "My_Clip"},
		fetchBody: []byte("x"),
	}
	svc := newTestService(t, ext)

	if _, err := svc.Download(context.Background(), "https://youtu.be/abc123XYZ05", platform.YouTube); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if ext.fetchName != "My_Clip.mp4" {
		t.Errorf("fetch filename = %q, want title fallback", ext.fetchName)
	}
}

func TestDownloadNoFilenameNoTitle(t *testing.T) {
	svc := newTestService(t, &fakeExtractor{meta: &Metadata{}})

	_, err := svc.Download(context.Background(), "https://youtu.be/abc123XYZ05", platform.YouTube)
	var exErr *ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("err = %v, want *ExtractionError", err)
	}
}

func TestDownloadMissingOutput(t *testing.T) {
	// Fetch reports success but never writes the file.
	ext := &fakeExtractor{meta: &Metadata{Filename: "gone.mp4"}}
	svc := newTestService(t, ext)

	_, err := svc.Download(context.Background(), "https://youtu.be/abc123XYZ05", platform.YouTube)
	var exErr *ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("err = %v, want *ExtractionError", err)
	}
	if exErr.Op != "verify" {
		t.Errorf("Op = %q, want verify", exErr.Op)
	}
}

func TestDownloadZeroLengthOutput(t *testing.T) {
	ext := &fakeExtractor{meta: &Metadata{Filename: "empty.mp4"}, fetchBody: []byte{}}
	svc := newTestService(t, ext)

	_, err := svc.Download(context.Background(), "https://youtu.be/abc123XYZ05", platform.YouTube)
	var exErr *ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("err = %v, want *ExtractionError", err)
	}
}

func TestDownloadProbeFailureShortCircuits(t *testing.T) {
	ext := &fakeExtractor{probeErr: extractionErr("probe", "HTTP 403", errors.New("exit status 1"))}
	svc := newTestService(t, ext)

	_, err := svc.Download(context.Background(), "https://youtu.be/abc123XYZ05", platform.YouTube)
	if err == nil {
		t.Fatal("expected probe failure")
	}
	if ext.fetchCalls != 0 {
		t.Errorf("fetch ran %d times after failed probe", ext.fetchCalls)
	}
}
