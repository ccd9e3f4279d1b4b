package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/clipvault/clipvault/models"
	"github.com/clipvault/clipvault/store"
)

type fakeFinder struct {
	videos map[string]*models.Video
}

func (f *fakeFinder) FindByID(_ context.Context, id string) (*models.Video, error) {
	v, ok := f.videos[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

// fileEnv writes a 100-byte file under a temp downloads root and returns a
// controller serving it as video "v1".
func fileEnv(t *testing.T) (*FileController, string, []byte) {
	t.Helper()
	root := t.TempDir()
	content := make([]byte, 100)
	for i := range content {
		content[i] = byte(i)
	}
	rel := filepath.Join("2026-09-01", "clip.mp4")
	if err := os.MkdirAll(filepath.Join(root, "2026-09-01"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, rel), content, 0o644); err != nil {
		t.Fatal(err)
	}

	finder := &fakeFinder{videos: map[string]*models.Video{
		"v1":     {ID: "v1", FilePath: rel, FileSize: 100},
		"escape": {ID: "escape", FilePath: filepath.Join("..", "..", "etc", "passwd")},
		"ghost":  {ID: "ghost", FilePath: filepath.Join("2026-09-01", "gone.mp4")},
	}}
	return NewFileController(finder, root, nil), root, content
}

func serveFile(t *testing.T, ctrl *FileController, id, rangeHeader string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/download/:id", ctrl.Serve)

	req := httptest.NewRequest(http.MethodGet, "/download/"+id, nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestServeFullFile(t *testing.T) {
	ctrl, _, content := fileEnv(t)
	w := serveFile(t, ctrl, "v1", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Fatalf("Accept-Ranges = %q", got)
	}
	if got := w.Header().Get("Content-Type"); got != "video/mp4" {
		t.Fatalf("Content-Type = %q", got)
	}
	if w.Body.Len() != len(content) {
		t.Fatalf("body length = %d, want %d", w.Body.Len(), len(content))
	}
}

func TestServePartialRange(t *testing.T) {
	ctrl, _, content := fileEnv(t)
	w := serveFile(t, ctrl, "v1", "bytes=10-19")

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes 10-19/100" {
		t.Fatalf("Content-Range = %q", got)
	}
	body := w.Body.Bytes()
	if len(body) != 10 {
		t.Fatalf("body length = %d, want 10", len(body))
	}
	for i, b := range body {
		if b != content[10+i] {
			t.Fatalf("byte %d = %d, want %d", i, b, content[10+i])
		}
	}
}

func TestServeOpenEndedRange(t *testing.T) {
	ctrl, _, _ := fileEnv(t)
	w := serveFile(t, ctrl, "v1", "bytes=90-")

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes 90-99/100" {
		t.Fatalf("Content-Range = %q", got)
	}
	if w.Body.Len() != 10 {
		t.Fatalf("body length = %d, want 10", w.Body.Len())
	}
}

func TestServeRangeClampedToEOF(t *testing.T) {
	ctrl, _, _ := fileEnv(t)
	w := serveFile(t, ctrl, "v1", "bytes=95-200")

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes 95-99/100" {
		t.Fatalf("Content-Range = %q", got)
	}
}

func TestServeMalformedRangeFallsBackToFull(t *testing.T) {
	ctrl, _, _ := fileEnv(t)
	for _, header := range []string{"bytes=abc-def", "bytes=-50", "items=0-10", "bytes=5-2", "bytes=0-10,20-30"} {
		w := serveFile(t, ctrl, "v1", header)
		if w.Code != http.StatusOK {
			t.Fatalf("header %q: status = %d, want 200", header, w.Code)
		}
		if w.Body.Len() != 100 {
			t.Fatalf("header %q: body length = %d, want 100", header, w.Body.Len())
		}
	}
}

func TestServeUnsatisfiableRange(t *testing.T) {
	ctrl, _, _ := fileEnv(t)
	w := serveFile(t, ctrl, "v1", "bytes=100-")

	if w.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes */100" {
		t.Fatalf("Content-Range = %q", got)
	}
}

func TestServeUnknownVideo(t *testing.T) {
	ctrl, _, _ := fileEnv(t)
	w := serveFile(t, ctrl, "nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestServeMissingFileOnDisk(t *testing.T) {
	ctrl, _, _ := fileEnv(t)
	w := serveFile(t, ctrl, "ghost", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestServeRejectsPathEscapingRoot(t *testing.T) {
	ctrl, _, _ := fileEnv(t)
	w := serveFile(t, ctrl, "escape", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
