package controllers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clipvault/clipvault/models"
	"github.com/clipvault/clipvault/store"
)

// VideoFinder resolves a video id to its catalog row.
type VideoFinder interface {
	FindByID(ctx context.Context, id string) (*models.Video, error)
}

// FileController streams stored video files with byte-range support.
type FileController struct {
	videos VideoFinder
	root   string
	logger *zap.SugaredLogger
}

// NewFileController creates a controller serving files under root.
func NewFileController(videos VideoFinder, root string, logger *zap.SugaredLogger) *FileController {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return &FileController{videos: videos, root: abs, logger: logger}
}

// Serve handles GET /download/:id. Single-range requests get a 206 slice,
// everything else (including malformed Range headers) gets the full file.
func (f *FileController) Serve(ctx *gin.Context) {
	id := ctx.Param("id")

	video, err := f.videos.FindByID(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
			return
		}
		f.logger.Errorw("video lookup failed", "video_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	abs := filepath.Clean(filepath.Join(f.root, video.FilePath))
	rel, err := filepath.Rel(f.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		f.logger.Warnw("stored path escapes downloads root", "video_id", id, "path", video.FilePath)
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid file path"})
		return
	}

	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "file not found on disk"})
		return
	}
	size := info.Size()

	start, end, partial, unsatisfiable := parseRange(ctx.GetHeader("Range"), size)
	if unsatisfiable {
		ctx.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
		ctx.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	file, err := os.Open(abs)
	if err != nil {
		f.logger.Errorw("failed to open stored file", "video_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	defer file.Close()

	headers := map[string]string{
		"Accept-Ranges":       "bytes",
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filepath.Base(abs)),
	}

	if partial {
		if _, err := file.Seek(start, io.SeekStart); err != nil {
			f.logger.Errorw("seek failed", "video_id", id, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		length := end - start + 1
		headers["Content-Range"] = fmt.Sprintf("bytes %d-%d/%d", start, end, size)
		ctx.DataFromReader(http.StatusPartialContent, length, "video/mp4", io.LimitReader(file, length), headers)
		return
	}

	ctx.DataFromReader(http.StatusOK, size, "video/mp4", file, headers)
}

// parseRange interprets a single "bytes=start-end" header. Malformed or
// multi-range values fall back to a full response; a start at or past the
// end of the file is unsatisfiable.
func parseRange(header string, size int64) (start, end int64, partial, unsatisfiable bool) {
	if header == "" || !strings.HasPrefix(header, "bytes=") {
		return 0, 0, false, false
	}
	spec := strings.TrimPrefix(header, "bytes=")
	if strings.Contains(spec, ",") {
		return 0, 0, false, false
	}

	dash := strings.Index(spec, "-")
	if dash < 0 {
		return 0, 0, false, false
	}
	startStr := strings.TrimSpace(spec[:dash])
	endStr := strings.TrimSpace(spec[dash+1:])
	if startStr == "" {
		return 0, 0, false, false
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false, false
	}
	if start >= size {
		return 0, 0, false, true
	}

	end = size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, false, false
		}
		if end >= size {
			end = size - 1
		}
	}
	return start, end, true, false
}
