package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clipvault/clipvault/platform"
)

// Result describes a verified downloaded file.
type Result struct {
	Path string // path relative to the downloads root
	Size int64
}

// Service runs the two-phase extraction pipeline: probe the eventual filename,
// fetch into a date-partitioned folder, then verify the file landed where the
// probe said it would.
type Service struct {
	extractor Extractor
	root      string
	timeout   time.Duration
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// NewService builds the pipeline. root is the downloads root directory;
// timeout bounds one full probe+fetch cycle.
func NewService(extractor Extractor, root string, timeout time.Duration, logger *zap.SugaredLogger) *Service {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		extractor: extractor,
		root:      abs,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// Root returns the absolute downloads root.
func (s *Service) Root() string { return s.root }

// AbsPath resolves a stored relative artifact path against the root.
func (s *Service) AbsPath(rel string) string {
	return filepath.Join(s.root, rel)
}

// Download fetches rawURL and returns the verified file. Every failure mode
// of the external tool is normalized into *ExtractionError.
func (s *Service) Download(ctx context.Context, rawURL string, p platform.Platform) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	meta, err := s.extractor.Probe(ctx, rawURL, p)
	if err != nil {
		return nil, err
	}

	name := meta.Filename
	if name == "" {
		if meta.Title == "" {
			return nil, extractionErr("probe", "", errors.New("metadata carries neither filename nor title"))
		}
		name = meta.Title + ".mp4"
	}
	// Titles are attacker-influenced; keep only the bare filename so a crafted
	// "../../etc/x.mp4" cannot escape the date folder.
	safe := filepath.Base(filepath.Clean(name))
	if safe == "." || safe == string(filepath.Separator) || safe == "" {
		return nil, extractionErr("probe", name, errors.New("unusable output filename"))
	}

	dateDir := filepath.Join(s.root, s.now().Format("2006-01-02"))
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return nil, extractionErr("fetch", dateDir, err)
	}

	if err := s.extractor.Fetch(ctx, rawURL, p, dateDir, safe); err != nil {
		return nil, err
	}

	finalPath := filepath.Join(dateDir, safe)
	info, err := os.Stat(finalPath)
	if err != nil {
		return nil, extractionErr("verify", finalPath, fmt.Errorf("fetched file missing: %w", err))
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return nil, extractionErr("verify", finalPath, errors.New("fetched file is empty or not a regular file"))
	}

	rel, err := filepath.Rel(s.root, finalPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, extractionErr("verify", finalPath, errors.New("fetched file escaped the downloads root"))
	}

	s.logger.Infow("video fetched", "url", rawURL, "platform", p.String(), "file", rel, "bytes", info.Size())
	return &Result{Path: rel, Size: info.Size()}, nil
}
