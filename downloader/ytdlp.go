package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strings"

	"github.com/clipvault/clipvault/platform"
)

// FormatPolicy is the single quality-selection policy used by both extraction
// phases. Changing it between probe and fetch would corrupt the file-serving
// path, so it is a constant rather than an option.
const FormatPolicy = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"

const stderrExcerptLimit = 512

// YtDlp drives the yt-dlp binary. The resilience knobs are uniform policy
// applied to every invocation, never per-request.
type YtDlp struct {
	BinaryPath  string
	UserAgent   string
	InsecureTLS bool
	ForceIPv4   bool
}

// commonArgs are shared by both phases: format policy, anti-bot headers and
// the platform's extractor hints.
func (y *YtDlp) commonArgs(p platform.Platform) []string {
	args := []string{
		"-f", FormatPolicy,
		"--no-playlist",
		"--restrict-filenames",
		"--force-overwrites",
		"--user-agent", y.UserAgent,
		"--add-header", "Accept:text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
		"--add-header", "Accept-Language:en-US,en;q=0.9",
	}
	if y.InsecureTLS {
		args = append(args, "--no-check-certificates")
	}
	if y.ForceIPv4 {
		args = append(args, "--force-ipv4")
	}
	return append(args, p.ExtractorArgs()...)
}

func (y *YtDlp) probeArgs(rawURL string, p platform.Platform) []string {
	args := []string{rawURL, "--print-json", "--skip-download"}
	return append(args, y.commonArgs(p)...)
}

func (y *YtDlp) fetchArgs(rawURL string, p platform.Platform, outputDir, filename string) []string {
	args := []string{
		rawURL,
		"-P", outputDir,
		"--paths", "temp:" + outputDir,
		"-o", filename,
		"--no-warnings",
	}
	return append(args, y.commonArgs(p)...)
}

// Probe runs the metadata-only pass and parses its JSON output.
func (y *YtDlp) Probe(ctx context.Context, rawURL string, p platform.Platform) (*Metadata, error) {
	stdout, stderr, err := y.run(ctx, y.probeArgs(rawURL, p))
	if err != nil {
		return nil, extractionErr("probe", excerpt(stderr), err)
	}

	out := strings.TrimSpace(stdout)
	if out == "" {
		return nil, extractionErr("probe", excerpt(stderr), errors.New("empty metadata output"))
	}
	// --no-playlist yields a single JSON document; guard against trailing
	// noise by taking the first line.
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		out = out[:i]
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(out), &meta); err != nil {
		return nil, extractionErr("probe", excerpt(out), err)
	}
	return &meta, nil
}

// Fetch runs the download pass, writing filename into outputDir.
func (y *YtDlp) Fetch(ctx context.Context, rawURL string, p platform.Platform, outputDir, filename string) error {
	if _, stderr, err := y.run(ctx, y.fetchArgs(rawURL, p, outputDir, filename)); err != nil {
		return extractionErr("fetch", excerpt(stderr), err)
	}
	return nil
}

// run executes the binary under ctx; on deadline the subprocess is killed by
// CommandContext rather than left running.
func (y *YtDlp) run(ctx context.Context, args []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, y.BinaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return stdout.String(), stderr.String(), err
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrExcerptLimit {
		s = s[:stderrExcerptLimit] + "..."
	}
	return s
}
