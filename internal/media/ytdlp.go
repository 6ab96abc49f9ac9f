package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Downloader fetches remote media through the yt-dlp binary. Several
// argument variants are tried in order because hosts intermittently
// reject individual strategies with 403s.
type Downloader struct {
	binPath    string
	cookieFile string
	timeout    time.Duration
}

func NewDownloader(binPath, cookieFile string, timeout time.Duration) *Downloader {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &Downloader{
		binPath:    binPath,
		cookieFile: cookieFile,
		timeout:    timeout,
	}
}

type attempt struct {
	name string
	args []string
}

func (d *Downloader) baseArgs(destDir string) []string {
	return []string{
		"--continue",
		"--no-part",
		"--user-agent", defaultUserAgent,
		"--referer", "https://www.youtube.com/",
		"--add-header", "Accept-Language:en-US,en;q=0.9",
		"--no-check-certificates",
		"--extractor-retries", "10",
		"--retries", "10",
		"--fragment-retries", "10",
		"--skip-unavailable-fragments",
		"--geo-bypass",
		"--no-playlist",
		"--no-warnings",
		"--force-ipv4",
		"--http-chunk-size", "1048576",
		"--buffer-size", "16M",
		"--concurrent-fragments", "1",
		"-f", "best[ext=mp4][height<=720]/best[height<=720]/18/mp4",
		"-o", filepath.Join(destDir, "%(title)s.%(ext)s"),
	}
}

func (d *Downloader) attempts(destDir, url string) []attempt {
	base := d.baseArgs(destDir)

	attempts := make([]attempt, 0, 5)
	if d.cookieFile != "" {
		if _, err := os.Stat(d.cookieFile); err == nil {
			attempts = append(attempts, attempt{
				name: "with cookies",
				args: append(append([]string{}, base...), "--cookies", d.cookieFile, url),
			})
		} else {
			slog.Warn("cookie file not readable, skipping cookie attempt", "path", d.cookieFile)
		}
	}
	attempts = append(attempts,
		attempt{name: "plain", args: append(append([]string{}, base...), url)},
		attempt{name: "aggressive", args: append(append([]string{}, base...),
			"--force-generic-extractor", "--no-cache-dir", "--rm-cache-dir", url)},
		attempt{name: "single request", args: append(stripFragmentArgs(base), "--no-part", url)},
		attempt{name: "fallback format", args: append(append([]string{}, base...),
			"-f", "18/best[height<=480]/best", url)},
	)
	return attempts
}

// stripFragmentArgs removes fragment-oriented flags so the host serves
// the file in one request.
func stripFragmentArgs(base []string) []string {
	out := make([]string, 0, len(base))
	for i := 0; i < len(base); i++ {
		switch base[i] {
		case "--skip-unavailable-fragments":
			continue
		case "--concurrent-fragments", "--fragment-retries":
			i++ // skip the value too
			continue
		}
		out = append(out, base[i])
	}
	return out
}

// Download fetches url into destDir and returns the path of the
// resulting video file.
func (d *Downloader) Download(ctx context.Context, url, destDir string) (string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var lastErr error
	for _, att := range d.attempts(destDir, url) {
		if ctx.Err() != nil {
			return "", fmt.Errorf("download aborted: %w", ctx.Err())
		}

		slog.Info("starting download attempt", "strategy", att.name, "url", url)
		cmd := exec.CommandContext(ctx, d.binPath, att.args...)
		out, err := cmd.CombinedOutput()
		if err == nil {
			path, ferr := findVideoFile(destDir)
			if ferr != nil {
				lastErr = ferr
				continue
			}
			slog.Info("download succeeded", "strategy", att.name, "path", path)
			return path, nil
		}

		stderr := tail(out)
		lastErr = fmt.Errorf("yt-dlp %s attempt failed: %w: %s", att.name, err, stderr)
		slog.Warn("download attempt failed", "strategy", att.name, "error", err)
		if strings.Contains(stderr, "403") || strings.Contains(stderr, "Forbidden") {
			slog.Warn("host rejected request with 403", "strategy", att.name)
		}
	}

	return "", fmt.Errorf("download failed after all attempts: %w", lastErr)
}

func findVideoFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list download directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".mp4", ".mkv", ".webm", ".m4v":
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no video file produced in %s", dir)
}

// Title asks yt-dlp for the video title. Failures degrade to a stable
// placeholder instead of failing the whole job.
func (d *Downloader) Title(ctx context.Context, url string) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.binPath, "--print", "title", "--no-playlist", "--no-warnings", url)
	out, err := cmd.Output()
	if err != nil {
		slog.Warn("failed to resolve video title", "url", url, "error", err)
		return "downloaded_video"
	}

	title := SafeTitle(strings.TrimSpace(string(out)))
	if title == "" {
		return "downloaded_video"
	}
	return title
}

// SafeTitle keeps only characters that are safe in file names.
func SafeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func tail(out []byte) string {
	const max = 1024
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return string(out)
}
