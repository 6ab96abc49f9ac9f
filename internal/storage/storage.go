package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// Storage persists finished transcription artifacts (transcripts,
// subtitles, source media) outside the job store.
type Storage interface {
	SaveArtifact(ctx context.Context, filename string, content io.Reader, contentType string) (*Artifact, error)
	OpenArtifact(ctx context.Context, key string) (io.ReadCloser, string, error)
	PresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error)
	DeleteArtifact(ctx context.Context, key string) error
}

type Artifact struct {
	Key string
	URL string
}

func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".srt":
		return "application/x-subrip"
	case ".json":
		return "application/json"
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".flac":
		return "audio/flac"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".ogg", ".opus":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
