package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

type LocalStorage struct {
	baseDir string
	baseURL string
}

func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		baseDir: baseDir,
		baseURL: baseURL,
	}, nil
}

func (s *LocalStorage) SaveArtifact(ctx context.Context, filename string, content io.Reader, contentType string) (*Artifact, error) {
	key := s.generateKey(filename)
	filePath := filepath.Join(s.baseDir, key)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory structure: %w", err)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact file: %w", err)
	}
	n, err := io.Copy(f, content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}

	slog.Info("artifact saved to local storage", "key", key, "path", filePath, "size", n)

	return &Artifact{
		Key: key,
		URL: fmt.Sprintf("%s/%s", s.baseURL, key),
	}, nil
}

func (s *LocalStorage) OpenArtifact(ctx context.Context, key string) (io.ReadCloser, string, error) {
	filePath := filepath.Join(s.baseDir, key)

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("artifact not found: %s", key)
		}
		return nil, "", fmt.Errorf("failed to stat artifact: %w", err)
	}
	if fileInfo.Size() == 0 {
		return nil, "", fmt.Errorf("artifact is empty: %s", key)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open artifact: %w", err)
	}

	return file, ContentTypeFor(key), nil
}

func (s *LocalStorage) PresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	// local storage has no expiring links, return the direct URL
	return fmt.Sprintf("%s/%s", s.baseURL, key), nil
}

func (s *LocalStorage) DeleteArtifact(ctx context.Context, key string) error {
	filePath := filepath.Join(s.baseDir, key)

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	slog.Info("artifact deleted from local storage", "key", key, "path", filePath)
	return nil
}

func (s *LocalStorage) generateKey(filename string) string {
	ext := filepath.Ext(filename)
	basename := filepath.Base(filename[:len(filename)-len(ext)])

	timestamp := time.Now().Format("2006/01/02")
	uniqueID := uuid.New().String()[:8]

	return fmt.Sprintf("artifacts/%s/%s_%s%s", timestamp, basename, uniqueID, ext)
}
