package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/avetisov/mediascribe/internal/job"
	"github.com/avetisov/mediascribe/internal/media"
	"github.com/avetisov/mediascribe/internal/storage"
	"github.com/avetisov/mediascribe/internal/transcribe"
)

// Pipeline is the production job executor: fetch the media, extract and
// transcribe the audio, persist transcript artifacts.
type Pipeline struct {
	downloader  *media.Downloader
	transcriber *transcribe.Client
	artifacts   storage.Storage
}

func NewPipeline(downloader *media.Downloader, transcriber *transcribe.Client, artifacts storage.Storage) *Pipeline {
	return &Pipeline{
		downloader:  downloader,
		transcriber: transcriber,
		artifacts:   artifacts,
	}
}

func (p *Pipeline) Run(ctx context.Context, params job.Params, progress ProgressFunc) (*job.Result, error) {
	mediaPath, title, cleanup, err := p.fetchMedia(ctx, params)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	progress(50)

	tr, err := p.transcriber.Transcribe(ctx, mediaPath, transcribe.Options{
		Language:  params.Language,
		Model:     params.Model,
		Translate: params.Translate,
	})
	if err != nil {
		return nil, err
	}

	progress(90)

	return p.saveArtifacts(ctx, title, mediaPath, params.OutputDir, tr)
}

func (p *Pipeline) fetchMedia(ctx context.Context, params job.Params) (mediaPath, title string, cleanup func(), err error) {
	switch params.Source.Type {
	case job.SourceUpload:
		path := params.Source.UploadPath
		if _, err := os.Stat(path); err != nil {
			return "", "", nil, fmt.Errorf("staged upload is gone: %w", err)
		}
		title = uploadTitle(params.Source.UploadName)
		// the staged file is single-use
		return path, title, func() { os.Remove(path) }, nil

	case job.SourceURL:
		tempDir, err := os.MkdirTemp("", "mediascribe-dl-*")
		if err != nil {
			return "", "", nil, fmt.Errorf("failed to create download directory: %w", err)
		}
		cleanup := func() { os.RemoveAll(tempDir) }

		title = p.downloader.Title(ctx, params.Source.URL)
		path, err := p.downloader.Download(ctx, params.Source.URL, tempDir)
		if err != nil {
			cleanup()
			return "", "", nil, err
		}
		return path, title, cleanup, nil

	default:
		return "", "", nil, fmt.Errorf("unknown source type %q", params.Source.Type)
	}
}

func (p *Pipeline) saveArtifacts(ctx context.Context, title, mediaPath, outputDir string, tr *transcribe.Transcription) (*job.Result, error) {
	srt := transcribe.RenderSRT(tr.Segments)

	textArtifact, err := p.artifacts.SaveArtifact(ctx, title+".txt",
		strings.NewReader(tr.Text), storage.ContentTypeFor(".txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to store transcript: %w", err)
	}

	srtArtifact, err := p.artifacts.SaveArtifact(ctx, title+".srt",
		strings.NewReader(srt), storage.ContentTypeFor(".srt"))
	if err != nil {
		return nil, fmt.Errorf("failed to store subtitles: %w", err)
	}

	result := &job.Result{
		Text:     tr.Text,
		TextPath: textArtifact.URL,
		SRTPath:  srtArtifact.URL,
	}

	mediaFile, err := os.Open(mediaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen media file: %w", err)
	}
	defer mediaFile.Close()

	mediaName := title + filepath.Ext(mediaPath)
	mediaArtifact, err := p.artifacts.SaveArtifact(ctx, mediaName,
		mediaFile, storage.ContentTypeFor(mediaPath))
	if err != nil {
		return nil, fmt.Errorf("failed to store media: %w", err)
	}
	result.MediaPath = mediaArtifact.URL

	if outputDir != "" {
		writeLocalCopies(outputDir, title, tr.Text, srt)
	}

	return result, nil
}

// writeLocalCopies mirrors transcript files into a caller-chosen
// directory. Failures are logged, artifact storage stays authoritative.
func writeLocalCopies(dir, title, text, srt string) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("failed to create output directory", "dir", dir, "error", err)
		return
	}
	for name, content := range map[string]string{
		title + ".txt": text,
		title + ".srt": srt,
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			slog.Warn("failed to write local copy", "path", path, "error", err)
		}
	}
}

func uploadTitle(uploadName string) string {
	base := strings.TrimSuffix(filepath.Base(uploadName), filepath.Ext(uploadName))
	title := media.SafeTitle(base)
	if title == "" {
		return "uploaded_media"
	}
	return title
}
