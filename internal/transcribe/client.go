package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	openai "github.com/sashabaranov/go-openai"
)

// TranslateModel is the only model that yields usable English
// translations of non-English speech.
const TranslateModel = "whisper-large-v3"

type Client struct {
	api          *openai.Client
	defaultModel string
}

type Options struct {
	Language  string
	Model     string
	Translate bool
}

type Transcription struct {
	Text     string
	Segments []Segment
}

func NewClient(apiKey, defaultModel string) *Client {
	return &Client{
		api:          openai.NewClient(apiKey),
		defaultModel: defaultModel,
	}
}

// Transcribe converts the media file to 16kHz mono FLAC and sends it
// to the speech-to-text API.
func (c *Client) Transcribe(ctx context.Context, mediaPath string, opts Options) (*Transcription, error) {
	audioPath, cleanup, err := prepareAudio(ctx, mediaPath)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	model := opts.Model
	if model == "" {
		model = c.defaultModel
	}
	if opts.Translate {
		model = TranslateModel
	}

	req := openai.AudioRequest{
		Model:    model,
		FilePath: audioPath,
		Language: LanguageCode(opts.Language),
		Format:   openai.AudioResponseFormatVerboseJSON,
	}

	slog.Info("sending audio for transcription",
		"model", model,
		"language", req.Language,
		"translate", opts.Translate)

	var resp openai.AudioResponse
	if opts.Translate {
		resp, err = c.api.CreateTranslation(ctx, req)
	} else {
		resp, err = c.api.CreateTranscription(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}

	segments := make([]Segment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		segments = append(segments, Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}

	return &Transcription{
		Text:     resp.Text,
		Segments: segments,
	}, nil
}

// prepareAudio extracts a compact audio track the API accepts
// regardless of the source container.
func prepareAudio(ctx context.Context, mediaPath string) (string, func(), error) {
	tmp, err := os.CreateTemp("", "mediascribe-*.flac")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp audio file: %w", err)
	}
	tmp.Close()
	audioPath := tmp.Name()
	cleanup := func() { os.Remove(audioPath) }

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", mediaPath,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "flac",
		audioPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("ffmpeg failed for %s: %w: %s", filepath.Base(mediaPath), err, tail(out))
	}

	return audioPath, cleanup, nil
}

func tail(out []byte) string {
	const max = 512
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return string(out)
}
