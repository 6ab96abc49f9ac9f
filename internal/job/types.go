package job

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusDownloading  Status = "downloading"
	StatusTranscribing Status = "transcribing"
	StatusResuming     Status = "resuming"
	StatusComplete     Status = "complete"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

type SourceType string

const (
	SourceURL    SourceType = "url"
	SourceUpload SourceType = "upload"
)

// Source identifies where the media comes from. URL sources can be
// re-fetched on resume; upload sources reference a staged file that only
// exists for the process that accepted it.
type Source struct {
	Type SourceType `json:"type"`
	URL  string     `json:"url,omitempty"`

	UploadPath string `json:"upload_path,omitempty"`
	UploadName string `json:"upload_name,omitempty"`
}

// Params is everything needed to re-invoke the work function for a job.
type Params struct {
	Source    Source `json:"source"`
	OutputDir string `json:"output_dir,omitempty"`
	Language  string `json:"language,omitempty"`
	Model     string `json:"model,omitempty"`
	Translate bool   `json:"translate,omitempty"`
}

// Result holds either the success payload or an error description.
type Result struct {
	Text      string `json:"text,omitempty"`
	TextPath  string `json:"text_path,omitempty"`
	SRTPath   string `json:"srt_path,omitempty"`
	MediaPath string `json:"media_path,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Job struct {
	ID             uuid.UUID  `json:"id"`
	Status         Status     `json:"status"`
	Progress       int        `json:"progress"`
	Params         *Params    `json:"params,omitempty"`
	Result         *Result    `json:"result,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastCheckpoint *time.Time `json:"last_checkpoint,omitempty"`
	ResumedAt      *time.Time `json:"resumed_at,omitempty"`
}

// Resumable reports whether the job can be re-dispatched from persisted
// parameters. Jobs without params predate durable resume; upload-sourced
// jobs cannot survive a restart because only a transient file reference
// was persisted.
func (j *Job) Resumable() bool {
	return j.Params != nil && j.Params.Source.Type == SourceURL
}

// Checkpoint stamps last_checkpoint with the current time.
func (j *Job) Checkpoint() {
	now := time.Now().UTC()
	j.LastCheckpoint = &now
}

// Clone returns a deep copy so store callers never share mutable state.
func (j *Job) Clone() *Job {
	c := *j
	if j.Params != nil {
		p := *j.Params
		c.Params = &p
	}
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.LastCheckpoint != nil {
		t := *j.LastCheckpoint
		c.LastCheckpoint = &t
	}
	if j.ResumedAt != nil {
		t := *j.ResumedAt
		c.ResumedAt = &t
	}
	return &c
}
