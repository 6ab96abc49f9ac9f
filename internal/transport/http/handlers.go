package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/avetisov/mediascribe/internal/auth"
	"github.com/avetisov/mediascribe/internal/config"
	"github.com/avetisov/mediascribe/internal/dispatcher"
	"github.com/avetisov/mediascribe/internal/job"
	"github.com/avetisov/mediascribe/internal/store"
	"github.com/avetisov/mediascribe/internal/transcribe"
	"github.com/avetisov/mediascribe/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handlers struct {
	Dispatcher *dispatcher.Dispatcher
	Store      store.Store
	Config     config.Config
}

func (h *Handlers) Routers(r chi.Router) {
	// for static file serving for local storage
	if h.Config.StorageMode == "local" || h.Config.StorageMode == "filesystem" {
		r.Get("/files/*", h.serveFiles)
	}

	r.Group(func(r chi.Router) {
		if h.Config.AuthEnabled {
			r.Use(auth.JWTMiddleware(h.Config.JWTSecret, h.Config.JWTIssuer))
		}

		r.Post("/v1/jobs", h.submitJobs)
		r.Post("/v1/jobs/upload", h.submitUpload)
		r.Get("/v1/jobs/incomplete", h.listIncomplete)
		r.Get("/v1/jobs/{id}", h.getJob)
		r.Post("/v1/jobs/{id}/resume", h.resumeJob)
	})
}

type submitItem struct {
	URL       string `json:"url" validate:"required,url"`
	Language  string `json:"language"`
	Model     string `json:"model" validate:"omitempty,oneof=whisper-1 whisper-large-v3"`
	Translate bool   `json:"translate"`
	OutputDir string `json:"output_dir"`
}

func (h *Handlers) submitJobs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data []submitItem `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Data) == 0 {
		http.Error(w, "data must contain at least one job", http.StatusBadRequest)
		return
	}

	var allErrs validation.ValidationErrors
	for i, item := range req.Data {
		errs := validation.Struct(&item)
		if item.Translate && item.Model != "" && item.Model != transcribe.TranslateModel {
			errs = append(errs, validation.ValidationError{
				Field:   "model",
				Message: fmt.Sprintf("translation requires model %s", transcribe.TranslateModel),
			})
		}
		for _, e := range errs {
			e.Field = fmt.Sprintf("data[%d].%s", i, e.Field)
			allErrs = append(allErrs, e)
		}
	}
	if len(allErrs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": allErrs})
		return
	}

	jobIDs := make([]string, 0, len(req.Data))
	for _, item := range req.Data {
		id, err := h.Dispatcher.Submit(r.Context(), job.Params{
			Source:    job.Source{Type: job.SourceURL, URL: item.URL},
			OutputDir: item.OutputDir,
			Language:  item.Language,
			Model:     item.Model,
			Translate: item.Translate,
		})
		if err != nil {
			slog.Error("failed to submit job", "url", item.URL, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		jobIDs = append(jobIDs, id.String())
	}

	slog.Info("jobs submitted", "count", len(jobIDs))
	writeJSON(w, http.StatusAccepted, map[string]any{"job_ids": jobIDs})
}

func (h *Handlers) submitUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) != 1 {
		http.Error(w, "exactly one file must be provided", http.StatusBadRequest)
		return
	}
	fh := files[0]

	if errs := validation.ValidateUpload(fh, h.Config.MaxUploadSize); len(errs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": errs})
		return
	}

	translate, _ := strconv.ParseBool(r.FormValue("translate"))
	model := r.FormValue("model")
	if translate && model != "" && model != transcribe.TranslateModel {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": validation.ValidationErrors{{
				Field:   "model",
				Message: fmt.Sprintf("translation requires model %s", transcribe.TranslateModel),
			}},
		})
		return
	}

	stagedPath, err := h.stageUpload(fh)
	if err != nil {
		slog.Error("failed to stage upload", "filename", fh.Filename, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	id, err := h.Dispatcher.Submit(r.Context(), job.Params{
		Source: job.Source{
			Type:       job.SourceUpload,
			UploadPath: stagedPath,
			UploadName: fh.Filename,
		},
		OutputDir: r.FormValue("output_dir"),
		Language:  r.FormValue("language"),
		Model:     model,
		Translate: translate,
	})
	if err != nil {
		os.Remove(stagedPath)
		slog.Error("failed to submit upload job", "filename", fh.Filename, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	slog.Info("upload job submitted", "job_id", id, "filename", fh.Filename, "size", fh.Size)
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id.String()})
}

func (h *Handlers) stageUpload(fh *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(h.Config.UploadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	stagedPath := filepath.Join(h.Config.UploadDir, uuid.New().String()+filepath.Ext(fh.Filename))
	dst, err := os.Create(stagedPath)
	if err != nil {
		return "", fmt.Errorf("failed to create staged file: %w", err)
	}
	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(stagedPath)
		return "", fmt.Errorf("failed to write staged file: %w", err)
	}
	return stagedPath, nil
}

func (h *Handlers) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		// malformed ids are indistinguishable from never-submitted ones
		writeJSON(w, http.StatusNotFound, dispatcher.Snapshot{Status: dispatcher.StatusNotFound})
		return
	}

	snap, err := h.Dispatcher.Status(r.Context(), id)
	if err != nil {
		slog.Error("failed to read job status", "job_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if snap.Status == dispatcher.StatusNotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, snap)
}

func (h *Handlers) resumeJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"outcome": dispatcher.OutcomeNotFound})
		return
	}

	outcome, err := h.Dispatcher.Resume(r.Context(), id)
	if err != nil {
		slog.Error("failed to resume job", "job_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	switch outcome {
	case dispatcher.OutcomeNotFound:
		status = http.StatusNotFound
	case dispatcher.OutcomeCannotResume:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{"outcome": outcome})
}

func (h *Handlers) listIncomplete(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Dispatcher.ListIncomplete(r.Context())
	if err != nil {
		slog.Error("failed to list incomplete jobs", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"incomplete_jobs": out,
		"count":           len(out),
	})
}

func (h *Handlers) serveFiles(w http.ResponseWriter, r *http.Request) {
	filePath := strings.TrimPrefix(r.URL.Path, "/files/")
	if filePath == "" {
		http.Error(w, "file path required", http.StatusBadRequest)
		return
	}

	if strings.Contains(filePath, "..") {
		http.Error(w, "invalid file path", http.StatusBadRequest)
		return
	}

	fullPath := filepath.Join(h.Config.LocalStorageDir, filePath)
	http.ServeFile(w, r, fullPath)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "err", err)
	}
}
