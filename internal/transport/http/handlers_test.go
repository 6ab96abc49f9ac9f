package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/avetisov/mediascribe/internal/auth"
	"github.com/avetisov/mediascribe/internal/config"
	"github.com/avetisov/mediascribe/internal/dispatcher"
	"github.com/avetisov/mediascribe/internal/job"
	"github.com/avetisov/mediascribe/internal/store"
	"github.com/avetisov/mediascribe/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandlers(t *testing.T, cfg config.Config, work worker.Func) (*Handlers, http.Handler) {
	t.Helper()

	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "jobs.json"))
	require.NoError(t, err)
	if work == nil {
		work = func(ctx context.Context, p job.Params, progress worker.ProgressFunc) (*job.Result, error) {
			return &job.Result{Text: "transcript"}, nil
		}
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = t.TempDir()
	}
	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = 10 << 20
	}

	h := &Handlers{
		Dispatcher: dispatcher.New(st, work, dispatcher.Options{}),
		Store:      st,
		Config:     cfg,
	}

	r := chi.NewRouter()
	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)
	h.Routers(r)
	return h, r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func waitForStatus(t *testing.T, router http.Handler, id, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec := doJSON(t, router, http.MethodGet, "/v1/jobs/"+id, nil)
		body := decode(t, rec)
		if body["status"] == want {
			return body
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", id, want)
	return nil
}

func TestHealthEndpoints(t *testing.T) {
	_, router := newTestHandlers(t, config.Config{}, nil)

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = doJSON(t, router, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "checks")
}

func TestSubmitJobs_BatchLifecycle(t *testing.T) {
	_, router := newTestHandlers(t, config.Config{}, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/jobs", map[string]any{
		"data": []map[string]any{
			{"url": "https://example.com/a"},
			{"url": "https://example.com/b", "language": "russian"},
		},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decode(t, rec)
	ids, ok := body["job_ids"].([]any)
	require.True(t, ok)
	require.Len(t, ids, 2)

	for _, raw := range ids {
		id := raw.(string)
		final := waitForStatus(t, router, id, "complete")
		assert.Equal(t, float64(100), final["progress"])
		result := final["result"].(map[string]any)
		assert.Equal(t, "transcript", result["text"])
	}
}

func TestSubmitJobs_ValidationFailure(t *testing.T) {
	_, router := newTestHandlers(t, config.Config{}, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/jobs", map[string]any{
		"data": []map[string]any{
			{"url": "not a url"},
			{"url": "https://example.com/ok", "model": "gpt-4"},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decode(t, rec)
	errs, ok := body["errors"].([]any)
	require.True(t, ok)
	assert.Len(t, errs, 2)
}

func TestSubmitJobs_TranslateNeedsLargeModel(t *testing.T) {
	_, router := newTestHandlers(t, config.Config{}, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/jobs", map[string]any{
		"data": []map[string]any{
			{"url": "https://example.com/a", "model": "whisper-1", "translate": true},
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSubmitJobs_EmptyAndMalformedBody(t *testing.T) {
	_, router := newTestHandlers(t, config.Config{}, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/jobs", map[string]any{"data": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader("{not json"))
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestGetJob_UnknownAndMalformedID(t *testing.T) {
	_, router := newTestHandlers(t, config.Config{}, nil)

	rec := doJSON(t, router, http.MethodGet, "/v1/jobs/0b4db3ac-9a34-4c6f-8e9f-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode(t, rec)["status"])

	// malformed ids read the same as never-submitted ones
	rec = doJSON(t, router, http.MethodGet, "/v1/jobs/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode(t, rec)["status"])
}

func TestGetJob_FailedJobCarriesError(t *testing.T) {
	_, router := newTestHandlers(t, config.Config{}, func(ctx context.Context, p job.Params, progress worker.ProgressFunc) (*job.Result, error) {
		return nil, assert.AnError
	})

	rec := doJSON(t, router, http.MethodPost, "/v1/jobs", map[string]any{
		"data": []map[string]any{{"url": "https://example.com/a"}},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode(t, rec)["job_ids"].([]any)[0].(string)

	final := waitForStatus(t, router, id, "failed")
	result := final["result"].(map[string]any)
	assert.NotEmpty(t, result["error"])
	// failed snapshots carry the description, not a progress figure
	assert.NotContains(t, final, "progress")
}

func TestResumeJob_OutcomeMapping(t *testing.T) {
	h, router := newTestHandlers(t, config.Config{}, nil)

	// unknown id
	rec := doJSON(t, router, http.MethodPost, "/v1/jobs/0b4db3ac-9a34-4c6f-8e9f-000000000000/resume", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode(t, rec)["outcome"])

	// finished job
	rec = doJSON(t, router, http.MethodPost, "/v1/jobs", map[string]any{
		"data": []map[string]any{{"url": "https://example.com/a"}},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode(t, rec)["job_ids"].([]any)[0].(string)
	waitForStatus(t, router, id, "complete")

	rec = doJSON(t, router, http.MethodPost, "/v1/jobs/"+id+"/resume", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "already_finished", decode(t, rec)["outcome"])

	// upload-sourced jobs cannot be resumed
	uploaded := &job.Job{
		ID:     uuid.New(),
		Status: job.StatusDownloading,
		Params: &job.Params{
			Source: job.Source{Type: job.SourceUpload, UploadPath: "/tmp/gone", UploadName: "x.mp4"},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.Store.Create(context.Background(), uploaded))

	rec = doJSON(t, router, http.MethodPost, "/v1/jobs/"+uploaded.ID.String()+"/resume", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "cannot_resume", decode(t, rec)["outcome"])
}

func TestListIncomplete(t *testing.T) {
	_, router := newTestHandlers(t, config.Config{}, func(ctx context.Context, p job.Params, progress worker.ProgressFunc) (*job.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	rec := doJSON(t, router, http.MethodGet, "/v1/jobs/incomplete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["count"])

	rec = doJSON(t, router, http.MethodPost, "/v1/jobs", map[string]any{
		"data": []map[string]any{{"url": "https://example.com/a"}},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode(t, rec)["job_ids"].([]any)[0].(string)

	rec = doJSON(t, router, http.MethodGet, "/v1/jobs/incomplete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.Contains(t, body["incomplete_jobs"].([]any), id)
}

func TestSubmitUpload(t *testing.T) {
	release := make(chan job.Params, 1)
	_, router := newTestHandlers(t, config.Config{}, func(ctx context.Context, p job.Params, progress worker.ProgressFunc) (*job.Result, error) {
		release <- p
		return &job.Result{Text: "uploaded transcript"}, nil
	})

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "standup.wav")
	require.NoError(t, err)
	_, err = part.Write([]byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00\x44\xac\x00\x00\x88\x58\x01\x00\x02\x00\x10\x00data\x00\x00\x00\x00"))
	require.NoError(t, err)
	require.NoError(t, w.WriteField("language", "english"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	id := decode(t, rec)["job_id"].(string)
	require.NotEmpty(t, id)

	select {
	case p := <-release:
		assert.Equal(t, job.SourceUpload, p.Source.Type)
		assert.Equal(t, "standup.wav", p.Source.UploadName)
		assert.Equal(t, "english", p.Language)
	case <-time.After(2 * time.Second):
		t.Fatal("upload job never executed")
	}

	waitForStatus(t, router, id, "complete")
}

func TestSubmitUpload_RejectsNonMedia(t *testing.T) {
	_, router := newTestHandlers(t, config.Config{}, nil)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("plain text, not a recording"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAuthGate(t *testing.T) {
	cfg := config.Config{
		AuthEnabled: true,
		JWTSecret:   "secret",
		JWTIssuer:   "mediascribe-test",
	}
	_, router := newTestHandlers(t, cfg, nil)

	rec := doJSON(t, router, http.MethodGet, "/v1/jobs/incomplete", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := auth.NewToken(cfg.JWTSecret, cfg.JWTIssuer, "client-1", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/incomplete", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// health stays open
	rec = doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
