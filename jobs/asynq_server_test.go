package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type captureEnqueuer struct {
	types []string
	fail  bool
}

func (c *captureEnqueuer) Enqueue(ctx context.Context, task *asynq.Task) (*asynq.TaskInfo, error) {
	if c.fail {
		return nil, errors.New("queue unavailable")
	}
	c.types = append(c.types, task.Type())
	return &asynq.TaskInfo{}, nil
}

func jobsRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	return r
}

func TestEnqueueIntegrityScan(t *testing.T) {
	client := &captureEnqueuer{}
	h := NewHandler(nil, client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	jobsRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/integrity-scan", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []string{TaskLedgerIntegrity}, client.types)
}

func TestEnqueueReportWarmup(t *testing.T) {
	client := &captureEnqueuer{}
	h := NewHandler(nil, client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	jobsRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/report-warmup", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []string{TaskReportWarmup}, client.types)
}

func TestEnqueueQueueDownUnavailable(t *testing.T) {
	h := NewHandler(nil, &captureEnqueuer{fail: true}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	jobsRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/integrity-scan", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEnqueueWithoutClientUnavailable(t *testing.T) {
	h := NewHandler(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	jobsRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/report-warmup", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
