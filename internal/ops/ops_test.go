package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/cursor"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/queue"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/logger"
)

type testHTTPConfig struct{}

func (testHTTPConfig) GetHTTPAddr() string      { return ":0" }
func (testHTTPConfig) GetCORSOrigins() []string { return []string{"http://localhost:4200"} }

type fakeQueue struct {
	name      string
	stats     queue.Stats
	dead      []queue.DeadLetter
	err       error
	cancelled []string
}

func (f *fakeQueue) Name() string { return f.name }

func (f *fakeQueue) Cancel(_ context.Context, jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

func (f *fakeQueue) Stats(context.Context) (queue.Stats, error) {
	return f.stats, f.err
}

func (f *fakeQueue) DeadLetters(context.Context) ([]queue.DeadLetter, error) {
	return f.dead, f.err
}

type fakeCursorLister struct {
	cursors []cursor.Cursor
	err     error
}

func (f *fakeCursorLister) List() ([]cursor.Cursor, error) { return f.cursors, f.err }

type fakeHealth struct{ err error }

func (f *fakeHealth) Ping(context.Context) error { return f.err }

func newTestServer(queues []QueueInspector, cursors CursorLister, health HealthChecker) *Server {
	return NewServer(testHTTPConfig{}, "test", queues, cursors, health, logger.New("test"))
}

func doRequest(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := newTestServer(nil, &fakeCursorLister{}, &fakeHealth{})
		rec := doRequest(t, srv, "/healthz")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("store down", func(t *testing.T) {
		srv := newTestServer(nil, &fakeCursorLister{}, &fakeHealth{err: errors.New("down")})
		rec := doRequest(t, srv, "/healthz")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestQueueStats(t *testing.T) {
	q := &fakeQueue{name: "leads", stats: queue.Stats{Pending: 3, Failed: 1}}
	srv := newTestServer([]QueueInspector{q}, &fakeCursorLister{}, &fakeHealth{})

	rec := doRequest(t, srv, "/api/v1/queues/leads/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Queue string      `json:"queue"`
		Stats queue.Stats `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Queue != "leads" || body.Stats.Pending != 3 || body.Stats.Failed != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestQueueStatsUnknownQueue(t *testing.T) {
	srv := newTestServer(nil, &fakeCursorLister{}, &fakeHealth{})
	rec := doRequest(t, srv, "/api/v1/queues/nope/stats")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDeadLetters(t *testing.T) {
	q := &fakeQueue{name: "leads", dead: []queue.DeadLetter{
		{Job: queue.Job{ID: "j1", Type: "leads.sync"}, Reason: "boom", DiedAt: time.Now().UTC()},
	}}
	srv := newTestServer([]QueueInspector{q}, &fakeCursorLister{}, &fakeHealth{})

	rec := doRequest(t, srv, "/api/v1/queues/leads/dead-letters")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		DeadLetters []queue.DeadLetter `json:"deadLetters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.DeadLetters) != 1 || body.DeadLetters[0].Job.ID != "j1" {
		t.Errorf("body = %+v", body)
	}
}

func TestCancelJob(t *testing.T) {
	q := &fakeQueue{name: "leads"}
	srv := newTestServer([]QueueInspector{q}, &fakeCursorLister{}, &fakeHealth{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/queues/leads/jobs/j9", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(q.cancelled) != 1 || q.cancelled[0] != "j9" {
		t.Errorf("cancelled = %v", q.cancelled)
	}
}

func TestListCursors(t *testing.T) {
	lister := &fakeCursorLister{cursors: []cursor.Cursor{
		{TenantID: "tenant-a", Position: cursor.Position{ID: 9}},
	}}
	srv := newTestServer(nil, lister, &fakeHealth{})

	rec := doRequest(t, srv, "/api/v1/cursors")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Cursors []cursor.Cursor `json:"cursors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Cursors) != 1 || body.Cursors[0].TenantID != "tenant-a" {
		t.Errorf("body = %+v", body)
	}
}
