package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"pledgeball_sync/internal/models"
	"pledgeball_sync/internal/service"
)

type stubDispatcher struct {
	out *models.DispatchResult
	err error
}

func (s *stubDispatcher) SubmitPledge(_ context.Context, _ *models.PledgeRequest) (*models.DispatchResult, error) {
	return s.out, s.err
}

type stubRunner struct {
	summary *models.QueueSummary
	round   *models.QueueRound
	err     error
}

func (s *stubRunner) Summary(_ context.Context) (*models.QueueSummary, error) {
	return s.summary, s.err
}

func (s *stubRunner) RunOneRound(_ context.Context) (*models.QueueRound, error) {
	return s.round, s.err
}

type stubReader struct {
	queue  *models.QueueSnapshot
	backup map[int64][]models.Submission
	dead   *models.QueueSnapshot
	err    error
}

func (s *stubReader) Queue(_ context.Context) (*models.QueueSnapshot, error) {
	return s.queue, s.err
}

func (s *stubReader) Backup(_ context.Context, eventID int64) ([]models.Submission, error) {
	return s.backup[eventID], s.err
}

func (s *stubReader) DeadLetters(_ context.Context) (*models.QueueSnapshot, error) {
	return s.dead, s.err
}

type stubRemote struct {
	event       json.RawMessage
	definitions json.RawMessage
	err         error
}

func (s *stubRemote) FetchEvent(_ context.Context, _ int64) (json.RawMessage, error) {
	return s.event, s.err
}

func (s *stubRemote) FetchPledgeDefinitions(_ context.Context, _ map[string]string) (json.RawMessage, error) {
	return s.definitions, s.err
}

func newTestRouter(h *PledgeHandler) *chi.Mux {
	r := chi.NewRouter()
	RegisterPledgeRoutes(r, h)
	return r
}

const validBody = `{
	"eo_event_id": 7,
	"event_id": 107,
	"first_name": "Ada",
	"last_name": "Lovelace",
	"email": "ada@example.org",
	"pledge_ids": [3],
	"consent": true
}`

func TestSubmitPledgeAccepted(t *testing.T) {
	h := NewPledgeHandler(
		&stubDispatcher{out: &models.DispatchResult{Accepted: true, Message: "thanks"}},
		&stubRunner{}, &stubReader{}, &stubRemote{}, nil, 0,
	)
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/pledges", strings.NewReader(validBody)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var out models.DispatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Accepted || out.Message != "thanks" {
		t.Fatalf("result = %+v", out)
	}
}

func TestSubmitPledgeQueuedStillCreated(t *testing.T) {
	h := NewPledgeHandler(
		&stubDispatcher{out: &models.DispatchResult{Accepted: true, Queued: true, Message: "received"}},
		&stubRunner{}, &stubReader{}, &stubRemote{}, nil, 0,
	)
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/pledges", strings.NewReader(validBody)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 for an accepted-but-queued pledge", rec.Code)
	}
}

func TestSubmitPledgeRejections(t *testing.T) {
	tests := []struct {
		name       string
		dispatcher PledgeDispatcher
		body       string
		wantStatus int
	}{
		{
			"invalid input",
			&stubDispatcher{err: fmt.Errorf("%w: email is required", service.ErrInvalidInput)},
			validBody,
			http.StatusBadRequest,
		},
		{
			"not accepted",
			&stubDispatcher{out: &models.DispatchResult{Accepted: false, Message: "try again"}},
			validBody,
			http.StatusServiceUnavailable,
		},
		{
			"internal error",
			&stubDispatcher{err: errors.New("boom")},
			validBody,
			http.StatusInternalServerError,
		},
		{
			"malformed json",
			&stubDispatcher{},
			`{"eo_event_id":`,
			http.StatusBadRequest,
		},
		{
			"unknown field",
			&stubDispatcher{},
			`{"eo_event_id": 7, "surprise": true}`,
			http.StatusBadRequest,
		},
		{
			"two documents",
			&stubDispatcher{},
			`{"eo_event_id": 7} {"eo_event_id": 8}`,
			http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPledgeHandler(tt.dispatcher, &stubRunner{}, &stubReader{}, &stubRemote{}, nil, 0)
			router := newTestRouter(h)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/pledges", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}
}

func TestGetQueueSummary(t *testing.T) {
	h := NewPledgeHandler(
		&stubDispatcher{},
		&stubRunner{summary: &models.QueueSummary{EventCount: 2, PledgeCount: 5}},
		&stubReader{}, &stubRemote{}, nil, 0,
	)
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/queue/summary", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var summary models.QueueSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.EventCount != 2 || summary.PledgeCount != 5 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRunQueue(t *testing.T) {
	h := NewPledgeHandler(
		&stubDispatcher{},
		&stubRunner{round: &models.QueueRound{EventCount: 1, PledgeCount: 1, Delivered: true}},
		&stubReader{}, &stubRemote{}, nil, 0,
	)
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/queue/run", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var round models.QueueRound
	if err := json.Unmarshal(rec.Body.Bytes(), &round); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if round.PledgeCount != 1 || !round.Delivered || round.Done {
		t.Fatalf("round = %+v", round)
	}
}

func TestGetEventBackup(t *testing.T) {
	h := NewPledgeHandler(
		&stubDispatcher{}, &stubRunner{},
		&stubReader{backup: map[int64][]models.Submission{
			7: {{EventID: 7, Email: "ada@example.org"}},
		}},
		&stubRemote{}, nil, 0,
	)
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/7/backup", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var subs []models.Submission
	if err := json.Unmarshal(rec.Body.Bytes(), &subs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(subs) != 1 || subs[0].Email != "ada@example.org" {
		t.Fatalf("backup = %+v", subs)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/zero/backup", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d for a non-numeric event id", rec.Code)
	}
}

func TestGetRemoteEvent(t *testing.T) {
	h := NewPledgeHandler(
		&stubDispatcher{}, &stubRunner{}, &stubReader{},
		&stubRemote{event: json.RawMessage(`{"id": 107}`)}, nil, 0,
	)
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/107/remote", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("X-Cache = %q, want MISS without a cache wired", rec.Header().Get("X-Cache"))
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"id": 107}` {
		t.Fatalf("body = %q", got)
	}
}

func TestGetRemoteEventUnavailable(t *testing.T) {
	h := NewPledgeHandler(
		&stubDispatcher{}, &stubRunner{}, &stubReader{},
		&stubRemote{err: errors.New("connection refused")}, nil, 0,
	)
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/107/remote", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestGetPledgeDefinitions(t *testing.T) {
	h := NewPledgeHandler(
		&stubDispatcher{}, &stubRunner{}, &stubReader{},
		&stubRemote{definitions: json.RawMessage(`[{"number": 3}]`)}, nil, 0,
	)
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/pledges/definitions?category=travel", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `[{"number": 3}]` {
		t.Fatalf("body = %q", got)
	}
}
