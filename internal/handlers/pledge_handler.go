package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pledgeball_sync/internal/cache"
	"pledgeball_sync/internal/metrics"
	"pledgeball_sync/internal/models"
	"pledgeball_sync/internal/service"
)

// PledgeDispatcher accepts a raw pledge and reports the outward outcome.
type PledgeDispatcher interface {
	SubmitPledge(ctx context.Context, req *models.PledgeRequest) (*models.DispatchResult, error)
}

// QueueRunner is the one-round-at-a-time drain operation plus its summary.
type QueueRunner interface {
	Summary(ctx context.Context) (*models.QueueSummary, error)
	RunOneRound(ctx context.Context) (*models.QueueRound, error)
}

// QueueReader exposes the stored queue views for the admin endpoints.
type QueueReader interface {
	Queue(ctx context.Context) (*models.QueueSnapshot, error)
	Backup(ctx context.Context, eventID int64) ([]models.Submission, error)
	DeadLetters(ctx context.Context) (*models.QueueSnapshot, error)
}

// RemoteReader is the read-only side of the Pledgeball API.
type RemoteReader interface {
	FetchEvent(ctx context.Context, id int64) (json.RawMessage, error)
	FetchPledgeDefinitions(ctx context.Context, filters map[string]string) (json.RawMessage, error)
}

type PledgeHandler struct {
	dispatcher PledgeDispatcher
	runner     QueueRunner
	reader     QueueReader
	remote     RemoteReader
	cache      cache.Cache
	ttl        time.Duration
}

func NewPledgeHandler(
	dispatcher PledgeDispatcher,
	runner QueueRunner,
	reader QueueReader,
	remote RemoteReader,
	c cache.Cache,
	ttl time.Duration,
) *PledgeHandler {
	return &PledgeHandler{
		dispatcher: dispatcher,
		runner:     runner,
		reader:     reader,
		remote:     remote,
		cache:      c,
		ttl:        ttl,
	}
}

// POST /api/pledges
// 201: { "accepted": true, "queued": bool, "message": "..." }
// 400: invalid input
// 503: not delivered and not queued
func (h *PledgeHandler) SubmitPledge(w http.ResponseWriter, r *http.Request) {
	var req models.PledgeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	out, err := h.dispatcher.SubmitPledge(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	if !out.Accepted {
		writeJSON(w, http.StatusServiceUnavailable, out)
		return
	}

	writeJSON(w, http.StatusCreated, out)
}

// GET /api/queue
// 200: { "event_ids": [...], "by_event": { "<event_id>": [submissions] } }
func (h *PledgeHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	snap, err := h.reader.Queue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GET /api/queue/summary
// 200: { "event_count": n, "pledge_count": n }
func (h *PledgeHandler) GetQueueSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// POST /api/queue/run
// 200: { "event_count": n, "pledge_count": n, "done": bool, "delivered": bool, "dead_lettered": bool }
// The client polls this endpoint until done is true.
func (h *PledgeHandler) RunQueue(w http.ResponseWriter, r *http.Request) {
	round, err := h.runner.RunOneRound(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// GET /api/queue/deadletter
func (h *PledgeHandler) GetDeadLetters(w http.ResponseWriter, r *http.Request) {
	snap, err := h.reader.DeadLetters(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GET /api/events/{event_id}/backup
// 200: [submissions], empty list when nothing was delivered for the event
func (h *PledgeHandler) GetEventBackup(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.ParseInt(chi.URLParam(r, "event_id"), 10, 64)
	if err != nil || eventID <= 0 {
		writeError(w, http.StatusBadRequest, "event_id must be a positive integer")
		return
	}

	subs, err := h.reader.Backup(r.Context(), eventID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// GET /api/events/{event_id}/remote
// Remote event passthrough, cached.
func (h *PledgeHandler) GetRemoteEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.ParseInt(chi.URLParam(r, "event_id"), 10, 64)
	if err != nil || eventID <= 0 {
		writeError(w, http.StatusBadRequest, "event_id must be a positive integer")
		return
	}

	var cacheKey string
	if h.cache != nil {
		cacheKey = cache.RemoteEventKey(eventID)
		if b, ok, err := h.cache.Get(r.Context(), cacheKey); err == nil && ok {
			metrics.IncRedisHit()
			w.Header().Set("X-Cache", "HIT")
			writeRawJSON(w, http.StatusOK, b)
			return
		}
	}

	body, err := h.remote.FetchEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "pledgeball unavailable")
		return
	}

	if h.cache != nil {
		_ = h.cache.Set(r.Context(), cacheKey, body, h.ttl)
	}

	metrics.IncRedisMiss()
	w.Header().Set("X-Cache", "MISS")
	writeRawJSON(w, http.StatusOK, body)
}

// GET /api/pledges/definitions?country=...&...
// Remote pledge definitions passthrough, cached per filter set.
func (h *PledgeHandler) GetPledgeDefinitions(w http.ResponseWriter, r *http.Request) {
	filters := make(map[string]string)
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 && strings.TrimSpace(vs[0]) != "" {
			filters[k] = strings.TrimSpace(vs[0])
		}
	}

	var cacheKey string
	if h.cache != nil {
		cacheKey = cache.PledgeDefinitionsKey(filters)
		if b, ok, err := h.cache.Get(r.Context(), cacheKey); err == nil && ok {
			metrics.IncRedisHit()
			w.Header().Set("X-Cache", "HIT")
			writeRawJSON(w, http.StatusOK, b)
			return
		}
	}

	body, err := h.remote.FetchPledgeDefinitions(r.Context(), filters)
	if err != nil {
		writeError(w, http.StatusBadGateway, "pledgeball unavailable")
		return
	}

	if h.cache != nil {
		_ = h.cache.Set(r.Context(), cacheKey, body, h.ttl)
	}

	metrics.IncRedisMiss()
	w.Header().Set("X-Cache", "MISS")
	writeRawJSON(w, http.StatusOK, body)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}

	// Reject a second JSON document in the body.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("only one JSON object is allowed")
	}

	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeRawJSON(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
