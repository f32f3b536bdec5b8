package pledgeball

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"pledgeball_sync/internal/metrics"
	"pledgeball_sync/internal/models"
)

// Client talks to the Pledgeball remote API. Every call can succeed, fail or
// time out; callers treat any error as "definitely not delivered".
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *log.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// pledgePayload is the wire shape Pledgeball expects for a created pledge.
// okemails is 0/1 on the wire, not a boolean.
type pledgePayload struct {
	EventID    int64                 `json:"eventid"`
	EventGroup int64                 `json:"eventgroup,omitempty"`
	FirstName  string                `json:"firstname"`
	LastName   string                `json:"lastname"`
	Email      string                `json:"email"`
	Pledges    []models.PledgeChoice `json:"pledges"`
	OKEmails   int                   `json:"okemails"`
}

// CreatePledge submits one pledge. A nil response with an error is the
// failure sentinel the dispatcher and runner act on.
func (c *Client) CreatePledge(ctx context.Context, sub *models.Submission) (*models.RemoteResponse, error) {
	if sub == nil {
		return nil, fmt.Errorf("submission is nil")
	}

	payload := pledgePayload{
		EventID:    sub.PledgeballEventID,
		EventGroup: sub.EventGroupID,
		FirstName:  sub.FirstName,
		LastName:   sub.LastName,
		Email:      sub.Email,
		Pledges:    sub.Pledges,
	}
	if sub.OKEmails {
		payload.OKEmails = 1
	}

	body, err := c.post(ctx, "/pledges", payload)
	if err != nil {
		return nil, err
	}

	var resp models.RemoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode pledge response: %w", err)
	}
	return &resp, nil
}

// FetchEvent reads one event from the remote system.
func (c *Client) FetchEvent(ctx context.Context, id int64) (json.RawMessage, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid event id")
	}
	return c.get(ctx, "/events/"+strconv.FormatInt(id, 10), nil)
}

// FetchPledgeDefinitions reads the pledge definitions, optionally filtered.
func (c *Client) FetchPledgeDefinitions(ctx context.Context, filters map[string]string) (json.RawMessage, error) {
	return c.get(ctx, "/pledgedefinitions", filters)
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	const op = "create"

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, op)
}

func (c *Client) get(ctx context.Context, path string, filters map[string]string) ([]byte, error) {
	const op = "fetch"

	u := c.baseURL + path
	if len(filters) > 0 {
		q := url.Values{}
		keys := make([]string, 0, len(filters))
		for k := range filters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			q.Set(k, filters[k])
		}
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	return c.do(req, op)
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	metrics.IncRemoteRequest(op)

	resp, err := c.http.Do(req)
	metrics.ObserveRemoteDuration(op, time.Since(start))
	if err != nil {
		metrics.IncRemoteError(op)
		return nil, fmt.Errorf("pledgeball %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.IncRemoteError(op)
		return nil, fmt.Errorf("read pledgeball response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.IncRemoteError(op)
		return nil, fmt.Errorf("pledgeball %s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	return body, nil
}
