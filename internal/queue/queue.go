package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"

	"pledgeball_sync/internal/metrics"
	"pledgeball_sync/internal/models"
	"pledgeball_sync/internal/store"
)

// Meta keys. Queue holds submissions not yet confirmed delivered, backup holds
// an audit copy of delivered ones, dead letter holds submissions that exhausted
// their delivery attempts.
const (
	QueueKey      = "pledge_submit_queue"
	BackupKey     = "pledge_submit_backup"
	DeadLetterKey = "pledge_dead_letter"

	attemptsKeyPrefix = "pledge_attempts:"
)

// PledgeCache routes submission outcomes into queue/backup storage and answers
// aggregate queries. It is the queue-side subscriber of the dispatcher's
// outcome chain.
type PledgeCache struct {
	store      store.MetaStore
	skipSubmit bool
	logger     *log.Logger

	// Digests of submissions queued during an in-flight dispatch. Set by
	// EnqueueIfFailed, consumed by FilterResponse. Keyed per submission so
	// concurrent dispatches cannot see each other's flag.
	mu     sync.Mutex
	queued map[string]struct{}
}

func NewPledgeCache(st store.MetaStore, skipSubmit bool, logger *log.Logger) *PledgeCache {
	if logger == nil {
		logger = log.Default()
	}
	return &PledgeCache{
		store:      st,
		skipSubmit: skipSubmit,
		logger:     logger,
		queued:     make(map[string]struct{}),
	}
}

// AddBackup stores an audit copy of a delivered submission. Skipped when the
// delivery failed, unless skip-submit test mode is on (then no response ever
// arrives and the copy is kept anyway).
func (c *PledgeCache) AddBackup(ctx context.Context, sub *models.Submission, resp *models.RemoteResponse) error {
	if sub == nil {
		return fmt.Errorf("submission is nil")
	}
	if resp == nil && !c.skipSubmit {
		return nil
	}

	value, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	if err := c.store.Append(ctx, sub.EventID, BackupKey, value); err != nil {
		return fmt.Errorf("append backup: %w", err)
	}
	return nil
}

// EnqueueIfFailed queues the submission when the delivery response is the
// failure sentinel, and flags it so FilterResponse can override the outward
// result. Successful deliveries are a no-op.
func (c *PledgeCache) EnqueueIfFailed(ctx context.Context, sub *models.Submission, resp *models.RemoteResponse) error {
	if sub == nil {
		return fmt.Errorf("submission is nil")
	}
	if resp != nil {
		return nil
	}

	value, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	if err := c.store.Append(ctx, sub.EventID, QueueKey, value); err != nil {
		return fmt.Errorf("append queue: %w", err)
	}

	c.mu.Lock()
	c.queued[Digest(sub)] = struct{}{}
	c.mu.Unlock()

	metrics.IncPledgeQueued()
	return nil
}

// FilterResponse overrides the outward result with "accepted, queued" when
// this submission was queued during outcome routing, then clears the flag.
// The user never sees a retryable error once the pledge is durably cached.
func (c *PledgeCache) FilterResponse(_ context.Context, out *models.DispatchResult, sub *models.Submission) *models.DispatchResult {
	if sub == nil || out == nil {
		return out
	}

	d := Digest(sub)
	c.mu.Lock()
	_, wasQueued := c.queued[d]
	delete(c.queued, d)
	c.mu.Unlock()

	if !wasQueued {
		return out
	}

	return &models.DispatchResult{
		Accepted: true,
		Queued:   true,
		Message:  "Your pledge has been received and will be passed on to Pledgeball.",
	}
}

// Queue returns every event with at least one queued submission.
func (c *PledgeCache) Queue(ctx context.Context) (*models.QueueSnapshot, error) {
	return c.snapshot(ctx, QueueKey)
}

// QueueForEvent returns the queued submissions for one event, oldest first.
func (c *PledgeCache) QueueForEvent(ctx context.Context, eventID int64) ([]models.Submission, error) {
	return c.readSubmissions(ctx, eventID, QueueKey)
}

// Backup returns the delivered submissions retained for one event.
func (c *PledgeCache) Backup(ctx context.Context, eventID int64) ([]models.Submission, error) {
	return c.readSubmissions(ctx, eventID, BackupKey)
}

// DeadLetters returns every event with dead-lettered submissions.
func (c *PledgeCache) DeadLetters(ctx context.Context) (*models.QueueSnapshot, error) {
	return c.snapshot(ctx, DeadLetterKey)
}

// Dequeue removes the exact submission from the queue. Removing a submission
// that is not queued is a no-op, so repeated dequeues are safe.
func (c *PledgeCache) Dequeue(ctx context.Context, sub *models.Submission) error {
	if sub == nil {
		return fmt.Errorf("submission is nil")
	}

	value, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	if err := c.store.Remove(ctx, sub.EventID, QueueKey, value); err != nil {
		return fmt.Errorf("remove from queue: %w", err)
	}
	return nil
}

// Summary returns the admin-facing counts: events with a non-empty queue and
// total queued pledges across them.
func (c *PledgeCache) Summary(ctx context.Context) (*models.QueueSummary, error) {
	snap, err := c.Queue(ctx)
	if err != nil {
		return nil, err
	}
	return &models.QueueSummary{
		EventCount:  snap.EventCount(),
		PledgeCount: snap.PledgeCount(),
	}, nil
}

// IncrementAttempts bumps the failed-delivery counter for a submission and
// returns the new total.
func (c *PledgeCache) IncrementAttempts(ctx context.Context, sub *models.Submission) (int, error) {
	if sub == nil {
		return 0, fmt.Errorf("submission is nil")
	}

	key := attemptsKeyPrefix + Digest(sub)
	values, err := c.store.ReadAll(ctx, sub.EventID, key)
	if err != nil {
		return 0, fmt.Errorf("read attempts: %w", err)
	}

	n := 0
	if len(values) > 0 {
		if v, err := strconv.Atoi(string(values[0])); err == nil {
			n = v
		}
	}
	n++

	if err := c.store.DeleteAll(ctx, sub.EventID, key); err != nil {
		return 0, fmt.Errorf("reset attempts: %w", err)
	}
	if err := c.store.Append(ctx, sub.EventID, key, json.RawMessage(strconv.Itoa(n))); err != nil {
		return 0, fmt.Errorf("store attempts: %w", err)
	}
	return n, nil
}

// ClearAttempts drops the failed-delivery counter after a confirmed delivery.
func (c *PledgeCache) ClearAttempts(ctx context.Context, sub *models.Submission) error {
	if sub == nil {
		return fmt.Errorf("submission is nil")
	}
	if err := c.store.DeleteAll(ctx, sub.EventID, attemptsKeyPrefix+Digest(sub)); err != nil {
		return fmt.Errorf("clear attempts: %w", err)
	}
	return nil
}

// MoveToDeadLetter takes a submission out of the queue and parks it under the
// dead-letter key so it stops consuming runner rounds.
func (c *PledgeCache) MoveToDeadLetter(ctx context.Context, sub *models.Submission) error {
	if sub == nil {
		return fmt.Errorf("submission is nil")
	}

	value, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	if err := c.store.Remove(ctx, sub.EventID, QueueKey, value); err != nil {
		return fmt.Errorf("remove from queue: %w", err)
	}
	if err := c.store.Append(ctx, sub.EventID, DeadLetterKey, value); err != nil {
		return fmt.Errorf("append dead letter: %w", err)
	}
	if err := c.ClearAttempts(ctx, sub); err != nil {
		c.logger.Printf("queue: clear attempts after dead-letter: %v", err)
	}

	metrics.IncPledgeDeadLettered()
	return nil
}

func (c *PledgeCache) snapshot(ctx context.Context, key string) (*models.QueueSnapshot, error) {
	ids, err := c.store.EventIDs(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", key, err)
	}

	snap := &models.QueueSnapshot{
		EventIDs: make([]int64, 0, len(ids)),
		ByEvent:  make(map[int64][]models.Submission, len(ids)),
	}
	for _, id := range ids {
		subs, err := c.readSubmissions(ctx, id, key)
		if err != nil {
			return nil, err
		}
		if len(subs) == 0 {
			continue
		}
		snap.EventIDs = append(snap.EventIDs, id)
		snap.ByEvent[id] = subs
	}
	return snap, nil
}

func (c *PledgeCache) readSubmissions(ctx context.Context, eventID int64, key string) ([]models.Submission, error) {
	values, err := c.store.ReadAll(ctx, eventID, key)
	if err != nil {
		return nil, fmt.Errorf("read %s for event %d: %w", key, eventID, err)
	}

	subs := make([]models.Submission, 0, len(values))
	for _, v := range values {
		var sub models.Submission
		if err := json.Unmarshal(v, &sub); err != nil {
			return nil, fmt.Errorf("unmarshal submission for event %d: %w", eventID, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// Digest identifies a submission by its canonical JSON form. Used for the
// transient queued flag and the attempt counter key.
func Digest(sub *models.Submission) string {
	b, _ := json.Marshal(sub)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
