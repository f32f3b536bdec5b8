package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"pledgeball_sync/internal/metrics"
	"pledgeball_sync/internal/models"
	"pledgeball_sync/internal/queue"
)

// DeliveryPublisher announces a confirmed delivery to downstream consumers.
type DeliveryPublisher interface {
	PublishDelivery(sub *models.Submission, resp *models.RemoteResponse, source string) error
}

// QueueRunner drains one queued submission per invocation and reports the
// remaining totals. It holds no queue state of its own and is meant to be
// called repeatedly (a polling admin UI) until Done.
type QueueRunner struct {
	cache       *queue.PledgeCache
	remote      PledgeSubmitter
	policy      queue.SelectionPolicy
	publisher   DeliveryPublisher
	skipSubmit  bool
	maxAttempts int
	logger      *log.Logger

	// Serializes select+dequeue. Without it two concurrent rounds could
	// pick the same submission and deliver it twice.
	mu sync.Mutex
}

func NewQueueRunner(
	cache *queue.PledgeCache,
	remote PledgeSubmitter,
	policy queue.SelectionPolicy,
	publisher DeliveryPublisher,
	skipSubmit bool,
	maxAttempts int,
	logger *log.Logger,
) *QueueRunner {
	if policy == nil {
		policy = queue.LIFOPolicy{}
	}
	if logger == nil {
		logger = log.Default()
	}
	if maxAttempts < 0 {
		maxAttempts = 0
	}

	return &QueueRunner{
		cache:       cache,
		remote:      remote,
		policy:      policy,
		publisher:   publisher,
		skipSubmit:  skipSubmit,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Summary reports current queue totals without attempting a delivery.
func (r *QueueRunner) Summary(ctx context.Context) (*models.QueueSummary, error) {
	return r.cache.Summary(ctx)
}

// RunOneRound attempts delivery of exactly one queued submission. A failed
// attempt is reported as no progress, not as an error; only an unreachable
// store is an error. With maxAttempts > 0 a submission that keeps failing is
// parked in the dead letter set once it reaches the cap.
func (r *QueueRunner) RunOneRound(ctx context.Context) (*models.QueueRound, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.cache.Queue(ctx)
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}

	eventCount := snap.EventCount()
	pledgeCount := snap.PledgeCount()

	if pledgeCount == 0 {
		return &models.QueueRound{Done: true}, nil
	}

	eventID, sub, ok := r.policy.Select(snap)
	if !ok {
		return &models.QueueRound{Done: true}, nil
	}

	round := &models.QueueRound{
		EventCount:  eventCount,
		PledgeCount: pledgeCount,
	}

	if r.deliver(ctx, sub) {
		if err := r.cache.Dequeue(ctx, sub); err != nil {
			return nil, fmt.Errorf("dequeue: %w", err)
		}
		if err := r.cache.ClearAttempts(ctx, sub); err != nil {
			r.logger.Printf("queue runner: clear attempts: %v", err)
		}
		r.shrinkCounts(eventID, snap, round)
		metrics.IncPledgeDelivered("queue_runner")
		round.Delivered = true
	} else if r.maxAttempts > 0 {
		attempts, err := r.cache.IncrementAttempts(ctx, sub)
		if err != nil {
			return nil, fmt.Errorf("count attempts: %w", err)
		}
		if attempts >= r.maxAttempts {
			if err := r.cache.MoveToDeadLetter(ctx, sub); err != nil {
				return nil, fmt.Errorf("dead-letter: %w", err)
			}
			r.logger.Printf("queue runner: dead-lettered submission for event %d after %d attempts", eventID, attempts)
			r.shrinkCounts(eventID, snap, round)
			round.DeadLettered = true
		}
	}

	round.Done = round.PledgeCount == 0
	return round, nil
}

func (r *QueueRunner) deliver(ctx context.Context, sub *models.Submission) bool {
	if r.skipSubmit {
		return true
	}

	if !sub.SubmittedAt.IsZero() {
		metrics.ObserveQueueLagSeconds(time.Since(sub.SubmittedAt).Seconds())
	}

	resp, err := r.remote.CreatePledge(ctx, sub)
	if err != nil || resp == nil {
		r.logger.Printf("queue runner: delivery failed for event %d: %v", sub.EventID, err)
		return false
	}

	// Retried-and-now-successful submissions get a backup entry too, the
	// same as first-attempt successes.
	if err := r.cache.AddBackup(ctx, sub, resp); err != nil {
		r.logger.Printf("queue runner: backup after retry: %v", err)
	}
	if r.publisher != nil {
		if err := r.publisher.PublishDelivery(sub, resp, "queue_runner"); err != nil {
			r.logger.Printf("queue runner: publish delivery event: %v", err)
		}
	}

	return true
}

func (r *QueueRunner) shrinkCounts(eventID int64, snap *models.QueueSnapshot, round *models.QueueRound) {
	round.PledgeCount--
	if len(snap.ByEvent[eventID]) == 1 {
		round.EventCount--
	}
}
