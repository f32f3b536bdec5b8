package metrics

import (
	"context"
	"log"
	"time"

	"pledgeball_sync/internal/store"
)

var collectedKeys = []string{
	"pledge_submit_queue",
	"pledge_submit_backup",
	"pledge_dead_letter",
}

// StartQueueCollector periodically refreshes the queue gauges from the meta
// store so the pending/dead-letter totals survive between runner rounds.
func StartQueueCollector(ctx context.Context, st store.MetaStore, interval time.Duration, logger *log.Logger) {
	if st == nil {
		return
	}
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		updateQueueGauges(ctx, st, logger)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				updateQueueGauges(ctx, st, logger)
			}
		}
	}()
}

func updateQueueGauges(ctx context.Context, st store.MetaStore, logger *log.Logger) {
	for _, key := range collectedKeys {
		n, err := st.CountAll(ctx, key)
		if err != nil {
			logger.Printf("metrics queue collector: count %s: %v", key, err)
			continue
		}
		SetMetaValueCount(key, n)
		if key == "pledge_submit_queue" {
			SetQueuePending(n)
		}
	}

	ids, err := st.EventIDs(ctx, "pledge_submit_queue")
	if err != nil {
		logger.Printf("metrics queue collector: event ids: %v", err)
		return
	}
	SetQueueEvents(int64(len(ids)))
}
