package models

// QueueSnapshot is the computed-on-demand view of one meta key: every event
// that has at least one entry, in ascending event id order. Events with no
// entries never appear.
type QueueSnapshot struct {
	EventIDs []int64                `json:"event_ids"`
	ByEvent  map[int64][]Submission `json:"by_event"`
}

func (s *QueueSnapshot) EventCount() int {
	return len(s.EventIDs)
}

func (s *QueueSnapshot) PledgeCount() int {
	n := 0
	for _, subs := range s.ByEvent {
		n += len(subs)
	}
	return n
}

// QueueSummary is the admin-facing aggregate.
type QueueSummary struct {
	EventCount  int `json:"event_count"`
	PledgeCount int `json:"pledge_count"`
}

// QueueRound reports one queue runner invocation. Counts are the totals
// remaining after this round; Done means the queue is drained.
type QueueRound struct {
	EventCount   int  `json:"event_count"`
	PledgeCount  int  `json:"pledge_count"`
	Done         bool `json:"done"`
	Delivered    bool `json:"delivered"`
	DeadLettered bool `json:"dead_lettered"`
}
