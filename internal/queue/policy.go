package queue

import "pledgeball_sync/internal/models"

// SelectionPolicy picks the next submission the runner should attempt. The
// queue has no business-meaningful order, so the policy is explicit and
// swappable rather than baked into the runner.
type SelectionPolicy interface {
	Name() string
	Select(snap *models.QueueSnapshot) (int64, *models.Submission, bool)
}

// LIFOPolicy picks the last event in enumeration order, then the most
// recently queued submission within it. Matches the pop-last behavior queued
// data was drained with historically.
type LIFOPolicy struct{}

func (LIFOPolicy) Name() string { return "lifo" }

func (LIFOPolicy) Select(snap *models.QueueSnapshot) (int64, *models.Submission, bool) {
	if snap == nil || len(snap.EventIDs) == 0 {
		return 0, nil, false
	}
	eventID := snap.EventIDs[len(snap.EventIDs)-1]
	subs := snap.ByEvent[eventID]
	if len(subs) == 0 {
		return 0, nil, false
	}
	sub := subs[len(subs)-1]
	return eventID, &sub, true
}

// FIFOPolicy picks the first event, then its oldest queued submission.
type FIFOPolicy struct{}

func (FIFOPolicy) Name() string { return "fifo" }

func (FIFOPolicy) Select(snap *models.QueueSnapshot) (int64, *models.Submission, bool) {
	if snap == nil || len(snap.EventIDs) == 0 {
		return 0, nil, false
	}
	eventID := snap.EventIDs[0]
	subs := snap.ByEvent[eventID]
	if len(subs) == 0 {
		return 0, nil, false
	}
	sub := subs[0]
	return eventID, &sub, true
}

// PolicyByName maps a config value to a policy, defaulting to LIFO.
func PolicyByName(name string) SelectionPolicy {
	if name == "fifo" {
		return FIFOPolicy{}
	}
	return LIFOPolicy{}
}
