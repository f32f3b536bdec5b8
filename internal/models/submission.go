package models

import "time"

// PledgeChoice is one pledge picked on the form. The JSON field names match
// the Pledgeball API wire format.
type PledgeChoice struct {
	PledgeNumber int    `json:"pledgenumber"`
	Other        string `json:"other"`
}

// Submission is one pledge attempt. It is immutable once built: the queue
// stores it wholesale and removes it by full structural match, so nothing may
// mutate a Submission after it has been handed to the outcome hooks.
type Submission struct {
	EventID           int64          `json:"eo_event_id"`
	PledgeballEventID int64          `json:"eventid"`
	EventGroupID      int64          `json:"eventgroup,omitempty"`
	FirstName         string         `json:"firstname"`
	LastName          string         `json:"lastname"`
	Email             string         `json:"email"`
	Pledges           []PledgeChoice `json:"pledges"`
	Consent           bool           `json:"consent"`
	OKEmails          bool           `json:"okemails"`
	SubmittedAt       time.Time      `json:"submitted_at"`
}

// PledgeRequest is the raw form input accepted by POST /api/pledges.
type PledgeRequest struct {
	EventID           int64  `json:"eo_event_id"`
	PledgeballEventID int64  `json:"event_id"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Email             string `json:"email"`
	PledgeIDs         []int  `json:"pledge_ids"`
	Other             string `json:"other"`
	Consent           bool   `json:"consent"`
	OKEmails          bool   `json:"okemails"`
}

// RemoteResponse is what Pledgeball returns for a created pledge. A nil
// *RemoteResponse is the failure sentinel: delivery definitely did not happen.
type RemoteResponse struct {
	PledgeIDs []int64 `json:"pledge_ids"`
}

// DispatchResult is the outward-facing outcome of one dispatch. Queued means
// the pledge could not be delivered but is safely cached for the queue runner;
// the caller still sees Accepted in that case.
type DispatchResult struct {
	Accepted bool   `json:"accepted"`
	Queued   bool   `json:"queued"`
	Message  string `json:"message"`
}
