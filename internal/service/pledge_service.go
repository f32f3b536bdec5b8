package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"pledgeball_sync/internal/metrics"
	"pledgeball_sync/internal/models"
)

var ErrInvalidInput = errors.New("invalid input")

// PledgeSubmitter is the remote delivery call. A nil response with a non-nil
// error means the pledge definitely did not arrive.
type PledgeSubmitter interface {
	CreatePledge(ctx context.Context, sub *models.Submission) (*models.RemoteResponse, error)
}

// OutcomeHandler observes a completed delivery attempt. Handler errors are
// logged, never surfaced to the submitting user.
type OutcomeHandler func(ctx context.Context, sub *models.Submission, resp *models.RemoteResponse) error

// OutcomeFilter may replace the outward-facing result of a dispatch.
type OutcomeFilter func(ctx context.Context, out *models.DispatchResult, sub *models.Submission) *models.DispatchResult

// PledgeService accepts raw pledge input, validates it, attempts remote
// delivery exactly once and routes the outcome through the registered
// handler/filter chains. Retrying is the queue runner's job, never this one's.
type PledgeService struct {
	remote            PledgeSubmitter
	eventGroupID      int64
	otherPledgeNumber int
	skipSubmit        bool
	logger            *log.Logger
	now               func() time.Time

	handlers []OutcomeHandler
	filters  []OutcomeFilter
}

func NewPledgeService(
	remote PledgeSubmitter,
	eventGroupID int64,
	otherPledgeNumber int,
	skipSubmit bool,
	logger *log.Logger,
) *PledgeService {
	if logger == nil {
		logger = log.Default()
	}
	if otherPledgeNumber <= 0 {
		otherPledgeNumber = 66
	}

	return &PledgeService{
		remote:            remote,
		eventGroupID:      eventGroupID,
		otherPledgeNumber: otherPledgeNumber,
		skipSubmit:        skipSubmit,
		logger:            logger,
		now:               time.Now,
	}
}

// OnSubmission appends a handler to the outcome chain. Handlers run in
// registration order after every delivery attempt.
func (s *PledgeService) OnSubmission(h OutcomeHandler) {
	s.handlers = append(s.handlers, h)
}

// OnResponse appends a filter that may transform the outward result.
func (s *PledgeService) OnResponse(f OutcomeFilter) {
	s.filters = append(s.filters, f)
}

// SubmitPledge validates the request, attempts delivery once and reports the
// possibly filtered outcome. Validation failures reject before any delivery
// attempt and wrap ErrInvalidInput.
func (s *PledgeService) SubmitPledge(ctx context.Context, req *models.PledgeRequest) (*models.DispatchResult, error) {
	sub, err := s.buildSubmission(req)
	if err != nil {
		return nil, err
	}

	metrics.IncPledgeSubmitted()

	var resp *models.RemoteResponse
	if !s.skipSubmit {
		resp, err = s.remote.CreatePledge(ctx, sub)
		if err != nil {
			// Delivery failure is not an error here: the queue hooks
			// decide what the user sees.
			s.logger.Printf("pledge service: remote delivery failed: %v", err)
			resp = nil
		}
	}

	for _, h := range s.handlers {
		if err := h(ctx, sub, resp); err != nil {
			s.logger.Printf("pledge service: outcome handler: %v", err)
		}
	}

	out := &models.DispatchResult{}
	if resp != nil {
		metrics.IncPledgeDelivered("dispatch")
		out.Accepted = true
		out.Message = "Your pledge has been submitted. Thanks for taking part!"
	} else {
		out.Message = "Could not submit the pledge. Please try again."
	}

	for _, f := range s.filters {
		out = f(ctx, out, sub)
	}

	return out, nil
}

func (s *PledgeService) buildSubmission(req *models.PledgeRequest) (*models.Submission, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is nil", ErrInvalidInput)
	}
	if req.EventID <= 0 {
		return nil, fmt.Errorf("%w: event not recognized", ErrInvalidInput)
	}
	if req.PledgeballEventID <= 0 {
		return nil, fmt.Errorf("%w: pledgeball event not recognized", ErrInvalidInput)
	}

	firstName := strings.TrimSpace(req.FirstName)
	if firstName == "" {
		return nil, fmt.Errorf("%w: first name is required", ErrInvalidInput)
	}

	lastName := strings.TrimSpace(req.LastName)
	if lastName == "" {
		return nil, fmt.Errorf("%w: last name is required", ErrInvalidInput)
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}

	if len(req.PledgeIDs) == 0 {
		return nil, fmt.Errorf("%w: choose at least one pledge", ErrInvalidInput)
	}

	if !req.Consent {
		return nil, fmt.Errorf("%w: consent to storing data is required", ErrInvalidInput)
	}

	other := strings.TrimSpace(req.Other)
	pledges := make([]models.PledgeChoice, 0, len(req.PledgeIDs))
	for _, id := range req.PledgeIDs {
		choice := models.PledgeChoice{PledgeNumber: id}
		if id == s.otherPledgeNumber {
			choice.Other = other
		}
		pledges = append(pledges, choice)
	}

	return &models.Submission{
		EventID:           req.EventID,
		PledgeballEventID: req.PledgeballEventID,
		EventGroupID:      s.eventGroupID,
		FirstName:         firstName,
		LastName:          lastName,
		Email:             email,
		Pledges:           pledges,
		Consent:           true,
		OKEmails:          req.OKEmails,
		SubmittedAt:       s.now().UTC(),
	}, nil
}
