package handlers

import "github.com/go-chi/chi/v5"

func RegisterPledgeRoutes(r chi.Router, h *PledgeHandler) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/pledges", h.SubmitPledge)
		r.Get("/pledges/definitions", h.GetPledgeDefinitions)

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", h.GetQueue)
			r.Get("/summary", h.GetQueueSummary)
			r.Post("/run", h.RunQueue)
			r.Get("/deadletter", h.GetDeadLetters)
		})

		r.Route("/events/{event_id}", func(r chi.Router) {
			r.Get("/backup", h.GetEventBackup)
			r.Get("/remote", h.GetRemoteEvent)
		})
	})
}
