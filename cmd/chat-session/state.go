package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/chat-session/session"
)

type viewer interface {
	View() session.View
}

// newStateHandler serves the session view as JSON at GET /state.
func newStateHandler(v viewer) http.Handler {
	r := chi.NewRouter()
	r.Get("/state", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(v.View()); err != nil {
			log.Warn().Err(err).Msg("[client] encode state")
		}
	})
	return r
}
