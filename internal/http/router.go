// Package http exposes the caption transcripts over HTTP and websocket.
package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"live-caption-service/internal/models"
	"live-caption-service/internal/service/captioner"
	"live-caption-service/internal/service/recognizer"
)

const writeWait = 5 * time.Second

// Captions is the part of the caption controller served over HTTP.
// *captioner.Controller satisfies it.
type Captions interface {
	Running() bool
	Transcript() models.TranscriptDocument
	History() models.TranscriptDocument
	Status() captioner.Status
	Settings() recognizer.Settings
	UpdateSettings(s recognizer.Settings) error
	Subscribe() (<-chan models.TranscriptDocument, func())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(captions Captions) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !captions.Running() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("recognizer not running"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/transcript", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, captions.Transcript())
		})
		r.Get("/history", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, captions.History())
		})
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, captions.Status())
		})
		r.Get("/settings", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, captions.Settings())
		})
		r.Put("/settings", updateSettings(captions))
		r.Get("/stream", streamTranscript(captions))
	})

	return r
}

func updateSettings(captions Captions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := captions.Settings()
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			writeError(w, http.StatusBadRequest, "malformed settings: "+err.Error())
			return
		}
		if err := captions.UpdateSettings(s); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, captions.Settings())
	}
}

// streamTranscript pushes the live transcript to a websocket client: the
// current document on connect, then every change.
func streamTranscript(captions Captions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		updates, cancel := captions.Subscribe()
		defer cancel()

		// Reads only detect the client going away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		logger := log.With().Str("component", "transcript-stream").Str("remote", r.RemoteAddr).Logger()
		logger.Debug().Msg("Client connected")

		send := func(doc models.TranscriptDocument) bool {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(doc); err != nil {
				logger.Debug().Err(err).Msg("Write failed")
				return false
			}
			return true
		}

		if !send(captions.Transcript()) {
			return
		}
		for {
			select {
			case <-gone:
				logger.Debug().Msg("Client disconnected")
				return
			case <-r.Context().Done():
				return
			case doc, ok := <-updates:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
						time.Now().Add(writeWait))
					return
				}
				if !send(doc) {
					return
				}
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
