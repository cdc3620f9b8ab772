package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"gregoryjjb/pinloop/gpio"
	"gregoryjjb/pinloop/loop"
	"gregoryjjb/pinloop/pubsub"
)

/////////////////////
// Response helpers

func RespondInternalServiceError(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(err.Error()))
}

func RespondNotFoundError(w http.ResponseWriter, body string) {
	w.WriteHeader(http.StatusNotFound)
	if body == "" {
		body = "Not found"
	}
	RespondText(w, body)
}

func RespondBadRequest(w http.ResponseWriter, message string) {
	w.WriteHeader(http.StatusBadRequest)
	RespondText(w, message)
}

func RespondText(w http.ResponseWriter, body string) {
	w.Write([]byte(body))
}

func RespondJSON(w http.ResponseWriter, body any) {
	w.Header().Add("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		RespondInternalServiceError(w, err)
	}
}

// RespondError maps runtime error kinds onto status codes.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, loop.ErrConfiguration):
		RespondBadRequest(w, err.Error())
	case errors.Is(err, loop.ErrResourceState):
		w.WriteHeader(http.StatusConflict)
		RespondText(w, err.Error())
	case errors.Is(err, loop.ErrCapacity):
		w.WriteHeader(http.StatusServiceUnavailable)
		RespondText(w, err.Error())
	default:
		RespondInternalServiceError(w, err)
	}
}

func pinParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	pin, err := strconv.Atoi(chi.URLParam(r, "pin"))
	if err != nil {
		RespondBadRequest(w, "pin must be a number")
		return 0, false
	}
	return pin, true
}

type levelRequest struct {
	Level *bool `json:"level"`
	// Pulse drives Level then its inverse, two edges back to back.
	Pulse bool `json:"pulse"`
}

// NewRouter builds the diagnostics API. Level injection only exists when
// the runtime sits on the simulated driver.
func NewRouter(build BuildInfo, rt *loop.Runtime, events *pubsub.Pubsub[loop.Dispatch]) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(&log.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := rt.Health(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			RespondText(w, err.Error())
			return
		}
		RespondText(w, "ok")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			RespondJSON(w, build)
		})

		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			RespondJSON(w, rt.Stats())
		})

		r.Post("/stats/reset", func(w http.ResponseWriter, r *http.Request) {
			RespondJSON(w, map[string]uint64{"dropped": rt.ResetDropped()})
		})

		r.Get("/pins", func(w http.ResponseWriter, r *http.Request) {
			RespondJSON(w, rt.Pins())
		})

		r.Get("/pins/{pin}", func(w http.ResponseWriter, r *http.Request) {
			pin, ok := pinParam(w, r)
			if !ok {
				return
			}
			info, ok := rt.PinInfo(pin)
			if !ok {
				RespondNotFoundError(w, fmt.Sprintf("pin %d is not configured", pin))
				return
			}
			RespondJSON(w, info)
		})

		r.Get("/pins/{pin}/level", func(w http.ResponseWriter, r *http.Request) {
			pin, ok := pinParam(w, r)
			if !ok {
				return
			}
			level, err := rt.GetLevel(pin)
			if err != nil {
				RespondError(w, err)
				return
			}
			RespondJSON(w, map[string]int{"level": level})
		})

		r.Post("/sim/pins/{pin}/level", func(w http.ResponseWriter, r *http.Request) {
			sim, ok := rt.Driver().(*gpio.Sim)
			if !ok {
				RespondNotFoundError(w, "level injection needs the sim driver")
				return
			}
			pin, ok := pinParam(w, r)
			if !ok {
				return
			}

			var req levelRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Level == nil {
				RespondBadRequest(w, `body must be {"level": true|false}`)
				return
			}

			drive := sim.Drive
			if req.Pulse {
				drive = sim.Pulse
			}
			if err := drive(pin, *req.Level); err != nil {
				if errors.Is(err, gpio.ErrInvalidPin) {
					RespondBadRequest(w, err.Error())
					return
				}
				RespondInternalServiceError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/events", createWebsocketHandler(events))
	})

	return r
}

// StartServer serves the diagnostics API until ctx is cancelled.
func StartServer(ctx context.Context, config *Config, build BuildInfo, rt *loop.Runtime, events *pubsub.Pubsub[loop.Dispatch]) error {
	server := &http.Server{
		Addr:              config.Address(),
		Handler:           NewRouter(build, rt, events),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Err(err).Msg("Server shutdown failed")
		}
	}()

	log.Info().Str("listen", server.Addr).Msg("launching server")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
