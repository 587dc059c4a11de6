// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"

	"github.com/sustainable-computing-io/joulemeter/internal/service"
)

// ReadyChecker reports whether measurements are being taken. A nil error
// means ready.
type ReadyChecker interface {
	Ready() error
}

// Probe registers /probe/livez and /probe/readyz
type Probe struct {
	api     APIService
	checker ReadyChecker
}

var _ service.Initializer = (*Probe)(nil)

// NewProbe creates a probe service; readiness is delegated to checker
func NewProbe(api APIService, checker ReadyChecker) *Probe {
	return &Probe{
		api:     api,
		checker: checker,
	}
}

func (p *Probe) Name() string {
	return "probe"
}

func (p *Probe) Init() error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /probe/readyz", p.readyz)
	mux.HandleFunc("GET /probe/livez", p.livez)
	return p.api.Register("/probe/", "probe", "Health check endpoints", mux)
}

func (p *Probe) readyz(w http.ResponseWriter, _ *http.Request) {
	if err := p.checker.Ready(); err != nil {
		respond(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": err.Error(),
		})
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// livez only tells that the process serves requests
func (p *Probe) livez(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "alive"})
}

func respond(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
