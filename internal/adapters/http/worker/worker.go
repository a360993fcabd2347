// Package worker serves the remote simulation endpoint used by the remote scheduler strategy.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/simbot/internal/domain/model"
	"github.com/okian/simbot/pkg/logger"
	"github.com/okian/simbot/pkg/metrics"
)

const (
	defaultTimeout      = 5 * time.Minute
	defaultFightProfile = "Patchwerk"
	maxBodyBytes        = 64 << 10
	invalidParamsMsg    = "Invalid parameters provided"
)

// Simulator runs one simulation.
type Simulator interface {
	Run(ctx context.Context, req model.SimulationRequest, timeout time.Duration) (float64, error)
}

// Request is the body accepted by POST /simulate.
type Request struct {
	SimParams *model.SimulationRequest `json:"sim_params"`
}

// Response is the success body of POST /simulate.
type Response struct {
	DPS float64 `json:"dps"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler executes simulation requests received over HTTP.
type Handler struct {
	sim          Simulator
	timeout      time.Duration
	fightProfile string
	log          logger.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithTimeout bounds each simulation.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithFightProfile sets the profile used when a request names none.
func WithFightProfile(profile string) Option {
	return func(h *Handler) {
		if profile != "" {
			h.fightProfile = profile
		}
	}
}

// WithLogger sets a logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// NewHandler creates a handler running simulations on sim.
func NewHandler(sim Simulator, opts ...Option) *Handler {
	h := &Handler{
		sim:          sim,
		timeout:      defaultTimeout,
		fightProfile: defaultFightProfile,
		log:          logger.GetOrNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleSimulate handles POST /simulate.
func (h *Handler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: http.StatusText(http.StatusMethodNotAllowed)})
		return
	}

	ctx := r.Context()
	req, err := h.decode(w, r)
	if err != nil {
		h.log.Warn(ctx, "rejected simulation request", logger.Error(err))
		metrics.RecordErrorByComponent("sim_worker", "invalid_request")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: invalidParamsMsg})
		return
	}

	dps, err := h.sim.Run(ctx, req, h.timeout)
	if err != nil {
		h.log.Error(ctx, "simulation failed",
			logger.String("request", req.String()),
			logger.Error(err),
		)
		metrics.RecordErrorByComponent("sim_worker", "simulation")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, Response{DPS: dps})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (model.SimulationRequest, error) {
	var body Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		return model.SimulationRequest{}, err
	}
	if body.SimParams == nil {
		return model.SimulationRequest{}, errors.New("missing sim_params")
	}

	req := *body.SimParams
	region, err := model.ParseRegion(string(req.Region))
	if err != nil {
		return model.SimulationRequest{}, err
	}
	req.Region = region
	req.Spec = model.NormalizeSpec(string(req.Spec))
	if strings.TrimSpace(req.FightProfile) == "" {
		req.FightProfile = h.fightProfile
	}

	switch {
	case strings.TrimSpace(req.Character) == "":
		return model.SimulationRequest{}, errors.New("missing character_name")
	case strings.TrimSpace(req.RealmSlug) == "":
		return model.SimulationRequest{}, errors.New("missing realm_slug")
	case req.Spec == "":
		return model.SimulationRequest{}, errors.New("missing spec")
	case req.Talents == "":
		return model.SimulationRequest{}, errors.New("missing talent_string")
	case req.Iterations <= 0:
		return model.SimulationRequest{}, errors.New("iterations must be positive")
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
