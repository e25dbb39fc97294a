package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chrissnell/gnsschange/internal/changepoint"
	"github.com/chrissnell/gnsschange/internal/constants"
	"github.com/chrissnell/gnsschange/internal/detector"
	"github.com/chrissnell/gnsschange/internal/gnss"
	"github.com/chrissnell/gnsschange/internal/log"
	"github.com/chrissnell/gnsschange/internal/simulate"
	"github.com/chrissnell/gnsschange/internal/store"
	"github.com/chrissnell/gnsschange/pkg/responseformat"
)

// maxBodyBytes bounds POST bodies
const maxBodyBytes = 64 << 20

// CreateRunRequest is the body of POST /api/v1/runs. Exactly one of
// Coordinates and Simulate must be given.
type CreateRunRequest struct {
	Source      string           `json:"source,omitempty"`
	Coordinates [][3]float64     `json:"coordinates,omitempty"`
	Simulate    *simulate.Params `json:"simulate,omitempty"`
}

// Handlers implements the API endpoints
type Handlers struct {
	store     *store.Store
	detector  *detector.Detector
	simulate  simulate.Params
	maxPoints int
	formatter *responseformat.Formatter
	logger    *zap.SugaredLogger
}

// NewHandlers creates the endpoint handlers. defaults fills unset fields of
// simulate requests.
func NewHandlers(s *store.Store, det *detector.Detector, defaults simulate.Params, maxPoints int, logger *zap.SugaredLogger) *Handlers {
	return &Handlers{
		store:     s,
		detector:  det,
		simulate:  defaults,
		maxPoints: maxPoints,
		formatter: responseformat.NewFormatter(),
		logger:    logger,
	}
}

// Health reports liveness
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusOK, map[string]string{"status": "ok", "version": constants.Version})
}

// ListRuns handles GET /api/v1/runs?limit=N
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, runs)
}

// GetRun handles GET /api/v1/runs/{id}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, run)
}

// DeleteRun handles DELETE /api/v1/runs/{id}
func (h *Handlers) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteRun(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTrace handles GET /api/v1/runs/{id}/axes/{axis}/trace. MessagePack
// clients receive the stored blob unchanged.
func (h *Handlers) GetTrace(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	axis, err := gnss.ParseAxis(vars["axis"])
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	blob, err := h.store.GetTraceRaw(r.Context(), vars["id"], axis)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.formatter.WriteRawMsgPack(w, r, blob, &changepoint.SampleSet{}); err != nil {
		h.logger.Errorw("failed to write trace", "id", vars["id"], "axis", axis.String(), "error", err)
	}
}

// GetRequestLog handles GET /api/v1/requests
func (h *Handlers) GetRequestLog(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusOK, log.GetHTTPLogBuffer().Entries())
}

// CreateRun handles POST /api/v1/runs: it runs the detector on the posted
// or simulated series, stores the result and returns the stored run
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req CreateRunRequest
	if err := h.formatter.DecodeRequest(r, &req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			h.writeError(w, r, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		h.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	obs, source, err := h.observations(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.maxPoints > 0 && obs.Len() > h.maxPoints {
		h.writeError(w, r, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("series has %d points; this server accepts at most %d", obs.Len(), h.maxPoints))
		return
	}

	report, err := h.detector.Detect(r.Context(), obs)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	id, err := h.store.SaveRun(r.Context(), source, report)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, r, http.StatusCreated, run)
}

func (h *Handlers) observations(req CreateRunRequest) (*gnss.Observations, string, error) {
	hasCoords := len(req.Coordinates) > 0
	if hasCoords == (req.Simulate != nil) {
		return nil, "", gnss.Configf("body", "exactly one of coordinates and simulate is required")
	}

	if hasCoords {
		obs := gnss.FromRows(req.Coordinates)
		if err := obs.Validate(); err != nil {
			return nil, "", err
		}
		source := req.Source
		if source == "" {
			source = "upload"
		}
		return obs, source, nil
	}

	p := *req.Simulate
	if p.NPoints == 0 {
		p.NPoints = h.simulate.NPoints
	}
	if p.ChangePoints == nil {
		p.ChangePoints = h.simulate.ChangePoints
	}
	obs, err := simulate.Generate(p)
	if err != nil {
		return nil, "", err
	}
	source := req.Source
	if source == "" {
		source = fmt.Sprintf("simulate(n=%d, change_points=%v, seed=%d)", p.NPoints, p.ChangePoints, p.Seed)
	}
	return obs, source, nil
}

// fail maps an error to a status code and writes it
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ce *gnss.ConfigurationError
	var dfe *gnss.DataFormatError

	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, r, http.StatusNotFound, "not found")
	case errors.As(err, &ce), errors.As(err, &dfe):
		h.writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case r.Context().Err() != nil:
		h.writeError(w, r, http.StatusServiceUnavailable, "request canceled")
	default:
		h.logger.Errorw("request failed", "path", r.URL.Path, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if err := h.formatter.WriteError(w, r, status, msg); err != nil {
		h.logger.Errorw("failed to write error response", "error", err)
	}
}

func (h *Handlers) write(w http.ResponseWriter, r *http.Request, status int, data any) {
	if err := h.formatter.WriteResponse(w, r, status, data); err != nil {
		h.logger.Errorw("failed to write response", "path", r.URL.Path, "error", err)
	}
}
