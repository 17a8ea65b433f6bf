package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
	"github.com/mohammed-shakir/adaptive-refresh/internal/control"
	"github.com/mohammed-shakir/adaptive-refresh/internal/policy"
	"github.com/mohammed-shakir/adaptive-refresh/internal/refreshrate"
	"github.com/mohammed-shakir/adaptive-refresh/internal/touch"
)

type Deps struct {
	Plane  *control.Plane
	Touch  touch.Activity
	Logger *slog.Logger
	// Feed and Pingers feed /readyz; both optional.
	Feed    ReadinessReporter
	Pingers []Pinger
	// Metrics is mounted at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string
}

type api struct {
	plane *control.Plane
	cfgs  *refreshrate.Configs
	touch touch.Activity
	log   *slog.Logger
}

// NewRouter builds the control surface for one display.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	a := &api{plane: d.Plane, cfgs: d.Plane.Configs(), touch: d.Touch, log: d.Logger}

	r := chi.NewRouter()
	r.Use(Recover(d.Logger))
	r.Use(RequestID(a.cfgs.Display()))
	r.Use(Logging(d.Logger))
	r.Use(CORS())

	r.Get("/healthz", Liveness())
	r.Get("/readyz", Readiness(d.Feed, d.Pingers...))
	if d.Metrics != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, d.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/modes", a.getModes)
		r.Get("/policy", a.getPolicy)
		r.Put("/policy", a.putPolicy)
		r.Put("/policy/override", a.putOverride)
		r.Delete("/policy/override", a.deleteOverride)
		r.Get("/mode", a.getMode)
		r.Post("/mode/confirm", a.confirmMode)
		r.Post("/select", a.selectMode)
		r.Post("/select/content", a.selectContent)
		r.Post("/touch", a.postTouch)
	})
	return r
}

func (a *api) getModes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"modes":   toModesJSON(a.cfgs.Catalog().Modes()),
		"allowed": toModesJSON(a.cfgs.AllowedModes()),
	})
}

func (a *api) getPolicy(w http.ResponseWriter, _ *http.Request) {
	snap := a.cfgs.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"effective":      snap.Effective,
		"administrative": snap.Administrative,
		"override":       snap.Override,
	})
}

func (a *api) putPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := decodePolicy(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	st, err := a.plane.SetAdministrative(r.Context(), p)
	a.policyResult(w, r, st, err)
}

func (a *api) putOverride(w http.ResponseWriter, r *http.Request) {
	p, err := decodePolicy(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	st, err := a.plane.SetOverride(r.Context(), p)
	a.policyResult(w, r, st, err)
}

func (a *api) deleteOverride(w http.ResponseWriter, r *http.Request) {
	st, err := a.plane.ClearOverride(r.Context())
	a.policyResult(w, r, st, err)
}

func (a *api) policyResult(w http.ResponseWriter, r *http.Request, st policy.Status, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	snap := a.cfgs.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    st.String(),
		"effective": snap.Effective,
		"target":    toModeJSON(snap.CurrentByPolicy),
	})
}

func (a *api) getMode(w http.ResponseWriter, _ *http.Request) {
	snap := a.cfgs.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"current":   toModeJSON(snap.Current),
		"by_policy": toModeJSON(snap.CurrentByPolicy),
		"min":       toModeJSON(snap.Allowed[0]),
		"max":       toModeJSON(snap.Allowed[len(snap.Allowed)-1]),
	})
}

func (a *api) confirmMode(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.ModeID == nil {
		writeError(w, http.StatusBadRequest, "mode_id is required")
		return
	}
	if err := a.plane.ConfirmMode(r.Context(), catalog.ModeID(*req.ModeID)); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"current": toModeJSON(a.cfgs.CurrentMode())})
}

func (a *api) selectMode(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	layers, err := toLayers(req.Layers)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	touchActive := false
	if req.TouchActive != nil {
		touchActive = *req.TouchActive
	} else if a.touch != nil {
		touchActive = a.touch.Active(a.cfgs.Display())
	}

	res := a.cfgs.Select(layers, touchActive)
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":             toModeJSON(res.Mode),
		"path":             string(res.Path),
		"touch_considered": res.TouchConsidered,
		"score":            finiteOrZero(res.Score),
	})
}

func (a *api) selectContent(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	layers, err := toLayers(req.Layers)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mode": toModeJSON(a.cfgs.SelectForContent(layers))})
}

func (a *api) postTouch(w http.ResponseWriter, _ *http.Request) {
	if a.touch != nil {
		a.touch.Touch(a.cfgs.Display())
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, policy.ErrInvalidPolicy):
		status = http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		a.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	}
	writeError(w, status, err.Error())
}
