package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
	"github.com/mohammed-shakir/adaptive-refresh/internal/policy"
	"github.com/mohammed-shakir/adaptive-refresh/internal/selector"
)

const maxBodyBytes = 64 << 10

var errBadRequest = errors.New("bad request")

type layerJSON struct {
	Label  string   `json:"label,omitempty"`
	Vote   string   `json:"vote"`
	FPS    float64  `json:"fps,omitempty"`
	Weight *float64 `json:"weight,omitempty"`
}

type selectRequest struct {
	Layers      []layerJSON `json:"layers"`
	TouchActive *bool       `json:"touch_active,omitempty"`
}

type confirmRequest struct {
	ModeID *int `json:"mode_id"`
}

type modeJSON struct {
	ID          int     `json:"id"`
	Group       int     `json:"group"`
	VsyncPeriod int64   `json:"vsync_period_ns"`
	FPS         float64 `json:"fps"`
	Name        string  `json:"name"`
}

func toModeJSON(m catalog.Mode) modeJSON {
	return modeJSON{ID: int(m.ID), Group: int(m.Group), VsyncPeriod: m.VsyncPeriod, FPS: m.FPS, Name: m.Name}
}

func toModesJSON(ms []catalog.Mode) []modeJSON {
	out := make([]modeJSON, 0, len(ms))
	for _, m := range ms {
		out = append(out, toModeJSON(m))
	}
	return out
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func decodePolicy(r *http.Request) (policy.Policy, error) {
	var p policy.Policy
	if err := decodeBody(r, &p); err != nil {
		return policy.Policy{}, err
	}
	return p, nil
}

// toLayers converts request layers. A missing weight means full weight.
func toLayers(in []layerJSON) ([]selector.Layer, error) {
	out := make([]selector.Layer, 0, len(in))
	for i, l := range in {
		v, err := selector.ParseVote(l.Vote, l.FPS)
		if err != nil {
			return nil, fmt.Errorf("%w: layers[%d]: %v", errBadRequest, i, err)
		}
		w := 1.0
		if l.Weight != nil {
			w = *l.Weight
		}
		out = append(out, selector.Layer{Label: l.Label, Vote: v, Weight: w})
	}
	return out, nil
}

func finiteOrZero(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
