package status

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/doser/core/dosing"
	"github.com/kilianp07/doser/core/model"
	"github.com/kilianp07/doser/core/registry"
	"github.com/kilianp07/doser/infra/sim"
)

type stubSource struct {
	st     dosing.Status
	weight float64
	err    error
}

func (s stubSource) Status() dosing.Status           { return s.st }
func (s stubSource) CurrentWeight() (float64, error) { return s.weight, s.err }

func TestStatusHandler(t *testing.T) {
	rig := sim.NewRig(sim.Config{}, time.Now)
	reg := registry.New()
	_, err := reg.Add(model.Liquid{Name: "water", TargetAmount: 1.5, Valve: rig.AddValve("v1")})
	require.NoError(t, err)
	idx, err := reg.Add(model.Liquid{Name: "syrup", TargetAmount: 2, Valve: rig.AddValve("v2")})
	require.NoError(t, err)
	require.NoError(t, reg.AppendSample(idx, model.DataPoint{Timestamp: time.Now(), Weight: 0.4}))

	src := stubSource{st: dosing.Status{State: model.StateDispensing, Liquid: "syrup", Target: 2, Iterations: 1, FlowRate: 1}, weight: 0.4}
	h := NewHandler(src, reg)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	ctrl := body["controller"].(map[string]any)
	assert.Equal(t, "DISPENSING", ctrl["state"])
	assert.Equal(t, "syrup", ctrl["liquid"])
	assert.InDelta(t, 0.4, body["weight"], 1e-9)

	liquids := body["liquids"].([]any)
	require.Len(t, liquids, 2)
	second := liquids[1].(map[string]any)
	assert.Equal(t, "v2", second["valve"])
	assert.EqualValues(t, 1, second["samples"])
	assert.InDelta(t, 0.4, second["last"], 1e-9)
}

func TestStatusHandler_SensorError(t *testing.T) {
	h := NewHandler(stubSource{err: errors.New("no scale")}, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotContains(t, resp, "weight")
	assert.Equal(t, []any{}, resp["liquids"])
}

func TestStatusHandler_MethodNotAllowed(t *testing.T) {
	h := NewHandler(stubSource{}, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
