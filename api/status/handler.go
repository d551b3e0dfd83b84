// Package status exposes a read-only snapshot of the doser over HTTP.
package status

import (
	"encoding/json"
	"net/http"

	"github.com/kilianp07/doser/core/dosing"
	"github.com/kilianp07/doser/core/model"
)

// Source provides the controller snapshot.
type Source interface {
	Status() dosing.Status
	CurrentWeight() (float64, error)
}

// Liquids lists the configured liquids.
type Liquids interface {
	List() []model.Liquid
}

// LiquidView is a liquid as reported by the API.
type LiquidView struct {
	Index   int     `json:"index"`
	Name    string  `json:"name"`
	Target  float64 `json:"target"`
	Valve   string  `json:"valve,omitempty"`
	Samples int     `json:"samples"`
	Last    float64 `json:"last"`
}

// Response is the body of GET /api/status.
type Response struct {
	Controller dosing.Status `json:"controller"`
	Weight     *float64      `json:"weight,omitempty"`
	Liquids    []LiquidView  `json:"liquids"`
}

// NewHandler returns an HTTP handler exposing the controller state via GET /api/status.
func NewHandler(src Source, liquids Liquids) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		resp := Response{Controller: src.Status(), Liquids: []LiquidView{}}
		if wgt, err := src.CurrentWeight(); err == nil {
			resp.Weight = &wgt
		}
		if liquids != nil {
			for i, l := range liquids.List() {
				v := LiquidView{Index: i, Name: l.Name, Target: l.TargetAmount, Samples: len(l.Samples)}
				if l.Valve != nil {
					v.Valve = l.Valve.Name()
				}
				if last, ok := l.LastSample(); ok {
					v.Last = last.Weight
				}
				resp.Liquids = append(resp.Liquids, v)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
