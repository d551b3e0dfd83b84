package doses

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/doser/core/history"
)

type memStore struct{ recs []history.DoseRecord }

func (m *memStore) Append(_ context.Context, r history.DoseRecord) error {
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) Query(_ context.Context, q history.Query) ([]history.DoseRecord, error) {
	var res []history.DoseRecord
	for _, r := range m.recs {
		if q.Match(r) {
			res = append(res, r)
		}
	}
	if q.Limit > 0 && len(res) > q.Limit {
		res = res[len(res)-q.Limit:]
	}
	return res, nil
}

func (m *memStore) Close() error { return nil }

func seeded() *memStore {
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	s := &memStore{}
	for i, name := range []string{"water", "syrup", "water"} {
		_ = s.Append(context.Background(), history.DoseRecord{
			SessionID: string(rune('a' + i)),
			Liquid:    name,
			Target:    2,
			Dispensed: 2,
			Outcome:   "completed",
			Finished:  base.Add(time.Duration(i) * time.Hour),
		})
	}
	return s
}

func get(t *testing.T, h http.Handler, url, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandler_AuthAndFilters(t *testing.T) {
	h := NewHandler(seeded(), "tok")

	rr := get(t, h, "/api/doses", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = get(t, h, "/api/doses?liquid=water", "tok")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var recs []history.DoseRecord
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].SessionID)

	rr = get(t, h, "/api/doses?limit=1", "tok")
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "c", recs[0].SessionID)

	rr = get(t, h, "/api/doses?start=2024-06-01T08:30:00Z&end=2024-06-01T09:30:00Z", "tok")
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "syrup", recs[0].Liquid)
}

func TestHandler_EmptyIsArray(t *testing.T) {
	h := NewHandler(&memStore{}, "")
	rr := get(t, h, "/api/doses", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestHandler_BadParams(t *testing.T) {
	h := NewHandler(seeded(), "")
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/doses?start=yesterday", "").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/doses?limit=-1", "").Code)

	req := httptest.NewRequest(http.MethodPost, "/api/doses", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
