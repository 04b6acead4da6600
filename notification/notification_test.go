package notification

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerBoundedFeed(t *testing.T) {
	m := NewManager(3)

	for i := 0; i < 5; i++ {
		m.Add(SystemAlert("alert", "something happened"))
	}

	events := m.Events("")
	assert.Len(t, events, 3)
}

func TestManagerNewestFirst(t *testing.T) {
	m := NewManager(10)
	m.Add(AnalysisStarted("SPY", "manual"))
	m.Add(AnalysisCompleted("SPY", 31, 2))

	events := m.Events("")
	require.Len(t, events, 2)
	assert.Equal(t, TypeAnalysisCompleted, events[0].Type)
	assert.Equal(t, TypeAnalysisStarted, events[1].Type)
}

func TestManagerTypeFilter(t *testing.T) {
	m := NewManager(10)
	m.Add(AnalysisStarted("SPY", "scheduled"))
	m.Add(ExpirationPicked("SPY", 31, 32, 1247))
	m.Add(AnalysisCompleted("SPY", 31, 1))

	picked := m.Events(TypeExpirationPicked)
	require.Len(t, picked, 1)
	assert.Contains(t, picked[0].Message, "31 DTE")
}

func TestManagerSubscribers(t *testing.T) {
	m := NewManager(10)

	var received []Event
	m.Subscribe(func(e Event) { received = append(received, e) })

	m.Add(SystemAlert("scheduler", "run failed"))

	require.Len(t, received, 1)
	assert.NotEmpty(t, received[0].ID)
	assert.False(t, received[0].Timestamp.IsZero())
}

func TestHandlerList(t *testing.T) {
	m := NewManager(10)
	m.Add(AnalysisCompleted("SPY", 31, 1))

	router := mux.NewRouter()
	NewHandler(m).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var events []Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, TypeAnalysisCompleted, events[0].Type)
}

func TestHandlerListEmptyFeed(t *testing.T) {
	router := mux.NewRouter()
	NewHandler(NewManager(10)).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHandlerClear(t *testing.T) {
	m := NewManager(10)
	m.Add(SystemAlert("a", "b"))

	router := mux.NewRouter()
	NewHandler(m).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodDelete, "/api/notifications", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, m.Events(""))
}
