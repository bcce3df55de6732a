package agent

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/znerol74/call/internal/model/agent"
)

func TestListAgents(t *testing.T) {
	r := chi.NewRouter()
	New(agent.NewMemoryStore(agent.Seed())).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/agents", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var got []Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "reception", got[0].ID)
	assert.Equal(t, "+4930123456", got[0].PhoneNumber)
	assert.Equal(t, []string{"transfer_call", "end_call", "get_weather"}, got[0].Tools)
	assert.NotContains(t, resp.Body.String(), "receptionist")
}

func TestListAgentsEmpty(t *testing.T) {
	r := chi.NewRouter()
	New(agent.NewMemoryStore(nil)).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/agents", nil))
	assert.JSONEq(t, "[]", resp.Body.String())
}
