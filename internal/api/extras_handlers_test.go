package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/search"
)

func TestExtras(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Put("/api/v1/extras/org.mozilla.firefox", map[string]any{
		"tags": []string{"Browsers", "Daily Use", "browsers"},
		"note": "  keep the profile  ",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	extras := decodeData[ExtrasResponse](t, resp.Body.Bytes())
	assert.Equal(t, []string{"browsers", "daily-use"}, extras.Tags)
	assert.Equal(t, "keep the profile", extras.Note)

	resp = ts.api.Get("/api/v1/extras/tags")
	require.Equal(t, http.StatusOK, resp.Code)
	tags := decodeData[struct {
		Tags []string `json:"tags"`
	}](t, resp.Body.Bytes())
	assert.Equal(t, []string{"browsers", "daily-use"}, tags.Tags)

	resp = ts.api.Get("/api/v1/extras")
	require.Equal(t, http.StatusOK, resp.Code)
	list := decodeData[struct {
		Extras []ExtrasResponse `json:"extras"`
	}](t, resp.Body.Bytes())
	require.Len(t, list.Extras, 1)

	// Empty extras are removed.
	resp = ts.api.Put("/api/v1/extras/org.mozilla.firefox", map[string]any{})
	require.Equal(t, http.StatusOK, resp.Code)
	resp = ts.api.Get("/api/v1/extras/org.mozilla.firefox")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestExtras_InvalidPackage(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Put("/api/v1/extras/not-a-package", map[string]any{"tags": []string{"x"}})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSearch(t *testing.T) {
	ts := setupTestServer(t)
	ts.addBackup(t, "org.mozilla.firefox", 1)

	resp := ts.api.Post("/api/v1/search/reindex")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	reindex := decodeData[struct {
		Documents uint64 `json:"documents"`
	}](t, resp.Body.Bytes())
	assert.Equal(t, uint64(2), reindex.Documents)

	resp = ts.api.Get("/api/v1/search?q=firefox")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	result := decodeData[search.SearchResult](t, resp.Body.Bytes())
	require.NotEmpty(t, result.Hits)
	assert.Equal(t, "org.mozilla.firefox", result.Hits[0].ID)

	resp = ts.api.Get("/api/v1/search?sort=random")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	health := decodeData[HealthResponse](t, resp.Body.Bytes())
	assert.Equal(t, "healthy", health.Status)
	assert.Contains(t, health.Components, "database")
	assert.Contains(t, health.Components, "search")
}

func TestGetInstance(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/instance")
	require.Equal(t, http.StatusOK, resp.Code)

	first := decodeData[InstanceResponse](t, resp.Body.Bytes())
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "Test Scheduler", first.Name)
	assert.False(t, first.AuthRequired)

	resp = ts.api.Get("/api/v1/instance")
	second := decodeData[InstanceResponse](t, resp.Body.Bytes())
	assert.Equal(t, first.ID, second.ID, "instance ID must be stable")
}
