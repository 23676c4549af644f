package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	"github.com/neobackupapp/neobackup-server/internal/service"
)

func TestExports(t *testing.T) {
	ts := setupTestServer(t)
	sched := ts.createSchedule(t, nightlyBody())
	require.NoError(t, ts.db.SetBlocklist(context.Background(), domain.GlobalBlocklistID, []string{"com.termux"}))

	resp := ts.api.Post("/api/v1/exports", map[string]any{"name": "before-reset"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	info := decodeData[service.ExportInfo](t, resp.Body.Bytes())
	assert.Equal(t, "before-reset", info.Name)
	assert.Positive(t, info.Size)

	resp = ts.api.Post("/api/v1/exports", map[string]any{"name": "before-reset"})
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = ts.api.Get("/api/v1/exports")
	require.Equal(t, http.StatusOK, resp.Code)
	list := decodeData[struct {
		Exports []service.ExportInfo `json:"exports"`
	}](t, resp.Body.Bytes())
	require.Len(t, list.Exports, 1)

	resp = ts.api.Get("/api/v1/exports/before-reset")
	require.Equal(t, http.StatusOK, resp.Code)
	doc := decodeData[service.ExportDocument](t, resp.Body.Bytes())
	require.Len(t, doc.Schedules, 1)
	assert.Equal(t, "nightly", doc.Schedules[0].Name)
	assert.Equal(t, []string{"com.termux"}, doc.GlobalBlocklist)

	// Import after deleting the schedule recreates it.
	resp = ts.api.Delete("/api/v1/schedules/" + itoa(sched.ID))
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = ts.api.Post("/api/v1/exports/before-reset/import")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	result := decodeData[service.ImportResult](t, resp.Body.Bytes())
	assert.Equal(t, []string{"nightly"}, result.Created)
	assert.Empty(t, result.Skipped)

	resp = ts.api.Post("/api/v1/exports/before-reset/import")
	require.Equal(t, http.StatusOK, resp.Code)
	result = decodeData[service.ImportResult](t, resp.Body.Bytes())
	assert.Equal(t, []string{"nightly"}, result.Skipped)

	resp = ts.api.Delete("/api/v1/exports/before-reset")
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = ts.api.Get("/api/v1/exports/before-reset")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestExports_InvalidName(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/exports/..secret")

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
