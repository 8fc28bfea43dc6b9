package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inletmail/inlet/internal/api/response"
	"github.com/inletmail/inlet/internal/queue"
)

func newSpoolContext(t *testing.T, path string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestSpoolStats(t *testing.T) {
	spool, err := queue.NewSpool(t.TempDir())
	require.NoError(t, err)
	_, err = spool.Put([]byte("raw"))
	require.NoError(t, err)

	handler := NewSpoolHandler(spool)
	c, rec := newSpoolContext(t, "/api/spool")

	require.NoError(t, handler.Stats(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["pending"])
}

func TestSpoolList_EmptyIsArray(t *testing.T) {
	spool, err := queue.NewSpool(t.TempDir())
	require.NoError(t, err)

	handler := NewSpoolHandler(spool)
	c, rec := newSpoolContext(t, "/api/spool/messages")

	require.NoError(t, handler.List(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}
