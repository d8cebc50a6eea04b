package order

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-floor/internal/httpx"
	"restaurant-floor/internal/logger"
)

func newTestRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	r.Route("/orders", NewHandler(f.svc, logger.Discard()).RegisterRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerOrderFlow(t *testing.T) {
	f := newFixture(t)
	f.freeTable(t, 1)
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/orders", `{"order_type":"dine_in","table_id":1,"staff_id":7}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID     int64  `json:"id"`
		Number string `json:"order_number"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "ORD_20240301_001", created.Number)
	assert.Equal(t, "pending", created.Status)

	rec = do(t, h, http.MethodPost, "/orders/1/details", `{"dish_id":4,"quantity":2,"unit_price":50000}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &line))
	assert.EqualValues(t, 100000, line["line_total"])

	rec = do(t, h, http.MethodPatch, "/orders/1/status", `{"status":"served"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errBody httpx.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "incomplete_order", errBody.Code)
	assert.Equal(t, []int64{1}, errBody.LineIDs)

	rec = do(t, h, http.MethodPatch, "/orders/1/details/1/status", `{"status":"served"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPatch, "/orders/1/details/1/status", `{"status":"preparing"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPatch, "/orders/1/status", `{"status":"served"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/orders?status=served&table_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)

	rec = do(t, h, http.MethodGet, "/orders/1/history", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerErrors(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown field", http.MethodPost, "/orders", `{"order_type":"takeaway","staff_id":1,"extra":true}`, http.StatusBadRequest},
		{"dine in without table", http.MethodPost, "/orders", `{"order_type":"dine_in","staff_id":1}`, http.StatusBadRequest},
		{"missing table", http.MethodPost, "/orders", `{"order_type":"dine_in","table_id":9,"staff_id":1}`, http.StatusNotFound},
		{"bad id", http.MethodGet, "/orders/abc", "", http.StatusBadRequest},
		{"missing order", http.MethodGet, "/orders/42", "", http.StatusNotFound},
		{"bad status filter", http.MethodGet, "/orders?status=eaten", "", http.StatusBadRequest},
		{"missing line", http.MethodDelete, "/orders/42/details/1", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
