package routes_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database/dbtest"
	"github.com/Ramsey-B/clover/pkg/engine"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/routes"
)

const people = "name,email,phone\n" +
	"Ann,A@x.com,\n" +
	"Ann2,a@x.com,555-1234\n" +
	"Ann3,,5551234\n" +
	"Bob,b@y.com,\n" +
	"Bob2,B@y.com,\n"

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	eng := engine.New(dbtest.Open(t), engine.Config{RebuildOnIngest: true}, dbtest.Logger())
	checker := health.NewChecker("test")
	checker.SetReady(true)
	return routes.NewServer(routes.ServerConfig{}, eng, checker, dbtest.Logger())
}

func upload(t *testing.T, e *echo.Echo, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func get(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestUploadAndQueryClusters(t *testing.T) {
	e := newServer(t)

	rec := upload(t, e, "people.csv", people, map[string]string{"batch_id": "b1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[models.IngestResult](t, rec)
	assert.Equal(t, "b1", result.BatchID)
	assert.Equal(t, int64(5), result.Inserted)
	require.NotNil(t, result.Clusters)
	assert.Equal(t, 2, result.Clusters.Clusters)

	rec = get(e, http.MethodGet, "/api/v1/batches/b1/clusters?kind=merged")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[models.ClusterPage](t, rec)
	assert.Equal(t, int64(1), page.TotalGroups)
	require.Len(t, page.Groups, 1)
	assert.Equal(t, "email:a@x.com", page.Groups[0].Key)
	assert.Len(t, page.Groups[0].Members, 3)

	rec = get(e, http.MethodGet, "/api/v1/batches/b1/clusters?kind=both&source=resolver")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	direct := decode[models.ClusterPage](t, rec)
	assert.Equal(t, page.TotalGroups, direct.TotalGroups)

	rec = get(e, http.MethodGet, "/api/v1/batches/b1/clusters/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[models.ClusterStats](t, rec)
	assert.Equal(t, int64(2), stats.TotalGroups)
}

func TestUpload_Validation(t *testing.T) {
	e := newServer(t)

	rec := upload(t, e, "people.csv", people, map[string]string{"header": "sometimes"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload(t, e, "people.csv", people, map[string]string{"delimiter": "ab"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", strings.NewReader(""))
	req.Header.Set(echo.HeaderContentType, "multipart/form-data; boundary=x")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_UndecodableSpreadsheet(t *testing.T) {
	e := newServer(t)

	rec := upload(t, e, "people.xlsx", "not a zip archive", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}

func TestUpload_OptionsReachThePipeline(t *testing.T) {
	e := newServer(t)

	rec := upload(t, e, "people.txt", "Ann;a@x.com\nBob;a@x.com\n", map[string]string{
		"batch_id":  "semi",
		"delimiter": ";",
		"header":    "absent",
		"columns":   "name,contact",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[models.IngestResult](t, rec)
	assert.Equal(t, []string{"name", "contact"}, result.Columns)
	assert.Equal(t, int64(2), result.Inserted)
}

func TestBatchEndpoints(t *testing.T) {
	e := newServer(t)
	require.Equal(t, http.StatusCreated, upload(t, e, "people.csv", people, map[string]string{"batch_id": "b1"}).Code)

	rec := get(e, http.MethodGet, "/api/v1/batches?filename=people")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[models.BatchPage](t, rec)
	assert.Equal(t, int64(1), list.TotalCount)

	rec = get(e, http.MethodGet, "/api/v1/batches?page_size=1000")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(e, http.MethodGet, "/api/v1/batches/b1/records?page=1&page_size=2")
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[models.RecordPage](t, rec)
	assert.Len(t, records.Items, 2)
	assert.Equal(t, int64(5), records.TotalCount)

	rec = get(e, http.MethodGet, "/api/v1/batches/b1/records/search?value=5551234")
	require.Equal(t, http.StatusOK, rec.Code)
	found := decode[[]models.Record](t, rec)
	assert.Len(t, found, 2)

	rec = get(e, http.MethodGet, "/api/v1/batches/b1/records/search")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(e, http.MethodPost, "/api/v1/batches/b1/clusters/rebuild")
	require.Equal(t, http.StatusAccepted, rec.Code)
	rebuilt := decode[models.RebuildResult](t, rec)
	assert.Equal(t, 2, rebuilt.Clusters)

	rec = get(e, http.MethodDelete, "/api/v1/batches/b1")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = get(e, http.MethodGet, "/api/v1/batches/b1/clusters")
	require.Equal(t, http.StatusNotFound, rec.Code)
	errResp := decode[middleware.ErrorResponse](t, rec)
	assert.NotEmpty(t, errResp.RequestID)
	assert.Equal(t, "b1", errResp.Meta["batch_id"])
}

func TestClusters_InvalidKind(t *testing.T) {
	e := newServer(t)
	require.Equal(t, http.StatusCreated, upload(t, e, "people.csv", people, map[string]string{"batch_id": "b1"}).Code)

	rec := get(e, http.MethodGet, "/api/v1/batches/b1/clusters?kind=fax")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newServer(t)

	rec := get(e, http.MethodGet, "/api/v1/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	get(e, http.MethodGet, "/api/v1/batches")
	rec = get(e, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clover_http_requests_total")
}
