package middleware_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/middleware"
)

func newEcho(messages *[]ectologger.EctoLogMessage) *echo.Echo {
	logger := ectologger.NewEctoLogger(func(m ectologger.EctoLogMessage) {
		if messages != nil {
			*messages = append(*messages, m)
		}
	})
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Metrics())
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	return e
}

func TestContext_PropagatesRequestID(t *testing.T) {
	e := newEcho(nil)
	var seen, batchID string
	e.GET("/batches/:batch_id", func(c echo.Context) error {
		seen = appctx.GetRequestID(c.Request().Context())
		batchID = appctx.GetBatchID(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/batches/b1", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-42")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "b1", batchID)
	assert.Equal(t, "req-42", rec.Header().Get(echo.HeaderXRequestID))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/batches/b1", nil))
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestError_MapsDomainErrors(t *testing.T) {
	var messages []ectologger.EctoLogMessage
	e := newEcho(&messages)
	e.GET("/missing", func(echo.Context) error { return apperrors.NewBatchNotFound("b9") })
	e.GET("/boom", func(echo.Context) error { return errors.New("secret detail") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "b9", body.Meta["batch_id"])
	assert.NotEmpty(t, body.RequestID)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal Server Error", body.Message)
	assert.NotEmpty(t, messages)
}

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	e := newEcho(nil)
	e.GET("/widgets/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/widgets/:id", "200")
	before := testutil.ToFloat64(counter)
	for _, id := range []string{"1", "2", "3"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/widgets/"+id, nil))
	}
	assert.Equal(t, before+3, testutil.ToFloat64(counter))
}
