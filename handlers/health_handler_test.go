package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pingerFunc func(ctx context.Context) map[string]error

func (f pingerFunc) Ping(ctx context.Context) map[string]error { return f(ctx) }

// sqlPinger probes a database the way the postgres store does
func sqlPinger(db *sql.DB) Pinger {
	return pingerFunc(func(ctx context.Context) map[string]error {
		var one int
		return map[string]error{"database": db.QueryRowContext(ctx, "SELECT 1").Scan(&one)}
	})
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response["data"].(map[string]interface{})
}

func TestHandleHealth(t *testing.T) {
	handler := NewHealthHandler(nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.HandleHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeHealth(t, w)
	assert.Equal(t, "healthy", data["status"])
	assert.NotEmpty(t, data["timestamp"])
}

func TestHandleReadiness(t *testing.T) {
	logger := zap.NewNop()

	t.Run("healthy when database is available", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		w := httptest.NewRecorder()
		NewHealthHandler(sqlPinger(db), logger).HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeHealth(t, w)
		assert.Equal(t, "healthy", data["status"])
		assert.Equal(t, "healthy", data["checks"].(map[string]interface{})["database"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unhealthy when the database query fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT 1").WillReturnError(sql.ErrConnDone)

		w := httptest.NewRecorder()
		NewHealthHandler(sqlPinger(db), logger).HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		data := decodeHealth(t, w)
		assert.Equal(t, "unhealthy", data["status"])
		assert.Equal(t, "unhealthy", data["checks"].(map[string]interface{})["database"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("one failing store makes the service unready", func(t *testing.T) {
		pinger := pingerFunc(func(context.Context) map[string]error {
			return map[string]error{"database": nil, "redis": errors.New("connection refused")}
		})

		w := httptest.NewRecorder()
		NewHealthHandler(pinger, logger).HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		checks := decodeHealth(t, w)["checks"].(map[string]interface{})
		assert.Equal(t, "healthy", checks["database"])
		assert.Equal(t, "unhealthy", checks["redis"])
	})

	t.Run("healthy when nothing to check", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewHealthHandler(nil, logger).HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeHealth(t, w)
		assert.Equal(t, "healthy", data["status"])
		assert.NotContains(t, data, "checks")
	})

	t.Run("probe deadline is bounded", func(t *testing.T) {
		var deadline time.Time
		pinger := pingerFunc(func(ctx context.Context) map[string]error {
			deadline, _ = ctx.Deadline()
			return nil
		})

		w := httptest.NewRecorder()
		NewHealthHandler(pinger, logger).HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.WithinDuration(t, time.Now().Add(readinessTimeout), deadline, time.Second)
	})
}
