package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRouter(t *testing.T, p HealthParams) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	Register(r, ProvideHealth(p))
	return r
}

func get(t *testing.T, r http.Handler, path string) (int, Health) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestReadinessReportsDependencies(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := newRouter(t, HealthParams{DB: db, Redis: rdb})

	code, body := get(t, r, "/readyz")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, statusHealthy, body.Status)
	require.Len(t, body.Deps, 2)
	require.Equal(t, "redis", body.Deps[1].Name)

	down := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = down.Close() })

	code, body = get(t, newRouter(t, HealthParams{DB: db, Redis: down}), "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, statusUnhealthy, body.Status)
	require.Equal(t, statusUnhealthy, body.Deps[1].Status)
}

func TestLiveness(t *testing.T) {
	code, body := get(t, newRouter(t, HealthParams{}), "/livez")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "OK", body.Message)
}
