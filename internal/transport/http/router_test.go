package httptransport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	platformtesting "consulta-vehicular-go/internal/platform/testing"
)

func TestBuildValidatesOptions(t *testing.T) {
	logger := platformtesting.SetupTestLogger(t)

	if _, err := Build(Options{Logger: logger}); err == nil {
		t.Error("expected error without config")
	}
	if _, err := Build(Options{Config: platformtesting.SetupTestConfig(t)}); err == nil {
		t.Error("expected error without logger")
	}
}

func TestBuildServesAPIGroup(t *testing.T) {
	cfg := platformtesting.SetupTestConfig(t)
	logger := platformtesting.SetupTestLogger(t)

	router, err := Build(Options{Config: cfg, Logger: logger})
	platformtesting.AssertNoError(t, err)

	router.API.GET("/ping", func(c *gin.Context) {
		RespondSuccess(c, http.StatusOK, gin.H{"pong": true}, "")
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Origin", "http://example.com")
	router.Engine.ServeHTTP(rec, req)

	platformtesting.AssertEqual(t, http.StatusOK, rec.Code)
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS header on API response")
	}
}
