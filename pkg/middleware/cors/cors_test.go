package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(allowed []string, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(allowed))
	r.Handle(method, "/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/x", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAllowedOrigin(t *testing.T) {
	w := serve([]string{"https://docs.prefeitura.gov.br/"}, http.MethodGet, "https://docs.prefeitura.gov.br")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://docs.prefeitura.gov.br", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownOriginGetsNoAllowHeader(t *testing.T) {
	w := serve([]string{"https://docs.prefeitura.gov.br"}, http.MethodGet, "https://evil.example")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflightShortCircuits(t *testing.T) {
	w := serve(nil, http.MethodOptions, "https://any.example")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://any.example", w.Header().Get("Access-Control-Allow-Origin"))
}
