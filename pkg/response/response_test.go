package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestNoContentWritesStatus(t *testing.T) {
	c, w := newTestContext()
	NoContent(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestErrorEnvelope(t *testing.T) {
	c, w := newTestContext()
	Error(c, appErrors.Clone(appErrors.ErrStageLocked, "stage 0 is locked"))
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, appErrors.ErrStageLocked.Code, body.Error.Code)
	assert.Equal(t, "stage 0 is locked", body.Error.Message)
	assert.Empty(t, c.Errors)
}
