package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	jwtsec "PPDesk/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func engine(opts *Options) *gin.Engine {
	e := gin.New()
	e.Use(Middleware(opts))
	e.GET("/me", func(c *gin.Context) {
		cl, ok := ClaimsFrom(c)
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, cl.UserID)
	})
	return e
}

func get(e *gin.Engine, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func TestMiddlewareDisabledWithoutSecret(t *testing.T) {
	w := get(engine(nil), "/me", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", w.Body.String())
}

func TestMiddlewareVerifiesToken(t *testing.T) {
	jo := jwtsec.DefaultOptions([]byte("s3cret"))
	e := engine(DefaultOptions(jo))
	tok, _, err := jwtsec.Generate(jo, "agent-7", "Ann", "agent")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, get(e, "/me", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(e, "/me", map[string]string{"Authorization": "Bearer nope"}).Code)

	w := get(e, "/me", map[string]string{"Authorization": "Bearer " + tok})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "agent-7", w.Body.String())

	w = get(e, "/me?token="+tok, nil)
	assert.Equal(t, "agent-7", w.Body.String())

	other := jwtsec.DefaultOptions([]byte("different"))
	forged, _, _ := jwtsec.Generate(other, "agent-7", "Ann", "agent")
	assert.Equal(t, http.StatusUnauthorized, get(e, "/me", map[string]string{"Authorization": "Bearer " + forged}).Code)
}
