package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ContextIndex/internal/config"
	indexHandler "ContextIndex/internal/modules/index/interface/http"
	"ContextIndex/pkg/util/myjwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngineRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	conf := &config.Config{}
	conf.JwtConfig.Key = "k"
	conf.Normalize()

	GE := NewEngine(conf, Handlers{
		Index:  indexHandler.NewIndexHandler(nil, nil),
		Access: indexHandler.NewAccessHandler(nil),
		Query:  indexHandler.NewQueryHandler(nil),
	})

	w := httptest.NewRecorder()
	GE.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ContextIndex")

	w = httptest.NewRecorder()
	GE.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/query/search", strings.NewReader(`{}`)))
	assert.Contains(t, w.Body.String(), `"code":401`)

	token, err := myjwt.GenerateToken(myjwt.Options{Key: "k"}, "svc", "indexer")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/auth/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	GE.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"uuid":"svc"`)
}
