package article

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"inkwell/config"
	"inkwell/models"
	"inkwell/session"
)

type listResponse struct {
	Result string `json:"result"`
	Code   int    `json:"code"`
	Data   []View `json:"data"`
	Count  *int64 `json:"count"`
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{SessionSecret: "secret", SessionMaxAge: time.Hour}
	router := gin.New()
	router.Use(session.Middleware(cfg))
	module := NewArticleModule(NewService(db, nil, nil, zap.NewNop()), session.NewResolver(db, cfg, zap.NewNop()), zap.NewNop())
	module.RegisterRoutes(router)
	return router
}

func post(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListHandler(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", true)
	insertArticle(t, db, admin, "first", time.Now().Add(-time.Minute), "go")
	insertArticle(t, db, admin, "second", time.Now(), "rust")

	w := post(router, "/article.list", url.Values{"action": {"all"}, "includeCount": {"1"}})
	require.Equal(t, http.StatusOK, w.Code)

	var body listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Result)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "second", body.Data[0].URL)
	require.NotNil(t, body.Count)
	assert.Equal(t, int64(2), *body.Count)

	w = post(router, "/article.list", url.Values{"action": {"tag"}, "tag": {"go"}})
	require.Equal(t, http.StatusOK, w.Code)
	body = listResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "first", body.Data[0].URL)
	assert.Nil(t, body.Count)

	w = post(router, "/article.list", url.Values{"action": {"tag"}, "tag": {"Go"}, "includeCount": {"1"}})
	require.Equal(t, http.StatusOK, w.Code)
	body = listResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "first", body.Data[0].URL)
	require.NotNil(t, body.Count)
	assert.Equal(t, int64(1), *body.Count)
}

func TestListHandler_InvalidParams(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	tests := []struct {
		name string
		form url.Values
	}{
		{"tag without tag", url.Values{"action": {"tag"}}},
		{"author without author", url.Values{"action": {"author"}, "author": {"  "}}},
		{"search without query", url.Values{"action": {"search"}}},
		{"suggested with a bad article", url.Values{"action": {"suggested"}, "tags": {"go"}, "article": {"42"}}},
		{"suggested without tags", url.Values{"action": {"suggested"}, "article": {"0b7f3c1e-8a51-4d5e-9b7a-3f1c2d4e5a6b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(router, "/article.list", tt.form)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"code":26`)
		})
	}
}

func TestListHandler_DefaultsToShowcase(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", true)
	popular := insertArticle(t, db, admin, "popular", time.Now())
	insertArticle(t, db, admin, "quiet", time.Now().Add(-time.Hour))
	db.Model(popular).Update("views", 9)

	w := post(router, "/article.list", url.Values{})
	require.Equal(t, http.StatusOK, w.Code)

	var body listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "quiet", body.Data[0].URL)
}

func TestTagsHandler(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	require.NoError(t, db.Create(&models.Tag{Name: "go", UsageCount: 3}).Error)

	w := post(router, "/tag.get", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `{"tag":"go","count":3}`)
}
