package blog

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
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"inkwell/article"
	"inkwell/common"
	"inkwell/config"
	"inkwell/models"
	"inkwell/session"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), common.GormConfig(zap.NewNop()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{SessionSecret: "secret", SessionMaxAge: time.Hour, SiteTitle: "inkwell"}
	logger := zap.NewNop()
	router := gin.New()
	_ = router.SetTrustedProxies(nil)
	router.Use(session.Middleware(cfg))
	NewBlogModule(article.NewService(db, nil, nil, logger), session.NewResolver(db, cfg, logger), cfg, logger).RegisterRoutes(router)
	return router
}

func createTestArticle(t *testing.T, db *gorm.DB) *models.Article {
	author := &models.User{Name: "Ada", Surname: "Lovelace", Email: "ada@example.com", PasswordHash: "hash", Admin: true}
	require.NoError(t, db.Create(author).Error)
	post := &models.Article{
		Title:    "Test Post",
		Text:     "# Test Content\n\nThis is a **test** post.",
		URL:      "test-post",
		AuthorID: author.ID,
	}
	require.NoError(t, db.Create(post).Error)
	return post
}

func getArticle(router *gin.Engine, articleURL, ip string) *httptest.ResponseRecorder {
	return getArticleForwarded(router, articleURL, ip, "")
}

func getArticleForwarded(router *gin.Engine, articleURL, ip, forwarded string) *httptest.ResponseRecorder {
	form := url.Values{"url": {articleURL}}
	req, _ := http.NewRequest("POST", "/article.get", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = ip + ":40000"
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodePage(t *testing.T, w *httptest.ResponseRecorder) Page {
	var body struct {
		Data Page `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data
}

func TestGet_Success(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	post := createTestArticle(t, db)

	w := getArticle(router, "test-post", "198.51.100.7")
	require.Equal(t, http.StatusOK, w.Code)

	page := decodePage(t, w)
	assert.Equal(t, "inkwell | Test Post", page.Title)
	assert.True(t, page.Counted)
	require.NotNil(t, page.Article)
	assert.Equal(t, post.ID, page.Article.ID)
	assert.Equal(t, int64(1), page.Article.Counters.Views)
	assert.Contains(t, string(page.HTML), "<h1>Test Content</h1>")
	assert.Contains(t, string(page.HTML), "<strong>test</strong>")
}

func TestGet_SameVisitorCountedOnce(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	post := createTestArticle(t, db)

	getArticle(router, "test-post", "198.51.100.7")
	second := decodePage(t, getArticle(router, "test-post", "198.51.100.7"))
	assert.False(t, second.Counted)

	getArticle(router, "test-post", "198.51.100.8")

	var stored models.Article
	require.NoError(t, db.First(&stored, "id = ?", post.ID).Error)
	assert.Equal(t, int64(2), stored.Views)
}

func TestGet_ForwardedHeaderDoesNotCreateVisitors(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	post := createTestArticle(t, db)

	for _, forwarded := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		getArticleForwarded(router, "test-post", "1.2.3.4", forwarded)
	}

	var stored models.Article
	require.NoError(t, db.First(&stored, "id = ?", post.ID).Error)
	assert.Equal(t, int64(1), stored.Views)
}

func TestGet_Failures(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	w := getArticle(router, "", "198.51.100.7")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"code":71`)

	w = getArticle(router, "missing", "198.51.100.7")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":70`)
}

func TestRenderMarkdown_Headers(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"# Header 1", "<h1>Header 1</h1>"},
		{"## Header 2", "<h2>Header 2</h2>"},
		{"### Header 3", "<h3>Header 3</h3>"},
		{"#### Header 4", "<h4>Header 4</h4>"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Contains(t, string(RenderMarkdown(tt.input)), tt.expected)
		})
	}
}

func TestRenderMarkdown_Lists(t *testing.T) {
	result := string(RenderMarkdown("- Item 1\n- Item 2\n- Item 3"))

	assert.Contains(t, result, "<ul>")
	assert.Contains(t, result, "<li>Item 1</li>")
	assert.Contains(t, result, "<li>Item 3</li>")
	assert.Contains(t, result, "</ul>")
}

func TestRenderMarkdown_LineBreaks(t *testing.T) {
	result := string(RenderMarkdown("first line\nsecond line"))
	assert.Contains(t, result, "first line<br>")
}

func TestRenderMarkdown_ComplexDocument(t *testing.T) {
	input := `# Main Title

This is a paragraph with **bold** and *italic* text.

- List item 1
- List item 2

Check [this link](https://example.com) or https://go.dev for more info.

| a | b |
|---|---|
| 1 | 2 |

` + "```" + `
code block here
` + "```"

	result := string(RenderMarkdown(input))

	assert.Contains(t, result, "<h1>Main Title</h1>")
	assert.Contains(t, result, "<strong>bold</strong>")
	assert.Contains(t, result, "<em>italic</em>")
	assert.Contains(t, result, "<li>List item 1</li>")
	assert.Contains(t, result, `<a href="https://example.com">this link</a>`)
	assert.Contains(t, result, `<a href="https://go.dev">https://go.dev</a>`)
	assert.Contains(t, result, "<table>")
	assert.Contains(t, result, "<pre><code>")
	assert.Contains(t, result, "code block here")
}
