package newsletter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"inkwell/common"
	"inkwell/config"
	"inkwell/models"
)

type sentMail struct {
	from, to, subject, body string
}

type recordingMailer struct {
	sent   []sentMail
	failTo string
}

func (m *recordingMailer) Send(from, to, subject, body string) error {
	if to == m.failTo {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, sentMail{from, to, subject, body})
	return nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), common.GormConfig(zap.NewNop()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Domain:            "blog.example.com",
		Secure:            true,
		SiteTitle:         "inkwell",
		NewsletterFrom:    "news@blog.example.com",
		NewsletterSubject: "New article",
	}
}

func setupTestService(t *testing.T) (*Service, *recordingMailer, *gorm.DB) {
	db := setupTestDB(t)
	mailer := &recordingMailer{}
	return NewService(db, mailer, testConfig(), nil, zap.NewNop()), mailer, db
}

func TestAddAddress(t *testing.T) {
	service, _, db := setupTestService(t)
	ctx := context.Background()

	require.NoError(t, service.AddAddress(ctx, "ada@example.com"))

	var subscriber models.Subscriber
	require.NoError(t, db.Where("email = ?", "ada@example.com").First(&subscriber).Error)
	assert.Len(t, subscriber.RevocationToken, 44)

	err := service.AddAddress(ctx, "ada@example.com")
	assert.True(t, common.IsKind(err, common.KindConflict))
}

func TestRemoveAddress(t *testing.T) {
	service, _, db := setupTestService(t)
	ctx := context.Background()
	require.NoError(t, service.AddAddress(ctx, "ada@example.com"))

	require.NoError(t, service.RemoveAddress(ctx, "ada@example.com"))
	require.NoError(t, service.RemoveAddress(ctx, "ada@example.com"))

	var count int64
	db.Model(&models.Subscriber{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestRemoveAddressByRevocationToken(t *testing.T) {
	service, _, db := setupTestService(t)
	ctx := context.Background()
	require.NoError(t, service.AddAddress(ctx, "ada@example.com"))

	var subscriber models.Subscriber
	require.NoError(t, db.First(&subscriber).Error)

	require.NoError(t, service.RemoveAddressByRevocationToken(ctx, "unknown"))
	require.NoError(t, service.RemoveAddressByRevocationToken(ctx, subscriber.RevocationToken))

	var count int64
	db.Model(&models.Subscriber{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestListAddresses_Paginates(t *testing.T) {
	service, _, _ := setupTestService(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, service.AddAddress(ctx, fmt.Sprintf("reader%02d@example.com", i)))
	}

	first, err := service.ListAddresses(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first, common.ListPageSize)
	assert.Equal(t, "reader24@example.com", first[0].Email)

	second, err := service.ListAddresses(ctx, 2)
	require.NoError(t, err)
	require.Len(t, second, 5)
	assert.Equal(t, "reader00@example.com", second[4].Email)
}

func TestSendArticle_IsolatesFailures(t *testing.T) {
	service, mailer, db := setupTestService(t)
	ctx := context.Background()
	for _, address := range []string{"ada@example.com", "broken@example.com", "grace@example.com"} {
		require.NoError(t, service.AddAddress(ctx, address))
	}
	mailer.failTo = "broken@example.com"

	err := service.SendArticle(ctx, Article{
		Title:  "Hello Go",
		URL:    "hello-go",
		Text:   "Some **text**",
		Author: "Ada Lovelace",
		Cover:  "/covers/a.png",
	})
	require.NoError(t, err)
	require.Len(t, mailer.sent, 2)

	var ada models.Subscriber
	require.NoError(t, db.Where("email = ?", "ada@example.com").First(&ada).Error)

	byRecipient := map[string]sentMail{}
	for _, m := range mailer.sent {
		byRecipient[m.to] = m
	}
	mail, ok := byRecipient["ada@example.com"]
	require.True(t, ok)
	assert.Equal(t, "news@blog.example.com", mail.from)
	assert.Equal(t, "ada@example.com", mail.to)
	assert.Equal(t, "New article", mail.subject)
	assert.Contains(t, mail.body, "Hello Go")
	assert.Contains(t, mail.body, "https://blog.example.com/article/hello-go")
	assert.Contains(t, mail.body, "https://blog.example.com/covers/a.png")
	assert.Contains(t, mail.body, "https://blog.example.com/unsubscribe?token="+url.QueryEscape(ada.RevocationToken))
	assert.Contains(t, byRecipient, "grace@example.com")
	assert.NotContains(t, byRecipient, "broken@example.com")
}

func TestSendArticle_ReachesEveryBatch(t *testing.T) {
	service, mailer, _ := setupTestService(t)
	ctx := context.Background()
	total := 2*batchSize + 50
	for i := 0; i < total; i++ {
		require.NoError(t, service.AddAddress(ctx, fmt.Sprintf("reader%03d@example.com", i)))
	}

	require.NoError(t, service.SendArticle(ctx, Article{Title: "Hello Go", URL: "hello-go", Text: "text"}))

	require.Len(t, mailer.sent, total)
	seen := map[string]bool{}
	for _, m := range mailer.sent {
		seen[m.to] = true
	}
	assert.Len(t, seen, total)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("short"))

	long := strings.Repeat("é", excerptLength+10)
	cut := excerpt(long)
	assert.Equal(t, excerptLength+1, len([]rune(cut)))
}

func setupTestRouter(service *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewNewsletterModule(service, nil, zap.NewNop()).RegisterRoutes(router)
	return router
}

func postForm(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubscribeHandler(t *testing.T) {
	service, _, _ := setupTestService(t)
	router := setupTestRouter(service)

	w := postForm(router, "/newsletter.subscribe", url.Values{"email": {"not-an-address"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"code":17`)

	w = postForm(router, "/newsletter.subscribe", url.Values{"email": {" ada@example.com "}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"result":"success"`)

	w = postForm(router, "/newsletter.subscribe", url.Values{"email": {"ada@example.com"}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":69`)
}

func TestUnsubscribeHandler(t *testing.T) {
	service, _, db := setupTestService(t)
	router := setupTestRouter(service)
	require.NoError(t, service.AddAddress(context.Background(), "ada@example.com"))

	var subscriber models.Subscriber
	require.NoError(t, db.First(&subscriber).Error)

	req, _ := http.NewRequest("GET", "/unsubscribe?token="+url.QueryEscape(subscriber.RevocationToken), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/#unsubscribe.success", w.Header().Get("Location"))

	var count int64
	db.Model(&models.Subscriber{}).Count(&count)
	assert.Equal(t, int64(0), count)

	req, _ = http.NewRequest("GET", "/unsubscribe", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "/", w.Header().Get("Location"))
}
