package blog

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"go.uber.org/zap"

	"inkwell/article"
	"inkwell/common"
	"inkwell/config"
	"inkwell/session"
)

// BlogModule serves the article page.
type BlogModule struct {
	articles *article.Service
	sessions *session.Resolver
	cfg      *config.Config
	logger   *zap.Logger
}

// markdown renderer configured with Goldmark and useful extensions
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,     // tables, strikethrough, task lists, autolinks (GFM set)
		extension.Linkify, // linkify raw URLs
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithUnsafe(), // allow raw HTML passthrough in Markdown
		htmlrenderer.WithHardWraps(),
	),
)

type getRequest struct {
	URL string `form:"url" json:"url" validate:"required,max=255" code:"71" msg:"Invalid article URL."`
}

// Page is the variable bag of the article page.
type Page struct {
	Title   string        `json:"title"`
	Article *article.View `json:"article"`
	HTML    template.HTML `json:"html"`
	Counted bool          `json:"counted"`
}

var getFailures = common.Failures{
	common.KindNotFound: {Code: 70, Description: "Article not found."},
}

func NewBlogModule(articles *article.Service, sessions *session.Resolver, cfg *config.Config, logger *zap.Logger) *BlogModule {
	return &BlogModule{articles: articles, sessions: sessions, cfg: cfg, logger: logger}
}

func (b *BlogModule) RegisterRoutes(router gin.IRouter) {
	router.POST("/article.get", b.get)
}

// get loads an article by URL and counts the view of the requester.
func (b *BlogModule) get(c *gin.Context) {
	var req getRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	fallback := common.Failure{Code: 72, Description: "Unable to load the article."}
	ctx := c.Request.Context()

	user, err := b.sessions.Current(c)
	if err != nil {
		common.ReturnFailure(c, b.logger, err, nil, fallback)
		return
	}

	view, err := b.articles.GetArticleByURL(ctx, req.URL, user)
	if err != nil {
		common.ReturnFailure(c, b.logger, err, getFailures, fallback)
		return
	}

	counted, err := b.articles.IncrementViewsCounter(ctx, view.ID, session.VisitorIdentifier(c, user))
	if err != nil {
		b.logger.Warn("view not counted", zap.String("article", view.ID), zap.Error(err))
	}
	if counted && view.Counters != nil {
		view.Counters.Views++
	}

	common.ReturnSuccess(c, 1, "Article loaded.", Page{
		Title:   b.cfg.SiteTitle + " | " + view.Title,
		Article: view,
		HTML:    RenderMarkdown(view.Text),
		Counted: counted,
	})
}

// RenderMarkdown converts article text to HTML. Text that cannot be
// converted is returned escaped.
func RenderMarkdown(content string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(content))
	}
	return template.HTML(buf.String())
}
