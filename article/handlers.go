package article

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"inkwell/common"
	"inkwell/session"
)

type ArticleModule struct {
	service  *Service
	sessions *session.Resolver
	logger   *zap.Logger
}

type listRequest struct {
	Action       string `form:"action" json:"action"`
	Article      string `form:"article" json:"article"`
	Tags         string `form:"tags" json:"tags"`
	Author       string `form:"author" json:"author"`
	Tag          string `form:"tag" json:"tag"`
	Query        string `form:"q" json:"q"`
	IncludeCount string `form:"includeCount" json:"includeCount"`
}

var (
	invalidListRequest = common.Failure{Code: 26, Description: "Invalid request."}
	listFailed         = common.Failure{Code: 8, Description: "Unable to fetch articles."}
)

func NewArticleModule(service *Service, sessions *session.Resolver, logger *zap.Logger) *ArticleModule {
	return &ArticleModule{service: service, sessions: sessions, logger: logger}
}

func (m *ArticleModule) RegisterRoutes(router gin.IRouter) {
	router.POST("/article.list", m.list)
	router.POST("/tag.get", m.tags)
}

func (m *ArticleModule) list(c *gin.Context) {
	var req listRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}

	mode := req.Action
	if mode == "" {
		mode = ModeShowcase
	}

	user, err := m.sessions.Current(c)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, nil, listFailed)
		return
	}

	params := Params{User: user}
	switch mode {
	case ModeFeatured:
		params.Exclude = req.Article
	case ModeSuggested:
		params.Tags = common.SplitTags(req.Tags)
		params.Exclude = req.Article
		if len(params.Tags) == 0 || !common.ValidID(req.Article) {
			common.ReturnError(c, http.StatusBadRequest, invalidListRequest)
			return
		}
	case ModeAuthor:
		params.Author = req.Author
		if params.Author == "" {
			common.ReturnError(c, http.StatusBadRequest, invalidListRequest)
			return
		}
	case ModeTag:
		params.Tag = req.Tag
		if params.Tag == "" {
			common.ReturnError(c, http.StatusBadRequest, invalidListRequest)
			return
		}
	case ModeSearch:
		params.Query = req.Query
		if params.Query == "" {
			common.ReturnError(c, http.StatusBadRequest, invalidListRequest)
			return
		}
	}

	ctx := c.Request.Context()
	articles, err := m.service.GetArticles(ctx, mode, common.PageNumber(c), params)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, nil, listFailed)
		return
	}

	if req.IncludeCount == "1" {
		count, err := m.service.GetArticlesCount(ctx, mode, params)
		if err != nil {
			common.ReturnFailure(c, m.logger, err, nil, listFailed)
			return
		}
		common.ReturnSuccessWithCount(c, 1, "Articles fetched successfully.", articles, count)
		return
	}
	common.ReturnSuccess(c, 1, "Articles fetched successfully.", articles)
}

func (m *ArticleModule) tags(c *gin.Context) {
	tags, err := m.service.GetTags(c.Request.Context())
	if err != nil {
		common.ReturnFailure(c, m.logger, err, nil, common.Failure{Code: 30, Description: "Unable to fetch tags."})
		return
	}
	common.ReturnSuccess(c, 1, "Tags fetched successfully.", tags)
}
