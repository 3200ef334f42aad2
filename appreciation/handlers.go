package appreciation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"inkwell/common"
	"inkwell/session"
)

type AppreciationModule struct {
	service  *Service
	sessions *session.Resolver
	logger   *zap.Logger
}

type toggleRequest struct {
	Article string `form:"article" json:"article" validate:"required,uuid" code:"27" msg:"Invalid article ID."`
	Value   string `form:"value" json:"value"`
}

var toggleFailures = common.Failures{
	common.KindNotFound: {Code: 81, Description: "Undefined article."},
}

func NewAppreciationModule(service *Service, sessions *session.Resolver, logger *zap.Logger) *AppreciationModule {
	return &AppreciationModule{service: service, sessions: sessions, logger: logger}
}

func (m *AppreciationModule) RegisterRoutes(router gin.IRouter) {
	router.POST("/appreciation.toggle", m.toggle)
}

func (m *AppreciationModule) toggle(c *gin.Context) {
	var req toggleRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	fallback := common.Failure{Code: 29, Description: "Unable to create the appreciation."}

	user, err := m.sessions.Current(c)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, nil, fallback)
		return
	}
	if user == nil {
		common.ReturnError(c, http.StatusUnauthorized, common.Failure{Code: 28, Description: "Anonymous users cannot use this feature."})
		return
	}

	state, err := m.service.Toggle(c.Request.Context(), req.Value == "1", req.Article, user)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, toggleFailures, fallback)
		return
	}
	common.ReturnSuccess(c, 1, "Appreciation created successfully.", state)
}
