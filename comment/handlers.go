package comment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"inkwell/common"
	"inkwell/session"
)

type CommentModule struct {
	service  *Service
	sessions *session.Resolver
	limiter  gin.HandlerFunc
	logger   *zap.Logger
}

type loadRequest struct {
	Article string `form:"article" json:"article" validate:"required,uuid" code:"19" msg:"Invalid article ID."`
}

type loadUserRequest struct {
	User string `form:"user" json:"user" validate:"required,uuid" code:"45" msg:"Invalid user ID."`
}

type createRequest struct {
	Article string `form:"article" json:"article" validate:"required,uuid" code:"21" msg:"Invalid article ID."`
	Text    string `form:"text" json:"text" validate:"required,max=10000" code:"22" msg:"Invalid comment text."`
}

type removeRequest struct {
	ID string `form:"id" json:"id" validate:"required,uuid" code:"24" msg:"Invalid comment ID."`
}

var (
	loadUserFailures = common.Failures{
		common.KindNotFound: {Code: 65, Description: "Undefined user."},
	}
	createFailures = common.Failures{
		common.KindNotFound: {Code: 79, Description: "Undefined article."},
	}
	removeFailures = common.Failures{
		common.KindNotFound:  {Code: 80, Description: "Undefined comment."},
		common.KindForbidden: {Code: 66, Description: "You are not allowed to remove this comment."},
	}
)

func NewCommentModule(service *Service, sessions *session.Resolver, limiter gin.HandlerFunc, logger *zap.Logger) *CommentModule {
	return &CommentModule{service: service, sessions: sessions, limiter: limiter, logger: logger}
}

func (m *CommentModule) RegisterRoutes(router gin.IRouter) {
	create := []gin.HandlerFunc{m.create}
	if m.limiter != nil {
		create = append([]gin.HandlerFunc{m.limiter}, create...)
	}

	router.POST("/comment.load", m.load)
	router.POST("/comment.loadUser", m.loadUser)
	router.POST("/comment.create", create...)
	router.POST("/comment.remove", m.remove)
}

func (m *CommentModule) load(c *gin.Context) {
	var req loadRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	fallback := common.Failure{Code: 20, Description: "Unable to load comments."}

	user, err := m.sessions.Current(c)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, nil, fallback)
		return
	}
	comments, err := m.service.LoadComments(c.Request.Context(), req.Article, common.PageNumber(c), user)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, nil, fallback)
		return
	}
	common.ReturnSuccess(c, 1, "Comments fetched successfully.", comments)
}

func (m *CommentModule) loadUser(c *gin.Context) {
	var req loadUserRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	comments, err := m.service.LoadUserComments(c.Request.Context(), req.User, common.PageNumber(c))
	if err != nil {
		common.ReturnFailure(c, m.logger, err, loadUserFailures, common.Failure{Code: 46, Description: "Unable to load comments."})
		return
	}
	common.ReturnSuccess(c, 1, "Comments fetched successfully.", comments)
}

func (m *CommentModule) create(c *gin.Context) {
	var req createRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	fallback := common.Failure{Code: 23, Description: "Unable to create the comment."}

	user, err := m.sessions.Current(c)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, nil, fallback)
		return
	}
	comment, err := m.service.Create(c.Request.Context(), req.Article, req.Text, user)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, createFailures, fallback)
		return
	}
	common.ReturnSuccess(c, 1, "Comment created successfully.", comment)
}

func (m *CommentModule) remove(c *gin.Context) {
	var req removeRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	fallback := common.Failure{Code: 25, Description: "Unable to remove the comment."}

	user, err := m.sessions.Current(c)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, nil, fallback)
		return
	}
	if user == nil {
		common.ReturnError(c, http.StatusUnauthorized, common.Failure{Code: 26, Description: "Anonymous users cannot remove comments."})
		return
	}
	if err := m.service.Remove(c.Request.Context(), req.ID, user); err != nil {
		common.ReturnFailure(c, m.logger, err, removeFailures, fallback)
		return
	}
	common.ReturnSuccess(c, 1, "Comment removed successfully.", nil)
}
