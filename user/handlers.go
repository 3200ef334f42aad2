package user

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"inkwell/common"
	"inkwell/session"
)

type UserModule struct {
	service  *Service
	sessions *session.Resolver
	limiter  gin.HandlerFunc
	logger   *zap.Logger
}

type loginRequest struct {
	Email    string `form:"email" json:"email" validate:"required,email,max=255" code:"1" msg:"Invalid e-mail address."`
	Password string `form:"password" json:"password" validate:"required,max=30" code:"2" msg:"Invalid password."`
	Remember string `form:"remember" json:"remember"`
}

type registerRequest struct {
	Name     string `form:"name" json:"name" validate:"required,max=30" code:"5" msg:"Invalid name."`
	Surname  string `form:"surname" json:"surname" validate:"required,max=30" code:"6" msg:"Invalid surname."`
	Email    string `form:"email" json:"email" validate:"required,email,max=255" code:"3" msg:"Invalid e-mail address."`
	Password string `form:"password" json:"password" validate:"required,max=30" code:"4" msg:"Invalid password."`
}

type editRequest struct {
	Name    string `form:"name" json:"name" validate:"required,max=30" code:"48" msg:"Invalid name."`
	Surname string `form:"surname" json:"surname" validate:"required,max=30" code:"49" msg:"Invalid surname."`
	Email   string `form:"email" json:"email" validate:"required,email,max=255" code:"50" msg:"Invalid e-mail."`
}

type changePasswordRequest struct {
	Current     string `form:"current" json:"current" validate:"required,max=30" code:"53" msg:"Invalid current password."`
	NewPassword string `form:"newPassword" json:"newPassword" validate:"required,max=30" code:"54" msg:"Invalid new password."`
}

type getRequest struct {
	ID string `form:"id" json:"id" validate:"omitempty,uuid" code:"73" msg:"Invalid user ID."`
}

type sessionData struct {
	CSRFToken string   `json:"csrfToken"`
	User      *Summary `json:"user"`
}

var (
	loginFailures = common.Failures{
		common.KindNotFound:       {Code: 8, Description: "Undefined user."},
		common.KindBadCredentials: {Code: 9, Description: "Invalid password."},
	}
	registerFailures = common.Failures{
		common.KindConflict: {Code: 63, Description: "User already existing."},
	}
	editFailures = common.Failures{
		common.KindConflict: {Code: 77, Description: "This e-mail address is already in use."},
	}
	changePasswordFailures = common.Failures{
		common.KindNotFound:       {Code: 55, Description: "Undefined user."},
		common.KindBadCredentials: {Code: 56, Description: "Current password is not correct."},
	}
	removeAccountFailures = common.Failures{
		common.KindLastAdminProtected: {Code: 59, Description: "Cannot remove this user."},
	}
	getFailures = common.Failures{
		common.KindNotFound: {Code: 74, Description: "Undefined user."},
	}

	notLoggedIn = "User not logged in."
)

func NewUserModule(service *Service, sessions *session.Resolver, limiter gin.HandlerFunc, logger *zap.Logger) *UserModule {
	return &UserModule{service: service, sessions: sessions, limiter: limiter, logger: logger}
}

func (m *UserModule) RegisterRoutes(router gin.IRouter) {
	router.GET("/session", m.session)
	router.POST("/user.login", m.limited(m.login)...)
	router.POST("/user.register", m.limited(m.register)...)
	router.POST("/user.logout", m.logout)
	router.POST("/user.edit", m.edit)
	router.POST("/user.changePassword", m.changePassword)
	router.POST("/user.removeAccount", m.removeAccount)
	router.POST("/user.get", m.get)
}

func (m *UserModule) limited(handler gin.HandlerFunc) []gin.HandlerFunc {
	if m.limiter == nil {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{m.limiter, handler}
}

func (m *UserModule) session(c *gin.Context) {
	fallback := common.Failure{Code: 84, Description: "Unable to load the session."}
	token, err := m.sessions.CSRFToken(c)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, nil, fallback)
		return
	}
	user, err := m.sessions.Current(c)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, nil, fallback)
		return
	}
	common.ReturnSuccess(c, 1, "Session loaded.", sessionData{CSRFToken: token, User: Summarize(user)})
}

func (m *UserModule) login(c *gin.Context) {
	var req loginRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	fallback := common.Failure{Code: 62, Description: "Unexpected error."}

	user, err := m.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, loginFailures, fallback)
		return
	}
	if err := m.sessions.CreateSession(c, user, req.Remember == "1"); err != nil {
		common.ReturnFailure(c, m.logger, err, nil, fallback)
		return
	}
	common.ReturnSuccess(c, 2, "User logged in.", Summarize(user))
}

func (m *UserModule) register(c *gin.Context) {
	var req registerRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	fallback := common.Failure{Code: 7, Description: "Unable to create user."}

	user, err := m.service.Register(c.Request.Context(), RegisterInput{
		Name:     req.Name,
		Surname:  req.Surname,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		common.ReturnFailure(c, m.logger, err, registerFailures, fallback)
		return
	}
	if err := m.sessions.CreateSession(c, user, false); err != nil {
		common.ReturnFailure(c, m.logger, err, nil, fallback)
		return
	}
	common.ReturnSuccess(c, 1, "User created successfully.", Summarize(user))
}

func (m *UserModule) logout(c *gin.Context) {
	if err := m.sessions.Logout(c); err != nil {
		m.logger.Warn("logout failed", zap.Error(err))
	}
	common.ReturnSuccess(c, 3, "User logged out.", nil)
}

func (m *UserModule) edit(c *gin.Context) {
	var req editRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	fallback := common.Failure{Code: 51, Description: "Unable to edit user data."}

	user, err := m.sessions.Current(c)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, nil, fallback)
		return
	}
	if user == nil {
		common.ReturnError(c, http.StatusUnauthorized, common.Failure{Code: 47, Description: notLoggedIn})
		return
	}

	err = m.service.Edit(c.Request.Context(), EditInput{Name: req.Name, Surname: req.Surname, Email: req.Email}, user)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, editFailures, fallback)
		return
	}
	common.ReturnSuccess(c, 1, "User data edited successfully.", nil)
}

func (m *UserModule) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	fallback := common.Failure{Code: 57, Description: "Unable to change user password."}

	user, err := m.sessions.Current(c)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, nil, fallback)
		return
	}
	if user == nil {
		common.ReturnError(c, http.StatusUnauthorized, common.Failure{Code: 52, Description: notLoggedIn})
		return
	}

	if err := m.service.ChangePassword(c.Request.Context(), req.Current, req.NewPassword, user); err != nil {
		common.ReturnFailure(c, m.logger, err, changePasswordFailures, fallback)
		return
	}
	common.ReturnSuccess(c, 1, "User password changed successfully.", nil)
}

func (m *UserModule) removeAccount(c *gin.Context) {
	fallback := common.Failure{Code: 60, Description: "Unable to remove the user."}

	user, err := m.sessions.Current(c)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, nil, fallback)
		return
	}
	if user == nil {
		common.ReturnError(c, http.StatusUnauthorized, common.Failure{Code: 58, Description: notLoggedIn})
		return
	}
	if user.Admin {
		common.ReturnError(c, http.StatusForbidden, removeAccountFailures[common.KindLastAdminProtected])
		return
	}

	if err := m.service.Remove(c.Request.Context(), user.ID, true); err != nil {
		common.ReturnFailure(c, m.logger, err, removeAccountFailures, fallback)
		return
	}
	if err := m.sessions.Logout(c); err != nil {
		m.logger.Warn("logout after account removal failed", zap.Error(err))
	}
	common.ReturnSuccess(c, 1, "User removed successfully.", nil)
}

// get returns the profile of the given user, or of the requester when no ID
// is sent.
func (m *UserModule) get(c *gin.Context) {
	var req getRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	fallback := common.Failure{Code: 75, Description: "Unable to load the user."}

	viewer, err := m.sessions.Current(c)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, nil, fallback)
		return
	}
	id := req.ID
	if id == "" && viewer != nil {
		id = viewer.ID
	}
	if id == "" {
		common.ReturnError(c, http.StatusBadRequest, common.Failure{Code: 73, Description: "Invalid user ID."})
		return
	}

	profile, err := m.service.Profile(c.Request.Context(), id, viewer)
	if err != nil {
		common.ReturnFailure(c, m.logger, err, getFailures, fallback)
		return
	}
	common.ReturnSuccess(c, 1, "User fetched successfully.", profile)
}
