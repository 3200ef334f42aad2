package newsletter

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"inkwell/common"
)

type NewsletterModule struct {
	service *Service
	limiter gin.HandlerFunc
	logger  *zap.Logger
}

type subscribeRequest struct {
	Email string `form:"email" json:"email" validate:"required,email,max=255" code:"17" msg:"Invalid e-mail address."`
}

var subscribeFailures = common.Failures{
	common.KindConflict: {Code: 69, Description: "This address is already subscribed."},
}

func NewNewsletterModule(service *Service, limiter gin.HandlerFunc, logger *zap.Logger) *NewsletterModule {
	return &NewsletterModule{service: service, limiter: limiter, logger: logger}
}

func (m *NewsletterModule) RegisterRoutes(router gin.IRouter) {
	subscribe := []gin.HandlerFunc{m.subscribe}
	if m.limiter != nil {
		subscribe = append([]gin.HandlerFunc{m.limiter}, subscribe...)
	}
	router.POST("/newsletter.subscribe", subscribe...)
	router.GET("/unsubscribe", m.unsubscribe)
}

func (m *NewsletterModule) subscribe(c *gin.Context) {
	var req subscribeRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	if err := m.service.AddAddress(c.Request.Context(), req.Email); err != nil {
		common.ReturnFailure(c, m.logger, err, subscribeFailures, common.Failure{Code: 18, Description: "Unable to add the address."})
		return
	}
	common.ReturnSuccess(c, 1, "Address added successfully.", nil)
}

// unsubscribe is reached from the link in the newsletter mails, so it
// answers with a redirect to the home page instead of the JSON envelope.
func (m *NewsletterModule) unsubscribe(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		c.Redirect(http.StatusFound, "/")
		return
	}
	if err := m.service.RemoveAddressByRevocationToken(c.Request.Context(), token); err != nil {
		m.logger.Error("unsubscribe failed", zap.Error(err))
		c.Redirect(http.StatusFound, "/#unsubscribe.error")
		return
	}
	c.Redirect(http.StatusFound, "/#unsubscribe.success")
}
