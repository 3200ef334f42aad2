package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"inkwell/article"
	"inkwell/common"
	"inkwell/models"
	"inkwell/newsletter"
	"inkwell/session"
	"inkwell/storage"
	"inkwell/user"
)

// PageCache holds documents derived from the article list.
type PageCache interface {
	ClearAll() error
}

// AdminModule serves the endpoints reserved to admins: publishing, account
// moderation and the mailing list.
type AdminModule struct {
	articles   *article.Service
	users      *user.Service
	newsletter *newsletter.Service
	covers     storage.CoverStore
	pages      PageCache
	sessions   *session.Resolver
	logger     *zap.Logger
}

type createArticleRequest struct {
	Title string `form:"title" json:"title" validate:"required,max=255" code:"9" msg:"Invalid title."`
	Text  string `form:"text" json:"text" validate:"required" code:"10" msg:"Invalid text."`
	URL   string `form:"url" json:"url" validate:"omitempty,max=255,excludesall=/?#" code:"11" msg:"Invalid URL."`
	Tags  string `form:"tags" json:"tags"`
	Cover string `form:"cover" json:"cover"`
}

type removeArticleRequest struct {
	ID string `form:"id" json:"id" validate:"required,uuid" code:"15" msg:"Invalid article ID."`
}

type deleteUserRequest struct {
	ID    string `form:"id" json:"id" validate:"required,uuid" code:"37" msg:"Invalid user ID."`
	Clear string `form:"clear" json:"clear"`
}

type removeAddressRequest struct {
	Email string `form:"email" json:"email" validate:"required,email,max=255" code:"68" msg:"Invalid e-mail address."`
}

var (
	createArticleFailures = common.Failures{
		common.KindConflict:  {Code: 19, Description: "URL already existing."},
		common.KindNotFound:  {Code: 12, Description: "User not authenticated."},
		common.KindForbidden: {Code: 13, Description: "The authenticated user is not an admin."},
	}
	deleteUserFailures = common.Failures{
		common.KindLastAdminProtected: {Code: 82, Description: "Cannot remove the last admin."},
		common.KindNotFound:           {Code: 83, Description: "Undefined user."},
	}

	adminsOnly = "This feature is available for admins only."
)

func NewAdminModule(
	articles *article.Service,
	users *user.Service,
	newsletterService *newsletter.Service,
	covers storage.CoverStore,
	pages PageCache,
	sessions *session.Resolver,
	logger *zap.Logger,
) *AdminModule {
	return &AdminModule{
		articles:   articles,
		users:      users,
		newsletter: newsletterService,
		covers:     covers,
		pages:      pages,
		sessions:   sessions,
		logger:     logger,
	}
}

func (a *AdminModule) RegisterRoutes(router gin.IRouter) {
	router.POST("/article.create", a.createArticle)
	router.POST("/article.remove", a.removeArticle)
	router.POST("/user.list", a.listUsers)
	router.POST("/user.delete", a.deleteUser)
	router.POST("/newsletter.listAddresses", a.listAddresses)
	router.POST("/newsletter.removeAddress", a.removeAddress)
}

// requireAdmin resolves the requester and answers with anonymous or
// forbidden when it is not an admin. The store failure is answered with
// fallback.
func (a *AdminModule) requireAdmin(c *gin.Context, anonymous, forbidden, fallback common.Failure) (*models.User, bool) {
	current, err := a.sessions.Current(c)
	if err != nil {
		common.ReturnFailure(c, a.logger, err, nil, fallback)
		return nil, false
	}
	if current == nil {
		common.ReturnError(c, http.StatusUnauthorized, anonymous)
		return nil, false
	}
	if !current.Admin {
		common.ReturnError(c, http.StatusForbidden, forbidden)
		return nil, false
	}
	return current, true
}

func (a *AdminModule) createArticle(c *gin.Context) {
	var req createArticleRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	fallback := common.Failure{Code: 14, Description: "Unable to create the article."}

	author, ok := a.requireAdmin(c,
		createArticleFailures[common.KindNotFound],
		createArticleFailures[common.KindForbidden],
		fallback,
	)
	if !ok {
		return
	}

	url := req.URL
	if url == "" {
		url = generateSlug(req.Title)
	}
	if url == "" {
		common.ReturnError(c, http.StatusBadRequest, common.Failure{Code: 11, Description: "Invalid URL."})
		return
	}

	ctx := c.Request.Context()
	var cover *string
	if req.Cover != "" && a.covers != nil {
		name, err := a.covers.Save(ctx, req.Cover)
		if err != nil {
			a.logger.Warn("cover not saved, publishing without it", zap.Error(err))
		} else {
			cover = &name
		}
	}

	created, err := a.articles.Create(ctx, article.CreateInput{
		Title: req.Title,
		Text:  req.Text,
		URL:   url,
		Tags:  common.SplitTags(req.Tags),
		Cover: cover,
	}, author.ID)
	if err != nil {
		if cover != nil {
			if err := a.covers.Delete(ctx, *cover); err != nil {
				a.logger.Warn("orphan cover not removed", zap.String("cover", *cover), zap.Error(err))
			}
		}
		common.ReturnFailure(c, a.logger, err, createArticleFailures, fallback)
		return
	}
	a.invalidatePages()
	common.ReturnSuccess(c, 1, "Article created successfully.", created)
}

func (a *AdminModule) removeArticle(c *gin.Context) {
	var req removeArticleRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	fallback := common.Failure{Code: 16, Description: "Unable to remove the article."}

	_, ok := a.requireAdmin(c,
		common.Failure{Code: 64, Description: "User not authenticated."},
		common.Failure{Code: 65, Description: "The authenticated user is not an admin."},
		fallback,
	)
	if !ok {
		return
	}

	if err := a.articles.Remove(c.Request.Context(), req.ID); err != nil {
		common.ReturnFailure(c, a.logger, err, nil, fallback)
		return
	}
	a.invalidatePages()
	common.ReturnSuccess(c, 1, "Article removed successfully.", nil)
}

func (a *AdminModule) invalidatePages() {
	if a.pages == nil {
		return
	}
	if err := a.pages.ClearAll(); err != nil {
		a.logger.Warn("page cache not cleared", zap.Error(err))
	}
}

func (a *AdminModule) listUsers(c *gin.Context) {
	fallback := common.Failure{Code: 35, Description: "Unable to fetch users."}
	denied := common.Failure{Code: 34, Description: adminsOnly}
	if _, ok := a.requireAdmin(c, denied, denied, fallback); !ok {
		return
	}

	users, err := a.users.List(c.Request.Context(), common.PageNumber(c))
	if err != nil {
		common.ReturnFailure(c, a.logger, err, nil, fallback)
		return
	}
	common.ReturnSuccess(c, 1, "Users fetched successfully.", users)
}

// deleteUser removes another account. With clear set to "1" the articles of
// the account go too.
func (a *AdminModule) deleteUser(c *gin.Context) {
	var req deleteUserRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	fallback := common.Failure{Code: 38, Description: "Unable to remove the user."}
	denied := common.Failure{Code: 36, Description: adminsOnly}

	current, ok := a.requireAdmin(c, denied, denied, fallback)
	if !ok {
		return
	}
	if current.ID == req.ID {
		common.ReturnError(c, http.StatusForbidden, common.Failure{Code: 39, Description: "You cannot remove yourself."})
		return
	}

	removeContents := req.Clear == "1"
	if err := a.users.Remove(c.Request.Context(), req.ID, removeContents); err != nil {
		common.ReturnFailure(c, a.logger, err, deleteUserFailures, fallback)
		return
	}
	if removeContents {
		a.invalidatePages()
	}
	common.ReturnSuccess(c, 1, "User removed successfully.", nil)
}

func (a *AdminModule) listAddresses(c *gin.Context) {
	fallback := common.Failure{Code: 41, Description: "Unable to fetch e-mail addresses."}
	denied := common.Failure{Code: 40, Description: adminsOnly}
	if _, ok := a.requireAdmin(c, denied, denied, fallback); !ok {
		return
	}

	addresses, err := a.newsletter.ListAddresses(c.Request.Context(), common.PageNumber(c))
	if err != nil {
		common.ReturnFailure(c, a.logger, err, nil, fallback)
		return
	}
	common.ReturnSuccess(c, 1, "E-mail addresses fetched successfully.", addresses)
}

func (a *AdminModule) removeAddress(c *gin.Context) {
	var req removeAddressRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	fallback := common.Failure{Code: 44, Description: "Unable to remove the e-mail address."}
	denied := common.Failure{Code: 67, Description: adminsOnly}
	if _, ok := a.requireAdmin(c, denied, denied, fallback); !ok {
		return
	}

	if err := a.newsletter.RemoveAddress(c.Request.Context(), req.Email); err != nil {
		common.ReturnFailure(c, a.logger, err, nil, fallback)
		return
	}
	common.ReturnSuccess(c, 1, "E-mail address removed successfully.", nil)
}
