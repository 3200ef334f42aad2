package session

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"inkwell/common"
	"inkwell/config"
	"inkwell/models"
)

const (
	Name           = "inkwell-session"
	RememberCookie = "user"
	CSRFHeader     = "X-CSRF-Token"
	CSRFField      = "csrfToken"

	userKey    = "user_id"
	csrfKey    = "csrf_token"
	contextKey = "session.user"
)

var ErrCSRF = errors.New("csrf token mismatch")

// NewStore builds the signed cookie store backing the gin session.
func NewStore(cfg *config.Config) sessions.Store {
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return store
}

func Middleware(cfg *config.Config) gin.HandlerFunc {
	return sessions.Sessions(Name, NewStore(cfg))
}

// Resolver maps the session or the remember cookie of a request to a user.
type Resolver struct {
	db     *gorm.DB
	cfg    *config.Config
	logger *zap.Logger
}

func NewResolver(db *gorm.DB, cfg *config.Config, logger *zap.Logger) *Resolver {
	return &Resolver{db: db, cfg: cfg, logger: logger}
}

// Current returns the authenticated user or nil for anonymous requests.
// It only fails when the store does. The result is kept on the context for
// the rest of the request.
func (r *Resolver) Current(c *gin.Context) (*models.User, error) {
	if cached, ok := c.Get(contextKey); ok {
		user, _ := cached.(*models.User)
		return user, nil
	}
	user, err := r.resolve(c)
	if err != nil {
		return nil, err
	}
	c.Set(contextKey, user)
	return user, nil
}

func (r *Resolver) resolve(c *gin.Context) (*models.User, error) {
	session := sessions.Default(c)
	db := r.db.WithContext(c.Request.Context())

	if id, ok := session.Get(userKey).(string); ok && id != "" {
		var user models.User
		err := db.Where("id = ?", id).First(&user).Error
		if err == nil {
			return &user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.FromStore("resolve session user", err)
		}
		r.logger.Info("session references a removed user", zap.String("user_id", id))
		session.Delete(userKey)
		if err := session.Save(); err != nil {
			return nil, errors.Wrap(err, "save session")
		}
		r.clearRememberCookie(c)
		return nil, nil
	}

	token, err := c.Cookie(RememberCookie)
	if err != nil || token == "" {
		return nil, nil
	}

	var user models.User
	err = db.Where("remember_token = ?", token).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.clearRememberCookie(c)
		return nil, nil
	}
	if err != nil {
		return nil, common.FromStore("resolve remember token", err)
	}
	if err := r.CreateSession(c, &user, true); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateSession binds user to the session. The remember cookie is only
// written when remember is set and the user carries a token.
func (r *Resolver) CreateSession(c *gin.Context, user *models.User, remember bool) error {
	session := sessions.Default(c)
	session.Set(userKey, user.ID)
	if err := session.Save(); err != nil {
		return errors.Wrap(err, "save session")
	}
	if remember && user.RememberToken != nil {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(RememberCookie, *user.RememberToken, int(r.cfg.RememberMaxAge.Seconds()), "/", "", r.cfg.Secure, true)
	}
	c.Set(contextKey, user)
	return nil
}

func (r *Resolver) Logout(c *gin.Context) error {
	session := sessions.Default(c)
	session.Delete(userKey)
	if err := session.Save(); err != nil {
		return errors.Wrap(err, "save session")
	}
	r.clearRememberCookie(c)
	c.Set(contextKey, (*models.User)(nil))
	return nil
}

func (r *Resolver) clearRememberCookie(c *gin.Context) {
	c.SetCookie(RememberCookie, "", -1, "/", "", r.cfg.Secure, true)
}

// CSRFToken returns the token bound to the session, creating it on first use.
func (r *Resolver) CSRFToken(c *gin.Context) (string, error) {
	session := sessions.Default(c)
	if token, ok := session.Get(csrfKey).(string); ok && token != "" {
		return token, nil
	}
	token, err := common.GenerateToken()
	if err != nil {
		return "", err
	}
	session.Set(csrfKey, token)
	if err := session.Save(); err != nil {
		return "", errors.Wrap(err, "save session")
	}
	return token, nil
}

// RequireCSRF aborts state-changing requests whose token does not match the
// session one with code 61, before any handler runs.
func (r *Resolver) RequireCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if err := checkCSRF(c); err != nil {
			r.logger.Warn("csrf check failed",
				zap.String("path", c.Request.URL.Path),
				zap.String("ip", c.ClientIP()),
			)
			common.ReturnError(c, http.StatusForbidden, common.Failure{Code: 61, Description: "Invalid CSRF token."})
			return
		}
		c.Next()
	}
}

func checkCSRF(c *gin.Context) error {
	expected, _ := sessions.Default(c).Get(csrfKey).(string)
	provided := c.GetHeader(CSRFHeader)
	if provided == "" {
		provided = c.PostForm(CSRFField)
	}
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
		return ErrCSRF
	}
	return nil
}

// VisitorIdentifier identifies the reader of an article for view counting:
// the user ID when authenticated, the client address otherwise.
func VisitorIdentifier(c *gin.Context, user *models.User) string {
	if user != nil {
		return user.ID
	}
	return c.ClientIP()
}
