package user

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"inkwell/common"
	"inkwell/config"
	"inkwell/email"
	"inkwell/models"
)

// Summary is the public view of an account.
type Summary struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Surname string    `json:"surname"`
	Email   string    `json:"email,omitempty"`
	Admin   bool      `json:"admin"`
	Date    time.Time `json:"date"`
}

func Summarize(u *models.User) *Summary {
	if u == nil {
		return nil
	}
	return &Summary{ID: u.ID, Name: u.Name, Surname: u.Surname, Email: u.Email, Admin: u.Admin, Date: u.CreatedAt}
}

// Profile is what the profile page shows about a user. Articles is only
// counted for admins.
type Profile struct {
	User     Summary `json:"user"`
	Comments int64   `json:"comments"`
	Articles *int64  `json:"articles,omitempty"`
	LoggedIn bool    `json:"loggedIn"`
}

type RegisterInput struct {
	Name     string
	Surname  string
	Email    string
	Password string
}

type EditInput struct {
	Name    string
	Surname string
	Email   string
}

type ArticleRemover interface {
	RemoveByAuthor(ctx context.Context, authorID string) error
}

type CommentRemover interface {
	RemoveUserComments(ctx context.Context, userID, articleID string) error
}

type AppreciationRemover interface {
	RemoveUserAppreciations(ctx context.Context, userID string) error
}

type Service struct {
	db            *gorm.DB
	cfg           *config.Config
	notifier      *email.Notifier
	articles      ArticleRemover
	comments      CommentRemover
	appreciations AppreciationRemover
	logger        *zap.Logger
}

func NewService(
	db *gorm.DB,
	cfg *config.Config,
	notifier *email.Notifier,
	articles ArticleRemover,
	comments CommentRemover,
	appreciations AppreciationRemover,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:            db,
		cfg:           cfg,
		notifier:      notifier,
		articles:      articles,
		comments:      comments,
		appreciations: appreciations,
		logger:        logger,
	}
}

// Login checks the credentials of an account.
func (s *Service) Login(ctx context.Context, address, password string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", address).First(&user).Error; err != nil {
		return nil, common.FromStore("find user by email", err)
	}
	if !checkPasswordHash(password, user.PasswordHash) {
		return nil, common.BadCredentials("login")
	}
	return &user, nil
}

// Register creates an account with a fresh remember token. Addresses listed
// in ADMIN_EMAILS become admins.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	token, err := common.GenerateToken()
	if err != nil {
		return nil, err
	}

	user := models.User{
		Name:          in.Name,
		Surname:       in.Surname,
		Email:         in.Email,
		PasswordHash:  hash,
		RememberToken: &token,
		Admin:         s.cfg.IsAdminEmail(in.Email),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, common.FromStore("insert user", err)
	}

	s.logger.Info("user registered", zap.String("id", user.ID), zap.Bool("admin", user.Admin))
	s.notifier.Notify(user.Email, "Welcome!", "Hello "+user.FullName()+"!\n\nYour account has successfully been created!")
	return &user, nil
}

// ChangePassword replaces the password of user after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, current, next string, user *models.User) error {
	db := s.db.WithContext(ctx)
	var stored models.User
	if err := db.Where("id = ?", user.ID).First(&stored).Error; err != nil {
		return common.FromStore("find user", err)
	}
	if !checkPasswordHash(current, stored.PasswordHash) {
		return common.BadCredentials("change password")
	}

	hash, err := hashPassword(next)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	if err := db.Model(&stored).Update("password_hash", hash).Error; err != nil {
		return common.FromStore("update password", err)
	}

	s.notifier.Notify(stored.Email, "Password change.", "Hello "+stored.FullName()+"!\n\nYour password has recently been updated.")
	return nil
}

// Edit updates the profile of user. A new address is announced to both the
// old and the new one.
func (s *Service) Edit(ctx context.Context, in EditInput, user *models.User) error {
	db := s.db.WithContext(ctx)
	var stored models.User
	if err := db.Where("id = ?", user.ID).First(&stored).Error; err != nil {
		return common.FromStore("find user", err)
	}
	previous := stored

	err := db.Model(&stored).Updates(map[string]interface{}{
		"name":    in.Name,
		"surname": in.Surname,
		"email":   in.Email,
	}).Error
	if err != nil {
		return common.FromStore("update user", err)
	}

	if !strings.EqualFold(previous.Email, in.Email) {
		title := "E-mail address changed."
		text := "Hello " + previous.FullName() + "!\n\nThe e-mail address associated to your account has been changed. " +
			"According to our information, this is your new e-mail address: " + in.Email
		s.notifier.Notify(previous.Email, title, text)
		s.notifier.Notify(in.Email, title, text)
	}
	user.Name, user.Surname, user.Email = in.Name, in.Surname, in.Email
	return nil
}

// Remove deletes the account with the given ID. Its comments and
// appreciations always go with it; its articles only when removeContents is
// set. The last admin cannot be removed.
func (s *Service) Remove(ctx context.Context, id string, removeContents bool) error {
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return common.FromStore("find user", err)
	}

	var others int64
	if err := db.Model(&models.User{}).Where("admin = ? AND id <> ?", true, id).Count(&others).Error; err != nil {
		return common.FromStore("count admins", err)
	}
	if others == 0 {
		return common.LastAdminProtected("remove user")
	}

	if removeContents {
		if err := s.articles.RemoveByAuthor(ctx, id); err != nil {
			return err
		}
	}
	if err := s.comments.RemoveUserComments(ctx, id, ""); err != nil {
		return err
	}
	if err := s.appreciations.RemoveUserAppreciations(ctx, id); err != nil {
		return err
	}
	if err := db.Delete(&user).Error; err != nil {
		return common.FromStore("delete user", err)
	}

	s.logger.Info("user removed", zap.String("id", id), zap.Bool("contents", removeContents))
	return nil
}

// List returns one page of accounts.
func (s *Service) List(ctx context.Context, page int) ([]Summary, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Order("name DESC").
		Order("surname DESC").
		Offset(common.Offset(page, common.ListPageSize)).
		Limit(common.ListPageSize).
		Find(&users).Error
	if err != nil {
		return nil, common.FromStore("list users", err)
	}
	summaries := make([]Summary, 0, len(users))
	for i := range users {
		summaries = append(summaries, *Summarize(&users[i]))
	}
	return summaries, nil
}

// Profile loads the public profile of id as seen by viewer. The address is
// only disclosed to its owner.
func (s *Service) Profile(ctx context.Context, id string, viewer *models.User) (*Profile, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, common.FromStore("find user", err)
	}

	profile := &Profile{User: *Summarize(&user), LoggedIn: viewer != nil && viewer.ID == user.ID}
	if !profile.LoggedIn {
		profile.User.Email = ""
	}
	if err := db.Model(&models.Comment{}).Where("author_id = ?", id).Count(&profile.Comments).Error; err != nil {
		return nil, common.FromStore("count user comments", err)
	}
	if user.Admin {
		var articles int64
		if err := db.Model(&models.Article{}).Where("author_id = ?", id).Count(&articles).Error; err != nil {
			return nil, common.FromStore("count user articles", err)
		}
		profile.Articles = &articles
	}
	return profile, nil
}
