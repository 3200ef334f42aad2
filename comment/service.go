package comment

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"inkwell/common"
	"inkwell/models"
)

type Author struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
}

// View is a comment as listed under an article. Owner tells the requester
// whether they may remove it.
type View struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	Date   time.Time `json:"date"`
	Author *Author   `json:"author"`
	Owner  bool      `json:"owner"`
}

// UserView is a comment as listed on its author's profile.
type UserView struct {
	ID      string    `json:"id"`
	Text    string    `json:"text"`
	Article string    `json:"article"`
	Date    time.Time `json:"date"`
}

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// LoadComments returns one page of an article's comments, newest first.
func (s *Service) LoadComments(ctx context.Context, articleID string, page int, user *models.User) ([]View, error) {
	db := s.db.WithContext(ctx)
	var comments []models.Comment
	err := db.Where("article_id = ?", articleID).
		Order("created_at DESC").
		Offset(common.Offset(page, common.ListPageSize)).
		Limit(common.ListPageSize).
		Find(&comments).Error
	if err != nil {
		return nil, common.FromStore("list comments", err)
	}

	views := make([]View, 0, len(comments))
	if len(comments) == 0 {
		return views, nil
	}

	var authorIDs []string
	for _, c := range comments {
		if c.AuthorID != nil {
			authorIDs = append(authorIDs, *c.AuthorID)
		}
	}
	authors := make(map[string]*Author)
	if len(authorIDs) > 0 {
		var users []models.User
		if err := db.Where("id IN ?", authorIDs).Find(&users).Error; err != nil {
			return nil, common.FromStore("load comment authors", err)
		}
		for _, u := range users {
			authors[u.ID] = &Author{ID: u.ID, Name: u.Name, Surname: u.Surname}
		}
	}

	for _, c := range comments {
		view := View{ID: c.ID, Text: c.Text, Date: c.CreatedAt}
		if c.AuthorID != nil {
			view.Author = authors[*c.AuthorID]
		}
		view.Owner = canRemove(&c, user)
		views = append(views, view)
	}
	return views, nil
}

// LoadUserComments lists the comments written by userID together with the
// URL of their article. Comments left on removed articles are skipped.
func (s *Service) LoadUserComments(ctx context.Context, userID string, page int) ([]UserView, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, common.FromStore("find comment author", err)
	}

	var comments []models.Comment
	err := db.Where("author_id = ?", userID).
		Order("created_at DESC").
		Offset(common.Offset(page, common.ListPageSize)).
		Limit(common.ListPageSize).
		Find(&comments).Error
	if err != nil {
		return nil, common.FromStore("list user comments", err)
	}

	views := make([]UserView, 0, len(comments))
	if len(comments) == 0 {
		return views, nil
	}

	articleIDs := make([]string, 0, len(comments))
	for _, c := range comments {
		articleIDs = append(articleIDs, c.ArticleID)
	}
	var articles []models.Article
	if err := db.Select("id", "url").Where("id IN ?", articleIDs).Find(&articles).Error; err != nil {
		return nil, common.FromStore("load comment articles", err)
	}
	urls := make(map[string]string, len(articles))
	for _, a := range articles {
		urls[a.ID] = a.URL
	}

	for _, c := range comments {
		url, ok := urls[c.ArticleID]
		if !ok {
			continue
		}
		views = append(views, UserView{ID: c.ID, Text: c.Text, Article: url, Date: c.CreatedAt})
	}
	return views, nil
}

// Create adds a comment to an article; a nil user posts anonymously.
func (s *Service) Create(ctx context.Context, articleID, text string, user *models.User) (*View, error) {
	comment := models.Comment{ArticleID: articleID, Text: text}
	if user != nil {
		comment.AuthorID = &user.ID
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var article models.Article
		if err := tx.Select("id").Where("id = ?", articleID).First(&article).Error; err != nil {
			return common.FromStore("find commented article", err)
		}
		if err := tx.Create(&comment).Error; err != nil {
			return common.FromStore("insert comment", err)
		}
		err := tx.Model(&models.Article{}).
			Where("id = ?", articleID).
			UpdateColumn("comments", common.Increment("comments")).Error
		return common.FromStore("increment comment count", err)
	})
	if err != nil {
		return nil, err
	}

	view := &View{ID: comment.ID, Text: comment.Text, Date: comment.CreatedAt, Owner: user != nil}
	if user != nil {
		view.Author = &Author{ID: user.ID, Name: user.Name, Surname: user.Surname}
	}
	return view, nil
}

// Remove deletes a comment on behalf of user, who must be an admin or its
// author.
func (s *Service) Remove(ctx context.Context, id string, user *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment models.Comment
		if err := tx.Where("id = ?", id).First(&comment).Error; err != nil {
			return common.FromStore("find comment", err)
		}
		if !canRemove(&comment, user) {
			return common.Forbidden("remove comment")
		}
		if err := tx.Delete(&comment).Error; err != nil {
			return common.FromStore("delete comment", err)
		}
		err := tx.Model(&models.Article{}).
			Where("id = ?", comment.ArticleID).
			UpdateColumn("comments", common.Decrement("comments")).Error
		return common.FromStore("decrement comment count", err)
	})
}

// RemoveUserComments deletes every comment written by userID, or only those
// under articleID when it is not empty, and fixes the article counters.
func (s *Service) RemoveUserComments(ctx context.Context, userID, articleID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := func() *gorm.DB {
			query := tx.Model(&models.Comment{}).Where("author_id = ?", userID)
			if articleID != "" {
				query = query.Where("article_id = ?", articleID)
			}
			return query
		}

		var groups []struct {
			ArticleID string
			Total     int64
		}
		if err := scope().Select("article_id, COUNT(*) AS total").Group("article_id").Scan(&groups).Error; err != nil {
			return common.FromStore("count user comments", err)
		}
		for _, g := range groups {
			err := tx.Model(&models.Article{}).
				Where("id = ?", g.ArticleID).
				UpdateColumn("comments", common.DecrementBy("comments", g.Total)).Error
			if err != nil {
				return common.FromStore("decrement comment count", err)
			}
		}

		if err := scope().Delete(&models.Comment{}).Error; err != nil {
			return common.FromStore("delete user comments", err)
		}
		if len(groups) > 0 {
			s.logger.Info("user comments removed", zap.String("user_id", userID), zap.Int("articles", len(groups)))
		}
		return nil
	})
}

func canRemove(comment *models.Comment, user *models.User) bool {
	if user == nil {
		return false
	}
	return user.Admin || (comment.AuthorID != nil && *comment.AuthorID == user.ID)
}
