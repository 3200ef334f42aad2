package article

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"inkwell/common"
	"inkwell/models"
	"inkwell/newsletter"
	"inkwell/storage"
)

const (
	ModeFeatured  = "featured"
	ModeSuggested = "suggested"
	ModeAuthor    = "author"
	ModeTag       = "tag"
	ModeSearch    = "search"
	ModeShowcase  = "showcase"
	ModeAll       = "all"

	highlightLimit     = 3
	tagLimit           = 10
	showcaseTextLength = 500
)

type Author struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
}

type Counters struct {
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
	Comments int64 `json:"comments"`
	Views    int64 `json:"views"`
}

// Appreciations is the like/dislike state of the requesting user.
type Appreciations struct {
	Like    bool `json:"like"`
	Dislike bool `json:"dislike"`
}

// View is an article as returned to clients. Featured and suggested
// listings leave Text, Tags and Counters empty.
type View struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	URL           string         `json:"url"`
	Text          string         `json:"text,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Cover         *string        `json:"cover"`
	Date          time.Time      `json:"date"`
	Author        *Author        `json:"author"`
	Counters      *Counters      `json:"counters,omitempty"`
	Appreciations *Appreciations `json:"appreciations,omitempty"`
}

// Params narrows a listing. Which fields matter depends on the mode.
type Params struct {
	Exclude string
	Tags    []string
	Author  string
	Tag     string
	Query   string
	User    *models.User
}

type CreateInput struct {
	Title string
	Text  string
	URL   string
	Tags  []string
	Cover *string
}

// Broadcaster announces new articles to the mailing list.
type Broadcaster interface {
	SendArticle(ctx context.Context, article newsletter.Article) error
}

type Service struct {
	db          *gorm.DB
	covers      storage.CoverStore
	broadcaster Broadcaster
	logger      *zap.Logger
}

func NewService(db *gorm.DB, covers storage.CoverStore, broadcaster Broadcaster, logger *zap.Logger) *Service {
	return &Service{
		db:          db,
		covers:      covers,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Create stores a new article written by authorID, who must be an admin.
// Tag counts are bumped in the same transaction and subscribers are mailed
// in the background once it commits.
func (s *Service) Create(ctx context.Context, in CreateInput, authorID string) (*models.Article, error) {
	var article models.Article
	var author models.User
	tags := dedupe(in.Tags)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", authorID).First(&author).Error; err != nil {
			return common.FromStore("find author", err)
		}
		if !author.Admin {
			return common.Forbidden("create article")
		}

		article = models.Article{
			Title:    in.Title,
			Text:     in.Text,
			URL:      in.URL,
			Cover:    in.Cover,
			AuthorID: author.ID,
		}
		if err := tx.Create(&article).Error; err != nil {
			return common.FromStore("insert article", err)
		}

		for _, tag := range tags {
			if err := tx.Create(&models.ArticleTag{ArticleID: article.ID, Tag: tag}).Error; err != nil {
				return common.FromStore("insert article tag", err)
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"usage_count": common.Increment("tags.usage_count")}),
			}).Create(&models.Tag{Name: tag, UsageCount: 1}).Error
			if err != nil {
				return common.FromStore("increment tag count", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("article created",
		zap.String("id", article.ID),
		zap.String("url", article.URL),
		zap.Strings("tags", tags),
	)

	if s.broadcaster != nil {
		message := newsletter.Article{
			Title:  article.Title,
			URL:    article.URL,
			Text:   article.Text,
			Author: author.FullName(),
		}
		if article.Cover != nil && s.covers != nil {
			message.Cover = s.covers.URL(*article.Cover)
		}
		go s.broadcast(message)
	}
	return &article, nil
}

func (s *Service) broadcast(message newsletter.Article) {
	if err := s.broadcaster.SendArticle(context.Background(), message); err != nil {
		s.logger.Error("newsletter broadcast failed", zap.String("url", message.URL), zap.Error(err))
	}
}

// GetArticles lists one page of articles for the given mode.
func (s *Service) GetArticles(ctx context.Context, mode string, page int, params Params) ([]View, error) {
	switch mode {
	case ModeFeatured:
		return s.featured(ctx, params.Exclude)
	case ModeSuggested:
		views, err := s.suggested(ctx, params.Tags, params.Exclude)
		if err != nil || len(views) > 0 {
			return views, err
		}
		return s.featured(ctx, params.Exclude)
	}

	query := s.scoped(ctx, mode, params)
	switch mode {
	case ModeShowcase:
		query = query.Order("views ASC").Order("created_at DESC")
	default:
		query = query.Order("created_at DESC")
	}

	var articles []models.Article
	err := query.
		Offset(common.Offset(page, common.ArticlePageSize)).
		Limit(common.ArticlePageSize).
		Find(&articles).Error
	if err != nil {
		return nil, common.FromStore("list articles", err)
	}

	views, err := s.toViews(ctx, articles, params.User, true)
	if err != nil {
		return nil, err
	}
	if mode == ModeShowcase {
		for i := range views {
			views[i].Text = truncate(views[i].Text, showcaseTextLength)
		}
	}
	return views, nil
}

// GetArticlesCount counts the articles of an author or a tag; any other
// mode counts every article.
func (s *Service) GetArticlesCount(ctx context.Context, mode string, params Params) (int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Article{})
	if mode == ModeAuthor || mode == ModeTag {
		query = s.scoped(ctx, mode, params)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, common.FromStore("count articles", err)
	}
	return count, nil
}

func (s *Service) scoped(ctx context.Context, mode string, params Params) *gorm.DB {
	db := s.db.WithContext(ctx)
	query := db.Model(&models.Article{})
	switch mode {
	case ModeAuthor:
		query = query.Where("author_id = ?", params.Author)
	case ModeTag:
		query = query.Where("id IN (?)", db.Model(&models.ArticleTag{}).Select("article_id").Where("tag = ?", strings.ToLower(strings.TrimSpace(params.Tag))))
	case ModeSearch:
		like := "%" + escapeLike(strings.ToLower(params.Query)) + "%"
		query = query.Where("(LOWER(title) LIKE ? ESCAPE '\\' OR LOWER(text) LIKE ? ESCAPE '\\')", like, like)
	}
	return query
}

func (s *Service) featured(ctx context.Context, exclude string) ([]View, error) {
	query := s.db.WithContext(ctx).Model(&models.Article{})
	if exclude != "" {
		query = query.Where("id <> ?", exclude)
	}
	var articles []models.Article
	if err := query.Order("likes DESC").Order("created_at DESC").Limit(highlightLimit).Find(&articles).Error; err != nil {
		return nil, common.FromStore("list featured articles", err)
	}
	return s.toViews(ctx, articles, nil, false)
}

func (s *Service) suggested(ctx context.Context, tags []string, exclude string) ([]View, error) {
	tags = dedupe(tags)
	if len(tags) == 0 {
		return nil, nil
	}
	db := s.db.WithContext(ctx)
	query := db.Model(&models.Article{}).
		Where("id IN (?)", db.Model(&models.ArticleTag{}).Select("article_id").Where("tag IN ?", tags))
	if exclude != "" {
		query = query.Where("id <> ?", exclude)
	}
	var articles []models.Article
	if err := query.Order("likes DESC").Order("created_at DESC").Limit(highlightLimit).Find(&articles).Error; err != nil {
		return nil, common.FromStore("list suggested articles", err)
	}
	return s.toViews(ctx, articles, nil, false)
}

// GetArticleByURL loads a single article with its author and, when user is
// set, the user's appreciation state.
func (s *Service) GetArticleByURL(ctx context.Context, url string, user *models.User) (*View, error) {
	var article models.Article
	if err := s.db.WithContext(ctx).Where("url = ?", url).First(&article).Error; err != nil {
		return nil, common.FromStore("find article by url", err)
	}
	views, err := s.toViews(ctx, []models.Article{article}, user, true)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// IncrementViewsCounter counts a view once per (article, identifier). It
// reports whether this call was the counted one.
func (s *Service) IncrementViewsCounter(ctx context.Context, articleID, identifier string) (bool, error) {
	counted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Visitor{ArticleID: articleID, Identifier: identifier})
		if result.Error != nil {
			return common.FromStore("insert visitor", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		counted = true
		err := tx.Model(&models.Article{}).
			Where("id = ?", articleID).
			UpdateColumn("views", common.Increment("views")).Error
		return common.FromStore("increment views", err)
	})
	if err != nil {
		return false, err
	}
	return counted, nil
}

// Remove deletes an article with its comments, appreciations and view
// records, and releases its tags. Unknown IDs are ignored.
func (s *Service) Remove(ctx context.Context, id string) error {
	var article models.Article
	found := true

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", id).First(&article).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return common.FromStore("find article", err)
		}
		return removeArticle(tx, id)
	})
	if err != nil || !found {
		return err
	}

	s.logger.Info("article removed", zap.String("id", id), zap.String("url", article.URL))
	if article.Cover != nil && s.covers != nil {
		if err := s.covers.Delete(ctx, *article.Cover); err != nil {
			s.logger.Warn("cover not removed", zap.String("cover", *article.Cover), zap.Error(err))
		}
	}
	return nil
}

func removeArticle(tx *gorm.DB, id string) error {
	var tags []string
	if err := tx.Model(&models.ArticleTag{}).Where("article_id = ?", id).Pluck("tag", &tags).Error; err != nil {
		return common.FromStore("load article tags", err)
	}
	if len(tags) > 0 {
		err := tx.Model(&models.Tag{}).
			Where("name IN ?", tags).
			UpdateColumn("usage_count", common.Decrement("usage_count")).Error
		if err != nil {
			return common.FromStore("decrement tag counts", err)
		}
	}

	steps := []struct {
		op    string
		model interface{}
		where string
	}{
		{"delete article tags", &models.ArticleTag{}, "article_id = ?"},
		{"delete comments", &models.Comment{}, "article_id = ?"},
		{"delete appreciations", &models.Appreciation{}, "article_id = ?"},
		{"delete visitors", &models.Visitor{}, "article_id = ?"},
		{"delete article", &models.Article{}, "id = ?"},
	}
	for _, step := range steps {
		if err := tx.Where(step.where, id).Delete(step.model).Error; err != nil {
			return common.FromStore(step.op, err)
		}
	}

	if err := tx.Where("usage_count <= 0").Delete(&models.Tag{}).Error; err != nil {
		return common.FromStore("prune tags", err)
	}
	return nil
}

// RemoveByAuthor removes every article written by authorID.
func (s *Service) RemoveByAuthor(ctx context.Context, authorID string) error {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Article{}).Where("author_id = ?", authorID).Pluck("id", &ids).Error
	if err != nil {
		return common.FromStore("list author articles", err)
	}
	for _, id := range ids {
		if err := s.Remove(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// GetTags returns the most used tags.
func (s *Service) GetTags(ctx context.Context) ([]models.Tag, error) {
	tags := []models.Tag{}
	err := s.db.WithContext(ctx).Order("usage_count DESC").Order("name ASC").Limit(tagLimit).Find(&tags).Error
	if err != nil {
		return nil, common.FromStore("list tags", err)
	}
	return tags, nil
}

// ListForFeed returns every article newer than since, newest first.
// A zero since lists everything.
func (s *Service) ListForFeed(ctx context.Context, since time.Time) ([]View, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if !since.IsZero() {
		query = query.Where("created_at > ?", since)
	}
	var articles []models.Article
	if err := query.Find(&articles).Error; err != nil {
		return nil, common.FromStore("list feed articles", err)
	}
	return s.toViews(ctx, articles, nil, true)
}

// toViews resolves authors, tags and the user's appreciations in one query
// each. Articles whose author is gone keep a nil Author.
func (s *Service) toViews(ctx context.Context, articles []models.Article, user *models.User, full bool) ([]View, error) {
	views := make([]View, 0, len(articles))
	if len(articles) == 0 {
		return views, nil
	}
	db := s.db.WithContext(ctx)

	ids := make([]string, 0, len(articles))
	authorIDs := make([]string, 0, len(articles))
	for _, a := range articles {
		ids = append(ids, a.ID)
		authorIDs = append(authorIDs, a.AuthorID)
	}

	var authors []models.User
	if err := db.Where("id IN ?", authorIDs).Find(&authors).Error; err != nil {
		return nil, common.FromStore("load authors", err)
	}
	authorByID := make(map[string]*Author, len(authors))
	for _, u := range authors {
		authorByID[u.ID] = &Author{ID: u.ID, Name: u.Name, Surname: u.Surname}
	}

	tagsByArticle := make(map[string][]string)
	states := make(map[string]*Appreciations)
	if full {
		var rows []models.ArticleTag
		if err := db.Where("article_id IN ?", ids).Order("id ASC").Find(&rows).Error; err != nil {
			return nil, common.FromStore("load tags", err)
		}
		for _, row := range rows {
			tagsByArticle[row.ArticleID] = append(tagsByArticle[row.ArticleID], row.Tag)
		}

		if user != nil {
			var appreciations []models.Appreciation
			err := db.Where("article_id IN ? AND user_id = ?", ids, user.ID).Find(&appreciations).Error
			if err != nil {
				return nil, common.FromStore("load appreciations", err)
			}
			for _, a := range appreciations {
				states[a.ArticleID] = &Appreciations{Like: a.Positive, Dislike: !a.Positive}
			}
		}
	}

	for _, a := range articles {
		view := View{
			ID:     a.ID,
			Title:  a.Title,
			URL:    a.URL,
			Cover:  s.coverURL(a.Cover),
			Date:   a.CreatedAt,
			Author: authorByID[a.AuthorID],
		}
		if full {
			view.Text = a.Text
			view.Tags = tagsByArticle[a.ID]
			view.Counters = &Counters{
				Likes:    a.Likes,
				Dislikes: a.Dislikes,
				Comments: a.Comments,
				Views:    a.Views,
			}
			if user != nil {
				view.Appreciations = states[a.ID]
				if view.Appreciations == nil {
					view.Appreciations = &Appreciations{}
				}
			}
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) coverURL(cover *string) *string {
	if cover == nil || s.covers == nil {
		return cover
	}
	url := s.covers.URL(*cover)
	return &url
}

func dedupe(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
