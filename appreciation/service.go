package appreciation

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"inkwell/common"
	"inkwell/models"
)

// State is the like/dislike state of a user on an article. At most one of
// the two is set.
type State struct {
	Like    bool `json:"like"`
	Dislike bool `json:"dislike"`
}

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

func counterFor(positive bool) string {
	if positive {
		return "likes"
	}
	return "dislikes"
}

// Toggle applies a like (positive) or a dislike from user on an article.
// Repeating the current reaction clears it, the opposite one replaces it.
func (s *Service) Toggle(ctx context.Context, positive bool, articleID string, user *models.User) (State, error) {
	var state State
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var article models.Article
		if err := tx.Select("id").Where("id = ?", articleID).First(&article).Error; err != nil {
			return common.FromStore("find appreciated article", err)
		}
		articles := tx.Model(&models.Article{}).Where("id = ?", articleID)

		var existing models.Appreciation
		err := tx.Where("article_id = ? AND user_id = ?", articleID, user.ID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			record := models.Appreciation{ArticleID: articleID, UserID: user.ID, Positive: positive}
			if err := tx.Create(&record).Error; err != nil {
				return common.FromStore("insert appreciation", err)
			}
			if err := articles.UpdateColumn(counterFor(positive), common.Increment(counterFor(positive))).Error; err != nil {
				return common.FromStore("increment appreciation counter", err)
			}
			state = State{Like: positive, Dislike: !positive}

		case err != nil:
			return common.FromStore("find appreciation", err)

		case existing.Positive == positive:
			if err := tx.Delete(&existing).Error; err != nil {
				return common.FromStore("delete appreciation", err)
			}
			if err := articles.UpdateColumn(counterFor(positive), common.Decrement(counterFor(positive))).Error; err != nil {
				return common.FromStore("decrement appreciation counter", err)
			}
			state = State{}

		default:
			if err := tx.Model(&existing).Update("positive", positive).Error; err != nil {
				return common.FromStore("flip appreciation", err)
			}
			err := articles.UpdateColumns(map[string]interface{}{
				counterFor(positive):  common.Increment(counterFor(positive)),
				counterFor(!positive): common.Decrement(counterFor(!positive)),
			}).Error
			if err != nil {
				return common.FromStore("swap appreciation counters", err)
			}
			state = State{Like: positive, Dislike: !positive}
		}
		return nil
	})
	if err != nil {
		return State{}, err
	}
	return state, nil
}

// RemoveUserAppreciations deletes every appreciation of userID and takes it
// back from the matching article counter.
func (s *Service) RemoveUserAppreciations(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var records []models.Appreciation
		if err := tx.Where("user_id = ?", userID).Find(&records).Error; err != nil {
			return common.FromStore("list user appreciations", err)
		}
		for _, record := range records {
			column := counterFor(record.Positive)
			err := tx.Model(&models.Article{}).
				Where("id = ?", record.ArticleID).
				UpdateColumn(column, common.Decrement(column)).Error
			if err != nil {
				return common.FromStore("decrement appreciation counter", err)
			}
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Appreciation{}).Error; err != nil {
			return common.FromStore("delete user appreciations", err)
		}
		if len(records) > 0 {
			s.logger.Info("user appreciations removed", zap.String("user_id", userID), zap.Int("count", len(records)))
		}
		return nil
	})
}
