package newsletter

import (
	"context"
	"html/template"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"inkwell/common"
	"inkwell/config"
	"inkwell/email"
	"inkwell/models"
)

const (
	batchSize     = 100
	excerptLength = 500
)

// Article is what gets announced to subscribers.
type Article struct {
	Title  string
	URL    string
	Text   string
	Author string
	Cover  string
}

type Subscriber struct {
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

// Renderer turns the article text into the HTML excerpt of the mail.
type Renderer func(text string) template.HTML

type Service struct {
	db     *gorm.DB
	mailer email.Mailer
	cfg    *config.Config
	render Renderer
	logger *zap.Logger
}

func NewService(db *gorm.DB, mailer email.Mailer, cfg *config.Config, render Renderer, logger *zap.Logger) *Service {
	if render == nil {
		render = func(text string) template.HTML {
			return template.HTML(template.HTMLEscapeString(text))
		}
	}
	return &Service{db: db, mailer: mailer, cfg: cfg, render: render, logger: logger}
}

// AddAddress subscribes address; an address already on the list is a Conflict.
func (s *Service) AddAddress(ctx context.Context, address string) error {
	token, err := common.GenerateToken()
	if err != nil {
		return common.FromStore("generate revocation token", err)
	}
	subscriber := models.Subscriber{Email: address, RevocationToken: token}
	if err := s.db.WithContext(ctx).Create(&subscriber).Error; err != nil {
		return common.FromStore("add subscriber", err)
	}
	s.logger.Info("newsletter subscription", zap.String("email", address))
	return nil
}

func (s *Service) RemoveAddress(ctx context.Context, address string) error {
	err := s.db.WithContext(ctx).Where("email = ?", address).Delete(&models.Subscriber{}).Error
	return common.FromStore("remove subscriber", err)
}

func (s *Service) RemoveAddressByRevocationToken(ctx context.Context, token string) error {
	result := s.db.WithContext(ctx).Where("revocation_token = ?", token).Delete(&models.Subscriber{})
	if result.Error != nil {
		return common.FromStore("remove subscriber by token", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Info("newsletter unsubscription")
	}
	return nil
}

// ListAddresses returns one page of subscribers ordered by address.
func (s *Service) ListAddresses(ctx context.Context, page int) ([]Subscriber, error) {
	var rows []models.Subscriber
	err := s.db.WithContext(ctx).
		Order("email DESC").
		Offset(common.Offset(page, common.ListPageSize)).
		Limit(common.ListPageSize).
		Find(&rows).Error
	if err != nil {
		return nil, common.FromStore("list subscribers", err)
	}
	subscribers := make([]Subscriber, 0, len(rows))
	for _, row := range rows {
		subscribers = append(subscribers, Subscriber{Email: row.Email, Date: row.CreatedAt})
	}
	return subscribers, nil
}

// SendArticle mails article to every subscriber with a personal unsubscribe
// link. A failed recipient is logged and skipped.
func (s *Service) SendArticle(ctx context.Context, article Article) error {
	base := s.cfg.CompleteURL()
	data := email.NewsletterData{
		Site:       s.cfg.SiteTitle,
		Title:      article.Title,
		Author:     article.Author,
		ArticleURL: base + "/article/" + url.PathEscape(article.URL),
		CoverURL:   absolute(base, article.Cover),
		Excerpt:    s.render(excerpt(article.Text)),
	}

	sent, failed := 0, 0
	var rows []models.Subscriber
	err := s.db.WithContext(ctx).FindInBatches(&rows, batchSize, func(tx *gorm.DB, batch int) error {
		for _, row := range rows {
			data.UnsubscribeURL = base + "/unsubscribe?token=" + url.QueryEscape(row.RevocationToken)
			body, err := email.RenderNewsletter(data)
			if err == nil {
				err = s.mailer.Send(s.cfg.NewsletterFrom, row.Email, s.cfg.NewsletterSubject, body)
			}
			if err != nil {
				failed++
				s.logger.Warn("newsletter delivery failed", zap.String("email", row.Email), zap.Error(err))
				continue
			}
			sent++
		}
		return nil
	}).Error
	if err != nil {
		return common.FromStore("walk subscribers", err)
	}

	s.logger.Info("newsletter sent",
		zap.String("article", article.URL),
		zap.Int("sent", sent),
		zap.Int("failed", failed),
	)
	return nil
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	return string(runes[:excerptLength]) + "…"
}

func absolute(base, link string) string {
	if link == "" || strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return base + link
}
