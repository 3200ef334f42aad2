package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Name          string    `gorm:"not null" json:"name"`
	Surname       string    `gorm:"not null" json:"surname"`
	Email         string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash  string    `gorm:"not null" json:"-"` // json:"-" keeps the digest out of API payloads
	RememberToken *string   `gorm:"uniqueIndex" json:"-"`
	Admin         bool      `gorm:"default:false;index" json:"admin"`
	CreatedAt     time.Time `json:"date"`
}

type Article struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	URL       string    `gorm:"column:url;uniqueIndex;not null" json:"url"`
	Cover     *string   `json:"cover"`
	AuthorID  string    `gorm:"size:36;index" json:"author"`
	Likes     int64     `gorm:"not null;default:0" json:"likes"`
	Dislikes  int64     `gorm:"not null;default:0" json:"dislikes"`
	Comments  int64     `gorm:"not null;default:0" json:"comments"`
	Views     int64     `gorm:"not null;default:0;index" json:"views"`
	CreatedAt time.Time `gorm:"index" json:"date"`
}

// ArticleTag carries one entry of an article's tag list.
type ArticleTag struct {
	ID        uint   `gorm:"primaryKey"`
	ArticleID string `gorm:"size:36;not null;uniqueIndex:idx_article_tag" json:"article_id"`
	Tag       string `gorm:"not null;uniqueIndex:idx_article_tag;index" json:"tag"`
}

type Comment struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	ArticleID string    `gorm:"size:36;not null;index" json:"article"`
	AuthorID  *string   `gorm:"size:36;index" json:"author"` // nil for anonymous comments
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"index" json:"date"`
}

type Appreciation struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	ArticleID string    `gorm:"size:36;not null;uniqueIndex:idx_appreciation_pair" json:"article"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_appreciation_pair;index" json:"user"`
	Positive  bool      `gorm:"not null" json:"positive"`
	CreatedAt time.Time `json:"date"`
}

// Tag is the denormalized usage count of a tag across live articles.
type Tag struct {
	ID         uint   `gorm:"primaryKey" json:"-"`
	Name       string `gorm:"uniqueIndex;not null" json:"tag"`
	UsageCount int64  `gorm:"not null;default:0;index" json:"count"`
}

// Visitor marks that a view of an article by an identifier was already counted.
type Visitor struct {
	ID         uint      `gorm:"primaryKey"`
	ArticleID  string    `gorm:"size:36;not null;uniqueIndex:idx_visitor_pair"`
	Identifier string    `gorm:"not null;uniqueIndex:idx_visitor_pair"`
	CreatedAt  time.Time
}

type Subscriber struct {
	ID              string    `gorm:"primaryKey;size:36" json:"-"`
	Email           string    `gorm:"uniqueIndex;not null" json:"email"`
	RevocationToken string    `gorm:"uniqueIndex;not null" json:"-"`
	CreatedAt       time.Time `json:"date"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func (a *Article) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (a *Appreciation) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

func (s *Subscriber) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// FullName joins name and surname the way authors are displayed.
func (u *User) FullName() string {
	if u.Name == "" || u.Surname == "" {
		return u.Name + u.Surname
	}
	return u.Name + " " + u.Surname
}

// All lists every table for migrations.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Article{},
		&ArticleTag{},
		&Comment{},
		&Appreciation{},
		&Tag{},
		&Visitor{},
		&Subscriber{},
	}
}
