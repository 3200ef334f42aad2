package site

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"inkwell/article"
	"inkwell/cache"
	"inkwell/common"
	"inkwell/config"
	"inkwell/email"
)

const (
	sitemapType = "application/xml"
	feedType    = "application/rss+xml"

	feedDescriptionLength = 250
)

// SiteModule serves the site-wide documents and the contact form.
type SiteModule struct {
	articles *article.Service
	notifier *email.Notifier
	pages    *cache.Store
	limiter  gin.HandlerFunc
	cfg      *config.Config
	logger   *zap.Logger
}

type contactRequest struct {
	Email string `form:"email" json:"email" validate:"required,email,max=255" code:"31" msg:"Invalid email address."`
	Text  string `form:"text" json:"text" validate:"required,max=10000" code:"32" msg:"Invalid text."`
	Name  string `form:"name" json:"name"`
}

type urlset struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

type rss struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel channel  `xml:"channel"`
}

type channel struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Items       []item `xml:"item"`
}

type item struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
	GUID        string `xml:"guid"`
	Author      string `xml:"author,omitempty"`
}

func NewSiteModule(
	articles *article.Service,
	notifier *email.Notifier,
	pages *cache.Store,
	limiter gin.HandlerFunc,
	cfg *config.Config,
	logger *zap.Logger,
) *SiteModule {
	return &SiteModule{
		articles: articles,
		notifier: notifier,
		pages:    pages,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger,
	}
}

// RegisterDocuments mounts the sitemap and the feed behind the page cache.
func (s *SiteModule) RegisterDocuments(router gin.IRouter) {
	sitemap := []gin.HandlerFunc{s.sitemap}
	feed := []gin.HandlerFunc{s.feed}
	if s.pages != nil {
		sitemap = append([]gin.HandlerFunc{cache.Middleware(s.pages, sitemapType, s.logger)}, sitemap...)
		feed = append([]gin.HandlerFunc{cache.Middleware(s.pages, feedType, s.logger)}, feed...)
	}
	router.GET("/sitemap.xml", sitemap...)
	router.GET("/feed.rss", feed...)
}

func (s *SiteModule) RegisterRoutes(router gin.IRouter) {
	if s.limiter != nil {
		router.POST("/contact", s.limiter, s.contact)
		return
	}
	router.POST("/contact", s.contact)
}

// contact forwards a visitor message to CONTACT_ADDRESS. Names longer than
// 50 characters are dropped.
func (s *SiteModule) contact(c *gin.Context) {
	var req contactRequest
	if failure, ok := common.BindRequest(c, &req); !ok {
		common.ReturnError(c, http.StatusBadRequest, failure)
		return
	}
	fallback := common.Failure{Code: 33, Description: "Unable to send the message."}
	if s.cfg.ContactAddress == "" {
		s.logger.Warn("contact message dropped, CONTACT_ADDRESS is not set")
		common.ReturnError(c, http.StatusServiceUnavailable, fallback)
		return
	}

	name := req.Name
	if utf8.RuneCountInString(name) > 50 {
		name = ""
	}
	text := "Hello! You have got a new message: " + req.Text
	if name != "" {
		text = "Hello! You have got a new message by " + name + ": " + req.Text
	}
	text += "\nSent by " + req.Email

	if err := s.notifier.Send(s.cfg.ContactAddress, "Message from your blog.", text); err != nil {
		common.ReturnFailure(c, s.logger, err, nil, fallback)
		return
	}
	common.ReturnSuccess(c, 1, "The message has been sent successfully.", nil)
}

func (s *SiteModule) sitemap(c *gin.Context) {
	articles, err := s.articles.ListForFeed(c.Request.Context(), time.Time{})
	if err != nil {
		s.logger.Error("sitemap not built", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}

	base := s.cfg.CompleteURL()
	doc := urlset{
		Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs: []sitemapURL{
			{Loc: base + "/", ChangeFreq: "daily", Priority: "1"},
			{Loc: base + "/articles", ChangeFreq: "daily", Priority: "0.9"},
			{Loc: base + "/about", ChangeFreq: "monthly", Priority: "0.9"},
			{Loc: base + "/search", ChangeFreq: "never", Priority: "0.9"},
		},
	}
	for _, a := range articles {
		doc.URLs = append(doc.URLs, sitemapURL{
			Loc:        base + "/article/" + url.PathEscape(a.URL),
			LastMod:    a.Date.UTC().Format("2006-01-02"),
			ChangeFreq: "never",
			Priority:   "0.75",
		})
	}
	s.writeXML(c, sitemapType, doc)
}

// feed lists the articles of the last month as RSS 2.0. It answers with an
// empty body when FEED_ENABLED is off.
func (s *SiteModule) feed(c *gin.Context) {
	if !s.cfg.FeedEnabled {
		c.Status(http.StatusOK)
		return
	}
	articles, err := s.articles.ListForFeed(c.Request.Context(), time.Now().AddDate(0, -1, 0))
	if err != nil {
		s.logger.Error("feed not built", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}

	link := s.cfg.FeedURL()
	doc := rss{
		Version: "2.0",
		Channel: channel{
			Title:       s.cfg.FeedTitle,
			Link:        link + "/",
			Description: s.cfg.FeedDescription,
		},
	}
	for _, a := range articles {
		entry := item{
			Title:       a.Title,
			Link:        link + "/article/" + url.PathEscape(a.URL),
			PubDate:     a.Date.UTC().Format(time.RFC1123),
			Description: truncate(a.Text, feedDescriptionLength),
			GUID:        a.ID,
		}
		if a.Author != nil {
			entry.Author = fullName(a.Author)
		}
		doc.Channel.Items = append(doc.Channel.Items, entry)
	}
	s.writeXML(c, feedType, doc)
}

func (s *SiteModule) writeXML(c *gin.Context, contentType string, doc interface{}) {
	body, err := xml.Marshal(doc)
	if err != nil {
		s.logger.Error("xml document not encoded", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, contentType+"; charset=utf-8", append([]byte(xml.Header), body...))
}

func fullName(a *article.Author) string {
	if a.Name == "" || a.Surname == "" {
		return a.Name + a.Surname
	}
	return a.Name + " " + a.Surname
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}
