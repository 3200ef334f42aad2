package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config holds every setting read from the environment. It is built once at
// startup and never mutated afterwards.
type Config struct {
	HTTPPort string `envconfig:"PORT" default:"8080"`
	Domain   string `envconfig:"DOMAIN" default:"localhost:8080"`
	Secure   bool   `envconfig:"SECURE" default:"false"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	SessionSecret  string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionMaxAge  time.Duration `envconfig:"SESSION_MAX_AGE" default:"168h"`
	RememberMaxAge time.Duration `envconfig:"REMEMBER_MAX_AGE" default:"720h"`

	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN    string `envconfig:"DB_DSN" default:"inkwell.db"`

	CoverStorage string `envconfig:"COVER_STORAGE" default:"disk"`
	CoverDir     string `envconfig:"COVER_DIR" default:"covers"`
	S3Endpoint   string `envconfig:"S3_ENDPOINT"`
	S3Region     string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Key        string `envconfig:"S3_KEY"`
	S3Secret     string `envconfig:"S3_SECRET"`
	S3Bucket     string `envconfig:"S3_BUCKET"`

	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     string `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser     string `envconfig:"SMTP_USER"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`

	SiteTitle         string `envconfig:"SITE_TITLE" default:"inkwell"`
	MailFrom          string `envconfig:"MAIL_FROM" default:"info@inkwell.local"`
	NewsletterFrom    string `envconfig:"NEWSLETTER_FROM" default:"newsletter@inkwell.local"`
	NewsletterSubject string `envconfig:"NEWSLETTER_SUBJECT" default:"New article published"`
	ContactAddress    string `envconfig:"CONTACT_ADDRESS"`
	AdminEmails       string `envconfig:"ADMIN_EMAILS"`

	FeedEnabled     bool   `envconfig:"FEED_ENABLED" default:"false"`
	FeedTitle       string `envconfig:"FEED_TITLE"`
	FeedDescription string `envconfig:"FEED_DESCRIPTION"`
	FeedLink        string `envconfig:"FEED_LINK"`

	CacheDir        string        `envconfig:"CACHE_DIR" default:"cache"`
	CacheMaxAge     time.Duration `envconfig:"CACHE_MAX_AGE" default:"1h"`
	CleanupSchedule string        `envconfig:"CLEANUP_SCHEDULE" default:"@hourly"`

	RateLimitPerSecond float64 `envconfig:"RATE_LIMIT_PER_SECOND" default:"1"`
	RateLimitBurst     int     `envconfig:"RATE_LIMIT_BURST" default:"5"`

	// Proxies whose forwarding headers name the client. Empty trusts none.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
}

// CompleteURL returns the public base URL of the site without a trailing slash.
func (c *Config) CompleteURL() string {
	scheme := "http://"
	if c.Secure {
		scheme = "https://"
	}
	return scheme + strings.TrimSuffix(c.Domain, "/")
}

// FeedURL is the link advertised by the RSS channel.
func (c *Config) FeedURL() string {
	if c.FeedLink != "" {
		return strings.TrimSuffix(c.FeedLink, "/")
	}
	return c.CompleteURL()
}

// AdminEmailList splits ADMIN_EMAILS into lower-cased addresses.
func (c *Config) AdminEmailList() []string {
	var emails []string
	for _, candidate := range strings.Split(c.AdminEmails, ",") {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate != "" {
			emails = append(emails, candidate)
		}
	}
	return emails
}

// IsAdminEmail reports whether email is listed in ADMIN_EMAILS.
func (c *Config) IsAdminEmail(email string) bool {
	for _, candidate := range c.AdminEmailList() {
		if strings.EqualFold(candidate, email) {
			return true
		}
	}
	return false
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return errors.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.CoverStorage {
	case "disk":
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required when COVER_STORAGE=s3")
		}
	default:
		return errors.Errorf("unsupported COVER_STORAGE %q", c.CoverStorage)
	}
	return nil
}

// Load reads the .env file if present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, errors.Wrap(err, "process env")
	}
	if err := c.validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &c, nil
}
