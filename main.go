package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"inkwell/admin"
	"inkwell/analytics"
	"inkwell/appreciation"
	"inkwell/article"
	"inkwell/blog"
	"inkwell/cache"
	"inkwell/comment"
	"inkwell/common"
	"inkwell/config"
	"inkwell/database"
	"inkwell/email"
	"inkwell/newsletter"
	"inkwell/session"
	"inkwell/site"
	"inkwell/storage"
	"inkwell/user"
)

const limiterIdle = time.Hour

func main() {
	fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		fx.Provide(
			config.Load,
			newLogger,
			newDatabase,
			email.NewMailer,
			email.NewNotifier,
			storage.NewCoverStore,
			newPageCache,
			newRateLimiter,
			session.NewResolver,
			analytics.NewAnalyticsModule,
			newNewsletterService,
			newArticleService,
			comment.NewService,
			appreciation.NewService,
			newUserService,
			newRouter,
		),
		fx.Invoke(registerRoutes, startScheduler, startServer),
	).Run()
}

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	logger, err := common.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = logger.Sync()
			return nil
		},
	})
	return logger, nil
}

func newDatabase(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	db, err := common.ConnectDb(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db, logger); err != nil {
		return nil, err
	}
	if err := database.PromoteAdmins(db, cfg.AdminEmailList(), logger); err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db, nil
}

func newPageCache(cfg *config.Config) *cache.Store {
	return cache.New(cfg.CacheDir, cfg.CacheMaxAge)
}

func newRateLimiter(cfg *config.Config, logger *zap.Logger) *common.RateLimiter {
	return common.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, logger)
}

func newNewsletterService(db *gorm.DB, mailer email.Mailer, cfg *config.Config, logger *zap.Logger) *newsletter.Service {
	return newsletter.NewService(db, mailer, cfg, blog.RenderMarkdown, logger)
}

func newArticleService(db *gorm.DB, covers storage.CoverStore, mailing *newsletter.Service, logger *zap.Logger) *article.Service {
	return article.NewService(db, covers, mailing, logger)
}

func newUserService(
	db *gorm.DB,
	cfg *config.Config,
	notifier *email.Notifier,
	articles *article.Service,
	comments *comment.Service,
	appreciations *appreciation.Service,
	logger *zap.Logger,
) *user.Service {
	return user.NewService(db, cfg, notifier, articles, comments, appreciations, logger)
}

func newRouter(cfg *config.Config, metrics *analytics.AnalyticsModule) (*gin.Engine, error) {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, errors.Wrap(err, "trusted proxies")
	}
	router.Use(gin.Recovery(), metrics.Middleware(), session.Middleware(cfg))
	return router, nil
}

type routeParams struct {
	fx.In

	Router        *gin.Engine
	Config        *config.Config
	Logger        *zap.Logger
	Sessions      *session.Resolver
	Limiter       *common.RateLimiter
	Metrics       *analytics.AnalyticsModule
	Covers        storage.CoverStore
	Pages         *cache.Store
	Notifier      *email.Notifier
	Articles      *article.Service
	Comments      *comment.Service
	Appreciations *appreciation.Service
	Users         *user.Service
	Newsletter    *newsletter.Service
}

func registerRoutes(p routeParams) {
	limited := p.Limiter.Handler()

	p.Metrics.RegisterRoutes(p.Router)
	if disk, ok := p.Covers.(*storage.DiskStore); ok {
		p.Router.Static("/covers", disk.Dir())
	}

	siteModule := site.NewSiteModule(p.Articles, p.Notifier, p.Pages, limited, p.Config, p.Logger)
	siteModule.RegisterDocuments(p.Router)

	guarded := p.Router.Group("/", p.Sessions.RequireCSRF())
	user.NewUserModule(p.Users, p.Sessions, limited, p.Logger).RegisterRoutes(guarded)
	article.NewArticleModule(p.Articles, p.Sessions, p.Logger).RegisterRoutes(guarded)
	blog.NewBlogModule(p.Articles, p.Sessions, p.Config, p.Logger).RegisterRoutes(guarded)
	comment.NewCommentModule(p.Comments, p.Sessions, limited, p.Logger).RegisterRoutes(guarded)
	appreciation.NewAppreciationModule(p.Appreciations, p.Sessions, p.Logger).RegisterRoutes(guarded)
	newsletter.NewNewsletterModule(p.Newsletter, limited, p.Logger).RegisterRoutes(guarded)
	admin.NewAdminModule(p.Articles, p.Users, p.Newsletter, p.Covers, p.Pages, p.Sessions, p.Logger).RegisterRoutes(guarded)
	siteModule.RegisterRoutes(guarded)
}

// startScheduler runs the periodic cleanup: expired cache files and idle
// rate limiters.
func startScheduler(lc fx.Lifecycle, cfg *config.Config, pages *cache.Store, limiter *common.RateLimiter, logger *zap.Logger) error {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(cfg.CleanupSchedule, func() {
		removed, err := pages.ClearOld()
		if err != nil {
			logger.Error("cache cleanup failed", zap.Error(err))
		}
		pruned := limiter.Cleanup(limiterIdle)
		logger.Info("cleanup completed", zap.Int("cache_files", removed), zap.Int("limiters", pruned))
	})
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			scheduler.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-scheduler.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}

func startServer(lc fx.Lifecycle, cfg *config.Config, router *gin.Engine, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			listener, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Info("starting server", zap.String("port", cfg.HTTPPort))
			go func() {
				if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
					logger.Error("server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping server")
			return srv.Shutdown(ctx)
		},
	})
}
