package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"

	"stride/api/internal/ai"
	"stride/api/internal/audit"
	"stride/api/internal/cache"
	"stride/api/internal/config"
	"stride/api/internal/email"
	"stride/api/internal/integration"
	"stride/api/internal/metrics"
	"stride/api/internal/oauth"
	"stride/api/internal/report"
	"stride/api/internal/search"
	"stride/api/internal/session"
	"stride/api/internal/store"
)

const webhookTimeout = 10 * time.Second

// Runtime owns the process-wide connections shared by the API and the worker.
type Runtime struct {
	DB      *sql.DB
	Store   *store.PostgresStore
	Service *Service
	closers []func()
}

// Open connects every configured backend and builds the service. Optional
// backends that are not configured are left out; OAuth discovery failures are
// logged and disable Google sign-in rather than failing startup.
func Open(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Runtime, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL, dbPool(cfg))
	if err != nil {
		return nil, err
	}
	rt := &Runtime{DB: db, Store: store.NewPostgresStore(db)}
	rt.closers = append(rt.closers, func() { _ = db.Close() })

	deps := Deps{
		Config:  cfg,
		Store:   rt.Store,
		Metrics: metrics.New(),
		Logger:  logger,
		Mailer: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			BaseURL:  cfg.AppBaseURL,
		}),
		Integrations: integration.NewService(integration.NewGitConnector(), integration.NewWebhookClient(webhookTimeout), logger),
		PDF:          report.NewPDFRenderer(cfg.ChromePath),
	}

	if cfg.RedisURL != "" {
		sessions, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = sessions.Close() })
		deps.Sessions = sessions
		deps.Cache = cache.NewRedis(sessions.Client(), cfg.CacheTTL())
		logger.Info("using redis for sessions and the view cache")
	}

	var index search.Index
	if cfg.MeiliURL != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		rt.closers = append(rt.closers, meili.Close)
		index = meili
	}
	deps.Search = search.NewService(index, search.NewPostgres(db), logger)

	if cfg.AIConfigured() {
		deps.AI = ai.NewClient(ai.Config{
			BaseURL: cfg.AIBaseURL,
			APIKey:  cfg.AIAPIKey,
			Model:   cfg.AIModel,
			Timeout: cfg.AIRequestTimeout(),
		})
	}

	if cfg.GoogleConfigured() {
		google, err := oauth.NewGoogle(ctx, oauth.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
		if err != nil {
			logger.WithError(err).Warn("google sign-in disabled")
		} else {
			deps.OAuth = google
		}
	}

	if cfg.MinioConfigured() {
		objects, err := audit.NewMinioClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		deps.Archiver = audit.NewArchiver(rt.Store, objects, cfg.MinioBucket)
	}

	rt.Service = New(deps)
	return rt, nil
}

// Close releases connections in reverse order of opening.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func dbPool(cfg *config.Config) store.Pool {
	return store.Pool{
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxLifetime: cfg.DBConnLifetime(),
		AppName:     cfg.ServiceName,
	}
}
