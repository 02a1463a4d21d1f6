package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ehr/careguard/internal/config"
	"github.com/ehr/careguard/internal/domain/clinical"
	"github.com/ehr/careguard/internal/domain/directory"
	"github.com/ehr/careguard/internal/domain/inbox"
	"github.com/ehr/careguard/internal/domain/insurance"
	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/audit"
	"github.com/ehr/careguard/internal/platform/auth"
	"github.com/ehr/careguard/internal/platform/cache"
	"github.com/ehr/careguard/internal/platform/db"
	"github.com/ehr/careguard/internal/platform/guard"
	"github.com/ehr/careguard/internal/platform/middleware"
	"github.com/ehr/careguard/internal/platform/notification"
	"github.com/ehr/careguard/internal/platform/policy"
	"github.com/ehr/careguard/internal/platform/telemetry"
	"github.com/ehr/careguard/pkg/response"
)

const actorCacheTTL = time.Minute

// stores holds the repositories for the configured driver.
type stores struct {
	health        db.Health
	projections   guard.ProjectionStore
	audit         audit.Store
	users         directory.UserRepository
	patients      directory.PatientRepository
	providers     directory.ProviderRepository
	records       clinical.MedicalRecordRepository
	appointments  clinical.AppointmentRepository
	policies      insurance.PolicyRepository
	claims        insurance.ClaimRepository
	notifications inbox.Repository
	close         func()
}

func postgresStores(pool *pgxpool.Pool) *stores {
	return &stores{
		health: db.Health{
			Driver: config.DriverPostgres,
			Ping:   pool.Ping,
			Stats:  func() any { return db.GetPoolStats(pool) },
		},
		projections:   guard.NewPGProjectionStore(pool),
		audit:         audit.NewPGStore(pool),
		users:         directory.NewUserRepoPG(pool),
		patients:      directory.NewPatientRepoPG(pool),
		providers:     directory.NewProviderRepoPG(pool),
		records:       clinical.NewMedicalRecordRepoPG(pool),
		appointments:  clinical.NewAppointmentRepoPG(pool),
		policies:      insurance.NewPolicyRepoPG(pool),
		claims:        insurance.NewClaimRepoPG(pool),
		notifications: inbox.NewRepoPG(pool),
		close:         pool.Close,
	}
}

func sqliteStores(gdb *gorm.DB) *stores {
	return &stores{
		health: db.Health{
			Driver: config.DriverSQLite,
			Ping:   func(ctx context.Context) error { return db.PingSQLite(ctx, gdb) },
		},
		projections:   guard.NewSQLiteProjectionStore(gdb),
		audit:         audit.NewSQLiteStore(gdb),
		users:         directory.NewUserRepoSQLite(gdb),
		patients:      directory.NewPatientRepoSQLite(gdb),
		providers:     directory.NewProviderRepoSQLite(gdb),
		records:       clinical.NewMedicalRecordRepoSQLite(gdb),
		appointments:  clinical.NewAppointmentRepoSQLite(gdb),
		policies:      insurance.NewPolicyRepoSQLite(gdb),
		claims:        insurance.NewClaimRepoSQLite(gdb),
		notifications: inbox.NewRepoSQLite(gdb),
		close: func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		},
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.StoreDriver == config.DriverSQLite {
		gdb, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqliteStores(gdb), nil
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	return postgresStores(pool), nil
}

// openCache returns Redis when REDIS_URL is set and an in-process cache
// otherwise. The in-process cache is only correct for a single replica.
func openCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Cache, func(), error) {
	if cfg.RedisURL != "" {
		r, err := cache.NewRedis(ctx, cfg.RedisURL, "careguard:")
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("using redis cache")
		return r, func() { _ = r.Close() }, nil
	}
	m := cache.NewMemory()
	cctx, cancel := context.WithCancel(ctx)
	m.StartCleanup(cctx, time.Minute)
	logger.Warn().Msg("REDIS_URL not set; token revocations and actor cache are per-process")
	return m, cancel, nil
}

func loadRules(path string) (*policy.Rules, error) {
	if path == "" {
		return policy.DefaultRules(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open policy file: %w", err)
	}
	defer f.Close()
	return policy.LoadRules(f)
}

// resolveSigningKey decodes JWT_SIGNING_KEY. A "hex:" prefix marks a
// hex-encoded key; anything else is used as raw bytes.
func resolveSigningKey(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	if rest, ok := strings.CutPrefix(value, "hex:"); ok {
		key, err := hex.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid JWT_SIGNING_KEY hex value: %w", err)
		}
		if len(key) < 32 {
			return nil, fmt.Errorf("JWT_SIGNING_KEY must decode to at least 32 bytes, got %d", len(key))
		}
		return key, nil
	}
	return []byte(value), nil
}

// devActor builds the actor unauthenticated requests run as in development.
func devActor(cfg *config.Config) (policy.Actor, error) {
	id, err := uuid.Parse(cfg.DevActorID)
	if err != nil {
		return policy.Actor{}, fmt.Errorf("DEV_ACTOR_ID: %w", err)
	}
	actor := policy.Actor{ID: id, Role: policy.Role(strings.ToUpper(cfg.DevActorRole))}
	if !actor.Role.Valid() {
		return policy.Actor{}, fmt.Errorf("DEV_ACTOR_ROLE: unknown role %q", cfg.DevActorRole)
	}
	if cfg.DevFacilityID != "" {
		fid, err := uuid.Parse(cfg.DevFacilityID)
		if err != nil {
			return policy.Actor{}, fmt.Errorf("DEV_FACILITY_ID: %w", err)
		}
		actor.FacilityID = &fid
	}
	return actor, nil
}

func rejectTokens(echo.HandlerFunc) echo.HandlerFunc {
	return func(echo.Context) error {
		return apperr.Unauthorized("token verification is not configured")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger().Level(level)
	}
	return logger
}

func channelSenders(cfg *config.Config, logger zerolog.Logger) (notification.EmailSender, notification.SMSSender) {
	fallback := notification.NewLogSender(logger)
	var email notification.EmailSender = fallback
	var sms notification.SMSSender = fallback
	if cfg.SMTPEnabled() {
		email = notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}
	if cfg.SMSEnabled() {
		sms = notification.NewHTTPSMSSender(notification.HTTPSMSConfig{
			URL:   cfg.SMSGatewayURL,
			Token: cfg.SMSGatewayToken,
			From:  cfg.SMSFrom,
		}, &http.Client{Timeout: cfg.ChannelTimeout})
	}
	return email, sms
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	rules, err := loadRules(cfg.PolicyFile)
	if err != nil {
		return err
	}
	signingKey, err := resolveSigningKey(cfg.JWTSigningKey)
	if err != nil {
		return err
	}

	// Stores
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.close()
	logger.Info().Str("driver", cfg.StoreDriver).Msg("connected to store")

	kv, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer closeCache()

	// Platform
	metrics := telemetry.NewMetrics()
	ev := policy.NewEvaluator(rules)
	g := guard.New(st.projections, ev, guard.Options{Timeout: cfg.StoreTimeout, Logger: logger, Metrics: metrics})
	recorder := audit.NewRecorder(st.audit, logger, audit.RecorderOptions{Timeout: cfg.StoreTimeout, Metrics: metrics})
	email, sms := channelSenders(cfg, logger)
	dispatcher := notification.NewDispatcher(st.notifications, email, sms, notification.Options{
		Concurrency:    cfg.NotifyConcurrency,
		ChannelTimeout: cfg.ChannelTimeout,
		StoreTimeout:   cfg.StoreTimeout,
		Logger:         logger,
		Metrics:        metrics,
	})

	// Domain services
	directorySvc := directory.NewService(st.users, st.patients, st.providers, ev, recorder, logger)
	actors := auth.NewCachedActorSource(directorySvc, kv, actorCacheTTL, logger)
	directorySvc.UseActorCache(actors)
	resolver := notification.NewResolver(directorySvc, ev, logger)
	clinicalSvc := clinical.NewService(st.records, st.appointments, st.projections, recorder, dispatcher, directorySvc, logger)
	insuranceSvc := insurance.NewService(st.policies, st.claims, recorder, dispatcher, directorySvc, logger)
	inboxSvc := inbox.NewService(st.notifications, resolver, dispatcher, recorder, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = response.ErrorHandler(logger)

	// Global middleware
	// Recovery runs inside Logger and metrics so a panic is logged and
	// counted as a 500 like any other failed request.
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health and metrics stay unauthenticated.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(st.health))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// Auth middleware
	revocations := auth.NewRevocationList(kv)
	var verify echo.MiddlewareFunc = rejectTokens
	if cfg.HasTokenVerifier() {
		verify = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:      cfg.AuthIssuer,
			Audience:    cfg.AuthAudience,
			JWKSURL:     cfg.AuthJWKSURL,
			SigningKey:  signingKey,
			Actors:      actors,
			Revocations: revocations,
			Logger:      logger,
		})
	}
	authn := verify
	if cfg.IsDev() && cfg.DevActorID != "" {
		dev, err := devActor(cfg)
		if err != nil {
			return err
		}
		logger.Warn().Str("actor_id", dev.ID.String()).Str("role", string(dev.Role)).Msg("development auth enabled")
		authn = auth.DevAuthMiddleware(dev, verify)
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	apiV1 := e.Group("/api/v1",
		middleware.RateLimit(rateLimitCfg),
		middleware.RequestTimeout(cfg.RequestTimeout),
		authn,
		audit.Middleware(),
	)

	auth.RegisterRoutes(apiV1, revocations)
	audit.NewHandler(st.audit).RegisterRoutes(apiV1, ev)
	directory.NewHandler(directorySvc, g).RegisterRoutes(apiV1)
	clinical.NewHandler(clinicalSvc, g).RegisterRoutes(apiV1)
	insurance.NewHandler(insuranceSvc, g).RegisterRoutes(apiV1)
	inbox.NewHandler(inboxSvc, g).RegisterRoutes(apiV1)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
