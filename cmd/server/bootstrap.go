package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/api"
	"github.com/charlesng35/bizcore/internal/app"
	"github.com/charlesng35/bizcore/internal/app/maintenance"
	"github.com/charlesng35/bizcore/internal/cache"
	"github.com/charlesng35/bizcore/internal/database"
	"github.com/charlesng35/bizcore/internal/monitoring/checks"
	"github.com/charlesng35/bizcore/internal/services"
	"github.com/charlesng35/bizcore/pkg/logger"
	"github.com/charlesng35/bizcore/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *cache.RedisStore
	Services  *api.Services
	Scheduler *maintenance.Scheduler
	Router    *gin.Engine
}

// bootstrapRuntime opens the database, wires the service graph, starts the
// maintenance jobs and builds the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	deps := api.Dependencies{}

	if cfg.Cache.Redis.Enabled {
		stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig())
		if err != nil {
			log.Warn("redis unavailable; domain lookups go straight to the database", zap.Error(err))
			stack.Redis = nil
		} else {
			domains, cacheErr := cache.NewDomainCache(stack.Redis, cfg.Cache.DomainTTL())
			if cacheErr != nil {
				return nil, fmt.Errorf("initialise domain cache: %w", cacheErr)
			}
			deps.DomainCache = domains
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	if cfg.Email.SMTP.Enabled {
		mailer, mailErr := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
		if mailErr != nil {
			return nil, fmt.Errorf("initialise mailer: %w", mailErr)
		}
		deps.Mailer = mailer
	}

	stack.Services, err = api.NewServices(stack.DB, cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}

	if cfg.Cache.Redis.Enabled {
		var pinger checks.RedisPinger
		if stack.Redis != nil {
			pinger = stack.Redis
		}
		stack.Services.Health.Register(checks.Redis(pinger, true, cfg.Cache.Redis.Timeout))
	}

	if err := stack.Services.Reconciler.SyncGroupPermissions(ctx); err != nil {
		return nil, fmt.Errorf("sync permission groups: %w", err)
	}

	if err := ensureOperator(ctx, cfg, stack.Services.Users, log); err != nil {
		return nil, err
	}

	stack.Scheduler = maintenance.NewScheduler(
		stack.Services.Invitations,
		stack.Services.Reconciler,
		stack.Services.Audit,
		maintenance.WithSchedules(cfg.Maintenance.InvitationSweep, cfg.Maintenance.ReconcileAudit, cfg.Maintenance.AuditSchedule),
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
	)
	if err := stack.Scheduler.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(stack.Services)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Scheduler != nil {
		if stopCtx := s.Scheduler.Stop(); stopCtx != nil {
			<-stopCtx.Done()
		}
		if err := s.Scheduler.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown run failed", zap.Error(err))
		}
		s.Scheduler = nil
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
		s.Redis = nil
	}

	if s.Services != nil && s.Services.Audit != nil {
		if err := s.Services.Audit.Wait(ctx); err != nil {
			log.Warn("pending audit writes not flushed", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
		s.DB = nil
	}
}

// ensureOperator creates the configured operator account on an empty install.
func ensureOperator(ctx context.Context, cfg *app.Config, users *services.UserService, log *zap.Logger) error {
	input := operatorInput(cfg)
	if input.Username == "" {
		return nil
	}
	created, err := users.EnsureOperator(ctx, input)
	if err != nil {
		return fmt.Errorf("bootstrap operator: %w", err)
	}
	if created {
		log.Info("bootstrap operator created", zap.String("username", input.Username))
	}
	return nil
}

func operatorInput(cfg *app.Config) services.OperatorInput {
	op := cfg.Bootstrap.Operator
	return services.OperatorInput{
		Username: strings.TrimSpace(op.Username),
		Email:    strings.TrimSpace(op.Email),
		Password: op.Password,
	}
}

func initialiseDatabase(ctx context.Context, cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(ctx, db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	var creds app.DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		creds = cfg.Database.Postgres
	case "mysql":
		creds = cfg.Database.MySQL
	default:
		// unsupported drivers surface from database.Open
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(creds.Host)
	dbCfg.Port = creds.Port
	dbCfg.Name = strings.TrimSpace(creds.Database)
	dbCfg.User = strings.TrimSpace(creds.Username)
	dbCfg.Password = strings.TrimSpace(creds.Password)
	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
