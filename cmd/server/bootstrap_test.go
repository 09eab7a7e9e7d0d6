package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/bizcore/internal/app"
	"github.com/charlesng35/bizcore/internal/database"
	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/tenancy"
)

const testInvitationKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func runtimeConfig() *app.Config {
	return &app.Config{
		Server:   app.ServerConfig{Port: 0, LogLevel: "error"},
		Database: app.DatabaseConfig{Driver: "sqlite", Path: ":memory:"},
		Auth: app.AuthConfig{JWT: app.JWTSettings{
			Secret: "bootstrap-test-secret-key-of-32-bytes!",
			Issuer: "bizcore-test",
			TTL:    time.Hour,
		}},
		Tenancy:     app.TenancyConfig{Header: "X-Tenant-ID"},
		Invitations: app.InvitationConfig{Expiry: 24 * time.Hour, EncryptionKey: testInvitationKey},
		Bootstrap: app.BootstrapConfig{Operator: app.OperatorConfig{
			Username: "root",
			Email:    "root@example.com",
			Password: "Sup3rSecret!",
		}},
	}
}

func TestConvertDatabaseConfig(t *testing.T) {
	cfg := &app.Config{Database: app.DatabaseConfig{
		Driver: " PostgreSQL ",
		Postgres: app.DBAuthConfig{
			Host:     " db.internal ",
			Port:     5432,
			Database: "bizcore",
			Username: "svc",
			Password: "secret",
		},
	}}

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.internal", dbCfg.Host)
	require.Equal(t, 5432, dbCfg.Port)
	require.Equal(t, "bizcore", dbCfg.Name)
	require.Equal(t, "svc", dbCfg.User)

	cfg.Database = app.DatabaseConfig{Driver: "mysql", MySQL: app.DBAuthConfig{Host: "mysql", Port: 3306}}
	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "mysql", dbCfg.Driver)
	require.Equal(t, "mysql", dbCfg.Host)
	require.Equal(t, 3306, dbCfg.Port)

	cfg.Database = app.DatabaseConfig{Path: "./data/test.sqlite"}
	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "sqlite", dbCfg.Driver)
	require.Equal(t, "./data/test.sqlite", dbCfg.Path)
	require.Empty(t, dbCfg.Host)
}

func TestEnsureSecretsPresent(t *testing.T) {
	require.Error(t, ensureSecretsPresent(nil))

	cfg := runtimeConfig()
	cfg.Auth.JWT.Secret = "   "
	require.ErrorContains(t, ensureSecretsPresent(cfg), "auth.jwt.secret")

	cfg = runtimeConfig()
	cfg.Invitations.EncryptionKey = "0011"
	require.ErrorContains(t, ensureSecretsPresent(cfg), "invitations.encryption_key")

	cfg = runtimeConfig()
	cfg.Invitations.EncryptionKey = "  " + testInvitationKey + "\n"
	require.NoError(t, ensureSecretsPresent(cfg))
	require.Equal(t, testInvitationKey, cfg.Invitations.EncryptionKey)
}

func TestRuntimeDefaultsSatisfySecretCheck(t *testing.T) {
	cfg := runtimeConfig()
	cfg.Auth.JWT.Secret = ""
	cfg.Invitations.EncryptionKey = ""

	generated, err := app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.True(t, generated["auth.jwt.secret"])
	require.True(t, generated["invitations.encryption_key"])
	require.NoError(t, ensureSecretsPresent(cfg))
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.ErrorContains(t, err, "does not exist")
}

func TestBootstrapRuntime(t *testing.T) {
	cfg := runtimeConfig()
	log := zap.NewNop()

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), log) })

	require.NotNil(t, stack.Router)
	require.NotNil(t, stack.Services)
	require.NotNil(t, stack.Scheduler)
	require.Nil(t, stack.Redis)

	var operator models.User
	require.NoError(t, stack.DB.Where("username = ?", "root").First(&operator).Error)
	require.True(t, operator.IsOperator)

	created, err := stack.Services.Users.EnsureOperator(context.Background(), operatorInput(cfg))
	require.NoError(t, err)
	require.False(t, created)

	rec := httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBootstrapRuntimeWithoutOperator(t *testing.T) {
	cfg := runtimeConfig()
	cfg.Bootstrap.Operator = app.OperatorConfig{}
	log := zap.NewNop()

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)

	var count int64
	require.NoError(t, stack.DB.Model(&models.User{}).Count(&count).Error)
	require.Zero(t, count)

	stack.Shutdown(context.Background(), log)
	require.Nil(t, stack.DB)
	stack.Shutdown(context.Background(), log)
}

func TestShutdownFlushesViolationAudit(t *testing.T) {
	cfg := runtimeConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "bizcore.sqlite")
	log := zap.NewNop()

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)

	var suppliers []models.Supplier
	err = stack.DB.Find(&suppliers).Error
	require.ErrorIs(t, err, tenancy.ErrIsolationViolation)

	stack.Shutdown(context.Background(), log)
	require.Nil(t, stack.DB)

	db, err := database.Open(convertDatabaseConfig(cfg))
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ?", "tenancy.violation").Count(&count).Error)
	require.EqualValues(t, 1, count)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestBootstrapRuntimeRejectsBadSchedule(t *testing.T) {
	cfg := runtimeConfig()
	cfg.Maintenance.InvitationSweep = "every now and then"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "start maintenance jobs")
}
