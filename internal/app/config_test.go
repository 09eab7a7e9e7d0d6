package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bizcore/internal/auth"
	"github.com/charlesng35/bizcore/internal/cache"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5432, cfg.Database.Postgres.Port)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "redis.example.com:6379", cfg.Cache.Redis.Address)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.Equal(t, 2*time.Minute, cfg.Cache.DomainTTL())
	require.Equal(t, 5*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 45*time.Minute, cfg.Auth.JWT.TTL)

	require.Equal(t, "X-Org", cfg.Tenancy.HeaderName())
	require.Equal(t, []string{"app.example.com", "example.io"}, cfg.Tenancy.BaseDomains)
	require.True(t, cfg.Tenancy.AllowDefaultMembership)

	require.Equal(t, 72*time.Hour, cfg.Invitations.Expiry)
	require.Equal(t, 48, cfg.Invitations.TokenBytes)
	key, err := cfg.Invitations.Key()
	require.NoError(t, err)
	require.Len(t, key, 32)
	require.Equal(t, byte(0x1f), key[31])

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	require.Equal(t, "*/15 * * * *", cfg.Maintenance.InvitationSweep)
	require.Equal(t, "@weekly", cfg.Maintenance.ReconcileAudit)
	require.Equal(t, "@daily", cfg.Maintenance.AuditSchedule)
	require.Equal(t, 90, cfg.Maintenance.AuditRetentionDays)

	require.Equal(t, "ops", cfg.Bootstrap.Operator.Username)
	require.Equal(t, 12, cfg.RateLimit.Public.RequestsPerMinute)
	require.Equal(t, 4, cfg.RateLimit.Public.Burst)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.False(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "X-Tenant-ID", cfg.Tenancy.Header)
	require.False(t, cfg.Tenancy.AllowDefaultMembership)
	require.Equal(t, 168*time.Hour, cfg.Invitations.Expiry)
	require.Equal(t, 32, cfg.Invitations.TokenBytes)
	require.Equal(t, "@hourly", cfg.Maintenance.InvitationSweep)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)
}

func TestLoadConfigEnvironmentOverride(t *testing.T) {
	t.Setenv("BIZCORE_TENANCY_HEADER", "X-Workspace")
	t.Setenv("BIZCORE_SERVER_PORT", "9191")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "X-Workspace", cfg.Tenancy.HeaderName())
	require.Equal(t, 9191, cfg.Server.Port)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{JWT: JWTSettings{Secret: " secret ", Issuer: "issuer", TTL: 10 * time.Minute}}
	require.Equal(t, auth.TokenConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		AccessTokenTTL: 10 * time.Minute,
	}, cfg.TokenServiceConfig())

	var empty AuthConfig
	require.Equal(t, auth.DefaultAccessTokenTTL, empty.TokenServiceConfig().AccessTokenTTL)
}

func TestCacheConfigAdapters(t *testing.T) {
	cfg := CacheConfig{Redis: RedisCacheConfig{Address: " localhost:6379 ", Password: "pw", DB: 3}}
	require.Equal(t, cache.RedisConfig{Address: "localhost:6379", Password: "pw", DB: 3}, cfg.RedisClientConfig())
	require.Equal(t, cache.DefaultDomainTTL, cfg.DomainTTL())
}

func TestInvitationKeyLength(t *testing.T) {
	_, err := InvitationConfig{EncryptionKey: "too-short"}.Key()
	require.Error(t, err)

	_, err = InvitationConfig{}.Key()
	require.Error(t, err)
}

func TestTenancyHeaderFallback(t *testing.T) {
	require.Equal(t, "X-Tenant-ID", TenancyConfig{Header: "  "}.HeaderName())
	require.Len(t, TenancyConfig{}.ResolverOptions(), 2)
}

func TestEmailConfigAdapter(t *testing.T) {
	cfg := EmailConfig{
		SMTP: SMTPConfig{
			Enabled:  true,
			Host:     "smtp.example.com",
			Port:     2525,
			Username: "user",
			Password: "pass",
			From:     "no-reply@example.com",
			UseTLS:   true,
			Timeout:  10 * time.Second,
		},
	}

	settings := cfg.SMTPSettings()
	require.True(t, settings.Enabled)
	require.Equal(t, "smtp.example.com", settings.Host)
	require.Equal(t, 2525, settings.Port)
	require.Equal(t, "user", settings.Username)
	require.Equal(t, "pass", settings.Password)
	require.Equal(t, "no-reply@example.com", settings.From)
	require.True(t, settings.UseTLS)
	require.Equal(t, 10*time.Second, settings.Timeout)

	cfg.SMTP.From = ""
	require.Empty(t, cfg.SMTPSettings().From)
	cfg.SMTP.Username = "mailer@example.com"
	require.Equal(t, "mailer@example.com", cfg.SMTPSettings().From)
}
