package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/api"
	"github.com/charlesng35/bizcore/internal/app"
	"github.com/charlesng35/bizcore/internal/auth"
	sharedtestutil "github.com/charlesng35/bizcore/internal/database/testutil"
	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/services"
	"github.com/charlesng35/bizcore/pkg/crypto"
	"github.com/charlesng35/bizcore/pkg/response"
)

// DefaultPassword is the password of every account created by the helpers.
const DefaultPassword = "Sup3rSecret!"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Config   *app.Config
	Services *api.Services
	Router   *gin.Engine
	Operator *models.User
}

// NewEnv provisions a fresh handler test environment with migrations and seed
// data applied and a platform operator in place. No mailer is configured, so
// invitation responses carry the raw token as their link.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	return NewEnvWithConfig(t, func(*app.Config) {})
}

// NewEnvWithConfig is NewEnv with a hook to adjust the configuration.
func NewEnvWithConfig(t *testing.T, mutate func(*app.Config)) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Tenancy: app.TenancyConfig{Header: "X-Tenant-ID"},
		Invitations: app.InvitationConfig{
			Expiry:        72 * time.Hour,
			EncryptionKey: "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		},
	}
	mutate(cfg)

	svc, err := api.NewServices(db, cfg, api.Dependencies{})
	require.NoError(t, err)

	router, err := api.NewRouter(svc)
	require.NoError(t, err)

	env := &Env{
		T:        t,
		DB:       db,
		Config:   cfg,
		Services: svc,
		Router:   router,
	}
	env.Operator = env.createUser("operator-"+uuid.NewString()[:8], true)
	return env
}

// CreateUser inserts an active account with DefaultPassword.
func (e *Env) CreateUser(username string) *models.User {
	e.T.Helper()
	return e.createUser(username, false)
}

func (e *Env) createUser(username string, operator bool) *models.User {
	e.T.Helper()

	hashed, err := crypto.HashPassword(DefaultPassword)
	require.NoError(e.T, err)

	user := &models.User{
		Username:   username,
		Email:      username + "@example.com",
		Password:   hashed,
		IsActive:   true,
		IsOperator: operator,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// CreateTenant provisions an active tenant through the tenant service.
func (e *Env) CreateTenant(slug string, domains ...string) *models.Tenant {
	e.T.Helper()

	provisioned, err := e.Services.Tenants.Provision(context.Background(), e.Operator.ID, services.ProvisionTenantInput{
		Name:    slug,
		Slug:    slug,
		Domains: domains,
	})
	require.NoError(e.T, err)
	return provisioned.Tenant
}

// Grant adds user to tenant with role, acting as the operator.
func (e *Env) Grant(user *models.User, tenant *models.Tenant, role models.Role) *models.Membership {
	e.T.Helper()

	membership, err := e.Services.Memberships.Add(context.Background(), e.Operator.ID, services.AddMemberInput{
		TenantID: tenant.ID,
		UserID:   user.ID,
		Role:     role,
	})
	require.NoError(e.T, err)
	return membership
}

// Token issues an access token for user without going through login.
func (e *Env) Token(user *models.User) string {
	e.T.Helper()

	issued, err := e.Services.Tokens.Issue(auth.Subject{UserID: user.ID, Username: user.Username, Operator: user.IsOperator})
	require.NoError(e.T, err)
	return issued.Token
}

// Reload fetches the current row of user.
func (e *Env) Reload(user *models.User) *models.User {
	e.T.Helper()

	var fresh models.User
	require.NoError(e.T, e.DB.First(&fresh, "id = ?", user.ID).Error)
	return &fresh
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		Email      string `json:"email"`
		IsOperator bool   `json:"is_operator"`
	} `json:"user"`
}

// Login authenticates with identifier and password and returns the issued token.
func (e *Env) Login(identifier, password string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.Do(method, path, body, token, nil)
}

// TenantRequest is Request with the tenant header set to tenantRef.
func (e *Env) TenantRequest(method, path, tenantRef string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.Do(method, path, body, token, func(req *http.Request) {
		req.Header.Set(e.Config.Tenancy.HeaderName(), tenantRef)
	})
}

// Do executes a request, letting prepare adjust it before dispatch.
func (e *Env) Do(method, path string, body any, token string, prepare func(*http.Request)) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if prepare != nil {
		prepare(req)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
