package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bizcore/internal/auth"
	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/tenancy"
	"github.com/charlesng35/bizcore/pkg/response"
)

func newTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	tokens, err := newTokensWithSecret("secret")
	require.NoError(t, err)
	return tokens
}

func newTokensWithSecret(secret string) (*auth.TokenService, error) {
	return auth.NewTokenService(auth.TokenConfig{
		Secret:         secret,
		Issuer:         "test-suite",
		AccessTokenTTL: time.Minute,
	})
}

func jsonUnmarshal(w *httptest.ResponseRecorder, dest any) error {
	return json.Unmarshal(w.Body.Bytes(), dest)
}

func bearer(t *testing.T, tokens *auth.TokenService, userID string) string {
	t.Helper()
	issued, err := tokens.Issue(auth.Subject{UserID: userID, Username: "alice"})
	require.NoError(t, err)
	return "Bearer " + issued.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var payload response.Response
	require.NoError(t, jsonUnmarshal(w, &payload))
	return payload
}

// withUser stands in for Auth in tests that only need a user id.
func withUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			c.Set(CtxUserIDKey, userID)
		}
		c.Next()
	}
}

type stubResolver struct {
	res  *tenancy.Resolution
	err  error
	seen tenancy.Signals
}

func (s *stubResolver) Resolve(_ context.Context, sig tenancy.Signals) (*tenancy.Resolution, error) {
	s.seen = sig
	return s.res, s.err
}

type stubChecker struct {
	allowed map[string]bool
	err     error
	tenant  string
}

func (s *stubChecker) Check(_ context.Context, userID, tenantID, permissionID string) (bool, error) {
	s.tenant = tenantID
	if s.err != nil {
		return false, s.err
	}
	return s.allowed[userID+"|"+permissionID], nil
}

type stubUsers map[string]*models.User

func (s stubUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, context.Canceled
}

func acme() *tenancy.Resolution {
	tenant := models.Tenant{Name: "Acme", Slug: "acme", IsActive: true}
	tenant.ID = "tenant-acme"
	return &tenancy.Resolution{Tenant: tenant, Source: tenancy.SourceHeader, UserID: "user-1"}
}

var errBoom = errors.New("boom")
