package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/auth"
	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/services"
	"github.com/charlesng35/bizcore/pkg/errors"
	"github.com/charlesng35/bizcore/pkg/response"
)

// AuthHandler manages login and the current account.
type AuthHandler struct {
	users  *services.UserService
	tokens *auth.TokenService
}

func NewAuthHandler(users *services.UserService, tokens *auth.TokenService) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type loginResponse struct {
	*auth.IssuedToken
	User *models.User `json:"user"`
}

type updateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=128"`
	LastName  *string `json:"last_name" validate:"omitempty,max=128"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Authenticate(requestContext(c), strings.TrimSpace(req.Identifier), req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	issued, err := issueFor(h.tokens, user)
	if err != nil {
		response.Error(c, errors.Wrap(err, "Failed to issue access token"))
		return
	}

	response.Success(c, http.StatusOK, loginResponse{IssuedToken: issued, User: user})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.users.GetByID(requestContext(c), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// PATCH /api/me/profile
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.UpdateProfile(requestContext(c), currentUserID(c), services.UpdateProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/me/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.users.ChangePassword(requestContext(c), currentUserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"changed": true})
}

func issueFor(tokens *auth.TokenService, user *models.User) (*auth.IssuedToken, error) {
	return tokens.Issue(auth.Subject{
		UserID:   user.ID,
		Username: user.Username,
		Operator: user.IsOperator,
	})
}
