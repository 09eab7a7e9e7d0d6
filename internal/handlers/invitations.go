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

// InvitationHandler serves the invitation ledger and the invitation-gated
// onboarding endpoints.
type InvitationHandler struct {
	invitations *services.InvitationService
	tokens      *auth.TokenService
}

func NewInvitationHandler(invitations *services.InvitationService, tokens *auth.TokenService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations, tokens: tokens}
}

type issueInvitationRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Role    string `json:"role" validate:"required"`
	Message string `json:"message" validate:"omitempty,max=1000"`
}

type acceptInvitationRequest struct {
	Token     string `json:"token" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Username  string `json:"username" validate:"required,min=3,max=64"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"omitempty,max=128"`
	LastName  string `json:"last_name" validate:"omitempty,max=128"`
}

type acceptExistingRequest struct {
	Token string `json:"token" validate:"required"`
}

// invitationResponse carries the acceptance link back to the inviter only when
// the mail channel could not deliver it.
type invitationResponse struct {
	Invitation *models.Invitation `json:"invitation"`
	Delivered  bool               `json:"delivered"`
	Link       string             `json:"link,omitempty"`
}

type acceptResponse struct {
	User       *models.User       `json:"user"`
	Membership *models.Membership `json:"membership"`
	NewAccount bool               `json:"new_account"`
	Session    *auth.IssuedToken  `json:"session,omitempty"`
}

func newInvitationResponse(issued *services.IssuedInvitation) invitationResponse {
	out := invitationResponse{Invitation: issued.Invitation, Delivered: issued.Delivered}
	if !issued.Delivered {
		out.Link = issued.Link
	}
	return out
}

// GET /api/tenant/invitations
func (h *InvitationHandler) List(c *gin.Context) {
	tenantID, ok := currentTenantID(c)
	if !ok {
		return
	}
	status := models.InvitationStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))
	switch status {
	case "", models.InvitationPending, models.InvitationAccepted, models.InvitationExpired, models.InvitationRevoked:
	default:
		response.Error(c, errors.NewBadRequest("unknown invitation status"))
		return
	}

	invitations, err := h.invitations.List(requestContext(c), tenantID, status)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, invitations)
}

// POST /api/tenant/invitations
func (h *InvitationHandler) Issue(c *gin.Context) {
	tenantID, ok := currentTenantID(c)
	if !ok {
		return
	}
	var req issueInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	issued, err := h.invitations.Issue(requestContext(c), services.IssueInvitationInput{
		TenantID:  tenantID,
		InviterID: currentUserID(c),
		Email:     req.Email,
		Role:      models.Role(req.Role),
		Message:   req.Message,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, newInvitationResponse(issued))
}

// POST /api/tenant/invitations/:id/resend
func (h *InvitationHandler) Resend(c *gin.Context) {
	tenantID, ok := currentTenantID(c)
	if !ok {
		return
	}
	issued, err := h.invitations.Resend(requestContext(c), currentUserID(c), tenantID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, newInvitationResponse(issued))
}

// DELETE /api/tenant/invitations/:id
func (h *InvitationHandler) Revoke(c *gin.Context) {
	tenantID, ok := currentTenantID(c)
	if !ok {
		return
	}
	invitation, err := h.invitations.Revoke(requestContext(c), currentUserID(c), tenantID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, invitation)
}

// GET /api/invitations/validate?token=
func (h *InvitationHandler) Validate(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, errors.NewBadRequest("token is required"))
		return
	}
	preview, err := h.invitations.Validate(requestContext(c), token)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, preview)
}

// POST /api/invitations/accept
//
// Creates the account named in the body and signs it in.
func (h *InvitationHandler) Accept(c *gin.Context) {
	var req acceptInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}
	h.accept(c, services.AcceptInvitationInput{
		Token:     strings.TrimSpace(req.Token),
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
}

// POST /api/me/invitations/accept
func (h *InvitationHandler) AcceptExisting(c *gin.Context) {
	var req acceptExistingRequest
	if !bindAndValidate(c, &req) {
		return
	}
	h.accept(c, services.AcceptInvitationInput{
		Token:        strings.TrimSpace(req.Token),
		ActingUserID: currentUserID(c),
	})
}

func (h *InvitationHandler) accept(c *gin.Context, input services.AcceptInvitationInput) {
	accepted, err := h.invitations.Accept(requestContext(c), input)
	if err != nil {
		respondError(c, err)
		return
	}

	out := acceptResponse{
		User:       accepted.User,
		Membership: accepted.Membership,
		NewAccount: accepted.NewAccount,
	}
	if accepted.NewAccount && h.tokens != nil {
		session, err := issueFor(h.tokens, accepted.User)
		if err != nil {
			response.Error(c, errors.Wrap(err, "Failed to issue access token"))
			return
		}
		out.Session = session
	}

	status := http.StatusOK
	if accepted.NewAccount {
		status = http.StatusCreated
	}
	response.Success(c, status, out)
}
