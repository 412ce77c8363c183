package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/roadwatch/roadwatch-go/internal/access"
	"github.com/roadwatch/roadwatch-go/internal/datastore"
	"github.com/roadwatch/roadwatch-go/internal/errors"
	"github.com/roadwatch/roadwatch-go/internal/security"
)

const callerContextKey = "roadwatch_caller"

// caller returns the authenticated caller, or the anonymous citizen context
// when no valid token accompanied the request.
func (c *Controller) caller(ctx echo.Context) access.Caller {
	if caller, ok := ctx.Get(callerContextKey).(access.Caller); ok {
		return caller
	}
	return access.Anonymous()
}

// authenticate resolves the bearer token if present. Invalid tokens are
// rejected; absent tokens leave the request anonymous.
func (c *Controller) authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			header := ctx.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return next(ctx)
			}
			token := strings.TrimPrefix(header, "Bearer ")
			claims, err := c.Security.VerifyToken(token)
			if err != nil {
				return c.HandleError(ctx, err, "Invalid or expired token", http.StatusUnauthorized)
			}
			role, err := access.ParseRole(claims.Role)
			if err != nil {
				return c.HandleError(ctx, err, "Unknown role in token", http.StatusUnauthorized)
			}
			ctx.Set(callerContextKey, access.Caller{
				Email:            claims.Email,
				Role:             role,
				JurisdictionArea: claims.JurisdictionArea,
			})
			return next(ctx)
		}
	}
}

// requireAuthority refuses requests whose caller lacks an authority role.
func (c *Controller) requireAuthority(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		caller := c.caller(ctx)
		if !caller.Role.IsAuthority() {
			return c.HandleError(ctx,
				errors.Newf("role %s lacks authority privileges", caller.Role).
					Component("api").
					Category(errors.CategoryAuthorization).
					Build(),
				"Authority role required", http.StatusForbidden)
		}
		return next(ctx)
	}
}

// requireAdmin refuses requests whose caller lacks an admin role.
func (c *Controller) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		caller := c.caller(ctx)
		if !caller.Role.IsAdmin() {
			return c.HandleError(ctx,
				errors.Newf("role %s lacks admin privileges", caller.Role).
					Component("api").
					Category(errors.CategoryAuthorization).
					Build(),
				"Admin role required", http.StatusForbidden)
		}
		return next(ctx)
	}
}

func (c *Controller) initAuthRoutes() {
	auth := c.Group.Group("/auth")
	auth.POST("/register", c.Register)
	auth.POST("/login", c.Login)
	auth.GET("/verify", c.VerifySession, c.authenticate())
	auth.POST("/forgot-password", c.ForgotPassword)
	auth.POST("/reset-password", c.ResetPassword)
	auth.POST("/invitations", c.CreateInvitation, c.authenticate(), c.requireAdmin)
	auth.GET("/invitations", c.ListInvitations, c.authenticate(), c.requireAdmin)
	auth.DELETE("/invitations/:code", c.DeleteInvitation, c.authenticate(), c.requireAdmin)
}

type registerRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	InvitationCode string `json:"invitation_code"`
}

type userResponse struct {
	ID               uint   `json:"id"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	Role             string `json:"role"`
	JurisdictionArea string `json:"jurisdiction_area,omitempty"`
}

func toUserResponse(u *datastore.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Role:             u.Role,
		JurisdictionArea: u.JurisdictionArea,
	}
}

// Register creates an account. Privileged roles require a live invitation
// code, which also pins the role and jurisdiction area.
func (c *Controller) Register(ctx echo.Context) error {
	var req registerRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if req.Email == "" || req.Password == "" {
		return c.HandleError(ctx, errors.ValidationError("email/password", "required"),
			"Email and password are required", http.StatusBadRequest)
	}

	roleName := req.Role
	if roleName == "" {
		roleName = string(access.RoleCitizen)
	}
	role, err := access.ParseRole(roleName)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid role", http.StatusBadRequest)
	}

	jurisdiction := ""
	if role.RequiresInvitation() {
		if req.InvitationCode == "" {
			return c.HandleError(ctx,
				errors.ValidationError("invitation_code", "required for privileged roles"),
				"Invitation code required", http.StatusBadRequest)
		}
		invitation, err := c.DS.GetInvitationByCode(req.InvitationCode)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid invitation code", http.StatusBadRequest)
		}
		if !invitation.Usable(time.Now()) || invitation.Role != string(role) {
			return c.HandleError(ctx,
				errors.Newf("invitation is expired, used, or issued for another role").
					Component("api").
					Category(errors.CategoryValidation).
					Build(),
				"Invitation code is not valid for this registration", http.StatusBadRequest)
		}
		jurisdiction = invitation.JurisdictionArea
		if err := c.DS.MarkInvitationUsed(invitation.Code, req.Email, time.Now()); err != nil {
			return c.HandleError(ctx, err, "Invitation code already used", http.StatusConflict)
		}
	}

	hash, err := c.Security.HashPassword(req.Password)
	if err != nil {
		return c.HandleError(ctx, err, "Password does not meet requirements", 0)
	}

	user := &datastore.User{
		Email:            req.Email,
		PasswordHash:     hash,
		Name:             req.Name,
		Role:             string(role),
		JurisdictionArea: jurisdiction,
	}
	if err := c.DS.CreateUser(user); err != nil {
		return c.HandleError(ctx, err, "Registration failed", 0)
	}

	token, err := c.Security.IssueToken(user.ID, user.Email, user.Role, user.JurisdictionArea)
	if err != nil {
		return c.HandleError(ctx, err, "Registration succeeded but login failed", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusCreated, map[string]any{
		"token": token,
		"user":  toUserResponse(user),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and issues a session token.
func (c *Controller) Login(ctx echo.Context) error {
	var req loginRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	user, err := c.DS.GetUserByEmail(req.Email)
	if err != nil || !c.Security.CheckPassword(user.PasswordHash, req.Password) {
		// One message for both cases, email enumeration stays impossible.
		return c.HandleError(ctx,
			errors.Newf("invalid credentials").
				Component("api").
				Category(errors.CategoryAuthentication).
				Build(),
			"Invalid email or password", http.StatusUnauthorized)
	}

	token, err := c.Security.IssueToken(user.ID, user.Email, user.Role, user.JurisdictionArea)
	if err != nil {
		return c.HandleError(ctx, err, "Login failed", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"token": token,
		"user":  toUserResponse(user),
	})
}

// VerifySession echoes the caller resolved from a bearer token.
func (c *Controller) VerifySession(ctx echo.Context) error {
	caller := c.caller(ctx)
	if caller.Role == access.RoleCitizen && caller.Email == "" {
		return c.HandleError(ctx,
			errors.Newf("no valid session").
				Component("api").
				Category(errors.CategoryAuthentication).
				Build(),
			"Not authenticated", http.StatusUnauthorized)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"email":             caller.Email,
		"role":              string(caller.Role),
		"jurisdiction_area": caller.JurisdictionArea,
	})
}

// ForgotPassword issues a reset token. The response never reveals whether
// the email exists.
func (c *Controller) ForgotPassword(ctx echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := ctx.Bind(&req); err != nil || req.Email == "" {
		return c.HandleError(ctx, errors.ValidationError("email", "required"),
			"Email is required", http.StatusBadRequest)
	}

	if user, err := c.DS.GetUserByEmail(req.Email); err == nil {
		token := c.Security.IssueResetToken(user.ID, user.Email)
		// Mail delivery is out of scope; the token is logged for the operator.
		c.apiLogger.Info("password reset requested", "email", user.Email, "reset_token", token)
	}
	return ctx.JSON(http.StatusOK, map[string]string{
		"message": "If the email is registered, a reset link has been sent",
	})
}

// ResetPassword redeems a reset token and replaces the password.
func (c *Controller) ResetPassword(ctx echo.Context) error {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := ctx.Bind(&req); err != nil || req.Token == "" || req.Password == "" {
		return c.HandleError(ctx, errors.ValidationError("token/password", "required"),
			"Token and new password are required", http.StatusBadRequest)
	}

	userID, _, err := c.Security.ConsumeResetToken(req.Token)
	if err != nil {
		return c.HandleError(ctx, err, "Reset token is invalid or expired", http.StatusBadRequest)
	}
	user, err := c.DS.GetUserByID(userID)
	if err != nil {
		return c.HandleError(ctx, err, "Account no longer exists", 0)
	}
	hash, err := c.Security.HashPassword(req.Password)
	if err != nil {
		return c.HandleError(ctx, err, "Password does not meet requirements", 0)
	}
	user.PasswordHash = hash
	if err := c.DS.UpdateUser(user); err != nil {
		return c.HandleError(ctx, err, "Failed to update password", 0)
	}
	return ctx.JSON(http.StatusOK, map[string]string{"message": "Password updated"})
}

type invitationRequest struct {
	Role             string `json:"role"`
	JurisdictionArea string `json:"jurisdiction_area"`
	Email            string `json:"email"`
}

// CreateInvitation issues an invitation code for a privileged role.
func (c *Controller) CreateInvitation(ctx echo.Context) error {
	var req invitationRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	role, err := access.ParseRole(req.Role)
	if err != nil || !role.RequiresInvitation() {
		return c.HandleError(ctx,
			errors.ValidationError("role", "must be a privileged role"),
			"Invalid role for invitation", http.StatusBadRequest)
	}

	invitation := &datastore.InvitationCode{
		Code:             security.NewInvitationCode(),
		Role:             string(role),
		JurisdictionArea: req.JurisdictionArea,
		Email:            req.Email,
		CreatedBy:        strings.ToLower(c.caller(ctx).Email),
		ExpiresAt:        time.Now().Add(security.InvitationValidity),
	}
	if err := c.DS.CreateInvitation(invitation); err != nil {
		return c.HandleError(ctx, err, "Failed to create invitation", 0)
	}
	return ctx.JSON(http.StatusCreated, invitation)
}

// DeleteInvitation revokes a code. Revoking a redeemed code also removes
// the account that registered through it.
func (c *Controller) DeleteInvitation(ctx echo.Context) error {
	if err := c.DS.DeleteInvitation(ctx.Param("code")); err != nil {
		return c.HandleError(ctx, err, "Failed to delete invitation", 0)
	}
	return ctx.JSON(http.StatusOK, map[string]string{"message": "Invitation revoked"})
}

// ListInvitations returns the codes the calling admin issued.
func (c *Controller) ListInvitations(ctx echo.Context) error {
	codes, err := c.DS.ListInvitationsByCreator(c.caller(ctx).Email)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list invitations", 0)
	}
	return ctx.JSON(http.StatusOK, codes)
}
