package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"LIBRIS-backend/internal/platform/apierr"
)

type Handler struct{ svc *Service }

// RegisterPublicRoutes: 認証不要（login はレート制限付き）
func RegisterPublicRoutes(r gin.IRoutes, svc *Service, limiter *IPRateLimiter) {
	h := &Handler{svc: svc}
	r.POST("/auth/login", limiter.Middleware(), h.Login)
	r.POST("/auth/register", limiter.Middleware(), h.Register)
}

// RegisterSessionRoutes: RequireAuth 配下
func RegisterSessionRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/auth/logout", h.Logout)
	r.GET("/me", h.Profile)
}

// RegisterAdminRoutes: RequireUserManager 配下
func RegisterAdminRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/accounts", h.CreateAccount)
	r.PATCH("/accounts/:id/role", h.ChangeRole)
	r.DELETE("/accounts/:id", h.DeleteAccount)
}

type LoginRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	ID    string `json:"id"`
	Role  Role   `json:"role"`
}

// Login godoc
// @Summary  Log in and obtain a bearer token
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    body body LoginRequest true "credentials"
// @Success  200 {object} LoginResponse
// @Failure  401 {object} map[string]any
// @Router   /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid request"))
		return
	}

	token, p, err := h.svc.Login(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: token, ID: p.UserID, Role: p.Role})
}

func (h *Handler) Logout(c *gin.Context) {
	p, ok := CurrentPrincipal(c)
	if !ok {
		apierr.Abort(c, http.StatusUnauthorized, apierr.CodeUnauthenticated, "not logged in")
		return
	}
	h.svc.Logout(c.Request.Context(), p)
	c.Status(http.StatusNoContent)
}

type ProfileResponse struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile godoc
// @Summary  Show the logged-in account
// @Tags     auth
// @Produce  json
// @Success  200 {object} ProfileResponse
// @Router   /me [get]
func (h *Handler) Profile(c *gin.Context) {
	actor, _ := CurrentPrincipal(c)
	acct, err := h.svc.Profile(c.Request.Context(), actor)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	// role はトークンではなく DB の現在値
	c.JSON(http.StatusOK, ProfileResponse{ID: acct.ID, Role: acct.Role, CreatedAt: acct.CreatedAt})
}

type RegisterRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid request"))
		return
	}
	if err := h.svc.Register(c.Request.Context(), req.ID, req.Password); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": req.ID, "role": RoleStudent})
}

type CreateAccountRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

func (h *Handler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid request"))
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, err.Error()))
		return
	}
	actor, _ := CurrentPrincipal(c)
	if err := h.svc.CreateAccount(c.Request.Context(), actor, req.ID, req.Password, role); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": req.ID, "role": role})
}

type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h *Handler) ChangeRole(c *gin.Context) {
	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid request"))
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, err.Error()))
		return
	}
	actor, _ := CurrentPrincipal(c)
	if err := h.svc.ChangeRole(c.Request.Context(), actor, c.Param("id"), role); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "role": role})
}

func (h *Handler) DeleteAccount(c *gin.Context) {
	actor, _ := CurrentPrincipal(c)
	if err := h.svc.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
