package titles

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"LIBRIS-backend/internal/platform/apierr"
	"LIBRIS-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterRoutes: 閲覧系（ログイン済みなら誰でも）
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/titles", h.List)
	r.GET("/titles/:id", h.Get)
}

// RegisterStaffRoutes: RequireBookManager 配下
func RegisterStaffRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/titles", h.Create)
	r.PATCH("/titles/:id/maintenance", h.SetMaintenance)
	r.POST("/titles/:id/copies", h.AdjustCopies)
}

// List godoc
// @Summary  Browse the catalog
// @Tags     titles
// @Produce  json
// @Param    q         query string false "search title, author or isbn"
// @Param    category  query string false "category"
// @Param    available query bool   false "only titles that can be borrowed now"
// @Success  200 {object} map[string]any
// @Router   /titles [get]
func (h *Handler) List(c *gin.Context) {
	f := Filter{
		Search:   c.Query("q"),
		Category: c.Query("category"),
	}
	if v := c.Query("available"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.AvailableOnly = b
		}
	}
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
	}
	list, err := h.svc.List(c.Request.Context(), f, p)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	items := make([]TitleResponse, 0, len(list))
	for _, t := range list {
		items = append(items, ToResponse(t))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	t, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ToResponse(t))
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	actor, _ := auth.CurrentPrincipal(c)
	t, err := h.svc.Create(c.Request.Context(), actor, req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Header("Location", "/titles/"+strconv.FormatInt(t.ID, 10))
	c.JSON(http.StatusCreated, ToResponse(t))
}

func (h *Handler) SetMaintenance(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req MaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "maintenance is required"))
		return
	}
	actor, _ := auth.CurrentPrincipal(c)
	t, err := h.svc.SetMaintenance(c.Request.Context(), actor, id, *req.Maintenance)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ToResponse(t))
}

func (h *Handler) AdjustCopies(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req AdjustCopiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "delta is required and must not be 0"))
		return
	}
	actor, _ := auth.CurrentPrincipal(c)
	t, err := h.svc.AdjustCopies(c.Request.Context(), actor, id, req.Delta)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ToResponse(t))
}

// ---------- helpers ----------

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid title id"))
		return 0, false
	}
	return id, true
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
