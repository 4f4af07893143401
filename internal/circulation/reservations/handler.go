package reservations

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"LIBRIS-backend/internal/platform/apierr"
	"LIBRIS-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/titles/:id/reservations", h.Reserve)
	r.GET("/reservations", h.List)
	r.GET("/reservations/:id", h.Get)
	r.POST("/reservations/:id/cancel", h.Cancel)
}

// RegisterStaffRoutes: RequireBookManager 配下
func RegisterStaffRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/reservations/:id/notify", h.transition(svc.NotifyReady))
	r.POST("/reservations/:id/fulfill", h.transition(svc.Fulfill))
	r.POST("/reservations/:id/expire", h.transition(svc.Expire))
	r.POST("/reservations/sweep", h.Sweep)
}

// Reserve godoc
// @Summary  Join the reservation queue for a title
// @Tags     reservations
// @Produce  json
// @Param    id path int true "title id"
// @Success  201 {object} ReservationResponse
// @Failure  409 {object} map[string]any
// @Router   /titles/{id}/reservations [post]
func (h *Handler) Reserve(c *gin.Context) {
	titleID, ok := parseID(c)
	if !ok {
		return
	}
	var req ReserveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
			return
		}
	}
	actor, _ := auth.CurrentPrincipal(c)
	r, err := h.svc.Reserve(c.Request.Context(), actor, titleID, req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Header("Location", "/reservations/"+strconv.FormatInt(r.ID, 10))
	c.JSON(http.StatusCreated, ToResponse(r))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	actor, _ := auth.CurrentPrincipal(c)
	r, err := h.svc.Get(c.Request.Context(), actor, id)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ToResponse(r))
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{}
	if v := c.Query("user_id"); v != "" {
		f.UserID = &v
	}
	if v := c.Query("title_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.TitleID = &id
		}
	}
	if v := c.Query("status"); v != "" {
		st := Status(v)
		f.Status = &st
	}
	if v := c.Query("active"); v == "true" || v == "1" {
		f.ActiveOnly = true
	}
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
	}
	actor, _ := auth.CurrentPrincipal(c)
	list, err := h.svc.List(c.Request.Context(), actor, f, p)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	items := make([]ReservationResponse, 0, len(list))
	for _, r := range list {
		items = append(items, ToResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) Cancel(c *gin.Context) {
	h.transition(h.svc.Cancel)(c)
}

type transitionFunc func(ctx context.Context, actor auth.Principal, id int64) (*Reservation, error)

// 状態遷移系のハンドラは形が同じなのでまとめる
func (h *Handler) transition(fn transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		actor, _ := auth.CurrentPrincipal(c)
		r, err := fn(c.Request.Context(), actor, id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, ToResponse(r))
	}
}

// Sweep runs the expiry sweep immediately.
func (h *Handler) Sweep(c *gin.Context) {
	n, err := h.svc.ExpireDue(c.Request.Context())
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": n})
}

// ---------- helpers ----------

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid id"))
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
