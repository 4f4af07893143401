package fines

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"LIBRIS-backend/internal/platform/apierr"
	"LIBRIS-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/fines", h.List)
	r.GET("/fines/balance", h.Balance)
	r.GET("/fines/:id", h.Get)
	r.POST("/fines/:id/pay", h.Pay)
}

// RegisterStaffRoutes: RequireBookManager 配下
func RegisterStaffRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/loans/:key/fine", h.Create)
	r.POST("/fines/:id/waive", h.Waive)
}

func (h *Handler) Create(c *gin.Context) {
	actor, _ := auth.CurrentPrincipal(c)
	f, err := h.svc.Create(c.Request.Context(), actor, c.Param("key"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Header("Location", "/fines/"+strconv.FormatInt(f.ID, 10))
	c.JSON(http.StatusCreated, ToResponse(f))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	actor, _ := auth.CurrentPrincipal(c)
	f, err := h.svc.Get(c.Request.Context(), actor, id)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ToResponse(f))
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{}
	if v := c.Query("user_id"); v != "" {
		f.UserID = &v
	}
	if v := c.Query("loan_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.LoanID = &id
		}
	}
	if v := c.Query("status"); v != "" {
		st := Status(v)
		f.Status = &st
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
	items := make([]FineResponse, 0, len(list))
	for _, fi := range list {
		items = append(items, ToResponse(fi))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) Balance(c *gin.Context) {
	actor, _ := auth.CurrentPrincipal(c)
	userID := c.DefaultQuery("user_id", actor.UserID)
	total, err := h.svc.Balance(c.Request.Context(), actor, userID)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, BalanceResponse{UserID: userID, Pending: total})
}

func (h *Handler) Pay(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req PayRequest
	// body 無しは全額払い
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
			return
		}
	}
	actor, _ := auth.CurrentPrincipal(c)
	f, err := h.svc.Pay(c.Request.Context(), actor, id, req.Amount)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ToResponse(f))
}

func (h *Handler) Waive(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req WaiveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
			return
		}
	}
	actor, _ := auth.CurrentPrincipal(c)
	f, err := h.svc.Waive(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ToResponse(f))
}

// ---------- helpers ----------

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid fine id"))
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
