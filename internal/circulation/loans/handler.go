package loans

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"LIBRIS-backend/internal/platform/apierr"
	"LIBRIS-backend/internal/platform/auth"
)

// ReservationLister supplies the active holds for the "my books" view.
type ReservationLister interface {
	ActiveSummaries(ctx context.Context, userID string) ([]ReservationSummary, error)
}

type Handler struct {
	svc          *Service
	reservations ReservationLister
}

func RegisterRoutes(r gin.IRoutes, svc *Service, reservations ReservationLister) {
	h := &Handler{svc: svc, reservations: reservations}
	r.POST("/loans", h.Borrow)
	r.GET("/loans", h.List)
	// :key は loan_id でも ULID でも可
	r.GET("/loans/:key", h.Get)
	r.POST("/loans/:key/return", h.Return)
	r.GET("/me/loans", h.MyBooks)
}

// ---------- handlers ----------

// Borrow godoc
// @Summary  Borrow a title
// @Tags     loans
// @Accept   json
// @Produce  json
// @Param    body body BorrowRequest true "borrow request"
// @Success  201 {object} LoanResponse
// @Failure  409 {object} map[string]any
// @Failure  422 {object} map[string]any
// @Router   /loans [post]
func (h *Handler) Borrow(c *gin.Context) {
	var req BorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	actor, _ := auth.CurrentPrincipal(c)
	l, err := h.svc.Borrow(c.Request.Context(), actor, req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Header("Location", "/loans/"+l.ULID)
	c.JSON(http.StatusCreated, h.toResponse(l))
}

// Return godoc
// @Summary  Return a borrowed title
// @Tags     loans
// @Produce  json
// @Param    key path string true "loan id or ulid"
// @Success  200 {object} ReturnResponse
// @Router   /loans/{key}/return [post]
func (h *Handler) Return(c *gin.Context) {
	actor, _ := auth.CurrentPrincipal(c)
	res, err := h.svc.Return(c.Request.Context(), actor, c.Param("key"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	out := ReturnResponse{
		Loan:        h.toResponse(res.Loan),
		DaysOverdue: res.DaysOverdue,
	}
	if res.Fine != nil {
		id, amt := res.Fine.FineID, res.Fine.Amount
		out.FineID, out.FineAmount = &id, &amt
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Get(c *gin.Context) {
	actor, _ := auth.CurrentPrincipal(c)
	l, err := h.svc.Get(c.Request.Context(), actor, c.Param("key"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toResponse(l))
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
	if v := c.Query("overdue"); v == "true" || v == "1" {
		now := h.svc.Now()
		f.OverdueAt = &now
	}
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}
	actor, _ := auth.CurrentPrincipal(c)
	list, err := h.svc.List(c.Request.Context(), actor, f, p)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	items := make([]LoanResponse, 0, len(list))
	for _, l := range list {
		items = append(items, h.toResponse(l))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// MyBooks: 自分の貸出中 + 直近の返却済み + 有効な予約
func (h *Handler) MyBooks(c *gin.Context) {
	actor, _ := auth.CurrentPrincipal(c)
	uid := actor.UserID
	active, returned := StatusActive, StatusReturned
	list, err := h.svc.List(c.Request.Context(), actor, Filter{UserID: &uid, Status: &active}, Page{Limit: 200, Order: "asc"})
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	recent, err := h.svc.List(c.Request.Context(), actor, Filter{UserID: &uid, Status: &returned}, Page{Limit: RecentReturnedLimit, Order: "desc"})
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	out := MyBooksResponse{
		Loans:        make([]LoanResponse, 0, len(list)),
		Returned:     make([]LoanResponse, 0, len(recent)),
		Reservations: []ReservationSummary{},
	}
	for _, l := range list {
		out.Loans = append(out.Loans, h.toResponse(l))
	}
	for _, l := range recent {
		out.Returned = append(out.Returned, h.toResponse(l))
	}
	if h.reservations != nil {
		rs, err := h.reservations.ActiveSummaries(c.Request.Context(), actor.UserID)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		out.Reservations = append(out.Reservations, rs...)
	}
	c.JSON(http.StatusOK, out)
}

// ---------- helpers ----------

func (h *Handler) toResponse(l *Loan) LoanResponse {
	return ToResponse(l, h.svc.Now(), h.svc.FinePerDay())
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
