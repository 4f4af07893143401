package notify

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"LIBRIS-backend/internal/platform/apierr"
	"LIBRIS-backend/internal/platform/auth"
)

type Handler struct{ inbox Inbox }

func RegisterRoutes(r gin.IRoutes, inbox Inbox) {
	h := &Handler{inbox: inbox}
	r.GET("/me/notifications", h.List)
}

func (h *Handler) List(c *gin.Context) {
	p, ok := auth.CurrentPrincipal(c)
	if !ok {
		apierr.Abort(c, http.StatusUnauthorized, apierr.CodeUnauthenticated, "not logged in")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		limit = 20
	}
	events, err := h.inbox.Inbox(c.Request.Context(), p.UserID, limit)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	if events == nil {
		events = []Event{}
	}
	c.JSON(http.StatusOK, gin.H{"items": events})
}
