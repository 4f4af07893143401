package reports

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"LIBRIS-backend/internal/platform/apierr"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/reports/overdue.csv", h.OverdueCSV)
}

// OverdueCSV godoc
// @Summary  Export overdue loans as CSV
// @Tags     reports
// @Produce  text/csv
// @Param    encoding query string false "utf8 (default) or sjis"
// @Success  200 {string} string "csv"
// @Router   /reports/overdue.csv [get]
func (h *Handler) OverdueCSV(c *gin.Context) {
	enc, ok := ParseEncoding(c.Query("encoding"))
	if !ok {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "encoding must be utf8 or sjis"))
		return
	}
	rows, err := h.svc.Overdue(c.Request.Context())
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	// 途中で失敗したら JSON エラーを返せるよう一旦バッファに書く
	var buf bytes.Buffer
	if err := WriteOverdueCSV(&buf, enc, rows); err != nil {
		apierr.Respond(c, apierr.ErrInternal("failed to encode report: "+err.Error()))
		return
	}

	charset := "utf-8"
	if enc == EncodingShiftJIS {
		charset = "Shift_JIS"
	}
	c.Header("Content-Disposition", `attachment; filename="overdue.csv"`)
	c.Data(http.StatusOK, fmt.Sprintf("text/csv; charset=%s", charset), buf.Bytes())
}
