package reports

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

var overdueHeader = []string{
	"loan_ulid", "user_id", "title_id", "title", "isbn",
	"borrowed_at", "due_at", "days_overdue", "accrued_fine",
}

// WriteOverdueCSV writes rows to w. Shift-JIS output goes through an encoder
// and characters CP932 cannot represent make the write fail.
func WriteOverdueCSV(w io.Writer, enc Encoding, rows []OverdueRow) error {
	var tw *transform.Writer
	if enc == EncodingShiftJIS {
		tw = transform.NewWriter(w, japanese.ShiftJIS.NewEncoder())
		w = tw
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(overdueHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.LoanULID,
			r.UserID,
			strconv.FormatInt(r.TitleID, 10),
			r.Title,
			r.ISBN,
			r.BorrowedAt.UTC().Format(time.RFC3339),
			r.DueAt.UTC().Format(time.RFC3339),
			strconv.Itoa(r.DaysOverdue),
			r.AccruedFine.StringFixed(2),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if tw != nil {
		return tw.Close()
	}
	return nil
}
