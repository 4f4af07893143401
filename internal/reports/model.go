package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// OverdueRow: 延滞一覧の1行
type OverdueRow struct {
	LoanULID    string
	UserID      string
	TitleID     int64
	Title       string
	ISBN        string
	BorrowedAt  time.Time
	DueAt       time.Time
	DaysOverdue int
	AccruedFine decimal.Decimal
}

type Encoding string

const (
	EncodingUTF8 Encoding = "utf8"
	// Excel (Windows) でそのまま開ける CP932
	EncodingShiftJIS Encoding = "sjis"
)

func ParseEncoding(s string) (Encoding, bool) {
	switch s {
	case "", "utf8", "utf-8", "UTF-8":
		return EncodingUTF8, true
	case "sjis", "shift_jis", "Shift_JIS", "cp932", "CP932":
		return EncodingShiftJIS, true
	}
	return "", false
}
