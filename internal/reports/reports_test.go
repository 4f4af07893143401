package reports_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"LIBRIS-backend/internal/circulation/circulationtest"
	"LIBRIS-backend/internal/circulation/policy"
	"LIBRIS-backend/internal/reports"
)

const day = 24 * time.Hour

func overdueEnv(t *testing.T) (*circulationtest.Env, *reports.Service) {
	t.Helper()
	env := circulationtest.NewEnv(policy.Default())
	alice := env.AddStudent("alice")
	late := env.AddTitle("吾輩は猫である", 1)
	fresh := env.AddTitle("Fresh", 1)

	_, err := env.Borrow(alice, late.ID)
	require.NoError(t, err)
	env.Clock.Advance(10 * day)
	_, err = env.Borrow(alice, fresh.ID)
	require.NoError(t, err)
	env.Clock.Advance(8 * day)

	return env, reports.NewService(env.Loans, env.Titles, nil)
}

func TestOverdueRows(t *testing.T) {
	_, svc := overdueEnv(t)

	rows, err := svc.Overdue(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "吾輩は猫である", rows[0].Title)
	assert.Equal(t, "alice", rows[0].UserID)
	assert.Equal(t, 4, rows[0].DaysOverdue)
	assert.Equal(t, "2.00", rows[0].AccruedFine.StringFixed(2))
}

func TestWriteOverdueCSVShiftJIS(t *testing.T) {
	_, svc := overdueEnv(t)
	rows, err := svc.Overdue(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, reports.WriteOverdueCSV(&buf, reports.EncodingShiftJIS, rows))
	assert.NotContains(t, buf.String(), "吾輩", "raw bytes must not be UTF-8")

	decoded, err := io.ReadAll(transform.NewReader(&buf, japanese.ShiftJIS.NewDecoder()))
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(decoded)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "loan_ulid", records[0][0])
	assert.Equal(t, "吾輩は猫である", records[1][3])
	assert.Equal(t, "4", records[1][7])
}

func TestWriteOverdueCSVRejectsUnencodable(t *testing.T) {
	rows := []reports.OverdueRow{{LoanULID: "x", Title: "Emoji 📚"}}
	var buf bytes.Buffer
	assert.Error(t, reports.WriteOverdueCSV(&buf, reports.EncodingShiftJIS, rows))
	buf.Reset()
	assert.NoError(t, reports.WriteOverdueCSV(&buf, reports.EncodingUTF8, rows))
}

func TestOverdueCSVHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, svc := overdueEnv(t)
	r := gin.New()
	reports.RegisterRoutes(r, svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports/overdue.csv", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "overdue.csv")
	assert.Equal(t, 2, strings.Count(w.Body.String(), "\n"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports/overdue.csv?encoding=sjis", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=Shift_JIS", w.Header().Get("Content-Type"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports/overdue.csv?encoding=latin1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
