package titles

import (
	"fmt"
	"strings"
	"time"

	"LIBRIS-backend/internal/platform/apierr"
)

type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusBorrowed    Status = "BORROWED"
	StatusReserved    Status = "RESERVED"
	StatusMaintenance Status = "MAINTENANCE"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBorrowed, StatusReserved, StatusMaintenance:
		return true
	}
	return false
}

// Title is one catalog entry. The copy counters are only changed through
// Decrement / Increment / AdjustCopies so 0 <= available <= total always holds.
type Title struct {
	ID              int64
	ISBN            string
	Title           string
	Author          string
	Publisher       string
	PublicationYear int
	Category        string
	Language        string
	Location        string
	CreatedAt       time.Time
	UpdatedAt       time.Time

	totalCopies     int
	availableCopies int
	status          Status
}

// New: 新規登録時は全冊貸出可能
func New(isbn, title, author string, copies int) (*Title, error) {
	norm, err := NormalizeISBN(isbn)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if title == "" {
		return nil, apierr.ErrInvalid("title is required")
	}
	if author == "" {
		return nil, apierr.ErrInvalid("author is required")
	}
	if copies < 0 {
		return nil, apierr.ErrInvalid("total_copies must be >= 0")
	}
	t := &Title{
		ISBN:            norm,
		Title:           title,
		Author:          author,
		Language:        "English",
		totalCopies:     copies,
		availableCopies: copies,
	}
	t.recompute()
	return t, nil
}

// Restore rebuilds a title from storage. Counters outside 0 <= available <= total are rejected.
func Restore(meta Title, total, available int, status Status) (*Title, error) {
	if total < 0 || available < 0 || available > total {
		return nil, fmt.Errorf("title %d: corrupt counters total=%d available=%d", meta.ID, total, available)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("title %d: unknown status %q", meta.ID, status)
	}
	t := meta
	t.totalCopies = total
	t.availableCopies = available
	t.status = status
	return &t, nil
}

func (t *Title) Total() int     { return t.totalCopies }
func (t *Title) Available() int { return t.availableCopies }
func (t *Title) Status() Status { return t.status }

// IsAvailable: メンテ中は在庫があっても貸し出さない
func (t *Title) IsAvailable() bool {
	return t.status != StatusMaintenance && t.availableCopies > 0
}

func (t *Title) Decrement() error {
	if t.availableCopies == 0 {
		return ErrOutOfStock
	}
	t.availableCopies--
	t.recompute()
	return nil
}

func (t *Title) Increment() error {
	if t.availableCopies == t.totalCopies {
		return ErrOverCapacity
	}
	t.availableCopies++
	t.recompute()
	return nil
}

// AdjustCopies adds (or withdraws) physical copies. Total and available move together.
func (t *Title) AdjustCopies(delta int) error {
	if delta == 0 {
		return apierr.ErrInvalid("delta must not be 0")
	}
	if t.availableCopies+delta < 0 {
		return apierr.ErrInvalid(fmt.Sprintf("cannot withdraw %d copies: only %d on the shelf", -delta, t.availableCopies))
	}
	t.totalCopies += delta
	t.availableCopies += delta
	t.recompute()
	return nil
}

// SetMaintenance: 解除時はカウンタから状態を再計算
func (t *Title) SetMaintenance(on bool) {
	if on {
		t.status = StatusMaintenance
		return
	}
	t.status = StatusAvailable
	t.recompute()
}

// MAINTENANCE は明示的に解除されるまで維持
func (t *Title) recompute() {
	if t.status == StatusMaintenance {
		return
	}
	if t.availableCopies > 0 {
		t.status = StatusAvailable
	} else {
		t.status = StatusBorrowed
	}
}

// Repr is the human-readable form used in audit entries.
func (t *Title) Repr() string { return t.Title + " by " + t.Author }
