// Package audit is the append-only record of user actions.
// Recording is fire-and-forget: callers never fail because the audit trail is unavailable.
package audit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

type Action string

const (
	ActionCreate      Action = "CREATE"
	ActionUpdate      Action = "UPDATE"
	ActionDelete      Action = "DELETE"
	ActionLogin       Action = "LOGIN"
	ActionLogout      Action = "LOGOUT"
	ActionBorrow      Action = "BORROW"
	ActionReturn      Action = "RETURN"
	ActionFailedLogin Action = "FAILED_LOGIN"
)

const maxUserAgent = 500

type Entry struct {
	Actor       string    `json:"actor"`
	Action      Action    `json:"action"`
	SubjectType string    `json:"subject_type"`
	SubjectID   string    `json:"subject_id"`
	SubjectRepr string    `json:"subject_repr"`
	Details     string    `json:"details"`
	SourceIP    string    `json:"source_ip"`
	UserAgent   string    `json:"user_agent"`
	Timestamp   time.Time `json:"timestamp"`
}

type Sink interface {
	Record(ctx context.Context, e Entry)
}

// NewEntry fills the request metadata captured by Middleware.
func NewEntry(ctx context.Context, actor string, action Action, subjectType, subjectID, repr, details string, now time.Time) Entry {
	m := MetaFrom(ctx)
	return Entry{
		Actor:       actor,
		Action:      action,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		SubjectRepr: repr,
		Details:     details,
		SourceIP:    m.SourceIP,
		UserAgent:   m.UserAgent,
		Timestamp:   now.UTC(),
	}
}

// ===== request metadata =====

type Meta struct {
	SourceIP  string
	UserAgent string
}

type metaKey struct{}

func WithMeta(ctx context.Context, m Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, m)
}

func MetaFrom(ctx context.Context) Meta {
	m, _ := ctx.Value(metaKey{}).(Meta)
	return m
}

// Middleware はクライアントIPとUser-Agentをリクエストコンテキストに積む
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		m := Meta{
			SourceIP:  clientIP(c.Request),
			UserAgent: truncate(c.Request.UserAgent(), maxUserAgent),
		}
		c.Request = c.Request.WithContext(WithMeta(c.Request.Context(), m))
		c.Next()
	}
}

// X-Forwarded-For があれば先頭を採用
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// truncate は n バイト以内に切る（マルチバイト文字の途中では切らない）
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ===== simple sinks =====

type discard struct{}

func (discard) Record(context.Context, Entry) {}

// Discard drops every entry.
var Discard Sink = discard{}

type LogSink struct{ logger *slog.Logger }

func NewLogSink(logger *slog.Logger) *LogSink { return &LogSink{logger: logger} }

func (s *LogSink) Record(ctx context.Context, e Entry) {
	s.logger.InfoContext(ctx, "audit",
		"actor", e.Actor,
		"action", string(e.Action),
		"subject_type", e.SubjectType,
		"subject_id", e.SubjectID,
		"subject_repr", e.SubjectRepr,
		"details", e.Details,
		"source_ip", e.SourceIP,
		"timestamp", e.Timestamp,
	)
}

type multi []Sink

func (m multi) Record(ctx context.Context, e Entry) {
	for _, s := range m {
		s.Record(ctx, e)
	}
}

// Multi fans an entry out to every sink.
func Multi(sinks ...Sink) Sink { return multi(sinks) }
