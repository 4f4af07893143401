package audit

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"
)

const writeTimeout = 3 * time.Second

// Store は audit_logs テーブルへ非同期に INSERT する
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) Record(ctx context.Context, e Entry) {
	// リクエスト終了で書き込みが切られないよう cancel は引き継がない
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		if err := s.insert(ctx, e); err != nil {
			s.logger.WarnContext(ctx, "failed to write audit log", "action", string(e.Action), "err", err)
		}
	}()
}

func (s *Store) insert(ctx context.Context, e Entry) error {
	const q = `
	INSERT INTO audit_logs
	(actor_id, action, subject_type, subject_id, subject_repr, details, source_ip, user_agent, recorded_at)
	VALUES
	(?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		nullIfEmpty(e.Actor),
		string(e.Action),
		e.SubjectType,
		nullIfEmpty(e.SubjectID),
		e.SubjectRepr,
		e.Details,
		nullIfEmpty(e.SourceIP),
		e.UserAgent,
		e.Timestamp,
	)
	return err
}

// Close waits for in-flight writes.
func (s *Store) Close() { s.wg.Wait() }

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
