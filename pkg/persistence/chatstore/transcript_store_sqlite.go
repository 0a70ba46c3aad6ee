package chatstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/helpdesk/pkg/session"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteTranscriptStore struct {
	db *sql.DB
}

var _ TranscriptStore = &SQLiteTranscriptStore{}

func NewSQLiteTranscriptStore(dsn string) (*SQLiteTranscriptStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite transcript store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteTranscriptStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SQLiteTranscriptDSNForFile builds a DSN for a journal file.
func SQLiteTranscriptDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite transcript store: empty path")
	}
	// WAL for concurrent readers + writer. busy_timeout to avoid transient SQLITE_BUSY.
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func (s *SQLiteTranscriptStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteTranscriptStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite transcript store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcript_sessions (
		  session_id TEXT PRIMARY KEY,
		  base_url TEXT NOT NULL DEFAULT '',
		  started_at_ms INTEGER NOT NULL,
		  last_activity_ms INTEGER NOT NULL,
		  connectivity TEXT NOT NULL DEFAULT '',
		  last_error TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS transcript_messages (
		  session_id TEXT NOT NULL,
		  message_id TEXT NOT NULL,
		  role TEXT NOT NULL,
		  content TEXT NOT NULL,
		  created_at_ms INTEGER NOT NULL,
		  processing_seconds REAL,
		  context_snippet TEXT NOT NULL DEFAULT '',
		  PRIMARY KEY (session_id, message_id)
		);`,
		`CREATE INDEX IF NOT EXISTS transcript_sessions_by_activity
		  ON transcript_sessions(last_activity_ms);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "sqlite transcript store: migrate")
		}
	}
	return nil
}

func (s *SQLiteTranscriptStore) AppendMessage(ctx context.Context, sessionID string, msg session.Message) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite transcript store: db is nil")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("sqlite transcript store: sessionID is empty")
	}
	if msg.ID == "" {
		return errors.New("sqlite transcript store: message id is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var processing sql.NullFloat64
	if msg.ProcessingSeconds != nil {
		processing = sql.NullFloat64{Float64: *msg.ProcessingSeconds, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcript_messages (
			session_id, message_id, role, content, created_at_ms, processing_seconds, context_snippet
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, message_id) DO NOTHING
	`, sessionID, msg.ID, string(msg.Role), msg.Content, msg.CreatedAt.UnixMilli(), processing, msg.ContextSnippet)
	if err != nil {
		return errors.Wrap(err, "sqlite transcript store: append message")
	}
	return nil
}

func (s *SQLiteTranscriptStore) UpsertSession(ctx context.Context, record SessionRecord) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite transcript store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	record = normalizeSessionRecord(record, time.Now().UnixMilli())
	if record.SessionID == "" {
		return errors.New("sqlite transcript store: sessionID is empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcript_sessions (
			session_id, base_url, started_at_ms, last_activity_ms, connectivity, last_error
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			base_url = CASE
				WHEN excluded.base_url <> '' THEN excluded.base_url
				ELSE transcript_sessions.base_url
			END,
			started_at_ms = CASE
				WHEN excluded.started_at_ms < transcript_sessions.started_at_ms THEN excluded.started_at_ms
				ELSE transcript_sessions.started_at_ms
			END,
			last_activity_ms = CASE
				WHEN excluded.last_activity_ms > transcript_sessions.last_activity_ms THEN excluded.last_activity_ms
				ELSE transcript_sessions.last_activity_ms
			END,
			connectivity = CASE
				WHEN excluded.connectivity <> '' THEN excluded.connectivity
				ELSE transcript_sessions.connectivity
			END,
			last_error = excluded.last_error
	`, record.SessionID, record.BaseURL, record.StartedAtMs, record.LastActivityMs, record.Connectivity, record.LastError)
	if err != nil {
		return errors.Wrap(err, "sqlite transcript store: upsert session")
	}
	return nil
}

const selectSessionColumns = `
	SELECT s.session_id, s.base_url, s.started_at_ms, s.last_activity_ms, s.connectivity, s.last_error,
	       (SELECT COUNT(*) FROM transcript_messages m WHERE m.session_id = s.session_id)
	FROM transcript_sessions s`

func scanSession(row interface{ Scan(...any) error }) (SessionRecord, error) {
	var r SessionRecord
	err := row.Scan(&r.SessionID, &r.BaseURL, &r.StartedAtMs, &r.LastActivityMs, &r.Connectivity, &r.LastError, &r.MessageCount)
	return r, err
}

func (s *SQLiteTranscriptStore) GetSession(ctx context.Context, sessionID string) (SessionRecord, bool, error) {
	if s == nil || s.db == nil {
		return SessionRecord{}, false, errors.New("sqlite transcript store: db is nil")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionRecord{}, false, errors.New("sqlite transcript store: sessionID is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r, err := scanSession(s.db.QueryRowContext(ctx, selectSessionColumns+` WHERE s.session_id = ?`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, errors.Wrap(err, "sqlite transcript store: get session")
	}
	return r, true, nil
}

func (s *SQLiteTranscriptStore) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite transcript store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectSessionColumns+`
		ORDER BY s.last_activity_ms DESC, s.session_id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite transcript store: list sessions")
	}
	defer func() { _ = rows.Close() }()

	var ret []SessionRecord
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sqlite transcript store: scan session")
		}
		ret = append(ret, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite transcript store: list sessions rows")
	}
	return ret, nil
}

func (s *SQLiteTranscriptStore) ListMessages(ctx context.Context, sessionID string) ([]session.Message, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite transcript store: db is nil")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("sqlite transcript store: sessionID is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, role, content, created_at_ms, processing_seconds, context_snippet
		FROM transcript_messages
		WHERE session_id = ?
		ORDER BY message_id ASC
	`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite transcript store: list messages")
	}
	defer func() { _ = rows.Close() }()

	var ret []session.Message
	for rows.Next() {
		var (
			msg        session.Message
			role       string
			createdAt  int64
			processing sql.NullFloat64
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &createdAt, &processing, &msg.ContextSnippet); err != nil {
			return nil, errors.Wrap(err, "sqlite transcript store: scan message")
		}
		msg.Role = session.Role(role)
		msg.CreatedAt = time.UnixMilli(createdAt)
		if processing.Valid {
			v := processing.Float64
			msg.ProcessingSeconds = &v
		}
		ret = append(ret, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite transcript store: list messages rows")
	}
	return ret, nil
}

func normalizeSessionRecord(r SessionRecord, now int64) SessionRecord {
	r.SessionID = strings.TrimSpace(r.SessionID)
	if r.StartedAtMs <= 0 {
		r.StartedAtMs = now
	}
	if r.LastActivityMs <= 0 {
		r.LastActivityMs = r.StartedAtMs
	}
	return r
}
