// Package database persists sessions and their records in SQLite.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"stresscam/internal/emotion"
	"stresscam/internal/monitor"
	"stresscam/internal/sessionlog"
)

// ErrSessionNotFound is returned when a session id is unknown
var ErrSessionNotFound = errors.New("session not found")

// Store handles SQLite database operations
type Store struct {
	db *sql.DB
}

// SessionRecord is one stored session
type SessionRecord struct {
	ID         string
	StartedAt  time.Time
	EndedAt    *time.Time
	ExportPath string
	Samples    int
	AvgStress  float64
	MaxStress  float64
}

// Open opens (creating if needed) the database at path and runs migrations
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Pragmas are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			export_path TEXT DEFAULT '',
			samples INTEGER DEFAULT 0,
			avg_stress REAL DEFAULT 0,
			max_stress REAL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS session_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			emotion TEXT NOT NULL,
			confidence REAL,
			age REAL,
			stress_level REAL,
			stress_status TEXT,
			angry REAL,
			disgust REAL,
			fear REAL,
			happy REAL,
			sad REAL,
			surprise REAL,
			neutral REAL,
			valence REAL,
			arousal REAL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_session ON session_records(session_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// BeginSession registers a new session
func (s *Store) BeginSession(id string, startedAt time.Time) error {
	_, err := s.db.Exec(`INSERT INTO sessions (id, started_at) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING`, id, startedAt)
	if err != nil {
		return fmt.Errorf("failed to begin session: %w", err)
	}
	return nil
}

// SaveRecord appends a record to a session
func (s *Store) SaveRecord(sessionID string, r sessionlog.Record) error {
	var age sql.NullFloat64
	if r.Age != nil {
		age = sql.NullFloat64{Float64: *r.Age, Valid: true}
	}
	d := r.Emotions

	_, err := s.db.Exec(`INSERT INTO session_records
		(session_id, timestamp, emotion, confidence, age, stress_level, stress_status,
		 angry, disgust, fear, happy, sad, surprise, neutral, valence, arousal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, r.Timestamp, string(r.Emotion), r.Confidence, age, r.StressLevel, r.StressStatus,
		d.Angry, d.Disgust, d.Fear, d.Happy, d.Sad, d.Surprise, d.Neutral, r.Valence, r.Arousal)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// EndSession closes a session and stores its aggregates
func (s *Store) EndSession(id string, endedAt time.Time, exportPath string) error {
	result, err := s.db.Exec(`UPDATE sessions SET
			ended_at = ?,
			export_path = ?,
			samples = (SELECT COUNT(*) FROM session_records WHERE session_id = ?),
			avg_stress = (SELECT COALESCE(AVG(stress_level), 0) FROM session_records WHERE session_id = ?),
			max_stress = (SELECT COALESCE(MAX(stress_level), 0) FROM session_records WHERE session_id = ?)
		WHERE id = ?`,
		endedAt, exportPath, id, id, id, id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

const sessionColumns = `s.id, s.started_at, s.ended_at, s.export_path,
	CASE WHEN s.ended_at IS NULL THEN (SELECT COUNT(*) FROM session_records r WHERE r.session_id = s.id) ELSE s.samples END,
	CASE WHEN s.ended_at IS NULL THEN (SELECT COALESCE(AVG(stress_level), 0) FROM session_records r WHERE r.session_id = s.id) ELSE s.avg_stress END,
	CASE WHEN s.ended_at IS NULL THEN (SELECT COALESCE(MAX(stress_level), 0) FROM session_records r WHERE r.session_id = s.id) ELSE s.max_stress END`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*SessionRecord, error) {
	var rec SessionRecord
	var ended sql.NullTime
	if err := row.Scan(&rec.ID, &rec.StartedAt, &ended, &rec.ExportPath,
		&rec.Samples, &rec.AvgStress, &rec.MaxStress); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		rec.EndedAt = &t
	}
	return &rec, nil
}

// GetSession retrieves a session by id
func (s *Store) GetSession(id string) (*SessionRecord, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, id)
	rec, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return rec, nil
}

// ListSessions returns sessions newest first. A limit of 0 returns all.
func (s *Store) ListSessions(limit int) ([]*SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions s ORDER BY s.started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

// ListRecords returns a session's records in insertion order
func (s *Store) ListRecords(sessionID string) ([]sessionlog.Record, error) {
	rows, err := s.db.Query(`SELECT timestamp, emotion, confidence, age, stress_level, stress_status,
		angry, disgust, fear, happy, sad, surprise, neutral, valence, arousal
		FROM session_records WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []sessionlog.Record
	for rows.Next() {
		var r sessionlog.Record
		var label string
		var age sql.NullFloat64
		d := &r.Emotions
		if err := rows.Scan(&r.Timestamp, &label, &r.Confidence, &age, &r.StressLevel, &r.StressStatus,
			&d.Angry, &d.Disgust, &d.Fear, &d.Happy, &d.Sad, &d.Surprise, &d.Neutral,
			&r.Valence, &r.Arousal); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Emotion = emotion.Label(label)
		if age.Valid {
			v := age.Float64
			r.Age = &v
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteSession removes a session and its records
func (s *Store) DeleteSession(id string) error {
	result, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// RecordSink stores each face update of one session. It implements
// monitor.UpdateHandler and is meant to run behind EventBus.SubscribeAsync.
type RecordSink struct {
	store     *Store
	sessionID string
	logger    *logrus.Entry
}

// NewRecordSink begins the session and returns a sink for its updates
func NewRecordSink(store *Store, sessionID string, startedAt time.Time, logger *logrus.Logger) (*RecordSink, error) {
	if err := store.BeginSession(sessionID, startedAt); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RecordSink{
		store:     store,
		sessionID: sessionID,
		logger:    logger.WithFields(logrus.Fields{"component": "database", "session_id": sessionID}),
	}, nil
}

// OnUpdate persists updates that carry a face
func (s *RecordSink) OnUpdate(update *monitor.Update) {
	if !update.FaceDetected {
		return
	}
	if err := s.store.SaveRecord(s.sessionID, RecordFromUpdate(update)); err != nil {
		s.logger.WithError(err).Warn("Failed to persist record")
	}
}

// Finish closes the session
func (s *RecordSink) Finish(endedAt time.Time, exportPath string) error {
	return s.store.EndSession(s.sessionID, endedAt, exportPath)
}

// RecordFromUpdate converts a face update to its session log record
func RecordFromUpdate(u *monitor.Update) sessionlog.Record {
	return sessionlog.Record{
		Timestamp:    u.Timestamp,
		Emotion:      u.Dominant,
		Confidence:   u.Confidence,
		Age:          u.Age,
		StressLevel:  u.StressLevel,
		StressStatus: u.StressStatus,
		Emotions:     u.Emotions,
		Valence:      u.Valence,
		Arousal:      u.Arousal,
	}
}
