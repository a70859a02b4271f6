package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store handles SQLite persistence for clip metadata and alert history.
type Store struct {
	db *sql.DB
}

// ClipMetadata describes one recorded clip. Filename is the key.
type ClipMetadata struct {
	Filename    string
	CameraID    string
	Tags        []string
	Timestamp   time.Time
	Duration    time.Duration
	Uploaded    bool
	UploadError string
	UploadTime  time.Time
}

// AlertRecord is one dispatched alert, kept for history endpoints.
type AlertRecord struct {
	ID        string
	CameraID  string
	Kind      string
	Tags      []string
	Timestamp time.Time
}

// New opens (or creates) the database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for concurrent readers alongside the recording writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS clips (
			filename TEXT PRIMARY KEY,
			camera_id TEXT NOT NULL,
			tags TEXT,
			timestamp DATETIME NOT NULL,
			duration_seconds REAL NOT NULL,
			uploaded INTEGER DEFAULT 0,
			upload_error TEXT,
			upload_time DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			camera_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			tags TEXT,
			timestamp DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clips_camera_time ON clips(camera_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_time ON alerts(timestamp DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveClip inserts or replaces clip metadata.
func (s *Store) SaveClip(clip ClipMetadata) error {
	tags, err := json.Marshal(clip.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO clips
		 (filename, camera_id, tags, timestamp, duration_seconds, uploaded, upload_error, upload_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		clip.Filename, clip.CameraID, string(tags),
		clip.Timestamp.UTC().Format(time.RFC3339),
		clip.Duration.Seconds(),
		boolToInt(clip.Uploaded), clip.UploadError, nullableTime(clip.UploadTime),
	)
	if err != nil {
		return fmt.Errorf("failed to save clip: %w", err)
	}
	return nil
}

// LoadClips returns metadata for all clips in the supported container
// format (.mp4 only), newest first.
func (s *Store) LoadClips() ([]ClipMetadata, error) {
	rows, err := s.db.Query(
		`SELECT filename, camera_id, tags, timestamp, duration_seconds, uploaded, upload_error, upload_time
		 FROM clips ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clips: %w", err)
	}
	defer rows.Close()

	var clips []ClipMetadata
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		if !strings.HasSuffix(clip.Filename, ".mp4") {
			continue
		}
		clips = append(clips, clip)
	}
	return clips, rows.Err()
}

// GetClip returns one clip by filename.
func (s *Store) GetClip(filename string) (ClipMetadata, error) {
	row := s.db.QueryRow(
		`SELECT filename, camera_id, tags, timestamp, duration_seconds, uploaded, upload_error, upload_time
		 FROM clips WHERE filename = ?`, filename)
	return scanClip(row)
}

// SetUploadStatus records the outcome of an upload attempt.
func (s *Store) SetUploadStatus(filename string, uploaded bool, uploadErr string) error {
	_, err := s.db.Exec(
		`UPDATE clips SET uploaded = ?, upload_error = ?, upload_time = ? WHERE filename = ?`,
		boolToInt(uploaded), uploadErr, time.Now().UTC().Format(time.RFC3339), filename)
	if err != nil {
		return fmt.Errorf("failed to update upload status: %w", err)
	}
	return nil
}

// PendingUploads returns .mp4 clips that have not been uploaded yet,
// including previously failed attempts.
func (s *Store) PendingUploads() ([]ClipMetadata, error) {
	clips, err := s.LoadClips()
	if err != nil {
		return nil, err
	}
	var pending []ClipMetadata
	for _, clip := range clips {
		if !clip.Uploaded {
			pending = append(pending, clip)
		}
	}
	return pending, nil
}

// SaveAlert appends one alert record.
func (s *Store) SaveAlert(rec AlertRecord) error {
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO alerts (id, camera_id, kind, tags, timestamp) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.CameraID, rec.Kind, string(tags), rec.Timestamp.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *Store) RecentAlerts(limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, camera_id, kind, tags, timestamp FROM alerts ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []AlertRecord
	for rows.Next() {
		var rec AlertRecord
		var tags string
		var ts string
		if err := rows.Scan(&rec.ID, &rec.CameraID, &rec.Kind, &tags, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		json.Unmarshal([]byte(tags), &rec.Tags)
		rec.Timestamp, _ = time.Parse(time.RFC3339, ts)
		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClip(row rowScanner) (ClipMetadata, error) {
	var clip ClipMetadata
	var tags string
	var ts string
	var durationSeconds float64
	var uploaded int
	var uploadErr sql.NullString
	var uploadTime sql.NullString

	err := row.Scan(&clip.Filename, &clip.CameraID, &tags, &ts, &durationSeconds,
		&uploaded, &uploadErr, &uploadTime)
	if err != nil {
		return ClipMetadata{}, fmt.Errorf("failed to scan clip: %w", err)
	}

	json.Unmarshal([]byte(tags), &clip.Tags)
	clip.Timestamp, _ = time.Parse(time.RFC3339, ts)
	clip.Duration = time.Duration(durationSeconds * float64(time.Second))
	clip.Uploaded = uploaded != 0
	clip.UploadError = uploadErr.String
	if uploadTime.Valid {
		clip.UploadTime, _ = time.Parse(time.RFC3339, uploadTime.String)
	}
	return clip, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
