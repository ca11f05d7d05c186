package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ytget/yt-search-downloader/internal/model"
)

// Record is one finished download attempt
type Record struct {
	TaskID     string
	VideoID    string
	Title      string
	Uploader   string
	Status     model.TaskStatus
	Attempts   int
	OutputPath string
	Error      string
	FinishedAt time.Time
}

// Store wraps the history database
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database under dataDir
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	dbFile := filepath.Join(dataDir, "history.db")
	db, err := sql.Open("sqlite", dbFile)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// WAL and a busy timeout keep concurrent readers from failing.
	if _, err := db.Exec(`
		PRAGMA busy_timeout = 5000;
		PRAGMA journal_mode = WAL;
	`); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.initTable(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		video_id TEXT NOT NULL,
		title TEXT,
		uploader TEXT,
		status TEXT NOT NULL,
		attempts INTEGER,
		output_path TEXT,
		error TEXT,
		finished_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_video_id ON downloads(video_id);
	CREATE INDEX IF NOT EXISTS idx_downloads_finished_at ON downloads(finished_at);
	`
	_, err := s.db.Exec(query)
	return err
}

// Add inserts one record for a task that reached a terminal state
func (s *Store) Add(task *model.DownloadTask) error {
	if !task.Status.IsTerminal() {
		return fmt.Errorf("task %s is not finished: %s", task.ID, task.Status)
	}
	query := `INSERT INTO downloads (task_id, video_id, title, uploader, status, attempts, output_path, error, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query,
		task.ID, task.Video.ID, task.Video.Title, task.Video.Uploader,
		task.Status.String(), task.Attempts, task.OutputPath, task.LastError,
		task.FinishedAt.UTC())
	return err
}

// AddBatch inserts records for every terminal task in one transaction
func (s *Store) AddBatch(tasks []*model.DownloadTask) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO downloads (task_id, video_id, title, uploader, status, attempts, output_path, error, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, task := range tasks {
		if !task.Status.IsTerminal() {
			continue
		}
		if _, err := stmt.Exec(
			task.ID, task.Video.ID, task.Video.Title, task.Video.Uploader,
			task.Status.String(), task.Attempts, task.OutputPath, task.LastError,
			task.FinishedAt.UTC()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Recent returns the latest records, newest first
func (s *Store) Recent(limit int) ([]Record, error) {
	query := `SELECT task_id, video_id, title, uploader, status, attempts, output_path, error, finished_at
		FROM downloads ORDER BY finished_at DESC, id DESC LIMIT ?`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// WasDownloaded reports whether a completed record exists for the video
func (s *Store) WasDownloaded(videoID string) (bool, error) {
	query := `SELECT 1 FROM downloads WHERE video_id = ? AND status = ? LIMIT 1`
	var one int
	err := s.db.QueryRow(query, videoID, model.TaskStatusCompleted.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CountByStatus returns record counts keyed by terminal status
func (s *Store) CountByStatus() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM downloads GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(&rec.TaskID, &rec.VideoID, &rec.Title, &rec.Uploader,
			&status, &rec.Attempts, &rec.OutputPath, &rec.Error, &rec.FinishedAt); err != nil {
			return nil, err
		}
		rec.Status = model.TaskStatus(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}
