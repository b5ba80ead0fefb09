// Package db persists emitted target reports to sqlite. One row per
// emission plus one row per reported target, grouped under a session so
// separate runs of the service can be told apart.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/presence.report/internal/monitoring"
	"github.com/banshee-data/presence.report/internal/track"
)

type DB struct {
	*sql.DB
}

// NewDB opens (and if necessary creates) the report database at path. The
// baseline schema is applied idempotently; versioned upgrades beyond it run
// through the migrations in migrate.go.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			started_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS reports (
			report_id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id        TEXT,
			emitted_at        TIMESTAMP,
			valid_frames      BIGINT,
			dropped_frames    BIGINT,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE TABLE IF NOT EXISTS report_targets (
			report_id         INTEGER,
			slot              INTEGER,
			x_mm              DOUBLE,
			y_mm              DOUBLE,
			distance_m        DOUBLE,
			bearing_deg       DOUBLE,
			speed             DOUBLE,
			gate              INTEGER,
			smoothed          INTEGER,
			FOREIGN KEY(report_id) REFERENCES reports(report_id)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// BeginSession registers a new run of the service and returns its ID.
func (db *DB) BeginSession() (string, error) {
	id := uuid.NewString()
	if _, err := db.Exec("INSERT INTO sessions (session_id) VALUES (?)", id); err != nil {
		return "", fmt.Errorf("failed to begin session: %w", err)
	}
	return id, nil
}

// RecordReport stores one emitted report and its targets.
func (db *DB) RecordReport(sessionID string, r track.Report) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT INTO reports (session_id, emitted_at, valid_frames, dropped_frames) VALUES (?, ?, ?, ?)",
		sessionID, r.Timestamp, r.ValidFrames, r.DroppedFrames,
	)
	if err != nil {
		return fmt.Errorf("failed to record report: %w", err)
	}
	reportID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, tr := range r.Targets {
		_, err := tx.Exec(
			`INSERT INTO report_targets
				(report_id, slot, x_mm, y_mm, distance_m, bearing_deg, speed, gate, smoothed)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			reportID, tr.Slot, tr.X, tr.Y, tr.DistanceM, tr.BearingDeg, tr.Speed, tr.Gate, tr.Smoothed,
		)
		if err != nil {
			return fmt.Errorf("failed to record target: %w", err)
		}
	}

	return tx.Commit()
}

// StoredTarget is one persisted per-target row joined with its report
// metadata.
type StoredTarget struct {
	EmittedAt  time.Time
	Slot       int
	X          float64
	Y          float64
	DistanceM  float64
	BearingDeg float64
	Speed      float64
	Gate       int
	Smoothed   bool
}

// RecentTargets returns the most recently recorded targets, newest first.
func (db *DB) RecentTargets(limit int) ([]StoredTarget, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT r.emitted_at, t.slot, t.x_mm, t.y_mm, t.distance_m, t.bearing_deg, t.speed, t.gate, t.smoothed
		FROM report_targets t
		JOIN reports r ON r.report_id = t.report_id
		ORDER BY r.report_id DESC, t.slot ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []StoredTarget
	for rows.Next() {
		var t StoredTarget
		if err := rows.Scan(&t.EmittedAt, &t.Slot, &t.X, &t.Y, &t.DistanceM, &t.BearingDeg, &t.Speed, &t.Gate, &t.Smoothed); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return targets, nil
}

// AttachAdminRoutes mounts the /debug endpoints: a live SQL console and an
// on-demand gzip backup download.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://reports.db", db.DB, &tailsql.DBOptions{
		Label: "Target Reports DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				monitoring.Logf("failed to remove backup file: %v", err)
			}
		}()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
