package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/jitter.report/internal/vr"
)

type DB struct {
	*sql.DB
}

// OpenDB opens the database without touching the schema. Used by the
// migrate CLI, which wants migrations to be the only schema writer.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &DB{sqlDB}, nil
}

// NewDB opens the database and ensures the base schema exists. The same
// statements live in migrations 000001+ so that databases created either
// way converge.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = sqlDB.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id            TEXT PRIMARY KEY,
			note              TEXT,
			window_size       BIGINT,
			started_at        TIMESTAMP,
			stopped_at        TIMESTAMP,
			samples           BIGINT DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS pose_samples (
			run_id            TEXT,
			serial            TEXT,
			class             TEXT,
			t                 DOUBLE,
			x                 DOUBLE,
			y                 DOUBLE,
			z                 DOUBLE,
			pitch             DOUBLE,
			yaw               DOUBLE,
			roll              DOUBLE,
			sigma_x           DOUBLE,
			sigma_y           DOUBLE,
			sigma_z           DOUBLE,
			sigma_pitch       DOUBLE,
			sigma_yaw         DOUBLE,
			sigma_roll        DOUBLE,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
		CREATE INDEX IF NOT EXISTS pose_samples_run_serial_idx ON pose_samples(run_id, serial);
		CREATE INDEX IF NOT EXISTS pose_samples_run_time_idx ON pose_samples(run_id, t);
		CREATE TABLE IF NOT EXISTS station_events (
			serial            TEXT,
			state             TEXT,
			drift_mm          DOUBLE,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{sqlDB}, nil
}

// InsertRun records a newly started run.
func (db *DB) InsertRun(run vr.Run) error {
	_, err := db.Exec(
		`INSERT INTO runs (run_id, note, window_size, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Note, run.WindowSize, run.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// CloseRun stamps a run's end time and final sample count.
func (db *DB) CloseRun(run vr.Run) error {
	if run.StoppedAt == nil {
		return fmt.Errorf("run %s has no stop time", run.ID)
	}
	res, err := db.Exec(
		`UPDATE runs SET stopped_at = ?, samples = ? WHERE run_id = ?`,
		run.StoppedAt.UTC(), run.Samples, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to close run %s: %w", run.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

func scanRun(scan func(dest ...any) error) (vr.Run, error) {
	var (
		run       vr.Run
		note      sql.NullString
		stoppedAt sql.NullTime
	)
	if err := scan(&run.ID, &note, &run.WindowSize, &run.StartedAt, &stoppedAt, &run.Samples); err != nil {
		return vr.Run{}, err
	}
	run.Note = note.String
	if stoppedAt.Valid {
		t := stoppedAt.Time
		run.StoppedAt = &t
	}
	return run, nil
}

const runColumns = `run_id, note, window_size, started_at, stopped_at, samples`

// GetRun looks a run up by ID.
func (db *DB) GetRun(id string) (vr.Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id)
	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return vr.Run{}, fmt.Errorf("run %s not found", id)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]vr.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []vr.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// InsertSamples writes a batch of recorded samples in one transaction.
func (db *DB) InsertSamples(samples []vr.RecordedSample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO pose_samples (
		run_id, serial, class, t,
		x, y, z, pitch, yaw, roll,
		sigma_x, sigma_y, sigma_z, sigma_pitch, sigma_yaw, sigma_roll
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range samples {
		_, err := stmt.Exec(
			s.RunID, s.Serial, string(s.Class), float64(s.Time.UnixNano())/1e9,
			s.X, s.Y, s.Z, s.Pitch, s.Yaw, s.Roll,
			s.SigmaX, s.SigmaY, s.SigmaZ, s.SigmaPitch, s.SigmaYaw, s.SigmaRoll,
		)
		if err != nil {
			return fmt.Errorf("failed to insert sample for %s: %w", s.Serial, err)
		}
	}
	return tx.Commit()
}

// SamplesForRun returns a run's samples ordered by time, oldest first.
// serial narrows to one device when non-empty.
func (db *DB) SamplesForRun(runID, serial string) ([]vr.RecordedSample, error) {
	query := `SELECT run_id, serial, class, t,
		x, y, z, pitch, yaw, roll,
		sigma_x, sigma_y, sigma_z, sigma_pitch, sigma_yaw, sigma_roll
		FROM pose_samples WHERE run_id = ?`
	args := []any{runID}
	if serial != "" {
		query += ` AND serial = ?`
		args = append(args, serial)
	}
	query += ` ORDER BY t ASC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []vr.RecordedSample
	for rows.Next() {
		var (
			s     vr.RecordedSample
			class string
			t     float64
		)
		if err := rows.Scan(
			&s.RunID, &s.Serial, &class, &t,
			&s.X, &s.Y, &s.Z, &s.Pitch, &s.Yaw, &s.Roll,
			&s.SigmaX, &s.SigmaY, &s.SigmaZ, &s.SigmaPitch, &s.SigmaYaw, &s.SigmaRoll,
		); err != nil {
			return nil, err
		}
		s.Class = vr.DeviceClass(class)
		s.Time = time.Unix(0, int64(t*1e9)).UTC()
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// DeviceRunSummary aggregates one device's recorded rows within a run.
// Sigma columns are averaged over the run; the per-row values are rolling
// window snapshots, so the average describes typical jitter over the run
// rather than the final window alone.
type DeviceRunSummary struct {
	Serial     string  `json:"serial"`
	Class      string  `json:"class"`
	Samples    int64   `json:"samples"`
	AvgSigmaX  float64 `json:"avg_sigma_x"`
	AvgSigmaY  float64 `json:"avg_sigma_y"`
	AvgSigmaZ  float64 `json:"avg_sigma_z"`
	MaxSigmaX  float64 `json:"max_sigma_x"`
	MaxSigmaY  float64 `json:"max_sigma_y"`
	MaxSigmaZ  float64 `json:"max_sigma_z"`
	FirstStamp float64 `json:"first_stamp"`
	LastStamp  float64 `json:"last_stamp"`
}

// RunSummaries aggregates per device over a run's samples.
func (db *DB) RunSummaries(runID string) ([]DeviceRunSummary, error) {
	rows, err := db.Query(`SELECT serial, class, COUNT(*),
		AVG(sigma_x), AVG(sigma_y), AVG(sigma_z),
		MAX(sigma_x), MAX(sigma_y), MAX(sigma_z),
		MIN(t), MAX(t)
		FROM pose_samples WHERE run_id = ?
		GROUP BY serial, class ORDER BY serial`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []DeviceRunSummary
	for rows.Next() {
		var s DeviceRunSummary
		if err := rows.Scan(
			&s.Serial, &s.Class, &s.Samples,
			&s.AvgSigmaX, &s.AvgSigmaY, &s.AvgSigmaZ,
			&s.MaxSigmaX, &s.MaxSigmaY, &s.MaxSigmaZ,
			&s.FirstStamp, &s.LastStamp,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// RecordStationEvent persists a base station state transition.
func (db *DB) RecordStationEvent(serial, state string, driftMM float64) error {
	_, err := db.Exec(
		`INSERT INTO station_events (serial, state, drift_mm) VALUES (?, ?, ?)`,
		serial, state, driftMM,
	)
	return err
}

// StationEvent is one persisted base station transition.
type StationEvent struct {
	Serial    string    `json:"serial"`
	State     string    `json:"state"`
	DriftMM   float64   `json:"drift_mm"`
	Timestamp time.Time `json:"timestamp"`
}

// StationEvents returns the most recent station transitions, newest first.
func (db *DB) StationEvents(limit int) ([]StationEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT serial, state, drift_mm, timestamp FROM station_events ORDER BY timestamp DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []StationEvent
	for rows.Next() {
		var ev StationEvent
		if err := rows.Scan(&ev.Serial, &ev.State, &ev.DriftMM, &ev.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://jitter.db", db.DB, &tailsql.DBOptions{
		Label: "Jitter DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		// Send the backup file to the client
		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := gzipWriter.Write([]byte{}); err != nil {
			// Need to write something to initialize the gzip header
			http.Error(w, fmt.Sprintf("Failed to initialize gzip writer: %v", err), http.StatusInternalServerError)
			return
		}

		// Copy the backup file content to the gzip writer
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
