// Package export renders recorded pose samples as CSV for downstream
// analysis tools. The header row is the contract: consumers key on column
// names, so changes here break their imports.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/banshee-data/jitter.report/internal/fsutil"
	"github.com/banshee-data/jitter.report/internal/security"
	"github.com/banshee-data/jitter.report/internal/vr"
)

// FS is the filesystem WriteRunFile writes through. Tests swap in a
// MemoryFileSystem.
var FS fsutil.FileSystem = fsutil.OSFileSystem{}

var baseHeader = []string{
	"timestamp", "tracker_id",
	"x", "y", "z",
	"sigma_x", "sigma_y", "sigma_z",
}

var extendedHeader = []string{
	"timestamp", "tracker_id",
	"x", "y", "z",
	"pitch", "yaw", "roll",
	"sigma_x", "sigma_y", "sigma_z",
	"sigma_pitch", "sigma_yaw", "sigma_roll",
}

// Writer streams samples as CSV rows. Extended includes the rotation
// channels and their sigmas; the base set is position only.
type Writer struct {
	w        *csv.Writer
	extended bool
	rows     int
}

func NewWriter(w io.Writer, extended bool) *Writer {
	return &Writer{
		w:        csv.NewWriter(w),
		extended: extended,
	}
}

// WriteHeader writes the column row for the configured variant.
func (w *Writer) WriteHeader() error {
	if w.extended {
		return w.w.Write(extendedHeader)
	}
	return w.w.Write(baseHeader)
}

// WriteSample writes one row. The timestamp column is unix epoch seconds
// with fractional part; every numeric field uses fixed 6-decimal
// formatting so repeated exports of the same run are byte-identical.
func (w *Writer) WriteSample(s vr.RecordedSample) error {
	f := func(v float64) string { return fmt.Sprintf("%.6f", v) }

	epoch := float64(s.Time.UnixNano()) / 1e9
	row := []string{
		f(epoch),
		s.Serial,
		f(s.X), f(s.Y), f(s.Z),
	}
	if w.extended {
		row = append(row, f(s.Pitch), f(s.Yaw), f(s.Roll))
	}
	row = append(row, f(s.SigmaX), f(s.SigmaY), f(s.SigmaZ))
	if w.extended {
		row = append(row, f(s.SigmaPitch), f(s.SigmaYaw), f(s.SigmaRoll))
	}

	if err := w.w.Write(row); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Flush writes buffered rows through to the underlying writer.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// Rows reports how many sample rows have been written, excluding the header.
func (w *Writer) Rows() int {
	return w.rows
}

// WriteRun writes a header and all samples, then flushes.
func WriteRun(w io.Writer, samples []vr.RecordedSample, extended bool) error {
	cw := NewWriter(w, extended)
	if err := cw.WriteHeader(); err != nil {
		return err
	}
	for _, s := range samples {
		if err := cw.WriteSample(s); err != nil {
			return err
		}
	}
	return cw.Flush()
}

// DefaultFilename names an export after its moment of creation,
// tracker_jitter_YYYYMMDD_HHMMSS.csv.
func DefaultFilename(t time.Time) string {
	return fmt.Sprintf("tracker_jitter_%s.csv", t.Format("20060102_150405"))
}

// WriteRunFile writes a run's CSV under dir and returns the full path.
// filename defaults to DefaultFilename(now); the joined path is validated
// so a crafted filename cannot escape the export directory.
func WriteRunFile(dir, filename string, samples []vr.RecordedSample, extended bool) (string, error) {
	if filename == "" {
		filename = DefaultFilename(time.Now())
	}
	path := filepath.Join(dir, filename)

	if err := FS.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}
	// validate after MkdirAll: the check resolves symlinks, which needs
	// the directory to exist
	if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
		return "", err
	}

	f, err := FS.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := WriteRun(f, samples, extended); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}
