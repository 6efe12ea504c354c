package api

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/banshee-data/jitter.report/internal/export"
	"github.com/banshee-data/jitter.report/internal/httputil"
	"github.com/banshee-data/jitter.report/internal/report"
)

// exportCSV streams a run's samples as a CSV download. Query parameters:
//
//	run_id  required; the run to export
//	serial  optional; narrow to one device
//	variant optional; "base" for the position-only column set, anything
//	        else (default) for the extended set with rotation channels
//	save    optional; "1" also writes the file under the export directory
//
// The active run exports whatever has been flushed so far; a flush is
// forced first so the download is no more than one batch behind.
func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "no database attached")
		return
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		httputil.BadRequest(w, "missing 'run_id' parameter")
		return
	}
	if _, err := s.db.GetRun(runID); err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	if s.flusher != nil {
		if err := s.flusher.Flush(); err != nil {
			log.Printf("flush before export failed: %v", err)
		}
	}

	samples, err := s.db.SamplesForRun(runID, r.URL.Query().Get("serial"))
	if err != nil {
		httputil.InternalServerError(w, "failed to read samples: "+err.Error())
		return
	}

	extended := r.URL.Query().Get("variant") != "base"
	filename := export.DefaultFilename(time.Now())

	if r.URL.Query().Get("save") == "1" {
		path, err := export.WriteRunFile(s.exportDir, filename, samples, extended)
		if err != nil {
			httputil.InternalServerError(w, "failed to save export: "+err.Error())
			return
		}
		log.Printf("export saved to %s (%d samples)", path, len(samples))
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if err := export.WriteRun(w, samples, extended); err != nil {
		// headers are gone; all we can do is log
		log.Printf("failed to stream export for run %s: %v", runID, err)
	}
}

// generateReport renders PNG sigma charts for a finished run under the
// report directory and returns the paths.
func (s *Server) generateReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "no database attached")
		return
	}

	runID := r.FormValue("run_id")
	if runID == "" {
		httputil.BadRequest(w, "missing 'run_id' parameter")
		return
	}
	run, err := s.db.GetRun(runID)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	if run.StoppedAt == nil {
		httputil.WriteJSONError(w, http.StatusConflict, "run is still recording")
		return
	}

	samples, err := s.db.SamplesForRun(runID, "")
	if err != nil {
		httputil.InternalServerError(w, "failed to read samples: "+err.Error())
		return
	}
	if len(samples) == 0 {
		httputil.NotFound(w, "run has no samples")
		return
	}

	outputDir := report.MakeReportOutputDir(s.reportDir, runID, time.Now())
	count, err := report.GenerateRunPlots(outputDir, runID, samples, s.tuning.GetTimezone())
	if err != nil {
		httputil.InternalServerError(w, "failed to generate report: "+err.Error())
		return
	}

	httputil.WriteJSONOK(w, map[string]any{
		"run_id":  runID,
		"dir":     outputDir,
		"charts":  count,
		"samples": len(samples),
	})
}
