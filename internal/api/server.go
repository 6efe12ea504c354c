// Package api serves the measurement session over HTTP: device and
// statistics JSON, run lifecycle controls, CSV and PNG exports, live SSE
// streams, and server-rendered chart pages.
package api

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/jitter.report/internal/config"
	"github.com/banshee-data/jitter.report/internal/db"
	"github.com/banshee-data/jitter.report/internal/httputil"
	"github.com/banshee-data/jitter.report/internal/posemux"
	"github.com/banshee-data/jitter.report/internal/version"
	"github.com/banshee-data/jitter.report/internal/vr"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	session   *vr.Session
	bridge    posemux.BridgeMuxInterface
	db        *db.DB
	flusher   *db.SampleFlusher
	tuning    *config.TuningConfig
	history   *History
	exportDir string
	reportDir string
}

// ServerDeps collects the collaborators the API serves. DB, Flusher and
// History may be nil in reduced deployments (and in tests); the handlers
// that need them report an error response instead of panicking.
type ServerDeps struct {
	Session *vr.Session
	Bridge  posemux.BridgeMuxInterface
	DB      *db.DB
	Flusher *db.SampleFlusher
	Tuning  *config.TuningConfig
	History *History
	// ExportDir is where ?save=1 CSV exports land. Defaults to "exports".
	ExportDir string
	// ReportDir is the base directory for generated PNG reports.
	// Defaults to "reports".
	ReportDir string
}

func NewServer(deps ServerDeps) *Server {
	if deps.Tuning == nil {
		deps.Tuning = config.EmptyTuningConfig()
	}
	if deps.ExportDir == "" {
		deps.ExportDir = "exports"
	}
	if deps.ReportDir == "" {
		deps.ReportDir = "reports"
	}
	return &Server{
		session:   deps.Session,
		bridge:    deps.Bridge,
		db:        deps.DB,
		flusher:   deps.Flusher,
		tuning:    deps.Tuning,
		history:   deps.History,
		exportDir: deps.ExportDir,
		reportDir: deps.ReportDir,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/devices", s.listDevices)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/stats/live", s.streamStats)
	mux.HandleFunc("/api/stations", s.listStations)
	mux.HandleFunc("/api/stations/events", s.listStationEvents)
	mux.HandleFunc("/api/stations/recalibrate", s.recalibrateStations)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/start", s.startRun)
	mux.HandleFunc("/api/runs/stop", s.stopRun)
	mux.HandleFunc("/api/run", s.showRun)
	mux.HandleFunc("/api/clear", s.clearStats)
	mux.HandleFunc("/api/export", s.exportCSV)
	mux.HandleFunc("/api/report", s.generateReport)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/charts/device", s.chartDevice)
	mux.HandleFunc("/charts/compare", s.chartCompare)
	mux.HandleFunc("/charts/drift", s.chartDrift)
	mux.HandleFunc("/charts/run", s.chartRun)
	return mux
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.session.Devices())
}

// showStats serves one snapshot of the live statistics: every device's
// rolling sigmas plus the base station drift states. ?serial= narrows to
// one device.
func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	snap := s.session.Snapshot()
	if serial := r.URL.Query().Get("serial"); serial != "" {
		for _, ds := range snap.Devices {
			if ds.Serial == serial {
				httputil.WriteJSONOK(w, ds)
				return
			}
		}
		httputil.NotFound(w, "unknown device "+serial)
		return
	}
	httputil.WriteJSONOK(w, snap)
}

func (s *Server) listStations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.session.Stations())
}

func (s *Server) listStationEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "no database attached")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	events, err := s.db.StationEvents(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to retrieve station events: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, events)
}

// recalibrateStations discards station baselines so the next samples
// establish a fresh reference. ?serial= recalibrates one station.
func (s *Server) recalibrateStations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if serial := r.FormValue("serial"); serial != "" {
		if !s.session.RecalibrateStation(serial) {
			httputil.NotFound(w, "unknown station "+serial)
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"status": "recalibrating", "serial": serial})
		return
	}
	s.session.RecalibrateStations()
	httputil.WriteJSONOK(w, map[string]string{"status": "recalibrating"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "no database attached")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	runs, err := s.db.ListRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to retrieve runs: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	run, err := s.session.StartRun(r.FormValue("note"))
	if err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}
	if s.db != nil {
		if err := s.db.InsertRun(run); err != nil {
			httputil.InternalServerError(w, "failed to persist run: "+err.Error())
			return
		}
	}
	httputil.WriteJSONOK(w, run)
}

func (s *Server) stopRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	run, err := s.session.StopRun()
	if err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}
	if s.flusher != nil {
		// push the tail of the run to disk so the close below records a
		// sample count the database can actually serve
		if err := s.flusher.Flush(); err != nil {
			log.Printf("flush on run stop failed: %v", err)
		}
	}
	if s.db != nil {
		if err := s.db.CloseRun(run); err != nil {
			httputil.InternalServerError(w, "failed to close run: "+err.Error())
			return
		}
	}
	httputil.WriteJSONOK(w, run)
}

// showRun returns one run's record and its per-device summaries.
func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "no database attached")
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "missing 'id' parameter")
		return
	}
	run, err := s.db.GetRun(id)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	summaries, err := s.db.RunSummaries(id)
	if err != nil {
		httputil.InternalServerError(w, "failed to summarise run: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"run":     run,
		"devices": summaries,
	})
}

func (s *Server) clearStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if serial := r.FormValue("serial"); serial != "" {
		if !s.session.ClearDevice(serial) {
			httputil.NotFound(w, "unknown device: "+serial)
			return
		}
		if s.history != nil {
			s.history.ClearSerial(serial)
		}
		httputil.WriteJSONOK(w, map[string]string{"status": "cleared", "serial": serial})
		return
	}
	s.session.Clear()
	if s.history != nil {
		s.history.Clear()
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "cleared"})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	// report every field populated so consumers see effective values, not
	// just the overrides the tuning file happened to set
	effective := config.TuningConfig{
		WindowSize:              ptr(s.tuning.GetWindowSize()),
		ChartWindowSize:         ptr(s.tuning.GetChartWindowSize()),
		PollHz:                  ptr(s.tuning.GetPollHz()),
		RenderDivisor:           ptr(s.tuning.GetRenderDivisor()),
		DeviceTimeout:           ptr(s.tuning.GetDeviceTimeout().String()),
		FlushInterval:           ptr(s.tuning.GetFlushInterval().String()),
		DriftThresholdMM:        ptr(s.tuning.GetDriftThresholdMM()),
		DriftCalibrationSamples: ptr(s.tuning.GetDriftCalibrationSamples()),
		DriftRingSize:           ptr(s.tuning.GetDriftRingSize()),
		LengthUnits:             ptr(s.tuning.GetLengthUnits()),
		Timezone:                ptr(s.tuning.GetTimezone()),
		LossWarnPercent:         ptr(s.tuning.GetLossWarnPercent()),
	}
	httputil.WriteJSONOK(w, effective)
}

func ptr[T any](v T) *T { return &v }

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

// maxCommandLength bounds commands relayed to the bridge. The protocol's
// longest legitimate command is a clock sync around 13 bytes.
const maxCommandLength = 64

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.bridge == nil {
		httputil.NotFound(w, "no bridge attached")
		return
	}

	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		httputil.BadRequest(w, "missing command")
		return
	}
	if len(command) > maxCommandLength || strings.ContainsAny(command, "\r\n") {
		httputil.BadRequest(w, "invalid command")
		return
	}

	if err := s.bridge.SendCommand(command); err != nil {
		httputil.InternalServerError(w, "failed to send command")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "sent", "command": command})
}
