package api

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/jitter.report/internal/httputil"
	"github.com/banshee-data/jitter.report/internal/units"
	"github.com/banshee-data/jitter.report/internal/vr"
)

// renderChart writes a rendered echarts page, collapsing the error
// handling every chart handler shares.
func (s *Server) renderChart(w http.ResponseWriter, render func(w io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// chartDevice renders one device's live sigma time series from the
// in-memory history ring. Lengths are shown in the configured display
// units (millimetres by default).
func (s *Server) chartDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.history == nil {
		httputil.NotFound(w, "no live history available")
		return
	}

	serial := r.URL.Query().Get("serial")
	if serial == "" {
		serials := s.history.Serials()
		if len(serials) == 0 {
			httputil.NotFound(w, "no devices observed yet")
			return
		}
		serial = serials[0]
	}

	points := s.history.Series(serial)
	if len(points) == 0 {
		httputil.NotFound(w, "no history for device "+serial)
		return
	}

	lengthUnits := s.tuning.GetLengthUnits()

	x := make([]string, len(points))
	sx := make([]opts.LineData, len(points))
	sy := make([]opts.LineData, len(points))
	sz := make([]opts.LineData, len(points))
	sd := make([]opts.LineData, len(points))
	for i, p := range points {
		x[i] = p.Time.Format("15:04:05.000")
		sx[i] = opts.LineData{Value: units.ConvertLength(p.SigmaX, lengthUnits)}
		sy[i] = opts.LineData{Value: units.ConvertLength(p.SigmaY, lengthUnits)}
		sz[i] = opts.LineData{Value: units.ConvertLength(p.SigmaZ, lengthUnits)}
		sd[i] = opts.LineData{Value: units.ConvertLength(p.SigmaDistance, lengthUnits)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tracker Jitter", Theme: "dark", Width: "1400px", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Jitter: %s", serial),
			Subtitle: fmt.Sprintf("rolling sigma (%s), %d points", lengthUnits, len(points)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: fmt.Sprintf("sigma (%s)", lengthUnits)}),
	)
	line.SetXAxis(x).
		AddSeries("σx", sx).
		AddSeries("σy", sy).
		AddSeries("σz", sz).
		AddSeries("σ|d|", sd)

	s.renderChart(w, line.Render)
}

// chartCompare renders a bar chart comparing every live device on
// position sigma magnitude and loss rate.
func (s *Server) chartCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	snap := s.session.Snapshot()
	lengthUnits := s.tuning.GetLengthUnits()

	var names []string
	var sigmas []opts.BarData
	var losses []opts.BarData
	for _, ds := range snap.Devices {
		if ds.Class == vr.ClassBaseStation {
			continue
		}
		mag := math.Sqrt(ds.Stats.X.Sigma*ds.Stats.X.Sigma +
			ds.Stats.Y.Sigma*ds.Stats.Y.Sigma +
			ds.Stats.Z.Sigma*ds.Stats.Z.Sigma)
		names = append(names, ds.Serial)
		sigmas = append(sigmas, opts.BarData{Value: units.ConvertLength(mag, lengthUnits)})
		losses = append(losses, opts.BarData{Value: ds.Stats.LossRate})
	}
	if len(names) == 0 {
		httputil.NotFound(w, "no devices observed yet")
		return
	}

	sigmaBar := charts.NewBar()
	sigmaBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Device Comparison",
			Subtitle: fmt.Sprintf("position |sigma| (%s) at %s", lengthUnits, snap.Time.Format(time.RFC3339)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	sigmaBar.SetXAxis(names).
		AddSeries("|sigma|", sigmas,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	lossBar := charts.NewBar()
	lossBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Frame Loss",
			Subtitle: fmt.Sprintf("loss rate %%, warn above %.1f%%", s.tuning.GetLossWarnPercent()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	lossBar.SetXAxis(names).
		AddSeries("loss %", losses,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.AddCharts(sigmaBar, lossBar)

	s.renderChart(w, page.Render)
}

// chartDrift renders base station drift rings against the movement
// threshold. ?serial= narrows to one station; the default shows all.
func (s *Server) chartDrift(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	stations := s.session.Stations()
	if want := r.URL.Query().Get("serial"); want != "" {
		filtered := stations[:0:0]
		for _, st := range stations {
			if st.Serial == want {
				filtered = append(filtered, st)
			}
		}
		if len(filtered) == 0 {
			httputil.NotFound(w, "unknown station "+want)
			return
		}
		stations = filtered
	}
	if len(stations) == 0 {
		httputil.NotFound(w, "no base stations observed yet")
		return
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Base Station Drift", Theme: "dark", Width: "1400px", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Base Station Drift",
			Subtitle: fmt.Sprintf("distance from baseline (mm), threshold %.1fmm", s.tuning.GetDriftThresholdMM()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "drift (mm)"}),
	)

	maxLen := 0
	ringsBySerial := make(map[string][]float64, len(stations))
	for _, st := range stations {
		ring := s.session.StationRing(st.Serial)
		ringsBySerial[st.Serial] = ring
		if len(ring) > maxLen {
			maxLen = len(ring)
		}
	}

	x := make([]string, maxLen)
	for i := range x {
		x[i] = fmt.Sprintf("%d", i-maxLen)
	}
	line.SetXAxis(x)

	for _, st := range stations {
		ring := ringsBySerial[st.Serial]
		data := make([]opts.LineData, len(ring))
		for i, v := range ring {
			data[i] = opts.LineData{Value: v}
		}
		name := fmt.Sprintf("%s (%s)", st.Serial, st.State)
		line.AddSeries(name, data)
	}

	s.renderChart(w, line.Render)
}

// chartRun renders a finished run's recorded sigma series from the
// database, one line per device.
func (s *Server) chartRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "no database attached")
		return
	}

	runID := r.URL.Query().Get("id")
	if runID == "" {
		httputil.BadRequest(w, "missing 'id' parameter")
		return
	}
	run, err := s.db.GetRun(runID)
	if err != nil {
		httputil.NotFound(w, err.Error())
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

	lengthUnits := s.tuning.GetLengthUnits()
	start := samples[0].Time

	type devSeries struct {
		data []opts.LineData
	}
	byDevice := make(map[string]*devSeries)
	var order []string
	for _, sample := range samples {
		d := byDevice[sample.Serial]
		if d == nil {
			d = &devSeries{}
			byDevice[sample.Serial] = d
			order = append(order, sample.Serial)
		}
		mag := math.Sqrt(sample.SigmaX*sample.SigmaX +
			sample.SigmaY*sample.SigmaY +
			sample.SigmaZ*sample.SigmaZ)
		d.data = append(d.data, opts.LineData{Value: []any{
			sample.Time.Sub(start).Seconds(),
			units.ConvertLength(mag, lengthUnits),
		}})
	}

	subtitle := fmt.Sprintf("run %s, %d samples", runID, len(samples))
	if run.Note != "" {
		subtitle += ", " + run.Note
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Run Jitter", Theme: "dark", Width: "1400px", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{Title: "Recorded Position |Sigma|", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "elapsed (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: fmt.Sprintf("|sigma| (%s)", lengthUnits)}),
	)

	for _, serial := range order {
		line.AddSeries(serial, byDevice[serial].data)
	}

	s.renderChart(w, line.Render)
}
