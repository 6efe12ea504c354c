// Package report generates post-run PNG charts from recorded samples.
// One chart pair per device (position sigma, rotation sigma) plus an
// overview comparing devices, written to a timestamped directory after
// a run stops.
package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/jitter.report/internal/units"
	"github.com/banshee-data/jitter.report/internal/vr"
)

// GenerateRunPlots writes sigma time-series charts for one run's samples
// under outputDir. Chart titles carry the run start converted to the
// given timezone; an empty or unknown zone falls back to UTC. Returns
// the number of PNG files written.
func GenerateRunPlots(outputDir, runID string, samples []vr.RecordedSample, timezone string) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	byDevice := make(map[string][]vr.RecordedSample)
	start := samples[0].Time
	for _, s := range samples {
		byDevice[s.Serial] = append(byDevice[s.Serial], s)
		if s.Time.Before(start) {
			start = s.Time
		}
	}

	var serials []string
	for serial := range byDevice {
		serials = append(serials, serial)
	}
	sort.Strings(serials)

	startLabel := formatStart(start, timezone)

	count := 0
	for _, serial := range serials {
		if err := generateDevicePlots(outputDir, serial, start, startLabel, byDevice[serial]); err != nil {
			return count, fmt.Errorf("device %s: %w", serial, err)
		}
		count += 2
	}

	if err := generateOverviewPlot(outputDir, runID, start, startLabel, byDevice, serials); err != nil {
		return count, err
	}
	count++

	return count, nil
}

// formatStart renders the run start in the display timezone. Samples are
// stored in UTC; unknown zones degrade to UTC rather than failing the
// whole report.
func formatStart(start time.Time, timezone string) string {
	if timezone == "" {
		timezone = "UTC"
	}
	local, err := units.ConvertTime(start.UTC(), timezone)
	if err != nil {
		local = start.UTC()
	}
	return local.Format("2006-01-02 15:04:05 MST")
}

// sigmaChannel is one plotted line: a channel name and how to read its
// value out of a sample.
type sigmaChannel struct {
	name  string
	value func(s vr.RecordedSample) float64
}

var positionChannels = []sigmaChannel{
	{"σx", func(s vr.RecordedSample) float64 { return s.SigmaX }},
	{"σy", func(s vr.RecordedSample) float64 { return s.SigmaY }},
	{"σz", func(s vr.RecordedSample) float64 { return s.SigmaZ }},
}

var rotationChannels = []sigmaChannel{
	{"σpitch", func(s vr.RecordedSample) float64 { return s.SigmaPitch }},
	{"σyaw", func(s vr.RecordedSample) float64 { return s.SigmaYaw }},
	{"σroll", func(s vr.RecordedSample) float64 { return s.SigmaRoll }},
}

func generateDevicePlots(dir, serial string, start time.Time, startLabel string, samples []vr.RecordedSample) error {
	sort.Slice(samples, func(a, b int) bool {
		return samples[a].Time.Before(samples[b].Time)
	})

	pPos := plot.New()
	pPos.Title.Text = fmt.Sprintf("%s - Position Sigma (started %s)", serial, startLabel)
	pPos.X.Label.Text = "Elapsed (s)"
	pPos.Y.Label.Text = "Sigma (mm)"

	pRot := plot.New()
	pRot.Title.Text = fmt.Sprintf("%s - Rotation Sigma (started %s)", serial, startLabel)
	pRot.X.Label.Text = "Elapsed (s)"
	pRot.Y.Label.Text = "Sigma (deg)"

	colors := channelColors(len(positionChannels))

	for i, ch := range positionChannels {
		pts := make(plotter.XYs, 0, len(samples))
		for _, s := range samples {
			pts = append(pts, plotter.XY{
				X: s.Time.Sub(start).Seconds(),
				Y: units.ConvertLength(ch.value(s), units.Millimetres),
			})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		pPos.Add(line)
		pPos.Legend.Add(ch.name, line)
	}

	for i, ch := range rotationChannels {
		pts := make(plotter.XYs, 0, len(samples))
		for _, s := range samples {
			pts = append(pts, plotter.XY{
				X: s.Time.Sub(start).Seconds(),
				Y: ch.value(s),
			})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		pRot.Add(line)
		pRot.Legend.Add(ch.name, line)
	}

	pPos.Legend.Top = true
	pPos.Legend.Left = false
	pPos.Legend.XOffs = -10
	pPos.Legend.YOffs = -10

	pRot.Legend.Top = true
	pRot.Legend.Left = false
	pRot.Legend.XOffs = -10
	pRot.Legend.YOffs = -10

	posFile := filepath.Join(dir, fmt.Sprintf("%s_pos_sigma.png", serial))
	if err := pPos.Save(14*vg.Inch, 6*vg.Inch, posFile); err != nil {
		return fmt.Errorf("save position plot: %w", err)
	}

	rotFile := filepath.Join(dir, fmt.Sprintf("%s_rot_sigma.png", serial))
	if err := pRot.Save(14*vg.Inch, 6*vg.Inch, rotFile); err != nil {
		return fmt.Errorf("save rotation plot: %w", err)
	}

	return nil
}

// generateOverviewPlot compares devices on one chart: the magnitude of
// the position sigma vector over elapsed time, one line per device.
func generateOverviewPlot(dir, runID string, start time.Time, startLabel string, byDevice map[string][]vr.RecordedSample, serials []string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Run %s - Position Sigma Magnitude (started %s)", shortRunID(runID), startLabel)
	p.X.Label.Text = "Elapsed (s)"
	p.Y.Label.Text = "|Sigma| (mm)"

	colors := channelColors(len(serials))

	for i, serial := range serials {
		samples := byDevice[serial]
		sort.Slice(samples, func(a, b int) bool {
			return samples[a].Time.Before(samples[b].Time)
		})

		pts := make(plotter.XYs, 0, len(samples))
		for _, s := range samples {
			mag := math.Sqrt(s.SigmaX*s.SigmaX + s.SigmaY*s.SigmaY + s.SigmaZ*s.SigmaZ)
			pts = append(pts, plotter.XY{
				X: s.Time.Sub(start).Seconds(),
				Y: units.ConvertLength(mag, units.Millimetres),
			})
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(serial, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(dir, "overview_sigma.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save overview plot: %w", err)
	}

	return nil
}

func shortRunID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

// MakeReportOutputDir builds a timestamped directory path for a run's
// charts: <baseDir>/<short run id>/<timestamp>.
func MakeReportOutputDir(baseDir, runID string, at time.Time) string {
	return filepath.Join(baseDir, shortRunID(runID), at.Format("20060102_150405"))
}

// channelColors creates a palette of distinct colors for chart lines
func channelColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
