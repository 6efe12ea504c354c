// Package drift watches base station positions for physical movement.
// Stations are the measurement's frame of reference: if one shifts on its
// mount mid-run, every tracker's jitter numbers are suspect. The monitor
// averages the first samples of each station into a baseline and then
// reports how far each new position sits from it.
package drift

import (
	"math"
	"sort"
	"sync"

	"github.com/gammazero/deque"

	"github.com/banshee-data/jitter.report/internal/monitoring"
)

// State describes where a station is in its drift lifecycle.
type State string

const (
	// StateCalibrating means the baseline average is still accumulating.
	StateCalibrating State = "calibrating"
	// StateStable means the station is within the drift threshold.
	StateStable State = "stable"
	// StateMoved means the latest position exceeds the drift threshold.
	// The state is recomputed per sample, so a knocked station that
	// settles back within tolerance returns to StateStable on its own.
	StateMoved State = "moved"
)

// Config tunes the monitor. Zero values fall back to defaults that match
// a 90Hz pose stream.
type Config struct {
	// ThresholdMM is the distance from baseline above which a station is
	// reported as moved.
	ThresholdMM float64
	// CalibrationSamples is how many positions are averaged into the
	// baseline before drift reporting starts.
	CalibrationSamples int
	// RingSize bounds the per-station history of drift measurements kept
	// for charting.
	RingSize int
}

const (
	defaultThresholdMM        = 5.0
	defaultCalibrationSamples = 120
	defaultRingSize           = 3000
)

func (c Config) withDefaults() Config {
	if c.ThresholdMM <= 0 {
		c.ThresholdMM = defaultThresholdMM
	}
	if c.CalibrationSamples < 1 {
		c.CalibrationSamples = defaultCalibrationSamples
	}
	if c.RingSize < 1 {
		c.RingSize = defaultRingSize
	}
	return c
}

// Status is a point-in-time view of one station.
type Status struct {
	Serial     string     `json:"serial"`
	State      State      `json:"state"`
	Samples    int        `json:"samples"`
	Baseline   [3]float64 `json:"baseline"`
	DriftMM    float64    `json:"drift_mm"`
	MaxDriftMM float64    `json:"max_drift_mm"`
}

type station struct {
	sum        [3]float64
	samples    int
	baseline   [3]float64
	calibrated bool
	driftMM    float64
	maxDriftMM float64
	ring       deque.Deque[float64]
}

// Monitor tracks drift for any number of stations. Safe for concurrent use.
type Monitor struct {
	mu       sync.Mutex
	cfg      Config
	stations map[string]*station
}

// New returns a Monitor with cfg normalised to defaults.
func New(cfg Config) *Monitor {
	return &Monitor{
		cfg:      cfg.withDefaults(),
		stations: make(map[string]*station),
	}
}

// Observe feeds one station position in metres and returns the updated
// status. Unknown serials are registered on first sight.
func (m *Monitor) Observe(serial string, x, y, z float64) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stations[serial]
	if st == nil {
		st = &station{}
		m.stations[serial] = st
	}

	st.samples++
	if !st.calibrated {
		st.sum[0] += x
		st.sum[1] += y
		st.sum[2] += z
		if st.samples >= m.cfg.CalibrationSamples {
			n := float64(st.samples)
			st.baseline = [3]float64{st.sum[0] / n, st.sum[1] / n, st.sum[2] / n}
			st.calibrated = true
			monitoring.Logf("drift: station %s baseline locked at (%.4f, %.4f, %.4f) after %d samples",
				serial, st.baseline[0], st.baseline[1], st.baseline[2], st.samples)
		}
		return m.statusLocked(serial, st)
	}

	dx := x - st.baseline[0]
	dy := y - st.baseline[1]
	dz := z - st.baseline[2]
	wasMoved := st.driftMM > m.cfg.ThresholdMM
	st.driftMM = math.Sqrt(dx*dx+dy*dy+dz*dz) * 1000
	if st.driftMM > st.maxDriftMM {
		st.maxDriftMM = st.driftMM
	}
	if st.ring.Len() >= m.cfg.RingSize {
		st.ring.PopFront()
	}
	st.ring.PushBack(st.driftMM)

	if moved := st.driftMM > m.cfg.ThresholdMM; moved != wasMoved {
		if moved {
			monitoring.Logf("drift: station %s MOVED %.2fmm from baseline (threshold %.2fmm)",
				serial, st.driftMM, m.cfg.ThresholdMM)
		} else {
			monitoring.Logf("drift: station %s back within %.2fmm of baseline", serial, m.cfg.ThresholdMM)
		}
	}
	return m.statusLocked(serial, st)
}

func (m *Monitor) statusLocked(serial string, st *station) Status {
	s := Status{
		Serial:     serial,
		State:      StateCalibrating,
		Samples:    st.samples,
		Baseline:   st.baseline,
		DriftMM:    st.driftMM,
		MaxDriftMM: st.maxDriftMM,
	}
	if st.calibrated {
		if st.driftMM > m.cfg.ThresholdMM {
			s.State = StateMoved
		} else {
			s.State = StateStable
		}
	}
	return s
}

// Status returns the current view of one station.
func (m *Monitor) Status(serial string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[serial]
	if !ok {
		return Status{}, false
	}
	return m.statusLocked(serial, st), true
}

// All returns every known station sorted by serial.
func (m *Monitor) All() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.stations))
	for serial, st := range m.stations {
		out = append(out, m.statusLocked(serial, st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

// Ring returns the recent drift history in millimetres, oldest first.
func (m *Monitor) Ring(serial string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[serial]
	if !ok {
		return nil
	}
	out := make([]float64, st.ring.Len())
	for i := range out {
		out[i] = st.ring.At(i)
	}
	return out
}

// Recalibrate throws away one station's baseline and history so the next
// samples establish a fresh reference. Reports whether the serial was known.
func (m *Monitor) Recalibrate(serial string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stations[serial]; !ok {
		return false
	}
	m.stations[serial] = &station{}
	return true
}

// RecalibrateAll resets every known station.
func (m *Monitor) RecalibrateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for serial := range m.stations {
		m.stations[serial] = &station{}
	}
}

// Remove forgets a station entirely.
func (m *Monitor) Remove(serial string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stations, serial)
}
