package vr

import (
	"math/rand"

	"github.com/banshee-data/jitter.report/internal/monitoring"
	"github.com/banshee-data/jitter.report/internal/timeutil"
)

// SimDevice describes one synthetic device for the pose simulator.
type SimDevice struct {
	Serial string
	Class  DeviceClass
	// Base is the rest position in metres.
	Base Vec3
	// BaseRot is the rest orientation in degrees.
	BaseRot Euler
	// PosSigma is the per-axis gaussian position noise in metres.
	PosSigma float64
	// RotSigma is the per-axis gaussian rotation noise in degrees.
	RotSigma float64
	// DropRate is the probability that a tick reports the device with no
	// usable pose.
	DropRate float64
}

// DefaultSimDevices is a plausible small rig: two trackers, one
// controller and two base stations. Tracker noise is around the 0.3mm
// figure a healthy rig shows; the stations are nearly still.
func DefaultSimDevices() []SimDevice {
	return []SimDevice{
		{Serial: "LHR-3CDE8F01", Class: ClassTracker, Base: Vec3{X: 0.12, Y: 1.02, Z: -0.45}, PosSigma: 0.0003, RotSigma: 0.05, DropRate: 0.002},
		{Serial: "LHR-77B0A219", Class: ClassTracker, Base: Vec3{X: -0.38, Y: 0.96, Z: -0.41}, PosSigma: 0.0006, RotSigma: 0.09, DropRate: 0.01},
		{Serial: "LHR-FD35C2B7", Class: ClassController, Base: Vec3{X: 0.05, Y: 0.88, Z: -0.2}, BaseRot: Euler{Pitch: 12, Yaw: -30, Roll: 2}, PosSigma: 0.0004, RotSigma: 0.07, DropRate: 0.004},
		{Serial: "LHB-02F7A4D1", Class: ClassBaseStation, Base: Vec3{X: -1.8, Y: 2.3, Z: 1.1}, PosSigma: 0.00005},
		{Serial: "LHB-91C44E03", Class: ClassBaseStation, Base: Vec3{X: 1.7, Y: 2.25, Z: 1.05}, PosSigma: 0.00005},
	}
}

// SimConfig tunes a Simulator.
type SimConfig struct {
	// Devices defaults to DefaultSimDevices.
	Devices []SimDevice
	// Seed makes the stream reproducible; zero picks an arbitrary seed.
	Seed int64
	// Clock stamps the frames. Defaults to the wall clock.
	Clock timeutil.Clock
}

// Simulator produces a synthetic bridge stream: gaussian jitter around
// each device's rest pose plus occasional dropouts. It stands in for the
// bridge when no headset is around. Not safe for concurrent use; drive
// it from one goroutine.
type Simulator struct {
	devices []SimDevice
	rng     *rand.Rand
	clock   timeutil.Clock
	ticks   int64
}

// NewSimulator returns a Simulator with cfg normalised to defaults.
func NewSimulator(cfg SimConfig) *Simulator {
	if len(cfg.Devices) == 0 {
		cfg.Devices = DefaultSimDevices()
	}
	if cfg.Seed == 0 {
		cfg.Seed = rand.Int63()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Simulator{
		devices: cfg.Devices,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		clock:   cfg.Clock,
	}
}

// NextFrame produces one tick with every configured device reported.
// The first frame also carries activation events so consumers see the
// same join sequence the real runtime produces.
func (s *Simulator) NextFrame() Frame {
	f := Frame{Time: s.clock.Now()}
	if s.ticks == 0 {
		for _, d := range s.devices {
			f.Events = append(f.Events, DeviceEvent{Serial: d.Serial, Class: d.Class, Type: EventActivated})
		}
	}
	s.ticks++

	for _, d := range s.devices {
		ps := PoseSample{Serial: d.Serial, Class: d.Class, Time: f.Time}
		if s.rng.Float64() >= d.DropRate {
			ps.Valid = true
			ps.Position = Vec3{
				X: d.Base.X + s.rng.NormFloat64()*d.PosSigma,
				Y: d.Base.Y + s.rng.NormFloat64()*d.PosSigma,
				Z: d.Base.Z + s.rng.NormFloat64()*d.PosSigma,
			}
			ps.Rotation = Euler{
				Pitch: d.BaseRot.Pitch + s.rng.NormFloat64()*d.RotSigma,
				Yaw:   d.BaseRot.Yaw + s.rng.NormFloat64()*d.RotSigma,
				Roll:  d.BaseRot.Roll + s.rng.NormFloat64()*d.RotSigma,
			}
		}
		f.Samples = append(f.Samples, ps)
	}
	return f
}

// NextLine renders the next frame as one protocol line without the
// trailing newline.
func (s *Simulator) NextLine() []byte {
	line, err := EncodeFrame(s.NextFrame())
	if err != nil {
		monitoring.Logf("sim: encoding frame: %v", err)
		return nil
	}
	return line
}

// NudgeStation shifts a base station's rest position, simulating a knock
// to its mount. Useful for exercising the drift monitor.
func (s *Simulator) NudgeStation(serial string, dx, dy, dz float64) bool {
	for i := range s.devices {
		if s.devices[i].Serial == serial && s.devices[i].Class == ClassBaseStation {
			s.devices[i].Base.X += dx
			s.devices[i].Base.Y += dy
			s.devices[i].Base.Z += dz
			return true
		}
	}
	return false
}
