package vr

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/jitter.report/internal/drift"
	"github.com/banshee-data/jitter.report/internal/jitter"
	"github.com/banshee-data/jitter.report/internal/monitoring"
	"github.com/banshee-data/jitter.report/internal/timeutil"
)

// DeviceState says whether a device is currently delivering poses.
type DeviceState string

const (
	DeviceActive DeviceState = "active"
	DeviceLost   DeviceState = "lost"
)

// Device is one registry entry. Devices register themselves on first
// sight; a deactivation event or a silence timeout marks them lost but
// keeps the entry so the device list shows what was present.
type Device struct {
	Serial    string      `json:"serial"`
	Class     DeviceClass `json:"class"`
	Name      string      `json:"name"`
	State     DeviceState `json:"state"`
	FirstSeen time.Time   `json:"first_seen"`
	LastSeen  time.Time   `json:"last_seen"`
}

// Run is one recording window. Samples counts the rows recorded for it.
type Run struct {
	ID         string     `json:"id"`
	Note       string     `json:"note,omitempty"`
	WindowSize int        `json:"window_size"`
	StartedAt  time.Time  `json:"started_at"`
	StoppedAt  *time.Time `json:"stopped_at,omitempty"`
	Samples    int64      `json:"samples"`
}

// RecordedSample is one persisted measurement row: the pose that arrived
// plus the rolling statistics at the moment it was ingested. Positions
// and sigmas are metres, rotations and their sigmas degrees.
type RecordedSample struct {
	RunID  string
	Time   time.Time
	Serial string
	Class  DeviceClass

	X, Y, Z          float64
	Pitch, Yaw, Roll float64

	SigmaX, SigmaY, SigmaZ          float64
	SigmaPitch, SigmaYaw, SigmaRoll float64
}

// DeviceStatus pairs a registry entry with its rolling statistics.
// Stations carry zero Stats; their signal lives in Snapshot.Stations.
type DeviceStatus struct {
	Device
	Stats jitter.DeviceStats `json:"stats"`
}

// Snapshot is one live view of the session, the payload pushed to stats
// subscribers and served by the stats endpoint.
type Snapshot struct {
	Time     time.Time      `json:"time"`
	Frames   int64          `json:"frames"`
	Run      *Run           `json:"run,omitempty"`
	Devices  []DeviceStatus `json:"devices"`
	Stations []drift.Status `json:"stations"`
}

// SessionConfig tunes a Session. Zero values fall back to the defaults
// for a 90Hz pose stream.
type SessionConfig struct {
	// WindowSize is the rolling window capacity per device channel.
	WindowSize int
	// RenderDivisor publishes a stats snapshot every Nth frame, thinning
	// the 90Hz stream to something a browser can repaint.
	RenderDivisor int
	// DeviceTimeout is how long a device may go silent before ExpireStale
	// marks it lost.
	DeviceTimeout time.Duration
	// Drift configures the base station monitor.
	Drift drift.Config
	// Clock defaults to the wall clock.
	Clock timeutil.Clock
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.WindowSize < 1 {
		c.WindowSize = 100
	}
	if c.RenderDivisor < 1 {
		c.RenderDivisor = 3
	}
	if c.DeviceTimeout <= 0 {
		c.DeviceTimeout = 5 * time.Second
	}
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	return c
}

// Session owns the measurement state: the device registry, the rolling
// jitter tracker, the base station drift monitor and the active run. One
// Session serves one bridge stream. Safe for concurrent use.
type Session struct {
	cfg   SessionConfig
	clock timeutil.Clock

	tracker *jitter.Tracker
	drift   *drift.Monitor

	mu          sync.Mutex
	devices     map[string]*Device
	frames      int64
	run         *Run
	subscribers map[string]chan Snapshot
}

// NewSession returns a Session with cfg normalised to defaults.
func NewSession(cfg SessionConfig) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		cfg:         cfg,
		clock:       cfg.Clock,
		tracker:     jitter.NewTracker(cfg.WindowSize),
		drift:       drift.New(cfg.Drift),
		devices:     make(map[string]*Device),
		subscribers: make(map[string]chan Snapshot),
	}
}

// Tracker exposes the rolling statistics store for chart rendering.
func (s *Session) Tracker() *jitter.Tracker { return s.tracker }

// HandleLine decodes one bridge line and feeds it through the session.
// Undecodable lines return an error and change nothing.
func (s *Session) HandleLine(line string) ([]RecordedSample, error) {
	f, err := ParseFrameLine([]byte(line))
	if err != nil {
		return nil, err
	}
	return s.HandleFrame(f), nil
}

// HandleFrame routes one frame: events update the registry, station poses
// feed the drift monitor, tracker and controller poses feed the jitter
// windows. When a run is active each ingested pose comes back as a
// RecordedSample carrying the post-ingest statistics, ready to persist.
func (s *Session) HandleFrame(f Frame) []RecordedSample {
	now := s.clock.Now()
	if f.Time.IsZero() {
		f.Time = now
	}

	s.mu.Lock()
	s.frames++
	publish := s.frames%int64(s.cfg.RenderDivisor) == 0

	for _, ev := range f.Events {
		s.applyEventLocked(ev, now)
	}

	var recorded []RecordedSample
	for _, ps := range f.Samples {
		s.upsertLocked(ps, now)

		if ps.Class == ClassBaseStation {
			if ps.Valid {
				s.drift.Observe(ps.Serial, ps.Position.X, ps.Position.Y, ps.Position.Z)
			}
			continue
		}

		if !ps.Valid {
			s.tracker.RecordLoss(ps.Serial)
			continue
		}

		s.tracker.IngestPose(ps.Serial,
			ps.Position.X, ps.Position.Y, ps.Position.Z,
			ps.Rotation.Pitch, ps.Rotation.Yaw, ps.Rotation.Roll)

		if s.run != nil {
			s.run.Samples++
			recorded = append(recorded, s.recordLocked(ps, f.Time))
		}
	}

	var snap Snapshot
	if publish {
		snap = s.snapshotLocked(now)
	}
	s.mu.Unlock()

	if publish {
		s.publish(snap)
	}
	return recorded
}

func (s *Session) recordLocked(ps PoseSample, at time.Time) RecordedSample {
	ds := s.tracker.DeviceSnapshot(ps.Serial)
	return RecordedSample{
		RunID:      s.run.ID,
		Time:       at,
		Serial:     ps.Serial,
		Class:      ps.Class,
		X:          ps.Position.X,
		Y:          ps.Position.Y,
		Z:          ps.Position.Z,
		Pitch:      ps.Rotation.Pitch,
		Yaw:        ps.Rotation.Yaw,
		Roll:       ps.Rotation.Roll,
		SigmaX:     ds.X.Sigma,
		SigmaY:     ds.Y.Sigma,
		SigmaZ:     ds.Z.Sigma,
		SigmaPitch: ds.Pitch.Sigma,
		SigmaYaw:   ds.Yaw.Sigma,
		SigmaRoll:  ds.Roll.Sigma,
	}
}

func (s *Session) applyEventLocked(ev DeviceEvent, now time.Time) {
	switch ev.Type {
	case EventActivated:
		d := s.devices[ev.Serial]
		if d == nil {
			d = &Device{Serial: ev.Serial, FirstSeen: now}
			s.devices[ev.Serial] = d
		}
		if ev.Class != ClassUnknown {
			d.Class = ev.Class
		}
		d.Name = d.Class.DisplayName(ev.Serial)
		d.State = DeviceActive
		d.LastSeen = now
		monitoring.Logf("session: device activated: %s", d.Name)
	case EventDeactivated:
		if d := s.devices[ev.Serial]; d != nil {
			d.State = DeviceLost
			d.LastSeen = now
			monitoring.Logf("session: device deactivated: %s", d.Name)
		}
		s.dropDeviceStateLocked(ev.Serial)
	}
}

func (s *Session) upsertLocked(ps PoseSample, now time.Time) {
	d := s.devices[ps.Serial]
	if d == nil {
		d = &Device{Serial: ps.Serial, FirstSeen: now}
		s.devices[ps.Serial] = d
		monitoring.Logf("session: new device: %s", ps.Class.DisplayName(ps.Serial))
	}
	if ps.Class != ClassUnknown {
		d.Class = ps.Class
	}
	d.Name = d.Class.DisplayName(ps.Serial)
	d.State = DeviceActive
	d.LastSeen = now
}

// dropDeviceStateLocked discards the measurement state tied to a device
// that stopped tracking. The registry entry survives.
func (s *Session) dropDeviceStateLocked(serial string) {
	s.tracker.RemoveDevice(serial)
	s.drift.Remove(serial)
}

// ExpireStale marks devices lost after DeviceTimeout of silence and drops
// their measurement state. Returns the serials expired this sweep.
func (s *Session) ExpireStale() []string {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for serial, d := range s.devices {
		if d.State != DeviceActive || now.Sub(d.LastSeen) <= s.cfg.DeviceTimeout {
			continue
		}
		d.State = DeviceLost
		s.dropDeviceStateLocked(serial)
		expired = append(expired, serial)
		monitoring.Logf("session: device %s silent for %s, marking lost", d.Name, now.Sub(d.LastSeen).Round(time.Millisecond))
	}
	sort.Strings(expired)
	return expired
}

// StartRun begins recording. Statistics restart from empty windows so the
// recorded sigmas describe only this run.
func (s *Session) StartRun(note string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		return Run{}, fmt.Errorf("run %s already active", s.run.ID)
	}
	s.tracker.ResetAll()
	s.run = &Run{
		ID:         uuid.New().String(),
		Note:       note,
		WindowSize: s.tracker.Capacity(),
		StartedAt:  s.clock.Now(),
	}
	monitoring.Logf("session: run %s started", s.run.ID)
	return *s.run, nil
}

// StopRun ends the active run and returns its final state.
func (s *Session) StopRun() (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return Run{}, fmt.Errorf("no active run")
	}
	stopped := s.clock.Now()
	s.run.StoppedAt = &stopped
	done := *s.run
	s.run = nil
	monitoring.Logf("session: run %s stopped after %d samples", done.ID, done.Samples)
	return done, nil
}

// ActiveRun returns a copy of the run in progress, if any.
func (s *Session) ActiveRun() (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return Run{}, false
	}
	return *s.run, true
}

// Clear resets every jitter window and loss counter. Station baselines
// are left alone; use RecalibrateStations when the reference itself moved.
func (s *Session) Clear() {
	s.tracker.ResetAll()
	monitoring.Logf("session: statistics cleared")
}

// ClearDevice resets one known device's windows and counters. Reports
// false for serials the registry has never seen.
func (s *Session) ClearDevice(serial string) bool {
	s.mu.Lock()
	_, ok := s.devices[serial]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.tracker.Reset(serial)
	monitoring.Logf("session: statistics cleared for %s", serial)
	return true
}

// RecalibrateStations restarts baseline calibration for every station.
func (s *Session) RecalibrateStations() {
	s.drift.RecalibrateAll()
	monitoring.Logf("session: station baselines discarded, recalibrating")
}

// RecalibrateStation restarts baseline calibration for one station.
// Reports false when the serial is not a known station.
func (s *Session) RecalibrateStation(serial string) bool {
	known := s.drift.Recalibrate(serial)
	if known {
		monitoring.Logf("session: station %s baseline discarded, recalibrating", serial)
	}
	return known
}

// Devices lists the registry sorted by serial.
func (s *Session) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

// FrameCount returns the frames handled since the session started.
func (s *Session) FrameCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Stations returns the drift status of every known base station.
func (s *Session) Stations() []drift.Status {
	return s.drift.All()
}

// StationRing returns a station's recent drift history in millimetres.
func (s *Session) StationRing(serial string) []float64 {
	return s.drift.Ring(serial)
}

// Snapshot builds the live view served to pollers and pushed to
// subscribers.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(s.clock.Now())
}

func (s *Session) snapshotLocked(now time.Time) Snapshot {
	snap := Snapshot{Time: now, Frames: s.frames}
	if s.run != nil {
		run := *s.run
		snap.Run = &run
	}
	for _, d := range s.devices {
		ds := DeviceStatus{Device: *d}
		if d.Class != ClassBaseStation {
			ds.Stats = s.tracker.DeviceSnapshot(d.Serial)
		}
		snap.Devices = append(snap.Devices, ds)
	}
	sort.Slice(snap.Devices, func(i, j int) bool { return snap.Devices[i].Serial < snap.Devices[j].Serial })
	snap.Stations = s.drift.All()
	return snap
}

// SubscribeStats registers a consumer for thinned stats snapshots.
// Delivery is best-effort: a subscriber that is not ready when a snapshot
// is published misses it.
func (s *Session) SubscribeStats() (string, chan Snapshot) {
	id := randomID()
	ch := make(chan Snapshot)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// SubscriberCount reports the number of registered stats subscribers.
func (s *Session) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Unsubscribe removes a stats subscriber.
func (s *Session) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, id)
}

func (s *Session) publish(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

func randomID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		panic(fmt.Sprintf("generating subscriber ID: %v", err))
	}
	return hex.EncodeToString(bytes)
}
