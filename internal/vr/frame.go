package vr

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// The bridge line protocol is one JSON object per newline-terminated line:
//
//	{"t":1723900000.123,"devices":[
//	  {"serial":"LHR-3CDE8F01","class":"tracker","valid":true,
//	   "m":[[...4 floats...],[...],[...]]},
//	  {"serial":"LHR-FD35C2B7","class":"controller","valid":true,
//	   "pos":{"x":0.1,"y":1.2,"z":-0.4},
//	   "rot":{"pitch":1.0,"yaw":-12.5,"roll":0.2}},
//	  {"serial":"LHB-02F7A4D1","class":"basestation","event":"activated"}
//	]}
//
// A device entry carries either a full 3x4 pose matrix ("m"), an already
// decomposed pose ("pos"/"rot"), or a lifecycle event. "t" is seconds
// since the Unix epoch as reported by the bridge; zero means unstamped
// and the receiver substitutes its own clock.

// EventType is a device lifecycle transition reported by the runtime.
type EventType string

const (
	EventActivated   EventType = "activated"
	EventDeactivated EventType = "deactivated"
)

// DeviceEvent records a device joining or leaving the tracked set.
type DeviceEvent struct {
	Serial string      `json:"serial"`
	Class  DeviceClass `json:"class"`
	Type   EventType   `json:"type"`
}

// Frame is one decoded tick of the bridge stream.
type Frame struct {
	Time    time.Time
	Samples []PoseSample
	Events  []DeviceEvent
}

type wireDevice struct {
	Serial string    `json:"serial"`
	Class  string    `json:"class,omitempty"`
	Valid  *bool     `json:"valid,omitempty"`
	Matrix *Matrix34 `json:"m,omitempty"`
	Pos    *Vec3     `json:"pos,omitempty"`
	Rot    *Euler    `json:"rot,omitempty"`
	Event  string    `json:"event,omitempty"`
}

type wireFrame struct {
	T       float64      `json:"t"`
	Devices []wireDevice `json:"devices"`
}

var ErrEmptyLine = errors.New("empty frame line")

// ParseFrameLine decodes one line of the bridge protocol. Lines that are
// not frames (bridge banners, command echoes) fail with a JSON error the
// caller is expected to log and skip.
func ParseFrameLine(line []byte) (Frame, error) {
	if len(line) == 0 {
		return Frame{}, ErrEmptyLine
	}

	var wf wireFrame
	if err := json.Unmarshal(line, &wf); err != nil {
		return Frame{}, fmt.Errorf("decoding frame line: %w", err)
	}

	f := Frame{Time: epochToTime(wf.T)}
	for i, wd := range wf.Devices {
		if wd.Serial == "" {
			return Frame{}, fmt.Errorf("frame device %d has no serial", i)
		}
		class := ParseDeviceClass(wd.Class)

		if wd.Event != "" {
			ev := EventType(wd.Event)
			if ev != EventActivated && ev != EventDeactivated {
				return Frame{}, fmt.Errorf("frame device %q has unknown event %q", wd.Serial, wd.Event)
			}
			f.Events = append(f.Events, DeviceEvent{Serial: wd.Serial, Class: class, Type: ev})
			continue
		}

		ps := PoseSample{
			Serial: wd.Serial,
			Class:  class,
			Time:   f.Time,
			Valid:  wd.Valid == nil || *wd.Valid,
		}
		switch {
		case wd.Matrix != nil:
			ps.Position = wd.Matrix.Position()
			ps.Rotation = wd.Matrix.Euler()
		case wd.Pos != nil:
			ps.Position = *wd.Pos
			if wd.Rot != nil {
				ps.Rotation = *wd.Rot
			}
		default:
			// Reported but poseless. The runtime does this for devices it
			// has lost sight of; count it as a dropout.
			ps.Valid = false
		}
		f.Samples = append(f.Samples, ps)
	}
	return f, nil
}

// EncodeFrame renders f as one protocol line without the trailing newline.
// Poses are emitted in decomposed pos/rot form. Used by the simulator and
// the fixture generator; the real bridge produces matrix form.
func EncodeFrame(f Frame) ([]byte, error) {
	wf := wireFrame{T: timeToEpoch(f.Time)}
	for _, ps := range f.Samples {
		valid := ps.Valid
		wd := wireDevice{
			Serial: ps.Serial,
			Class:  string(ps.Class),
			Valid:  &valid,
		}
		if ps.Valid {
			pos, rot := ps.Position, ps.Rotation
			wd.Pos, wd.Rot = &pos, &rot
		}
		wf.Devices = append(wf.Devices, wd)
	}
	for _, ev := range f.Events {
		wf.Devices = append(wf.Devices, wireDevice{
			Serial: ev.Serial,
			Class:  string(ev.Class),
			Event:  string(ev.Type),
		})
	}
	return json.Marshal(wf)
}

func epochToTime(t float64) time.Time {
	if t == 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		return time.Time{}
	}
	sec, frac := math.Modf(t)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func timeToEpoch(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}
