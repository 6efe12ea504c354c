// Package vr models the tracked-device domain: pose samples, device
// classes, and the session state fed by the bridge line protocol. The VR
// runtime itself is reached only through a bridge process that streams one
// JSON frame per line; nothing in here links against a vendor SDK.
package vr

import (
	"math"
	"strings"
	"time"
)

// Vec3 is a position in metres, in the runtime's absolute tracking space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Euler is a rotation in degrees.
type Euler struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Matrix34 is the runtime's row-major 3x4 device-to-absolute transform.
// The rotation lives in the left 3x3 block, the translation in column 3.
type Matrix34 [3][4]float64

// Position extracts the translation column.
func (m Matrix34) Position() Vec3 {
	return Vec3{X: m[0][3], Y: m[1][3], Z: m[2][3]}
}

const radToDeg = 180 / math.Pi

// Euler converts the rotation block to pitch/yaw/roll in degrees. A
// degenerate matrix can push asin outside its domain and produce NaN;
// that propagates into the statistics rather than being masked.
func (m Matrix34) Euler() Euler {
	return Euler{
		Pitch: math.Atan2(m[2][1], m[2][2]) * radToDeg,
		Yaw:   math.Asin(-m[2][0]) * radToDeg,
		Roll:  math.Atan2(m[1][0], m[0][0]) * radToDeg,
	}
}

// DeviceClass identifies what kind of tracked device a pose belongs to.
type DeviceClass string

const (
	ClassTracker     DeviceClass = "tracker"
	ClassController  DeviceClass = "controller"
	ClassBaseStation DeviceClass = "basestation"
	ClassUnknown     DeviceClass = "unknown"
)

// ParseDeviceClass maps a wire class token to a DeviceClass. Unrecognised
// tokens become ClassUnknown rather than an error so that newer bridge
// versions can report classes this build does not know about.
func ParseDeviceClass(s string) DeviceClass {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tracker", "generic_tracker":
		return ClassTracker
	case "controller":
		return ClassController
	case "basestation", "base_station", "tracking_reference":
		return ClassBaseStation
	default:
		return ClassUnknown
	}
}

// DisplayPrefix returns the label prefix used in device lists and exports.
func (c DeviceClass) DisplayPrefix() string {
	switch c {
	case ClassTracker:
		return "[Tracker] "
	case ClassController:
		return "[Controller] "
	case ClassBaseStation:
		return "[BaseStation] "
	default:
		return ""
	}
}

// DisplayName returns the prefixed serial, e.g. "[Tracker] LHR-3CDE8F01".
func (c DeviceClass) DisplayName(serial string) string {
	return c.DisplayPrefix() + serial
}

// PoseSample is one device's pose at one tick. Valid is false when the
// runtime reported the device but could not produce a usable pose; such
// samples carry no position and must be loss-counted, never ingested.
type PoseSample struct {
	Serial   string      `json:"serial"`
	Class    DeviceClass `json:"class"`
	Time     time.Time   `json:"time"`
	Position Vec3        `json:"position"`
	Rotation Euler       `json:"rotation"`
	Valid    bool        `json:"valid"`
}
