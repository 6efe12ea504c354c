package vr

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameLineMatrixForm(t *testing.T) {
	line := `{"t":1723900000.5,"devices":[{"serial":"LHR-3CDE8F01","class":"tracker","valid":true,` +
		`"m":[[1,0,0,0.25],[0,1,0,1.5],[0,0,1,-0.75]]}]}`

	f, err := ParseFrameLine([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1723900000, 500000000).UTC(), f.Time)
	require.Len(t, f.Samples, 1)

	ps := f.Samples[0]
	assert.Equal(t, "LHR-3CDE8F01", ps.Serial)
	assert.Equal(t, ClassTracker, ps.Class)
	assert.True(t, ps.Valid)
	assert.Equal(t, Vec3{X: 0.25, Y: 1.5, Z: -0.75}, ps.Position)
	assert.InDelta(t, 0, ps.Rotation.Yaw, 1e-9)
}

func TestParseFrameLinePosRotForm(t *testing.T) {
	line := `{"t":100,"devices":[{"serial":"LHR-FD35C2B7","class":"controller",` +
		`"pos":{"x":0.1,"y":1.2,"z":-0.4},"rot":{"pitch":1,"yaw":-12.5,"roll":0.2}}]}`

	f, err := ParseFrameLine([]byte(line))
	require.NoError(t, err)
	require.Len(t, f.Samples, 1)

	ps := f.Samples[0]
	assert.Equal(t, ClassController, ps.Class)
	assert.True(t, ps.Valid, "valid defaults to true when a pose is present")
	assert.Equal(t, Vec3{X: 0.1, Y: 1.2, Z: -0.4}, ps.Position)
	assert.Equal(t, Euler{Pitch: 1, Yaw: -12.5, Roll: 0.2}, ps.Rotation)
}

func TestParseFrameLineInvalidPose(t *testing.T) {
	// Explicitly flagged invalid, and reported with no pose at all: both
	// must come through as dropouts.
	line := `{"devices":[` +
		`{"serial":"LHR-A","class":"tracker","valid":false,"pos":{"x":1,"y":2,"z":3}},` +
		`{"serial":"LHR-B","class":"tracker"}]}`

	f, err := ParseFrameLine([]byte(line))
	require.NoError(t, err)
	require.Len(t, f.Samples, 2)
	assert.False(t, f.Samples[0].Valid)
	assert.False(t, f.Samples[1].Valid)
}

func TestParseFrameLineEvents(t *testing.T) {
	line := `{"t":42,"devices":[` +
		`{"serial":"LHB-02F7A4D1","class":"basestation","event":"activated"},` +
		`{"serial":"LHR-3CDE8F01","class":"tracker","pos":{"x":0,"y":1,"z":0}},` +
		`{"serial":"LHR-OLD","class":"tracker","event":"deactivated"}]}`

	f, err := ParseFrameLine([]byte(line))
	require.NoError(t, err)
	require.Len(t, f.Events, 2)
	require.Len(t, f.Samples, 1)
	assert.Equal(t, DeviceEvent{Serial: "LHB-02F7A4D1", Class: ClassBaseStation, Type: EventActivated}, f.Events[0])
	assert.Equal(t, DeviceEvent{Serial: "LHR-OLD", Class: ClassTracker, Type: EventDeactivated}, f.Events[1])
}

func TestParseFrameLineErrors(t *testing.T) {
	_, err := ParseFrameLine(nil)
	assert.ErrorIs(t, err, ErrEmptyLine)

	_, err = ParseFrameLine([]byte("bridge ready, streaming at 90Hz"))
	assert.Error(t, err)

	_, err = ParseFrameLine([]byte(`{"devices":[{"class":"tracker","pos":{"x":1,"y":2,"z":3}}]}`))
	assert.ErrorContains(t, err, "no serial")

	_, err = ParseFrameLine([]byte(`{"devices":[{"serial":"LHR-A","event":"rebooted"}]}`))
	assert.ErrorContains(t, err, "unknown event")
}

func TestParseFrameLineUnstamped(t *testing.T) {
	f, err := ParseFrameLine([]byte(`{"devices":[]}`))
	require.NoError(t, err)
	assert.True(t, f.Time.IsZero())
}

func TestEncodeFrameRoundTrip(t *testing.T) {
	in := Frame{
		Time: time.Unix(1723900123, 250000000).UTC(),
		Samples: []PoseSample{
			{
				Serial:   "LHR-3CDE8F01",
				Class:    ClassTracker,
				Valid:    true,
				Position: Vec3{X: 0.125, Y: 1.5, Z: -0.25},
				Rotation: Euler{Pitch: 2, Yaw: -8, Roll: 0.5},
			},
			{Serial: "LHR-77B0A219", Class: ClassTracker, Valid: false},
		},
		Events: []DeviceEvent{
			{Serial: "LHB-02F7A4D1", Class: ClassBaseStation, Type: EventActivated},
		},
	}

	line, err := EncodeFrame(in)
	require.NoError(t, err)

	out, err := ParseFrameLine(line)
	require.NoError(t, err)

	assert.WithinDuration(t, in.Time, out.Time, time.Microsecond)
	if diff := cmp.Diff(in.Samples, out.Samples, cmpopts.IgnoreFields(PoseSample{}, "Time")); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(in.Events, out.Events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}
