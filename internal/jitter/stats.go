package jitter

// Channel names for the six scalar pose channels.
const (
	ChannelX     = "x"
	ChannelY     = "y"
	ChannelZ     = "z"
	ChannelPitch = "pitch"
	ChannelYaw   = "yaw"
	ChannelRoll  = "roll"
)

// PositionChannels lists the position channels in column order.
var PositionChannels = []string{ChannelX, ChannelY, ChannelZ}

// RotationChannels lists the rotation channels in column order.
var RotationChannels = []string{ChannelPitch, ChannelYaw, ChannelRoll}

// ChannelKey identifies one scalar channel of one device.
type ChannelKey struct {
	Serial  string
	Channel string
}

// ChannelStats is a read-only snapshot of one channel's window.
type ChannelStats struct {
	Mean  float64 `json:"mean"`
	Sigma float64 `json:"sigma"`
	Count int     `json:"count"`
}

// DeviceStats aggregates the snapshots of all six channels of a device plus
// the derived distance jitter and the frame-loss accounting.
type DeviceStats struct {
	Serial string `json:"serial"`

	X ChannelStats `json:"x"`
	Y ChannelStats `json:"y"`
	Z ChannelStats `json:"z"`

	Pitch ChannelStats `json:"pitch"`
	Yaw   ChannelStats `json:"yaw"`
	Roll  ChannelStats `json:"roll"`

	// Distance is the per-sample Euclidean distance from the window's mean
	// position: its sigma is a single scalar summary of positional jitter.
	Distance ChannelStats `json:"distance"`

	// Samples is the number of position samples currently windowed.
	Samples int `json:"samples"`

	// Frames counts every tick the device was observed, valid or not.
	// Lost counts the ticks where the pose was invalid. LossRate is
	// 100*Lost/Frames.
	Frames   int64   `json:"frames"`
	Lost     int64   `json:"lost"`
	LossRate float64 `json:"loss_rate"`
}
