package posemux

import (
	"io"
	"time"
)

// BridgePorter defines the minimal interface needed for a bridge
// connection. This abstraction enables unit testing without a headset or
// a bridge process on the other end.
type BridgePorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutBridgePorter extends BridgePorter with timeout capabilities.
// This is an optional interface that bridge ports may implement.
type TimeoutBridgePorter interface {
	BridgePorter
	// SetReadTimeout sets the read timeout for the connection.
	SetReadTimeout(timeout time.Duration) error
}
