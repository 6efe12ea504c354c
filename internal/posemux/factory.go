package posemux

import (
	"go.bug.st/serial"
)

// NewSerialBridgeMux creates a PoseMux instance backed by a bridge on a
// real serial port at the given path using the provided serial options.
func NewSerialBridgeMux(path string, opts PortOptions, mopts MuxOptions) (*PoseMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewPoseMux[serial.Port](port, mopts), nil
}
