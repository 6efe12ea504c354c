package posemux

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptionsNormalizeDefaults(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if opts.BaudRate != 115200 {
		t.Errorf("Expected default baud rate 115200, got %d", opts.BaudRate)
	}
	if opts.DataBits != 8 {
		t.Errorf("Expected default data bits 8, got %d", opts.DataBits)
	}
	if opts.StopBits != 1 {
		t.Errorf("Expected default stop bits 1, got %d", opts.StopBits)
	}
	if opts.Parity != "N" {
		t.Errorf("Expected default parity N, got %q", opts.Parity)
	}
}

func TestPortOptionsNormalizeValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    PortOptions
		wantErr bool
	}{
		{"valid custom", PortOptions{BaudRate: 230400, DataBits: 7, StopBits: 2, Parity: "even"}, false},
		{"data bits too small", PortOptions{DataBits: 4}, true},
		{"data bits too large", PortOptions{DataBits: 9}, true},
		{"bad stop bits", PortOptions{StopBits: 3}, true},
		{"bad parity", PortOptions{Parity: "M"}, true},
		{"parity word", PortOptions{Parity: "odd"}, false},
		{"parity lower", PortOptions{Parity: "n"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.Normalize()
			if (err != nil) != tt.wantErr {
				t.Errorf("Normalize error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPortOptionsEqual(t *testing.T) {
	a := PortOptions{}
	b := PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "none"}
	if !a.Equal(b) {
		t.Error("Defaults and their explicit spelling should be equal")
	}

	c := PortOptions{BaudRate: 9600}
	if a.Equal(c) {
		t.Error("Different baud rates should not be equal")
	}

	bad := PortOptions{Parity: "Z"}
	if a.Equal(bad) {
		t.Error("Invalid options should never compare equal")
	}
}

func TestPortOptionsSerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 57600, Parity: "E", StopBits: 2}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode returned error: %v", err)
	}
	if mode.BaudRate != 57600 {
		t.Errorf("Expected baud rate 57600, got %d", mode.BaudRate)
	}
	if mode.DataBits != 8 {
		t.Errorf("Expected data bits 8, got %d", mode.DataBits)
	}
	if mode.Parity != serial.EvenParity {
		t.Errorf("Expected even parity, got %v", mode.Parity)
	}
	if mode.StopBits != serial.StopBits(2) {
		t.Errorf("Expected 2 stop bits, got %v", mode.StopBits)
	}

	if _, err := (PortOptions{DataBits: 3}).SerialMode(); err == nil {
		t.Error("Expected error for invalid options")
	}
}
