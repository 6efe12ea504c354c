package posemux

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestUDPBridgePortReadWrite(t *testing.T) {
	port, err := NewUDPBridgePort("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewUDPBridgePort returned error: %v", err)
	}
	defer port.Close()

	// Commands have nowhere to go before the bridge says hello.
	if _, err := port.Write([]byte("R=90\n")); !errors.Is(err, ErrNoBridgePeer) {
		t.Errorf("Expected ErrNoBridgePeer before first datagram, got %v", err)
	}

	bridge, err := net.Dial("udp", port.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial returned error: %v", err)
	}
	defer bridge.Close()

	if _, err := bridge.Write([]byte("{\"t\":1,\"devices\":[]}\n")); err != nil {
		t.Fatalf("bridge write returned error: %v", err)
	}

	buf := make([]byte, 2048)
	if err := port.SetReadTimeout(2 * time.Second); err != nil {
		t.Fatalf("SetReadTimeout returned error: %v", err)
	}
	n, err := port.Read(buf)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if got := string(buf[:n]); got != "{\"t\":1,\"devices\":[]}\n" {
		t.Errorf("Unexpected datagram %q", got)
	}

	// After hearing from the bridge, commands go back to it.
	if _, err := port.Write([]byte("R=45\n")); err != nil {
		t.Fatalf("Write after peer seen returned error: %v", err)
	}
	bridge.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err = bridge.Read(buf)
	if err != nil {
		t.Fatalf("bridge read returned error: %v", err)
	}
	if got := string(buf[:n]); got != "R=45\n" {
		t.Errorf("Expected command R=45 at bridge, got %q", got)
	}
}

func TestUDPBridgeMuxMonitor(t *testing.T) {
	mux, err := NewUDPBridgeMux("127.0.0.1:0", MuxOptions{})
	if err != nil {
		t.Fatalf("NewUDPBridgeMux returned error: %v", err)
	}

	addr := mux.port.LocalAddr().String()
	bridge, err := net.Dial("udp", addr)
	if err != nil {
		t.Fatalf("Dial returned error: %v", err)
	}
	defer bridge.Close()

	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- mux.Monitor(ctx)
	}()

	got := make(chan string, 8)
	go func() {
		for line := range ch {
			got <- line
		}
	}()

	// UDP gives no delivery guarantee; keep sending until a line lands.
	want := "{\"t\":9,\"devices\":[]}"
	received := ""
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
loop:
	for {
		select {
		case <-tick.C:
			if _, err := bridge.Write([]byte(want + "\n")); err != nil {
				t.Fatalf("bridge write returned error: %v", err)
			}
		case received = <-got:
			break loop
		case <-deadline:
			t.Fatal("Timeout waiting for a line through the UDP mux")
		}
	}
	if received != want {
		t.Errorf("Expected line %q, got %q", want, received)
	}

	if err := mux.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Monitor did not exit after Close")
	}
}
