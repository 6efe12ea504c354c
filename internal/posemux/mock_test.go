package posemux

import (
	"context"
	"testing"
	"time"
)

func TestNewMockBridgeMux(t *testing.T) {
	t.Chdir(t.TempDir()) // the mock writes received commands to a temp file in cwd

	frame := []byte(`{"t":1,"devices":[]}`)
	mux := NewMockBridgeMux(func() []byte { return frame }, 5*time.Millisecond, MuxOptions{})
	defer mux.Close()

	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	got := make(chan string, 2)
	go func() {
		for line := range ch {
			got <- line
		}
	}()

	select {
	case line := <-got:
		if line != string(frame) {
			t.Errorf("Expected %q, got %q", frame, line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for mock frame")
	}

	// Commands go to the capture file without error.
	if err := mux.SendCommand("R=90"); err != nil {
		t.Errorf("SendCommand returned error: %v", err)
	}
}

func TestMockBridgeMuxSkipsNilFrames(t *testing.T) {
	t.Chdir(t.TempDir())

	calls := 0
	mux := NewMockBridgeMux(func() []byte {
		calls++
		if calls%2 == 0 {
			return nil
		}
		return []byte(`{"t":1,"devices":[]}`)
	}, time.Millisecond, MuxOptions{})
	defer mux.Close()

	_, ch := mux.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	got := make(chan string, 4)
	go func() {
		for line := range ch {
			got <- line
		}
	}()

	for i := 0; i < 3; i++ {
		select {
		case line := <-got:
			if line == "" {
				t.Error("Nil frames must never surface as empty lines")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Timeout waiting for mock frames")
		}
	}
}

func TestTestableBridgePort(t *testing.T) {
	port := NewTestableBridgePort()

	port.AddReadData([]byte("hello\n"))
	buf := make([]byte, 16)
	n, err := port.Read(buf)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if string(buf[:n]) != "hello\n" {
		t.Errorf("Unexpected read data %q", buf[:n])
	}

	if _, err := port.Write([]byte("R=90\n")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if string(port.GetWrittenData()) != "R=90\n" {
		t.Errorf("Unexpected written data %q", port.GetWrittenData())
	}
	if port.ReadCalls != 1 || port.WriteCalls != 1 {
		t.Errorf("Expected 1 read and 1 write call, got %d and %d", port.ReadCalls, port.WriteCalls)
	}

	if err := port.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if _, err := port.Read(buf); err == nil {
		t.Error("Expected error reading a closed port")
	}
	if _, err := port.Write(buf); err == nil {
		t.Error("Expected error writing a closed port")
	}

	port.Reset()
	if port.Closed || port.ReadCalls != 0 || port.WriteCalls != 0 {
		t.Error("Reset should clear state")
	}
}

func TestTestableBridgePortBlockReads(t *testing.T) {
	port := NewTestableBridgePort()
	port.BlockReads = true

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 16)
		port.Read(buf)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Read should block while the buffer is empty")
	case <-time.After(50 * time.Millisecond):
	}

	port.AddReadData([]byte("x"))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not unblock after AddReadData")
	}
}
