package posemux

import (
	"fmt"
	"net"
	"sync"
	"time"
)

var ErrNoBridgePeer = fmt.Errorf("no bridge peer seen yet")

// UDPBridgePort adapts a UDP socket to the BridgePorter interface. The
// bridge process sends newline-terminated frame datagrams to our listen
// address; commands go back to whichever peer we last heard from, since
// the bridge initiates the exchange.
type UDPBridgePort struct {
	conn *net.UDPConn

	mu   sync.Mutex
	peer *net.UDPAddr
}

// NewUDPBridgePort listens for bridge datagrams on addr, e.g.
// "0.0.0.0:28100" or ":28100".
func NewUDPBridgePort(addr string) (*UDPBridgePort, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving bridge listen address %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listening for bridge datagrams on %q: %w", addr, err)
	}
	return &UDPBridgePort{conn: conn}, nil
}

// Read returns the next datagram and remembers its sender as the command
// peer. Each datagram holds one or more newline-terminated lines.
func (p *UDPBridgePort) Read(b []byte) (int, error) {
	n, addr, err := p.conn.ReadFromUDP(b)
	if err != nil {
		return n, err
	}
	p.mu.Lock()
	p.peer = addr
	p.mu.Unlock()
	return n, nil
}

// Write sends a command datagram to the last-seen bridge peer.
func (p *UDPBridgePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	peer := p.peer
	p.mu.Unlock()
	if peer == nil {
		return 0, ErrNoBridgePeer
	}
	return p.conn.WriteToUDP(b, peer)
}

// Close closes the socket, unblocking any pending Read.
func (p *UDPBridgePort) Close() error {
	return p.conn.Close()
}

// SetReadTimeout implements TimeoutBridgePorter.
func (p *UDPBridgePort) SetReadTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return p.conn.SetReadDeadline(time.Time{})
	}
	return p.conn.SetReadDeadline(time.Now().Add(timeout))
}

// LocalAddr returns the bound listen address, useful when addr was given
// with port 0.
func (p *UDPBridgePort) LocalAddr() net.Addr {
	return p.conn.LocalAddr()
}

// NewUDPBridgeMux creates a PoseMux instance listening for a bridge on
// the given UDP address.
func NewUDPBridgeMux(addr string, mopts MuxOptions) (*PoseMux[*UDPBridgePort], error) {
	port, err := NewUDPBridgePort(addr)
	if err != nil {
		return nil, err
	}
	return NewPoseMux[*UDPBridgePort](port, mopts), nil
}
