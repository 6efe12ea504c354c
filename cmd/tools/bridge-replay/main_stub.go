//go:build !pcap
// +build !pcap

// Command bridge-replay resends the bridge datagrams in a packet capture
// to a running jitter server. PCAP support is optional because it needs
// libpcap at build time.
package main

import "log"

func main() {
	log.Fatal("PCAP support not enabled: rebuild with -tags=pcap to enable capture replay")
}
