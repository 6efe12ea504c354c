//go:build pcap
// +build pcap

// Command bridge-replay resends the bridge datagrams in a packet capture
// to a running jitter server, preserving the original timing. Useful for
// reproducing a field recording on a bench without the headset.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

func main() {
	pcapFile := flag.String("pcap", "", "packet capture to replay")
	port := flag.Int("port", 28370, "UDP port the bridge stream was captured on")
	target := flag.String("target", "localhost:28370", "address to resend datagrams to")
	speed := flag.Float64("speed", 1.0, "replay speed multiplier (2.0 = twice as fast)")
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("a -pcap file is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := replay(ctx, *pcapFile, *port, *target, *speed); err != nil && err != context.Canceled {
		log.Fatalf("replay failed: %v", err)
	}
}

func replay(ctx context.Context, pcapFile string, port int, target string, speed float64) error {
	if speed <= 0 {
		speed = 1.0
	}

	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return fmt.Errorf("resolving target %q: %w", target, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("dialing %q: %w", target, err)
	}
	defer conn.Close()

	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", port)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter %q: %w", filterStr, err)
	}
	log.Printf("replaying %s to %s (filter: %s, speed: %.1fx)", pcapFile, target, filterStr, speed)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	startTime := time.Now()

	var lastPacketTime time.Time

	for {
		select {
		case <-ctx.Done():
			log.Printf("replay stopping (%d packets sent)", packetCount)
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				elapsed := time.Since(startTime)
				log.Printf("replay complete: %d packets in %v (speed: %.1fx)", packetCount, elapsed, speed)
				return nil
			}

			captureTime := packet.Metadata().Timestamp
			if !lastPacketTime.IsZero() {
				delay := captureTime.Sub(lastPacketTime)
				scaledDelay := time.Duration(float64(delay) / speed)
				if scaledDelay > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(scaledDelay):
					}
				}
			}
			lastPacketTime = captureTime

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}

			if _, err := conn.Write(udp.Payload); err != nil {
				log.Printf("failed to send packet %d: %v", packetCount, err)
				continue
			}
			packetCount++

			if packetCount%10000 == 0 {
				elapsed := time.Since(startTime)
				log.Printf("replay progress: %d packets in %v (%.0f pkt/s)",
					packetCount, elapsed, float64(packetCount)/elapsed.Seconds())
			}
		}
	}
}
