// Command gen-poselog generates a sample pose frame log for testing the
// ingest path without a headset: each line is one bridge protocol frame.
package main

import (
	"bufio"
	"flag"
	"log"
	"os"
	"time"

	"github.com/banshee-data/jitter.report/internal/timeutil"
	"github.com/banshee-data/jitter.report/internal/vr"
)

func main() {
	output := flag.String("o", "sample.poselog", "output path")
	frames := flag.Int("n", 900, "number of frames")
	hz := flag.Float64("hz", 90, "frame rate encoded in the timestamps")
	seed := flag.Int64("seed", 1, "simulator seed")
	nudge := flag.Int("nudge-at", 0, "frame at which to knock a base station (0 disables)")
	flag.Parse()

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()

	// frames are timestamped on a synthetic clock so the log plays back at
	// the requested rate regardless of how fast it was generated
	clock := timeutil.NewMockClock(time.Now().UTC())
	step := time.Duration(float64(time.Second) / *hz)

	sim := vr.NewSimulator(vr.SimConfig{Seed: *seed, Clock: clock})
	stations := stationSerials()

	for i := 0; i < *frames; i++ {
		if *nudge > 0 && i == *nudge && len(stations) > 0 {
			sim.NudgeStation(stations[0], 0.01, 0, 0)
			log.Printf("nudged station %s at frame %d", stations[0], i)
		}
		line := sim.NextLine()
		if line == nil {
			continue
		}
		w.Write(line)
		w.WriteByte('\n')
		clock.Advance(step)
		if (i+1)%300 == 0 {
			log.Printf("%d/%d frames", i+1, *frames)
		}
	}
	log.Printf("✓ Created: %s", *output)
}

func stationSerials() []string {
	var serials []string
	for _, d := range vr.DefaultSimDevices() {
		if d.Class == vr.ClassBaseStation {
			serials = append(serials, d.Serial)
		}
	}
	return serials
}
