package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/banshee-data/jitter.report/internal/httputil"
	"github.com/banshee-data/jitter.report/internal/units"
	"github.com/banshee-data/jitter.report/internal/vr"
)

// statusBaseURL turns a listen address into the URL a local status check
// should hit. ":8080" means localhost.
func statusBaseURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "http://localhost" + listen
	}
	return "http://" + listen
}

// runStatus fetches one stats snapshot from a running server and prints a
// per-device summary.
func runStatus(w io.Writer, baseURL string, client httputil.HTTPClient) error {
	resp, err := client.Get(baseURL + "/api/stats")
	if err != nil {
		return fmt.Errorf("fetching stats from %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var snap vr.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return fmt.Errorf("decoding stats response: %w", err)
	}

	fmt.Fprintf(w, "snapshot at %s, %d frames ingested\n", snap.Time.Format("15:04:05"), snap.Frames)
	if snap.Run != nil {
		fmt.Fprintf(w, "recording run %s (%d samples)\n", snap.Run.ID, snap.Run.Samples)
	}

	if len(snap.Devices) == 0 {
		fmt.Fprintln(w, "no devices observed")
	}
	for _, ds := range snap.Devices {
		if ds.Class == vr.ClassBaseStation {
			continue
		}
		fmt.Fprintf(w, "%-16s %-10s %-6s sigma x/y/z %.3f/%.3f/%.3f mm  loss %.2f%%\n",
			ds.Serial, ds.Class, ds.State,
			units.ConvertLength(ds.Stats.X.Sigma, units.Millimetres),
			units.ConvertLength(ds.Stats.Y.Sigma, units.Millimetres),
			units.ConvertLength(ds.Stats.Z.Sigma, units.Millimetres),
			ds.Stats.LossRate)
	}

	for _, st := range snap.Stations {
		fmt.Fprintf(w, "%-16s station    %-11s drift %.2fmm (max %.2fmm)\n",
			st.Serial, st.State, st.DriftMM, st.MaxDriftMM)
	}

	return nil
}
