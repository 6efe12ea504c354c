package main

import (
	"context"
	"log"

	"github.com/banshee-data/jitter.report/internal/db"
	"github.com/banshee-data/jitter.report/internal/drift"
	"github.com/banshee-data/jitter.report/internal/vr"
)

// stationRecorder persists base station state transitions so a station
// knocked during an unattended soak leaves a timestamped trace in the
// database.
type stationRecorder struct {
	db   *db.DB
	last map[string]drift.State
}

func newStationRecorder(database *db.DB) *stationRecorder {
	return &stationRecorder{
		db:   database,
		last: make(map[string]drift.State),
	}
}

// observe records every station whose state differs from the last one
// seen. The first sighting is recorded too: it marks when the baseline
// started accumulating.
func (r *stationRecorder) observe(stations []drift.Status) {
	for _, st := range stations {
		prev, seen := r.last[st.Serial]
		if seen && prev == st.State {
			continue
		}
		r.last[st.Serial] = st.State

		if err := r.db.RecordStationEvent(st.Serial, string(st.State), st.DriftMM); err != nil {
			log.Printf("failed to record station event for %s: %v", st.Serial, err)
			continue
		}
		if st.State == drift.StateMoved {
			log.Printf("station %s moved %.2fmm from baseline", st.Serial, st.DriftMM)
		} else {
			log.Printf("station %s is %s", st.Serial, st.State)
		}
	}
}

// follow consumes the session's stats stream until ctx is cancelled.
func (r *stationRecorder) follow(ctx context.Context, session *vr.Session) {
	id, ch := session.SubscribeStats()
	defer session.Unsubscribe(id)
	for {
		select {
		case snap := <-ch:
			r.observe(snap.Stations)
		case <-ctx.Done():
			return
		}
	}
}
