package posemux

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/banshee-data/jitter.report/internal/vr"
)

// CurrentState holds the latest info values received from the bridge
// and is intentionally package-level so admin routes or tests can inspect it.
var CurrentState map[string]any

// RecordSink receives the samples recorded while a run is active.
// Implemented by the database flusher.
type RecordSink interface {
	Enqueue(samples []vr.RecordedSample)
}

// HandlePoseFrame feeds one frame line through the session and queues any
// recorded samples on the sink.
func HandlePoseFrame(s *vr.Session, sink RecordSink, payload string) error {
	recorded, err := s.HandleLine(payload)
	if err != nil {
		return err
	}
	if sink != nil && len(recorded) > 0 {
		sink.Enqueue(recorded)
	}
	return nil
}

// HandleBridgeInfo merges an info/config echo into CurrentState.
func HandleBridgeInfo(payload string) error {
	var infoValues map[string]any

	if err := json.Unmarshal([]byte(payload), &infoValues); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %v", err)
	}

	// update the current state with the new info values
	if CurrentState == nil {
		CurrentState = make(map[string]any)
	}
	for k, v := range infoValues {
		CurrentState[k] = v
	}

	log.Printf("Bridge info line: %+v", payload)

	return nil
}

// HandleEvent dispatches one bridge line by classification. Frame lines
// dominate the stream; everything else is rare bridge chatter.
func HandleEvent(s *vr.Session, sink RecordSink, payload string) error {
	switch ClassifyLine(payload) {
	case LineTypePoseFrame:
		if err := HandlePoseFrame(s, sink, payload); err != nil {
			return fmt.Errorf("failed to handle pose frame: %v", err)
		}
	case LineTypeBridgeInfo:
		if err := HandleBridgeInfo(payload); err != nil {
			return fmt.Errorf("failed to handle bridge info: %v", err)
		}
	default:
		log.Printf("unknown bridge line type: %s", payload)
	}
	return nil
}
