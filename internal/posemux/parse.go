package posemux

import "strings"

const (
	LineTypePoseFrame  = "pose_frame"
	LineTypeBridgeInfo = "bridge_info"
	LineTypeUnknown    = "unknown"
)

// ClassifyLine inspects a bridge line and returns a simple line type
// token. The classification is intentionally conservative: frames always
// carry a "devices" array, info and config echoes are JSON without one.
func ClassifyLine(payload string) string {
	if strings.Contains(payload, "\"devices\"") {
		return LineTypePoseFrame
	}
	if strings.HasPrefix(payload, "{") {
		return LineTypeBridgeInfo
	}
	return LineTypeUnknown
}
