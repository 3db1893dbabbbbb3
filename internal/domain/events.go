package domain

import "time"

// WireEvent is the structured JSON event delivered to sprint subscribers.
// The field set and names are a compatibility contract with existing
// consumers and must not change.
type WireEvent struct {
	Event     string                 `json:"event"`
	SprintID  string                 `json:"sprint_id"`
	Timestamp string                 `json:"timestamp"`
	Sequence  int64                  `json:"sequence"`
	Data      map[string]interface{} `json:"data"`
}

// SprintUpdate is the legacy flat event shape kept for older consumers.
type SprintUpdate struct {
	Type     string `json:"type"`
	SprintID string `json:"sprint_id"`
	Status   string `json:"status"`
	Phase    string `json:"phase"`
	Details  string `json:"details"`
}

// SprintUpdateType is the fixed type discriminator of the legacy shape.
const SprintUpdateType = "sprint_update"

// WireTimestamp formats t the way subscribers expect.
func WireTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
