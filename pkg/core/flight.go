// pkg/core/flight.go
package core

import "time"

// EdgeEventKind names a navigator state transition.
type EdgeEventKind string

const (
	EventRecordingStarted EdgeEventKind = "recording_started"
	EventRecordingStopped EdgeEventKind = "recording_stopped"
	EventRouteStarted     EdgeEventKind = "route_started"
	EventEdgeStarted      EdgeEventKind = "edge_started"
	EventEdgeCompleted    EdgeEventKind = "edge_completed"
	EventRouteFinished    EdgeEventKind = "route_finished"
	EventRouteStopped     EdgeEventKind = "route_stopped"
)

// EdgeEvent is a transition of the recording or the active route.
// Start and End name the edge concerned; Mode is the traversal mode if any.
type EdgeEvent struct {
	ID        uint           `json:"id"`
	SessionID uint           `json:"sessionId"`
	Time      time.Time      `json:"time"`
	Tick      int64          `json:"tick"`
	Kind      EdgeEventKind  `json:"kind"`
	Start     string         `json:"start"`
	End       string         `json:"end"`
	Mode      string         `json:"mode,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Frame is a tracking-error sample taken while an edge is playing.
type Frame struct {
	SessionID         uint      `json:"sessionId"`
	Time              time.Time `json:"time"`
	Tick              int64     `json:"tick"`
	Start             string    `json:"start"`
	End               string    `json:"end"`
	PathTick          int64     `json:"pathTick"`
	Reference         Vec3      `json:"reference"`
	Actual            Vec3      `json:"actual"`
	ReferenceVelocity Vec3      `json:"referenceVelocity"`
	ActualVelocity    Vec3      `json:"actualVelocity"`
	PositionError     float64   `json:"positionError"`
	AttitudeError     Vec3      `json:"attitudeError"` // pitch, yaw, roll in radians
}

// Track is the geometry of a finished recording: the positions of its motion samples.
type Track struct {
	ID         uint      `json:"id"`
	SessionID  uint      `json:"sessionId"`
	Time       time.Time `json:"time"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	Duration   int64     `json:"duration"`
	Efficiency float64   `json:"efficiency"`
	Ticks      []int64   `json:"ticks"`
	Points     []Vec3    `json:"points"`
}
