// pkg/core/session.go
package core

import (
	"time"

	"github.com/golang/geo/r3"
)

// Vec3 is a world-space vector as stored in the flight log.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FromR3 converts a geometry vector.
func FromR3(v r3.Vector) Vec3 {
	return Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

// R3 converts back to a geometry vector.
func (v Vec3) R3() r3.Vector {
	return r3.Vector{X: v.X, Y: v.Y, Z: v.Z}
}

// Session is one run of the navigator on one vehicle.
type Session struct {
	ID             uint      `json:"id"`
	VehicleName    string    `json:"vehicleName"`
	TickRate       string    `json:"tickRate"`
	SecondsPerTick float64   `json:"secondsPerTick"`
	StartTime      time.Time `json:"startTime"`
	Version        string    `json:"version"`
}

// UploadMetadata describes an exported flight log for the upload API.
type UploadMetadata struct {
	VehicleName string
	// Duration of the session in seconds.
	Duration float64
	Tag      string
}
