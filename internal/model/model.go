// Package model holds the gorm schema of the SQL flight log.
package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

// DatabaseModels lists every table, in migration order.
var DatabaseModels = []any{
	&Session{},
	&EdgeEvent{},
	&Frame{},
	&Track{},
}

// Session is one navigator run.
type Session struct {
	ID             uint         `json:"id" gorm:"primarykey;autoIncrement;"`
	VehicleName    string       `json:"vehicleName" gorm:"size:64;index:idx_session_vehicle"`
	TickRate       string       `json:"tickRate" gorm:"size:16"`
	SecondsPerTick float64      `json:"secondsPerTick"`
	StartTime      time.Time    `json:"startTime"`
	EndTime        sql.NullTime `json:"endTime"`
	Version        string       `json:"version" gorm:"size:32"`
}

func (*Session) TableName() string {
	return "sessions"
}

// EdgeEvent is a recording or route transition.
type EdgeEvent struct {
	ID            uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID     uint           `json:"sessionId" gorm:"index:idx_edgeevent_session_id"`
	Session       Session        `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time          time.Time      `json:"time"`
	Tick          int64          `json:"tick"`
	Kind          string         `json:"kind" gorm:"size:32;index:idx_edgeevent_kind"`
	StartWaypoint string         `json:"start" gorm:"size:64"`
	EndWaypoint   string         `json:"end" gorm:"size:64"`
	Mode          string         `json:"mode" gorm:"size:16"`
	Details       datatypes.JSON `json:"details"`
}

func (*EdgeEvent) TableName() string {
	return "edge_events"
}

// Frame is one tracking-error sample. Vectors are flattened into columns.
type Frame struct {
	ID            uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID     uint      `json:"sessionId" gorm:"index:idx_frame_session_id"`
	Session       Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time          time.Time `json:"time"`
	Tick          int64     `json:"tick" gorm:"index:idx_frame_tick"`
	StartWaypoint string    `json:"start" gorm:"size:64"`
	EndWaypoint   string    `json:"end" gorm:"size:64"`
	PathTick      int64     `json:"pathTick"`

	ReferenceX float64 `json:"referenceX"`
	ReferenceY float64 `json:"referenceY"`
	ReferenceZ float64 `json:"referenceZ"`
	ActualX    float64 `json:"actualX"`
	ActualY    float64 `json:"actualY"`
	ActualZ    float64 `json:"actualZ"`

	ReferenceSpeed float64 `json:"referenceSpeed"`
	ActualSpeed    float64 `json:"actualSpeed"`
	PositionError  float64 `json:"positionError"`

	PitchError float64 `json:"pitchError"`
	YawError   float64 `json:"yawError"`
	RollError  float64 `json:"rollError"`
}

func (*Frame) TableName() string {
	return "frames"
}

// Track is a finished recording. Path holds the motion samples as a WKT
// LINESTRING Z; Ticks holds the tick of each vertex as a JSON array.
type Track struct {
	ID            uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID     uint           `json:"sessionId" gorm:"index:idx_track_session_id"`
	Session       Session        `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time          time.Time      `json:"time"`
	StartWaypoint string         `json:"start" gorm:"size:64;index:idx_track_edge"`
	EndWaypoint   string         `json:"end" gorm:"size:64;index:idx_track_edge"`
	Duration      int64          `json:"duration"`
	Efficiency    float64        `json:"efficiency"`
	Length        float64        `json:"length"`
	Path          string         `json:"path" gorm:"type:text"`
	Ticks         datatypes.JSON `json:"ticks"`
}

func (*Track) TableName() string {
	return "tracks"
}
