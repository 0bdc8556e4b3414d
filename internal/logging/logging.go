package logging

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// LogFilePath builds the session log path for vehicle, e.g.
// logs/navigator.drone.20260212_213836.log. Characters unsafe in file names are
// replaced with underscores.
func LogFilePath(logsDir, vehicle string, sessionStart time.Time) string {
	name := unsafeName.ReplaceAllString(vehicle, "_")
	if name == "" {
		name = "vehicle"
	}
	return filepath.Join(
		logsDir,
		fmt.Sprintf("navigator.%s.%s.log", name, sessionStart.UTC().Format("20060102_150405")),
	)
}
