// ABOUTME: Client compatibility levels derived from the Meltano User-Agent
// ABOUTME: Older clients get settings rewritten to the shape they understand

package hub

import (
	"regexp"
	"strconv"
)

// Level selects how variant documents are shaped for a client
type Level int

const (
	// LevelLatest serves documents unchanged
	LevelLatest Level = iota
	// LevelNoDecimal serves decimal settings as integer (clients before 3.9)
	LevelNoDecimal
	// LevelNoSensitive also drops the sensitive flag (clients before 3.3)
	LevelNoSensitive
)

var userAgentPattern = regexp.MustCompile(`^Meltano/(\d+)\.(\d+)`)

// LevelForUserAgent returns the compatibility level for a User-Agent header.
// Missing or unrecognised agents get LevelLatest.
func LevelForUserAgent(ua string) Level {
	m := userAgentPattern.FindStringSubmatch(ua)
	if m == nil {
		return LevelLatest
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return LevelLatest
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return LevelLatest
	}

	switch {
	case versionBefore(major, minor, 3, 3):
		return LevelNoSensitive
	case versionBefore(major, minor, 3, 9):
		return LevelNoDecimal
	default:
		return LevelLatest
	}
}

func versionBefore(major, minor, wantMajor, wantMinor int) bool {
	return major < wantMajor || (major == wantMajor && minor < wantMinor)
}

// String returns the level's name, used in resource keys
func (l Level) String() string {
	switch l {
	case LevelNoDecimal:
		return "pre-3.9"
	case LevelNoSensitive:
		return "pre-3.3"
	default:
		return "latest"
	}
}

// applySetting rewrites one setting for the level
func (l Level) applySetting(s *Setting) {
	if l >= LevelNoDecimal && s.Kind == "decimal" {
		s.Kind = "integer"
	}
	if l >= LevelNoSensitive {
		s.Sensitive = nil
	}
}
