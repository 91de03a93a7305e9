package world

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Mode is the replication role of a world.
type Mode uint8

const (
	ModeUndefined Mode = iota
	// ModeStandalone keeps the store to itself.
	ModeStandalone
	// ModeHost publishes every committed transaction to followers.
	ModeHost
	// ModeFollower mirrors a host.
	ModeFollower
)

var modeNames = [...]string{
	ModeUndefined:  "undefined",
	ModeStandalone: "standalone",
	ModeHost:       "host",
	ModeFollower:   "follower",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return modeNames[ModeUndefined]
}

func (m Mode) IsValid() bool {
	return m > ModeUndefined && int(m) < len(modeNames)
}

// replicates reports whether the mode needs a NATS connection.
func (m Mode) replicates() bool {
	return m == ModeHost || m == ModeFollower
}

func ParseMode(s string) (Mode, error) {
	lower := strings.ToLower(s)
	for i, name := range modeNames {
		if m := Mode(i); m.IsValid() && name == lower {
			return m, nil
		}
	}
	return ModeUndefined, eris.Errorf("invalid world mode: %s (must be 'standalone', 'host', or 'follower')", s)
}
