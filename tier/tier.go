// Package tier defines the ordered access levels used by feature policies
// and maps raw billing-plan values onto them.
package tier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level is an actor's access level. Levels are totally ordered by rank:
// Anonymous < Free < Premium.
type Level int

const (
	Anonymous Level = 0
	Free      Level = 1
	Premium   Level = 2
)

func (l Level) String() string {
	switch l {
	case Anonymous:
		return "anonymous"
	case Free:
		return "free"
	case Premium:
		return "premium"
	default:
		return fmt.Sprintf("tier(%d)", int(l))
	}
}

// AtLeast reports whether l meets or exceeds min.
func (l Level) AtLeast(min Level) bool { return l >= min }

// MarshalJSON encodes the level as its string name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON accepts either the string name or the integer rank.
func (l *Level) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, ok := parseName(s)
		if !ok {
			return fmt.Errorf("tier: unknown level %q", s)
		}
		*l = v
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("tier: invalid level %s", string(b))
	}
	if n < int(Anonymous) || n > int(Premium) {
		return fmt.Errorf("tier: level rank %d out of range", n)
	}
	*l = Level(n)
	return nil
}

func parseName(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "anonymous":
		return Anonymous, true
	case "free":
		return Free, true
	case "premium":
		return Premium, true
	}
	return Anonymous, false
}

// paidPlans is the closed set of billing plan values that grant Premium.
var paidPlans = map[string]struct{}{
	"monthly":  {},
	"yearly":   {},
	"lifetime": {},
	"premium":  {},
}

// FromRaw maps a raw billing-plan value to a Level. Any recognized paid plan
// maps to Premium; "free", an empty value, or anything unrecognized maps to
// Free. Unknown values are logged at warn level so stale plan names surface
// in operations without granting access they were never meant to grant.
func FromRaw(raw string) Level {
	return FromRawLogger(raw, logrus.StandardLogger())
}

// FromRawLogger is FromRaw with an explicit logger.
func FromRawLogger(raw string, log *logrus.Logger) Level {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" || v == "free" {
		return Free
	}
	if _, ok := paidPlans[v]; ok {
		return Premium
	}
	if log != nil {
		log.WithField("raw_tier", raw).Warn("tier: unrecognized billing plan, defaulting to free")
	}
	return Free
}
