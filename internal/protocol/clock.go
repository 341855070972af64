package protocol

import (
	"time"

	"github.com/rs/zerolog/log"
)

// WireTimeLayout is the naive local datetime format TM20 terminals use on
// the wire: no timezone, no offset.
const WireTimeLayout = "2006-01-02 15:04:05"

// ParseWireTime parses the naive wire format as a UTC wall-clock time;
// no local-to-UTC offset is applied to the value. A malformed value falls back to time.Now().UTC() with a warning logged,
// per the documented fallback policy — callers never treat clock skew
// from a device as fatal.
func ParseWireTime(s string) time.Time {
	t, err := time.Parse(WireTimeLayout, s)
	if err != nil {
		log.Warn().Str("value", s).Err(err).Msg("protocol: malformed wire time, falling back to now")
		return time.Now().UTC()
	}
	return t.UTC()
}

// FormatWireTime renders t's wall clock, in t's own location, in the
// naive wire format expected by terminals (cloudtime and settime
// payloads); no conversion to local time is done.
func FormatWireTime(t time.Time) string {
	return t.Format(WireTimeLayout)
}
