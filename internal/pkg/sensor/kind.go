package sensor

import (
	"fmt"
	"strings"
	"time"
)

// NormalInterval is the fixed sampling interval requested from native sources,
// equivalent of the normal sensor delay on mobile platforms.
const NormalInterval = 200 * time.Millisecond

type Kind int

const (
	Gyroscope Kind = iota
	Rotation
)

// Kinds lists every stream kind managed by the Registry, in attach order.
var Kinds = []Kind{Gyroscope, Rotation}

func (k Kind) String() string {
	switch k {
	case Gyroscope:
		return "Gyroscope"
	case Rotation:
		return "Rotation"
	default:
		return "Unknown"
	}
}

// ErrorCode returns the error code reported to sinks, e.g. "NO_GYROSCOPE_SENSOR".
func (k Kind) ErrorCode() string {
	return fmt.Sprintf("NO_%s_SENSOR", strings.ToUpper(k.String()))
}

// StreamID returns the stable identifier the host addresses the stream with.
func (k Kind) StreamID() string {
	return fmt.Sprintf("%s-stream", strings.ToLower(k.String()))
}

// KindFromStreamID resolves a stream identifier, like "rotation-stream".
func KindFromStreamID(id string) (Kind, bool) {
	for _, k := range Kinds {
		if k.StreamID() == id {
			return k, true
		}
	}
	return 0, false
}

// ParseKind accepts kind names used in configuration files, case-insensitive.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(k.String(), strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unsupported sensor kind: \"%s\"", s)
}
