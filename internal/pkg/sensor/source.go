package sensor

import (
	"time"

	"github.com/google/uuid"
)

// Handle identifies a native sensor returned by Source.Query.
type Handle interface {
	Kind() Kind
	Name() string
}

// Token identifies one native registration.
type Token string

// NewToken returns a unique registration token.
func NewToken() Token {
	return Token(uuid.NewString())
}

// Callback receives native notifications. Sources may invoke it from any goroutine,
// but calls for a single registration must not overlap.
type Callback interface {
	OnSensorChanged(ev Event)
	OnAccuracyChanged(accuracy int)
	OnError(err error)
}

// Source is the native sensor service of one platform or backend.
type Source interface {
	// Query reports whether a sensor of given kind exists. It must not have side effects.
	Query(kind Kind) (Handle, bool)
	// Register starts delivering readings of the handle into cb, every interval.
	Register(handle Handle, interval time.Duration, cb Callback) (Token, error)
	// Unregister stops the registration, callbacks already in flight may still arrive.
	Unregister(token Token) error
}

// BasicHandle is a plain Handle implementation for sources without richer native state.
type BasicHandle struct {
	SensorKind Kind
	SensorName string
}

func (h BasicHandle) Kind() Kind {
	return h.SensorKind
}

func (h BasicHandle) Name() string {
	return h.SensorName
}
