// Package simulated generates smoothly changing readings for machines without motion sensors.
package simulated

import (
	"fmt"
	"math"
	"time"

	"github.com/gethiox/gyrostream/internal/pkg/sensor"
	"github.com/gethiox/gyrostream/internal/pkg/source"
)

type Source struct {
	kinds   map[sensor.Kind]bool
	start   time.Time
	pollers *source.Pollers
}

// New creates a source providing the given kinds.
func New(kinds ...sensor.Kind) *Source {
	s := &Source{
		kinds:   make(map[sensor.Kind]bool),
		start:   time.Now(),
		pollers: source.NewPollers(),
	}
	for _, k := range kinds {
		s.kinds[k] = true
	}
	return s
}

func (s *Source) Query(kind sensor.Kind) (sensor.Handle, bool) {
	if !s.kinds[kind] {
		return nil, false
	}
	return sensor.BasicHandle{SensorKind: kind, SensorName: fmt.Sprintf("simulated %s", kind)}, true
}

func (s *Source) Register(handle sensor.Handle, interval time.Duration, cb sensor.Callback) (sensor.Token, error) {
	kind := handle.Kind()
	if !s.kinds[kind] {
		return "", fmt.Errorf("simulated %s not enabled", kind)
	}

	read := func(now time.Time) ([]float64, error) {
		return Reading(kind, now.Sub(s.start)), nil
	}
	return s.pollers.Start(handle.Name(), interval, read, cb), nil
}

func (s *Source) Unregister(token sensor.Token) error {
	return s.pollers.Stop(token)
}

// Reading returns the simulated vector at elapsed time since source creation.
func Reading(kind sensor.Kind, elapsed time.Duration) []float64 {
	t := elapsed.Seconds()
	switch kind {
	case sensor.Rotation:
		// vector part of a unit quaternion, slow yaw with a small wobble
		yaw := math.Mod(t*0.5, 2*math.Pi)
		wobble := 0.1 * math.Sin(t*0.7)
		return []float64{
			math.Sin(wobble/2) * math.Cos(yaw/2),
			math.Sin(wobble/2) * math.Sin(yaw/2),
			math.Sin(yaw / 2),
		}
	default:
		return []float64{
			0.35 * math.Sin(t),
			0.25 * math.Cos(t*0.7),
			0.5,
		}
	}
}
