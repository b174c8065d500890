package sensor

import (
	"fmt"
	"strings"
	"time"
)

// Sample is one reading delivered to a sink, components keep native x, y, z order.
type Sample []float64

func (s Sample) String() string {
	var labels = []string{"x", "y", "z", "w"}
	var parts = make([]string, 0, len(s))
	for i, v := range s {
		label := fmt.Sprintf("v%d", i)
		if i < len(labels) {
			label = labels[i]
		}
		parts = append(parts, fmt.Sprintf("%s: %5.2f", label, v))
	}
	return strings.Join(parts, ", ")
}

// Event is a single native reading as handed over by a Source.
type Event struct {
	Timestamp time.Time
	Values    []float64
}

// EventFromFloat32 widens single precision native values.
func EventFromFloat32(ts time.Time, values []float32) Event {
	var widened = make([]float64, len(values))
	for i, v := range values {
		widened[i] = float64(v)
	}
	return Event{Timestamp: ts, Values: widened}
}

// newSample copies event values, native buffers may be reused by the source after the callback returns.
func newSample(ev Event) Sample {
	var s = make(Sample, len(ev.Values))
	copy(s, ev.Values)
	return s
}
