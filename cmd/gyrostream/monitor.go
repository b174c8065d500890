package main

import (
	"sync"

	"github.com/gethiox/gyrostream/internal/pkg/logger"
	"github.com/gethiox/gyrostream/internal/pkg/sensor"
	"go.uber.org/zap"
)

type StreamStatus struct {
	Kind      sensor.Kind
	Attached  bool
	State     sensor.State
	Sensor    string
	Last      sensor.Sample
	LastError *sensor.StreamError
	Samples   uint
	Errors    uint
}

// Monitor keeps the latest state of every stream for the overview and the LCD.
type Monitor struct {
	registry *sensor.Registry

	mu      sync.Mutex
	streams map[sensor.Kind]*StreamStatus
}

func NewMonitor(registry *sensor.Registry) *Monitor {
	m := &Monitor{
		registry: registry,
		streams:  make(map[sensor.Kind]*StreamStatus),
	}
	for _, k := range sensor.Kinds {
		m.streams[k] = &StreamStatus{Kind: k}
	}
	return m
}

func (m *Monitor) Record(ev sensor.StreamEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.streams[ev.Kind]
	if !ok {
		return
	}
	if ev.Err != nil {
		s.LastError = ev.Err
		s.Errors++
		return
	}
	s.Last = ev.Sample
	s.Samples++
}

// Snapshot returns stream statuses in kind order, registration details come from the registry.
func (m *Monitor) Snapshot() []StreamStatus {
	var out = make([]StreamStatus, 0, len(sensor.Kinds))

	for _, k := range sensor.Kinds {
		m.mu.Lock()
		status := *m.streams[k]
		m.mu.Unlock()

		if m.registry != nil {
			sub, err := m.registry.Subscription(k)
			if err == nil {
				status.Attached = true
				status.State = sub.State()
				status.Sensor = sub.SensorName()
			}
		}
		out = append(out, status)
	}
	return out
}

// Total returns the amount of samples received by all streams.
func (m *Monitor) Total() uint {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total uint
	for _, s := range m.streams {
		total += s.Samples
	}
	return total
}

// Run records events until the channel is closed, samples are logged on the way.
func (m *Monitor) Run(wg *sync.WaitGroup, events <-chan sensor.StreamEvent) {
	defer wg.Done()
	for ev := range events {
		m.Record(ev)
		stream := zap.String("stream", ev.Kind.StreamID())
		if ev.Err != nil {
			log.Info(ev.Err.Message, stream, zap.String("code", ev.Err.Code), logger.Error)
			continue
		}
		log.Info(ev.Sample.String(), stream, logger.Samples)
	}
	log.Info("Monitor finished", logger.Debug)
}
