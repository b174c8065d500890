package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/gethiox/gyrostream/internal/pkg/logger"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

type State int32

const (
	Unbound State = iota
	Active
	Cancelled
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "Unbound"
	case Active:
		return "Active"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Subscription owns at most one native registration of a single stream kind.
// Listen and Cancel may be called from any goroutine, native callbacks may race with both.
type Subscription struct {
	kind     Kind
	source   Source
	cleanup  *CleanupFlag
	interval time.Duration

	mu      sync.Mutex // serializes Listen and Cancel
	current *registration
	state   atomic.Int32
}

func newSubscription(kind Kind, source Source, cleanup *CleanupFlag, interval time.Duration) *Subscription {
	return &Subscription{
		kind:     kind,
		source:   source,
		cleanup:  cleanup,
		interval: interval,
	}
}

func (s *Subscription) Kind() Kind {
	return s.kind
}

func (s *Subscription) State() State {
	return State(s.state.Load())
}

// SensorName returns the name of the native sensor currently registered, empty when not active.
func (s *Subscription) SensorName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.handle.Name()
}

// Listen binds the sink to the native sensor, replacing a previous registration if any.
// Missing sensor and failed registration are reported once through the sink.
func (s *Subscription) Listen(sink Sink) {
	streamErr := s.listen(sink)
	if streamErr == nil {
		return
	}
	if s.cleanup.IsCleanUp() {
		return
	}
	sink.Error(streamErr)
}

func (s *Subscription) listen(sink Sink) *StreamError {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := zap.String("stream", s.kind.StreamID())

	if s.cleanup.IsCleanUp() {
		log.Info("Listen ignored, stream is being cleaned up", stream, logger.Debug)
		return nil
	}

	if s.current != nil {
		log.Info("Replacing active registration", stream, logger.Debug)
		err := s.release(s.current)
		if err != nil {
			log.Info(fmt.Sprintf("failed to unregister previous listener: %v", err), stream, logger.Warning)
		}
		s.current = nil
	}

	handle, ok := s.source.Query(s.kind)
	if !ok {
		s.state.Store(int32(Unbound))
		log.Info(fmt.Sprintf("%s sensor not found", s.kind), stream, logger.Warning)
		return absentError(s.kind)
	}

	r := &registration{
		kind:    s.kind,
		handle:  handle,
		sink:    sink,
		cleanup: s.cleanup,
		events:  make(chan delivery),
		done:    make(chan struct{}),
	}
	r.active.Store(true)
	go r.forward()

	token, err := s.source.Register(handle, s.interval, r)
	if err != nil {
		r.stop()
		s.state.Store(int32(Unbound))
		log.Info(fmt.Sprintf("failed to register listener: %v", err), stream, zap.String("sensor", handle.Name()), logger.Error)
		return faultError(s.kind, err)
	}
	r.token = token

	s.current = r
	s.state.Store(int32(Active))
	log.Info("Stream listening", stream, zap.String("sensor", handle.Name()), logger.Stream)
	return nil
}

// Cancel unregisters the native callback. Calling it on an inactive subscription is a no-op.
// A callback that already entered the sink may still complete after Cancel returns,
// no callback starts a delivery afterwards.
func (s *Subscription) Cancel() {
	err := s.cancel()
	if err != nil {
		log.Info(fmt.Sprintf("failed to unregister listener: %v", err), zap.String("stream", s.kind.StreamID()), logger.Warning)
	}
}

func (s *Subscription) cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.current
	if r == nil {
		return nil
	}
	s.current = nil
	s.state.Store(int32(Cancelled))

	err := s.release(r)
	log.Info("Stream cancelled", zap.String("stream", s.kind.StreamID()), logger.Stream)
	return err
}

// release deactivates the registration before unregistering, so racing callbacks discard their data.
func (s *Subscription) release(r *registration) error {
	r.stop()
	err := s.source.Unregister(r.token)
	if err != nil {
		return fmt.Errorf("unregister %s: %w", r.handle.Name(), err)
	}
	return nil
}

func (s *Subscription) OnListen(sink Sink) {
	s.Listen(sink)
}

func (s *Subscription) OnCancel() {
	s.Cancel()
}

type delivery struct {
	sample Sample
	err    *StreamError
}

// registration is the Callback handed to a Source, one per successful Listen.
type registration struct {
	kind    Kind
	handle  Handle
	token   Token
	sink    Sink
	cleanup *CleanupFlag

	active   atomic.Bool
	events   chan delivery
	done     chan struct{}
	stopOnce sync.Once
}

func (r *registration) deliverable() bool {
	return r.active.Load() && !r.cleanup.IsCleanUp()
}

func (r *registration) OnSensorChanged(ev Event) {
	if !r.deliverable() {
		return
	}
	r.push(delivery{sample: newSample(ev)})
}

func (r *registration) OnAccuracyChanged(accuracy int) {}

func (r *registration) OnError(err error) {
	if !r.deliverable() {
		return
	}
	r.push(delivery{err: faultError(r.kind, err)})
}

func (r *registration) push(d delivery) {
	select {
	case r.events <- d:
	case <-r.done:
	}
}

// forward is the single consumer of the registration, it keeps the native order.
func (r *registration) forward() {
	for {
		select {
		case d := <-r.events:
			if !r.deliverable() {
				continue
			}
			if d.err != nil {
				r.sink.Error(d.err)
				continue
			}
			r.sink.Success(d.sample)
		case <-r.done:
			return
		}
	}
}

func (r *registration) stop() {
	r.stopOnce.Do(func() {
		r.active.Store(false)
		close(r.done)
	})
}
