package sensor

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeRegistration struct {
	kind Kind
	cb   Callback
}

type fakeSource struct {
	mu           sync.Mutex
	present      map[Kind]bool
	registerErr  error
	active       map[Token]fakeRegistration
	last         map[Kind]Callback
	queries      int
	registered   int
	unregistered []Token
}

func newFakeSource(kinds ...Kind) *fakeSource {
	f := &fakeSource{
		present: make(map[Kind]bool),
		active:  make(map[Token]fakeRegistration),
		last:    make(map[Kind]Callback),
	}
	for _, k := range kinds {
		f.present[k] = true
	}
	return f
}

func (f *fakeSource) Query(kind Kind) (Handle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if !f.present[kind] {
		return nil, false
	}
	return BasicHandle{SensorKind: kind, SensorName: "fake " + kind.String()}, true
}

func (f *fakeSource) Register(handle Handle, interval time.Duration, cb Callback) (Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return "", f.registerErr
	}
	token := NewToken()
	f.active[token] = fakeRegistration{kind: handle.Kind(), cb: cb}
	f.last[handle.Kind()] = cb
	f.registered++
	return token, nil
}

func (f *fakeSource) Unregister(token Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.active[token]; !ok {
		return fmt.Errorf("token %s not registered", token)
	}
	delete(f.active, token)
	f.unregistered = append(f.unregistered, token)
	return nil
}

// callback returns the most recent callback registered for kind, even if already unregistered.
func (f *fakeSource) callback(kind Kind) Callback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last[kind]
}

func (f *fakeSource) unregisterCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unregistered)
}

type fakeMessenger struct {
	mu       sync.Mutex
	handlers map[string]StreamHandler
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{handlers: make(map[string]StreamHandler)}
}

func (m *fakeMessenger) SetStreamHandler(streamID string, handler StreamHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if handler == nil {
		delete(m.handlers, streamID)
		return
	}
	m.handlers[streamID] = handler
}

func (m *fakeMessenger) handler(streamID string) StreamHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers[streamID]
}

func readN(ch chan StreamEvent, n int) ([]StreamEvent, error) {
	events := make([]StreamEvent, 0, n)

	for {
		select {
		case event := <-ch:
			events = append(events, event)
		case <-time.After(time.Millisecond * 50):
			if len(events) != n {
				return events, fmt.Errorf("expected %d events, got %d", n, len(events))
			}
			return events, nil
		}
	}
}

func values(vs ...float64) Event {
	return Event{Timestamp: time.Now(), Values: vs}
}

func attached(t *testing.T, kinds ...Kind) (*Registry, *fakeSource, *fakeMessenger) {
	source := newFakeSource(kinds...)
	messenger := newFakeMessenger()
	registry := NewRegistry(0)
	err := registry.Attach(messenger, source)
	assert.Equal(t, nil, err)
	return registry, source, messenger
}

func TestKindIdentifiers(t *testing.T) {
	for _, tc := range []struct {
		kind      Kind
		streamID  string
		errorCode string
	}{
		{kind: Gyroscope, streamID: "gyroscope-stream", errorCode: "NO_GYROSCOPE_SENSOR"},
		{kind: Rotation, streamID: "rotation-stream", errorCode: "NO_ROTATION_SENSOR"},
	} {
		t.Run(tc.kind.String(), func(t *testing.T) {
			assert.Equal(t, tc.streamID, tc.kind.StreamID())
			assert.Equal(t, tc.errorCode, tc.kind.ErrorCode())

			k, ok := KindFromStreamID(tc.streamID)
			assert.True(t, ok)
			assert.Equal(t, tc.kind, k)

			k, err := ParseKind(tc.kind.String())
			assert.Equal(t, nil, err)
			assert.Equal(t, tc.kind, k)
		})
	}

	_, ok := KindFromStreamID("accelerometer-stream")
	assert.False(t, ok)
	_, err := ParseKind("magnetometer")
	assert.NotEqual(t, nil, err)
}

func TestListenAbsentSensor(t *testing.T) {
	for _, kind := range Kinds {
		t.Run(kind.String(), func(t *testing.T) {
			registry, source, _ := attached(t)
			sub, err := registry.Subscription(kind)
			assert.Equal(t, nil, err)

			events := make(chan StreamEvent, 8)
			for i := 0; i < 3; i++ {
				sub.Listen(NewChannelSink(kind, events))

				got, err := readN(events, 1)
				assert.Equal(t, nil, err)
				assert.Equal(t, kind.ErrorCode(), got[0].Err.Code)
				assert.Equal(t, CapabilityAbsent, got[0].Err.Class)
				assert.Equal(t, fmt.Sprintf("%s sensor not found", kind), got[0].Err.Message)
				assert.Equal(t, got[0].Err.Message, got[0].Err.Details)
				assert.Nil(t, got[0].Sample)
				assert.Equal(t, Unbound, sub.State())
			}
			assert.Equal(t, 0, source.registered)
		})
	}
}

func TestListenDeliversSample(t *testing.T) {
	registry, _, _ := attached(t, Gyroscope)
	sub, _ := registry.Subscription(Gyroscope)
	source := sub.source.(*fakeSource)

	events := make(chan StreamEvent, 8)
	sub.Listen(NewChannelSink(Gyroscope, events))
	assert.Equal(t, Active, sub.State())
	assert.Equal(t, "fake Gyroscope", sub.SensorName())

	source.callback(Gyroscope).OnSensorChanged(values(0.1, -0.2, 0.05))

	got, err := readN(events, 1)
	assert.Equal(t, nil, err)
	assert.Nil(t, got[0].Err)
	assert.Equal(t, Sample{0.1, -0.2, 0.05}, got[0].Sample)
}

func TestFloat32IsWidened(t *testing.T) {
	registry, source, _ := attached(t, Rotation)
	sub, _ := registry.Subscription(Rotation)

	events := make(chan StreamEvent, 8)
	sub.Listen(NewChannelSink(Rotation, events))

	native := []float32{0.5, -0.25, 0.125}
	source.callback(Rotation).OnSensorChanged(EventFromFloat32(time.Now(), native))
	native[0] = 9 // reused native buffer must not leak into delivered sample

	got, err := readN(events, 1)
	assert.Equal(t, nil, err)
	assert.Equal(t, Sample{0.5, -0.25, 0.125}, got[0].Sample)
}

func TestAccuracyChangeIgnored(t *testing.T) {
	registry, source, _ := attached(t, Gyroscope)
	sub, _ := registry.Subscription(Gyroscope)

	events := make(chan StreamEvent, 8)
	sub.Listen(NewChannelSink(Gyroscope, events))
	source.callback(Gyroscope).OnAccuracyChanged(3)

	_, err := readN(events, 0)
	assert.Equal(t, nil, err)
}

func TestDeliveryFault(t *testing.T) {
	registry, source, _ := attached(t, Rotation)
	sub, _ := registry.Subscription(Rotation)

	events := make(chan StreamEvent, 8)
	sub.Listen(NewChannelSink(Rotation, events))

	cb := source.callback(Rotation)
	cb.OnError(errors.New("device motion unavailable"))
	cb.OnError(errors.New("device motion unavailable"))

	got, err := readN(events, 2)
	assert.Equal(t, nil, err)
	for _, ev := range got {
		assert.Equal(t, "NO_ROTATION_SENSOR", ev.Err.Code)
		assert.Equal(t, DeliveryFault, ev.Err.Class)
		assert.Equal(t, "device motion unavailable", ev.Err.Message)
	}
	assert.Equal(t, Active, sub.State())

	cb.OnSensorChanged(values(1, 2, 3))
	got, err = readN(events, 1)
	assert.Equal(t, nil, err)
	assert.Equal(t, Sample{1, 2, 3}, got[0].Sample)
}

func TestRegisterFailure(t *testing.T) {
	registry, source, _ := attached(t, Gyroscope)
	source.registerErr = errors.New("permission denied")
	sub, _ := registry.Subscription(Gyroscope)

	events := make(chan StreamEvent, 8)
	sub.Listen(NewChannelSink(Gyroscope, events))

	got, err := readN(events, 1)
	assert.Equal(t, nil, err)
	assert.Equal(t, "NO_GYROSCOPE_SENSOR", got[0].Err.Code)
	assert.Equal(t, "permission denied", got[0].Err.Message)
	assert.Equal(t, Unbound, sub.State())
}

func TestCancelDiscardsQueuedCallback(t *testing.T) {
	registry, source, _ := attached(t, Gyroscope)
	sub, _ := registry.Subscription(Gyroscope)

	events := make(chan StreamEvent, 8)
	sub.Listen(NewChannelSink(Gyroscope, events))
	cb := source.callback(Gyroscope)

	sub.Cancel()
	assert.Equal(t, Cancelled, sub.State())

	cb.OnSensorChanged(values(0.1, 0.2, 0.3))
	cb.OnError(errors.New("late fault"))

	_, err := readN(events, 0)
	assert.Equal(t, nil, err)
}

func TestCancelIdempotent(t *testing.T) {
	registry, source, _ := attached(t, Gyroscope)

	rotation, _ := registry.Subscription(Rotation)
	rotation.Cancel()
	rotation.Cancel()
	assert.Equal(t, Unbound, rotation.State())
	assert.Equal(t, 0, source.unregisterCount())

	gyro, _ := registry.Subscription(Gyroscope)
	gyro.Listen(SinkFuncs{})
	gyro.Cancel()
	gyro.Cancel()
	assert.Equal(t, Cancelled, gyro.State())
	assert.Equal(t, 1, source.unregisterCount())
	assert.Equal(t, nil, gyro.cancel())
}

func TestListenReplacesActiveRegistration(t *testing.T) {
	registry, source, _ := attached(t, Gyroscope)
	sub, _ := registry.Subscription(Gyroscope)

	first := make(chan StreamEvent, 8)
	second := make(chan StreamEvent, 8)

	sub.Listen(NewChannelSink(Gyroscope, first))
	old := source.callback(Gyroscope)

	sub.Listen(NewChannelSink(Gyroscope, second))
	current := source.callback(Gyroscope)

	assert.Equal(t, 1, source.unregisterCount())
	assert.Equal(t, 2, source.registered)
	assert.Equal(t, Active, sub.State())

	old.OnSensorChanged(values(1, 1, 1))
	current.OnSensorChanged(values(2, 2, 2))

	_, err := readN(first, 0)
	assert.Equal(t, nil, err)

	got, err := readN(second, 1)
	assert.Equal(t, nil, err)
	assert.Equal(t, Sample{2, 2, 2}, got[0].Sample)
}

func TestSampleOrderPreserved(t *testing.T) {
	registry, source, _ := attached(t, Gyroscope)
	sub, _ := registry.Subscription(Gyroscope)

	const n = 200
	events := make(chan StreamEvent, n)
	sub.Listen(NewChannelSink(Gyroscope, events))

	cb := source.callback(Gyroscope)
	go func() {
		for i := 0; i < n; i++ {
			cb.OnSensorChanged(values(float64(i), float64(-i), 0))
		}
	}()

	got, err := readN(events, n)
	assert.Equal(t, nil, err)
	for i, ev := range got {
		assert.Equal(t, Sample{float64(i), float64(-i), 0}, ev.Sample)
	}
}

func TestDetachDiscardsLateCallbacks(t *testing.T) {
	registry, source, messenger := attached(t, Gyroscope, Rotation)

	events := make(chan StreamEvent, 8)
	for _, kind := range Kinds {
		messenger.handler(kind.StreamID()).OnListen(NewChannelSink(kind, events))
	}

	err := registry.Detach()
	assert.Equal(t, nil, err)
	assert.True(t, registry.CleaningUp())
	assert.False(t, registry.Attached())
	assert.Equal(t, 2, source.unregisterCount())

	for _, kind := range Kinds {
		assert.Nil(t, messenger.handler(kind.StreamID()))
		source.callback(kind).OnSensorChanged(values(1, 2, 3))
		source.callback(kind).OnError(errors.New("late"))
	}

	_, err = readN(events, 0)
	assert.Equal(t, nil, err)

	_, err = registry.Subscription(Gyroscope)
	assert.True(t, errors.Is(err, ErrNotAttached))

	// detaching twice is harmless
	assert.Equal(t, nil, registry.Detach())
}

func TestDetachWithNeverActivatedSubscriptions(t *testing.T) {
	registry, source, _ := attached(t)

	err := registry.Detach()
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, source.unregisterCount())
}

func TestReattachIsFresh(t *testing.T) {
	registry, source, messenger := attached(t, Gyroscope)

	before, _ := registry.Subscription(Gyroscope)
	before.Listen(SinkFuncs{})
	staleCallback := source.callback(Gyroscope)

	assert.Equal(t, nil, registry.Detach())

	freshSource := newFakeSource(Gyroscope)
	err := registry.Attach(messenger, freshSource)
	assert.Equal(t, nil, err)
	assert.False(t, registry.CleaningUp())

	after, _ := registry.Subscription(Gyroscope)
	assert.True(t, before != after)
	assert.Equal(t, Unbound, after.State())

	events := make(chan StreamEvent, 8)
	messenger.handler(Gyroscope.StreamID()).OnListen(NewChannelSink(Gyroscope, events))
	assert.Equal(t, Active, after.State())
	assert.Equal(t, 1, freshSource.registered)

	staleCallback.OnSensorChanged(values(9, 9, 9))
	freshSource.callback(Gyroscope).OnSensorChanged(values(0.1, -0.2, 0.05))

	got, err := readN(events, 1)
	assert.Equal(t, nil, err)
	assert.Equal(t, Sample{0.1, -0.2, 0.05}, got[0].Sample)
}

func TestAttachTwice(t *testing.T) {
	registry, source, messenger := attached(t)
	err := registry.Attach(messenger, source)
	assert.True(t, errors.Is(err, ErrAlreadyAttached))
}

func TestDetachedSubscriptionStaysDead(t *testing.T) {
	registry, source, messenger := attached(t, Gyroscope)
	stale, _ := registry.Subscription(Gyroscope)

	assert.Equal(t, nil, registry.Detach())
	err := registry.Attach(messenger, newFakeSource(Gyroscope))
	assert.Equal(t, nil, err)

	events := make(chan StreamEvent, 8)
	stale.Listen(NewChannelSink(Gyroscope, events))

	assert.Equal(t, 0, source.registered)
	assert.Equal(t, Unbound, stale.State())
	assert.True(t, source.callback(Gyroscope) == nil)

	_, err = readN(events, 0)
	assert.Equal(t, nil, err)
}

func TestCleanupFlag(t *testing.T) {
	var f CleanupFlag
	assert.False(t, f.IsCleanUp())
	f.MarkCleanUp()
	f.MarkCleanUp()
	assert.True(t, f.IsCleanUp())
	f.Reset()
	assert.False(t, f.IsCleanUp())
}

func TestListenDuringCleanupIsSilent(t *testing.T) {
	registry, _, _ := attached(t)
	sub, _ := registry.Subscription(Rotation)

	registry.cleanup.MarkCleanUp()

	events := make(chan StreamEvent, 8)
	sub.Listen(NewChannelSink(Rotation, events))

	_, err := readN(events, 0)
	assert.Equal(t, nil, err)
	assert.Equal(t, Unbound, sub.State())
}

func TestCancelRacingWithCallbacks(t *testing.T) {
	registry, source, _ := attached(t, Gyroscope)
	sub, _ := registry.Subscription(Gyroscope)

	var mu sync.Mutex
	var delivered int
	sub.Listen(SinkFuncs{OnSample: func(sample Sample) {
		mu.Lock()
		delivered++
		mu.Unlock()
	}})
	cb := source.callback(Gyroscope)

	stop := make(chan struct{})
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				cb.OnSensorChanged(values(1, 2, 3))
			}
		}
	}()

	time.Sleep(time.Millisecond * 5)
	sub.Cancel()
	time.Sleep(time.Millisecond * 5)

	mu.Lock()
	afterCancel := delivered
	mu.Unlock()

	time.Sleep(time.Millisecond * 20)
	close(stop)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, afterCancel, delivered)
}

func TestSampleString(t *testing.T) {
	assert.Equal(t, "x:  0.10, y: -0.20, z:  0.05", Sample{0.1, -0.2, 0.05}.String())
	assert.Equal(t, "x:  1.00, y:  2.00", Sample{1, 2}.String())
}

func TestChannelSinkWithDone(t *testing.T) {
	events := make(chan StreamEvent)
	done := make(chan struct{})
	sink := NewChannelSink(Rotation, events).WithDone(done)

	go sink.Success(Sample{1, 2, 3})
	ev := <-events
	assert.Equal(t, StreamEvent{Kind: Rotation, Sample: Sample{1, 2, 3}}, ev)

	close(done)
	returned := make(chan struct{})
	go func() {
		sink.Error(absentError(Rotation))
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("sink blocked after done")
	}
}
