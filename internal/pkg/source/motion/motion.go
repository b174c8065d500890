// Package motion reads gyroscopes of game controllers exposed as evdev "Motion Sensors" handlers.
package motion

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gethiox/gyrostream/internal/pkg/input"
	"github.com/gethiox/gyrostream/internal/pkg/logger"
	"github.com/gethiox/gyrostream/internal/pkg/sensor"
	"github.com/holoplot/go-evdev"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

const closeTimeout = time.Second

var axes = []evdev.EvCode{evdev.ABS_RX, evdev.ABS_RY, evdev.ABS_RZ}

// Device is the part of *evdev.InputDevice the source needs.
type Device interface {
	ReadOne() (*evdev.InputEvent, error)
	AbsInfos() (map[evdev.EvCode]evdev.AbsInfo, error)
	Close() error
}

type OpenFunc func(path string) (Device, error)

func openEvdev(path string) (Device, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// Sensor is a motion sensors handler, it only ever serves the gyroscope kind.
type Sensor struct {
	Info input.DeviceInfo
}

func (s Sensor) Kind() sensor.Kind {
	return sensor.Gyroscope
}

func (s Sensor) Name() string {
	return fmt.Sprintf("%s (%s)", s.Info.Name, s.Info.Event())
}

type Source struct {
	devicesPath string
	open        OpenFunc

	mu      sync.Mutex
	readers map[sensor.Token]*reader
}

// New creates a source discovering handlers from devicesPath, input.DevicesPath when empty.
func New(devicesPath string) *Source {
	return NewWithOpener(devicesPath, openEvdev)
}

func NewWithOpener(devicesPath string, open OpenFunc) *Source {
	if devicesPath == "" {
		devicesPath = input.DevicesPath
	}
	return &Source{
		devicesPath: devicesPath,
		open:        open,
		readers:     make(map[sensor.Token]*reader),
	}
}

func (s *Source) Query(kind sensor.Kind) (sensor.Handle, bool) {
	if kind != sensor.Gyroscope {
		return nil, false
	}

	handlers, err := input.ReadHandlers(s.devicesPath)
	if err != nil {
		log.Info(fmt.Sprintf("reading input handlers failed: %v", err), logger.Debug)
		return nil, false
	}

	for _, h := range handlers {
		if h.IsMotionSensor() && h.Event() != "" {
			return Sensor{Info: h}, true
		}
	}
	return nil, false
}

func (s *Source) Register(handle sensor.Handle, interval time.Duration, cb sensor.Callback) (sensor.Token, error) {
	found, ok := handle.(Sensor)
	if !ok {
		return "", fmt.Errorf("handle \"%s\" is not a motion sensor", handle.Name())
	}

	dev, err := s.open(found.Info.EventPath())
	if err != nil {
		return "", fmt.Errorf("opening handler failed: %w", err)
	}

	scales := []float64{1, 1, 1}
	infos, err := dev.AbsInfos()
	if err != nil {
		log.Info(fmt.Sprintf("reading axis info failed, raw values will be reported: %v", err),
			zap.String("handler_event", found.Info.Event()), logger.Warning)
	} else {
		for i, code := range axes {
			scales[i] = scale(infos[code].Resolution)
		}
	}

	r := &reader{
		name:      found.Name(),
		dev:       dev,
		cb:        cb,
		assembler: newAssembler(interval, scales),
		done:      make(chan struct{}),
	}

	token := sensor.NewToken()
	s.mu.Lock()
	s.readers[token] = r
	s.mu.Unlock()

	go r.run()
	return token, nil
}

func (s *Source) Unregister(token sensor.Token) error {
	s.mu.Lock()
	r, ok := s.readers[token]
	delete(s.readers, token)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown registration token: %s", token)
	}
	return r.stop()
}

// scale converts resolution in units per degree per second into radians per second factor.
func scale(resolution int32) float64 {
	if resolution <= 0 {
		return 1
	}
	return math.Pi / 180 / float64(resolution)
}

type reader struct {
	name      string
	dev       Device
	cb        sensor.Callback
	assembler *assembler

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// stop closes the device and waits for the reading goroutine to notice it.
func (r *reader) stop() error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	err := r.dev.Close()
	select {
	case <-r.done:
	case <-time.After(closeTimeout):
		log.Info("reader did not finish in time", zap.String("handler_name", r.name), logger.Warning)
	}
	return err
}

func (r *reader) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *reader) run() {
	defer close(r.done)
	log.Info("Reading input events", zap.String("handler_name", r.name), logger.Debug)
	for {
		ev, err := r.dev.ReadOne()
		if err != nil {
			if !r.isStopped() {
				r.cb.OnError(fmt.Errorf("reading \"%s\" failed: %w", r.name, err))
			}
			break
		}

		values, ok := r.assembler.feed(ev)
		if !ok {
			continue
		}
		r.cb.OnSensorChanged(sensor.Event{Timestamp: eventTime(ev), Values: values})
	}
	log.Info("Reading input events finished", zap.String("handler_name", r.name), logger.Debug)
}

func eventTime(ev *evdev.InputEvent) time.Time {
	return time.Unix(int64(ev.Time.Sec), int64(ev.Time.Usec)*1000)
}

// assembler collects axis updates of one frame, a frame is complete on SYN_REPORT.
// Frames are throttled to the requested interval by their kernel timestamps.
type assembler struct {
	interval time.Duration
	scales   []float64

	current  []int32
	dirty    bool
	lastSent time.Time
}

func newAssembler(interval time.Duration, scales []float64) *assembler {
	return &assembler{
		interval: interval,
		scales:   scales,
		current:  make([]int32, len(axes)),
	}
}

func (a *assembler) feed(ev *evdev.InputEvent) ([]float64, bool) {
	switch ev.Type {
	case evdev.EV_ABS:
		for i, code := range axes {
			if ev.Code == code {
				a.current[i] = ev.Value
				a.dirty = true
			}
		}
		return nil, false
	case evdev.EV_SYN:
		if ev.Code != evdev.SYN_REPORT || !a.dirty {
			return nil, false
		}
	default:
		return nil, false
	}

	ts := eventTime(ev)
	if !a.lastSent.IsZero() && ts.Sub(a.lastSent) < a.interval {
		return nil, false
	}
	a.lastSent = ts
	a.dirty = false

	var values = make([]float64, len(a.current))
	for i, v := range a.current {
		values[i] = float64(v) * a.scales[i]
	}
	return values, true
}
