package source

import (
	"fmt"
	"sync"
	"time"

	"github.com/gethiox/gyrostream/internal/pkg/logger"
	"github.com/gethiox/gyrostream/internal/pkg/sensor"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// ReadFunc performs one native read.
type ReadFunc func(now time.Time) ([]float64, error)

// Pollers runs one reading goroutine per registration for backends without native callbacks.
// Every failed read is reported through Callback.OnError, polling continues afterwards.
type Pollers struct {
	mu      sync.Mutex
	running map[sensor.Token]poller
}

type poller struct {
	stop, done chan struct{}
}

func NewPollers() *Pollers {
	return &Pollers{running: make(map[sensor.Token]poller)}
}

func (p *Pollers) Start(name string, interval time.Duration, read ReadFunc, cb sensor.Callback) sensor.Token {
	token := sensor.NewToken()
	stop, done := make(chan struct{}), make(chan struct{})

	p.mu.Lock()
	p.running[token] = poller{stop: stop, done: done}
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		log.Info("Polling started", zap.String("source", name), zap.Duration("interval", interval), logger.Debug)
	root:
		for {
			select {
			case <-stop:
				break root
			case now := <-ticker.C:
				values, err := read(now)
				if err != nil {
					cb.OnError(err)
					continue
				}
				cb.OnSensorChanged(sensor.Event{Timestamp: now, Values: values})
			}
		}
		log.Info("Polling stopped", zap.String("source", name), logger.Debug)
	}()

	return token
}

// Stop ends polling and waits for the reading goroutine, a callback in progress must be able to return.
func (p *Pollers) Stop(token sensor.Token) error {
	p.mu.Lock()
	running, ok := p.running[token]
	delete(p.running, token)
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown registration token: %s", token)
	}
	close(running.stop)
	<-running.done
	return nil
}

func (p *Pollers) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}
