package utils

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInputClosed   = errors.New("input channel is closed")
	ErrUnknownOutput = errors.New("unknown output")
)

type output[T any] struct {
	ch      chan T
	lossy   bool
	dropped uint64
}

// DynamicFanOut copies every input value into all currently spawned outputs.
// Sends to regular outputs block, a slow one holds back the others.
// Lossy outputs drop values they have no room for.
type DynamicFanOut[T any] struct {
	input    <-chan T
	inputCap int

	mutex   sync.Mutex
	closed  bool
	nextID  int64
	outputs map[int64]*output[T]
}

func NewDynamicFanOut[T any](input <-chan T) *DynamicFanOut[T] {
	f := &DynamicFanOut[T]{
		input:    input,
		inputCap: cap(input),
		outputs:  make(map[int64]*output[T]),
	}
	go f.run()
	return f
}

func (f *DynamicFanOut[T]) run() {
	for e := range f.input {
		f.mutex.Lock()
		for _, o := range f.outputs {
			if !o.lossy {
				o.ch <- e
				continue
			}
			select {
			case o.ch <- e:
			default:
				o.dropped++
			}
		}
		f.mutex.Unlock()
	}

	f.mutex.Lock()
	f.closed = true
	for id, o := range f.outputs {
		close(o.ch)
		delete(f.outputs, id)
	}
	f.mutex.Unlock()
}

func (f *DynamicFanOut[T]) spawn(size int, lossy bool) (int64, <-chan T, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.closed {
		return 0, nil, ErrInputClosed
	}
	if size < 1 {
		size = 1
	}

	id := f.nextID
	f.nextID++
	o := &output[T]{ch: make(chan T, size), lossy: lossy}
	f.outputs[id] = o
	return id, o.ch, nil
}

// SpawnOutput creates new blocking output channel and its ID for later despawning.
// Output channel has the size of input channel, at least 1.
// Outputs are closed when input channel gets closed.
func (f *DynamicFanOut[T]) SpawnOutput() (int64, <-chan T, error) {
	return f.spawn(f.inputCap, false)
}

// SpawnLossyOutput creates an output buffering up to size values, further values are dropped
// until the consumer catches up.
func (f *DynamicFanOut[T]) SpawnLossyOutput(size int) (int64, <-chan T, error) {
	return f.spawn(size, true)
}

// Dropped returns the amount of values a lossy output has missed.
func (f *DynamicFanOut[T]) Dropped(id int64) (uint64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	o, ok := f.outputs[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownOutput, id)
	}
	return o.dropped, nil
}

// DespawnOutput removes output channel with given ID
func (f *DynamicFanOut[T]) DespawnOutput(id int64) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	o, ok := f.outputs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOutput, id)
	}
	close(o.ch)
	delete(f.outputs, id)

	return nil
}
