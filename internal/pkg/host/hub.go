// Package host provides an in-process Messenger, the host end of the stream endpoints.
package host

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gethiox/gyrostream/internal/pkg/logger"
	"github.com/gethiox/gyrostream/internal/pkg/sensor"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

var ErrNoHandler = errors.New("no stream handler installed")

// Hub keeps stream handlers installed by a sensor.Registry and lets the application
// listen and cancel streams by identifier.
type Hub struct {
	mu        sync.Mutex
	handlers  map[string]sensor.StreamHandler
	listening map[string]bool
}

func NewHub() *Hub {
	return &Hub{
		handlers:  make(map[string]sensor.StreamHandler),
		listening: make(map[string]bool),
	}
}

func (h *Hub) SetStreamHandler(streamID string, handler sensor.StreamHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if handler == nil {
		delete(h.handlers, streamID)
		delete(h.listening, streamID)
		log.Info("Stream handler removed", zap.String("stream", streamID), logger.Debug)
		return
	}
	h.handlers[streamID] = handler
	log.Info("Stream handler installed", zap.String("stream", streamID), logger.Debug)
}

// Listen subscribes sink to the stream. Handler is invoked outside of the hub lock,
// sinks are free to call back into the hub.
func (h *Hub) Listen(streamID string, sink sensor.Sink) error {
	h.mu.Lock()
	handler, ok := h.handlers[streamID]
	if ok {
		h.listening[streamID] = true
	}
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, streamID)
	}
	handler.OnListen(sink)
	return nil
}

func (h *Hub) Cancel(streamID string) error {
	h.mu.Lock()
	handler, ok := h.handlers[streamID]
	delete(h.listening, streamID)
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, streamID)
	}
	handler.OnCancel()
	return nil
}

// Streams returns identifiers of installed streams, sorted.
func (h *Hub) Streams() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var ids = make([]string, 0, len(h.handlers))
	for id := range h.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Listening tells if the stream was listened and not cancelled since its handler was installed.
func (h *Hub) Listening(streamID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listening[streamID]
}
