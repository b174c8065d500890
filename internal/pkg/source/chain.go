// Package source contains native sensor backends and helpers combining them.
package source

import (
	"fmt"
	"sync"
	"time"

	"github.com/gethiox/gyrostream/internal/pkg/sensor"
)

// Chain queries sources in order, the first one reporting a sensor serves the kind.
type Chain struct {
	sources []sensor.Source

	mu     sync.Mutex
	owners map[sensor.Token]sensor.Source
}

func NewChain(sources ...sensor.Source) *Chain {
	return &Chain{
		sources: sources,
		owners:  make(map[sensor.Token]sensor.Source),
	}
}

type chainHandle struct {
	sensor.Handle
	owner sensor.Source
}

func (c *Chain) Query(kind sensor.Kind) (sensor.Handle, bool) {
	for _, s := range c.sources {
		h, ok := s.Query(kind)
		if ok {
			return chainHandle{Handle: h, owner: s}, true
		}
	}
	return nil, false
}

func (c *Chain) Register(handle sensor.Handle, interval time.Duration, cb sensor.Callback) (sensor.Token, error) {
	h, ok := handle.(chainHandle)
	if !ok {
		return "", fmt.Errorf("handle \"%s\" does not belong to this chain", handle.Name())
	}

	token, err := h.owner.Register(h.Handle, interval, cb)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.owners[token] = h.owner
	c.mu.Unlock()
	return token, nil
}

func (c *Chain) Unregister(token sensor.Token) error {
	c.mu.Lock()
	owner, ok := c.owners[token]
	delete(c.owners, token)
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown registration token: %s", token)
	}
	return owner.Unregister(token)
}
