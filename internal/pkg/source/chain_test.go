package source

import (
	"testing"
	"time"

	"github.com/gethiox/gyrostream/internal/pkg/sensor"
	"github.com/stretchr/testify/assert"
)

type countingSource struct {
	name         string
	kinds        map[sensor.Kind]bool
	registered   int
	unregistered int
}

func (s *countingSource) Query(kind sensor.Kind) (sensor.Handle, bool) {
	if !s.kinds[kind] {
		return nil, false
	}
	return sensor.BasicHandle{SensorKind: kind, SensorName: s.name}, true
}

func (s *countingSource) Register(handle sensor.Handle, interval time.Duration, cb sensor.Callback) (sensor.Token, error) {
	s.registered++
	return sensor.NewToken(), nil
}

func (s *countingSource) Unregister(token sensor.Token) error {
	s.unregistered++
	return nil
}

func TestChainPicksFirstProvider(t *testing.T) {
	first := &countingSource{name: "first", kinds: map[sensor.Kind]bool{sensor.Rotation: true}}
	second := &countingSource{name: "second", kinds: map[sensor.Kind]bool{sensor.Rotation: true, sensor.Gyroscope: true}}
	chain := NewChain(first, second)

	for _, tc := range []struct {
		kind     sensor.Kind
		expected string
		owner    *countingSource
	}{
		{kind: sensor.Rotation, expected: "first", owner: first},
		{kind: sensor.Gyroscope, expected: "second", owner: second},
	} {
		t.Run(tc.kind.String(), func(t *testing.T) {
			h, ok := chain.Query(tc.kind)
			assert.True(t, ok)
			assert.Equal(t, tc.expected, h.Name())
			assert.Equal(t, tc.kind, h.Kind())

			token, err := chain.Register(h, time.Second, nil)
			assert.Equal(t, nil, err)
			assert.Equal(t, 1, tc.owner.registered)

			assert.Equal(t, nil, chain.Unregister(token))
			assert.Equal(t, 1, tc.owner.unregistered)
			assert.NotEqual(t, nil, chain.Unregister(token))
		})
	}
}

func TestChainEmpty(t *testing.T) {
	chain := NewChain()
	_, ok := chain.Query(sensor.Gyroscope)
	assert.False(t, ok)

	_, err := chain.Register(sensor.BasicHandle{SensorName: "foreign"}, time.Second, nil)
	assert.NotEqual(t, nil, err)
}
