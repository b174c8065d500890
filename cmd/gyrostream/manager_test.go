package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gethiox/gyrostream/internal/pkg/host"
	"github.com/gethiox/gyrostream/internal/pkg/sensor"
	"github.com/stretchr/testify/assert"
)

func TestAffects(t *testing.T) {
	assert.True(t, affects("/etc/gyrostream-config/profiles/default.yaml", "default"))
	assert.True(t, affects("default.yml", "default"))
	assert.False(t, affects("/etc/gyrostream-config/profiles/simulated.yaml", "default"))
}

func TestWaitForChange(t *testing.T) {
	t.Run("active profile", func(t *testing.T) {
		changes := make(chan string, 3)
		changes <- "profiles/simulated.yaml"
		changes <- "profiles/default.yaml"
		changes <- "profiles/default.yaml"
		assert.True(t, waitForChange(context.Background(), changes, "default"))
		assert.Equal(t, 0, len(changes))
	})

	t.Run("other profile", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		changes := make(chan string, 1)
		changes <- "profiles/simulated.yaml"
		assert.False(t, waitForChange(ctx, changes, "default"))
	})

	t.Run("closed", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		changes := make(chan string)
		close(changes)
		cancel()
		assert.False(t, waitForChange(ctx, changes, "default"))
	})
}

// nextEvent skips events until match accepts one, it fails the test on timeout.
func nextEvent(t *testing.T, events <-chan sensor.StreamEvent, match func(sensor.StreamEvent) bool) sensor.StreamEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("event not received")
		}
	}
}

func TestRunManager(t *testing.T) {
	base := t.TempDir()
	err := createConfigDirectoryIfNeeded(templateConfig, base)
	assert.Equal(t, nil, err)

	cfg := Config{GyroStream: GyroStream{Profile: "simulated"}}
	registry := sensor.NewRegistry(20 * time.Millisecond)
	hub := host.NewHub()
	events := make(chan sensor.StreamEvent, 16)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		runManager(ctx, cfg, base, registry, hub, sensor.Kinds, events)
		close(finished)
	}()

	ev := nextEvent(t, events, func(ev sensor.StreamEvent) bool {
		return ev.Kind == sensor.Gyroscope && ev.Err == nil
	})
	assert.Equal(t, 3, len(ev.Sample))
	assert.True(t, registry.Attached())

	// user profile without gyroscope replaces the factory one
	writeFile(t, filepath.Join(base, configDir, profilesDir, "simulated.yaml"), `name: simulated
sources:
  - type: simulated
    kinds: [rotation]
`)

	ev = nextEvent(t, events, func(ev sensor.StreamEvent) bool {
		return ev.Kind == sensor.Gyroscope && ev.Err != nil
	})
	assert.Equal(t, "NO_GYROSCOPE_SENSOR", ev.Err.Code)
	assert.Equal(t, sensor.CapabilityAbsent, ev.Err.Class)

	cancel()
	for {
		select {
		case <-events:
			continue
		case <-finished:
		case <-time.After(5 * time.Second):
			t.Fatal("manager did not finish")
		}
		break
	}
	assert.False(t, registry.Attached())
	assert.Equal(t, 0, len(hub.Streams()))
}

func TestRunManagerMissingProfile(t *testing.T) {
	base := t.TempDir()
	err := createConfigDirectoryIfNeeded(templateConfig, base)
	assert.Equal(t, nil, err)

	cfg := Config{GyroStream: GyroStream{Profile: "absent"}}
	registry := sensor.NewRegistry(0)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	runManager(ctx, cfg, base, registry, host.NewHub(), sensor.Kinds, make(chan sensor.StreamEvent))
	assert.False(t, registry.Attached())
}
