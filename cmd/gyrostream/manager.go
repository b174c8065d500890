package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gethiox/gyrostream/internal/pkg/host"
	"github.com/gethiox/gyrostream/internal/pkg/logger"
	"github.com/gethiox/gyrostream/internal/pkg/profile"
	"github.com/gethiox/gyrostream/internal/pkg/sensor"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// editors tend to write a file more than once on save
const settleTime = 200 * time.Millisecond

// affects tells whether a changed file belongs to the active profile.
func affects(path, name string) bool {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) == name
}

// waitForChange blocks until the active profile changes, false means ctx is done.
func waitForChange(ctx context.Context, changes <-chan string, name string) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case path, ok := <-changes:
			if !ok {
				<-ctx.Done()
				return false
			}
			if !affects(path, name) {
				continue
			}
		}

		timer := time.NewTimer(settleTime)
	settle:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return false
			case _, ok := <-changes:
				if !ok {
					break settle
				}
			case <-timer.C:
				break settle
			}
		}
		return true
	}
}

// attach runs a single attach cycle, it returns with the registry attached
// unless the profile could not be loaded.
func attach(cfg Config, base string, registry *sensor.Registry, hub *host.Hub, streams []sensor.Kind, sink func(sensor.Kind) sensor.Sink) error {
	p, err := loadProfile(base, cfg.GyroStream.Profile)
	if err != nil {
		return fmt.Errorf("profile load failed: %w", err)
	}
	chain, err := p.Build()
	if err != nil {
		return fmt.Errorf("profile build failed: %w", err)
	}

	err = registry.Attach(hub, chain)
	if err != nil {
		return err
	}
	log.Info(fmt.Sprintf("Profile \"%s\" attached", p.Name), zap.Strings("streams", hub.Streams()), logger.Info)

	for _, k := range streams {
		err := hub.Listen(k.StreamID(), sink(k))
		if err != nil {
			log.Info(fmt.Sprintf("listen failed: %v", err), zap.String("stream", k.StreamID()), logger.Error)
			continue
		}
		sub, err := registry.Subscription(k)
		if err != nil {
			continue
		}
		log.Info(
			fmt.Sprintf("Stream %s", sub.State()),
			zap.String("stream", k.StreamID()),
			zap.String("sensor", sub.SensorName()),
			logger.Stream,
		)
	}
	return nil
}

func detach(registry *sensor.Registry) {
	err := registry.Detach()
	for _, e := range multierr.Errors(err) {
		log.Info(fmt.Sprintf("detach: %v", e), logger.Warning)
	}
}

// runManager is the main program process, it attaches the registry with the active profile
// and reattaches it whenever the profile file changes. Registry is detached before return.
func runManager(
	ctx context.Context, cfg Config, base string,
	registry *sensor.Registry, hub *host.Hub,
	streams []sensor.Kind, events chan<- sensor.StreamEvent,
) {
	sink := func(k sensor.Kind) sensor.Sink {
		return sensor.NewChannelSink(k, events).WithDone(ctx.Done())
	}

	changes, err := profile.DetectChanges(ctx, filepath.Join(base, configDir, profilesDir))
	if err != nil {
		log.Info(fmt.Sprintf("profile changes will not be detected: %v", err), logger.Warning)
		closed := make(chan string)
		close(closed)
		changes = closed
	}

	log.Info("Run manager", logger.Debug)
root:
	for {
		select {
		case <-ctx.Done():
			break root
		default:
		}

		err := attach(cfg, base, registry, hub, streams, sink)
		if err != nil {
			log.Info(err.Error(), logger.Error)
		}

		if !waitForChange(ctx, changes, cfg.GyroStream.Profile) {
			break root
		}
		log.Info("handling profile change", logger.Debug)
		detach(registry)
	}

	detach(registry)

	// watcher goroutine logs, it has to finish before the logger gets closed
	for range changes {
	}
	log.Info("Exit manager", logger.Debug)
}
