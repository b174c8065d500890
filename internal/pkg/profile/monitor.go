package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gethiox/gyrostream/internal/pkg/logger"
)

// DetectChanges reports writes to YAML files within dir.
// The watcher is closed and the channel with it once ctx is done.
func DetectChanges(ctx context.Context, dir string) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher failed: %w", err)
	}

	err = watcher.Add(dir)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching \"%s\" failed: %w", dir, err)
	}

	var change = make(chan string)

	go func() {
		defer close(change)
		defer func() {
			err := watcher.Close()
			if err != nil {
				log.Info(fmt.Sprintf("closing watcher failed: %v", err), logger.Debug)
			}
		}()

	root:
		for {
			select {
			case <-ctx.Done():
				break root
			case event, ok := <-watcher.Events:
				if !ok {
					break root
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				name := strings.ToLower(event.Name)
				if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
					continue
				}
				log.Info(fmt.Sprintf("profile change detected: %s", event.Name), logger.Info)
				select {
				case change <- event.Name:
				case <-ctx.Done():
					break root
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					break root
				}
				log.Info(fmt.Sprintf("watcher error: %v", err), logger.Warning)
			}
		}
	}()

	return change, nil
}
