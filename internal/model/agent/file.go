package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type fileDocument struct {
	Agents []Descriptor `yaml:"agents"`
}

// LoadFile reads and validates a YAML agents file.
func LoadFile(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse agents file: %w", err)
	}
	if len(doc.Agents) == 0 {
		return nil, errors.New("agents file defines no agents")
	}

	seenID := make(map[string]struct{}, len(doc.Agents))
	seenNumber := make(map[string]string, len(doc.Agents))
	for _, d := range doc.Agents {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seenID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", d.ID)
		}
		seenID[d.ID] = struct{}{}
		if d.PhoneNumber == "" {
			continue
		}
		if other, dup := seenNumber[d.PhoneNumber]; dup {
			return nil, fmt.Errorf("phone number %s assigned to both %q and %q", d.PhoneNumber, other, d.ID)
		}
		seenNumber[d.PhoneNumber] = d.ID
	}
	return doc.Agents, nil
}

// Watch reloads path into store whenever the file changes, until ctx is done.
// A file that fails to load leaves the previous agent set in place.
func Watch(ctx context.Context, path string, store *MemoryStore, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create agents watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so the directory is watched instead.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch agents dir: %w", err)
	}

	logger = logger.With(zap.String("component", "agents"), zap.String("path", path))
	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			agents, err := LoadFile(path)
			if err != nil {
				logger.Warn("agents reload failed, keeping previous set", zap.Error(err))
				continue
			}
			store.Replace(agents)
			logger.Info("agents reloaded", zap.Int("count", len(agents)))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("agents watcher error", zap.Error(err))
		}
	}
}
