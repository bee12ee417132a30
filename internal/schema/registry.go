package schema

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

//go:embed schemas/*.json
var embedded embed.FS

// Registry holds one schema per protocol phase (lowercase name such as
// "nb3") plus "synthesis". Embedded schemas are overridden by files of the
// same name in an optional directory.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
	dir     string
	logger  *zap.Logger
}

// NewRegistry loads the embedded schemas and then the directory overrides.
func NewRegistry(dir string, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{dir: dir, logger: logger.Named("schema")}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the schema registered under name (case-insensitive).
func (r *Registry) Get(name string) (*Schema, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[key]
	if !ok {
		return nil, &domain.SchemaNotFoundError{Name: name}
	}
	return s, nil
}

// Names lists the registered schema names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for n := range r.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Reload rebuilds the registry from scratch.
func (r *Registry) Reload() error {
	schemas := make(map[string]*Schema)

	entries, err := fs.ReadDir(embedded, "schemas")
	if err != nil {
		return fmt.Errorf("read embedded schemas: %w", err)
	}
	for _, e := range entries {
		data, err := embedded.ReadFile("schemas/" + e.Name())
		if err != nil {
			return fmt.Errorf("read embedded schema %s: %w", e.Name(), err)
		}
		s, err := Parse(data)
		if err != nil {
			return fmt.Errorf("embedded schema %s: %w", e.Name(), err)
		}
		schemas[schemaName(e.Name())] = s
	}

	if r.dir != "" {
		files, err := filepath.Glob(filepath.Join(r.dir, "*.json"))
		if err != nil {
			return fmt.Errorf("list schema dir: %w", err)
		}
		for _, path := range files {
			s, err := loadFile(path)
			if err != nil {
				return err
			}
			schemas[schemaName(path)] = s
		}
	}

	r.mu.Lock()
	r.schemas = schemas
	r.mu.Unlock()
	r.logger.Debug("schemas loaded", zap.Int("count", len(schemas)), zap.String("dir", r.dir))
	return nil
}

// Watch reloads schema files from the override directory as they change.
// It blocks until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	if r.dir == "" {
		return fmt.Errorf("schema watch: no directory configured")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("schema watch: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("schema watch %s: %w", r.dir, err)
	}
	r.logger.Info("watching schema directory", zap.String("dir", r.dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			r.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("schema watcher error", zap.Error(err))
		}
	}
}

func (r *Registry) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".json") {
		return
	}
	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		s, err := loadFile(event.Name)
		if err != nil {
			// keep serving the previous version
			r.logger.Warn("schema reload failed", zap.String("file", event.Name), zap.Error(err))
			return
		}
		name := schemaName(event.Name)
		r.mu.Lock()
		r.schemas[name] = s
		r.mu.Unlock()
		r.logger.Info("schema reloaded", zap.String("schema", name))
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if err := r.Reload(); err != nil {
			r.logger.Warn("schema reload failed", zap.Error(err))
		}
	}
}

func loadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return s, nil
}

func schemaName(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}
