// Package prompt provides named, parametrised text templates for the
// bus's language-model interactions. Templates resolve from an on-disk
// directory first, falling back to the built-in catalog, and are cached
// after first load. A file watcher invalidates cached entries when
// operators edit templates in place.
package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// templateExt is the file extension for on-disk templates.
const templateExt = ".tmpl"

// templateGlob matches template files anywhere under the prompt
// directory.
const templateGlob = "**/*" + templateExt

// placeholderPattern matches {dotted.path} placeholders.
var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+(?:\.[a-zA-Z0-9_]+)*)\}`)

// Store resolves and renders named prompt templates.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// NewStore creates a prompt store. dir may be empty, in which case only
// the built-in catalog is consulted.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:    dir,
		logger: logger,
		cache:  make(map[string]string),
	}
}

// Get returns the template text for name: cached copy, then on-disk
// file, then built-in catalog.
func (s *Store) Get(name string) (string, error) {
	s.mu.RLock()
	if text, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return text, nil
	}
	s.mu.RUnlock()

	if s.dir != "" {
		path := filepath.Join(s.dir, name+templateExt)
		data, err := os.ReadFile(path)
		if err == nil {
			text := string(data)
			s.put(name, text)
			return text, nil
		}
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read prompt file, using builtin",
				"name", name, "path", path, "error", err)
		}
	}

	if text, ok := builtinPrompts[name]; ok {
		s.put(name, text)
		return text, nil
	}
	return "", fmt.Errorf("unknown prompt %q", name)
}

// Format renders the named template, substituting {dotted.path}
// placeholders from data. Object and array values, and values whose
// placeholder key contains "json", render as indented JSON. Missing
// paths are left as the literal placeholder and logged.
func (s *Store) Format(name string, data map[string]any) (string, error) {
	text, err := s.Get(name)
	if err != nil {
		return "", err
	}

	rendered := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		path := match[1 : len(match)-1]
		value, ok := resolvePath(data, path)
		if !ok {
			s.logger.Warn("Prompt placeholder not found", "prompt", name, "placeholder", path)
			return match
		}
		return renderValue(path, value)
	})
	return rendered, nil
}

// Names lists the available template names: on-disk files matched by
// the template glob plus the built-in catalog.
func (s *Store) Names() []string {
	seen := make(map[string]struct{})
	if s.dir != "" {
		matches, err := doublestar.FilepathGlob(filepath.Join(s.dir, templateGlob))
		if err != nil {
			s.logger.Warn("Prompt directory scan failed", "dir", s.dir, "error", err)
		}
		for _, match := range matches {
			rel, err := filepath.Rel(s.dir, match)
			if err != nil {
				continue
			}
			seen[strings.TrimSuffix(filepath.ToSlash(rel), templateExt)] = struct{}{}
		}
	}
	for name := range builtinPrompts {
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return names
}

// Watch invalidates cached templates when files under the prompt
// directory change. It returns immediately; the watcher goroutine stops
// when ctx is cancelled. A missing or empty directory is not an error.
func (s *Store) Watch(ctx context.Context) error {
	if s.dir == "" {
		return nil
	}
	if _, err := os.Stat(s.dir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, templateExt) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				name := strings.TrimSuffix(filepath.Base(event.Name), templateExt)
				s.invalidate(name)
				s.logger.Debug("Prompt cache invalidated", "name", name, "op", event.Op.String())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("Prompt watcher error", "error", err)
			}
		}
	}()

	s.logger.Info("Prompt watcher started", "dir", s.dir)
	return nil
}

func (s *Store) put(name, text string) {
	s.mu.Lock()
	s.cache[name] = text
	s.mu.Unlock()
}

func (s *Store) invalidate(name string) {
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
}

// resolvePath walks a dotted path through nested maps.
func resolvePath(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = data
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// renderValue stringifies a placeholder value. Structured values and
// json-suffixed keys render as indented JSON.
func renderValue(path string, value any) string {
	wantJSON := strings.Contains(strings.ToLower(path), "json")
	switch value.(type) {
	case map[string]any, []any, []string, []map[string]any:
		wantJSON = true
	}
	if wantJSON {
		pretty, err := json.MarshalIndent(value, "", "  ")
		if err == nil {
			return string(pretty)
		}
	}
	return fmt.Sprintf("%v", value)
}
