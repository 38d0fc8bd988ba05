// Package rulefile loads rules from a YAML file and watches it for changes.
//
//	rules:
//	  - name: popular creators
//	    status: active
//	    condition:
//	      type: nested
//	      conjunction: AND
//	      conditions:
//	        - {type: single, field: role, operator: equals, value: creator}
//	        - {type: single, field: fans, operator: greaterThan, value: "1000"}
//
// Entries without an id get a UUIDv5 derived from the name, so reloading
// an unchanged file yields the same ids.
package rulefile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/solatis/rulematch/internal/core/metrics"
	"github.com/solatis/rulematch/internal/rules"
	"github.com/solatis/rulematch/internal/types"
)

// File is the YAML document shape.
type File struct {
	Rules []types.Rule `yaml:"rules"`
}

// RuleError is a rejected entry of a rule file.
type RuleError struct {
	Index int
	Name  string
	Err   error
}

func (e *RuleError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("rules[%d]: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("rules[%d] (%s): %v", e.Index, e.Name, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// Parse decodes and validates every entry of a rule file. All entries are
// checked; the returned error joins one *RuleError per rejected entry.
func Parse(data []byte) ([]*rules.ValidatedRule, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}

	var errs []error
	out := make([]*rules.ValidatedRule, 0, len(f.Rules))
	seen := make(map[types.RuleID]int, len(f.Rules))
	for i := range f.Rules {
		rule := f.Rules[i]
		if rule.ID == "" {
			rule.ID = types.RuleIDFromName(rule.Name)
		} else {
			id, err := types.ParseRuleID(string(rule.ID))
			if err != nil {
				errs = append(errs, &RuleError{Index: i, Name: rule.Name, Err: fmt.Errorf("invalid id %q: %w", rule.ID, err)})
				continue
			}
			rule.ID = id
		}
		if first, dup := seen[rule.ID]; dup {
			errs = append(errs, &RuleError{Index: i, Name: rule.Name, Err: fmt.Errorf("%w: %s (also rules[%d])", types.ErrDuplicateRuleID, rule.ID, first)})
			continue
		}
		seen[rule.ID] = i

		vr, err := rules.ValidateRule(&rule)
		if err != nil {
			errs = append(errs, &RuleError{Index: i, Name: rule.Name, Err: err})
			continue
		}
		out = append(out, vr)
	}

	if len(errs) > 0 {
		metrics.RulesRejected.WithLabelValues("rulefile").Add(float64(len(errs)))
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Loader reads a rule file and watches it for changes.
type Loader struct {
	path     string
	logger   *slog.Logger
	mu       sync.RWMutex
	current  []*rules.ValidatedRule
	onChange []func([]*rules.ValidatedRule)
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{path: path, logger: logger}
	current, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = current
	return l, nil
}

// Rules returns the latest successfully loaded rules.
func (l *Loader) Rules() []*rules.ValidatedRule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked after every successful reload.
func (l *Loader) OnChange(fn func([]*rules.ValidatedRule)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Reload re-reads the file. On failure the previous rules stay current.
func (l *Loader) Reload() ([]*rules.ValidatedRule, error) {
	current, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = current
	callbacks := make([]func([]*rules.ValidatedRule), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(current)
	}
	return current, nil
}

// Watch starts a background goroutine that reloads the file on change.
// The parent directory is watched so editors that replace the file by
// rename are seen. Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rule file watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("rule file watcher add %s: %w", dir, err)
	}
	target := filepath.Clean(l.path)

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				loaded, err := l.Reload()
				if err != nil {
					// Keep serving the previous rules
					l.logger.Warn("rule file reload failed", "path", l.path, "error", err)
					continue
				}
				l.logger.Info("rule file reloaded", "path", l.path, "rules", len(loaded))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("rule file watcher error", "path", l.path, "error", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
		})
	}, nil
}

func (l *Loader) load() ([]*rules.ValidatedRule, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read rule file %s: %w", l.path, err)
	}
	loaded, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rule file %s: %w", l.path, err)
	}
	return loaded, nil
}
