package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"live-caption-service/internal/observability/logging"
	"live-caption-service/internal/service/recognizer"
)

// settingsFile is the on-disk layout of the settings store.
type settingsFile struct {
	Recognizer recognizer.Settings `toml:"recognizer"`
}

// LoadSettings reads recognizer settings from a TOML file. Keys missing from
// the file keep their value from base. A missing file yields base.
func LoadSettings(path string, base recognizer.Settings) (recognizer.Settings, error) {
	file := settingsFile{Recognizer: base}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return base, nil
		}
		return base, fmt.Errorf("decode settings %s: %w", path, err)
	}
	if err := file.Recognizer.Validate(); err != nil {
		return base, err
	}
	return file.Recognizer, nil
}

// SaveSettings writes s to path, creating parent directories as needed. The
// file is replaced by rename, so readers never see it half written.
func SaveSettings(path string, s recognizer.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(settingsFile{Recognizer: s}); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

// SettingsWatcher keeps recognizer settings in sync with a TOML file and
// reports every effective change made by someone else.
//
// mu is held across file access in Save and Reload, so a reload never
// observes a save in progress.
type SettingsWatcher struct {
	path     string
	base     recognizer.Settings
	onChange func(recognizer.Settings)
	log      zerolog.Logger

	mu      sync.RWMutex
	current recognizer.Settings
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// NewSettingsWatcher loads the initial settings from path. onChange is called
// after a reload that changed the settings.
func NewSettingsWatcher(path string, base recognizer.Settings, onChange func(recognizer.Settings)) (*SettingsWatcher, error) {
	current, err := LoadSettings(path, base)
	if err != nil {
		return nil, err
	}
	return &SettingsWatcher{
		path:     path,
		base:     base,
		onChange: onChange,
		log:      logging.WithComponent("settings"),
		current:  current,
	}, nil
}

// Current returns the settings in effect.
func (w *SettingsWatcher) Current() recognizer.Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start watches the settings file's directory, so editors that replace the
// file are noticed too.
func (w *SettingsWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	w.wg.Add(1)
	go w.watchLoop(ctx, watcher)

	w.log.Info().Str("path", w.path).Msg("watching settings file")
	return nil
}

// Stop ends watching and waits for the watch loop to exit.
func (w *SettingsWatcher) Stop() {
	w.mu.Lock()
	watcher := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	if watcher != nil {
		watcher.Close()
	}
	w.wg.Wait()
}

func (w *SettingsWatcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer w.wg.Done()
	name := filepath.Base(w.path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.Reload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("settings watcher error")

		case <-ctx.Done():
			return
		}
	}
}

// Save writes s to the file and makes it current without calling onChange;
// the watcher's own write is not reported as a change.
func (w *SettingsWatcher) Save(s recognizer.Settings) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := SaveSettings(w.path, s); err != nil {
		return err
	}
	w.current = s
	return nil
}

// Reload re-reads the file. Invalid and empty files are logged and ignored;
// the previous settings stay in effect. An empty file is usually an editor
// midway through rewriting it. It reports whether the settings changed.
func (w *SettingsWatcher) Reload() bool {
	w.mu.Lock()
	if info, err := os.Stat(w.path); err == nil && info.Size() == 0 {
		w.mu.Unlock()
		w.log.Debug().Str("path", w.path).Msg("ignoring empty settings file")
		return false
	}
	next, err := LoadSettings(w.path, w.base)
	if err != nil {
		w.mu.Unlock()
		w.log.Warn().Err(err).Str("path", w.path).Msg("ignoring invalid settings file")
		return false
	}
	changed := !w.current.Equal(next)
	w.current = next
	w.mu.Unlock()

	if !changed {
		return false
	}
	w.log.Info().Str("language", next.Language).Msg("settings reloaded")
	if w.onChange != nil {
		w.onChange(next)
	}
	return true
}
