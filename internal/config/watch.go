package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config when the file changes and hands the new snapshot to onReload. The
// parent directory is watched so editors that replace the file by rename are still seen; a
// polling ticker on mtime backs up lost events and platforms without inotify.
func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if m.path == "" {
		<-stop
		return
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if addErr := watcher.Add(filepath.Dir(m.path)); addErr != nil {
			report(onError, addErr)
		} else {
			events = watcher.Events
			errs = watcher.Errors
		}
	} else {
		report(onError, err)
	}

	target := filepath.Clean(m.path)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if _, statErr := os.Stat(m.path); statErr != nil {
				// renamed away; the replacement shows up as a Create
				continue
			}
			m.reloadAndNotify(onReload, onError)
		case werr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			report(onError, werr)
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				report(onError, err)
				continue
			}
			if needs {
				m.reloadAndNotify(onReload, onError)
			}
		case <-stop:
			return
		}
	}
}

func (m *Manager) reloadAndNotify(onReload func(*Config), onError func(error)) {
	cfg, err := m.Reload()
	if err != nil {
		report(onError, err)
		return
	}
	if onReload != nil {
		onReload(cfg)
	}
}

func report(onError func(error), err error) {
	if onError != nil && err != nil {
		onError(err)
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
