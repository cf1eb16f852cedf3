package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of fs events an editor save produces.
const reloadDebounce = 150 * time.Millisecond

// Watch re-reads the file at path whenever it changes and hands each valid
// result to onChange. A file that fails to parse or validate is reported
// through onError and the previous configuration stays in effect. Watching
// stops when ctx ends.
//
// The watch is on the parent directory, not the file: most editors save by
// writing a temp file and renaming it over the original, which replaces
// the inode a file-level watch is pinned to.
func Watch(ctx context.Context, path string, onChange func(*Config), onError func(error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		w.Close()
		return fmt.Errorf("config watch %s: %w", filepath.Dir(target), err)
	}

	go func() {
		defer w.Close()
		var pending *time.Timer
		reload := func() {
			cfg, err := LoadFrom(target)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				return
			}
			onChange(cfg)
		}
		for {
			select {
			case <-ctx.Done():
				if pending != nil {
					pending.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Op.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename) {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(reloadDebounce, reload)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			}
		}
	}()
	return nil
}
