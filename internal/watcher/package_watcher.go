// Package watcher re-triggers validation when the package file changes on
// disk.
package watcher

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RefreshFunc is invoked after a debounced change to the watched package.
type RefreshFunc func(ctx context.Context)

// PackageWatcher watches one package file and calls refresh when it is
// rewritten. Editors and build tools often replace rather than modify, so
// the parent directory is watched and events filtered by name.
type PackageWatcher struct {
	packagePath  string
	refresh      RefreshFunc
	watcher      *fsnotify.Watcher
	debounceTime time.Duration
	stopCh       chan struct{}
	doneCh       chan struct{}
	stopOnce     sync.Once
}

// NewPackageWatcher creates a watcher for the given package file.
func NewPackageWatcher(packagePath string, refresh RefreshFunc) (*PackageWatcher, error) {
	abs, err := filepath.Abs(packagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve package path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	pw := &PackageWatcher{
		packagePath:  abs,
		refresh:      refresh,
		watcher:      w,
		debounceTime: 500 * time.Millisecond,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}

	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}

	return pw, nil
}

// Start begins watching for changes.
func (pw *PackageWatcher) Start(ctx context.Context) {
	go pw.watch(ctx)
}

// Stop stops the watcher. Idempotent.
func (pw *PackageWatcher) Stop() {
	pw.stopOnce.Do(func() {
		close(pw.stopCh)
		<-pw.doneCh
		pw.watcher.Close()
	})
}

func (pw *PackageWatcher) watch(ctx context.Context) {
	defer close(pw.doneCh)

	var debounceTimer *time.Timer
	refreshCh := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case <-pw.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if !pw.isPackageEvent(event) {
				continue
			}

			// Debounce: a package being rewritten produces a burst of
			// events; only the settled state matters.
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(pw.debounceTime, func() {
				select {
				case refreshCh <- struct{}{}:
				default:
				}
			})

		case <-refreshCh:
			log.Printf("Package changed, revalidating: %s", pw.packagePath)
			pw.refresh(ctx)

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Warning: watcher error: %v", err)
		}
	}
}

func (pw *PackageWatcher) isPackageEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != pw.packagePath {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}
