package indexer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch starts watching the workspace for file changes: creates and writes
// re-enqueue the path, removes delete the stored artifacts for it.
func (idx *Indexer) Watch() error {
	if idx.workspace == "" {
		return fmt.Errorf("no workspace configured")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	err = filepath.WalkDir(idx.workspace, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		for _, dir := range idx.excludedDirs {
			if d.Name() == dir {
				return filepath.SkipDir
			}
		}
		return w.Add(path)
	})
	if err != nil {
		w.Close()
		return fmt.Errorf("failed to watch workspace: %w", err)
	}

	idx.mu.Lock()
	if idx.closed {
		idx.mu.Unlock()
		w.Close()
		return fmt.Errorf("indexer is disposed")
	}
	idx.watcher = w
	idx.mu.Unlock()

	idx.wg.Add(1)
	go idx.watchLoop(w)
	return nil
}

func (idx *Indexer) watchLoop(w *fsnotify.Watcher) {
	defer idx.wg.Done()

	for {
		select {
		case <-idx.done:
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			idx.handleEvent(w, ev)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			idx.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (idx *Indexer) handleEvent(w *fsnotify.Watcher, ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			base := filepath.Base(ev.Name)
			for _, dir := range idx.excludedDirs {
				if base == dir {
					return
				}
			}
			if err := w.Add(ev.Name); err != nil {
				idx.logger.Warn().Err(err).Str("path", ev.Name).
					Msg("Failed to watch new directory")
			}
			return
		}
		idx.QueueFile(ev.Name, false)

	case ev.Op.Has(fsnotify.Write):
		idx.QueueFile(ev.Name, false)

	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		if idx.excluded(ev.Name) {
			return
		}
		idx.storage.DeleteFileArtifacts(fileID(ev.Name), ev.Name)
	}
}
