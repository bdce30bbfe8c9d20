package workspace

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/bonsai/internal/models"
)

// DefaultDebounce is how long the watcher waits after a rename before it
// synchronises the workspace with the vault.
const DefaultDebounce = 200 * time.Millisecond

// Watch follows changes to the vault directory until ctx is cancelled and
// applies them as lifecycle events.
//
// Saves and deletes of known documents apply immediately. fsnotify reports a
// rename as a Rename of the old path followed by a Create of the new one, so
// renames and files the workspace has not seen yet are left to a debounced
// Sync, which pairs them up by checksum and keeps node identity.
func (w *Workspace) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	root := w.store.Root()
	if err := addDirsRecursive(fw, root); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("root", root))

	var syncTimer *time.Timer
	var syncCh <-chan time.Time
	scheduleSync := func() {
		if syncTimer == nil {
			syncTimer = time.NewTimer(debounce)
			syncCh = syncTimer.C
			return
		}
		syncTimer.Reset(debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if syncTimer != nil {
				syncTimer.Stop()
			}
			w.logger.Info("watcher: stopped")
			return nil

		case <-syncCh:
			if err := w.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Warn("watcher: sync failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			abs := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
					if hidden(filepath.Base(abs)) {
						continue
					}
					if addErr := addDirsRecursive(fw, abs); addErr != nil {
						w.logger.Warn("watcher: add new dir failed",
							slog.String("path", abs), slog.String("error", addErr.Error()))
					} else {
						w.logger.Debug("watcher: watching new dir", slog.String("path", abs))
					}
					scheduleSync()
					continue
				}
			}

			if !strings.HasSuffix(abs, extMD) || hidden(filepath.Base(abs)) {
				continue
			}
			rel, relErr := filepath.Rel(root, abs)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if _, known := w.lookup(rel); !known {
					scheduleSync()
					continue
				}
				if err := w.fileChanged(ctx, rel); err != nil {
					w.logger.Warn("watcher: apply failed", slog.String("path", rel), slog.String("error", err.Error()))
				}

			case ev.Op&fsnotify.Remove != 0:
				if err := w.fileRemoved(ctx, rel); err != nil {
					w.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
				}

			case ev.Op&fsnotify.Rename != 0:
				scheduleSync()
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// Sync brings the workspace in line with the vault on disk. Documents that
// vanished from one path and appeared at another with the same content are
// treated as renames; the rest are deletes, creates and saves.
func (w *Workspace) Sync(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	metas, err := w.store.List("")
	if err != nil {
		return err
	}
	disk := make(map[string]models.DocumentMeta, len(metas))
	for _, m := range metas {
		disk[m.Path] = m
	}

	w.state.RLock()
	var missing []*docInfo
	for p, info := range w.docs {
		if _, ok := disk[p]; !ok {
			missing = append(missing, info)
		}
	}
	var added []models.DocumentMeta
	var changed []string
	for _, m := range metas {
		info, ok := w.docs[m.Path]
		switch {
		case !ok:
			added = append(added, m)
		case info.checksum != m.Checksum:
			changed = append(changed, m.Path)
		}
	}
	w.state.RUnlock()

	var errs []error
	for _, info := range missing {
		dst := -1
		for i, m := range added {
			if m.Checksum == info.checksum {
				dst = i
				break
			}
		}
		if dst < 0 {
			errs = append(errs, w.applyDelete(ctx, info.path))
			continue
		}
		to := added[dst].Path
		added = append(added[:dst], added[dst+1:]...)
		errs = append(errs, w.applyRename(ctx, info.path, to))
	}
	for _, m := range added {
		errs = append(errs, w.applyFile(ctx, m.Path, w.applyCreate))
	}
	for _, p := range changed {
		errs = append(errs, w.applyFile(ctx, p, w.applySave))
	}

	if len(missing)+len(added)+len(changed) > 0 {
		w.logger.Debug("watcher: synced",
			slog.Int("removed", len(missing)), slog.Int("added", len(added)), slog.Int("changed", len(changed)))
		w.persist(ctx)
	}
	return errors.Join(errs...)
}

// fileChanged applies new content of a known document.
func (w *Workspace) fileChanged(ctx context.Context, p string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.applyFile(ctx, p, w.applySave); err != nil {
		return err
	}
	w.persist(ctx)
	return nil
}

// fileRemoved applies the removal of a document.
func (w *Workspace) fileRemoved(ctx context.Context, p string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.lookup(p); !ok {
		return nil
	}
	if err := w.applyDelete(ctx, p); err != nil {
		return err
	}
	w.persist(ctx)
	return nil
}

func (w *Workspace) applyFile(ctx context.Context, p string, apply func(context.Context, string, []byte) error) error {
	data, err := w.store.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return apply(ctx, p, data)
}

// addDirsRecursive adds root and all its visible subdirectories to the
// watcher.
func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return fw.Add(p)
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
