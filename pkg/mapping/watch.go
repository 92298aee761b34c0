package mapping

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch loads the table at path and reloads it whenever the file is written,
// created or renamed into place. fn receives every load result, including the
// initial one; a missing file is reported as an error and picked up once it
// appears. The parent directory is watched so the file may not exist yet.
//
// fn runs on the watcher goroutine. Watch returns once watching has started;
// it stops when ctx is canceled.
func Watch(ctx context.Context, path string, fn func(*Table, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return err
	}

	fn(Load(abs))

	go func() {
		defer w.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				t, err := Load(abs)
				if err != nil && event.Op&fsnotify.Rename != 0 {
					// renamed away; wait for the replacement
					continue
				}
				fn(t, err)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				fn(nil, err)
			}
		}
	}()
	return nil
}
