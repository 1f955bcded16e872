package taxonomy

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a taxonomy file into a Holder whenever it changes. An
// invalid file is logged and ignored; the previous snapshot stays current.
type Watcher struct {
	path    string
	holder  *Holder
	log     *zap.Logger
	watcher *fsnotify.Watcher

	done chan struct{}
	wg   sync.WaitGroup
}

func NewWatcher(path string, holder *Holder, log *zap.Logger) *Watcher {
	return &Watcher{
		path:   filepath.Clean(path),
		holder: holder,
		log:    log.Named("taxonomy.watcher"),
		done:   make(chan struct{}),
	}
}

// Start watches the parent directory, since editors usually replace a file
// by renaming a temporary one over it.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw

	w.wg.Add(1)
	go w.loop()
	return nil
}

func (w *Watcher) Stop() error {
	if w.watcher == nil {
		return nil
	}
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.Reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

// Reload reads the file once and publishes it when valid.
func (w *Watcher) Reload() bool {
	t, err := LoadFile(w.path)
	if err != nil {
		w.log.Warn("taxonomy reload ignored", zap.String("path", w.path), zap.Error(err))
		return false
	}
	w.holder.Store(t)
	w.log.Info("taxonomy reloaded",
		zap.String("path", w.path),
		zap.Int("bridge_entries", len(t.Bridge.Entries())),
		zap.Int("sectors", t.Sectors.Len()),
	)
	return true
}
