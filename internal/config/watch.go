package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher reports on-disk changes in the directories holding glossary_path
// and never_translate_rules_path (SPEC_FULL.md §12); reloading is left to
// the onChange callback.
type Watcher struct {
	fsw      *fsnotify.Watcher
	onChange func(path string)
	done     chan struct{}
}

// WatchAuxiliaryFiles starts watching the directories that hold the
// configured glossary and never-translate rule files. onChange is invoked
// with the path of any file written or created in those directories, not
// only the two configured files.
// The returned Watcher must be closed with Close when the pipeline is done.
func WatchAuxiliaryFiles(c *Config, onChange func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{fsw: fsw, onChange: onChange, done: make(chan struct{})}

	for _, p := range []string{c.Translation.GlossaryPath, c.Translation.NeverTranslateRulesPath} {
		if p == "" {
			continue
		}
		dir := filepath.Dir(p)
		if err := fsw.Add(dir); err != nil {
			log.WithError(err).WithField("dir", dir).Warn("config watch: failed to watch directory")
			continue
		}
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && w.onChange != nil {
				w.onChange(event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("config watch: error")
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
