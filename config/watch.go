package config

import (
	"github.com/fsnotify/fsnotify"
)

// ApplyHotReloadable copies the fields a Watch call will pick up from a
// changed file; everything else (Path, in particular) describes an
// already-established connection and is intentionally left untouched by
// a running client.
func ApplyHotReloadable(dst *Options, src Options) {
	dst.SubscriptionTimeout = src.SubscriptionTimeout
	dst.RecordReadAckTimeout = src.RecordReadAckTimeout
	dst.RecordReadTimeout = src.RecordReadTimeout
	dst.RecordDeleteTimeout = src.RecordDeleteTimeout
	dst.RPCAckTimeout = src.RPCAckTimeout
	dst.RPCResponseTimeout = src.RPCResponseTimeout
	dst.RecordMergeStrategy = src.RecordMergeStrategy
	dst.ProviderACL = src.ProviderACL
}

// Watcher re-parses a TOML file whenever it changes on disk and delivers
// the full parsed Options; ApplyHotReloadable copies the hot-reloadable
// subset into a live Options.
type Watcher struct {
	path    string
	fsw     *fsnotify.Watcher
	updates chan Options
	done    chan struct{}
}

// Watch starts watching path for changes. Updates are delivered on the
// channel returned by the Watcher's Updates method; call Close to stop.
func Watch(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		fsw:     fsw,
		updates: make(chan Options, 1),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Updates returns the channel new Options are delivered on.
func (w *Watcher) Updates() <-chan Options { return w.updates }

func (w *Watcher) loop() {
	defer close(w.updates)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			opts, err := LoadFile(w.path)
			if err != nil {
				continue // keep watching; a transient partial write is not fatal
			}
			select {
			case w.updates <- opts:
			default:
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	return w.fsw.Close()
}
