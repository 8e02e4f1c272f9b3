package cfg

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchRules watches path for writes and re-parses it, calling onChange
// with the freshly loaded rule set whenever the file is rewritten. This is
// the long-running proxy process's hot-reload path: editing the rule list
// doesn't require restarting a proxied server's whole process tree.
func WatchRules(path string, logger *slog.Logger, onChange func([]RuleConfig)) (stop func(), err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return func() {}, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Warn("reloading config after change", "path", path, "error", err)
					continue
				}
				onChange(cfg.Rules)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("watching config file", "path", path, "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
