package config

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/trickstertwo/xroute"
)

// Watch re-applies path to rt every time the file is written, until ctx is
// done. Reload failures go to onErr (may be nil) and leave the active
// configuration untouched. The file must be readable when Watch is called;
// it is not applied up front, call Apply first for that.
//
// viper offers no way to stop its fsnotify watcher, so once ctx is done the
// watcher stays alive for the rest of the process and its events are
// dropped. Call Watch once per file, not once per request.
func Watch(ctx context.Context, rt *xroute.Runtime, path string, onErr func(error)) error {
	if rt == nil {
		return xroute.ErrNoRuntime
	}
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}

	report := func(err error) {
		if onErr != nil && err != nil {
			onErr(err)
		}
	}

	v.OnConfigChange(func(ev fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
			return
		}
		f, err := decode(v)
		if err != nil {
			report(fmt.Errorf("reload %q: %w", ev.Name, err))
			return
		}
		if err := applyFile(rt, f); err != nil {
			report(fmt.Errorf("reload %q: %w", ev.Name, err))
		}
	})
	v.WatchConfig()
	return nil
}
