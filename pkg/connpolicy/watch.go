package connpolicy

import (
	"github.com/polisai/cosmosclient/pkg/config"
)

// Watch loads the configuration file at path, resolves it and keeps the
// resolution current as the file changes. A change that fails to load or
// resolve is logged and the previous resolution stays in effect.
func Watch(path string, opts ...Option) (*config.Watcher[*Resolution], error) {
	o := newOptions(opts)
	build := func(cfg *config.ClientConfiguration) (*Resolution, error) {
		return Build(cfg, opts...)
	}
	return config.NewWatcher(path, build, o.logger)
}
