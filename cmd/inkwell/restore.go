package main

import (
	"os"

	"inkwell/internal/logging"
	"inkwell/internal/settings"
	"inkwell/internal/workspace"
)

type rootSetter interface {
	SetRoot(path *string) (workspace.RootDescriptor, error)
}

type rootHistory interface {
	Snapshot() settings.State
	Forget(path string) error
}

// restoreRoot picks the startup root: an explicit root first, then the last
// external root if it is still a directory, then the internal root. Only a
// failure of the internal fallback is fatal.
func restoreRoot(service rootSetter, history rootHistory, explicit string, logger *logging.Logger) (workspace.RootDescriptor, error) {
	if explicit != "" {
		root, err := service.SetRoot(&explicit)
		if err == nil {
			return root, nil
		}
		logger.Warn("requested root unavailable; falling back", map[string]string{
			"root":  explicit,
			"error": err.Error(),
		})
	}

	if history != nil {
		state := history.Snapshot()
		if state.LastRootKind == workspace.RootExternal && state.LastRoot != "" {
			last := state.LastRoot
			if info, err := os.Stat(last); err == nil && info.IsDir() {
				root, err := service.SetRoot(&last)
				if err == nil {
					return root, nil
				}
				logger.Warn("failed to reopen last root", map[string]string{
					"root":  last,
					"error": err.Error(),
				})
			} else {
				logger.Info("last root no longer exists", map[string]string{
					"root": last,
				})
				if forgetErr := history.Forget(last); forgetErr != nil {
					logger.Warn("failed to forget missing root", map[string]string{
						"root":  last,
						"error": forgetErr.Error(),
					})
				}
			}
		}
	}

	return service.SetRoot(nil)
}
