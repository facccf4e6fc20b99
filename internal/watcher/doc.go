// Package watcher reports structural changes under a workspace root.
//
// A Watcher is armed on one root. It watches every visible directory beneath
// it, drops in-place content writes, and folds each burst of remaining events
// into a single onChange call. Callers re-read the whole catalog on every
// call; no per-file detail is delivered. Slot owns at most one Watcher and
// releases the old one before arming the next.
package watcher
