// Package pluginmgr implements the Plugin Manager: discovery of
// signed, content-addressed plugins under a fixed directory layout,
// manifest validation with error accumulation (every definition
// problem is reported in one pass rather than failing on the first),
// dist-tree integrity hashing, lock-file drift detection, and the
// Discovered -> Validated -> Loaded -> Active <-> Inactive ->
// Unloaded state machine.
package pluginmgr
