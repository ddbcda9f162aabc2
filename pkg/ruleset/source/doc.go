// Package source loads ruleset definitions from YAML files and keeps a
// store in sync with a watched directory.
//
// A ruleset file declares one version of one lineage. The loader converts
// the YAML condition and action shapes through the same wire codec the
// storage layer uses, so a file that loads is guaranteed to round-trip
// through every backend. The Syncer walks a directory, creates drafts for
// versions it has not seen, and activates them through the version manager;
// the Watcher triggers a re-sync when files change, debounced to survive
// editors that write in bursts.
package source
