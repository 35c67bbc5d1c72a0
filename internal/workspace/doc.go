// Package workspace resolves manifest repositories to local directories.
//
// Local entries are validated in place. Git entries map onto a shared
// clone cache, one slot per normalized remote URL, so several manifests
// referencing the same repository reuse a single checkout. Acquiring the
// clone and pinning revisions is delegated to external git tooling; the
// resolver validates what is on disk and reports the expected location
// when nothing is.
package workspace
