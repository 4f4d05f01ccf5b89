// Package cli holds the small pieces of command-line plumbing shared by
// mem's subcommands.
package cli

// Exit codes returned by cmd/mem's subcommands (SPEC_FULL.md §7's stable
// taxonomy): a graph/task failure, an invalid invocation (bad flags), a
// config error (unreadable/invalid memo.toml or --digest value), and an
// internal error (cache corruption, an unexpected I/O failure) are each
// distinguishable by exit code rather than by parsing stderr.
const (
	ExitSuccess           = 0
	ExitGraphFailure      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)
