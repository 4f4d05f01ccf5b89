// Package memo is an incremental, content-addressed build engine: a library on
// which callers write imperative build descriptions whose individual task
// invocations are transparently memoized on the content of their inputs and on
// the code of the task itself.
//
// The core protocol is described in SPEC_FULL.md. In short: wrapping a
// function with Memoize produces a function that, on each call, computes a
// deterministic fingerprint of the call (task identity plus arguments),
// consults an on-disk cache, and either replays a previously recorded result
// or executes the function and records what it depended on.
package memo
