// Package sandbox runs untrusted tool handlers.
//
// The Adapter does not implement a language sandbox. It depends on an Isolate,
// the host's isolation primitive, and narrows what the handler can see to a
// read-only input snapshot, the trigger id, a progress callback, a capability
// request entry point and a log sink.
//
// Progress patches and log lines travel from the isolate to the caller through
// one ordered queue, so the caller observes them in emission order and always
// before the terminal result. Handler failures never escape Invoke as panics.
//
// Implementations live in the jsvm (JavaScript) and govm (Go) subpackages.
package sandbox
