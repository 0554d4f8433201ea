/*
Package session wires the runtime of one tool and manages live sessions.

A Session owns the widget store, module loader, sandbox adapter, dispatcher and
observability projections of a single Tool for its lifetime. User edits go to
the store; changed ids become dispatcher triggers; runs merge their progress
and final patches back into the store. Errors are recovered at the session
boundary and surfaced through the indicator and the notice bus.

The Manager keeps live sessions, persists their snapshots and serializes
access per session id, optionally across replicas with a distributed locker.
*/
package session
