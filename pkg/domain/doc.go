/*
Package domain contains the core domain models of the ToolBake runtime.

It defines the entities a tool session is made of: the Tool itself (widget schema,
handler source and metadata), the widget values flowing through a session, the
execution requests and runs produced by the dispatcher, module cache entries,
log lines and notices. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Tool: an immutable widget schema plus handler source for one revision.
  - Values / Patch: the id → value map of a session and partial updates to it.
  - ExecutionRequest / ExecutionRun: one dispatched trigger and its outcome.
  - ModuleCacheEntry: the state of a capability in the session's module cache.
  - LogEntry / NoticeEntry: diagnostic output and user-facing notices.
*/
package domain
