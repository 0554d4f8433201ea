/*
Package ports defines the driven ports (interfaces) of the ToolBake runtime.

These interfaces decouple the runtime from external implementations, allowing
sessions to work with various tool catalogs and storage backends.

# Key Interfaces

  - ToolRepository: fetch, list, save and delete Tool records (memory, file, Redis, Loam).
  - ScriptStore: the global script record prepended to JavaScript handlers.
  - SnapshotStore: persists session widget values so a session can be resumed.
  - DistributedLocker: coordinates session access across instances.
*/
package ports
