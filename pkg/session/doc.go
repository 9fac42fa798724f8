/*
Package session implements session management and persistence orchestration.

The Manager gives the engine lazy GetOrCreate and read-modify-write Update
semantics over any ports.SessionStore, and lets callers serialise executions per
user key (tenant, provider, user) through WithLock. In-process exclusion uses
ref-counted mutexes; across replicas an optional ports.DistributedLocker is taken
as well.
*/
package session
