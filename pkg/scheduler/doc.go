// Package scheduler runs durable, per-tenant delivery of remarketing jobs.
//
// Each tenant is served by one Actor: a goroutine that owns a job table, an
// outcome log and a single wake-up timer. Every operation on an actor
// (Schedule, Cancel, timer wake-ups and command channel messages) executes
// sequentially on that goroutine, so job bookkeeping needs no further locking.
// The timer is always armed for the earliest pending job; persisted jobs are
// re-armed when the actor starts, so a restart never loses work.
//
// A Hub creates actors lazily, restores every persisted tenant on boot and
// routes jobs by tenant id.
package scheduler
