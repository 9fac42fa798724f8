/*
Package domain contains the core models shared by the flow interpreter and the job scheduler.

It is kept free of I/O and persistence concerns, following Hexagonal Architecture principles:
adapters in pkg/adapters translate these types to Redis, SQLite or messaging platforms.

# Key Entities

  - Blueprint: a declarative conversation graph activated by a trigger phrase.
  - Step: one node of a blueprint, naming an action, its params and its successors.
  - SessionData: the durable per-user position (flow, step, collected data).
  - UniversalContext: the per-invocation view of an inbound event, never persisted.
  - RemarketingJob: a scheduled outbound delivery, optionally recurring.
  - DomainEvent: an append-only notification fanned out to subscribers.
*/
package domain
