/*
Package ports defines the driven ports (interfaces) for the flow engine and the job scheduler.

These interfaces decouple the core logic from external implementations, allowing
the engines to work with various storage backends and messaging platforms.

# Key Interfaces

  - SessionStore: persists per-user conversation state.
  - BlueprintStore: persists flow definitions and the trigger index.
  - JobStore / OutcomeLog: a scheduler actor's private job table and delivery log.
  - MessageSender: the provider capability used by actions and job delivery.
  - DistributedLocker: coordinates per-user execution across replicas.
  - EventPublisher: fire-and-forget domain event fan-out.
*/
package ports
