/*
Package events fans domain events out to decoupled subscribers.

Publishing never blocks the engine or the scheduler: events are queued and
delivered by a small worker pool. A failing or panicking subscriber is logged
and skipped; it can never affect state that was already committed.
*/
package events
