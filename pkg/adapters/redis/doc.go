// Package redis implements botflow's shared-state ports on Redis: sessions,
// blueprints and their trigger index, bot audiences, the distributed session
// lock and a domain-event stream. Values are JSON encoded with sonic.
//
// Every key is prefixed with a configurable namespace (default "botflow:"),
// followed by the logical layout session:{tenant}:{provider}:{user},
// blueprint:{tenant}:{id} and trigger-index:{tenant}:{trigger}.
package redis
