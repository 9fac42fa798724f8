/*
Package actions provides the built-in step actions and registers them on a
registry.Registry.

Provider dispatch never happens inside a handler: every send goes through the
ports.MessageSender selected from a Senders table by the event's provider.
*/
package actions
