/*
Package botflow is a multi-tenant chat-bot flow interpreter with a durable outbound scheduler.

A tenant describes a conversation as a Blueprint: a graph of steps, each naming an action
(send a message, collect input, branch, schedule a follow-up) and the step that follows.
The engine runs a blueprint one step at a time, persisting the user's position after every
step, so a flow can suspend while it waits for input and resume later on any instance.

# Concept

Inbound events from any messaging platform are normalised into a domain.UniversalContext.
The engine resolves the event's command to a blueprint through a per-tenant trigger index,
runs actions through an explicit registry and reports a structured FlowExecutionResult.
It never returns a Go error across that boundary.

Outbound messages that must happen later (reminders, campaigns) are handed to the
scheduler package, which keeps one single-writer actor per tenant over a durable job table.

# Usage

	blueprints := memory.NewBlueprintStore(&domain.Blueprint{
		ID: "welcome", TenantID: "acme", Trigger: "/start", Version: 1, EntryStep: "hello",
		Steps: map[string]domain.Step{
			"hello": {Action: actions.SendMessage, Params: map[string]any{"text": "hi {{user_name}}"}},
		},
	})

	reg := registry.NewRegistry()
	actions.New(actions.Senders{"telegram": telegram.NewSender()}).Register(reg)

	eng, err := botflow.New(blueprints, memory.NewStore(), reg)
	if err != nil {
		log.Fatal(err)
	}

	res := eng.ExecuteFromTrigger(ctx, &domain.UniversalContext{
		TenantID: "acme", Provider: "telegram", UserID: "42", ChatID: "42",
		Metadata: domain.Metadata{Command: "/start", UserName: "Ana"},
	})
*/
package botflow
