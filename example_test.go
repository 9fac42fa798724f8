package botflow_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/botflow"
	"github.com/aretw0/botflow/pkg/actions"
	"github.com/aretw0/botflow/pkg/adapters/memory"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
	"github.com/aretw0/botflow/pkg/registry"
)

// printSender writes every outbound message to stdout.
type printSender struct{}

func (printSender) SendText(_ context.Context, t ports.Target, text string) error {
	fmt.Printf("[%s] %s\n", t.ChatID, text)
	return nil
}

func (printSender) SendButtons(_ context.Context, t ports.Target, text string, buttons []ports.Button) error {
	fmt.Printf("[%s] %s %v\n", t.ChatID, text, buttons)
	return nil
}

func (printSender) SendPhoto(_ context.Context, t ports.Target, photoURL, caption string) error {
	fmt.Printf("[%s] photo %s %s\n", t.ChatID, photoURL, caption)
	return nil
}

func newEngine(bps ...*domain.Blueprint) *botflow.Engine {
	reg := registry.NewRegistry()
	actions.New(actions.Senders{"telegram": printSender{}}).Register(reg)

	eng, err := botflow.New(memory.NewBlueprintStore(bps...), memory.NewStore(), reg)
	if err != nil {
		log.Fatal(err)
	}
	return eng
}

// ExampleNew runs a one-step greeting flow from its trigger.
func ExampleNew() {
	eng := newEngine(&domain.Blueprint{
		ID: "welcome", TenantID: "acme", Trigger: "/start", Version: 1, EntryStep: "hello",
		Steps: map[string]domain.Step{
			"hello": {Action: actions.SendMessage, Params: map[string]any{"text": "hi {{user_name}}"}},
		},
	})

	res := eng.ExecuteFromTrigger(context.Background(), &domain.UniversalContext{
		TenantID: "acme", Provider: "telegram", UserID: "42", ChatID: "42",
		Metadata: domain.Metadata{Command: "/start", UserName: "Ana"},
	})
	fmt.Println(res.Status, res.StepsExecuted)

	// Output:
	// [42] hi Ana
	// completed 1
}

// ExampleEngine_ExecuteResume suspends on input collection and resumes with the reply.
func ExampleEngine_ExecuteResume() {
	eng := newEngine(&domain.Blueprint{
		ID: "signup", TenantID: "acme", Trigger: "/signup", Version: 1, EntryStep: "ask",
		Steps: map[string]domain.Step{
			"ask": {
				Action:   actions.CollectInput,
				Params:   map[string]any{"prompt": "Your email?", "variable": "email", "validator": "email"},
				NextStep: "thanks",
			},
			"thanks": {Action: actions.SendMessage, Params: map[string]any{"text": "Saved {{email}}"}},
		},
	})

	ctx := context.Background()
	uctx := &domain.UniversalContext{
		TenantID: "acme", Provider: "telegram", UserID: "7", ChatID: "7",
		Metadata: domain.Metadata{Command: "/signup"},
	}
	first := eng.ExecuteFromTrigger(ctx, uctx)
	fmt.Println(first.Status)

	uctx.Metadata = domain.Metadata{LastInput: "ana@example.com"}
	second := eng.ExecuteResume(ctx, uctx)
	fmt.Println(second.Status)

	// Output:
	// [7] Your email?
	// suspended
	// [7] Saved ana@example.com
	// completed
}
