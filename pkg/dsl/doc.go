/*
Package dsl builds blueprints in Go instead of YAML or JSON files.

It is handy for tests and for flows generated at runtime:

	b := dsl.New("onboarding", "/start")

	b.Add("ask_email").
		Ask("Your email?", "email").
		Validator("email").
		Go("thanks")

	b.Add("thanks").
		Send("Saved {{email}}")

	store, err := b.Store("acme")
	// ... pass store to botflow.New(...)

The first step added is the entry step unless Entry overrides it.
*/
package dsl
