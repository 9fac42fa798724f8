package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	tenant := "contract-" + time.Now().Format("20060102150405.000000000")
	key := domain.SessionKey{TenantID: tenant, Provider: "telegram", UserID: "42"}

	t.Run("Save and Load", func(t *testing.T) {
		s := domain.NewSession(key)
		s.CurrentFlowID = "onboarding"
		s.CurrentStepID = "ask_email"
		s.WaitingForInput = true
		s.CollectedData["name"] = "Ana"
		s.UpdatedAt = time.Now().UTC().Truncate(time.Second)

		require.NoError(t, store.Save(ctx, s), "Save should not return error")

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "onboarding", loaded.CurrentFlowID)
		assert.Equal(t, "ask_email", loaded.CurrentStepID)
		assert.True(t, loaded.WaitingForInput)
		assert.Equal(t, "Ana", loaded.CollectedData["name"])
		assert.Equal(t, key, loaded.Key())
	})

	t.Run("Load Returns Isolated Copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, key)
		require.NoError(t, err)
		loaded.CollectedData["name"] = "mutated"

		again, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "Ana", again.CollectedData["name"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, domain.SessionKey{TenantID: tenant, Provider: "telegram", UserID: "nobody"})
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		other := domain.SessionKey{TenantID: tenant, Provider: "discord", UserID: "7"}
		require.NoError(t, store.Save(ctx, domain.NewSession(other)))
		require.NoError(t, store.Delete(ctx, other))

		_, err := store.Load(ctx, other)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("PurgeTenant", func(t *testing.T) {
		foreign := domain.SessionKey{TenantID: tenant + "-other", Provider: "telegram", UserID: "1"}
		require.NoError(t, store.Save(ctx, domain.NewSession(foreign)))
		require.NoError(t, store.Save(ctx, domain.NewSession(domain.SessionKey{TenantID: tenant, Provider: "telegram", UserID: "43"})))

		n, err := store.PurgeTenant(ctx, tenant)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = store.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		_, err = store.Load(ctx, foreign)
		assert.NoError(t, err, "sessions of other tenants must survive a purge")
		_, _ = store.PurgeTenant(ctx, foreign.TenantID)
	})
}

// RunBlueprintStoreContract verifies a BlueprintStore implementation.
func RunBlueprintStoreContract(t *testing.T, store BlueprintStore) {
	ctx := context.Background()
	tenant := "contract-" + time.Now().Format("20060102150405.000000000")

	bp := &domain.Blueprint{
		ID:        "welcome",
		TenantID:  tenant,
		Name:      "Welcome",
		Trigger:   "/start",
		Version:   1,
		EntryStep: "hello",
		Steps: map[string]domain.Step{
			"hello": {Action: "send_message", Params: map[string]any{"text": "hi {{user_name}}"}},
		},
	}

	t.Run("Put and Resolve", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, bp))

		id, err := store.ResolveTrigger(ctx, tenant, "/start")
		require.NoError(t, err)
		assert.Equal(t, "welcome", id)

		loaded, err := store.Get(ctx, tenant, id)
		require.NoError(t, err)
		assert.Equal(t, "/start", loaded.Trigger)
		assert.Equal(t, "hi {{user_name}}", loaded.Steps["hello"].Params["text"])
	})

	t.Run("Tenant Isolation", func(t *testing.T) {
		_, err := store.ResolveTrigger(ctx, tenant+"-other", "/start")
		assert.ErrorIs(t, err, domain.ErrBlueprintNotFound)
		_, err = store.Get(ctx, tenant+"-other", "welcome")
		assert.ErrorIs(t, err, domain.ErrBlueprintNotFound)
	})

	t.Run("Trigger Change Moves Index", func(t *testing.T) {
		moved := *bp
		moved.Trigger = "/hello"
		moved.Version = 2
		require.NoError(t, store.Put(ctx, &moved))

		_, err := store.ResolveTrigger(ctx, tenant, "/start")
		assert.ErrorIs(t, err, domain.ErrBlueprintNotFound)

		id, err := store.ResolveTrigger(ctx, tenant, "/hello")
		require.NoError(t, err)
		assert.Equal(t, "welcome", id)
	})

	t.Run("List", func(t *testing.T) {
		second := *bp
		second.ID = "another"
		second.Trigger = "/another"
		require.NoError(t, store.Put(ctx, &second))

		ids, err := store.List(ctx, tenant)
		require.NoError(t, err)
		assert.Equal(t, []string{"another", "welcome"}, ids)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, tenant, "welcome"))
		_, err := store.Get(ctx, tenant, "welcome")
		assert.ErrorIs(t, err, domain.ErrBlueprintNotFound)
		_, err = store.ResolveTrigger(ctx, tenant, "/hello")
		assert.ErrorIs(t, err, domain.ErrBlueprintNotFound)
		_ = store.Delete(ctx, tenant, "another")
	})
}

// RunJobStoreContract verifies a JobStore implementation. The store must start empty.
func RunJobStoreContract(t *testing.T, store JobStore) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	later := &domain.RemarketingJob{
		ID: "job-later", TenantID: "acme", Channel: "telegram",
		Payload:      map[string]any{"chat_id": "1", "text": "later"},
		ScheduledFor: base.Add(time.Hour),
		Status:       domain.JobPending,
		Recurrence:   &domain.Recurrence{Type: domain.RecurrenceDaily, Time: "10:00"},
	}
	sooner := &domain.RemarketingJob{
		ID: "job-sooner", TenantID: "acme", Channel: "discord", CampaignID: "spring",
		Payload:      map[string]any{"chat_id": "2", "text": "sooner"},
		ScheduledFor: base,
		Status:       domain.JobPending,
	}

	t.Run("Put and Get", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, later))
		require.NoError(t, store.Put(ctx, sooner))

		got, err := store.Get(ctx, "job-later")
		require.NoError(t, err)
		assert.Equal(t, "telegram", got.Channel)
		assert.True(t, got.ScheduledFor.Equal(later.ScheduledFor))
		require.NotNil(t, got.Recurrence)
		assert.Equal(t, "10:00", got.Recurrence.Time)
		assert.Equal(t, "later", got.Payload["text"])
	})

	t.Run("List Ordered By ScheduledFor", func(t *testing.T) {
		jobs, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, "job-sooner", jobs[0].ID)
		assert.Equal(t, "spring", jobs[0].CampaignID)
		assert.Equal(t, "job-later", jobs[1].ID)
	})

	t.Run("Put Replaces", func(t *testing.T) {
		replaced := later.Clone()
		replaced.Attempts = 2
		replaced.Status = domain.JobPaused
		require.NoError(t, store.Put(ctx, replaced))

		got, err := store.Get(ctx, "job-later")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Attempts)
		assert.Equal(t, domain.JobPaused, got.Status)

		jobs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, jobs, 2, "exactly one record per id")
	})

	t.Run("Delete", func(t *testing.T) {
		removed, err := store.Delete(ctx, "job-later")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = store.Delete(ctx, "job-later")
		require.NoError(t, err)
		assert.False(t, removed)

		_, err = store.Get(ctx, "job-later")
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
		_, _ = store.Delete(ctx, "job-sooner")
	})
}

// RunOutcomeLogContract verifies an OutcomeLog implementation. The log must start empty.
func RunOutcomeLogContract(t *testing.T, log OutcomeLog) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	entries := []domain.OutcomeEntry{
		{JobID: "a", TenantID: "acme", CampaignID: "spring", Channel: "telegram", Outcome: domain.OutcomeSuccess, Attempt: 1, OccurredAt: base},
		{JobID: "b", TenantID: "acme", CampaignID: "spring", Channel: "telegram", Outcome: domain.OutcomeFailure, Error: "blocked", ErrorCode: domain.CodeBlocked, Attempt: 1, OccurredAt: base.Add(time.Minute)},
		{JobID: "a", TenantID: "acme", Channel: "telegram", Outcome: domain.OutcomeSuccess, Attempt: 1, OccurredAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, log.Append(ctx, e))
	}

	t.Run("Newest First", func(t *testing.T) {
		all, err := log.List(ctx, OutcomeFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.True(t, all[0].OccurredAt.Equal(base.Add(2*time.Minute)))
	})

	t.Run("Filter By Job", func(t *testing.T) {
		byJob, err := log.List(ctx, OutcomeFilter{JobID: "a"})
		require.NoError(t, err)
		assert.Len(t, byJob, 2)
	})

	t.Run("Filter By Campaign And Limit", func(t *testing.T) {
		byCampaign, err := log.List(ctx, OutcomeFilter{CampaignID: "spring", Limit: 1})
		require.NoError(t, err)
		require.Len(t, byCampaign, 1)
		assert.Equal(t, "b", byCampaign[0].JobID)
		assert.Equal(t, domain.CodeBlocked, byCampaign[0].ErrorCode)
	})
}
