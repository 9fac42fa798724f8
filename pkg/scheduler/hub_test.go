package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/botflow/pkg/actions"
	"github.com/aretw0/botflow/pkg/adapters/memory"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
	"github.com/aretw0/botflow/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_RoutesByTenant(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewSchedulerStorage()
	clock := newFakeClock(base)
	hub := scheduler.NewHub(storage, actions.Senders{"telegram": &scriptedSender{}}, scheduler.WithClock(clock))
	require.NoError(t, hub.Start(ctx))
	defer func() { _ = hub.Stop(ctx) }()

	var _ actions.JobScheduler = hub

	for _, tenant := range []string{"acme", "globex"} {
		job := textJob("", "1", base.Add(time.Hour))
		job.TenantID = tenant
		res, err := hub.Schedule(ctx, job)
		require.NoError(t, err)
		assert.True(t, res.Scheduled)
	}
	assert.ElementsMatch(t, []string{"acme", "globex"}, hub.Tenants())

	acmeJobs, err := storage.Jobs("acme")
	require.NoError(t, err)
	list, err := acmeJobs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "acme", list[0].TenantID)

	_, err = hub.Schedule(ctx, textJob("x", "1", base))
	assert.True(t, domain.HasCode(err, domain.CodeInvalidJob), "jobs need a tenant")

	resp := hub.Handle(ctx, "globex", request(scheduler.CmdTimerStatus, nil))
	require.True(t, resp.OK)
	assert.Equal(t, 1, resp.Data.(scheduler.TimerStatus).Pending)

	res, err := hub.Cancel(ctx, "acme", list[0].ID)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
}

func TestHub_RestoresPersistedTenants(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewSchedulerStorage()
	jobs, err := storage.Jobs("acme")
	require.NoError(t, err)
	require.NoError(t, jobs.Put(ctx, textJob("left-over", "1", base.Add(time.Minute))))

	clock := newFakeClock(base)
	sender := &scriptedSender{}
	hub := scheduler.NewHub(storage, actions.Senders{"telegram": sender}, scheduler.WithClock(clock))
	require.NoError(t, hub.Start(ctx))
	assert.Equal(t, []string{"acme"}, hub.Tenants())

	clock.Advance(time.Minute)
	a, err := hub.Actor(ctx, "acme")
	require.NoError(t, err)
	_, armed, err := a.ArmedAt(ctx)
	require.NoError(t, err)
	assert.False(t, armed)
	assert.Len(t, sender.messages(), 1, "a restored job is delivered by the restored timer")

	require.NoError(t, hub.Stop(ctx))
	_, err = hub.Actor(ctx, "acme")
	assert.ErrorIs(t, err, scheduler.ErrStopped)
}

// gatedStorage blocks opening one tenant until release is closed.
type gatedStorage struct {
	*memory.SchedulerStorage
	tenant  string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStorage) Jobs(tenantID string) (ports.JobStore, error) {
	if tenantID == g.tenant {
		close(g.entered)
		<-g.release
	}
	return g.SchedulerStorage.Jobs(tenantID)
}

func TestHub_SlowTenantDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	storage := &gatedStorage{
		SchedulerStorage: memory.NewSchedulerStorage(),
		tenant:           "slow",
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	hub := scheduler.NewHub(storage, actions.Senders{"telegram": &scriptedSender{}}, scheduler.WithClock(newFakeClock(base)))
	require.NoError(t, hub.Start(ctx))
	defer func() { _ = hub.Stop(ctx) }()

	type result struct {
		actor *scheduler.Actor
		err   error
	}
	slow := make(chan result, 2)
	for range 2 {
		go func() {
			a, err := hub.Actor(ctx, "slow")
			slow <- result{a, err}
		}()
	}
	<-storage.entered

	done := make(chan error, 1)
	go func() {
		_, err := hub.Actor(ctx, "fast")
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("opening one tenant blocked another")
	}

	close(storage.release)
	first, second := <-slow, <-slow
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	assert.Same(t, first.actor, second.actor, "one actor per tenant")
	assert.ElementsMatch(t, []string{"fast", "slow"}, hub.Tenants())
}
