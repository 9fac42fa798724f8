package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/botflow/pkg/adapters/sqlite"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStorage(t *testing.T) (*sqlite.Storage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scheduler.db")
	s, err := sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestJobStore_Contract(t *testing.T) {
	s, _ := openStorage(t)
	jobs, err := s.Jobs("acme")
	require.NoError(t, err)
	ports.RunJobStoreContract(t, jobs)
}

func TestOutcomeLog_Contract(t *testing.T) {
	s, _ := openStorage(t)
	log, err := s.Outcomes("acme")
	require.NoError(t, err)
	ports.RunOutcomeLogContract(t, log)
}

func TestStorage_TenantIsolationAndRestore(t *testing.T) {
	ctx := context.Background()
	s, path := openStorage(t)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	acme, err := s.Jobs("acme")
	require.NoError(t, err)
	globex, err := s.Jobs("globex")
	require.NoError(t, err)
	require.NoError(t, acme.Put(ctx, &domain.RemarketingJob{ID: "same-id", Channel: "telegram", Payload: map[string]any{"chat_id": "1"}, ScheduledFor: at}))
	require.NoError(t, globex.Put(ctx, &domain.RemarketingJob{ID: "same-id", Channel: "discord", Payload: map[string]any{"chat_id": "2"}, ScheduledFor: at}))

	got, err := acme.Get(ctx, "same-id")
	require.NoError(t, err)
	assert.Equal(t, "telegram", got.Channel)
	assert.Equal(t, "acme", got.TenantID)
	assert.Equal(t, domain.JobPending, got.Status)

	removed, err := globex.Delete(ctx, "same-id")
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = acme.Get(ctx, "same-id")
	assert.NoError(t, err, "deleting in one tenant leaves the other alone")

	require.NoError(t, s.Close())

	reopened, err := sqlite.Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	tenants, err := reopened.Tenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, tenants, "jobs survive a restart")
}
