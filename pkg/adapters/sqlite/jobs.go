package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
	"github.com/bytedance/sonic"
)

// JobStore is the job table of one tenant.
type JobStore struct {
	db     *sql.DB
	tenant string
}

const jobColumns = `id, campaign_id, channel, payload, scheduled_for, attempts, status, recurrence, created_at`

// Put inserts or replaces the job with the same id.
func (s *JobStore) Put(ctx context.Context, job *domain.RemarketingJob) error {
	payload, err := sonic.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	var recurrence sql.NullString
	if job.Recurrence != nil {
		raw, err := sonic.Marshal(job.Recurrence)
		if err != nil {
			return fmt.Errorf("marshal recurrence: %w", err)
		}
		recurrence = sql.NullString{String: string(raw), Valid: true}
	}
	status := job.Status
	if status == "" {
		status = domain.JobPending
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO jobs (tenant_id, `+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.tenant, job.ID, job.CampaignID, job.Channel, string(payload),
		toNanos(job.ScheduledFor), job.Attempts, string(status), recurrence, toNanos(job.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns one job.
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.RemarketingJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE tenant_id = ? AND id = ?`, s.tenant, jobID)
	job, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	return job, err
}

// Delete removes a job and reports whether it existed.
func (s *JobStore) Delete(ctx context.Context, jobID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE tenant_id = ? AND id = ?`, s.tenant, jobID)
	if err != nil {
		return false, fmt.Errorf("delete job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns every job of the tenant ordered by fire time.
func (s *JobStore) List(ctx context.Context) ([]*domain.RemarketingJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE tenant_id = ? ORDER BY scheduled_for, id`, s.tenant)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*domain.RemarketingJob
	for rows.Next() {
		job, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *JobStore) scan(row scanner) (*domain.RemarketingJob, error) {
	var (
		job                     domain.RemarketingJob
		payload, status         string
		recurrence              sql.NullString
		scheduledFor, createdAt int64
	)
	err := row.Scan(&job.ID, &job.CampaignID, &job.Channel, &payload,
		&scheduledFor, &job.Attempts, &status, &recurrence, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := sonic.Unmarshal([]byte(payload), &job.Payload); err != nil {
		return nil, fmt.Errorf("decode payload of job %s: %w", job.ID, err)
	}
	if recurrence.Valid {
		job.Recurrence = &domain.Recurrence{}
		if err := sonic.Unmarshal([]byte(recurrence.String), job.Recurrence); err != nil {
			return nil, fmt.Errorf("decode recurrence of job %s: %w", job.ID, err)
		}
	}
	job.TenantID = s.tenant
	job.Status = domain.JobStatus(status)
	job.ScheduledFor = fromNanos(scheduledFor)
	job.CreatedAt = fromNanos(createdAt)
	return &job, nil
}

// OutcomeLog is the delivery log of one tenant.
type OutcomeLog struct {
	db     *sql.DB
	tenant string
}

// Append records one entry.
func (l *OutcomeLog) Append(ctx context.Context, e domain.OutcomeEntry) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO outcomes (tenant_id, job_id, campaign_id, channel, outcome, error, error_code, attempt, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.tenant, e.JobID, e.CampaignID, e.Channel, string(e.Outcome), e.Error, e.ErrorCode, e.Attempt, toNanos(e.OccurredAt))
	if err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

// List returns matching entries, newest first.
func (l *OutcomeLog) List(ctx context.Context, filter ports.OutcomeFilter) ([]domain.OutcomeEntry, error) {
	query := `SELECT job_id, campaign_id, channel, outcome, error, error_code, attempt, occurred_at
		FROM outcomes WHERE tenant_id = ?`
	args := []any{l.tenant}
	if filter.JobID != "" {
		query += ` AND job_id = ?`
		args = append(args, filter.JobID)
	}
	if filter.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, filter.CampaignID)
	}
	query += ` ORDER BY occurred_at DESC, seq DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var out []domain.OutcomeEntry
	for rows.Next() {
		var (
			e          domain.OutcomeEntry
			outcome    string
			occurredAt int64
		)
		if err := rows.Scan(&e.JobID, &e.CampaignID, &e.Channel, &outcome, &e.Error, &e.ErrorCode, &e.Attempt, &occurredAt); err != nil {
			return nil, err
		}
		e.TenantID = l.tenant
		e.Outcome = domain.Outcome(outcome)
		e.OccurredAt = fromNanos(occurredAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Times are stored as Unix nanoseconds; 0 stands for the zero time.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
