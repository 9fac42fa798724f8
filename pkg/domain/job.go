package domain

import "time"

// RecurrenceType selects how a job's next occurrence is computed.
type RecurrenceType string

const (
	RecurrenceDaily  RecurrenceType = "daily"
	RecurrenceWeekly RecurrenceType = "weekly"
	RecurrenceCron   RecurrenceType = "cron"
)

// Recurrence describes a repeating job. Time is "HH:mm"; Expression is only used by cron.
type Recurrence struct {
	Type       RecurrenceType `json:"type" yaml:"type" mapstructure:"type"`
	Time       string         `json:"time,omitempty" yaml:"time,omitempty" mapstructure:"time"`
	Expression string         `json:"expression,omitempty" yaml:"expression,omitempty" mapstructure:"expression"`
}

// JobStatus is the lifecycle marker of a persisted job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobPaused  JobStatus = "paused"
)

// RemarketingJob is a scheduled unit of outbound work.
type RemarketingJob struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id"`
	CampaignID   string         `json:"campaign_id,omitempty"`
	Channel      string         `json:"channel"`
	Payload      map[string]any `json:"payload"`
	ScheduledFor time.Time      `json:"scheduled_for"`
	Attempts     int            `json:"attempts"`
	Status       JobStatus      `json:"status"`
	Recurrence   *Recurrence    `json:"recurrence,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Clone returns a deep copy of the job.
func (j *RemarketingJob) Clone() *RemarketingJob {
	if j == nil {
		return nil
	}
	next := *j
	next.Payload = CloneMap(j.Payload)
	if j.Recurrence != nil {
		rec := *j.Recurrence
		next.Recurrence = &rec
	}
	return &next
}

// IsPending reports whether the job takes part in timer arming and wake-ups.
func (j *RemarketingJob) IsPending() bool {
	return j.Status == "" || j.Status == JobPending
}

// IsDue reports whether a pending job should run at now.
func (j *RemarketingJob) IsDue(now time.Time) bool {
	return j.IsPending() && !j.ScheduledFor.After(now)
}

// Outcome is the recorded result of a delivery attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// OutcomeEntry is one line of the scheduler delivery log.
type OutcomeEntry struct {
	JobID      string    `json:"job_id"`
	TenantID   string    `json:"tenant_id"`
	CampaignID string    `json:"campaign_id,omitempty"`
	Channel    string    `json:"channel"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Attempt    int       `json:"attempt"`
	OccurredAt time.Time `json:"occurred_at"`
}
