package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/ports"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

// ProtocolVersion is the command vocabulary version this package speaks.
const ProtocolVersion = 1

// Command types of vocabulary v1.
const (
	CmdJobsList       = "jobs.list"
	CmdJobsGet        = "jobs.get"
	CmdJobsSchedule   = "jobs.schedule"
	CmdJobsCancel     = "jobs.cancel"
	CmdCampaignCreate = "campaign.create"
	CmdCampaignStatus = "campaign.status"
	CmdCampaignPause  = "campaign.pause"
	CmdCampaignResume = "campaign.resume"
	CmdCampaignDelete = "campaign.delete"
	CmdRecipientsList = "recipients.list"
	CmdOutcomesList   = "outcomes.list"
	CmdTimerStatus    = "timer.status"
)

// Response codes that only exist on the command channel.
const (
	CodeUnsupportedVersion = "UNSUPPORTED_VERSION"
	CodeUnknownCommand     = "UNKNOWN_COMMAND"
	CodeBadPayload         = "BAD_PAYLOAD"
	CodeJobNotFound        = "JOB_NOT_FOUND"
)

// Request is one command addressed to an actor.
type Request struct {
	Version       int            `json:"version"`
	CorrelationID string         `json:"correlation_id"`
	Type          string         `json:"type"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// Response answers the Request with the same CorrelationID.
type Response struct {
	Version       int    `json:"version"`
	CorrelationID string `json:"correlation_id"`
	OK            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
	Code          string `json:"code,omitempty"`
	Data          any    `json:"data,omitempty"`
}

type commandFunc func(a *Actor, ctx context.Context, payload map[string]any) (any, error)

var commands = map[string]commandFunc{
	CmdJobsList:       (*Actor).cmdJobsList,
	CmdJobsGet:        (*Actor).cmdJobsGet,
	CmdJobsSchedule:   (*Actor).cmdJobsSchedule,
	CmdJobsCancel:     (*Actor).cmdJobsCancel,
	CmdCampaignCreate: (*Actor).cmdCampaignCreate,
	CmdCampaignStatus: (*Actor).cmdCampaignStatus,
	CmdCampaignPause:  (*Actor).cmdCampaignPause,
	CmdCampaignResume: (*Actor).cmdCampaignResume,
	CmdCampaignDelete: (*Actor).cmdCampaignDelete,
	CmdRecipientsList: (*Actor).cmdRecipientsList,
	CmdOutcomesList:   (*Actor).cmdOutcomesList,
	CmdTimerStatus:    (*Actor).cmdTimerStatus,
}

// Commands lists the supported command types.
func Commands() []string {
	out := make([]string, 0, len(commands))
	for name := range commands {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// badPayload marks decode failures so Handle can report CodeBadPayload.
type badPayload struct{ err error }

func (e badPayload) Error() string { return "invalid payload: " + e.err.Error() }
func (e badPayload) Unwrap() error { return e.err }

// Handle executes req on the actor goroutine. It never returns a Go error;
// failures are carried in the Response.
func (a *Actor) Handle(ctx context.Context, req Request) Response {
	resp := Response{Version: ProtocolVersion, CorrelationID: req.CorrelationID}
	if resp.CorrelationID == "" {
		resp.CorrelationID = uuid.NewString()
	}
	if req.Version != ProtocolVersion {
		resp.Code = CodeUnsupportedVersion
		resp.Error = fmt.Sprintf("unsupported protocol version %d, want %d", req.Version, ProtocolVersion)
		return resp
	}
	cmd, ok := commands[req.Type]
	if !ok {
		resp.Code = CodeUnknownCommand
		resp.Error = fmt.Sprintf("unknown command %q", req.Type)
		return resp
	}

	var data any
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		data, err = cmd(a, ctx, req.Payload)
		return err
	})
	if err != nil {
		resp.Error = domain.ErrorMessage(err)
		var bp badPayload
		switch {
		case errors.As(err, &bp):
			resp.Code = CodeBadPayload
		case errors.Is(err, domain.ErrJobNotFound):
			resp.Code = CodeJobNotFound
		default:
			resp.Code = domain.ErrorCode(err)
		}
		return resp
	}
	resp.OK = true
	resp.Data = data
	return resp
}

// Serve answers requests read from in until in is closed or ctx ends.
// Requests are handled concurrently, so responses may be written in any
// order; match them by CorrelationID.
func (a *Actor) Serve(ctx context.Context, in <-chan Request, out chan<- Response) {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-in:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp := a.Handle(ctx, req)
				select {
				case out <- resp:
				case <-ctx.Done():
				}
			}()
		}
	}
}

func decodeCommand(payload map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(payload); err != nil {
		return badPayload{err}
	}
	return nil
}

type idPayload struct {
	ID string `mapstructure:"id"`
}

type campaignPayload struct {
	CampaignID string `mapstructure:"campaign_id"`
}

type jobSpec struct {
	ID           string             `mapstructure:"id"`
	CampaignID   string             `mapstructure:"campaign_id"`
	Channel      string             `mapstructure:"channel"`
	Payload      map[string]any     `mapstructure:"payload"`
	ScheduledFor time.Time          `mapstructure:"scheduled_for"`
	Delay        time.Duration      `mapstructure:"delay"`
	Recurrence   *domain.Recurrence `mapstructure:"recurrence"`
}

type campaignSpec struct {
	CampaignID   string             `mapstructure:"campaign_id"`
	Channel      string             `mapstructure:"channel"`
	Payload      map[string]any     `mapstructure:"payload"`
	ScheduledFor time.Time          `mapstructure:"scheduled_for"`
	Delay        time.Duration      `mapstructure:"delay"`
	Recurrence   *domain.Recurrence `mapstructure:"recurrence"`
	BotID        string             `mapstructure:"bot_id"`
	Recipients   []string           `mapstructure:"recipients"`
}

func (s jobSpec) fireAt(now time.Time) time.Time {
	if !s.ScheduledFor.IsZero() {
		return s.ScheduledFor
	}
	return now.Add(s.Delay)
}

func (a *Actor) cmdJobsList(ctx context.Context, payload map[string]any) (any, error) {
	var p struct {
		CampaignID string `mapstructure:"campaign_id"`
		Status     string `mapstructure:"status"`
	}
	if err := decodeCommand(payload, &p); err != nil {
		return nil, err
	}
	all, err := a.jobs.List(ctx)
	if err != nil {
		return nil, domain.NewError(domain.ErrStore, "list jobs", err, nil)
	}
	out := make([]*domain.RemarketingJob, 0, len(all))
	for _, j := range all {
		if p.CampaignID != "" && j.CampaignID != p.CampaignID {
			continue
		}
		if p.Status != "" && string(j.Status) != p.Status {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func (a *Actor) cmdJobsGet(ctx context.Context, payload map[string]any) (any, error) {
	var p idPayload
	if err := decodeCommand(payload, &p); err != nil {
		return nil, err
	}
	return a.jobs.Get(ctx, p.ID)
}

func (a *Actor) cmdJobsSchedule(ctx context.Context, payload map[string]any) (any, error) {
	var p jobSpec
	if err := decodeCommand(payload, &p); err != nil {
		return nil, err
	}
	return a.schedule(ctx, &domain.RemarketingJob{
		ID:           p.ID,
		CampaignID:   p.CampaignID,
		Channel:      p.Channel,
		Payload:      p.Payload,
		ScheduledFor: p.fireAt(a.cfg.clock.Now()),
		Recurrence:   p.Recurrence,
	})
}

func (a *Actor) cmdJobsCancel(ctx context.Context, payload map[string]any) (any, error) {
	var p idPayload
	if err := decodeCommand(payload, &p); err != nil {
		return nil, err
	}
	return a.cancelJob(ctx, p.ID)
}

// CampaignCreated is the data of a successful campaign.create.
type CampaignCreated struct {
	CampaignID string   `json:"campaign_id"`
	JobIDs     []string `json:"job_ids"`
}

// cmdCampaignCreate fans one message out as one job per recipient. Without
// explicit recipients the bot's recorded audience is used.
func (a *Actor) cmdCampaignCreate(ctx context.Context, payload map[string]any) (any, error) {
	var p campaignSpec
	if err := decodeCommand(payload, &p); err != nil {
		return nil, err
	}
	if p.CampaignID == "" {
		return nil, domain.NewError(domain.ErrInvalidJob, "campaign_id is required", nil, nil)
	}

	recipients := p.Recipients
	if len(recipients) == 0 && p.BotID != "" && a.cfg.members != nil {
		members, err := a.cfg.members.Members(ctx, a.tenant, p.BotID)
		if err != nil {
			return nil, domain.NewError(domain.ErrStore, "load audience", err, map[string]any{"bot_id": p.BotID})
		}
		recipients = members
	}
	if len(recipients) == 0 {
		return nil, domain.NewError(domain.ErrInvalidJob, "campaign has no recipients", nil,
			map[string]any{"campaign_id": p.CampaignID})
	}

	at := jobSpec{ScheduledFor: p.ScheduledFor, Delay: p.Delay}.fireAt(a.cfg.clock.Now())
	created := CampaignCreated{CampaignID: p.CampaignID, JobIDs: make([]string, 0, len(recipients))}
	seen := make(map[string]struct{}, len(recipients))
	for _, recipient := range recipients {
		if _, dup := seen[recipient]; dup || recipient == "" {
			continue
		}
		seen[recipient] = struct{}{}
		body := domain.CloneMap(p.Payload)
		body["chat_id"] = recipient
		if p.BotID != "" {
			body["bot_id"] = p.BotID
		}
		res, err := a.schedule(ctx, &domain.RemarketingJob{
			ID:           p.CampaignID + ":" + recipient,
			CampaignID:   p.CampaignID,
			Channel:      p.Channel,
			Payload:      body,
			ScheduledFor: at,
			Recurrence:   p.Recurrence,
		})
		if err != nil {
			return nil, err
		}
		created.JobIDs = append(created.JobIDs, res.JobID)
	}
	a.cfg.logger.Info("campaign created", "campaign_id", p.CampaignID, "jobs", len(created.JobIDs))
	return created, nil
}

// CampaignStatus summarises one campaign.
type CampaignStatus struct {
	CampaignID string     `json:"campaign_id"`
	Pending    int        `json:"pending"`
	Paused     int        `json:"paused"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	Delivered  int        `json:"delivered"`
	Failed     int        `json:"failed"`
}

func (a *Actor) cmdCampaignStatus(ctx context.Context, payload map[string]any) (any, error) {
	var p campaignPayload
	if err := decodeCommand(payload, &p); err != nil {
		return nil, err
	}
	jobs, err := a.campaignJobs(ctx, p.CampaignID)
	if err != nil {
		return nil, err
	}
	st := CampaignStatus{CampaignID: p.CampaignID}
	for _, j := range jobs {
		if j.IsPending() {
			st.Pending++
			if st.NextRun == nil || j.ScheduledFor.Before(*st.NextRun) {
				at := j.ScheduledFor
				st.NextRun = &at
			}
		} else {
			st.Paused++
		}
	}
	entries, err := a.outcomes.List(ctx, ports.OutcomeFilter{CampaignID: p.CampaignID})
	if err != nil {
		return nil, domain.NewError(domain.ErrStore, "list outcomes", err, nil)
	}
	for _, e := range entries {
		if e.Outcome == domain.OutcomeSuccess {
			st.Delivered++
		} else {
			st.Failed++
		}
	}
	return st, nil
}

// CampaignUpdated is the data of pause, resume and delete.
type CampaignUpdated struct {
	CampaignID string `json:"campaign_id"`
	Affected   int    `json:"affected"`
}

func (a *Actor) cmdCampaignPause(ctx context.Context, payload map[string]any) (any, error) {
	return a.setCampaignStatus(ctx, payload, domain.JobPaused)
}

// cmdCampaignResume re-arms the timer, so overdue jobs of the campaign fire
// right away.
func (a *Actor) cmdCampaignResume(ctx context.Context, payload map[string]any) (any, error) {
	return a.setCampaignStatus(ctx, payload, domain.JobPending)
}

func (a *Actor) setCampaignStatus(ctx context.Context, payload map[string]any, status domain.JobStatus) (any, error) {
	var p campaignPayload
	if err := decodeCommand(payload, &p); err != nil {
		return nil, err
	}
	jobs, err := a.campaignJobs(ctx, p.CampaignID)
	if err != nil {
		return nil, err
	}
	res := CampaignUpdated{CampaignID: p.CampaignID}
	for _, j := range jobs {
		if j.Status == status || (status == domain.JobPending && j.IsPending()) {
			continue
		}
		j.Status = status
		if err := a.jobs.Put(ctx, j); err != nil {
			return nil, domain.NewError(domain.ErrStore, "update job", err, map[string]any{"job_id": j.ID})
		}
		if status == domain.JobPending {
			a.armIfSooner(j.ScheduledFor)
		}
		res.Affected++
	}
	return res, nil
}

func (a *Actor) cmdCampaignDelete(ctx context.Context, payload map[string]any) (any, error) {
	var p campaignPayload
	if err := decodeCommand(payload, &p); err != nil {
		return nil, err
	}
	jobs, err := a.campaignJobs(ctx, p.CampaignID)
	if err != nil {
		return nil, err
	}
	res := CampaignUpdated{CampaignID: p.CampaignID}
	for _, j := range jobs {
		removed, err := a.jobs.Delete(ctx, j.ID)
		if err != nil {
			return nil, domain.NewError(domain.ErrStore, "delete job", err, map[string]any{"job_id": j.ID})
		}
		if removed {
			res.Affected++
		}
	}
	return res, nil
}

func (a *Actor) cmdRecipientsList(ctx context.Context, payload map[string]any) (any, error) {
	var p campaignPayload
	if err := decodeCommand(payload, &p); err != nil {
		return nil, err
	}
	jobs, err := a.campaignJobs(ctx, p.CampaignID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(jobs))
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		raw, ok := j.Payload["chat_id"]
		if !ok || raw == nil {
			continue
		}
		chatID := fmt.Sprint(raw)
		if _, dup := seen[chatID]; dup {
			continue
		}
		seen[chatID] = struct{}{}
		out = append(out, chatID)
	}
	sort.Strings(out)
	return out, nil
}

func (a *Actor) cmdOutcomesList(ctx context.Context, payload map[string]any) (any, error) {
	var p struct {
		JobID      string `mapstructure:"job_id"`
		CampaignID string `mapstructure:"campaign_id"`
		Limit      int    `mapstructure:"limit"`
	}
	if err := decodeCommand(payload, &p); err != nil {
		return nil, err
	}
	entries, err := a.outcomes.List(ctx, ports.OutcomeFilter{JobID: p.JobID, CampaignID: p.CampaignID, Limit: p.Limit})
	if err != nil {
		return nil, domain.NewError(domain.ErrStore, "list outcomes", err, nil)
	}
	return entries, nil
}

// TimerStatus is the data of timer.status.
type TimerStatus struct {
	Armed   bool       `json:"armed"`
	ArmedAt *time.Time `json:"armed_at,omitempty"`
	Pending int        `json:"pending"`
}

func (a *Actor) cmdTimerStatus(ctx context.Context, _ map[string]any) (any, error) {
	all, err := a.jobs.List(ctx)
	if err != nil {
		return nil, domain.NewError(domain.ErrStore, "list jobs", err, nil)
	}
	st := TimerStatus{Armed: !a.armedAt.IsZero()}
	if st.Armed {
		at := a.armedAt
		st.ArmedAt = &at
	}
	for _, j := range all {
		if j.IsPending() {
			st.Pending++
		}
	}
	return st, nil
}

func (a *Actor) campaignJobs(ctx context.Context, campaignID string) ([]*domain.RemarketingJob, error) {
	if campaignID == "" {
		return nil, domain.NewError(domain.ErrInvalidJob, "campaign_id is required", nil, nil)
	}
	all, err := a.jobs.List(ctx)
	if err != nil {
		return nil, domain.NewError(domain.ErrStore, "list jobs", err, nil)
	}
	out := all[:0]
	for _, j := range all {
		if j.CampaignID == campaignID {
			out = append(out, j)
		}
	}
	return out, nil
}
