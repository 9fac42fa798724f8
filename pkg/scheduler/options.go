package scheduler

import (
	"log/slog"
	"time"

	"github.com/aretw0/botflow/internal/logging"
	"github.com/aretw0/botflow/pkg/ports"
)

const (
	DefaultWorkers      = 4
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = time.Minute
	DefaultSendTimeout  = 15 * time.Second
)

type config struct {
	logger      *slog.Logger
	clock       Clock
	location    *time.Location
	workers     int
	maxAttempts int
	backoff     time.Duration
	sendTimeout time.Duration
	events      ports.EventPublisher
	members     ports.MembershipStore
}

func defaultConfig() config {
	return config{
		logger:      logging.NewNop(),
		clock:       RealClock(),
		location:    time.UTC,
		workers:     DefaultWorkers,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultRetryBackoff,
		sendTimeout: DefaultSendTimeout,
		events:      ports.NopPublisher{},
	}
}

// Option configures an Actor (and, through the Hub, every actor it creates).
type Option func(*config)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLocation sets the time zone recurrences are computed in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(c *config) {
		if loc != nil {
			c.location = loc
		}
	}
}

// WithWorkers bounds how many due jobs are delivered concurrently.
func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithMaxAttempts bounds deliveries of a job failing with a transient error.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the linear backoff unit for transient failures.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.backoff = d
		}
	}
}

// WithSendTimeout bounds each provider call.
func WithSendTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.sendTimeout = d
		}
	}
}

// WithEvents publishes JOB_* domain events.
func WithEvents(p ports.EventPublisher) Option {
	return func(c *config) {
		if p != nil {
			c.events = p
		}
	}
}

// WithMembership lets campaign.create default its recipients to a bot's audience.
func WithMembership(m ports.MembershipStore) Option {
	return func(c *config) {
		c.members = m
	}
}
