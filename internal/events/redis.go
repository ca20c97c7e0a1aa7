package events

// Redis fan-out for timer events.
//
//	Ledger / Timer                               Redis
//	┌─────────────┐  PUBLISH timelog:events:{job} ┌─────────────┐
//	│   Redis     │ ───────────────────────────▶  │  Pub/Sub    │ → list views, watch
//	│  Publisher  │                               └─────────────┘
//	│             │  XADD timelog:events:stream   ┌─────────────┐
//	│             │ ───────────────────────────▶  │  Streams    │ → live consumers
//	│             │  XADD timelog:completed:stream│             │
//	│             │ ───────────────────────────▶  │             │ → payroll (via ledger.Syncer)
//	└─────────────┘                               └─────────────┘

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aceteam-ai/shiftclock/internal/timelog"
)

// jobIDPattern keeps job IDs safe to embed in channel names.
var jobIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

const (
	DefaultChannelPrefix = "timelog:events:"
	DefaultStreamName    = "timelog:events:stream"
	DefaultCompletedName = "timelog:completed:stream"
	defaultStreamMaxLen  = 10000
)

// RedisPublisherConfig holds configuration for the Redis event publisher.
type RedisPublisherConfig struct {
	// RedisURL is the Redis connection URL
	RedisURL string

	// RedisPassword overrides the password in the URL (optional)
	RedisPassword string

	// ChannelPrefix is prepended to the job ID (default: "timelog:events:")
	ChannelPrefix string

	// StreamName is the stream events are appended to (default: "timelog:events:stream")
	StreamName string

	// CompletedStreamName receives finished sessions from AppendCompleted
	// (default: "timelog:completed:stream")
	CompletedStreamName string

	// StreamMaxLen bounds the stream with approximate trimming (default: 10000)
	StreamMaxLen int64

	// DebugFunc is an optional callback for debug logging
	DebugFunc func(format string, args ...any)
}

// RedisPublisher publishes events to a per-job Pub/Sub channel for live
// followers and to a stream for consumers that need every event.
type RedisPublisher struct {
	client        *redis.Client
	channelPrefix string
	streamName    string
	completedName string
	maxLen        int64
	debugFunc     func(format string, args ...any)
}

// NewRedisPublisher creates a publisher. It does not connect until the first
// publish or Ping.
func NewRedisPublisher(cfg RedisPublisherConfig) (*RedisPublisher, error) {
	client, err := newClient(cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = DefaultChannelPrefix
	}
	if cfg.StreamName == "" {
		cfg.StreamName = DefaultStreamName
	}
	if cfg.CompletedStreamName == "" {
		cfg.CompletedStreamName = DefaultCompletedName
	}
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = defaultStreamMaxLen
	}
	return &RedisPublisher{
		client:        client,
		channelPrefix: cfg.ChannelPrefix,
		streamName:    cfg.StreamName,
		completedName: cfg.CompletedStreamName,
		maxLen:        cfg.StreamMaxLen,
		debugFunc:     cfg.DebugFunc,
	}, nil
}

func newClient(url, password string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	return redis.NewClient(opts), nil
}

func (p *RedisPublisher) debug(format string, args ...any) {
	if p.debugFunc != nil {
		p.debugFunc(format, args...)
	}
}

// Ping verifies the connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// ChannelFor returns the Pub/Sub channel for a job.
func (p *RedisPublisher) ChannelFor(jobID string) string {
	return p.channelPrefix + jobID
}

// StreamName returns the stream name.
func (p *RedisPublisher) StreamName() string {
	return p.streamName
}

// Publish sends e to the job's channel and appends it to the stream.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	if !jobIDPattern.MatchString(e.JobID) {
		return fmt.Errorf("invalid job ID %q: must be 1-64 alphanumeric characters, dots, hyphens, or underscores", e.JobID)
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := p.ChannelFor(e.JobID)
	p.debug("events: publishing %s for job %s to %s", e.Type, e.JobID, channel)

	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to Pub/Sub: %w", err)
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.streamName,
		Values: map[string]any{
			"jobId":     e.JobID,
			"type":      string(e.Type),
			"timestamp": e.At.UTC().Format(time.RFC3339),
			"payload":   string(payload),
		},
		MaxLen: p.maxLen,
		Approx: true,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}
	p.debug("events: stream XADD successful")
	return nil
}

// AppendCompleted adds finished sessions to the completed stream in one
// pipeline. It matches ledger.PublishFunc.
func (p *RedisPublisher) AppendCompleted(ctx context.Context, logs []timelog.TimeLog) error {
	if len(logs) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, l := range logs {
		payload, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("failed to marshal time log %s: %w", l.ID, err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.completedName,
			Values: map[string]any{
				"jobId":        l.JobID,
				"logId":        l.ID,
				"totalSeconds": l.TotalSeconds,
				"payload":      string(payload),
			},
			MaxLen: p.maxLen,
			Approx: true,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append completed logs: %w", err)
	}
	p.debug("events: appended %d completed log(s) to %s", len(logs), p.completedName)
	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// RedisSubscriberConfig holds configuration for the Redis event subscriber.
type RedisSubscriberConfig struct {
	RedisURL      string
	RedisPassword string

	// JobID limits the subscription to one job. Empty follows every job.
	JobID string

	// ChannelPrefix must match the publisher's (default: "timelog:events:")
	ChannelPrefix string

	// LogFn is an optional callback for logging
	LogFn func(level, msg string)
}

// RedisSubscriber follows Pub/Sub events and hands them to a Publisher,
// usually a Bus, so remote transitions reach local listeners.
type RedisSubscriber struct {
	client  *redis.Client
	pattern string
	jobID   string

	minBackoff time.Duration
	maxBackoff time.Duration

	logFn func(level, msg string)
}

// NewRedisSubscriber creates a subscriber.
func NewRedisSubscriber(cfg RedisSubscriberConfig) (*RedisSubscriber, error) {
	if cfg.JobID != "" && !jobIDPattern.MatchString(cfg.JobID) {
		return nil, fmt.Errorf("invalid job ID %q", cfg.JobID)
	}
	client, err := newClient(cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	pattern := prefix + "*"
	if cfg.JobID != "" {
		pattern = prefix + cfg.JobID
	}
	return &RedisSubscriber{
		client:     client,
		pattern:    pattern,
		jobID:      cfg.JobID,
		minBackoff: time.Second,
		maxBackoff: time.Minute,
		logFn:      cfg.LogFn,
	}, nil
}

func (s *RedisSubscriber) log(level, format string, args ...any) {
	if s.logFn != nil {
		s.logFn(level, fmt.Sprintf(format, args...))
	}
}

// Pattern returns the channel pattern the subscriber listens on.
func (s *RedisSubscriber) Pattern() string {
	return s.pattern
}

// Start forwards events to out until ctx is cancelled, reconnecting with
// exponential backoff when the subscription drops.
func (s *RedisSubscriber) Start(ctx context.Context, out Publisher) error {
	backoff := s.minBackoff
	for {
		err := s.run(ctx, out, func() { backoff = s.minBackoff })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log("warning", "event subscription error (retrying in %v): %v", backoff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.maxBackoff)
	}
}

func (s *RedisSubscriber) run(ctx context.Context, out Publisher, subscribed func()) error {
	var pubsub *redis.PubSub
	if strings.HasSuffix(s.pattern, "*") {
		pubsub = s.client.PSubscribe(ctx, s.pattern)
	} else {
		pubsub = s.client.Subscribe(ctx, s.pattern)
	}
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.pattern, err)
	}
	subscribed()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription channel closed")
			}
			e, err := decodeEvent(msg.Payload)
			if err != nil {
				s.log("warning", "dropping event from %s: %v", msg.Channel, err)
				continue
			}
			if s.jobID != "" && e.JobID != s.jobID {
				continue
			}
			if err := out.Publish(ctx, e); err != nil {
				s.log("warning", "forwarding %s event failed: %v", e.Type, err)
			}
		}
	}
}

func decodeEvent(payload string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, fmt.Errorf("failed to parse event: %w", err)
	}
	if e.JobID == "" || e.Type == "" {
		return Event{}, fmt.Errorf("event missing type or job ID")
	}
	return e, nil
}

// Close closes the Redis connection.
func (s *RedisSubscriber) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
