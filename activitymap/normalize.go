package activitymap

import (
	"context"
	"strings"
	"time"

	guardian "github.com/goliatone/go-guardian"
)

const (
	// MetadataKeyActorType holds guardian.ActorRef.Type
	MetadataKeyActorType = "actor_type"
	// MetadataKeyFromState holds the account state before a transition
	MetadataKeyFromState = "from_state"
	// MetadataKeyToState holds the account state after a transition
	MetadataKeyToState = "to_state"
)

const (
	defaultChannel    = "guardian"
	defaultObjectType = "account"
	defaultActorID    = "system"
)

// Record is the flat activity shape handed to audit pipelines
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*options)

type options struct {
	channel       string
	objectType    string
	actorFallback string
	now           func() time.Time
}

// WithChannel sets the channel stamped on every record
func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

// WithObjectType sets the object type stamped on every record
func WithObjectType(objectType string) Option {
	return func(o *options) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used when the event names neither an
// actor nor an account.
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock sets the clock used for events without a timestamp
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Normalize flattens event into a Record
func Normalize(event guardian.ActivityEvent, opts ...Option) Record {
	return normalize(event, buildOptions(opts))
}

func normalize(event guardian.ActivityEvent, o options) Record {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = o.now().UTC()
	}

	return Record{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor.ID),
			strings.TrimSpace(event.AccountID),
			o.actorFallback,
		),
		Verb:       string(event.EventType),
		ObjectType: o.objectType,
		ObjectID:   strings.TrimSpace(event.AccountID),
		Channel:    o.channel,
		Metadata:   metadataOf(event),
		OccurredAt: occurredAt,
	}
}

// Publisher receives normalized records
type Publisher func(ctx context.Context, record Record) error

// NewSink returns an ActivitySink that normalizes events before handing
// them to publish.
func NewSink(publish Publisher, opts ...Option) guardian.ActivitySink {
	o := buildOptions(opts)
	return guardian.ActivitySinkFunc(func(ctx context.Context, event guardian.ActivityEvent) error {
		if publish == nil {
			return nil
		}
		return publish(ctx, normalize(event, o))
	})
}

func metadataOf(event guardian.ActivityEvent) map[string]any {
	var out map[string]any
	set := func(key string, value any) {
		if out == nil {
			out = make(map[string]any, len(event.Metadata)+3)
		}
		out[key] = value
	}

	for k, v := range event.Metadata {
		set(k, v)
	}
	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := out[MetadataKeyActorType]; !exists {
			set(MetadataKeyActorType, actorType)
		}
	}
	if event.FromState != "" {
		set(MetadataKeyFromState, string(event.FromState))
	}
	if event.ToState != "" {
		set(MetadataKeyToState, string(event.ToState))
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
