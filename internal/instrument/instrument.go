package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	parentSpanIDKey
	instrumenterKey
	userIDKey
)

// Instrumenter records rule engine activity as rows of _events.
type Instrumenter interface {
	StartSpan(ctx context.Context, source, component, action string) (context.Context, Span)
	RuleExecuted(ctx context.Context, tag RuleTag, outcome RuleOutcome)
}

// Span is a timed operation. Tag attaches the rule coordinates it concerns.
type Span interface {
	End()
	SetStatus(status string)
	SetMetadata(key string, value any)
	Tag(tag RuleTag)
	TraceID() string
	SpanID() string
}

// RuleTag locates an event in the rule catalog. Each field maps to its own
// column; empty fields are stored as NULL.
type RuleTag struct {
	RuleID     string
	DataObject string
	HookPoint  string
}

// RuleOutcome is the verdict of one counted rule execution.
type RuleOutcome struct {
	ConditionsMet   bool
	Success         bool
	ActionsExecuted int
}

// Status collapses the outcome into the event status column:
// "skipped" when conditions were not met, else "success" or "failure".
func (o RuleOutcome) Status() string {
	switch {
	case !o.ConditionsMet && o.Success:
		return "skipped"
	case o.Success:
		return "success"
	default:
		return "failure"
	}
}

// Event is a row in the _events table.
type Event struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID *string        `json:"parent_span_id"`
	EventType    string         `json:"event_type"`
	Source       string         `json:"source"`
	Component    string         `json:"component"`
	Action       string         `json:"action"`
	RuleID       *string        `json:"rule_id"`
	DataObject   *string        `json:"data_object"`
	HookPoint    *string        `json:"hook_point"`
	UserID       *string        `json:"user_id"`
	DurationMs   *float64       `json:"duration_ms"`
	Status       *string        `json:"status"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (e *Event) apply(tag RuleTag) {
	e.RuleID = nonEmpty(tag.RuleID)
	e.DataObject = nonEmpty(tag.DataObject)
	e.HookPoint = nonEmpty(tag.HookPoint)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func newUUID() string {
	return uuid.New().String()
}

// WithTraceID sets the trace ID in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

// WithParentSpanID sets the parent span ID in the context.
func WithParentSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, parentSpanIDKey, spanID)
}

func getParentSpanID(ctx context.Context) string {
	v, _ := ctx.Value(parentSpanIDKey).(string)
	return v
}

// WithInstrumenter sets the instrumenter in the context.
func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, instrumenterKey, inst)
}

// GetInstrumenter returns the instrumenter from the context, or a
// NoopInstrumenter if none is set.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if v, ok := ctx.Value(instrumenterKey).(Instrumenter); ok {
		return v
	}
	return &NoopInstrumenter{}
}

// WithUserID records the authenticated caller for events emitted under ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func getUserID(ctx context.Context) *string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return &v
	}
	return nil
}

// Tracer enqueues spans and rule events to an EventBuffer.
type Tracer struct {
	buffer *EventBuffer
}

// NewInstrumenter returns a Tracer writing to buffer.
func NewInstrumenter(buffer *EventBuffer) *Tracer {
	return &Tracer{buffer: buffer}
}

// StartSpan opens a span; the returned context makes it the parent of any
// span or rule event started from it.
func (t *Tracer) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	s := &span{
		event: Event{
			TraceID:   GetTraceID(ctx),
			SpanID:    newUUID(),
			EventType: "system",
			Source:    source,
			Component: component,
			Action:    action,
			UserID:    getUserID(ctx),
		},
		startTime: time.Now(),
		buffer:    t.buffer,
	}
	if parent := getParentSpanID(ctx); parent != "" {
		s.event.ParentSpanID = &parent
	}
	return WithParentSpanID(ctx, s.event.SpanID), s
}

// RuleExecuted emits a "rule.executed" business event for one counted
// execution. It has no duration.
func (t *Tracer) RuleExecuted(ctx context.Context, tag RuleTag, outcome RuleOutcome) {
	status := outcome.Status()
	e := Event{
		TraceID:   GetTraceID(ctx),
		SpanID:    newUUID(),
		EventType: "business",
		Source:    "engine",
		Component: "rules",
		Action:    "rule.executed",
		UserID:    getUserID(ctx),
		Status:    &status,
		Metadata: map[string]any{
			"conditionsMet":   outcome.ConditionsMet,
			"success":         outcome.Success,
			"actionsExecuted": outcome.ActionsExecuted,
		},
	}
	if parent := getParentSpanID(ctx); parent != "" {
		e.ParentSpanID = &parent
	}
	e.apply(tag)
	t.buffer.Enqueue(e)
}

type span struct {
	mu        sync.Mutex
	event     Event
	startTime time.Time
	buffer    *EventBuffer
	ended     bool
}

func (s *span) TraceID() string { return s.event.TraceID }
func (s *span) SpanID() string  { return s.event.SpanID }

func (s *span) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event.Status = &status
}

func (s *span) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.event.Metadata == nil {
		s.event.Metadata = make(map[string]any)
	}
	s.event.Metadata[key] = value
}

// Tag replaces the span's rule coordinates.
func (s *span) Tag(tag RuleTag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event.apply(tag)
}

// End enqueues the span once; later calls are ignored.
func (s *span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	ms := float64(time.Since(s.startTime).Microseconds()) / 1000.0
	s.event.DurationMs = &ms
	s.buffer.Enqueue(s.event)
}
