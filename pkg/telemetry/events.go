package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event emitted by the workflow engine.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// WorkflowName is the associated workflow, if applicable.
	WorkflowName string `json:"workflow_name,omitempty"`

	// ActionName is the associated action, if applicable.
	ActionName string `json:"action_name,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types. These match the type
// values the store records in its event log.
const (
	EventTypeRunStarted      = "run.started"
	EventTypeRunCompleted    = "run.completed"
	EventTypeRunFailed       = "run.failed"
	EventTypeRunCancelled    = "run.cancelled"
	EventTypeActionStarted   = "action.started"
	EventTypeActionCompleted = "action.completed"
	EventTypeActionFailed    = "action.failed"
	EventTypeActionSkipped   = "action.skipped"
	EventTypePolicyViolation = "policy.violation"
	EventTypeError           = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	if cfg.EnableAsync && cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.EnableAsync && cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(runID, workflowName string) error {
	return ep.Publish(Event{
		Type:         EventTypeRunStarted,
		Source:       "runner",
		RunID:        runID,
		WorkflowName: workflowName,
		Message:      fmt.Sprintf("Run %s started for workflow %s", runID, workflowName),
		Level:        EventLevelInfo,
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(runID, workflowName, status string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:         EventTypeRunCompleted,
		Source:       "runner",
		RunID:        runID,
		WorkflowName: workflowName,
		Message:      fmt.Sprintf("Run %s completed with status: %s", runID, status),
		Level:        EventLevelInfo,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishRunFailed publishes a run failed event.
func (ep *EventPublisher) PublishRunFailed(runID, workflowName, reason string) error {
	return ep.Publish(Event{
		Type:         EventTypeRunFailed,
		Source:       "runner",
		RunID:        runID,
		WorkflowName: workflowName,
		Message:      fmt.Sprintf("Run %s failed: %s", runID, reason),
		Level:        EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishRunCancelled publishes a run cancelled event.
func (ep *EventPublisher) PublishRunCancelled(runID, workflowName string) error {
	return ep.Publish(Event{
		Type:         EventTypeRunCancelled,
		Source:       "runner",
		RunID:        runID,
		WorkflowName: workflowName,
		Message:      fmt.Sprintf("Run %s cancelled", runID),
		Level:        EventLevelWarning,
	})
}

// PublishActionStarted publishes an action started event.
func (ep *EventPublisher) PublishActionStarted(runID, actionName, variant string) error {
	return ep.Publish(Event{
		Type:       EventTypeActionStarted,
		Source:     "runner",
		RunID:      runID,
		ActionName: actionName,
		Message:    fmt.Sprintf("Action %s started (%s)", actionName, variant),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"variant": variant,
		},
	})
}

// PublishActionCompleted publishes an action completed event.
func (ep *EventPublisher) PublishActionCompleted(runID, actionName string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:       EventTypeActionCompleted,
		Source:     "runner",
		RunID:      runID,
		ActionName: actionName,
		Message:    fmt.Sprintf("Action %s completed", actionName),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishActionFailed publishes an action failed event.
func (ep *EventPublisher) PublishActionFailed(runID, actionName, reason string) error {
	return ep.Publish(Event{
		Type:       EventTypeActionFailed,
		Source:     "runner",
		RunID:      runID,
		ActionName: actionName,
		Message:    fmt.Sprintf("Action %s failed: %s", actionName, reason),
		Level:      EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishActionSkipped publishes an action skipped event.
func (ep *EventPublisher) PublishActionSkipped(runID, actionName, reason string) error {
	return ep.Publish(Event{
		Type:       EventTypeActionSkipped,
		Source:     "runner",
		RunID:      runID,
		ActionName: actionName,
		Message:    fmt.Sprintf("Action %s skipped: %s", actionName, reason),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(workflowName, policyName, reason string) error {
	return ep.Publish(Event{
		Type:         EventTypePolicyViolation,
		Source:       "policy_engine",
		WorkflowName: workflowName,
		Message:      fmt.Sprintf("Policy violation in workflow %s: %s - %s", workflowName, policyName, reason),
		Level:        EventLevelError,
		Data: map[string]interface{}{
			"policy": policyName,
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	ticker := time.NewTicker(ep.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}
