package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateAssignment OutboxAggregateType = "assignment"
	AggregateBidWindow  OutboxAggregateType = "bid_window"
	AggregateBid        OutboxAggregateType = "bid"
	AggregateDriver     OutboxAggregateType = "driver"
	AggregateSchedule   OutboxAggregateType = "schedule"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateAssignment,
	AggregateBidWindow,
	AggregateBid,
	AggregateDriver,
	AggregateSchedule,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventAssignmentCreated   OutboxEventType = "assignment_created"
	EventAssignmentConfirmed OutboxEventType = "assignment_confirmed"
	EventAssignmentCancelled OutboxEventType = "assignment_cancelled"
	EventAssignmentUpdated   OutboxEventType = "assignment_updated"
	EventAssignmentCompleted OutboxEventType = "assignment_completed"
	EventAutoDropExecuted    OutboxEventType = "auto_drop_executed"
	EventNoShowDetected      OutboxEventType = "no_show_detected"
	EventBidWindowOpened     OutboxEventType = "bid_window_opened"
	EventBidWindowClosed     OutboxEventType = "bid_window_closed"
	EventBidWindowResolved   OutboxEventType = "bid_window_resolved"
	EventScheduleGenerated   OutboxEventType = "schedule_generated"
	EventPreferencesLocked   OutboxEventType = "preferences_locked"
)

var validOutboxEventTypes = []OutboxEventType{
	EventAssignmentCreated,
	EventAssignmentConfirmed,
	EventAssignmentCancelled,
	EventAssignmentUpdated,
	EventAssignmentCompleted,
	EventAutoDropExecuted,
	EventNoShowDetected,
	EventBidWindowOpened,
	EventBidWindowClosed,
	EventBidWindowResolved,
	EventScheduleGenerated,
	EventPreferencesLocked,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
