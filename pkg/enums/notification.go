package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeAssignmentAssigned  NotificationType = "assignment_assigned"
	NotificationTypeAssignmentDropped   NotificationType = "assignment_dropped"
	NotificationTypeAssignmentCancelled NotificationType = "assignment_cancelled"
	NotificationTypeBidWindowOpened     NotificationType = "bid_window_opened"
	NotificationTypeBidWon              NotificationType = "bid_won"
	NotificationTypeBidLost             NotificationType = "bid_lost"
	NotificationTypeNoShowAlert         NotificationType = "no_show_alert"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeAssignmentAssigned,
	NotificationTypeAssignmentDropped,
	NotificationTypeAssignmentCancelled,
	NotificationTypeBidWindowOpened,
	NotificationTypeBidWon,
	NotificationTypeBidLost,
	NotificationTypeNoShowAlert,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
