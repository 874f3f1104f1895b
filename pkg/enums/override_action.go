package enums

import "fmt"

// OverrideAction is what a manager can do to an assignment outside the
// normal bidding flow.
type OverrideAction string

const (
	OverrideActionReassign          OverrideAction = "reassign"
	OverrideActionOpenBidding       OverrideAction = "open_bidding"
	OverrideActionOpenUrgentBidding OverrideAction = "open_urgent_bidding"
)

var validOverrideActions = []OverrideAction{
	OverrideActionReassign,
	OverrideActionOpenBidding,
	OverrideActionOpenUrgentBidding,
}

func (a OverrideAction) IsValid() bool {
	for _, candidate := range validOverrideActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOverrideAction converts raw strings into OverrideAction.
func ParseOverrideAction(value string) (OverrideAction, error) {
	for _, candidate := range validOverrideActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid override action %q", value)
}
