package enums

import "fmt"

// BidWindowMode selects how a replacement window is resolved.
type BidWindowMode string

const (
	// BidWindowModeCompetitive runs a scored multi-bidder auction.
	BidWindowModeCompetitive BidWindowMode = "competitive"
	// BidWindowModeInstant resolves on the first valid bid.
	BidWindowModeInstant BidWindowMode = "instant"
	// BidWindowModeEmergency is first-come with a pay incentive.
	BidWindowModeEmergency BidWindowMode = "emergency"
)

var validBidWindowModes = []BidWindowMode{
	BidWindowModeCompetitive,
	BidWindowModeInstant,
	BidWindowModeEmergency,
}

func (m BidWindowMode) IsValid() bool {
	for _, candidate := range validBidWindowModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseBidWindowMode converts raw strings into BidWindowMode.
func ParseBidWindowMode(value string) (BidWindowMode, error) {
	for _, candidate := range validBidWindowModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bid window mode %q", value)
}

// BidWindowStatus maps to the bid_window_status enum in Postgres.
type BidWindowStatus string

const (
	BidWindowStatusOpen     BidWindowStatus = "open"
	BidWindowStatusClosed   BidWindowStatus = "closed"
	BidWindowStatusResolved BidWindowStatus = "resolved"
)

func (s BidWindowStatus) IsValid() bool {
	switch s {
	case BidWindowStatusOpen, BidWindowStatusClosed, BidWindowStatusResolved:
		return true
	}
	return false
}

// BidTrigger records what prompted a replacement window.
type BidTrigger string

const (
	BidTriggerAutoDrop     BidTrigger = "auto_drop"
	BidTriggerCancellation BidTrigger = "cancellation"
	BidTriggerNoShow       BidTrigger = "no_show"
	BidTriggerManager      BidTrigger = "manager"
)

func (t BidTrigger) IsValid() bool {
	switch t {
	case BidTriggerAutoDrop, BidTriggerCancellation, BidTriggerNoShow, BidTriggerManager:
		return true
	}
	return false
}
